package gateway

import (
	"fmt"
	"strings"
	"unicode/utf16"
)

// EscapeJavaScript reproduces $util.escapeJavaScript from the API Gateway
// mapping template runtime. It escapes quotes, backslashes, forward slashes
// and control characters, and writes every non-ASCII UTF-16 unit as \uXXXX.
func EscapeJavaScript(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	for _, ch := range utf16.Encode([]rune(s)) {
		switch {
		case ch > 0x7f:
			fmt.Fprintf(&b, `\u%04X`, ch)
		case ch < 0x20:
			switch ch {
			case '\b':
				b.WriteString(`\b`)
			case '\n':
				b.WriteString(`\n`)
			case '\t':
				b.WriteString(`\t`)
			case '\f':
				b.WriteString(`\f`)
			case '\r':
				b.WriteString(`\r`)
			default:
				fmt.Fprintf(&b, `\u%04X`, ch)
			}
		case ch == '\'':
			b.WriteString(`\'`)
		case ch == '"':
			b.WriteString(`\"`)
		case ch == '\\':
			b.WriteString(`\\`)
		case ch == '/':
			b.WriteString(`\/`)
		default:
			b.WriteByte(byte(ch))
		}
	}

	return b.String()
}

// escapeJSONString is EscapeJavaScript followed by the replaceAll the
// template applies, which turns \' back into ' so the output stays valid JSON.
func escapeJSONString(s string) string {
	return strings.ReplaceAll(EscapeJavaScript(s), `\'`, `'`)
}
