package models

// Response is the value returned by the event processing function.
// EventBridge discards it; it is kept for parity with the inline runtimes.
type Response struct {
	StatusCode int    `json:"statusCode"`
	Body       string `json:"body"`
}

// HelloResponse is the fixed response of the processing function
func HelloResponse() Response {
	return Response{StatusCode: 200, Body: "Hello, World"}
}
