package main

import (
	"fmt"
	"log"
	"runtime/debug"

	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"

	"github.com/jrzesz33/language_bus/internal/stack"
)

func main() {
	pulumi.Run(func(ctx *pulumi.Context) (err error) {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("PANIC RECOVERED: %v", r)
				log.Printf("Stack trace:\n%s", debug.Stack())
				err = fmt.Errorf("panic occurred: %v", r)
			}
		}()

		log.Printf("Starting language bus deployment...")
		return stack.Run(ctx)
	})
}
