//go:build js && wasm

package main

import (
	"fmt"
	"syscall/js"

	"github.com/andesco/unblocker/pkg/jshost"
)

func main() {
	engine, err := jshost.Start(js.Global())
	if err != nil {
		if !jshost.IsDisabled(err) {
			fmt.Println("[unblocker] not installed:", err)
		}
		return
	}

	fmt.Println("[unblocker] ready:", engine.Installed())

	// Keep the program running; the interceptors live in Go.
	select {}
}
