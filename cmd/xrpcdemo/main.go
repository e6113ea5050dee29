// Command xrpcdemo drives a self-contained demonstration of the corerpc
// dispatcher: two in-process Dispatchers wired together over a Loopback
// transport, exercising the round-trip, nested-call, event-ack, backpressure,
// and callback-proxy behaviors described by the package docs.
package main

import (
	"fmt"
	"os"

	"github.com/marmos91/corerpc/cmd/xrpcdemo/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
