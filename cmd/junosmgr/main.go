// Junosmgr applies templated configuration changes to Junos devices over NETCONF.
//
// Usage:
//
//	junosmgr facts --host H --user U --password P
//	junosmgr apply -f change.yaml [--metrics-out file]
//	junosmgr simulate --listen localhost:8830 --user U --password P
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
