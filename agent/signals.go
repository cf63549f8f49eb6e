package main

import (
	"os"
	"os/signal"
	"syscall"

	log "github.com/cihub/seelog"
)

// waitForShutdownSignal blocks until SIGINT or SIGTERM arrives, matching
// catcher()'s sigaction registration for the same two signals in
// original_source/src/agent/thread_handler.c.
func waitForShutdownSignal() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Infof("received signal %s, stopping", sig)
}
