//go:build !windows

package main

import (
	"os"
	"syscall"
)

var (
	stopSignals   = []os.Signal{os.Interrupt, syscall.SIGTERM}
	dumpSignals   = []os.Signal{syscall.SIGUSR1}
	reloadSignals = []os.Signal{syscall.SIGHUP}
)
