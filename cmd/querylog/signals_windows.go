//go:build windows

package main

import "os"

var (
	stopSignals   = []os.Signal{os.Interrupt}
	dumpSignals   []os.Signal
	reloadSignals []os.Signal
)
