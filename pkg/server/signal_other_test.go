//go:build windows || plan9

package server

import "os"

var testSignal os.Signal = os.Interrupt
