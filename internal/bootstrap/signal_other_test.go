//go:build windows || plan9

package bootstrap

import "os"

var testSignal os.Signal = os.Interrupt
