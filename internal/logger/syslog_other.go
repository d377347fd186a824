//go:build windows || plan9

package logger

import "errors"

func dialSyslog(_, _, _, _ string) (syslogWriter, error) {
	return nil, errors.New("syslog is not supported on this platform")
}
