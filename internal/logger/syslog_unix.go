//go:build !windows && !plan9

package logger

import (
	"fmt"
	"log/syslog"
	"strings"
)

var facilities = map[string]syslog.Priority{
	"":       syslog.LOG_DAEMON,
	"daemon": syslog.LOG_DAEMON,
	"user":   syslog.LOG_USER,
	"local0": syslog.LOG_LOCAL0,
	"local1": syslog.LOG_LOCAL1,
	"local2": syslog.LOG_LOCAL2,
	"local3": syslog.LOG_LOCAL3,
	"local4": syslog.LOG_LOCAL4,
	"local5": syslog.LOG_LOCAL5,
	"local6": syslog.LOG_LOCAL6,
	"local7": syslog.LOG_LOCAL7,
}

// dialSyslog connects to the local syslog daemon when network is empty,
// otherwise to the given remote address.
func dialSyslog(network, address, facility, tag string) (syslogWriter, error) {
	priority, ok := facilities[strings.ToLower(facility)]
	if !ok {
		return nil, fmt.Errorf("unknown syslog facility %q", facility)
	}

	w, err := syslog.Dial(network, address, priority|syslog.LOG_INFO, tag)
	if err != nil {
		return nil, fmt.Errorf("connect to syslog: %w", err)
	}
	return w, nil
}
