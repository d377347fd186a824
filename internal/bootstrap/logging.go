package bootstrap

import (
	"github.com/marmos91/volumed/internal/logger"
	"github.com/marmos91/volumed/pkg/config"
)

// LoggerConfig converts the logging options to the logger's configuration.
func LoggerConfig(cfg config.LoggingConfig) logger.Config {
	return logger.Config{
		Level:   cfg.Level,
		Format:  cfg.Format,
		Output:  cfg.Output,
		Debug:   cfg.Debug,
		Verbose: cfg.Verbose,
		File: logger.FileConfig{
			Path:  cfg.File.Path,
			Level: cfg.File.Level,
		},
		Syslog: logger.SyslogConfig{
			Enabled:  cfg.Syslog.Enabled,
			Network:  cfg.Syslog.Network,
			Address:  cfg.Syslog.Address,
			Tag:      cfg.Syslog.Tag,
			Facility: cfg.Syslog.Facility,
			Level:    cfg.Syslog.Level,
		},
	}
}
