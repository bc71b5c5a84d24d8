package cmdutil

import (
	"fmt"
	"strings"

	"github.com/go-kit/log/level"
)

var defaultLogLevel = LogLevel{
	value:  level.InfoValue(),
	option: level.AllowInfo(),
}

// LogLevel implements pflag.Value and can be used to set the logging level
// from a flag. Levels are given by name or as a number from 0 to 4, where 0
// and 1 only show errors and 4 shows everything. The zero value is ready for
// use.
type LogLevel struct {
	value  level.Value
	option level.Option
}

// String implements pflag.Value.
func (l LogLevel) String() string {
	if l.value == nil {
		return defaultLogLevel.String()
	}
	return l.value.String()
}

// Type implements pflag.Value.
func (l LogLevel) Type() string { return "level" }

// Set implements pflag.Value.
func (l *LogLevel) Set(in string) error {
	switch strings.ToLower(in) {
	case "0", "1", "error":
		l.value = level.ErrorValue()
		l.option = level.AllowError()
	case "2", "warn":
		l.value = level.WarnValue()
		l.option = level.AllowWarn()
	case "3", "info":
		l.value = level.InfoValue()
		l.option = level.AllowInfo()
	case "4", "debug":
		l.value = level.DebugValue()
		l.option = level.AllowDebug()
	default:
		return fmt.Errorf("unknown log level %q, valid options 0-4, error, warn, info, debug", in)
	}
	return nil
}

// Return l as a FilterOption that can be used with level.NewFilter.
func (l LogLevel) FilterOption() level.Option {
	if l.option == nil {
		return defaultLogLevel.option
	}
	return l.option
}
