package raft

import (
	"io"
	"log"

	"github.com/hashicorp/go-hclog"
	"github.com/sirupsen/logrus"
)

// hclogAdapter bridges mvirt's contextual logrus logger into the
// hclog.Logger interface hashicorp/raft requires, so Raft's own log lines
// flow through the same formatter/output as the rest of the daemon instead
// of hclog's default stderr writer.
type hclogAdapter struct {
	entry *logrus.Entry
	name  string
}

// NewHCLogAdapter wraps entry as an hclog.Logger.
func NewHCLogAdapter(entry *logrus.Entry) hclog.Logger {
	return &hclogAdapter{entry: entry}
}

func (h *hclogAdapter) fields(args []interface{}) *logrus.Entry {
	e := h.entry
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			continue
		}

		e = e.WithField(key, args[i+1])
	}

	return e
}

func (h *hclogAdapter) Log(level hclog.Level, msg string, args ...interface{}) {
	switch level {
	case hclog.Trace, hclog.Debug:
		h.fields(args).Debug(msg)
	case hclog.Info:
		h.fields(args).Info(msg)
	case hclog.Warn:
		h.fields(args).Warn(msg)
	case hclog.Error:
		h.fields(args).Error(msg)
	default:
		h.fields(args).Info(msg)
	}
}

func (h *hclogAdapter) Trace(msg string, args ...interface{}) { h.fields(args).Debug(msg) }
func (h *hclogAdapter) Debug(msg string, args ...interface{}) { h.fields(args).Debug(msg) }
func (h *hclogAdapter) Info(msg string, args ...interface{})  { h.fields(args).Info(msg) }
func (h *hclogAdapter) Warn(msg string, args ...interface{})  { h.fields(args).Warn(msg) }
func (h *hclogAdapter) Error(msg string, args ...interface{}) { h.fields(args).Error(msg) }

func (h *hclogAdapter) IsTrace() bool { return h.entry.Logger.IsLevelEnabled(logrus.DebugLevel) }
func (h *hclogAdapter) IsDebug() bool { return h.entry.Logger.IsLevelEnabled(logrus.DebugLevel) }
func (h *hclogAdapter) IsInfo() bool  { return h.entry.Logger.IsLevelEnabled(logrus.InfoLevel) }
func (h *hclogAdapter) IsWarn() bool  { return h.entry.Logger.IsLevelEnabled(logrus.WarnLevel) }
func (h *hclogAdapter) IsError() bool { return h.entry.Logger.IsLevelEnabled(logrus.ErrorLevel) }

func (h *hclogAdapter) ImpliedArgs() []interface{} { return nil }

func (h *hclogAdapter) With(args ...interface{}) hclog.Logger {
	return &hclogAdapter{entry: h.fields(args), name: h.name}
}

func (h *hclogAdapter) Name() string { return h.name }

func (h *hclogAdapter) Named(name string) hclog.Logger {
	full := name
	if h.name != "" {
		full = h.name + "." + name
	}

	return &hclogAdapter{entry: h.entry.WithField("component", full), name: full}
}

func (h *hclogAdapter) ResetNamed(name string) hclog.Logger {
	return &hclogAdapter{entry: h.entry.WithField("component", name), name: name}
}

func (h *hclogAdapter) SetLevel(level hclog.Level) {}

func (h *hclogAdapter) GetLevel() hclog.Level {
	switch h.entry.Logger.GetLevel() {
	case logrus.TraceLevel:
		return hclog.Trace
	case logrus.DebugLevel:
		return hclog.Debug
	case logrus.WarnLevel:
		return hclog.Warn
	case logrus.ErrorLevel, logrus.FatalLevel, logrus.PanicLevel:
		return hclog.Error
	default:
		return hclog.Info
	}
}

func (h *hclogAdapter) StandardLogger(opts *hclog.StandardLoggerOptions) *log.Logger {
	return log.New(h.StandardWriter(opts), "", 0)
}

func (h *hclogAdapter) StandardWriter(opts *hclog.StandardLoggerOptions) io.Writer {
	return h.entry.Writer()
}
