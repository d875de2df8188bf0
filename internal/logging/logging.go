package logging

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"code.cloudfoundry.org/lager"
)

// LagerLogger adapts a lager.Logger to the Logger interface. Lines are
// written as JSON by lager's writer sink. Persistent fields added with With
// are merged into every line; a "component" field opens a lager session so
// the component shows up in the line's source.
type LagerLogger struct {
	l      lager.Logger
	fields lager.Data
}

// NewLagerLogger creates a logger named component that writes lines at or
// above level to w. Unknown levels fall back to info.
func NewLagerLogger(component, level string, w io.Writer) *LagerLogger {
	l := lager.NewLogger(component)
	l.RegisterSink(lager.NewWriterSink(w, ParseLevel(level)))
	return &LagerLogger{l: l, fields: lager.Data{}}
}

// ParseLevel maps a level name onto lager's levels. Lager has no warn
// level, so "warn" maps to info and warnings carry a "warning" field.
func ParseLevel(level string) lager.LogLevel {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return lager.DEBUG
	case "error":
		return lager.ERROR
	case "fatal":
		return lager.FATAL
	default:
		return lager.INFO
	}
}

func (s *LagerLogger) data(fields []Field) lager.Data {
	d := make(lager.Data, len(s.fields)+len(fields))
	for k, v := range s.fields {
		d[k] = v
	}
	for _, f := range fields {
		d[f.Key] = fieldValue(f.Value)
	}
	return d
}

// fieldValue keeps lager's JSON encoder away from values it renders
// poorly, errors in particular marshal to "{}".
func fieldValue(v interface{}) interface{} {
	switch t := v.(type) {
	case error:
		return t.Error()
	case fmt.Stringer:
		return t.String()
	default:
		return v
	}
}

func (s *LagerLogger) Debug(msg string, fields ...Field) {
	s.l.Debug(msg, s.data(fields))
}

func (s *LagerLogger) Info(msg string, fields ...Field) {
	s.l.Info(msg, s.data(fields))
}

func (s *LagerLogger) Warn(msg string, fields ...Field) {
	d := s.data(fields)
	d["warning"] = true
	s.l.Info(msg, d)
}

// Error promotes an "error" field to lager's error argument.
func (s *LagerLogger) Error(msg string, fields ...Field) {
	d := s.data(fields)
	var err error
	if v, ok := d["error"]; ok {
		delete(d, "error")
		err = errors.New(fmt.Sprint(v))
	}
	s.l.Error(msg, err, d)
}

func (s *LagerLogger) With(fields ...Field) Logger {
	child := &LagerLogger{l: s.l, fields: s.data(nil)}
	for _, f := range fields {
		if f.Key == "component" {
			if str, ok := f.Value.(string); ok && str != "" {
				child.l = child.l.Session(str)
				continue
			}
		}
		child.fields[f.Key] = fieldValue(f.Value)
	}
	return child
}
