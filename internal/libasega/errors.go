package libasega

import (
	"fmt"
)

// ConfigError is a problem with a specification file. It is detected before any
// test runs.
type ConfigError struct {
	File string
	Line int
	Msg  string
}

func (e *ConfigError) Error() string {
	switch {
	case e.File != "" && e.Line > 0:
		return fmt.Sprintf("%s:%d: %s", e.File, e.Line, e.Msg)
	case e.File != "":
		return fmt.Sprintf("%s: %s", e.File, e.Msg)
	}
	return e.Msg
}

func configErrorf(file string, line int, format string, args ...interface{}) *ConfigError {
	return &ConfigError{File: file, Line: line, Msg: fmt.Sprintf(format, args...)}
}

// SchemaError is a mismatch between a test and the interface of the contract it
// invokes, such as a missing method or a wrong number of arguments. It aborts
// the run.
type SchemaError struct {
	Method string
	Msg    string
	Err    error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("method %s: %s", e.Method, e.Msg)
}

func (e *SchemaError) Unwrap() error {
	return e.Err
}

func schemaError(method string, err error) *SchemaError {
	return &SchemaError{Method: method, Msg: err.Error(), Err: err}
}
