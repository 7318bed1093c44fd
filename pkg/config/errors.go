package config

import "fmt"

// ParseError reports a config file that could not be decoded or that is
// missing a required key.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("config %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ValueError reports a structurally valid config with an unusable value,
// like an empty tag list or a dangling base image reference.
type ValueError struct {
	Field string
	Msg   string
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("config value %s: %s", e.Field, e.Msg)
}

// UnresolvedVariableError reports a ${VAR} reference to an environment
// variable that is unset and has no default.
type UnresolvedVariableError struct {
	Variable string
	Field    string
}

func (e *UnresolvedVariableError) Error() string {
	return fmt.Sprintf("config value %s: environment variable %q is not set", e.Field, e.Variable)
}
