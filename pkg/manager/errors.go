package manager

import "fmt"

// UnknownImageError reports an operation against a repo name that no
// configured image spec matches.
type UnknownImageError struct {
	Repo string
}

func (e *UnknownImageError) Error() string {
	return fmt.Sprintf("no image spec with repo %q", e.Repo)
}

// BuildError wraps a non-zero exit of the container engine during build,
// carrying the exit code and captured output.
type BuildError struct {
	Ref      string
	ExitCode int
	Output   string
	Err      error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("building %s failed with exit code %d: %s", e.Ref, e.ExitCode, e.Output)
}

func (e *BuildError) Unwrap() error {
	return e.Err
}

// ContainerExistsError reports that the resolved container name is taken.
type ContainerExistsError struct {
	Name string
}

func (e *ContainerExistsError) Error() string {
	return fmt.Sprintf("container %q already exists", e.Name)
}

// AuthenticationError reports missing or half-configured registry
// credentials.
type AuthenticationError struct {
	Msg string
}

func (e *AuthenticationError) Error() string {
	return "registry authentication: " + e.Msg
}

// PushError wraps a transport-level push failure. Pushes are not retried;
// the caller must re-invoke.
type PushError struct {
	Ref    string
	Output string
	Err    error
}

func (e *PushError) Error() string {
	return fmt.Sprintf("pushing %s failed: %s", e.Ref, e.Output)
}

func (e *PushError) Unwrap() error {
	return e.Err
}
