// Package errors provides structured error types and exit codes for gtm.
package errors

import (
	"errors"
	"fmt"

	"github.com/AndreyAkinshin/gtm/pkg/gtm"
)

// Exit codes returned by the gtm CLI. The values are published in pkg/gtm.
const (
	ExitSuccess          = gtm.ExitSuccess     // Success
	ExitRuntimeError     = gtm.ExitFailure     // Runtime error or at least one failed leaf
	ExitConfigError      = gtm.ExitConfigError // Configuration error (invalid config, etc.)
	ExitEnvironmentError = gtm.ExitEnvError    // Environment error (shell missing, unwritable destination, etc.)
)

// ErrorKind represents the type of error.
type ErrorKind int

const (
	KindRuntime ErrorKind = iota
	KindConfig
	KindNotFound
	KindValidation
	KindEnvironment
	// KindResolution is a leaf id that cannot be mapped to a project or runner.
	KindResolution
	// KindVerdict is a parsed "failed" outcome.
	KindVerdict
	// KindProcess is a failure to spawn or wait for the runner process.
	KindProcess
	// KindArchive is scoped to the evidence step and never changes a verdict.
	KindArchive
	// KindBatch is reported once per batch (e.g. nothing to run).
	KindBatch
)

// String returns the kind name used in messages and metrics.
func (k ErrorKind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation"
	case KindEnvironment:
		return "environment"
	case KindResolution:
		return "resolution"
	case KindVerdict:
		return "verdict"
	case KindProcess:
		return "process"
	case KindArchive:
		return "archive"
	case KindBatch:
		return "batch"
	default:
		return "runtime"
	}
}

// Resolution error codes.
const (
	CodeUnresolvedProject     = "UnresolvedProject"
	CodeUnresolvedRunner      = "UnresolvedRunner"
	CodeUnsupportedRunnerKind = "UnsupportedRunnerKind"
	CodeMissingExecutable     = "MissingExecutable"
	CodeMalformedID           = "MalformedID"
)

// GTMError is the base error type for gtm.
type GTMError struct {
	Kind    ErrorKind
	Code    string // Sub-classification within Kind (e.g. CodeUnresolvedRunner)
	Message string
	LeafID  string // Leaf id if applicable
	Cause   error  // Underlying error
}

func (e *GTMError) Error() string {
	if e.LeafID != "" {
		return fmt.Sprintf("[%s] %s", e.LeafID, e.Message)
	}
	return e.Message
}

func (e *GTMError) Unwrap() error {
	return e.Cause
}

// ExitCode returns the appropriate exit code for this error.
func (e *GTMError) ExitCode() int {
	switch e.Kind {
	case KindConfig, KindValidation:
		return ExitConfigError
	case KindEnvironment:
		return ExitEnvironmentError
	default:
		return ExitRuntimeError
	}
}

// New creates a new runtime error.
func New(message string) *GTMError {
	return &GTMError{
		Kind:    KindRuntime,
		Message: message,
	}
}

// Config creates a new configuration error.
func Config(message string) *GTMError {
	return &GTMError{
		Kind:    KindConfig,
		Message: message,
	}
}

// Configf creates a new configuration error with formatting.
func Configf(format string, args ...interface{}) *GTMError {
	return Config(fmt.Sprintf(format, args...))
}

// Environment creates a new environment error.
func Environment(message string) *GTMError {
	return &GTMError{
		Kind:    KindEnvironment,
		Message: message,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) *GTMError {
	return &GTMError{
		Kind:    KindRuntime,
		Message: message,
		Cause:   err,
	}
}

// NotFound creates a not found error.
func NotFound(what, name string) *GTMError {
	return &GTMError{
		Kind:    KindNotFound,
		Message: fmt.Sprintf("%s not found: %s", what, name),
	}
}

// UnresolvedProject reports a leaf id whose project path matches no configured project.
func UnresolvedProject(leafID, projectPath string) *GTMError {
	return &GTMError{
		Kind:    KindResolution,
		Code:    CodeUnresolvedProject,
		LeafID:  leafID,
		Message: fmt.Sprintf("no configured project matches path %q", projectPath),
	}
}

// UnresolvedRunner reports a project that has no runner of the requested kind.
func UnresolvedRunner(leafID, projectPath, kind string) *GTMError {
	return &GTMError{
		Kind:    KindResolution,
		Code:    CodeUnresolvedRunner,
		LeafID:  leafID,
		Message: fmt.Sprintf("project %q has no %q runner", projectPath, kind),
	}
}

// UnsupportedRunnerKind reports a runner kind without a matching output parser.
func UnsupportedRunnerKind(leafID, kind string) *GTMError {
	return &GTMError{
		Kind:    KindResolution,
		Code:    CodeUnsupportedRunnerKind,
		LeafID:  leafID,
		Message: fmt.Sprintf("unsupported runner kind %q", kind),
	}
}

// MissingExecutable reports a runner configured without an executable path.
func MissingExecutable(leafID, projectPath, kind string) *GTMError {
	return &GTMError{
		Kind:    KindResolution,
		Code:    CodeMissingExecutable,
		LeafID:  leafID,
		Message: fmt.Sprintf("%q runner of project %q has no executable_path", kind, projectPath),
	}
}

// MalformedID reports a node id that cannot be decoded.
func MalformedID(id string, cause error) *GTMError {
	return &GTMError{
		Kind:    KindResolution,
		Code:    CodeMalformedID,
		LeafID:  id,
		Message: fmt.Sprintf("malformed node id: %v", cause),
		Cause:   cause,
	}
}

// Archive creates an evidence archiving error.
func Archive(message string, cause error) *GTMError {
	return &GTMError{
		Kind:    KindArchive,
		Message: message,
		Cause:   cause,
	}
}

// Batch creates a batch-level error.
func Batch(message string) *GTMError {
	return &GTMError{
		Kind:    KindBatch,
		Message: message,
	}
}

// BatchCanceled reports a batch that stopped before every leaf had started.
func BatchCanceled(cause error) *GTMError {
	return &GTMError{
		Kind:    KindBatch,
		Message: "batch canceled",
		Cause:   cause,
	}
}

// IsKind reports whether err is or wraps a GTMError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var ge *GTMError
	if errors.As(err, &ge) {
		return ge.Kind == kind
	}
	return false
}

// CodeOf returns the Code of the first GTMError in err's chain, or "".
func CodeOf(err error) string {
	var ge *GTMError
	if errors.As(err, &ge) {
		return ge.Code
	}
	return ""
}

// GetExitCode returns the exit code for an error.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var ge *GTMError
	if errors.As(err, &ge) {
		return ge.ExitCode()
	}
	return ExitRuntimeError
}
