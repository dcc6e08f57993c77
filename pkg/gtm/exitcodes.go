// Package gtm provides public constants for external tools integrating with
// the gtm CLI.
package gtm

// Exit codes returned by the gtm CLI.
// These constants allow external tools to check exit codes symbolically
// rather than using magic numbers.
const (
	// ExitSuccess indicates every selected test leaf passed.
	ExitSuccess = 0

	// ExitFailure indicates at least one failed leaf or a runtime failure.
	ExitFailure = 1

	// ExitConfigError indicates a configuration error (invalid config, bad node id, etc.).
	ExitConfigError = 2

	// ExitEnvError indicates an environment error (no shell, unwritable metrics file, etc.).
	ExitEnvError = 3
)
