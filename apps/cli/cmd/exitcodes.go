package cmd

// Exit codes for hitwire CLI
const (
	// ExitSuccess indicates the command completed and every threshold passed
	ExitSuccess = 0

	// ExitThresholdFailure indicates one or more probe thresholds failed
	ExitThresholdFailure = 1

	// ExitConfigError indicates a configuration error
	ExitConfigError = 3

	// ExitNetworkError indicates a network/connection error, a probe where
	// no request succeeded, or a wait that timed out
	ExitNetworkError = 4

	// ExitUsageError indicates invalid CLI usage
	ExitUsageError = 64
)
