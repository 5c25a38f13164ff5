package taskrpc

// ServiceName is the JSON-RPC service the executor process registers.
const ServiceName = "TaskExecutorService"

// TaskExecutorService runs one test suite invocation per call. The call
// blocks until the suite process exits.
type TaskExecutorService interface {
	Execute(req *ExecuteRequest, resp *ExecuteResponse) error
}

type ExecuteRequest struct {
	Environment string  `json:"environment"`
	Selection   string  `json:"selection"`
	TargetURL   *string `json:"target_url,omitempty"`
}

type ExecuteResponse struct {
	ExitCode    int     `json:"exit_code"`
	ArtifactRef *string `json:"artifact_ref,omitempty"`
	Stdout      string  `json:"stdout"`
	Stderr      string  `json:"stderr"`
	// LaunchError is set when the suite process could not be started.
	LaunchError string `json:"launch_error,omitempty"`
}
