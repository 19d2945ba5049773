package core

// ToolResult is the outcome of one tool call. Failures are data, not
// control-flow errors: the orchestrator feeds them back to the reasoning
// step so it can adapt. A ToolResult is consumed immediately to extend
// conversation history and is not persisted beyond the loop.
type ToolResult struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`  // Present iff Success
	Error   string      `json:"error,omitempty"` // Present iff !Success
}

// OKResult builds a successful ToolResult carrying data.
func OKResult(data interface{}) ToolResult {
	return ToolResult{Success: true, Data: data}
}

// FailedResult builds a failed ToolResult carrying an error message.
func FailedResult(err error) ToolResult {
	return ToolResult{Success: false, Error: err.Error()}
}

// Outcome is the single terminal result of processing one request. It is
// owned exclusively by the worker that produced it until handed to the
// dispatcher; exactly one Outcome exists per orchestrator invocation.
type Outcome struct {
	MessageID string    `json:"message_id"`
	Success   bool      `json:"success"`
	Response  string    `json:"response,omitempty"` // Present iff Success
	Err       string    `json:"error,omitempty"`    // Present iff !Success
	Kind      ErrorKind `json:"-"`
}

// SuccessOutcome builds a successful outcome carrying the final answer.
func SuccessOutcome(messageID, response string) Outcome {
	return Outcome{MessageID: messageID, Success: true, Response: response}
}

// FailureOutcome builds a failed outcome with the given error kind.
func FailureOutcome(messageID string, kind ErrorKind, err error) Outcome {
	o := Outcome{MessageID: messageID, Success: false, Kind: kind}
	if err != nil {
		o.Err = err.Error()
	} else {
		o.Err = string(kind)
	}
	return o
}

// Retryable reports whether queue redelivery could plausibly change the
// result. Malformed input and invalid scope never benefit from a retry, so
// their messages are acknowledged; loop exhaustion, cancellation and
// transport problems are left for the queue's own retry policy.
func (o Outcome) Retryable() bool {
	if o.Success {
		return false
	}
	switch o.Kind {
	case KindMalformedInput, KindInvalidScope:
		return false
	default:
		return true
	}
}
