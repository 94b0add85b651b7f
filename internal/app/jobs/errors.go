package jobs

import (
	"fmt"

	"noteflow/internal/common"
)

// FailureError is a run failure that ends up persisted on the job. Error()
// is the text stored in error_message; Category is one of
// common.ErrConfiguration, common.ErrPrecondition or common.ErrEngine.
type FailureError struct {
	Category error
	Message  string
	Err      error
}

func (e *FailureError) Error() string {
	return e.Message
}

func (e *FailureError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Category}
	}
	return []error{e.Category, e.Err}
}

func configurationError(format string, args ...any) error {
	return &FailureError{Category: common.ErrConfiguration, Message: fmt.Sprintf(format, args...)}
}

func preconditionError(format string, args ...any) error {
	return &FailureError{Category: common.ErrPrecondition, Message: fmt.Sprintf(format, args...)}
}

func engineError(err error) error {
	return &FailureError{Category: common.ErrEngine, Message: err.Error(), Err: err}
}

// RejectedError is a retry policy refusal. It is a normal result, reported
// to the client as a 400 with Reason as the message.
type RejectedError struct {
	Reason string
}

func (e *RejectedError) Error() string {
	return e.Reason
}

func (e *RejectedError) Unwrap() error {
	return common.ErrRejected
}
