package interview

import (
	"errors"
	"fmt"
)

// Sentinel errors for conditions callers branch on with errors.Is.
var (
	// ErrPermissionDenied is returned when the OS refuses microphone access.
	ErrPermissionDenied = errors.New("microphone permission denied")

	// ErrTeardownRace marks a transport failure that happened inside an
	// intentional teardown window. It is logged at low severity and never
	// drives the session into an error state.
	ErrTeardownRace = errors.New("transport closed during teardown")
)

// TransportError wraps a failure of the duplex agent connection outside of
// teardown. It is fatal to the session.
type TransportError struct {
	// Op names the operation that failed ("dial", "send", "receive", ...).
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ReportGenerationFailure wraps an error from the report pipeline. Finalize
// treats it as non-fatal: the transcript is already persisted when the
// report is requested.
type ReportGenerationFailure struct {
	InterviewID ID
	Err         error
}

func (e *ReportGenerationFailure) Error() string {
	return fmt.Sprintf("report generation for interview %s: %v", e.InterviewID, e.Err)
}

func (e *ReportGenerationFailure) Unwrap() error { return e.Err }
