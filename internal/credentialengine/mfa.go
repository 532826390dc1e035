package credentialengine

import (
	"context"
	"errors"
)

// ErrMfaCancelled reports that the user dismissed the MFA challenge. It is a
// normal abort, not a failure: pipelines translate it into OutcomeAborted and
// callers must not surface it as an error.
var ErrMfaCancelled = errors.New("mfa challenge cancelled")

// MfaPrompter is the interactive suspension point of a derivation pipeline.
// Challenge blocks (cooperatively - the pipeline goroutine only) until the
// user supplies a one-time code for the given device serial, and returns
// ErrMfaCancelled when the prompt is dismissed.
type MfaPrompter interface {
	Challenge(ctx context.Context, mfaSerial string) (string, error)
}
