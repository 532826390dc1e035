package credentialengine

import "time"

// AWSCredentials is one set of AWS credentials. SessionToken and Expires are
// zero for long-lived IAM user keys.
type AWSCredentials struct {
	AWSAccessKey    string    `json:"AccessKeyId"`
	AWSSecretKey    string    `json:"SecretAccessKey"`
	AWSSessionToken string    `json:"SessionToken,omitempty"`
	Expires         time.Time `json:"Expiration,omitempty"`
}

// OutcomeStatus is the terminal state of one derivation pipeline.
type OutcomeStatus int

const (
	// OutcomeIssued - credentials derived and written to the profile file.
	OutcomeIssued OutcomeStatus = iota
	// OutcomeFailed - a provider or store failure; flags cleared, file cleaned.
	OutcomeFailed
	// OutcomeAborted - the user dismissed the MFA challenge, or the pipeline
	// was superseded by a newer derivation for the same session. Not an error.
	OutcomeAborted
	// OutcomeSkipped - the session's account variant is out of scope for this
	// engine; nothing was touched.
	OutcomeSkipped
)

func (s OutcomeStatus) String() string {
	switch s {
	case OutcomeIssued:
		return "issued"
	case OutcomeFailed:
		return "failed"
	case OutcomeAborted:
		return "aborted"
	case OutcomeSkipped:
		return "skipped"
	}
	return "unknown"
}

// Outcome is the result of one Engine.Refresh invocation. Err carries the
// summarized failure for OutcomeFailed and is nil otherwise; the MFA abort is
// deliberately not represented as an error so callers do not surface it.
type Outcome struct {
	Status      OutcomeStatus
	Credentials *AWSCredentials
	Err         error
}
