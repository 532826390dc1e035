package credentialengine

const (
	SELF_NAME = "aws-session-broker"

	// SESSION_TOKEN_DURATION is the GetSessionToken lifetime in seconds.
	// Kept long because obtaining one may cost an interactive MFA exchange.
	SESSION_TOKEN_DURATION = 28800

	// ASSUME_ROLE_DURATION is fixed at one hour for chained assume-role.
	ASSUME_ROLE_DURATION = 3600

	// NO_REGION_REQUIRED is the sentinel region value that suppresses the
	// region override on the written profile.
	NO_REGION_REQUIRED = "no region necessary"
)

type EngineConfig struct {
	// SessionTokenDuration overrides SESSION_TOKEN_DURATION when non-zero.
	SessionTokenDuration int32
	// SelfName namespaces vault entries and role session names.
	SelfName string
}

func (c EngineConfig) sessionTokenDuration() int32 {
	if c.SessionTokenDuration > 0 {
		return c.SessionTokenDuration
	}
	return SESSION_TOKEN_DURATION
}

func (c EngineConfig) selfName() string {
	if c.SelfName != "" {
		return c.SelfName
	}
	return SELF_NAME
}
