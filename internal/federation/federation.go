// Package federation derives credentials for federated accounts: a SAML
// login against the account's identity provider is exchanged for role-scoped
// credentials via AssumeRoleWithSAML, with a second assume-role jump when the
// deriving session is a truster seeded by a federated parent. It plugs into
// the engine as its federated collaborator and owns the resulting credential
// file write.
package federation

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/charmbracelet/log"
	"github.com/dnitsch/aws-session-broker/internal/credentialengine"
	"github.com/dnitsch/aws-session-broker/internal/workspace"
)

var (
	ErrMissingIdp    = errors.New("federated account has no identity provider configured")
	ErrSamlAssertion = errors.New("unable to obtain saml assertion")
)

// AwsAcsURL is the assertion consumer endpoint identity providers post the
// SAMLResponse to for AWS sign-in.
const AwsAcsURL = "https://signin.aws.amazon.com/saml"

// AssertionSource produces a base64 SAML assertion for the provider login
// URL, typically by driving an interactive browser login.
type AssertionSource interface {
	Assertion(ctx context.Context, providerURL, acsURL string) (string, error)
}

// SamlStsApi is the single STS operation the first federation jump needs.
type SamlStsApi interface {
	AssumeRoleWithSAML(ctx context.Context, params *sts.AssumeRoleWithSAMLInput, optFns ...func(*sts.Options)) (*sts.AssumeRoleWithSAMLOutput, error)
}

// SamlStsApiFactory builds the unsigned STS client AssumeRoleWithSAML
// requires; the assertion itself is the proof of identity.
type SamlStsApiFactory func(ctx context.Context, region string) (SamlStsApi, error)

func NewSamlStsApi(ctx context.Context, region string) (SamlStsApi, error) {
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
		config.WithCredentialsProvider(aws.AnonymousCredentials{}),
	)
	if err != nil {
		return nil, fmt.Errorf("%s, %w", err, credentialengine.ErrStsApi)
	}
	return sts.NewFromConfig(cfg), nil
}

// Refresher is the engine's federated collaborator. For a federated session
// it performs one SAML jump; for a truster session it resolves the federated
// parent, performs the parent's SAML jump and chains a plain assume-role into
// the truster account on top.
type Refresher struct {
	source      AssertionSource
	registry    credentialengine.Registry
	credFile    credentialengine.CredentialFileApi
	samlFactory SamlStsApiFactory
	stsFactory  credentialengine.StsApiFactory
	selfName    string
	log         *log.Logger
}

func NewRefresher(source AssertionSource, registry credentialengine.Registry, credFile credentialengine.CredentialFileApi, logger *log.Logger) *Refresher {
	return &Refresher{
		source:      source,
		registry:    registry,
		credFile:    credFile,
		samlFactory: NewSamlStsApi,
		stsFactory:  credentialengine.NewStsApi,
		selfName:    credentialengine.SELF_NAME,
		log:         logger,
	}
}

func (r *Refresher) WithSamlStsFactory(f SamlStsApiFactory) *Refresher {
	r.samlFactory = f
	return r
}

func (r *Refresher) WithStsFactory(f credentialengine.StsApiFactory) *Refresher {
	r.stsFactory = f
	return r
}

// RefreshCredentials derives and materializes credentials for the session.
func (r *Refresher) RefreshCredentials(ctx context.Context, s *workspace.Session) (*credentialengine.AWSCredentials, error) {
	idp := s.Account
	if s.Account.Kind == workspace.KindTruster {
		parent, err := r.registry.ParentSession(s)
		if err != nil {
			return nil, err
		}
		idp = parent.Account
	}
	if idp.IdpURL == "" || idp.IdpArn == "" {
		return nil, fmt.Errorf("%s, %w", idp.AccountName, ErrMissingIdp)
	}

	creds, err := r.samlJump(ctx, idp, s.Account.Region)
	if err != nil {
		return nil, err
	}

	if s.Account.Kind == workspace.KindTruster {
		creds, err = r.trusterJump(ctx, s, creds)
		if err != nil {
			return nil, err
		}
	}

	ws, err := r.registry.GetWorkspace()
	if err != nil {
		return nil, err
	}
	if err := r.credFile.Write(ws.ProfileName(s.ProfileID), creds, s.Account.Region); err != nil {
		return nil, err
	}
	r.log.Debug("federated credentials materialized", "session", s.ID, "idp", idp.IdpURL)
	return creds, nil
}

// samlJump logs into the identity provider and exchanges the captured
// assertion for role credentials in the federated account.
func (r *Refresher) samlJump(ctx context.Context, idp workspace.Account, region string) (*credentialengine.AWSCredentials, error) {
	assertion, err := r.source.Assertion(ctx, idp.IdpURL, AwsAcsURL)
	if err != nil {
		return nil, fmt.Errorf("%s, %w", err, ErrSamlAssertion)
	}

	svc, err := r.samlFactory(ctx, region)
	if err != nil {
		return nil, err
	}
	resp, err := svc.AssumeRoleWithSAML(ctx, &sts.AssumeRoleWithSAMLInput{
		PrincipalArn:    aws.String(idp.IdpArn),
		RoleArn:         aws.String(credentialengine.RoleArn(idp.AccountNumber, idp.Role.Name)),
		SAMLAssertion:   aws.String(assertion),
		DurationSeconds: aws.Int32(credentialengine.ASSUME_ROLE_DURATION),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to exchange saml assertion: %s, %w", err.Error(), credentialengine.ErrUnableAssume)
	}

	return &credentialengine.AWSCredentials{
		AWSAccessKey:    aws.ToString(resp.Credentials.AccessKeyId),
		AWSSecretKey:    aws.ToString(resp.Credentials.SecretAccessKey),
		AWSSessionToken: aws.ToString(resp.Credentials.SessionToken),
		Expires:         aws.ToTime(resp.Credentials.Expiration),
	}, nil
}

// trusterJump chains a plain assume-role into the truster account on top of
// the federated parent's credentials.
func (r *Refresher) trusterJump(ctx context.Context, s *workspace.Session, basis *credentialengine.AWSCredentials) (*credentialengine.AWSCredentials, error) {
	svc, err := r.stsFactory(ctx, s.Account.Region, basis)
	if err != nil {
		return nil, err
	}
	return credentialengine.AssumeRole(ctx, svc,
		credentialengine.RoleArn(s.Account.AccountNumber, s.Account.Role.Name),
		credentialengine.RoleSessionName(s.Account.Role.Name, r.selfName),
		credentialengine.ASSUME_ROLE_DURATION)
}
