package credentialengine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sso"
	"github.com/aws/aws-sdk-go-v2/service/ssooidc"
	oidctypes "github.com/aws/aws-sdk-go-v2/service/ssooidc/types"
)

var ErrSsoAuth = errors.New("sso portal authentication failed")

// PortalCredentials is the outcome of an Identity Center portal login.
type PortalCredentials struct {
	AccessToken string
	Region      string
}

type SsoOidcApi interface {
	RegisterClient(ctx context.Context, params *ssooidc.RegisterClientInput, optFns ...func(*ssooidc.Options)) (*ssooidc.RegisterClientOutput, error)
	StartDeviceAuthorization(ctx context.Context, params *ssooidc.StartDeviceAuthorizationInput, optFns ...func(*ssooidc.Options)) (*ssooidc.StartDeviceAuthorizationOutput, error)
	CreateToken(ctx context.Context, params *ssooidc.CreateTokenInput, optFns ...func(*ssooidc.Options)) (*ssooidc.CreateTokenOutput, error)
}

type SsoPortalApi interface {
	GetRoleCredentials(ctx context.Context, params *sso.GetRoleCredentialsInput, optFns ...func(*sso.Options)) (*sso.GetRoleCredentialsOutput, error)
}

// SsoClient drives the Identity Center device-authorization login and the
// subsequent role-credentials retrieval. Nothing at this layer is cached -
// portal tokens are short-lived and re-issued per double jump.
type SsoClient struct {
	StartURL string
	Region   string

	oidc   SsoOidcApi
	portal SsoPortalApi
	// Notify receives the verification URI + user code the user must visit.
	Notify io.Writer
	sleep  func(time.Duration)
}

func NewSsoClient(startURL, region string, oidc SsoOidcApi, portal SsoPortalApi, notify io.Writer) *SsoClient {
	return &SsoClient{
		StartURL: startURL,
		Region:   region,
		oidc:     oidc,
		portal:   portal,
		Notify:   notify,
		sleep:    time.Sleep,
	}
}

// WithSleep overrides the poll backoff, for tests.
func (s *SsoClient) WithSleep(sleep func(time.Duration)) *SsoClient {
	s.sleep = sleep
	return s
}

// GetPortalCredentials registers a public OIDC client, starts a device
// authorization against the portal start URL and polls for the access token
// until the user approves or the device code expires.
func (s *SsoClient) GetPortalCredentials(ctx context.Context) (*PortalCredentials, error) {
	reg, err := s.oidc.RegisterClient(ctx, &ssooidc.RegisterClientInput{
		ClientName: aws.String(SELF_NAME),
		ClientType: aws.String("public"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to register portal client: %s, %w", err.Error(), ErrSsoAuth)
	}

	auth, err := s.oidc.StartDeviceAuthorization(ctx, &ssooidc.StartDeviceAuthorizationInput{
		ClientId:     reg.ClientId,
		ClientSecret: reg.ClientSecret,
		StartUrl:     aws.String(s.StartURL),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start device authorization: %s, %w", err.Error(), ErrSsoAuth)
	}

	if s.Notify != nil {
		fmt.Fprintf(s.Notify, "Please visit %s and enter code: %s\n",
			aws.ToString(auth.VerificationUriComplete), aws.ToString(auth.UserCode))
	}

	interval := auth.Interval
	if interval <= 0 {
		interval = 5
	}

	for deadline := time.Now().Add(time.Duration(auth.ExpiresIn) * time.Second); time.Now().Before(deadline); {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		tok, err := s.oidc.CreateToken(ctx, &ssooidc.CreateTokenInput{
			ClientId:     reg.ClientId,
			ClientSecret: reg.ClientSecret,
			DeviceCode:   auth.DeviceCode,
			GrantType:    aws.String("urn:ietf:params:oauth:grant-type:device_code"),
		})
		if err == nil {
			return &PortalCredentials{
				AccessToken: aws.ToString(tok.AccessToken),
				Region:      s.Region,
			}, nil
		}

		var pending *oidctypes.AuthorizationPendingException
		var slowDown *oidctypes.SlowDownException
		switch {
		case errors.As(err, &pending):
			s.sleep(time.Duration(interval) * time.Second)
		case errors.As(err, &slowDown):
			interval *= 2
			s.sleep(time.Duration(interval) * time.Second)
		default:
			return nil, fmt.Errorf("failed to create portal token: %s, %w", err.Error(), ErrSsoAuth)
		}
	}

	return nil, fmt.Errorf("device authorization expired, %w", ErrSsoAuth)
}

// GetRoleCredentials exchanges a portal access token for role credentials in
// the named account. The portal reports expiration in epoch milliseconds.
func (s *SsoClient) GetRoleCredentials(ctx context.Context, accessToken, accountNumber, roleName string) (*AWSCredentials, error) {
	resp, err := s.portal.GetRoleCredentials(ctx, &sso.GetRoleCredentialsInput{
		AccessToken: aws.String(accessToken),
		AccountId:   aws.String(accountNumber),
		RoleName:    aws.String(roleName),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get role credentials for %s: %s, %w", roleName, err.Error(), ErrSsoAuth)
	}

	creds := &AWSCredentials{
		AWSAccessKey:    aws.ToString(resp.RoleCredentials.AccessKeyId),
		AWSSecretKey:    aws.ToString(resp.RoleCredentials.SecretAccessKey),
		AWSSessionToken: aws.ToString(resp.RoleCredentials.SessionToken),
	}
	if resp.RoleCredentials.Expiration != 0 {
		creds.Expires = time.Unix(resp.RoleCredentials.Expiration/1000, 0)
	}
	return creds, nil
}
