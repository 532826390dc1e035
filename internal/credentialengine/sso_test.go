package credentialengine_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sso"
	ssotypes "github.com/aws/aws-sdk-go-v2/service/sso/types"
	"github.com/aws/aws-sdk-go-v2/service/ssooidc"
	oidctypes "github.com/aws/aws-sdk-go-v2/service/ssooidc/types"
	"github.com/dnitsch/aws-session-broker/internal/credentialengine"
)

type mockOidc struct {
	createTokenCalls int
	createToken      func(call int) (*ssooidc.CreateTokenOutput, error)
}

func (m *mockOidc) RegisterClient(ctx context.Context, params *ssooidc.RegisterClientInput, optFns ...func(*ssooidc.Options)) (*ssooidc.RegisterClientOutput, error) {
	return &ssooidc.RegisterClientOutput{
		ClientId:     aws.String("client-id"),
		ClientSecret: aws.String("client-secret"),
	}, nil
}

func (m *mockOidc) StartDeviceAuthorization(ctx context.Context, params *ssooidc.StartDeviceAuthorizationInput, optFns ...func(*ssooidc.Options)) (*ssooidc.StartDeviceAuthorizationOutput, error) {
	return &ssooidc.StartDeviceAuthorizationOutput{
		DeviceCode:              aws.String("device-code"),
		UserCode:                aws.String("ABCD-1234"),
		VerificationUriComplete: aws.String("https://device.sso.eu-west-1.amazonaws.com/?user_code=ABCD-1234"),
		ExpiresIn:               600,
		Interval:                1,
	}, nil
}

func (m *mockOidc) CreateToken(ctx context.Context, params *ssooidc.CreateTokenInput, optFns ...func(*ssooidc.Options)) (*ssooidc.CreateTokenOutput, error) {
	m.createTokenCalls++
	return m.createToken(m.createTokenCalls)
}

type mockPortal struct {
	getRoleCredentials func(params *sso.GetRoleCredentialsInput) (*sso.GetRoleCredentialsOutput, error)
}

func (m *mockPortal) GetRoleCredentials(ctx context.Context, params *sso.GetRoleCredentialsInput, optFns ...func(*sso.Options)) (*sso.GetRoleCredentialsOutput, error) {
	return m.getRoleCredentials(params)
}

func Test_GetPortalCredentials_polls_until_approved(t *testing.T) {
	oidc := &mockOidc{
		createToken: func(call int) (*ssooidc.CreateTokenOutput, error) {
			if call < 3 {
				return nil, &oidctypes.AuthorizationPendingException{}
			}
			return &ssooidc.CreateTokenOutput{AccessToken: aws.String("portal-token")}, nil
		},
	}
	notify := &bytes.Buffer{}
	slept := 0
	client := credentialengine.NewSsoClient("https://corp.awsapps.com/start", "eu-west-1", oidc, &mockPortal{}, notify).
		WithSleep(func(time.Duration) { slept++ })

	portal, err := client.GetPortalCredentials(context.TODO())

	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if portal.AccessToken != "portal-token" || portal.Region != "eu-west-1" {
		t.Errorf("unexpected portal credentials %+v", portal)
	}
	if oidc.createTokenCalls != 3 || slept != 2 {
		t.Errorf("wanted 3 polls and 2 sleeps, got %d/%d", oidc.createTokenCalls, slept)
	}
	if !strings.Contains(notify.String(), "ABCD-1234") {
		t.Errorf("user code not surfaced: %q", notify.String())
	}
}

func Test_GetPortalCredentials_terminal_token_error_wraps_sentinel(t *testing.T) {
	oidc := &mockOidc{
		createToken: func(call int) (*ssooidc.CreateTokenOutput, error) {
			return nil, fmt.Errorf("AccessDeniedException")
		},
	}
	client := credentialengine.NewSsoClient("https://corp.awsapps.com/start", "eu-west-1", oidc, &mockPortal{}, nil).
		WithSleep(func(time.Duration) {})

	_, err := client.GetPortalCredentials(context.TODO())
	if !errors.Is(err, credentialengine.ErrSsoAuth) {
		t.Errorf("wanted ErrSsoAuth got %v", err)
	}
	if oidc.createTokenCalls != 1 {
		t.Errorf("terminal error must stop polling, got %d calls", oidc.createTokenCalls)
	}
}

func Test_GetPortalCredentials_honours_cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	oidc := &mockOidc{
		createToken: func(call int) (*ssooidc.CreateTokenOutput, error) {
			cancel()
			return nil, &oidctypes.AuthorizationPendingException{}
		},
	}
	client := credentialengine.NewSsoClient("https://corp.awsapps.com/start", "eu-west-1", oidc, &mockPortal{}, nil).
		WithSleep(func(time.Duration) {})

	_, err := client.GetPortalCredentials(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("wanted context.Canceled got %v", err)
	}
}

func Test_GetRoleCredentials_converts_epoch_millis(t *testing.T) {
	expiresMs := time.Date(2023, 6, 1, 20, 0, 0, 0, time.UTC).UnixMilli()
	portal := &mockPortal{
		getRoleCredentials: func(params *sso.GetRoleCredentialsInput) (*sso.GetRoleCredentialsOutput, error) {
			if aws.ToString(params.AccountId) != "111" || aws.ToString(params.RoleName) != "Viewer" {
				t.Errorf("unexpected request %+v", params)
			}
			return &sso.GetRoleCredentialsOutput{RoleCredentials: &ssotypes.RoleCredentials{
				AccessKeyId:     aws.String("ASIASSO"),
				SecretAccessKey: aws.String("s"),
				SessionToken:    aws.String("tok"),
				Expiration:      expiresMs,
			}}, nil
		},
	}
	client := credentialengine.NewSsoClient("https://corp.awsapps.com/start", "eu-west-1", &mockOidc{}, portal, nil)

	creds, err := client.GetRoleCredentials(context.TODO(), "portal-token", "111", "Viewer")

	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if !creds.Expires.Equal(time.Date(2023, 6, 1, 20, 0, 0, 0, time.UTC)) {
		t.Errorf("epoch millis not converted, got %s", creds.Expires)
	}
	if creds.AWSAccessKey != "ASIASSO" {
		t.Errorf("unexpected credentials %+v", creds)
	}
}

func Test_GetRoleCredentials_failure_wraps_sentinel(t *testing.T) {
	portal := &mockPortal{
		getRoleCredentials: func(params *sso.GetRoleCredentialsInput) (*sso.GetRoleCredentialsOutput, error) {
			return nil, fmt.Errorf("ForbiddenException")
		},
	}
	client := credentialengine.NewSsoClient("https://corp.awsapps.com/start", "eu-west-1", &mockOidc{}, portal, nil)

	_, err := client.GetRoleCredentials(context.TODO(), "portal-token", "111", "Viewer")
	if !errors.Is(err, credentialengine.ErrSsoAuth) {
		t.Errorf("wanted ErrSsoAuth got %v", err)
	}
}
