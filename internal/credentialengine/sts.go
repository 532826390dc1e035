package credentialengine

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/smithy-go"
)

var (
	ErrStsApi       = errors.New("sts api rejected the request")
	ErrUnableAssume = errors.New("unable to assume role")
)

// StsApi is the pair of STS operations the engine issues. Each client is
// constructed per call chain from an explicit credential basis; no global
// SDK state is ever mutated, so concurrently deriving sessions cannot race
// on a shared client configuration.
type StsApi interface {
	GetSessionToken(ctx context.Context, params *sts.GetSessionTokenInput, optFns ...func(*sts.Options)) (*sts.GetSessionTokenOutput, error)
	AssumeRole(ctx context.Context, params *sts.AssumeRoleInput, optFns ...func(*sts.Options)) (*sts.AssumeRoleOutput, error)
}

// StsApiFactory builds an StsApi scoped to one credential basis and region.
type StsApiFactory func(ctx context.Context, region string, basis *AWSCredentials) (StsApi, error)

// NewStsApi is the default StsApiFactory backed by the AWS SDK.
func NewStsApi(ctx context.Context, region string, basis *AWSCredentials) (StsApi, error) {
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			basis.AWSAccessKey,
			basis.AWSSecretKey,
			basis.AWSSessionToken,
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("%s, %w", err, ErrStsApi)
	}
	return sts.NewFromConfig(cfg), nil
}

// GetSessionToken exchanges the basis behind svc for a session token.
// mfaSerial and mfaCode are forwarded only when both are non-empty.
func GetSessionToken(ctx context.Context, svc StsApi, durationSeconds int32, mfaSerial, mfaCode string) (*AWSCredentials, error) {
	input := &sts.GetSessionTokenInput{
		DurationSeconds: aws.Int32(durationSeconds),
	}
	if mfaSerial != "" && mfaCode != "" {
		input.SerialNumber = aws.String(mfaSerial)
		input.TokenCode = aws.String(mfaCode)
	}

	resp, err := svc.GetSessionToken(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve a session token%s: %s, %w", apiErrorCode(err), err.Error(), ErrStsApi)
	}

	return &AWSCredentials{
		AWSAccessKey:    aws.ToString(resp.Credentials.AccessKeyId),
		AWSSecretKey:    aws.ToString(resp.Credentials.SecretAccessKey),
		AWSSessionToken: aws.ToString(resp.Credentials.SessionToken),
		Expires:         aws.ToTime(resp.Credentials.Expiration),
	}, nil
}

// AssumeRole exchanges the basis behind svc for role-scoped credentials.
// Intentionally never cached - it is cheap, non-interactive and must reflect
// the current target role on every call.
func AssumeRole(ctx context.Context, svc StsApi, roleArn, sessionName string, durationSeconds int32) (*AWSCredentials, error) {
	input := &sts.AssumeRoleInput{
		RoleArn:         aws.String(roleArn),
		RoleSessionName: aws.String(sessionName),
		DurationSeconds: aws.Int32(durationSeconds),
	}

	resp, err := svc.AssumeRole(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to assume %s%s: %s, %w", roleArn, apiErrorCode(err), err.Error(), ErrUnableAssume)
	}

	return &AWSCredentials{
		AWSAccessKey:    aws.ToString(resp.Credentials.AccessKeyId),
		AWSSecretKey:    aws.ToString(resp.Credentials.SecretAccessKey),
		AWSSessionToken: aws.ToString(resp.Credentials.SessionToken),
		Expires:         aws.ToTime(resp.Credentials.Expiration),
	}, nil
}

// apiErrorCode renders the provider's modeled error code as a message
// fragment, empty for transport-level failures.
func apiErrorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return fmt.Sprintf(" (%s)", apiErr.ErrorCode())
	}
	return ""
}

// RoleArn renders the canonical role ARN for an account number + role name.
func RoleArn(accountNumber, roleName string) string {
	return fmt.Sprintf("arn:aws:iam::%s:role/%s", accountNumber, roleName)
}

// RoleSessionName derives a deterministic session name from the target role.
func RoleSessionName(roleName, selfName string) string {
	return fmt.Sprintf("%s-%s", roleName, selfName)
}
