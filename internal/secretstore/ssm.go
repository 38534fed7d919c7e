package secretstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"

	shielderrors "github.com/storyforge/shield/internal/errors"
	"github.com/storyforge/shield/internal/logging"
	"github.com/storyforge/shield/internal/retry"
)

// SSMClientAPI defines the interface for AWS SSM Parameter Store operations.
// This allows for mocking in tests.
type SSMClientAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
	PutParameter(ctx context.Context, params *ssm.PutParameterInput, optFns ...func(*ssm.Options)) (*ssm.PutParameterOutput, error)
}

// SSMStore implements Store against AWS Systems Manager Parameter Store.
// Secrets are stored as SecureString parameters.
type SSMStore struct {
	client SSMClientAPI
	logger *logging.Logger
	config SSMConfig
	retry  retry.Policy
}

// SSMConfig holds AWS SSM-specific configuration.
type SSMConfig struct {
	Region          string
	Profile         string
	ParameterPrefix string
}

// SSMStoreOption is a functional option for configuring the SSM store.
type SSMStoreOption func(*SSMStore)

// WithSSMClient sets a custom SSM client (for testing).
func WithSSMClient(client SSMClientAPI) SSMStoreOption {
	return func(s *SSMStore) {
		s.client = client
	}
}

// WithRetryPolicy overrides the default bounded retry policy.
func WithRetryPolicy(p retry.Policy) SSMStoreOption {
	return func(s *SSMStore) {
		s.retry = p
	}
}

// NewSSMStore creates a Parameter Store backed secret store.
func NewSSMStore(config SSMConfig, logger *logging.Logger, opts ...SSMStoreOption) (*SSMStore, error) {
	s := &SSMStore{
		logger: logger,
		config: config,
		retry:  retry.DefaultPolicy(),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.client == nil {
		client, err := createSSMClient(config)
		if err != nil {
			return nil, fmt.Errorf("failed to create SSM client: %w", err)
		}
		s.client = client
	}

	return s, nil
}

func createSSMClient(config SSMConfig) (*ssm.Client, error) {
	ctx := context.Background()

	var configOpts []func(*awsconfig.LoadOptions) error
	if config.Region != "" {
		configOpts = append(configOpts, awsconfig.WithRegion(config.Region))
	}
	if config.Profile != "" {
		configOpts = append(configOpts, awsconfig.WithSharedConfigProfile(config.Profile))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, configOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return ssm.NewFromConfig(cfg), nil
}

// Get fetches a parameter, optionally decrypting SecureString values.
func (s *SSMStore) Get(ctx context.Context, name string, decrypt bool) (string, error) {
	parameterName := s.config.ParameterPrefix + name
	s.logger.Debug("fetching parameter from SSM: %s", logging.Secret(parameterName))

	input := &ssm.GetParameterInput{
		Name:           aws.String(parameterName),
		WithDecryption: aws.Bool(decrypt),
	}

	var result *ssm.GetParameterOutput
	err := retry.Do(ctx, s.retry, func(ctx context.Context) error {
		var err error
		result, err = s.client.GetParameter(ctx, input)
		if err == nil {
			return nil
		}
		if isParameterNotFound(err) {
			return shielderrors.SecretNotFoundError{Name: name}
		}
		return shielderrors.SecretRetrievalError{Name: name, Err: err}
	})
	if err != nil {
		return "", err
	}

	if result.Parameter == nil || result.Parameter.Value == nil {
		return "", shielderrors.SecretRetrievalError{Name: name, Err: fmt.Errorf("parameter has no value")}
	}

	return *result.Parameter.Value, nil
}

// Put writes a SecureString parameter.
func (s *SSMStore) Put(ctx context.Context, name, value string, overwrite bool) error {
	parameterName := s.config.ParameterPrefix + name
	s.logger.Debug("writing parameter to SSM: %s", logging.Secret(parameterName))

	input := &ssm.PutParameterInput{
		Name:      aws.String(parameterName),
		Value:     aws.String(value),
		Type:      types.ParameterTypeSecureString,
		Overwrite: aws.Bool(overwrite),
	}

	return retry.Do(ctx, s.retry, func(ctx context.Context) error {
		if _, err := s.client.PutParameter(ctx, input); err != nil {
			return shielderrors.SecretRetrievalError{Name: name, Err: err}
		}
		return nil
	})
}

func isParameterNotFound(err error) bool {
	return strings.Contains(err.Error(), "ParameterNotFound")
}
