// Package cryptosvc implements the encryption service: envelope
// encryption through the external key-management provider, local
// password-based symmetric encryption, one-way secret hashing, and
// per-field record encryption helpers.
package cryptosvc

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"

	shielderrors "github.com/storyforge/shield/internal/errors"
	"github.com/storyforge/shield/internal/logging"
	"github.com/storyforge/shield/internal/retry"
)

// KMSClientAPI defines the interface for key-management provider
// operations. This allows for mocking in tests.
type KMSClientAPI interface {
	Encrypt(ctx context.Context, params *kms.EncryptInput, optFns ...func(*kms.Options)) (*kms.EncryptOutput, error)
	Decrypt(ctx context.Context, params *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error)
}

// Envelope is ciphertext bound to the key and context that produced it.
// Decrypting with a binding context different from the one used at
// encryption time fails.
type Envelope struct {
	Ciphertext []byte            `json:"ciphertext"`
	KeyID      string            `json:"key_id"`
	Context    map[string]string `json:"context"`
}

// Service performs envelope encryption against the key-management
// provider, always binding a context map the provider cryptographically
// associates with the ciphertext.
type Service struct {
	client         KMSClientAPI
	keyID          string
	defaultContext map[string]string
	logger         *logging.Logger
	retry          retry.Policy
}

// ServiceOption is a functional option for configuring the Service.
type ServiceOption func(*Service)

// WithKMSClient sets a custom key-management client (for testing).
func WithKMSClient(client KMSClientAPI) ServiceOption {
	return func(s *Service) {
		s.client = client
	}
}

// KMSSettings holds provider connection settings.
type KMSSettings struct {
	KeyID   string
	Region  string
	Profile string
}

// NewService creates an encryption service. defaultContext is merged
// under caller-provided context maps on every call; it carries the
// service identity so ciphertext cannot be replayed across services or
// environments.
func NewService(settings KMSSettings, defaultContext map[string]string, logger *logging.Logger, opts ...ServiceOption) (*Service, error) {
	s := &Service{
		keyID:          settings.KeyID,
		defaultContext: defaultContext,
		logger:         logger,
		retry:          retry.DefaultPolicy(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.client == nil {
		var configOpts []func(*awsconfig.LoadOptions) error
		if settings.Region != "" {
			configOpts = append(configOpts, awsconfig.WithRegion(settings.Region))
		}
		if settings.Profile != "" {
			configOpts = append(configOpts, awsconfig.WithSharedConfigProfile(settings.Profile))
		}
		cfg, err := awsconfig.LoadDefaultConfig(context.Background(), configOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		s.client = kms.NewFromConfig(cfg)
	}

	return s, nil
}

// Encrypt seals plaintext under the provider key with the binding
// context attached.
func (s *Service) Encrypt(ctx context.Context, plaintext []byte, bindingContext map[string]string) (*Envelope, error) {
	merged := s.mergeContext(bindingContext)

	input := &kms.EncryptInput{
		KeyId:             &s.keyID,
		Plaintext:         plaintext,
		EncryptionContext: merged,
	}

	var out *kms.EncryptOutput
	err := retry.Do(ctx, s.retry, func(ctx context.Context) error {
		var err error
		out, err = s.client.Encrypt(ctx, input)
		return err
	})
	if err != nil {
		s.logger.Error("envelope encrypt failed: %v", err)
		return nil, shielderrors.EncryptionError{Op: "envelope", Err: err}
	}

	keyID := s.keyID
	if out.KeyId != nil {
		keyID = *out.KeyId
	}

	return &Envelope{
		Ciphertext: out.CiphertextBlob,
		KeyID:      keyID,
		Context:    merged,
	}, nil
}

// Decrypt opens an envelope. The provider rejects the call when the
// binding context does not match the one used at encryption time.
func (s *Service) Decrypt(ctx context.Context, envelope *Envelope, bindingContext map[string]string) ([]byte, error) {
	if envelope == nil || len(envelope.Ciphertext) == 0 {
		return nil, shielderrors.DecryptionError{Op: "envelope", Err: fmt.Errorf("empty envelope")}
	}

	input := &kms.DecryptInput{
		CiphertextBlob:    envelope.Ciphertext,
		EncryptionContext: s.mergeContext(bindingContext),
	}

	var out *kms.DecryptOutput
	err := retry.Do(ctx, s.retry, func(ctx context.Context) error {
		var err error
		out, err = s.client.Decrypt(ctx, input)
		return err
	})
	if err != nil {
		s.logger.Error("envelope decrypt failed: %v", err)
		return nil, shielderrors.DecryptionError{Op: "envelope", Err: err}
	}

	return out.Plaintext, nil
}

func (s *Service) mergeContext(bindingContext map[string]string) map[string]string {
	merged := make(map[string]string, len(s.defaultContext)+len(bindingContext))
	for k, v := range s.defaultContext {
		merged[k] = v
	}
	for k, v := range bindingContext {
		merged[k] = v
	}
	return merged
}
