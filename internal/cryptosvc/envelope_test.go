package cryptosvc

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	shielderrors "github.com/storyforge/shield/internal/errors"
	"github.com/storyforge/shield/internal/logging"
)

// mockKMS simulates the key-management provider, enforcing that the
// encryption context at decrypt time matches the one at encrypt time.
type mockKMS struct {
	mu      sync.Mutex
	seq     int
	sealed  map[string]sealedEntry
	failAll bool
}

type sealedEntry struct {
	plaintext []byte
	context   map[string]string
}

func newMockKMS() *mockKMS {
	return &mockKMS{sealed: make(map[string]sealedEntry)}
}

func (m *mockKMS) Encrypt(ctx context.Context, params *kms.EncryptInput, optFns ...func(*kms.Options)) (*kms.EncryptOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failAll {
		return nil, fmt.Errorf("KMSInternalException")
	}

	m.seq++
	blob := fmt.Sprintf("blob-%d", m.seq)
	plaintext := make([]byte, len(params.Plaintext))
	copy(plaintext, params.Plaintext)
	contextCopy := make(map[string]string, len(params.EncryptionContext))
	for k, v := range params.EncryptionContext {
		contextCopy[k] = v
	}
	m.sealed[blob] = sealedEntry{plaintext: plaintext, context: contextCopy}

	return &kms.EncryptOutput{
		CiphertextBlob: []byte(blob),
		KeyId:          params.KeyId,
	}, nil
}

func (m *mockKMS) Decrypt(ctx context.Context, params *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failAll {
		return nil, fmt.Errorf("KMSInternalException")
	}

	entry, ok := m.sealed[string(params.CiphertextBlob)]
	if !ok {
		return nil, fmt.Errorf("InvalidCiphertextException")
	}
	if len(entry.context) != len(params.EncryptionContext) {
		return nil, fmt.Errorf("InvalidCiphertextException: context mismatch")
	}
	for k, v := range entry.context {
		if params.EncryptionContext[k] != v {
			return nil, fmt.Errorf("InvalidCiphertextException: context mismatch")
		}
	}

	return &kms.DecryptOutput{Plaintext: entry.plaintext, KeyId: aws.String("mock-key")}, nil
}

func newTestService(t *testing.T) (*Service, *mockKMS) {
	t.Helper()
	mock := newMockKMS()
	svc, err := NewService(
		KMSSettings{KeyID: "alias/shield"},
		map[string]string{"service": "shield", "environment": "test"},
		logging.New("crypto-test", false),
		WithKMSClient(mock),
	)
	require.NoError(t, err)
	return svc, mock
}

func TestEnvelopeRoundTrip(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)
	ctx := context.Background()

	payloads := [][]byte{
		[]byte("hello world"),
		{},
		{0x00, 0xFF, 0x10, 0x7F},
	}

	for _, payload := range payloads {
		envelope, err := svc.Encrypt(ctx, payload, map[string]string{"purpose": "test"})
		require.NoError(t, err)
		assert.NotEmpty(t, envelope.KeyID)
		assert.Equal(t, "shield", envelope.Context["service"])

		plaintext, err := svc.Decrypt(ctx, envelope, map[string]string{"purpose": "test"})
		require.NoError(t, err)
		assert.Equal(t, payload, plaintext)
	}
}

func TestEnvelopeContextMismatchFails(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)
	ctx := context.Background()

	envelope, err := svc.Encrypt(ctx, []byte("bound"), map[string]string{"purpose": "a"})
	require.NoError(t, err)

	_, err = svc.Decrypt(ctx, envelope, map[string]string{"purpose": "b"})
	require.Error(t, err)
	var de shielderrors.DecryptionError
	assert.ErrorAs(t, err, &de)
}

func TestEnvelopeMissingContextKeyFails(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)
	ctx := context.Background()

	envelope, err := svc.Encrypt(ctx, []byte("bound"), map[string]string{"purpose": "a"})
	require.NoError(t, err)

	_, err = svc.Decrypt(ctx, envelope, nil)
	require.Error(t, err)
}

func TestEnvelopeDecryptEmptyEnvelope(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)

	_, err := svc.Decrypt(context.Background(), nil, nil)
	require.Error(t, err)

	_, err = svc.Decrypt(context.Background(), &Envelope{}, nil)
	require.Error(t, err)
}

func TestEnvelopeProviderFailureSurfacesAsEncryptionError(t *testing.T) {
	t.Parallel()
	svc, mock := newTestService(t)
	mock.failAll = true

	_, err := svc.Encrypt(context.Background(), []byte("x"), nil)
	require.Error(t, err)
	var ee shielderrors.EncryptionError
	assert.ErrorAs(t, err, &ee)
}

func TestEncryptDecryptFields(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)
	ctx := context.Background()

	record := map[string]interface{}{
		"name":  "Ada",
		"email": "ada@example.org",
		"phone": "555-123-4567",
		"plot":  "a heist",
	}

	require.NoError(t, svc.EncryptFields(ctx, record, []string{"email", "phone", "absent"}, nil))

	assert.Equal(t, true, record["email_encrypted"])
	assert.Equal(t, true, record["phone_encrypted"])
	assert.NotEqual(t, "ada@example.org", record["email"])
	assert.Equal(t, "Ada", record["name"], "unlisted fields are untouched")
	assert.NotContains(t, record, "absent_encrypted")

	svc.DecryptFields(ctx, record, []string{"email", "phone"}, nil)
	assert.Equal(t, "ada@example.org", record["email"])
	assert.Equal(t, "555-123-4567", record["phone"])
	assert.NotContains(t, record, "email_encrypted")
}

func TestDecryptFieldsLeavesFailedFieldEncrypted(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)
	ctx := context.Background()

	record := map[string]interface{}{
		"email": "ada@example.org",
		"phone": "555-123-4567",
	}
	require.NoError(t, svc.EncryptFields(ctx, record, []string{"email", "phone"}, nil))

	// Corrupt one field's ciphertext.
	record["phone"] = "bm90LXZhbGlkLWpzb24"
	encryptedPhone := record["phone"]

	svc.DecryptFields(ctx, record, []string{"email", "phone"}, nil)

	assert.Equal(t, "ada@example.org", record["email"], "good fields still decrypt")
	assert.Equal(t, encryptedPhone, record["phone"], "failed field keeps its encrypted form")
	assert.Equal(t, true, record["phone_encrypted"], "failed field keeps its marker")
}

func TestDecryptFieldsSkipsUnmarkedFields(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)

	record := map[string]interface{}{"email": "plain@example.org"}
	svc.DecryptFields(context.Background(), record, []string{"email"}, nil)
	assert.Equal(t, "plain@example.org", record["email"])
}
