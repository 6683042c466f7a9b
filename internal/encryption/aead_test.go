package encryption

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/cccs/clue-client/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tink-crypto/tink-go/v2/aead"
	"github.com/tink-crypto/tink-go/v2/insecurecleartextkeyset"
	"github.com/tink-crypto/tink-go/v2/keyset"
)

func TestValidate_Success(t *testing.T) {
	primitive, err := NewTestAEAD()
	require.NoError(t, err)

	assert.NoError(t, Validate(primitive))
}

func TestValidate_EncryptFailure(t *testing.T) {
	err := Validate(&failingAEAD{encryptErr: errors.New("encrypt broken")})
	assert.ErrorContains(t, err, "validation encrypt failed")
}

func TestValidate_DecryptFailure(t *testing.T) {
	err := Validate(&failingAEAD{decryptErr: errors.New("decrypt broken")})
	assert.ErrorContains(t, err, "validation decrypt failed")
}

func TestValidate_RoundTripMismatch(t *testing.T) {
	err := Validate(&mismatchAEAD{})
	assert.ErrorContains(t, err, "validation round-trip failed")
}

func TestNewAEADFromFile(t *testing.T) {
	path := writeTestKeyset(t)

	primitive, err := NewAEADFromFile(path)
	require.NoError(t, err)

	ciphertext, err := primitive.Encrypt([]byte("secret"), []byte("aad"))
	require.NoError(t, err)

	plaintext, err := primitive.Decrypt(ciphertext, []byte("aad"))
	require.NoError(t, err)
	assert.Equal(t, "secret", string(plaintext))
}

func TestNewAEADFromFile_Missing(t *testing.T) {
	_, err := NewAEADFromFile(filepath.Join(t.TempDir(), "absent.json"))
	assert.ErrorContains(t, err, "opening keyset file")
}

func TestNewAEADFromFile_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keyset.json")
	require.NoError(t, os.WriteFile(path, []byte("not a keyset"), 0o600))

	_, err := NewAEADFromFile(path)
	assert.ErrorContains(t, err, "reading keyset file")
}

func TestNewFromConfig_Disabled(t *testing.T) {
	primitive, err := NewFromConfig(context.Background(), config.EncryptionConfig{})
	require.NoError(t, err)
	assert.Nil(t, primitive)
}

func TestNewFromConfig_KeysetFile(t *testing.T) {
	primitive, err := NewFromConfig(context.Background(), config.EncryptionConfig{
		KeysetFile: writeTestKeyset(t),
	})
	require.NoError(t, err)
	assert.NotNil(t, primitive)
}

func TestSecretName(t *testing.T) {
	tests := []struct {
		name        string
		uri         string
		expected    string
		errContains string
	}{
		{
			name:     "valid",
			uri:      "aws-secretsmanager://clue/keyset",
			expected: "clue/keyset",
		},
		{
			name:        "missing prefix",
			uri:         "https://example.com/secret",
			errContains: "must start with aws-secretsmanager://",
		},
		{
			name:        "wrong scheme",
			uri:         "aws-kms://some-key",
			errContains: "must start with aws-secretsmanager://",
		},
		{
			name:        "empty secret name",
			uri:         "aws-secretsmanager://",
			errContains: "secret name is empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name, err := secretName(tt.uri)
			if tt.errContains != "" {
				assert.ErrorContains(t, err, tt.errContains)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, name)
		})
	}
}

// writeTestKeyset generates an AES256-GCM keyset and writes it as cleartext
// JSON into a temp directory.
func writeTestKeyset(t *testing.T) string {
	t.Helper()

	handle, err := keyset.NewHandle(aead.AES256GCMKeyTemplate())
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "keyset.json")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	require.NoError(t, insecurecleartextkeyset.Write(handle, keyset.NewJSONWriter(f)))

	return path
}

type failingAEAD struct {
	encryptErr error
	decryptErr error
}

func (f *failingAEAD) Encrypt(plaintext, _ []byte) ([]byte, error) {
	if f.encryptErr != nil {
		return nil, f.encryptErr
	}
	return plaintext, nil
}

func (f *failingAEAD) Decrypt(ciphertext, _ []byte) ([]byte, error) {
	if f.decryptErr != nil {
		return nil, f.decryptErr
	}
	return ciphertext, nil
}

type mismatchAEAD struct{}

func (m *mismatchAEAD) Encrypt(plaintext, _ []byte) ([]byte, error) {
	return plaintext, nil
}

func (m *mismatchAEAD) Decrypt(_, _ []byte) ([]byte, error) {
	return []byte("something else"), nil
}
