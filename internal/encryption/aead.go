package encryption

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/cccs/clue-client/internal/config"
	"github.com/tink-crypto/tink-go-awskms/v3/integration/awskms"
	"github.com/tink-crypto/tink-go/v2/aead"
	"github.com/tink-crypto/tink-go/v2/insecurecleartextkeyset"
	"github.com/tink-crypto/tink-go/v2/keyset"
	"github.com/tink-crypto/tink-go/v2/tink"
)

const secretsManagerScheme = "aws-secretsmanager://"

// Validate performs a test encryption/decryption cycle to verify the AEAD is
// working. Call this before opening storage to fail fast if encryption is
// misconfigured.
func Validate(a tink.AEAD) error {
	testPlaintext := []byte("clue-client-encryption-test")
	testAAD := []byte("validation")

	ciphertext, err := a.Encrypt(testPlaintext, testAAD)
	if err != nil {
		return fmt.Errorf("validation encrypt failed: %w", err)
	}

	decrypted, err := a.Decrypt(ciphertext, testAAD)
	if err != nil {
		return fmt.Errorf("validation decrypt failed: %w", err)
	}

	if !bytes.Equal(testPlaintext, decrypted) {
		return fmt.Errorf("validation round-trip failed: plaintext mismatch")
	}

	return nil
}

// NewFromConfig returns the AEAD described by cfg, or nil when encryption is
// not configured. A keyset file takes precedence over a keyset URI.
func NewFromConfig(ctx context.Context, cfg config.EncryptionConfig) (tink.AEAD, error) {
	switch {
	case cfg.KeysetFile != "":
		return NewAEADFromFile(cfg.KeysetFile)
	case cfg.KeysetURI != "":
		return NewAEADFromKMS(ctx, cfg.KeysetURI, cfg.KMSEnvelopeKeyURI)
	default:
		return nil, nil
	}
}

// NewAEADFromFile reads a cleartext JSON keyset from path. The keyset is
// protected only by file permissions, so this suits a single workstation.
func NewAEADFromFile(path string) (tink.AEAD, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening keyset file: %w", err)
	}
	defer f.Close()

	handle, err := insecurecleartextkeyset.Read(keyset.NewJSONReader(f))
	if err != nil {
		return nil, fmt.Errorf("reading keyset file: %w", err)
	}

	return primitive(handle)
}

// NewAEADFromKMS creates a tink.AEAD from a keyset stored in AWS Secrets
// Manager, encrypted with an AWS KMS key. The KMS key is only used here to
// decrypt the keyset; all later encrypt/decrypt operations are local.
//
// keysetURI format: aws-secretsmanager://secret-name
// kmsEnvelopeKeyURI format: aws-kms://arn:aws:kms:region:account:key/key-id
func NewAEADFromKMS(ctx context.Context, keysetURI, kmsEnvelopeKeyURI string) (tink.AEAD, error) {
	secretName, err := secretName(keysetURI)
	if err != nil {
		return nil, err
	}

	kmsAEAD, err := awskms.NewAEADWithContext(ctx, kmsEnvelopeKeyURI)
	if err != nil {
		return nil, fmt.Errorf("creating KMS AEAD: %w", err)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	result, err := secretsmanager.NewFromConfig(awsCfg).GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: &secretName,
	})
	if err != nil {
		return nil, fmt.Errorf("getting secret %q: %w", secretName, err)
	}
	if result.SecretString == nil {
		return nil, fmt.Errorf("secret %q has no string value", secretName)
	}

	handle, err := keyset.ReadWithContext(ctx, keyset.NewJSONReader(strings.NewReader(*result.SecretString)), kmsAEAD, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypting keyset: %w", err)
	}

	return primitive(handle)
}

// NewTestAEAD creates a tink.AEAD for testing without KMS.
// Only use in tests: keys are not persisted or protected.
func NewTestAEAD() (tink.AEAD, error) {
	handle, err := keyset.NewHandle(aead.AES256GCMKeyTemplate())
	if err != nil {
		return nil, fmt.Errorf("creating test keyset handle: %w", err)
	}
	return primitive(handle)
}

func primitive(handle *keyset.Handle) (tink.AEAD, error) {
	p, err := aead.New(handle)
	if err != nil {
		return nil, fmt.Errorf("creating AEAD primitive: %w", err)
	}

	if err := Validate(p); err != nil {
		return nil, fmt.Errorf("validating AEAD: %w", err)
	}

	return p, nil
}

func secretName(uri string) (string, error) {
	if !strings.HasPrefix(uri, secretsManagerScheme) {
		return "", fmt.Errorf("invalid secrets manager URI %q: must start with %s", uri, secretsManagerScheme)
	}

	name := strings.TrimPrefix(uri, secretsManagerScheme)
	if name == "" {
		return "", fmt.Errorf("invalid secrets manager URI %q: secret name is empty", uri)
	}

	return name, nil
}
