//go:build integration

package testhelpers

import (
	"context"
	"crypto/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/cccs/clue-client/internal/config"
	"github.com/docker/go-connections/nat"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/log"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/tink-crypto/tink-go/v2/aead"
	"github.com/tink-crypto/tink-go/v2/insecurecleartextkeyset"
	"github.com/tink-crypto/tink-go/v2/keyset"
)

const (
	valkeyImage = "valkey/valkey:9-alpine"
	valkeyPort  = nat.Port("6379/tcp")
)

// RunValkeyContainer starts a password-protected Valkey server and returns the
// storage configuration a client would use against it: a valkey session
// backend, a temporary durable directory and a throwaway encryption keyset.
// The container is terminated when the test ends.
func RunValkeyContainer(t *testing.T) config.StorageConfig {
	t.Helper()

	valkey := startValkey(t)

	return config.StorageConfig{
		Dir:         t.TempDir(),
		SessionType: "valkey",
		Valkey:      valkey,
		Encryption: config.EncryptionConfig{
			KeysetFile: writeKeyset(t),
		},
	}
}

func startValkey(t *testing.T) config.ValkeyConfig {
	t.Helper()
	ctx := context.Background()

	password := rand.Text()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        valkeyImage,
			Env:          map[string]string{"VALKEY_EXTRA_FLAGS": "--requirepass " + password},
			ExposedPorts: []string{string(valkeyPort)},
			WaitingFor: wait.ForAll(
				wait.ForLog("Ready to accept connections"),
				wait.ForListeningPort(valkeyPort),
			),
		},
		Started: true,
		Logger:  log.TestLogger(t),
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	mapped, err := container.MappedPort(ctx, valkeyPort)
	require.NoError(t, err)

	return config.ValkeyConfig{
		// IPv4 loopback: the mapped port is not always bound on ::1
		Address:  "127.0.0.1:" + mapped.Port(),
		TLS:      false,
		Username: "default",
		Password: password,
	}
}

// writeKeyset stores a fresh AES256-GCM keyset as cleartext JSON, the format
// CLUE_STORAGE_ENCRYPTION_KEYSET_FILE expects.
func writeKeyset(t *testing.T) string {
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
