package crypto

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	blob, err := EncryptSecret("super-secret-token", "hunter2")
	require.NoError(t, err)

	got, err := DecryptSecret(blob, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, "super-secret-token", got)
}

func TestDecryptWrongPassword(t *testing.T) {
	blob, err := EncryptSecret("super-secret-token", "hunter2")
	require.NoError(t, err)

	_, err = DecryptSecret(blob, "wrong")
	assert.Error(t, err)
}

func TestEncryptRejectsEmptyInputs(t *testing.T) {
	_, err := EncryptSecret("", "hunter2")
	assert.Error(t, err)

	_, err = EncryptSecret("token", "")
	assert.Error(t, err)
}

func TestLoadTokenPrefersRaw(t *testing.T) {
	got, err := LoadToken(TokenConfig{RawToken: "direct"})
	require.NoError(t, err)
	assert.Equal(t, "direct", got)
}

func TestLoadTokenFromEncryptedFile(t *testing.T) {
	blob, err := EncryptSecret("filed-token", "pw")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "token.json")
	require.NoError(t, os.WriteFile(path, blob, 0o600))

	got, err := LoadToken(TokenConfig{EncryptedTokenPath: path, TokenPassword: "pw"})
	require.NoError(t, err)
	assert.Equal(t, "filed-token", got)
}

func TestLoadTokenNoSource(t *testing.T) {
	_, err := LoadToken(TokenConfig{})
	assert.Error(t, err)
}
