package kraken

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCredsFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "creds.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadCredentialsFile(t *testing.T) {
	path := writeCredsFile(t, `{"key":"api-key","secret":"api-secret"}`)

	creds, err := LoadCredentialsFile(path)
	require.NoError(t, err)
	assert.Equal(t, "api-key", creds.Key)
	assert.Equal(t, "api-secret", creds.Secret)
	assert.False(t, creds.Empty())
}

func TestLoadCredentialsFile_Missing(t *testing.T) {
	_, err := LoadCredentialsFile(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestLoadCredentialsFile_Malformed(t *testing.T) {
	path := writeCredsFile(t, `key=value`)

	_, err := LoadCredentialsFile(path)
	assert.Error(t, err)
}

func TestLoadCredentialsFile_EmptyFields(t *testing.T) {
	path := writeCredsFile(t, `{"key":"api-key"}`)

	_, err := LoadCredentialsFile(path)
	assert.ErrorIs(t, err, ErrMissingCredentials)
}

func TestCredentialsEmpty(t *testing.T) {
	assert.True(t, Credentials{}.Empty())
	assert.True(t, Credentials{Key: "k"}.Empty())
	assert.True(t, Credentials{Secret: "s"}.Empty())
	assert.False(t, Credentials{Key: "k", Secret: "s"}.Empty())
}
