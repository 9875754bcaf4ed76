package crypto

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptSecretRoundTrip(t *testing.T) {
	blob, err := EncryptSecret("kraken-api-secret==", "hunter2")
	require.NoError(t, err)

	secret, err := DecryptSecret(blob, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, "kraken-api-secret==", secret)
}

func TestDecryptSecretWrongPassword(t *testing.T) {
	blob, err := EncryptSecret("s3cret", "correct")
	require.NoError(t, err)

	_, err = DecryptSecret(blob, "wrong")
	assert.Error(t, err)
}

func TestLoadSecretPrecedence(t *testing.T) {
	// Raw secret wins over the encrypted file.
	s, err := LoadSecret(SecretConfig{RawSecret: "raw", EncryptedPath: "/does/not/exist"})
	require.NoError(t, err)
	assert.Equal(t, "raw", s)

	blob, err := EncryptSecret("from-file", "pw")
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "secret.json")
	require.NoError(t, os.WriteFile(path, blob, 0o600))

	s, err = LoadSecret(SecretConfig{EncryptedPath: path, Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, "from-file", s)

	_, err = LoadSecret(SecretConfig{})
	assert.Error(t, err)
}

func TestHMACSHA256HexKnownVector(t *testing.T) {
	// RFC 4231 test case 2.
	sig := HMACSHA256Hex([]byte("Jefe"), "what do ya want for nothing?")
	assert.Equal(t, "5bdcc146bf60754e6a042426089575c75a003f089d2739839dec58b964ec3843", sig)
}

func TestRedactedString(t *testing.T) {
	c := APICredentials{Key: "abcdef", Secret: "zz"}
	s := c.String()
	assert.NotContains(t, s, "abcdef")
	assert.Contains(t, s, "abcd****")
	assert.Contains(t, s, "****")
}
