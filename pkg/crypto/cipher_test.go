package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecrypt(t *testing.T) {
	sealed, err := EncryptString("master-key", "hook-secret")
	require.NoError(t, err)
	assert.NotContains(t, string(sealed), "hook-secret")

	plain, err := DecryptToString("master-key", sealed)
	require.NoError(t, err)
	assert.Equal(t, "hook-secret", plain)
}

func TestDecryptWithWrongKeyFails(t *testing.T) {
	sealed, err := EncryptString("master-key", "hook-secret")
	require.NoError(t, err)

	_, err = DecryptToString("other-key", sealed)
	assert.Error(t, err)
}

func TestEmptyKeyRejected(t *testing.T) {
	_, err := EncryptString("", "hook-secret")
	assert.ErrorIs(t, err, ErrEmptySecret)
}

func TestShortPayload(t *testing.T) {
	_, err := DecryptToString("master-key", []byte{1, 2})
	assert.Error(t, err)
}
