package credentials

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ieltswriter/ieltswriter/internal/auth"
)

const testKeyHex = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

func testCiphers(t *testing.T) []Cipher {
	t.Helper()
	enc, err := auth.NewEncryptor(testKeyHex)
	require.NoError(t, err)
	aes, err := NewAESCipher(enc)
	require.NoError(t, err)
	return []Cipher{XORCipher{}, aes}
}

func TestCiphers_RoundTripPerUser(t *testing.T) {
	for _, c := range testCiphers(t) {
		t.Run(c.Name(), func(t *testing.T) {
			alice, bob := uuid.New(), uuid.New()
			plaintext := "AIzaSyExampleKey-0123456789"

			sealed, err := c.Seal(alice, plaintext)
			require.NoError(t, err)
			assert.NotContains(t, sealed, plaintext)

			opened, err := c.Open(alice, sealed)
			require.NoError(t, err)
			assert.Equal(t, plaintext, opened)

			// Another user's id never yields the plaintext.
			other, err := c.Open(bob, sealed)
			if err == nil {
				assert.NotEqual(t, plaintext, other)
			}
		})
	}
}

func TestXORCipher_IsDeterministicBase64(t *testing.T) {
	id := uuid.MustParse("00000000-0000-0000-0000-000000000000")
	a, err := XORCipher{}.Seal(id, "key")
	require.NoError(t, err)
	b, err := XORCipher{}.Seal(id, "key")
	require.NoError(t, err)
	assert.Equal(t, a, b)

	// "k"^'0', "e"^'0', "y"^'0'
	assert.Equal(t, "W1VJ", a)

	_, err = XORCipher{}.Open(id, "not base64!")
	assert.Error(t, err)
}

func TestNewAESCipher_RequiresEncryptor(t *testing.T) {
	_, err := NewAESCipher(nil)
	assert.Error(t, err)
}
