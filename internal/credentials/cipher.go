package credentials

import (
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/ieltswriter/ieltswriter/internal/auth"
)

// Cipher seals a credential for one user. A value sealed for one user must
// not open to the same plaintext for another.
type Cipher interface {
	Name() string
	Seal(userID uuid.UUID, plaintext string) (string, error)
	Open(userID uuid.UUID, sealed string) (string, error)
}

// XORCipher obfuscates with the user id as a repeating key and base64-encodes
// the result. It only keeps keys out of plain sight at rest; use AESCipher
// when an ENCRYPTION_KEY is configured.
type XORCipher struct{}

func (XORCipher) Name() string { return "xor" }

func (XORCipher) Seal(userID uuid.UUID, plaintext string) (string, error) {
	return base64.StdEncoding.EncodeToString(xorWithID(userID, []byte(plaintext))), nil
}

func (XORCipher) Open(userID uuid.UUID, sealed string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("decoding sealed credential: %w", err)
	}
	return string(xorWithID(userID, raw)), nil
}

func xorWithID(userID uuid.UUID, data []byte) []byte {
	key := []byte(userID.String())
	out := make([]byte, len(data))
	for i, b := range data {
		out[i] = b ^ key[i%len(key)]
	}
	return out
}

// AESCipher seals with AES-256-GCM, binding the ciphertext to the user id.
type AESCipher struct {
	enc *auth.Encryptor
}

func NewAESCipher(enc *auth.Encryptor) (*AESCipher, error) {
	if enc == nil {
		return nil, errors.New("aes cipher requires an encryptor")
	}
	return &AESCipher{enc: enc}, nil
}

func (c *AESCipher) Name() string { return "aes-gcm" }

func (c *AESCipher) Seal(userID uuid.UUID, plaintext string) (string, error) {
	return c.enc.Seal(plaintext, userID[:])
}

func (c *AESCipher) Open(userID uuid.UUID, sealed string) (string, error) {
	return c.enc.Open(sealed, userID[:])
}
