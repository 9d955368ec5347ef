package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"
	"strings"

	"github.com/fernet/fernet-go"
)

// ErrDecrypt is returned when no configured key opens a payload.
var ErrDecrypt = errors.New("failed to decrypt message payload")

// Encryptor seals message content at rest with AES-256-GCM. Payloads
// written by older deployments as Fernet tokens are still readable when
// their keys are configured.
type Encryptor struct {
	aead       cipher.AEAD
	fernetKeys []*fernet.Key
}

func NewEncryptor(key []byte, legacyKeys []string) (*Encryptor, error) {
	if len(key) == 0 {
		return nil, errors.New("encryption key must not be empty")
	}
	sum := sha256.Sum256(key)
	block, err := aes.NewCipher(sum[:])
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	var fernetKeys []*fernet.Key
	for _, raw := range append([]string{string(key)}, legacyKeys...) {
		if fk, err := fernet.DecodeKey(strings.TrimSpace(raw)); err == nil {
			fernetKeys = append(fernetKeys, fk)
		}
	}
	return &Encryptor{aead: aead, fernetKeys: fernetKeys}, nil
}

func (e *Encryptor) Encrypt(plain string) (string, error) {
	nonce := make([]byte, e.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := e.aead.Seal(nonce, nonce, []byte(plain), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (e *Encryptor) Decrypt(enc string) (string, error) {
	if raw, err := base64.StdEncoding.DecodeString(enc); err == nil && len(raw) >= e.aead.NonceSize() {
		n := e.aead.NonceSize()
		if plain, err := e.aead.Open(nil, raw[:n], raw[n:], nil); err == nil {
			return string(plain), nil
		}
	}
	if len(e.fernetKeys) > 0 {
		// ttl 0 disables the age check
		if plain := fernet.VerifyAndDecrypt([]byte(enc), 0, e.fernetKeys); plain != nil {
			return string(plain), nil
		}
	}
	return "", ErrDecrypt
}
