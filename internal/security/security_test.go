package security_test

import (
	"testing"
	"time"

	"github.com/fernet/fernet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"huddle/internal/security"
)

func TestTokenService(t *testing.T) {
	svc := security.NewTokenService("secret", time.Hour)

	t.Run("RoundTrip", func(t *testing.T) {
		tok, err := svc.Issue("user-1")
		require.NoError(t, err)

		claims, err := svc.Verify(tok)
		require.NoError(t, err)
		assert.Equal(t, "user-1", claims.UserID)
		assert.WithinDuration(t, time.Now(), claims.IssuedAt, 5*time.Second)
	})

	t.Run("Expired", func(t *testing.T) {
		tok, err := svc.IssueWithTTL("user-1", -time.Minute)
		require.NoError(t, err)

		_, err = svc.Verify(tok)
		assert.Error(t, err)
	})

	t.Run("WrongSecret", func(t *testing.T) {
		other := security.NewTokenService("other", time.Hour)
		tok, err := other.Issue("user-1")
		require.NoError(t, err)

		_, err = svc.Verify(tok)
		assert.Error(t, err)
	})

	t.Run("EmptySubject", func(t *testing.T) {
		_, err := svc.Issue("")
		assert.Error(t, err)
	})
}

func TestPasswordHasher(t *testing.T) {
	h := security.NewPasswordHasher(4)

	hashed, err := h.Hash("Password1!")
	require.NoError(t, err)
	assert.NoError(t, h.Verify("Password1!", hashed))
	assert.Error(t, h.Verify("wrong-password", hashed))

	_, err = h.Hash("short")
	assert.Error(t, err)
}

func TestEncryptor(t *testing.T) {
	t.Run("RoundTrip", func(t *testing.T) {
		enc, err := security.NewEncryptor([]byte("a secret"), nil)
		require.NoError(t, err)

		sealed, err := enc.Encrypt("see you at 8")
		require.NoError(t, err)
		assert.NotEqual(t, "see you at 8", sealed)

		plain, err := enc.Decrypt(sealed)
		require.NoError(t, err)
		assert.Equal(t, "see you at 8", plain)
	})

	t.Run("LegacyFernet", func(t *testing.T) {
		var k fernet.Key
		require.NoError(t, k.Generate())
		token, err := fernet.EncryptAndSign([]byte("old message"), &k)
		require.NoError(t, err)

		enc, err := security.NewEncryptor([]byte("a secret"), []string{k.Encode()})
		require.NoError(t, err)

		plain, err := enc.Decrypt(string(token))
		require.NoError(t, err)
		assert.Equal(t, "old message", plain)
	})

	t.Run("Garbage", func(t *testing.T) {
		enc, err := security.NewEncryptor([]byte("a secret"), nil)
		require.NoError(t, err)

		_, err = enc.Decrypt("not-a-payload")
		assert.ErrorIs(t, err, security.ErrDecrypt)
	})

	t.Run("EmptyKey", func(t *testing.T) {
		_, err := security.NewEncryptor(nil, nil)
		assert.Error(t, err)
	})
}
