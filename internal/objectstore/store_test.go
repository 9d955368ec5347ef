package objectstore_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"huddle/internal/objectstore"
)

func TestPutAndServe(t *testing.T) {
	s, err := objectstore.New(t.TempDir(), "http://files.local", 1<<10)
	require.NoError(t, err)

	t.Run("RoundTrip", func(t *testing.T) {
		url, err := s.Put(objectstore.BucketAvatars, "u1/pic.txt", strings.NewReader("hello"))
		require.NoError(t, err)
		assert.Equal(t, "http://files.local/storage/v1/object/public/avatars/u1/pic.txt", url)

		req := httptest.NewRequest(http.MethodGet, "/storage/v1/object/public/avatars/u1/pic.txt", nil)
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "hello", rec.Body.String())
	})

	t.Run("UnknownBucket", func(t *testing.T) {
		_, err := s.Put("secrets", "a.txt", strings.NewReader("x"))
		assert.ErrorIs(t, err, objectstore.ErrUnknownBucket)
	})

	t.Run("Traversal", func(t *testing.T) {
		for _, p := range []string{"../a.txt", "/abs.txt", "a/../../b.txt", ""} {
			_, err := s.Put(objectstore.BucketChatFiles, p, strings.NewReader("x"))
			assert.ErrorIs(t, err, objectstore.ErrInvalidPath, p)
		}
	})

	t.Run("TooLarge", func(t *testing.T) {
		_, err := s.Put(objectstore.BucketChatFiles, "big.bin", strings.NewReader(strings.Repeat("x", 2<<10)))
		assert.ErrorIs(t, err, objectstore.ErrTooLarge)
	})

	t.Run("MissingObject", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/storage/v1/object/public/avatars/nope.png", nil)
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestObjectName(t *testing.T) {
	a, err := objectstore.ObjectName("u1", "Photo.JPG")
	require.NoError(t, err)
	b, err := objectstore.ObjectName("u1", "Photo.JPG")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(a, "u1/"))
	assert.True(t, strings.HasSuffix(a, ".jpg"))
	assert.NotEqual(t, a, b)
}
