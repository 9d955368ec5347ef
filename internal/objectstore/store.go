// Package objectstore keeps uploaded files in public buckets on local disk.
package objectstore

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gorilla/handlers"
	"github.com/teris-io/shortid"
)

// PublicPrefix is the URL path under which objects are served.
const PublicPrefix = "/storage/v1/object/public/"

// Buckets known to the application.
const (
	BucketProposalImages = "proposal-images"
	BucketGroupImages    = "group-images"
	BucketAvatars        = "avatars"
	BucketChatFiles      = "chat-files"
)

var (
	ErrUnknownBucket = errors.New("unknown bucket")
	ErrInvalidPath   = errors.New("invalid object path")
	ErrTooLarge      = errors.New("object too large")
)

// Store writes objects below root/<bucket>/<path>.
type Store struct {
	root     string
	baseURL  string
	maxBytes int64
	buckets  map[string]bool
}

// New creates the bucket directories under root. baseURL is prepended to
// public URLs and may be empty for host-relative URLs.
func New(root, baseURL string, maxBytes int64) (*Store, error) {
	s := &Store{
		root:     root,
		baseURL:  strings.TrimRight(baseURL, "/"),
		maxBytes: maxBytes,
		buckets:  map[string]bool{},
	}
	for _, b := range []string{BucketProposalImages, BucketGroupImages, BucketAvatars, BucketChatFiles} {
		if err := os.MkdirAll(filepath.Join(root, b), 0o755); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", b, err)
		}
		s.buckets[b] = true
	}
	return s, nil
}

func (s *Store) HasBucket(bucket string) bool {
	return s.buckets[bucket]
}

// ObjectName builds "<owner>/<random id><ext>" for an uploaded file.
func ObjectName(owner, filename string) (string, error) {
	id, err := shortid.Generate()
	if err != nil {
		return "", fmt.Errorf("generate object id: %w", err)
	}
	ext := strings.ToLower(filepath.Ext(filename))
	return owner + "/" + id + ext, nil
}

func cleanObjectPath(p string) (string, error) {
	if p == "" || strings.HasPrefix(p, "/") || strings.Contains(p, "\\") {
		return "", ErrInvalidPath
	}
	clean := path.Clean(p)
	if clean != p || clean == "." || strings.HasPrefix(clean, "../") || clean == ".." {
		return "", ErrInvalidPath
	}
	return clean, nil
}

// Put stores r as bucket/objectPath and returns the object's public URL.
// An existing object at the same path is replaced.
func (s *Store) Put(bucket, objectPath string, r io.Reader) (string, error) {
	if !s.buckets[bucket] {
		return "", ErrUnknownBucket
	}
	clean, err := cleanObjectPath(objectPath)
	if err != nil {
		return "", err
	}
	dest := filepath.Join(s.root, bucket, filepath.FromSlash(clean))
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("create object dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create object: %w", err)
	}
	defer os.Remove(tmp.Name())

	src := r
	if s.maxBytes > 0 {
		src = io.LimitReader(r, s.maxBytes+1)
	}
	n, err := io.Copy(tmp, src)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", fmt.Errorf("write object: %w", err)
	}
	if s.maxBytes > 0 && n > s.maxBytes {
		return "", ErrTooLarge
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return "", fmt.Errorf("store object: %w", err)
	}
	return s.PublicURL(bucket, clean), nil
}

// PublicURL returns the URL an object is served under.
func (s *Store) PublicURL(bucket, objectPath string) string {
	return s.baseURL + PublicPrefix + bucket + "/" + objectPath
}

// Handler serves objects below PublicPrefix with gzip compression.
func (s *Store) Handler() http.Handler {
	files := http.StripPrefix(PublicPrefix, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		bucket, rest, ok := strings.Cut(r.URL.Path, "/")
		if !ok || !s.buckets[bucket] {
			http.NotFound(w, r)
			return
		}
		clean, err := cleanObjectPath(rest)
		if err != nil || strings.HasPrefix(path.Base(clean), ".") {
			http.NotFound(w, r)
			return
		}
		full := filepath.Join(s.root, bucket, filepath.FromSlash(clean))
		if info, err := os.Stat(full); err != nil || info.IsDir() {
			http.NotFound(w, r)
			return
		}
		http.ServeFile(w, r, full)
	}))
	return handlers.CompressHandler(files)
}
