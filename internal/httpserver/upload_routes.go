package httpserver

import (
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"huddle/internal/api"
	"huddle/internal/objectstore"
)

// multipart framing on top of the file itself
const uploadOverhead = 1 << 20

var imageExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".webp": true,
}

// UploadRoutes returns a sub-router mounted at /api/storage.
//   - POST /{bucket} -> multipart upload with the file in field "file"
func UploadRoutes(objects *objectstore.Store, maxBytes int64) chi.Router {
	r := chi.NewRouter()

	r.Post("/{bucket}", func(w http.ResponseWriter, r *http.Request) {
		user, ok := requireUser(w, r)
		if !ok {
			return
		}
		bucket := chi.URLParam(r, "bucket")
		if !objects.HasBucket(bucket) {
			writeError(w, objectstore.ErrUnknownBucket)
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxBytes+uploadOverhead)
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			badRequest(w, "failed to parse multipart form")
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			badRequest(w, "missing file")
			return
		}
		defer file.Close()

		ext := strings.ToLower(filepath.Ext(header.Filename))
		if ext == "" {
			badRequest(w, "file must have an extension")
			return
		}
		if bucket != objectstore.BucketChatFiles && !imageExtensions[ext] {
			badRequest(w, "only image files are accepted in this bucket")
			return
		}

		name, err := objectstore.ObjectName(user.ID, header.Filename)
		if err != nil {
			writeError(w, err)
			return
		}
		url, err := objects.Put(bucket, name, file)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, api.UploadResponse{Bucket: bucket, Path: name, URL: url})
	})

	return r
}
