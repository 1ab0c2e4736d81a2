package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/hongminglow/channel-be/internal/apperr"
)

// parseMultipart bounds the request body and parses it. The caller must
// release the form with cleanupMultipart.
func parseMultipart(w http.ResponseWriter, r *http.Request, maxBytes int64) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperr.BadRequest("upload exceeds size limit")
		}
		return apperr.Wrap(apperr.KindBadRequest, "invalid multipart payload", err)
	}
	return nil
}

func cleanupMultipart(r *http.Request) {
	if r.MultipartForm != nil {
		_ = r.MultipartForm.RemoveAll()
	}
}

// saveFormFile copies the named part into dir and returns the local path.
// It returns "" with no error when the part is absent.
func saveFormFile(r *http.Request, name, dir string) (string, error) {
	file, header, err := r.FormFile(name)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return "", nil
		}
		return "", apperr.Wrap(apperr.KindBadRequest, "invalid "+name+" file", err)
	}
	defer file.Close()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", apperr.Internal("failed to store upload", err)
	}
	dst, err := os.CreateTemp(dir, name+"-*"+filepath.Ext(header.Filename))
	if err != nil {
		return "", apperr.Internal("failed to store upload", err)
	}
	if _, err := io.Copy(dst, file); err != nil {
		dst.Close()
		os.Remove(dst.Name()) //nolint:errcheck
		return "", apperr.Internal("failed to store upload", fmt.Errorf("copy %s: %w", name, err))
	}
	if err := dst.Close(); err != nil {
		os.Remove(dst.Name()) //nolint:errcheck
		return "", apperr.Internal("failed to store upload", err)
	}
	return dst.Name(), nil
}
