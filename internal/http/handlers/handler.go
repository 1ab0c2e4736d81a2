package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/hongminglow/channel-be/internal/apperr"
	"github.com/hongminglow/channel-be/internal/http/respond"
	"github.com/hongminglow/channel-be/internal/logger"
	"github.com/hongminglow/channel-be/internal/middleware"
)

const maxJSONBytes = 1 << 20

// apiFunc is a handler that reports failures as errors instead of writing them.
type apiFunc func(w http.ResponseWriter, r *http.Request) error

// handle maps every failure from fn to the shared error envelope.
func handle(log *logger.Logger, fn apiFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := fn(w, r)
		if err == nil {
			return
		}
		status, msg := apperr.Resolve(err)
		if status >= http.StatusInternalServerError {
			log.WithContext(r.Context()).Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		}
		respond.Error(w, status, msg)
	}
}

// decodeJSON reads a JSON body into dst. An empty body leaves dst untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return apperr.Wrap(apperr.KindBadRequest, "invalid JSON payload", err)
	}
	return nil
}

// decodeBody decodes a urlencoded form through fromForm and anything else as JSON into dst.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any, fromForm func(url.Values)) error {
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded") {
		return decodeJSON(w, r, dst)
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBytes)
	if err := r.ParseForm(); err != nil {
		return apperr.Wrap(apperr.KindBadRequest, "invalid form payload", err)
	}
	fromForm(r.PostForm)
	return nil
}

type field struct {
	name  string
	value string
}

// requireFields rejects the first blank field by name.
func requireFields(fields ...field) error {
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			return apperr.BadRequest(f.name + " is required")
		}
	}
	return nil
}

func currentUserID(r *http.Request) (int64, error) {
	id, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		return 0, apperr.Unauthorized("Unauthorized request")
	}
	return id, nil
}
