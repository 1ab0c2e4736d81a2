package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hongminglow/channel-be/internal/config"
	"github.com/hongminglow/channel-be/internal/logger"
	"github.com/hongminglow/channel-be/internal/media"
	"github.com/hongminglow/channel-be/internal/server"
	"github.com/hongminglow/channel-be/internal/storage"
	"github.com/hongminglow/channel-be/internal/storage/sqlite"
)

type fakeUploader struct {
	failOn string
	calls  []string
}

func (f *fakeUploader) Upload(_ context.Context, localPath string) (media.Asset, error) {
	defer os.Remove(localPath) //nolint:errcheck
	base := filepath.Base(localPath)
	f.calls = append(f.calls, base)
	if f.failOn != "" && strings.HasPrefix(base, f.failOn) {
		return media.Asset{}, errors.New("media host unavailable")
	}
	return media.Asset{URL: "https://cdn.test/" + base, Key: base, ContentType: "image/png"}, nil
}

type envelope struct {
	StatusCode int             `json:"statusCode"`
	Data       json.RawMessage `json:"data"`
	Message    string          `json:"message"`
	Success    bool            `json:"success"`
}

type testAPI struct {
	t        *testing.T
	handler  http.Handler
	store    storage.UserStore
	uploader *fakeUploader
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	store, err := sqlite.NewUserStore(context.Background(), sqlite.Scheme+filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(store.Close)
	return newTestAPIWithStore(t, store)
}

func newTestAPIWithStore(t *testing.T, store storage.UserStore) *testAPI {
	t.Helper()
	cfg := &config.Config{
		CORSOrigins:        []string{"https://app.example"},
		AccessTokenSecret:  "access-secret",
		AccessTokenTTL:     time.Hour,
		RefreshTokenSecret: "refresh-secret",
		RefreshTokenTTL:    24 * time.Hour,
		UploadDir:          t.TempDir(),
		MaxUploadBytes:     1 << 20,
	}
	uploader := &fakeUploader{}
	handler := server.NewHandler(cfg, store, uploader, logger.Nop())
	return &testAPI{t: t, handler: handler, store: store, uploader: uploader}
}

func (a *testAPI) do(req *http.Request, token string) (*httptest.ResponseRecorder, envelope) {
	a.t.Helper()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)

	var env envelope
	require.NoError(a.t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec, env
}

func (a *testAPI) jsonRequest(method, path, token string, body any) (*httptest.ResponseRecorder, envelope) {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	return a.do(req, token)
}

func (a *testAPI) multipartRequest(method, path, token string, fields map[string]string, files ...string) (*httptest.ResponseRecorder, envelope) {
	a.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(a.t, mw.WriteField(k, v))
	}
	for _, name := range files {
		part, err := mw.CreateFormFile(name, name+".png")
		require.NoError(a.t, err)
		_, err = part.Write([]byte("\x89PNG fake image bytes"))
		require.NoError(a.t, err)
	}
	require.NoError(a.t, mw.Close())

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return a.do(req, token)
}

func (a *testAPI) register(username string) map[string]any {
	a.t.Helper()
	rec, env := a.multipartRequest(http.MethodPost, "/register", "", map[string]string{
		"username": username,
		"email":    username + "@example.com",
		"fullName": strings.ToUpper(username[:1]) + username[1:],
		"password": "supersecret",
	}, "avatar")
	require.Equal(a.t, http.StatusCreated, rec.Code, env.Message)
	return decodeData(a.t, env)
}

type session struct {
	access  string
	refresh string
}

func (a *testAPI) login(username string) session {
	a.t.Helper()
	rec, env := a.jsonRequest(http.MethodPost, "/login", "", map[string]string{
		"username": username,
		"password": "supersecret",
	})
	require.Equal(a.t, http.StatusOK, rec.Code, env.Message)
	data := decodeData(a.t, env)
	return session{access: data["accessToken"].(string), refresh: data["refreshToken"].(string)}
}

func decodeData(t *testing.T, env envelope) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}
