package handlers

import (
	"errors"
	"net/http"
	"net/mail"
	"net/url"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/hongminglow/channel-be/internal/apperr"
	"github.com/hongminglow/channel-be/internal/auth"
	"github.com/hongminglow/channel-be/internal/config"
	"github.com/hongminglow/channel-be/internal/http/respond"
	"github.com/hongminglow/channel-be/internal/logger"
	"github.com/hongminglow/channel-be/internal/media"
	"github.com/hongminglow/channel-be/internal/models"
	"github.com/hongminglow/channel-be/internal/models/dto"
	"github.com/hongminglow/channel-be/internal/storage"
)

const minPasswordLength = 8

// UserHandler owns the account and session endpoints.
type UserHandler struct {
	store    storage.UserStore
	issuer   *auth.Issuer
	uploader media.Uploader
	cfg      *config.Config
	log      *logger.Logger
}

// NewUserHandler constructs the handler.
func NewUserHandler(store storage.UserStore, issuer *auth.Issuer, uploader media.Uploader, cfg *config.Config, log *logger.Logger) *UserHandler {
	return &UserHandler{store: store, issuer: issuer, uploader: uploader, cfg: cfg, log: log.Named("users")}
}

// Register attaches user routes to the mux. requireAuth guards the routes that need a session.
func (h *UserHandler) Register(mux *http.ServeMux, requireAuth func(http.Handler) http.Handler) {
	mux.Handle("POST /register", handle(h.log, h.handleRegister))
	mux.Handle("POST /login", handle(h.log, h.handleLogin))
	mux.Handle("POST /refresh-token", handle(h.log, h.handleRefresh))

	mux.Handle("POST /logout", requireAuth(handle(h.log, h.handleLogout)))
	mux.Handle("POST /change-password", requireAuth(handle(h.log, h.handleChangePassword)))
	mux.Handle("GET /current-user", requireAuth(handle(h.log, h.handleCurrentUser)))
	mux.Handle("PATCH /update-account", requireAuth(handle(h.log, h.handleUpdateAccount)))
	mux.Handle("PATCH /avatar", requireAuth(handle(h.log, h.handleAvatar)))
	mux.Handle("PATCH /cover-image", requireAuth(handle(h.log, h.handleCoverImage)))
}

func (h *UserHandler) handleRegister(w http.ResponseWriter, r *http.Request) error {
	if err := parseMultipart(w, r, h.cfg.MaxUploadBytes); err != nil {
		return err
	}
	defer cleanupMultipart(r)

	username := normalizeIdentifier(r.FormValue("username"))
	email := normalizeIdentifier(r.FormValue("email"))
	fullName := strings.TrimSpace(r.FormValue("fullName"))
	password := r.FormValue("password")

	if err := requireFields(
		field{"username", username},
		field{"email", email},
		field{"fullName", fullName},
		field{"password", password},
	); err != nil {
		return err
	}
	if err := validateEmail(email); err != nil {
		return err
	}
	if err := validatePassword(password); err != nil {
		return err
	}

	if _, err := h.store.FindByUsernameOrEmail(r.Context(), username, email); err == nil {
		return apperr.BadRequest("User with same username or email already exists")
	} else if !errors.Is(err, storage.ErrNotFound) {
		return apperr.Internal("failed to check existing user", err)
	}

	avatarPath, err := saveFormFile(r, "avatar", h.cfg.UploadDir)
	if err != nil {
		return err
	}
	if avatarPath == "" {
		return apperr.BadRequest("Avatar file is required")
	}
	avatar, err := h.uploader.Upload(r.Context(), avatarPath)
	if err != nil {
		h.log.WithContext(r.Context()).Warn("avatar upload failed", zap.Error(err))
		return apperr.Wrap(apperr.KindBadRequest, "Could not upload avatar image. Please try again", err)
	}

	var coverURL string
	coverPath, err := saveFormFile(r, "coverImage", h.cfg.UploadDir)
	if err != nil {
		return err
	}
	if coverPath != "" {
		if cover, err := h.uploader.Upload(r.Context(), coverPath); err == nil {
			coverURL = cover.URL
		} else {
			h.log.WithContext(r.Context()).Warn("cover image upload failed", zap.Error(err))
		}
	}

	user := models.User{
		Username:   username,
		Email:      email,
		FullName:   fullName,
		Avatar:     avatar.URL,
		CoverImage: coverURL,
	}
	if err := user.SetPassword(password); err != nil {
		return apperr.Internal("failed to hash password", err)
	}

	created, err := h.store.CreateUser(r.Context(), user)
	if err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return apperr.BadRequest("User with same username or email already exists")
		}
		return apperr.Internal("Something went wrong while registering the user", err)
	}

	respond.JSON(w, http.StatusCreated, "User registered successfully", created)
	return nil
}

func (h *UserHandler) handleLogin(w http.ResponseWriter, r *http.Request) error {
	req, err := decodeLogin(w, r)
	if err != nil {
		return err
	}
	username := normalizeIdentifier(firstNonBlank(req.Username, req.Identifier))
	email := normalizeIdentifier(firstNonBlank(req.Email, req.Identifier))
	if username == "" && email == "" {
		return apperr.BadRequest("username or email is required")
	}
	if err := requireFields(field{"password", req.Password}); err != nil {
		return err
	}

	user, err := h.store.FindByUsernameOrEmail(r.Context(), username, email)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return apperr.NotFound("User does not exist")
		}
		return apperr.Internal("failed to fetch user", err)
	}
	if !user.CheckPassword(req.Password) {
		return apperr.Unauthorized("Invalid user credentials")
	}

	pair, err := h.issuer.Mint(r.Context(), user.ID)
	if err != nil {
		return err
	}
	h.setSessionCookies(w, pair)
	respond.JSON(w, http.StatusOK, "User logged in successfully", dto.LoginResponse{
		User:         user,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
	return nil
}

func (h *UserHandler) handleLogout(w http.ResponseWriter, r *http.Request) error {
	userID, err := currentUserID(r)
	if err != nil {
		return err
	}
	if err := h.issuer.Revoke(r.Context(), userID); err != nil {
		return err
	}
	h.clearSessionCookies(w)
	respond.JSON(w, http.StatusOK, "User logged out", map[string]any{})
	return nil
}

func (h *UserHandler) handleRefresh(w http.ResponseWriter, r *http.Request) error {
	var presented string
	if c, err := r.Cookie(refreshTokenCookie); err == nil {
		presented = c.Value
	}
	if presented == "" {
		var req dto.RefreshRequest
		if err := decodeBody(w, r, &req, func(form url.Values) {
			req.RefreshToken = form.Get("refreshToken")
		}); err != nil {
			return apperr.Unauthorized(auth.MsgUnauthorizedRequest)
		}
		presented = strings.TrimSpace(req.RefreshToken)
	}

	pair, err := h.issuer.Rotate(r.Context(), presented)
	if err != nil {
		if apperr.IsKind(err, apperr.KindUnauthorized) {
			h.clearSessionCookies(w)
		}
		return err
	}
	h.setSessionCookies(w, pair)
	respond.JSON(w, http.StatusOK, "Access token refreshed", dto.TokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
	return nil
}

func (h *UserHandler) handleChangePassword(w http.ResponseWriter, r *http.Request) error {
	userID, err := currentUserID(r)
	if err != nil {
		return err
	}
	var req dto.ChangePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return err
	}
	if err := requireFields(field{"oldPassword", req.OldPassword}, field{"newPassword", req.NewPassword}); err != nil {
		return err
	}
	if err := validatePassword(req.NewPassword); err != nil {
		return err
	}

	user, err := h.loadUser(r, userID)
	if err != nil {
		return err
	}
	if !user.CheckPassword(req.OldPassword) {
		return apperr.Unauthorized("Invalid old password")
	}
	if err := user.SetPassword(req.NewPassword); err != nil {
		return apperr.Internal("failed to hash password", err)
	}
	if _, err := h.store.UpdateUser(r.Context(), userID, models.UserUpdate{PasswordHash: &user.PasswordHash}); err != nil {
		return apperr.Internal("failed to change password", err)
	}

	respond.JSON(w, http.StatusOK, "Password changed successfully", map[string]any{})
	return nil
}

func (h *UserHandler) handleCurrentUser(w http.ResponseWriter, r *http.Request) error {
	userID, err := currentUserID(r)
	if err != nil {
		return err
	}
	user, err := h.loadUser(r, userID)
	if err != nil {
		return err
	}
	respond.JSON(w, http.StatusOK, "Current user fetched successfully", user)
	return nil
}

func (h *UserHandler) handleUpdateAccount(w http.ResponseWriter, r *http.Request) error {
	userID, err := currentUserID(r)
	if err != nil {
		return err
	}
	var req dto.UpdateAccountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return err
	}
	fullName := strings.TrimSpace(req.FullName)
	email := normalizeIdentifier(req.Email)
	if err := requireFields(field{"fullName", fullName}, field{"email", email}); err != nil {
		return err
	}
	if err := validateEmail(email); err != nil {
		return err
	}

	updated, err := h.store.UpdateUser(r.Context(), userID, models.UserUpdate{FullName: &fullName, Email: &email})
	if err != nil {
		return h.updateError(err)
	}
	respond.JSON(w, http.StatusOK, "Account details updated successfully", updated)
	return nil
}

func (h *UserHandler) handleAvatar(w http.ResponseWriter, r *http.Request) error {
	url, err := h.uploadSingle(w, r, "avatar")
	if err != nil {
		return err
	}
	userID, _ := currentUserID(r)
	updated, err := h.store.UpdateUser(r.Context(), userID, models.UserUpdate{Avatar: &url})
	if err != nil {
		return h.updateError(err)
	}
	respond.JSON(w, http.StatusOK, "Avatar image updated successfully", updated)
	return nil
}

func (h *UserHandler) handleCoverImage(w http.ResponseWriter, r *http.Request) error {
	url, err := h.uploadSingle(w, r, "coverImage")
	if err != nil {
		return err
	}
	userID, _ := currentUserID(r)
	updated, err := h.store.UpdateUser(r.Context(), userID, models.UserUpdate{CoverImage: &url})
	if err != nil {
		return h.updateError(err)
	}
	respond.JSON(w, http.StatusOK, "Cover image updated successfully", updated)
	return nil
}

// uploadSingle stores the named multipart file and returns its public URL.
func (h *UserHandler) uploadSingle(w http.ResponseWriter, r *http.Request, name string) (string, error) {
	if _, err := currentUserID(r); err != nil {
		return "", err
	}
	if err := parseMultipart(w, r, h.cfg.MaxUploadBytes); err != nil {
		return "", err
	}
	defer cleanupMultipart(r)

	path, err := saveFormFile(r, name, h.cfg.UploadDir)
	if err != nil {
		return "", err
	}
	if path == "" {
		return "", apperr.BadRequest(name + " file is missing")
	}
	asset, err := h.uploader.Upload(r.Context(), path)
	if err != nil {
		h.log.WithContext(r.Context()).Warn("upload failed", zap.String("field", name), zap.Error(err))
		return "", apperr.Wrap(apperr.KindBadRequest, "Error while uploading "+name, err)
	}
	return asset.URL, nil
}

func (h *UserHandler) loadUser(r *http.Request, id int64) (models.User, error) {
	user, err := h.store.FindByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return models.User{}, apperr.Unauthorized(auth.MsgInvalidAccessToken)
		}
		return models.User{}, apperr.Internal("failed to fetch user", err)
	}
	return user, nil
}

func (h *UserHandler) updateError(err error) error {
	switch {
	case errors.Is(err, storage.ErrAlreadyExists):
		return apperr.BadRequest("Email is already in use")
	case errors.Is(err, storage.ErrNotFound):
		return apperr.Unauthorized(auth.MsgInvalidAccessToken)
	default:
		return apperr.Internal("failed to update user", err)
	}
}

// decodeLogin accepts a JSON body or a urlencoded form.
func decodeLogin(w http.ResponseWriter, r *http.Request) (dto.LoginRequest, error) {
	var req dto.LoginRequest
	err := decodeBody(w, r, &req, func(form url.Values) {
		req.Identifier = form.Get("identifier")
		req.Username = form.Get("username")
		req.Email = form.Get("email")
		req.Password = form.Get("password")
	})
	return req, err
}

func normalizeIdentifier(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func validateEmail(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return apperr.BadRequest("email is invalid")
	}
	return nil
}

func validatePassword(password string) error {
	if utf8.RuneCountInString(password) < minPasswordLength {
		return apperr.BadRequest("password must be at least 8 characters")
	}
	return nil
}
