package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/hongminglow/channel-be/internal/apperr"
	"github.com/hongminglow/channel-be/internal/http/respond"
	"github.com/hongminglow/channel-be/internal/logger"
	"github.com/hongminglow/channel-be/internal/middleware"
	"github.com/hongminglow/channel-be/internal/models/dto"
	"github.com/hongminglow/channel-be/internal/storage"
)

// ChannelHandler serves public channel profiles and subscriptions.
type ChannelHandler struct {
	store storage.UserStore
	log   *logger.Logger
}

// NewChannelHandler constructs the handler.
func NewChannelHandler(store storage.UserStore, log *logger.Logger) *ChannelHandler {
	return &ChannelHandler{store: store, log: log.Named("channel")}
}

// Register attaches channel routes. Profiles use optionalAuth and the subscription toggle requires a session.
func (h *ChannelHandler) Register(mux *http.ServeMux, requireAuth, optionalAuth func(http.Handler) http.Handler) {
	mux.Handle("GET /channel/{username}", optionalAuth(handle(h.log, h.handleProfile)))
	mux.Handle("POST /channel/{username}/subscription", requireAuth(handle(h.log, h.handleToggle)))
}

func (h *ChannelHandler) handleProfile(w http.ResponseWriter, r *http.Request) error {
	username, err := channelName(r)
	if err != nil {
		return err
	}
	viewerID, _ := middleware.UserIDFromContext(r.Context())

	profile, err := h.store.ChannelProfile(r.Context(), username, viewerID)
	if err != nil {
		return channelError(err)
	}
	respond.JSON(w, http.StatusOK, "User channel fetched successfully", profile)
	return nil
}

func (h *ChannelHandler) handleToggle(w http.ResponseWriter, r *http.Request) error {
	userID, err := currentUserID(r)
	if err != nil {
		return err
	}
	username, err := channelName(r)
	if err != nil {
		return err
	}
	channel, err := h.store.ChannelProfile(r.Context(), username, 0)
	if err != nil {
		return channelError(err)
	}

	subscribed, err := h.store.ToggleSubscription(r.Context(), userID, channel.ID)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrSelfSubscription):
			return apperr.BadRequest("Cannot subscribe to your own channel")
		case errors.Is(err, storage.ErrNotFound):
			return apperr.BadRequest("Channel does not exist")
		default:
			return apperr.Internal("failed to toggle subscription", err)
		}
	}

	msg := "Unsubscribed successfully"
	if subscribed {
		msg = "Subscribed successfully"
	}
	respond.JSON(w, http.StatusOK, msg, dto.SubscriptionResponse{Subscribed: subscribed})
	return nil
}

func channelName(r *http.Request) (string, error) {
	username := strings.ToLower(strings.TrimSpace(r.PathValue("username")))
	if username == "" {
		return "", apperr.BadRequest("username is missing")
	}
	return username, nil
}

func channelError(err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return apperr.BadRequest("Channel does not exist")
	}
	return apperr.Internal("failed to fetch channel", err)
}
