package storage

import (
	"context"
	"errors"

	"github.com/hongminglow/channel-be/internal/models"
)

// ErrNotFound indicates a record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrAlreadyExists indicates a uniqueness conflict.
var ErrAlreadyExists = errors.New("record already exists")

// ErrStaleToken indicates the stored refresh token no longer matches the expected value.
var ErrStaleToken = errors.New("refresh token does not match")

// ErrSelfSubscription indicates a user tried to subscribe to their own channel.
var ErrSelfSubscription = errors.New("cannot subscribe to own channel")

// UserStore captures persistence operations needed by handlers and the token issuer.
type UserStore interface {
	CreateUser(ctx context.Context, user models.User) (models.User, error)
	FindByID(ctx context.Context, id int64) (models.User, error)
	// FindByUsernameOrEmail matches on whichever of username or email is non-empty.
	FindByUsernameOrEmail(ctx context.Context, username, email string) (models.User, error)
	// UpdateUser applies the non-nil fields of update in a single statement and returns the new row.
	UpdateUser(ctx context.Context, id int64, update models.UserUpdate) (models.User, error)

	// SetRefreshToken overwrites the stored refresh token; an empty token clears it.
	SetRefreshToken(ctx context.Context, id int64, token string) error
	// SwapRefreshToken replaces expected with next only if expected is still stored.
	// It returns ErrStaleToken when the stored value differs.
	SwapRefreshToken(ctx context.Context, id int64, expected, next string) error

	ChannelProfile(ctx context.Context, username string, viewerID int64) (models.ChannelProfile, error)
	// ToggleSubscription subscribes or unsubscribes and reports the resulting state.
	ToggleSubscription(ctx context.Context, subscriberID, channelID int64) (bool, error)

	Ping(ctx context.Context) error
	Close()
}
