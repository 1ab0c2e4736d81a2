package auth

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/hongminglow/channel-be/internal/apperr"
	"github.com/hongminglow/channel-be/internal/logger"
	"github.com/hongminglow/channel-be/internal/metrics"
	"github.com/hongminglow/channel-be/internal/models"
	"github.com/hongminglow/channel-be/internal/storage"
)

// Client-facing messages for session failures.
const (
	MsgUnauthorizedRequest = "Unauthorized request"
	MsgInvalidRefreshToken = "Invalid refresh token"
	MsgRefreshExpiredUsed  = "Refresh token is expired or used"
	MsgInvalidAccessToken  = "Invalid access token"
	MsgTokenGeneration     = "Something went wrong while generating access and refresh tokens"
)

// TokenStore is the slice of storage.UserStore the issuer depends on.
type TokenStore interface {
	FindByID(ctx context.Context, id int64) (models.User, error)
	SetRefreshToken(ctx context.Context, id int64, token string) error
	SwapRefreshToken(ctx context.Context, id int64, expected, next string) error
}

// TokenPair bundles a short-lived access token and a long-lived refresh token.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// Issuer mints, rotates and validates session tokens. The live refresh token
// of each user is kept on the user row; the issuer itself holds no state.
type Issuer struct {
	store  TokenStore
	tokens *TokenManager
	log    *logger.Logger
}

// NewIssuer constructs an Issuer.
func NewIssuer(store TokenStore, tokens *TokenManager, log *logger.Logger) *Issuer {
	return &Issuer{store: store, tokens: tokens, log: log.Named("issuer")}
}

// Tokens exposes the underlying manager, e.g. for cookie lifetimes.
func (i *Issuer) Tokens() *TokenManager { return i.tokens }

// Mint issues a new pair for userID and stores the refresh token, replacing any prior one.
func (i *Issuer) Mint(ctx context.Context, userID int64) (TokenPair, error) {
	pair, err := i.sign(userID)
	if err != nil {
		return TokenPair{}, err
	}
	if err := i.store.SetRefreshToken(ctx, userID, pair.RefreshToken); err != nil {
		i.log.WithContext(ctx).Error("store refresh token failed", zap.Int64("user_id", userID), zap.Error(err))
		return TokenPair{}, apperr.Internal(MsgTokenGeneration, err)
	}
	i.issued()
	return pair, nil
}

// Rotate exchanges a still-current refresh token for a new pair. The presented
// token stops working as soon as the call succeeds.
func (i *Issuer) Rotate(ctx context.Context, presented string) (TokenPair, error) {
	if presented == "" {
		metrics.RefreshTotal.WithLabelValues("invalid").Inc()
		return TokenPair{}, apperr.Unauthorized(MsgUnauthorizedRequest)
	}

	claims, err := i.tokens.Parse(RefreshToken, presented)
	if err != nil {
		metrics.RefreshTotal.WithLabelValues("invalid").Inc()
		i.log.WithContext(ctx).Warn("invalid refresh token", zap.Error(err))
		return TokenPair{}, apperr.Wrap(apperr.KindUnauthorized, MsgInvalidRefreshToken, err)
	}
	userID, _ := claims.UserID()
	log := i.log.WithContext(ctx).With(zap.Int64("user_id", userID))

	user, err := i.store.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			metrics.RefreshTotal.WithLabelValues("invalid").Inc()
			return TokenPair{}, apperr.Unauthorized(MsgInvalidRefreshToken)
		}
		metrics.RefreshTotal.WithLabelValues("fail").Inc()
		log.Error("refresh user lookup failed", zap.Error(err))
		return TokenPair{}, apperr.Internal(MsgTokenGeneration, err)
	}
	if user.RefreshToken != presented {
		metrics.RefreshTotal.WithLabelValues("stale").Inc()
		log.Warn("stale refresh token presented")
		return TokenPair{}, apperr.Unauthorized(MsgRefreshExpiredUsed)
	}

	pair, err := i.sign(userID)
	if err != nil {
		metrics.RefreshTotal.WithLabelValues("fail").Inc()
		return TokenPair{}, err
	}
	if err := i.store.SwapRefreshToken(ctx, userID, presented, pair.RefreshToken); err != nil {
		if errors.Is(err, storage.ErrStaleToken) {
			metrics.RefreshTotal.WithLabelValues("stale").Inc()
			log.Warn("refresh token rotated concurrently")
			return TokenPair{}, apperr.Unauthorized(MsgRefreshExpiredUsed)
		}
		metrics.RefreshTotal.WithLabelValues("fail").Inc()
		log.Error("swap refresh token failed", zap.Error(err))
		return TokenPair{}, apperr.Internal(MsgTokenGeneration, err)
	}

	i.issued()
	metrics.RefreshTotal.WithLabelValues("ok").Inc()
	return pair, nil
}

// Validate checks an access token without touching the store and returns its user id.
func (i *Issuer) Validate(accessToken string) (int64, error) {
	if accessToken == "" {
		return 0, apperr.Unauthorized(MsgUnauthorizedRequest)
	}
	claims, err := i.tokens.Parse(AccessToken, accessToken)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindUnauthorized, MsgInvalidAccessToken, err)
	}
	userID, _ := claims.UserID()
	return userID, nil
}

// Revoke clears the stored refresh token so outstanding refresh tokens stop working.
func (i *Issuer) Revoke(ctx context.Context, userID int64) error {
	if err := i.store.SetRefreshToken(ctx, userID, ""); err != nil && !errors.Is(err, storage.ErrNotFound) {
		i.log.WithContext(ctx).Error("clear refresh token failed", zap.Int64("user_id", userID), zap.Error(err))
		return apperr.Internal("Failed to log out", err)
	}
	return nil
}

func (i *Issuer) sign(userID int64) (TokenPair, error) {
	access, err := i.tokens.Generate(AccessToken, userID)
	if err != nil {
		return TokenPair{}, apperr.Internal(MsgTokenGeneration, err)
	}
	refresh, err := i.tokens.Generate(RefreshToken, userID)
	if err != nil {
		return TokenPair{}, apperr.Internal(MsgTokenGeneration, err)
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (i *Issuer) issued() {
	metrics.TokensIssued.WithLabelValues(string(AccessToken)).Inc()
	metrics.TokensIssued.WithLabelValues(string(RefreshToken)).Inc()
}
