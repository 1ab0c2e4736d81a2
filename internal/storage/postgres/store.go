package postgres

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/hongminglow/channel-be/internal/models"
	"github.com/hongminglow/channel-be/internal/storage"
	"github.com/hongminglow/channel-be/internal/storage/migrations"
)

// Ensure Store satisfies the storage.UserStore interface at compile time.
var _ storage.UserStore = (*Store)(nil)

const userColumns = `id, username, email, full_name, avatar, cover_image, password_hash, refresh_token, created_at, updated_at`

// Store provides Postgres-backed persistence for users and subscriptions.
type Store struct {
	pool *pgxpool.Pool
}

// NewUserStore creates a new Store and runs migrations.
func NewUserStore(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	s := &Store{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return s, nil
}

// Close releases database resources.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) migrate(ctx context.Context) error {
	fsys, err := fs.Sub(migrations.Postgres, "postgres")
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}
	db := stdlib.OpenDBFromPool(s.pool)
	defer db.Close()

	provider, err := goose.NewProvider(goose.DialectPostgres, db, fsys)
	if err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// CreateUser inserts a new user row.
func (s *Store) CreateUser(ctx context.Context, user models.User) (models.User, error) {
	query := `
		INSERT INTO users (username, email, full_name, avatar, cover_image, password_hash)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + userColumns
	row := s.pool.QueryRow(ctx, query, user.Username, user.Email, user.FullName, user.Avatar, user.CoverImage, user.PasswordHash)
	created, err := scanUser(row)
	if err != nil {
		if isUniqueViolation(err) {
			return models.User{}, storage.ErrAlreadyExists
		}
		return models.User{}, err
	}
	return created, nil
}

// FindByID fetches a user by primary key.
func (s *Store) FindByID(ctx context.Context, id int64) (models.User, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

// FindByUsernameOrEmail fetches the first user matching either identifier.
func (s *Store) FindByUsernameOrEmail(ctx context.Context, username, email string) (models.User, error) {
	if username == "" && email == "" {
		return models.User{}, storage.ErrNotFound
	}
	query := `
	SELECT ` + userColumns + `
	FROM users
	WHERE ($1 <> '' AND username = $1) OR ($2 <> '' AND email = $2)
	ORDER BY id
	LIMIT 1;
	`
	row := s.pool.QueryRow(ctx, query, username, email)
	return scanUser(row)
}

// UpdateUser applies the non-nil fields of update and returns the updated row.
func (s *Store) UpdateUser(ctx context.Context, id int64, update models.UserUpdate) (models.User, error) {
	if update.Empty() {
		return s.FindByID(ctx, id)
	}

	sets := make([]string, 0, 6)
	args := make([]any, 0, 6)
	add := func(column string, value *string) {
		if value == nil {
			return
		}
		args = append(args, *value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	add("full_name", update.FullName)
	add("email", update.Email)
	add("avatar", update.Avatar)
	add("cover_image", update.CoverImage)
	add("password_hash", update.PasswordHash)
	sets = append(sets, "updated_at = NOW()")
	args = append(args, id)

	query := fmt.Sprintf(`UPDATE users SET %s WHERE id = $%d RETURNING %s`, strings.Join(sets, ", "), len(args), userColumns)
	updated, err := scanUser(s.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if isUniqueViolation(err) {
			return models.User{}, storage.ErrAlreadyExists
		}
		return models.User{}, err
	}
	return updated, nil
}

// SetRefreshToken overwrites the stored refresh token; an empty token clears it.
func (s *Store) SetRefreshToken(ctx context.Context, id int64, token string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE users SET refresh_token = NULLIF($2, ''), updated_at = NOW() WHERE id = $1`, id, token)
	if err != nil {
		return fmt.Errorf("set refresh token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// SwapRefreshToken replaces expected with next only while expected is still stored.
func (s *Store) SwapRefreshToken(ctx context.Context, id int64, expected, next string) error {
	if expected == "" {
		return storage.ErrStaleToken
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE users SET refresh_token = $3, updated_at = NOW()
		WHERE id = $1 AND refresh_token = $2`, id, expected, next)
	if err != nil {
		return fmt.Errorf("swap refresh token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrStaleToken
	}
	return nil
}

// ChannelProfile aggregates subscriber counts for the channel owned by username.
func (s *Store) ChannelProfile(ctx context.Context, username string, viewerID int64) (models.ChannelProfile, error) {
	const query = `
	SELECT u.id, u.username, u.full_name, u.email, u.avatar, u.cover_image,
		(SELECT COUNT(*) FROM subscriptions s WHERE s.channel_id = u.id),
		(SELECT COUNT(*) FROM subscriptions s WHERE s.subscriber_id = u.id),
		EXISTS (SELECT 1 FROM subscriptions s WHERE s.channel_id = u.id AND s.subscriber_id = $2)
	FROM users u
	WHERE u.username = $1;
	`
	var p models.ChannelProfile
	err := s.pool.QueryRow(ctx, query, username, viewerID).Scan(
		&p.ID, &p.Username, &p.FullName, &p.Email, &p.Avatar, &p.CoverImage,
		&p.SubscribersCount, &p.ChannelSubscribedTo, &p.IsSubscribed,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.ChannelProfile{}, storage.ErrNotFound
		}
		return models.ChannelProfile{}, err
	}
	return p, nil
}

// ToggleSubscription flips the subscription of subscriberID to channelID.
func (s *Store) ToggleSubscription(ctx context.Context, subscriberID, channelID int64) (bool, error) {
	if subscriberID == channelID {
		return false, storage.ErrSelfSubscription
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	tag, err := tx.Exec(ctx, `DELETE FROM subscriptions WHERE subscriber_id = $1 AND channel_id = $2`, subscriberID, channelID)
	if err != nil {
		return false, fmt.Errorf("delete subscription: %w", err)
	}
	subscribed := false
	if tag.RowsAffected() == 0 {
		if _, err := tx.Exec(ctx, `INSERT INTO subscriptions (subscriber_id, channel_id) VALUES ($1, $2)`, subscriberID, channelID); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23503" {
				return false, storage.ErrNotFound
			}
			return false, fmt.Errorf("insert subscription: %w", err)
		}
		subscribed = true
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit tx: %w", err)
	}
	return subscribed, nil
}

func scanUser(row pgx.Row) (models.User, error) {
	var user models.User
	var refresh *string
	if err := row.Scan(&user.ID, &user.Username, &user.Email, &user.FullName, &user.Avatar, &user.CoverImage,
		&user.PasswordHash, &refresh, &user.CreatedAt, &user.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, storage.ErrNotFound
		}
		return models.User{}, err
	}
	if refresh != nil {
		user.RefreshToken = *refresh
	}
	return user, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
