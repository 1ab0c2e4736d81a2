// Package sqlite is a file-backed UserStore for local runs and tests. It
// mirrors the Postgres store statement for statement.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/pressly/goose/v3"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/hongminglow/channel-be/internal/models"
	"github.com/hongminglow/channel-be/internal/storage"
	"github.com/hongminglow/channel-be/internal/storage/migrations"
)

var _ storage.UserStore = (*Store)(nil)

// Scheme prefixes DATABASE_URL values that select this store.
const Scheme = "sqlite:"

const userColumns = `id, username, email, full_name, avatar, cover_image, password_hash, refresh_token, created_at, updated_at`

// Store provides SQLite-backed persistence for users and subscriptions.
type Store struct {
	db *sql.DB
}

// NewUserStore opens the database at path (with or without the sqlite: prefix) and runs migrations.
func NewUserStore(ctx context.Context, path string) (*Store, error) {
	path = strings.TrimPrefix(path, Scheme)
	if path == "" {
		return nil, errors.New("sqlite path is empty")
	}
	dsn := path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection serializes writers and keeps :memory: databases coherent.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases database resources.
func (s *Store) Close() {
	if s.db != nil {
		s.db.Close()
	}
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) migrate(ctx context.Context) error {
	fsys, err := fs.Sub(migrations.SQLite, "sqlite")
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, s.db, fsys)
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
	now := time.Now().UTC()
	query := `
		INSERT INTO users (username, email, full_name, avatar, cover_image, password_hash, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING ` + userColumns
	row := s.db.QueryRowContext(ctx, query, user.Username, user.Email, user.FullName, user.Avatar, user.CoverImage, user.PasswordHash, now, now)
	created, err := scanUser(row)
	if err != nil {
		if isConstraint(err, sqlite3.SQLITE_CONSTRAINT_UNIQUE) {
			return models.User{}, storage.ErrAlreadyExists
		}
		return models.User{}, err
	}
	return created, nil
}

// FindByID fetches a user by primary key.
func (s *Store) FindByID(ctx context.Context, id int64) (models.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
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
	WHERE (?1 <> '' AND username = ?1) OR (?2 <> '' AND email = ?2)
	ORDER BY id
	LIMIT 1`
	return scanUser(s.db.QueryRowContext(ctx, query, username, email))
}

// UpdateUser applies the non-nil fields of update and returns the updated row.
func (s *Store) UpdateUser(ctx context.Context, id int64, update models.UserUpdate) (models.User, error) {
	if update.Empty() {
		return s.FindByID(ctx, id)
	}

	sets := make([]string, 0, 6)
	args := make([]any, 0, 7)
	add := func(column string, value *string) {
		if value == nil {
			return
		}
		sets = append(sets, column+" = ?")
		args = append(args, *value)
	}
	add("full_name", update.FullName)
	add("email", update.Email)
	add("avatar", update.Avatar)
	add("cover_image", update.CoverImage)
	add("password_hash", update.PasswordHash)
	sets = append(sets, "updated_at = ?")
	args = append(args, time.Now().UTC(), id)

	query := fmt.Sprintf(`UPDATE users SET %s WHERE id = ? RETURNING %s`, strings.Join(sets, ", "), userColumns)
	updated, err := scanUser(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if isConstraint(err, sqlite3.SQLITE_CONSTRAINT_UNIQUE) {
			return models.User{}, storage.ErrAlreadyExists
		}
		return models.User{}, err
	}
	return updated, nil
}

// SetRefreshToken overwrites the stored refresh token; an empty token clears it.
func (s *Store) SetRefreshToken(ctx context.Context, id int64, token string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET refresh_token = NULLIF(?, ''), updated_at = ? WHERE id = ?`, token, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("set refresh token: %w", err)
	}
	return requireRow(res, storage.ErrNotFound)
}

// SwapRefreshToken replaces expected with next only while expected is still stored.
func (s *Store) SwapRefreshToken(ctx context.Context, id int64, expected, next string) error {
	if expected == "" {
		return storage.ErrStaleToken
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET refresh_token = ?, updated_at = ?
		WHERE id = ? AND refresh_token = ?`, next, time.Now().UTC(), id, expected)
	if err != nil {
		return fmt.Errorf("swap refresh token: %w", err)
	}
	return requireRow(res, storage.ErrStaleToken)
}

// ChannelProfile aggregates subscriber counts for the channel owned by username.
func (s *Store) ChannelProfile(ctx context.Context, username string, viewerID int64) (models.ChannelProfile, error) {
	const query = `
	SELECT u.id, u.username, u.full_name, u.email, u.avatar, u.cover_image,
		(SELECT COUNT(*) FROM subscriptions s WHERE s.channel_id = u.id),
		(SELECT COUNT(*) FROM subscriptions s WHERE s.subscriber_id = u.id),
		EXISTS (SELECT 1 FROM subscriptions s WHERE s.channel_id = u.id AND s.subscriber_id = ?2)
	FROM users u
	WHERE u.username = ?1`
	var p models.ChannelProfile
	err := s.db.QueryRowContext(ctx, query, username, viewerID).Scan(
		&p.ID, &p.Username, &p.FullName, &p.Email, &p.Avatar, &p.CoverImage,
		&p.SubscribersCount, &p.ChannelSubscribedTo, &p.IsSubscribed,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
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
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx, `DELETE FROM subscriptions WHERE subscriber_id = ? AND channel_id = ?`, subscriberID, channelID)
	if err != nil {
		return false, fmt.Errorf("delete subscription: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	subscribed := false
	if removed == 0 {
		_, err := tx.ExecContext(ctx, `INSERT INTO subscriptions (subscriber_id, channel_id, created_at) VALUES (?, ?, ?)`,
			subscriberID, channelID, time.Now().UTC())
		if err != nil {
			if isConstraint(err, sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY) {
				return false, storage.ErrNotFound
			}
			return false, fmt.Errorf("insert subscription: %w", err)
		}
		subscribed = true
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit tx: %w", err)
	}
	return subscribed, nil
}

func scanUser(row *sql.Row) (models.User, error) {
	var user models.User
	var refresh sql.NullString
	if err := row.Scan(&user.ID, &user.Username, &user.Email, &user.FullName, &user.Avatar, &user.CoverImage,
		&user.PasswordHash, &refresh, &user.CreatedAt, &user.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.User{}, storage.ErrNotFound
		}
		return models.User{}, err
	}
	user.RefreshToken = refresh.String
	return user, nil
}

func requireRow(res sql.Result, none error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return none
	}
	return nil
}

func isConstraint(err error, code int) bool {
	var sqErr *sqlite.Error
	if !errors.As(err, &sqErr) {
		return false
	}
	if sqErr.Code() == code {
		return true
	}
	// Extended result codes may be off; fall back to the primary code and message.
	if sqErr.Code()&0xff != sqlite3.SQLITE_CONSTRAINT {
		return false
	}
	msg := sqErr.Error()
	switch code {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE:
		return strings.Contains(msg, "UNIQUE")
	case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
		return strings.Contains(msg, "FOREIGN KEY")
	}
	return false
}
