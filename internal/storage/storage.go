package storage

import (
	"blog_auth/internal/models"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

const (
	usersTable    = "users"
	sessionsTable = "sessions"

	uniqueViolation = "23505"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrEmailTaken = errors.New("email already taken")
)

type UserStorage interface {
	// CreateUser returns ErrEmailTaken when the email is already stored.
	CreateUser(ctx context.Context, user models.User) (models.User, error)
	GetUserByID(ctx context.Context, userID uuid.UUID) (models.User, error)
	GetUserByEmail(ctx context.Context, email string) (models.User, error)
}

type SessionStorage interface {
	CreateSession(ctx context.Context, userID uuid.UUID, expiresAt time.Time) (models.Session, error)
	GetSessionByID(ctx context.Context, sessionID uuid.UUID) (models.Session, error)
	// ExtendSession moves expiry forward. It never shortens a session and
	// returns ErrNotFound if the session is absent.
	ExtendSession(ctx context.Context, sessionID uuid.UUID, expiresAt time.Time) error
	// DeleteSession is a no-op for an absent session.
	DeleteSession(ctx context.Context, sessionID uuid.UUID) error
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}

type Storage interface {
	UserStorage
	SessionStorage

	Close()
}

var (
	_ Storage = (*PostgresStorage)(nil)
	_ Storage = (*MemoryStorage)(nil)
)

type PostgresStorage struct {
	db *pgxpool.Pool
}

func NewPostgresStorage(ctx context.Context, DbURL string) (*PostgresStorage, error) {
	const op = "storage.NewPostgresStorage"

	conn, err := pgxpool.Connect(ctx, DbURL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &PostgresStorage{
		db: conn,
	}, nil
}

func (p *PostgresStorage) CreateUser(ctx context.Context, user models.User) (models.User, error) {
	const op = "storage.CreateUser"

	id, err := uuid.NewV4()
	if err != nil {
		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	query := fmt.Sprintf(`INSERT INTO %s(id, name, email, password_hash, profile_picture)
	VALUES ($1, $2, $3, $4, $5) RETURNING id, created_at;`, usersTable)

	err = p.db.QueryRow(ctx, query, id, user.Name, user.Email, user.PasswordHash, user.ProfilePicture).
		Scan(&user.ID, &user.CreatedAt)
	if isUniqueViolation(err) {
		return models.User{}, fmt.Errorf("%s: %w", op, ErrEmailTaken)
	}
	if err != nil {
		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func (p *PostgresStorage) GetUserByID(ctx context.Context, userID uuid.UUID) (models.User, error) {
	const op = "storage.GetUserByID"

	query := fmt.Sprintf(`SELECT id, name, email, password_hash, profile_picture, created_at
	FROM %s WHERE id=$1;`, usersTable)

	user, err := scanUser(p.db.QueryRow(ctx, query, userID))
	if err != nil {
		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

func (p *PostgresStorage) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	const op = "storage.GetUserByEmail"

	query := fmt.Sprintf(`SELECT id, name, email, password_hash, profile_picture, created_at
	FROM %s WHERE email=$1;`, usersTable)

	user, err := scanUser(p.db.QueryRow(ctx, query, email))
	if err != nil {
		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

func scanUser(row pgx.Row) (models.User, error) {
	var user models.User

	err := row.Scan(&user.ID, &user.Name, &user.Email, &user.PasswordHash, &user.ProfilePicture, &user.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.User{}, ErrNotFound
	}

	return user, err
}

func (p *PostgresStorage) CreateSession(ctx context.Context, userID uuid.UUID, expiresAt time.Time) (models.Session, error) {
	const op = "storage.CreateSession"

	id, err := uuid.NewV4()
	if err != nil {
		return models.Session{}, fmt.Errorf("%s: %w", op, err)
	}

	session := models.Session{UserID: userID, ExpiresAt: expiresAt}
	query := fmt.Sprintf(`INSERT INTO %s(id, user_id, expires_at)
	VALUES ($1, $2, $3) RETURNING id, created_at;`, sessionsTable)

	if err := p.db.QueryRow(ctx, query, id, userID, expiresAt).Scan(&session.ID, &session.CreatedAt); err != nil {
		return models.Session{}, fmt.Errorf("%s: %w", op, err)
	}

	return session, nil
}

func (p *PostgresStorage) GetSessionByID(ctx context.Context, sessionID uuid.UUID) (models.Session, error) {
	const op = "storage.GetSessionByID"

	var session models.Session
	query := fmt.Sprintf("SELECT id, user_id, expires_at, created_at FROM %s WHERE id=$1;", sessionsTable)

	err := p.db.QueryRow(ctx, query, sessionID).Scan(&session.ID, &session.UserID, &session.ExpiresAt, &session.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Session{}, fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if err != nil {
		return models.Session{}, fmt.Errorf("%s: %w", op, err)
	}

	return session, nil
}

func (p *PostgresStorage) ExtendSession(ctx context.Context, sessionID uuid.UUID, expiresAt time.Time) error {
	const op = "storage.ExtendSession"

	query := fmt.Sprintf("UPDATE %s SET expires_at = GREATEST(expires_at, $2) WHERE id = $1", sessionsTable)

	tag, err := p.db.Exec(ctx, query, sessionID, expiresAt)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}

	return nil
}

func (p *PostgresStorage) DeleteSession(ctx context.Context, sessionID uuid.UUID) error {
	const op = "storage.DeleteSession"

	query := fmt.Sprintf("DELETE FROM %s WHERE id = $1", sessionsTable)
	if _, err := p.db.Exec(ctx, query, sessionID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (p *PostgresStorage) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	const op = "storage.DeleteExpiredSessions"

	query := fmt.Sprintf("DELETE FROM %s WHERE expires_at <= $1", sessionsTable)

	tag, err := p.db.Exec(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return tag.RowsAffected(), nil
}

func (p *PostgresStorage) Close() {
	p.db.Close()
}
