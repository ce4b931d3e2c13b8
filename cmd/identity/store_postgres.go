package identity

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store using PostgreSQL (beauty.users).
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a Postgres-backed identity store.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, OpError{Op: "identity.NewPostgresStore", Kind: ErrInvalidInput, Msg: "nil pool"}
	}
	return &PostgresStore{pool: pool}, nil
}

const userColumns = `
	id, tenant_id, email, email_norm, phone, phone_norm,
	display_name, role, mfa_enabled, created_at
`

func scanUser(row pgx.Row) (User, error) {
	var u User
	var role string
	err := row.Scan(
		&u.ID,
		&u.TenantID,
		&u.Email,
		&u.EmailNorm,
		&u.Phone,
		&u.PhoneNorm,
		&u.DisplayName,
		&role,
		&u.MFAEnabled,
		&u.CreatedAt,
	)
	if err != nil {
		return User{}, err
	}
	u.Role = Role(role)
	return u, nil
}

// CreateUser inserts a new account row.
func (s *PostgresStore) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	const op = "identity.CreateUser"

	if in.Email == nil && in.Phone == nil {
		return User{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "email or phone required"}
	}
	if strings.TrimSpace(in.TenantID) == "" {
		return User{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "tenant_id required"}
	}

	hash, err := HashPassword(in.Password, DefaultArgon2idParams())
	if err != nil {
		return User{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: err.Error()}
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	id, err := NewULID(now)
	if err != nil {
		return User{}, err
	}

	role := in.Role
	if role == "" {
		role = RoleMember
	}

	var emailNorm, phoneNorm *string
	if in.Email != nil {
		v := NormalizeEmail(*in.Email)
		emailNorm = &v
	}
	if in.Phone != nil {
		v := NormalizePhone(*in.Phone)
		phoneNorm = &v
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO beauty.users (
			id, tenant_id, email, email_norm, phone, phone_norm,
			password_hash, display_name, role, mfa_enabled, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, false, $10)
		RETURNING `+userColumns, id, in.TenantID, in.Email, emailNorm, in.Phone, phoneNorm,
		hash, nil, string(role), now)

	u, err := scanUser(row)
	if err != nil {
		if field, ok := uniqueViolationField(err); ok {
			return User{}, ConflictError{Op: op, Field: field}
		}
		return User{}, err
	}
	return u, nil
}

// GetUserByID loads a user row by ID.
func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM beauty.users
		WHERE id = $1
	`, userID)

	u, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, NotFoundError{Op: "identity.GetUserByID", Resource: "user"}
	}
	if err != nil {
		return User{}, err
	}
	return u, nil
}

// GetUserAuthByEmail loads a user and password hash by normalized email.
func (s *PostgresStore) GetUserAuthByEmail(ctx context.Context, email string) (UserAuth, error) {
	return s.getUserAuth(ctx, "email_norm", NormalizeEmail(email))
}

// GetUserAuthByPhone loads a user and password hash by normalized phone.
func (s *PostgresStore) GetUserAuthByPhone(ctx context.Context, phone string) (UserAuth, error) {
	return s.getUserAuth(ctx, "phone_norm", NormalizePhone(phone))
}

func (s *PostgresStore) getUserAuth(ctx context.Context, column, value string) (UserAuth, error) {
	if value == "" {
		return UserAuth{}, NotFoundError{Op: "identity.getUserAuth", Resource: "user"}
	}

	var ua UserAuth
	var role string
	err := s.pool.QueryRow(ctx, `
		SELECT `+userColumns+`, password_hash
		FROM beauty.users
		WHERE `+column+` = $1
	`, value).Scan(
		&ua.User.ID,
		&ua.User.TenantID,
		&ua.User.Email,
		&ua.User.EmailNorm,
		&ua.User.Phone,
		&ua.User.PhoneNorm,
		&ua.User.DisplayName,
		&role,
		&ua.User.MFAEnabled,
		&ua.User.CreatedAt,
		&ua.PasswordHash,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return UserAuth{}, NotFoundError{Op: "identity.getUserAuth", Resource: "user"}
	}
	if err != nil {
		return UserAuth{}, err
	}
	ua.User.Role = Role(role)
	return ua, nil
}

// SetMFAEnabled flips the denormalized MFA flag.
func (s *PostgresStore) SetMFAEnabled(ctx context.Context, userID string, enabled bool) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE beauty.users
		SET mfa_enabled = $2
		WHERE id = $1
	`, userID, enabled)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return NotFoundError{Op: "identity.SetMFAEnabled", Resource: "user"}
	}
	return nil
}

// uniqueViolationField maps a pg unique violation to a stable logical field name.
func uniqueViolationField(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return "", false
	}
	switch {
	case strings.Contains(pgErr.ConstraintName, "email"):
		return "email", true
	case strings.Contains(pgErr.ConstraintName, "phone"):
		return "phone", true
	default:
		return pgErr.ConstraintName, true
	}
}
