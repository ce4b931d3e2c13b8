//go:build integration

package identity

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Integration tests are enabled when BEAUTY_DATABASE_URL is set.
// They apply the users DDL themselves, so a bare database works.

const usersSchemaSQL = `
CREATE SCHEMA IF NOT EXISTS beauty;

CREATE TABLE IF NOT EXISTS beauty.users (
	id            TEXT PRIMARY KEY,
	tenant_id     TEXT NOT NULL,
	email         TEXT,
	email_norm    TEXT,
	phone         TEXT,
	phone_norm    TEXT,
	password_hash TEXT NOT NULL,
	display_name  TEXT,
	role          TEXT NOT NULL,
	mfa_enabled   BOOLEAN NOT NULL DEFAULT FALSE,
	created_at    TIMESTAMPTZ NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS users_email_norm_key
	ON beauty.users (email_norm) WHERE email_norm IS NOT NULL AND email_norm <> '';

CREATE UNIQUE INDEX IF NOT EXISTS users_phone_norm_key
	ON beauty.users (phone_norm) WHERE phone_norm IS NOT NULL AND phone_norm <> '';
`

func mustIntegrationStore(t *testing.T) (*PostgresStore, *pgxpool.Pool) {
	t.Helper()

	dbURL := os.Getenv("BEAUTY_DATABASE_URL")
	if dbURL == "" {
		t.Skip("BEAUTY_DATABASE_URL is not set; skipping Postgres integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("pgxpool.New: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := pool.Ping(ctx); err != nil {
		t.Skipf("Postgres unreachable: %v", err)
	}
	if _, err := pool.Exec(ctx, usersSchemaSQL); err != nil {
		t.Fatalf("apply schema: %v", err)
	}

	store, err := NewPostgresStore(pool)
	if err != nil {
		t.Fatalf("NewPostgresStore: %v", err)
	}
	return store, pool
}

func cleanupTenant(t *testing.T, pool *pgxpool.Pool, tenantID string) {
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if _, err := pool.Exec(ctx, `DELETE FROM beauty.users WHERE tenant_id = $1`, tenantID); err != nil {
			t.Errorf("cleanup users: %v", err)
		}
	})
}

func uniqueTenant(t *testing.T) string {
	t.Helper()
	id, err := NewULID(time.Now().UTC())
	if err != nil {
		t.Fatalf("NewULID: %v", err)
	}
	return "it-" + id
}

func TestPostgres_CreateUser_EmailConflictCaseInsensitive(t *testing.T) {
	t.Parallel()

	store, pool := mustIntegrationStore(t)
	ctx := context.Background()

	tenant := uniqueTenant(t)
	cleanupTenant(t, pool, tenant)
	email1 := tenant + "-amira@Example.com"
	email2 := tenant + "-AMIRA@example.COM"

	if _, err := store.CreateUser(ctx, CreateUserInput{
		TenantID: tenant,
		Email:    &email1,
		Password: "correct horse battery",
		Now:      time.Now().UTC(),
	}); err != nil {
		t.Fatalf("create user 1: %v", err)
	}

	_, err := store.CreateUser(ctx, CreateUserInput{
		TenantID: tenant,
		Email:    &email2,
		Password: "another password 42",
		Now:      time.Now().UTC(),
	})
	if !IsConflict(err) {
		t.Fatalf("expected conflict error, got: %v", err)
	}
}

func TestPostgres_AuthLookupByFormattedPhone(t *testing.T) {
	t.Parallel()

	store, pool := mustIntegrationStore(t)
	ctx := context.Background()

	tenant := uniqueTenant(t)
	cleanupTenant(t, pool, tenant)

	// Keep the number unique across runs but well-formed.
	digits := fmt.Sprintf("+48%09d", time.Now().UnixNano()%1_000_000_000)

	u, err := store.CreateUser(ctx, CreateUserInput{
		TenantID: tenant,
		Phone:    &digits,
		Password: "correct horse battery",
		Now:      time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	ua, err := store.GetUserAuthByPhone(ctx, digits)
	if err != nil {
		t.Fatalf("GetUserAuthByPhone: %v", err)
	}
	if ua.User.ID != u.ID || ua.PasswordHash == "" {
		t.Fatalf("unexpected auth row: %+v", ua.User)
	}

	ok, err := VerifyPassword("correct horse battery", ua.PasswordHash)
	if err != nil || !ok {
		t.Fatalf("stored hash does not verify: ok=%v err=%v", ok, err)
	}

	if _, err := store.GetUserAuthByPhone(ctx, "not-a-number"); !IsNotFound(err) {
		t.Fatalf("expected not found for unparseable phone, got %v", err)
	}
}

func TestPostgres_SetMFAEnabledPersists(t *testing.T) {
	t.Parallel()

	store, pool := mustIntegrationStore(t)
	ctx := context.Background()

	tenant := uniqueTenant(t)
	cleanupTenant(t, pool, tenant)
	email := tenant + "-mfa@example.com"

	u, err := store.CreateUser(ctx, CreateUserInput{
		TenantID: tenant,
		Email:    &email,
		Password: "correct horse battery",
		Role:     RoleAdmin,
		Now:      time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	if err := store.SetMFAEnabled(ctx, u.ID, true); err != nil {
		t.Fatalf("SetMFAEnabled: %v", err)
	}

	got, err := store.GetUserByID(ctx, u.ID)
	if err != nil {
		t.Fatalf("GetUserByID: %v", err)
	}
	if !got.MFAEnabled || got.Role != RoleAdmin {
		t.Fatalf("unexpected user after enable: %+v", got)
	}

	if err := store.SetMFAEnabled(ctx, "no-such-id", true); !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}
