package identity

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for dev mode and tests.
type MemoryStore struct {
	mu     sync.Mutex
	users  map[string]User
	hashes map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:  make(map[string]User),
		hashes: make(map[string]string),
	}
}

func (s *MemoryStore) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
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

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if emailNorm != nil && u.EmailNorm != nil && *u.EmailNorm == *emailNorm {
			return User{}, ConflictError{Op: op, Field: "email"}
		}
		if phoneNorm != nil && u.PhoneNorm != nil && *u.PhoneNorm == *phoneNorm {
			return User{}, ConflictError{Op: op, Field: "phone"}
		}
	}

	u := User{
		ID:        id,
		TenantID:  in.TenantID,
		Email:     in.Email,
		EmailNorm: emailNorm,
		Phone:     in.Phone,
		PhoneNorm: phoneNorm,
		Role:      role,
		CreatedAt: now,
	}
	s.users[id] = u
	s.hashes[id] = hash
	return u, nil
}

func (s *MemoryStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	const op = "identity.GetUserByID"

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return User{}, NotFoundError{Op: op, Resource: "user"}
	}
	return u, nil
}

func (s *MemoryStore) GetUserAuthByEmail(ctx context.Context, email string) (UserAuth, error) {
	const op = "identity.GetUserAuthByEmail"

	norm := NormalizeEmail(email)
	if norm == "" {
		return UserAuth{}, NotFoundError{Op: op, Resource: "user"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.EmailNorm != nil && *u.EmailNorm == norm {
			return UserAuth{User: u, PasswordHash: s.hashes[u.ID]}, nil
		}
	}
	return UserAuth{}, NotFoundError{Op: op, Resource: "user"}
}

func (s *MemoryStore) GetUserAuthByPhone(ctx context.Context, phone string) (UserAuth, error) {
	const op = "identity.GetUserAuthByPhone"

	norm := NormalizePhone(phone)
	if norm == "" {
		return UserAuth{}, NotFoundError{Op: op, Resource: "user"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.PhoneNorm != nil && *u.PhoneNorm == norm {
			return UserAuth{User: u, PasswordHash: s.hashes[u.ID]}, nil
		}
	}
	return UserAuth{}, NotFoundError{Op: op, Resource: "user"}
}

func (s *MemoryStore) SetMFAEnabled(ctx context.Context, userID string, enabled bool) error {
	const op = "identity.SetMFAEnabled"

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return NotFoundError{Op: op, Resource: "user"}
	}
	u.MFAEnabled = enabled
	s.users[userID] = u
	return nil
}
