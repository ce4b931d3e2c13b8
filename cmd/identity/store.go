package identity

import (
	"context"
	"time"
)

// Role is the account role used by the MFA policy gate and admin surfaces.
type Role string

const (
	RoleMember     Role = "member"
	RoleStaff      Role = "staff"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

// User is the canonical security principal. Tenant resolution happens
// upstream; TenantID is carried so sessions and realtime groups can be
// scoped without another lookup.
type User struct {
	ID       string
	TenantID string

	Email     *string
	EmailNorm *string
	Phone     *string
	PhoneNorm *string

	DisplayName *string
	Role        Role

	MFAEnabled bool

	CreatedAt time.Time
}

// UserAuth couples a user with its password hash for the login path.
// The hash never leaves this struct.
type UserAuth struct {
	User         User
	PasswordHash string
}

// CreateUserInput describes an account registration.
// At least one of Email or Phone must be provided.
type CreateUserInput struct {
	TenantID string
	Email    *string
	Phone    *string
	Password string
	Role     Role
	Now      time.Time
}

// Store is the identity persistence boundary.
type Store interface {
	CreateUser(ctx context.Context, in CreateUserInput) (User, error)

	GetUserByID(ctx context.Context, userID string) (User, error)

	// GetUserAuthByEmail/Phone load the user together with its password
	// hash. Lookups are against the normalized column.
	GetUserAuthByEmail(ctx context.Context, email string) (UserAuth, error)
	GetUserAuthByPhone(ctx context.Context, phone string) (UserAuth, error)

	// SetMFAEnabled flips the denormalized MFA flag used by the login path.
	SetMFAEnabled(ctx context.Context, userID string, enabled bool) error
}
