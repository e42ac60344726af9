package auth

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/campushive/backend/internal/models"
)

// Identity is a resolved caller: who they are and what role they hold.
type Identity struct {
	UserID uuid.UUID   `json:"user_id"`
	Email  string      `json:"email"`
	Name   string      `json:"name"`
	Role   models.Role `json:"role"`
}

// UserLookup loads a user record by ID. Implemented by Repository.
type UserLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// Authority maps a bearer credential to an Identity. The token carries
// the claims; when the user row is reachable it is the source of truth
// for role and name, so a demoted user cannot keep a stale role for the
// token's whole lifetime.
type Authority struct {
	jwt    *JWTService
	users  UserLookup
	logger *zap.Logger
}

// NewAuthority creates a role authority backed by JWT validation plus a
// user lookup.
func NewAuthority(jwt *JWTService, users UserLookup, logger *zap.Logger) *Authority {
	return &Authority{jwt: jwt, users: users, logger: logger}
}

// Resolve validates the credential and returns the caller's identity.
// Returns ErrInvalidToken when the credential does not verify.
func (a *Authority) Resolve(ctx context.Context, credential string) (*Identity, error) {
	claims, err := a.jwt.Validate(credential)
	if err != nil {
		return nil, err
	}
	id := &Identity{
		UserID: claims.UserID,
		Email:  claims.Email,
		Name:   claims.Name,
		Role:   claims.Role,
	}
	if a.users != nil {
		u, err := a.users.GetByID(ctx, claims.UserID)
		if err != nil {
			a.logger.Warn("role lookup failed, using token claims",
				zap.String("user_id", claims.UserID.String()), zap.Error(err))
			return id, nil
		}
		if u != nil {
			id.Email = u.Email
			id.Name = u.FullName
			id.Role = u.Role
		}
	}
	if !id.Role.Valid() {
		id.Role = models.RoleStudent
	}
	return id, nil
}
