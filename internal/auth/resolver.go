package auth

import (
	"context"

	"convene/internal/models"
	"convene/internal/repository"
)

// Resolver maps a verified identity onto a stored member, refreshing the
// provider-owned fields on every connect.
type Resolver struct {
	verifier TokenVerifier
	users    *repository.UserRepository
}

func NewResolver(verifier TokenVerifier, users *repository.UserRepository) *Resolver {
	return &Resolver{verifier: verifier, users: users}
}

// ResolveMember verifies the token and upserts the member row.
func (r *Resolver) ResolveMember(ctx context.Context, token string) (*models.User, error) {
	id, err := r.verifier.Verify(ctx, token)
	if err != nil {
		return nil, err
	}
	return r.users.UpsertByUID(id.UID, id.FirstName, id.LastName, id.Email, id.PhoneNumber)
}
