package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/grouplog-io/grouplog-engine/pkg/database"
)

// MembershipRepository answers whether a user belongs to a group.
type MembershipRepository interface {
	IsMember(ctx context.Context, groupID, userID string) (bool, error)
}

type membershipRepository struct {
	db *database.DB
}

// NewMembershipRepository creates a membership repository backed by the
// engine store.
func NewMembershipRepository(db *database.DB) MembershipRepository {
	return &membershipRepository{db: db}
}

func (r *membershipRepository) IsMember(ctx context.Context, groupID, userID string) (bool, error) {
	var one int
	err := r.db.QueryRow(ctx,
		`SELECT 1 FROM group_members WHERE group_id = $1 AND user_id = $2`,
		groupID, userID).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check group membership: %w", err)
	}
	return true, nil
}
