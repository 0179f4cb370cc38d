package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"
)

// Membership resolves private-quiz access through the groups linked to a quiz.
type Membership struct {
	pool *pgxpool.Pool
}

func NewMembership(pool *pgxpool.Pool) *Membership {
	return &Membership{pool: pool}
}

func (m *Membership) IsMember(ctx context.Context, quizID, userID string) (bool, error) {
	var ok bool
	err := m.pool.QueryRow(ctx, `
SELECT EXISTS (
    SELECT 1 FROM quiz_groups qg
    JOIN group_members gm ON gm.group_id = qg.group_id
    WHERE qg.quiz_id = $1 AND gm.user_id = $2
)`, quizID, userID).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("check membership: %w", err)
	}
	return ok, nil
}

// AddMember links userID to groupID and groupID to quizID.
func (m *Membership) AddMember(ctx context.Context, quizID, groupID, userID string) error {
	_, err := m.pool.Exec(ctx, `
WITH link AS (
    INSERT INTO quiz_groups (quiz_id, group_id) VALUES ($1, $2)
    ON CONFLICT DO NOTHING
)
INSERT INTO group_members (group_id, user_id) VALUES ($2, $3)
ON CONFLICT DO NOTHING`, quizID, groupID, userID)
	if err != nil {
		return fmt.Errorf("add member: %w", err)
	}
	return nil
}
