package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ahfmawlrl/sns-solution/pkg/models"
)

// UsersForClient returns active users assigned to a client holding one of
// the given roles. Used to pick notification recipients.
func (s *Store) UsersForClient(ctx context.Context, clientID uuid.UUID, roles ...models.Role) ([]uuid.UUID, error) {
	roleNames := make([]string, len(roles))
	for i, r := range roles {
		roleNames[i] = string(r)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM users
		WHERE active AND client_id = $1 AND role = ANY($2)
	`, clientID, pq.Array(roleNames))
	if err != nil {
		return nil, fmt.Errorf("query client users: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// AdminUserIDs returns all active admin users. Used for administrative
// warnings (quota, exhausted retries).
func (s *Store) AdminUserIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM users WHERE active AND role = 'admin'
	`)
	if err != nil {
		return nil, fmt.Errorf("query admins: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan admin id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
