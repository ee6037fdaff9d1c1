package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/kilohq/kilo/internal/kiloerr"
)

type pgDismissalStore struct {
	db *sql.DB
}

func (s *pgDismissalStore) Record(ctx context.Context, botID, proposalName string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO proposal_dismissals (bot_id, proposal_name, dismissed_at)
		 VALUES ($1,$2,$3)`,
		botID, proposalName, at)
	if err != nil {
		return kiloerr.Wrap(err, kiloerr.CodeDatabase, "record dismissal")
	}
	return nil
}

func (s *pgDismissalStore) RecentNames(ctx context.Context, botID string, since time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT proposal_name FROM proposal_dismissals
		 WHERE bot_id = $1 AND dismissed_at >= $2`, botID, since)
	if err != nil {
		return nil, kiloerr.Wrap(err, kiloerr.CodeDatabase, "list dismissals")
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, kiloerr.Wrap(err, kiloerr.CodeDatabase, "scan dismissal")
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
