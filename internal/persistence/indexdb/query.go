package indexdb

import (
	"context"
	"database/sql"
	"errors"
)

// LatestCheckpoints returns up to limit checkpoints, newest first. Queued
// writes not yet committed are not visible.
func (s *SQLiteIndex) LatestCheckpoints(ctx context.Context, limit int) ([]CheckpointRow, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `SELECT timestamp,digest,path,users,bubbles,portals,resources,total_mass
		FROM checkpoints ORDER BY timestamp DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []CheckpointRow
	for rows.Next() {
		var c CheckpointRow
		if err := rows.Scan(&c.Timestamp, &c.Digest, &c.Path, &c.Users, &c.Bubbles, &c.Portals, &c.Resources, &c.TotalMass); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CheckpointDigest returns the digest recorded at ts.
func (s *SQLiteIndex) CheckpointDigest(ctx context.Context, ts int64) (string, bool, error) {
	var d string
	err := s.db.QueryRowContext(ctx, `SELECT digest FROM checkpoints WHERE timestamp=?`, ts).Scan(&d)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return d, true, nil
}

func (s *SQLiteIndex) RollbackCount(ctx context.Context, timeline string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM rollbacks WHERE timeline=?`, timeline).Scan(&n)
	return n, err
}
