package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/warp/finance-tracker/finance"
)

// =============================================================================
// TAG STORE
// =============================================================================

// Tag names are unique case-insensitively (COLLATE NOCASE); a clash surfaces
// as a ConflictError.

func getTag(ctx context.Context, q querier, id finance.TagID) (finance.Tag, error) {
	var (
		t     finance.Tag
		color sql.NullString
	)
	err := q.QueryRowContext(ctx, `SELECT id, name, color FROM tags WHERE id = ?`, id).Scan(&t.ID, &t.Name, &color)
	if errors.Is(err, sql.ErrNoRows) {
		return finance.Tag{}, &finance.NotFoundError{Kind: "tag", ID: int64(id)}
	}
	if err != nil {
		return finance.Tag{}, storageErr("get tag", err)
	}
	t.Color = color.String
	return t, nil
}

func (s *Store) CreateTag(ctx context.Context, t finance.Tag) (finance.Tag, error) {
	if err := t.Validate(); err != nil {
		return finance.Tag{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO tags (name, color, created_at) VALUES (?, ?, ?)`, t.Name, nullString(t.Color), now())
	if err != nil {
		return finance.Tag{}, constraintErr("create tag", err)
	}
	id, _ := res.LastInsertId()
	return getTag(ctx, s.db, finance.TagID(id))
}

func (s *Store) ListTags(ctx context.Context) ([]finance.Tag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT id, name, color FROM tags ORDER BY name COLLATE NOCASE, id`)
	if err != nil {
		return nil, storageErr("list tags", err)
	}
	defer rows.Close()

	tags := []finance.Tag{}
	for rows.Next() {
		var (
			t     finance.Tag
			color sql.NullString
		)
		if err := rows.Scan(&t.ID, &t.Name, &color); err != nil {
			return nil, storageErr("scan tag", err)
		}
		t.Color = color.String
		tags = append(tags, t)
	}
	return tags, rows.Err()
}

func (s *Store) UpdateTag(ctx context.Context, t finance.Tag) (finance.Tag, error) {
	if err := t.Validate(); err != nil {
		return finance.Tag{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `UPDATE tags SET name = ?, color = ? WHERE id = ?`, t.Name, nullString(t.Color), t.ID)
	if err != nil {
		return finance.Tag{}, constraintErr("update tag", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return finance.Tag{}, &finance.NotFoundError{Kind: "tag", ID: int64(t.ID)}
	}
	return getTag(ctx, s.db, t.ID)
}

// DeleteTag refuses to delete a tag attached to any transaction.
func (s *Store) DeleteTag(ctx context.Context, id finance.TagID) error {
	return s.withTx(ctx, func(tx *txStore) error {
		if _, err := getTag(ctx, tx.tx, id); err != nil {
			return err
		}
		var used int
		if err := tx.tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM transaction_tags WHERE tag_id = ?`, id).Scan(&used); err != nil {
			return storageErr("count tag usage", err)
		}
		if used > 0 {
			return &finance.ConflictError{Message: "tag is attached to transactions"}
		}
		if _, err := tx.tx.ExecContext(ctx, `DELETE FROM tags WHERE id = ?`, id); err != nil {
			return constraintErr("delete tag", err)
		}
		return nil
	})
}
