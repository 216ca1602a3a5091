package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/warp/finance-tracker/finance"
)

// =============================================================================
// CATEGORY STORE
// =============================================================================

const categoryColumns = `id, name, parent_id, type, icon, color, is_active`

func scanCategory(row scanner) (finance.Category, error) {
	var (
		c           finance.Category
		icon, color sql.NullString
	)
	if err := row.Scan(&c.ID, &c.Name, &c.ParentID, &c.Type, &icon, &color, &c.IsActive); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c, err
		}
		return c, storageErr("scan category", err)
	}
	c.Icon, c.Color = icon.String, color.String
	return c, nil
}

func getCategory(ctx context.Context, q querier, id finance.CategoryID) (finance.Category, error) {
	c, err := scanCategory(q.QueryRowContext(ctx, `SELECT `+categoryColumns+` FROM categories WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return finance.Category{}, &finance.NotFoundError{Kind: "category", ID: int64(id)}
	}
	return c, err
}

func (s *Store) CreateCategory(ctx context.Context, c finance.Category) (finance.Category, error) {
	if err := c.Validate(); err != nil {
		return finance.Category{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO categories (name, parent_id, type, icon, color, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, 1, ?)
	`, c.Name, c.ParentID, c.Type, nullString(c.Icon), nullString(c.Color), now())
	if err != nil {
		return finance.Category{}, constraintErr("create category", err)
	}
	id, _ := res.LastInsertId()
	return getCategory(ctx, s.db, finance.CategoryID(id))
}

func (s *Store) GetCategory(ctx context.Context, id finance.CategoryID) (finance.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getCategory(ctx, s.db, id)
}

// ListCategories returns categories, optionally of one transaction type.
func (s *Store) ListCategories(ctx context.Context, typ finance.TransactionType, includeInactive bool) ([]finance.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + categoryColumns + ` FROM categories WHERE 1 = 1`
	var args []any
	if typ != "" {
		query += ` AND type = ?`
		args = append(args, typ)
	}
	if !includeInactive {
		query += ` AND is_active = 1`
	}
	query += ` ORDER BY name, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("list categories", err)
	}
	defer rows.Close()

	out := []finance.Category{}
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) UpdateCategory(ctx context.Context, c finance.Category) (finance.Category, error) {
	if err := c.Validate(); err != nil {
		return finance.Category{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE categories SET name = ?, parent_id = ?, type = ?, icon = ?, color = ?, is_active = ?
		WHERE id = ?
	`, c.Name, c.ParentID, c.Type, nullString(c.Icon), nullString(c.Color), c.IsActive, c.ID)
	if err != nil {
		return finance.Category{}, constraintErr("update category", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return finance.Category{}, &finance.NotFoundError{Kind: "category", ID: int64(c.ID)}
	}
	return getCategory(ctx, s.db, c.ID)
}

// DeleteCategory refuses to delete a category still used by transactions,
// rules, budgets or child categories.
func (s *Store) DeleteCategory(ctx context.Context, id finance.CategoryID) error {
	return s.withTx(ctx, func(tx *txStore) error {
		if _, err := getCategory(ctx, tx.tx, id); err != nil {
			return err
		}

		var refs int
		err := tx.tx.QueryRowContext(ctx, `
			SELECT
				(SELECT COUNT(*) FROM transactions WHERE category_id = ?1) +
				(SELECT COUNT(*) FROM recurring_transactions WHERE category_id = ?1) +
				(SELECT COUNT(*) FROM budgets WHERE category_id = ?1) +
				(SELECT COUNT(*) FROM categories WHERE parent_id = ?1)
		`, id).Scan(&refs)
		if err != nil {
			return storageErr("count category references", err)
		}
		if refs > 0 {
			return &finance.ConflictError{Message: "category is still used by transactions, rules, budgets or subcategories"}
		}

		if _, err := tx.tx.ExecContext(ctx, `DELETE FROM categories WHERE id = ?`, id); err != nil {
			return constraintErr("delete category", err)
		}
		return nil
	})
}
