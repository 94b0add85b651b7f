package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"noteflow/internal/common"
	"noteflow/internal/domain/model"
	"noteflow/internal/platform/database"
)

type CategoryRepository interface {
	Create(ctx context.Context, category *model.Category) error
	Get(ctx context.Context, id, ownerID string) (*model.Category, error)
	// List returns the owner's categories ordered by name.
	List(ctx context.Context, ownerID, search string) ([]*model.Category, error)
	Update(ctx context.Context, category *model.Category) error
	Delete(ctx context.Context, id, ownerID string) error
}

// NoteFilter narrows a note listing. Zero values mean "any".
type NoteFilter struct {
	OwnerID    string
	Search     string
	CategoryID string
	Limit      int
	Offset     int
}

type NoteRepository interface {
	Create(ctx context.Context, note *model.Note) error
	Get(ctx context.Context, id, ownerID string) (*model.Note, error)
	// List returns matching notes newest first plus the unpaged total.
	List(ctx context.Context, filter NoteFilter) ([]*model.Note, int, error)
	Update(ctx context.Context, note *model.Note) error
	Delete(ctx context.Context, id, ownerID string) error
}

type sqlCategoryRepository struct {
	db *database.DB
}

func NewSQLCategoryRepository(db *database.DB) CategoryRepository {
	return &sqlCategoryRepository{db: db}
}

const categoryColumns = `id, owner_id, name, slug, description, color, created_at`

func (r *sqlCategoryRepository) Create(ctx context.Context, c *model.Category) error {
	c.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	query := `INSERT INTO categories (` + categoryColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, r.db.Rebind(query),
		c.ID, c.OwnerID, c.Name, c.Slug, c.Description, c.Color, toMillis(c.CreatedAt))
	if err != nil {
		if common.IsUniqueViolation(err) {
			return fmt.Errorf("category %q already exists: %w", c.Name, common.ErrConflict)
		}
		return fmt.Errorf("sqlCategoryRepository.Create: %w", err)
	}
	return nil
}

func (r *sqlCategoryRepository) Get(ctx context.Context, id, ownerID string) (*model.Category, error) {
	query := `SELECT ` + categoryColumns + ` FROM categories WHERE id = ? AND owner_id = ?`
	c, err := scanCategory(r.db.QueryRowContext(ctx, r.db.Rebind(query), id, ownerID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("sqlCategoryRepository.Get: %w", err)
	}
	return c, nil
}

func (r *sqlCategoryRepository) List(ctx context.Context, ownerID, search string) ([]*model.Category, error) {
	query := `SELECT ` + categoryColumns + ` FROM categories WHERE owner_id = ?`
	args := []any{ownerID}
	if search != "" {
		query += ` AND (LOWER(name) LIKE ? OR LOWER(description) LIKE ?)`
		pattern := likePattern(search)
		args = append(args, pattern, pattern)
	}
	query += ` ORDER BY name`

	rows, err := r.db.QueryContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("sqlCategoryRepository.List: %w", err)
	}
	defer rows.Close()

	categories := []*model.Category{}
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlCategoryRepository.List scan: %w", err)
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

func (r *sqlCategoryRepository) Update(ctx context.Context, c *model.Category) error {
	query := `UPDATE categories SET name = ?, slug = ?, description = ?, color = ? WHERE id = ? AND owner_id = ?`
	res, err := r.db.ExecContext(ctx, r.db.Rebind(query), c.Name, c.Slug, c.Description, c.Color, c.ID, c.OwnerID)
	if err != nil {
		if common.IsUniqueViolation(err) {
			return fmt.Errorf("category %q already exists: %w", c.Name, common.ErrConflict)
		}
		return fmt.Errorf("sqlCategoryRepository.Update: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (r *sqlCategoryRepository) Delete(ctx context.Context, id, ownerID string) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM categories WHERE id = ? AND owner_id = ?`), id, ownerID)
	if err != nil {
		return fmt.Errorf("sqlCategoryRepository.Delete: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return common.ErrNotFound
	}
	return nil
}

func scanCategory(row rowScanner) (*model.Category, error) {
	c := &model.Category{}
	var createdAt int64
	if err := row.Scan(&c.ID, &c.OwnerID, &c.Name, &c.Slug, &c.Description, &c.Color, &createdAt); err != nil {
		return nil, err
	}
	c.CreatedAt = fromMillis(createdAt)
	return c, nil
}

type sqlNoteRepository struct {
	db *database.DB
}

func NewSQLNoteRepository(db *database.DB) NoteRepository {
	return &sqlNoteRepository{db: db}
}

const noteColumns = `id, owner_id, title, content, category_id, created_at, updated_at`

func (r *sqlNoteRepository) Create(ctx context.Context, n *model.Note) error {
	now := time.Now().UTC().Truncate(time.Millisecond)
	n.CreatedAt, n.UpdatedAt = now, now
	query := `INSERT INTO notes (` + noteColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, r.db.Rebind(query),
		n.ID, n.OwnerID, n.Title, n.Content, n.CategoryID, toMillis(n.CreatedAt), toMillis(n.UpdatedAt))
	if err != nil {
		return fmt.Errorf("sqlNoteRepository.Create: %w", err)
	}
	return nil
}

func (r *sqlNoteRepository) Get(ctx context.Context, id, ownerID string) (*model.Note, error) {
	query := `SELECT ` + noteColumns + ` FROM notes WHERE id = ? AND owner_id = ?`
	n, err := scanNote(r.db.QueryRowContext(ctx, r.db.Rebind(query), id, ownerID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("sqlNoteRepository.Get: %w", err)
	}
	return n, nil
}

func (r *sqlNoteRepository) List(ctx context.Context, filter NoteFilter) ([]*model.Note, int, error) {
	where := ` WHERE owner_id = ?`
	args := []any{filter.OwnerID}
	if filter.Search != "" {
		where += ` AND (LOWER(title) LIKE ? OR LOWER(content) LIKE ?)`
		pattern := likePattern(filter.Search)
		args = append(args, pattern, pattern)
	}
	if filter.CategoryID != "" {
		where += ` AND category_id = ?`
		args = append(args, filter.CategoryID)
	}

	var total int
	if err := r.db.QueryRowContext(ctx, r.db.Rebind(`SELECT COUNT(*) FROM notes`+where), args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("sqlNoteRepository.List count: %w", err)
	}

	query := `SELECT ` + noteColumns + ` FROM notes` + where + ` ORDER BY created_at DESC, id`
	if filter.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, filter.Limit, filter.Offset)
	}
	rows, err := r.db.QueryContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("sqlNoteRepository.List: %w", err)
	}
	defer rows.Close()

	notes := []*model.Note{}
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("sqlNoteRepository.List scan: %w", err)
		}
		notes = append(notes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return notes, total, nil
}

func (r *sqlNoteRepository) Update(ctx context.Context, n *model.Note) error {
	n.UpdatedAt = time.Now().UTC().Truncate(time.Millisecond)
	query := `UPDATE notes SET title = ?, content = ?, category_id = ?, updated_at = ? WHERE id = ? AND owner_id = ?`
	res, err := r.db.ExecContext(ctx, r.db.Rebind(query), n.Title, n.Content, n.CategoryID, toMillis(n.UpdatedAt), n.ID, n.OwnerID)
	if err != nil {
		return fmt.Errorf("sqlNoteRepository.Update: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (r *sqlNoteRepository) Delete(ctx context.Context, id, ownerID string) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM notes WHERE id = ? AND owner_id = ?`), id, ownerID)
	if err != nil {
		return fmt.Errorf("sqlNoteRepository.Delete: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return common.ErrNotFound
	}
	return nil
}

func scanNote(row rowScanner) (*model.Note, error) {
	n := &model.Note{}
	var (
		categoryID           sql.NullString
		createdAt, updatedAt int64
	)
	if err := row.Scan(&n.ID, &n.OwnerID, &n.Title, &n.Content, &categoryID, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if categoryID.Valid {
		n.CategoryID = &categoryID.String
	}
	n.CreatedAt = fromMillis(createdAt)
	n.UpdatedAt = fromMillis(updatedAt)
	return n, nil
}

func likePattern(search string) string {
	return "%" + strings.ToLower(strings.TrimSpace(search)) + "%"
}
