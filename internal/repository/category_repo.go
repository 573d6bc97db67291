package repository

import (
	"database/sql"
	"fmt"
	"strings"

	"clipvault/internal/models"
	"clipvault/internal/shared"
)

// EnsureTaxonomy seeds the fixed category vocabulary and prunes entries no
// longer in it. Pruning cascades only the association rows; videos are never
// deleted by a vocabulary change.
func (s *Repository) EnsureTaxonomy(names []string) error {
	if len(names) == 0 {
		return fmt.Errorf("%w: category vocabulary must not be empty", shared.ErrValidation)
	}
	tx, err := s.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, name := range names {
		if _, err := tx.Exec("INSERT OR IGNORE INTO categories(name) VALUES(?)", strings.TrimSpace(name)); err != nil {
			return err
		}
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(names)), ",")
	args := make([]any, len(names))
	for i, name := range names {
		args[i] = strings.TrimSpace(name)
	}
	res, err := tx.Exec("DELETE FROM categories WHERE name NOT IN ("+placeholders+")", args...)
	if err != nil {
		return err
	}
	if pruned, err := res.RowsAffected(); err == nil && pruned > 0 {
		s.Logger.Infof("EnsureTaxonomy: pruned %d obsolete categories", pruned)
	}

	return tx.Commit()
}

// ListCategories returns the current vocabulary ordered by name.
func (s *Repository) ListCategories() ([]models.Category, error) {
	rows, err := s.DB.Query("SELECT id, name FROM categories ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	categories := make([]models.Category, 0)
	for rows.Next() {
		var c models.Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

// VideoCategories returns a video's category names ordered alphabetically.
func (s *Repository) VideoCategories(videoID int64) ([]string, error) {
	rows, err := s.DB.Query(`
		SELECT c.name FROM categories c
		JOIN video_categories vc ON vc.category_id = c.id
		WHERE vc.video_id = ?
		ORDER BY c.name`, videoID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	names := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// setCategoriesTx replaces a video's association set inside the caller's
// transaction. Unknown category names are created on the fly.
func (s *Repository) setCategoriesTx(tx *sql.Tx, videoID int64, categories []string) error {
	if _, err := tx.Exec("DELETE FROM video_categories WHERE video_id = ?", videoID); err != nil {
		return err
	}
	for _, name := range categories {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, err := tx.Exec("INSERT OR IGNORE INTO categories(name) VALUES(?)", name); err != nil {
			return err
		}
		var cid int64
		if err := tx.QueryRow("SELECT id FROM categories WHERE name = ?", name).Scan(&cid); err != nil {
			return err
		}
		if _, err := tx.Exec(
			"INSERT OR IGNORE INTO video_categories(video_id, category_id) VALUES(?, ?)",
			videoID, cid,
		); err != nil {
			return err
		}
	}
	return nil
}
