package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"clipvault/internal/shared"
)

// ToggleFavorite flips a principal's favorite membership for a video and
// returns the new state. The insert is conflict-driven rather than preceded
// by an existence read, so two concurrent toggles cannot both insert.
func (s *Repository) ToggleFavorite(userID, videoID int64) (bool, error) {
	tx, err := s.DB.Begin()
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		"INSERT OR IGNORE INTO favorites(user_id, video_id) VALUES(?, ?)",
		userID, videoID,
	)
	if err != nil {
		if strings.Contains(err.Error(), "FOREIGN KEY constraint failed") {
			return false, fmt.Errorf("%w: video %d", shared.ErrNotFound, videoID)
		}
		return false, err
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if inserted == 0 {
		if _, err := tx.Exec(
			"DELETE FROM favorites WHERE user_id = ? AND video_id = ?",
			userID, videoID,
		); err != nil {
			return false, err
		}
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return inserted == 1, nil
}

// IsFavorite reports current membership.
func (s *Repository) IsFavorite(userID, videoID int64) (bool, error) {
	var one int
	err := s.DB.QueryRow(
		"SELECT 1 FROM favorites WHERE user_id = ? AND video_id = ?",
		userID, videoID,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
