package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"clipvault/internal/models"
	"clipvault/internal/normalize"
	"clipvault/internal/shared"
)

// videoColumns is the select list shared by every video read.
var videoColumns = strings.Join(videoSelectColumns, ", ")

// VideoParams carries the mutable fields of a video for create, replace and
// upsert. Categories always replaces the full association set.
type VideoParams struct {
	Title        string
	FileID       string
	FileUniqueID string
	SourceURL    string
	Categories   []string
}

func scanVideo(row interface{ Scan(...any) error }) (*models.Video, error) {
	var (
		v                             models.Video
		fileID, fileUID, src, srcNorm sql.NullString
		storageChat, storageMsg       sql.NullInt64
	)
	err := row.Scan(&v.ID, &v.Title, &fileID, &fileUID, &src, &srcNorm,
		&storageChat, &storageMsg, &v.NeedsRefresh, &v.CreatedAt)
	if err != nil {
		return nil, err
	}
	v.FileID = fileID.String
	v.FileUniqueID = fileUID.String
	v.SourceURL = src.String
	v.SourceURLNorm = srcNorm.String
	v.StorageChat = storageChat.Int64
	v.StorageMsg = storageMsg.Int64
	return &v, nil
}

func (s *Repository) queryVideo(query string, args ...any) (*models.Video, error) {
	v, err := scanVideo(s.DB.QueryRow(query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shared.ErrNotFound
	}
	return v, err
}

// GetVideo retrieves a single video by id.
func (s *Repository) GetVideo(id int64) (*models.Video, error) {
	return s.queryVideo("SELECT "+videoColumns+" FROM videos WHERE id = ?", id)
}

// FindByContentKey looks up a video by its content identity key. Used as a
// duplicate-resolution probe before insert; never merges anything itself.
func (s *Repository) FindByContentKey(key string) (*models.Video, error) {
	return s.queryVideo("SELECT "+videoColumns+" FROM videos WHERE file_unique_id = ?", key)
}

// FindByURL looks up a video by external URL, normalizing it first.
func (s *Repository) FindByURL(rawURL string) (*models.Video, error) {
	key := normalize.URL(rawURL)
	if key == "" {
		return nil, shared.ErrNotFound
	}
	return s.queryVideo("SELECT "+videoColumns+" FROM videos WHERE source_url_normalized = ?", key)
}

// FindByTitle performs a case-insensitive exact title match.
func (s *Repository) FindByTitle(title string) (*models.Video, error) {
	return s.queryVideo(
		"SELECT "+videoColumns+" FROM videos WHERE lower(title) = lower(trim(?))", title)
}

// CreateVideo inserts a new video and atomically replaces its category set.
// A unique violation means the caller skipped the duplicate probes and must
// re-query and decide.
func (s *Repository) CreateVideo(p VideoParams) (*models.Video, error) {
	title, err := validateTitle(p.Title)
	if err != nil {
		return nil, err
	}

	tx, err := s.DB.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var id int64
	err = tx.QueryRow(`
		INSERT INTO videos(title, file_id, file_unique_id, source_url, source_url_normalized)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id`,
		title, nullable(p.FileID), nullable(p.FileUniqueID),
		nullable(p.SourceURL), nullable(normalize.URL(p.SourceURL)),
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %v", shared.ErrConflict, err)
		}
		return nil, err
	}
	if err := s.setCategoriesTx(tx, id, p.Categories); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	s.Logger.Debugf("CreateVideo: id=%d title=%q", id, title)
	return s.GetVideo(id)
}

// ReplaceVideo overwrites an existing row in place. This is the explicit
// "replace existing" duplicate resolution: the row keeps its identity, so
// favorites pointing at it survive.
func (s *Repository) ReplaceVideo(id int64, p VideoParams) (*models.Video, error) {
	title, err := validateTitle(p.Title)
	if err != nil {
		return nil, err
	}

	tx, err := s.DB.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	res, err := tx.Exec(`
		UPDATE videos
		   SET title = ?, file_id = ?, file_unique_id = ?, source_url = ?, source_url_normalized = ?
		 WHERE id = ?`,
		title, nullable(p.FileID), nullable(p.FileUniqueID),
		nullable(p.SourceURL), nullable(normalize.URL(p.SourceURL)), id,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %v", shared.ErrConflict, err)
		}
		return nil, err
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, err
	} else if n == 0 {
		return nil, fmt.Errorf("%w: video %d", shared.ErrNotFound, id)
	}
	if err := s.setCategoriesTx(tx, id, p.Categories); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.GetVideo(id)
}

// UpsertByContentKey inserts or updates keyed on the content identity, for
// paths where that key is authoritative (content mirrored from the vault
// channel). On conflict the mutable fields are overwritten and the refresh
// flag cleared.
func (s *Repository) UpsertByContentKey(p VideoParams) (*models.Video, error) {
	if p.FileUniqueID == "" {
		return nil, fmt.Errorf("%w: content identity key is required", shared.ErrValidation)
	}
	title, err := validateTitle(p.Title)
	if err != nil {
		return nil, err
	}

	tx, err := s.DB.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var id int64
	err = tx.QueryRow(`
		INSERT INTO videos(title, file_id, file_unique_id, source_url, source_url_normalized)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(file_unique_id) DO UPDATE SET
			title = excluded.title,
			file_id = excluded.file_id,
			source_url = excluded.source_url,
			source_url_normalized = excluded.source_url_normalized,
			needs_refresh = 0
		RETURNING id`,
		title, nullable(p.FileID), p.FileUniqueID,
		nullable(p.SourceURL), nullable(normalize.URL(p.SourceURL)),
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %v", shared.ErrConflict, err)
		}
		return nil, err
	}
	if err := s.setCategoriesTx(tx, id, p.Categories); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	s.Logger.Debugf("UpsertByContentKey: id=%d key=%s", id, p.FileUniqueID)
	return s.GetVideo(id)
}

// SetArchiveRef records the vault copy of a video's content.
func (s *Repository) SetArchiveRef(id, chatID, messageID int64) error {
	res, err := s.DB.Exec(
		"UPDATE videos SET storage_chat_id = ?, storage_message_id = ? WHERE id = ?",
		nullableID(chatID), nullableID(messageID), id,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: archive ref already recorded for another video: %v", shared.ErrConflict, err)
		}
		return err
	}
	return requireRow(res, id)
}

// MarkNeedsRefresh flags a video whose transport content ref was rejected.
func (s *Repository) MarkNeedsRefresh(id int64) error {
	res, err := s.DB.Exec("UPDATE videos SET needs_refresh = 1 WHERE id = ?", id)
	if err != nil {
		return err
	}
	return requireRow(res, id)
}

// RefreshContentRef installs a newly issued content ref. The archive
// location is matched first because it is the authoritative link; the
// content identity key is the fallback for rows recorded before vault
// bookkeeping existed. Returns whether any row was updated.
func (s *Repository) RefreshContentRef(chatID, messageID int64, contentKey, newFileID string) (bool, error) {
	res, err := s.DB.Exec(`
		UPDATE videos SET file_id = ?, needs_refresh = 0
		 WHERE storage_chat_id = ? AND storage_message_id = ?`,
		newFileID, chatID, messageID,
	)
	if err != nil {
		return false, err
	}
	if n, err := res.RowsAffected(); err != nil {
		return false, err
	} else if n > 0 {
		return true, nil
	}
	if contentKey == "" {
		return false, nil
	}
	res, err = s.DB.Exec(
		"UPDATE videos SET file_id = ?, needs_refresh = 0 WHERE file_unique_id = ?",
		newFileID, contentKey,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// UpdateTitle renames a video, keeping the title bounds.
func (s *Repository) UpdateTitle(id int64, title string) error {
	title, err := validateTitle(title)
	if err != nil {
		return err
	}
	res, err := s.DB.Exec("UPDATE videos SET title = ? WHERE id = ?", title, id)
	if err != nil {
		return err
	}
	return requireRow(res, id)
}

// DeleteVideo removes a video; associations and favorites cascade.
func (s *Repository) DeleteVideo(id int64) error {
	res, err := s.DB.Exec("DELETE FROM videos WHERE id = ?", id)
	if err != nil {
		return err
	}
	return requireRow(res, id)
}

func requireRow(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: video %d", shared.ErrNotFound, id)
	}
	return nil
}
