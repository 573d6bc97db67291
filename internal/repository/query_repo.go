package repository

import (
	"database/sql"
	"fmt"
	"strings"

	"clipvault/internal/models"
	"clipvault/internal/shared"

	sq "github.com/Masterminds/squirrel"
)

var videoSelectColumns = []string{
	"id", "title", "file_id", "file_unique_id", "source_url",
	"source_url_normalized", "storage_chat_id", "storage_message_id",
	"needs_refresh", "created_at",
}

func (s *Repository) videoSelect() sq.SelectBuilder {
	return s.Builder.Select(videoSelectColumns...).From("videos")
}

func (s *Repository) collectVideos(rows *sql.Rows) ([]models.Video, error) {
	defer rows.Close()
	videos := make([]models.Video, 0)
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, err
		}
		videos = append(videos, *v)
	}
	return videos, rows.Err()
}

func (s *Repository) countRows(q sq.SelectBuilder) (int, error) {
	var total int
	err := q.RunWith(s.DB).QueryRow().Scan(&total)
	return total, err
}

// ListVideos returns one page of the catalog, newest first, along with the
// total page count. Pages are zero-based.
func (s *Repository) ListVideos(page int) ([]models.Video, int, error) {
	total, err := s.countRows(s.Builder.Select("COUNT(*)").From("videos"))
	if err != nil {
		return nil, 0, err
	}
	rows, err := s.videoSelect().
		OrderBy("id DESC").
		Limit(PageSize).
		Offset(pageOffset(page)).
		RunWith(s.DB).Query()
	if err != nil {
		return nil, 0, err
	}
	videos, err := s.collectVideos(rows)
	return videos, pageCount(total, PageSize), err
}

// ListByTitle returns videos whose title contains the query,
// case-insensitively, newest first.
func (s *Repository) ListByTitle(query string, page int) ([]models.Video, int, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return nil, 0, fmt.Errorf("%w: blank title query", shared.ErrValidation)
	}
	pattern := "%" + strings.ToLower(q) + "%"

	total, err := s.countRows(s.Builder.Select("COUNT(*)").From("videos").
		Where("lower(title) LIKE ?", pattern))
	if err != nil {
		return nil, 0, err
	}
	rows, err := s.videoSelect().
		Where("lower(title) LIKE ?", pattern).
		OrderBy("id DESC").
		Limit(PageSize).
		Offset(pageOffset(page)).
		RunWith(s.DB).Query()
	if err != nil {
		return nil, 0, err
	}
	videos, err := s.collectVideos(rows)
	return videos, pageCount(total, PageSize), err
}

// ListByCategory returns videos whose joined category names contain the
// query as a case-insensitive substring. This walks every categorized video
// in Go; it is a scan, acceptable at catalog scale, not a text index.
func (s *Repository) ListByCategory(query string, page int) ([]models.Video, int, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil, 0, fmt.Errorf("%w: blank category query", shared.ErrValidation)
	}

	rows, err := s.DB.Query(`
		SELECT ` + strings.Join(videoSelectColumns, ", ") + `, names FROM videos
		JOIN (
			SELECT vc.video_id AS vid, GROUP_CONCAT(c.name, ' ') AS names
			FROM video_categories vc
			JOIN categories c ON c.id = vc.category_id
			GROUP BY vc.video_id
		) ON vid = videos.id
		ORDER BY videos.id DESC`)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	matched := make([]models.Video, 0)
	for rows.Next() {
		var (
			v                             models.Video
			fileID, fileUID, src, srcNorm sql.NullString
			storageChat, storageMsg       sql.NullInt64
			names                         string
		)
		if err := rows.Scan(&v.ID, &v.Title, &fileID, &fileUID, &src, &srcNorm,
			&storageChat, &storageMsg, &v.NeedsRefresh, &v.CreatedAt, &names); err != nil {
			return nil, 0, err
		}
		if !strings.Contains(strings.ToLower(names), q) {
			continue
		}
		v.FileID = fileID.String
		v.FileUniqueID = fileUID.String
		v.SourceURL = src.String
		v.SourceURLNorm = srcNorm.String
		v.StorageChat = storageChat.Int64
		v.StorageMsg = storageMsg.Int64
		matched = append(matched, v)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	total := len(matched)
	start := int(pageOffset(page))
	if start > total {
		start = total
	}
	end := start + PageSize
	if end > total {
		end = total
	}
	return matched[start:end], pageCount(total, PageSize), nil
}

// ListFavorites returns one page of a principal's favorites, newest first.
func (s *Repository) ListFavorites(userID int64, page int) ([]models.Video, int, error) {
	total, err := s.countRows(s.Builder.Select("COUNT(*)").From("favorites").
		Where(sq.Eq{"user_id": userID}))
	if err != nil {
		return nil, 0, err
	}
	rows, err := s.Builder.
		Select(prefixColumns("v", videoSelectColumns)...).
		From("videos v").
		Join("favorites f ON f.video_id = v.id").
		Where(sq.Eq{"f.user_id": userID}).
		OrderBy("v.id DESC").
		Limit(PageSize).
		Offset(pageOffset(page)).
		RunWith(s.DB).Query()
	if err != nil {
		return nil, 0, err
	}
	videos, err := s.collectVideos(rows)
	return videos, pageCount(total, PageSize), err
}

func pageOffset(page int) uint64 {
	if page < 0 {
		return 0
	}
	return uint64(page) * PageSize
}

func prefixColumns(alias string, cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = alias + "." + c
	}
	return out
}
