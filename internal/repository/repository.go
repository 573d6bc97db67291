package repository

import (
	"database/sql"
	"fmt"
	"strings"
	"unicode/utf8"

	"clipvault/internal/config"
	"clipvault/internal/logging"
	"clipvault/internal/shared"

	sq "github.com/Masterminds/squirrel"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite" // SQLite driver
)

// PageSize is the fixed page size for all catalog list operations.
const PageSize = 10

// MaxTitleLen bounds video titles, counted in runes.
const MaxTitleLen = 120

// Repository is the catalog store handle: videos, categories, the
// video-category associations and favorites. It is constructed once at
// process start, shared by reference, and closed at process stop.
type Repository struct {
	DB      *sql.DB
	Builder sq.StatementBuilderType // SQL Query Builder
	Logger  *logrus.Logger
}

// NewRepository opens the catalog store. The caller must run EnsureSchema
// before issuing any other operation.
func NewRepository(cfg *config.Config) (*Repository, error) {
	db, err := openDB(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	return &Repository{
		DB:      db,
		Builder: sq.StatementBuilder.PlaceholderFormat(sq.Question),
		Logger:  logging.Log,
	}, nil
}

func (s *Repository) Close() error {
	return s.DB.Close()
}

// openDB opens a SQLite file with foreign keys enforced, a busy timeout for
// concurrent request handlers, and immediate write transactions so the
// migration's exclusive transaction takes its lock up front.
func openDB(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_txlock=immediate&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: database %s is not readable: %v", shared.ErrStorageFault, path, err)
	}
	return db, nil
}

// validateTitle trims and bounds-checks a video title.
func validateTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", fmt.Errorf("%w: title must not be empty", shared.ErrValidation)
	}
	if utf8.RuneCountInString(title) > MaxTitleLen {
		return "", fmt.Errorf("%w: title exceeds %d characters", shared.ErrValidation, MaxTitleLen)
	}
	return title, nil
}

// isUniqueViolation matches the driver's unique-constraint error text.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// pageCount converts a total row count into a total page count.
func pageCount(total, pageSize int) int {
	if total <= 0 {
		return 0
	}
	return (total + pageSize - 1) / pageSize
}

// nullable maps an empty string to NULL so unique indexes ignore absent
// values.
func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

// nullableID maps a zero ID to NULL.
func nullableID(v int64) any {
	if v == 0 {
		return nil
	}
	return v
}
