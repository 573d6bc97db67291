package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"clipvault/internal/config"
	"clipvault/internal/logging"
	"clipvault/internal/models"
	"clipvault/internal/shared"

	sq "github.com/Masterminds/squirrel"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
)

// ListPageSize is the fixed page size for access-window list operations.
const ListPageSize = 20

// SecondsInDay is the day unit used by access-window arithmetic.
const SecondsInDay int64 = 86_400

const accessCacheTTL = 5 * time.Minute

const accessColumns = "telegram_id, display_name, expires_at, is_banned, note, created_at, updated_at"

// AccessRepository is the access-window store handle. It owns the principal
// records exclusively; no foreign key crosses between it and the catalog,
// even when both share a file.
type AccessRepository struct {
	DB      *sql.DB
	Cache   *cache.Cache
	Builder sq.StatementBuilderType
	Logger  *logrus.Logger

	// now is the store's clock, swappable in tests.
	now func() time.Time
}

// NewAccessRepository opens the access-window store. The caller must run
// EnsureSchema before issuing any other operation.
func NewAccessRepository(cfg *config.Config) (*AccessRepository, error) {
	db, err := openDB(cfg.Access.Path)
	if err != nil {
		return nil, err
	}
	return &AccessRepository{
		DB:      db,
		Cache:   cache.New(accessCacheTTL, 10*time.Minute),
		Builder: sq.StatementBuilder.PlaceholderFormat(sq.Question),
		Logger:  logging.Log,
		now:     time.Now,
	}, nil
}

func (s *AccessRepository) Close() error {
	return s.DB.Close()
}

// EnsureSchema verifies the store is readable and creates the access table
// if missing. The table has had one shape since it was introduced, so plain
// idempotent creation is enough; the catalog's lifecycle machinery does not
// apply here.
func (s *AccessRepository) EnsureSchema() error {
	var result string
	if err := s.DB.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("%w: integrity check did not run: %v", shared.ErrStorageFault, err)
	}
	if result != "ok" {
		return fmt.Errorf("%w: integrity check failed: %s", shared.ErrStorageFault, result)
	}
	_, err := s.DB.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			telegram_id INTEGER PRIMARY KEY,
			display_name TEXT,
			expires_at INTEGER,
			is_banned INTEGER NOT NULL DEFAULT 0,
			note TEXT,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_users_expires_at ON users(expires_at);
		CREATE INDEX IF NOT EXISTS idx_users_is_banned ON users(is_banned);
	`)
	if err != nil {
		return fmt.Errorf("%w: access schema init failed: %v", shared.ErrStorageFault, err)
	}
	return nil
}

func scanAccessRecord(row interface{ Scan(...any) error }) (*models.AccessRecord, error) {
	var (
		r           models.AccessRecord
		displayName sql.NullString
		expiresAt   sql.NullInt64
		note        sql.NullString
	)
	err := row.Scan(&r.PrincipalID, &displayName, &expiresAt, &r.IsBanned, &note, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	r.DisplayName = displayName.String
	r.Note = note.String
	if expiresAt.Valid {
		v := expiresAt.Int64
		r.ExpiresAt = &v
	}
	return &r, nil
}

// Get retrieves a principal's access record, using a short-lived cache: role
// resolution runs on every guarded operation and rarely sees fresh rows.
func (s *AccessRepository) Get(principalID int64) (*models.AccessRecord, error) {
	cacheKey := fmt.Sprintf("access_%d", principalID)
	if rec, found := s.Cache.Get(cacheKey); found {
		return rec.(*models.AccessRecord), nil
	}

	row := s.DB.QueryRow("SELECT "+accessColumns+" FROM users WHERE telegram_id = ?", principalID)
	rec, err := scanAccessRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: principal %d", shared.ErrNotFound, principalID)
	}
	if err != nil {
		return nil, err
	}

	s.Cache.Set(cacheKey, rec, cache.DefaultExpiration)
	return rec, nil
}

// Upsert creates or overwrites a principal's record. A nil note preserves
// whatever note is already stored; everything else is replaced.
func (s *AccessRepository) Upsert(principalID int64, displayName string, expiresAt *int64, isBanned bool, note *string) error {
	ts := s.now().Unix()
	_, err := s.DB.Exec(`
		INSERT INTO users(telegram_id, display_name, expires_at, is_banned, note, created_at, updated_at)
		VALUES(?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(telegram_id) DO UPDATE SET
			display_name = excluded.display_name,
			expires_at = excluded.expires_at,
			is_banned = excluded.is_banned,
			note = COALESCE(excluded.note, users.note),
			updated_at = excluded.updated_at`,
		principalID, nullable(displayName), expiresAtArg(expiresAt), isBanned, noteArg(note), ts, ts,
	)
	if err != nil {
		return err
	}
	s.invalidate(principalID)
	return nil
}

// Extend pushes a principal's expiry out by the given number of days. The
// base is max(now, current expiry): extending an expired or unlimited grant
// restarts from now, extending an active one stacks on the remaining time.
// A principal without a record gets one. Returns the new expiry.
func (s *AccessRepository) Extend(principalID int64, days int64) (int64, error) {
	now := s.now().Unix()
	base := now

	rec, err := s.Get(principalID)
	switch {
	case errors.Is(err, shared.ErrNotFound):
		rec = nil
	case err != nil:
		return 0, err
	default:
		if rec.ExpiresAt != nil && *rec.ExpiresAt > now {
			base = *rec.ExpiresAt
		}
	}

	newExpiry := base + days*SecondsInDay
	if rec == nil {
		_, err = s.DB.Exec(`
			INSERT INTO users(telegram_id, display_name, expires_at, is_banned, note, created_at, updated_at)
			VALUES(?, NULL, ?, 0, NULL, ?, ?)`,
			principalID, newExpiry, now, now,
		)
	} else {
		_, err = s.DB.Exec(
			"UPDATE users SET expires_at = ?, updated_at = ? WHERE telegram_id = ?",
			newExpiry, now, principalID,
		)
	}
	if err != nil {
		return 0, err
	}
	s.invalidate(principalID)
	s.Logger.Debugf("Extend: principal=%d days=%d expires_at=%d", principalID, days, newExpiry)
	return newExpiry, nil
}

// SetBan flips the ban flag. Banning is independent of expiry: a banned
// principal stays banned no matter what the expiry says.
func (s *AccessRepository) SetBan(principalID int64, banned bool) error {
	res, err := s.DB.Exec(
		"UPDATE users SET is_banned = ?, updated_at = ? WHERE telegram_id = ?",
		banned, s.now().Unix(), principalID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: principal %d", shared.ErrNotFound, principalID)
	}
	s.invalidate(principalID)
	return nil
}

// Delete removes a principal's record entirely.
func (s *AccessRepository) Delete(principalID int64) error {
	res, err := s.DB.Exec("DELETE FROM users WHERE telegram_id = ?", principalID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: principal %d", shared.ErrNotFound, principalID)
	}
	s.invalidate(principalID)
	return nil
}

// Active returns one page of principals whose deadline is still ahead,
// soonest-expiring first. Unlimited records are excluded: "active with a
// deadline" and "unlimited" are different administrative concerns.
func (s *AccessRepository) Active(page int) ([]models.AccessRecord, int, error) {
	now := s.now().Unix()
	cond := sq.And{
		sq.Eq{"is_banned": 0},
		sq.NotEq{"expires_at": nil},
		sq.Gt{"expires_at": now},
	}
	return s.listRecords(cond, page)
}

// ExpiringWithin returns one page of principals whose deadline falls inside
// [now, now+horizon], soonest first. Unlimited records are excluded.
func (s *AccessRepository) ExpiringWithin(horizon time.Duration, page int) ([]models.AccessRecord, int, error) {
	now := s.now().Unix()
	until := now + int64(horizon.Seconds())
	cond := sq.And{
		sq.Eq{"is_banned": 0},
		sq.GtOrEq{"expires_at": now},
		sq.LtOrEq{"expires_at": until},
	}
	return s.listRecords(cond, page)
}

func (s *AccessRepository) listRecords(cond sq.Sqlizer, page int) ([]models.AccessRecord, int, error) {
	var total int
	err := s.Builder.Select("COUNT(*)").From("users").Where(cond).
		RunWith(s.DB).QueryRow().Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := s.Builder.Select("telegram_id", "display_name", "expires_at", "is_banned", "note", "created_at", "updated_at").
		From("users").
		Where(cond).
		OrderBy("expires_at ASC").
		Limit(ListPageSize).
		Offset(accessPageOffset(page)).
		RunWith(s.DB).Query()
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	records := make([]models.AccessRecord, 0)
	for rows.Next() {
		rec, err := scanAccessRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		records = append(records, *rec)
	}
	return records, pageCount(total, ListPageSize), rows.Err()
}

func (s *AccessRepository) invalidate(principalID int64) {
	s.Cache.Delete(fmt.Sprintf("access_%d", principalID))
}

func accessPageOffset(page int) uint64 {
	if page < 0 {
		return 0
	}
	return uint64(page) * ListPageSize
}

func expiresAtArg(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func noteArg(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}
