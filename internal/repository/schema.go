package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"clipvault/internal/db/migrations"
	"clipvault/internal/normalize"
	"clipvault/internal/shared"

	"github.com/pressly/goose/v3"
)

const gooseVersionTable = "goose_db_version"

// requiredVideoColumns is the column set of the target layout.
var requiredVideoColumns = []string{
	"id", "title", "file_id", "file_unique_id",
	"source_url", "source_url_normalized",
	"storage_chat_id", "storage_message_id",
	"needs_refresh", "created_at",
}

// requiredUniqueIndexes are the named unique indexes of the target layout.
// Uniqueness lives in named indexes, never inline column constraints: an
// inline UNIQUE cannot be dropped without rebuilding the table, which is
// exactly the trap the legacy layout fell into.
var requiredUniqueIndexes = []string{
	"idx_videos_file_uid",
	"idx_videos_source_url_norm",
	"idx_videos_storage_ref",
}

// dependentTables reference videos by foreign key and need repair when a
// rename-swap leaves their stored definitions pointing at the stale name.
var dependentTables = map[string]string{
	"video_categories": `CREATE TABLE video_categories (
		video_id INTEGER NOT NULL,
		category_id INTEGER NOT NULL,
		PRIMARY KEY(video_id, category_id),
		FOREIGN KEY(video_id) REFERENCES videos(id) ON DELETE CASCADE,
		FOREIGN KEY(category_id) REFERENCES categories(id) ON DELETE CASCADE
	)`,
	"favorites": `CREATE TABLE favorites (
		user_id INTEGER NOT NULL,
		video_id INTEGER NOT NULL,
		PRIMARY KEY(user_id, video_id),
		FOREIGN KEY(video_id) REFERENCES videos(id) ON DELETE CASCADE
	)`,
}

const targetVideosSQL = `CREATE TABLE videos (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	title TEXT NOT NULL,
	file_id TEXT,
	file_unique_id TEXT,
	source_url TEXT,
	source_url_normalized TEXT,
	storage_chat_id INTEGER,
	storage_message_id INTEGER,
	needs_refresh INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
)`

// EnsureSchema brings the physical layout up to the version expected by the
// running code. Sequence: integrity check, one-time rebuild of a
// pre-versioning legacy store, goose migrations, then a structural
// post-check. Any failure is a StorageFault; the process must not serve.
// Running it twice in a row performs zero writes the second time.
func (s *Repository) EnsureSchema() error {
	if err := s.checkIntegrity(); err != nil {
		return err
	}
	if err := s.bootstrapLegacyLayout(); err != nil {
		return err
	}
	if err := s.migrateUp(); err != nil {
		return fmt.Errorf("%w: migration failed: %v", shared.ErrStorageFault, err)
	}
	if err := s.ValidateSchema(); err != nil {
		return err
	}
	return nil
}

// checkIntegrity verifies the store file itself is sound. Corruption is not
// a condition the lifecycle manager tries to repair.
func (s *Repository) checkIntegrity() error {
	var result string
	if err := s.DB.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("%w: integrity check did not run: %v", shared.ErrStorageFault, err)
	}
	if result != "ok" {
		return fmt.Errorf("%w: integrity check failed: %s", shared.ErrStorageFault, result)
	}
	return nil
}

// migrateUp applies the embedded goose migrations. On a fresh store this
// creates the whole target layout; on an up-to-date store it is a no-op.
func (s *Repository) migrateUp() error {
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set dialect: %w", err)
	}
	return goose.Up(s.DB, ".")
}

// ValidateSchema re-inspects the live table metadata and fails when the
// target constraint set is not met. EnsureSchema runs it as the
// post-migration check; the CLI exposes it standalone.
func (s *Repository) ValidateSchema() error {
	for _, table := range []string{"videos", "categories", "video_categories", "favorites"} {
		exists, err := s.tableExists(table)
		if err != nil {
			return fmt.Errorf("%w: %v", shared.ErrStorageFault, err)
		}
		if !exists {
			return fmt.Errorf("%w: table %s is missing", shared.ErrStorageFault, table)
		}
	}
	layout, err := s.inspectVideoLayout()
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrStorageFault, err)
	}
	for _, col := range requiredVideoColumns {
		if !layout.columns[col] {
			return fmt.Errorf("%w: videos is missing column %s", shared.ErrStorageFault, col)
		}
	}
	for _, idx := range requiredUniqueIndexes {
		if !layout.uniqueIndexes[idx] {
			return fmt.Errorf("%w: videos is missing unique index %s", shared.ErrStorageFault, idx)
		}
	}
	if layout.inlineUniques > 0 {
		return fmt.Errorf("%w: videos still carries %d inline unique constraints", shared.ErrStorageFault, layout.inlineUniques)
	}
	return nil
}

// videoLayout is the structural fingerprint of the videos table.
type videoLayout struct {
	columns       map[string]bool
	uniqueIndexes map[string]bool // named (CREATE INDEX) unique indexes
	inlineUniques int             // unique indexes from inline column constraints
}

func (s *Repository) tableExists(name string) (bool, error) {
	var found string
	err := s.DB.QueryRow(
		"SELECT name FROM sqlite_master WHERE type='table' AND name = ?", name,
	).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// inspectVideoLayout reads PRAGMA table_info and index_list for videos.
func (s *Repository) inspectVideoLayout() (*videoLayout, error) {
	layout := &videoLayout{
		columns:       make(map[string]bool),
		uniqueIndexes: make(map[string]bool),
	}

	rows, err := s.DB.Query("PRAGMA table_info(videos)")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			cid, notnull, pk int
			name, colType    string
			dflt             sql.NullString
		)
		if err := rows.Scan(&cid, &name, &colType, &notnull, &dflt, &pk); err != nil {
			return nil, err
		}
		layout.columns[name] = true
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	idxRows, err := s.DB.Query("PRAGMA index_list(videos)")
	if err != nil {
		return nil, err
	}
	defer idxRows.Close()
	for idxRows.Next() {
		var (
			seq, unique, partial int
			name, origin         string
		)
		if err := idxRows.Scan(&seq, &name, &unique, &origin, &partial); err != nil {
			return nil, err
		}
		if unique != 1 {
			continue
		}
		switch origin {
		case "c":
			layout.uniqueIndexes[name] = true
		case "u":
			layout.inlineUniques++
		}
	}
	return layout, idxRows.Err()
}

// layoutNeedsRebuild decides whether the live layout diverges from the
// target constraint set.
func layoutNeedsRebuild(layout *videoLayout) bool {
	for _, col := range requiredVideoColumns {
		if !layout.columns[col] {
			return true
		}
	}
	for _, idx := range requiredUniqueIndexes {
		if !layout.uniqueIndexes[idx] {
			return true
		}
	}
	return layout.inlineUniques > 0
}

// bootstrapLegacyLayout rebuilds a store created before the versioned
// migration table existed. Once goose has baselined a store, drift detection
// belongs to the version counter and this pass never runs again.
func (s *Repository) bootstrapLegacyLayout() error {
	versioned, err := s.tableExists(gooseVersionTable)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrStorageFault, err)
	}
	if versioned {
		return nil
	}
	exists, err := s.tableExists("videos")
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrStorageFault, err)
	}
	if !exists {
		return nil // fresh install, goose creates the target layout directly
	}
	layout, err := s.inspectVideoLayout()
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrStorageFault, err)
	}
	if !layoutNeedsRebuild(layout) {
		return nil
	}
	s.Logger.Warn("Legacy catalog layout detected, rebuilding videos table")
	if err := s.rebuildLegacyVideos(layout); err != nil {
		return fmt.Errorf("%w: legacy rebuild failed, store left untouched: %v", shared.ErrStorageFault, err)
	}
	return nil
}

// rebuildLegacyVideos performs the rename-swap migration in one exclusive
// transaction: rename the old table aside, create the target table, copy
// forward every row that satisfies the target constraints (INSERT OR IGNORE
// drops pre-existing violators), drop the old table, then repair dependent
// tables whose stored definitions the rename left pointing at the stale
// name. Any error rolls the whole transaction back.
func (s *Repository) rebuildLegacyVideos(layout *videoLayout) error {
	ctx := context.Background()
	conn, err := s.DB.Conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	// Foreign key enforcement must be off for the swap; it is restored on
	// this connection before it returns to the pool.
	if _, err := conn.ExecContext(ctx, "PRAGMA foreign_keys = OFF"); err != nil {
		return err
	}
	defer conn.ExecContext(ctx, "PRAGMA foreign_keys = ON")

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "ALTER TABLE videos RENAME TO videos_legacy"); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, targetVideosSQL); err != nil {
		return err
	}
	uniqueIndexColumns := map[string]string{
		"idx_videos_file_uid":        "file_unique_id",
		"idx_videos_source_url_norm": "source_url_normalized",
		"idx_videos_storage_ref":     "storage_chat_id, storage_message_id",
	}
	for _, idx := range requiredUniqueIndexes {
		stmt := fmt.Sprintf("CREATE UNIQUE INDEX %s ON videos(%s)", idx, uniqueIndexColumns[idx])
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}

	carried, dropped, err := s.copyLegacyRows(ctx, tx, layout)
	if err != nil {
		return err
	}
	s.Logger.Infof("Legacy videos migrated: %d rows carried, %d dropped by target constraints", carried, dropped)

	if _, err := tx.ExecContext(ctx, "DROP TABLE videos_legacy"); err != nil {
		return err
	}

	if err := s.repairDependents(ctx, tx); err != nil {
		return err
	}

	return tx.Commit()
}

// copyLegacyRows copies videos_legacy into the new videos table row by row,
// normalizing the URL key when the legacy layout predates it. Rows that
// collide under the target uniqueness rules are silently dropped and
// counted: availability is preferred over completeness for pre-existing bad
// data.
func (s *Repository) copyLegacyRows(ctx context.Context, tx *sql.Tx, layout *videoLayout) (carried, dropped int, err error) {
	sel := []string{"id", "title"}
	for _, col := range []string{"file_id", "file_unique_id", "source_url", "source_url_normalized", "created_at"} {
		if layout.columns[col] {
			sel = append(sel, col)
		} else {
			sel = append(sel, "NULL AS "+col)
		}
	}
	rows, err := tx.QueryContext(ctx, "SELECT "+strings.Join(sel, ", ")+" FROM videos_legacy ORDER BY id")
	if err != nil {
		return 0, 0, err
	}
	defer rows.Close()

	type legacyRow struct {
		id        int64
		title     string
		fileID    sql.NullString
		fileUID   sql.NullString
		srcURL    sql.NullString
		srcNorm   sql.NullString
		createdAt sql.NullString
	}
	var buf []legacyRow
	for rows.Next() {
		var r legacyRow
		if err := rows.Scan(&r.id, &r.title, &r.fileID, &r.fileUID, &r.srcURL, &r.srcNorm, &r.createdAt); err != nil {
			return 0, 0, err
		}
		buf = append(buf, r)
	}
	if err := rows.Err(); err != nil {
		return 0, 0, err
	}

	for _, r := range buf {
		norm := r.srcNorm
		if !norm.Valid && r.srcURL.Valid {
			if key := normalize.URL(r.srcURL.String); key != "" {
				norm = sql.NullString{String: key, Valid: true}
			}
		}
		res, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO videos
				(id, title, file_id, file_unique_id, source_url, source_url_normalized, created_at)
			VALUES (?, ?, ?, ?, ?, ?, COALESCE(?, CURRENT_TIMESTAMP))`,
			r.id, r.title, r.fileID, r.fileUID, r.srcURL, norm, r.createdAt,
		)
		if err != nil {
			return 0, 0, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, 0, err
		}
		if n == 1 {
			carried++
		} else {
			dropped++
			s.Logger.Warnf("Dropping legacy video id=%d (%q): violates target uniqueness", r.id, r.title)
		}
	}
	return carried, dropped, nil
}

// repairDependents rebuilds association tables whose stored SQL still names
// videos_legacy after the swap. Each is renamed aside, recreated against the
// new parent and re-populated through an inner join that drops rows whose
// parent did not survive the copy.
func (s *Repository) repairDependents(ctx context.Context, tx *sql.Tx) error {
	for table, createSQL := range dependentTables {
		var def sql.NullString
		err := tx.QueryRowContext(ctx,
			"SELECT sql FROM sqlite_master WHERE type='table' AND name = ?", table,
		).Scan(&def)
		if errors.Is(err, sql.ErrNoRows) {
			continue // table not created yet, goose will handle it
		}
		if err != nil {
			return err
		}
		if !strings.Contains(def.String, "videos_legacy") {
			continue
		}

		old := table + "_legacy"
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s RENAME TO %s", table, old)); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, createSQL); err != nil {
			return err
		}

		var total int
		if err := tx.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", old)).Scan(&total); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, fmt.Sprintf(
			"INSERT OR IGNORE INTO %s SELECT d.* FROM %s d JOIN videos v ON v.id = d.video_id", table, old,
		))
		if err != nil {
			return err
		}
		kept64, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DROP TABLE "+old); err != nil {
			return err
		}
		s.Logger.Infof("Repaired %s: %d rows kept, %d orphans dropped", table, kept64, total-int(kept64))
	}
	return nil
}
