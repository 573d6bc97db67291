package repository

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clipvault/internal/config"
	"clipvault/internal/shared"
)

// openRepo opens a catalog store without running the schema lifecycle, so a
// test can stage a pre-existing layout first.
func openRepo(t *testing.T, cfg *config.Config) *Repository {
	t.Helper()
	repo, err := NewRepository(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

// stageLegacyStore lays down the oldest deployed layout: no URL key column,
// no vault bookkeeping, no named indexes, no version table.
func stageLegacyStore(t *testing.T, repo *Repository) {
	t.Helper()
	_, err := repo.DB.Exec(`
		CREATE TABLE videos (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			title TEXT NOT NULL,
			file_id TEXT,
			file_unique_id TEXT,
			source_url TEXT,
			created_at TEXT DEFAULT CURRENT_TIMESTAMP
		);
		CREATE TABLE categories (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE
		);
		CREATE TABLE video_categories (
			video_id INTEGER NOT NULL,
			category_id INTEGER NOT NULL,
			PRIMARY KEY(video_id, category_id),
			FOREIGN KEY(video_id) REFERENCES videos(id) ON DELETE CASCADE,
			FOREIGN KEY(category_id) REFERENCES categories(id) ON DELETE CASCADE
		);
		CREATE TABLE favorites (
			user_id INTEGER NOT NULL,
			video_id INTEGER NOT NULL,
			PRIMARY KEY(user_id, video_id),
			FOREIGN KEY(video_id) REFERENCES videos(id) ON DELETE CASCADE
		);
	`)
	require.NoError(t, err)
}

func countRowsIn(t *testing.T, repo *Repository, table string) int {
	t.Helper()
	var n int
	require.NoError(t, repo.DB.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

func TestEnsureSchemaFreshInstall(t *testing.T) {
	repo := openRepo(t, testConfig(t))

	require.NoError(t, repo.EnsureSchema())

	for _, table := range []string{"videos", "categories", "video_categories", "favorites", gooseVersionTable} {
		exists, err := repo.tableExists(table)
		require.NoError(t, err)
		assert.True(t, exists, "table %s", table)
	}
	require.NoError(t, repo.ValidateSchema())
}

func TestEnsureSchemaIdempotent(t *testing.T) {
	repo := openRepo(t, testConfig(t))
	require.NoError(t, repo.EnsureSchema())

	mustCreate(t, repo, VideoParams{Title: "clip", FileUniqueID: "uid-1"})

	var versionsBefore int
	require.NoError(t, repo.DB.QueryRow("SELECT COUNT(*) FROM "+gooseVersionTable).Scan(&versionsBefore))

	require.NoError(t, repo.EnsureSchema())

	assert.Equal(t, 1, countRowsIn(t, repo, "videos"))
	var versionsAfter int
	require.NoError(t, repo.DB.QueryRow("SELECT COUNT(*) FROM "+gooseVersionTable).Scan(&versionsAfter))
	assert.Equal(t, versionsBefore, versionsAfter, "no migration re-applied")
}

func TestEnsureSchemaRebuildsLegacyStore(t *testing.T) {
	repo := openRepo(t, testConfig(t))
	stageLegacyStore(t, repo)

	// Rows 1 and 2 collide on the content key; rows 3 and 4 are the same
	// address in different spellings. The legacy layout allowed all four.
	_, err := repo.DB.Exec(`
		INSERT INTO videos(id, title, file_id, file_unique_id, source_url) VALUES
			(1, 'keeper', 'f1', 'uid-dup', NULL),
			(2, 'shadow', 'f2', 'uid-dup', NULL),
			(3, 'url keeper', 'f3', 'uid-3', 'https://Example.com/x/'),
			(4, 'url shadow', 'f4', 'uid-4', 'example.com/x');
	`)
	require.NoError(t, err)

	require.NoError(t, repo.EnsureSchema())

	assert.Equal(t, 2, countRowsIn(t, repo, "videos"))

	survivor, err := repo.FindByContentKey("uid-dup")
	require.NoError(t, err)
	assert.Equal(t, int64(1), survivor.ID, "first row wins a dedup collision")
	assert.Equal(t, "keeper", survivor.Title)

	urlKeeper, err := repo.FindByURL("example.com/x")
	require.NoError(t, err)
	assert.Equal(t, int64(3), urlKeeper.ID)
	assert.Equal(t, "https://Example.com/x/", urlKeeper.SourceURL, "raw URL survives the copy")
	assert.Equal(t, "example.com/x", urlKeeper.SourceURLNorm, "key is computed for legacy rows")

	require.NoError(t, repo.ValidateSchema())
}

func TestEnsureSchemaRepairsDependentTables(t *testing.T) {
	repo := openRepo(t, testConfig(t))
	stageLegacyStore(t, repo)

	_, err := repo.DB.Exec(`
		INSERT INTO videos(id, title, file_unique_id) VALUES
			(1, 'keeper', 'uid-dup'),
			(2, 'shadow', 'uid-dup');
		INSERT INTO categories(id, name) VALUES (1, 'Easy');
		INSERT INTO video_categories(video_id, category_id) VALUES (1, 1), (2, 1);
		INSERT INTO favorites(user_id, video_id) VALUES (7, 1), (7, 2);
	`)
	require.NoError(t, err)

	require.NoError(t, repo.EnsureSchema())

	// Rows pointing at the dropped video are orphans and must not survive.
	assert.Equal(t, 1, countRowsIn(t, repo, "video_categories"))
	assert.Equal(t, 1, countRowsIn(t, repo, "favorites"))

	fav, err := repo.IsFavorite(7, 1)
	require.NoError(t, err)
	assert.True(t, fav)

	names, err := repo.VideoCategories(1)
	require.NoError(t, err)
	assert.Equal(t, []string{"Easy"}, names)

	// The repaired tables must reference the live parent again.
	var def string
	require.NoError(t, repo.DB.QueryRow(
		"SELECT sql FROM sqlite_master WHERE type='table' AND name = 'favorites'").Scan(&def))
	assert.NotContains(t, def, "videos_legacy")
}

func TestEnsureSchemaRebuildsInlineUniqueLayout(t *testing.T) {
	repo := openRepo(t, testConfig(t))

	// A later pre-versioning layout: right columns, wrong constraint style.
	_, err := repo.DB.Exec(`
		CREATE TABLE videos (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			title TEXT NOT NULL,
			file_id TEXT,
			file_unique_id TEXT UNIQUE,
			source_url TEXT,
			source_url_normalized TEXT UNIQUE,
			storage_chat_id INTEGER,
			storage_message_id INTEGER,
			needs_refresh INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		INSERT INTO videos(id, title, file_unique_id) VALUES (1, 'clip', 'uid-1');
	`)
	require.NoError(t, err)

	require.NoError(t, repo.EnsureSchema())
	require.NoError(t, repo.ValidateSchema())

	got, err := repo.FindByContentKey("uid-1")
	require.NoError(t, err)
	assert.Equal(t, "clip", got.Title)

	// The named-index layout tolerates many key-less rows; the inline one
	// would too, but upserts need the named index to exist.
	_, err = repo.DB.Exec("INSERT INTO videos(title) VALUES ('a'), ('b')")
	require.NoError(t, err)
}

func TestEnsureSchemaLeavesHealthyUnversionedStoreAlone(t *testing.T) {
	cfg := testConfig(t)
	first := openRepo(t, cfg)
	require.NoError(t, first.EnsureSchema())
	mustCreate(t, first, VideoParams{Title: "clip"})
	require.NoError(t, first.Close())

	// Reopening an already-migrated store must not rebuild anything.
	second := openRepo(t, cfg)
	require.NoError(t, second.EnsureSchema())
	assert.Equal(t, 1, countRowsIn(t, second, "videos"))
}

func TestEnsureSchemaCorruptStore(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.WriteFile(cfg.Database.Path, []byte("definitely not a database file, padded to look like one"), 0o644))

	repo, err := NewRepository(cfg)
	if err != nil {
		assert.ErrorIs(t, err, shared.ErrStorageFault)
		return
	}
	defer repo.Close()

	assert.ErrorIs(t, repo.EnsureSchema(), shared.ErrStorageFault)
}
