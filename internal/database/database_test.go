package database

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/skyhil/hilbridge/internal/config"
	"github.com/skyhil/hilbridge/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPostgresDSN(t *testing.T) {
	dsn := PostgresDSN(config.PostgresConfig{
		Host: "db", Port: "5432", Username: "hil", Password: "pw", Database: "flights",
	})
	assert.Equal(t, "host=db port=5432 user=hil password=pw dbname=flights sslmode=disable", dsn)
}

func TestOpenSQLite_FileAndSetup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	db, err := OpenSQLite(path)
	require.NoError(t, err)

	require.NoError(t, Setup(db, quietLogger()))
	for _, m := range model.DatabaseModels {
		assert.True(t, db.Migrator().HasTable(m), "missing table for %T", m)
	}
}

func TestDumpMemoryDBToDisk(t *testing.T) {
	src, err := OpenSQLite(filepath.Join(t.TempDir(), "src.db"))
	require.NoError(t, err)
	require.NoError(t, Setup(src, quietLogger()))
	run := model.Run{VehicleName: "Pixhawk"}
	require.NoError(t, src.Create(&run).Error)
	require.NoError(t, src.Create(&model.StatusEvent{RunID: run.ID, Kind: "info", Message: "hello"}).Error)

	out := filepath.Join(t.TempDir(), "dump", "run.db")
	require.NoError(t, DumpMemoryDBToDisk(src, out))
	// Second dump replaces the first.
	require.NoError(t, DumpMemoryDBToDisk(src, out))

	dumped, err := OpenSQLite(out)
	require.NoError(t, err)
	var count int64
	require.NoError(t, dumped.Model(&model.StatusEvent{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestDumpMemoryDBToDisk_BadPath(t *testing.T) {
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "x.db"))
	require.NoError(t, err)

	assert.Error(t, DumpMemoryDBToDisk(db, ""))
	assert.Error(t, DumpMemoryDBToDisk(db, "/tmp/it's.db"))
}

func TestGetBackupDBPaths(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.db", "b.db", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.db"), 0755))

	paths, err := GetBackupDBPaths(dir)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{filepath.Join(dir, "a.db"), filepath.Join(dir, "b.db")}, paths)
}
