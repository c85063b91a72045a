package database

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"reservas/internal/config"
	"reservas/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackupService(t *testing.T) {
	tempDir := t.TempDir()
	logger := zerolog.Nop()

	db, err := NewDB(filepath.Join(tempDir, "catalog.db"), &logger, CatalogSchema)
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.CreateSpace(context.Background(), &models.Space{Name: "Sala A", Capacity: 5, Active: true}))

	storagePath := filepath.Join(tempDir, "backups")
	cfg := config.BackupConfig{Enabled: true, StoragePath: storagePath, RetentionDays: 1}
	s := NewBackupService(db, "catalog", cfg, &logger)

	t.Run("PerformBackup", func(t *testing.T) {
		path, err := s.PerformBackup(context.Background())
		require.NoError(t, err)
		assert.FileExists(t, path)

		snapshot, err := sql.Open("sqlite3", path)
		require.NoError(t, err)
		defer snapshot.Close()
		var name string
		require.NoError(t, snapshot.QueryRow(`SELECT name FROM spaces`).Scan(&name))
		assert.Equal(t, "Sala A", name)
	})

	t.Run("CleanupOldBackups", func(t *testing.T) {
		oldTime := time.Now().AddDate(0, 0, -2)
		for _, name := range []string{"catalog_20240101_000000.db", "booking_20240101_000000.db", "notes.txt"} {
			file := filepath.Join(storagePath, name)
			require.NoError(t, os.WriteFile(file, []byte("old"), 0o644))
			require.NoError(t, os.Chtimes(file, oldTime, oldTime))
		}

		assert.Equal(t, 1, s.CleanupOldBackups(time.Now()))

		files, err := os.ReadDir(storagePath)
		require.NoError(t, err)
		var names []string
		for _, f := range files {
			names = append(names, f.Name())
		}
		assert.Len(t, names, 3)
		assert.NotContains(t, names, "catalog_20240101_000000.db")
		assert.Contains(t, names, "booking_20240101_000000.db")
	})

	t.Run("no retention keeps everything", func(t *testing.T) {
		keep := NewBackupService(db, "catalog", config.BackupConfig{Enabled: true, StoragePath: storagePath}, &logger)
		assert.Zero(t, keep.CleanupOldBackups(time.Now().AddDate(1, 0, 0)))
	})
}

func TestBackupService_Start(t *testing.T) {
	logger := zerolog.Nop()
	db, err := NewDB(filepath.Join(t.TempDir(), "booking.db"), &logger, BookingSchema)
	require.NoError(t, err)
	defer db.Close()

	storagePath := filepath.Join(t.TempDir(), "backups")
	s := NewBackupService(db, "booking", config.BackupConfig{Enabled: true, Interval: time.Hour, StoragePath: storagePath}, &logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		files, err := os.ReadDir(storagePath)
		return err == nil && len(files) == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("backup service did not stop")
	}
}

func TestBackupService_Disabled(t *testing.T) {
	logger := zerolog.Nop()
	storagePath := filepath.Join(t.TempDir(), "never")
	s := NewBackupService(nil, "booking", config.BackupConfig{StoragePath: storagePath}, &logger)

	s.Start(context.Background())
	assert.NoDirExists(t, storagePath)
}
