package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"reservas/internal/config"
	"reservas/internal/metrics"

	"github.com/rs/zerolog"
)

const backupTimeLayout = "20060102_150405"

// BackupService snapshots the open database into StoragePath on a fixed
// interval and prunes snapshots older than RetentionDays.
type BackupService struct {
	db     *DB
	prefix string
	config config.BackupConfig
	logger *zerolog.Logger
}

// NewBackupService names snapshots <prefix>_<timestamp>.db; only files with
// that prefix are ever pruned, so two services may share a directory.
func NewBackupService(db *DB, prefix string, cfg config.BackupConfig, logger *zerolog.Logger) *BackupService {
	if cfg.Interval <= 0 {
		cfg.Interval = 24 * time.Hour
	}
	return &BackupService{db: db, prefix: prefix, config: cfg, logger: logger}
}

// Start takes a snapshot right away and then once per interval until ctx ends.
func (s *BackupService) Start(ctx context.Context) {
	if !s.config.Enabled {
		s.logger.Info().Msg("backup service is disabled")
		return
	}
	s.logger.Info().Dur("interval", s.config.Interval).Str("storage_path", s.config.StoragePath).Msg("backup service started")

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	s.runOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *BackupService) runOnce(ctx context.Context) {
	if _, err := s.PerformBackup(ctx); err != nil {
		s.logger.Error().Err(err).Msg("backup failed")
	}
	s.CleanupOldBackups(time.Now())
}

// PerformBackup writes a consistent copy with VACUUM INTO and returns its path.
func (s *BackupService) PerformBackup(ctx context.Context) (string, error) {
	if err := os.MkdirAll(s.config.StoragePath, 0o755); err != nil {
		metrics.IncBackup("failed")
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	name := fmt.Sprintf("%s_%s.db", s.prefix, time.Now().UTC().Format(backupTimeLayout))
	path := filepath.Join(s.config.StoragePath, name)
	// VACUUM INTO refuses to overwrite, and two runs may land in the same second
	_ = os.Remove(path)

	if _, err := s.db.ExecContext(ctx, `VACUUM INTO ?`, path); err != nil {
		_ = os.Remove(path)
		metrics.IncBackup("failed")
		return "", fmt.Errorf("failed to vacuum into %s: %w", path, err)
	}

	metrics.IncBackup("ok")
	s.logger.Info().Str("path", path).Msg("backup completed")
	return path, nil
}

// CleanupOldBackups removes this service's snapshots last modified before
// now minus RetentionDays and reports how many were removed.
func (s *BackupService) CleanupOldBackups(now time.Time) int {
	if s.config.RetentionDays <= 0 {
		return 0
	}

	files, err := os.ReadDir(s.config.StoragePath)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to read backup directory for cleanup")
		return 0
	}

	cutoff := now.AddDate(0, 0, -s.config.RetentionDays)
	removed := 0
	for _, file := range files {
		name := file.Name()
		if file.IsDir() || !strings.HasPrefix(name, s.prefix+"_") || !strings.HasSuffix(name, ".db") {
			continue
		}
		info, err := file.Info()
		if err != nil {
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.config.StoragePath, name)); err != nil {
			s.logger.Warn().Err(err).Str("file", name).Msg("failed to delete old backup")
			continue
		}
		s.logger.Info().Str("file", name).Msg("old backup deleted")
		removed++
	}
	return removed
}
