package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"tallybook/internal/config"

	"github.com/rs/zerolog"
)

// MaintenanceService periodically snapshots the queue database and prunes
// entries the remote has already confirmed.
type MaintenanceService struct {
	db     *DB
	config config.BackupConfig
	logger *zerolog.Logger
}

func NewMaintenanceService(db *DB, cfg config.BackupConfig, logger *zerolog.Logger) *MaintenanceService {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &MaintenanceService{
		db:     db,
		config: cfg,
		logger: logger,
	}
}

func (s *MaintenanceService) Start(ctx context.Context) {
	if !s.config.Enabled && s.config.PruneSyncedAfter <= 0 {
		s.logger.Info().Msg("Maintenance service is disabled")
		return
	}

	interval := 24 * time.Hour
	if s.config.Schedule != "" {
		if d, err := time.ParseDuration(s.config.Schedule); err == nil && d > 0 {
			interval = d
		} else {
			s.logger.Warn().Err(err).Str("schedule", s.config.Schedule).Msg("Failed to parse maintenance schedule, using default 24h")
		}
	}

	s.logger.Info().Dur("interval", interval).Msg("Maintenance service started")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce performs one backup and prune cycle according to config.
func (s *MaintenanceService) RunOnce(ctx context.Context) {
	if s.config.Enabled {
		if _, err := s.PerformBackup(ctx); err != nil {
			s.logger.Error().Err(err).Msg("Scheduled backup failed")
		}
		s.CleanupOldBackups()
	}

	if s.config.PruneSyncedAfter > 0 {
		if _, err := s.PruneSynced(ctx); err != nil {
			s.logger.Error().Err(err).Msg("Pruning synced entries failed")
		}
	}
}

// PerformBackup writes a consistent copy of the queue with VACUUM INTO and
// returns the backup file path.
func (s *MaintenanceService) PerformBackup(ctx context.Context) (string, error) {
	if err := os.MkdirAll(s.config.StoragePath, 0o755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	timestamp := time.Now().Format("20060102_150405.000")
	backupPath := filepath.Join(s.config.StoragePath, fmt.Sprintf("queue_%s.db", timestamp))

	s.logger.Info().Str("path", backupPath).Msg("Performing queue backup using VACUUM INTO")

	escaped := strings.ReplaceAll(backupPath, "'", "''")
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf("VACUUM INTO '%s'", escaped)); err != nil {
		return "", fmt.Errorf("vacuum into %s: %w", backupPath, err)
	}

	s.logger.Info().Msg("Backup completed successfully")
	return backupPath, nil
}

// CleanupOldBackups removes backup files older than the retention window.
func (s *MaintenanceService) CleanupOldBackups() {
	if s.config.RetentionDays <= 0 {
		return
	}

	files, err := os.ReadDir(s.config.StoragePath)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to read backup directory for cleanup")
		return
	}

	cutoff := time.Now().AddDate(0, 0, -s.config.RetentionDays)

	for _, file := range files {
		if file.IsDir() {
			continue
		}

		info, err := file.Info()
		if err != nil {
			continue
		}

		if info.ModTime().Before(cutoff) {
			s.logger.Info().Str("file", file.Name()).Msg("Deleting old backup")
			if err := os.Remove(filepath.Join(s.config.StoragePath, file.Name())); err != nil {
				s.logger.Warn().Err(err).Str("file", file.Name()).Msg("Failed to delete old backup")
			}
		}
	}
}

// PruneSynced drops synced entries older than PruneSyncedAfter.
func (s *MaintenanceService) PruneSynced(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-s.config.PruneSyncedAfter)
	n, err := s.db.Prune(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info().Int64("pruned", n).Time("cutoff", cutoff).Msg("Pruned synced entries")
	}
	return n, nil
}
