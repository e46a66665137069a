// Package snapshot backs the SQLite database up to Cloudflare R2 as a
// zstd-compressed object, on an interval and once more at shutdown, and
// restores it at boot when the local file is missing. The live database
// stays the system of record; the snapshot only survives host loss.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/twmops/mops-linebot-go/internal/logger"
	"github.com/twmops/mops-linebot-go/internal/metrics"
	"github.com/twmops/mops-linebot-go/internal/r2client"
	"github.com/twmops/mops-linebot-go/internal/storage"
)

// ErrNotFound indicates no snapshot exists in R2.
var ErrNotFound = errors.New("snapshot: not found")

// defaultKey is the R2 object key snapshots live under.
const defaultKey = "snapshots/mops-linebot.db.zst"

// Manager handles snapshot upload and restore against one R2 object.
type Manager struct {
	client  *r2client.Client
	key     string
	tempDir string
	log     *logger.Logger
	m       *metrics.Metrics
}

// ManagerConfig holds dependencies for creating a Manager.
type ManagerConfig struct {
	Client  *r2client.Client
	Key     string // R2 object key, defaults to snapshots/mops-linebot.db.zst
	TempDir string // scratch space, defaults to os.TempDir()
	Logger  *logger.Logger
	Metrics *metrics.Metrics
}

// NewManager creates a snapshot manager.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Key == "" {
		cfg.Key = defaultKey
	}
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	return &Manager{
		client:  cfg.Client,
		key:     cfg.Key,
		tempDir: cfg.TempDir,
		log:     cfg.Logger,
		m:       cfg.Metrics,
	}
}

// Restore downloads and decompresses the latest snapshot to dbPath when
// no local database exists yet. It returns ErrNotFound when the bucket
// holds no snapshot; a fresh deployment starts empty.
func (m *Manager) Restore(ctx context.Context, dbPath string) error {
	if _, err := os.Stat(dbPath); err == nil {
		if m.log != nil {
			m.log.Infof("local database exists, skipping snapshot restore")
		}
		return nil
	}

	body, etag, err := m.client.Download(ctx, m.key)
	if err != nil {
		if errors.Is(err, r2client.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("download snapshot: %w", err)
	}
	defer func() { _ = body.Close() }()

	if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create database directory: %w", err)
		}
	}

	// Decompress to a sibling temp file first so a torn download never
	// leaves a half-written database behind.
	tmpPath := dbPath + ".restore"
	if err := r2client.DecompressStream(body, tmpPath); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("decompress snapshot: %w", err)
	}
	if err := os.Rename(tmpPath, dbPath); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("install restored database: %w", err)
	}

	if m.log != nil {
		m.log.Infof("restored database from snapshot (etag %s)", etag)
	}
	return nil
}

// UploadOnce snapshots the database, compresses it and uploads it to
// R2, replacing the previous snapshot object.
func (m *Manager) UploadOnce(ctx context.Context, db *storage.DB) error {
	snapshotPath := filepath.Join(m.tempDir, fmt.Sprintf("snapshot_%d.db", time.Now().UnixNano()))
	if err := db.CreateSnapshot(ctx, snapshotPath); err != nil {
		m.record("error", 0)
		return fmt.Errorf("create snapshot: %w", err)
	}
	defer func() { _ = os.Remove(snapshotPath) }()

	compressedPath := snapshotPath + ".zst"
	if err := r2client.CompressFile(snapshotPath, compressedPath); err != nil {
		m.record("error", 0)
		return fmt.Errorf("compress snapshot: %w", err)
	}
	defer func() { _ = os.Remove(compressedPath) }()

	compressedFile, err := os.Open(compressedPath)
	if err != nil {
		m.record("error", 0)
		return fmt.Errorf("open compressed snapshot: %w", err)
	}
	defer func() { _ = compressedFile.Close() }()

	info, err := compressedFile.Stat()
	if err != nil {
		m.record("error", 0)
		return fmt.Errorf("stat compressed snapshot: %w", err)
	}

	etag, err := m.client.Upload(ctx, m.key, compressedFile, "application/zstd")
	if err != nil {
		m.record("error", 0)
		return fmt.Errorf("upload snapshot: %w", err)
	}

	m.record("success", info.Size())
	if m.log != nil {
		m.log.Infof("uploaded snapshot, %d bytes compressed (etag %s)", info.Size(), etag)
	}
	return nil
}

// Run uploads on every interval tick until the context is canceled,
// then takes one final snapshot so shutdown never loses writes. The
// final upload uses its own deadline because ctx is already done.
func (m *Manager) Run(ctx context.Context, db *storage.DB, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			finalCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			if err := m.UploadOnce(finalCtx, db); err != nil && m.log != nil {
				m.log.WithError(err).Errorf("final snapshot upload failed")
			}
			return
		case <-ticker.C:
			if err := m.UploadOnce(ctx, db); err != nil && m.log != nil {
				m.log.WithError(err).Errorf("snapshot upload failed")
			}
		}
	}
}

func (m *Manager) record(status string, bytes int64) {
	if m.m != nil {
		m.m.RecordSnapshot(status, bytes)
	}
}
