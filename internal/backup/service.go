// Package backup snapshots the control plane's SQLite databases into a
// tar.gz archive and ships it to an S3-compatible bucket. Backups run on
// their own schedule and never touch the control path: a failed run is
// logged and counted, and the next scheduled run is the retry.
package backup

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuongccna/ProjectBotTrading-sub001/internal/clock"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/database"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/version"
)

// archivePrefix names every archive this service writes. Listing and
// rotation key off it, so changing it orphans existing archives.
const archivePrefix = "controlplane-backup-"

// archiveTimeFormat is embedded in archive filenames and parsed back out
// when listing.
const archiveTimeFormat = "2006-01-02-150405"

// minBackupsToKeep is the rotation floor: the newest archives survive
// regardless of age.
const minBackupsToKeep = 3

// metadataFilename is the checksum manifest inside each archive.
const metadataFilename = "backup-metadata.json"

// Observer receives backup run outcomes for metrics.
type Observer interface {
	ObserveBackup(result string)
}

// Metadata is the manifest written into each archive.
type Metadata struct {
	Timestamp  time.Time          `json:"timestamp"`
	Version    string             `json:"version"`
	AppVersion string             `json:"app_version"`
	Databases  []DatabaseMetadata `json:"databases"`
}

// DatabaseMetadata describes one database file inside an archive.
type DatabaseMetadata struct {
	Name      string `json:"name"`
	Filename  string `json:"filename"`
	SizeBytes int64  `json:"size_bytes"`
	Checksum  string `json:"checksum"`
}

// Info summarizes one archive found in the bucket.
type Info struct {
	Filename  string    `json:"filename"`
	Timestamp time.Time `json:"timestamp"`
	SizeBytes int64     `json:"size_bytes"`
	AgeHours  int64     `json:"age_hours"`
}

// Service snapshots the databases, packs them with a checksum manifest
// into a tar.gz, and uploads the archive.
type Service struct {
	store     ObjectStore
	databases map[string]*database.DB
	dataDir   string
	clk       clock.Clock
	obs       Observer
	log       zerolog.Logger
}

// New builds the service. The databases map archives under their map
// keys; obs may be nil.
func New(store ObjectStore, databases map[string]*database.DB, dataDir string, clk clock.Clock, obs Observer, log zerolog.Logger) *Service {
	return &Service{
		store:     store,
		databases: databases,
		dataDir:   dataDir,
		clk:       clk,
		obs:       obs,
		log:       log.With().Str("component", "backup").Logger(),
	}
}

// CreateAndUploadBackup snapshots every database into a staging directory,
// writes the manifest, packs a tar.gz and uploads it. The staging
// directory is removed on exit either way.
func (s *Service) CreateAndUploadBackup(ctx context.Context) error {
	if err := s.createAndUpload(ctx); err != nil {
		s.observe("failure")
		return err
	}
	s.observe("success")
	return nil
}

func (s *Service) createAndUpload(ctx context.Context) error {
	s.log.Info().Msg("Starting backup")
	started := s.clk.Now()

	stagingDir := filepath.Join(s.dataDir, "backup-staging")
	if err := os.MkdirAll(stagingDir, 0755); err != nil {
		return fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(stagingDir)

	names := s.databaseNames()
	meta := Metadata{
		Timestamp:  s.clk.Now().UTC(),
		Version:    "1.0.0",
		AppVersion: version.Version,
		Databases:  make([]DatabaseMetadata, 0, len(names)),
	}

	for _, name := range names {
		dst := filepath.Join(stagingDir, name+".db")

		s.log.Debug().Str("database", name).Msg("Snapshotting database")

		if err := s.snapshotDatabase(ctx, name, dst); err != nil {
			return fmt.Errorf("failed to snapshot %s: %w", name, err)
		}

		info, err := os.Stat(dst)
		if err != nil {
			return fmt.Errorf("failed to stat %s snapshot: %w", name, err)
		}

		checksum, err := fileChecksum(dst)
		if err != nil {
			return fmt.Errorf("failed to checksum %s snapshot: %w", name, err)
		}

		meta.Databases = append(meta.Databases, DatabaseMetadata{
			Name:      name,
			Filename:  name + ".db",
			SizeBytes: info.Size(),
			Checksum:  checksum,
		})
	}

	if err := writeMetadata(filepath.Join(stagingDir, metadataFilename), meta); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}

	archiveName := archivePrefix + s.clk.Now().UTC().Format(archiveTimeFormat) + ".tar.gz"
	archivePath := filepath.Join(stagingDir, archiveName)

	files := make([]string, 0, len(names)+1)
	for _, name := range names {
		files = append(files, name+".db")
	}
	files = append(files, metadataFilename)

	if err := createArchive(archivePath, stagingDir, files); err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}

	archiveInfo, err := os.Stat(archivePath)
	if err != nil {
		return fmt.Errorf("failed to stat archive: %w", err)
	}

	archiveFile, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer archiveFile.Close()

	if err := s.store.Upload(ctx, archiveName, archiveFile, archiveInfo.Size()); err != nil {
		return fmt.Errorf("failed to upload archive: %w", err)
	}

	s.log.Info().
		Dur("duration_ms", s.clk.Since(started)).
		Str("archive", archiveName).
		Int64("size_bytes", archiveInfo.Size()).
		Msg("Backup completed")

	return nil
}

// ListBackups returns the archives in the bucket, newest first. Objects
// whose names do not parse as archives are skipped.
func (s *Service) ListBackups(ctx context.Context) ([]Info, error) {
	objects, err := s.store.List(ctx, archivePrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list backups: %w", err)
	}

	backups := make([]Info, 0, len(objects))
	now := s.clk.Now()

	for _, obj := range objects {
		if obj.Key == nil {
			continue
		}

		filename := *obj.Key
		if !strings.HasPrefix(filename, archivePrefix) || !strings.HasSuffix(filename, ".tar.gz") {
			continue
		}

		stamp := strings.TrimSuffix(strings.TrimPrefix(filename, archivePrefix), ".tar.gz")
		timestamp, err := time.Parse(archiveTimeFormat, stamp)
		if err != nil {
			s.log.Warn().Str("filename", filename).Msg("Failed to parse timestamp from filename")
			continue
		}

		var sizeBytes int64
		if obj.Size != nil {
			sizeBytes = *obj.Size
		}

		backups = append(backups, Info{
			Filename:  filename,
			Timestamp: timestamp,
			SizeBytes: sizeBytes,
			AgeHours:  int64(now.Sub(timestamp).Hours()),
		})
	}

	// Newest first.
	sort.Slice(backups, func(i, j int) bool {
		return backups[i].Timestamp.After(backups[j].Timestamp)
	})

	return backups, nil
}

// RotateOldBackups deletes archives older than the retention period,
// always keeping the newest minBackupsToKeep. Retention 0 keeps
// everything. Delete failures are logged and skipped so one stuck object
// cannot stall the rotation.
func (s *Service) RotateOldBackups(ctx context.Context, retentionDays int) error {
	backups, err := s.ListBackups(ctx)
	if err != nil {
		return err
	}

	if len(backups) <= minBackupsToKeep {
		s.log.Debug().Int("count", len(backups)).Msg("Too few backups to rotate")
		return nil
	}
	if retentionDays <= 0 {
		return nil
	}

	cutoff := s.clk.Now().AddDate(0, 0, -retentionDays)

	deleted := 0
	for i, b := range backups {
		if i < minBackupsToKeep {
			continue
		}
		if !b.Timestamp.Before(cutoff) {
			continue
		}

		if err := s.store.Delete(ctx, b.Filename); err != nil {
			s.log.Error().Err(err).Str("filename", b.Filename).Msg("Failed to delete old backup")
			continue
		}

		s.log.Info().
			Str("filename", b.Filename).
			Time("timestamp", b.Timestamp).
			Msg("Deleted old backup")
		deleted++
	}

	s.log.Info().
		Int("deleted", deleted).
		Int("remaining", len(backups)-deleted).
		Msg("Backup rotation completed")

	return nil
}

// databaseNames returns the archive members in a stable order so manifest
// diffs between runs are meaningful.
func (s *Service) databaseNames() []string {
	names := make([]string, 0, len(s.databases))
	for name := range s.databases {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// snapshotDatabase writes a consistent copy of one database using VACUUM
// INTO, which works while the source stays live under WAL.
func (s *Service) snapshotDatabase(ctx context.Context, name, dst string) error {
	db, ok := s.databases[name]
	if !ok {
		return fmt.Errorf("unknown database %s", name)
	}

	// VACUUM INTO refuses to overwrite an existing file.
	if err := os.Remove(dst); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to clear stale snapshot: %w", err)
	}

	if _, err := db.ExecContext(ctx, "VACUUM INTO ?", dst); err != nil {
		return fmt.Errorf("vacuum into failed: %w", err)
	}
	return nil
}

func (s *Service) observe(result string) {
	if s.obs != nil {
		s.obs.ObserveBackup(result)
	}
}

// fileChecksum returns the file's SHA-256 in the manifest's
// "sha256:<hex>" form.
func fileChecksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, f); err != nil {
		return "", err
	}

	return fmt.Sprintf("sha256:%x", hash.Sum(nil)), nil
}

func writeMetadata(path string, meta Metadata) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(meta)
}

// createArchive packs the named files from sourceDir into a tar.gz at
// archivePath, preserving the bare filenames inside the archive.
func createArchive(archivePath, sourceDir string, filenames []string) error {
	archiveFile, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("failed to create archive file: %w", err)
	}
	defer archiveFile.Close()

	gzipWriter := gzip.NewWriter(archiveFile)
	defer gzipWriter.Close()

	tarWriter := tar.NewWriter(gzipWriter)
	defer tarWriter.Close()

	for _, filename := range filenames {
		if err := addFileToArchive(tarWriter, filepath.Join(sourceDir, filename), filename); err != nil {
			return fmt.Errorf("failed to add %s to archive: %w", filename, err)
		}
	}

	return nil
}

func addFileToArchive(tw *tar.Writer, path, nameInArchive string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	header := &tar.Header{
		Name:    nameInArchive,
		Size:    info.Size(),
		Mode:    int64(info.Mode()),
		ModTime: info.ModTime(),
	}

	if err := tw.WriteHeader(header); err != nil {
		return err
	}
	if _, err := io.Copy(tw, f); err != nil {
		return err
	}

	return nil
}
