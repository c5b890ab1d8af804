package backup

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongccna/ProjectBotTrading-sub001/internal/clock"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/database"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/domain"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/version"
)

var backupTestNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type fakeStore struct {
	mu        sync.Mutex
	uploads   map[string][]byte
	objects   []types.Object
	deleted   []string
	uploadErr error
	listErr   error
	deleteErr map[string]error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		uploads:   map[string][]byte{},
		deleteErr: map[string]error{},
	}
}

func (f *fakeStore) Upload(_ context.Context, key string, body io.Reader, _ int64) error {
	if f.uploadErr != nil {
		return f.uploadErr
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.uploads[key] = data
	f.mu.Unlock()
	return nil
}

func (f *fakeStore) List(_ context.Context, _ string) ([]types.Object, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.objects, nil
}

func (f *fakeStore) Delete(_ context.Context, key string) error {
	if err, ok := f.deleteErr[key]; ok {
		return err
	}
	f.mu.Lock()
	f.deleted = append(f.deleted, key)
	f.mu.Unlock()
	return nil
}

type fakeBackupObserver struct {
	mu      sync.Mutex
	results []string
}

func (f *fakeBackupObserver) ObserveBackup(result string) {
	f.mu.Lock()
	f.results = append(f.results, result)
	f.mu.Unlock()
}

func (f *fakeBackupObserver) observed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.results))
	copy(out, f.results)
	return out
}

// testDatabases opens two small live databases with one row each, the way
// the control plane runs them.
func testDatabases(t *testing.T, dir string) map[string]*database.DB {
	t.Helper()

	dbs := map[string]*database.DB{}
	for _, name := range []string{"audit", "state"} {
		db, err := database.New(database.Config{
			Path:    filepath.Join(dir, name+".db"),
			Profile: database.ProfileStandard,
			Name:    name,
		})
		require.NoError(t, err)
		t.Cleanup(func() { _ = db.Close() })

		_, err = db.Exec("CREATE TABLE entries (id INTEGER PRIMARY KEY, note TEXT)")
		require.NoError(t, err)
		_, err = db.Exec("INSERT INTO entries (note) VALUES (?)", name+" row")
		require.NoError(t, err)

		dbs[name] = db
	}
	return dbs
}

func newBackupService(t *testing.T, store ObjectStore, obs Observer) (*Service, string) {
	t.Helper()
	dataDir := t.TempDir()
	svc := New(store, testDatabases(t, dataDir), dataDir, clock.NewFrozen(backupTestNow), obs, zerolog.Nop())
	return svc, dataDir
}

// readArchive unpacks a tar.gz into member name → contents.
func readArchive(t *testing.T, data []byte) map[string][]byte {
	t.Helper()

	gz, err := gzip.NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer gz.Close()

	members := map[string][]byte{}
	tr := tar.NewReader(gz)
	for {
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)

		content, err := io.ReadAll(tr)
		require.NoError(t, err)
		members[header.Name] = content
	}
	return members
}

func archiveObject(ts time.Time) types.Object {
	key := archivePrefix + ts.UTC().Format(archiveTimeFormat) + ".tar.gz"
	return types.Object{Key: aws.String(key), Size: aws.Int64(1024)}
}

func TestCreateAndUploadBackupArchivesDatabases(t *testing.T) {
	store := newFakeStore()
	obs := &fakeBackupObserver{}
	svc, dataDir := newBackupService(t, store, obs)

	err := svc.CreateAndUploadBackup(context.Background())
	require.NoError(t, err)

	wantKey := "controlplane-backup-2025-06-01-120000.tar.gz"
	require.Contains(t, store.uploads, wantKey)

	members := readArchive(t, store.uploads[wantKey])
	require.Contains(t, members, "audit.db")
	require.Contains(t, members, "state.db")
	require.Contains(t, members, "backup-metadata.json")

	var meta Metadata
	require.NoError(t, json.Unmarshal(members["backup-metadata.json"], &meta))
	assert.WithinDuration(t, backupTestNow, meta.Timestamp, 0)
	assert.Equal(t, version.Version, meta.AppVersion)
	require.Len(t, meta.Databases, 2)

	// Stable order and checksums that match the archived bytes.
	assert.Equal(t, "audit", meta.Databases[0].Name)
	assert.Equal(t, "state", meta.Databases[1].Name)
	for _, dbMeta := range meta.Databases {
		content := members[dbMeta.Filename]
		assert.Equal(t, int64(len(content)), dbMeta.SizeBytes)
		assert.Equal(t, fmt.Sprintf("sha256:%x", sha256.Sum256(content)), dbMeta.Checksum)
	}

	assert.Equal(t, []string{"success"}, obs.observed())

	_, err = os.Stat(filepath.Join(dataDir, "backup-staging"))
	assert.True(t, os.IsNotExist(err), "staging directory should be removed")
}

func TestCreateAndUploadBackupSnapshotsAreRealDatabases(t *testing.T) {
	store := newFakeStore()
	svc, _ := newBackupService(t, store, nil)

	require.NoError(t, svc.CreateAndUploadBackup(context.Background()))

	members := readArchive(t, store.uploads["controlplane-backup-2025-06-01-120000.tar.gz"])

	// Restore the audit snapshot and read it back.
	restored := filepath.Join(t.TempDir(), "restored.db")
	require.NoError(t, os.WriteFile(restored, members["audit.db"], 0644))

	db, err := database.New(database.Config{Path: restored, Name: "restored"})
	require.NoError(t, err)
	defer db.Close()

	var note string
	require.NoError(t, db.QueryRow("SELECT note FROM entries").Scan(&note))
	assert.Equal(t, "audit row", note)
}

func TestCreateAndUploadBackupUploadFailure(t *testing.T) {
	store := newFakeStore()
	store.uploadErr = errors.New("bucket offline")
	obs := &fakeBackupObserver{}
	svc, dataDir := newBackupService(t, store, obs)

	err := svc.CreateAndUploadBackup(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to upload archive")
	assert.Equal(t, []string{"failure"}, obs.observed())

	_, err = os.Stat(filepath.Join(dataDir, "backup-staging"))
	assert.True(t, os.IsNotExist(err), "staging directory should be removed on failure too")
}

func TestListBackupsParsesAndSortsNewestFirst(t *testing.T) {
	store := newFakeStore()
	store.objects = []types.Object{
		archiveObject(backupTestNow.Add(-48 * time.Hour)),
		archiveObject(backupTestNow.Add(-2 * time.Hour)),
		archiveObject(backupTestNow.Add(-24 * time.Hour)),
		{Key: aws.String("controlplane-backup-notatime.tar.gz"), Size: aws.Int64(10)},
		{Key: aws.String("controlplane-backup-2025-05-01-000000.zip"), Size: aws.Int64(10)},
		{Key: nil, Size: aws.Int64(10)},
	}
	svc, _ := newBackupService(t, store, nil)

	backups, err := svc.ListBackups(context.Background())
	require.NoError(t, err)
	require.Len(t, backups, 3)

	assert.Equal(t, backupTestNow.Add(-2*time.Hour), backups[0].Timestamp)
	assert.Equal(t, backupTestNow.Add(-24*time.Hour), backups[1].Timestamp)
	assert.Equal(t, backupTestNow.Add(-48*time.Hour), backups[2].Timestamp)

	assert.Equal(t, int64(2), backups[0].AgeHours)
	assert.Equal(t, int64(24), backups[1].AgeHours)
	assert.Equal(t, int64(1024), backups[0].SizeBytes)
}

func TestRotateOldBackupsKeepsNewestThree(t *testing.T) {
	store := newFakeStore()
	store.objects = []types.Object{
		archiveObject(backupTestNow.Add(-24 * time.Hour)),
		archiveObject(backupTestNow.Add(-48 * time.Hour)),
		archiveObject(backupTestNow.AddDate(0, 0, -10)),
		archiveObject(backupTestNow.AddDate(0, 0, -11)),
		archiveObject(backupTestNow.AddDate(0, 0, -12)),
	}
	svc, _ := newBackupService(t, store, nil)

	require.NoError(t, svc.RotateOldBackups(context.Background(), 7))

	// The three newest survive even though one of them is past retention.
	wantDeleted := []string{
		archivePrefix + backupTestNow.AddDate(0, 0, -11).Format(archiveTimeFormat) + ".tar.gz",
		archivePrefix + backupTestNow.AddDate(0, 0, -12).Format(archiveTimeFormat) + ".tar.gz",
	}
	assert.Equal(t, wantDeleted, store.deleted)
}

func TestRotateOldBackupsRetentionZeroKeepsEverything(t *testing.T) {
	store := newFakeStore()
	for i := 1; i <= 5; i++ {
		store.objects = append(store.objects, archiveObject(backupTestNow.AddDate(0, 0, -30*i)))
	}
	svc, _ := newBackupService(t, store, nil)

	require.NoError(t, svc.RotateOldBackups(context.Background(), 0))
	assert.Empty(t, store.deleted)
}

func TestRotateOldBackupsNeverDropsBelowMinimum(t *testing.T) {
	store := newFakeStore()
	store.objects = []types.Object{
		archiveObject(backupTestNow.AddDate(0, 0, -100)),
		archiveObject(backupTestNow.AddDate(0, 0, -200)),
		archiveObject(backupTestNow.AddDate(0, 0, -300)),
	}
	svc, _ := newBackupService(t, store, nil)

	require.NoError(t, svc.RotateOldBackups(context.Background(), 1))
	assert.Empty(t, store.deleted)
}

func TestRotateOldBackupsContinuesPastDeleteFailure(t *testing.T) {
	stuck := archivePrefix + backupTestNow.AddDate(0, 0, -11).Format(archiveTimeFormat) + ".tar.gz"

	store := newFakeStore()
	store.objects = []types.Object{
		archiveObject(backupTestNow.Add(-24 * time.Hour)),
		archiveObject(backupTestNow.Add(-48 * time.Hour)),
		archiveObject(backupTestNow.AddDate(0, 0, -10)),
		archiveObject(backupTestNow.AddDate(0, 0, -11)),
		archiveObject(backupTestNow.AddDate(0, 0, -12)),
	}
	store.deleteErr[stuck] = errors.New("access denied")
	svc, _ := newBackupService(t, store, nil)

	require.NoError(t, svc.RotateOldBackups(context.Background(), 7))

	wantDeleted := []string{
		archivePrefix + backupTestNow.AddDate(0, 0, -12).Format(archiveTimeFormat) + ".tar.gz",
	}
	assert.Equal(t, wantDeleted, store.deleted)
}

func TestRunnerRunNowReportsHealth(t *testing.T) {
	store := newFakeStore()
	svc, _ := newBackupService(t, store, nil)

	runner, err := NewRunner(svc, "0 0 3 * * *", 7, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, "backup", runner.Name())

	require.NoError(t, runner.RunNow(context.Background()))

	health := runner.Health()
	assert.Equal(t, domain.ModuleOK, health.Status)
	assert.Equal(t, backupTestNow, health.LastHeartbeat)
	assert.Empty(t, health.Details)
}

func TestRunnerRunNowFailureDegradesHealth(t *testing.T) {
	store := newFakeStore()
	store.uploadErr = errors.New("bucket offline")
	svc, _ := newBackupService(t, store, nil)

	runner, err := NewRunner(svc, "0 0 3 * * *", 7, zerolog.Nop())
	require.NoError(t, err)

	require.Error(t, runner.RunNow(context.Background()))

	health := runner.Health()
	assert.Equal(t, domain.ModuleDegraded, health.Status)
	assert.Contains(t, health.Details["last_error"], "bucket offline")
}

func TestRunnerStartStop(t *testing.T) {
	store := newFakeStore()
	svc, _ := newBackupService(t, store, nil)

	runner, err := NewRunner(svc, "0 0 3 * * *", 7, zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, runner.Start())
	require.NoError(t, runner.Stop())
	assert.Empty(t, store.uploads, "no backup should run before the first tick")
}

func TestNewRunnerRejectsBadSchedule(t *testing.T) {
	store := newFakeStore()
	svc, _ := newBackupService(t, store, nil)

	_, err := NewRunner(svc, "every day at three", 7, zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to schedule backup job")
}
