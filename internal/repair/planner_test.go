package repair

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/chatrepair/internal/backup"
	crerrors "github.com/Aman-CERP/chatrepair/internal/errors"
	"github.com/Aman-CERP/chatrepair/internal/extract"
	"github.com/Aman-CERP/chatrepair/internal/index"
	"github.com/Aman-CERP/chatrepair/internal/store"
	"github.com/Aman-CERP/chatrepair/internal/store/storetest"
)

func sessionJSON(title string, ts int64) string {
	return fmt.Sprintf(`{"version":3,"requests":[{"message":{"parts":[{"text":%q}]},"timestamp":%d}]}`, title, ts)
}

func indexJSON(ids ...string) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf(`%q:{"sessionId":%q,"title":"t","lastMessageDate":%d,"isImported":false,"initialLocation":"panel","isEmpty":false}`, id, id, 100-i)
	}
	return `{"version":1,"entries":{` + strings.Join(parts, ",") + `}}`
}

// newTarget builds a workspace directory with the given session files and
// stored index.
func newTarget(t *testing.T, sessions map[string]string, storedIndex string) Target {
	t.Helper()
	dir := t.TempDir()
	sessDir := filepath.Join(dir, "chatSessions")
	require.NoError(t, os.MkdirAll(sessDir, 0o755))
	for name, content := range sessions {
		require.NoError(t, os.WriteFile(filepath.Join(sessDir, name), []byte(content), 0o644))
	}
	return Target{
		ID:          filepath.Base(dir),
		Name:        "test",
		SessionsDir: sessDir,
		StorePath:   storetest.NewStore(t, dir, storedIndex),
	}
}

func sessions(n int) map[string]string {
	out := make(map[string]string, n)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("s%02d", i)
		out[id+".json"] = sessionJSON("Session "+id, int64(1000+i))
	}
	return out
}

func newPlanner(t *testing.T, opts Options) *Planner {
	t.Helper()
	ex, err := extract.New(extract.Options{})
	require.NoError(t, err)
	opts.Store.LockDir = filepath.Join(t.TempDir(), "locks")
	return NewPlanner(ex, opts)
}

func backupsOf(t *testing.T, storePath string) []string {
	t.Helper()
	matches, err := filepath.Glob(storePath + ".backup.*")
	require.NoError(t, err)
	return matches
}

func payloadOf(t *testing.T, doc *index.Document, id string) []byte {
	t.Helper()
	for _, e := range doc.Entries {
		if e.ID == id {
			return e.Payload
		}
	}
	t.Fatalf("entry %s not found", id)
	return nil
}

func storedIDs(t *testing.T, storePath string) []string {
	t.Helper()
	return index.Decode([]byte(storetest.ReadIndex(t, storePath))).IDs()
}

func TestPipeline_DryRunReportsAndLeavesStoreIdentical(t *testing.T) {
	// Given: 13 session files and an index with one of them
	target := newTarget(t, sessions(13), indexJSON("s00"))
	before, err := os.ReadFile(target.StorePath)
	require.NoError(t, err)

	// When: planning a dry run
	pl := newPlanner(t, Options{DryRun: true}).Plan(context.Background(), target)
	report := pl.Apply(context.Background())

	// Then: the report is complete and nothing changed on disk
	require.NoError(t, report.Err)
	assert.Equal(t, OutcomeDryRun, report.Outcome)
	assert.Equal(t, 12, report.Counts.Added)
	assert.Equal(t, 1, report.Counts.Kept)
	assert.Equal(t, 0, report.Counts.Orphans)
	after, err := os.ReadFile(target.StorePath)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Empty(t, backupsOf(t, target.StorePath))
	assert.Equal(t, []State{StateIdle, StateScanning, StateExtracting, StateReconciling, StateDryRunReport}, report.History)
}

func TestPipeline_RealRunWritesFullIndexWithVerifiedBackup(t *testing.T) {
	// Given: the same workspace
	target := newTarget(t, sessions(13), indexJSON("s00"))
	p := newPlanner(t, Options{})

	// When: planning and applying
	pl := p.Plan(context.Background(), target)
	require.True(t, pl.Pending())
	before, err := os.ReadFile(target.StorePath)
	require.NoError(t, err)
	report := pl.Apply(context.Background())

	// Then: 13 rows are stored and the backup equals the pre-write store
	require.NoError(t, report.Err)
	assert.Equal(t, OutcomeRepaired, report.Outcome)
	assert.Len(t, storedIDs(t, target.StorePath), 13)
	require.NotNil(t, report.Backup)
	saved, err := os.ReadFile(report.Backup.Path)
	require.NoError(t, err)
	assert.Equal(t, before, saved)
	assert.Equal(t, []State{StateIdle, StateScanning, StateExtracting, StateReconciling, StateBackingUp, StateWriting, StateDone}, report.History)
}

func TestPipeline_OrphansRetainedByDefault(t *testing.T) {
	// Given: 5 indexed sessions, 3 files on disk
	files := map[string]string{
		"a.json": sessionJSON("a", 10),
		"b.json": sessionJSON("b", 20),
		"c.json": sessionJSON("c", 30),
	}
	target := newTarget(t, files, indexJSON("a", "b", "c", "d", "e"))

	report := newPlanner(t, Options{}).Plan(context.Background(), target).Apply(context.Background())

	// Then: 5 rows remain
	require.NoError(t, report.Err)
	assert.Len(t, storedIDs(t, target.StorePath), 5)
	assert.Equal(t, 2, report.Counts.Orphans)
	assert.Equal(t, 0, report.Counts.Removed)
}

func TestPipeline_RemoveOrphans(t *testing.T) {
	files := map[string]string{
		"a.json": sessionJSON("a", 10),
		"b.json": sessionJSON("b", 20),
		"c.json": sessionJSON("c", 30),
	}
	target := newTarget(t, files, indexJSON("a", "b", "c", "d", "e"))

	report := newPlanner(t, Options{RemoveOrphans: true}).Plan(context.Background(), target).Apply(context.Background())

	require.NoError(t, report.Err)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, storedIDs(t, target.StorePath))
	assert.Equal(t, 2, report.Counts.Removed)
}

func TestPipeline_MalformedFileIsSkippedAndReported(t *testing.T) {
	// Given: 9 valid sessions and one malformed file
	files := sessions(9)
	files["broken.json"] = `{"requests": [`
	target := newTarget(t, files, "")

	report := newPlanner(t, Options{}).Plan(context.Background(), target).Apply(context.Background())

	// Then: the index is built from the 9 and one parse error is reported
	require.NoError(t, report.Err)
	assert.Len(t, storedIDs(t, target.StorePath), 9)
	require.Len(t, report.Warnings, 1)
	assert.Equal(t, crerrors.ErrCodeParseFailed, crerrors.GetCode(report.Warnings[0]))
}

func TestPipeline_RemoveOrphansKeepsEntryOfMalformedFile(t *testing.T) {
	// Given: three indexed sessions, one of whose files is malformed
	files := sessions(3)
	files["s01.json"] = `{not json`
	target := newTarget(t, files, indexJSON("s00", "s01", "s02"))
	before := index.Decode([]byte(storetest.ReadIndex(t, target.StorePath)))

	// When: repairing with orphan removal
	report := newPlanner(t, Options{RemoveOrphans: true}).Plan(context.Background(), target).Apply(context.Background())

	// Then: the malformed session keeps its entry unchanged and is no orphan
	require.NoError(t, report.Err)
	assert.Equal(t, 0, report.Counts.Orphans)
	assert.Empty(t, report.Result.ToRemove)
	require.Len(t, report.Warnings, 1)
	assert.Equal(t, crerrors.ErrCodeParseFailed, crerrors.GetCode(report.Warnings[0]))

	after := index.Decode([]byte(storetest.ReadIndex(t, target.StorePath)))
	assert.ElementsMatch(t, []string{"s00", "s01", "s02"}, after.IDs())
	assert.JSONEq(t, string(payloadOf(t, before, "s01")), string(payloadOf(t, after, "s01")))
}

func TestPipeline_LockedStoreFailsWithoutBackup(t *testing.T) {
	// Given: the host holds a write lock on the store
	target := newTarget(t, sessions(3), "")
	release := storetest.HoldLock(t, target.StorePath, "IMMEDIATE")
	defer release()

	pl := newPlanner(t, Options{}).Plan(context.Background(), target)
	report := pl.Apply(context.Background())

	// Then: LockError, no backup, store unchanged
	require.Error(t, report.Err)
	assert.Equal(t, crerrors.ErrCodeStoreLocked, crerrors.GetCode(report.Err))
	assert.Equal(t, OutcomeFailed, report.Outcome)
	assert.Nil(t, report.Backup)
	assert.Empty(t, backupsOf(t, target.StorePath))
	release()
	assert.Equal(t, "", storetest.ReadIndex(t, target.StorePath))
}

func TestPipeline_SecondRunIsNoOp(t *testing.T) {
	target := newTarget(t, sessions(4), indexJSON("s00", "gone"))
	p := newPlanner(t, Options{RemoveOrphans: true})

	first := p.Plan(context.Background(), target).Apply(context.Background())
	require.NoError(t, first.Err)
	require.Equal(t, OutcomeRepaired, first.Outcome)

	second := p.Plan(context.Background(), target).Apply(context.Background())

	// Then: nothing to add or remove, no write, no new backup
	assert.Equal(t, OutcomeUnchanged, second.Outcome)
	assert.Equal(t, 0, second.Counts.Added)
	assert.Equal(t, 0, second.Counts.Orphans)
	assert.Len(t, backupsOf(t, target.StorePath), 1)
}

func TestPipeline_DuplicateIdentityKeepsNewest(t *testing.T) {
	target := newTarget(t, map[string]string{
		"dup.json":  sessionJSON("old format", 1),
		"dup.jsonl": sessionJSON("new format", 2),
	}, "")
	older := filepath.Join(target.SessionsDir, "dup.json")
	info, err := os.Stat(older)
	require.NoError(t, err)
	require.NoError(t, os.Chtimes(older, info.ModTime().Add(-3600e9), info.ModTime().Add(-3600e9)))

	report := newPlanner(t, Options{DryRun: true}).Plan(context.Background(), target).Report

	require.Len(t, report.Result.Conflicts, 1)
	assert.Equal(t, filepath.Join(target.SessionsDir, "dup.jsonl"), report.Result.Conflicts[0].Kept)
	assert.Equal(t, "new format", report.Result.Entries[0].Title())
	require.Len(t, report.Warnings, 1)
	assert.Equal(t, crerrors.ErrCodeDuplicateRecord, crerrors.GetCode(report.Warnings[0]))
}

func TestPipeline_MissingSessionsDirIsScanError(t *testing.T) {
	target := newTarget(t, nil, "")
	require.NoError(t, os.Remove(target.SessionsDir))

	report := newPlanner(t, Options{}).Plan(context.Background(), target).Report

	assert.Equal(t, crerrors.ErrCodeScanFailed, crerrors.GetCode(report.Err))
	assert.Equal(t, StateFailed, report.State)
}

func TestPipeline_HostWriteBetweenPlanAndApply(t *testing.T) {
	// Given: a plan made against an index with one entry
	target := newTarget(t, sessions(2), indexJSON("s00"))
	pl := newPlanner(t, Options{}).Plan(context.Background(), target)
	require.True(t, pl.Pending())

	// When: the host adds an entry before apply
	hostIndex := indexJSON("s00", "host-new")
	storetest.WriteIndex(t, target.StorePath, hostIndex)
	report := pl.Apply(context.Background())

	// Then: the write is based on the host's latest index
	require.NoError(t, report.Err)
	assert.ElementsMatch(t, []string{"s00", "s01", "host-new"}, storedIDs(t, target.StorePath))
	saved, err := os.ReadFile(report.Backup.Path)
	require.NoError(t, err)
	assert.Contains(t, string(saved), "host-new")
}

func TestPipeline_BackupFailureLeavesStoreUntouched(t *testing.T) {
	// Given: every backup name for the current second is already taken
	target := newTarget(t, sessions(2), "")
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	base := target.StorePath + backup.Infix + at.Format(backup.TimestampLayout)
	require.NoError(t, os.WriteFile(base, []byte("taken"), 0o600))
	for i := 1; i < 100; i++ {
		require.NoError(t, os.WriteFile(fmt.Sprintf("%s_%d", base, i), []byte("taken"), 0o600))
	}
	ex, err := extract.New(extract.Options{})
	require.NoError(t, err)
	p := NewPlanner(ex, Options{Store: store.Options{LockDir: filepath.Join(t.TempDir(), "locks")}},
		WithBackupManager(backup.NewManager(backup.WithClock(func() time.Time { return at }))))

	// When: applying
	pl := p.Plan(context.Background(), target)
	require.True(t, pl.Pending())
	report := pl.Apply(context.Background())

	// Then: BackupError, nothing written, no partial backup left behind
	assert.Equal(t, crerrors.ErrCodeBackupFailed, crerrors.GetCode(report.Err))
	assert.Equal(t, OutcomeFailed, report.Outcome)
	assert.Nil(t, report.Backup)
	assert.Equal(t, "", storetest.ReadIndex(t, target.StorePath))
	assert.Len(t, backupsOf(t, target.StorePath), 100)
}

// failingStore wraps a store so that its transactions fail at one step.
type failingStore struct {
	store.IndexStore
	failAt     string // "replace" or "commit"
	rolledBack *bool
}

func (s *failingStore) Begin(ctx context.Context) (store.IndexTx, error) {
	tx, err := s.IndexStore.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &failingTx{IndexTx: tx, store: s}, nil
}

type failingTx struct {
	store.IndexTx
	store *failingStore
}

func (tx *failingTx) ReplaceIndex(ctx context.Context, doc *index.Document) error {
	if tx.store.failAt == "replace" {
		return crerrors.WriteError(tx.store.Path(), errors.New("disk I/O error"))
	}
	return tx.IndexTx.ReplaceIndex(ctx, doc)
}

func (tx *failingTx) Commit() error {
	if tx.store.failAt == "commit" {
		// A failed commit rolls back before reporting.
		_ = tx.Rollback()
		return crerrors.WriteError(tx.store.Path(), errors.New("disk full"))
	}
	return tx.IndexTx.Commit()
}

func (tx *failingTx) Rollback() error {
	*tx.store.rolledBack = true
	return tx.IndexTx.Rollback()
}

func TestPipeline_WriteFailureRollsBackAndKeepsBackup(t *testing.T) {
	for _, failAt := range []string{"replace", "commit"} {
		t.Run(failAt, func(t *testing.T) {
			// Given: a store whose write step fails
			stored := indexJSON("s00")
			target := newTarget(t, sessions(3), stored)
			rolledBack := false
			ex, err := extract.New(extract.Options{})
			require.NoError(t, err)
			p := NewPlanner(ex, Options{Store: store.Options{LockDir: filepath.Join(t.TempDir(), "locks")}},
				WithOpener(func(ctx context.Context, path string, readOnly bool, opts store.Options) (store.IndexStore, error) {
					s, err := OpenSQLite(ctx, path, readOnly, opts)
					if err != nil {
						return nil, err
					}
					return &failingStore{IndexStore: s, failAt: failAt, rolledBack: &rolledBack}, nil
				}))

			// When: applying
			report := p.Plan(context.Background(), target).Apply(context.Background())

			// Then: WriteError, rolled back, store unchanged, backup retained
			assert.Equal(t, crerrors.ErrCodeWriteFailed, crerrors.GetCode(report.Err))
			assert.Equal(t, OutcomeFailed, report.Outcome)
			assert.Equal(t, StateFailed, report.State)
			assert.True(t, rolledBack)
			require.NotNil(t, report.Backup)
			assert.FileExists(t, report.Backup.Path)
			assert.Equal(t, stored, storetest.ReadIndex(t, target.StorePath))
			assert.Equal(t, stored, storetest.ReadKey(t, report.Backup.Path, index.Key))
		})
	}
}

func TestPipeline_BackupIncludesHostCommitsStillInWAL(t *testing.T) {
	// Given: a WAL store planned for repair, then a host commit left in the log
	target := newTarget(t, sessions(2), indexJSON("s00"))
	host := storetest.OpenWAL(t, target.StorePath)
	pl := newPlanner(t, Options{}).Plan(context.Background(), target)
	require.True(t, pl.Pending())
	_, err := host.Exec(`INSERT INTO ItemTable (key, value) VALUES ('host.setting', 'on')`)
	require.NoError(t, err)

	// When: applying
	report := pl.Apply(context.Background())

	// Then: the backup alone holds the host commit and the store keeps it
	require.NoError(t, report.Err)
	require.NotNil(t, report.Backup)
	data, err := os.ReadFile(report.Backup.Path)
	require.NoError(t, err)
	snapshot := filepath.Join(t.TempDir(), "snapshot.vscdb")
	require.NoError(t, os.WriteFile(snapshot, data, 0o644))
	assert.Equal(t, "on", storetest.ReadKey(t, snapshot, "host.setting"))
	assert.Equal(t, "on", storetest.ReadKey(t, target.StorePath, "host.setting"))
}

func TestPipeline_KeepBackupsPrunes(t *testing.T) {
	target := newTarget(t, sessions(1), "")
	for _, name := range []string{"20200101_000000", "20200102_000000"} {
		require.NoError(t, os.WriteFile(target.StorePath+".backup."+name, []byte("old"), 0o600))
	}

	report := newPlanner(t, Options{KeepBackups: 1}).Plan(context.Background(), target).Apply(context.Background())

	require.NoError(t, report.Err)
	assert.Len(t, report.Pruned, 2)
	assert.Len(t, backupsOf(t, target.StorePath), 1)
}

func TestPlan_ObserverSeesEveryState(t *testing.T) {
	target := newTarget(t, sessions(1), "")
	var seen []State
	ex, err := extract.New(extract.Options{})
	require.NoError(t, err)
	p := NewPlanner(ex, Options{DryRun: true}, WithObserver(func(_ Target, s State) { seen = append(seen, s) }))

	p.Plan(context.Background(), target)

	assert.Equal(t, []State{StateScanning, StateExtracting, StateReconciling, StateDryRunReport}, seen)
}

func TestPlan_UsesCustomOpener(t *testing.T) {
	target := newTarget(t, sessions(1), "")
	var gotReadOnly bool
	ex, err := extract.New(extract.Options{})
	require.NoError(t, err)
	p := NewPlanner(ex, Options{DryRun: true}, WithOpener(
		func(ctx context.Context, path string, readOnly bool, opts store.Options) (store.IndexStore, error) {
			gotReadOnly = readOnly
			return OpenSQLite(ctx, path, readOnly, opts)
		}))

	p.Plan(context.Background(), target)

	assert.True(t, gotReadOnly)
}
