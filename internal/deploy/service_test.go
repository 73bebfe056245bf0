package deploy

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

type mockStore struct {
	processes map[string]*Process

	listErrs     []error // popped per List call
	runOrder     *[]string
	deleteExcept [][]string
}

func newMockStore() *mockStore {
	return &mockStore{processes: make(map[string]*Process)}
}

func (m *mockStore) List(context.Context) ([]Process, error) {
	if len(m.listErrs) > 0 {
		err := m.listErrs[0]
		m.listErrs = m.listErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	out := make([]Process, 0, len(m.processes))
	for _, p := range m.processes {
		out = append(out, *p)
	}
	return out, nil
}

func (m *mockStore) Get(_ context.Context, name string) (Process, error) {
	p, ok := m.processes[name]
	if !ok {
		return Process{}, errors.New("not found")
	}
	return *p, nil
}

func (m *mockStore) EnsureRegistered(_ context.Context, name string, priority int) error {
	if p, ok := m.processes[name]; ok {
		p.Priority = priority
		return nil
	}
	m.processes[name] = &Process{TaskName: name, Priority: priority, Status: StatusNone}
	return nil
}

func (m *mockStore) DeleteExcept(_ context.Context, names []string) error {
	m.deleteExcept = append(m.deleteExcept, names)
	keep := make(map[string]bool, len(names))
	for _, n := range names {
		keep[n] = true
	}
	for name := range m.processes {
		if !keep[name] {
			delete(m.processes, name)
		}
	}
	return nil
}

func (m *mockStore) MarkPending(_ context.Context, name, taskID string) error {
	p, ok := m.processes[name]
	if !ok {
		return errors.New("not registered")
	}
	p.Status = StatusPending
	p.TaskID = taskID
	p.UpdatedAt = testNow
	return nil
}

func (m *mockStore) RecordResult(_ context.Context, name, status, version, errText string, ranAt time.Time) error {
	p, ok := m.processes[name]
	if !ok {
		return errors.New("not registered")
	}
	p.Status = status
	p.LastRunVersion = version
	p.LastError = errText
	p.LastRun = &ranAt
	p.UpdatedAt = testNow
	return nil
}

type mockEnqueuer struct {
	enqueued  []string
	err       error
	onEnqueue func(name string)
}

func (m *mockEnqueuer) EnqueueDeployTask(_ context.Context, name string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	if m.onEnqueue != nil {
		m.onEnqueue(name)
	}
	m.enqueued = append(m.enqueued, name)
	return "task-" + name, nil
}

type mockMigrator struct {
	calls int
	err   error
}

func (m *mockMigrator) Migrate(context.Context) error {
	m.calls++
	return m.err
}

func noopTask(name string, priority int, cooldown time.Duration) Task {
	return Task{Name: name, Priority: priority, Cooldown: cooldown, Run: func(context.Context) error { return nil }}
}

func recordingTask(name string, priority int, order *[]string, err error) Task {
	return Task{
		Name:     name,
		Priority: priority,
		Cooldown: time.Hour,
		Run: func(context.Context) error {
			*order = append(*order, name)
			return err
		},
	}
}

func newTestService(store StorePort, reg *Registry, opts Options) *Service {
	opts.Store = store
	opts.Registry = reg
	opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(opts)
	svc.clock = func() time.Time { return testNow }
	return svc
}

func TestDeployRegistersNewTasks(t *testing.T) {
	store := newMockStore()
	reg := NewRegistry(noopTask("alpha", 10, time.Hour), noopTask("beta", 20, time.Hour))
	svc := newTestService(store, reg, Options{Inline: true, Version: "v1"})

	require.NoError(t, svc.Deploy(context.Background()))

	require.Len(t, store.processes, 2)
	assert.Equal(t, StatusSuccess, store.processes["alpha"].Status)
	assert.Equal(t, StatusSuccess, store.processes["beta"].Status)
	assert.Equal(t, "v1", store.processes["alpha"].LastRunVersion)
}

func TestDeployPrunesRemovedTasks(t *testing.T) {
	store := newMockStore()
	store.processes["retired"] = &Process{TaskName: "retired", Status: StatusSuccess}
	reg := NewRegistry(noopTask("alpha", 10, time.Hour))
	svc := newTestService(store, reg, Options{Inline: true, Version: "v1"})

	require.NoError(t, svc.Deploy(context.Background()))

	_, exists := store.processes["retired"]
	assert.False(t, exists, "rows without a registered task are deleted")
	assert.Contains(t, store.processes, "alpha")
}

func TestDeployRunsInAscendingPriorityOrder(t *testing.T) {
	store := newMockStore()
	var order []string
	reg := NewRegistry(
		recordingTask("cleanup", 30, &order, nil),
		recordingTask("setup", 10, &order, nil),
		recordingTask("reassign", 20, &order, nil),
	)
	svc := newTestService(store, reg, Options{Inline: true, Version: "v1"})

	require.NoError(t, svc.Deploy(context.Background()))
	assert.Equal(t, []string{"setup", "reassign", "cleanup"}, order)
}

func TestDeployFailureRecordedAndSweepContinues(t *testing.T) {
	store := newMockStore()
	var order []string
	reg := NewRegistry(
		recordingTask("breaks", 10, &order, errors.New("no luck")),
		recordingTask("works", 20, &order, nil),
	)
	svc := newTestService(store, reg, Options{Inline: true, Version: "v1"})

	require.NoError(t, svc.Deploy(context.Background()))

	assert.Equal(t, []string{"breaks", "works"}, order)
	assert.Equal(t, StatusFailure, store.processes["breaks"].Status)
	assert.Equal(t, "no luck", store.processes["breaks"].LastError)
	assert.Equal(t, StatusSuccess, store.processes["works"].Status)
}

func TestDeploySkipsWithinCooldownOnSameVersion(t *testing.T) {
	store := newMockStore()
	var order []string
	reg := NewRegistry(recordingTask("alpha", 10, &order, nil))
	svc := newTestService(store, reg, Options{Inline: true, Version: "v1"})

	require.NoError(t, svc.Deploy(context.Background()))
	require.Equal(t, []string{"alpha"}, order)

	// Same version, cooldown not elapsed: nothing runs.
	require.NoError(t, svc.Deploy(context.Background()))
	assert.Equal(t, []string{"alpha"}, order)
}

func TestDeployRerunsAfterCooldownOnNewVersion(t *testing.T) {
	store := newMockStore()
	var order []string
	reg := NewRegistry(recordingTask("alpha", 10, &order, nil))
	svc := newTestService(store, reg, Options{Inline: true, Version: "v2"})

	lastRun := svc.clock().Add(-2 * time.Hour)
	store.processes["alpha"] = &Process{
		TaskName:       "alpha",
		Status:         StatusSuccess,
		LastRun:        &lastRun,
		LastRunVersion: "v1",
	}

	require.NoError(t, svc.Deploy(context.Background()))
	assert.Equal(t, []string{"alpha"}, order)
	assert.Equal(t, "v2", store.processes["alpha"].LastRunVersion)
}

func TestDeploySkipsCooledDownTaskOnSameVersion(t *testing.T) {
	store := newMockStore()
	var order []string
	reg := NewRegistry(recordingTask("alpha", 10, &order, nil))
	svc := newTestService(store, reg, Options{Inline: true, Version: "v1"})

	lastRun := svc.clock().Add(-2 * time.Hour)
	store.processes["alpha"] = &Process{
		TaskName:       "alpha",
		Status:         StatusSuccess,
		LastRun:        &lastRun,
		LastRunVersion: "v1",
	}

	require.NoError(t, svc.Deploy(context.Background()))
	assert.Empty(t, order)
}

func TestDeploySkipsFreshPendingTask(t *testing.T) {
	store := newMockStore()
	var order []string
	reg := NewRegistry(recordingTask("alpha", 10, &order, nil))
	svc := newTestService(store, reg, Options{Inline: true, Version: "v2"})

	store.processes["alpha"] = &Process{
		TaskName:  "alpha",
		Status:    StatusPending,
		TaskID:    "queued",
		UpdatedAt: testNow.Add(-time.Minute),
	}

	require.NoError(t, svc.Deploy(context.Background()))
	assert.Empty(t, order, "a freshly queued task is never double-run")
}

func TestDeployRerunsStalePendingTask(t *testing.T) {
	store := newMockStore()
	var order []string
	reg := NewRegistry(recordingTask("alpha", 10, &order, nil))
	svc := newTestService(store, reg, Options{Inline: true, Version: "v2"})

	// Queued long ago and never resolved: the message is presumed lost.
	lastRun := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	store.processes["alpha"] = &Process{
		TaskName:       "alpha",
		Status:         StatusPending,
		TaskID:         "lost",
		LastRun:        &lastRun,
		LastRunVersion: "v1",
		UpdatedAt:      testNow.Add(-2 * time.Hour),
	}

	require.NoError(t, svc.Deploy(context.Background()))
	assert.Equal(t, []string{"alpha"}, order, "a wedged PENDING row must age out")
	assert.Equal(t, StatusSuccess, store.processes["alpha"].Status)

	// And once resolved the gate closes again.
	require.NoError(t, svc.Deploy(context.Background()))
	assert.Equal(t, []string{"alpha"}, order)
}

func TestDeployAlwaysRerunsFailedTask(t *testing.T) {
	store := newMockStore()
	var order []string
	reg := NewRegistry(recordingTask("alpha", 10, &order, nil))
	svc := newTestService(store, reg, Options{Inline: true, Version: "v1"})

	lastRun := svc.clock().Add(-time.Minute) // well inside the cooldown
	store.processes["alpha"] = &Process{
		TaskName:       "alpha",
		Status:         StatusFailure,
		LastRun:        &lastRun,
		LastRunVersion: "v1",
	}

	require.NoError(t, svc.Deploy(context.Background()))
	assert.Equal(t, []string{"alpha"}, order)
	assert.Equal(t, StatusSuccess, store.processes["alpha"].Status)
}

func TestDeployEnqueuesWhenNotInline(t *testing.T) {
	store := newMockStore()
	enq := &mockEnqueuer{}
	reg := NewRegistry(noopTask("alpha", 10, time.Hour))
	svc := newTestService(store, reg, Options{Enqueuer: enq, Version: "v1"})

	require.NoError(t, svc.Deploy(context.Background()))

	assert.Equal(t, []string{"alpha"}, enq.enqueued)
	assert.Equal(t, StatusPending, store.processes["alpha"].Status)
	assert.NotEmpty(t, store.processes["alpha"].TaskID)
}

func TestDeployMarksPendingBeforeEnqueue(t *testing.T) {
	store := newMockStore()
	enq := &mockEnqueuer{}
	enq.onEnqueue = func(name string) {
		p := store.processes[name]
		assert.Equal(t, StatusPending, p.Status, "row must already be PENDING when the message goes out")
		assert.NotEmpty(t, p.TaskID)
	}
	reg := NewRegistry(noopTask("alpha", 10, time.Hour))
	svc := newTestService(store, reg, Options{Enqueuer: enq, Version: "v1"})

	require.NoError(t, svc.Deploy(context.Background()))
	require.Equal(t, []string{"alpha"}, enq.enqueued)
}

func TestDeployFastWorkerResultNotOverwritten(t *testing.T) {
	store := newMockStore()
	enq := &mockEnqueuer{}
	// The worker picks the message up and finishes before the sweep returns.
	enq.onEnqueue = func(name string) {
		require.NoError(t, store.RecordResult(context.Background(), name, StatusSuccess, "v1", "", testNow))
	}
	reg := NewRegistry(noopTask("alpha", 10, time.Hour))
	svc := newTestService(store, reg, Options{Enqueuer: enq, Version: "v1"})

	require.NoError(t, svc.Deploy(context.Background()))
	assert.Equal(t, StatusSuccess, store.processes["alpha"].Status, "the sweep must not flip a completed run back to PENDING")
}

func TestDeployEnqueueFailureRecordedAsFailure(t *testing.T) {
	store := newMockStore()
	enq := &mockEnqueuer{err: errors.New("broker down")}
	reg := NewRegistry(noopTask("alpha", 10, time.Hour))
	svc := newTestService(store, reg, Options{Enqueuer: enq, Version: "v1"})

	require.NoError(t, svc.Deploy(context.Background()))

	assert.Equal(t, StatusFailure, store.processes["alpha"].Status)
	assert.Equal(t, "broker down", store.processes["alpha"].LastError)
}

func TestDeployForcesMigrationWhenTableMissing(t *testing.T) {
	store := newMockStore()
	store.listErrs = []error{&pgconn.PgError{Code: "42P01"}}
	mig := &mockMigrator{}
	reg := NewRegistry(noopTask("alpha", 10, time.Hour))
	svc := newTestService(store, reg, Options{Migrator: mig, Inline: true, Version: "v1"})

	require.NoError(t, svc.Deploy(context.Background()))

	assert.Equal(t, 1, mig.calls)
	assert.Equal(t, StatusSuccess, store.processes["alpha"].Status)
}

func TestDeployMigrationRetriedOnlyOnce(t *testing.T) {
	store := newMockStore()
	store.listErrs = []error{
		&pgconn.PgError{Code: "42P01"},
		&pgconn.PgError{Code: "42P01"},
	}
	mig := &mockMigrator{}
	reg := NewRegistry(noopTask("alpha", 10, time.Hour))
	svc := newTestService(store, reg, Options{Migrator: mig, Inline: true, Version: "v1"})

	err := svc.Deploy(context.Background())
	require.Error(t, err)
	var pgErr *pgconn.PgError
	assert.ErrorAs(t, err, &pgErr)
	assert.Equal(t, 1, mig.calls, "one forced migration, not a loop")
}

func TestDeployOtherErrorsSkipMigration(t *testing.T) {
	store := newMockStore()
	store.listErrs = []error{errors.New("connection refused")}
	mig := &mockMigrator{}
	reg := NewRegistry(noopTask("alpha", 10, time.Hour))
	svc := newTestService(store, reg, Options{Migrator: mig, Inline: true, Version: "v1"})

	require.Error(t, svc.Deploy(context.Background()))
	assert.Zero(t, mig.calls)
}

func TestRunTaskUnknownName(t *testing.T) {
	store := newMockStore()
	reg := NewRegistry(noopTask("alpha", 10, time.Hour))
	svc := newTestService(store, reg, Options{Version: "v1"})

	err := svc.RunTask(context.Background(), "ghost")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown task")
}

func TestRunTaskRecordsFailureAndReturnsError(t *testing.T) {
	store := newMockStore()
	var order []string
	reg := NewRegistry(recordingTask("alpha", 10, &order, errors.New("exploded")))
	svc := newTestService(store, reg, Options{Version: "v1"})
	require.NoError(t, store.EnsureRegistered(context.Background(), "alpha", 10))

	err := svc.RunTask(context.Background(), "alpha")
	require.EqualError(t, err, "exploded")
	assert.Equal(t, StatusFailure, store.processes["alpha"].Status)
	assert.Equal(t, "exploded", store.processes["alpha"].LastError)
}

func TestRegistryReplacesDuplicateNames(t *testing.T) {
	reg := NewRegistry(noopTask("alpha", 10, time.Hour))
	reg.Register(noopTask("alpha", 99, time.Hour))

	tasks := reg.Tasks()
	require.Len(t, tasks, 1)
	assert.Equal(t, 99, tasks[0].Priority)
}
