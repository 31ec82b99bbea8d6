package supervisor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/traaittPlatform/traaittplatformd-ha/pkg/config"
	"github.com/traaittPlatform/traaittplatformd-ha/pkg/errors"
	"github.com/traaittPlatform/traaittplatformd-ha/pkg/eventbus"
	"github.com/traaittPlatform/traaittplatformd-ha/pkg/logging"
	"github.com/traaittPlatform/traaittplatformd-ha/pkg/processfile"
	"github.com/traaittPlatform/traaittplatformd-ha/pkg/rpc"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const consoleNode = `echo "P2p server initialized OK"
while read cmd; do
  case "$cmd" in
    help) echo "Show this help" ;;
    top) echo "New Top Block Detected: 101" ;;
    exit) echo "Stopping"; exit 0 ;;
  esac
done
`

const deafNode = `echo "P2p server initialized OK"
trap '' TERM
while read cmd; do
  case "$cmd" in
    exit) exit 0 ;;
  esac
done
`

type fakeClient struct {
	height int64
}

func (c *fakeClient) Status(ctx context.Context) (*rpc.Info, error) {
	return &rpc.Info{Status: "OK", Height: c.height, NetworkHeight: c.height, Difficulty: 3000}, nil
}

func (c *fakeClient) Height(ctx context.Context) (*rpc.HeightInfo, error) {
	return &rpc.HeightInfo{Status: "OK", Height: c.height, NetworkHeight: c.height}, nil
}

func (c *fakeClient) Fee(ctx context.Context) (*rpc.FeeInfo, error) {
	return &rpc.FeeInfo{Status: "OK"}, nil
}

func (c *fakeClient) Peers(ctx context.Context) (*rpc.PeerList, error) {
	return &rpc.PeerList{Status: "OK"}, nil
}

func (c *fakeClient) LastBlockHeader(ctx context.Context) (*rpc.BlockHeader, error) {
	return &rpc.BlockHeader{Hash: "abc", Height: 101}, nil
}

func (c *fakeClient) BlockHeaderByHash(ctx context.Context, hash string) (*rpc.BlockHeader, error) {
	return &rpc.BlockHeader{Hash: hash}, nil
}

func (c *fakeClient) BlockHeaderByHeight(ctx context.Context, height int64) (*rpc.BlockHeader, error) {
	return &rpc.BlockHeader{Height: height}, nil
}

func (c *fakeClient) Block(ctx context.Context, hash string) (rpc.Document, error) {
	return rpc.Document{"hash": hash}, nil
}

func (c *fakeClient) Blocks(ctx context.Context, height int64) (rpc.Document, error) {
	return rpc.Document{}, nil
}

func (c *fakeClient) Transaction(ctx context.Context, hash string) (rpc.Document, error) {
	return rpc.Document{}, nil
}

func (c *fakeClient) TransactionPool(ctx context.Context) (rpc.Document, error) {
	return rpc.Document{}, nil
}

func (c *fakeClient) BlockCount(ctx context.Context) (int64, error) {
	return c.height, nil
}

type record struct {
	event   eventbus.Event
	payload interface{}
}

type recorder struct {
	mu      sync.Mutex
	records []record
}

func newRecorder(bus *eventbus.Bus) *recorder {
	r := &recorder{}
	for _, event := range eventbus.AllEvents {
		event := event
		bus.Subscribe(event, func(payload interface{}) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.records = append(r.records, record{event: event, payload: payload})
		})
	}
	return r
}

func (r *recorder) has(event eventbus.Event) bool {
	_, ok := r.first(event)
	return ok
}

func (r *recorder) first(event eventbus.Event) (interface{}, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.records {
		if rec.event == event {
			return rec.payload, true
		}
	}
	return nil, false
}

func (r *recorder) index(event eventbus.Event) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, rec := range r.records {
		if rec.event == event {
			return i
		}
	}
	return -1
}

func (r *recorder) hasMessage(event eventbus.Event, message string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.records {
		if rec.event == event && fmt.Sprint(rec.payload) == message {
			return true
		}
	}
	return false
}

func writeNode(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "traaittPlatformd")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0755))
	return path
}

func testConfig(t *testing.T, nodePath string) *config.Config {
	t.Helper()
	cfg, err := config.Default()
	require.NoError(t, err)

	cfg.Daemon.Path = nodePath
	cfg.Daemon.DataDir = filepath.Join(t.TempDir(), "chain")
	cfg.Supervisor.Timeout = 100 * time.Millisecond
	cfg.Supervisor.LockRetryDelay = 50 * time.Millisecond
	cfg.Supervisor.StoppedDelay = 20 * time.Millisecond
	cfg.Monitor.PollingInterval = 20 * time.Millisecond
	cfg.Monitor.MaxPollingFailures = 50
	cfg.Monitor.HelpTimeout = 200 * time.Millisecond
	return cfg
}

func newSupervisor(t *testing.T, cfg *config.Config) (*Supervisor, *recorder) {
	t.Helper()
	bus := eventbus.New()
	rec := newRecorder(bus)

	s, err := New(cfg, bus, &fakeClient{height: 100}, logging.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() {
		s.Close(context.Background())
	})
	return s, rec
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, eventbus.New(), &fakeClient{}, logging.NewNopLogger())
	assert.True(t, errors.IsValidationError(err))
}

func TestStart_MissingBinary(t *testing.T) {
	cfg := testConfig(t, filepath.Join(t.TempDir(), "missing"))
	s, rec := newSupervisor(t, cfg)

	err := s.Start(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsNotFoundError(err))

	assert.True(t, rec.hasMessage(eventbus.EventInfo, "Attempting to start traaittplatformd-ha..."))
	assert.True(t, rec.hasMessage(eventbus.EventError, banner))
	assert.True(t, rec.hasMessage(eventbus.EventError, "HALTING THE SERVICE DUE TO ERROR"))
	assert.False(t, rec.has(eventbus.EventStart))
}

func TestStart_CreatesDataDirAndClearsP2PState(t *testing.T) {
	cfg := testConfig(t, writeNode(t, consoleNode))
	s, rec := newSupervisor(t, cfg)

	require.NoError(t, s.Start(context.Background()))

	assert.DirExists(t, cfg.Daemon.DataDir)
	assert.True(t, rec.hasMessage(eventbus.EventInfo,
		"It is highly recommended that you bootstrap the blockchain before utilizing this service."))

	payload, ok := rec.first(eventbus.EventStart)
	require.True(t, ok)
	assert.Contains(t, payload.(eventbus.StartInfo).CommandLine, cfg.Daemon.Path)

	require.NoError(t, s.Stop(context.Background()))

	p2pFile := filepath.Join(cfg.Daemon.DataDir, "p2pstate.bin")
	require.NoError(t, os.WriteFile(p2pFile, []byte("state"), 0644))
	assert.Eventually(t, func() bool { return s.currentProcess() == nil }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, s.Start(context.Background()))
	assert.NoFileExists(t, p2pFile)
	assert.True(t, rec.hasMessage(eventbus.EventInfo, "Deleted the P2P State File at: "+p2pFile))
}

func TestStart_LockFileDefersStart(t *testing.T) {
	cfg := testConfig(t, writeNode(t, consoleNode))
	lockFile := filepath.Join(cfg.Daemon.DataDir, "DB", "LOCK")
	require.NoError(t, os.MkdirAll(filepath.Dir(lockFile), 0755))
	require.NoError(t, os.WriteFile(lockFile, nil, 0644))

	s, rec := newSupervisor(t, cfg)

	require.NoError(t, s.Start(context.Background()))
	assert.True(t, rec.hasMessage(eventbus.EventError, "Database LOCK file exists..."))
	assert.True(t, rec.hasMessage(eventbus.EventInfo, "Deleted the DB LOCK File at: "+lockFile))
	assert.False(t, rec.has(eventbus.EventStart))

	assert.Eventually(t, func() bool { return rec.has(eventbus.EventStart) }, 2*time.Second, 10*time.Millisecond)
	assert.NoFileExists(t, lockFile)
}

func TestStart_OrphanNodeDefersStart(t *testing.T) {
	cfg := testConfig(t, writeNode(t, consoleNode))

	orphan := exec.Command("sleep", "30")
	require.NoError(t, orphan.Start())
	t.Cleanup(func() {
		orphan.Process.Kill()
		orphan.Wait()
	})

	pidFile := processfile.PIDFilePath(cfg.Daemon.DataDir)
	require.NoError(t, processfile.WritePIDFile(pidFile, orphan.Process.Pid))

	s, rec := newSupervisor(t, cfg)

	require.NoError(t, s.Start(context.Background()))
	assert.True(t, rec.hasMessage(eventbus.EventError,
		fmt.Sprintf("traaittPlatformd from a previous run is still running with PID %d", orphan.Process.Pid)))
	assert.False(t, rec.has(eventbus.EventStart))

	require.NoError(t, orphan.Process.Kill())
	orphan.Wait()

	assert.Eventually(t, func() bool { return rec.has(eventbus.EventStart) }, 2*time.Second, 10*time.Millisecond)
}

func TestStart_RecordsAndClearsPIDFile(t *testing.T) {
	cfg := testConfig(t, writeNode(t, consoleNode))
	pidFile := processfile.PIDFilePath(cfg.Daemon.DataDir)
	require.NoError(t, os.MkdirAll(cfg.Daemon.DataDir, 0755))
	require.NoError(t, os.WriteFile(pidFile, []byte("garbage"), 0644))

	s, _ := newSupervisor(t, cfg)
	require.NoError(t, s.Start(context.Background()))

	pid, err := processfile.ReadPIDFile(pidFile)
	require.NoError(t, err)
	assert.Equal(t, s.currentProcess().PID(), pid)

	require.NoError(t, s.Stop(context.Background()))
	assert.Eventually(t, func() bool { return s.currentProcess() == nil }, 2*time.Second, 10*time.Millisecond)
	assert.NoFileExists(t, pidFile)
}

func TestStart_SpawnFaultPublishesDown(t *testing.T) {
	path := filepath.Join(t.TempDir(), "traaittPlatformd")
	require.NoError(t, os.WriteFile(path, []byte("not a program\n"), 0755))
	cfg := testConfig(t, path)
	s, rec := newSupervisor(t, cfg)

	err := s.Start(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsProcessError(err))

	failure, ok := rec.first(eventbus.EventError)
	require.True(t, ok)
	assert.Contains(t, fmt.Sprint(failure), "Error in child process...: ")
	assert.True(t, rec.has(eventbus.EventDown))
	assert.False(t, rec.has(eventbus.EventStart))
	assert.Nil(t, s.currentProcess())
}

func TestStreamFaultPublishesDown(t *testing.T) {
	cfg := testConfig(t, writeNode(t, `head -c 1100000 /dev/zero | tr '\000' 'a'
echo
exit 0
`))
	s, rec := newSupervisor(t, cfg)

	require.NoError(t, s.Start(context.Background()))
	assert.Eventually(t, func() bool { return rec.has(eventbus.EventDown) }, 5*time.Second, 10*time.Millisecond)

	failure, ok := rec.first(eventbus.EventError)
	require.True(t, ok)
	assert.Contains(t, fmt.Sprint(failure), "Error in child process...: ")

	assert.Eventually(t, func() bool { return rec.has(eventbus.EventStopped) }, 2*time.Second, 10*time.Millisecond)
	assert.Less(t, rec.index(eventbus.EventDown), rec.index(eventbus.EventStopped))
}

func TestStart_AlreadyRunning(t *testing.T) {
	cfg := testConfig(t, writeNode(t, consoleNode))
	s, _ := newSupervisor(t, cfg)

	require.NoError(t, s.Start(context.Background()))
	err := s.Start(context.Background())
	assert.True(t, errors.IsConflictError(err))
}

func TestStop_PublishesStopped(t *testing.T) {
	cfg := testConfig(t, writeNode(t, consoleNode))
	s, rec := newSupervisor(t, cfg)

	require.NoError(t, s.Start(context.Background()))
	assert.Eventually(t, func() bool { return rec.has(eventbus.EventStarted) }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, s.Stop(context.Background()))
	assert.Eventually(t, func() bool { return rec.has(eventbus.EventStopped) }, 2*time.Second, 10*time.Millisecond)

	payload, _ := rec.first(eventbus.EventStopped)
	assert.Equal(t, eventbus.StoppedInfo{ExitCode: 0}, payload)
	assert.Eventually(t, func() bool { return s.Monitor().State().String() == "stopped" }, time.Second, 10*time.Millisecond)

	err := s.Stop(context.Background())
	assert.True(t, errors.IsNotFoundError(err))
}

func TestStop_AfterExitWithStoppedPending(t *testing.T) {
	cfg := testConfig(t, writeNode(t, "exit 4\n"))
	cfg.Supervisor.StoppedDelay = 300 * time.Millisecond
	s, rec := newSupervisor(t, cfg)

	require.NoError(t, s.Start(context.Background()))
	assert.Eventually(t, func() bool { return s.currentProcess() == nil }, 2*time.Second, 5*time.Millisecond)
	require.False(t, rec.has(eventbus.EventStopped))

	assert.NoError(t, s.Stop(context.Background()))

	assert.Eventually(t, func() bool { return rec.has(eventbus.EventStopped) }, 2*time.Second, 10*time.Millisecond)
	payload, _ := rec.first(eventbus.EventStopped)
	assert.Equal(t, eventbus.StoppedInfo{ExitCode: 4}, payload)
	assert.True(t, errors.IsNotFoundError(s.Stop(context.Background())))
}

func TestWrite_NotRunning(t *testing.T) {
	cfg := testConfig(t, writeNode(t, consoleNode))
	s, _ := newSupervisor(t, cfg)

	err := s.Write("help")
	assert.True(t, errors.IsNotFoundError(err))
}

func TestCheckResponsive(t *testing.T) {
	cfg := testConfig(t, writeNode(t, consoleNode))
	s, _ := newSupervisor(t, cfg)

	err := s.CheckResponsive(context.Background())
	assert.True(t, errors.IsUnresponsiveError(err))

	require.NoError(t, s.Start(context.Background()))
	assert.NoError(t, s.CheckResponsive(context.Background()))
}

func TestCheckResponsive_DeafNode(t *testing.T) {
	cfg := testConfig(t, writeNode(t, deafNode))
	s, _ := newSupervisor(t, cfg)

	require.NoError(t, s.Start(context.Background()))

	start := time.Now()
	err := s.CheckResponsive(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsUnresponsiveError(err))
	assert.Contains(t, err.Error(), "Daemon is unresponsive")
	assert.GreaterOrEqual(t, time.Since(start), cfg.Monitor.HelpTimeout)
}

func TestSyncedNodeRelaysBlocks(t *testing.T) {
	cfg := testConfig(t, writeNode(t, consoleNode))
	s, rec := newSupervisor(t, cfg)

	require.NoError(t, s.Start(context.Background()))
	assert.Eventually(t, func() bool { return rec.has(eventbus.EventSynced) }, 2*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return rec.has(eventbus.EventReady) }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, s.Write("top"))
	assert.Eventually(t, func() bool { return rec.has(eventbus.EventBlock) }, 2*time.Second, 10*time.Millisecond)

	payload, _ := rec.first(eventbus.EventTopBlock)
	assert.Equal(t, eventbus.TopBlock{Height: 101}, payload)
	block, _ := rec.first(eventbus.EventBlock)
	assert.Equal(t, rpc.Document{"hash": "abc"}, block)

	status, err := s.Status(context.Background())
	require.NoError(t, err)
	assert.True(t, status.Running)
	assert.True(t, status.Synced)
	assert.Equal(t, int64(100), status.Height)
	assert.True(t, status.Healthy())
}

func TestHandleLine(t *testing.T) {
	cfg := testConfig(t, writeNode(t, consoleNode))
	s, rec := newSupervisor(t, cfg)

	s.handleLine("New Top Block Detected: abc")
	assert.True(t, rec.has(eventbus.EventError))
	assert.False(t, rec.has(eventbus.EventTopBlock))
	assert.True(t, rec.hasMessage(eventbus.EventData, "New Top Block Detected: abc"))

	s.handleLine("New Top Block Detected: 77")
	payload, ok := rec.first(eventbus.EventTopBlock)
	require.True(t, ok)
	assert.Equal(t, eventbus.TopBlock{Height: 77}, payload)
	// Not synced, so no block lookup.
	time.Sleep(50 * time.Millisecond)
	assert.False(t, rec.has(eventbus.EventBlock))
}
