package daemon

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/traaittPlatform/traaittplatformd-ha/pkg/config"
	"github.com/traaittPlatform/traaittplatformd-ha/pkg/errors"
	"github.com/traaittPlatform/traaittplatformd-ha/pkg/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func boolPtr(b bool) *bool { return &b }
func intPtr(i int) *int    { return &i }

func TestBuildArgs(t *testing.T) {
	checkpoints := filepath.Join(t.TempDir(), "checkpoints.csv")
	require.NoError(t, os.WriteFile(checkpoints, []byte("1,abc\n"), 0644))

	tests := []struct {
		name     string
		daemon   config.DaemonConfig
		expected []string
	}{
		{
			name:     "empty configuration builds nothing",
			daemon:   config.DaemonConfig{},
			expected: nil,
		},
		{
			name: "full configuration in fixed order",
			daemon: config.DaemonConfig{
				DataDir:                     "/data",
				LogFile:                     "/log/node.log",
				LogLevel:                    intPtr(2),
				EnableCors:                  "*",
				EnableBlockExplorer:         boolPtr(true),
				EnableBlockExplorerDetailed: boolPtr(true),
				LoadCheckpoints:             checkpoints,
				RPCBindIP:                   "0.0.0.0",
				RPCBindPort:                 24496,
				P2PBindIP:                   "0.0.0.0",
				P2PBindPort:                 24495,
				P2PExternalPort:             24495,
				AllowLocalIP:                boolPtr(true),
				Peers:                       []string{"1.1.1.1:24495", "2.2.2.2:24495"},
				PriorityNodes:               []string{"3.3.3.3:24495"},
				ExclusiveNodes:              []string{"4.4.4.4:24495"},
				SeedNode:                    "5.5.5.5:24495",
				HideMyPort:                  true,
				DBThreads:                   4,
				DBMaxOpenFiles:              100,
				DBWriteBufferSize:           256,
				DBReadBufferSize:            10,
				DBEnableCompression:         true,
				FeeAddress:                  "TRTLaddr",
				FeeAmount:                   100,
			},
			expected: []string{
				"--data-dir", "/data",
				"--log-file", "/log/node.log",
				"--log-level", "2",
				"--enable-cors", "*",
				"--enable-blockexplorer",
				"--enable-blockexplorer-detailed",
				"--load-checkpoints", checkpoints,
				"--rpc-bind-ip", "0.0.0.0",
				"--rpc-bind-port", "24496",
				"--p2p-bind-ip", "0.0.0.0",
				"--p2p-bind-port", "24495",
				"--p2p-external-port", "24495",
				"--allow-local-ip",
				"--add-peer", "1.1.1.1:24495",
				"--add-peer", "2.2.2.2:24495",
				"--add-priority-node", "3.3.3.3:24495",
				"--add-exclusive-node", "4.4.4.4:24495",
				"--seed-node", "5.5.5.5:24495",
				"--hide-my-port",
				"--db-threads", "4",
				"--db-max-open-files", "100",
				"--db-write-buffer-size", "256",
				"--db-read-buffer-size", "10",
				"--db-enable-compression",
				"--fee-address", "TRTLaddr",
				"--fee-amount", "100",
			},
		},
		{
			name: "false toggles and missing checkpoints are omitted",
			daemon: config.DaemonConfig{
				DataDir:             "/data",
				EnableBlockExplorer: boolPtr(false),
				AllowLocalIP:        boolPtr(false),
				LoadCheckpoints:     filepath.Join(t.TempDir(), "absent.csv"),
				RPCBindPort:         24496,
			},
			expected: []string{"--data-dir", "/data", "--rpc-bind-port", "24496"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			first := BuildArgs(tt.daemon)
			assert.Equal(t, tt.expected, first)
			assert.Equal(t, first, BuildArgs(tt.daemon))
		})
	}
}

func TestCommandLine(t *testing.T) {
	assert.Equal(t, "/bin/node", CommandLine("/bin/node", nil))
	assert.Equal(t, "/bin/node --data-dir /d", CommandLine("/bin/node", []string{"--data-dir", "/d"}))
}

func TestParseLine(t *testing.T) {
	tests := []struct {
		line     string
		signal   Signal
		height   int64
		parseErr bool
	}{
		{"2024-01-01 12:00:00 INFO P2p server initialized OK", SignalStarted, 0, false},
		{"help               Show this help", SignalHelp, 0, false},
		{"New Top Block Detected: 123456", SignalTopBlock, 123456, false},
		{"New Top Block Detected:   77 (sync)", SignalTopBlock, 77, false},
		{"New Top Block Detected: abc", SignalTopBlock, 0, true},
		{"New Top Block Detected:", SignalTopBlock, 0, true},
		{"Loading blockchain...", SignalNone, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			signal, height, err := ParseLine(tt.line)
			assert.Equal(t, tt.signal, signal)
			assert.Equal(t, tt.height, height)
			if tt.parseErr {
				assert.True(t, errors.IsParseError(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

// writeNode writes a shell stand-in for the node.
func writeNode(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "traaittPlatformd")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0755))
	return path
}

const consoleNode = `echo "P2p server initialized OK"
while read cmd; do
  case "$cmd" in
    help) echo "Show this help" ;;
    exit) echo "Stopping"; exit 0 ;;
  esac
done
`

type lineRecorder struct {
	mu    sync.Mutex
	lines []string
}

func (r *lineRecorder) add(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, line)
}

func (r *lineRecorder) contains(line string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.lines {
		if l == line {
			return true
		}
	}
	return false
}

func TestSpawnWriteAndGracefulTerminate(t *testing.T) {
	path := writeNode(t, consoleNode)
	rec := &lineRecorder{}

	proc, err := Spawn(context.Background(), Options{Path: path}, rec.add, logging.NewNopLogger())
	require.NoError(t, err)
	assert.Greater(t, proc.PID(), 0)

	assert.Eventually(t, func() bool { return rec.contains(MarkerStarted) }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, proc.Write("help"))
	assert.Eventually(t, func() bool { return rec.contains(MarkerHelp) }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, proc.Terminate(context.Background(), 2*time.Second))
	assert.True(t, proc.Exited())
	assert.Equal(t, 0, proc.ExitCode())
	assert.NoError(t, proc.StreamErr())
	assert.True(t, rec.contains("Stopping"))

	assert.Error(t, proc.Write("help"))
}

func TestTerminateKillsUnresponsiveNode(t *testing.T) {
	path := writeNode(t, "trap '' TERM\nwhile true; do read cmd; done\n")

	proc, err := Spawn(context.Background(), Options{Path: path}, nil, logging.NewNopLogger())
	require.NoError(t, err)

	start := time.Now()
	require.NoError(t, proc.Terminate(context.Background(), 200*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 200*time.Millisecond)
	assert.Equal(t, -1, proc.ExitCode())
}

func TestSpawnExitCode(t *testing.T) {
	path := writeNode(t, "echo bye\nexit 3\n")

	proc, err := Spawn(context.Background(), Options{Path: path}, nil, logging.NewNopLogger())
	require.NoError(t, err)

	select {
	case <-proc.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("node did not exit")
	}
	assert.Equal(t, 3, proc.ExitCode())
}

func TestSpawnValidation(t *testing.T) {
	_, err := Spawn(context.Background(), Options{Path: filepath.Join(t.TempDir(), "missing")}, nil, logging.NewNopLogger())
	require.Error(t, err)
	assert.True(t, errors.IsNotFoundError(err))

	_, err = Spawn(context.Background(), Options{}, nil, logging.NewNopLogger())
	assert.True(t, errors.IsValidationError(err))

	path := writeNode(t, "exit 0\n")
	_, err = Spawn(context.Background(), Options{Path: path, Dir: "relative"}, nil, logging.NewNopLogger())
	assert.True(t, errors.IsValidationError(err))

	_, err = Spawn(context.Background(), Options{Path: path, Environment: []string{"BROKEN"}}, nil, logging.NewNopLogger())
	assert.True(t, errors.IsValidationError(err))
}

func TestEnsureExecutable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"), 0644))

	require.NoError(t, ensureExecutable(path))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.NotZero(t, info.Mode()&0111)
}
