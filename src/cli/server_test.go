package cli

import (
	"bufio"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/OpenTollGate/tollgate-module-reachability-go/src/reachability"
	"github.com/OpenTollGate/tollgate-module-reachability-go/src/reachability/reachabilitytest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type mapRegistry struct {
	order    []string
	watchers map[string]Watcher
}

func newMapRegistry(ws ...Watcher) *mapRegistry {
	r := &mapRegistry{watchers: make(map[string]Watcher)}
	for _, w := range ws {
		r.order = append(r.order, w.Name())
		r.watchers[w.Name()] = w
	}
	return r
}

func (r *mapRegistry) Watchers() []Watcher {
	out := make([]Watcher, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.watchers[name])
	}
	return out
}

func (r *mapRegistry) Watcher(name string) (Watcher, bool) {
	w, ok := r.watchers[name]
	return w, ok
}

// MockWatcher lets tests script watch failures.
type MockWatcher struct {
	mock.Mock
}

func (m *MockWatcher) Name() string   { return m.Called().String(0) }
func (m *MockWatcher) Target() string { return m.Called().String(0) }
func (m *MockWatcher) CurrentFlags() (reachability.FlagSet, error) {
	args := m.Called()
	return args.Get(0).(reachability.FlagSet), args.Error(1)
}
func (m *MockWatcher) CurrentStatus() reachability.Status {
	return m.Called().Get(0).(reachability.Status)
}
func (m *MockWatcher) StartWatching() error { return m.Called().Error(0) }
func (m *MockWatcher) StopWatching()        { m.Called() }
func (m *MockWatcher) IsWatching() bool     { return m.Called().Bool(0) }

func socketPath(t *testing.T) string {
	t.Helper()
	// Unix socket paths are short; t.TempDir can exceed the limit.
	dir, err := os.MkdirTemp("", "rcli")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return filepath.Join(dir, "cli.sock")
}

func startServer(t *testing.T, registry Registry) *CLIServer {
	t.Helper()
	s := NewCLIServer(socketPath(t), registry)
	require.NoError(t, s.Start())
	t.Cleanup(func() { s.Stop() })
	return s
}

func newMonitor(t *testing.T, name string, flags reachability.FlagSet) (*reachability.Monitor, *reachabilitytest.Target) {
	t.Helper()
	target := reachabilitytest.NewTarget(name, flags)
	m := reachability.New(target, reachability.WithName(name))
	t.Cleanup(func() { m.Close() })
	return m, target
}

func send(t *testing.T, s *CLIServer, command string, args ...string) *CLIResponse {
	t.Helper()
	resp, err := SendCommand(s.SocketPath(), CLIMessage{Command: command, Args: args})
	require.NoError(t, err)
	return resp
}

func decode(t *testing.T, data interface{}, into interface{}) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, into))
}

func TestStatusOfOneTarget(t *testing.T) {
	m, _ := newMonitor(t, "internet", reachability.Reachable)
	s := startServer(t, newMapRegistry(m))

	resp := send(t, s, "status", "internet")
	require.True(t, resp.Success, resp.Error)
	assert.Equal(t, "internet: WiFi network", resp.Message)

	var info MonitorInfo
	decode(t, resp.Data, &info)
	assert.Equal(t, "internet", info.Name)
	assert.Equal(t, "wifi", info.Status)
	assert.Equal(t, reachability.Reachable.String(), info.Flags)
	assert.False(t, info.Watching)
	assert.Empty(t, info.Error)
}

func TestServiceStatusListsMonitors(t *testing.T) {
	a, _ := newMonitor(t, "internet", reachability.Reachable)
	b, target := newMonitor(t, "gateway", 0)
	target.FailFlags(reachabilitytest.ErrInjected)
	s := startServer(t, newMapRegistry(a, b))

	resp := send(t, s, "status")
	require.True(t, resp.Success)

	var status ServiceStatus
	decode(t, resp.Data, &status)
	assert.True(t, status.Running)
	assert.Equal(t, "tollgate-reachability "+Version, status.Version)
	require.Len(t, status.Monitors, 2)
	assert.Equal(t, "internet", status.Monitors[0].Name)
	assert.Equal(t, "not_reachable", status.Monitors[1].Status)
	assert.Equal(t, reachabilitytest.ErrInjected.Error(), status.Monitors[1].Error)
}

func TestTargetsCommand(t *testing.T) {
	a, _ := newMonitor(t, "internet", reachability.Reachable)
	s := startServer(t, newMapRegistry(a))

	resp := send(t, s, "targets")
	require.True(t, resp.Success)
	assert.Equal(t, "1 target(s) configured", resp.Message)

	var infos []MonitorInfo
	decode(t, resp.Data, &infos)
	require.Len(t, infos, 1)
	assert.Equal(t, "internet", infos[0].Target)
}

func TestStartAndStopWatching(t *testing.T) {
	m, target := newMonitor(t, "internet", reachability.Reachable)
	s := startServer(t, newMapRegistry(m))

	resp := send(t, s, "start", "internet")
	require.True(t, resp.Success, resp.Error)
	assert.True(t, m.IsWatching())
	assert.True(t, target.Registered())

	resp = send(t, s, "stop", "internet")
	require.True(t, resp.Success)
	assert.False(t, m.IsWatching())
	assert.False(t, target.Registered())
}

func TestStartFailureIsReported(t *testing.T) {
	w := &MockWatcher{}
	w.On("Name").Return("flaky")
	w.On("StartWatching").Return(reachability.ErrUnableToSetCallback)
	s := startServer(t, newMapRegistry(w))

	resp := send(t, s, "start", "flaky")
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "unable to register callback")
	w.AssertExpectations(t)
}

func TestCommandErrors(t *testing.T) {
	s := startServer(t, newMapRegistry())

	tests := []struct {
		command string
		args    []string
		want    string
	}{
		{"status", []string{"nope"}, "Unknown target: nope"},
		{"start", nil, "start requires a target name"},
		{"stop", []string{"nope"}, "Unknown target: nope"},
		{"wallet", nil, "Unknown command: wallet"},
	}
	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			resp := send(t, s, tt.command, tt.args...)
			assert.False(t, resp.Success)
			assert.Equal(t, tt.want, resp.Error)
		})
	}
}

func TestVersionCommand(t *testing.T) {
	dir := t.TempDir()
	release := filepath.Join(dir, "openwrt_release")
	require.NoError(t, os.WriteFile(release, []byte("DISTRIB_ID='OpenWrt'\nDISTRIB_DESCRIPTION='OpenWrt 23.05.3 r23809'\n"), 0644))
	defer func(prev string) { openWrtRelease = prev }(openWrtRelease)
	openWrtRelease = release

	s := startServer(t, newMapRegistry())

	resp := send(t, s, "version")
	require.True(t, resp.Success)
	assert.Contains(t, resp.Message, "tollgate-reachability "+Version)
	assert.Contains(t, resp.Message, "firmware: OpenWrt 23.05.3 r23809")

	var build BuildInfo
	decode(t, resp.Data, &build)
	assert.Equal(t, Version, build.Version)
	assert.Equal(t, GitCommit, build.Commit)
	assert.Equal(t, "OpenWrt 23.05.3 r23809", build.Firmware)
	assert.NotEmpty(t, build.GoVersion)
	assert.Contains(t, build.Platform, "/")

	again := send(t, s, "version")
	assert.NotEqual(t, resp.RequestID, again.RequestID)
}

func TestBuildInfoWithoutReleaseFile(t *testing.T) {
	defer func(prev string) { openWrtRelease = prev }(openWrtRelease)
	openWrtRelease = filepath.Join(t.TempDir(), "missing")

	build := CurrentBuild()
	assert.Equal(t, "unknown", build.Firmware)
	assert.True(t, strings.HasPrefix(build.String(), build.Short()+"\n"))
}

func TestParseReleaseDescription(t *testing.T) {
	release := "DISTRIB_ID='OpenWrt'\nDISTRIB_DESCRIPTION='OpenWrt 23.05.3 r23809'\n"
	assert.Equal(t, "OpenWrt 23.05.3 r23809", parseReleaseDescription(release))
	assert.Equal(t, "unknown", parseReleaseDescription("DISTRIB_ID=OpenWrt"))
}

func TestStopRemovesSocket(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := NewCLIServer(socketPath(t), newMapRegistry())
	require.NoError(t, s.Start())
	require.NoError(t, s.Start())

	require.NoError(t, s.Stop())
	require.NoError(t, s.Stop())

	_, err := os.Stat(s.SocketPath())
	assert.True(t, os.IsNotExist(err))

	_, err = SendCommand(s.SocketPath(), CLIMessage{Command: "version"})
	assert.Error(t, err)
}

func TestInvalidJSON(t *testing.T) {
	s := startServer(t, newMapRegistry())

	conn, err := net.Dial("unix", s.SocketPath())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("{not json\n"))
	require.NoError(t, err)

	line, err := bufio.NewReader(conn).ReadBytes('\n')
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(line, &resp))
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "Invalid JSON")
	assert.Len(t, resp.RequestID, 36)
}
