package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/OpenTollGate/tollgate-module-reachability-go/src/cli"
	"github.com/OpenTollGate/tollgate-module-reachability-go/src/config_manager"
	"github.com/OpenTollGate/tollgate-module-reachability-go/src/reachability"
	"github.com/OpenTollGate/tollgate-module-reachability-go/src/reachability/reachabilitytest"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type detectingFacility struct {
	*reachabilitytest.Facility
	mobile bool
	err    error
}

func (f detectingFacility) DetectMobileDevice() (bool, error) {
	return f.mobile, f.err
}

func testConfig(t *testing.T) *config_manager.Config {
	t.Helper()
	dir, err := os.MkdirTemp("", "rmain")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	config := config_manager.NewDefaultConfig()
	config.Device.Mobile = config_manager.MobileFalse
	config.Device.RadioSource = config_manager.RadioSourceNone
	config.Targets = append(config.Targets, config_manager.TargetConfig{Name: "dns", Address: "192.0.2.53"})
	config.CLI.SocketPath = filepath.Join(dir, "cli.sock")
	return config
}

func hasMessage(hook *test.Hook, substr string) bool {
	for _, entry := range hook.AllEntries() {
		if strings.Contains(entry.Message, substr) {
			return true
		}
	}
	return false
}

func TestRunServesCLIAndShutsDown(t *testing.T) {
	defer goleak.VerifyNone(t)

	hook := test.NewGlobal()
	defer hook.Reset()

	facility := reachabilitytest.NewFacility(reachability.Reachable)
	config := testConfig(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- run(ctx, config, facility) }()

	var resp *cli.CLIResponse
	require.Eventually(t, func() bool {
		var err error
		resp, err = cli.SendCommand(config.CLI.SocketPath, cli.CLIMessage{Command: "targets"})
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	require.True(t, resp.Success)
	assert.Equal(t, "2 target(s) configured", resp.Message)

	resp, err := cli.SendCommand(config.CLI.SocketPath, cli.CLIMessage{Command: "status", Args: []string{"dns"}})
	require.NoError(t, err)
	assert.Equal(t, "dns: WiFi network", resp.Message)

	// A device configured as not mobile has no radio, so a cellular uplink
	// reads as WiFi.
	defaultRoute := facility.Target("0.0.0.0")
	require.NotNil(t, defaultRoute)
	require.True(t, defaultRoute.Update(reachability.Reachable|reachability.IsCellular))

	require.Eventually(t, func() bool {
		return hasMessage(hook, "Reachability changed: WiFi network")
	}, 2*time.Second, 10*time.Millisecond)

	require.True(t, defaultRoute.Update(0))
	require.Eventually(t, func() bool {
		return hasMessage(hook, "Reachability changed: No connection")
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return")
	}

	assert.True(t, defaultRoute.Closed())
	assert.True(t, facility.Target("192.0.2.53").Closed())
	_, err = os.Stat(config.CLI.SocketPath)
	assert.True(t, os.IsNotExist(err))
}

func TestRunRejectsBadRadioSource(t *testing.T) {
	config := testConfig(t)
	config.Device.RadioSource = "ofono"

	err := run(context.Background(), config, reachabilitytest.NewFacility(0))
	assert.Error(t, err)
}

func TestRunFailsOnTargetError(t *testing.T) {
	facility := reachabilitytest.NewFacility(reachability.Reachable)
	facility.FailAddresses(reachabilitytest.ErrInjected)

	err := run(context.Background(), testConfig(t), facility)
	assert.ErrorIs(t, err, reachabilitytest.ErrInjected)
}

func TestResolveMobile(t *testing.T) {
	plain := reachabilitytest.NewFacility(0)
	assert.True(t, resolveMobile(config_manager.MobileTrue, plain))
	assert.False(t, resolveMobile(config_manager.MobileFalse, detectingFacility{Facility: plain, mobile: true}))
	assert.False(t, resolveMobile(config_manager.MobileAuto, plain))
	assert.True(t, resolveMobile(config_manager.MobileAuto, detectingFacility{Facility: plain, mobile: true}))
	assert.False(t, resolveMobile(config_manager.MobileAuto, detectingFacility{Facility: plain, mobile: true, err: errors.New("netlink down")}))
}

func TestNewMonitorSet(t *testing.T) {
	facility := reachabilitytest.NewFacility(reachability.Reachable)
	set, err := newMonitorSet([]config_manager.TargetConfig{
		{Name: "internet", DefaultRoute: true},
		{Name: "relay", Hostname: "relay.example"},
		{Name: "dns", Address: "192.0.2.53"},
	}, facility)
	require.NoError(t, err)
	defer set.Close()

	assert.Equal(t, []string{"0.0.0.0", "relay.example", "192.0.2.53"}, facility.Created())

	watchers := set.Watchers()
	require.Len(t, watchers, 3)
	assert.Equal(t, "relay", watchers[1].Name())

	w, ok := set.Watcher("dns")
	require.True(t, ok)
	assert.Equal(t, "192.0.2.53", w.Target())

	_, ok = set.Watcher("missing")
	assert.False(t, ok)
}

func TestNewMonitorSetClosesOnFailure(t *testing.T) {
	tests := []struct {
		name    string
		targets []config_manager.TargetConfig
	}{
		{"duplicate", []config_manager.TargetConfig{
			{Name: "a", DefaultRoute: true},
			{Name: "a", Address: "192.0.2.1"},
		}},
		{"invalid", []config_manager.TargetConfig{
			{Name: "a", DefaultRoute: true},
			{Name: "b", Address: "192.0.2.1", Hostname: "also.example"},
		}},
		{"facility failure", []config_manager.TargetConfig{
			{Name: "a", DefaultRoute: true},
			{Name: "b", Hostname: "unresolvable.example"},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			facility := reachabilitytest.NewFacility(reachability.Reachable)
			facility.FailHostnames(reachabilitytest.ErrInjected)

			_, err := newMonitorSet(tt.targets, facility)
			require.Error(t, err)
			assert.True(t, facility.Target("0.0.0.0").Closed())
		})
	}
}

func TestInitializeGlobalLogger(t *testing.T) {
	defer logrus.SetLevel(logrus.InfoLevel)

	InitializeGlobalLogger("DEBUG")
	assert.Equal(t, logrus.DebugLevel, logrus.GetLevel())

	InitializeGlobalLogger("chatty")
	assert.Equal(t, logrus.InfoLevel, logrus.GetLevel())
}
