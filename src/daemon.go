package main

import (
	"context"
	"errors"
	"fmt"
	"net/netip"

	"github.com/OpenTollGate/tollgate-module-reachability-go/src/announcer"
	"github.com/OpenTollGate/tollgate-module-reachability-go/src/cli"
	"github.com/OpenTollGate/tollgate-module-reachability-go/src/config_manager"
	"github.com/OpenTollGate/tollgate-module-reachability-go/src/dispatch"
	"github.com/OpenTollGate/tollgate-module-reachability-go/src/radio"
	"github.com/OpenTollGate/tollgate-module-reachability-go/src/reachability"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
)

// mobileDetector is implemented by facilities that can tell whether the
// host has a cellular modem.
type mobileDetector interface {
	DetectMobileDevice() (bool, error)
}

// run wires the monitors, observers and control socket, then delivers
// status changes on the calling goroutine until ctx is cancelled.
func run(ctx context.Context, config *config_manager.Config, facility reachability.Facility) (err error) {
	loop := dispatch.NewLoop("main")

	lookup, err := radio.FromConfig(config.Device)
	if err != nil {
		return err
	}
	mobile := resolveMobile(config.Device.Mobile, facility)

	mainLogger.WithFields(logrus.Fields{
		"mobile":       mobile,
		"radio_source": config.Device.RadioSource,
		"targets":      len(config.Targets),
	}).Info("Starting reachability service")

	monitors, err := newMonitorSet(config.Targets, facility,
		reachability.WithDeliveryQueue(loop),
		reachability.WithMobileDevice(mobile),
		reachability.WithRadioLookup(lookup),
	)
	if err != nil {
		return err
	}

	var ann *announcer.Announcer
	if config.Announce.Enabled {
		ann, err = announcer.New(config.Announce, nil)
		if err != nil {
			monitors.Close()
			return err
		}
		mainLogger.WithFields(logrus.Fields{
			"pubkey": ann.PublicKey(),
			"relays": config.Announce.Relays,
		}).Info("Announcing status changes")
	}

	for _, m := range monitors.list {
		m.Subscribe(logObserver(m.Name()))
		if ann != nil {
			m.Subscribe(ann.Observer(m.Name()))
			ann.Announce(m.Name(), m.CurrentStatus())
		}
		if err := m.StartWatching(); err != nil {
			// The CLI can retry later.
			mainLogger.WithError(err).WithField("target", m.Name()).Warn("Target is not being watched")
		}
	}

	server := cli.NewCLIServer(config.CLI.SocketPath, monitors)
	if err := server.Start(); err != nil {
		mainLogger.WithError(err).Warn("CLI server unavailable")
		server = nil
	}

	runErr := loop.Run(ctx)
	mainLogger.Info("Shutting down")

	if server != nil {
		err = multierr.Append(err, server.Stop())
	}
	err = multierr.Append(err, monitors.Close())

	// Deliver what the monitors queued before they stopped.
	loop.Close()
	loop.Run(context.Background())

	if ann != nil {
		ann.Close()
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		err = multierr.Append(err, runErr)
	}
	return err
}

// resolveMobile turns the configured mode into a yes or no. "auto" asks
// the facility and falls back to false.
func resolveMobile(mode string, facility reachability.Facility) bool {
	switch mode {
	case config_manager.MobileTrue:
		return true
	case config_manager.MobileFalse:
		return false
	}

	detector, ok := facility.(mobileDetector)
	if !ok {
		return false
	}
	mobile, err := detector.DetectMobileDevice()
	if err != nil {
		mainLogger.WithError(err).Warn("Mobile device detection failed, assuming not mobile")
		return false
	}
	return mobile
}

func logObserver(name string) reachability.Observer {
	entry := mainLogger.WithField("target", name)
	return func(status reachability.Status) {
		entry.WithField("status", status.Key()).Infof("Reachability changed: %s", status)
	}
}

// monitorSet holds the configured monitors in config order and serves
// them to the CLI.
type monitorSet struct {
	list   []*reachability.Monitor
	byName map[string]*reachability.Monitor
}

func newMonitorSet(targets []config_manager.TargetConfig, facility reachability.Facility, opts ...reachability.Option) (*monitorSet, error) {
	set := &monitorSet{byName: make(map[string]*reachability.Monitor)}

	for _, t := range targets {
		if err := t.Validate(); err != nil {
			return nil, multierr.Append(err, set.Close())
		}
		if _, dup := set.byName[t.Name]; dup {
			return nil, multierr.Append(fmt.Errorf("duplicate target name %q", t.Name), set.Close())
		}

		m, err := newMonitor(t, facility, append(opts, reachability.WithName(t.Name))...)
		if err != nil {
			return nil, multierr.Append(fmt.Errorf("target %q: %w", t.Name, err), set.Close())
		}

		set.list = append(set.list, m)
		set.byName[t.Name] = m
		mainLogger.WithFields(logrus.Fields{
			"target":      t.Name,
			"kind":        t.Kind(),
			"destination": m.Target(),
		}).Debug("Monitor created")
	}
	return set, nil
}

func newMonitor(t config_manager.TargetConfig, facility reachability.Facility, opts ...reachability.Option) (*reachability.Monitor, error) {
	switch {
	case t.DefaultRoute:
		return reachability.NewDefaultRoute(facility, opts...)
	case t.Address != "":
		addr, err := netip.ParseAddr(t.Address)
		if err != nil {
			return nil, err
		}
		return reachability.NewWithAddress(facility, addr, opts...)
	default:
		return reachability.NewWithHostname(facility, t.Hostname, opts...)
	}
}

func (s *monitorSet) Watchers() []cli.Watcher {
	out := make([]cli.Watcher, 0, len(s.list))
	for _, m := range s.list {
		out = append(out, m)
	}
	return out
}

func (s *monitorSet) Watcher(name string) (cli.Watcher, bool) {
	m, ok := s.byName[name]
	if !ok {
		return nil, false
	}
	return m, true
}

// Close closes every monitor and reports all failures.
func (s *monitorSet) Close() error {
	var err error
	for _, m := range s.list {
		err = multierr.Append(err, m.Close())
	}
	return err
}

var _ cli.Registry = (*monitorSet)(nil)
