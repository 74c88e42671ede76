// Package radio reports which cellular radio technology the modem is using.
package radio

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/OpenTollGate/tollgate-module-reachability-go/src/config_manager"
	"github.com/OpenTollGate/tollgate-module-reachability-go/src/reachability"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

var logger = logrus.WithField("module", "radio")

// CommandRunner runs an external command and returns its stdout.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// Static always reports tech.
func Static(tech reachability.RadioTechnology) reachability.RadioLookup {
	return reachability.RadioLookupFunc(func() reachability.RadioTechnology { return tech })
}

// None reports no radio.
var None = Static(reachability.RadioNone)

// ModemManager asks ModemManager through mmcli.
type ModemManager struct {
	path    string
	timeout time.Duration
	runner  CommandRunner
}

// NewModemManager creates a lookup that runs the mmcli binary at path.
// A nil runner uses ExecRunner.
func NewModemManager(path string, timeout time.Duration, runner CommandRunner) *ModemManager {
	if path == "" {
		path = "mmcli"
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	return &ModemManager{path: path, timeout: timeout, runner: runner}
}

// CurrentRadioTechnology queries the first modem. Any failure reports
// RadioNone.
func (m *ModemManager) CurrentRadioTechnology() reachability.RadioTechnology {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	out, err := m.runner.Run(ctx, m.path, "-m", "any", "-J")
	if err != nil {
		logger.WithError(err).Debug("mmcli query failed")
		return reachability.RadioNone
	}

	tech, err := ParseModemStatus(out)
	if err != nil {
		logger.WithError(err).Debug("Could not parse mmcli output")
		return reachability.RadioNone
	}
	return tech
}

// accessTechnologies maps ModemManager access technology names.
var accessTechnologies = map[string]reachability.RadioTechnology{
	"gsm":         reachability.RadioGPRS,
	"gsm-compact": reachability.RadioGPRS,
	"gprs":        reachability.RadioGPRS,
	"edge":        reachability.RadioEdge,
	"1xrtt":       reachability.RadioCDMA1x,
	"umts":        reachability.RadioWCDMA,
	"hsdpa":       reachability.RadioHSDPA,
	"hsupa":       reachability.RadioHSUPA,
	"hspa":        reachability.RadioHSUPA,
	"hspa-plus":   reachability.RadioHSUPA,
	"evdo0":       reachability.RadioCDMAEVDORev0,
	"evdoa":       reachability.RadioCDMAEVDORevA,
	"evdob":       reachability.RadioCDMAEVDORevB,
	"lte":         reachability.RadioLTE,
}

// generation orders technologies so the newest one listed wins.
func generation(tech reachability.RadioTechnology) int {
	switch reachability.Classify(reachability.Reachable|reachability.IsCellular, true, Static(tech)) {
	case reachability.Cellular4G:
		return 4
	case reachability.Cellular3G:
		return 3
	case reachability.Cellular2G:
		return 2
	}
	return 0
}

// ParseModemStatus reads the access technology from `mmcli -m <modem> -J`
// output. When several are listed the newest generation wins; names
// outside the known set are ignored.
func ParseModemStatus(data []byte) (reachability.RadioTechnology, error) {
	if !gjson.ValidBytes(data) {
		return reachability.RadioNone, fmt.Errorf("invalid JSON from mmcli")
	}

	result := gjson.GetBytes(data, "modem.generic.access-technologies")
	if !result.Exists() {
		return reachability.RadioNone, fmt.Errorf("no access technologies reported")
	}

	var names []string
	if result.IsArray() {
		for _, v := range result.Array() {
			names = append(names, v.String())
		}
	} else {
		names = strings.Split(result.String(), ",")
	}

	best := reachability.RadioNone
	for _, name := range names {
		tech, ok := accessTechnologies[strings.ToLower(strings.TrimSpace(name))]
		if ok && generation(tech) > generation(best) {
			best = tech
		}
	}
	return best, nil
}

// FromConfig builds the lookup the device section asks for.
func FromConfig(cfg config_manager.DeviceConfig) (reachability.RadioLookup, error) {
	switch cfg.RadioSource {
	case config_manager.RadioSourceNone, "":
		return None, nil
	case config_manager.RadioSourceStatic:
		tech, ok := reachability.ParseRadioTechnology(cfg.StaticRadio)
		if !ok {
			return nil, fmt.Errorf("unknown static_radio %q", cfg.StaticRadio)
		}
		return Static(tech), nil
	case config_manager.RadioSourceModemManager:
		return NewModemManager(cfg.MmcliPath, cfg.RadioTimeout.Std(), nil), nil
	default:
		return nil, fmt.Errorf("unknown radio_source %q", cfg.RadioSource)
	}
}
