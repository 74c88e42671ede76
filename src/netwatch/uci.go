package netwatch

import (
	"github.com/OpenTollGate/tollgate-module-reachability-go/src/config_manager"
	"github.com/digineo/go-uci"
)

// cellularProtos are OpenWrt interface protocols that run over a modem.
var cellularProtos = map[string]bool{
	"3g":           true,
	"directip":     true,
	"mbim":         true,
	"modemmanager": true,
	"ncm":          true,
	"qmi":          true,
	"wwan":         true,
}

// uciNetwork is what the OpenWrt network config says about modems.
type uciNetwork struct {
	cellular []string // logical interface names
	prefixes []string // netdev names the interfaces create
}

// readUCINetwork scans the interface sections of <root>/network.
func readUCINetwork(root string) (uciNetwork, error) {
	tree := uci.NewTree(root)
	if err := tree.LoadConfig("network", false); err != nil {
		return uciNetwork{}, err
	}

	var n uciNetwork
	sections, _ := tree.GetSections("network", "interface")
	for _, section := range sections {
		proto, ok := tree.Get("network", section, "proto")
		if !ok || len(proto) == 0 || !cellularProtos[proto[0]] {
			continue
		}
		n.cellular = append(n.cellular, section)

		// PPP based protocols name their netdev after the interface.
		if proto[0] == "3g" || proto[0] == "directip" {
			n.prefixes = append(n.prefixes, proto[0]+"-"+section)
		}
	}
	return n, nil
}

// withUCI extends cfg with the cellular interfaces declared in the UCI
// network config. A missing or unreadable config leaves cfg unchanged.
func withUCI(cfg config_manager.NetwatchConfig) (config_manager.NetwatchConfig, []string) {
	if cfg.UCIRoot == "" {
		return cfg, nil
	}

	n, err := readUCINetwork(cfg.UCIRoot)
	if err != nil {
		logger.WithError(err).WithField("uci_root", cfg.UCIRoot).Debug("No UCI network config")
		return cfg, nil
	}

	if len(n.prefixes) > 0 {
		cfg.CellularInterfaces = append(append([]string(nil), cfg.CellularInterfaces...), n.prefixes...)
	}
	if len(n.cellular) > 0 {
		logger.WithField("interfaces", n.cellular).Info("Cellular interfaces found in UCI network config")
	}
	return cfg, n.cellular
}
