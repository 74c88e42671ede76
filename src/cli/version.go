package cli

import (
	"fmt"
	"os"
	"runtime"
	"strings"
)

// Set with -ldflags -X at build time.
var (
	Version   = "v0.0.0"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

const productName = "tollgate-reachability"

// openWrtRelease is where OpenWrt records its release description.
var openWrtRelease = "/etc/openwrt_release"

// BuildInfo describes the running binary and the firmware it runs on.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
	Firmware  string `json:"openwrt_version"`
}

// CurrentBuild collects the stamped build variables and reads the firmware
// release. The release file is read on every call so an upgrade in place
// shows up without a restart.
func CurrentBuild() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    GitCommit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
		Firmware:  firmwareRelease(openWrtRelease),
	}
}

// Short is the one-line form used in the service status.
func (b BuildInfo) Short() string {
	return productName + " " + b.Version
}

// String renders one "key: value" line per field, in the order the
// version command prints them.
func (b BuildInfo) String() string {
	var sb strings.Builder
	sb.WriteString(b.Short())
	for _, kv := range [][2]string{
		{"commit", b.Commit},
		{"built", b.BuildTime},
		{"go", b.GoVersion},
		{"platform", b.Platform},
		{"firmware", b.Firmware},
	} {
		fmt.Fprintf(&sb, "\n  %-9s %s", kv[0]+":", kv[1])
	}
	return sb.String()
}

func firmwareRelease(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return "unknown"
	}
	return parseReleaseDescription(string(data))
}

// parseReleaseDescription pulls DISTRIB_DESCRIPTION out of an
// openwrt_release file.
func parseReleaseDescription(release string) string {
	for _, line := range strings.Split(release, "\n") {
		key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
		if ok && key == "DISTRIB_DESCRIPTION" {
			return strings.Trim(value, "'\"")
		}
	}
	return "unknown"
}
