package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"text/tabwriter"

	"github.com/OpenTollGate/tollgate-module-reachability-go/src/cli"
	"github.com/spf13/cobra"
)

var socketPath string

var rootCmd = &cobra.Command{
	Use:   "tollgate-reachability",
	Short: "Inspect and control the TollGate reachability monitor",
	Long: `tollgate-reachability talks to the running reachability service.
You can check the status of each configured target and start or stop
watching it for changes.`,
	SilenceUsage: true,
}

var statusCmd = &cobra.Command{
	Use:   "status [target]",
	Short: "Show service or target status",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendCommandAndDisplay("status", args)
	},
}

var targetsCmd = &cobra.Command{
	Use:   "targets",
	Short: "List configured targets",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendCommandAndDisplay("targets", nil)
	},
}

var startCmd = &cobra.Command{
	Use:   "start <target>",
	Short: "Start watching a target for changes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendCommandAndDisplay("start", args)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop <target>",
	Short: "Stop watching a target",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendCommandAndDisplay("stop", args)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show service version information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendCommandAndDisplay("version", nil)
	},
}

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show reachability service logs",
	Long:  "Show log lines of the reachability service from the system log (logread)",
	RunE: func(cmd *cobra.Command, args []string) error {
		tail, _ := cmd.Flags().GetInt("tail")
		follow, _ := cmd.Flags().GetBool("follow")
		return executeLogsCommand(tail, follow)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&socketPath, "socket", "s", cli.DefaultSocketPath, "Path of the service control socket")

	logsCmd.Flags().IntP("tail", "n", 0, "Number of lines to show from the end (0 = all)")
	logsCmd.Flags().BoolP("follow", "f", false, "Follow log output (like tail -f)")

	rootCmd.AddCommand(statusCmd, targetsCmd, startCmd, stopCmd, versionCmd, logsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func sendCommandAndDisplay(command string, args []string) error {
	response, err := cli.SendCommand(socketPath, cli.CLIMessage{Command: command, Args: args})
	if err != nil {
		return fmt.Errorf("%w\nMake sure the reachability service is running", err)
	}

	if !response.Success {
		return fmt.Errorf("%s (request %s)", response.Error, response.RequestID)
	}

	fmt.Println(response.Message)
	return displayData(command, len(args) > 0, response.Data)
}

func displayData(command string, named bool, data interface{}) error {
	if data == nil {
		return nil
	}

	switch {
	case command == "targets":
		var infos []cli.MonitorInfo
		if err := convert(data, &infos); err != nil {
			return err
		}
		printMonitors(infos)
	case command == "status" && !named:
		var status cli.ServiceStatus
		if err := convert(data, &status); err != nil {
			return err
		}
		fmt.Printf("version: %s\nuptime:  %s\n\n", status.Version, status.Uptime)
		printMonitors(status.Monitors)
	case command == "version":
		// The message already carries the formatted version.
	default:
		var info cli.MonitorInfo
		if err := convert(data, &info); err != nil {
			return err
		}
		printMonitors([]cli.MonitorInfo{info})
	}
	return nil
}

func printMonitors(infos []cli.MonitorInfo) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tTARGET\tWATCHING\tSTATUS\tFLAGS")
	for _, info := range infos {
		status := info.Label
		if info.Error != "" {
			status += " (" + info.Error + ")"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", info.Name, info.Target, strconv.FormatBool(info.Watching), status, info.Flags)
	}
	w.Flush()
}

// convert re-decodes a generic JSON value into a typed one.
func convert(data interface{}, into interface{}) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, into)
}

// executeLogsCommand runs logread filtered to the service
func executeLogsCommand(tail int, follow bool) error {
	args := []string{"-e", "tollgate-reachability"}
	if follow {
		args = append(args, "-f")
	}
	if tail > 0 {
		args = append(args, "-l", strconv.Itoa(tail))
	}

	cmd := exec.Command("logread", args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to read logs: %w", err)
	}
	return nil
}
