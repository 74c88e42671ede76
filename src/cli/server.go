package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/OpenTollGate/tollgate-module-reachability-go/src/reachability"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	DefaultSocketPath = "/var/run/tollgate-reachability.sock"
	SocketPermissions = 0666
)

var cliLogger = logrus.WithField("module", "cli")

// Watcher is the part of a reachability monitor the CLI controls.
type Watcher interface {
	Name() string
	Target() string
	CurrentFlags() (reachability.FlagSet, error)
	CurrentStatus() reachability.Status
	StartWatching() error
	StopWatching()
	IsWatching() bool
}

var _ Watcher = (*reachability.Monitor)(nil)

// Registry looks up the monitors the daemon runs.
type Registry interface {
	Watchers() []Watcher
	Watcher(name string) (Watcher, bool)
}

// CLIServer handles Unix socket communication for CLI commands
type CLIServer struct {
	socketPath string
	registry   Registry
	startTime  time.Time

	mu       sync.Mutex
	listener net.Listener
	running  bool
	wg       sync.WaitGroup
}

// NewCLIServer creates a new CLI server instance. An empty socketPath uses
// DefaultSocketPath.
func NewCLIServer(socketPath string, registry Registry) *CLIServer {
	if socketPath == "" {
		socketPath = DefaultSocketPath
	}
	return &CLIServer{
		socketPath: socketPath,
		registry:   registry,
		startTime:  time.Now(),
	}
}

// SocketPath returns the path the server listens on.
func (s *CLIServer) SocketPath() string {
	return s.socketPath
}

// Start begins listening on the Unix socket
func (s *CLIServer) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	// Remove a stale socket left by a previous run
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to create Unix socket: %w", err)
	}

	// Set socket permissions so CLI can access it
	if err := os.Chmod(s.socketPath, SocketPermissions); err != nil {
		listener.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	s.listener = listener
	s.running = true

	cliLogger.WithField("socket_path", s.socketPath).Info("CLI server started")

	s.wg.Add(1)
	go s.acceptConnections(listener)

	return nil
}

// Stop shuts down the CLI server and waits for open connections to finish
func (s *CLIServer) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	listener := s.listener
	s.listener = nil
	s.mu.Unlock()

	err := listener.Close()
	s.wg.Wait()

	os.Remove(s.socketPath)

	cliLogger.Info("CLI server stopped")
	return err
}

func (s *CLIServer) isRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// acceptConnections handles incoming connections until the listener closes
func (s *CLIServer) acceptConnections(listener net.Listener) {
	defer s.wg.Done()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if s.isRunning() {
				cliLogger.WithError(err).Error("Failed to accept connection")
				continue
			}
			return
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(conn)
		}()
	}
}

// handleConnection processes a single CLI connection. Every request gets an
// ID that is logged and returned so client errors can be found in the log.
func (s *CLIServer) handleConnection(conn net.Conn) {
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(30 * time.Second))

	requestID := uuid.NewString()
	log := cliLogger.WithField("request_id", requestID)

	// Requests are a single JSON line
	reader := bufio.NewReaderSize(conn, 8192)
	data, err := reader.ReadBytes('\n')
	if err != nil {
		log.WithError(err).Error("Failed to read from connection")
		return
	}

	log.WithField("data_length", len(data)).Debug("Received CLI message")

	var response CLIResponse
	var msg CLIMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		log.WithError(err).Error("Failed to unmarshal CLI message")
		response = failure(fmt.Sprintf("Invalid JSON: %v", err))
	} else {
		response = s.processCommand(log, msg)
	}

	response.RequestID = requestID
	s.sendResponse(conn, response)
}

// processCommand executes the CLI command and returns a response
func (s *CLIServer) processCommand(log *logrus.Entry, msg CLIMessage) CLIResponse {
	log.WithFields(logrus.Fields{
		"command": msg.Command,
		"args":    msg.Args,
	}).Info("Processing CLI command")

	switch msg.Command {
	case "status":
		return s.handleStatusCommand(msg.Args)
	case "targets":
		return s.handleTargetsCommand()
	case "start":
		return s.handleWatchCommand(log, msg.Args, true)
	case "stop":
		return s.handleWatchCommand(log, msg.Args, false)
	case "version":
		return s.handleVersionCommand()
	default:
		return failure(fmt.Sprintf("Unknown command: %s", msg.Command))
	}
}

// handleStatusCommand returns the service status, or one monitor's status
// when a name is given
func (s *CLIServer) handleStatusCommand(args []string) CLIResponse {
	if len(args) > 0 {
		w, ok := s.registry.Watcher(args[0])
		if !ok {
			return failure(fmt.Sprintf("Unknown target: %s", args[0]))
		}
		info := describe(w)
		return CLIResponse{
			Success:   true,
			Message:   fmt.Sprintf("%s: %s", info.Name, info.Label),
			Data:      info,
			Timestamp: time.Now(),
		}
	}

	status := ServiceStatus{
		Running:  true,
		Version:  CurrentBuild().Short(),
		Uptime:   time.Since(s.startTime).Truncate(time.Second).String(),
		Monitors: s.describeAll(),
	}

	return CLIResponse{
		Success:   true,
		Message:   "Service status retrieved",
		Data:      status,
		Timestamp: time.Now(),
	}
}

// handleTargetsCommand lists every configured monitor
func (s *CLIServer) handleTargetsCommand() CLIResponse {
	infos := s.describeAll()
	return CLIResponse{
		Success:   true,
		Message:   fmt.Sprintf("%d target(s) configured", len(infos)),
		Data:      infos,
		Timestamp: time.Now(),
	}
}

// handleWatchCommand starts or stops watching for the named monitor
func (s *CLIServer) handleWatchCommand(log *logrus.Entry, args []string, start bool) CLIResponse {
	action := "stop"
	if start {
		action = "start"
	}
	if len(args) == 0 {
		return failure(fmt.Sprintf("%s requires a target name", action))
	}

	w, ok := s.registry.Watcher(args[0])
	if !ok {
		return failure(fmt.Sprintf("Unknown target: %s", args[0]))
	}

	if start {
		if err := w.StartWatching(); err != nil {
			log.WithError(err).WithField("target", w.Name()).Error("Failed to start watching")
			return failure(fmt.Sprintf("Failed to start watching %s: %v", w.Name(), err))
		}
	} else {
		w.StopWatching()
	}

	log.WithFields(logrus.Fields{
		"target":   w.Name(),
		"watching": w.IsWatching(),
	}).Info("Watch state changed from CLI")

	return CLIResponse{
		Success:   true,
		Message:   fmt.Sprintf("%s: watching=%t", w.Name(), w.IsWatching()),
		Data:      describe(w),
		Timestamp: time.Now(),
	}
}

// handleVersionCommand returns version information
func (s *CLIServer) handleVersionCommand() CLIResponse {
	build := CurrentBuild()
	return CLIResponse{
		Success:   true,
		Message:   build.String(),
		Data:      build,
		Timestamp: time.Now(),
	}
}

func (s *CLIServer) describeAll() []MonitorInfo {
	watchers := s.registry.Watchers()
	infos := make([]MonitorInfo, 0, len(watchers))
	for _, w := range watchers {
		infos = append(infos, describe(w))
	}
	return infos
}

func describe(w Watcher) MonitorInfo {
	info := MonitorInfo{
		Name:     w.Name(),
		Target:   w.Target(),
		Watching: w.IsWatching(),
	}

	flags, err := w.CurrentFlags()
	if err != nil {
		info.Error = err.Error()
	}
	info.Flags = flags.String()

	status := w.CurrentStatus()
	info.Status = status.Key()
	info.Label = status.String()
	return info
}

func failure(msg string) CLIResponse {
	return CLIResponse{
		Success:   false,
		Error:     msg,
		Timestamp: time.Now(),
	}
}

// sendResponse sends a CLIResponse back to the client
func (s *CLIServer) sendResponse(conn net.Conn, response CLIResponse) {
	data, err := json.Marshal(response)
	if err != nil {
		cliLogger.WithError(err).Error("Failed to marshal response")
		return
	}

	conn.Write(append(data, '\n'))
}
