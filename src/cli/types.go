package cli

import "time"

// CLIMessage represents communication between CLI client and service
type CLIMessage struct {
	Command   string            `json:"command"`
	Args      []string          `json:"args,omitempty"`
	Flags     map[string]string `json:"flags,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// CLIResponse represents a response from the service
type CLIResponse struct {
	Success   bool        `json:"success"`
	Message   string      `json:"message,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// MonitorInfo describes one configured monitor
type MonitorInfo struct {
	Name     string `json:"name"`
	Target   string `json:"target"`
	Watching bool   `json:"watching"`
	Status   string `json:"status"`
	Label    string `json:"label"`
	Flags    string `json:"flags"`
	Error    string `json:"error,omitempty"`
}

// ServiceStatus represents basic service status
type ServiceStatus struct {
	Running  bool          `json:"running"`
	Version  string        `json:"version"`
	Uptime   string        `json:"uptime"`
	Monitors []MonitorInfo `json:"monitors"`
}
