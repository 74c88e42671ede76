package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"time"
)

// SendCommand sends msg to the service listening on socketPath and waits
// for its reply.
func SendCommand(socketPath string, msg CLIMessage) (*CLIResponse, error) {
	if socketPath == "" {
		socketPath = DefaultSocketPath
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	conn, err := net.DialTimeout("unix", socketPath, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to reachability service: %w", err)
	}
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(30 * time.Second))

	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}
	if _, err := conn.Write(append(data, '\n')); err != nil {
		return nil, fmt.Errorf("failed to send message: %w", err)
	}

	reader := bufio.NewReaderSize(conn, 8192)
	line, err := reader.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("no response from service: %w", err)
	}

	var response CLIResponse
	if err := json.Unmarshal(line, &response); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &response, nil
}
