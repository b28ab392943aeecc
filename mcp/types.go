package mcp

import (
	"context"
	"mcpchat/config"
	"os/exec"
	"time"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
)

// toolClient is the part of an MCP client the manager uses.
// *client.Client satisfies it.
type toolClient interface {
	Initialize(ctx context.Context, req mcptypes.InitializeRequest) (*mcptypes.InitializeResult, error)
	ListTools(ctx context.Context, req mcptypes.ListToolsRequest) (*mcptypes.ListToolsResult, error)
	Close() error
}

// serverProcess is one running tool server.
type serverProcess struct {
	cfg     config.ToolServerConfig
	process *exec.Cmd
	client  toolClient
	tools   []mcptypes.Tool
	started time.Time
}

// ServerStatus describes a configured tool server for the settings API.
type ServerStatus struct {
	Name      string    `json:"name"`
	Command   string    `json:"command"`
	Args      []string  `json:"args,omitempty"`
	Running   bool      `json:"running"`
	Tools     []string  `json:"tools,omitempty"`
	Error     string    `json:"error,omitempty"`
	StartedAt time.Time `json:"started_at,omitzero"`
}
