package mcp

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"mcpchat/config"
	"os"
	"os/exec"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	mcptypes "github.com/mark3labs/mcp-go/mcp"
)

// ProtocolVersion is the MCP protocol revision announced on initialize.
const ProtocolVersion = "2025-06-18"

// DefaultStartTimeout bounds launching and initializing one server.
const DefaultStartTimeout = 30 * time.Second

// connectFunc launches a server and returns its client. The command is nil
// for transports without a child process.
type connectFunc func(ctx context.Context, cfg config.ToolServerConfig) (toolClient, *exec.Cmd, error)

// Manager runs the configured MCP tool servers and caches their tool lists.
// Tools are only discovered here; executing them is left to the client
// application.
type Manager struct {
	mu           sync.RWMutex
	servers      map[string]*serverProcess
	configured   map[string]config.ToolServerConfig
	failed       map[string]error
	connect      connectFunc
	startTimeout time.Duration
}

func NewManager() *Manager {
	return &Manager{
		servers:      make(map[string]*serverProcess),
		configured:   make(map[string]config.ToolServerConfig),
		failed:       make(map[string]error),
		connect:      connectStdio,
		startTimeout: DefaultStartTimeout,
	}
}

// Start launches every server in cfgs concurrently. A server that fails to
// start is recorded and reported by Servers; the others keep running. The
// returned error joins the individual failures.
func (m *Manager) Start(ctx context.Context, cfgs []config.ToolServerConfig) error {
	var (
		wg   sync.WaitGroup
		errs = make([]error, len(cfgs))
	)

	for i, cfg := range cfgs {
		m.mu.Lock()
		m.configured[cfg.Name] = cfg
		m.mu.Unlock()

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := m.startServer(ctx, cfg); err != nil {
				errs[i] = err
			}
		}()
	}
	wg.Wait()

	return errors.Join(errs...)
}

func (m *Manager) startServer(ctx context.Context, cfg config.ToolServerConfig) error {
	m.mu.Lock()
	switch {
	case m.servers[cfg.Name] != nil:
		m.mu.Unlock()
		return fmt.Errorf("tool server %s already running", cfg.Name)
	}
	delete(m.failed, cfg.Name)
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, m.startTimeout)
	defer cancel()

	proc, err := m.launch(ctx, cfg)
	if err != nil {
		m.mu.Lock()
		m.failed[cfg.Name] = err
		m.mu.Unlock()

		if config.Debug {
			config.DebugLog.Printf("[MCP] Tool server '%s' failed to start: %v", cfg.Name, err)
		}
		return err
	}

	m.mu.Lock()
	m.servers[cfg.Name] = proc
	m.mu.Unlock()

	if config.Debug {
		config.DebugLog.Printf("[MCP] Tool server '%s' started with %d tools", cfg.Name, len(proc.tools))
	}
	return nil
}

func (m *Manager) launch(ctx context.Context, cfg config.ToolServerConfig) (*serverProcess, error) {
	c, cmd, err := m.connect(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to start tool server %s: %w", cfg.Name, err)
	}

	initReq := mcptypes.InitializeRequest{
		Params: mcptypes.InitializeParams{
			ProtocolVersion: ProtocolVersion,
			Capabilities:    mcptypes.ClientCapabilities{},
			ClientInfo: mcptypes.Implementation{
				Name:    "mcpchat",
				Version: "1.0.0",
			},
		},
	}

	proc := &serverProcess{cfg: cfg, process: cmd, client: c}
	if _, err := c.Initialize(ctx, initReq); err != nil {
		stopProcess(context.Background(), proc)
		return nil, fmt.Errorf("failed to initialize tool server %s: %w", cfg.Name, err)
	}

	toolsResult, err := c.ListTools(ctx, mcptypes.ListToolsRequest{})
	if err != nil {
		stopProcess(context.Background(), proc)
		return nil, fmt.Errorf("failed to list tools for %s: %w", cfg.Name, err)
	}

	proc.tools = toolsResult.Tools
	proc.started = time.Now()
	return proc, nil
}

// connectStdio starts cfg.Command as a child process speaking MCP over
// stdio.
func connectStdio(ctx context.Context, cfg config.ToolServerConfig) (toolClient, *exec.Cmd, error) {
	if err := checkCommand(cfg.Command); err != nil {
		return nil, nil, err
	}

	var capturedCmd *exec.Cmd

	cmdFunc := func(ctx context.Context, command string, env []string, args []string) (*exec.Cmd, error) {
		cmd := exec.CommandContext(ctx, command, args...)
		cmd.Env = env
		capturedCmd = cmd
		return cmd, nil
	}

	mcpClient, err := client.NewStdioMCPClientWithOptions(
		cfg.Command,
		serverEnv(cfg.Env),
		cfg.Args,
		transport.WithCommandFunc(cmdFunc),
	)
	if err != nil {
		return nil, nil, err
	}

	switch {
	case capturedCmd != nil && capturedCmd.Process != nil && config.DebugLog != nil:
		config.DebugLog.Printf("[MCP] Started tool server '%s' with PID %d", cfg.Name, capturedCmd.Process.Pid)
	}

	return mcpClient, capturedCmd, nil
}

// serverEnv starts from the current environment so PATH and friends are
// preserved, then applies the configured overrides.
func serverEnv(overrides map[string]string) []string {
	env := os.Environ()
	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, fmt.Sprintf("%s=%s", k, overrides[k]))
	}
	return env
}

// Tools returns the tools of every running server, named "server.tool" and
// ordered by server name.
func (m *Manager) Tools() []mcptypes.Tool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.servers))
	for name := range m.servers {
		names = append(names, name)
	}
	sort.Strings(names)

	var all []mcptypes.Tool
	for _, name := range names {
		for _, tool := range m.servers[name].tools {
			namespaced := tool
			namespaced.Name = name + "." + tool.Name
			all = append(all, namespaced)
		}
	}
	return all
}

// SplitToolName splits "server.tool" into its server and tool parts. A name
// without a server prefix returns an empty server.
func SplitToolName(namespaced string) (server, tool string) {
	idx := strings.Index(namespaced, ".")
	if idx == -1 {
		return "", namespaced
	}
	return namespaced[:idx], namespaced[idx+1:]
}

// Servers reports every configured server, sorted by name.
func (m *Manager) Servers() []ServerStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]ServerStatus, 0, len(m.configured))
	for name := range m.configured {
		out = append(out, m.statusLocked(name))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Server reports one configured server.
func (m *Manager) Server(name string) (ServerStatus, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.configured[name]; !ok {
		return ServerStatus{}, false
	}
	return m.statusLocked(name), true
}

func (m *Manager) statusLocked(name string) ServerStatus {
	cfg := m.configured[name]
	status := ServerStatus{
		Name:    name,
		Command: cfg.Command,
		Args:    cfg.Args,
	}
	if proc, ok := m.servers[name]; ok {
		status.Running = true
		status.StartedAt = proc.started
		for _, t := range proc.tools {
			status.Tools = append(status.Tools, t.Name)
		}
	}
	if err, ok := m.failed[name]; ok {
		status.Error = err.Error()
	}
	return status
}

// Stop stops one server and forgets its configuration.
func (m *Manager) Stop(ctx context.Context, name string) error {
	m.mu.Lock()
	proc, exists := m.servers[name]
	delete(m.servers, name)
	delete(m.configured, name)
	delete(m.failed, name)
	m.mu.Unlock()

	if !exists {
		return fmt.Errorf("tool server %s not running", name)
	}

	stopProcess(ctx, proc)
	return nil
}

// Sync brings the running set in line with cfgs. Servers that left the
// list or whose entry changed are stopped, and servers that are missing
// or failed earlier are started. Unchanged servers keep running.
func (m *Manager) Sync(ctx context.Context, cfgs []config.ToolServerConfig) error {
	wanted := make(map[string]config.ToolServerConfig, len(cfgs))
	for _, c := range cfgs {
		wanted[c.Name] = c
	}

	var stale []string
	m.mu.RLock()
	for name, cur := range m.configured {
		c, ok := wanted[name]
		if !ok || !sameServerConfig(cur, c) || m.servers[name] == nil {
			stale = append(stale, name)
		}
	}
	m.mu.RUnlock()
	for _, name := range stale {
		// Failed servers have no process; Stop still forgets them.
		_ = m.Stop(ctx, name)
	}

	var start []config.ToolServerConfig
	m.mu.RLock()
	for _, c := range cfgs {
		if m.servers[c.Name] == nil {
			start = append(start, c)
		}
	}
	m.mu.RUnlock()
	if len(start) == 0 {
		return nil
	}
	return m.Start(ctx, start)
}

func sameServerConfig(a, b config.ToolServerConfig) bool {
	return a.Command == b.Command && slices.Equal(a.Args, b.Args) && maps.Equal(a.Env, b.Env)
}

// stopProcess closes the client, giving it one second, then kills the child
// process.
func stopProcess(ctx context.Context, proc *serverProcess) {
	name := proc.cfg.Name

	if proc.client != nil {
		closeCtx, cancel := context.WithTimeout(ctx, 1*time.Second)
		defer cancel()

		closeDone := make(chan error, 1)
		go func() {
			closeDone <- proc.client.Close()
		}()

		select {
		case <-closeDone:
		case <-closeCtx.Done():
			if config.Debug {
				config.DebugLog.Printf("[MCP] Stop: client for '%s' did not close within 1s", name)
			}
		}
	}

	switch {
	case proc.process != nil && proc.process.Process != nil:
		if err := proc.process.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) && config.Debug {
			config.DebugLog.Printf("[MCP] Stop: error killing process for '%s': %v", name, err)
		}
	}

	if config.Debug {
		config.DebugLog.Printf("[MCP] Stop: tool server '%s' stopped", name)
	}
}

// Shutdown stops every running server in parallel.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	procs := make([]*serverProcess, 0, len(m.servers))
	for _, proc := range m.servers {
		procs = append(procs, proc)
	}
	m.servers = make(map[string]*serverProcess)
	m.mu.Unlock()

	if config.Debug {
		config.DebugLog.Printf("[MCP] Shutdown: stopping %d tool servers", len(procs))
	}

	var wg sync.WaitGroup
	for _, proc := range procs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			stopProcess(ctx, proc)
		}()
	}
	wg.Wait()

	return ctx.Err()
}
