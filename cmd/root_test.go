package cmd

import (
	"bytes"
	"context"
	"errors"
	"mcpchat/config"
	"mcpchat/model"
	"mcpchat/provider"
	"mcpchat/provider/testutil"
	"path/filepath"
	"strings"
	"testing"
)

// mockSetup customizes each mock provider the test registry builds.
var mockSetup func(*testutil.MockProvider)

// saveCmdVars saves the package-level vars and returns a restore function.
func saveCmdVars(t *testing.T) func() {
	t.Helper()
	origNewRegistry := newRegistry
	origIoIn := ioIn
	origIoOut := ioOut
	origIoErr := ioErr
	origConfigPath := configPath
	origToolsStart := toolsStart
	origProvider, origModel, origSystem, origNoStream := chatProvider, chatModel, chatSystem, chatNoStream
	return func() {
		newRegistry = origNewRegistry
		ioIn = origIoIn
		ioOut = origIoOut
		ioErr = origIoErr
		configPath = origConfigPath
		toolsStart = origToolsStart
		chatProvider, chatModel, chatSystem, chatNoStream = origProvider, origModel, origSystem, origNoStream
		mockSetup = nil
	}
}

// setupTest writes a config enabling the "mock" provider, points
// MCPCHAT_CONFIG at it and captures output. It returns the config path and
// the stdout buffer.
func setupTest(t *testing.T) (string, *bytes.Buffer) {
	t.Helper()
	t.Cleanup(saveCmdVars(t))

	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	t.Setenv("MCPCHAT_DEBUG", "")
	t.Setenv("MOCK_API_KEY", "")
	path := filepath.Join(tmpDir, "config.toml")
	t.Setenv("MCPCHAT_CONFIG", path)

	fc := config.DefaultFileConfig()
	fc.DataDirectory = filepath.Join(tmpDir, "data")
	fc.DefaultProvider = "mock"
	fc.Providers = []config.ProviderConfig{{ID: "mock", Enabled: true}}
	if err := config.SaveFile(path, fc); err != nil {
		t.Fatalf("save config: %v", err)
	}

	newRegistry = func() *provider.Registry {
		reg := provider.NewRegistry()
		reg.Register("mock", func(cfg model.ProviderConfig) (model.Provider, error) {
			p := testutil.NewMockProvider("mock")
			if mockSetup != nil {
				mockSetup(p)
			}
			return p, nil
		})
		return reg
	}

	var out bytes.Buffer
	ioOut = &out
	ioErr = &bytes.Buffer{}
	configPath = ""
	return path, &out
}

func TestRunChatStream(t *testing.T) {
	_, out := setupTest(t)

	if err := runChat(nil, []string{"Hello", "there"}); err != nil {
		t.Fatalf("runChat: %v", err)
	}
	if got := out.String(); got != "Mock response\n" {
		t.Errorf("output = %q, want %q", got, "Mock response\n")
	}
}

func TestRunChatNoStream(t *testing.T) {
	_, out := setupTest(t)
	chatNoStream = true
	chatSystem = "Be brief."

	var got []model.Message
	mockSetup = func(p *testutil.MockProvider) {
		p.ChatFunc = func(ctx context.Context, messages []model.Message, opts model.ChatOptions) (*model.Response, error) {
			got = messages
			return &model.Response{Content: "Short.", FinishReason: model.FinishStop}, nil
		}
	}

	if err := runChat(nil, []string{"Explain MCP"}); err != nil {
		t.Fatalf("runChat: %v", err)
	}
	if out.String() != "Short.\n" {
		t.Errorf("output = %q", out.String())
	}
	if len(got) != 2 || got[0].Role != model.RoleSystem || got[1].Content != "Explain MCP" {
		t.Errorf("messages = %+v", got)
	}
}

func TestRunChatErrors(t *testing.T) {
	t.Run("unknown provider", func(t *testing.T) {
		setupTest(t)
		chatProvider = "ghost"
		err := runChat(nil, []string{"hi"})
		if !errors.Is(err, model.ErrUnknownProvider) {
			t.Errorf("err = %v, want unknown_provider", err)
		}
	})

	t.Run("provider failure", func(t *testing.T) {
		setupTest(t)
		mockSetup = func(p *testutil.MockProvider) {
			p.ChatStreamFunc = func(ctx context.Context, messages []model.Message, opts model.ChatOptions) (model.Stream, error) {
				return nil, &model.Error{Kind: model.KindAuth, Provider: "mock", Message: "invalid API key"}
			}
		}
		err := runChat(nil, []string{"hi"})
		if !errors.Is(err, model.ErrAuth) {
			t.Errorf("err = %v, want authentication", err)
		}
	})
}

func TestRunHealth(t *testing.T) {
	_, out := setupTest(t)

	if err := runHealth(nil, nil); err != nil {
		t.Fatalf("runHealth: %v", err)
	}
	if !strings.Contains(out.String(), "healthy") || !strings.Contains(out.String(), "mock-model-1") {
		t.Errorf("output:\n%s", out.String())
	}

	mockSetup = func(p *testutil.MockProvider) {
		p.HealthCheckFunc = func(ctx context.Context) bool { return false }
		p.HealthError = "connection refused"
	}
	out.Reset()
	err := runHealth(nil, []string{"mock"})
	if err == nil || !strings.Contains(err.Error(), "unhealthy providers: mock") {
		t.Errorf("err = %v", err)
	}
	if !strings.Contains(out.String(), "connection refused") {
		t.Errorf("output:\n%s", out.String())
	}
}

func TestRunProviders(t *testing.T) {
	_, out := setupTest(t)

	if err := runProviders(nil, nil); err != nil {
		t.Fatalf("runProviders: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("want header and one row, got:\n%s", out.String())
	}
	if !strings.HasPrefix(lines[1], "mock") || !strings.Contains(lines[1], "ready") {
		t.Errorf("row = %q", lines[1])
	}
}

func TestSetProviderEnabled(t *testing.T) {
	path, _ := setupTest(t)

	if err := setProviderEnabled("mock", false); err != nil {
		t.Fatalf("disable: %v", err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if p, ok := cfg.Provider("mock"); !ok || p.Enabled {
		t.Errorf("mock should be disabled, got %+v", p)
	}

	err = setProviderEnabled("moc", true)
	if !errors.Is(err, model.ErrUnknownProvider) || !strings.Contains(err.Error(), `did you mean "mock"`) {
		t.Errorf("err = %v", err)
	}
}

func TestRunKeySet(t *testing.T) {
	path, out := setupTest(t)
	const key = "sk-test-0123456789abcdef"
	ioIn = strings.NewReader(key + "\n")

	if err := runKeySet(nil, []string{"mock"}); err != nil {
		t.Fatalf("runKeySet: %v", err)
	}
	if strings.Contains(out.String(), key) {
		t.Errorf("output echoes the full key: %q", out.String())
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := cfg.APIKey("mock"); got != key {
		t.Errorf("stored key = %q", got)
	}

	ioIn = strings.NewReader("\n")
	if err := runKeySet(nil, []string{"mock"}); err == nil {
		t.Error("expected error for empty key")
	}
}

func TestInitCommand(t *testing.T) {
	setupTest(t)
	path := filepath.Join(t.TempDir(), "fresh.toml")
	configPath = path

	if err := initCmd.RunE(initCmd, nil); err != nil {
		t.Fatalf("init: %v", err)
	}
	if !config.FileExists(path) {
		t.Fatal("config file not written")
	}
	if _, err := config.Load(path); err != nil {
		t.Errorf("generated config does not load: %v", err)
	}
}

func TestRunTools(t *testing.T) {
	path, out := setupTest(t)

	if err := runTools(nil, nil); err != nil {
		t.Fatalf("runTools: %v", err)
	}
	if !strings.Contains(out.String(), "No tool servers configured") {
		t.Errorf("output = %q", out.String())
	}

	fc, err := config.LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	fc.ToolServers = []config.ToolServerConfig{{Name: "files", Command: "mcpchat-no-such-command"}}
	if err := config.SaveFile(path, fc); err != nil {
		t.Fatalf("SaveFile: %v", err)
	}

	out.Reset()
	toolsStart = true
	if err := runTools(nil, nil); err != nil {
		t.Fatalf("runTools: %v", err)
	}
	if !strings.Contains(out.String(), "files") || !strings.Contains(out.String(), "not found") {
		t.Errorf("output:\n%s", out.String())
	}
}
