// Package adapters builds the per-language configuration the session layer
// treats as opaque: how to start a debug adapter and what launch/attach
// bodies it expects.
package adapters

import (
	"fmt"
	"os"
	"os/exec"
)

// Type identifies a debug adapter.
type Type string

const (
	// TypeDelve is the Go debugger.
	TypeDelve Type = "delve"
	// TypePython is debugpy.
	TypePython Type = "python"
	// TypeNode is the Node.js inspector adapter.
	TypeNode Type = "node"
)

// Config describes one debug target.
type Config struct {
	// Type selects the adapter.
	Type Type `json:"type"`

	// Request is "launch" or "attach".
	Request string `json:"request"`

	// Program is the file or package to debug.
	Program string `json:"program,omitempty"`

	// Args are debuggee arguments.
	Args []string `json:"args,omitempty"`

	// Cwd is the debuggee working directory.
	Cwd string `json:"cwd,omitempty"`

	// Env is extra environment for the debuggee.
	Env map[string]string `json:"env,omitempty"`

	// StopOnEntry halts at the program entry point.
	StopOnEntry bool `json:"stopOnEntry,omitempty"`

	// ProcessID is the attach target.
	ProcessID int `json:"processId,omitempty"`

	// Host and Port select a socket adapter; zero port means stdio.
	Host string `json:"host,omitempty"`
	Port int    `json:"port,omitempty"`

	// AdapterPath overrides the adapter executable lookup.
	AdapterPath string `json:"adapterPath,omitempty"`
}

// Adapter knows how to start one kind of debug adapter and shape its
// launch/attach bodies.
type Adapter interface {
	// Type returns the adapter type.
	Type() Type

	// Validate checks the configuration before any process is started.
	Validate() error

	// Command returns the adapter process invocation for stdio transports.
	Command() (*exec.Cmd, error)

	// LaunchArgs returns the opaque launch request body.
	LaunchArgs() any

	// AttachArgs returns the opaque attach request body.
	AttachArgs() any

	// Address returns "host:port" for socket adapters, or "" for stdio.
	Address() string
}

// New creates the adapter for a configuration.
func New(cfg Config) (Adapter, error) {
	switch cfg.Type {
	case TypeDelve:
		return &delve{cfg: cfg}, nil
	case TypePython:
		return &debugpy{cfg: cfg}, nil
	case TypeNode:
		return &node{cfg: cfg}, nil
	default:
		return nil, fmt.Errorf("unknown adapter type %q", cfg.Type)
	}
}

// findExecutable resolves a binary, preferring the configured override.
func findExecutable(override, name string) (string, error) {
	if override != "" {
		return override, nil
	}
	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%s not found in PATH: %w", name, err)
	}
	return path, nil
}

// buildCmd applies cwd and environment to an adapter invocation.
func buildCmd(cfg Config, path string, args ...string) *exec.Cmd {
	cmd := exec.Command(path, args...)
	if cfg.Cwd != "" {
		cmd.Dir = cfg.Cwd
	}
	cmd.Env = os.Environ()
	for k, v := range cfg.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	return cmd
}

func (c Config) address() string {
	if c.Port == 0 {
		return ""
	}
	host := c.Host
	if host == "" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("%s:%d", host, c.Port)
}

func (c Config) validateRequest() error {
	switch c.Request {
	case "launch":
		if c.Program == "" {
			return fmt.Errorf("launch requires a program")
		}
	case "attach":
		if c.ProcessID == 0 && c.Port == 0 {
			return fmt.Errorf("attach requires a processId or port")
		}
	default:
		return fmt.Errorf("invalid request %q", c.Request)
	}
	return nil
}

// delve drives Go debugging through dlv's native DAP server.
type delve struct {
	cfg Config
}

func (a *delve) Type() Type      { return TypeDelve }
func (a *delve) Validate() error { return a.cfg.validateRequest() }
func (a *delve) Address() string { return a.cfg.address() }

func (a *delve) Command() (*exec.Cmd, error) {
	path, err := findExecutable(a.cfg.AdapterPath, "dlv")
	if err != nil {
		return nil, err
	}
	args := []string{"dap"}
	if addr := a.cfg.address(); addr != "" {
		args = append(args, "--listen", addr)
	}
	return buildCmd(a.cfg, path, args...), nil
}

func (a *delve) LaunchArgs() any {
	args := map[string]any{
		"mode":        "debug",
		"program":     a.cfg.Program,
		"stopOnEntry": a.cfg.StopOnEntry,
	}
	if len(a.cfg.Args) > 0 {
		args["args"] = a.cfg.Args
	}
	if a.cfg.Cwd != "" {
		args["cwd"] = a.cfg.Cwd
	}
	if len(a.cfg.Env) > 0 {
		args["env"] = a.cfg.Env
	}
	return args
}

func (a *delve) AttachArgs() any {
	return map[string]any{
		"mode":      "local",
		"processId": a.cfg.ProcessID,
	}
}

// debugpy drives Python debugging through debugpy's adapter module.
type debugpy struct {
	cfg Config
}

func (a *debugpy) Type() Type      { return TypePython }
func (a *debugpy) Validate() error { return a.cfg.validateRequest() }
func (a *debugpy) Address() string { return a.cfg.address() }

func (a *debugpy) Command() (*exec.Cmd, error) {
	path, err := findExecutable(a.cfg.AdapterPath, "python3")
	if err != nil {
		return nil, err
	}
	args := []string{"-m", "debugpy.adapter"}
	if addr := a.cfg.address(); addr != "" {
		args = append(args, "--host", a.cfg.Host, "--port", fmt.Sprint(a.cfg.Port))
	}
	return buildCmd(a.cfg, path, args...), nil
}

func (a *debugpy) LaunchArgs() any {
	args := map[string]any{
		"program":     a.cfg.Program,
		"stopOnEntry": a.cfg.StopOnEntry,
		"console":     "internalConsole",
	}
	if len(a.cfg.Args) > 0 {
		args["args"] = a.cfg.Args
	}
	if a.cfg.Cwd != "" {
		args["cwd"] = a.cfg.Cwd
	}
	if len(a.cfg.Env) > 0 {
		args["env"] = a.cfg.Env
	}
	return args
}

func (a *debugpy) AttachArgs() any {
	args := map[string]any{}
	if a.cfg.ProcessID > 0 {
		args["processId"] = a.cfg.ProcessID
	} else {
		args["connect"] = map[string]any{
			"host": a.cfg.Host,
			"port": a.cfg.Port,
		}
	}
	return args
}

// node drives JavaScript debugging through the js-debug DAP server.
type node struct {
	cfg Config
}

func (a *node) Type() Type      { return TypeNode }
func (a *node) Validate() error { return a.cfg.validateRequest() }
func (a *node) Address() string { return a.cfg.address() }

func (a *node) Command() (*exec.Cmd, error) {
	path, err := findExecutable(a.cfg.AdapterPath, "js-debug-adapter")
	if err != nil {
		return nil, err
	}
	var args []string
	if a.cfg.Port > 0 {
		args = append(args, fmt.Sprint(a.cfg.Port))
	}
	return buildCmd(a.cfg, path, args...), nil
}

func (a *node) LaunchArgs() any {
	args := map[string]any{
		"type":        "pwa-node",
		"program":     a.cfg.Program,
		"stopOnEntry": a.cfg.StopOnEntry,
	}
	if len(a.cfg.Args) > 0 {
		args["args"] = a.cfg.Args
	}
	if a.cfg.Cwd != "" {
		args["cwd"] = a.cfg.Cwd
	}
	if len(a.cfg.Env) > 0 {
		args["env"] = a.cfg.Env
	}
	return args
}

func (a *node) AttachArgs() any {
	return map[string]any{
		"type": "pwa-node",
		"port": a.cfg.Port,
	}
}
