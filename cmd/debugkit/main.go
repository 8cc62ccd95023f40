// Command debugkit is an interactive harness for the debug client: it
// launches or attaches a session against a real adapter (or the loopback)
// and exposes breakpoint, stepping, and inspection commands in a REPL.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pulseide/debugkit/internal/adapters"
	"github.com/pulseide/debugkit/internal/dap"
	"github.com/pulseide/debugkit/internal/debug"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type options struct {
	adapter     string
	program     string
	args        []string
	cwd         string
	addr        string
	attachPID   int
	stopOnEntry bool
	loopback    bool
	verbose     bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "debugkit",
		Short: "Interactive Debug Adapter Protocol client",
		Long: `debugkit drives a DAP-speaking debug adapter from the terminal:
set breakpoints, control execution, and inspect threads, stacks, and
variables. With --loopback it runs against a simulated adapter.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.adapter, "adapter", "delve", "adapter type (delve, python, node)")
	cmd.Flags().StringVar(&opts.program, "program", "", "program to debug")
	cmd.Flags().StringArrayVar(&opts.args, "arg", nil, "debuggee argument (repeatable)")
	cmd.Flags().StringVar(&opts.cwd, "cwd", "", "debuggee working directory")
	cmd.Flags().StringVar(&opts.addr, "addr", "", "connect to an adapter at host:port instead of spawning one")
	cmd.Flags().IntVar(&opts.attachPID, "attach", 0, "attach to a running process by PID")
	cmd.Flags().BoolVar(&opts.stopOnEntry, "stop-on-entry", false, "halt at the program entry point")
	cmd.Flags().BoolVar(&opts.loopback, "loopback", false, "use the simulated adapter")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "log protocol diagnostics")

	return cmd
}

func run(ctx context.Context, opts *options) error {
	logger := zap.NewNop()
	if opts.verbose {
		var err error
		logger, err = zap.NewDevelopment()
		if err != nil {
			return fmt.Errorf("build logger: %w", err)
		}
		defer logger.Sync()
	}

	transport, launchArgs, err := buildTransport(opts)
	if err != nil {
		return err
	}
	if err := transport.Connect(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	client := dap.NewClient(transport, dap.WithLogger(logger))
	defer client.Close()

	manager := debug.NewManager(debug.WithManagerLogger(logger))
	cfg := debug.DefaultConfig()
	cfg.AdapterID = opts.adapter
	cfg.LaunchArgs = launchArgs
	if opts.attachPID > 0 {
		cfg.Mode = debug.ModeAttach
	}

	session := manager.NewSession(client, cfg)
	registry := debug.NewRegistry()
	registry.Attach(session)
	watches := debug.NewWatches()

	unsubscribe := manager.Subscribe(printEvent)
	defer unsubscribe()

	if err := session.Start(ctx); err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	fmt.Printf("session %s started (adapter %s)\n", session.ID(), opts.adapter)

	defer manager.DisconnectAll(context.Background())
	return repl(ctx, session, registry, watches)
}

// buildTransport picks loopback, TCP, or a spawned stdio adapter.
func buildTransport(opts *options) (dap.Transport, any, error) {
	if opts.loopback {
		return dap.NewLoopback(), map[string]any{"program": opts.program}, nil
	}

	acfg := adapters.Config{
		Type:        adapters.Type(opts.adapter),
		Request:     "launch",
		Program:     opts.program,
		Args:        opts.args,
		Cwd:         opts.cwd,
		StopOnEntry: opts.stopOnEntry,
		ProcessID:   opts.attachPID,
	}
	if opts.attachPID > 0 {
		acfg.Request = "attach"
	}

	adapter, err := adapters.New(acfg)
	if err != nil {
		return nil, nil, err
	}
	if err := adapter.Validate(); err != nil {
		return nil, nil, err
	}

	launchArgs := adapter.LaunchArgs()
	if opts.attachPID > 0 {
		launchArgs = adapter.AttachArgs()
	}

	if opts.addr != "" {
		return dap.NewTCPTransport(dap.DefaultTCPConfig(opts.addr)), launchArgs, nil
	}

	cmd, err := adapter.Command()
	if err != nil {
		return nil, nil, err
	}
	return dap.NewStdioTransport(cmd), launchArgs, nil
}

func printEvent(evt debug.Event) {
	switch e := evt.(type) {
	case debug.Stopped:
		fmt.Printf("\n[stopped] thread %d: %s %s\n", e.ThreadID, e.Reason, e.Description)
	case debug.Continued:
		fmt.Printf("\n[continued] thread %d\n", e.ThreadID)
	case debug.Output:
		fmt.Print(e.Text)
	case debug.Exited:
		fmt.Printf("\n[exited] code %d\n", e.ExitCode)
	case debug.Terminated:
		fmt.Println("\n[terminated]")
	}
}

const replHelp = `commands:
  break <file>:<line> [condition]   set a breakpoint
  delete <id>                       remove a breakpoint
  enable <id> / disable <id>        toggle a breakpoint
  bp                                list breakpoints
  continue (c)                      resume the active thread
  pause                             halt the active thread
  next (n) / step (s) / out (o)     step over / into / out
  back                              step backwards (if supported)
  threads                           list threads
  stack [thread]                    show the call stack
  scopes <frame>                    list scopes of a frame
  vars <ref>                        expand a variable container
  eval <expr>                       evaluate an expression
  watch [expr]                      add a watch, or re-evaluate them all
  unwatch <id>                      remove a watch
  quit (q)                          terminate and exit`

func repl(ctx context.Context, session *debug.Session, registry *debug.Registry, watches *debug.Watches) error {
	rl, err := readline.New("(debug) ")
	if err != nil {
		return fmt.Errorf("init readline: %w", err)
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		fields := strings.Fields(strings.TrimSpace(line))
		if len(fields) == 0 {
			continue
		}

		quit, err := dispatch(ctx, session, registry, watches, fields)
		if err != nil {
			fmt.Println("error:", err)
		}
		if quit {
			return nil
		}
	}
}

func dispatch(ctx context.Context, session *debug.Session, registry *debug.Registry, watches *debug.Watches, fields []string) (bool, error) {
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "help", "?":
		fmt.Println(replHelp)

	case "break", "b":
		if len(args) < 1 {
			return false, fmt.Errorf("usage: break <file>:<line> [condition]")
		}
		path, line, err := parseLocation(args[0])
		if err != nil {
			return false, err
		}
		condition := strings.Join(args[1:], " ")
		bp, err := registry.AddWithOptions(ctx, path, line, condition, "", "")
		if err != nil {
			return false, err
		}
		fmt.Printf("breakpoint %d at %s:%d (verified=%v)\n", bp.ID, bp.Path, bp.Line, bp.Verified)

	case "delete":
		id, err := parseID(args)
		if err != nil {
			return false, err
		}
		return false, registry.Remove(ctx, id)

	case "enable":
		id, err := parseID(args)
		if err != nil {
			return false, err
		}
		return false, registry.SetEnabled(ctx, id, true)

	case "disable":
		id, err := parseID(args)
		if err != nil {
			return false, err
		}
		return false, registry.SetEnabled(ctx, id, false)

	case "bp":
		for _, bp := range registry.All() {
			state := "enabled"
			if !bp.Enabled {
				state = "disabled"
			}
			fmt.Printf("%3d  %s:%d  %s verified=%v %s\n",
				bp.ID, bp.Path, bp.Line, state, bp.Verified, bp.Message)
		}

	case "continue", "c":
		return false, session.Continue(ctx, 0)

	case "pause":
		return false, session.Pause(ctx, 0)

	case "next", "n":
		return false, session.StepOver(ctx, 0)

	case "step", "s":
		return false, session.StepInto(ctx, 0)

	case "out", "o":
		return false, session.StepOut(ctx, 0)

	case "back":
		return false, session.StepBack(ctx, 0)

	case "threads":
		threads, err := session.RefreshThreads(ctx)
		if err != nil {
			return false, err
		}
		for _, t := range threads {
			fmt.Printf("%3d  %-20s %s\n", t.ID, t.Name, t.Run)
		}

	case "stack":
		threadID := 0
		if len(args) > 0 {
			var err error
			threadID, err = strconv.Atoi(args[0])
			if err != nil {
				return false, fmt.Errorf("bad thread id %q", args[0])
			}
		}
		frames, err := session.StackTrace(ctx, threadID, 0, 20)
		if err != nil {
			return false, err
		}
		for i, f := range frames {
			loc := ""
			if f.Source != nil {
				loc = fmt.Sprintf("%s:%d", f.Source.Path, f.Line)
			}
			fmt.Printf("#%-2d %-30s %s\n", i, f.Name, loc)
		}

	case "scopes":
		id, err := parseID(args)
		if err != nil {
			return false, err
		}
		scopes, err := session.Scopes(ctx, id)
		if err != nil {
			return false, err
		}
		for _, sc := range scopes {
			fmt.Printf("%-20s ref=%d\n", sc.Name, sc.VariablesReference)
		}

	case "vars":
		id, err := parseID(args)
		if err != nil {
			return false, err
		}
		vars, err := session.Variables(ctx, id)
		if err != nil {
			return false, err
		}
		for _, v := range vars {
			suffix := ""
			if v.VariablesReference > 0 {
				suffix = fmt.Sprintf(" (ref=%d)", v.VariablesReference)
			}
			fmt.Printf("%-20s %s = %s%s\n", v.Name, v.Type, v.Value, suffix)
		}

	case "eval":
		if len(args) == 0 {
			return false, fmt.Errorf("usage: eval <expr>")
		}
		body, err := session.Evaluate(ctx, strings.Join(args, " "), currentFrameID(session), "repl")
		if err != nil {
			return false, err
		}
		fmt.Println(body.Result)

	case "watch":
		if len(args) > 0 {
			watches.Add(strings.Join(args, " "))
		}
		watches.Refresh(ctx, session, currentFrameID(session))
		for _, w := range watches.All() {
			if w.EvalError != "" {
				fmt.Printf("%3d  %s = <%s>\n", w.ID, w.Expression, w.EvalError)
				continue
			}
			fmt.Printf("%3d  %s = %s\n", w.ID, w.Expression, w.Value)
		}

	case "unwatch":
		id, err := parseID(args)
		if err != nil {
			return false, err
		}
		return false, watches.Remove(id)

	case "quit", "q", "exit":
		session.Terminate(ctx)
		return true, nil

	default:
		return false, fmt.Errorf("unknown command %q (try help)", cmd)
	}

	return false, nil
}

// currentFrameID resolves the active thread's top frame, or 0 when nothing
// is paused.
func currentFrameID(session *debug.Session) int {
	if t, ok := session.ActiveThread(); ok {
		if f, ok := t.CurrentFrame(); ok {
			return f.ID
		}
	}
	return 0
}

func parseLocation(s string) (string, int, error) {
	idx := strings.LastIndex(s, ":")
	if idx <= 0 {
		return "", 0, fmt.Errorf("bad location %q, want file:line", s)
	}
	line, err := strconv.Atoi(s[idx+1:])
	if err != nil || line <= 0 {
		return "", 0, fmt.Errorf("bad line in %q", s)
	}
	return s[:idx], line, nil
}

func parseID(args []string) (int, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("expected one numeric argument")
	}
	id, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, fmt.Errorf("bad id %q", args[0])
	}
	return id, nil
}
