package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/droidprobe/droidprobe/pkg/api"
	"github.com/droidprobe/droidprobe/pkg/debugger"
	"github.com/droidprobe/droidprobe/pkg/metrics"
	promMetrics "github.com/droidprobe/droidprobe/pkg/metrics/prometheus"
)

var debugCmd = &cobra.Command{
	Use:   "debug [host:port]",
	Short: "Start an interactive debug session",
	Long: `Start an interactive debugger shell. With a host:port argument the
session attaches immediately; otherwise use the shell's attach command.

Ctrl-C while the target is running requests a VM suspend; the suspend
is issued at a packet boundary, never from the signal context itself.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDebug,
}

func runDebug(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var sessionMetrics metrics.SessionMetrics
	if cfg.Status.Enabled {
		metrics.InitRegistry()
		sessionMetrics = promMetrics.NewSessionMetrics()
	}

	dbg := debugger.New(debugger.Options{
		DialTimeout:  cfg.Session.DialTimeout,
		Deadline:     cfg.Session.Deadline,
		PollInterval: cfg.Session.PollInterval,
		Metrics:      sessionMetrics,
	})
	defer dbg.Detach()

	if cfg.Status.Enabled {
		srv := api.NewServer(cfg.Status.Listen, dbg)
		srv.Start()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			srv.Shutdown(ctx)
		}()
	}

	// Ctrl-C must not kill the shell: it requests a VM suspend that the
	// session issues at its next safe point.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT)
	defer signal.Stop(sigCh)
	go func() {
		for range sigCh {
			fmt.Println("\ninterrupt: requesting VM suspend")
			dbg.RequestSuspend()
		}
	}()

	ctx := context.Background()

	if len(args) == 1 {
		if err := dbg.Attach(ctx, args[0]); err != nil {
			PrintErr("attach failed: %v", err)
		}
	}

	shell(ctx, dbg)
	return nil
}

func shellHelp() {
	fmt.Print(`Commands:
  attach <host:port>        attach to a VM
  b <class> <method>        set breakpoint (e.g. b com.example.App onCreate)
  bps                       list installed breakpoints
  clear                     clear all breakpoints
  cont                      resume the VM and wait for a breakpoint
  ni                        step one bytecode instruction
  suspend                   suspend all VM threads
  status                    show session status
  kill [code]               terminate the remote VM
  detach                    close the session
  help                      show this help
  exit | quit               leave the shell
`)
}

// shell runs the interactive command loop. Each failed operation
// prints one diagnostic line and returns to the prompt.
func shell(ctx context.Context, dbg *debugger.Debugger) {
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("droidprobe> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		fields := strings.Fields(line)
		switch fields[0] {
		case "exit", "quit":
			return

		case "help", "?":
			shellHelp()

		case "attach":
			if len(fields) != 2 {
				fmt.Println("usage: attach <host:port>")
				continue
			}
			if err := dbg.Attach(ctx, fields[1]); err != nil {
				PrintErr("attach failed: %v", err)
				continue
			}
			st := dbg.Status()
			fmt.Printf("attached to %s (%s %s)\n", st.Addr, st.VMName, st.VMVersion)

		case "b", "break":
			if len(fields) != 3 {
				fmt.Println("usage: b <class> <method>")
				continue
			}
			n, err := dbg.SetBreakpoint(ctx, fields[1], fields[2])
			if err != nil {
				PrintErr("set breakpoint failed: %v", err)
				continue
			}
			fmt.Printf("%d breakpoint(s) installed\n", n)

		case "bps", "breakpoints":
			bps := dbg.Breakpoints()
			if len(bps) == 0 {
				fmt.Println("no breakpoints")
				continue
			}
			for _, bp := range bps {
				fmt.Printf("  [%#x] %s.%s\n", bp.RequestID, bp.ClassName, bp.MethodName)
			}

		case "clear":
			if err := dbg.ClearBreakpoints(ctx); err != nil {
				PrintErr("clear failed: %v", err)
				continue
			}
			fmt.Println("breakpoints cleared")

		case "cont", "c":
			if err := dbg.Resume(ctx); err != nil {
				PrintErr("resume failed: %v", err)
				continue
			}
			bp, err := dbg.WaitForBreakpoint(ctx)
			if err != nil {
				if errors.Is(err, debugger.ErrInterrupted) {
					fmt.Println("VM suspended")
					continue
				}
				PrintErr("wait failed: %v", err)
				continue
			}
			if bp != nil {
				fmt.Printf("Breakpoint! %s.%s\n", bp.ClassName, bp.MethodName)
			}

		case "ni", "step":
			if err := dbg.StepInstruction(ctx); err != nil {
				if errors.Is(err, debugger.ErrInterrupted) {
					fmt.Println("VM suspended")
					continue
				}
				PrintErr("step failed: %v", err)
			}

		case "suspend":
			if err := dbg.SuspendVM(ctx); err != nil {
				PrintErr("suspend failed: %v", err)
				continue
			}
			fmt.Println("VM suspended")

		case "status":
			st := dbg.Status()
			fmt.Printf("state: %s\n", st.State)
			if st.State != debugger.StateDisconnected {
				fmt.Printf("addr: %s\nvm: %s %s\nbreakpoints: %d\n",
					st.Addr, st.VMName, st.VMVersion, st.Breakpoints)
			}

		case "kill":
			code := int32(0)
			if len(fields) == 2 {
				n, err := strconv.ParseInt(fields[1], 10, 32)
				if err != nil {
					fmt.Println("usage: kill [code]")
					continue
				}
				code = int32(n)
			}
			if err := dbg.ExitVM(ctx, code); err != nil {
				PrintErr("kill failed: %v", err)
				continue
			}
			dbg.Detach()
			fmt.Println("VM terminated")

		case "detach":
			if err := dbg.Detach(); err != nil {
				PrintErr("detach failed: %v", err)
				continue
			}
			fmt.Println("detached")

		default:
			fmt.Printf("unknown command: %s\n", fields[0])
			shellHelp()
		}
	}
}
