package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/golang/glog"
	"github.com/spf13/pflag"

	"github.com/ctagard/gdbmi-mcp/internal/config"
	"github.com/ctagard/gdbmi-mcp/internal/mcp"
	"github.com/ctagard/gdbmi-mcp/internal/version"
)

func main() {
	// stdout carries the MCP stream, so logs go to stderr unless the
	// glog flags say otherwise.
	_ = flag.Set("logtostderr", "true")
	pflag.CommandLine.AddGoFlagSet(flag.CommandLine)

	configPath := pflag.String("config", "", "Path to configuration file (YAML or JSON)")
	mode := pflag.String("mode", "", "Capability mode: 'readonly' or 'full' (default: from config, else full)")
	url := pflag.String("url", "", "Websocket URL of the gdb backend")
	showVersion := pflag.Bool("version", false, "Show version and exit")
	help := pflag.Bool("help", false, "Show help and exit")
	noUpdateCheck := pflag.Bool("no-update-check", false, "Do not check for a newer release")

	pflag.Parse()
	defer glog.Flush()

	if *showVersion {
		fmt.Printf("gdbmi-mcp version %s\n", version.GetVersion())
		return
	}

	if *help {
		printHelp()
		return
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		glog.Exitf("Failed to load configuration: %v", err)
	}

	switch *mode {
	case "":
	case string(config.ModeReadOnly):
		cfg.Mode = config.ModeReadOnly
	case string(config.ModeFull):
		cfg.Mode = config.ModeFull
	default:
		glog.Exitf("Invalid --mode %q (expected readonly or full)", *mode)
	}
	if *url != "" {
		cfg.Backend.URL = *url
	}

	server, err := mcp.NewServer(cfg)
	if err != nil {
		glog.Exitf("Failed to start: %v", err)
	}
	if !*noUpdateCheck {
		server.CheckForUpdates()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		glog.Info("Shutting down...")
		server.Close()
		glog.Flush()
		os.Exit(0)
	}()

	glog.Infof("gdbmi-mcp %s starting in %s mode, backend %s", version.GetVersion(), cfg.Mode, cfg.Backend.URL)
	if err := server.ServeStdio(); err != nil {
		server.Close()
		glog.Exitf("Server error: %v", err)
	}
	server.Close()
}

func printHelp() {
	fmt.Println(`gdbmi-mcp: gdb machine interface MCP server

A Model Context Protocol (MCP) server that drives gdb through a gdbgui-style
websocket backend, keeping the debugger's state (stack, locals, registers,
breakpoints, watch expressions, memory and source) ready for AI agents.

USAGE:
    gdbmi-mcp [OPTIONS]

OPTIONS:
    --config <path>      Path to configuration file (YAML or JSON)
    --mode <mode>        Capability mode: 'readonly' or 'full'
    --url <url>          Websocket URL of the backend
                         (default: ws://127.0.0.1:5000/gdb_listener)
    --no-update-check    Do not check for a newer release
    --version            Show version and exit
    --help               Show this help message
    -v <level>           Log verbosity (glog)

CONFIGURATION:
    mode: full
    allowAttach: true
    allowModify: true
    allowExecute: true
    allowSignals: true
    maxSessions: 10
    sessionTimeout: 30m
    responseTimeout: 3s
    preferencesPath: ~/.config/gdbmi-mcp/preferences.json
    backend:
      url: ws://127.0.0.1:5000/gdb_listener
      sources: local        # or 'backend' to read files through the backend
      readTimeout: 30s
    gdb:
      path: gdb             # probed with --version
      command: gdb          # what the backend starts
      sourceRemaps:
        /build/src: /home/me/src

MCP INTEGRATION:
    {
        "mcpServers": {
            "gdbmi-mcp": {
                "command": "gdbmi-mcp",
                "args": ["--mode", "full"]
            }
        }
    }

TOOLS:
    Session Management:
        gdb_connect           Connect to the backend and start a session
        gdb_disconnect        End a session
        gdb_list_sessions     List active sessions
        gdb_list_configs      List gdb configurations in launch.json

    Inspection:
        gdb_snapshot          Program state in one call
        gdb_expression        Watch expressions and variable objects
        gdb_source            Source windows with inline assembly
        gdb_memory            Memory dumps
        gdb_select_frame      Select a frame or thread

    Control (full mode only):
        gdb_command           Console and raw MI commands
        gdb_load_binary       Load a program or launch.json configuration
        gdb_breakpoint        Manage breakpoints
        gdb_exec              Run, continue, step, finish, interrupt
        gdb_signal            Signal the inferior

For more information, visit: https://github.com/ctagard/gdbmi-mcp`)
}
