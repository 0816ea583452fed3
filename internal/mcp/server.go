// Package mcp exposes gdb sessions through Model Context Protocol tools.
//
// Session management (always available):
//   - gdb_connect: Connect to a gdb backend and start a session
//   - gdb_disconnect: End a session
//   - gdb_list_sessions: List active sessions
//   - gdb_list_configs: List gdb configurations of a launch.json
//
// Inspection (always available):
//   - gdb_snapshot: Program state as one JSON document
//   - gdb_expression: Watch expressions and variable objects
//   - gdb_source: Source windows, inline assembly and the source file list
//   - gdb_memory: Memory dumps
//   - gdb_select_frame: Select a stack frame or thread
//
// Control (full mode only):
//   - gdb_command: Send console or MI commands
//   - gdb_load_binary: Load a program or a launch.json configuration
//   - gdb_breakpoint: Insert, delete, toggle, enable and condition breakpoints
//   - gdb_exec: Run, continue, step, finish and interrupt
//   - gdb_signal: Send a signal to the inferior or gdb
package mcp

import (
	"fmt"

	"github.com/mark3labs/mcp-go/server"

	"github.com/ctagard/gdbmi-mcp/internal/config"
	"github.com/ctagard/gdbmi-mcp/internal/session"
	"github.com/ctagard/gdbmi-mcp/internal/version"
)

// Server wraps the MCP server with gdb sessions
type Server struct {
	mcpServer   *server.MCPServer
	sessions    *session.Manager
	preferences *config.Preferences
	updates     *version.Checker
	config      *config.Config

	// sessionOptions adjusts the options of new sessions; tests use it
	// to swap in an in-memory transport.
	sessionOptions func(*session.Options)
}

// NewServer creates a new gdbmi-mcp server
func NewServer(cfg *config.Config) (*Server, error) {
	prefs, err := config.LoadPreferences(cfg.PreferencesPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load preferences: %w", err)
	}

	mcpServer := server.NewMCPServer(
		"gdbmi-mcp",
		version.Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)

	s := &Server{
		mcpServer:   mcpServer,
		sessions:    session.NewManager(cfg.MaxSessions, cfg.SessionTimeout.Std(), nil),
		preferences: prefs,
		updates:     version.NewChecker(),
		config:      cfg,
	}

	s.registerTools()

	return s, nil
}

// CheckForUpdates starts a background release check. The result is
// reported by gdb_list_sessions.
func (s *Server) CheckForUpdates() {
	s.updates.CheckForUpdatesAsync()
}

// ServeStdio starts the server using stdio transport
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// Close shuts down the server
func (s *Server) Close() {
	s.sessions.Close()
}

// Sessions returns the session manager
func (s *Server) Sessions() *session.Manager {
	return s.sessions
}
