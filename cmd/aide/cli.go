// Package main defines the CLI structure using kong.
package main

import "github.com/alecthomas/kong"

// CLI defines the command-line interface.
type CLI struct {
	Serve   ServeCmd   `cmd:"" default:"1" help:"Run the assistant"`
	Usage   UsageCmd   `cmd:"" help:"Show the usage ledger history"`
	Agents  AgentsCmd  `cmd:"" help:"List stored delegated agent configs"`
	Setup   SetupCmd   `cmd:"" help:"Interactive setup wizard"`
	Version VersionCmd `cmd:"" help:"Show version information"`
}

// ServeCmd runs the orchestrator until shutdown or restart.
type ServeCmd struct {
	Config string `short:"c" default:"aide.toml" help:"Config file path"`
}

// UsageCmd prints recent entries from the usage audit log.
type UsageCmd struct {
	Config string `short:"c" default:"aide.toml" help:"Config file path"`
	Last   int    `short:"n" default:"10" help:"Number of entries to show"`
}

// AgentsCmd lists the delegated agent configs on disk.
type AgentsCmd struct {
	Config string `short:"c" default:"aide.toml" help:"Config file path"`
}

// SetupCmd runs the interactive setup wizard.
type SetupCmd struct{}

// VersionCmd shows version information.
type VersionCmd struct{}

// kongVars returns variables for kong (version info).
func kongVars() kong.Vars {
	return kong.Vars{
		"version": version,
	}
}
