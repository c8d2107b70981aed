// Package main is the entry point for the aide personal assistant.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"github.com/vinayprograms/agentkit/credentials"

	"github.com/vinayprograms/aide/internal/billing"
	"github.com/vinayprograms/aide/internal/config"
	"github.com/vinayprograms/aide/internal/setup"
	"github.com/vinayprograms/aide/internal/subagent"
)

// Build-time variables (set via ldflags)
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

// globalCreds holds loaded credentials (file > env fallback happens in GetAPIKey)
var globalCreds *credentials.Credentials

func init() {
	if creds, _, err := credentials.Load(); err == nil && creds != nil {
		globalCreds = creds
	}

	// Load .env for any additional env vars
	_ = godotenv.Load()
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("aide"),
		kong.Description("Single-operator personal assistant over a managed AI runtime."),
		kongVars(),
	)
	ctx.FatalIfErrorf(ctx.Run())
}

// loadConfig reads the config file, tolerating a missing default file.
func loadConfig(path string) (*config.Config, error) {
	if path == "aide.toml" {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return config.Default(), nil
		}
	}
	return config.LoadFile(path)
}

// Run starts the orchestrator and exits with its status code.
func (c *ServeCmd) Run() error {
	cfg, err := loadConfig(c.Config)
	if err != nil {
		return err
	}
	if globalCreds == nil {
		return fmt.Errorf("no credentials found; create credentials.toml or set provider API key env vars")
	}

	rt := newRuntime(cfg, globalCreds)
	if err := rt.setup(); err != nil {
		rt.cleanup()
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := rt.orch.Run(ctx)
	stop()
	rt.cleanup()

	os.Exit(code)
	return nil
}

// Run prints the most recent usage audit entries.
func (c *UsageCmd) Run() error {
	cfg, err := loadConfig(c.Config)
	if err != nil {
		return err
	}
	audit, err := billing.NewAuditLog(cfg.UsageLogPath())
	if err != nil {
		return err
	}
	entries, err := audit.ReadAll()
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("No usage recorded.")
		return nil
	}
	if c.Last > 0 && len(entries) > c.Last {
		entries = entries[len(entries)-c.Last:]
	}
	for _, e := range entries {
		fmt.Printf("%s  %-20s %3d req %6.1f units  %s\n",
			e.Timestamp.Format(time.RFC3339), e.Model, e.Requests, e.Units, e.Excerpt)
	}
	return nil
}

// Run lists delegated agent configs on disk.
func (c *AgentsCmd) Run() error {
	cfg, err := loadConfig(c.Config)
	if err != nil {
		return err
	}
	store, err := subagent.NewStore(cfg.AgentsDir())
	if err != nil {
		return err
	}
	configs, err := store.LoadAll()
	if err != nil {
		return err
	}
	if len(configs) == 0 {
		fmt.Println("No delegated agents stored.")
		return nil
	}
	for _, sc := range configs {
		fmt.Printf("%s  %-20s %s\n", sc.ID, sc.Model, sc.Description)
	}
	return nil
}

// Run launches the setup wizard.
func (c *SetupCmd) Run() error {
	return setup.Run()
}

// Run shows version information.
func (c *VersionCmd) Run() error {
	fmt.Printf("aide %s (commit %s, built %s)\n", version, commit, buildTime)
	return nil
}
