// Package commands holds the kong command tree of the ghwatch binary.
package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/rs/zerolog"

	"github.com/nhle/ghwatch/internal/app"
	"github.com/nhle/ghwatch/internal/credential"
	"github.com/nhle/ghwatch/internal/logging"
	"github.com/nhle/ghwatch/internal/model"
	"github.com/nhle/ghwatch/internal/ui"
)

// Global carries process-wide values bound into every command.
type Global struct {
	Out io.Writer
}

// CLI is the root command tree and its global flags.
type CLI struct {
	Config   string           `short:"c" help:"Configuration file path" type:"path" default:"${config_path}"`
	EnvFile  string           `name:"env-file" help:"Dotenv file loaded before secrets are resolved" type:"path" default:".env"`
	LogLevel string           `name:"log-level" help:"Override the configured log level (trace, debug, info, warn, error)"`
	Version  kong.VersionFlag `name:"version" help:"Show version and exit"`

	Check   CheckCmd   `cmd:"" help:"Run one reconciliation pass and deliver new notifications"`
	Deliver DeliverCmd `cmd:"" help:"Deliver pending notifications without polling GitHub"`
	Daemon  DaemonCmd  `cmd:"" help:"Run passes on the configured schedule until interrupted"`
	Watch   WatchCmd   `cmd:"" help:"Manage the repository watch list"`
	Outbox  OutboxCmd  `cmd:"" help:"Inspect and retry queued notifications"`
	History HistoryCmd `cmd:"" help:"Show recent reconciliation passes"`
	Setup   SetupCmd   `cmd:"" help:"Interactively write the configuration file"`
}

// AfterApply loads the dotenv file once flags are parsed.
func (c *CLI) AfterApply() error {
	return credential.LoadDotEnv(c.EnvFile)
}

// loadConfig reads the config file, falling back to defaults when it does
// not exist, and applies flag overrides.
func (c *CLI) loadConfig() (*model.AppConfig, error) {
	cfg, err := model.LoadConfig(c.Config)
	if err != nil {
		return nil, err
	}
	if c.LogLevel != "" {
		cfg.Logging.Level = c.LogLevel
	}
	return cfg, nil
}

// openApp loads the config and opens the store behind it.
func (c *CLI) openApp(opts ...app.Option) (*app.App, zerolog.Logger, error) {
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	return c.openAppWith(cfg, opts...)
}

func (c *CLI) openAppWith(cfg *model.AppConfig, opts ...app.Option) (*app.App, zerolog.Logger, error) {
	log := logging.New(cfg.Logging)
	a, err := app.Open(cfg, log, opts...)
	if err != nil {
		return nil, log, fmt.Errorf("opening state store: %w", err)
	}
	return a, log, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func closeApp(a *app.App, log zerolog.Logger) {
	if err := a.Close(); err != nil {
		log.Warn().Err(err).Msg("closing state store")
	}
}

func renderer() ui.Renderer {
	return ui.DefaultRenderer()
}
