package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/huh"

	"github.com/nhle/ghwatch/internal/model"
	"github.com/nhle/ghwatch/internal/ui/setup"
)

// SetupCmd implements the 'setup' command.
type SetupCmd struct {
	Verify bool `default:"true" negatable:"" help:"Check the GitHub token after saving"`
}

func (s *SetupCmd) Run(g *Global, root *CLI) error {
	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}

	f := setup.New(cfg)
	if err := f.Build(80).Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			fmt.Fprintln(g.Out, "setup cancelled, nothing written")
			return nil
		}
		return err
	}
	if err := f.Apply(cfg); err != nil {
		return err
	}
	if err := model.SaveConfig(root.Config, cfg); err != nil {
		return err
	}
	fmt.Fprintf(g.Out, "configuration written to %s\n", root.Config)

	if !s.Verify {
		return nil
	}
	a, log, err := root.openAppWith(cfg)
	if err != nil {
		return err
	}
	defer closeApp(a, log)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	login, err := a.ValidateConnection(ctx)
	if err != nil {
		return fmt.Errorf("verifying GitHub token: %w", err)
	}
	fmt.Fprintf(g.Out, "authenticated as %s\n", login)
	return nil
}
