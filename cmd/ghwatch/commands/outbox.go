package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/ghwatch/internal/keys"
	"github.com/nhle/ghwatch/internal/model"
	"github.com/nhle/ghwatch/internal/store"
	"github.com/nhle/ghwatch/internal/ui/outboxlist"
)

// OutboxCmd groups the outbox subcommands.
type OutboxCmd struct {
	List   OutboxListCmd   `cmd:"" help:"List notifications, newest first"`
	Browse OutboxBrowseCmd `cmd:"" help:"Browse notifications interactively"`
	Reset  OutboxResetCmd  `cmd:"" help:"Move failed notifications back to pending"`
}

type OutboxListCmd struct {
	Status string `short:"s" help:"Only show notifications with this status (pending, sent, failed)"`
	Limit  int    `short:"n" default:"50" help:"Maximum number of notifications to show"`
}

func (o *OutboxListCmd) Validate() error {
	if o.Status != "" && !model.NotificationStatus(o.Status).Valid() {
		return fmt.Errorf("unknown status %q", o.Status)
	}
	return nil
}

func (o *OutboxListCmd) Run(g *Global, root *CLI) error {
	a, log, err := root.openApp()
	if err != nil {
		return err
	}
	defer closeApp(a, log)

	filter := store.NotificationFilter{Limit: o.Limit}
	if o.Status != "" {
		st := model.NotificationStatus(o.Status)
		filter.Status = &st
	}
	recs, err := a.Store().ListNotifications(context.Background(), filter)
	if err != nil {
		return err
	}
	fmt.Fprint(g.Out, renderer().Notifications(recs, time.Now()))
	return nil
}

type OutboxBrowseCmd struct{}

func (o *OutboxBrowseCmd) Run(root *CLI) error {
	a, log, err := root.openApp()
	if err != nil {
		return err
	}
	defer closeApp(a, log)

	ctx, cancel := signalContext()
	defer cancel()

	m := outboxlist.New(ctx, a.Store(), keys.DefaultKeyMap(), 80, 24)
	_, err = tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

type OutboxResetCmd struct {
	IDs       []int64 `arg:"" optional:"" name:"id" help:"Notification IDs to retry"`
	AllFailed bool    `name:"all-failed" help:"Retry every failed notification"`
}

// Validate is called by kong after parsing.
func (o *OutboxResetCmd) Validate() error {
	switch {
	case o.AllFailed && len(o.IDs) > 0:
		return errors.New("pass notification IDs or --all-failed, not both")
	case !o.AllFailed && len(o.IDs) == 0:
		return errors.New("pass notification IDs or --all-failed")
	}
	return nil
}

func (o *OutboxResetCmd) Run(g *Global, root *CLI) error {
	a, log, err := root.openApp()
	if err != nil {
		return err
	}
	defer closeApp(a, log)

	n, err := a.Store().ResetFailed(context.Background(), o.IDs...)
	if err != nil {
		if errors.Is(err, store.ErrInvalidTransition) {
			return fmt.Errorf("%w (only failed notifications can be reset)", err)
		}
		return err
	}
	fmt.Fprintf(g.Out, "%d notification(s) queued for delivery\n", n)
	return nil
}
