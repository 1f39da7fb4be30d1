package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nhle/ghwatch/internal/model"
	"github.com/nhle/ghwatch/internal/store"
)

// WatchCmd groups the watch list subcommands.
type WatchCmd struct {
	Add    WatchAddCmd    `cmd:"" help:"Add repositories to the watch list"`
	Remove WatchRemoveCmd `cmd:"" help:"Stop watching repositories"`
	List   WatchListCmd   `cmd:"" help:"Show the watch list"`
}

type WatchAddCmd struct {
	Repos []string `arg:"" name:"repo" help:"Repository as owner/name"`
}

func (w *WatchAddCmd) Run(g *Global, root *CLI) error {
	for _, r := range w.Repos {
		if !model.ValidRepoName(r) {
			return fmt.Errorf("%q is not owner/name", r)
		}
	}
	a, log, err := root.openApp()
	if err != nil {
		return err
	}
	defer closeApp(a, log)

	ctx := context.Background()
	for _, r := range w.Repos {
		if err := a.Store().AddWatched(ctx, r, model.OriginManual); err != nil {
			return err
		}
		fmt.Fprintf(g.Out, "watching %s\n", r)
	}
	return nil
}

type WatchRemoveCmd struct {
	Repos []string `arg:"" name:"repo" help:"Repository as owner/name"`
}

// Run deactivates the entries; their snapshots are kept so re-adding a
// repository does not replay notifications for unchanged items.
func (w *WatchRemoveCmd) Run(g *Global, root *CLI) error {
	a, log, err := root.openApp()
	if err != nil {
		return err
	}
	defer closeApp(a, log)

	ctx := context.Background()
	var missing []string
	for _, r := range w.Repos {
		err := a.Store().RemoveWatched(ctx, r)
		switch {
		case errors.Is(err, store.ErrNotFound):
			missing = append(missing, r)
		case err != nil:
			return err
		default:
			fmt.Fprintf(g.Out, "stopped watching %s\n", r)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("not on the watch list: %v", missing)
	}
	return nil
}

type WatchListCmd struct {
	All bool `help:"Include removed repositories"`
}

func (w *WatchListCmd) Run(g *Global, root *CLI) error {
	a, log, err := root.openApp()
	if err != nil {
		return err
	}
	defer closeApp(a, log)

	ctx := context.Background()
	var entries []model.WatchEntry
	if w.All {
		entries, err = a.Store().ListWatchEntries(ctx)
	} else {
		entries, err = a.Store().ListWatched(ctx)
	}
	if err != nil {
		return err
	}

	snaps, err := a.Store().ListSnapshots(ctx, model.KindRepository)
	if err != nil {
		return err
	}
	checked := make(map[string]time.Time, len(snaps))
	for _, s := range snaps {
		checked[s.Ref] = s.LastCheckedAt
	}
	fmt.Fprint(g.Out, renderer().WatchList(entries, checked, time.Now()))
	return nil
}
