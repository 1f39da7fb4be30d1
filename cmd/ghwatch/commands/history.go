package commands

import (
	"context"
	"fmt"
)

// HistoryCmd implements the 'history' command.
type HistoryCmd struct {
	Limit int `short:"n" default:"20" help:"Number of passes to show"`
}

func (h *HistoryCmd) Run(g *Global, root *CLI) error {
	a, log, err := root.openApp()
	if err != nil {
		return err
	}
	defer closeApp(a, log)

	passes, err := a.Store().ListPasses(context.Background(), h.Limit)
	if err != nil {
		return err
	}
	fmt.Fprint(g.Out, renderer().History(passes))
	return nil
}
