package commands

import "fmt"

// CheckCmd implements the 'check' command.
type CheckCmd struct {
	NoDeliver bool `name:"no-deliver" help:"Queue notifications without delivering them"`
}

// Run prints the pass summary, then returns the abort error, if any, so
// the process exits non-zero only for auth and storage failures.
func (c *CheckCmd) Run(g *Global, root *CLI) error {
	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}
	if c.NoDeliver {
		cfg.Delivery.Enabled = false
	}

	a, log, err := root.openAppWith(cfg)
	if err != nil {
		return err
	}
	defer closeApp(a, log)

	ctx, cancel := signalContext()
	defer cancel()

	summary, err := a.RunPass(ctx)
	fmt.Fprint(g.Out, renderer().PassSummary(summary))
	return err
}

// DeliverCmd implements the 'deliver' command.
type DeliverCmd struct{}

func (d *DeliverCmd) Run(g *Global, root *CLI) error {
	a, log, err := root.openApp()
	if err != nil {
		return err
	}
	defer closeApp(a, log)

	ctx, cancel := signalContext()
	defer cancel()

	summary, err := a.Deliver(ctx)
	fmt.Fprint(g.Out, renderer().Delivery(summary))
	return err
}
