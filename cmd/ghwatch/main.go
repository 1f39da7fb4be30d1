package main

import (
	"os"

	"github.com/alecthomas/kong"

	"github.com/nhle/ghwatch/cmd/ghwatch/commands"
	"github.com/nhle/ghwatch/internal/model"
)

var version = "dev"

func main() {
	cli := &commands.CLI{}
	ctx := kong.Parse(cli,
		kong.Name("ghwatch"),
		kong.Description("Watch GitHub repositories, issues and pull requests and notify on changes."),
		kong.UsageOnError(),
		kong.Vars{
			"config_path": model.DefaultConfigPath(),
			"version":     version,
		},
	)
	err := ctx.Run(&commands.Global{Out: os.Stdout}, cli)
	ctx.FatalIfErrorf(err)
}
