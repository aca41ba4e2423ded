package main

import (
	"os"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "sowerflow",
		Usage: "Instagram conversation intake and automated replies",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "optional TOML config file; environment variables override it",
				EnvVars: []string{"SOWERFLOW_CONFIG"},
			},
		},
		Commands: []*cli.Command{
			serveCommand(),
			dispatchCommand(),
		},
		DefaultCommand: "serve",
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("sowerflow exited")
	}
}
