package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"vidfetch/internal/config"
)

const Version = "0.1.0"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.App{
		Name:    "vidfetch",
		Usage:   "extract and download videos from web pages",
		Version: Version,
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "run the HTTP API",
				Flags: withConfigFlags(
					&cli.IntFlag{
						Name:    "port",
						Aliases: []string{"p"},
						Usage:   "listen on `PORT` instead of the configured one",
					},
				),
				Action: func(c *cli.Context) error {
					return runServe(ctx, c)
				},
			},
			{
				Name:      "fetch",
				Usage:     "download one or more videos and exit",
				ArgsUsage: "URL...",
				Flags: withConfigFlags(
					&cli.StringFlag{
						Name:  "target",
						Usage: "save downloaded videos to `DIR`",
					},
				),
				Action: func(c *cli.Context) error {
					return runFetch(ctx, c)
				},
			},
			{
				Name:  "install-backend",
				Usage: "download or update the yt-dlp binary",
				Flags: withConfigFlags(
					&cli.BoolFlag{
						Name:  "check",
						Usage: "only report whether an update is available",
					},
				),
				Action: runInstallBackend,
			},
			{
				Name:  "version",
				Usage: "print the version",
				Action: func(c *cli.Context) error {
					fmt.Fprintf(c.App.Writer, "vidfetch %s\n", Version)
					return nil
				},
			},
		},
		HideHelpCommand: true,
	}

	if err := app.Run(os.Args); err != nil {
		stop()
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// withConfigFlags prepends the flags every command that loads configuration accepts
func withConfigFlags(flags ...cli.Flag) []cli.Flag {
	return append([]cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Value:   config.GetDefaultConfigPath(),
			Usage:   "load configuration from `FILE`",
		},
		&cli.StringFlag{
			Name:  "env-file",
			Value: ".env",
			Usage: "read VIDFETCH_* overrides from `FILE` if it exists",
		},
	}, flags...)
}
