// Command fullnode runs one replica of the network: load the local
// chain, optionally bootstrap from a seed peer, then serve gossip and
// the HTTP read API until terminated.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/feelesschain/fullnode/config"
	"github.com/feelesschain/fullnode/internal/logging"
	"github.com/feelesschain/fullnode/node"
)

func main() {
	app := &cli.App{
		Name:  "fullnode",
		Usage: "run a node of the network",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "path to a TOML config file"},
			&cli.StringFlag{Name: "datadir", Usage: "override DataDir"},
			&cli.IntFlag{Name: "port", Usage: "override gossip listen Port"},
			&cli.IntFlag{Name: "http-port", Usage: "override HTTPPort"},
			&cli.StringFlag{Name: "peer-http", Usage: "override PeerHTTP seed peer"},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		logging.Crit(err.Error())
	}
}

func run(c *cli.Context) error {
	cfg := config.Default()
	configPath := c.String("config")
	if configPath != "" {
		if err := config.LoadFile(configPath, &cfg); err != nil {
			return err
		}
	}
	if err := config.ApplyEnv(&cfg); err != nil {
		return fmt.Errorf("apply environment overrides: %w", err)
	}
	if v := c.String("datadir"); v != "" {
		cfg.DataDir = v
	}
	if v := c.Int("port"); v != 0 {
		cfg.Port = v
	}
	if v := c.Int("http-port"); v != 0 {
		cfg.HTTPPort = v
	}
	if v := c.String("peer-http"); v != "" {
		cfg.PeerHTTP = v
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	n, err := node.New(ctx, cfg, configPath)
	if err != nil {
		return fmt.Errorf("start node: %w", err)
	}
	logging.Info("fullnode started", "port", cfg.Port, "httpPort", cfg.HTTPPort, "dataDir", cfg.DataDir)

	<-ctx.Done()
	logging.Info("shutting down")
	return n.Shutdown(context.Background())
}
