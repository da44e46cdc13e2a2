package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/pterm/pterm"
	"github.com/urfave/cli/v2"

	"github.com/bartossh/Rollupis/archive"
	"github.com/bartossh/Rollupis/block"
	"github.com/bartossh/Rollupis/bookkeeping"
	"github.com/bartossh/Rollupis/configuration"
	"github.com/bartossh/Rollupis/logger"
	"github.com/bartossh/Rollupis/logging"
	"github.com/bartossh/Rollupis/logo"
	"github.com/bartossh/Rollupis/natsclient"
	"github.com/bartossh/Rollupis/reactive"
	"github.com/bartossh/Rollupis/repository"
	"github.com/bartossh/Rollupis/server"
	"github.com/bartossh/Rollupis/stdoutwriter"
	"github.com/bartossh/Rollupis/telemetry"
	"github.com/bartossh/Rollupis/wallet"
	"github.com/bartossh/Rollupis/zincaddapter"
)

const usage = `Runs the rollup node that records signed purchase transactions,
forges them into chained blocks anchored by the archive content identifier and streams new blocks.`

const (
	blockHeightGauge = "rollup_node_block_height"
	blockSubSize     = 100
)

func main() {
	logo.Display()

	var file, env string
	configurator := func() (configuration.Configuration, error) {
		if file == "" {
			return configuration.Configuration{}, errors.New("please specify configuration file path with -c <path to file>")
		}

		return configuration.ReadWithEnv(file, env)
	}

	app := &cli.App{
		Name:  "rollup",
		Usage: usage,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Load configuration from `FILE`",
				Destination: &file,
			},
			&cli.StringFlag{
				Name:        "env",
				Aliases:     []string{"e"},
				Usage:       "Load secrets from dotenv `FILE`",
				Destination: &env,
			},
		},
		Action: func(_ *cli.Context) error {
			cfg, err := configurator()
			if err != nil {
				return err
			}
			run(cfg)
			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		pterm.Error.Println(err.Error())
	}
}

func run(cfg configuration.Configuration) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)

	go func() {
		<-c
		cancel()
	}()

	callbackOnErr := func(err error) {
		fmt.Println("Error with logger: ", err)
	}

	callbackOnFatal := func(err error) {
		panic(fmt.Sprintf("Error with logger: %s", err))
	}

	var writer io.Writer
	zinc, err := zincaddapter.New(cfg.ZincLogger)
	if err != nil {
		if !errors.Is(err, zincaddapter.ErrEmptyAddressProvided) {
			pterm.Error.Println(err.Error())
			return
		}
		writer = &stdoutwriter.Logger{}
	} else {
		writer = &zinc
	}
	log := logging.New(callbackOnErr, callbackOnFatal, writer).WithService("rollup")

	if cfg.Database.Path != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0755); err != nil {
			pterm.Error.Println(err.Error())
			return
		}
	}

	db, err := repository.Open(ctx, cfg.Database)
	if err != nil {
		pterm.Error.Println(err.Error())
		return
	}
	defer func() {
		if err := db.Disconnect(context.Background()); err != nil {
			pterm.Error.Println(err.Error())
		}
	}()

	arch, err := archive.Open(ctx, cfg.Archive)
	if err != nil {
		pterm.Error.Println(err.Error())
		return
	}
	defer func() {
		if err := arch.Close(); err != nil {
			pterm.Error.Println(err.Error())
		}
	}()

	tele, err := telemetry.Run(ctx, cancel, cfg.Telemetry)
	if err != nil {
		pterm.Error.Println(err.Error())
		return
	}
	tele.CreateUpdateObservableGauge(blockHeightGauge, "Height of the last forged block.")

	var pub *natsclient.Publisher
	pub, err = natsclient.PublisherConnect(cfg.Nats)
	switch {
	case err == nil:
		defer func() {
			if err := pub.Disconnect(); err != nil {
				log.Error(err.Error())
			}
		}()
	case errors.Is(err, natsclient.ErrEmptyAddressProvided):
		log.Info("rollup, nats address not configured, new blocks are streamed over websocket only")
		pub = nil
	default:
		pterm.Error.Println(err.Error())
		return
	}

	rx := reactive.New[block.Header](blockSubSize)
	go forward(ctx, rx.Subscribe(), pub, tele, log)

	ledger, err := bookkeeping.New(cfg.Bookkeeper, db, arch, log, rx)
	if err != nil {
		pterm.Error.Println(err.Error())
		return
	}
	ledger.Run(ctx)

	pterm.Info.Printf("Rollup node listens on port [ %d ], blocks are forged every [ %d ] seconds.\n",
		cfg.Server.Port, cfg.Bookkeeper.BlockIntervalSeconds)

	if err := server.Run(ctx, cfg.Server, db, wallet.NewVerifier(), log, rx); err != nil {
		log.Error(err.Error())
		time.Sleep(time.Second)
	}
}

// forward updates metrics and publishes forged blocks to nats when configured.
func forward(
	ctx context.Context, sub *reactive.Subscriber[block.Header], pub *natsclient.Publisher,
	tele *telemetry.Measurements, log logger.Logger,
) {
	defer sub.Cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case h := <-sub.Channel():
			tele.SetGauge(blockHeightGauge, float64(h.Height))
			if pub == nil {
				continue
			}
			if err := pub.PublishNewBlock(&h); err != nil {
				log.Error(fmt.Sprintf("rollup, publishing block [ %d ] to nats failed: %s", h.Height, err))
			}
		}
	}
}
