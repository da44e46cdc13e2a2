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

	"github.com/bartossh/Rollupis/block"
	"github.com/bartossh/Rollupis/client"
	"github.com/bartossh/Rollupis/configuration"
	"github.com/bartossh/Rollupis/logging"
	"github.com/bartossh/Rollupis/logo"
	"github.com/bartossh/Rollupis/natsclient"
	"github.com/bartossh/Rollupis/scheduler"
	"github.com/bartossh/Rollupis/sequencer"
	"github.com/bartossh/Rollupis/stdoutwriter"
	"github.com/bartossh/Rollupis/telemetry"
	"github.com/bartossh/Rollupis/wallet"
	"github.com/bartossh/Rollupis/watcher"
	"github.com/bartossh/Rollupis/zincaddapter"
)

const usage = `Client submits signed purchase transactions to the rollup node at adaptively randomized intervals,
keeping the sequence gapless across failures. It also creates wallets and watches the stream of forged blocks.`

func main() {
	logo.Display()

	var file, env, pem string
	var useNats bool
	configurator := func() (configuration.Configuration, error) {
		if file == "" {
			return configuration.Configuration{}, errors.New("please specify configuration file path with -c <path to file>")
		}

		return configuration.ReadWithEnv(file, env)
	}

	app := &cli.App{
		Name:  "client",
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
		Commands: []*cli.Command{
			{
				Name:    "run",
				Aliases: []string{"r"},
				Usage:   "Runs the transaction submitter.",
				Action: func(_ *cli.Context) error {
					cfg, err := configurator()
					if err != nil {
						return err
					}
					return run(cfg)
				},
			},
			{
				Name:    "wallet",
				Aliases: []string{"w"},
				Usage:   "Creates new wallet and saves it in PEM format.",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:        "pem",
						Aliases:     []string{"p"},
						Usage:       "Save wallet to PEM `FILE` path, the public key is saved with .pub suffix. Defaults to the configured wallet path.",
						Destination: &pem,
					},
				},
				Action: func(_ *cli.Context) error {
					path := pem
					if path == "" {
						cfg, err := configurator()
						if err != nil {
							return err
						}
						path = cfg.Sequencer.WalletPath
					}
					if err := newWallet(path); err != nil {
						return err
					}
					pterm.Info.Println("----------")
					pterm.Info.Println(" SUCCESS !")
					pterm.Info.Println("----------")
					return nil
				},
			},
			{
				Name:    "watch",
				Aliases: []string{"wa"},
				Usage:   "Watches forged blocks and reports chain breaks.",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:        "nats",
						Usage:       "Read blocks from nats instead of the node websocket.",
						Destination: &useNats,
					},
				},
				Action: func(_ *cli.Context) error {
					cfg, err := configurator()
					if err != nil {
						return err
					}
					return watch(cfg, useNats)
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		pterm.Error.Println(err.Error())
	}
}

func interruptible() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)

	go func() {
		<-c
		cancel()
	}()

	return ctx, cancel
}

func newLogger(service string, cfg zincaddapter.Config) (logging.Helper, error) {
	callbackOnErr := func(err error) {
		fmt.Println("Error with logger: ", err)
	}

	callbackOnFatal := func(err error) {
		panic(fmt.Sprintf("Error with logger: %s", err))
	}

	var writer io.Writer
	zinc, err := zincaddapter.New(cfg)
	if err != nil {
		if !errors.Is(err, zincaddapter.ErrEmptyAddressProvided) {
			return logging.Helper{}, err
		}
		writer = &stdoutwriter.Logger{}
	} else {
		writer = &zinc
	}

	return logging.New(callbackOnErr, callbackOnFatal, writer).WithService(service), nil
}

func run(cfg configuration.Configuration) error {
	ctx, cancel := interruptible()
	defer cancel()

	log, err := newLogger("client", cfg.ZincLogger)
	if err != nil {
		return err
	}

	w, err := wallet.ReadFromPem(cfg.Sequencer.WalletPath)
	if err != nil {
		return err
	}

	rest, err := client.NewRest(cfg.Client)
	if err != nil {
		return err
	}
	if err := rest.ValidateApiVersion(ctx); err != nil {
		log.Warn(fmt.Sprintf("client, rollup node api check failed: %s", err))
	}

	tele, err := telemetry.Run(ctx, cancel, cfg.Telemetry)
	if err != nil {
		return err
	}

	coordinator, err := sequencer.New(cfg.Sequencer, rest, &w, tele, log)
	if err != nil {
		return err
	}
	coordinator.Start(ctx)

	s, err := scheduler.New(cfg.Scheduler, coordinator, log, time.Now())
	if err != nil {
		return err
	}

	pterm.Info.Printf("Client [ %s ] submits transactions starting at sequence [ %d ].\n", w.Address(), coordinator.LastSequence()+1)
	s.Run(ctx)
	pterm.Info.Printf("Client stopped at sequence [ %d ].\n", coordinator.LastSequence())
	time.Sleep(time.Second)

	return nil
}

func newWallet(path string) error {
	if path == "" {
		return errors.New("please specify wallet path with -p <path to file> or in the configuration")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	w, err := wallet.New()
	if err != nil {
		return err
	}
	if err := w.SaveToPem(path); err != nil {
		return err
	}
	pterm.Info.Printf("Wallet address: %s\n", w.Address())
	return nil
}

func watch(cfg configuration.Configuration, useNats bool) error {
	ctx, cancel := interruptible()
	defer cancel()

	log, err := newLogger("watcher", cfg.ZincLogger)
	if err != nil {
		return err
	}
	notify := func(h block.Header, err error) {
		if err != nil {
			pterm.Error.Printf("Block [ %d ] %s: %s\n", h.Height, h.CurBlock, err)
			return
		}
		pterm.Success.Printf("Block [ %d ] %s with cid %s\n", h.Height, h.CurBlock, h.CID)
	}
	w := watcher.New(log, notify)

	if !useNats {
		return w.Run(ctx, cfg.Watcher)
	}

	sub, err := natsclient.SubscriberConnect(cfg.Nats)
	if err != nil {
		return err
	}
	defer sub.Disconnect()

	if err := sub.SubscribeNewBlock(func(h *block.Header) { w.Observe(h) }, log); err != nil {
		return err
	}
	<-ctx.Done()
	return nil
}
