// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/OpenPSG/eyemat"
	"github.com/OpenPSG/eyemat/internal/config"
	"github.com/OpenPSG/eyemat/internal/log"
	"github.com/OpenPSG/eyemat/internal/replay"
	"github.com/OpenPSG/eyemat/internal/store"
	"github.com/google/uuid"
	"github.com/urfave/cli/v2"
)

func replayCommand() *cli.Command {
	return &cli.Command{
		Name:      "replay",
		Usage:     "Replay a recording, writing one raycast line per event",
		ArgsUsage: "[recording]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "path to an eyemat.yaml file",
			},
			&cli.StringFlag{
				Name:  "recording",
				Usage: "path to the session MAT-file",
			},
			&cli.IntFlag{
				Name:  "version-num",
				Usage: "experiment version number reported by version triggers",
			},
			&cli.IntFlag{
				Name:  "fade-out",
				Usage: "samples replayed after the last state boundary",
				Value: eyemat.DefaultFadeOut,
			},
			&cli.StringFlag{
				Name:  "out",
				Usage: "raycast output file (default stdout)",
			},
			&cli.StringFlag{
				Name:  "db",
				Usage: "sqlite database to store replayed events in",
			},
			&cli.StringFlag{
				Name:  "delimiter",
				Usage: "raycast value delimiter",
				Value: eyemat.DefaultDelimiter,
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level (debug, info, warn, error)",
				Value: "info",
			},
		},
		Action: replayAction,
	}
}

// replayOptions are the replay settings after merging the config file
// with the command line.
type replayOptions struct {
	recording string
	version   int
	fadeOut   int
	out       string
	db        string
	delimiter string
	logLevel  string
}

func resolveReplayOptions(c *cli.Context) (replayOptions, error) {
	opts := replayOptions{
		fadeOut:   c.Int("fade-out"),
		delimiter: c.String("delimiter"),
		logLevel:  c.String("log-level"),
	}

	if path := c.String("config"); path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return opts, err
		}
		opts.recording = cfg.Recording
		opts.version = cfg.ExperimentVersion
		if cfg.FadeOut != nil {
			opts.fadeOut = *cfg.FadeOut
		}
		opts.out = cfg.Output.Path
		if cfg.Output.Delimiter != "" {
			opts.delimiter = cfg.Output.Delimiter
		}
		opts.db = cfg.Store.Path
		if cfg.Log.Level != "" {
			opts.logLevel = cfg.Log.Level
		}
	}

	if c.NArg() > 0 {
		opts.recording = c.Args().First()
	}
	if c.IsSet("recording") {
		opts.recording = c.String("recording")
	}
	if c.IsSet("version-num") {
		opts.version = c.Int("version-num")
	}
	if c.IsSet("fade-out") {
		opts.fadeOut = c.Int("fade-out")
	}
	if c.IsSet("out") {
		opts.out = c.String("out")
	}
	if c.IsSet("db") {
		opts.db = c.String("db")
	}
	if c.IsSet("delimiter") {
		opts.delimiter = c.String("delimiter")
	}
	if c.IsSet("log-level") {
		opts.logLevel = c.String("log-level")
	}

	if opts.recording == "" {
		return opts, fmt.Errorf("no recording given")
	}
	if opts.fadeOut < 0 {
		return opts, fmt.Errorf("fade-out must not be negative, got %d", opts.fadeOut)
	}

	return opts, nil
}

func replayAction(c *cli.Context) error {
	opts, err := resolveReplayOptions(c)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	logger, err := log.NewLoggerWithOutput(opts.logLevel, c.App.ErrWriter)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	sessionID := uuid.NewString()
	logger = logger.WithSession(sessionID, opts.recording)

	rec, err := eyemat.OpenRecording(opts.recording)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	defer rec.Release()

	reader, err := eyemat.NewReader(rec,
		eyemat.WithFadeOut(opts.fadeOut),
		eyemat.WithVersion(func() int { return opts.version }),
	)
	if err != nil {
		return cli.Exit(fmt.Sprintf("cannot replay %s: %v", opts.recording, err), 1)
	}

	var out io.Writer = c.App.Writer
	if opts.out != "" {
		f, err := os.Create(opts.out)
		if err != nil {
			return cli.Exit(fmt.Sprintf("cannot create output file: %v", err), 1)
		}
		defer f.Close()
		out = f
	}
	sinks := []replay.Sink{replay.NewLineSink(out, opts.delimiter)}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.db != "" {
		db, err := store.Open(opts.db)
		if err != nil {
			return cli.Exit(fmt.Sprintf("cannot open event store: %v", err), 1)
		}
		defer db.Close()

		if err := db.CreateSession(ctx, sessionID, opts.recording, time.Now()); err != nil {
			return cli.Exit(err.Error(), 1)
		}
		sinks = append(sinks, replay.NewStoreSink(db, sessionID, replay.DefaultBatchSize))
	}

	logger.Info("replay started", map[string]any{
		"samples":   rec.NumSamples(),
		"trials":    rec.NumTrials(),
		"fixations": rec.NumFixations(),
		"fade_out":  opts.fadeOut,
	})

	if _, err := replay.NewRunner(logger, sinks...).Run(ctx, reader); err != nil {
		return cli.Exit(fmt.Sprintf("replay of %s failed: %v", opts.recording, err), 1)
	}

	return nil
}
