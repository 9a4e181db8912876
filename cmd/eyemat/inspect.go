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
	"sort"
	"time"

	"github.com/OpenPSG/eyemat"
	"github.com/OpenPSG/eyemat/internal/store"
	"github.com/urfave/cli/v2"
)

func inspectCommand() *cli.Command {
	return &cli.Command{
		Name:      "inspect",
		Usage:     "Describe a recording, or the sessions in an event store",
		ArgsUsage: "<recording>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "db",
				Usage: "describe the sessions stored in this sqlite database instead",
			},
			&cli.StringFlag{
				Name:  "session",
				Usage: "only describe this stored session",
			},
		},
		Action: inspectAction,
	}
}

func inspectAction(c *cli.Context) error {
	if path := c.String("db"); path != "" {
		return inspectStore(c, path)
	}

	if c.NArg() < 1 {
		return cli.Exit("recording required", 1)
	}
	path := c.Args().First()

	rec, err := eyemat.OpenRecording(path)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	defer rec.Release()

	w := c.App.Writer
	fmt.Fprintf(w, "recording:  %s\n", path)
	fmt.Fprintf(w, "header:     %s\n", rec.Header().Text)
	fmt.Fprintf(w, "compressed: %t\n", rec.Header().Compressed)
	fmt.Fprintf(w, "samples:    %d\n", rec.NumSamples())
	fmt.Fprintf(w, "trials:     %d\n", rec.NumTrials())
	fmt.Fprintf(w, "fixations:  %d\n", rec.NumFixations())
	if n := rec.NumSamples(); n > 0 {
		fmt.Fprintf(w, "span:       %d..%d\n", rec.Timestamp(0), rec.Timestamp(n-1))
	}

	return nil
}

func inspectStore(c *cli.Context, path string) error {
	db, err := store.Open(path)
	if err != nil {
		return cli.Exit(fmt.Sprintf("cannot open event store: %v", err), 1)
	}
	defer db.Close()

	ids := []string{c.String("session")}
	if ids[0] == "" {
		if ids, err = db.SessionIDs(c.Context); err != nil {
			return cli.Exit(err.Error(), 1)
		}
	}

	for _, id := range ids {
		summary, err := db.Summary(c.Context, id)
		if err != nil {
			return cli.Exit(err.Error(), 1)
		}
		writeSummary(c.App.Writer, summary)
	}

	return nil
}

func writeSummary(w io.Writer, s *store.Summary) {
	fmt.Fprintf(w, "session %s\n", s.SessionID)
	fmt.Fprintf(w, "  recording: %s\n", s.Recording)
	fmt.Fprintf(w, "  started:   %s\n", s.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(w, "  span:      %d..%d\n", s.Span.Start, s.Span.End)

	kinds := make([]string, 0, len(s.Counts))
	for kind := range s.Counts {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	for _, kind := range kinds {
		fmt.Fprintf(w, "  %-16s %d\n", kind, s.Counts[kind])
	}
}
