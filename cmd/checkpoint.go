// Copyright 2024
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/penny-vault/finelt/checkpoint"
	"github.com/penny-vault/finelt/config"
	"github.com/penny-vault/finelt/library"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/xeonx/timeago"
)

var clearAll bool

var checkpointCmd = &cobra.Command{
	Use:   "checkpoint",
	Short: "Inspect and clear the checkpoints of unfinished runs",
}

var checkpointListCmd = &cobra.Command{
	Use:   "list",
	Short: "List open checkpoints",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, store, done := openCheckpoints()
		defer done()

		checkpoints, err := store.List(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("could not list checkpoints")
		}

		if len(checkpoints) == 0 {
			fmt.Println("no open checkpoints")
			return
		}

		for _, cp := range checkpoints {
			processed, noData, failed := cp.Counts()
			fmt.Printf("%s  %-6s %-16s done: %d, no data: %d, failed: %d, pending rows: %d, updated %s\n",
				cp.RunID, cp.Kind, cp.Table, processed, noData, failed, cp.NumRows(), timeago.English.Format(cp.UpdatedAt))
		}
	},
}

var checkpointShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Print a checkpoint as JSON",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, store, done := openCheckpoints()
		defer done()

		cp, err := store.Load(ctx, args[0])
		if err != nil {
			log.Fatal().Err(err).Str("RunID", args[0]).Msg("could not load checkpoint")
		}

		buf, err := cp.Encode()
		if err != nil {
			log.Fatal().Err(err).Msg("could not encode checkpoint")
		}

		var pretty map[string]any
		if err := json.Unmarshal(buf, &pretty); err != nil {
			log.Fatal().Err(err).Msg("could not decode checkpoint")
		}

		out, err := json.MarshalIndent(pretty, "", "  ")
		if err != nil {
			log.Fatal().Err(err).Msg("could not format checkpoint")
		}

		fmt.Println(string(out))
	},
}

var checkpointClearCmd = &cobra.Command{
	Use:   "clear [run-id...]",
	Short: "Delete checkpoints so the next run starts from scratch",
	Run: func(cmd *cobra.Command, args []string) {
		if !clearAll && len(args) == 0 {
			log.Fatal().Msg("give one or more run ids or --all")
		}

		ctx, store, done := openCheckpoints()
		defer done()

		runIDs := args
		if clearAll {
			checkpoints, err := store.List(ctx)
			if err != nil {
				log.Fatal().Err(err).Msg("could not list checkpoints")
			}

			runIDs = make([]string, len(checkpoints))
			for idx, cp := range checkpoints {
				runIDs[idx] = cp.RunID
			}
		}

		for _, runID := range runIDs {
			if err := store.Delete(ctx, runID); err != nil && !errors.Is(err, checkpoint.ErrNotFound) {
				log.Fatal().Err(err).Str("RunID", runID).Msg("could not delete checkpoint")
			}
			log.Info().Str("RunID", runID).Msg("checkpoint cleared")
		}
	},
}

func init() {
	rootCmd.AddCommand(checkpointCmd)
	checkpointCmd.AddCommand(checkpointListCmd, checkpointShowCmd, checkpointClearCmd)
	checkpointClearCmd.Flags().BoolVar(&clearAll, "all", false, "clear every checkpoint")
}

// openCheckpoints opens the configured checkpoint store. The returned
// function closes any database connection it needed.
func openCheckpoints() (context.Context, checkpoint.Store, func()) {
	env := mustEnv(config.NeedCheckpoint)
	ctx := env.WithContext(context.Background())

	var myLibrary *library.Library
	if env.Config.Checkpoint.Backend == config.CheckpointDatabase {
		myLibrary = mustLibrary(ctx, env)
	}

	return ctx, mustCheckpointStore(env, myLibrary), myLibrary.Close
}
