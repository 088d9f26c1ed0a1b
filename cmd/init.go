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
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/jackc/pgx/v5"
	"github.com/pelletier/go-toml/v2"
	"github.com/penny-vault/finelt/config"
	"github.com/penny-vault/finelt/db"
	"github.com/penny-vault/finelt/library"
	"github.com/penny-vault/finelt/schema"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// savedConfig is the part of the configuration written by init
type savedConfig struct {
	DB         config.Database   `toml:"db"`
	Polygon    config.Polygon    `toml:"polygon"`
	Fred       config.Fred       `toml:"fred"`
	Checkpoint config.Checkpoint `toml:"checkpoint"`
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Gather database and provider configuration and setup schema",
	Run: func(cmd *cobra.Command, args []string) {
		env := mustEnv()
		ctx := env.WithContext(context.Background())
		cfg := env.Config

		myLibrary := &library.Library{DBUrl: cfg.DB.URL}

		form := huh.NewForm(
			// Gather details about the library and who owns it
			huh.NewGroup(
				huh.NewInput().
					Title("Give the library a name:").
					Value(&myLibrary.Name),

				huh.NewInput().
					Title("Who owns the library?").
					Value(&myLibrary.Owner),
			),

			// Get details about the database
			huh.NewGroup(
				huh.NewInput().
					Title("Provide the DSN for connecting to your PostgreSQL database (postgres://[user[:password]@][netloc][:port][/dbname][?param1=value1&...])").
					Value(&myLibrary.DBUrl).
					Validate(func(dsn string) error {
						_, err := pgx.ParseConfig(dsn)
						return err
					}),
			),

			// Provider credentials
			huh.NewGroup(
				huh.NewInput().
					Title("Polygon.io API key:").
					Password(true).
					Value(&cfg.Polygon.APIKey),

				huh.NewInput().
					Title("FRED API key:").
					Password(true).
					Value(&cfg.Fred.APIKey),
			),

			huh.NewGroup(
				huh.NewSelect[string]().
					Title("Where should extraction checkpoints be stored?").
					Options(
						huh.NewOption("Local files", config.CheckpointFile),
						huh.NewOption("PostgreSQL", config.CheckpointDatabase),
						huh.NewOption("Redis", config.CheckpointRedis),
					).
					Value(&cfg.Checkpoint.Backend),
			),
		)

		err := form.Run()
		if err != nil {
			log.Fatal().Err(err).Msg("error gathering library settings")
		}

		log.Info().Msg("creating database tables")

		// run migration
		dbURL := strings.Replace(myLibrary.DBUrl, "postgres://", "pgx5://", -1)
		err = db.Migrate(dbURL)
		if err != nil {
			log.Fatal().Err(err).Msg("error running database migration")
		}

		if err := myLibrary.Connect(ctx); err != nil {
			log.Fatal().Err(err).Msg("could not connect to database")
		}
		defer myLibrary.Close()

		conn, release, err := myLibrary.Acquire(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("could not acquire database connection")
		}

		err = schema.New(env.Logger).EnsureAll(ctx, conn)
		release()
		if err != nil {
			log.Fatal().Err(err).Msg("error creating data tables")
		}

		log.Info().Msg("database tables created")
		log.Info().Msg("Saving library name and owner to database")

		err = myLibrary.SaveDB(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("error saving library settings to database")
		}

		cfg.DB.URL = myLibrary.DBUrl
		configFN := defaultConfigFile()
		log.Info().Str("ConfigFile", configFN).Msg("Saving configuration to config file")
		configData, err := toml.Marshal(&savedConfig{
			DB:         cfg.DB,
			Polygon:    cfg.Polygon,
			Fred:       cfg.Fred,
			Checkpoint: cfg.Checkpoint,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("could not marshal configuration data")
		}

		err = os.WriteFile(configFN, configData, 0600)
		if err != nil {
			log.Fatal().Err(err).Str("FileName", configFN).Msg("could not save configuration to file")
		}

		log.Info().Msg("Your data library has been initialized")
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
