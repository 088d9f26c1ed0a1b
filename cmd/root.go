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
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/penny-vault/finelt/checkpoint"
	"github.com/penny-vault/finelt/config"
	"github.com/penny-vault/finelt/library"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const configName = ".finelt"

var (
	cfgFile  string
	logLevel string
	jsonLog  bool
)

var rootCmd = &cobra.Command{
	Use:   "finelt",
	Short: "finelt extracts market and economic data into a PostgreSQL library",
	Long: `finelt is a command line utility for extracting company details, daily
price bars and treasury yields from third-party data providers and loading
them into a PostgreSQL database.

Data is currently sourced from:

	* [Polygon.io](https://polygon.io) - ticker details and daily aggregates
	* [FRED](https://fred.stlouisfed.org) - constant maturity treasury yields

Long running extractions are paced to stay within the provider's rate limit
and record their progress in a checkpoint. An interrupted run is resumed by
repeating the same command; identifiers that already completed are skipped.

Company details are joined with the SIC to NAICS industry mapping so every
company carries both classifications. The loaded data can be served over a
small REST API with 'finelt serve'.`,
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.finelt.toml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&jsonLog, "json-log", false, "write logs as JSON instead of console output")

	rootCmd.PersistentFlags().String("db-url", "", "database connection string")
	if err := viper.BindPFlag("db.url", rootCmd.PersistentFlags().Lookup("db-url")); err != nil {
		log.Panic().Err(err).Msg("BindPFlag for db-url failed")
	}
}

func initConfig() {
	setupLogging()

	for _, fn := range config.LoadDotenv() {
		log.Debug().Str("FileName", fn).Msg("loaded environment file")
	}

	config.SetDefaults(viper.GetViper())

	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		// Search config in home directory with name ".finelt" (without extension).
		viper.AddConfigPath(home)
		viper.SetConfigType("toml")
		viper.SetConfigName(configName)
	}

	if err := viper.ReadInConfig(); err == nil {
		log.Debug().Str("ConfigFN", viper.ConfigFileUsed()).Msg("Using config file")
	}
}

func setupLogging() {
	level, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		log.Warn().Str("Level", logLevel).Msg("unknown log level; using info")
		level = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(level)

	if jsonLog {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
}

func defaultConfigFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		log.Fatal().Err(err).Msg("could not determine user home directory")
	}

	return filepath.Join(home, configName+".toml")
}

// mustEnv loads the configuration and exits if any setting in needs is
// missing
func mustEnv(needs ...config.Requirement) *config.Env {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		log.Fatal().Err(err).Msg("could not load configuration")
	}

	if err := cfg.Validate(needs...); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	return config.NewEnv(cfg, log.Logger)
}

func mustLibrary(ctx context.Context, env *config.Env) *library.Library {
	myLibrary := &library.Library{DBUrl: env.Config.DB.URL}
	if err := myLibrary.Connect(ctx); err != nil {
		log.Fatal().Err(err).Msg("could not connect to database")
	}

	return myLibrary
}

func mustCheckpointStore(env *config.Env, myLibrary *library.Library) checkpoint.Store {
	var db checkpoint.Querier
	if myLibrary != nil && myLibrary.Pool != nil {
		db = myLibrary.Pool
	}

	store, err := checkpoint.NewStore(env, db)
	if err != nil {
		log.Fatal().Err(err).Str("Backend", env.Config.Checkpoint.Backend).Msg("could not open checkpoint store")
	}

	return store
}

// signalContext is cancelled on SIGINT or SIGTERM so runs stop at the next
// checkpoint
func signalContext(env *config.Env) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	return env.WithContext(ctx), stop
}
