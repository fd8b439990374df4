// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the imgsieve CLI.
// Implements: prd001-classification, prd002-enumeration,
//             prd003-pipeline, prd004-catalog (CLI surface).
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/imgsieve/internal/extract"
)

// version is set at build time via ldflags.
var version = "dev"

// rootCmd is the base command for the imgsieve CLI.
var rootCmd = &cobra.Command{
	Use:   "imgsieve",
	Short: "Extract images from directories, files, and URLs",
	Long: `imgsieve scans local files, directory trees, and remote URLs for image
content, classifies each candidate by its magic bytes, and copies the
matches into an output directory under collision-safe names.

Each operation is a subcommand: scan extracts images, identify classifies
without extracting, and catalog inspects the cross-run extraction record.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./imgsieve.yaml or ~/.config/imgsieve/config.yaml)")
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("imgsieve")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "imgsieve"))
		}
	}

	viper.SetEnvPrefix("IMGSIEVE")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// Exit codes: 0 clean run, 1 per-item failures or usage errors, 2 fatal
// setup errors (unwritable output, invalid filter, bad source).
func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		if errors.Is(err, extract.ErrFatal) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
