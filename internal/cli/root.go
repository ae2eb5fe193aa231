// Package cli holds the signflow commands.
package cli

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"SignFlow/internal/config"
	"SignFlow/internal/logger"
	"SignFlow/internal/preview"
	"SignFlow/internal/service"
	"SignFlow/internal/storage"
)

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "signflow",
	Short: "Place handwritten signatures on PDF documents",
	Long: `signflow loads a PDF, lets you place signature boxes on its pages,
captures a handwritten signature for each box and writes a signed copy.
Run it as a desktop application, as an HTTP service for browsers on the
local network, or headless from prepared box files.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, _ []string) {
		logger.SetVerbose(verbose)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (.yaml or .toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log every pointer sample and request detail")
}

// Execute runs the command line.
func Execute() error {
	return rootCmd.Execute()
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// newService wires storage and the page renderer for cfg. A missing
// renderer is only a warning; previews then fail with a message.
func newService(cfg *config.Config) (*service.Service, error) {
	store, err := storage.New(cfg.Storage.Dir)
	if err != nil {
		return nil, err
	}
	raster := preview.NewPoppler(cfg.Render.Pdftoppm)
	if err := raster.CheckAvailable(); err != nil {
		log.Printf("[preview] %v; page previews are disabled", err)
	}
	return service.New(cfg, store, raster), nil
}
