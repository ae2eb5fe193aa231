package cli

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"SignFlow/internal/config"
	"SignFlow/internal/net"
)

var (
	serveAddr      string
	servePort      int
	serveAdvertise bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the signing API over HTTP and websockets",
	Long: `Starts the HTTP API. Browsers create a session, upload a PDF, place
boxes and stream pad samples over the session websocket. With --advertise
the service is announced over mDNS as ` + net.ServiceType + `.
Edits to the config file are picked up by new sessions and exports.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "host", "", "interface to listen on (overrides config)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "port to listen on (overrides config)")
	serveCmd.Flags().BoolVar(&serveAdvertise, "advertise", false, "announce the service over mDNS")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyServeFlags(cmd, cfg)

	svc, err := newService(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(contextOrBackground(cmd), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if configPath != "" {
		err := config.Watch(ctx, configPath, func(next *config.Config) {
			applyServeFlags(cmd, next)
			svc.ApplyConfig(next)
			log.Printf("[config] Reloaded %s", configPath)
		})
		if err != nil {
			log.Printf("[config] Not watching %s: %v", configPath, err)
		}
	}

	return net.NewServer(svc, cfg.Server).ListenAndServe(ctx)
}

// applyServeFlags lets explicit flags win over the file.
func applyServeFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.Server.Host = serveAddr
	}
	if flags.Changed("port") {
		cfg.Server.Port = servePort
	}
	if flags.Changed("advertise") {
		cfg.Server.Advertise = serveAdvertise
	}
}

func contextOrBackground(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
