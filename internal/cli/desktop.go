package cli

import (
	"github.com/spf13/cobra"

	"SignFlow/internal/ui"
)

var desktopCmd = &cobra.Command{
	Use:   "desktop",
	Short: "Open the desktop signing window",
	RunE: func(*cobra.Command, []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		svc, err := newService(cfg)
		if err != nil {
			return err
		}
		ui.RunApp(svc)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(desktopCmd)
}
