package cli

import (
	"time"

	"github.com/spf13/cobra"

	"SignFlow/internal/net"
)

var discoverTimeout time.Duration

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "List signflow servers on the local network",
	RunE: func(cmd *cobra.Command, _ []string) error {
		found := 0
		err := net.Browse(discoverTimeout, func(p net.Peer) {
			found++
			cmd.Printf("%s\thttp://%s/api\n", p.Name, p.Addr)
		})
		if err != nil {
			return err
		}
		if found == 0 {
			cmd.Println("No servers found")
		}
		return nil
	},
}

func init() {
	discoverCmd.Flags().DurationVar(&discoverTimeout, "timeout", 3*time.Second, "how long to listen for answers")
	rootCmd.AddCommand(discoverCmd)
}
