package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"SignFlow/internal/service"
)

var (
	signIn    string
	signBoxes string
	signOut   string
)

var signCmd = &cobra.Command{
	Use:   "sign",
	Short: "Sign a PDF from a prepared box file",
	Long: `Places signatures on a PDF without any user interface. The box file is
a JSON array of boxes:

  [{"page": 1, "x": 60, "y": 80, "w": 30, "h": 8,
    "pad": {"w": 600, "h": 200},
    "strokes": [[{"x": 10, "y": 50}, {"x": 40, "y": 20}]]}]

Box positions are percent of the page; stroke points are percent of the
pad the signature was drawn on.`,
	RunE: runSign,
}

func init() {
	signCmd.Flags().StringVar(&signIn, "in", "", "PDF to sign")
	signCmd.Flags().StringVar(&signBoxes, "boxes", "", "JSON box file")
	signCmd.Flags().StringVar(&signOut, "out", "", "where to write the signed PDF (default <name>_signed.pdf)")
	signCmd.MarkFlagRequired("in")
	signCmd.MarkFlagRequired("boxes")
	rootCmd.AddCommand(signCmd)
}

func runSign(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	data, err := os.ReadFile(signIn)
	if err != nil {
		return err
	}
	f, err := os.Open(signBoxes)
	if err != nil {
		return err
	}
	specs, err := service.ReadBoxSpecs(f)
	f.Close()
	if err != nil {
		return err
	}
	if len(specs) == 0 {
		return errors.New("box file holds no boxes")
	}

	svc, err := newService(cfg)
	if err != nil {
		return err
	}
	res, err := svc.SignDocument(contextOrBackground(cmd), filepath.Base(signIn), data, specs)
	if err != nil {
		return fmt.Errorf("sign %s: %w", signIn, err)
	}

	out := signOut
	if out == "" {
		out = filepath.Join(filepath.Dir(signIn), service.SignedName(signIn))
	}
	if err := os.WriteFile(out, res.Data, 0o644); err != nil {
		return err
	}
	cmd.Printf("Wrote %s: %d signed, %d skipped\n", out, len(res.Drawn), len(res.Skipped))
	for _, s := range res.Skipped {
		cmd.Printf("  skipped %s: %s\n", s.ID, s.Reason)
	}
	return nil
}
