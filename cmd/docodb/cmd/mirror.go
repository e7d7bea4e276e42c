package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/aweris/docodb/internal/mirror"
)

var exportCmd = &cobra.Command{
	Use:   "export <ref>",
	Short: "Push every object to an OCI registry",
	Long:  "Push every stored object to an OCI image (e.g. ghcr.io/acme/objects:nightly).",
	Args:  cobra.ExactArgs(1),
	RunE:  runExport,
}

var importCmd = &cobra.Command{
	Use:   "import <ref>",
	Short: "Load objects from an OCI registry",
	Long:  "Pull an image created by export and store every object not already present.",
	Args:  cobra.ExactArgs(1),
	RunE:  runImport,
}

func init() {
	for _, c := range []*cobra.Command{exportCmd, importCmd} {
		c.Flags().Bool("insecure", false, "allow plain HTTP registries")
		c.Flags().Int("concurrency", mirror.DefaultConcurrency, "parallel object and layer transfers")
		rootCmd.AddCommand(c)
	}
}

func newMirror(cmd *cobra.Command, ref string) (*mirror.Mirror, error) {
	insecure, _ := cmd.Flags().GetBool("insecure")
	concurrency, _ := cmd.Flags().GetInt("concurrency")

	return mirror.New(ref, insecure,
		mirror.WithConcurrency(concurrency),
		mirror.WithLogger(logger),
		mirror.WithCredentials(mirror.Credentials{
			Username: viper.GetString("registry_username"),
			Password: viper.GetString("registry_password"),
		}),
	)
}

func runExport(cmd *cobra.Command, args []string) (err error) {
	m, err := newMirror(cmd, args[0])
	if err != nil {
		return err
	}

	b, err := openBackend()
	if err != nil {
		return err
	}
	defer closeBackend(b, &err)

	stats, err := m.Export(cmd.Context(), b)
	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "exported %d objects in %d layers to %s\n", stats.Objects, stats.Layers, m)
	return nil
}

func runImport(cmd *cobra.Command, args []string) (err error) {
	m, err := newMirror(cmd, args[0])
	if err != nil {
		return err
	}

	b, err := openBackend()
	if err != nil {
		return err
	}
	defer closeBackend(b, &err)

	stats, err := m.Import(cmd.Context(), b)
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "imported %d objects (%d already present) from %s\n", stats.Objects, stats.Skipped, m)
	return nil
}
