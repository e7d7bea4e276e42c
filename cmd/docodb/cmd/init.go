package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Prepare the document store",
	Long:  "Create the index and mapping on stores that need one. Other drivers need no setup.",
	Args:  cobra.NoArgs,
	RunE:  runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

type indexCreator interface {
	EnsureIndex(ctx context.Context) error
}

func runInit(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	creator, ok := store.(indexCreator)
	if !ok {
		fmt.Fprintf(cmd.OutOrStdout(), "driver %s needs no initialization\n", viper.GetString("driver"))
		return nil
	}
	if err := creator.EnsureIndex(cmd.Context()); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "index ready")
	return nil
}
