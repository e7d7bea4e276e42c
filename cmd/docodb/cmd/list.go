package cmd

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/cobra"

	"github.com/aweris/docodb"
)

var lsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List stored object IDs",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

var fsckCmd = &cobra.Command{
	Use:   "fsck",
	Short: "Verify every stored object",
	Long:  "Read every stored object and check that its payload hashes to its ID and matches its recorded length.",
	Args:  cobra.NoArgs,
	RunE:  runFsck,
}

func init() {
	lsCmd.Flags().Int("limit", 0, "stop after this many IDs (0 lists all)")
	fsckCmd.Flags().Int("concurrency", 8, "objects verified in parallel")

	rootCmd.AddCommand(lsCmd, fsckCmd)
}

func runList(cmd *cobra.Command, args []string) (err error) {
	limit, _ := cmd.Flags().GetInt("limit")

	b, err := openBackend()
	if err != nil {
		return err
	}
	defer closeBackend(b, &err)

	out := cmd.OutOrStdout()
	count := 0
	err = b.ForEach(cmd.Context(), func(id docodb.ID) error {
		fmt.Fprintln(out, id)
		count++
		if limit > 0 && count >= limit {
			return docodb.ErrStop
		}
		return nil
	})
	if err != nil {
		return err
	}

	if count == 0 {
		fmt.Fprintln(cmd.ErrOrStderr(), "(no objects)")
	}
	return nil
}

func runFsck(cmd *cobra.Command, args []string) (err error) {
	concurrency, _ := cmd.Flags().GetInt("concurrency")

	b, err := openBackend()
	if err != nil {
		return err
	}
	defer closeBackend(b, &err)

	var ids []docodb.ID
	if err := b.ForEach(cmd.Context(), func(id docodb.ID) error {
		ids = append(ids, id)
		return nil
	}); err != nil {
		return err
	}

	var mu sync.Mutex
	var problems []string
	report := func(format string, args ...any) {
		mu.Lock()
		problems = append(problems, fmt.Sprintf(format, args...))
		mu.Unlock()
	}

	p := pool.New().WithMaxGoroutines(max(concurrency, 1)).WithContext(cmd.Context())
	for _, id := range ids {
		p.Go(func(ctx context.Context) error {
			obj, err := b.Read(ctx, id)
			if err != nil {
				report("%s: %v", id, err)
				return nil
			}
			if obj.Length != int64(len(obj.Payload)) {
				report("%s: recorded length %d, payload has %d bytes", id, obj.Length, len(obj.Payload))
			}
			if len(id) == docodb.SHA1HexSize {
				if got, err := docodb.ComputeID(obj.Kind, obj.Payload); err != nil || got != id {
					report("%s: payload hashes to %s", id, got)
				}
			}
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, problem := range problems {
		fmt.Fprintln(out, problem)
	}
	fmt.Fprintf(out, "checked %d objects, %d problems\n", len(ids), len(problems))

	if len(problems) > 0 {
		return errors.New("object database is inconsistent")
	}
	return nil
}
