package cmd

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/aweris/docodb"
)

var existsCmd = &cobra.Command{
	Use:   "exists <id>",
	Short: "Check whether an object is stored",
	Args:  cobra.ExactArgs(1),
	RunE:  runExists,
}

var catCmd = &cobra.Command{
	Use:   "cat <id-or-prefix>",
	Short: "Print an object's payload",
	Long:  "Print the payload of the object whose ID is, or starts with, the argument.",
	Args:  cobra.ExactArgs(1),
	RunE:  runCat,
}

var headerCmd = &cobra.Command{
	Use:   "header <id-or-prefix>",
	Short: "Print an object's kind and length",
	Args:  cobra.ExactArgs(1),
	RunE:  runHeader,
}

var putCmd = &cobra.Command{
	Use:   "put <file>",
	Short: "Store a file as an object",
	Long:  "Store a file, or stdin when the file is \"-\", as an object and print its ID.",
	Args:  cobra.ExactArgs(1),
	RunE:  runPut,
}

func init() {
	putCmd.Flags().String("kind", "blob", "object kind: blob, tree, commit or tag")
	putCmd.Flags().Int("chunk-size", 64*1024, "bytes sent per write stream chunk")

	rootCmd.AddCommand(existsCmd, catCmd, headerCmd, putCmd)
}

func runExists(cmd *cobra.Command, args []string) (err error) {
	id, err := docodb.ParseID(args[0])
	if err != nil {
		return err
	}

	b, err := openBackend()
	if err != nil {
		return err
	}
	defer closeBackend(b, &err)

	fmt.Fprintln(cmd.OutOrStdout(), b.Exists(cmd.Context(), id))
	return nil
}

func runCat(cmd *cobra.Command, args []string) (err error) {
	b, err := openBackend()
	if err != nil {
		return err
	}
	defer closeBackend(b, &err)

	obj, err := b.ReadByPrefix(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(obj.Payload)
	return err
}

func runHeader(cmd *cobra.Command, args []string) (err error) {
	b, err := openBackend()
	if err != nil {
		return err
	}
	defer closeBackend(b, &err)

	id, err := resolveID(cmd.Context(), b, args[0])
	if err != nil {
		return err
	}
	kind, length, err := b.ReadHeader(cmd.Context(), id)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s %s %d\n", id, kind, length)
	return nil
}

func runPut(cmd *cobra.Command, args []string) (err error) {
	kindName, _ := cmd.Flags().GetString("kind")
	kind, err := docodb.ParseKind(kindName)
	if err != nil {
		return err
	}
	chunkSize, _ := cmd.Flags().GetInt("chunk-size")
	if chunkSize <= 0 {
		return fmt.Errorf("chunk size must be positive")
	}

	var data []byte
	if args[0] == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(args[0])
	}
	if err != nil {
		return err
	}

	id, err := docodb.ComputeID(kind, data)
	if err != nil {
		return err
	}

	b, err := openBackend()
	if err != nil {
		return err
	}
	defer closeBackend(b, &err)

	ctx := cmd.Context()
	if b.Exists(ctx, id) {
		logger.Debug("object already stored", "id", id)
		fmt.Fprintln(cmd.OutOrStdout(), id)
		return nil
	}

	w, err := b.OpenWriteStream(kind, int64(len(data)))
	if err != nil {
		return err
	}
	r := bytes.NewReader(data)
	for r.Len() > 0 {
		if err := w.Append(r, int64(min(chunkSize, r.Len()))); err != nil {
			return err
		}
	}
	if err := w.Finalize(ctx, id); err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), id)
	return nil
}

func closeBackend(b *docodb.Backend, err *error) {
	if cerr := b.Close(); cerr != nil && *err == nil {
		*err = cerr
	}
}
