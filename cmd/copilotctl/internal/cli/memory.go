package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

func init() {
	memoryCmd := &cobra.Command{
		Use:   "memory",
		Short: "Subject memory export and import",
	}

	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Export a subject's history, insights and memory as JSON",
		Run:   runMemoryExport,
	}
	exportCmd.Flags().Int64("subject", 0, "Subject id (required)")
	exportCmd.MarkFlagRequired("subject")

	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Import a dump produced by export",
		Long:  "Import a dump produced by export. Reads --file, or stdin when --file is omitted.",
		Run:   runMemoryImport,
	}
	importCmd.Flags().Int64("subject", 0, "Subject id (required)")
	importCmd.Flags().String("file", "", "Dump file (default: stdin)")
	importCmd.MarkFlagRequired("subject")

	memoryCmd.AddCommand(exportCmd, importCmd)
	RootCmd.AddCommand(memoryCmd)
}

func runMemoryExport(cmd *cobra.Command, args []string) {
	subject, _ := cmd.Flags().GetInt64("subject")

	dump, err := newClient().Export(cmd.Context(), subject)
	if err != nil {
		exitErr("export", err)
	}
	printJSON(dump)
}

func runMemoryImport(cmd *cobra.Command, args []string) {
	subject, _ := cmd.Flags().GetInt64("subject")
	path, _ := cmd.Flags().GetString("file")

	var (
		data []byte
		err  error
	)
	if path == "" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		exitErr("read dump", err)
	}
	if !json.Valid(data) {
		exitErr("import", fmt.Errorf("dump is not valid JSON"))
	}

	result, err := newClient().Import(cmd.Context(), subject, data)
	if err != nil {
		exitErr("import", err)
	}
	printJSON(result)
}
