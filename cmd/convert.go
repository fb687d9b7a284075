package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/flowhawk/internal/convert"
	"github.com/telhawk-systems/flowhawk/internal/output"
	"github.com/telhawk-systems/flowhawk/internal/tabular"
)

var convertCmd = &cobra.Command{
	Use:   "convert <flow-export>",
	Short: "Convert a flow export to a connection log",
	Long: `Reads a CICFlowMeter style flow export (CSV, optionally gzipped) and
writes the equivalent connection log. Rows that cannot be converted are
skipped and counted.`,
	Example: `  flowhawk convert Friday-WorkingHours.pcap_ISCX.csv -f conn.csv
  flowhawk convert flows.csv.gz --name friday > conn.csv`,
	Args: cobra.ExactArgs(1),
	RunE: runConvert,
}

func runConvert(cmd *cobra.Command, args []string) error {
	input := args[0]
	outPath, _ := cmd.Flags().GetString("file")
	name, _ := cmd.Flags().GetString("name")
	if name == "" {
		name = datasetName(input)
	}

	src, err := tabular.Open(input)
	if err != nil {
		return err
	}
	defer src.Close()

	var dst io.Writer = cmd.OutOrStdout()
	report := printer
	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer f.Close()
		dst = f
	} else {
		// Rows go to stdout, so the report must not.
		report = output.New(cmd.ErrOrStderr(), printer.Format())
	}

	stats, err := convert.NewConverter(name, filepath.Base(input)).Convert(cmd.Context(), src, dst)
	if err != nil {
		return err
	}

	if ok, err := report.Structured(stats); ok {
		return err
	}
	report.Success("Converted %d rows from %s", stats.Written, input)
	if stats.Skipped > 0 {
		report.Warn("Skipped %d rows", stats.Skipped)
		t := output.NewTable([]string{"REASON", "ROWS"})
		for _, reason := range sortedKeys(stats.Reasons) {
			t.AddRow([]string{reason, fmt.Sprint(stats.Reasons[reason])})
		}
		t.Render(report.Writer())
	}
	return nil
}

// datasetName strips directories and every extension from path.
func datasetName(path string) string {
	base := filepath.Base(path)
	if i := strings.Index(base, "."); i > 0 {
		return base[:i]
	}
	return base
}

func init() {
	rootCmd.AddCommand(convertCmd)

	convertCmd.Flags().StringP("file", "f", "", "write the connection log to this file instead of stdout")
	convertCmd.Flags().String("name", "", "dataset name stamped on every row (default: input file name)")
}
