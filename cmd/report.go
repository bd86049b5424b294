package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/inference-sim/inference-replay/replay"
	"github.com/inference-sim/inference-replay/replay/sink"
)

var reportJSON bool // print the report as JSON

// reportCmd summarizes an existing results file
var reportCmd = &cobra.Command{
	Use:   "report <results.jsonl>",
	Short: "Summarize the results file of a previous replay",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := writeReport(args[0], reportJSON, os.Stdout); err != nil {
			logrus.Fatalf("Report failed: %v", err)
		}
	},
}

func writeReport(path string, asJSON bool, out io.Writer) error {
	records, err := sink.ReadJSONL(path)
	if err != nil {
		return err
	}
	summary := replay.NewSummary()
	for _, rec := range records {
		_ = summary.Append(rec)
	}
	report := summary.Report()
	if !asJSON {
		report.Print(out)
		return nil
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}

func init() {
	reportCmd.Flags().BoolVar(&reportJSON, "json", false, "Print the report as JSON")
}
