package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/flowhawk/internal/classifier"
	"github.com/telhawk-systems/flowhawk/internal/dataset"
	"github.com/telhawk-systems/flowhawk/internal/output"
	"github.com/telhawk-systems/flowhawk/internal/pipeline"
	"github.com/telhawk-systems/flowhawk/internal/tabular"
)

var predictCmd = &cobra.Command{
	Use:   "predict <log>",
	Short: "Classify the flows of a log",
	Long: `Runs the classifier over every row of a connection log, feature table
or flow export and prints one verdict per row followed by a per-class
summary. With --follow the log is tailed until interrupted.`,
	Example: `  flowhawk predict conn.log --limit 100
  flowhawk predict /var/log/zeek/current/conn.log --follow --skip-existing`,
	Args: cobra.ExactArgs(1),
	RunE: runPredict,
}

// ClassCount is one line of the prediction summary.
type ClassCount struct {
	Class string `json:"class" yaml:"class"`
	Count int    `json:"count" yaml:"count"`
}

// PredictSummary is printed when a prediction run ends.
type PredictSummary struct {
	Processed int            `json:"processed" yaml:"processed"`
	Skipped   int            `json:"skipped" yaml:"skipped"`
	Classes   []ClassCount   `json:"classes" yaml:"classes"`
	Reasons   map[string]int `json:"reasons,omitempty" yaml:"reasons,omitempty"`
}

func runPredict(cmd *cobra.Command, args []string) error {
	path := args[0]
	modelPath, _ := cmd.Flags().GetString("model")
	follow, _ := cmd.Flags().GetBool("follow")
	skipExisting, _ := cmd.Flags().GetBool("skip-existing")
	poll, _ := cmd.Flags().GetDuration("sleep")
	limit, _ := cmd.Flags().GetInt("limit")
	printProbs, _ := cmd.Flags().GetBool("print-probs")
	if modelPath == "" {
		modelPath = cfg.Model.Path
	}

	adapter, err := classifier.Load(modelPath)
	if err != nil {
		return fmt.Errorf("load classifier %s: %w", modelPath, err)
	}
	p, err := pipeline.New(adapter, nil)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		src  pipeline.Source
		kind dataset.Kind
	)
	if follow {
		// The header of a tailed log may not exist yet; Run detects the
		// kind from the first row.
		t, err := tabular.OpenTail(path, tabular.TailOptions{
			Follow:       true,
			SkipExisting: skipExisting,
			PollInterval: poll,
		})
		if err != nil {
			return err
		}
		defer t.Close()
		src = pipeline.FromTail(t)
	} else {
		rc, err := tabular.Open(path)
		if err != nil {
			return err
		}
		defer rc.Close()
		r, err := tabular.NewReader(rc)
		if err != nil {
			return err
		}
		if kind, err = p.Detector().Detect(r.Header()); err != nil {
			return err
		}
		src = pipeline.FromReader(r)
	}

	counts := make(map[string]int)
	table := printer.Format() == output.FormatTable
	processed := 0
	st, err := p.Run(ctx, kind, src, func(res pipeline.Result) error {
		processed++
		counts[res.Prediction.ClassName]++
		if table {
			printVerdict(printer.Writer(), res, printProbs)
		}
		if limit > 0 && processed >= limit {
			return pipeline.ErrStop
		}
		return nil
	})
	if err != nil && ctx.Err() == nil {
		return err
	}

	return printSummary(PredictSummary{
		Processed: st.Alerts,
		Skipped:   st.Skipped,
		Classes:   rankClasses(counts),
		Reasons:   st.Reasons,
	})
}

func printVerdict(w io.Writer, res pipeline.Result, probs bool) {
	uid := "NA"
	if res.Record != nil && res.Record.UID != "" {
		uid = res.Record.UID
	}
	a := res.Alert
	fmt.Fprintf(w, "[%s] uid=%s %s:%d -> %s:%d => %s (score=%.3f)\n",
		a.Timestamp.UTC().Format(time.RFC3339), uid,
		a.SrcIP, a.SrcPort, a.DstIP, a.DstPort,
		res.Prediction.ClassName, res.Prediction.Score)
	if probs {
		data, _ := json.Marshal(res.Prediction.Probabilities)
		fmt.Fprintf(w, "   probs=%s\n", data)
	}
}

func printSummary(s PredictSummary) error {
	if ok, err := printer.Structured(s); ok {
		return err
	}
	if s.Processed == 0 {
		printer.Warn("No rows were classified. Check that the log contains data.")
		return nil
	}

	fmt.Fprintln(printer.Writer())
	printer.Info("Prediction summary (%d rows)", s.Processed)
	t := output.NewTable([]string{"CLASS", "ROWS"})
	for _, c := range s.Classes {
		t.AddRow([]string{c.Class, fmt.Sprint(c.Count)})
	}
	t.Render(printer.Writer())
	if s.Skipped > 0 {
		printer.Warn("Skipped %d rows", s.Skipped)
		t := output.NewTable([]string{"REASON", "ROWS"})
		for _, reason := range sortedKeys(s.Reasons) {
			t.AddRow([]string{reason, fmt.Sprint(s.Reasons[reason])})
		}
		t.Render(printer.Writer())
	}
	return nil
}

// rankClasses orders classes by count, most frequent first, then by name.
func rankClasses(counts map[string]int) []ClassCount {
	out := make([]ClassCount, 0, len(counts))
	for class, n := range counts {
		out = append(out, ClassCount{Class: class, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Class < out[j].Class
	})
	return out
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func init() {
	rootCmd.AddCommand(predictCmd)

	predictCmd.Flags().String("model", "", "classifier artifact (default: model.path from config)")
	predictCmd.Flags().Bool("follow", false, "keep waiting for appended rows (tail -f)")
	predictCmd.Flags().Bool("skip-existing", false, "with --follow, only classify rows appended after start")
	predictCmd.Flags().Duration("sleep", time.Second, "poll interval while following")
	predictCmd.Flags().Int("limit", 0, "stop after this many classified rows (0 = all)")
	predictCmd.Flags().Bool("print-probs", false, "print the class probability vector of every row")
}
