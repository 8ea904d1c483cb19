package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"stream-anomaly-detector/analytics"
	"stream-anomaly-detector/models"
)

func newReplayCommand(opts *options) *cobra.Command {
	var anomaliesOnly bool

	cmd := &cobra.Command{
		Use:   "replay [file]",
		Short: "Classify newline separated values from a file or stdin",
		Long: `replay feeds every value through a fresh classifier in order and prints one
row per sample. Blank lines and lines starting with # are skipped. The same
input always produces the same output.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return errors.Wrap(err, "open input")
				}
				defer f.Close()
				in = f
			}

			classifier, err := analytics.NewAnomalyClassifier(opts.cfg.Detector)
			if err != nil {
				return err
			}
			return replay(in, cmd.OutOrStdout(), classifier, anomaliesOnly)
		},
	}
	cmd.Flags().BoolVarP(&anomaliesOnly, "anomalies", "A", false, "print anomalous samples only")
	return cmd
}

func replay(in io.Reader, out io.Writer, classifier *analytics.AnomalyClassifier, anomaliesOnly bool) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "INDEX\tVALUE\tMEAN\tSTDDEV\tZ-SCORE\tANOMALY")

	var (
		values    []float64
		anomalies int
		index     uint64
		lineNo    int
	)

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		value, err := strconv.ParseFloat(line, 64)
		if err != nil {
			return errors.Wrapf(err, "line %d", lineNo)
		}

		record, err := classifier.Process(models.Sample{Index: index, Value: value, Timestamp: time.Now()})
		if err != nil {
			return errors.Wrapf(err, "line %d", lineNo)
		}
		index++
		values = append(values, value)

		if record.IsAnomaly {
			anomalies++
		} else if anomaliesOnly {
			continue
		}

		zScore := strconv.FormatFloat(record.ZScore, 'f', 2, 64)
		if record.WindowCount < classifier.MinHistory() {
			zScore = "N/A"
		}
		fmt.Fprintf(w, "%d\t%.2f\t%.2f\t%.2f\t%s\t%t\n",
			record.Sample.Index, value, record.Mean, record.StdDev, zScore, record.IsAnomaly)
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrap(err, "read input")
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if len(values) == 0 {
		fmt.Fprintln(out, "no samples")
		return nil
	}
	mean, _ := stats.Mean(values)
	stddev, _ := stats.StandardDeviationPopulation(values)
	fmt.Fprintf(out, "\nsamples=%d anomalies=%d mean=%.4f stddev=%.4f\n", len(values), anomalies, mean, stddev)
	return nil
}
