// Package report summarizes an evaluation run for the terminal and for disk.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/montanaflynn/stats"
	"github.com/nvr-ai/go-ml-eval/evaluation"
	"github.com/nvr-ai/go-ml-eval/profiler"
	"github.com/pkg/errors"
)

// SummaryFile is the name Save writes in the report directory.
const SummaryFile = "summary.json"

// Meta describes the inputs of a run.
type Meta struct {
	Dataset  string `json:"dataset"`
	Split    string `json:"split"`
	Model    string `json:"model"`
	Detector string `json:"detector"`
	TopK     int    `json:"top_k"`
}

// APStats describes the distribution of per-image AP.
type APStats struct {
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	StdDev float64 `json:"std_dev"`
}

// Summary is the persisted record of one evaluation run.
type Summary struct {
	RunID        string                    `json:"run_id"`
	CreatedAt    time.Time                 `json:"created_at"`
	Meta         Meta                      `json:"meta"`
	Images       int                       `json:"images"`
	MAP          float64                   `json:"map"`
	IoUThreshold float64                   `json:"iou_threshold"`
	AP           APStats                   `json:"ap"`
	Timings      []profiler.OperationStats `json:"timings,omitempty"`
	Memory       profiler.MemoryMetrics    `json:"memory"`
	PerImage     []evaluation.ImageResult  `json:"per_image"`
}

// NewSummary builds a summary of res.
func NewSummary(res *evaluation.Result, meta Meta, timings []profiler.OperationStats) (*Summary, error) {
	ap, err := computeAPStats(res.AP())
	if err != nil {
		return nil, err
	}

	return &Summary{
		RunID:        uuid.New().String(),
		CreatedAt:    time.Now().UTC(),
		Meta:         meta,
		Images:       len(res.Images),
		MAP:          res.MAP,
		IoUThreshold: res.IoUThreshold,
		AP:           ap,
		Timings:      timings,
		Memory:       profiler.Memory(),
		PerImage:     res.Images,
	}, nil
}

func computeAPStats(aps []float64) (APStats, error) {
	if len(aps) == 0 {
		return APStats{}, nil
	}

	data := stats.Float64Data(aps)
	var (
		s   APStats
		err error
	)
	if s.Mean, err = data.Mean(); err != nil {
		return APStats{}, errors.Wrap(err, "failed to compute mean")
	}
	if s.Median, err = data.Median(); err != nil {
		return APStats{}, errors.Wrap(err, "failed to compute median")
	}
	if s.Min, err = data.Min(); err != nil {
		return APStats{}, errors.Wrap(err, "failed to compute min")
	}
	if s.Max, err = data.Max(); err != nil {
		return APStats{}, errors.Wrap(err, "failed to compute max")
	}
	if s.StdDev, err = data.StandardDeviation(); err != nil {
		return APStats{}, errors.Wrap(err, "failed to compute standard deviation")
	}
	return s, nil
}

// Headline is the one-line result printed after an evaluation, e.g.
// "mAP@0.5 over 50 images: 0.4213".
func Headline(res *evaluation.Result) string {
	return fmt.Sprintf("mAP@%g over %d images: %.4f", res.IoUThreshold, len(res.Images), res.MAP)
}

// Render writes the per-image table, AP statistics and stage timings.
func Render(w io.Writer, s *Summary) error {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"#", "Image", "GT", "Predictions", "TP", "FP", "AP"})
	for i, img := range s.PerImage {
		t.AppendRow(table.Row{i, img.ID, img.GroundTruth, img.Predictions, img.TruePositives, img.FalsePositives, fmt.Sprintf("%.4f", img.AP)})
	}
	t.AppendFooter(table.Row{"", "", "", "", "", fmt.Sprintf("mAP@%g", s.IoUThreshold), fmt.Sprintf("%.4f", s.MAP)})
	t.SetColumnConfigs([]table.ColumnConfig{{Number: 7, Align: text.AlignRight, AlignFooter: text.AlignRight}})

	a := table.NewWriter()
	a.AppendHeader(table.Row{"Mean", "Median", "Min", "Max", "Std Dev"})
	a.AppendRow(table.Row{
		fmt.Sprintf("%.4f", s.AP.Mean),
		fmt.Sprintf("%.4f", s.AP.Median),
		fmt.Sprintf("%.4f", s.AP.Min),
		fmt.Sprintf("%.4f", s.AP.Max),
		fmt.Sprintf("%.4f", s.AP.StdDev),
	})

	out := t.Render() + "\n" + a.Render() + "\n"

	if len(s.Timings) > 0 {
		p := table.NewWriter()
		p.AppendHeader(table.Row{"Stage", "Count", "Total", "Mean", "Min", "Max"})
		for _, op := range s.Timings {
			p.AppendRow(table.Row{
				op.Name,
				op.Count,
				op.Total.Truncate(time.Microsecond),
				op.Mean.Truncate(time.Microsecond),
				op.Min.Truncate(time.Microsecond),
				op.Max.Truncate(time.Microsecond),
			})
		}
		out += p.Render() + "\n"
	}

	_, err := io.WriteString(w, out)
	return err
}

// Save writes s as indented JSON to dir/summary.json and returns the path.
func Save(dir string, s *Summary) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrap(err, "failed to create report directory")
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal summary")
	}

	path := filepath.Join(dir, SummaryFile)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", errors.Wrap(err, "failed to write summary")
	}
	return path, nil
}

// Load reads a summary written by Save.
func Load(path string) (*Summary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read summary")
	}

	var s Summary
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, errors.Wrap(err, "failed to parse summary")
	}
	return &s, nil
}
