// Package pipeline wires a dataset source and a detector into the visualize
// and evaluate workflows.
package pipeline

import (
	"context"
	"io"
	"path/filepath"

	"github.com/edaniels/golog"
	"github.com/nvr-ai/go-ml-eval/dataset"
	"github.com/nvr-ai/go-ml-eval/detector"
	"github.com/nvr-ai/go-ml-eval/evaluation"
	"github.com/nvr-ai/go-ml-eval/models"
	"github.com/nvr-ai/go-ml-eval/models/postprocess"
	"github.com/nvr-ai/go-ml-eval/profiler"
	"github.com/nvr-ai/go-ml-eval/visualize"
	"github.com/pkg/errors"
)

// Stage names recorded in Timings.
const (
	StageLoad     = "load"
	StagePredict  = "predict"
	StageEvaluate = "evaluate"
	StageDraw     = "draw"
	StageSave     = "save"
)

// EvaluateOptions configures Evaluate.
type EvaluateOptions struct {
	// Num limits the number of images; 0 evaluates the whole source.
	Num int
	// TopK keeps the K highest scoring detections per image; 0 keeps all.
	TopK int
	// IoUThreshold for a true positive; 0 selects evaluation.DefaultIoUThreshold.
	IoUThreshold float64
	// Recorder, when set, receives every image's detections.
	Recorder *detector.PredictionFile
}

// VisualizeOptions configures Visualize.
type VisualizeOptions struct {
	// Num limits the number of images; 0 renders the whole source.
	Num    int
	OutDir string
	// ScoreThreshold hides low-confidence detections.
	ScoreThreshold float64
	// Labels names classes in captions.
	Labels *models.OutputClassSet
	// GroundTruth also outlines the annotated boxes.
	GroundTruth bool
}

// Pipeline runs workflows and records their stage timings.
type Pipeline struct {
	logger  golog.Logger
	timings *profiler.Timings
}

// New creates a pipeline.
func New(logger golog.Logger) *Pipeline {
	return &Pipeline{logger: logger, timings: profiler.NewTimings()}
}

// Timings returns the stage timings of every workflow run so far.
func (p *Pipeline) Timings() []profiler.OperationStats {
	return p.timings.Stats()
}

// next reads one sample, timing the load stage. It returns nil at the end of
// the source.
func (p *Pipeline) next(ctx context.Context, src dataset.Source) (*dataset.Sample, error) {
	done := p.timings.StartOperation(StageLoad)
	defer done()

	s, err := src.Next(ctx)
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to load sample")
	}
	return s, nil
}

func (p *Pipeline) predict(ctx context.Context, det detector.Detector, s *dataset.Sample) ([]postprocess.Result, error) {
	done := p.timings.StartOperation(StagePredict)
	defer done()

	results, err := det.Predict(ctx, detector.Frame{ID: s.ID, Image: s.Image})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to predict %s", s.ID)
	}
	return results, nil
}

// Evaluate runs det over src and computes the mean AP of the top-K
// detections per image. An empty source yields a result with mAP 0.
func (p *Pipeline) Evaluate(ctx context.Context, src dataset.Source, det detector.Detector, opts EvaluateOptions) (*evaluation.Result, error) {
	src = dataset.Take(src, opts.Num)
	e := evaluation.NewEvaluator(opts.IoUThreshold)

	for {
		s, err := p.next(ctx, src)
		if err != nil {
			return nil, err
		}
		if s == nil {
			break
		}

		results, err := p.predict(ctx, det, s)
		if err != nil {
			return nil, err
		}
		results = postprocess.TopK(results, opts.TopK)

		if opts.Recorder != nil {
			opts.Recorder.Predictions = append(opts.Recorder.Predictions, detector.Prediction{ID: s.ID, Detections: results})
		}

		done := p.timings.StartOperation(StageEvaluate)
		img := e.Add(evaluation.Record{ID: s.ID, GroundTruth: s.Boxes, Detections: results})
		done()

		p.logger.Debugw("evaluated image",
			"id", s.ID,
			"ap", img.AP,
			"gt", img.GroundTruth,
			"tp", img.TruePositives,
			"fp", img.FalsePositives,
		)
	}

	return e.Result(), nil
}

// Visualize draws det's detections for the images of src and writes them to
// opts.OutDir as viz_0000.png, viz_0001.png, ... It returns the written paths.
func (p *Pipeline) Visualize(ctx context.Context, src dataset.Source, det detector.Detector, opts VisualizeOptions) ([]string, error) {
	src = dataset.Take(src, opts.Num)

	drawOpts := visualize.DefaultOptions()
	drawOpts.ScoreThreshold = opts.ScoreThreshold
	drawOpts.Labels = opts.Labels

	var paths []string
	for i := 0; ; i++ {
		s, err := p.next(ctx, src)
		if err != nil {
			return paths, err
		}
		if s == nil {
			break
		}

		results, err := p.predict(ctx, det, s)
		if err != nil {
			return paths, err
		}

		drawOpts.GroundTruth = nil
		if opts.GroundTruth {
			drawOpts.GroundTruth = s.Boxes
		}

		done := p.timings.StartOperation(StageDraw)
		img := visualize.Draw(s.Image, results, drawOpts)
		done()

		path := filepath.Join(opts.OutDir, visualize.FileName(i))
		done = p.timings.StartOperation(StageSave)
		err = visualize.SavePNG(path, img)
		done()
		if err != nil {
			return paths, err
		}

		p.logger.Debugw("visualized image", "id", s.ID, "detections", len(results), "path", path)
		paths = append(paths, path)
	}

	return paths, nil
}
