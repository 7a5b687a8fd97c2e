package main

import (
	"fmt"

	"github.com/edaniels/golog"
	"github.com/nvr-ai/go-ml-eval/config"
	"github.com/nvr-ai/go-ml-eval/dataset"
	"github.com/nvr-ai/go-ml-eval/detector"
	"github.com/nvr-ai/go-ml-eval/evaluation"
	"github.com/nvr-ai/go-ml-eval/models"
	"github.com/nvr-ai/go-ml-eval/pipeline"
	"github.com/nvr-ai/go-ml-eval/report"
	"github.com/nvr-ai/go-ml-eval/visualize"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
)

const (
	// Global flags.
	flagDataset  = "dataset"
	flagSplit    = "split"
	flagSize     = "size"
	flagModel    = "model"
	flagDetector = "detector"
	flagLabels   = "labels"
	flagConfig   = "config"
	flagDebug    = "debug"

	// Command flags.
	flagOutDir          = "outdir"
	flagNum             = "num"
	flagScoreThresh     = "score-thresh"
	flagTopK            = "topk"
	flagIoUThresh       = "iou-thresh"
	flagReportDir       = "report-dir"
	flagPRCurve         = "pr-curve"
	flagSavePredictions = "save-predictions"
)

// maxPRCurves bounds the number of per-image curves in the PR plot.
const maxPRCurves = 8

type runner struct {
	cfg    *config.Config
	logger golog.Logger
}

func newApp() *cli.App {
	r := &runner{}
	defaults := config.Default()

	return &cli.App{
		Name:            "detection-eval",
		Usage:           "visualize and score object detections",
		HideHelpCommand: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  flagDataset,
				Usage: "manifest `FILE` or Pascal VOC directory",
			},
			&cli.StringFlag{
				Name:  flagSplit,
				Value: defaults.Dataset.Split,
				Usage: "split with optional slice, e.g. validation[:50]",
			},
			&cli.IntFlag{
				Name:  flagSize,
				Value: defaults.Dataset.Size,
				Usage: "resize images to `N`xN, 0 keeps the original size",
			},
			&cli.StringFlag{
				Name:  flagModel,
				Usage: "model `FILE`, or predictions file for the replay detector",
			},
			&cli.StringFlag{
				Name:  flagDetector,
				Value: string(defaults.Detector.Kind),
				Usage: "detector kind: opencv, onnx or replay",
			},
			&cli.StringFlag{
				Name:  flagLabels,
				Value: string(defaults.Visualize.Labels),
				Usage: "label map of the detector classes: coco or voc",
			},
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Usage:   "load configuration from `FILE`",
			},
			&cli.BoolFlag{
				Name:  flagDebug,
				Usage: "enable debug logging",
			},
		},
		Before: r.before,
		Action: func(c *cli.Context) error {
			return cli.ShowAppHelp(c)
		},
		Commands: []*cli.Command{
			{
				Name:  "visualize",
				Usage: "draw detections over the first images of the split",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  flagOutDir,
						Value: defaults.Visualize.OutDir,
						Usage: "write images to `DIR`",
					},
					&cli.IntFlag{
						Name:  flagNum,
						Value: defaults.Visualize.Num,
						Usage: "number of images",
					},
					&cli.Float64Flag{
						Name:  flagScoreThresh,
						Value: defaults.Visualize.ScoreThreshold,
						Usage: "hide detections below this score",
					},
				},
				Action: r.visualize,
			},
			{
				Name:  "evaluate",
				Usage: "compute mAP@0.5 over the split",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  flagNum,
						Value: defaults.Evaluate.Num,
						Usage: "number of images, 0 evaluates the whole split",
					},
					&cli.IntFlag{
						Name:  flagTopK,
						Value: defaults.Evaluate.TopK,
						Usage: "keep the K highest scoring detections per image",
					},
					&cli.Float64Flag{
						Name:  flagIoUThresh,
						Value: defaults.Evaluate.IoUThreshold,
						Usage: "IoU needed for a true positive",
					},
					&cli.StringFlag{
						Name:  flagReportDir,
						Usage: "write summary.json to `DIR`",
					},
					&cli.StringFlag{
						Name:  flagPRCurve,
						Usage: "plot per-image precision/recall curves to `FILE`",
					},
					&cli.StringFlag{
						Name:  flagSavePredictions,
						Usage: "record detections to `FILE` for the replay detector",
					},
				},
				Action: r.evaluate,
			},
		},
	}
}

// before sets up logging and resolves the configuration shared by every
// command: the config file, then explicitly set global flags.
func (r *runner) before(c *cli.Context) error {
	if c.Bool(flagDebug) {
		r.logger = golog.NewDebugLogger("detection-eval")
	} else {
		r.logger = golog.NewLogger("detection-eval")
	}

	r.cfg = config.Default()
	if path := c.String(flagConfig); path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return err
		}
		r.cfg = cfg
	}

	if c.IsSet(flagDataset) {
		r.cfg.Dataset.Path = c.String(flagDataset)
	}
	if c.IsSet(flagSplit) {
		r.cfg.Dataset.Split = c.String(flagSplit)
	}
	if c.IsSet(flagSize) {
		r.cfg.Dataset.Size = c.Int(flagSize)
	}
	if c.IsSet(flagModel) {
		r.cfg.Detector.ModelPath = c.String(flagModel)
	}
	if c.IsSet(flagDetector) {
		r.cfg.Detector.Kind = detector.Kind(c.String(flagDetector))
	}
	if c.IsSet(flagLabels) {
		r.cfg.Visualize.Labels = models.ModelFamily(c.String(flagLabels))
	}
	return nil
}

func (r *runner) open() (*dataset.Loader, detector.Detector, error) {
	if err := r.cfg.Validate(); err != nil {
		return nil, nil, errors.Wrap(err, "invalid configuration")
	}

	src, err := dataset.Open(dataset.Options{
		Path:    r.cfg.Dataset.Path,
		Split:   r.cfg.Dataset.Split,
		Size:    r.cfg.Dataset.Size,
		Workers: r.cfg.Dataset.Workers,
	}, r.logger)
	if err != nil {
		return nil, nil, err
	}

	det, err := detector.New(r.cfg.Detector, r.logger)
	if err != nil {
		return nil, nil, err
	}
	r.logger.Infow("opened dataset", "path", r.cfg.Dataset.Path, "split", r.cfg.Dataset.Split, "images", src.Len())
	return src, det, nil
}

func (r *runner) visualize(c *cli.Context) (err error) {
	if c.IsSet(flagOutDir) {
		r.cfg.Visualize.OutDir = c.String(flagOutDir)
	}
	if c.IsSet(flagNum) {
		r.cfg.Visualize.Num = c.Int(flagNum)
	}
	if c.IsSet(flagScoreThresh) {
		r.cfg.Visualize.ScoreThreshold = c.Float64(flagScoreThresh)
	}

	src, det, err := r.open()
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, det.Close())
	}()

	paths, err := pipeline.New(r.logger).Visualize(c.Context, src, det, pipeline.VisualizeOptions{
		Num:            r.cfg.Visualize.Num,
		OutDir:         r.cfg.Visualize.OutDir,
		ScoreThreshold: r.cfg.Visualize.ScoreThreshold,
		Labels:         models.LookupSet(r.cfg.Visualize.Labels),
		GroundTruth:    true,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(c.App.Writer, "wrote %d images to %s\n", len(paths), r.cfg.Visualize.OutDir)
	return nil
}

func (r *runner) evaluate(c *cli.Context) (err error) {
	ev := &r.cfg.Evaluate
	if c.IsSet(flagNum) {
		ev.Num = c.Int(flagNum)
	}
	if c.IsSet(flagTopK) {
		ev.TopK = c.Int(flagTopK)
	}
	if c.IsSet(flagIoUThresh) {
		ev.IoUThreshold = c.Float64(flagIoUThresh)
	}
	if c.IsSet(flagReportDir) {
		ev.ReportDir = c.String(flagReportDir)
	}
	if c.IsSet(flagPRCurve) {
		ev.PRCurve = c.String(flagPRCurve)
	}
	if c.IsSet(flagSavePredictions) {
		ev.SavePredictions = c.String(flagSavePredictions)
	}

	src, det, err := r.open()
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, det.Close())
	}()

	var rec *detector.PredictionFile
	if ev.SavePredictions != "" {
		rec = &detector.PredictionFile{Model: r.cfg.Detector.ModelPath}
	}

	p := pipeline.New(r.logger)
	res, err := p.Evaluate(c.Context, src, det, pipeline.EvaluateOptions{
		Num:          ev.Num,
		TopK:         ev.TopK,
		IoUThreshold: ev.IoUThreshold,
		Recorder:     rec,
	})
	if err != nil {
		return err
	}

	fmt.Fprintln(c.App.Writer, report.Headline(res))

	summary, err := report.NewSummary(res, report.Meta{
		Dataset:  r.cfg.Dataset.Path,
		Split:    r.cfg.Dataset.Split,
		Model:    r.cfg.Detector.ModelPath,
		Detector: string(r.cfg.Detector.Kind),
		TopK:     ev.TopK,
	}, p.Timings())
	if err != nil {
		return err
	}
	if err := report.Render(c.App.Writer, summary); err != nil {
		return err
	}

	if ev.ReportDir != "" {
		path, err := report.Save(ev.ReportDir, summary)
		if err != nil {
			return err
		}
		r.logger.Infow("saved report", "path", path)
	}
	if ev.PRCurve != "" {
		if err := visualize.PlotPRCurve(ev.PRCurve, prCurves(res, maxPRCurves)); err != nil {
			return err
		}
		r.logger.Infow("saved precision/recall plot", "path", ev.PRCurve)
	}
	if rec != nil {
		if err := detector.SavePredictions(ev.SavePredictions, rec); err != nil {
			return err
		}
		r.logger.Infow("saved predictions", "path", ev.SavePredictions, "images", len(rec.Predictions))
	}
	return nil
}

// prCurves returns the curves of the first n images that have ground truth.
func prCurves(res *evaluation.Result, n int) []visualize.NamedCurve {
	var curves []visualize.NamedCurve
	for _, img := range res.Images {
		if len(curves) == n {
			break
		}
		if img.GroundTruth == 0 {
			continue
		}
		curves = append(curves, visualize.NamedCurve{Name: img.ID, Curve: img.Curve})
	}
	return curves
}
