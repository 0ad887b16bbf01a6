// Package convert runs a whole conversion: open the source once, extract
// SceneData once, then hand it to every requested exporter.
package convert

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Faultbox/a2j/internal/classify"
	"github.com/Faultbox/a2j/internal/export"
	"github.com/Faultbox/a2j/internal/extract"
	"github.com/Faultbox/a2j/internal/logger"
	"github.com/Faultbox/a2j/internal/reader"
	"github.com/Faultbox/a2j/internal/scene"
)

// ErrNoTargets is returned when a conversion names no export target.
var ErrNoTargets = errors.New("no export targets")

// openReader is replaced in tests.
var openReader = reader.New

// Options describes one conversion.
type Options struct {
	InputFile string
	OutputDir string
	// ShotName defaults to the input file name without its extension.
	ShotName string
	FPS      float64
	// FrameCount 0 asks the reader to detect the range.
	FrameCount int
	Targets    []export.Format
	// Parallel runs the exporters concurrently. SceneData is shared
	// read-only and every exporter owns its own state.
	Parallel bool
	Progress extract.Progress

	Classifier   classify.Options
	AfterEffects export.AEOptions
	Tools        reader.Options
}

// shotName returns the shot name the conversion will use.
func (o Options) shotName() string {
	if o.ShotName != "" {
		return o.ShotName
	}
	base := filepath.Base(o.InputFile)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// TargetDir returns the output directory of one target: {outputDir}/{shot}_{tag}.
func TargetDir(outputDir, shotName string, f export.Format) string {
	return filepath.Join(outputDir, shotName+"_"+f.Tag())
}

// ConvertMultiFormat converts opts.InputFile into every target in
// opts.Targets.
//
// Failing to open or extract the source is fatal and returns a nil report.
// Exporter failures are collected in the report; the returned error is then
// Report.Err(), non-nil only when no target succeeded.
func ConvertMultiFormat(ctx context.Context, opts Options) (*Report, error) {
	if opts.InputFile == "" {
		return nil, errors.New("no input file")
	}
	if len(opts.Targets) == 0 {
		return nil, ErrNoTargets
	}
	if opts.FPS <= 0 {
		return nil, fmt.Errorf("invalid fps %v", opts.FPS)
	}
	if opts.FrameCount < 0 {
		return nil, fmt.Errorf("invalid frame count %d", opts.FrameCount)
	}

	rep := &Report{
		RunID:     uuid.NewString(),
		InputFile: opts.InputFile,
		ShotName:  opts.shotName(),
		OutputDir: opts.OutputDir,
		FPS:       opts.FPS,
		Targets:   opts.Targets,
		Results:   map[string]export.Result{},
	}
	log := logger.Named("convert").With(zap.String("run", rep.RunID), zap.String("shot", rep.ShotName))
	progress := serialized(opts.Progress)

	log.Info("opening source", zap.String("input", opts.InputFile))
	r, err := openReader(ctx, opts.InputFile, opts.Tools)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", opts.InputFile, err)
	}
	defer func() {
		if err := r.Close(); err != nil {
			log.Warn("closing reader", zap.Error(err))
		}
	}()
	rep.SourceFormat = r.Format().String()

	frames := opts.FrameCount
	if frames == 0 {
		frames = r.DetectFrameCount(opts.FPS)
		progress.Report("Detected %d frames", frames)
	}
	rep.FrameCount = frames

	sd, err := extract.ExtractSceneData(r, opts.FPS, frames, extract.Options{
		Classifier: opts.Classifier,
		Progress:   progress,
	})
	if err != nil {
		return nil, fmt.Errorf("extracting %s: %w", opts.InputFile, err)
	}
	rep.Categories = sd.Categories

	exportAll(ctx, sd, opts, rep, progress, log)

	log.Info("conversion finished",
		zap.Bool("success", rep.Success),
		zap.Int("targets", len(opts.Targets)))
	if !rep.Success {
		return rep, rep.Err()
	}
	return rep, nil
}

func exportAll(ctx context.Context, sd *scene.SceneData, opts Options, rep *Report, progress extract.Progress, log *zap.Logger) {
	var mu sync.Mutex
	record := func(f export.Format, res export.Result, err error) {
		mu.Lock()
		defer mu.Unlock()
		res.Format = f
		rep.Results[f.Tag()] = res
		if res.Success {
			rep.Success = true
		}
		rep.errs = multierr.Append(rep.errs, err)
	}

	run := func(f export.Format) {
		if err := ctx.Err(); err != nil {
			record(f, export.Result{Message: err.Error()}, fmt.Errorf("%s: %w", f, err))
			return
		}
		e, err := export.New(f, export.Options{AfterEffects: opts.AfterEffects})
		if err != nil {
			record(f, export.Result{Message: err.Error()}, err)
			return
		}
		progress.Report("Exporting %s...", f)
		dir := TargetDir(opts.OutputDir, rep.ShotName, f)
		res, err := safeExport(e, sd, dir, rep.ShotName)
		if err != nil {
			log.Error("export failed", zap.String("format", f.Tag()), zap.Error(err))
			progress.Report("%s export failed: %s", f, res.Message)
		} else {
			progress.Report("%s: %s", f, res.Message)
		}
		record(f, res, err)
	}

	if !opts.Parallel || len(opts.Targets) == 1 {
		for _, f := range opts.Targets {
			run(f)
		}
		return
	}

	// failures are recorded in the report, so no goroutine returns an error
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for _, f := range opts.Targets {
		g.Go(func() error {
			run(f)
			return nil
		})
	}
	_ = g.Wait()
}

// safeExport turns an exporter panic into a failed result.
func safeExport(e export.Exporter, sd *scene.SceneData, dir, shot string) (res export.Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%s exporter panicked: %v", e.Format(), p)
			res = export.Result{Format: e.Format(), Message: err.Error()}
		}
	}()
	return e.Export(sd, dir, shot)
}

// serialized wraps p so that concurrent exporters never call it at the same
// time.
func serialized(p extract.Progress) extract.Progress {
	if p == nil {
		return nil
	}
	var mu sync.Mutex
	return func(msg string) {
		mu.Lock()
		defer mu.Unlock()
		p(msg)
	}
}
