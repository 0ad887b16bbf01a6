package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/Faultbox/a2j/internal/classify"
	"github.com/Faultbox/a2j/internal/config"
	"github.com/Faultbox/a2j/internal/convert"
	"github.com/Faultbox/a2j/internal/logger"
	"github.com/Faultbox/a2j/internal/reader"
	"github.com/Faultbox/a2j/internal/watch"
)

// conversionOptions builds the orchestrator options from the config.
func conversionOptions(cfg *config.Config, input, outputDir string) (convert.Options, error) {
	if err := cfg.Validate(); err != nil {
		return convert.Options{}, err
	}
	targets, err := cfg.Formats()
	if err != nil {
		return convert.Options{}, err
	}
	return convert.Options{
		InputFile:    input,
		OutputDir:    outputDir,
		ShotName:     cfg.Conversion.ShotName,
		FPS:          cfg.Conversion.FPS,
		FrameCount:   cfg.Conversion.FrameCount,
		Targets:      targets,
		Parallel:     cfg.Conversion.Parallel,
		Progress:     func(msg string) { fmt.Println(msg) },
		Classifier:   cfg.ClassifierOptions(),
		AfterEffects: cfg.AEOptions(),
		Tools:        cfg.ReaderOptions(),
	}, nil
}

func cmdConvert(args []string) error {
	var flags config.Flags
	fs := flag.NewFlagSet("convert", flag.ExitOnError)
	flags.RegisterConversion(fs)
	pos, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	if len(pos) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: a2j convert <input> <output_dir> [options]")
		os.Exit(1)
	}

	cfg, err := setup(&flags)
	if err != nil {
		return err
	}
	outputDir := cfg.Conversion.OutputDir
	if len(pos) > 1 {
		outputDir = pos[1]
	}
	if outputDir == "" {
		outputDir = "."
	}
	opts, err := conversionOptions(cfg, pos[0], outputDir)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	rep, err := convert.ConvertMultiFormat(ctx, opts)
	if rep != nil {
		fmt.Println()
		fmt.Println(rep.Summary())
	}
	return err
}

func cmdWatch(args []string) error {
	var flags config.Flags
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	flags.RegisterConversion(fs)
	pos, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	if len(pos) < 2 {
		fmt.Fprintln(os.Stderr, "Usage: a2j watch <input> <output_dir> [options]")
		os.Exit(1)
	}

	cfg, err := setup(&flags)
	if err != nil {
		return err
	}
	opts, err := conversionOptions(cfg, pos[0], pos[1])
	if err != nil {
		return err
	}

	w, err := watch.New(pos[0], time.Duration(cfg.Watch.Debounce), func(ctx context.Context) error {
		rep, err := convert.ConvertMultiFormat(ctx, opts)
		if rep != nil {
			fmt.Println(rep.Summary())
		}
		return err
	})
	if err != nil {
		return err
	}
	w.OnError = func(err error) { fmt.Fprintf(os.Stderr, "Error: %v\n", err) }

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	fmt.Printf("Watching %s (Ctrl+C to stop)\n", pos[0])
	return w.Run(ctx)
}

// sceneInfo is what `a2j info` prints.
type sceneInfo struct {
	File       string     `yaml:"file"`
	Format     string     `yaml:"format"`
	FPS        float64    `yaml:"fps"`
	FrameCount int        `yaml:"frame_count"`
	Width      int        `yaml:"width"`
	Height     int        `yaml:"height"`
	Footage    string     `yaml:"footage,omitempty"`
	Cameras    []string   `yaml:"cameras"`
	Meshes     []meshInfo `yaml:"meshes"`
	Locators   []string   `yaml:"locators"`
}

type meshInfo struct {
	Path      string `yaml:"path"`
	Animation string `yaml:"animation"`
}

// describe inspects r without extracting keyframes.
func describe(r reader.Reader, fps float64, frames int, opts classify.Options) sceneInfo {
	if frames <= 0 {
		frames = r.DetectFrameCount(fps)
	}
	info := sceneInfo{
		File:       r.FilePath(),
		Format:     r.Format().String(),
		FPS:        fps,
		FrameCount: frames,
		Footage:    r.FootagePath(),
	}
	info.Width, info.Height = r.RenderResolution()

	cats := classify.New(opts).AnalyzeScene(r, frames, fps)
	for _, c := range r.Cameras() {
		info.Cameras = append(info.Cameras, c.Path)
	}
	for _, m := range r.Meshes() {
		t, _ := cats.Of(m.Name)
		info.Meshes = append(info.Meshes, meshInfo{Path: m.Path, Animation: t.String()})
	}
	for _, t := range r.Transforms() {
		if !t.HasShapeChild() && !r.IsOrganizationalGroup(t) {
			info.Locators = append(info.Locators, t.Path)
		}
	}
	return info
}

func cmdInfo(args []string) error {
	var flags config.Flags
	fs := flag.NewFlagSet("info", flag.ExitOnError)
	flags.Register(fs)
	fs.Float64Var(&flags.FPS, "fps", 0, "Frame rate (default from config, 24)")
	fs.IntVar(&flags.Frames, "frames", 0, "Frame count (0 = detect from source)")
	asYAML := fs.Bool("yaml", false, "Print as YAML")
	pos, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	if len(pos) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: a2j info <input> [--yaml]")
		os.Exit(1)
	}

	cfg, err := setup(&flags)
	if err != nil {
		return err
	}
	r, err := reader.New(context.Background(), pos[0], cfg.ReaderOptions())
	if err != nil {
		return err
	}
	defer r.Close()

	info := describe(r, cfg.Conversion.FPS, cfg.Conversion.FrameCount, cfg.ClassifierOptions())
	logger.Debug("described scene", zap.String("file", info.File), zap.Int("meshes", len(info.Meshes)))

	if *asYAML {
		out, err := yaml.Marshal(info)
		if err != nil {
			return err
		}
		fmt.Print(string(out))
		return nil
	}

	fmt.Printf("File:       %s\n", info.File)
	fmt.Printf("Format:     %s\n", info.Format)
	fmt.Printf("Frames:     %d at %g fps (%.2fs)\n", info.FrameCount, info.FPS, float64(info.FrameCount)/info.FPS)
	fmt.Printf("Resolution: %dx%d\n", info.Width, info.Height)
	if info.Footage != "" {
		fmt.Printf("Footage:    %s\n", info.Footage)
	}
	fmt.Printf("\nCameras (%d):\n", len(info.Cameras))
	for _, c := range info.Cameras {
		fmt.Printf("  %s\n", c)
	}
	fmt.Printf("\nMeshes (%d):\n", len(info.Meshes))
	for _, m := range info.Meshes {
		fmt.Printf("  %-16s %s\n", m.Animation, m.Path)
	}
	fmt.Printf("\nLocators (%d):\n", len(info.Locators))
	for _, l := range info.Locators {
		fmt.Printf("  %s\n", l)
	}
	return nil
}

func cmdConfig(args []string) error {
	if len(args) < 1 || args[0] != "init" {
		fmt.Fprintln(os.Stderr, "Usage: a2j config init [path]")
		os.Exit(1)
	}
	cfg := config.Default()
	if len(args) > 1 {
		path := args[1]
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists", path)
		} else if !errors.Is(err, os.ErrNotExist) {
			return err
		}
		if err := cfg.SaveTo(path); err != nil {
			return err
		}
		fmt.Printf("Wrote %s\n", path)
		return nil
	}
	if err := cfg.Save(); err != nil {
		return err
	}
	fmt.Printf("Wrote %s\n", filepath.Join(config.ConfigDir(), "config.yaml"))
	return nil
}
