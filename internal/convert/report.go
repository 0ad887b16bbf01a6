package convert

import (
	"fmt"
	"strings"

	"go.uber.org/multierr"

	"github.com/Faultbox/a2j/internal/export"
	"github.com/Faultbox/a2j/internal/scene"
)

// Report is the outcome of one conversion.
type Report struct {
	RunID        string
	InputFile    string
	ShotName     string
	OutputDir    string
	SourceFormat string
	FPS          float64
	FrameCount   int
	Categories   scene.AnimationCategories
	Targets      []export.Format
	// Results is keyed by format tag.
	Results map[string]export.Result
	// Success is true when at least one target succeeded.
	Success bool

	errs error
}

// Err combines the errors of every failed target, or returns nil.
func (r *Report) Err() error { return r.errs }

// Errors lists the individual target errors.
func (r *Report) Errors() []error { return multierr.Errors(r.errs) }

// Result returns the result of one target.
func (r *Report) Result(f export.Format) (export.Result, bool) {
	res, ok := r.Results[f.Tag()]
	return res, ok
}

// Summary renders the report as a few lines of text.
func (r *Report) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Conversion %s\n", r.RunID)
	fmt.Fprintf(&b, "  Source: %s (%s)\n", r.InputFile, r.SourceFormat)
	fmt.Fprintf(&b, "  Shot:   %s, %d frames at %g fps\n", r.ShotName, r.FrameCount, r.FPS)
	for _, f := range r.Targets {
		res, ok := r.Result(f)
		if !ok {
			continue
		}
		status := "ok"
		if !res.Success {
			status = "FAILED"
		}
		fmt.Fprintf(&b, "  %-14s %-6s %s\n", f.String()+":", status, res.Message)
		for _, name := range res.Skipped {
			fmt.Fprintf(&b, "      skipped %s\n", name)
		}
	}
	if r.Success {
		b.WriteString("Done.")
	} else {
		b.WriteString("No target succeeded.")
	}
	return b.String()
}
