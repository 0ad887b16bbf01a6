// Package classify decides how each mesh of a scene moves over a frame range.
package classify

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/Faultbox/a2j/internal/logger"
	"github.com/Faultbox/a2j/internal/reader"
	"github.com/Faultbox/a2j/internal/scene"
	"github.com/Faultbox/a2j/pkg/math"
)

// Default classifier settings.
const (
	DefaultTolerance     = 1e-4
	DefaultMinStride     = 5
	DefaultStrideDivisor = 20
)

// Options tunes the classifier. Zero fields take the defaults.
type Options struct {
	Tolerance     float64 // absolute, in source units
	MinStride     int
	StrideDivisor int
}

// DefaultOptions returns the stock settings.
func DefaultOptions() Options {
	return Options{
		Tolerance:     DefaultTolerance,
		MinStride:     DefaultMinStride,
		StrideDivisor: DefaultStrideDivisor,
	}
}

func (o Options) withDefaults() Options {
	if o.Tolerance <= 0 {
		o.Tolerance = DefaultTolerance
	}
	if o.MinStride <= 0 {
		o.MinStride = DefaultMinStride
	}
	if o.StrideDivisor <= 0 {
		o.StrideDivisor = DefaultStrideDivisor
	}
	return o
}

// Stride returns the frame step used for vertex sampling:
// max(MinStride, frameCount/StrideDivisor).
func (o Options) Stride(frameCount int) int {
	o = o.withDefaults()
	return max(o.MinStride, frameCount/o.StrideDivisor)
}

// Classifier samples meshes through a reader.
//
// Vertex sampling is strided, so a deformation that returns to its rest
// pose on every sampled frame goes undetected.
type Classifier struct {
	opts Options
	log  *zap.Logger
}

// New creates a classifier.
func New(opts Options) *Classifier {
	return &Classifier{opts: opts.withDefaults(), log: logger.Named("classify")}
}

// AnalyzeScene classifies every mesh of r as vertex animated, transform only
// or static. Read failures never abort the scan; a frame that cannot be
// sampled counts as unchanged.
func (c *Classifier) AnalyzeScene(r reader.Reader, frameCount int, fps float64) scene.AnimationCategories {
	var cats scene.AnimationCategories
	parents := r.ParentMap()

	for _, mesh := range r.Meshes() {
		t := c.ClassifyMesh(r, mesh, parents[mesh.Name], frameCount, fps)
		cats.Add(mesh.Name, t)
		c.log.Debug("classified mesh",
			zap.String("mesh", mesh.Name),
			zap.Stringer("type", t))
	}
	return cats
}

// ClassifyMesh classifies one mesh. parent may be nil.
func (c *Classifier) ClassifyMesh(r reader.Reader, mesh, parent *reader.Object, frameCount int, fps float64) scene.AnimationType {
	if c.HasVertexAnimation(r, mesh, frameCount, fps) {
		return scene.VertexAnimated
	}
	if parent != nil && c.HasTransformAnimation(r, parent, frameCount, fps) {
		return scene.TransformOnly
	}
	// meshes that carry their own transform (USD) animate without a parent
	if c.HasTransformAnimation(r, mesh, frameCount, fps) {
		return scene.TransformOnly
	}
	return scene.Static
}

// HasVertexAnimation compares sampled frames against frame 1.
func (c *Classifier) HasVertexAnimation(r reader.Reader, mesh *reader.Object, frameCount int, fps float64) bool {
	base, err := r.MeshDataAtTime(mesh, 1/fps)
	if err != nil {
		c.log.Debug("no baseline geometry", zap.String("mesh", mesh.Name), zap.Error(err))
		return false
	}
	if len(base.Positions) == 0 {
		return false
	}

	stride := c.opts.Stride(frameCount)
	for frame := 2; frame <= frameCount; frame += stride {
		s, err := r.MeshDataAtTime(mesh, float64(frame)/fps)
		if err != nil {
			c.log.Debug("skipping unreadable frame",
				zap.String("mesh", mesh.Name), zap.Int("frame", frame), zap.Error(err))
			continue
		}
		n := min(len(base.Positions), len(s.Positions))
		for i := 0; i < n; i++ {
			if !s.Positions[i].WithinTolerance(base.Positions[i], c.opts.Tolerance) {
				return true
			}
		}
	}
	return false
}

// HasTransformAnimation compares the first and last frame.
func (c *Classifier) HasTransformAnimation(r reader.Reader, obj *reader.Object, frameCount int, fps float64) bool {
	fp, fr, fs, err := reader.TransformAtTime(r, obj, 1/fps, math.ConventionAE)
	if err != nil {
		return false
	}
	lp, lr, ls, err := reader.TransformAtTime(r, obj, float64(frameCount)/fps, math.ConventionAE)
	if err != nil {
		return false
	}
	tol := c.opts.Tolerance
	return !fp.WithinTolerance(lp, tol) || !fr.WithinTolerance(lr, tol) || !fs.WithinTolerance(ls, tol)
}

// Summary formats the classification for humans.
func Summary(cats scene.AnimationCategories) string {
	var b strings.Builder
	b.WriteString("Animation Analysis:\n")
	fmt.Fprintf(&b, "  - Vertex Animated: %d meshes\n", len(cats.VertexAnimated))
	if len(cats.BlendShape) > 0 {
		fmt.Fprintf(&b, "  - Blend Shape: %d meshes\n", len(cats.BlendShape))
	}
	fmt.Fprintf(&b, "  - Transform Only: %d meshes\n", len(cats.TransformOnly))
	fmt.Fprintf(&b, "  - Static: %d meshes", len(cats.Static))

	if len(cats.VertexAnimated) > 0 {
		b.WriteString("\n\n  Vertex Animated Meshes:")
		for _, name := range cats.VertexAnimated {
			b.WriteString("\n    - " + name)
		}
	}
	return b.String()
}
