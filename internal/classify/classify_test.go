package classify

import (
	"errors"
	"strings"
	"testing"

	"github.com/Faultbox/a2j/internal/reader"
	"github.com/Faultbox/a2j/internal/reader/readertest"
	"github.com/Faultbox/a2j/internal/scene"
	"github.com/Faultbox/a2j/pkg/math"
)

const fps = 24.0

func frameOf(seconds float64) int {
	return int(seconds*fps + 0.5)
}

var triangle = reader.MeshSample{
	Positions: []math.Vec3{{}, {X: 1}, {Y: 1}},
	Indices:   []int{0, 1, 2},
	Counts:    []int{3},
}

// movedAt returns the triangle with vertex 0 offset by d on the given frames.
func movedAt(d float64, frames ...int) func(float64) (reader.MeshSample, error) {
	return func(seconds float64) (reader.MeshSample, error) {
		f := frameOf(seconds)
		for _, m := range frames {
			if f == m {
				pos := append([]math.Vec3(nil), triangle.Positions...)
				pos[0].X += d
				return reader.MeshSample{Positions: pos, Indices: triangle.Indices, Counts: triangle.Counts}, nil
			}
		}
		return triangle, nil
	}
}

func TestStride(t *testing.T) {
	tests := []struct {
		frames int
		want   int
	}{
		{1, 5},
		{30, 5},
		{100, 5},
		{120, 6},
		{240, 12},
		{1000, 50},
	}
	opts := DefaultOptions()
	for _, tt := range tests {
		if got := opts.Stride(tt.frames); got != tt.want {
			t.Errorf("Stride(%d) = %d, want %d", tt.frames, got, tt.want)
		}
	}

	custom := Options{MinStride: 2, StrideDivisor: 10}
	if got := custom.Stride(50); got != 5 {
		t.Errorf("custom Stride(50) = %d, want 5", got)
	}
	if got := (Options{}).Stride(120); got != 6 {
		t.Errorf("zero options Stride(120) = %d, want defaults", got)
	}
}

func TestHasVertexAnimation(t *testing.T) {
	c := New(DefaultOptions())

	tests := []struct {
		name   string
		sample func(float64) (reader.MeshSample, error)
		want   bool
	}{
		{"identical", movedAt(0), false},
		{"above tolerance on sampled frame", movedAt(DefaultTolerance+1e-6, 7), true},
		{"exactly tolerance", movedAt(DefaultTolerance, 7), false},
		// stride 5 from frame 2 samples 2, 7, 12, ...; frame 4 is never read
		{"between sampled frames", movedAt(1, 4), false},
		{"last sampled frame", movedAt(1, 97), true},
		{"after last sampled frame", movedAt(1, 100), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := readertest.New("shot.abc")
			mesh := f.Add(nil, "tri", reader.KindMesh)
			f.SetMesh(mesh, tt.sample)
			if got := c.HasVertexAnimation(f, mesh, 100, fps); got != tt.want {
				t.Errorf("HasVertexAnimation() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHasVertexAnimation_ReadErrors(t *testing.T) {
	c := New(DefaultOptions())
	f := readertest.New("shot.abc")
	mesh := f.Add(nil, "tri", reader.KindMesh)

	// no baseline at all
	if c.HasVertexAnimation(f, mesh, 48, fps) {
		t.Error("unreadable mesh should not be vertex animated")
	}

	// a failing frame is skipped, a later one is still compared
	moved := movedAt(1, 12)
	f.SetMesh(mesh, func(seconds float64) (reader.MeshSample, error) {
		if frameOf(seconds) == 7 {
			return reader.MeshSample{}, errors.New("corrupt sample")
		}
		return moved(seconds)
	})
	if !c.HasVertexAnimation(f, mesh, 48, fps) {
		t.Error("deformation after an unreadable frame was missed")
	}
}

func TestAnalyzeScene(t *testing.T) {
	f := readertest.New("shot.abc")

	rig := f.Add(nil, "rig", reader.KindTransform)
	f.SetLocal(rig, func(s float64) math.Mat4 { return math.Translate(s*10, 0, 0) })
	moving := f.Add(rig, "movingShape", reader.KindMesh)
	f.SetStaticMesh(moving, triangle)

	props := f.Add(nil, "props", reader.KindTransform)
	still := f.Add(props, "stillShape", reader.KindMesh)
	f.SetStaticMesh(still, triangle)

	cloth := f.Add(props, "cloth", reader.KindMesh)
	f.SetMesh(cloth, movedAt(0.5, 12))

	// a root mesh that spins on its own transform
	spinner := f.Add(nil, "spinner", reader.KindMesh)
	f.SetStaticMesh(spinner, triangle)
	f.SetLocal(spinner, func(s float64) math.Mat4 { return math.RotateY(s) })

	cats := New(DefaultOptions()).AnalyzeScene(f, 48, fps)

	check := func(label string, got []string, want ...string) {
		t.Helper()
		if strings.Join(got, ",") != strings.Join(want, ",") {
			t.Errorf("%s = %v, want %v", label, got, want)
		}
	}
	check("vertex animated", cats.VertexAnimated, "cloth")
	check("transform only", cats.TransformOnly, "movingShape", "spinner")
	check("static", cats.Static, "stillShape")
	if len(cats.BlendShape) != 0 {
		t.Errorf("blend shape = %v, classifier never fills it", cats.BlendShape)
	}
}

func TestAnalyzeScene_ParentScaleOnly(t *testing.T) {
	f := readertest.New("shot.usda")
	grp := f.Add(nil, "grp", reader.KindTransform)
	f.SetLocal(grp, func(s float64) math.Mat4 { return math.Scale(1+s, 1+s, 1+s) })
	mesh := f.Add(grp, "box", reader.KindMesh)
	f.SetStaticMesh(mesh, triangle)

	// the parent's own scale is its local scale, so it animates
	if got := New(Options{}).ClassifyMesh(f, mesh, grp, 24, fps); got != scene.TransformOnly {
		t.Errorf("ClassifyMesh() = %v, want transform_only", got)
	}
}

func TestSummary(t *testing.T) {
	cats := scene.AnimationCategories{
		VertexAnimated: []string{"cloth"},
		TransformOnly:  []string{"car", "door"},
		Static:         []string{"ground"},
	}
	got := Summary(cats)
	for _, want := range []string{
		"Vertex Animated: 1 meshes",
		"Transform Only: 2 meshes",
		"Static: 1 meshes",
		"Vertex Animated Meshes:\n    - cloth",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("summary missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "Blend Shape") {
		t.Error("blend shape line shown without blend shapes")
	}
}
