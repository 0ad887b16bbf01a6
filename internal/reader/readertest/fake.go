// Package readertest provides an in-memory reader.Reader for tests of the
// packages that consume readers.
package readertest

import (
	"fmt"

	"github.com/Faultbox/a2j/internal/reader"
	"github.com/Faultbox/a2j/internal/scene"
	"github.com/Faultbox/a2j/pkg/math"
)

// Fake is a scripted scene. Build it with Add and the Set methods before
// handing it to the code under test.
type Fake struct {
	Path       string
	SourceKind reader.Format
	Frames     int // returned by DetectFrameCount; 0 means reader.DefaultFrameCount
	Footage    string
	Width      int
	Height     int

	all     []*reader.Object
	locals  map[*reader.Object]func(seconds float64) math.Mat4
	meshes  map[*reader.Object]func(seconds float64) (reader.MeshSample, error)
	lenses  map[*reader.Object]scene.CameraProperties
	blends  map[*reader.Object]*scene.BlendShapeDeformer
	orgs    map[*reader.Object]bool
	closed  bool
	samples int
}

// New returns an empty scene for path.
func New(path string) *Fake {
	return &Fake{
		Path:       path,
		SourceKind: reader.FormatAlembic,
		locals:     map[*reader.Object]func(float64) math.Mat4{},
		meshes:     map[*reader.Object]func(float64) (reader.MeshSample, error){},
		lenses:     map[*reader.Object]scene.CameraProperties{},
		blends:     map[*reader.Object]*scene.BlendShapeDeformer{},
		orgs:       map[*reader.Object]bool{},
	}
}

// Add creates an object under parent, or a root when parent is nil.
func (f *Fake) Add(parent *reader.Object, name string, kind reader.Kind) *reader.Object {
	o := &reader.Object{Name: name, Kind: kind, Type: kind.String(), Parent: parent}
	if parent == nil {
		o.Path = "/" + name
	} else {
		o.Path = parent.Path + "/" + name
		parent.Children = append(parent.Children, o)
	}
	f.all = append(f.all, o)
	return o
}

// SetLocal scripts the local matrix of obj. Unscripted objects are identity.
func (f *Fake) SetLocal(obj *reader.Object, local func(seconds float64) math.Mat4) {
	f.locals[obj] = local
}

// SetStatic fixes the local matrix of obj.
func (f *Fake) SetStatic(obj *reader.Object, local math.Mat4) {
	f.locals[obj] = func(float64) math.Mat4 { return local }
}

// SetMesh scripts the geometry of obj.
func (f *Fake) SetMesh(obj *reader.Object, sample func(seconds float64) (reader.MeshSample, error)) {
	f.meshes[obj] = sample
}

// SetStaticMesh fixes the geometry of obj.
func (f *Fake) SetStaticMesh(obj *reader.Object, ms reader.MeshSample) {
	f.meshes[obj] = func(float64) (reader.MeshSample, error) { return ms, nil }
}

// SetLens sets the camera properties of obj.
func (f *Fake) SetLens(obj *reader.Object, p scene.CameraProperties) { f.lenses[obj] = p }

// SetBlendShapes attaches a deformer to a mesh.
func (f *Fake) SetBlendShapes(obj *reader.Object, d *scene.BlendShapeDeformer) { f.blends[obj] = d }

// SetOrganizational marks obj as a grouping node.
func (f *Fake) SetOrganizational(obj *reader.Object) { f.orgs[obj] = true }

// Closed reports whether Close was called.
func (f *Fake) Closed() bool { return f.closed }

// TransformSamples counts SampleTransform calls.
func (f *Fake) TransformSamples() int { return f.samples }

func (f *Fake) Format() reader.Format { return f.SourceKind }
func (f *Fake) FilePath() string      { return f.Path }

func (f *Fake) AllObjects() []*reader.Object { return f.all }

func (f *Fake) Cameras() []*reader.Object    { return f.ofKind(reader.KindCamera) }
func (f *Fake) Meshes() []*reader.Object     { return f.ofKind(reader.KindMesh) }
func (f *Fake) Transforms() []*reader.Object { return f.ofKind(reader.KindTransform) }

func (f *Fake) ofKind(k reader.Kind) []*reader.Object {
	var out []*reader.Object
	for _, o := range f.all {
		if o.Kind == k {
			out = append(out, o)
		}
	}
	return out
}

func (f *Fake) ParentMap() map[string]*reader.Object {
	m := map[string]*reader.Object{}
	for _, o := range f.all {
		if o.Parent != nil {
			m[o.Name] = o.Parent
		}
	}
	return m
}

func (f *Fake) DetectFrameCount(fps float64) int {
	if f.Frames > 0 {
		return f.Frames
	}
	return reader.DefaultFrameCount
}

func (f *Fake) local(obj *reader.Object, seconds float64) math.Mat4 {
	if fn, ok := f.locals[obj]; ok {
		return fn(seconds)
	}
	return math.Identity()
}

func (f *Fake) known(obj *reader.Object) error {
	for _, o := range f.all {
		if o == obj {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", reader.ErrObjectNotFound, obj.Path)
}

func (f *Fake) SampleTransform(obj *reader.Object, seconds float64) (reader.TransformSample, error) {
	f.samples++
	if err := f.known(obj); err != nil {
		return reader.TransformSample{}, err
	}
	local := f.local(obj, seconds)
	world := local
	for p := obj.Parent; p != nil; p = p.Parent {
		world = world.Mul(f.local(p, seconds))
	}
	return reader.TransformSample{Local: local, World: world}, nil
}

func (f *Fake) MeshDataAtTime(obj *reader.Object, seconds float64) (reader.MeshSample, error) {
	fn, ok := f.meshes[obj]
	if !ok {
		return reader.MeshSample{}, fmt.Errorf("%w: no geometry for %s", reader.ErrObjectNotFound, obj.Path)
	}
	return fn(seconds)
}

func (f *Fake) CameraProperties(obj *reader.Object, seconds float64) (scene.CameraProperties, error) {
	p, ok := f.lenses[obj]
	if !ok {
		return scene.CameraProperties{FocalLength: 35, HAperture: 3.6, VAperture: 2.4}, nil
	}
	return p, nil
}

func (f *Fake) FootagePath() string { return f.Footage }

func (f *Fake) RenderResolution() (int, int) {
	if f.Width <= 0 || f.Height <= 0 {
		return reader.DefaultWidth, reader.DefaultHeight
	}
	return f.Width, f.Height
}

func (f *Fake) IsOrganizationalGroup(obj *reader.Object) bool { return f.orgs[obj] }

func (f *Fake) BlendShapes(mesh *reader.Object) (*scene.BlendShapeDeformer, error) {
	return f.blends[mesh], nil
}

func (f *Fake) Close() error {
	f.closed = true
	return nil
}

var (
	_ reader.Reader           = (*Fake)(nil)
	_ reader.BlendShapeSource = (*Fake)(nil)
)
