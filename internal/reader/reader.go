// Package reader opens source scene files and exposes their hierarchy and
// time-sampled transforms, meshes and cameras behind one interface.
package reader

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/Faultbox/a2j/internal/scene"
	"github.com/Faultbox/a2j/pkg/math"
)

// Reader errors.
var (
	ErrUnsupportedFormat  = errors.New("unsupported scene format")
	ErrObjectNotFound     = errors.New("object not found")
	ErrBackendUnavailable = errors.New("conversion backend unavailable")
)

// DefaultFrameCount is used when a source carries no usable time range.
const DefaultFrameCount = 120

// Default render resolution when the source names none.
const (
	DefaultWidth  = 1920
	DefaultHeight = 1080
)

// Format tags a source format.
type Format int

const (
	FormatAlembic Format = iota
	FormatUSD
	FormatMaya
)

// String returns the human-readable format name.
func (f Format) String() string {
	switch f {
	case FormatAlembic:
		return "Alembic"
	case FormatUSD:
		return "USD"
	case FormatMaya:
		return "Maya ASCII"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

// Kind is the role of an object in the hierarchy.
type Kind int

const (
	KindOther Kind = iota
	KindTransform
	KindCamera
	KindMesh
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindTransform:
		return "transform"
	case KindCamera:
		return "camera"
	case KindMesh:
		return "mesh"
	default:
		return "other"
	}
}

// IsShape reports whether the kind is a camera or mesh.
func (k Kind) IsShape() bool {
	return k == KindCamera || k == KindMesh
}

// Object is one node of the source hierarchy. Readers own their objects;
// callers must not modify them.
type Object struct {
	Name     string
	Path     string // slash separated, e.g. "/World/cam/camShape"
	Kind     Kind
	Type     string // source node or prim type
	Parent   *Object
	Children []*Object
}

// HasShapeChild reports whether a direct child is a camera or mesh.
func (o *Object) HasShapeChild() bool {
	for _, c := range o.Children {
		if c.Kind.IsShape() {
			return true
		}
	}
	return false
}

// TransformSample is the local and accumulated world matrix of an object at
// one time. Both decompositions of a keyframe come from the same sample.
type TransformSample struct {
	Local math.Mat4
	World math.Mat4
}

// Decompose returns world position and rotation with scale from the local matrix,
// so that parent scale does not leak into the child.
func (s TransformSample) Decompose(c math.Convention) (pos, rot, scale math.Vec3) {
	world := math.Decompose(s.World, c)
	local := math.Decompose(s.Local, c)
	return world.Translation, world.Rotation, local.Scale
}

// MeshSample is mesh geometry at one time.
type MeshSample struct {
	Positions []math.Vec3
	Indices   []int
	Counts    []int
}

// Reader is implemented once per source format.
type Reader interface {
	Format() Format
	FilePath() string

	AllObjects() []*Object
	Cameras() []*Object
	Meshes() []*Object
	Transforms() []*Object
	// ParentMap maps a child name to its parent. Names are assumed unique.
	ParentMap() map[string]*Object

	// DetectFrameCount never fails; it returns DefaultFrameCount when the
	// source has no usable time sampling.
	DetectFrameCount(fps float64) int

	SampleTransform(obj *Object, seconds float64) (TransformSample, error)
	MeshDataAtTime(obj *Object, seconds float64) (MeshSample, error)
	CameraProperties(obj *Object, seconds float64) (scene.CameraProperties, error)

	// FootagePath and RenderResolution are best effort and never fail.
	FootagePath() string
	RenderResolution() (width, height int)

	IsOrganizationalGroup(obj *Object) bool
	Close() error
}

// BlendShapeSource is implemented by readers whose format stores explicit
// blend shape targets.
type BlendShapeSource interface {
	BlendShapes(mesh *Object) (*scene.BlendShapeDeformer, error)
}

// TransformAtTime samples obj once and decomposes it with the given convention.
func TransformAtTime(r Reader, obj *Object, seconds float64, c math.Convention) (pos, rot, scale math.Vec3, err error) {
	s, err := r.SampleTransform(obj, seconds)
	if err != nil {
		return pos, rot, scale, err
	}
	pos, rot, scale = s.Decompose(c)
	return pos, rot, scale, nil
}

// FormatForPath picks the format from the file extension.
func FormatForPath(path string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".abc":
		return FormatAlembic, nil
	case ".usd", ".usda", ".usdc":
		return FormatUSD, nil
	case ".ma":
		return FormatMaya, nil
	}
	return 0, fmt.Errorf("%w: %q (supported: %s)", ErrUnsupportedFormat, ext, strings.Join(SupportedExtensions(), ", "))
}

// SupportedExtensions lists the extensions New accepts.
func SupportedExtensions() []string {
	return []string{".abc", ".usd", ".usda", ".usdc", ".ma"}
}
