// Package scene defines the format-agnostic scene snapshot shared by every exporter.
package scene

import (
	"fmt"

	"github.com/Faultbox/a2j/pkg/math"
)

// AnimationType classifies how a mesh moves over the frame range.
type AnimationType int

const (
	Static AnimationType = iota
	TransformOnly
	VertexAnimated
	BlendShape
)

// String returns the classification name.
func (t AnimationType) String() string {
	switch t {
	case Static:
		return "static"
	case TransformOnly:
		return "transform_only"
	case VertexAnimated:
		return "vertex_animated"
	case BlendShape:
		return "blend_shape"
	default:
		return fmt.Sprintf("AnimationType(%d)", int(t))
	}
}

// Metadata describes the shot as a whole.
type Metadata struct {
	Width            int
	Height           int
	FPS              float64
	FrameCount       int
	FootagePath      string // empty when the source names no footage
	SourceFilePath   string
	SourceFormatName string
}

// Duration returns the shot length in seconds.
func (m Metadata) Duration() float64 {
	if m.FPS <= 0 {
		return 0
	}
	return float64(m.FrameCount) / m.FPS
}

// Keyframe is one frame of decomposed transform. Both rotations come from
// the same sampled matrix.
type Keyframe struct {
	Frame        int // 1-based
	Position     math.Vec3
	RotationAE   math.Vec3 // degrees
	RotationMaya math.Vec3 // degrees
	Scale        math.Vec3 // multiplier, not percent
}

// CameraProperties holds the lens of a camera.
type CameraProperties struct {
	FocalLength float64 // mm
	HAperture   float64 // cm
	VAperture   float64 // cm
}

// CameraData is one extracted camera.
type CameraData struct {
	Name       string
	ParentName string
	FullPath   string
	Properties CameraProperties
	Keyframes  []Keyframe
}

// DisplayName is the name exporters give the camera.
func (c *CameraData) DisplayName() string { return displayName(c.Name, c.ParentName) }

// MeshGeometry is first-frame polygon data with source-native winding.
type MeshGeometry struct {
	Positions []math.Vec3
	Indices   []int
	Counts    []int
}

// FaceCount returns the number of polygons.
func (g MeshGeometry) FaceCount() int { return len(g.Counts) }

// BlendShapeTarget is one delta target of a channel.
type BlendShapeTarget struct {
	Name          string
	FullWeight    float64     // weight at which the deltas apply fully
	VertexIndices []int       // vertices the deltas apply to
	Deltas        []math.Vec3 // parallel to VertexIndices
}

// WeightKey is one keyed blend shape weight.
type WeightKey struct {
	Frame  int
	Weight float64
}

// BlendShapeChannel is one weighted channel of a deformer. Targets holds more
// than one entry for in-between shapes.
type BlendShapeChannel struct {
	Name          string
	Targets       []BlendShapeTarget
	WeightKeys    []WeightKey // nil when the weight is not animated
	DefaultWeight float64
}

// IsAnimated reports whether the channel weight is keyed.
func (c BlendShapeChannel) IsAnimated() bool {
	return len(c.WeightKeys) > 0
}

// BlendShapeDeformer groups the channels deforming one mesh.
type BlendShapeDeformer struct {
	Name         string
	BaseMeshName string
	Channels     []BlendShapeChannel
}

// MeshData is one extracted mesh.
type MeshData struct {
	Name          string
	ParentName    string
	FullPath      string
	AnimationType AnimationType
	Keyframes     []Keyframe
	Geometry      MeshGeometry
	// VertexPositionsPerFrame is set only for VertexAnimated meshes.
	VertexPositionsPerFrame map[int][]math.Vec3
	// BlendShapes is set only when the source supplies explicit targets.
	BlendShapes *BlendShapeDeformer
}

// DisplayName is the name exporters give the mesh.
func (m *MeshData) DisplayName() string { return displayName(m.Name, m.ParentName) }

// TransformData is a locator or null with no shape attached.
type TransformData struct {
	Name       string
	ParentName string
	FullPath   string
	Keyframes  []Keyframe
}

// AnimationCategories mirrors the per-mesh classification by name.
type AnimationCategories struct {
	VertexAnimated []string
	BlendShape     []string
	TransformOnly  []string
	Static         []string
}

// Add appends name to the list for t.
func (c *AnimationCategories) Add(name string, t AnimationType) {
	switch t {
	case VertexAnimated:
		c.VertexAnimated = append(c.VertexAnimated, name)
	case BlendShape:
		c.BlendShape = append(c.BlendShape, name)
	case TransformOnly:
		c.TransformOnly = append(c.TransformOnly, name)
	default:
		c.Static = append(c.Static, name)
	}
}

// Of returns the category of name and whether it is known.
func (c *AnimationCategories) Of(name string) (AnimationType, bool) {
	lists := []struct {
		t     AnimationType
		names []string
	}{
		{BlendShape, c.BlendShape},
		{VertexAnimated, c.VertexAnimated},
		{TransformOnly, c.TransformOnly},
		{Static, c.Static},
	}
	for _, l := range lists {
		for _, n := range l.names {
			if n == name {
				return l.t, true
			}
		}
	}
	return Static, false
}

// SceneData is built once per conversion and read-only afterwards.
// Exporters must not modify it.
type SceneData struct {
	Metadata   Metadata
	Cameras    []CameraData
	Meshes     []MeshData
	Transforms []TransformData
	Categories AnimationCategories
}

// CameraByName finds a camera by source or display name.
func (s *SceneData) CameraByName(name string) *CameraData {
	for i := range s.Cameras {
		if s.Cameras[i].Name == name || s.Cameras[i].DisplayName() == name {
			return &s.Cameras[i]
		}
	}
	return nil
}

// MeshByName finds a mesh by source or display name.
func (s *SceneData) MeshByName(name string) *MeshData {
	for i := range s.Meshes {
		if s.Meshes[i].Name == name || s.Meshes[i].DisplayName() == name {
			return &s.Meshes[i]
		}
	}
	return nil
}

// IsAnimated reports whether keys hold more than one distinct transform.
// A single keyframe is never animated.
func IsAnimated(keys []Keyframe, tol float64) bool {
	if len(keys) < 2 {
		return false
	}
	first := keys[0]
	for _, k := range keys[1:] {
		if !k.Position.WithinTolerance(first.Position, tol) ||
			!k.RotationMaya.WithinTolerance(first.RotationMaya, tol) ||
			!k.RotationAE.WithinTolerance(first.RotationAE, tol) ||
			!k.Scale.WithinTolerance(first.Scale, tol) {
			return true
		}
	}
	return false
}

func displayName(name, parent string) string {
	if parent != "" {
		return parent
	}
	return name
}
