package export

import (
	"fmt"
	gomath "math"
	"path/filepath"

	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
	"go.uber.org/zap"

	"github.com/Faultbox/a2j/internal/scene"
	"github.com/Faultbox/a2j/pkg/math"
)

const gltfChangePlaces = 6

// GLTF writes a binary glTF (.glb). Nodes sit flat under the scene root,
// cameras and meshes keep their world transform. Blend shapes become morph
// targets. Vertex-animated meshes are skipped.
type GLTF struct{}

// NewGLTF creates a glTF exporter.
func NewGLTF() *GLTF { return &GLTF{} }

// Format implements Exporter.
func (e *GLTF) Format() Format { return FormatGLTF }

// Export implements Exporter.
func (e *GLTF) Export(sd *scene.SceneData, outputDir, shotName string) (Result, error) {
	log := exportLogger(FormatGLTF, shotName)
	if err := prepareDir(outputDir); err != nil {
		return failed(FormatGLTF, err)
	}
	if sd.Metadata.FPS <= 0 {
		return failed(FormatGLTF, fmt.Errorf("invalid frame rate %v", sd.Metadata.FPS))
	}

	b := &gltfBuilder{
		doc:  gltf.NewDocument(),
		fps:  sd.Metadata.FPS,
		anim: &gltf.Animation{Name: fbxTake},
	}
	b.doc.Asset.Generator = "a2j"
	names := newNamer(sd)

	aspect := 0.0
	if sd.Metadata.Height > 0 {
		aspect = float64(sd.Metadata.Width) / float64(sd.Metadata.Height)
	}
	for i := range sd.Cameras {
		cam := &sd.Cameras[i]
		b.camera(cam, names.camera(cam), aspect)
	}
	var skipped []string
	for i := range sd.Meshes {
		mesh := &sd.Meshes[i]
		name := names.mesh(mesh)
		if mesh.AnimationType == scene.VertexAnimated {
			skipped = append(skipped, name)
			continue
		}
		b.mesh(mesh, name)
	}
	for i := range sd.Transforms {
		loc := &sd.Transforms[i]
		if len(loc.Keyframes) == 0 {
			continue
		}
		b.node(names.locator(loc), loc.Keyframes)
	}
	if len(b.anim.Channels) > 0 {
		b.doc.Animations = append(b.doc.Animations, b.anim)
	}

	path := filepath.Join(outputDir, shotName+".glb")
	if err := gltf.SaveBinary(b.doc, path); err != nil {
		return failed(FormatGLTF, err)
	}
	log.Info("wrote glTF binary",
		zap.String("file", path),
		zap.Int("nodes", len(b.doc.Nodes)),
		zap.Int("channels", len(b.anim.Channels)))
	msg := fmt.Sprintf("Exported %d nodes", len(b.doc.Nodes))
	if len(skipped) > 0 {
		msg += fmt.Sprintf(", skipped %d vertex-animated meshes", len(skipped))
	}
	return Result{Format: FormatGLTF, Success: true, Files: []string{path}, Skipped: skipped, Message: msg}, nil
}

type gltfBuilder struct {
	doc  *gltf.Document
	fps  float64
	anim *gltf.Animation
}

// node adds a root node posed at the first keyframe and animates it when
// the keys change.
func (b *gltfBuilder) node(name string, keys []scene.Keyframe) int {
	k := firstKey(keys)
	n := &gltf.Node{
		Name:        name,
		Translation: vec3f64(k.Position),
		Rotation:    quat(k.RotationMaya),
		Scale:       vec3f64(k.Scale),
	}
	idx := len(b.doc.Nodes)
	b.doc.Nodes = append(b.doc.Nodes, n)
	b.doc.Scenes[0].Nodes = append(b.doc.Scenes[0].Nodes, idx)
	b.animateTRS(idx, keys)
	return idx
}

func (b *gltfBuilder) camera(cam *scene.CameraData, name string, aspect float64) {
	// apertures are in cm, focal length in mm
	yfov := 2 * gomath.Atan(cam.Properties.VAperture*10/2/cam.Properties.FocalLength)
	if cam.Properties.FocalLength <= 0 || yfov <= 0 {
		yfov = math.Radians(45)
	}
	znear, zfar := 0.1, 10000.0
	p := &gltf.Perspective{Yfov: yfov, Znear: znear, Zfar: &zfar}
	if aspect > 0 {
		p.AspectRatio = &aspect
	}
	b.doc.Cameras = append(b.doc.Cameras, &gltf.Camera{Name: name, Perspective: p})
	idx := b.node(name, cam.Keyframes)
	b.doc.Nodes[idx].Camera = gltf.Index(len(b.doc.Cameras) - 1)
}

func (b *gltfBuilder) mesh(mesh *scene.MeshData, name string) {
	idx := b.node(name, mesh.Keyframes)
	g := mesh.Geometry
	tris := fanTriangulate(g)
	if len(tris) == 0 || len(g.Positions) == 0 {
		return
	}
	positions := make([][3]float32, len(g.Positions))
	for i, p := range g.Positions {
		positions[i] = vec3f32(p)
	}
	prim := &gltf.Primitive{
		Indices:    gltf.Index(modeler.WriteIndices(b.doc, tris)),
		Attributes: map[string]int{gltf.POSITION: modeler.WritePosition(b.doc, positions)},
	}
	m := &gltf.Mesh{Name: name, Primitives: []*gltf.Primitive{prim}}

	if mesh.AnimationType == scene.BlendShape && mesh.BlendShapes != nil {
		b.morphTargets(m, idx, mesh.BlendShapes, len(g.Positions))
	}
	b.doc.Meshes = append(b.doc.Meshes, m)
	b.doc.Nodes[idx].Mesh = gltf.Index(len(b.doc.Meshes) - 1)
}

// morphTargets adds one dense morph target per channel, taken from the
// channel's full-weight target, and animates the weights.
func (b *gltfBuilder) morphTargets(m *gltf.Mesh, node int, bs *scene.BlendShapeDeformer, vertexCount int) {
	var channels []scene.BlendShapeChannel
	for _, ch := range bs.Channels {
		if len(ch.Targets) > 0 {
			channels = append(channels, ch)
		}
	}
	if len(channels) == 0 {
		return
	}
	prim := m.Primitives[0]
	for _, ch := range channels {
		primary := ch.Targets[0]
		for _, t := range ch.Targets[1:] {
			if t.FullWeight > primary.FullWeight {
				primary = t
			}
		}
		deltas := make([][3]float32, vertexCount)
		for i, vi := range primary.VertexIndices {
			if vi >= 0 && vi < vertexCount && i < len(primary.Deltas) {
				deltas[vi] = vec3f32(primary.Deltas[i])
			}
		}
		prim.Targets = append(prim.Targets, map[string]int{gltf.POSITION: modeler.WritePosition(b.doc, deltas)})
		m.Weights = append(m.Weights, ch.DefaultWeight)
	}

	frames := weightFrames(channels)
	if len(frames) == 0 {
		return
	}
	times := make([]float32, len(frames))
	weights := make([]float32, 0, len(frames)*len(channels))
	for i, f := range frames {
		times[i] = b.seconds(f)
		for _, ch := range channels {
			weights = append(weights, float32(weightAt(ch, float64(f))))
		}
	}
	input := b.timeAccessor(times)
	output := modeler.WriteAccessor(b.doc, gltf.TargetNone, weights)
	b.channel(node, gltf.TRSWeights, input, output)
}

// animateTRS adds translation, rotation and scale channels for whichever
// of them change over keys.
func (b *gltfBuilder) animateTRS(node int, keys []scene.Keyframe) {
	if len(keys) < 2 {
		return
	}
	changes := func(pick func(scene.Keyframe) math.Vec3) bool {
		c := split(keys, pick)
		return varies(c[0].values, gltfChangePlaces) || varies(c[1].values, gltfChangePlaces) || varies(c[2].values, gltfChangePlaces)
	}
	moveT, moveR, moveS := changes(keyPosition), changes(keyRotationMaya), changes(keyScale)
	if !moveT && !moveR && !moveS {
		return
	}

	times := make([]float32, len(keys))
	for i, k := range keys {
		times[i] = b.seconds(k.Frame)
	}
	input := b.timeAccessor(times)
	if moveT {
		out := make([][3]float32, len(keys))
		for i, k := range keys {
			out[i] = vec3f32(k.Position)
		}
		b.channel(node, gltf.TRSTranslation, input, modeler.WriteAccessor(b.doc, gltf.TargetNone, out))
	}
	if moveR {
		out := make([][4]float32, len(keys))
		var prev math.Quat
		for i, k := range keys {
			q := math.QuatFromEulerXYZ(k.RotationMaya)
			// keep neighbouring quaternions in the same hemisphere
			if i > 0 && q.Dot(prev) < 0 {
				q = math.Quat{X: -q.X, Y: -q.Y, Z: -q.Z, W: -q.W}
			}
			prev = q
			out[i] = [4]float32{float32(q.X), float32(q.Y), float32(q.Z), float32(q.W)}
		}
		b.channel(node, gltf.TRSRotation, input, modeler.WriteAccessor(b.doc, gltf.TargetNone, out))
	}
	if moveS {
		out := make([][3]float32, len(keys))
		for i, k := range keys {
			out[i] = vec3f32(k.Scale)
		}
		b.channel(node, gltf.TRSScale, input, modeler.WriteAccessor(b.doc, gltf.TargetNone, out))
	}
}

// timeAccessor writes sampler input times. glTF requires their bounds.
func (b *gltfBuilder) timeAccessor(times []float32) int {
	idx := modeler.WriteAccessor(b.doc, gltf.TargetNone, times)
	lo, hi := times[0], times[0]
	for _, t := range times {
		lo = min(lo, t)
		hi = max(hi, t)
	}
	b.doc.Accessors[idx].Min = []float64{float64(lo)}
	b.doc.Accessors[idx].Max = []float64{float64(hi)}
	return idx
}

func (b *gltfBuilder) channel(node int, path gltf.TRSProperty, input, output int) {
	b.anim.Samplers = append(b.anim.Samplers, &gltf.AnimationSampler{
		Input:         input,
		Output:        output,
		Interpolation: gltf.InterpolationLinear,
	})
	b.anim.Channels = append(b.anim.Channels, &gltf.AnimationChannel{
		Sampler: len(b.anim.Samplers) - 1,
		Target:  gltf.AnimationChannelTarget{Node: gltf.Index(node), Path: path},
	})
}

// seconds maps 1-based frames to time starting at zero.
func (b *gltfBuilder) seconds(frame int) float32 {
	return float32(float64(frame-1) / b.fps)
}

// fanTriangulate splits every polygon into a fan around its first vertex.
func fanTriangulate(g scene.MeshGeometry) []uint32 {
	var out []uint32
	off := 0
	for _, count := range g.Counts {
		if off+count > len(g.Indices) {
			break
		}
		face := g.Indices[off : off+count]
		off += count
		for i := 1; i+1 < count; i++ {
			out = append(out, uint32(face[0]), uint32(face[i]), uint32(face[i+1]))
		}
	}
	return out
}

func vec3f32(v math.Vec3) [3]float32 {
	return [3]float32{float32(v.X), float32(v.Y), float32(v.Z)}
}

func vec3f64(v math.Vec3) [3]float64 {
	return [3]float64{v.X, v.Y, v.Z}
}

func quat(deg math.Vec3) [4]float64 {
	q := math.QuatFromEulerXYZ(deg)
	return [4]float64{q.X, q.Y, q.Z, q.W}
}
