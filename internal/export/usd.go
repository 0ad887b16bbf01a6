package export

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/Faultbox/a2j/internal/scene"
	"github.com/Faultbox/a2j/pkg/math"
)

// usdChangePlaces is the rounding used to decide whether an xform op
// needs time samples.
const usdChangePlaces = 6

const usdXformOpOrder = `["xformOp:translate", "xformOp:rotateXYZ", "xformOp:scale"]`

// USD writes a single ASCII layer. Everything sits flat under /World since
// keyframes are already world space. USD carries vertex animation natively
// as time-sampled points, so no mesh is skipped.
type USD struct{}

// NewUSD creates a USD exporter.
func NewUSD() *USD { return &USD{} }

// Format implements Exporter.
func (e *USD) Format() Format { return FormatUSD }

// Export implements Exporter.
func (e *USD) Export(sd *scene.SceneData, outputDir, shotName string) (Result, error) {
	log := exportLogger(FormatUSD, shotName)
	if err := prepareDir(outputDir); err != nil {
		return failed(FormatUSD, err)
	}
	names := newNamer(sd)
	w := &usdaWriter{}

	root := "Xform"
	for i := range sd.Meshes {
		if sd.Meshes[i].AnimationType == scene.BlendShape && sd.Meshes[i].BlendShapes != nil {
			root = "SkelRoot"
			break
		}
	}

	w.layerHeader(sd.Metadata)
	w.open(fmt.Sprintf("def %s %q", root, "World"))
	for i := range sd.Cameras {
		cam := &sd.Cameras[i]
		w.camera(cam, names.camera(cam))
	}
	for i := range sd.Meshes {
		mesh := &sd.Meshes[i]
		w.mesh(mesh, names.mesh(mesh))
	}
	for i := range sd.Transforms {
		loc := &sd.Transforms[i]
		w.open(fmt.Sprintf("def Xform %q", names.locator(loc)))
		w.xformOps(loc.Keyframes)
		w.close()
	}
	w.close()

	path, err := writeFile(outputDir, shotName+".usda", w.buf.Bytes())
	if err != nil {
		return failed(FormatUSD, err)
	}
	log.Info("wrote USD layer",
		zap.String("file", path),
		zap.Int("cameras", len(sd.Cameras)),
		zap.Int("meshes", len(sd.Meshes)),
		zap.Int("vertex_animated", len(sd.Categories.VertexAnimated)))
	return Result{
		Format:  FormatUSD,
		Success: true,
		Files:   []string{path},
		Message: fmt.Sprintf("Exported %d cameras, %d meshes", len(sd.Cameras), len(sd.Meshes)),
	}, nil
}

type usdaWriter struct {
	buf   bytes.Buffer
	depth int
}

func (w *usdaWriter) line(format string, args ...any) {
	w.buf.WriteString(strings.Repeat("    ", w.depth))
	if len(args) == 0 {
		w.buf.WriteString(format)
	} else {
		fmt.Fprintf(&w.buf, format, args...)
	}
	w.buf.WriteByte('\n')
}

// open starts a prim block, with optional prim metadata lines.
func (w *usdaWriter) open(header string, metadata ...string) {
	if len(metadata) == 0 {
		w.line("%s", header)
	} else {
		w.line("%s (", header)
		for _, m := range metadata {
			w.line("    %s", m)
		}
		w.line(")")
	}
	w.line("{")
	w.depth++
}

func (w *usdaWriter) close() {
	w.depth--
	w.line("}")
	w.line("")
}

func (w *usdaWriter) layerHeader(md scene.Metadata) {
	w.line("#usda 1.0")
	w.line("(")
	w.depth++
	w.line("customLayerData = {")
	w.depth++
	if md.FootagePath != "" {
		w.line("string footagePath = %s", usdString(md.FootagePath))
	}
	w.line("int2 renderResolution = (%d, %d)", md.Width, md.Height)
	w.line("string sourceFile = %s", usdString(md.SourceFilePath))
	w.line("string sourceFormat = %s", usdString(md.SourceFormatName))
	w.depth--
	w.line("}")
	w.line(`defaultPrim = "World"`)
	w.line("endTimeCode = %d", md.FrameCount)
	w.line("framesPerSecond = %s", num(md.FPS))
	w.line("startTimeCode = 1")
	w.line("timeCodesPerSecond = %s", num(md.FPS))
	w.line(`upAxis = "Y"`)
	w.depth--
	w.line(")")
	w.line("")
}

func (w *usdaWriter) camera(cam *scene.CameraData, name string) {
	w.open(fmt.Sprintf("def Camera %q", name))
	// apertures are stored in cm, USD wants mm
	w.line("float focalLength = %s", num(cam.Properties.FocalLength))
	w.line("float horizontalAperture = %s", num(cam.Properties.HAperture*10))
	w.line("float verticalAperture = %s", num(cam.Properties.VAperture*10))
	w.line("float2 clippingRange = (0.1, 10000)")
	w.xformOps(cam.Keyframes)
	w.close()
}

func (w *usdaWriter) mesh(mesh *scene.MeshData, name string) {
	g := mesh.Geometry
	bs := mesh.BlendShapes
	if mesh.AnimationType != scene.BlendShape {
		bs = nil
	}

	if bs != nil {
		w.open(fmt.Sprintf("def Mesh %q", name), `prepend apiSchemas = ["SkelBindingAPI"]`)
	} else {
		w.open(fmt.Sprintf("def Mesh %q", name))
	}
	w.line("int[] faceVertexCounts = %s", usdInts(g.Counts))
	w.line("int[] faceVertexIndices = %s", usdInts(g.Indices))

	if mesh.AnimationType == scene.VertexAnimated && len(mesh.VertexPositionsPerFrame) > 0 {
		frames := make([]int, 0, len(mesh.VertexPositionsPerFrame))
		for f := range mesh.VertexPositionsPerFrame {
			frames = append(frames, f)
		}
		sort.Ints(frames)
		w.line("point3f[] points.timeSamples = {")
		w.depth++
		for _, f := range frames {
			w.line("%d: %s,", f, usdVec3s(mesh.VertexPositionsPerFrame[f]))
		}
		w.depth--
		w.line("}")
	} else {
		w.line("point3f[] points = %s", usdVec3s(g.Positions))
	}
	w.line(`uniform token subdivisionScheme = "none"`)
	w.xformOps(mesh.Keyframes)

	if bs != nil {
		w.blendShapes(bs, name)
	}
	w.close()
}

// blendShapes writes one BlendShape prim per channel, a Skeleton carrying
// the weight animation and the bindings on the enclosing mesh. The target
// with the largest full weight is the primary shape, the others become
// inbetweens.
func (w *usdaWriter) blendShapes(bs *scene.BlendShapeDeformer, meshName string) {
	base := "/World/" + meshName
	var channels []scene.BlendShapeChannel
	for _, ch := range bs.Channels {
		if len(ch.Targets) > 0 {
			channels = append(channels, ch)
		}
	}
	var tokens, targets []string
	for _, ch := range channels {
		tokens = append(tokens, usdString(SanitizeName(ch.Name)))
		targets = append(targets, fmt.Sprintf("<%s/%s>", base, SanitizeName(ch.Name)))
	}
	w.line("uniform token[] skel:blendShapes = [%s]", strings.Join(tokens, ", "))
	w.line("rel skel:blendShapeTargets = [%s]", strings.Join(targets, ", "))
	w.line("rel skel:skeleton = <%s/Skel>", base)
	w.line("")

	for _, ch := range channels {
		primary := 0
		for i, t := range ch.Targets {
			if t.FullWeight > ch.Targets[primary].FullWeight {
				primary = i
			}
		}
		w.open(fmt.Sprintf("def BlendShape %q", SanitizeName(ch.Name)))
		w.line("uniform vector3f[] offsets = %s", usdVec3s(ch.Targets[primary].Deltas))
		w.line("uniform int[] pointIndices = %s", usdInts(ch.Targets[primary].VertexIndices))
		for i, t := range ch.Targets {
			if i == primary {
				continue
			}
			w.line("uniform vector3f[] inbetweens:%s = %s (", SanitizeName(t.Name), usdVec3s(t.Deltas))
			w.line("    weight = %s", num(t.FullWeight))
			w.line(")")
		}
		w.close()
	}

	w.open(`def Skeleton "Skel"`)
	w.line("rel skel:animationSource = <%s/Skel/Anim>", base)
	w.line("")
	w.open(`def SkelAnimation "Anim"`)
	w.line("uniform token[] blendShapes = [%s]", strings.Join(tokens, ", "))
	frames := weightFrames(channels)
	weights := func(frame float64) string {
		vals := make([]float64, len(channels))
		for i, ch := range channels {
			vals[i] = weightAt(ch, frame)
		}
		return usdFloats(vals)
	}
	if len(frames) == 0 {
		w.line("float[] blendShapeWeights = %s", weights(1))
	} else {
		w.line("float[] blendShapeWeights.timeSamples = {")
		w.depth++
		for _, f := range frames {
			w.line("%d: %s,", f, weights(float64(f)))
		}
		w.depth--
		w.line("}")
	}
	w.close()
	w.close()
}

// xformOps writes translate, rotateXYZ (Maya rotations) and scale, each
// either as a default or as per-frame time samples.
func (w *usdaWriter) xformOps(keys []scene.Keyframe) {
	first := firstKey(keys)
	ops := []struct {
		typ  string
		name string
		pick func(scene.Keyframe) math.Vec3
	}{
		{"double3", "xformOp:translate", keyPosition},
		{"float3", "xformOp:rotateXYZ", keyRotationMaya},
		{"float3", "xformOp:scale", keyScale},
	}
	for _, op := range ops {
		c := split(keys, op.pick)
		if !varies(c[0].values, usdChangePlaces) && !varies(c[1].values, usdChangePlaces) && !varies(c[2].values, usdChangePlaces) {
			w.line("%s %s = %s", op.typ, op.name, usdVec3(op.pick(first)))
			continue
		}
		w.line("%s %s.timeSamples = {", op.typ, op.name)
		w.depth++
		for _, k := range keys {
			w.line("%d: %s,", k.Frame, usdVec3(op.pick(k)))
		}
		w.depth--
		w.line("}")
	}
	w.line("uniform token[] xformOpOrder = %s", usdXformOpOrder)
}

func usdString(s string) string {
	return strconv.Quote(s)
}

func usdVec3(v math.Vec3) string {
	return "(" + num(v.X) + ", " + num(v.Y) + ", " + num(v.Z) + ")"
}

func usdVec3s(vs []math.Vec3) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = usdVec3(v)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func usdInts(vs []int) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = strconv.Itoa(v)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func usdFloats(vs []float64) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = num(v)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
