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

const (
	// fbxTicksPerSecond is the KTime resolution.
	fbxTicksPerSecond = 46186158000
	fbxDocumentID     = 1000000000
	fbxFirstObjectID  = 1000000001
	fbxChangePlaces   = 4
	fbxKeyAttrFlags   = "24836" // linear interpolation
	fbxTake           = "Take 001"
)

// idAllocator hands out FBX object ids keyed by "Kind::name". One allocator
// lives for exactly one Export call.
type idAllocator struct {
	next int64
	ids  map[string]int64
}

func newIDAllocator() *idAllocator {
	return &idAllocator{next: fbxFirstObjectID, ids: map[string]int64{}}
}

// id returns the id of key, allocating one on first use.
func (a *idAllocator) id(key string) int64 {
	if id, ok := a.ids[key]; ok {
		return id
	}
	id := a.next
	a.ids[key] = id
	a.next++
	return id
}

type fbxConnection struct {
	child, parent int64
	property      string // empty for object-object
}

// fbxCounts tallies the objects declared in Definitions.
type fbxCounts struct {
	models, geometry, nodeAttrs, deformers int
	curveNodes, curves                     int
}

// FBX writes an FBX 7.4 ASCII scene. The file keeps Y up. Vertex-animated
// meshes are skipped since FBX has no portable point cache.
type FBX struct{}

// NewFBX creates an FBX exporter.
func NewFBX() *FBX { return &FBX{} }

// Format implements Exporter.
func (e *FBX) Format() Format { return FormatFBX }

// Export implements Exporter.
func (e *FBX) Export(sd *scene.SceneData, outputDir, shotName string) (Result, error) {
	log := exportLogger(FormatFBX, shotName)
	if err := prepareDir(outputDir); err != nil {
		return failed(FormatFBX, err)
	}
	if sd.Metadata.FPS <= 0 {
		return failed(FormatFBX, fmt.Errorf("invalid frame rate %v", sd.Metadata.FPS))
	}

	w := &fbxWriter{
		ids:    newIDAllocator(),
		groups: map[string]bool{},
		names:  newNamer(sd),
		fps:    sd.Metadata.FPS,
		end:    int64(float64(sd.Metadata.FrameCount) * fbxTicksPerSecond / sd.Metadata.FPS),
		log:    log,
	}
	groups := hierarchyGroups(sd)
	w.preregister(sd, groups)

	var skipped []string
	for _, g := range groups {
		if w.groups[g.name] {
			continue
		}
		if g.parent != "" && !w.groups[g.parent] {
			w.group(g.parent, "")
		}
		w.group(g.name, g.parent)
	}
	for i := range sd.Cameras {
		cam := &sd.Cameras[i]
		w.camera(cam, w.names.camera(cam))
	}
	for i := range sd.Meshes {
		mesh := &sd.Meshes[i]
		name := w.names.mesh(mesh)
		if mesh.AnimationType == scene.VertexAnimated {
			skipped = append(skipped, name)
			log.Debug("skipping vertex-animated mesh", zap.String("mesh", name))
			continue
		}
		w.mesh(mesh, name)
	}
	for i := range sd.Transforms {
		loc := &sd.Transforms[i]
		if len(loc.Keyframes) == 0 {
			continue
		}
		w.locator(loc, w.names.locator(loc))
	}
	w.animationStack()

	var out bytes.Buffer
	w.header(&out)
	w.globalSettings(&out)
	w.documents(&out)
	out.WriteString("References:  {\n}\n\n")
	w.definitions(&out)
	out.WriteString("Objects:  {\n")
	out.Write(w.objects.Bytes())
	out.WriteString("}\n\n")
	w.connectionsSection(&out)
	w.takes(&out)

	path, err := writeFile(outputDir, shotName+".fbx", out.Bytes())
	if err != nil {
		return failed(FormatFBX, err)
	}
	msg := fmt.Sprintf("FBX export complete: %s.fbx", shotName)
	if len(skipped) > 0 {
		msg += fmt.Sprintf(" (skipped %d vertex-animated meshes)", len(skipped))
	}
	log.Info("wrote FBX scene",
		zap.String("file", path),
		zap.Int("models", w.counts.models),
		zap.Int("curves", w.counts.curves),
		zap.Strings("skipped", skipped))
	return Result{Format: FormatFBX, Success: true, Files: []string{path}, Skipped: skipped, Message: msg}, nil
}

type fbxWriter struct {
	objects     bytes.Buffer
	ids         *idAllocator
	connections []fbxConnection
	counts      fbxCounts
	groups      map[string]bool
	names       *namer
	fps         float64
	end         int64
	log         *zap.Logger
}

func (w *fbxWriter) line(format string, args ...any) {
	w.objects.WriteString("    ")
	if len(args) == 0 {
		w.objects.WriteString(format)
	} else {
		fmt.Fprintf(&w.objects, format, args...)
	}
	w.objects.WriteByte('\n')
}

func (w *fbxWriter) connect(child, parent int64, property string) {
	w.connections = append(w.connections, fbxConnection{child, parent, property})
}

func (w *fbxWriter) ktime(frame int) int64 {
	return int64(float64(frame) * fbxTicksPerSecond / w.fps)
}

// preregister allocates model ids up front so parent lookups do not depend
// on write order.
func (w *fbxWriter) preregister(sd *scene.SceneData, groups []fbxGroup) {
	for _, g := range groups {
		w.ids.id("Model::" + g.name)
	}
	for i := range sd.Cameras {
		w.ids.id("Model::" + w.names.camera(&sd.Cameras[i]))
	}
	for i := range sd.Meshes {
		if sd.Meshes[i].AnimationType != scene.VertexAnimated {
			w.ids.id("Model::" + w.names.mesh(&sd.Meshes[i]))
		}
	}
	for i := range sd.Transforms {
		if len(sd.Transforms[i].Keyframes) > 0 {
			w.ids.id("Model::" + w.names.locator(&sd.Transforms[i]))
		}
	}
}

// parentOf connects model to the hierarchy group named by fullPath, or to
// the root. Only identity groups are used as parents since keyframes are
// world space.
func (w *fbxWriter) parentOf(fullPath, name string, model int64) {
	parent := nodeParent(fullPath)
	if parent != "" && parent != name && w.groups[parent] {
		w.connect(model, w.ids.id("Model::"+parent), "")
		return
	}
	w.connect(model, 0, "")
}

func (w *fbxWriter) header(out *bytes.Buffer) {
	t := now()
	fmt.Fprintf(out, `; FBX 7.4.0 project file
; Created by a2j
; ----------------------------------------------------

FBXHeaderExtension:  {
    FBXHeaderVersion: 1003
    FBXVersion: 7400
    CreationTimeStamp:  {
        Version: 1000
        Year: %d
        Month: %d
        Day: %d
        Hour: %d
        Minute: %d
        Second: %d
        Millisecond: 0
    }
    Creator: "a2j"
    SceneInfo: "SceneInfo::GlobalInfo", "UserData" {
        Type: "UserData"
        Version: 100
        MetaData:  {
            Version: 100
            Title: ""
            Subject: ""
            Author: ""
            Keywords: ""
            Revision: ""
            Comment: ""
        }
    }
}

`, t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second())
}

func (w *fbxWriter) globalSettings(out *bytes.Buffer) {
	fmt.Fprintf(out, `GlobalSettings:  {
    Version: 1000
    Properties70:  {
        P: "UpAxis", "int", "Integer", "",1
        P: "UpAxisSign", "int", "Integer", "",1
        P: "FrontAxis", "int", "Integer", "",2
        P: "FrontAxisSign", "int", "Integer", "",1
        P: "CoordAxis", "int", "Integer", "",0
        P: "CoordAxisSign", "int", "Integer", "",1
        P: "OriginalUpAxis", "int", "Integer", "",1
        P: "OriginalUpAxisSign", "int", "Integer", "",1
        P: "UnitScaleFactor", "double", "Number", "",1
        P: "OriginalUnitScaleFactor", "double", "Number", "",1
        P: "TimeSpanStart", "KTime", "Time", "",0
        P: "TimeSpanStop", "KTime", "Time", "",%d
        P: "CustomFrameRate", "double", "Number", "",%s
    }
}

`, w.end, num(w.fps))
}

func (w *fbxWriter) documents(out *bytes.Buffer) {
	fmt.Fprintf(out, `Documents:  {
    Count: 1
    Document: %d, "", "Scene" {
        Properties70:  {
            P: "SourceObject", "object", "", ""
            P: "ActiveAnimStackName", "KString", "", "", "%s"
        }
        RootNode: 0
    }
}

`, fbxDocumentID, fbxTake)
}

func (w *fbxWriter) definitions(out *bytes.Buffer) {
	c := w.counts
	// GlobalSettings, AnimationStack and AnimationLayer plus the version slot
	total := 4 + c.models + c.geometry + c.nodeAttrs + c.deformers + c.curveNodes + c.curves
	fmt.Fprintf(out, `Definitions:  {
    Version: 100
    Count: %d
    ObjectType: "GlobalSettings" {
        Count: 1
    }
    ObjectType: "Model" {
        Count: %d
        PropertyTemplate: "FbxNode" {
            Properties70:  {
                P: "Lcl Translation", "Lcl Translation", "", "A",0,0,0
                P: "Lcl Rotation", "Lcl Rotation", "", "A",0,0,0
                P: "Lcl Scaling", "Lcl Scaling", "", "A",1,1,1
            }
        }
    }
    ObjectType: "Geometry" {
        Count: %d
        PropertyTemplate: "FbxMesh" {
            Properties70:  {
                P: "Color", "ColorRGB", "Color", "",0.8,0.8,0.8
                P: "BBoxMin", "Vector3D", "Vector", "",0,0,0
                P: "BBoxMax", "Vector3D", "Vector", "",0,0,0
                P: "Primary Visibility", "bool", "", "",1
                P: "Casts Shadows", "bool", "", "",1
                P: "Receive Shadows", "bool", "", "",1
            }
        }
    }
    ObjectType: "NodeAttribute" {
        Count: %d
        PropertyTemplate: "FbxCamera" {
            Properties70:  {
                P: "FocalLength", "Number", "", "A",35
                P: "NearPlane", "double", "Number", "",0.1
                P: "FarPlane", "double", "Number", "",10000
            }
        }
    }
    ObjectType: "AnimationStack" {
        Count: 1
    }
    ObjectType: "AnimationLayer" {
        Count: 1
    }
`, total, c.models, c.geometry, c.nodeAttrs)
	if c.curveNodes > 0 {
		fmt.Fprintf(out, "    ObjectType: \"AnimationCurveNode\" {\n        Count: %d\n    }\n", c.curveNodes)
	}
	if c.curves > 0 {
		fmt.Fprintf(out, "    ObjectType: \"AnimationCurve\" {\n        Count: %d\n    }\n", c.curves)
	}
	if c.deformers > 0 {
		fmt.Fprintf(out, "    ObjectType: \"Deformer\" {\n        Count: %d\n    }\n", c.deformers)
	}
	out.WriteString("}\n\n")
}

// group writes an identity Null standing in for an intermediate node.
func (w *fbxWriter) group(name, parent string) {
	model := w.ids.id("Model::" + name)
	attr := w.ids.id("NodeAttribute::" + name)
	w.nullAttribute(attr, name)
	w.line(`Model: %d, "Model::%s", "Null" {`, model, name)
	w.line(`    Version: 232`)
	w.line(`    Properties70:  {`)
	w.line(`        P: "Lcl Translation", "Lcl Translation", "", "A",0,0,0`)
	w.line(`        P: "Lcl Rotation", "Lcl Rotation", "", "A",0,0,0`)
	w.line(`        P: "Lcl Scaling", "Lcl Scaling", "", "A",1,1,1`)
	w.line(`    }`)
	w.line(`    Shading: Y`)
	w.line(`    Culling: "CullingOff"`)
	w.line(`}`)
	w.counts.models++
	w.connect(attr, model, "")
	if parent != "" && w.groups[parent] {
		w.connect(model, w.ids.id("Model::"+parent), "")
	} else {
		w.connect(model, 0, "")
	}
	w.groups[name] = true
	w.log.Debug("created hierarchy group", zap.String("group", name))
}

func (w *fbxWriter) nullAttribute(id int64, name string) {
	w.line(`NodeAttribute: %d, "NodeAttribute::%s", "Null" {`, id, name)
	w.line(`    TypeFlags: "Null"`)
	w.line(`}`)
	w.counts.nodeAttrs++
}

func (w *fbxWriter) lclProperties(k scene.Keyframe, scale bool) {
	p, r := k.Position, k.RotationMaya
	w.line(`        P: "Lcl Translation", "Lcl Translation", "", "A",%.6f,%.6f,%.6f`, p.X, p.Y, p.Z)
	w.line(`        P: "Lcl Rotation", "Lcl Rotation", "", "A",%.6f,%.6f,%.6f`, r.X, r.Y, r.Z)
	if scale {
		s := k.Scale
		w.line(`        P: "Lcl Scaling", "Lcl Scaling", "", "A",%.6f,%.6f,%.6f`, s.X, s.Y, s.Z)
	} else {
		w.line(`        P: "Lcl Scaling", "Lcl Scaling", "", "A",1,1,1`)
	}
}

func (w *fbxWriter) camera(cam *scene.CameraData, name string) {
	model := w.ids.id("Model::" + name)
	attr := w.ids.id("NodeAttribute::" + name)

	w.line(`NodeAttribute: %d, "NodeAttribute::%s", "Camera" {`, attr, name)
	w.line(`    Properties70:  {`)
	w.line(`        P: "FocalLength", "Number", "", "A",%s`, num(cam.Properties.FocalLength))
	w.line(`        P: "NearPlane", "double", "Number", "",0.1`)
	w.line(`        P: "FarPlane", "double", "Number", "",10000`)
	w.line(`    }`)
	w.line(`    TypeFlags: "Camera"`)
	w.line(`    GeometryVersion: 124`)
	w.line(`    Position: 0,0,0`)
	w.line(`    Up: 0,1,0`)
	w.line(`    LookAt: 0,0,-1`)
	w.line(`    ShowInfoOnMoving: 1`)
	w.line(`    ShowAudio: 0`)
	w.line(`    AudioColor: 0,1,0`)
	w.line(`    CameraOrthoZoom: 1`)
	w.line(`}`)
	w.counts.nodeAttrs++

	// PostRotation turns the FBX camera axis (+X) onto the Maya one (-Z)
	w.line(`Model: %d, "Model::%s", "Camera" {`, model, name)
	w.line(`    Version: 232`)
	w.line(`    Properties70:  {`)
	w.line(`        P: "PostRotation", "Vector3D", "Vector", "",0,-90,0`)
	w.line(`        P: "RotationActive", "bool", "", "",1`)
	w.line(`        P: "InheritType", "enum", "", "",1`)
	w.line(`        P: "ScalingMax", "Vector3D", "Vector", "",0,0,0`)
	w.line(`        P: "DefaultAttributeIndex", "int", "Integer", "",0`)
	w.lclProperties(firstKey(cam.Keyframes), false)
	w.line(`    }`)
	w.line(`    Shading: Y`)
	w.line(`    Culling: "CullingOff"`)
	w.line(`}`)
	w.counts.models++

	w.parentOf(cam.FullPath, name, model)
	w.connect(attr, model, "")
	w.transformCurves(cam.Keyframes, name)
}

func (w *fbxWriter) mesh(mesh *scene.MeshData, name string) {
	model := w.ids.id("Model::" + name)
	geom := w.ids.id("Geometry::" + name)
	first := firstKey(mesh.Keyframes)
	g := mesh.Geometry

	// vertices are stored relative to the first-frame position
	local := make([]math.Vec3, len(g.Positions))
	for i, p := range g.Positions {
		local[i] = p.Sub(first.Position)
	}
	poly := polygonVertexIndex(g)
	normals := flatNormals(local, g)

	w.line(`Geometry: %d, "Geometry::%s", "Mesh" {`, geom, name)
	w.array("    Vertices", fbxVec3s(local), len(local)*3)
	w.array("    PolygonVertexIndex", fbxInts(poly), len(poly))
	w.line(`    GeometryVersion: 124`)
	w.line(`    LayerElementNormal: 0 {`)
	w.line(`        Version: 102`)
	w.line(`        Name: ""`)
	w.line(`        MappingInformationType: "ByPolygonVertex"`)
	w.line(`        ReferenceInformationType: "Direct"`)
	w.array("        Normals", fbxVec3s(normals), len(normals)*3)
	w.line(`    }`)
	w.line(`    LayerElementUV: 0 {`)
	w.line(`        Version: 101`)
	w.line(`        Name: "UVMap"`)
	w.line(`        MappingInformationType: "ByPolygonVertex"`)
	w.line(`        ReferenceInformationType: "Direct"`)
	w.array("        UV", strings.TrimSuffix(strings.Repeat("0,0,", len(poly)), ","), len(poly)*2)
	w.line(`    }`)
	w.line(`    Layer: 0 {`)
	w.line(`        Version: 100`)
	w.line(`        LayerElement:  {`)
	w.line(`            Type: "LayerElementNormal"`)
	w.line(`            TypedIndex: 0`)
	w.line(`        }`)
	w.line(`        LayerElement:  {`)
	w.line(`            Type: "LayerElementUV"`)
	w.line(`            TypedIndex: 0`)
	w.line(`        }`)
	w.line(`    }`)
	w.line(`}`)
	w.counts.geometry++

	w.line(`Model: %d, "Model::%s", "Mesh" {`, model, name)
	w.line(`    Version: 232`)
	w.line(`    Properties70:  {`)
	w.line(`        P: "RotationActive", "bool", "", "",1`)
	w.line(`        P: "InheritType", "enum", "", "",1`)
	w.line(`        P: "ScalingMax", "Vector3D", "Vector", "",0,0,0`)
	w.line(`        P: "DefaultAttributeIndex", "int", "Integer", "",0`)
	w.lclProperties(first, true)
	w.line(`    }`)
	w.line(`    Shading: T`)
	w.line(`    Culling: "CullingOff"`)
	w.line(`}`)
	w.counts.models++

	w.parentOf(mesh.FullPath, name, model)
	w.connect(geom, model, "")

	switch mesh.AnimationType {
	case scene.TransformOnly:
		w.transformCurves(mesh.Keyframes, name)
	case scene.BlendShape:
		w.transformCurves(mesh.Keyframes, name)
		if mesh.BlendShapes != nil {
			w.blendShapes(mesh.BlendShapes, name, geom)
		}
	}
}

func (w *fbxWriter) blendShapes(bs *scene.BlendShapeDeformer, meshName string, geom int64) {
	deformerName := SanitizeName(bs.Name)
	deformer := w.ids.id("Deformer::" + meshName + "/" + bs.Name)
	w.line(`Deformer: %d, "Deformer::%s", "BlendShape" {`, deformer, deformerName)
	w.line(`    Version: 100`)
	w.line(`}`)
	w.counts.deformers++
	w.connect(deformer, geom, "")

	for _, ch := range bs.Channels {
		chName := SanitizeName(ch.Name)
		channel := w.ids.id("SubDeformer::" + meshName + "/" + ch.Name)
		weights := make([]int, len(ch.Targets))
		for i, t := range ch.Targets {
			weights[i] = int(t.FullWeight * 100)
		}
		w.line(`Deformer: %d, "SubDeformer::%s", "BlendShapeChannel" {`, channel, chName)
		w.line(`    Version: 100`)
		w.line(`    DeformPercent: %.1f`, ch.DefaultWeight*100)
		w.array("    FullWeights", fbxInts(weights), len(weights))
		w.line(`}`)
		w.counts.deformers++
		w.connect(channel, deformer, "")

		for _, t := range ch.Targets {
			shape := w.ids.id("Geometry::" + meshName + "_" + ch.Name + "_" + t.Name)
			w.line(`Geometry: %d, "Geometry::%s", "Shape" {`, shape, SanitizeName(t.Name))
			w.line(`    Version: 100`)
			w.array("    Indexes", fbxInts(t.VertexIndices), len(t.VertexIndices))
			w.array("    Vertices", fbxVec3s(t.Deltas), len(t.Deltas)*3)
			w.line(`}`)
			w.counts.geometry++
			w.connect(shape, channel, "")
		}

		if ch.IsAnimated() {
			w.deformPercentCurve(ch, meshName, channel)
		}
	}
}

func (w *fbxWriter) deformPercentCurve(ch scene.BlendShapeChannel, meshName string, channel int64) {
	layer := w.ids.id("AnimationLayer::BaseLayer")
	node := w.ids.id("AnimCurveNode::" + meshName + "/" + ch.Name + "_DeformPercent")
	frames := make([]int, len(ch.WeightKeys))
	values := make([]float64, len(ch.WeightKeys))
	for i, k := range ch.WeightKeys {
		frames[i] = k.Frame
		values[i] = k.Weight * 100
	}
	w.line(`AnimationCurveNode: %d, "AnimCurveNode::DeformPercent", "" {`, node)
	w.line(`    Properties70:  {`)
	w.line(`        P: "d|DeformPercent", "Number", "", "A",%.6f`, values[0])
	w.line(`    }`)
	w.line(`}`)
	w.counts.curveNodes++
	w.connect(node, layer, "")
	w.connect(node, channel, "DeformPercent")

	c := w.ids.id("AnimCurve::" + meshName + "/" + ch.Name + "_DeformPercent")
	w.animCurve(c, frames, values)
	w.connect(c, node, "d|DeformPercent")
}

func (w *fbxWriter) locator(loc *scene.TransformData, name string) {
	model := w.ids.id("Model::" + name)
	attr := w.ids.id("NodeAttribute::" + name)
	w.nullAttribute(attr, name)
	w.line(`Model: %d, "Model::%s", "Null" {`, model, name)
	w.line(`    Version: 232`)
	w.line(`    Properties70:  {`)
	w.lclProperties(firstKey(loc.Keyframes), true)
	w.line(`    }`)
	w.line(`    Shading: Y`)
	w.line(`    Culling: "CullingOff"`)
	w.line(`}`)
	w.counts.models++
	w.connect(attr, model, "")
	w.parentOf(loc.FullPath, name, model)
	w.transformCurves(loc.Keyframes, name)
}

// transformCurves writes a T and an R curve node when any of their axes
// change, with one curve per changing axis.
func (w *fbxWriter) transformCurves(keys []scene.Keyframe, name string) {
	if len(keys) < 2 {
		return
	}
	model := w.ids.id("Model::" + name)
	layer := w.ids.id("AnimationLayer::BaseLayer")
	frames := make([]int, len(keys))
	for i, k := range keys {
		frames[i] = k.Frame
	}
	channels := []struct {
		prefix, property string
		axes             [3]curve
	}{
		{"T", "Lcl Translation", split(keys, keyPosition)},
		{"R", "Lcl Rotation", split(keys, keyRotationMaya)},
	}
	for _, ch := range channels {
		if !varies(ch.axes[0].values, fbxChangePlaces) && !varies(ch.axes[1].values, fbxChangePlaces) && !varies(ch.axes[2].values, fbxChangePlaces) {
			continue
		}
		node := w.ids.id("AnimCurveNode::" + name + "_" + ch.prefix)
		w.line(`AnimationCurveNode: %d, "AnimCurveNode::%s", "" {`, node, ch.prefix)
		w.line(`    Properties70:  {`)
		for _, c := range ch.axes {
			w.line(`        P: "d|%s", "Number", "", "A",%.6f`, c.axis, c.values[0])
		}
		w.line(`    }`)
		w.line(`}`)
		w.counts.curveNodes++
		w.connect(node, layer, "")
		w.connect(node, model, ch.property)

		for _, c := range ch.axes {
			if !varies(c.values, fbxChangePlaces) {
				continue
			}
			id := w.ids.id("AnimCurve::" + name + "_" + ch.prefix + "_" + c.axis)
			w.animCurve(id, frames, c.values)
			w.connect(id, node, "d|"+c.axis)
		}
	}
}

func (w *fbxWriter) animCurve(id int64, frames []int, values []float64) {
	n := len(frames)
	times := make([]string, n)
	for i, f := range frames {
		times[i] = strconv.FormatInt(w.ktime(f), 10)
	}
	vals := make([]string, n)
	for i, v := range values {
		vals[i] = fmt.Sprintf("%.6f", v)
	}
	w.line(`AnimationCurve: %d, "AnimCurve::", "" {`, id)
	w.line(`    Default: 0`)
	w.line(`    KeyVer: 4009`)
	w.array("    KeyTime", strings.Join(times, ","), n)
	w.array("    KeyValueFloat", strings.Join(vals, ","), n)
	w.array("    KeyAttrFlags", repeatJoin(fbxKeyAttrFlags, n), n)
	w.array("    KeyAttrDataFloat", repeatJoin("0,0,0,0", n), n*4)
	w.array("    KeyAttrRefCount", repeatJoin("1", n), n)
	w.line(`}`)
	w.counts.curves++
}

func (w *fbxWriter) animationStack() {
	stack := w.ids.id("AnimationStack::Take001")
	layer := w.ids.id("AnimationLayer::BaseLayer")
	w.line(`AnimationStack: %d, "AnimStack::%s", "" {`, stack, fbxTake)
	w.line(`    Properties70:  {`)
	w.line(`        P: "LocalStop", "KTime", "Time", "",%d`, w.end)
	w.line(`        P: "ReferenceStop", "KTime", "Time", "",%d`, w.end)
	w.line(`    }`)
	w.line(`}`)
	w.line(`AnimationLayer: %d, "AnimLayer::BaseLayer", "" {`, layer)
	w.line(`}`)
	w.connect(layer, stack, "")
}

func (w *fbxWriter) connectionsSection(out *bytes.Buffer) {
	out.WriteString("Connections:  {\n")
	for _, c := range w.connections {
		if c.property != "" {
			fmt.Fprintf(out, "    C: \"OP\",%d,%d, \"%s\"\n", c.child, c.parent, c.property)
		} else {
			fmt.Fprintf(out, "    C: \"OO\",%d,%d\n", c.child, c.parent)
		}
	}
	out.WriteString("}\n\n")
}

func (w *fbxWriter) takes(out *bytes.Buffer) {
	fmt.Fprintf(out, `Takes:  {
    Current: "%s"
    Take: "%s" {
        FileName: "Take_001.tak"
        LocalTime: 0,%d
        ReferenceTime: 0,%d
    }
}
`, fbxTake, fbxTake, w.end, w.end)
}

// array writes an FBX "Name: *N { a: ... }" block.
func (w *fbxWriter) array(name, values string, n int) {
	indent := name[:len(name)-len(strings.TrimLeft(name, " "))]
	w.line("%s: *%d {", name, n)
	w.line("%s    a: %s", indent, values)
	w.line("%s}", indent)
}

type fbxGroup struct {
	name, parent string
	depth        int
}

// hierarchyGroups lists the intermediate path nodes that are not exported
// objects themselves, parents first.
func hierarchyGroups(sd *scene.SceneData) []fbxGroup {
	known := map[string]bool{}
	var paths []string
	for i := range sd.Cameras {
		known[SanitizeName(sd.Cameras[i].DisplayName())] = true
		paths = append(paths, sd.Cameras[i].FullPath)
	}
	for i := range sd.Meshes {
		known[SanitizeName(sd.Meshes[i].DisplayName())] = true
		paths = append(paths, sd.Meshes[i].FullPath)
	}
	for i := range sd.Transforms {
		known[SanitizeName(sd.Transforms[i].Name)] = true
		paths = append(paths, sd.Transforms[i].FullPath)
	}

	index := map[string]int{}
	var groups []fbxGroup
	for _, p := range paths {
		parts := pathParts(p)
		for i, part := range parts[:max(len(parts)-1, 0)] {
			name := SanitizeName(part)
			if known[name] {
				continue
			}
			g := fbxGroup{name: name, depth: i}
			if i > 0 {
				g.parent = SanitizeName(parts[i-1])
			}
			if at, ok := index[name]; ok {
				groups[at] = g
				continue
			}
			index[name] = len(groups)
			groups = append(groups, g)
		}
	}
	sort.SliceStable(groups, func(i, j int) bool { return groups[i].depth < groups[j].depth })
	return groups
}

// nodeParent returns the sanitized name of the node above the object at
// fullPath. Shape paths skip their own transform.
func nodeParent(fullPath string) string {
	parts := pathParts(fullPath)
	switch {
	case len(parts) < 2:
		return ""
	case strings.HasSuffix(parts[len(parts)-1], "Shape") && len(parts) >= 3:
		return SanitizeName(parts[len(parts)-3])
	default:
		return SanitizeName(parts[len(parts)-2])
	}
}

func pathParts(p string) []string {
	var parts []string
	for _, s := range strings.Split(p, "/") {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return parts
}

// polygonVertexIndex marks the last index of every polygon as -i-1.
func polygonVertexIndex(g scene.MeshGeometry) []int {
	out := make([]int, 0, len(g.Indices))
	off := 0
	for _, count := range g.Counts {
		if count == 0 || off+count > len(g.Indices) {
			break
		}
		out = append(out, g.Indices[off:off+count-1]...)
		out = append(out, -g.Indices[off+count-1]-1)
		off += count
	}
	return out
}

// flatNormals returns one normal per polygon vertex. Degenerate faces get
// +Z.
func flatNormals(positions []math.Vec3, g scene.MeshGeometry) []math.Vec3 {
	up := math.Vec3{Z: 1}
	at := func(i int) math.Vec3 {
		if i >= 0 && i < len(positions) {
			return positions[i]
		}
		return math.Vec3{}
	}
	var out []math.Vec3
	off := 0
	for _, count := range g.Counts {
		if off+count > len(g.Indices) {
			break
		}
		n := up
		if count >= 3 {
			v0 := at(g.Indices[off])
			e1 := at(g.Indices[off+1]).Sub(v0)
			e2 := at(g.Indices[off+2]).Sub(v0)
			c := e2.Cross(e1)
			if c.Length() > 1e-10 {
				n = c.Normalize()
			}
		}
		for i := 0; i < count; i++ {
			out = append(out, n)
		}
		off += count
	}
	return out
}

func fbxVec3s(vs []math.Vec3) string {
	parts := make([]string, 0, len(vs)*3)
	for _, v := range vs {
		parts = append(parts, fmt.Sprintf("%.6f", v.X), fmt.Sprintf("%.6f", v.Y), fmt.Sprintf("%.6f", v.Z))
	}
	return strings.Join(parts, ",")
}

func fbxInts(vs []int) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}

func repeatJoin(s string, n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat(s+",", n), ",")
}
