package export

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Faultbox/a2j/internal/scene"
)

const (
	mayaVersion      = "2020"
	mayaChangePlaces = 6
	inchToCM         = 2.54
)

// now is replaced in tests.
var now = time.Now

// mayaTimeUnits maps frame rates to currentUnit -t names.
var mayaTimeUnits = map[float64]string{
	15: "game",
	24: "film",
	25: "pal",
	30: "ntsc",
	48: "show",
	50: "palf",
	60: "ntscf",
}

// mayaTimeUnit returns the currentUnit time name for fps.
func mayaTimeUnit(fps float64) string {
	if u, ok := mayaTimeUnits[fps]; ok {
		return u
	}
	return num(roundTo(fps, 3)) + "fps"
}

// Maya writes a native Maya ASCII scene: transforms with shapes, meshes as
// polygon data and animCurves for the channels that change. Maya cannot
// hold baked point caches in a .ma file, so vertex-animated meshes get an
// AlembicNode pointing back at an Alembic source and are skipped otherwise.
type Maya struct{}

// NewMaya creates a Maya ASCII exporter.
func NewMaya() *Maya { return &Maya{} }

// Format implements Exporter.
func (e *Maya) Format() Format { return FormatMaya }

// Export implements Exporter.
func (e *Maya) Export(sd *scene.SceneData, outputDir, shotName string) (Result, error) {
	log := exportLogger(FormatMaya, shotName)
	if err := prepareDir(outputDir); err != nil {
		return failed(FormatMaya, err)
	}
	names := newNamer(sd)
	md := sd.Metadata
	source := mayaSourceKind(md.SourceFormatName)
	// vertex animation survives only as a reference back to an Alembic cache
	abcRefs := false
	if source == "Alembic" && md.SourceFilePath != "" {
		for i := range sd.Meshes {
			if sd.Meshes[i].AnimationType == scene.VertexAnimated {
				abcRefs = true
			}
		}
	}

	w := &maWriter{}
	w.header(shotName)
	w.requirements(abcRefs)
	w.units(md)
	if md.SourceFilePath != "" {
		w.line(`fileInfo "source%s" "%s";`, source, melString(md.SourceFilePath))
	}
	w.line("")
	w.buf.WriteString(mayaDefaultNodes)

	w.line("// Scene content")
	w.line("")
	for i := range sd.Cameras {
		cam := &sd.Cameras[i]
		w.camera(cam, names.camera(cam))
	}
	var skipped []string
	for i := range sd.Meshes {
		mesh := &sd.Meshes[i]
		name := names.mesh(mesh)
		if mesh.AnimationType == scene.VertexAnimated {
			if !abcRefs {
				skipped = append(skipped, name)
				log.Warn("skipping vertex-animated mesh without an Alembic source", zap.String("mesh", name))
				continue
			}
			w.alembicMesh(mesh, name, md.SourceFilePath)
			continue
		}
		w.mesh(mesh, name)
	}
	// locators keep their own name; their parent is usually a grouping node
	for i := range sd.Transforms {
		loc := &sd.Transforms[i]
		if len(loc.Keyframes) == 0 {
			continue
		}
		w.locator(loc, names.locator(loc))
	}

	w.line("// Shading connections")
	w.line("")
	for _, shape := range w.meshShapes {
		w.line(`connectAttr "%s.iog" ":initialShadingGroup.dsm" -na;`, shape)
	}
	w.line("")
	w.buf.WriteString(mayaDefaultConnections)

	path, err := writeFile(outputDir, shotName+".ma", w.buf.Bytes())
	if err != nil {
		return failed(FormatMaya, err)
	}
	msg := fmt.Sprintf("Maya MA export complete: %s.ma", shotName)
	if abcRefs {
		msg += "; vertex-animated meshes reference the original Alembic file"
	}
	if len(skipped) > 0 {
		msg += fmt.Sprintf("; skipped %d vertex-animated meshes", len(skipped))
	}
	log.Info("wrote Maya scene", zap.String("file", path), zap.Int("mesh_shapes", len(w.meshShapes)))
	return Result{Format: FormatMaya, Success: true, Files: []string{path}, Skipped: skipped, Message: msg}, nil
}

// mayaSourceKind names the source for fileInfo keys and node choices.
func mayaSourceKind(formatName string) string {
	switch formatName {
	case "Alembic":
		return "Alembic"
	case "USD":
		return "USD"
	}
	return "Maya"
}

type maWriter struct {
	buf        bytes.Buffer
	meshShapes []string
}

func (w *maWriter) line(format string, args ...any) {
	if len(args) == 0 {
		w.buf.WriteString(format)
	} else {
		fmt.Fprintf(&w.buf, format, args...)
	}
	w.buf.WriteByte('\n')
}

func (w *maWriter) header(shot string) {
	w.line("//Maya ASCII %s scene", mayaVersion)
	w.line("//Name: %s.ma", shot)
	w.line("//Last modified: %s", now().Format("Mon, Jan 02, 2006 03:04:05 PM"))
	w.line("//Codeset: UTF-8")
	w.line("")
}

func (w *maWriter) requirements(alembic bool) {
	w.line(`requires maya "%s";`, mayaVersion)
	if alembic {
		w.line(`requires -nodeType "AlembicNode" "AbcImport" "1.0";`)
	}
	w.line(`requires "stereoCamera" "10.0";`)
	w.line("")
}

func (w *maWriter) units(md scene.Metadata) {
	w.line("currentUnit -l centimeter -a degree -t %s;", mayaTimeUnit(md.FPS))
	w.line(`fileInfo "application" "maya";`)
	w.line(`fileInfo "product" "Maya %s";`, mayaVersion)
	w.line(`fileInfo "version" "%s";`, mayaVersion)
	w.line("playbackOptions -min 1 -max %d -ast 1 -aet %d;", md.FrameCount, md.FrameCount)
	w.line("")
}

// transform creates the transform node with its first-frame values.
func (w *maWriter) transform(name string, keys []scene.Keyframe) {
	k := firstKey(keys)
	w.line(`createNode transform -n "%s";`, name)
	w.line(`    setAttr ".t" -type "double3" %.6f %.6f %.6f;`, k.Position.X, k.Position.Y, k.Position.Z)
	w.line(`    setAttr ".r" -type "double3" %.6f %.6f %.6f;`, k.RotationMaya.X, k.RotationMaya.Y, k.RotationMaya.Z)
	w.line(`    setAttr ".s" -type "double3" %.6f %.6f %.6f;`, k.Scale.X, k.Scale.Y, k.Scale.Z)
}

func (w *maWriter) camera(cam *scene.CameraData, name string) {
	w.transform(name, cam.Keyframes)
	w.line(`createNode camera -n "%sShape" -p "%s";`, name, name)
	w.line(`    setAttr -k off ".v";`)
	w.line(`    setAttr ".fl" %s;`, num(cam.Properties.FocalLength))
	w.line(`    setAttr ".coi" 5;`)
	w.line(`    setAttr ".imn" -type "string" "%s";`, name)
	w.line(`    setAttr ".den" -type "string" "%s_depth";`, name)
	w.line(`    setAttr ".man" -type "string" "%s_mask";`, name)
	w.line(`    setAttr ".hfa" %s;`, num(cam.Properties.HAperture/inchToCM))
	w.line(`    setAttr ".vfa" %s;`, num(cam.Properties.VAperture/inchToCM))
	w.animCurves(name, cam.Keyframes)
	w.line("")
}

func (w *maWriter) mesh(mesh *scene.MeshData, name string) {
	w.transform(name, mesh.Keyframes)
	w.meshShape(name)
	w.polygons(mesh.Geometry)
	if mesh.AnimationType == scene.TransformOnly || mesh.AnimationType == scene.BlendShape {
		w.animCurves(name, mesh.Keyframes)
	}
	w.line("")
}

func (w *maWriter) meshShape(name string) string {
	shape := name + "Shape"
	w.meshShapes = append(w.meshShapes, shape)
	w.line(`createNode mesh -n "%s" -p "%s";`, shape, name)
	w.line(`    setAttr -k off ".v";`)
	w.line(`    setAttr ".vir" yes;`)
	w.line(`    setAttr ".vif" yes;`)
	return shape
}

// polygons writes vertices, the edge list derived from the faces and the
// polyFaces. Face winding is reversed for Maya.
func (w *maWriter) polygons(g scene.MeshGeometry) {
	type edgeKey struct{ a, b int }
	var edges [][2]int
	edgeIndex := map[edgeKey]int{}
	key := func(a, b int) edgeKey {
		if a > b {
			a, b = b, a
		}
		return edgeKey{a, b}
	}

	var faces [][]int
	off := 0
	for _, count := range g.Counts {
		if off+count > len(g.Indices) {
			break
		}
		verts := append([]int(nil), g.Indices[off:off+count]...)
		off += count
		for i := range verts {
			a, b := verts[i], verts[(i+1)%count]
			k := key(a, b)
			if _, ok := edgeIndex[k]; !ok {
				edgeIndex[k] = len(edges)
				edges = append(edges, [2]int{a, b})
			}
		}
		for i, j := 0, len(verts)-1; i < j; i, j = i+1, j-1 {
			verts[i], verts[j] = verts[j], verts[i]
		}
		faces = append(faces, verts)
	}

	if n := len(g.Positions); n > 0 {
		w.line(`    setAttr -s %d ".vt[0:%d]"`, n, n-1)
		for i, p := range g.Positions {
			w.line("        %.6f %.6f %.6f%s", p.X, p.Y, p.Z, terminator(i, n))
		}
	}
	if n := len(edges); n > 0 {
		w.line(`    setAttr -s %d ".ed[0:%d]"`, n, n-1)
		for i, e := range edges {
			w.line("        %d %d 0%s", e[0], e[1], terminator(i, n))
		}
	}
	if n := len(faces); n > 0 {
		w.line(`    setAttr -s %d -ch %d ".fc[0:%d]" -type "polyFaces"`, n, len(g.Indices), n-1)
		for i, verts := range faces {
			var b strings.Builder
			fmt.Fprintf(&b, "        f %d", len(verts))
			for j := range verts {
				a, c := verts[j], verts[(j+1)%len(verts)]
				idx := edgeIndex[key(a, c)]
				if edges[idx][0] == a {
					fmt.Fprintf(&b, " %d", idx)
				} else {
					fmt.Fprintf(&b, " %d", -idx-1)
				}
			}
			b.WriteString(terminator(i, n))
			w.line("%s", b.String())
		}
	}
}

func terminator(i, n int) string {
	if i == n-1 {
		return ";"
	}
	return ""
}

// alembicMesh streams a vertex-animated mesh from the source archive.
func (w *maWriter) alembicMesh(mesh *scene.MeshData, name, sourcePath string) {
	w.line(`createNode transform -n "%s";`, name)
	shape := w.meshShape(name)
	node := name + "_AlembicNode"
	w.line(`createNode AlembicNode -n "%s";`, node)
	w.line(`    setAttr ".abc_File" -type "string" "%s";`, melString(sourcePath))
	w.line(`    setAttr ".objectPath" -type "string" "%s";`, melString(mesh.FullPath))
	w.line(`connectAttr "time1.outTime" "%s.time";`, node)
	w.line(`connectAttr "%s.outPolyMesh[0]" "%s.inMesh";`, node, shape)
	w.line("")
}

func (w *maWriter) locator(loc *scene.TransformData, name string) {
	w.transform(name, loc.Keyframes)
	w.line(`createNode locator -n "%sShape" -p "%s";`, name, name)
	w.line(`    setAttr -k off ".v";`)
	w.animCurves(name, loc.Keyframes)
	w.line("")
}

// animCurves writes one animCurve per channel that changes over the keys.
func (w *maWriter) animCurves(node string, keys []scene.Keyframe) {
	if len(keys) < 2 {
		return
	}
	groups := []struct {
		attr  string
		short string
		typ   string
		axes  [3]curve
	}{
		{"translate", "t", "TL", split(keys, keyPosition)},
		{"rotate", "r", "TA", split(keys, keyRotationMaya)},
		{"scale", "s", "TU", split(keys, keyScale)},
	}
	for _, g := range groups {
		for _, c := range g.axes {
			if !varies(c.values, mayaChangePlaces) {
				continue
			}
			name := fmt.Sprintf("%s_%s%s", node, g.attr, c.axis)
			w.line(`createNode animCurve%s -n "%s";`, g.typ, name)
			w.line(`    setAttr ".tan" 18;`)
			w.line(`    setAttr ".wgt" no;`)
			w.line(`    setAttr -s %d ".ktv[0:%d]"`, len(keys), len(keys)-1)
			for i, k := range keys {
				w.line("        %d %.6f%s", k.Frame, c.values[i], terminator(i, len(keys)))
			}
			w.line(`connectAttr "%s.o" "%s.%s%s";`, name, node, g.short, strings.ToLower(c.axis))
		}
	}
}

// melString escapes s for a double-quoted MEL literal. Backslashes become
// forward slashes, which Maya accepts on every platform.
func melString(s string) string {
	s = strings.ReplaceAll(s, `\`, "/")
	return strings.ReplaceAll(s, `"`, `\"`)
}

const mayaDefaultNodes = `// Default Maya nodes
createNode transform -s -n "persp";
    setAttr ".t" -type "double3" 28 21 28;
    setAttr ".r" -type "double3" -27.9 45 0;
createNode camera -s -n "perspShape" -p "persp";
    setAttr -k off ".v";
    setAttr ".fl" 35;
    setAttr ".coi" 44.8;
    setAttr ".imn" -type "string" "persp";
    setAttr ".den" -type "string" "persp_depth";
    setAttr ".man" -type "string" "persp_mask";
    setAttr ".hc" -type "string" "viewSet -p %camera";
createNode transform -s -n "top";
    setAttr ".t" -type "double3" 0 1000.1 0;
    setAttr ".r" -type "double3" -90 0 0;
createNode camera -s -n "topShape" -p "top";
    setAttr -k off ".v";
    setAttr ".rnd" no;
    setAttr ".coi" 1000.1;
    setAttr ".ow" 30;
    setAttr ".imn" -type "string" "top";
    setAttr ".den" -type "string" "top_depth";
    setAttr ".man" -type "string" "top_mask";
    setAttr ".hc" -type "string" "viewSet -t %camera";
    setAttr ".o" yes;
createNode transform -s -n "front";
    setAttr ".t" -type "double3" 0 0 1000.1;
createNode camera -s -n "frontShape" -p "front";
    setAttr -k off ".v";
    setAttr ".rnd" no;
    setAttr ".coi" 1000.1;
    setAttr ".ow" 30;
    setAttr ".imn" -type "string" "front";
    setAttr ".den" -type "string" "front_depth";
    setAttr ".man" -type "string" "front_mask";
    setAttr ".hc" -type "string" "viewSet -f %camera";
    setAttr ".o" yes;
createNode transform -s -n "side";
    setAttr ".t" -type "double3" 1000.1 0 0;
    setAttr ".r" -type "double3" 0 90 0;
createNode camera -s -n "sideShape" -p "side";
    setAttr -k off ".v";
    setAttr ".rnd" no;
    setAttr ".coi" 1000.1;
    setAttr ".ow" 30;
    setAttr ".imn" -type "string" "side";
    setAttr ".den" -type "string" "side_depth";
    setAttr ".man" -type "string" "side_mask";
    setAttr ".hc" -type "string" "viewSet -s %camera";
    setAttr ".o" yes;

// Shading nodes
createNode lightLinker -s -n "lightLinker1";
createNode shapeEditorManager -n "shapeEditorManager";
createNode poseInterpolatorManager -n "poseInterpolatorManager";
createNode displayLayerManager -n "layerManager";
createNode displayLayer -n "defaultLayer";
createNode renderLayerManager -n "renderLayerManager";
createNode renderLayer -n "defaultRenderLayer";
    setAttr ".g" yes;

// Shading groups
createNode shadingEngine -n "initialShadingGroup" -s;
    setAttr ".ihi" 0;
    setAttr ".ro" yes;
createNode materialInfo -n "initialMaterialInfo";
createNode lambert -n "lambert1" -s;

`

const mayaDefaultConnections = `// Default connections
connectAttr "layerManager.dli[0]" "defaultLayer.id";
connectAttr "renderLayerManager.rlmi[0]" "defaultRenderLayer.rlid";
connectAttr "lambert1.oc" "initialShadingGroup.ss";
connectAttr "initialShadingGroup.msg" "initialMaterialInfo.sg";
connectAttr "lambert1.msg" "initialMaterialInfo.m";
// End of file
`
