package export

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/Faultbox/a2j/internal/scene"
	"github.com/Faultbox/a2j/pkg/math"
)

// After Effects defaults.
const (
	DefaultPositionScale     = 10.0
	DefaultScaleCompensation = 2.0
	defaultHAperture         = 3.6 // cm
	aeStaticTolerance        = 1e-4
	aeLabelYellow            = 13
)

// AEOptions tunes the After Effects coordinate mapping.
type AEOptions struct {
	// PositionScale converts scene units to composition pixels.
	PositionScale float64
	// ScaleCompensation multiplies layer scale to match OBJ footage that
	// After Effects imports at half size.
	ScaleCompensation float64
}

// DefaultAEOptions returns the stock mapping.
func DefaultAEOptions() AEOptions {
	return AEOptions{PositionScale: DefaultPositionScale, ScaleCompensation: DefaultScaleCompensation}
}

func (o AEOptions) withDefaults() AEOptions {
	if o.PositionScale == 0 {
		o.PositionScale = DefaultPositionScale
	}
	if o.ScaleCompensation == 0 {
		o.ScaleCompensation = DefaultScaleCompensation
	}
	return o
}

// aeHelperNames are tracking-rig leftovers that never become layers.
var aeHelperNames = map[string]bool{
	"Meshes": true, "Cameras": true, "ReadGeo": true, "root": true,
	"persp": true, "top": true, "front": true, "side": true,
}

// isAEHelper reports whether a locator is scaffolding from the tracking
// package rather than a point the compositor wants.
func isAEHelper(name, parent string) bool {
	switch {
	case strings.Contains(name, "Screen") || strings.Contains(parent, "Screen"):
		return true
	case strings.Contains(name, "Trackers") && !strings.HasPrefix(name, "Tracker"):
		return true
	case aeHelperNames[name], strings.HasPrefix(name, "ReadGeo"), strings.HasPrefix(name, "Scene"):
		return true
	}
	return false
}

// AE writes an ExtendScript that rebuilds the shot as a composition, plus
// one OBJ per mesh. After Effects has no deforming geometry, so
// vertex-animated meshes are left out.
type AE struct {
	opts AEOptions
}

// NewAE creates an After Effects exporter.
func NewAE(opts AEOptions) *AE {
	return &AE{opts: opts.withDefaults()}
}

// Format implements Exporter.
func (e *AE) Format() Format { return FormatAE }

// Export implements Exporter.
func (e *AE) Export(sd *scene.SceneData, outputDir, shotName string) (Result, error) {
	log := exportLogger(FormatAE, shotName)
	if err := prepareDir(outputDir); err != nil {
		return failed(FormatAE, err)
	}
	names := newNamer(sd)
	md := sd.Metadata
	w := &aeScript{opts: e.opts, width: float64(md.Width), height: float64(md.Height), fps: md.FPS}

	w.header(md)
	w.helpers()
	w.line("function SceneImportFunction() {")
	w.line("")
	w.line("app.exitAfterLaunchAndEval = false;")
	w.line("")
	w.line("app.beginUndoGroup('Scene Import');")
	w.line("")
	w.line("var comp = app.project.items.addComp('%s', %d, %d, 1.0, %s, %s);",
		jsString(shotName), md.Width, md.Height, num(md.Duration()), num(md.FPS))
	w.line("comp.displayStartFrame = 1;")
	w.line("")
	if md.FootagePath != "" {
		w.footage(md.FootagePath, shotName)
	}

	for i := range sd.Cameras {
		cam := &sd.Cameras[i]
		w.camera(cam, names.camera(cam))
		w.line("")
	}

	var objFiles, skipped []string
	for i := range sd.Meshes {
		mesh := &sd.Meshes[i]
		name := names.mesh(mesh)
		if mesh.AnimationType == scene.VertexAnimated {
			skipped = append(skipped, name)
			log.Info("skipping vertex-animated mesh", zap.String("mesh", name))
			continue
		}
		path, err := writeFile(outputDir, name+".obj", encodeOBJ(name, md.SourceFormatName, mesh.Geometry))
		if err != nil {
			return failed(FormatAE, err)
		}
		objFiles = append(objFiles, path)
		w.mesh(mesh, name)
	}

	for i := range sd.Transforms {
		loc := &sd.Transforms[i]
		if len(loc.Keyframes) == 0 || isAEHelper(loc.Name, loc.ParentName) {
			continue
		}
		w.locator(loc, names.locator(loc))
	}
	w.footer()

	jsx, err := writeFile(outputDir, shotName+".jsx", w.buf.Bytes())
	if err != nil {
		return failed(FormatAE, err)
	}

	log.Info("wrote After Effects script",
		zap.String("file", jsx),
		zap.Int("obj_files", len(objFiles)),
		zap.Int("skipped", len(skipped)))
	return Result{
		Format:  FormatAE,
		Success: true,
		Files:   append([]string{jsx}, objFiles...),
		Skipped: skipped,
		Message: fmt.Sprintf("Exported %d OBJ files, skipped %d vertex-animated meshes", len(objFiles), len(skipped)),
	}, nil
}

type aeScript struct {
	buf    bytes.Buffer
	opts   AEOptions
	width  float64
	height float64
	fps    float64
}

func (w *aeScript) line(format string, args ...any) {
	if len(args) == 0 {
		w.buf.WriteString(format)
	} else {
		fmt.Fprintf(&w.buf, format, args...)
	}
	w.buf.WriteByte('\n')
}

// position maps a Y-up scene position into composition space: origin at
// the comp centre, Y down, Z away from the viewer.
func (w *aeScript) position(p math.Vec3) math.Vec3 {
	s := w.opts.PositionScale
	return math.Vec3{X: p.X*s + w.width/2, Y: -p.Y*s + w.height/2, Z: -p.Z * s}
}

// seconds converts a 1-based frame to composition time.
func (w *aeScript) seconds(frame int) float64 {
	if w.fps <= 0 {
		return 0
	}
	return float64(frame) / w.fps
}

func (w *aeScript) scale(s math.Vec3) math.Vec3 {
	return s.Scale(w.opts.ScaleCompensation)
}

func (w *aeScript) header(md scene.Metadata) {
	w.line("// Auto-generated JSX from %s", md.SourceFormatName)
	w.line("// Exported from: %s", filepath.Base(md.SourceFilePath))
	w.line("// Y-up coordinate system, 1:1 scale")
	w.line("")
	w.line("app.activate();")
	w.line("")
}

func (w *aeScript) helpers() {
	w.buf.WriteString(aeHelperFunctions)
	w.line("")
}

func (w *aeScript) footage(path, shot string) {
	w.line("// Import footage file from scene metadata")
	w.line("var footagePath = '%s';", jsString(strings.ReplaceAll(path, `\`, "/")))
	w.line("var footageFile = new File(footagePath);")
	w.line("if (footageFile.exists) {")
	w.line("    var footageImportOptions = new ImportOptions(footageFile);")
	w.line("    var footageItem = app.project.importFile(footageImportOptions);")
	w.line("    footageItem.selected = false;")
	w.line("    footageItem.name = '%s_Footage';", jsString(shot))
	w.line("    // Add footage to composition as background layer")
	w.line("    var footageLayer = comp.layers.add(footageItem);")
	w.line("    footageLayer.name = '%s_Footage';", jsString(shot))
	w.line("    footageLayer.moveToEnd();")
	w.line("} else {")
	w.line("    alert('Warning: Footage file not found at path: ' + footagePath);")
	w.line("}")
	w.line("")
}

func (w *aeScript) footer() {
	w.line("// Make comp the current open composition")
	w.line("comp.selected = true;")
	w.line("deselectAll(app.project.items);")
	w.line("comp.selected = true;")
	w.line("comp.openInViewer();")
	w.line("")
	w.line("app.endUndoGroup();")
	w.line("alert('Scene import complete!');")
	w.line("")
	w.line("} // End SceneImportFunction")
	w.line("")
	w.line("SceneImportFunction();")
}

// camera is keyed on every frame, moving or not.
func (w *aeScript) camera(cam *scene.CameraData, name string) {
	layer := "camera_" + name
	w.line("var %s = comp.layers.addCamera('%s', [0, 0]);", layer, name)
	w.line("%s.autoOrient = AutoOrientType.NO_AUTO_ORIENT;", layer)
	w.keyArrays(layer, cam.Keyframes, false)

	hAperture := cam.Properties.HAperture
	if hAperture <= 0 {
		hAperture = defaultHAperture
	}
	zoom := cam.Properties.FocalLength * w.width / (hAperture * 10)
	w.line("%s.zoom.setValue(%.10f);", layer, zoom)
}

func (w *aeScript) mesh(mesh *scene.MeshData, name string) {
	layer := "mesh_" + name
	w.line("var importOptions = new ImportOptions();")
	w.line("importOptions.file = File(new File($.fileName).parent.fsName + '/%s.obj');", name)
	w.line("var objFootage = app.project.importFile(importOptions);")
	w.line("objFootage.selected = false;")
	w.line("app.beginSuppressDialogs();")
	w.line("var %s = comp.layers.add(objFootage);", layer)
	w.line("%s.name = '%s';", layer, name)
	w.line("app.endSuppressDialogs(true);")
	w.line("%s.anchorPoint.setValue([0, 0, 0]);", layer)

	switch {
	case len(mesh.Keyframes) == 0:
	case scene.IsAnimated(mesh.Keyframes, aeStaticTolerance):
		w.keyArrays(layer, mesh.Keyframes, true)
	default:
		k := mesh.Keyframes[0]
		s, p := w.scale(k.Scale), w.position(k.Position)
		w.line("%s.scale.setValue([%.10f, %.10f, %.10f]);", layer, s.X, s.Y, s.Z)
		w.line("%s.position.setValue([%.10f, %.10f, %.10f]);", layer, p.X, p.Y, p.Z)
		w.line("%s.rotationX.setValue(%.10f);", layer, -k.RotationAE.X)
		w.line("%s.rotationY.setValue(%.10f);", layer, k.RotationAE.Y)
		w.line("%s.rotationZ.setValue(%.10f);", layer, k.RotationAE.Z)
	}
	w.line("")
}

// locator writes a shy yellow 3D null.
func (w *aeScript) locator(loc *scene.TransformData, name string) {
	layer := "locator_" + name
	w.line("var %s = comp.layers.addNull();", layer)
	w.line("%s.name = '%s';", layer, name)
	w.line("%s.threeDLayer = true;", layer)
	w.line("%s.shy = true;", layer)
	w.line("%s.label = %d;", layer, aeLabelYellow)

	if scene.IsAnimated(loc.Keyframes, aeStaticTolerance) {
		w.keyArrays(layer, loc.Keyframes, false)
	} else {
		k := loc.Keyframes[0]
		p, s := w.position(k.Position), w.scale(k.Scale)
		w.line("%s.position.setValue([%.10f, %.10f, %.10f]);", layer, p.X, p.Y, p.Z)
		w.line("%s.property('Anchor Point').setValue([0.00, 0.00, 0.00]);", layer)
		w.line("%s.scale.setValue([%.10f, %.10f, %.10f]);", layer, s.X, s.Y, s.Z)
	}
	w.line("")
}

// keyArrays fills per-frame arrays and applies them with setValuesAtTimes.
// The X rotation is negated for the Y-down composition space.
func (w *aeScript) keyArrays(layer string, keys []scene.Keyframe, withScale bool) {
	w.line("var timesArray = new Array();")
	w.line("var posArray = new Array();")
	w.line("var rotXArray = new Array();")
	w.line("var rotYArray = new Array();")
	w.line("var rotZArray = new Array();")
	if withScale {
		w.line("var scaleArray = new Array();")
	}
	for _, k := range keys {
		p := w.position(k.Position)
		w.line("timesArray.push(%.10f);", w.seconds(k.Frame))
		w.line("posArray.push([%.10f, %.10f, %.10f]);", p.X, p.Y, p.Z)
		w.line("rotXArray.push(%.10f);", -k.RotationAE.X)
		w.line("rotYArray.push(%.10f);", k.RotationAE.Y)
		w.line("rotZArray.push(%.10f);", k.RotationAE.Z)
		if withScale {
			s := w.scale(k.Scale)
			w.line("scaleArray.push([%.10f, %.10f, %.10f]);", s.X, s.Y, s.Z)
		}
	}
	w.line("%s.position.setValuesAtTimes(timesArray, posArray);", layer)
	w.line("%s.rotationX.setValuesAtTimes(timesArray, rotXArray);", layer)
	w.line("%s.rotationY.setValuesAtTimes(timesArray, rotYArray);", layer)
	w.line("%s.rotationZ.setValuesAtTimes(timesArray, rotZArray);", layer)
	if withScale {
		w.line("%s.scale.setValuesAtTimes(timesArray, scaleArray);", layer)
	}
}

// jsString escapes s for a single-quoted JavaScript literal.
func jsString(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`, "\n", `\n`, "\r", `\r`)
	return r.Replace(s)
}

// encodeOBJ writes first-frame geometry as Wavefront OBJ with 1-based
// face indices.
func encodeOBJ(name, sourceFormat string, g scene.MeshGeometry) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "# Exported from %s\n", sourceFormat)
	fmt.Fprintf(&b, "# Object: %s\n\n", name)
	for _, v := range g.Positions {
		fmt.Fprintf(&b, "v %s %s %s\n", num(v.X), num(v.Y), num(v.Z))
	}
	b.WriteByte('\n')
	off := 0
	for _, count := range g.Counts {
		b.WriteString("f")
		for i := 0; i < count && off+i < len(g.Indices); i++ {
			fmt.Fprintf(&b, " %d", g.Indices[off+i]+1)
		}
		b.WriteByte('\n')
		off += count
	}
	return b.Bytes()
}

const aeHelperFunctions = `function findComp(nm) {
    var i, n, prjitm;

    prjitm = app.project.items;
    n = prjitm.length;
    for (i = 1; i <= n; i++) {
        if (prjitm[i].name == nm)
            return prjitm[i];
    }
    return null;
}

function firstComp() {
    var i, n, prjitm;

    if (app.project.activeItem.typeName == "Composition")
        return app.project.activeItem;

    prjitm = app.project.items;
    n = prjitm.length;
    for (i = 1; i <= n; i++) {
        if (prjitm[i].typeName == "Composition")
            return prjitm[i];
    }
    return null;
}

function firstSelectedComp(items) {
    var i, itm, subitm;

    for (i = 1; i <= items.length; i++) {
        itm = items[i];
        if (itm instanceof CompItem && itm.selected)
            return itm;
        if (itm instanceof FolderItem) {
            subitm = firstSelectedComp(itm.items);
            if (subitm)
                return subitm;
        }
    }
    return null;
}

function deselectAll(items) {
    var i, itm;

    for (i = 1; i <= items.length; i++) {
        itm = items[i];
        if (itm instanceof FolderItem)
            deselectAll(itm.items);
        itm.selected = false;
    }
}
`
