package reader

import (
	"errors"
	"testing"

	"github.com/Faultbox/a2j/pkg/math"
)

const shotMA = `//Maya ASCII 2024 scene
//Name: shot.ma
requires maya "2024";
currentUnit -l centimeter -a degree -t film;
fileInfo "application" "maya";
createNode transform -s -n "persp";
createNode camera -s -n "perspShape" -p "persp";
	setAttr -k off ".v" no;
createNode transform -n "grp";
createNode transform -n "cam1" -p "grp";
	setAttr ".r" -type "double3" 0 0 0 ;
createNode camera -n "cam1Shape" -p "|grp|cam1";
	setAttr -k off ".v";
	setAttr ".cap" -type "double2" 1.417 0.945 ;
createNode transform -n "box" -p "grp";
	setAttr ".t" -type "double3" 0 5 0 ;
	setAttr ".r" -type "double3" 0 0 90 ;
createNode mesh -n "boxShape" -p "|grp|box";
	setAttr -s 4 ".vt[0:3]"  -0.5 -0.5 0 0.5 -0.5 0 -0.5 0.5 0 0.5 0.5 0;
	setAttr ".pnts[1]" -type "float3" 0 0 1 ;
	setAttr -s 4 ".ed[0:3]"  0 1 0 0 2 0 1 3 0 2 3 0;
	setAttr ".fc[0]" -type "polyFaces"
		f 4 0 2 -4 -2 ;
createNode animCurveTL -n "cam1_translateX";
	setAttr -s 2 ".ktv[0:1]"  1 0 25 24;
createNode animCurveTU -n "cam1Shape_focalLength";
	setAttr -s 2 ".ktv[0:1]"  1 35 49 83;
createNode animCurveTU -n "blendShape1_smile";
	setAttr -s 2 ".ktv[0:1]"  1 0 10 1;
createNode blendShape -n "blendShape1";
	setAttr ".w[0]" 0.25;
	setAttr ".it[0].itg[0].iti[6000].ipt" -type "pointArray" 2 0 1 0 1 0 1 0 1 ;
	setAttr ".it[0].itg[0].iti[6000].ict" -type "componentList" 1 "vtx[1:2]";
	setAttr ".it[0].itg[0].iti[5500].ipt" -type "pointArray" 2 0 0.5 0 1 0 0.5 0 1 ;
	setAttr ".it[0].itg[0].iti[5500].ict" -type "componentList" 1 "vtx[1:2]";
	setAttr ".it[0].itg[1].iti[6000].ipt" -type "pointArray" 1 0 0 2 ;
	aliasAttr "smile" ".w[0]";
createNode imagePlane -n "imagePlaneShape1";
	setAttr ".imn" -type "string" "/plates/shot_010.%04d.exr";
select -ne :defaultResolution;
	setAttr ".w" 1920;
	setAttr ".h" 800;
connectAttr "cam1_translateX.o" "cam1.tx";
connectAttr "cam1Shape_focalLength.o" "cam1Shape.fl";
connectAttr "blendShape1_smile.o" "blendShape1.w[0]";
connectAttr "blendShape1.og[0]" "boxShape.i";
playbackOptions -min 1 -max 48 -ast 1 -aet 48;
`

func openMaya(t *testing.T, text string, opts Options) *MayaReader {
	t.Helper()
	path := writeFile(t, t.TempDir(), "shot.ma", text)
	r, err := OpenMaya(path, opts)
	if err != nil {
		t.Fatalf("OpenMaya: %v", err)
	}
	return r
}

func TestMayaReader_Hierarchy(t *testing.T) {
	r := openMaya(t, shotMA, Options{})

	if r.Format() != FormatMaya || r.FPS() != 24 {
		t.Errorf("Format() = %v, FPS() = %v", r.Format(), r.FPS())
	}
	// persp and perspShape are shared startup nodes
	if got := len(r.AllObjects()); got != 5 {
		t.Errorf("AllObjects() = %d, want 5", got)
	}
	if len(r.Cameras()) != 1 || r.Cameras()[0].Path != "/grp/cam1/cam1Shape" {
		t.Errorf("Cameras() = %v", r.Cameras())
	}
	if len(r.Meshes()) != 1 || r.Meshes()[0].Name != "boxShape" {
		t.Errorf("Meshes() = %v", r.Meshes())
	}
	if got := r.DetectFrameCount(24); got != 48 {
		t.Errorf("DetectFrameCount() = %d, want 48", got)
	}
	if w, h := r.RenderResolution(); w != 1920 || h != 800 {
		t.Errorf("RenderResolution() = %dx%d", w, h)
	}
	if got := r.FootagePath(); got != "/plates/shot_010.%04d.exr" {
		t.Errorf("FootagePath() = %q", got)
	}

	tests := []struct {
		path string
		want bool
	}{
		{"/grp", true},
		{"/grp/cam1", false},
		{"/grp/box", false},
		{"/grp/box/boxShape", false},
	}
	for _, tt := range tests {
		if got := r.IsOrganizationalGroup(r.ObjectByPath(tt.path)); got != tt.want {
			t.Errorf("IsOrganizationalGroup(%s) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestMayaReader_SampleTransform(t *testing.T) {
	r := openMaya(t, shotMA, Options{})

	// one second at film rate is frame 24
	for _, obj := range []*Object{r.ObjectByPath("/grp/cam1"), r.Cameras()[0]} {
		s, err := r.SampleTransform(obj, 1.0)
		if err != nil {
			t.Fatal(err)
		}
		if pos := s.World.Translation(); !approxVec(pos, math.Vec3{X: 23}) {
			t.Errorf("%s world position = %v, want (23,0,0)", obj.Name, pos)
		}
	}

	s, err := r.SampleTransform(r.Meshes()[0], 0)
	if err != nil {
		t.Fatal(err)
	}
	pos, rot, _ := s.Decompose(math.ConventionMaya)
	if !approxVec(pos, math.Vec3{Y: 5}) || !approx(rot.Z, 90) {
		t.Errorf("box = pos %v rot %v", pos, rot)
	}

	if _, err := r.SampleTransform(&Object{Path: "/elsewhere"}, 0); !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("foreign object err = %v", err)
	}
}

func TestTransformAtTime(t *testing.T) {
	r := openMaya(t, shotMA, Options{})

	pos, rot, scale, err := TransformAtTime(r, r.ObjectByPath("/grp/box"), 0, math.ConventionMaya)
	if err != nil {
		t.Fatal(err)
	}
	if !approxVec(pos, math.Vec3{Y: 5}) || !approxVec(rot, math.Vec3{Z: 90}) || !approxVec(scale, math.Vec3{X: 1, Y: 1, Z: 1}) {
		t.Errorf("box = pos %v rot %v scale %v", pos, rot, scale)
	}

	pos, _, _, err = TransformAtTime(r, r.ObjectByPath("/grp/cam1"), 1.0, math.ConventionAE)
	if err != nil || !approxVec(pos, math.Vec3{X: 23}) {
		t.Errorf("cam1 at 1s = %v, %v; want (23,0,0)", pos, err)
	}

	if _, _, _, err := TransformAtTime(r, &Object{Path: "/elsewhere"}, 0, math.ConventionAE); !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("foreign object err = %v", err)
	}
}

func TestMayaReader_RotateOrder(t *testing.T) {
	r := openMaya(t, `createNode transform -n "zyx";
	setAttr ".r" -type "double3" 10 20 30 ;
	setAttr ".ro" 5;
createNode transform -n "xyz";
	setAttr ".r" -type "double3" 10 20 30 ;
`, Options{})

	zyx := r.localMatrix(r.ObjectByPath("/zyx"), 1)
	want := axisRotation('Z', 30).Mul(axisRotation('Y', 20)).Mul(axisRotation('X', 10))
	if !zyx.ApproxEqual(want, 1e-9) {
		t.Errorf("zyx local = %v, want %v", zyx, want)
	}
	xyz := r.localMatrix(r.ObjectByPath("/xyz"), 1)
	if !xyz.ApproxEqual(math.RotateEulerXYZ(math.Vec3{X: 10, Y: 20, Z: 30}), 1e-9) {
		t.Errorf("xyz local = %v", xyz)
	}
}

func TestMayaReader_Mesh(t *testing.T) {
	r := openMaya(t, shotMA, Options{})

	ms, err := r.MeshDataAtTime(r.Meshes()[0], 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(ms.Positions) != 4 {
		t.Fatalf("positions = %v", ms.Positions)
	}
	if !approxVec(ms.Positions[1], math.Vec3{X: 0.5, Y: -0.5, Z: 1}) {
		t.Errorf("tweaked vertex = %v, want pnts offset applied", ms.Positions[1])
	}
	if len(ms.Counts) != 1 || ms.Counts[0] != 4 {
		t.Fatalf("counts = %v", ms.Counts)
	}
	wantIdx := []int{0, 1, 3, 2}
	for i, v := range wantIdx {
		if ms.Indices[i] != v {
			t.Errorf("indices = %v, want %v", ms.Indices, wantIdx)
			break
		}
	}

	if _, err := r.MeshDataAtTime(r.Cameras()[0], 0); err == nil {
		t.Error("MeshDataAtTime on a camera should fail")
	}
}

func TestMayaReader_Camera(t *testing.T) {
	r := openMaya(t, shotMA, Options{})
	cam := r.Cameras()[0]

	props, err := r.CameraProperties(cam, 1.0)
	if err != nil {
		t.Fatal(err)
	}
	if !approx(props.FocalLength, 58) {
		t.Errorf("focal length at frame 24 = %v, want 58", props.FocalLength)
	}
	if !approx(props.HAperture, 1.417*2.54) || !approx(props.VAperture, 0.945*2.54) {
		t.Errorf("apertures = %v x %v", props.HAperture, props.VAperture)
	}

	static := openMaya(t, `createNode transform -n "c";
createNode camera -n "cShape" -p "c";
	setAttr ".fl" 85;
	setAttr ".hfa" 0.980;
`, Options{})
	props, err = static.CameraProperties(static.Cameras()[0], 0)
	if err != nil {
		t.Fatal(err)
	}
	if props.FocalLength != 85 || !approx(props.HAperture, 0.98*2.54) || !approx(props.VAperture, 0.945*2.54) {
		t.Errorf("static camera = %+v", props)
	}
	if w, h := static.RenderResolution(); w != DefaultWidth || h != DefaultHeight {
		t.Errorf("default resolution = %dx%d", w, h)
	}
	if got := static.DetectFrameCount(24); got != 120 {
		t.Errorf("DetectFrameCount() without playbackOptions = %d, want 120", got)
	}
}

func malformedMA(mesh, deformer string) string {
	text := `//Maya ASCII 2024 scene
requires maya "2024";
currentUnit -l centimeter -a degree -t film;
createNode transform -n "bad";
createNode mesh -n "badShape" -p "bad";
` + mesh + "\n"
	if deformer != "" {
		text += "createNode blendShape -n \"bs1\";\n" + deformer + "\nconnectAttr \"bs1.og[0]\" \"badShape.i\";\n"
	}
	return text
}

const quadMesh = `	setAttr -s 3 ".vt[0:2]"  0 0 0 1 0 0 0 1 0;
	setAttr -s 3 ".ed[0:2]"  0 1 0 1 2 0 2 0 0;
	setAttr ".fc[0]" -type "polyFaces" f 3 0 1 2 ;`

func TestMayaReader_MalformedMesh(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"negative face size", `	setAttr -s 3 ".vt[0:2]"  0 0 0 1 0 0 0 1 0;
	setAttr -s 3 ".ed[0:2]"  0 1 0 1 2 0 2 0 0;
	setAttr ".fc[0]" -type "polyFaces" f -2 0 1 ;`},
		{"negative vertex index", `	setAttr -s 3 ".vt[-3:-1]"  0 0 0 1 0 0 0 1 0;`},
		{"vertex index past data", `	setAttr ".vt[1000000000]" -type "float3" 1 2 3 ;`},
		{"edge to missing vertex", `	setAttr -s 3 ".vt[0:2]"  0 0 0 1 0 0 0 1 0;
	setAttr -s 1 ".ed[0]"  0 7 0;`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := openMaya(t, malformedMA(tt.body, ""), Options{})
			if len(r.Meshes()) != 1 {
				t.Fatalf("meshes = %v", r.Meshes())
			}
			if _, err := r.MeshDataAtTime(r.Meshes()[0], 0); err == nil {
				t.Error("expected an error for malformed geometry")
			}
		})
	}
}

func TestMayaReader_SparseTweaksPastVertices(t *testing.T) {
	body := quadMesh + "\n\tsetAttr \".pnts[7]\" -type \"float3\" 0 0 1 ;\n\tsetAttr \".pnts[1000000000]\" -type \"float3\" 0 0 1 ;"
	r := openMaya(t, malformedMA(body, ""), Options{})
	ms, err := r.MeshDataAtTime(r.Meshes()[0], 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(ms.Positions) != 3 || len(ms.Counts) != 1 {
		t.Errorf("positions = %v, counts = %v", ms.Positions, ms.Counts)
	}
}

func TestMayaReader_MalformedBlendShape(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
		wantIdx []int
	}{
		{"negative point count", `	setAttr ".it[0].itg[0].iti[6000].ipt" -type "pointArray" -5 0 1 0 1 ;`, true, nil},
		{"reversed component range", `	setAttr ".it[0].itg[0].iti[6000].ipt" -type "pointArray" 1 0 1 0 ;
	setAttr ".it[0].itg[0].iti[6000].ict" -type "componentList" 1 "vtx[5:2]";`, true, nil},
		{"component range wider than deltas", `	setAttr ".it[0].itg[0].iti[6000].ipt" -type "pointArray" 2 0 1 0 0 2 0 ;
	setAttr ".it[0].itg[0].iti[6000].ict" -type "componentList" 1 "vtx[1:2000000000]";`, false, []int{1, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := openMaya(t, malformedMA(quadMesh, tt.body), Options{})
			d, err := r.BlendShapes(r.Meshes()[0])
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected an error, got %+v", d)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if d == nil || len(d.Channels) != 1 || len(d.Channels[0].Targets) != 1 {
				t.Fatalf("deformer = %+v", d)
			}
			got := d.Channels[0].Targets[0].VertexIndices
			if len(got) != len(tt.wantIdx) || got[0] != tt.wantIdx[0] || got[1] != tt.wantIdx[1] {
				t.Errorf("vertex indices = %v, want %v", got, tt.wantIdx)
			}
		})
	}
}

func TestMayaReader_BlendShapes(t *testing.T) {
	r := openMaya(t, shotMA, Options{})

	d, err := r.BlendShapes(r.Meshes()[0])
	if err != nil {
		t.Fatal(err)
	}
	if d == nil || d.Name != "blendShape1" || d.BaseMeshName != "boxShape" {
		t.Fatalf("deformer = %+v", d)
	}
	if len(d.Channels) != 2 {
		t.Fatalf("channels = %d, want 2", len(d.Channels))
	}

	smile := d.Channels[0]
	if smile.Name != "smile" || smile.DefaultWeight != 0.25 {
		t.Errorf("channel 0 = %q default %v", smile.Name, smile.DefaultWeight)
	}
	if len(smile.Targets) != 2 || smile.Targets[0].FullWeight != 0.5 || smile.Targets[1].FullWeight != 1 {
		t.Fatalf("in-between targets = %+v", smile.Targets)
	}
	full := smile.Targets[1]
	if len(full.VertexIndices) != 2 || full.VertexIndices[0] != 1 || full.VertexIndices[1] != 2 {
		t.Errorf("vertex indices = %v", full.VertexIndices)
	}
	if !approxVec(full.Deltas[0], math.Vec3{Y: 1}) {
		t.Errorf("delta = %v", full.Deltas[0])
	}
	if !smile.IsAnimated() || len(smile.WeightKeys) != 2 || smile.WeightKeys[1].Frame != 10 || smile.WeightKeys[1].Weight != 1 {
		t.Errorf("weight keys = %+v", smile.WeightKeys)
	}

	second := d.Channels[1]
	if second.Name != "target_1" || second.IsAnimated() {
		t.Errorf("channel 1 = %+v", second)
	}
	if len(second.Targets) != 1 || second.Targets[0].VertexIndices[0] != 0 || !approxVec(second.Targets[0].Deltas[0], math.Vec3{Z: 2}) {
		t.Errorf("three component target = %+v", second.Targets)
	}

	none, err := r.BlendShapes(r.ObjectByPath("/grp/cam1/cam1Shape"))
	if err != nil || none != nil {
		t.Errorf("camera blend shapes = %v, %v", none, err)
	}
}

func TestMayaTimeUnitFPS(t *testing.T) {
	tests := []struct {
		unit string
		want float64
		ok   bool
	}{
		{"film", 24, true},
		{"pal", 25, true},
		{"ntsc", 30, true},
		{"ntscf", 60, true},
		{"23.976fps", 23.976, true},
		{"120fps", 120, true},
		{"29.97df", 29.97, true},
		{"hour", 0, false},
		{"0fps", 0, false},
	}
	for _, tt := range tests {
		got, ok := mayaTimeUnitFPS(tt.unit)
		if ok != tt.ok || !approx(got, tt.want) {
			t.Errorf("mayaTimeUnitFPS(%q) = %v, %v, want %v, %v", tt.unit, got, ok, tt.want, tt.ok)
		}
	}
}

func TestOpenMaya_Codeset(t *testing.T) {
	scene := "fileInfo \"codeset\" \"1252\";\n" +
		"createNode imagePlane -n \"ip\";\n" +
		"\tsetAttr \".imn\" -type \"string\" \"/plates/caf\xe9.exr\";\n"
	r := openMaya(t, scene, Options{})
	if got := r.FootagePath(); got != "/plates/café.exr" {
		t.Errorf("FootagePath() = %q, want cp1252 decoded", got)
	}

	// an unknown codeset falls back instead of failing
	bogus := "fileInfo \"codeset\" \"klingon\";\n" +
		"createNode imagePlane -n \"ip\";\n" +
		"\tsetAttr \".imn\" -type \"string\" \"/plates/caf\xe9.exr\";\n"
	r = openMaya(t, bogus, Options{FallbackCharset: "windows-1252"})
	if got := r.FootagePath(); got != "/plates/café.exr" {
		t.Errorf("fallback FootagePath() = %q", got)
	}

	if mayaCodeset("932") != "cp932" || mayaCodeset("UTF-8") != "UTF-8" {
		t.Error("mayaCodeset mismatch")
	}
}
