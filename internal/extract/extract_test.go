package extract

import (
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Faultbox/a2j/internal/reader"
	"github.com/Faultbox/a2j/internal/reader/readertest"
	"github.com/Faultbox/a2j/internal/scene"
	m3 "github.com/Faultbox/a2j/pkg/math"
)

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

var quad = reader.MeshSample{
	Positions: []m3.Vec3{{}, {X: 1}, {X: 1, Y: 1}, {Y: 1}},
	Indices:   []int{0, 1, 2, 3},
	Counts:    []int{4},
}

// shot builds a scene with a camera under a transform, a static mesh, a mesh
// under an animated parent, a locator and an organizational group.
func shot() *readertest.Fake {
	f := readertest.New("shots/shot_010.abc")
	f.Width, f.Height = 2048, 858
	f.Footage = "/plates/shot_010.####.exr"

	world := f.Add(nil, "World", reader.KindTransform)
	f.SetOrganizational(world)

	cam := f.Add(world, "Cam", reader.KindTransform)
	f.SetLocal(cam, func(s float64) m3.Mat4 { return m3.Translate(0, 0, s*24) })
	camShape := f.Add(cam, "CamShape", reader.KindCamera)
	f.SetLens(camShape, scene.CameraProperties{FocalLength: 50, HAperture: 3.6, VAperture: 2.4})

	ground := f.Add(world, "ground", reader.KindMesh)
	f.SetStaticMesh(ground, quad)

	car := f.Add(world, "car", reader.KindTransform)
	f.SetLocal(car, func(s float64) m3.Mat4 { return m3.Translate(s*24, 0, 0) })
	carShape := f.Add(car, "carShape", reader.KindMesh)
	f.SetStaticMesh(carShape, quad)

	null := f.Add(world, "aim", reader.KindTransform)
	f.SetStatic(null, m3.Translate(1, 2, 3))
	return f
}

func TestExtractSceneData_RoundTrip(t *testing.T) {
	f := shot()
	sd, err := ExtractSceneData(f, 24, 10, Options{})
	if err != nil {
		t.Fatalf("ExtractSceneData: %v", err)
	}

	md := sd.Metadata
	if md.Width != 2048 || md.Height != 858 || md.FPS != 24 || md.FrameCount != 10 {
		t.Errorf("metadata = %+v", md)
	}
	if md.FootagePath != f.Footage || md.SourceFormatName != "Alembic" {
		t.Errorf("metadata = %+v", md)
	}
	if !filepath.IsAbs(md.SourceFilePath) || filepath.Base(md.SourceFilePath) != "shot_010.abc" {
		t.Errorf("source path = %q", md.SourceFilePath)
	}

	if len(sd.Meshes) != 2 {
		t.Fatalf("meshes = %d, want 2", len(sd.Meshes))
	}
	car := sd.MeshByName("car")
	if car == nil || car.Name != "carShape" || car.AnimationType != scene.TransformOnly {
		t.Fatalf("car = %+v", car)
	}
	if len(car.Keyframes) != 10 {
		t.Fatalf("car keyframes = %d, want 10", len(car.Keyframes))
	}
	for i, k := range car.Keyframes {
		if k.Frame != i+1 || !approx(k.Position.X, float64(i+1)) {
			t.Errorf("key %d = frame %d x %v", i, k.Frame, k.Position.X)
		}
	}
	if car.VertexPositionsPerFrame != nil {
		t.Error("transform-only mesh carries per-frame vertices")
	}
	if car.Geometry.FaceCount() != 1 || len(car.Geometry.Positions) != 4 {
		t.Errorf("geometry = %+v", car.Geometry)
	}

	ground := sd.MeshByName("ground")
	if ground == nil || ground.AnimationType != scene.Static || ground.ParentName != "" {
		t.Errorf("ground = %+v", ground)
	}
	if scene.IsAnimated(ground.Keyframes, 1e-6) {
		t.Error("static mesh keyframes animate")
	}

	cats := sd.Categories
	if len(cats.Static) != 1 || cats.Static[0] != "ground" {
		t.Errorf("static = %v", cats.Static)
	}
	if len(cats.TransformOnly) != 1 || cats.TransformOnly[0] != "carShape" {
		t.Errorf("transform only = %v", cats.TransformOnly)
	}
	if len(cats.VertexAnimated) != 0 || len(cats.BlendShape) != 0 {
		t.Errorf("categories = %+v", cats)
	}
}

func TestExtractSceneData_Naming(t *testing.T) {
	sd, err := ExtractSceneData(shot(), 24, 4, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if len(sd.Cameras) != 1 {
		t.Fatalf("cameras = %d", len(sd.Cameras))
	}
	cam := sd.Cameras[0]
	if cam.Name != "CamShape" || cam.ParentName != "Cam" || cam.DisplayName() != "Cam" {
		t.Errorf("camera naming = %q parent %q display %q", cam.Name, cam.ParentName, cam.DisplayName())
	}
	if cam.FullPath != "/World/Cam/CamShape" || cam.Properties.FocalLength != 50 {
		t.Errorf("camera = %+v", cam)
	}
	if !approx(cam.Keyframes[3].Position.Z, 4) {
		t.Errorf("camera z at frame 4 = %v", cam.Keyframes[3].Position.Z)
	}

	// Cam and car are consumed as shape parents and World is organizational
	if len(sd.Transforms) != 1 {
		t.Fatalf("transforms = %+v", sd.Transforms)
	}
	aim := sd.Transforms[0]
	if aim.Name != "aim" || aim.ParentName != "World" || !approx(aim.Keyframes[0].Position.Y, 2) {
		t.Errorf("locator = %+v", aim)
	}
}

func TestExtractSceneData_ShapeWithoutSuffix(t *testing.T) {
	f := readertest.New("shot.usda")
	f.SourceKind = reader.FormatUSD
	grp := f.Add(nil, "grp", reader.KindTransform)
	f.Add(grp, "renderCam", reader.KindCamera)

	sd, err := ExtractSceneData(f, 24, 2, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if sd.Cameras[0].ParentName != "" || sd.Cameras[0].DisplayName() != "renderCam" {
		t.Errorf("camera = %+v", sd.Cameras[0])
	}
	// grp is not named by any shape so it stays a locator
	if len(sd.Transforms) != 1 || sd.Transforms[0].Name != "grp" {
		t.Errorf("transforms = %+v", sd.Transforms)
	}
	if sd.Metadata.SourceFormatName != "USD" {
		t.Errorf("format = %q", sd.Metadata.SourceFormatName)
	}
}

func TestExtractSceneData_VertexAnimated(t *testing.T) {
	f := readertest.New("cloth.abc")
	cloth := f.Add(nil, "clothShape", reader.KindMesh)
	f.SetMesh(cloth, func(s float64) (reader.MeshSample, error) {
		frame := math.Round(s * 24)
		pos := append([]m3.Vec3(nil), quad.Positions...)
		pos[2].Z = frame
		return reader.MeshSample{Positions: pos, Indices: quad.Indices, Counts: quad.Counts}, nil
	})

	sd, err := ExtractSceneData(f, 24, 12, Options{})
	if err != nil {
		t.Fatal(err)
	}
	m := sd.Meshes[0]
	if m.AnimationType != scene.VertexAnimated {
		t.Fatalf("type = %v", m.AnimationType)
	}
	if len(m.VertexPositionsPerFrame) != 12 {
		t.Fatalf("per-frame vertices = %d, want 12", len(m.VertexPositionsPerFrame))
	}
	if got := m.VertexPositionsPerFrame[7][2].Z; got != 7 {
		t.Errorf("frame 7 vertex z = %v", got)
	}
	if m.Geometry.Positions[2].Z != 1 {
		t.Errorf("first frame geometry z = %v, want frame 1", m.Geometry.Positions[2].Z)
	}
	if len(sd.Categories.VertexAnimated) != 1 {
		t.Errorf("categories = %+v", sd.Categories)
	}
}

func TestExtractSceneData_BlendShapesTakePrecedence(t *testing.T) {
	f := readertest.New("face.ma")
	f.SourceKind = reader.FormatMaya
	face := f.Add(nil, "faceShape", reader.KindMesh)
	f.SetMesh(face, func(s float64) (reader.MeshSample, error) {
		pos := append([]m3.Vec3(nil), quad.Positions...)
		pos[0].Y = s
		return reader.MeshSample{Positions: pos, Indices: quad.Indices, Counts: quad.Counts}, nil
	})
	f.SetBlendShapes(face, &scene.BlendShapeDeformer{
		Name:         "blendShape1",
		BaseMeshName: "faceShape",
		Channels: []scene.BlendShapeChannel{{
			Name:       "smile",
			Targets:    []scene.BlendShapeTarget{{Name: "smile", FullWeight: 1, VertexIndices: []int{0}, Deltas: []m3.Vec3{{Y: 1}}}},
			WeightKeys: []scene.WeightKey{{Frame: 1, Weight: 0}, {Frame: 10, Weight: 1}},
		}},
	})

	sd, err := ExtractSceneData(f, 24, 10, Options{})
	if err != nil {
		t.Fatal(err)
	}
	m := sd.Meshes[0]
	if m.AnimationType != scene.BlendShape || m.BlendShapes == nil {
		t.Fatalf("mesh = %v with %v", m.AnimationType, m.BlendShapes)
	}
	if m.VertexPositionsPerFrame != nil {
		t.Error("blend shape mesh also carries per-frame vertices")
	}
	cats := sd.Categories
	if len(cats.BlendShape) != 1 || len(cats.VertexAnimated) != 0 {
		t.Errorf("categories = %+v", cats)
	}
}

func TestExtractSceneData_SkipsBrokenObjects(t *testing.T) {
	f := readertest.New("shot.abc")
	f.Add(nil, "ghostShape", reader.KindMesh) // no geometry scripted
	ok := f.Add(nil, "box", reader.KindMesh)
	f.SetStaticMesh(ok, quad)

	sd, err := ExtractSceneData(f, 24, 3, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if len(sd.Meshes) != 1 || sd.Meshes[0].Name != "box" {
		t.Errorf("meshes = %+v", sd.Meshes)
	}
}

func TestExtractSceneData_Progress(t *testing.T) {
	var msgs []string
	progress := func(msg string) {
		msgs = append(msgs, msg)
		panic("listener bug")
	}
	if _, err := ExtractSceneData(shot(), 24, 2, Options{Progress: progress}); err != nil {
		t.Fatalf("a panicking progress callback aborted extraction: %v", err)
	}
	if len(msgs) == 0 || !strings.HasPrefix(msgs[0], "Animation Analysis:") {
		t.Errorf("progress = %q", msgs)
	}
}

func TestExtractSceneData_InvalidArguments(t *testing.T) {
	if _, err := ExtractSceneData(shot(), 0, 10, Options{}); err == nil {
		t.Error("fps 0 accepted")
	}
	if _, err := ExtractSceneData(shot(), 24, 0, Options{}); err == nil {
		t.Error("frame count 0 accepted")
	}
}

func TestKeyframes_BothConventionsFromOneSample(t *testing.T) {
	f := readertest.New("shot.abc")
	obj := f.Add(nil, "spin", reader.KindTransform)
	f.SetStatic(obj, m3.ComposeTRS(m3.Vec3{X: 1}, m3.Vec3{X: 10, Y: 20, Z: 30}, m3.Vec3{X: 2, Y: 2, Z: 2}))

	keys, err := Keyframes(f, obj, 24, 5)
	if err != nil {
		t.Fatal(err)
	}
	if got := f.TransformSamples(); got != 5 {
		t.Errorf("SampleTransform calls = %d, want one per frame", got)
	}
	k := keys[0]
	if !approx(k.RotationMaya.X, 10) || !approx(k.RotationMaya.Y, 20) || !approx(k.RotationMaya.Z, 30) {
		t.Errorf("maya rotation = %v", k.RotationMaya)
	}
	if !approx(k.Scale.X, 2) || !approx(k.Position.X, 1) {
		t.Errorf("key = %+v", k)
	}
}
