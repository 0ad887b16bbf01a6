package export

import (
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/Faultbox/a2j/internal/scene"
	"github.com/Faultbox/a2j/pkg/math"
)

func TestAEExport(t *testing.T) {
	res, dir := export(t, NewAE(AEOptions{}), testScene())

	if !reflect.DeepEqual(res.Skipped, []string{"cloth"}) {
		t.Errorf("Skipped = %v, want [cloth]", res.Skipped)
	}
	wantFiles := []string{"shot_010.jsx", "box.obj", "car.obj", "face.obj"}
	if len(res.Files) != len(wantFiles) {
		t.Fatalf("Files = %v", res.Files)
	}
	for i, f := range wantFiles {
		if filepath.Base(res.Files[i]) != f {
			t.Errorf("Files[%d] = %s, want %s", i, res.Files[i], f)
		}
	}
	if res.Message != "Exported 3 OBJ files, skipped 1 vertex-animated meshes" {
		t.Errorf("Message = %q", res.Message)
	}

	jsx := readFile(t, filepath.Join(dir, "shot_010.jsx"))
	for _, want := range []string{
		"// Auto-generated JSX from Alembic",
		"// Exported from: shot_010.abc",
		"addComp('shot_010', 1920, 1080, 1.0, 0.125, 24);",
		"var footagePath = '/plates/shot_010.####.exr';",
		"footageLayer.moveToEnd();",
		"var camera_cam = comp.layers.addCamera('cam', [0, 0]);",
		"timesArray.push(0.0416666667);",
		"camera_cam.position.setValuesAtTimes(timesArray, posArray);",
		"camera_cam.zoom.setValue(1866.6666666667);",
		"mesh_box.scale.setValue([2.0000000000, 2.0000000000, 2.0000000000]);",
		"mesh_box.position.setValue([960.0000000000, 490.0000000000, ",
		"mesh_car.scale.setValuesAtTimes(timesArray, scaleArray);",
		"rotYArray.push(60.0000000000);",
		"locator_aim.position.setValue([970.0000000000, 520.0000000000, -30.0000000000]);",
		"locator_aim.label = 13;",
		"SceneImportFunction();",
	} {
		if !strings.Contains(jsx, want) {
			t.Errorf("jsx missing %q", want)
		}
	}
	for _, absent := range []string{"cloth", "locator_empty"} {
		if strings.Contains(jsx, absent) {
			t.Errorf("jsx mentions %q", absent)
		}
	}

	obj := readFile(t, filepath.Join(dir, "box.obj"))
	for _, want := range []string{"# Exported from Alembic", "v 1 1 0\n", "f 1 2 3 4\n"} {
		if !strings.Contains(obj, want) {
			t.Errorf("box.obj missing %q:\n%s", want, obj)
		}
	}
}

func TestAEPositionMapping(t *testing.T) {
	w := &aeScript{opts: AEOptions{PositionScale: 1, ScaleCompensation: 1}, width: 100, height: 50, fps: 25}
	got := w.position(math.Vec3{X: 2, Y: 3, Z: 4})
	want := math.Vec3{X: 52, Y: 22, Z: -4}
	if got != want {
		t.Errorf("position = %v, want %v", got, want)
	}
	if s := w.seconds(50); s != 2 {
		t.Errorf("seconds(50) = %v, want 2", s)
	}
}

func TestAENegatesXRotation(t *testing.T) {
	sd := &scene.SceneData{
		Metadata: scene.Metadata{Width: 100, Height: 100, FPS: 24, FrameCount: 1, SourceFormatName: "USD"},
		Transforms: []scene.TransformData{{
			Name: "null1", FullPath: "/null1",
			Keyframes: []scene.Keyframe{
				{Frame: 1, RotationAE: math.Vec3{X: 15}, Scale: math.Vec3{X: 1, Y: 1, Z: 1}},
				{Frame: 2, RotationAE: math.Vec3{X: 25}, Scale: math.Vec3{X: 1, Y: 1, Z: 1}},
			},
		}},
	}
	_, dir := export(t, NewAE(DefaultAEOptions()), sd)
	jsx := readFile(t, filepath.Join(dir, "shot_010.jsx"))
	if !strings.Contains(jsx, "rotXArray.push(-15.0000000000);") || !strings.Contains(jsx, "rotXArray.push(-25.0000000000);") {
		t.Error("X rotation not negated")
	}
}

func TestIsAEHelper(t *testing.T) {
	tests := []struct {
		name, parent string
		want         bool
	}{
		{"Screen1", "", true},
		{"locator1", "ScreenGroup", true},
		{"CamTrackers", "", true},
		{"Tracker01", "", false},
		{"ReadGeo2", "", true},
		{"SceneRoot", "", true},
		{"persp", "", true},
		{"aim", "", false},
	}
	for _, tt := range tests {
		if got := isAEHelper(tt.name, tt.parent); got != tt.want {
			t.Errorf("isAEHelper(%q, %q) = %v, want %v", tt.name, tt.parent, got, tt.want)
		}
	}
}

func TestJSString(t *testing.T) {
	if got := jsString(`it's C:\shots`); got != `it\'s C:\\shots` {
		t.Errorf("jsString = %s", got)
	}
}
