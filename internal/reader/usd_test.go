package reader

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/Faultbox/a2j/pkg/formats"
	"github.com/Faultbox/a2j/pkg/math"
)

const shotUSDA = `#usda 1.0
(
    startTimeCode = 1
    endTimeCode = 48
    timeCodesPerSecond = 24
    upAxis = "Y"
    customLayerData = {
        int2 renderResolution = (2048, 858)
    }
)

def Xform "World"
{
    def Xform "rig"
    {
        double3 xformOp:scale = (2, 2, 2)
        uniform token[] xformOpOrder = ["xformOp:scale"]

        def Xform "cam"
        {
            double3 xformOp:translate.timeSamples = {
                1: (0, 0, 0),
                48: (47, 0, 0),
            }
            uniform token[] xformOpOrder = ["xformOp:translate"]

            def Camera "camShape"
            {
                float focalLength = 50
                float horizontalAperture = 24.892
                float verticalAperture = 18.669
                asset footagePath = @/plates/shot_010.####.exr@
            }
        }
    }

    def Xform "props"
    {
        def Xform "grp"
        {
            def Mesh "tri"
            {
                int[] faceVertexCounts = [3]
                int[] faceVertexIndices = [0, 1, 2]
                point3f[] points = [(0, 0, 0), (1, 0, 0), (0, 1, 0)]
                double3 xformOp:translate = (0, 5, 0)
                float3 xformOp:rotateXYZ = (0, 0, 90)
                uniform token[] xformOpOrder = ["xformOp:translate", "xformOp:rotateXYZ"]
            }
        }
    }

    def Scope "Looks"
    {
    }
}
`

func openShot(t *testing.T, usda string) *USDReader {
	t.Helper()
	path := writeFile(t, t.TempDir(), "shot.usda", usda)
	r, err := OpenUSD(context.Background(), path, Options{})
	if err != nil {
		t.Fatalf("OpenUSD: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func TestUSDReader_Hierarchy(t *testing.T) {
	r := openShot(t, shotUSDA)

	if r.Format() != FormatUSD {
		t.Errorf("Format() = %v", r.Format())
	}
	if got := len(r.AllObjects()); got != 8 {
		t.Errorf("AllObjects() = %d objects, want 8", got)
	}
	if len(r.Cameras()) != 1 || r.Cameras()[0].Path != "/World/rig/cam/camShape" {
		t.Errorf("Cameras() = %v", r.Cameras())
	}
	if len(r.Meshes()) != 1 || r.Meshes()[0].Name != "tri" {
		t.Errorf("Meshes() = %v", r.Meshes())
	}
	if len(r.Transforms()) != 5 {
		t.Errorf("Transforms() = %d, want 5", len(r.Transforms()))
	}
	if p := r.ParentMap()["camShape"]; p == nil || p.Name != "cam" {
		t.Errorf("parent of camShape = %v", p)
	}
	if looks := r.ObjectByPath("/World/Looks"); looks == nil || looks.Kind != KindOther {
		t.Errorf("Scope prim = %+v, want KindOther", looks)
	}
}

func TestUSDReader_Metadata(t *testing.T) {
	r := openShot(t, shotUSDA)

	if got := r.DetectFrameCount(24); got != 48 {
		t.Errorf("DetectFrameCount() = %d, want 48", got)
	}
	if w, h := r.RenderResolution(); w != 2048 || h != 858 {
		t.Errorf("RenderResolution() = %dx%d", w, h)
	}
	if got := r.FootagePath(); got != "/plates/shot_010.####.exr" {
		t.Errorf("FootagePath() = %q", got)
	}

	bare := openShot(t, "#usda 1.0\n\ndef Xform \"a\"\n{\n}\n")
	if got := bare.DetectFrameCount(24); got != DefaultFrameCount {
		t.Errorf("DetectFrameCount() without range = %d, want %d", got, DefaultFrameCount)
	}
	if w, h := bare.RenderResolution(); w != DefaultWidth || h != DefaultHeight {
		t.Errorf("default resolution = %dx%d", w, h)
	}
	if bare.FootagePath() != "" {
		t.Error("FootagePath() should be empty")
	}
}

func TestUSDReader_RenderSettingsResolution(t *testing.T) {
	r := openShot(t, `#usda 1.0
def Scope "Render"
{
    def RenderSettings "settings"
    {
        uniform int2 resolution = (1280, 720)
    }
}
`)
	if w, h := r.RenderResolution(); w != 1280 || h != 720 {
		t.Errorf("RenderResolution() = %dx%d, want 1280x720", w, h)
	}
}

func TestUSDReader_SampleTransform(t *testing.T) {
	r := openShot(t, shotUSDA)
	cam := r.ObjectByPath("/World/rig/cam")

	s, err := r.SampleTransform(cam, 24.0/24.0) // time code 24
	if err != nil {
		t.Fatalf("SampleTransform: %v", err)
	}
	pos, _, scale := s.Decompose(math.ConventionMaya)
	// translate interpolates to x=23 and the rig doubles it
	if !approxVec(pos, math.Vec3{X: 46}) {
		t.Errorf("world position = %v, want (46,0,0)", pos)
	}
	if !approxVec(scale, math.Vec3{X: 1, Y: 1, Z: 1}) {
		t.Errorf("local scale = %v, want 1", scale)
	}

	tri := r.Meshes()[0]
	s, err = r.SampleTransform(tri, 0)
	if err != nil {
		t.Fatal(err)
	}
	pos, rot, _ := s.Decompose(math.ConventionMaya)
	if !approxVec(pos, math.Vec3{Y: 5}) || !approx(rot.Z, 90) {
		t.Errorf("tri = pos %v rot %v", pos, rot)
	}

	if _, err := r.SampleTransform(&Object{Path: "/nope"}, 0); !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("foreign object err = %v", err)
	}
}

func TestUSDReader_MeshAndCamera(t *testing.T) {
	r := openShot(t, shotUSDA)

	ms, err := r.MeshDataAtTime(r.Meshes()[0], 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(ms.Positions) != 3 || len(ms.Indices) != 3 || len(ms.Counts) != 1 || ms.Counts[0] != 3 {
		t.Errorf("mesh sample = %+v", ms)
	}
	if _, err := r.MeshDataAtTime(r.Cameras()[0], 0); err == nil {
		t.Error("MeshDataAtTime on a camera should fail")
	}

	props, err := r.CameraProperties(r.Cameras()[0], 0)
	if err != nil {
		t.Fatal(err)
	}
	if props.FocalLength != 50 || !approx(props.HAperture, 2.4892) || !approx(props.VAperture, 1.8669) {
		t.Errorf("camera properties = %+v", props)
	}
}

func TestUSDReader_OrganizationalGroups(t *testing.T) {
	r := openShot(t, shotUSDA)
	tests := []struct {
		path string
		want bool
	}{
		{"/World", true},
		{"/World/rig", true},
		{"/World/rig/cam", false},
		{"/World/props/grp", false},
		{"/World/props", true},
		{"/World/props/grp/tri", false},
	}
	for _, tt := range tests {
		if got := r.IsOrganizationalGroup(r.ObjectByPath(tt.path)); got != tt.want {
			t.Errorf("IsOrganizationalGroup(%s) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestXformOpMatrix(t *testing.T) {
	vec := func(x, y, z float64) formats.USDValue {
		return formats.USDValue{Kind: formats.USDTuple, Items: []formats.USDValue{
			{Kind: formats.USDNumber, Num: x}, {Kind: formats.USDNumber, Num: y}, {Kind: formats.USDNumber, Num: z},
		}}
	}
	num := func(v float64) formats.USDValue { return formats.USDValue{Kind: formats.USDNumber, Num: v} }

	tests := []struct {
		name string
		v    formats.USDValue
		want math.Mat4
	}{
		{"xformOp:translate", vec(1, 2, 3), math.Translate(1, 2, 3)},
		{"xformOp:translate:pivot", vec(1, 2, 3), math.Translate(1, 2, 3)},
		{"xformOp:scale", vec(2, 3, 4), math.Scale(2, 3, 4)},
		{"xformOp:rotateY", num(45), math.RotateY(math.Radians(45))},
		{"xformOp:rotateXYZ", vec(10, 20, 30), math.RotateEulerXYZ(math.Vec3{X: 10, Y: 20, Z: 30})},
		{"xformOp:rotateZYX", vec(10, 20, 30),
			math.RotateZ(math.Radians(30)).Mul(math.RotateY(math.Radians(20))).Mul(math.RotateX(math.Radians(10)))},
		{"xformOp:orient", formats.USDValue{Kind: formats.USDTuple, Items: []formats.USDValue{num(1), num(0), num(0), num(0)}}, math.Identity()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := xformOpMatrix(tt.name, tt.v)
			if err != nil {
				t.Fatal(err)
			}
			if !got.ApproxEqual(tt.want, 1e-9) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}

	if _, err := xformOpMatrix("xformOp:shear", vec(0, 0, 0)); err == nil {
		t.Error("unknown op should fail")
	}
	if _, err := xformOpMatrix("xformOp:translate", num(1)); err == nil {
		t.Error("scalar translate should fail")
	}
}

func TestUSDReader_InvertedPivot(t *testing.T) {
	r := openShot(t, `#usda 1.0
def Xform "pivoted"
{
    double3 xformOp:translate:pivot = (1, 0, 0)
    float xformOp:rotateZ = 90
    uniform token[] xformOpOrder = ["xformOp:translate:pivot", "xformOp:rotateZ", "!invert!xformOp:translate:pivot"]
}
`)
	s, err := r.SampleTransform(r.ObjectByPath("/pivoted"), 0)
	if err != nil {
		t.Fatal(err)
	}
	// rotating about (1,0,0) moves the origin to (1,-1,0)
	if got := s.Local.TransformPoint(math.Vec3{}); !approxVec(got, math.Vec3{X: 1, Y: -1}) {
		t.Errorf("origin maps to %v, want (1,-1,0)", got)
	}
}

func TestOpenUSD_BinaryThroughUsdcat(t *testing.T) {
	bin := fakeUsdcat(t, shotUSDA)
	path := writeFile(t, t.TempDir(), "shot.usdc", "PXR-USDC\x00\x00binary")

	r, err := OpenUSD(context.Background(), path, Options{UsdcatPath: bin, UsdcatTimeout: 10 * time.Second})
	if err != nil {
		t.Fatalf("OpenUSD: %v", err)
	}
	if len(r.Cameras()) != 1 {
		t.Errorf("Cameras() = %d, want 1", len(r.Cameras()))
	}
	if r.FilePath() != path {
		t.Errorf("FilePath() = %q", r.FilePath())
	}

	// .usd with crate magic is binary as well
	crate := writeFile(t, t.TempDir(), "shot.usd", "PXR-USDC rest")
	if binary, err := isUSDCrate(crate); err != nil || !binary {
		t.Errorf("isUSDCrate(.usd crate) = %v, %v", binary, err)
	}
}

func TestOpenUSD_MissingUsdcat(t *testing.T) {
	path := writeFile(t, t.TempDir(), "shot.usdc", "PXR-USDC")
	_, err := OpenUSD(context.Background(), path, Options{UsdcatPath: filepath.Join(t.TempDir(), "no-usdcat")})
	if !errors.Is(err, ErrBackendUnavailable) {
		t.Errorf("err = %v, want ErrBackendUnavailable", err)
	}
}
