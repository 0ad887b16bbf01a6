package reader

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/Faultbox/a2j/pkg/formats"
)

// flattened output of usdcat for a small Alembic export
const flattenedABC = `#usda 1.0
(
    endTimeCode = 24
    startTimeCode = 1
    timeCodesPerSecond = 24
)

def Xform "shot"
{
    def Xform "camGrp"
    {
        def Xform "cam"
        {
            matrix4d xformOp:transform.timeSamples = {
                1: ( (1, 0, 0, 0), (0, 1, 0, 0), (0, 0, 1, 0), (0, 0, 0, 1) ),
                24: ( (1, 0, 0, 0), (0, 1, 0, 0), (0, 0, 1, 0), (0, 0, 10, 1) ),
            }
            uniform token[] xformOpOrder = ["xformOp:transform"]

            def Camera "camShape"
            {
                float focalLength = 35
                float horizontalAperture = 36
                float verticalAperture = 24
                string userProperties:sourceFile = "/plates/bg.mov"
            }
        }
    }
}
`

func buildOgawa(samplings ...formats.TimeSampling) []byte {
	var buf bytes.Buffer
	buf.WriteString("Ogawa")
	buf.WriteByte(0xff)
	binary.Write(&buf, binary.LittleEndian, uint16(1))
	binary.Write(&buf, binary.LittleEndian, uint64(0))

	const dataBit = uint64(1) << 63
	data := func(p []byte) uint64 {
		pos := uint64(buf.Len())
		binary.Write(&buf, binary.LittleEndian, uint64(len(p)))
		buf.Write(p)
		return pos | dataBit
	}
	group := func(children ...uint64) uint64 {
		pos := uint64(buf.Len())
		binary.Write(&buf, binary.LittleEndian, uint64(len(children)))
		for _, c := range children {
			binary.Write(&buf, binary.LittleEndian, c)
		}
		return pos
	}

	var ts bytes.Buffer
	for _, s := range samplings {
		binary.Write(&ts, binary.LittleEndian, s.MaxSample)
		binary.Write(&ts, binary.LittleEndian, s.TimePerCycle)
		binary.Write(&ts, binary.LittleEndian, uint32(len(s.Times)))
		binary.Write(&ts, binary.LittleEndian, s.Times)
	}

	version := data([]byte{1, 0, 0, 0})
	library := data([]byte{0xd5, 0x29, 0, 0})
	top := group()
	meta := data([]byte("_ai_Application=Nuke;"))
	tsPos := data(ts.Bytes())
	root := group(version, library, top, meta, tsPos)

	out := buf.Bytes()
	binary.LittleEndian.PutUint64(out[8:16], root)
	return out
}

func TestOpenAlembic(t *testing.T) {
	bin := fakeUsdcat(t, flattenedABC)
	archive := buildOgawa(
		formats.TimeSampling{MaxSample: 1, TimePerCycle: 1, Times: []float64{0}},
		formats.TimeSampling{MaxSample: 96, TimePerCycle: 1.0 / 24, Times: []float64{1.0 / 24}},
	)
	path := writeFile(t, t.TempDir(), "shot.abc", string(archive))

	r, err := OpenAlembic(context.Background(), path, Options{UsdcatPath: bin})
	if err != nil {
		t.Fatalf("OpenAlembic: %v", err)
	}
	defer r.Close()

	if r.Format() != FormatAlembic {
		t.Errorf("Format() = %v", r.Format())
	}
	if r.Archive().Metadata["_ai_Application"] != "Nuke" {
		t.Errorf("archive metadata = %v", r.Archive().Metadata)
	}
	if got := r.DetectFrameCount(24); got != 96 {
		t.Errorf("DetectFrameCount() = %d, want 96 from the archive sampling", got)
	}
	if got := r.FootagePath(); got != "/plates/bg.mov" {
		t.Errorf("FootagePath() = %q", got)
	}
	if w, h := r.RenderResolution(); w != DefaultWidth || h != DefaultHeight {
		t.Errorf("RenderResolution() = %dx%d", w, h)
	}

	props, err := r.CameraProperties(r.Cameras()[0], 0)
	if err != nil {
		t.Fatal(err)
	}
	if props.FocalLength != 35 || !approx(props.HAperture, 3.6) || !approx(props.VAperture, 2.4) {
		t.Errorf("camera properties = %+v", props)
	}

	s, err := r.SampleTransform(r.Cameras()[0], 1.0)
	if err != nil {
		t.Fatal(err)
	}
	if z := s.World.Translation().Z; !approx(z, 10) {
		t.Errorf("camera z at frame 24 = %v, want 10", z)
	}

	tests := []struct {
		path string
		want bool
	}{
		{"/shot", true},
		{"/shot/camGrp", true},
		{"/shot/camGrp/cam", false},
	}
	for _, tt := range tests {
		if got := r.IsOrganizationalGroup(r.ObjectByPath(tt.path)); got != tt.want {
			t.Errorf("IsOrganizationalGroup(%s) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestOpenAlembic_StaticArchiveFallsBack(t *testing.T) {
	bin := fakeUsdcat(t, flattenedABC)
	archive := buildOgawa(formats.TimeSampling{MaxSample: 1, TimePerCycle: 1, Times: []float64{0}})
	path := writeFile(t, t.TempDir(), "static.abc", string(archive))

	r, err := OpenAlembic(context.Background(), path, Options{UsdcatPath: bin})
	if err != nil {
		t.Fatal(err)
	}
	if got := r.DetectFrameCount(24); got != DefaultFrameCount {
		t.Errorf("DetectFrameCount() = %d, want %d", got, DefaultFrameCount)
	}
}

func TestOpenAlembic_Errors(t *testing.T) {
	dir := t.TempDir()
	hdf5 := writeFile(t, dir, "old.abc", "\x89HDF\r\n\x1a\n"+string(make([]byte, 16)))
	if _, err := OpenAlembic(context.Background(), hdf5, Options{}); !errors.Is(err, formats.ErrHDF5Archive) {
		t.Errorf("HDF5 err = %v", err)
	}

	junk := writeFile(t, dir, "junk.abc", "not an alembic archive at all")
	if _, err := OpenAlembic(context.Background(), junk, Options{}); !errors.Is(err, formats.ErrInvalidOgawaMagic) {
		t.Errorf("junk err = %v", err)
	}

	valid := writeFile(t, dir, "ok.abc", string(buildOgawa()))
	_, err := OpenAlembic(context.Background(), valid, Options{UsdcatPath: "a2j-no-such-usdcat"})
	if !errors.Is(err, ErrBackendUnavailable) {
		t.Errorf("missing usdcat err = %v", err)
	}
}
