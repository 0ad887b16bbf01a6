package formats

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// ogawaBuilder appends Ogawa groups and data nodes after a 16 byte header.
type ogawaBuilder struct {
	buf bytes.Buffer
}

func newOgawaBuilder() *ogawaBuilder {
	b := &ogawaBuilder{}
	b.buf.WriteString("Ogawa")
	b.buf.WriteByte(0xff)
	binary.Write(&b.buf, binary.LittleEndian, uint16(1))
	binary.Write(&b.buf, binary.LittleEndian, uint64(0))
	return b
}

func (b *ogawaBuilder) data(p []byte) uint64 {
	pos := uint64(b.buf.Len())
	binary.Write(&b.buf, binary.LittleEndian, uint64(len(p)))
	b.buf.Write(p)
	return pos | ogawaDataBit
}

func (b *ogawaBuilder) group(children ...uint64) uint64 {
	pos := uint64(b.buf.Len())
	binary.Write(&b.buf, binary.LittleEndian, uint64(len(children)))
	for _, c := range children {
		binary.Write(&b.buf, binary.LittleEndian, c)
	}
	return pos
}

func (b *ogawaBuilder) finish(root uint64) []byte {
	out := b.buf.Bytes()
	binary.LittleEndian.PutUint64(out[8:16], root)
	return out
}

func int32Bytes(v int32) []byte {
	out := make([]byte, 4)
	binary.LittleEndian.PutUint32(out, uint32(v))
	return out
}

func timeSamplingBytes(samplings ...TimeSampling) []byte {
	var buf bytes.Buffer
	for _, ts := range samplings {
		binary.Write(&buf, binary.LittleEndian, ts.MaxSample)
		binary.Write(&buf, binary.LittleEndian, ts.TimePerCycle)
		binary.Write(&buf, binary.LittleEndian, uint32(len(ts.Times)))
		binary.Write(&buf, binary.LittleEndian, ts.Times)
	}
	return buf.Bytes()
}

func makeAlembicArchive(samplings ...TimeSampling) []byte {
	b := newOgawaBuilder()
	archiveVersion := b.data(int32Bytes(1))
	libraryVersion := b.data(int32Bytes(10709))
	top := b.group(b.group(), b.group())
	meta := b.data([]byte("_ai_Application=Maya 2024;_ai_DateWritten=Mon Jan 1;"))
	ts := b.data(timeSamplingBytes(samplings...))
	root := b.group(archiveVersion, libraryVersion, top, meta, ts)
	return b.finish(root)
}

func TestParseOgawa_MagicValidation(t *testing.T) {
	valid := makeAlembicArchive(TimeSampling{MaxSample: 1, TimePerCycle: 1, Times: []float64{0}})
	bad := append([]byte{}, valid...)
	copy(bad, "Ogxwa")
	hdf5 := append(append([]byte{}, hdf5Signature...), make([]byte, 32)...)

	tests := []struct {
		name    string
		data    []byte
		wantErr error
	}{
		{"valid magic", valid, nil},
		{"invalid magic", bad, ErrInvalidOgawaMagic},
		{"hdf5 archive", hdf5, ErrHDF5Archive},
		{"empty data", []byte{}, ErrTruncatedOgawaData},
		{"truncated header", []byte("Ogawa\xff"), ErrTruncatedOgawaData},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseOgawa(tt.data)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("got error %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseOgawa_Archive(t *testing.T) {
	data := makeAlembicArchive(
		TimeSampling{MaxSample: 1, TimePerCycle: 1, Times: []float64{0}},
		TimeSampling{MaxSample: 48, TimePerCycle: 1.0 / 24, Times: []float64{1.0 / 24}},
	)

	a, err := ParseOgawa(data)
	if err != nil {
		t.Fatalf("ParseOgawa: %v", err)
	}
	if !a.Frozen || a.Version != 1 {
		t.Errorf("header = frozen %v version %d, want frozen v1", a.Frozen, a.Version)
	}
	if a.ArchiveVersion != 1 || a.LibraryVersion != 10709 {
		t.Errorf("versions = %d/%d, want 1/10709", a.ArchiveVersion, a.LibraryVersion)
	}
	if a.TopObjectSize != 2 {
		t.Errorf("top object children = %d, want 2", a.TopObjectSize)
	}
	if got := a.Metadata["_ai_Application"]; got != "Maya 2024" {
		t.Errorf("application metadata = %q", got)
	}
	if len(a.TimeSamplings) != 2 {
		t.Fatalf("time samplings = %d, want 2", len(a.TimeSamplings))
	}
	if !a.TimeSamplings[1].IsUniform() {
		t.Error("second sampling should be uniform")
	}
	if got := a.FrameCount(); got != 48 {
		t.Errorf("FrameCount() = %d, want 48", got)
	}
}

func TestParseOgawa_StaticArchive(t *testing.T) {
	a, err := ParseOgawa(makeAlembicArchive(TimeSampling{MaxSample: 1, TimePerCycle: 1, Times: []float64{0}}))
	if err != nil {
		t.Fatalf("ParseOgawa: %v", err)
	}
	if got := a.FrameCount(); got != 0 {
		t.Errorf("FrameCount() = %d, want 0 for a single sampling", got)
	}
}

func TestParseOgawa_CorruptGroup(t *testing.T) {
	b := newOgawaBuilder()
	pos := uint64(b.buf.Len())
	binary.Write(&b.buf, binary.LittleEndian, uint64(1<<40))
	data := b.finish(pos)

	if _, err := ParseOgawa(data); !errors.Is(err, ErrTruncatedOgawaData) {
		t.Errorf("got %v, want ErrTruncatedOgawaData", err)
	}
}

func TestParseOgawa_TruncatedTimeSampling(t *testing.T) {
	b := newOgawaBuilder()
	ts := timeSamplingBytes(TimeSampling{MaxSample: 10, TimePerCycle: 1, Times: []float64{0, 1}})
	root := b.group(b.data(int32Bytes(1)), b.data(int32Bytes(1)), b.group(), b.data(nil), b.data(ts[:len(ts)-4]))

	if _, err := ParseOgawa(b.finish(root)); !errors.Is(err, ErrTruncatedOgawaData) {
		t.Errorf("got %v, want ErrTruncatedOgawaData", err)
	}
}

func TestParseOgawaFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shot.abc")
	data := makeAlembicArchive(
		TimeSampling{MaxSample: 1, TimePerCycle: 1, Times: []float64{0}},
		TimeSampling{MaxSample: 12, TimePerCycle: 1.0 / 24, Times: []float64{0}},
	)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	a, err := ParseOgawaFile(path)
	if err != nil {
		t.Fatalf("ParseOgawaFile: %v", err)
	}
	if a.FrameCount() != 12 {
		t.Errorf("FrameCount() = %d, want 12", a.FrameCount())
	}

	if _, err := ParseOgawaFile(filepath.Join(t.TempDir(), "missing.abc")); err == nil {
		t.Error("expected error for missing file")
	}
}
