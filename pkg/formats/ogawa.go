package formats

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// Ogawa format errors.
var (
	ErrInvalidOgawaMagic  = errors.New("invalid Ogawa magic: expected 'Ogawa'")
	ErrTruncatedOgawaData = errors.New("truncated Ogawa data")
	ErrHDF5Archive        = errors.New("HDF5 Alembic archives are not supported")
)

const (
	ogawaHeaderSize  = 16
	ogawaDataBit     = uint64(0x8000000000000000)
	ogawaMaxChildren = 1 << 24
)

var hdf5Signature = []byte{0x89, 'H', 'D', 'F', '\r', '\n', 0x1a, '\n'}

// Root group child indices of an Alembic archive.
const (
	ogawaChildArchiveVersion = 0
	ogawaChildLibraryVersion = 1
	ogawaChildTopObject      = 2
	ogawaChildMetadata       = 3
	ogawaChildTimeSamplings  = 4
)

// TimeSampling describes when the samples of a property were taken.
//
// A single stored time means uniform sampling starting at Times[0] with
// TimePerCycle seconds between samples.
type TimeSampling struct {
	MaxSample    uint32
	TimePerCycle float64
	Times        []float64
}

// IsUniform reports whether samples are evenly spaced.
func (ts TimeSampling) IsUniform() bool {
	return len(ts.Times) == 1
}

// OgawaArchive holds the archive-level information of an Alembic Ogawa file.
// Object data is not decoded.
type OgawaArchive struct {
	Frozen         bool
	Version        uint16
	ArchiveVersion int32
	LibraryVersion int32
	Metadata       map[string]string
	TimeSamplings  []TimeSampling
	TopObjectSize  int // number of children in the top object group
}

// FrameCount returns the sample count of the first animated time sampling,
// or 0 when the archive holds no animated sampling.
func (a *OgawaArchive) FrameCount() int {
	if len(a.TimeSamplings) > 1 {
		return int(a.TimeSamplings[1].MaxSample)
	}
	return 0
}

// IsHDF5 reports whether data starts with the HDF5 signature.
func IsHDF5(data []byte) bool {
	return bytes.HasPrefix(data, hdf5Signature)
}

// ParseOgawa parses the archive header of an Ogawa file from raw bytes.
func ParseOgawa(data []byte) (*OgawaArchive, error) {
	return ReadOgawa(bytes.NewReader(data), int64(len(data)))
}

// ParseOgawaFile parses the archive header of an Ogawa file on disk.
func ParseOgawaFile(path string) (*OgawaArchive, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening Ogawa file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat Ogawa file: %w", err)
	}
	return ReadOgawa(f, info.Size())
}

// ReadOgawa parses an Ogawa archive of the given size.
func ReadOgawa(r io.ReaderAt, size int64) (*OgawaArchive, error) {
	o := &ogawaReader{r: r, size: size}

	header := make([]byte, ogawaHeaderSize)
	if err := o.readAt(header, 0); err != nil {
		return nil, fmt.Errorf("%w: reading header", ErrTruncatedOgawaData)
	}
	if IsHDF5(header) {
		return nil, ErrHDF5Archive
	}
	if string(header[0:5]) != "Ogawa" {
		return nil, ErrInvalidOgawaMagic
	}

	archive := &OgawaArchive{
		Frozen:   header[5] == 0xff,
		Version:  binary.LittleEndian.Uint16(header[6:8]),
		Metadata: map[string]string{},
	}

	root, err := o.group(binary.LittleEndian.Uint64(header[8:16]))
	if err != nil {
		return nil, fmt.Errorf("reading root group: %w", err)
	}

	if v, ok, err := o.childData(root, ogawaChildArchiveVersion); err != nil {
		return nil, fmt.Errorf("reading archive version: %w", err)
	} else if ok && len(v) >= 4 {
		archive.ArchiveVersion = int32(binary.LittleEndian.Uint32(v))
	}
	if v, ok, err := o.childData(root, ogawaChildLibraryVersion); err != nil {
		return nil, fmt.Errorf("reading library version: %w", err)
	} else if ok && len(v) >= 4 {
		archive.LibraryVersion = int32(binary.LittleEndian.Uint32(v))
	}
	if ogawaChildTopObject < len(root) && !isOgawaData(root[ogawaChildTopObject]) {
		top, err := o.group(root[ogawaChildTopObject])
		if err != nil {
			return nil, fmt.Errorf("reading top object: %w", err)
		}
		archive.TopObjectSize = len(top)
	}
	if v, ok, err := o.childData(root, ogawaChildMetadata); err != nil {
		return nil, fmt.Errorf("reading archive metadata: %w", err)
	} else if ok {
		archive.Metadata = parseOgawaMetadata(string(v))
	}
	if v, ok, err := o.childData(root, ogawaChildTimeSamplings); err != nil {
		return nil, fmt.Errorf("reading time samplings: %w", err)
	} else if ok {
		ts, err := parseTimeSamplings(v)
		if err != nil {
			return nil, err
		}
		archive.TimeSamplings = ts
	}

	return archive, nil
}

type ogawaReader struct {
	r    io.ReaderAt
	size int64
}

func (o *ogawaReader) readAt(buf []byte, off int64) error {
	if off < 0 || off+int64(len(buf)) > o.size {
		return ErrTruncatedOgawaData
	}
	if _, err := o.r.ReadAt(buf, off); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (o *ogawaReader) uint64At(off int64) (uint64, error) {
	var buf [8]byte
	if err := o.readAt(buf[:], off); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

// group returns the child offsets of the group at pos. Offset 0 is the empty group.
func (o *ogawaReader) group(pos uint64) ([]uint64, error) {
	if pos == 0 {
		return nil, nil
	}
	off := int64(pos)
	count, err := o.uint64At(off)
	if err != nil {
		return nil, fmt.Errorf("%w: group child count", ErrTruncatedOgawaData)
	}
	if count > ogawaMaxChildren || int64(count)*8 > o.size-off-8 {
		return nil, fmt.Errorf("%w: group claims %d children", ErrTruncatedOgawaData, count)
	}

	buf := make([]byte, count*8)
	if err := o.readAt(buf, off+8); err != nil {
		return nil, fmt.Errorf("%w: group children", ErrTruncatedOgawaData)
	}
	children := make([]uint64, count)
	for i := range children {
		children[i] = binary.LittleEndian.Uint64(buf[i*8:])
	}
	return children, nil
}

// data returns the bytes of the data node at pos (data bit already cleared).
func (o *ogawaReader) data(pos uint64) ([]byte, error) {
	if pos == 0 {
		return nil, nil
	}
	off := int64(pos)
	n, err := o.uint64At(off)
	if err != nil {
		return nil, fmt.Errorf("%w: data size", ErrTruncatedOgawaData)
	}
	if int64(n) < 0 || int64(n) > o.size-off-8 {
		return nil, fmt.Errorf("%w: data claims %d bytes", ErrTruncatedOgawaData, n)
	}
	buf := make([]byte, n)
	if err := o.readAt(buf, off+8); err != nil {
		return nil, fmt.Errorf("%w: data bytes", ErrTruncatedOgawaData)
	}
	return buf, nil
}

func (o *ogawaReader) childData(children []uint64, idx int) ([]byte, bool, error) {
	if idx >= len(children) || !isOgawaData(children[idx]) {
		return nil, false, nil
	}
	b, err := o.data(children[idx] &^ ogawaDataBit)
	return b, err == nil, err
}

func isOgawaData(v uint64) bool {
	return v&ogawaDataBit != 0
}

func parseOgawaMetadata(s string) map[string]string {
	meta := map[string]string{}
	for _, entry := range strings.Split(s, ";") {
		key, value, ok := strings.Cut(entry, "=")
		if !ok || key == "" {
			continue
		}
		meta[key] = value
	}
	return meta
}

func parseTimeSamplings(data []byte) ([]TimeSampling, error) {
	r := bytes.NewReader(data)
	var out []TimeSampling
	for r.Len() > 0 {
		var ts TimeSampling
		var stored uint32
		if err := binary.Read(r, binary.LittleEndian, &ts.MaxSample); err != nil {
			return nil, fmt.Errorf("%w: time sampling %d max sample", ErrTruncatedOgawaData, len(out))
		}
		if err := binary.Read(r, binary.LittleEndian, &ts.TimePerCycle); err != nil {
			return nil, fmt.Errorf("%w: time sampling %d time per cycle", ErrTruncatedOgawaData, len(out))
		}
		if err := binary.Read(r, binary.LittleEndian, &stored); err != nil {
			return nil, fmt.Errorf("%w: time sampling %d stored times", ErrTruncatedOgawaData, len(out))
		}
		if int(stored)*8 > r.Len() {
			return nil, fmt.Errorf("%w: time sampling %d claims %d times", ErrTruncatedOgawaData, len(out), stored)
		}
		ts.Times = make([]float64, stored)
		if err := binary.Read(r, binary.LittleEndian, ts.Times); err != nil {
			return nil, fmt.Errorf("%w: time sampling %d times", ErrTruncatedOgawaData, len(out))
		}
		out = append(out, ts)
	}
	return out, nil
}
