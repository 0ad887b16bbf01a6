// Package export writes SceneData to the target formats: After Effects
// (jsx + obj), USD (usda), Maya ASCII, FBX ASCII and binary glTF.
//
// Exporters never touch a reader. SceneData is the only input and is shared
// read-only, so exporters for different targets may run concurrently.
package export

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/Faultbox/a2j/internal/logger"
	"github.com/Faultbox/a2j/internal/scene"
)

// ErrUnknownFormat is returned for an unrecognised target tag.
var ErrUnknownFormat = errors.New("unknown export format")

// Format tags a target format.
type Format int

const (
	FormatAE Format = iota
	FormatUSD
	FormatMaya
	FormatFBX
	FormatGLTF
)

var formatTags = map[Format]string{
	FormatAE:   "ae",
	FormatUSD:  "usd",
	FormatMaya: "maya",
	FormatFBX:  "fbx",
	FormatGLTF: "gltf",
}

// DefaultFormats are the targets converted when none are requested.
var DefaultFormats = []Format{FormatAE, FormatUSD, FormatMaya, FormatFBX}

// AllFormats lists every target in output order.
var AllFormats = []Format{FormatAE, FormatUSD, FormatMaya, FormatFBX, FormatGLTF}

// Tag returns the short name used on the command line and in output
// directory names.
func (f Format) Tag() string {
	if t, ok := formatTags[f]; ok {
		return t
	}
	return fmt.Sprintf("format%d", int(f))
}

// String returns the display name.
func (f Format) String() string {
	switch f {
	case FormatAE:
		return "After Effects"
	case FormatUSD:
		return "USD"
	case FormatMaya:
		return "Maya MA"
	case FormatFBX:
		return "FBX"
	case FormatGLTF:
		return "glTF"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

// ParseFormat resolves a tag such as "ae" or "fbx". Matching ignores case.
func ParseFormat(tag string) (Format, error) {
	t := strings.ToLower(strings.TrimSpace(tag))
	switch t {
	case "aftereffects", "jsx":
		return FormatAE, nil
	case "usda":
		return FormatUSD, nil
	case "ma":
		return FormatMaya, nil
	case "glb":
		return FormatGLTF, nil
	}
	for f, name := range formatTags {
		if name == t {
			return f, nil
		}
	}
	return 0, fmt.Errorf("%w: %q (supported: %s)", ErrUnknownFormat, tag, strings.Join(Tags(), ", "))
}

// ParseFormats resolves a list of tags, dropping duplicates.
func ParseFormats(tags []string) ([]Format, error) {
	var out []Format
	seen := map[Format]bool{}
	for _, tag := range tags {
		if strings.TrimSpace(tag) == "" {
			continue
		}
		f, err := ParseFormat(tag)
		if err != nil {
			return nil, err
		}
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	return out, nil
}

// Tags returns the tag of every format.
func Tags() []string {
	out := make([]string, len(AllFormats))
	for i, f := range AllFormats {
		out[i] = f.Tag()
	}
	return out
}

// Result describes one finished export.
type Result struct {
	Format  Format
	Success bool
	Files   []string // absolute or outputDir-relative paths as written
	Skipped []string // display names of meshes the target cannot carry
	Message string
}

// Exporter writes SceneData in one target format.
type Exporter interface {
	Format() Format
	// Export writes the shot into outputDir, creating it if needed. A failed
	// export returns a Result with Success false and the error.
	Export(sd *scene.SceneData, outputDir, shotName string) (Result, error)
}

// Options configures exporter construction.
type Options struct {
	AfterEffects AEOptions
}

// New returns an exporter for f. Each call returns fresh state.
func New(f Format, opts Options) (Exporter, error) {
	switch f {
	case FormatAE:
		return NewAE(opts.AfterEffects), nil
	case FormatUSD:
		return NewUSD(), nil
	case FormatMaya:
		return NewMaya(), nil
	case FormatFBX:
		return NewFBX(), nil
	case FormatGLTF:
		return NewGLTF(), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, f)
}

// failed builds the Result for an export that stopped with err.
func failed(f Format, err error) (Result, error) {
	err = fmt.Errorf("%s export failed: %w", f, err)
	return Result{Format: f, Message: err.Error()}, err
}

// prepareDir creates the output directory.
func prepareDir(dir string) error {
	if dir == "" {
		return errors.New("empty output directory")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	return nil
}

// writeFile writes data to dir/name and returns the full path.
func writeFile(dir, name string, data []byte) (string, error) {
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("writing %s: %w", name, err)
	}
	return path, nil
}

func exportLogger(f Format, shot string) *zap.Logger {
	return logger.Named("export").With(zap.String("format", f.Tag()), zap.String("shot", shot))
}
