package reader

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/Faultbox/a2j/internal/logger"
	"github.com/Faultbox/a2j/internal/scene"
	"github.com/Faultbox/a2j/pkg/formats"
)

// footageAttrNames are the camera properties searched for a footage path,
// in arbGeomParams (primvars) or user properties.
var footageAttrNames = []string{
	"footagePath", "footage", "sourceFile", "imagePath",
	"videoFile", "mediaPath", "sourceImage", "backgroundImage",
}

// AlembicReader reads Ogawa Alembic archives. The archive header and time
// samplings are read directly; object data comes from usdcat, which loads
// Alembic through USD's file format plugin.
type AlembicReader struct {
	*usdStage
	archive *formats.OgawaArchive
}

// OpenAlembic opens an .abc file. HDF5 archives are rejected.
func OpenAlembic(ctx context.Context, path string, opts Options) (*AlembicReader, error) {
	archive, err := formats.ParseOgawaFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening Alembic archive: %w", err)
	}

	data, err := newUsdcat(opts.UsdcatPath, opts.UsdcatTimeout).toUSDA(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("loading Alembic objects: %w", err)
	}
	layer, err := formats.ParseUSDA(data)
	if err != nil {
		return nil, fmt.Errorf("parsing flattened %s: %w", filepath.Base(path), err)
	}

	r := &AlembicReader{usdStage: newUSDStage(path, layer), archive: archive}
	logger.Debug("opened Alembic archive",
		zap.String("file", path),
		zap.String("application", archive.Metadata["_ai_Application"]),
		zap.Int("timeSamplings", len(archive.TimeSamplings)),
		zap.Int("objects", len(r.AllObjects())))
	return r, nil
}

func (r *AlembicReader) Format() Format { return FormatAlembic }

// Archive returns the parsed archive header.
func (r *AlembicReader) Archive() *formats.OgawaArchive { return r.archive }

// DetectFrameCount reads the sample count of the first non-identity time
// sampling. fps is not needed.
func (r *AlembicReader) DetectFrameCount(fps float64) int {
	if n := r.archive.FrameCount(); n > 0 {
		return n
	}
	return DefaultFrameCount
}

// CameraProperties returns Alembic camera units: focal length in mm,
// apertures in cm. The flattened layer stores apertures in mm.
func (r *AlembicReader) CameraProperties(obj *Object, seconds float64) (scene.CameraProperties, error) {
	focal, h, v, err := r.lens(obj, seconds)
	if err != nil {
		return scene.CameraProperties{}, err
	}
	return scene.CameraProperties{FocalLength: focal, HAperture: h / 10, VAperture: v / 10}, nil
}

func (r *AlembicReader) FootagePath() string {
	return r.findStringAttr(footageAttrNames...)
}

// RenderResolution always returns the default; Alembic cameras carry no
// pixel resolution.
func (r *AlembicReader) RenderResolution() (width, height int) {
	return DefaultWidth, DefaultHeight
}

// IsOrganizationalGroup reports transforms with at most one xform sample that
// hold children but no camera or mesh directly.
func (r *AlembicReader) IsOrganizationalGroup(obj *Object) bool {
	if obj.Kind != KindTransform || r.hasAnimatedXform(obj) {
		return false
	}
	return len(obj.Children) > 0 && !obj.HasShapeChild()
}
