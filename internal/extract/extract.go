// Package extract builds the SceneData snapshot from a reader in one pass.
package extract

import (
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/Faultbox/a2j/internal/classify"
	"github.com/Faultbox/a2j/internal/logger"
	"github.com/Faultbox/a2j/internal/reader"
	"github.com/Faultbox/a2j/internal/scene"
	"github.com/Faultbox/a2j/pkg/math"
)

// shapeSuffix marks shape nodes that are named after their transform.
const shapeSuffix = "Shape"

// Progress receives coarse phase messages. A nil Progress discards them.
type Progress func(msg string)

// Report formats and delivers a message. A panicking callback is logged and
// otherwise ignored.
func (p Progress) Report(format string, args ...any) {
	if p == nil {
		return
	}
	msg := fmt.Sprintf(format, args...)
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("progress callback panicked", zap.Any("panic", r), zap.String("message", msg))
		}
	}()
	p(msg)
}

// Options configures an extraction.
type Options struct {
	Classifier classify.Options
	Progress   Progress
}

// ExtractSceneData samples every camera, mesh and locator of r for frames
// 1..frameCount. The classifier runs exactly once.
func ExtractSceneData(r reader.Reader, fps float64, frameCount int, opts Options) (*scene.SceneData, error) {
	if fps <= 0 {
		return nil, fmt.Errorf("invalid fps %v", fps)
	}
	if frameCount < 1 {
		return nil, fmt.Errorf("invalid frame count %d", frameCount)
	}
	log := logger.Named("extract").With(zap.String("source", filepath.Base(r.FilePath())))

	cats := classify.New(opts.Classifier).AnalyzeScene(r, frameCount, fps)
	opts.Progress.Report("%s", classify.Summary(cats))

	parents := r.ParentMap()

	width, height := r.RenderResolution()
	source := r.FilePath()
	if abs, err := filepath.Abs(source); err == nil {
		source = abs
	}
	sd := &scene.SceneData{
		Metadata: scene.Metadata{
			Width:            width,
			Height:           height,
			FPS:              fps,
			FrameCount:       frameCount,
			FootagePath:      r.FootagePath(),
			SourceFilePath:   source,
			SourceFormatName: r.Format().String(),
		},
	}
	if sd.Metadata.FootagePath == "" {
		opts.Progress.Report("No footage path found in scene")
	}

	for _, obj := range r.Cameras() {
		cam, err := extractCamera(r, obj, parents, fps, frameCount)
		if err != nil {
			log.Warn("skipping camera", zap.String("camera", obj.Path), zap.Error(err))
			continue
		}
		sd.Cameras = append(sd.Cameras, cam)
	}

	blends, _ := r.(reader.BlendShapeSource)
	for _, obj := range r.Meshes() {
		mesh, err := extractMesh(r, obj, parents, cats, blends, fps, frameCount)
		if err != nil {
			log.Warn("skipping mesh", zap.String("mesh", obj.Path), zap.Error(err))
			continue
		}
		sd.Meshes = append(sd.Meshes, mesh)
	}

	processed := map[string]bool{}
	for _, c := range sd.Cameras {
		processed[c.Name] = true
		if c.ParentName != "" {
			processed[c.ParentName] = true
		}
	}
	for _, m := range sd.Meshes {
		processed[m.Name] = true
		if m.ParentName != "" {
			processed[m.ParentName] = true
		}
	}
	for _, obj := range r.Transforms() {
		if processed[obj.Name] || r.IsOrganizationalGroup(obj) {
			continue
		}
		keys, err := Keyframes(r, obj, fps, frameCount)
		if err != nil {
			log.Warn("skipping locator", zap.String("transform", obj.Path), zap.Error(err))
			continue
		}
		td := scene.TransformData{Name: obj.Name, FullPath: obj.Path, Keyframes: keys}
		if p := parents[obj.Name]; p != nil {
			td.ParentName = p.Name
		}
		sd.Transforms = append(sd.Transforms, td)
	}

	// blend shape meshes leave their classifier list
	for _, m := range sd.Meshes {
		sd.Categories.Add(m.Name, m.AnimationType)
	}

	log.Info("extracted scene",
		zap.Int("cameras", len(sd.Cameras)),
		zap.Int("meshes", len(sd.Meshes)),
		zap.Int("transforms", len(sd.Transforms)),
		zap.Int("frames", frameCount))
	return sd, nil
}

// parentName returns the parent transform name for shape nodes named
// "<x>Shape", and "" otherwise.
func parentName(obj *reader.Object, parents map[string]*reader.Object) string {
	p := parents[obj.Name]
	if p == nil || !strings.HasSuffix(obj.Name, shapeSuffix) {
		return ""
	}
	return p.Name
}

func extractCamera(r reader.Reader, obj *reader.Object, parents map[string]*reader.Object, fps float64, frameCount int) (scene.CameraData, error) {
	props, err := r.CameraProperties(obj, 1/fps)
	if err != nil {
		return scene.CameraData{}, fmt.Errorf("camera properties: %w", err)
	}
	keys, err := Keyframes(r, obj, fps, frameCount)
	if err != nil {
		return scene.CameraData{}, err
	}
	return scene.CameraData{
		Name:       obj.Name,
		ParentName: parentName(obj, parents),
		FullPath:   obj.Path,
		Properties: props,
		Keyframes:  keys,
	}, nil
}

func extractMesh(r reader.Reader, obj *reader.Object, parents map[string]*reader.Object,
	cats scene.AnimationCategories, blends reader.BlendShapeSource, fps float64, frameCount int) (scene.MeshData, error) {
	animType, _ := cats.Of(obj.Name)

	first, err := r.MeshDataAtTime(obj, 1/fps)
	if err != nil {
		return scene.MeshData{}, fmt.Errorf("first frame geometry: %w", err)
	}
	keys, err := Keyframes(r, obj, fps, frameCount)
	if err != nil {
		return scene.MeshData{}, err
	}

	md := scene.MeshData{
		Name:          obj.Name,
		ParentName:    parentName(obj, parents),
		FullPath:      obj.Path,
		AnimationType: animType,
		Keyframes:     keys,
		Geometry: scene.MeshGeometry{
			Positions: first.Positions,
			Indices:   first.Indices,
			Counts:    first.Counts,
		},
	}

	// explicit targets from the source win over the vertex tolerance scan
	if blends != nil {
		d, err := blends.BlendShapes(obj)
		if err != nil {
			logger.Warn("reading blend shapes", zap.String("mesh", obj.Path), zap.Error(err))
		} else if d != nil && len(d.Channels) > 0 {
			md.AnimationType = scene.BlendShape
			md.BlendShapes = d
			return md, nil
		}
	}

	if md.AnimationType == scene.VertexAnimated {
		md.VertexPositionsPerFrame = make(map[int][]math.Vec3, frameCount)
		for frame := 1; frame <= frameCount; frame++ {
			s, err := r.MeshDataAtTime(obj, float64(frame)/fps)
			if err != nil {
				return scene.MeshData{}, fmt.Errorf("frame %d geometry: %w", frame, err)
			}
			md.VertexPositionsPerFrame[frame] = s.Positions
		}
	}
	return md, nil
}

// Keyframes samples obj at t = frame/fps for frames 1..frameCount. Both
// rotation conventions are decomposed from the same sample.
func Keyframes(r reader.Reader, obj *reader.Object, fps float64, frameCount int) ([]scene.Keyframe, error) {
	keys := make([]scene.Keyframe, 0, frameCount)
	for frame := 1; frame <= frameCount; frame++ {
		s, err := r.SampleTransform(obj, float64(frame)/fps)
		if err != nil {
			return nil, fmt.Errorf("sampling %s at frame %d: %w", obj.Path, frame, err)
		}
		pos, rotAE, scale := s.Decompose(math.ConventionAE)
		_, rotMaya, _ := s.Decompose(math.ConventionMaya)
		keys = append(keys, scene.Keyframe{
			Frame:        frame,
			Position:     pos,
			RotationAE:   rotAE,
			RotationMaya: rotMaya,
			Scale:        scale,
		})
	}
	return keys, nil
}
