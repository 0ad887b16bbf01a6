package reader

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/Faultbox/a2j/internal/logger"
	"github.com/Faultbox/a2j/internal/scene"
	"github.com/Faultbox/a2j/pkg/formats"
	"github.com/Faultbox/a2j/pkg/math"
)

// usdcMagic starts every binary crate file.
const usdcMagic = "PXR-USDC"

// Camera lens values used when a camera prim leaves them unauthored.
const (
	defaultFocalLengthMM = 35.0
	defaultHApertureMM   = 36.0
	defaultVApertureMM   = 24.0
)

// usdStage maps the prims of one USD ASCII layer onto Objects. The USD and
// Alembic readers share it; they differ in metadata and grouping rules.
type usdStage struct {
	*hierarchy
	path  string
	layer *formats.USDLayer
	prims map[*Object]*formats.USDPrim
	tcps  float64 // time codes per second
	start float64
	end   float64
}

func newUSDStage(path string, layer *formats.USDLayer) *usdStage {
	s := &usdStage{
		path:  path,
		layer: layer,
		prims: map[*Object]*formats.USDPrim{},
		tcps:  24,
		start: 1,
		end:   1,
	}
	if v, ok := layer.MetadataFloat("timeCodesPerSecond"); ok && v > 0 {
		s.tcps = v
	} else if v, ok := layer.MetadataFloat("framesPerSecond"); ok && v > 0 {
		s.tcps = v
	}
	if v, ok := layer.MetadataFloat("startTimeCode"); ok {
		s.start = v
	}
	if v, ok := layer.MetadataFloat("endTimeCode"); ok {
		s.end = v
	}

	var build func(p *formats.USDPrim, parent *Object) *Object
	build = func(p *formats.USDPrim, parent *Object) *Object {
		o := &Object{Name: p.Name, Kind: usdKind(p), Type: p.Type}
		addChild(parent, o)
		s.prims[o] = p
		for _, c := range p.Children {
			if c.Specifier == "class" {
				continue
			}
			build(c, o)
		}
		return o
	}
	var roots []*Object
	for _, p := range layer.Prims {
		if p.Specifier == "class" {
			continue
		}
		roots = append(roots, build(p, nil))
	}
	s.hierarchy = newHierarchy(roots)
	return s
}

func usdKind(p *formats.USDPrim) Kind {
	switch p.Type {
	case "Camera":
		return KindCamera
	case "Mesh":
		return KindMesh
	case "Xform", "SkelRoot":
		return KindTransform
	}
	if p.Attr("xformOpOrder") != nil {
		return KindTransform
	}
	return KindOther
}

func (s *usdStage) FilePath() string { return s.path }

func (s *usdStage) Close() error { return nil }

// timeCode converts seconds to a layer time code.
func (s *usdStage) timeCode(seconds float64) float64 {
	return seconds * s.tcps
}

// frameRange returns end - start + 1, or DefaultFrameCount for a layer
// without a usable range.
func (s *usdStage) frameRange() int {
	if s.end > s.start {
		return int(s.end - s.start + 1)
	}
	return DefaultFrameCount
}

func (s *usdStage) SampleTransform(obj *Object, seconds float64) (TransformSample, error) {
	if err := s.checkObject(obj); err != nil {
		return TransformSample{}, err
	}
	tc := s.timeCode(seconds)
	local, err := s.localMatrix(obj, tc)
	if err != nil {
		return TransformSample{}, err
	}
	world, err := worldMatrix(obj, func(o *Object) (math.Mat4, error) {
		return s.localMatrix(o, tc)
	})
	if err != nil {
		return TransformSample{}, err
	}
	return TransformSample{Local: local, World: world}, nil
}

// localMatrix evaluates xformOpOrder at time code tc. Ops are listed
// outermost first, so the last op touches the point first.
func (s *usdStage) localMatrix(obj *Object, tc float64) (math.Mat4, error) {
	prim := s.prims[obj]
	order := prim.Attr("xformOpOrder")
	if order == nil {
		return math.Identity(), nil
	}
	ops, _ := order.Sample(tc)

	m := math.Identity()
	for _, op := range ops.Strings() {
		if op == "!resetXformStack!" {
			continue
		}
		name := strings.TrimPrefix(op, "!invert!")
		attr := prim.Attr(name)
		if attr == nil {
			return math.Mat4{}, fmt.Errorf("%s: xform op %q has no attribute", obj.Path, name)
		}
		val, ok := attr.Sample(tc)
		if !ok {
			continue
		}
		opm, err := xformOpMatrix(name, val)
		if err != nil {
			return math.Mat4{}, fmt.Errorf("%s: %w", obj.Path, err)
		}
		if name != op {
			opm = opm.Inverse()
		}
		m = opm.Mul(m)
	}
	return m, nil
}

// xformOpMatrix builds the matrix of one op. The op type is the second
// component of names such as "xformOp:rotateXYZ:pivot".
func xformOpMatrix(name string, v formats.USDValue) (math.Mat4, error) {
	parts := strings.Split(name, ":")
	if len(parts) < 2 || parts[0] != "xformOp" {
		return math.Mat4{}, fmt.Errorf("malformed xform op %q", name)
	}
	typ := parts[1]

	vec := func() (math.Vec3, error) {
		f := v.Floats()
		if len(f) != 3 {
			return math.Vec3{}, fmt.Errorf("xform op %q: expected 3 values, got %d", name, len(f))
		}
		return math.Vec3{X: f[0], Y: f[1], Z: f[2]}, nil
	}

	switch typ {
	case "translate":
		t, err := vec()
		if err != nil {
			return math.Mat4{}, err
		}
		return math.Translate(t.X, t.Y, t.Z), nil
	case "scale":
		sc, err := vec()
		if err != nil {
			return math.Mat4{}, err
		}
		return math.Scale(sc.X, sc.Y, sc.Z), nil
	case "rotateX", "rotateY", "rotateZ":
		a, ok := v.Float()
		if !ok {
			return math.Mat4{}, fmt.Errorf("xform op %q: expected a number", name)
		}
		return axisRotation(typ[len(typ)-1], a), nil
	case "rotateXYZ", "rotateXZY", "rotateYXZ", "rotateYZX", "rotateZXY", "rotateZYX":
		r, err := vec()
		if err != nil {
			return math.Mat4{}, err
		}
		angles := map[byte]float64{'X': r.X, 'Y': r.Y, 'Z': r.Z}
		m := math.Identity()
		for _, axis := range []byte(typ[len("rotate"):]) {
			m = m.Mul(axisRotation(axis, angles[axis]))
		}
		return m, nil
	case "orient":
		f := v.Floats()
		if len(f) != 4 {
			return math.Mat4{}, fmt.Errorf("xform op %q: expected a quaternion", name)
		}
		return math.Quat{W: f[0], X: f[1], Y: f[2], Z: f[3]}.ToMat4(), nil
	case "transform":
		arr, ok := v.Matrix()
		if !ok {
			return math.Mat4{}, fmt.Errorf("xform op %q: expected a 4x4 matrix", name)
		}
		return math.Mat4(arr), nil
	}
	return math.Mat4{}, fmt.Errorf("unsupported xform op %q", name)
}

func axisRotation(axis byte, deg float64) math.Mat4 {
	switch axis {
	case 'X':
		return math.RotateX(math.Radians(deg))
	case 'Y':
		return math.RotateY(math.Radians(deg))
	default:
		return math.RotateZ(math.Radians(deg))
	}
}

func (s *usdStage) MeshDataAtTime(obj *Object, seconds float64) (MeshSample, error) {
	if err := s.checkObject(obj); err != nil {
		return MeshSample{}, err
	}
	if obj.Kind != KindMesh {
		return MeshSample{}, fmt.Errorf("%s is a %s, not a mesh", obj.Path, obj.Kind)
	}
	prim := s.prims[obj]
	tc := s.timeCode(seconds)

	var ms MeshSample
	if a := prim.Attr("points"); a != nil {
		if v, ok := a.Sample(tc); ok {
			for _, p := range v.Vec3s() {
				ms.Positions = append(ms.Positions, math.Vec3From(p))
			}
		}
	}
	if a := prim.Attr("faceVertexIndices"); a != nil {
		if v, ok := a.Sample(tc); ok {
			ms.Indices = v.Ints()
		}
	}
	if a := prim.Attr("faceVertexCounts"); a != nil {
		if v, ok := a.Sample(tc); ok {
			ms.Counts = v.Ints()
		}
	}
	return ms, nil
}

// lens returns focal length and apertures in the units the layer stores them.
func (s *usdStage) lens(obj *Object, seconds float64) (focal, hAperture, vAperture float64, err error) {
	if err := s.checkObject(obj); err != nil {
		return 0, 0, 0, err
	}
	if obj.Kind != KindCamera {
		return 0, 0, 0, fmt.Errorf("%s is a %s, not a camera", obj.Path, obj.Kind)
	}
	prim := s.prims[obj]
	tc := s.timeCode(seconds)
	focal = floatAttr(prim, "focalLength", tc, defaultFocalLengthMM)
	hAperture = floatAttr(prim, "horizontalAperture", tc, defaultHApertureMM)
	vAperture = floatAttr(prim, "verticalAperture", tc, defaultVApertureMM)
	return focal, hAperture, vAperture, nil
}

func floatAttr(p *formats.USDPrim, name string, tc, fallback float64) float64 {
	a := p.Attr(name)
	if a == nil {
		return fallback
	}
	v, ok := a.Sample(tc)
	if !ok {
		return fallback
	}
	f, ok := v.Float()
	if !ok {
		return fallback
	}
	return f
}

// findStringAttr returns the first non-empty string or asset attribute whose
// last name component is one of names. Cameras are searched first.
func (s *usdStage) findStringAttr(names ...string) string {
	wanted := map[string]bool{}
	for _, n := range names {
		wanted[n] = true
	}
	search := func(objs []*Object) string {
		for _, o := range objs {
			prim := s.prims[o]
			for _, attrName := range prim.AttrOrder {
				leaf := attrName[strings.LastIndexByte(attrName, ':')+1:]
				if !wanted[leaf] {
					continue
				}
				a := prim.Attributes[attrName]
				v, ok := a.Sample(s.start)
				if !ok || (v.Kind != formats.USDString && v.Kind != formats.USDAsset) {
					continue
				}
				if v.Str != "" {
					return v.Str
				}
			}
		}
		return ""
	}
	if found := search(s.Cameras()); found != "" {
		return found
	}
	return search(s.AllObjects())
}

// hasAnimatedXform reports whether any xform op of obj has more than one sample.
func (s *usdStage) hasAnimatedXform(obj *Object) bool {
	prim := s.prims[obj]
	for name, a := range prim.Attributes {
		if strings.HasPrefix(name, "xformOp:") && a.IsAnimated() {
			return true
		}
	}
	return false
}

// USDReader reads USD layers. Text layers are parsed directly; binary crate
// files are flattened through usdcat first. Composition arcs are not followed.
type USDReader struct {
	*usdStage
}

// OpenUSD opens a .usd, .usda or .usdc file.
func OpenUSD(ctx context.Context, path string, opts Options) (*USDReader, error) {
	binary, err := isUSDCrate(path)
	if err != nil {
		return nil, err
	}

	var data []byte
	if binary {
		data, err = newUsdcat(opts.UsdcatPath, opts.UsdcatTimeout).toUSDA(ctx, path)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading USD file: %w", err)
	}

	layer, err := formats.ParseUSDA(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}

	r := &USDReader{usdStage: newUSDStage(path, layer)}
	logger.Debug("opened USD layer",
		zap.String("file", path),
		zap.Bool("binary", binary),
		zap.Int("objects", len(r.AllObjects())),
		zap.Float64("timeCodesPerSecond", r.tcps))
	return r, nil
}

func isUSDCrate(path string) (bool, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".usdc":
		return true, nil
	case ".usda":
		return false, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return false, fmt.Errorf("opening USD file: %w", err)
	}
	defer f.Close()
	head := make([]byte, len(usdcMagic))
	if _, err := io.ReadFull(f, head); err != nil {
		return false, nil
	}
	return bytes.Equal(head, []byte(usdcMagic)), nil
}

func (r *USDReader) Format() Format { return FormatUSD }

// DetectFrameCount uses the layer time range; fps is not needed.
func (r *USDReader) DetectFrameCount(fps float64) int {
	return r.frameRange()
}

// CameraProperties converts the stored millimetre apertures to centimetres.
func (r *USDReader) CameraProperties(obj *Object, seconds float64) (scene.CameraProperties, error) {
	focal, h, v, err := r.lens(obj, seconds)
	if err != nil {
		return scene.CameraProperties{}, err
	}
	return scene.CameraProperties{FocalLength: focal, HAperture: h / 10, VAperture: v / 10}, nil
}

func (r *USDReader) FootagePath() string {
	if v, ok := r.customData("footagePath"); ok && v.Str != "" {
		return v.Str
	}
	return r.findStringAttr("footagePath")
}

// RenderResolution looks at customLayerData, then at RenderSettings prims.
func (r *USDReader) RenderResolution() (width, height int) {
	if v, ok := r.customData("renderResolution"); ok {
		if f := v.Floats(); len(f) == 2 && f[0] > 0 && f[1] > 0 {
			return int(f[0]), int(f[1])
		}
	}
	w, wok := r.customData("resolutionWidth")
	h, hok := r.customData("resolutionHeight")
	if wok && hok && w.Num > 0 && h.Num > 0 {
		return int(w.Num), int(h.Num)
	}
	for _, o := range r.AllObjects() {
		if o.Type != "RenderSettings" {
			continue
		}
		a := r.prims[o].Attr("resolution")
		if a == nil {
			continue
		}
		v, _ := a.Sample(r.start)
		if f := v.Floats(); len(f) == 2 && f[0] > 0 && f[1] > 0 {
			return int(f[0]), int(f[1])
		}
	}
	return DefaultWidth, DefaultHeight
}

func (r *USDReader) customData(key string) (formats.USDValue, bool) {
	d, ok := r.layer.Metadata["customLayerData"]
	if !ok || d.Kind != formats.USDDict {
		return formats.USDValue{}, false
	}
	v, ok := d.Dict[key]
	return v, ok
}

// IsOrganizationalGroup treats World/Root/Scene containers and transforms
// that only group other transforms as organizational.
func (r *USDReader) IsOrganizationalGroup(obj *Object) bool {
	if obj.Kind != KindTransform {
		return false
	}
	switch strings.ToLower(obj.Name) {
	case "world", "root", "scene":
		return true
	}
	return len(obj.Children) > 0 && !obj.HasShapeChild()
}
