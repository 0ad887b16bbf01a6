package reader

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/Faultbox/a2j/internal/logger"
	"github.com/Faultbox/a2j/internal/scene"
	"github.com/Faultbox/a2j/pkg/encoding"
	"github.com/Faultbox/a2j/pkg/formats"
	"github.com/Faultbox/a2j/pkg/math"
)

// Maya camera defaults, film back in inches.
const (
	defaultMayaFocalLength = 35.0
	defaultMayaHAperture   = 1.417
	defaultMayaVAperture   = 0.945
	inchToCM               = 2.54
)

// mayaTimeUnits maps named currentUnit -t values to frame rates.
var mayaTimeUnits = map[string]float64{
	"game":  15,
	"film":  24,
	"pal":   25,
	"ntsc":  30,
	"show":  48,
	"palf":  50,
	"ntscf": 60,
}

// channelAliases pairs short and long transform channel names.
var channelAliases = map[string]string{
	"tx": "translateX", "ty": "translateY", "tz": "translateZ",
	"rx": "rotateX", "ry": "rotateY", "rz": "rotateZ",
	"sx": "scaleX", "sy": "scaleY", "sz": "scaleZ",
	"translateX": "tx", "translateY": "ty", "translateZ": "tz",
	"rotateX": "rx", "rotateY": "ry", "rotateZ": "rz",
	"scaleX": "sx", "scaleY": "sy", "scaleZ": "sz",
}

// mayaRotateOrders lists the .ro enum in order, first axis applied first.
var mayaRotateOrders = []string{"XYZ", "YZX", "ZXY", "XZY", "YXZ", "ZYX"}

var (
	codesetRe     = regexp.MustCompile(`fileInfo\s+"codeset"\s+"([^"]+)"`)
	targetAttrRe  = regexp.MustCompile(`^\.?(?:it|inputTarget)\[(\d+)\]\.(?:itg|inputTargetGroup)\[(\d+)\]\.(?:iti|inputTargetItem)\[(\d+)\]\.(ipt|inputPointsTarget|ict|inputComponentsTarget)$`)
	componentSpec = regexp.MustCompile(`^vtx\[(\d+)(?::(\d+))?\]$`)
)

type curveKey struct {
	frame float64
	value float64
}

// animCurve is an animCurveTL/TA/TU node evaluated with linear
// interpolation, held constant outside its keys.
type animCurve struct {
	name string
	keys []curveKey
}

func (c *animCurve) valueAt(frame float64) float64 {
	n := len(c.keys)
	if n == 0 {
		return 0
	}
	if frame <= c.keys[0].frame {
		return c.keys[0].value
	}
	if frame >= c.keys[n-1].frame {
		return c.keys[n-1].value
	}
	i := sort.Search(n, func(i int) bool { return c.keys[i].frame > frame }) - 1
	lo, hi := c.keys[i], c.keys[i+1]
	if hi.frame == lo.frame {
		return lo.value
	}
	t := (frame - lo.frame) / (hi.frame - lo.frame)
	return lo.value + t*(hi.value-lo.value)
}

// MayaReader reads Maya ASCII scenes without Maya. Animation comes from
// animCurve nodes connected to transform channels and blend shape weights.
type MayaReader struct {
	*hierarchy
	path   string
	file   *formats.MAFile
	nodes  map[*Object]*formats.MANode
	curves map[string]*animCurve // "node.attr" -> curve
	fps    float64
	start  float64
	end    float64
}

// OpenMaya parses a .ma file. Text that is not UTF-8 is decoded with the
// file's codeset, or fallbackCharset when it declares none.
func OpenMaya(path string, opts Options) (*MayaReader, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading Maya ASCII file: %w", err)
	}

	charset := opts.FallbackCharset
	if m := codesetRe.FindSubmatch(raw); m != nil {
		charset = mayaCodeset(string(m[1]))
	}
	text, err := encoding.DecodeText(raw, charset)
	if err != nil {
		logger.Warn("undecodable Maya codeset, using fallback",
			zap.String("file", path), zap.String("codeset", charset), zap.Error(err))
		if text, err = encoding.DecodeText(raw, opts.FallbackCharset); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", path, err)
		}
	}

	file, err := formats.ParseMA([]byte(text))
	if err != nil {
		return nil, fmt.Errorf("parsing Maya ASCII: %w", err)
	}
	r := newMayaReader(path, file)

	logger.Debug("opened Maya scene",
		zap.String("file", path),
		zap.Float64("fps", r.fps),
		zap.Float64("start", r.start),
		zap.Float64("end", r.end),
		zap.Int("objects", len(r.AllObjects())),
		zap.Int("curves", len(r.curves)))
	return r, nil
}

// mayaCodeset turns Windows code page numbers such as "1252" into charset names.
func mayaCodeset(cs string) string {
	if _, err := strconv.Atoi(cs); err == nil {
		return "cp" + cs
	}
	return cs
}

func newMayaReader(path string, file *formats.MAFile) *MayaReader {
	r := &MayaReader{
		path:   path,
		file:   file,
		nodes:  map[*Object]*formats.MANode{},
		curves: map[string]*animCurve{},
		fps:    24,
		start:  1,
		end:    120,
	}

	if unit, ok := file.Units["time"]; ok {
		if fps, ok := mayaTimeUnitFPS(unit); ok {
			r.fps = fps
		} else {
			logger.Warn("unknown Maya time unit, assuming 24 fps", zap.String("unit", unit))
		}
	}
	playback := func(keys ...string) (float64, bool) {
		for _, k := range keys {
			if v, err := strconv.ParseFloat(file.Playback[k], 64); err == nil {
				return v, true
			}
		}
		return 0, false
	}
	if v, ok := playback("ast", "animationStartTime", "min", "minTime"); ok {
		r.start = v
	}
	if v, ok := playback("aet", "animationEndTime", "max", "maxTime"); ok {
		r.end = v
	}

	r.buildCurves()
	r.buildHierarchy()
	return r
}

// mayaTimeUnitFPS resolves currentUnit -t values: named units, "Nfps"
// units and the drop-frame "29.97df".
func mayaTimeUnitFPS(unit string) (float64, bool) {
	if fps, ok := mayaTimeUnits[unit]; ok {
		return fps, true
	}
	num := strings.TrimSuffix(strings.TrimSuffix(unit, "fps"), "df")
	if num == unit {
		return 0, false
	}
	fps, err := strconv.ParseFloat(num, 64)
	if err != nil || fps <= 0 {
		return 0, false
	}
	return fps, true
}

func (r *MayaReader) buildCurves() {
	for _, n := range r.file.Nodes {
		if !strings.HasPrefix(n.Type, "animCurve") {
			continue
		}
		c := &animCurve{name: n.Name}
		for _, a := range n.AttrsNamed("ktv") {
			f := a.Floats()
			for i := 0; i+1 < len(f); i += 2 {
				c.keys = append(c.keys, curveKey{frame: f[i], value: f[i+1]})
			}
		}
		if len(c.keys) == 0 {
			for _, a := range n.AttrsNamed("keyTimeValue") {
				f := a.Floats()
				for i := 0; i+1 < len(f); i += 2 {
					c.keys = append(c.keys, curveKey{frame: f[i], value: f[i+1]})
				}
			}
		}
		sort.SliceStable(c.keys, func(i, j int) bool { return c.keys[i].frame < c.keys[j].frame })

		for _, conn := range r.file.ConnectionsFrom(n.Name) {
			if conn.SrcAttr != "o" && conn.SrcAttr != "output" {
				continue
			}
			r.curves[conn.DstNode+"."+conn.DstAttr] = c
		}
	}
}

// isDAGNode reports nodes that belong in the object hierarchy. Startup
// cameras (persp, top, front, side) are created shared and skipped.
func isDAGNode(n *formats.MANode) bool {
	if n.Shared {
		return false
	}
	switch n.Type {
	case "transform", "joint", "camera", "mesh":
		return true
	}
	return n.Parent != ""
}

func mayaKind(typ string) Kind {
	switch typ {
	case "transform", "joint":
		return KindTransform
	case "camera":
		return KindCamera
	case "mesh":
		return KindMesh
	}
	return KindOther
}

func (r *MayaReader) buildHierarchy() {
	children := map[string][]*formats.MANode{}
	dag := map[string]bool{}
	for _, n := range r.file.Nodes {
		if isDAGNode(n) {
			dag[n.Name] = true
		}
	}
	var roots []*formats.MANode
	for _, n := range r.file.Nodes {
		if !dag[n.Name] {
			continue
		}
		if n.Parent != "" && dag[n.Parent] {
			children[n.Parent] = append(children[n.Parent], n)
		} else {
			roots = append(roots, n)
		}
	}

	var build func(n *formats.MANode, parent *Object) *Object
	build = func(n *formats.MANode, parent *Object) *Object {
		o := &Object{Name: n.Name, Kind: mayaKind(n.Type), Type: n.Type}
		addChild(parent, o)
		r.nodes[o] = n
		for _, c := range children[n.Name] {
			build(c, o)
		}
		return o
	}
	var rootObjs []*Object
	for _, n := range roots {
		rootObjs = append(rootObjs, build(n, nil))
	}
	r.hierarchy = newHierarchy(rootObjs)
}

func (r *MayaReader) Format() Format   { return FormatMaya }
func (r *MayaReader) FilePath() string { return r.path }
func (r *MayaReader) Close() error     { return nil }

// FPS returns the scene frame rate from currentUnit.
func (r *MayaReader) FPS() float64 { return r.fps }

// DetectFrameCount uses the playback range; fps is not needed.
func (r *MayaReader) DetectFrameCount(fps float64) int {
	n := int(r.end - r.start + 1)
	if n < 1 {
		return 1
	}
	return n
}

// curveFor returns the curve driving node.attr under any of the given
// names or their short/long aliases.
func (r *MayaReader) curveFor(node string, attrs ...string) *animCurve {
	for _, a := range attrs {
		if c, ok := r.curves[node+"."+a]; ok {
			return c
		}
		if alias, ok := channelAliases[a]; ok {
			if c, ok := r.curves[node+"."+alias]; ok {
				return c
			}
		}
	}
	return nil
}

// channel evaluates one transform channel such as translate X at frame.
func (r *MayaReader) channel(n *formats.MANode, short, long string, axis int, frame, fallback float64) float64 {
	axes := "XYZ"
	up := string(axes[axis])
	lo := strings.ToLower(up)
	if c := r.curveFor(n.Name, short+lo, short+up, long+up); c != nil {
		return c.valueAt(frame)
	}
	if a, ok := n.Attr(short); ok {
		if f := a.Floats(); len(f) > axis {
			return f[axis]
		}
	}
	if a, ok := n.Attr(long); ok {
		if f := a.Floats(); len(f) > axis {
			return f[axis]
		}
	}
	return n.Float(short+lo, n.Float(long+up, fallback))
}

func (r *MayaReader) channels(n *formats.MANode, short, long string, frame, fallback float64) math.Vec3 {
	return math.Vec3{
		X: r.channel(n, short, long, 0, frame, fallback),
		Y: r.channel(n, short, long, 1, frame, fallback),
		Z: r.channel(n, short, long, 2, frame, fallback),
	}
}

// localMatrix composes scale, rotation in the node's rotate order, then
// translation. Nodes other than transforms contribute identity.
func (r *MayaReader) localMatrix(obj *Object, frame float64) math.Mat4 {
	if obj.Kind != KindTransform {
		return math.Identity()
	}
	n := r.nodes[obj]
	t := r.channels(n, "t", "translate", frame, 0)
	rot := r.channels(n, "r", "rotate", frame, 0)
	s := r.channels(n, "s", "scale", frame, 1)

	order := int(n.Float("ro", n.Float("rotateOrder", 0)))
	if order <= 0 || order >= len(mayaRotateOrders) {
		return math.ComposeTRS(t, rot, s)
	}
	angles := map[byte]float64{'X': rot.X, 'Y': rot.Y, 'Z': rot.Z}
	rm := math.Identity()
	for _, axis := range []byte(mayaRotateOrders[order]) {
		rm = rm.Mul(axisRotation(axis, angles[axis]))
	}
	return math.Scale(s.X, s.Y, s.Z).Mul(rm).Mul(math.Translate(t.X, t.Y, t.Z))
}

// SampleTransform samples transforms directly. Camera and mesh shapes use
// their parent transform, which is where Maya keeps their placement.
func (r *MayaReader) SampleTransform(obj *Object, seconds float64) (TransformSample, error) {
	if err := r.checkObject(obj); err != nil {
		return TransformSample{}, err
	}
	target := obj
	if obj.Kind.IsShape() {
		if obj.Parent == nil {
			return TransformSample{Local: math.Identity(), World: math.Identity()}, nil
		}
		target = obj.Parent
	}
	frame := seconds * r.fps
	local := r.localMatrix(target, frame)
	world, err := worldMatrix(target, func(o *Object) (math.Mat4, error) {
		return r.localMatrix(o, frame), nil
	})
	if err != nil {
		return TransformSample{}, err
	}
	return TransformSample{Local: local, World: world}, nil
}

// MeshDataAtTime returns the stored vertices plus .pnts tweaks. Maya ASCII
// holds no deformation history results, so time is ignored.
func (r *MayaReader) MeshDataAtTime(obj *Object, seconds float64) (MeshSample, error) {
	if err := r.checkObject(obj); err != nil {
		return MeshSample{}, err
	}
	if obj.Kind != KindMesh {
		return MeshSample{}, fmt.Errorf("%s is a %s, not a mesh", obj.Path, obj.Kind)
	}
	n := r.nodes[obj]

	verts, err := indexedVec3s(n.AttrsNamed("vt"), -1)
	if err != nil {
		return MeshSample{}, fmt.Errorf("%s vertices: %w", obj.Path, err)
	}
	// .pnts is sparse; untouched vertices are absent or zero
	tweaks, err := indexedVec3s(n.AttrsNamed("pnts"), len(verts))
	if err != nil {
		return MeshSample{}, fmt.Errorf("%s point tweaks: %w", obj.Path, err)
	}
	for i, off := range tweaks {
		verts[i] = verts[i].Add(off)
	}

	var edges [][2]int
	for _, a := range n.AttrsNamed("ed") {
		f := a.Floats()
		for i := 0; i+2 < len(f); i += 3 {
			e := [2]int{int(f[i]), int(f[i+1])}
			if e[0] < 0 || e[0] >= len(verts) || e[1] < 0 || e[1] >= len(verts) {
				return MeshSample{}, fmt.Errorf("%s edge %d references vertex outside 0..%d", obj.Path, len(edges), len(verts)-1)
			}
			edges = append(edges, e)
		}
	}

	faces, err := polyFaces(n.AttrsNamed("fc"))
	if err != nil {
		return MeshSample{}, fmt.Errorf("%s faces: %w", obj.Path, err)
	}
	ms := MeshSample{Positions: verts}
	for _, face := range faces {
		fv := make([]int, 0, len(face))
		for _, e := range face {
			if e >= 0 && e < len(edges) {
				fv = append(fv, edges[e][0])
			} else if e < 0 && -e-1 < len(edges) {
				fv = append(fv, edges[-e-1][1])
			}
		}
		if len(fv) == len(face) {
			ms.Indices = append(ms.Indices, fv...)
			ms.Counts = append(ms.Counts, len(fv))
		}
	}
	return ms, nil
}

// indexedVec3s assembles an array attribute written in index-range chunks.
// A negative limit reads a dense array, whose indices never reach the number
// of vectors present. Otherwise the array is sparse and entries at or past
// limit are dropped.
func indexedVec3s(chunks []formats.MASetAttr, limit int) ([]math.Vec3, error) {
	values := make([][]float64, len(chunks))
	dense := limit < 0
	if dense {
		limit = 0
		for i, a := range chunks {
			values[i] = a.Floats()
			limit += len(values[i]) / 3
		}
	} else {
		for i, a := range chunks {
			values[i] = a.Floats()
		}
	}

	var out []math.Vec3
	for ci, a := range chunks {
		f := values[ci]
		start, _, ok := a.Range()
		if !ok {
			start = len(out)
		}
		if start < 0 {
			return nil, fmt.Errorf("%s: negative index %d", a.Name, start)
		}
		for i := 0; i+2 < len(f); i += 3 {
			idx := start + i/3
			if idx >= limit {
				if dense {
					return nil, fmt.Errorf("%s: index %d out of range, %d values", a.Name, idx, limit)
				}
				break
			}
			for len(out) <= idx {
				out = append(out, math.Vec3{})
			}
			out[idx] = math.Vec3{X: f[i], Y: f[i+1], Z: f[i+2]}
		}
	}
	return out, nil
}

// polyFaces extracts the edge lists of "f N e1..eN" entries. Hole, UV and
// colour entries that follow a face are skipped.
func polyFaces(chunks []formats.MASetAttr) ([][]int, error) {
	var faces [][]int
	for _, a := range chunks {
		vals := a.Values
		for i := 0; i < len(vals); i++ {
			if vals[i].Text != "f" || i+1 >= len(vals) {
				continue
			}
			count, err := strconv.Atoi(vals[i+1].Text)
			if err != nil {
				continue
			}
			if count < 0 {
				return nil, fmt.Errorf("%s: negative face size %d", a.Name, count)
			}
			if i+1+count >= len(vals) {
				continue
			}
			face := make([]int, 0, count)
			for _, v := range vals[i+2 : i+2+count] {
				e, err := strconv.Atoi(v.Text)
				if err != nil {
					break
				}
				face = append(face, e)
			}
			if len(face) == count {
				faces = append(faces, face)
			}
			i += 1 + count
		}
	}
	return faces, nil
}

// CameraProperties converts the film back from inches to centimetres.
// Camera attributes are not animated in this reader.
func (r *MayaReader) CameraProperties(obj *Object, seconds float64) (scene.CameraProperties, error) {
	if err := r.checkObject(obj); err != nil {
		return scene.CameraProperties{}, err
	}
	if obj.Kind != KindCamera {
		return scene.CameraProperties{}, fmt.Errorf("%s is a %s, not a camera", obj.Path, obj.Kind)
	}
	n := r.nodes[obj]

	hfa, vfa := defaultMayaHAperture, defaultMayaVAperture
	if a, ok := n.Attr("cap"); ok {
		if f := a.Floats(); len(f) == 2 {
			hfa, vfa = f[0], f[1]
		}
	}
	hfa = n.Float("hfa", n.Float("horizontalFilmAperture", hfa))
	vfa = n.Float("vfa", n.Float("verticalFilmAperture", vfa))

	focal := n.Float("fl", n.Float("focalLength", defaultMayaFocalLength))
	if c := r.curveFor(n.Name, "fl", "focalLength"); c != nil {
		focal = c.valueAt(seconds * r.fps)
	}

	return scene.CameraProperties{
		FocalLength: focal,
		HAperture:   hfa * inchToCM,
		VAperture:   vfa * inchToCM,
	}, nil
}

// FootagePath returns the image of the first image plane, if any.
func (r *MayaReader) FootagePath() string {
	for _, n := range r.file.NodesOfType("imagePlane") {
		if a, ok := n.Attr("imn"); ok && a.String() != "" {
			return a.String()
		}
		if a, ok := n.Attr("imageName"); ok && a.String() != "" {
			return a.String()
		}
	}
	return ""
}

// RenderResolution reads the defaultResolution node.
func (r *MayaReader) RenderResolution() (width, height int) {
	n := r.file.Node("defaultResolution")
	if n == nil {
		return DefaultWidth, DefaultHeight
	}
	w := int(n.Float("w", n.Float("width", 0)))
	h := int(n.Float("h", n.Float("height", 0)))
	if w <= 0 || h <= 0 {
		return DefaultWidth, DefaultHeight
	}
	return w, h
}

// IsOrganizationalGroup reports unanimated transforms that hold children
// but no camera or mesh directly.
func (r *MayaReader) IsOrganizationalGroup(obj *Object) bool {
	if obj.Kind != KindTransform {
		return false
	}
	name := r.nodes[obj].Name
	for _, ch := range []string{"tx", "ty", "tz", "rx", "ry", "rz", "sx", "sy", "sz"} {
		if r.curveFor(name, ch) != nil {
			return false
		}
	}
	return len(obj.Children) > 0 && !obj.HasShapeChild()
}

type blendTargetItem struct {
	weightIdx  int
	deltas     []math.Vec3
	components [][2]int
}

// BlendShapes returns the blendShape deformer feeding mesh, or nil.
func (r *MayaReader) BlendShapes(mesh *Object) (*scene.BlendShapeDeformer, error) {
	if err := r.checkObject(mesh); err != nil {
		return nil, err
	}
	for _, bs := range r.file.NodesOfType("blendShape") {
		if !r.feeds(bs.Name, mesh.Name) {
			continue
		}
		d, err := r.blendShapeDeformer(bs, mesh.Name)
		if err != nil {
			return nil, fmt.Errorf("blendShape %s: %w", bs.Name, err)
		}
		if len(d.Channels) > 0 {
			return d, nil
		}
	}
	return nil, nil
}

func (r *MayaReader) feeds(deformer, mesh string) bool {
	for _, c := range r.file.ConnectionsFrom(deformer) {
		if c.DstNode != mesh {
			continue
		}
		switch c.DstAttr {
		case "inMesh", "i", "inputGeometry", "ig":
			return true
		}
	}
	return false
}

func (r *MayaReader) blendShapeDeformer(bs *formats.MANode, mesh string) (*scene.BlendShapeDeformer, error) {
	groups := map[int]map[int]*blendTargetItem{}
	item := func(target, weight int) *blendTargetItem {
		if groups[target] == nil {
			groups[target] = map[int]*blendTargetItem{}
		}
		it, ok := groups[target][weight]
		if !ok {
			it = &blendTargetItem{weightIdx: weight}
			groups[target][weight] = it
		}
		return it
	}

	for _, a := range bs.Attrs {
		m := targetAttrRe.FindStringSubmatch(a.Name)
		if m == nil {
			continue
		}
		target, _ := strconv.Atoi(m[2])
		weight, _ := strconv.Atoi(m[3])
		var err error
		switch m[4] {
		case "ipt", "inputPointsTarget":
			item(target, weight).deltas, err = pointArray(a)
		case "ict", "inputComponentsTarget":
			item(target, weight).components, err = componentList(a)
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", a.Name, err)
		}
	}

	aliases := map[int]string{}
	for alias, attr := range bs.Aliases {
		if _, idx, ok := formats.ParseIndexRange(attr); ok && (strings.HasPrefix(attr, "w[") || strings.HasPrefix(attr, "weight[")) {
			aliases[idx] = alias
		}
	}

	targetIdx := make([]int, 0, len(groups))
	for t := range groups {
		targetIdx = append(targetIdx, t)
	}
	sort.Ints(targetIdx)

	d := &scene.BlendShapeDeformer{Name: bs.Name, BaseMeshName: mesh}
	for _, t := range targetIdx {
		name, ok := aliases[t]
		if !ok {
			name = fmt.Sprintf("target_%d", t)
		}
		ch := scene.BlendShapeChannel{Name: name}

		weights := make([]int, 0, len(groups[t]))
		for w := range groups[t] {
			weights = append(weights, w)
		}
		sort.Ints(weights)
		for _, w := range weights {
			it := groups[t][w]
			if len(it.deltas) == 0 {
				continue
			}
			var comps []int
			if len(it.components) > 0 {
				comps = expandComponents(it.components, len(it.deltas))
			} else {
				comps = make([]int, len(it.deltas))
				for i := range comps {
					comps[i] = i
				}
			}
			n := min(len(comps), len(it.deltas))
			full := float64(w)/1000 - 5
			if full <= 0 {
				full = 1
			}
			ch.Targets = append(ch.Targets, scene.BlendShapeTarget{
				Name:          name,
				FullWeight:    full,
				VertexIndices: comps[:n],
				Deltas:        it.deltas[:n],
			})
		}
		if len(ch.Targets) == 0 {
			continue
		}

		wAttr := fmt.Sprintf("w[%d]", t)
		ch.DefaultWeight = bs.Float(wAttr, 0)
		if c := r.curveFor(bs.Name, wAttr, fmt.Sprintf("weight[%d]", t), name); c != nil {
			for _, k := range c.keys {
				ch.WeightKeys = append(ch.WeightKeys, scene.WeightKey{Frame: int(k.frame), Weight: k.value})
			}
		}
		d.Channels = append(d.Channels, ch)
	}
	return d, nil
}

// pointArray reads "N x y z w ..." values. Points carry a homogeneous w
// component; three component data is accepted as well.
func pointArray(a formats.MASetAttr) ([]math.Vec3, error) {
	f := a.Floats()
	if len(f) == 0 {
		return nil, nil
	}
	count := int(f[0])
	if count < 0 {
		return nil, fmt.Errorf("negative point count %d", count)
	}
	f = f[1:]
	stride := 3
	if count > 0 && len(f) == count*4 {
		stride = 4
	}
	out := make([]math.Vec3, 0, min(count, len(f)/3))
	for i := 0; i+2 < len(f) && len(out) < count; i += stride {
		out = append(out, math.Vec3{X: f[i], Y: f[i+1], Z: f[i+2]})
	}
	return out, nil
}

// componentList reads "vtx[a:b]" entries as inclusive index ranges.
func componentList(a formats.MASetAttr) ([][2]int, error) {
	var out [][2]int
	for _, v := range a.Values {
		m := componentSpec.FindStringSubmatch(v.Text)
		if m == nil {
			continue
		}
		lo, err := strconv.Atoi(m[1])
		if err != nil {
			return nil, fmt.Errorf("component %s: %w", v.Text, err)
		}
		hi := lo
		if m[2] != "" {
			if hi, err = strconv.Atoi(m[2]); err != nil {
				return nil, fmt.Errorf("component %s: %w", v.Text, err)
			}
		}
		if hi < lo {
			return nil, fmt.Errorf("component %s: reversed range", v.Text)
		}
		out = append(out, [2]int{lo, hi})
	}
	return out, nil
}

// expandComponents lists the vertex indices of ranges, stopping after
// limit entries since each one pairs with a stored delta.
func expandComponents(ranges [][2]int, limit int) []int {
	var out []int
	for _, r := range ranges {
		for i := r[0]; i <= r[1] && len(out) < limit; i++ {
			out = append(out, i)
		}
	}
	return out
}
