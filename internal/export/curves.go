package export

import (
	gomath "math"
	"sort"
	"strconv"

	"github.com/Faultbox/a2j/internal/scene"
	"github.com/Faultbox/a2j/pkg/math"
)

// curve is one scalar channel sampled once per keyframe.
type curve struct {
	axis   string
	values []float64
}

// varies reports whether the values hold more than one distinct number
// after rounding to places decimals.
func varies(values []float64, places int) bool {
	if len(values) < 2 {
		return false
	}
	first := roundTo(values[0], places)
	for _, v := range values[1:] {
		if roundTo(v, places) != first {
			return true
		}
	}
	return false
}

func roundTo(v float64, places int) float64 {
	p := gomath.Pow(10, float64(places))
	return gomath.Round(v*p) / p
}

// split turns a per-key vector into X, Y and Z curves.
func split(keys []scene.Keyframe, pick func(scene.Keyframe) math.Vec3) [3]curve {
	out := [3]curve{{axis: "X"}, {axis: "Y"}, {axis: "Z"}}
	for _, k := range keys {
		v := pick(k)
		out[0].values = append(out[0].values, v.X)
		out[1].values = append(out[1].values, v.Y)
		out[2].values = append(out[2].values, v.Z)
	}
	return out
}

func keyPosition(k scene.Keyframe) math.Vec3     { return k.Position }
func keyRotationMaya(k scene.Keyframe) math.Vec3 { return k.RotationMaya }
func keyScale(k scene.Keyframe) math.Vec3        { return k.Scale }

// firstKey returns the first keyframe, or the rest pose for objects
// without keys.
func firstKey(keys []scene.Keyframe) scene.Keyframe {
	if len(keys) == 0 {
		return scene.Keyframe{Frame: 1, Scale: math.Vec3{X: 1, Y: 1, Z: 1}}
	}
	return keys[0]
}

// num formats a float with the shortest exact representation.
func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// weightAt evaluates a blend shape channel weight at frame. Keys are
// interpolated linearly and clamped outside their range.
func weightAt(ch scene.BlendShapeChannel, frame float64) float64 {
	keys := ch.WeightKeys
	if len(keys) == 0 {
		return ch.DefaultWeight
	}
	if frame <= float64(keys[0].Frame) {
		return keys[0].Weight
	}
	for i := 1; i < len(keys); i++ {
		lo, hi := keys[i-1], keys[i]
		if frame <= float64(hi.Frame) {
			span := float64(hi.Frame - lo.Frame)
			if span <= 0 {
				return hi.Weight
			}
			t := (frame - float64(lo.Frame)) / span
			return lo.Weight + (hi.Weight-lo.Weight)*t
		}
	}
	return keys[len(keys)-1].Weight
}

// weightFrames returns the sorted union of keyed frames over channels.
func weightFrames(channels []scene.BlendShapeChannel) []int {
	seen := map[int]bool{}
	var out []int
	for _, ch := range channels {
		for _, k := range ch.WeightKeys {
			if !seen[k.Frame] {
				seen[k.Frame] = true
				out = append(out, k.Frame)
			}
		}
	}
	sort.Ints(out)
	return out
}
