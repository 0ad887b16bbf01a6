package math

import (
	"fmt"
	"math"
)

// Convention selects the Euler extraction order used by Decompose.
type Convention int

const (
	// ConventionAE reads the normalised basis as a column-vector Rz*Ry*Rx
	// (After Effects layer orientation).
	ConventionAE Convention = iota
	// ConventionMaya reads the normalised basis as a row-vector Rx*Ry*Rz
	// (Maya and USD rotateXYZ).
	ConventionMaya
)

// String returns the convention name.
func (c Convention) String() string {
	switch c {
	case ConventionAE:
		return "ae"
	case ConventionMaya:
		return "maya"
	default:
		return fmt.Sprintf("Convention(%d)", int(c))
	}
}

// gimbalEpsilon is the cosine below which the middle angle is treated as +-90 degrees.
const gimbalEpsilon = 1e-6

// degenerateNorm is the basis-row length treated as zero.
const degenerateNorm = 1e-12

// Decomposition is the result of splitting a transform into its parts.
type Decomposition struct {
	Translation Vec3
	Rotation    Vec3 // XYZ Euler, degrees
	Scale       Vec3
}

// Decompose splits an affine matrix into translation, XYZ Euler rotation (degrees) and scale.
//
// Scale is the length of each basis row. A zero-length row keeps scale 0 and is
// normalised by 1 instead, so a collapsed axis yields zero angles rather than NaN.
// In the gimbal-lock branch the Z angle is reported as 0 and folded into X.
func Decompose(m Mat4, c Convention) Decomposition {
	var d Decomposition
	d.Translation = m.Translation()

	rows := [3]Vec3{
		{m[0], m[1], m[2]},
		{m[4], m[5], m[6]},
		{m[8], m[9], m[10]},
	}

	var r [3][3]float64
	norms := [3]float64{}
	for i, row := range rows {
		n := row.Length()
		norms[i] = n
		div := n
		if div < degenerateNorm {
			div = 1
		}
		r[i] = [3]float64{row.X / div, row.Y / div, row.Z / div}
	}
	d.Scale = Vec3{norms[0], norms[1], norms[2]}

	var x, y, z float64
	switch c {
	case ConventionMaya:
		cy := math.Sqrt(r[0][0]*r[0][0] + r[0][1]*r[0][1])
		if cy > gimbalEpsilon {
			x = math.Atan2(r[1][2], r[2][2])
			y = math.Atan2(-r[0][2], cy)
			z = math.Atan2(r[0][1], r[0][0])
		} else {
			x = math.Atan2(-r[2][1], r[1][1])
			y = math.Atan2(-r[0][2], cy)
			z = 0
		}
	default:
		sy := math.Sqrt(r[0][0]*r[0][0] + r[1][0]*r[1][0])
		if sy > gimbalEpsilon {
			x = math.Atan2(r[2][1], r[2][2])
			y = math.Atan2(-r[2][0], sy)
			z = math.Atan2(r[1][0], r[0][0])
		} else {
			x = math.Atan2(-r[1][2], r[1][1])
			y = math.Atan2(-r[2][0], sy)
			z = 0
		}
	}

	d.Rotation = Vec3{Degrees(x), Degrees(y), Degrees(z)}
	return d
}
