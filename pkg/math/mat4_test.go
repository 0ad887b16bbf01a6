package math

import (
	"math"
	"testing"
)

func TestIdentity(t *testing.T) {
	m := Identity()
	// Diagonal should be 1
	if m[0] != 1 || m[5] != 1 || m[10] != 1 || m[15] != 1 {
		t.Error("Identity diagonal should be 1")
	}
	// Off-diagonal should be 0
	if m[1] != 0 || m[4] != 0 {
		t.Error("Identity off-diagonal should be 0")
	}
}

func TestMulIdentity(t *testing.T) {
	m := Translate(1, 2, 3)
	result := m.Mul(Identity())

	for i := 0; i < 16; i++ {
		if result[i] != m[i] {
			t.Errorf("M * I should equal M, element %d: got %f, want %f", i, result[i], m[i])
		}
	}
}

func TestTranslate(t *testing.T) {
	m := Translate(5, 10, 15)

	// Translation lives in row 3
	if m[12] != 5 || m[13] != 10 || m[14] != 15 {
		t.Errorf("Translate: got %v, want (5, 10, 15)", m.Translation())
	}
}

func TestTransformPoint(t *testing.T) {
	m := Translate(10, 20, 30)
	result := m.TransformPoint(Vec3{1, 2, 3})

	expected := Vec3{11, 22, 33}
	if result != expected {
		t.Errorf("TransformPoint: got %v, want %v", result, expected)
	}
}

func TestTransformPointScale(t *testing.T) {
	m := Scale(2, 2, 2)
	result := m.TransformPoint(Vec3{1, 2, 3})

	expected := Vec3{2, 4, 6}
	if result != expected {
		t.Errorf("TransformPoint with scale: got %v, want %v", result, expected)
	}
}

func TestRotateY90(t *testing.T) {
	m := RotateY(math.Pi / 2)
	result := m.TransformPoint(Vec3{1, 0, 0})

	// After 90 degree Y rotation, (1,0,0) should become approximately (0,0,-1)
	if !result.WithinTolerance(Vec3{0, 0, -1}, 0.001) {
		t.Errorf("RotateY 90: got %v, want (0, 0, -1)", result)
	}
}

func TestMulOrder(t *testing.T) {
	// Scale first, then translate: the translation must not be scaled.
	m := Scale(2, 2, 2).Mul(Translate(1, 0, 0))
	got := m.TransformPoint(Vec3{1, 0, 0})
	if !got.WithinTolerance(Vec3{3, 0, 0}, 1e-12) {
		t.Errorf("S*T applied to (1,0,0) = %v, want (3,0,0)", got)
	}
}

func TestComposeTRS(t *testing.T) {
	m := ComposeTRS(Vec3{1, 2, 3}, Vec3{0, 0, 90}, Vec3{2, 2, 2})
	got := m.TransformPoint(Vec3{1, 0, 0})
	// scale to (2,0,0), rotate Z 90 to (0,2,0), translate
	if !got.WithinTolerance(Vec3{1, 4, 3}, 1e-9) {
		t.Errorf("ComposeTRS point = %v, want (1,4,3)", got)
	}
}

func TestInverse(t *testing.T) {
	m := ComposeTRS(Vec3{3, -1, 2}, Vec3{10, 20, 30}, Vec3{2, 1, 0.5})
	if got := m.Mul(m.Inverse()); !got.ApproxEqual(Identity(), 1e-9) {
		t.Errorf("M * M^-1 = %v, want identity", got)
	}
	if got := Scale(0, 1, 1).Inverse(); got != Identity() {
		t.Errorf("singular inverse = %v, want identity", got)
	}
}

func TestVec3Cross(t *testing.T) {
	got := Vec3{1, 0, 0}.Cross(Vec3{0, 1, 0})
	want := Vec3{0, 0, 1}
	if got != want {
		t.Errorf("Vec3.Cross() = %v, want %v", got, want)
	}
}

func TestLerpVec3(t *testing.T) {
	result := LerpVec3(Vec3{0, 0, 0}, Vec3{10, 20, 30}, 0.5)
	if !result.WithinTolerance(Vec3{5, 10, 15}, 0.001) {
		t.Errorf("LerpVec3: got %v, want (5, 10, 15)", result)
	}
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
