package robot

import (
	"math"
	"testing"
)

func TestJointLimit_Normalize(t *testing.T) {
	lim := JointLimit{
		Min: -math.Pi,
		Max: math.Pi,
	}

	tests := []struct {
		rad      float64
		expected float64
	}{
		{-math.Pi, -100.0},    // min -> -100
		{math.Pi, 100.0},      // max -> 100
		{0, 0.0},              // mid -> 0
		{-math.Pi / 2, -50.0}, // quarter -> -50
		{math.Pi / 2, 50.0},   // three-quarter -> 50
	}

	for _, tt := range tests {
		got := lim.Normalize(tt.rad)
		if math.Abs(got-tt.expected) > 0.001 {
			t.Errorf("Normalize(%f) = %f, want %f", tt.rad, got, tt.expected)
		}
	}
}

func TestJointLimit_NormalizeEmptyRange(t *testing.T) {
	lim := JointLimit{Min: 1, Max: 1}
	if got := lim.Normalize(1); got != 0 {
		t.Errorf("Normalize on empty range = %f, want 0", got)
	}
}

func TestJointLimits_Normalize(t *testing.T) {
	limits := JointLimits{
		Base:  JointLimit{Min: -1, Max: 1},
		Elbow: JointLimit{Min: 0, Max: 2},
	}

	got := limits.Normalize(Joints{0.5, 3, 1, 0, 0, 0})
	if len(got) != 2 {
		t.Fatalf("Normalize returned %d joints, want 2", len(got))
	}
	if math.Abs(got[Base]-50) > 0.001 {
		t.Errorf("base = %f, want 50", got[Base])
	}
	if math.Abs(got[Elbow]) > 0.001 {
		t.Errorf("elbow = %f, want 0", got[Elbow])
	}
}

func TestJointLimits_Check(t *testing.T) {
	limits := DefaultLimits()

	if name, ok := limits.Check(Home); !ok {
		t.Errorf("Check(Home) rejected joint %s", name)
	}

	name, ok := limits.Check(Joints{0, 0, 4, 0, 0, 0})
	if ok {
		t.Fatal("Check should reject an elbow angle of 4 rad")
	}
	if name != Elbow {
		t.Errorf("Check returned %s, want elbow", name)
	}
}
