// Package robot provides the joint model, configuration and arm abstraction
// for Universal Robots arms.
package robot

import (
	"fmt"
	"strings"
)

// JointName identifies a joint in the arm.
type JointName string

// Joint names for the six-axis UR arms (UR3e, UR5e, UR10e, ...).
const (
	Base     JointName = "base"
	Shoulder JointName = "shoulder"
	Elbow    JointName = "elbow"
	Wrist1   JointName = "wrist1"
	Wrist2   JointName = "wrist2"
	Wrist3   JointName = "wrist3"
)

// NumJoints is the number of joints of a UR arm.
const NumJoints = 6

// AllJoints returns all joint names in controller order (actual_q index 0-5).
func AllJoints() []JointName {
	return []JointName{
		Base,
		Shoulder,
		Elbow,
		Wrist1,
		Wrist2,
		Wrist3,
	}
}

// Joints holds one value per joint, in radians, in controller order.
type Joints [NumJoints]float64

// Home is the all-zero joint configuration.
var Home = Joints{}

// JointsFromSlice converts a controller vector (e.g. actual_q) to Joints.
func JointsFromSlice(v []float64) (Joints, error) {
	var q Joints
	if len(v) != NumJoints {
		return q, fmt.Errorf("expected %d joint values, got %d", NumJoints, len(v))
	}
	copy(q[:], v)
	return q, nil
}

// Script formats the joints as a URScript list literal.
func (q Joints) Script() string {
	parts := make([]string, len(q))
	for i, v := range q {
		parts[i] = fmt.Sprintf("%.6f", v)
	}
	return "[" + strings.Join(parts, ",") + "]"
}
