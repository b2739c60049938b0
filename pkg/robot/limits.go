package robot

import "math"

// JointLimit holds the motion range of a single joint, in radians.
type JointLimit struct {
	Min float64 `json:"min" yaml:"min"`
	Max float64 `json:"max" yaml:"max"`
}

// JointLimits holds limits for all joints, keyed by joint name.
type JointLimits map[JointName]JointLimit

// DefaultLimits returns the e-Series joint ranges: ±360° on every joint
// except the elbow, which is limited to ±180° by the arm's self-collision.
func DefaultLimits() JointLimits {
	full := JointLimit{Min: -2 * math.Pi, Max: 2 * math.Pi}
	return JointLimits{
		Base:     full,
		Shoulder: full,
		Elbow:    {Min: -math.Pi, Max: math.Pi},
		Wrist1:   full,
		Wrist2:   full,
		Wrist3:   full,
	}
}

// Normalize converts a joint angle to a normalized value in the range [-100, 100].
func (l JointLimit) Normalize(rad float64) float64 {
	rangeSize := l.Max - l.Min
	if rangeSize == 0 {
		return 0
	}
	return ((rad-l.Min)/rangeSize)*200 - 100
}

// Contains reports whether rad lies within the limit.
func (l JointLimit) Contains(rad float64) bool {
	return rad >= l.Min && rad <= l.Max
}

// Normalize converts a joint vector to normalized values keyed by joint name.
// Joints without a limit are left out.
func (l JointLimits) Normalize(q Joints) map[JointName]float64 {
	out := make(map[JointName]float64, len(l))
	for i, name := range AllJoints() {
		lim, ok := l[name]
		if !ok {
			continue
		}
		out[name] = lim.Normalize(q[i])
	}
	return out
}

// Check returns the first joint of q that is outside its limit.
func (l JointLimits) Check(q Joints) (JointName, bool) {
	for i, name := range AllJoints() {
		if lim, ok := l[name]; ok && !lim.Contains(q[i]) {
			return name, false
		}
	}
	return "", true
}
