package robot

import "context"

// Arm is a robot arm that can record its state, move, and run programs
// stored on its controller.
type Arm interface {
	// StartRecording starts recording robot state as described by rc.
	StartRecording(ctx context.Context, rc RecordingConfig) error
	// StopRecording stops the active recording and reports what was written.
	StopRecording() (RecordingStats, error)
	// MoveJ moves the arm to q in joint space.
	MoveJ(ctx context.Context, q Joints, velocity, acceleration float64) error
	// LoadProgram loads a program file stored on the controller.
	LoadProgram(ctx context.Context, path string) error
	// PlayProgram starts the loaded program.
	PlayProgram(ctx context.Context) error
}

// RecordingStats summarizes a finished recording.
type RecordingStats struct {
	Path    string
	Samples int
	Bytes   int64
}
