// Package urteleop provides keyboard teleoperation for Universal Robots arms.
//
// A session connects to the controller, records robot state over RTDE for
// its whole duration and maps single keystrokes to arm actions: '1' moves
// the arm to its home position, '2' loads and plays a program stored on the
// controller and 'c' ends the session. The recording is stopped on every
// exit path.
//
// # Installation
//
//	go install github.com/gwillem/urteleop/cmd/urteleop@latest
//
// # Usage
//
// Optionally write a configuration file (defaults are used without one):
//
//	urteleop setup
//
// Then start a session:
//
//	urteleop teleoperate
//	urteleop teleoperate --plain --host 192.168.230.128
//
// # Packages
//
// The module is organized into the following packages:
//
//   - cmd/urteleop: CLI with setup, teleoperate and info commands
//   - pkg/robot: Joint model, joint limits, arm interface and configuration
//   - pkg/teleop: Teleoperation session and key sources
//   - pkg/ur: Dashboard, script and recording clients for the controller
//   - pkg/rtde: RTDE wire protocol
package urteleop
