package teleop

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gwillem/urteleop/pkg/robot"
)

// fakeArm records every call made to it in order.
type fakeArm struct {
	mu    sync.Mutex
	calls []string
	rc    robot.RecordingConfig

	startErr error
	stopErr  error
	moveErr  error
	loadErr  error
	playErr  error
	// block makes actions wait until their context ends.
	block bool
}

func (a *fakeArm) record(format string, args ...any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, fmt.Sprintf(format, args...))
}

func (a *fakeArm) StartRecording(ctx context.Context, rc robot.RecordingConfig) error {
	a.record("start")
	a.mu.Lock()
	a.rc = rc
	a.mu.Unlock()
	return a.startErr
}

func (a *fakeArm) StopRecording() (robot.RecordingStats, error) {
	a.record("stop")
	return robot.RecordingStats{Path: "out.csv", Samples: 1200, Bytes: 64000}, a.stopErr
}

func (a *fakeArm) MoveJ(ctx context.Context, q robot.Joints, velocity, acceleration float64) error {
	a.record("movej %v v=%g a=%g", [6]float64(q), velocity, acceleration)
	if a.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return a.moveErr
}

func (a *fakeArm) LoadProgram(ctx context.Context, path string) error {
	a.record("load %s", path)
	if a.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return a.loadErr
}

func (a *fakeArm) PlayProgram(ctx context.Context) error {
	a.record("play")
	return a.playErr
}

func (a *fakeArm) Calls() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.calls...)
}

// scriptedKeys returns its keys in order, then err.
type scriptedKeys struct {
	keys []rune
	err  error
}

func (s *scriptedKeys) ReadKey(ctx context.Context) (rune, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if len(s.keys) == 0 {
		return 0, s.err
	}
	k := s.keys[0]
	s.keys = s.keys[1:]
	return k, nil
}

func testConfig() Config {
	cfg := ConfigFrom(robot.DefaultConfig())
	cfg.Recording.SettleMs = 0
	return cfg
}

const homeCall = "movej [0 0 0 0 0 0] v=1 a=0.5"

func TestRun_Keys(t *testing.T) {
	tests := []struct {
		name string
		keys string
		want []string
	}{
		{"quit", "c", []string{"start", "stop"}},
		{"home", "1c", []string{"start", homeCall, "stop"}},
		{"program", "2c", []string{"start", "load /program1.urp", "play", "stop"}},
		{"ignored keys", "x3C 0c", []string{"start", "stop"}},
		{"both actions", "12c", []string{"start", homeCall, "load /program1.urp", "play", "stop"}},
		{"keys after quit", "c1", []string{"start", "stop"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			arm := &fakeArm{}
			ctrl := NewController(arm, testConfig())
			keys := &scriptedKeys{keys: []rune(tt.keys), err: errors.New("out of keys")}

			if err := ctrl.Run(context.Background(), keys); err != nil {
				t.Fatalf("Run: %v", err)
			}
			got := arm.Calls()
			if strings.Join(got, "|") != strings.Join(tt.want, "|") {
				t.Errorf("calls = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRun_StartsRecordingWithSessionConfig(t *testing.T) {
	arm := &fakeArm{}
	ctrl := NewController(arm, testConfig())
	if err := ctrl.Run(context.Background(), &scriptedKeys{keys: []rune{KeyQuit}}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	rc := arm.rc
	if !rc.Overwrite {
		t.Error("recording should overwrite")
	}
	if rc.Frequency != 50 {
		t.Errorf("Frequency = %g, want 50", rc.Frequency)
	}
	if rc.Output != robot.DefaultRecordingOutput {
		t.Errorf("Output = %s, want %s", rc.Output, robot.DefaultRecordingOutput)
	}
	if rc.ConfigFile != robot.DefaultRecordingConfigFile {
		t.Errorf("ConfigFile = %s, want %s", rc.ConfigFile, robot.DefaultRecordingConfigFile)
	}
	if len(rc.Publish) != 1 || rc.Publish[0] != "actual_q" {
		t.Errorf("Publish = %v, want [actual_q]", rc.Publish)
	}
}

func TestRun_Interrupt(t *testing.T) {
	tests := []struct {
		name string
		keys func() KeySource
		ctx  func() context.Context
	}{
		{
			name: "interrupt key",
			keys: func() KeySource { return &scriptedKeys{keys: []rune("1"), err: ErrInterrupted} },
			ctx:  context.Background,
		},
		{
			name: "closed key channel",
			keys: func() KeySource {
				ch := make(KeyChan)
				close(ch)
				return ch
			},
			ctx: context.Background,
		},
		{
			name: "cancelled context",
			keys: func() KeySource { return make(KeyChan) },
			ctx: func() context.Context {
				ctx, cancel := context.WithCancel(context.Background())
				time.AfterFunc(20*time.Millisecond, cancel)
				return ctx
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			arm := &fakeArm{}
			ctrl := NewController(arm, testConfig())

			if err := ctrl.Run(tt.ctx(), tt.keys()); err != nil {
				t.Fatalf("Run = %v, want nil on interrupt", err)
			}
			calls := arm.Calls()
			if calls[0] != "start" || calls[len(calls)-1] != "stop" {
				t.Errorf("calls = %q, want start ... stop", calls)
			}
			if n := count(calls, "stop"); n != 1 {
				t.Errorf("stopped %d times, want 1", n)
			}
		})
	}
}

func TestRun_InterruptDuringAction(t *testing.T) {
	tests := []struct {
		name string
		key  rune
		want []string
	}{
		{"move", KeyHome, []string{"start", homeCall, "stop"}},
		{"program", KeyProgram, []string{"start", "load /program1.urp", "stop"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			arm := &fakeArm{block: true}
			ctrl := NewController(arm, testConfig())
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			time.AfterFunc(20*time.Millisecond, cancel)

			done := make(chan error, 1)
			go func() { done <- ctrl.Run(ctx, &scriptedKeys{keys: []rune{tt.key, KeyHome}}) }()
			select {
			case err := <-done:
				if err != nil {
					t.Fatalf("Run = %v, want nil on interrupt", err)
				}
			case <-time.After(2 * time.Second):
				t.Fatal("Run did not return after interrupt")
			}
			if got := arm.Calls(); strings.Join(got, "|") != strings.Join(tt.want, "|") {
				t.Errorf("calls = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRun_InterruptDuringSettle(t *testing.T) {
	arm := &fakeArm{}
	cfg := testConfig()
	cfg.Recording.SettleMs = 60_000
	ctrl := NewController(arm, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	done := make(chan error, 1)
	go func() { done <- ctrl.Run(ctx, make(KeyChan)) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after interrupt")
	}
	if got := arm.Calls(); strings.Join(got, "|") != "start|stop" {
		t.Errorf("calls = %q, want start, stop", got)
	}
}

func TestRun_ActionErrorStopsRecording(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name   string
		keys   string
		modify func(*fakeArm)
		want   string
	}{
		{"move", "1c", func(a *fakeArm) { a.moveErr = boom }, "move home"},
		{"load", "2c", func(a *fakeArm) { a.loadErr = boom }, "load program"},
		{"play", "2c", func(a *fakeArm) { a.playErr = boom }, "play program"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			arm := &fakeArm{}
			tt.modify(arm)
			ctrl := NewController(arm, testConfig())

			err := ctrl.Run(context.Background(), &scriptedKeys{keys: []rune(tt.keys)})
			if !errors.Is(err, boom) || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Run = %v, want %s error", err, tt.want)
			}
			calls := arm.Calls()
			if n := count(calls, "stop"); n != 1 {
				t.Errorf("stopped %d times, want 1 (calls %q)", n, calls)
			}
			if calls[len(calls)-1] != "stop" {
				t.Errorf("last call = %q, want stop", calls[len(calls)-1])
			}
		})
	}
}

func TestRun_StartError(t *testing.T) {
	arm := &fakeArm{startErr: errors.New("rtde unavailable")}
	ctrl := NewController(arm, testConfig())

	err := ctrl.Run(context.Background(), &scriptedKeys{keys: []rune("1c")})
	if err == nil || !strings.Contains(err.Error(), "start recording") {
		t.Fatalf("Run = %v, want start recording error", err)
	}
	if got := arm.Calls(); strings.Join(got, "|") != "start" {
		t.Errorf("calls = %q, want only start", got)
	}
}

func TestRun_StopError(t *testing.T) {
	arm := &fakeArm{stopErr: errors.New("flush failed")}
	ctrl := NewController(arm, testConfig())

	err := ctrl.Run(context.Background(), &scriptedKeys{keys: []rune("c")})
	if err == nil || !strings.Contains(err.Error(), "stop recording") {
		t.Fatalf("Run = %v, want stop recording error", err)
	}
}

func TestRun_StopErrorKeepsActionError(t *testing.T) {
	boom := errors.New("boom")
	arm := &fakeArm{moveErr: boom, stopErr: errors.New("flush failed")}
	ctrl := NewController(arm, testConfig())

	err := ctrl.Run(context.Background(), &scriptedKeys{keys: []rune("1")})
	if !errors.Is(err, boom) {
		t.Fatalf("Run = %v, want action error", err)
	}
}

func TestRun_InputClosed(t *testing.T) {
	arm := &fakeArm{}
	ctrl := NewController(arm, testConfig())

	keys := NewTerminalKeys(strings.NewReader("1\n"), nil)
	if err := ctrl.Run(context.Background(), keys); err != nil {
		t.Fatalf("Run = %v, want nil at end of input", err)
	}
	if got := arm.Calls(); strings.Join(got, "|") != "start|"+homeCall+"|stop" {
		t.Errorf("calls = %q", got)
	}
}

func TestRun_AlreadyRunning(t *testing.T) {
	arm := &fakeArm{}
	ctrl := NewController(arm, testConfig())
	keys := make(KeyChan)

	done := make(chan error, 1)
	go func() { done <- ctrl.Run(context.Background(), keys) }()

	deadline := time.Now().Add(2 * time.Second)
	for len(arm.Calls()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("session did not start")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := ctrl.Run(context.Background(), keys); err == nil || !strings.Contains(err.Error(), "already running") {
		t.Errorf("second Run = %v, want already running", err)
	}

	keys <- KeyQuit
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if n := count(arm.Calls(), "start"); n != 1 {
		t.Errorf("started %d times, want 1", n)
	}
}

func TestRun_Logs(t *testing.T) {
	arm := &fakeArm{}
	ctrl := NewController(arm, testConfig())
	if err := ctrl.Run(context.Background(), &scriptedKeys{keys: []rune("c")}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var logs []string
	for len(ctrl.Logs()) > 0 {
		logs = append(logs, <-ctrl.Logs())
	}
	all := strings.Join(logs, "\n")
	for _, want := range []string{"Recording to test_results/test_motion1.csv at 50 Hz", "Quit", "Recorded 1,200 samples (64 kB) to out.csv"} {
		if !strings.Contains(all, want) {
			t.Errorf("logs missing %q:\n%s", want, all)
		}
	}
}

func TestNewController_Defaults(t *testing.T) {
	ctrl := NewController(&fakeArm{}, Config{})
	if ctrl.cfg.Velocity != robot.DefaultVelocity {
		t.Errorf("Velocity = %g", ctrl.cfg.Velocity)
	}
	if ctrl.cfg.Acceleration != robot.DefaultAcceleration {
		t.Errorf("Acceleration = %g", ctrl.cfg.Acceleration)
	}
	if ctrl.cfg.Program != robot.DefaultProgram {
		t.Errorf("Program = %s", ctrl.cfg.Program)
	}
}

func count(calls []string, name string) int {
	n := 0
	for _, c := range calls {
		if c == name {
			n++
		}
	}
	return n
}
