package ur

import (
	"context"
	"errors"
	"testing"
	"time"
)

func dialDashboard(t *testing.T) (*Dashboard, *fakeDashboard) {
	t.Helper()
	srv := newFakeDashboard(t, robotReplies)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	d, err := DialDashboard(ctx, srv.addr(), nil)
	if err != nil {
		t.Fatalf("DialDashboard: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d, srv
}

func TestDashboard_Banner(t *testing.T) {
	d, _ := dialDashboard(t)
	if got := d.Banner(); got != "Connected: Universal Robots Dashboard Server" {
		t.Errorf("Banner() = %q", got)
	}
}

func TestDashboard_LoadAndPlay(t *testing.T) {
	d, srv := dialDashboard(t)
	ctx := context.Background()

	if err := d.LoadProgram(ctx, "/program1.urp"); err != nil {
		t.Fatalf("LoadProgram: %v", err)
	}
	if err := d.Play(ctx); err != nil {
		t.Fatalf("Play: %v", err)
	}
	if err := d.Pause(ctx); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if err := d.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	want := []string{"load /program1.urp", "play", "pause", "stop"}
	got := srv.received()
	if len(got) != len(want) {
		t.Fatalf("server received %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("command %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestDashboard_LoadProgramNotFound(t *testing.T) {
	d, _ := dialDashboard(t)

	err := d.LoadProgram(context.Background(), "/missing.urp")
	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("LoadProgram = %v, want *CommandError", err)
	}
	if cmdErr.Reply != "File not found: /missing.urp" {
		t.Errorf("Reply = %q", cmdErr.Reply)
	}
}

func TestDashboard_Queries(t *testing.T) {
	d, _ := dialDashboard(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		query func(context.Context) (string, error)
		want  string
	}{
		{"RobotMode", d.RobotMode, "RUNNING"},
		{"SafetyStatus", d.SafetyStatus, "NORMAL"},
		{"ProgramState", d.ProgramState, "STOPPED /program1.urp"},
		{"LoadedProgram", d.LoadedProgram, "/program1.urp"},
		{"PolyscopeVersion", d.PolyscopeVersion, "URSoftware 5.11.0.108249 (Nov 11 2021)"},
	}

	for _, tt := range tests {
		got, err := tt.query(ctx)
		if err != nil {
			t.Errorf("%s: %v", tt.name, err)
			continue
		}
		if got != tt.want {
			t.Errorf("%s = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestDashboard_CommandCancelled(t *testing.T) {
	d, _ := dialDashboard(t)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := d.Command(ctx, "hang")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Command = %v, want context.Canceled", err)
	}
}

func TestDialDashboard_Refused(t *testing.T) {
	srv := newFakeDashboard(t, nil)
	addr := srv.addr()
	srv.ln.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := DialDashboard(ctx, addr, nil); err == nil {
		t.Error("DialDashboard should fail when nothing listens")
	}
}
