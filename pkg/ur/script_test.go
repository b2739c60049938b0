package ur

import (
	"context"
	"testing"
	"time"

	"github.com/gwillem/urteleop/pkg/robot"
)

func TestMoveJScript(t *testing.T) {
	tests := []struct {
		q        robot.Joints
		v, a     float64
		expected string
	}{
		{robot.Home, 1.0, 0.5, "movej([0.000000,0.000000,0.000000,0.000000,0.000000,0.000000], a=0.5, v=1)\n"},
		{robot.Joints{0, -1.5708, 0, -1.5708, 0, 0}, 0.25, 1.2, "movej([0.000000,-1.570800,0.000000,-1.570800,0.000000,0.000000], a=1.2, v=0.25)\n"},
	}

	for _, tt := range tests {
		if got := MoveJScript(tt.q, tt.v, tt.a); got != tt.expected {
			t.Errorf("MoveJScript(%v, %g, %g) = %q, want %q", tt.q, tt.v, tt.a, got, tt.expected)
		}
	}
}

func TestScriptClient_MoveJ(t *testing.T) {
	srv := newFakeScript(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	s, err := DialScript(ctx, srv.addr())
	if err != nil {
		t.Fatalf("DialScript: %v", err)
	}
	defer s.Close()

	if err := s.MoveJ(ctx, robot.Home, 1.0, 0.5); err != nil {
		t.Fatalf("MoveJ: %v", err)
	}
	if err := s.Send(ctx, "textmsg(\"hello\")"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	want := []string{
		"movej([0.000000,0.000000,0.000000,0.000000,0.000000,0.000000], a=0.5, v=1)",
		"textmsg(\"hello\")",
	}
	for _, w := range want {
		select {
		case got := <-srv.lines:
			if got != w {
				t.Errorf("server received %q, want %q", got, w)
			}
		case <-ctx.Done():
			t.Fatalf("timed out waiting for %q", w)
		}
	}
}

func TestScriptClient_SendCancelled(t *testing.T) {
	srv := newFakeScript(t)
	s, err := DialScript(context.Background(), srv.addr())
	if err != nil {
		t.Fatalf("DialScript: %v", err)
	}
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Send(ctx, "stopj(2)"); err != context.Canceled {
		t.Errorf("Send = %v, want context.Canceled", err)
	}
}
