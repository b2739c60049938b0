package ur

import (
	"bufio"
	"net"
	"strings"
	"sync"
	"testing"
)

// fakeDashboard answers dashboard commands from a reply table.
type fakeDashboard struct {
	ln      net.Listener
	replies map[string]string

	mu       sync.Mutex
	commands []string
}

func newFakeDashboard(t *testing.T, replies map[string]string) *fakeDashboard {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	d := &fakeDashboard{ln: ln, replies: replies}
	go d.serve()
	t.Cleanup(func() { ln.Close() })
	return d
}

func (d *fakeDashboard) addr() string {
	return d.ln.Addr().String()
}

func (d *fakeDashboard) received() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.commands...)
}

func (d *fakeDashboard) serve() {
	for {
		c, err := d.ln.Accept()
		if err != nil {
			return
		}
		go d.handle(c)
	}
}

func (d *fakeDashboard) handle(c net.Conn) {
	defer c.Close()
	c.Write([]byte("Connected: Universal Robots Dashboard Server\n"))

	sc := bufio.NewScanner(c)
	for sc.Scan() {
		cmd := sc.Text()
		d.mu.Lock()
		d.commands = append(d.commands, cmd)
		d.mu.Unlock()

		if cmd == "quit" {
			c.Write([]byte("Disconnected\n"))
			return
		}
		reply, ok := d.replies[cmd]
		if !ok {
			reply = "could not understand: '" + cmd + "'"
		}
		if reply == "" {
			// Never answer.
			continue
		}
		c.Write([]byte(reply + "\n"))
	}
}

// fakeScript records URScript lines.
type fakeScript struct {
	ln    net.Listener
	lines chan string
}

func newFakeScript(t *testing.T) *fakeScript {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := &fakeScript{ln: ln, lines: make(chan string, 16)}
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer c.Close()
				sc := bufio.NewScanner(c)
				for sc.Scan() {
					s.lines <- strings.TrimSpace(sc.Text())
				}
			}()
		}
	}()
	t.Cleanup(func() { ln.Close() })
	return s
}

func (s *fakeScript) addr() string {
	return s.ln.Addr().String()
}

var robotReplies = map[string]string{
	"load /program1.urp": "Loading program: /program1.urp",
	"load /missing.urp":  "File not found: /missing.urp",
	"play":               "Starting program",
	"stop":               "Stopped",
	"pause":              "Pausing program",
	"robotmode":          "Robotmode: RUNNING",
	"safetystatus":       "Safetystatus: NORMAL",
	"programState":       "STOPPED /program1.urp",
	"get loaded program": "Loaded program: /program1.urp",
	"PolyscopeVersion":   "URSoftware 5.11.0.108249 (Nov 11 2021)",
	"hang":               "",
}
