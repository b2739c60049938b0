package teleop

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"unicode"

	"github.com/muesli/cancelreader"
	"golang.org/x/term"
)

// ErrInterrupted is returned by a KeySource when the user interrupts the
// session, e.g. with Ctrl+C on a raw terminal.
var ErrInterrupted = errors.New("interrupted")

// ctrlC is the byte a raw terminal sends for Ctrl+C.
const ctrlC = 0x03

// KeySource supplies single keystrokes.
type KeySource interface {
	// ReadKey blocks until a key is pressed or ctx ends.
	ReadKey(ctx context.Context) (rune, error)
}

// TerminalKeys reads single keystrokes from a terminal, echoing each key.
// When in is not a terminal, bytes are read as they come, which makes
// piped input usable.
type TerminalKeys struct {
	in   io.Reader
	echo io.Writer
	fd   int
	tty  bool
}

// NewTerminalKeys reads keys from in and echoes them to echo, which may be
// nil.
func NewTerminalKeys(in io.Reader, echo io.Writer) *TerminalKeys {
	k := &TerminalKeys{in: in, echo: echo, fd: -1}
	if f, ok := in.(*os.File); ok {
		k.fd = int(f.Fd())
		k.tty = term.IsTerminal(k.fd)
	}
	return k
}

// ReadKey reads one key. The terminal is in raw mode only while waiting, so
// output between reads is not affected.
func (k *TerminalKeys) ReadKey(ctx context.Context) (rune, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if k.tty {
		old, err := term.MakeRaw(k.fd)
		if err != nil {
			return 0, fmt.Errorf("enter raw mode: %w", err)
		}
		defer term.Restore(k.fd, old)
	}

	// Regular files cannot be polled; they are read without cancellation.
	r := k.in
	if cr, err := cancelreader.NewReader(k.in); err == nil {
		defer cr.Close()
		stop := context.AfterFunc(ctx, func() { cr.Cancel() })
		defer stop()
		r = cr
	}

	var buf [1]byte
	for {
		n, err := r.Read(buf[:])
		if err != nil {
			if errors.Is(err, cancelreader.ErrCanceled) && ctx.Err() != nil {
				return 0, ctx.Err()
			}
			return 0, err
		}
		if n == 0 {
			continue
		}
		b := buf[0]
		if b == ctrlC {
			return 0, ErrInterrupted
		}
		if !k.tty && unicode.IsSpace(rune(b)) {
			// Line endings of piped input.
			continue
		}
		k.echoKey(b)
		return rune(b), nil
	}
}

func (k *TerminalKeys) echoKey(b byte) {
	if k.echo == nil {
		return
	}
	if k.tty {
		// Raw mode needs an explicit carriage return.
		fmt.Fprintf(k.echo, "%c\r\n", b)
		return
	}
	fmt.Fprintf(k.echo, "%c\n", b)
}

// KeyChan is a KeySource fed by sending on the channel. Closing the channel
// interrupts the session.
type KeyChan chan rune

// ReadKey receives the next key.
func (k KeyChan) ReadKey(ctx context.Context) (rune, error) {
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case r, ok := <-k:
		if !ok {
			return 0, ErrInterrupted
		}
		return r, nil
	}
}
