package ur

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/gwillem/urteleop/pkg/robot"
	"github.com/gwillem/urteleop/pkg/rtde"
)

// RTDEPort is the RTDE port on the controller.
const RTDEPort = rtde.Port

// TimestampField is the controller time output, in seconds since start.
const TimestampField = "timestamp"

// Delimiter separates columns in recordings.
const Delimiter = ' '

// stopTimeout bounds the wait for the controller to confirm a pause.
const stopTimeout = 2 * time.Second

// Sample is one published frame of a recording.
type Sample struct {
	// Timestamp is the controller time, or 0 when not recorded.
	Timestamp float64
	// Values holds the published fields.
	Values map[string][]float64
}

// Joints returns actual_q as a joint vector.
func (s Sample) Joints() (robot.Joints, bool) {
	v, ok := s.Values["actual_q"]
	if !ok {
		return robot.Joints{}, false
	}
	q, err := robot.JointsFromSlice(v)
	return q, err == nil
}

// Recorder writes RTDE output frames to a file.
type Recorder struct {
	conn    *rtde.Conn
	recipe  *rtde.Recipe
	file    *os.File
	counter *countingWriter
	w       *csv.Writer
	path    string
	publish []int
	out     chan Sample
	logger  *slog.Logger
	done    chan struct{}
	stopMu  sync.Mutex

	mu       sync.Mutex
	samples  int
	err      error
	stopping bool
	stopped  bool
	stats    robot.RecordingStats
}

// StartRecorder connects to the RTDE server at addr and starts recording as
// described by rc. Published fields are sent to out, dropping the oldest
// sample when the receiver falls behind. out may be nil.
func StartRecorder(ctx context.Context, addr string, rc robot.RecordingConfig, out chan Sample, logger *slog.Logger) (*Recorder, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if rc.Output == "" {
		return nil, errors.New("no recording output file")
	}
	if !rc.Overwrite && robot.FileExists(rc.Output) {
		return nil, fmt.Errorf("recording output %s: %w", rc.Output, fs.ErrExist)
	}

	fields, err := recordFields(rc)
	if err != nil {
		return nil, err
	}

	conn, err := rtde.Dial(ctx, addr, logger)
	if err != nil {
		return nil, err
	}
	r := &Recorder{
		conn:   conn,
		path:   rc.Output,
		out:    out,
		logger: logger,
		done:   make(chan struct{}),
	}
	if err := r.setup(ctx, rc, fields); err != nil {
		r.abort()
		return nil, err
	}
	go r.loop()
	logger.Info("recording started", "path", r.path, "frequency", rc.Frequency, "fields", r.recipe.Names())
	return r, nil
}

// recordFields returns the recipe fields to record: the "out" recipe of the
// configuration file, or the timestamp plus the published fields when no
// file is configured.
func recordFields(rc robot.RecordingConfig) ([]rtde.Field, error) {
	if rc.ConfigFile == "" {
		fields := []rtde.Field{{Name: TimestampField}}
		for _, name := range rc.Publish {
			if name != TimestampField {
				fields = append(fields, rtde.Field{Name: name})
			}
		}
		return fields, nil
	}
	cfg, err := rtde.LoadConfig(rc.ConfigFile)
	if err != nil {
		return nil, err
	}
	return cfg.Recipe(rtde.DefaultRecipeKey)
}

func (r *Recorder) setup(ctx context.Context, rc robot.RecordingConfig, fields []rtde.Field) error {
	if err := r.conn.NegotiateProtocolVersion(ctx); err != nil {
		return fmt.Errorf("negotiate protocol version: %w", err)
	}
	v, err := r.conn.ControllerVersion(ctx)
	if err != nil {
		return fmt.Errorf("get controller version: %w", err)
	}
	r.logger.Debug("rtde controller", "version", v.String())

	recipe, err := r.conn.SetupOutputs(ctx, rc.Frequency, fields)
	if err != nil {
		return fmt.Errorf("setup outputs: %w", err)
	}
	r.recipe = recipe

	for _, name := range rc.Publish {
		idx := -1
		for i, f := range recipe.Fields {
			if f.Name == name {
				idx = i
				break
			}
		}
		if idx < 0 {
			return fmt.Errorf("published field %s is not recorded", name)
		}
		r.publish = append(r.publish, idx)
	}

	if dir := filepath.Dir(r.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create recording directory: %w", err)
		}
	}
	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !rc.Overwrite {
		flags = os.O_WRONLY | os.O_CREATE | os.O_EXCL
	}
	f, err := os.OpenFile(r.path, flags, 0644)
	if err != nil {
		return fmt.Errorf("open recording output: %w", err)
	}
	r.file = f
	r.counter = &countingWriter{w: f}
	r.w = csv.NewWriter(r.counter)
	r.w.Comma = Delimiter
	if err := r.w.Write(recipe.Columns()); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	if err := r.conn.Start(ctx); err != nil {
		return fmt.Errorf("start data synchronization: %w", err)
	}
	return nil
}

// abort releases resources after a failed start.
func (r *Recorder) abort() {
	r.conn.Close()
	if r.file != nil {
		r.file.Close()
		os.Remove(r.path)
	}
}

func (r *Recorder) loop() {
	defer close(r.done)

	row := make([]string, 0, len(r.recipe.Columns()))
	for {
		d, err := r.conn.Receive()
		if err != nil {
			r.mu.Lock()
			stopping := r.stopping
			r.mu.Unlock()
			if errors.Is(err, rtde.ErrPaused) || stopping {
				return
			}
			r.fail(fmt.Errorf("receive: %w", err))
			return
		}

		row = row[:0]
		for _, v := range d.Values {
			for _, x := range v {
				row = append(row, strconv.FormatFloat(x, 'f', -1, 64))
			}
		}
		if err := r.w.Write(row); err != nil {
			r.fail(fmt.Errorf("write sample: %w", err))
			return
		}

		r.mu.Lock()
		r.samples++
		r.mu.Unlock()
		r.send(d)
	}
}

func (r *Recorder) fail(err error) {
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
	r.logger.Error("recording failed", "path", r.path, "error", err)
}

func (r *Recorder) send(d rtde.DataPackage) {
	if r.out == nil || len(r.publish) == 0 {
		return
	}
	s := Sample{Values: make(map[string][]float64, len(r.publish))}
	if ts, ok := r.recipe.Value(d, TimestampField); ok {
		s.Timestamp = ts[0]
	}
	for _, idx := range r.publish {
		s.Values[r.recipe.Fields[idx].Name] = d.Values[idx]
	}

	select {
	case r.out <- s:
	default:
		// Drop old sample if channel full, replace with new
		select {
		case <-r.out:
		default:
		}
		select {
		case r.out <- s:
		default:
		}
	}
}

// Samples returns the number of frames written so far.
func (r *Recorder) Samples() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.samples
}

// Stop pauses the data synchronization, flushes the recording and closes
// the connection. Calling Stop again returns the same result.
func (r *Recorder) Stop() (robot.RecordingStats, error) {
	r.stopMu.Lock()
	defer r.stopMu.Unlock()

	r.mu.Lock()
	if r.stopped {
		stats, err := r.stats, r.err
		r.mu.Unlock()
		return stats, err
	}
	r.stopping = true
	r.mu.Unlock()

	var errs []error
	if err := r.conn.SendPause(); err != nil {
		r.logger.Warn("pause rtde", "error", err)
	}
	select {
	case <-r.done:
	case <-time.After(stopTimeout):
		r.logger.Warn("rtde pause not confirmed, closing connection")
	}
	if err := r.conn.Close(); err != nil {
		r.logger.Debug("close rtde", "error", err)
	}
	<-r.done

	r.w.Flush()
	if err := r.w.Error(); err != nil {
		errs = append(errs, fmt.Errorf("flush recording: %w", err))
	}
	if err := r.file.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close recording: %w", err))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		errs = append([]error{r.err}, errs...)
	}
	r.err = errors.Join(errs...)
	r.stopped = true
	r.stats = robot.RecordingStats{
		Path:    r.path,
		Samples: r.samples,
		Bytes:   r.counter.n,
	}
	r.logger.Info("recording stopped", "path", r.path, "samples", r.samples, "bytes", r.counter.n)
	return r.stats, r.err
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
