package build

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

const (
	commandWaitDelay = 5 * time.Second
	partialLineIdle  = 200 * time.Millisecond
	maxPendingLine   = 16 << 10
)

// BuildScriptError reports a build command that exited non-zero.
type BuildScriptError struct {
	Command  string
	ExitCode int
	Err      error
}

func (e *BuildScriptError) Error() string {
	return fmt.Sprintf("build command %q exited with code %d", e.Command, e.ExitCode)
}

func (e *BuildScriptError) Unwrap() error {
	return e.Err
}

// build runs the install and build command in dir through the shell, streaming
// stdout and stderr to the log channel as they are produced.
func (r *run) build(ctx context.Context, dir string) error {
	command := r.svc.opts.BuildCommand
	r.publish("running " + command)
	out := newLineWriter(r.publish)
	defer out.Flush()

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = dir
	cmd.Env = os.Environ()
	cmd.Stdout = out
	cmd.Stderr = out
	cmd.WaitDelay = commandWaitDelay
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &BuildScriptError{Command: command, ExitCode: exitErr.ExitCode(), Err: err}
		}
		return fmt.Errorf("run build command: %w", err)
	}
	return nil
}

// lineWriter splits a byte stream into lines and hands each non-blank line to
// emit. Carriage returns end a line too, so progress meters produce one event
// per update. Output that stops without a line break is emitted once the
// stream has been idle for partialLineIdle, or as soon as it reaches
// maxPendingLine bytes.
type lineWriter struct {
	mu    sync.Mutex
	buf   bytes.Buffer
	emit  func(string)
	idle  time.Duration
	timer *time.Timer
}

func newLineWriter(emit func(string)) *lineWriter {
	return &lineWriter{emit: emit, idle: partialLineIdle}
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf.Write(p)
	for {
		data := w.buf.Bytes()
		idx := bytes.IndexAny(data, "\r\n")
		if idx < 0 {
			break
		}
		line := string(data[:idx])
		w.buf.Next(idx + 1)
		w.emitLine(line)
	}
	for w.buf.Len() >= maxPendingLine {
		w.emitLine(string(w.buf.Next(maxPendingLine)))
	}
	w.schedule()
	return len(p), nil
}

// schedule arms the idle timer while a partial line is pending. Callers hold mu.
func (w *lineWriter) schedule() {
	if w.buf.Len() == 0 {
		if w.timer != nil {
			w.timer.Stop()
		}
		return
	}
	if w.timer == nil {
		w.timer = time.AfterFunc(w.idle, w.Flush)
		return
	}
	w.timer.Reset(w.idle)
}

// Flush emits any pending partial line.
func (w *lineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	if w.buf.Len() == 0 {
		return
	}
	line := w.buf.String()
	w.buf.Reset()
	w.emitLine(line)
}

func (w *lineWriter) emitLine(line string) {
	line = strings.TrimRight(line, " \t")
	if strings.TrimSpace(line) == "" {
		return
	}
	w.emit(line)
}
