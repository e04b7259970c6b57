package step

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

var (
	okMark      = color.New(color.FgGreen).Sprint("✔")
	failMark    = color.New(color.FgRed).Sprint("✖")
	timeoutMark = color.New(color.FgYellow).Sprint("…")
	detailStyle = color.New(color.Faint)
)

// Reporter prints one progress line per workflow step.
type Reporter struct {
	w           io.Writer
	interactive bool
	softTimeout time.Duration
}

type Option func(*Reporter)

// WithSoftTimeout marks a still-running step as timed out after d. The step
// keeps running.
func WithSoftTimeout(d time.Duration) Option {
	return func(r *Reporter) { r.softTimeout = d }
}

// WithInteractive forces spinner rendering on or off.
func WithInteractive(on bool) Option {
	return func(r *Reporter) { r.interactive = on }
}

// NewReporter writes to w. Spinners are only drawn when w is a terminal.
func NewReporter(w io.Writer, opts ...Option) *Reporter {
	r := &Reporter{w: w, interactive: isTerminal(w)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Step is a running unit of progress. Succeed and Fail are idempotent; only
// the first terminal call prints.
type Step struct {
	r       *Reporter
	msg     string
	spin    *spinner.Spinner
	timer   *time.Timer
	mu      sync.Mutex
	done    bool
	expired bool
	detail  string
}

// Start prints msg and returns the running step.
func (r *Reporter) Start(msg string) *Step {
	s := &Step{r: r, msg: msg}
	if r.interactive {
		s.spin = spinner.New(spinner.CharSets[14], 100*time.Millisecond, writerOption(r.w))
		s.spin.Suffix = " " + msg
		s.spin.Start()
	} else {
		fmt.Fprintf(r.w, "- %s\n", msg)
	}
	if r.softTimeout > 0 {
		s.timer = time.AfterFunc(r.softTimeout, s.markTimedOut)
	}
	return s
}

// Update replaces the detail shown next to a running step. Without a spinner
// a detail is printed only when it changes.
func (s *Step) Update(detail string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done || detail == s.detail {
		return
	}
	s.detail = detail
	if s.spin != nil {
		s.setSuffix(s.label(detail))
		return
	}
	fmt.Fprintf(s.r.w, "  %s\n", detailStyle.Sprint(detail))
}

// Succeed finishes the step with optional detail lines.
func (s *Step) Succeed(detail ...string) {
	s.finish(okMark, s.msg, detail)
}

// Fail finishes the step as failed.
func (s *Step) Fail() {
	s.finish(failMark, s.msg, nil)
}

func (s *Step) markTimedOut() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return
	}
	s.expired = true
	label := s.msg + " | timed out"
	if s.spin != nil {
		s.setSuffix(label)
		return
	}
	fmt.Fprintf(s.r.w, "%s %s\n", timeoutMark, label)
}

func (s *Step) finish(mark, msg string, detail []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return
	}
	s.done = true
	if s.timer != nil {
		s.timer.Stop()
	}
	if s.spin != nil {
		s.spin.Stop()
	}
	if s.expired {
		msg += " | timed out"
	}
	fmt.Fprintf(s.r.w, "%s %s\n", mark, msg)
	for _, d := range detail {
		if strings.TrimSpace(d) == "" {
			continue
		}
		fmt.Fprintf(s.r.w, "  %s\n", detailStyle.Sprint(d))
	}
}

// setSuffix guards the write against the spinner's render goroutine.
func (s *Step) setSuffix(text string) {
	s.spin.Lock()
	s.spin.Suffix = " " + text
	s.spin.Unlock()
}

func (s *Step) label(detail string) string {
	if detail == "" {
		return s.msg
	}
	return s.msg + " (" + detail + ")"
}

// TimedOut reports whether the soft timeout fired before the step finished.
func (s *Step) TimedOut() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expired
}

// Run executes fn inside a step. The step fails when fn returns an error.
func Run[T any](r *Reporter, msg string, fn func(*Step) (T, error)) (T, error) {
	s := r.Start(msg)
	out, err := fn(s)
	if err != nil {
		s.Fail()
		return out, err
	}
	s.Succeed()
	return out, nil
}

func writerOption(w io.Writer) spinner.Option {
	if f, ok := w.(*os.File); ok {
		return spinner.WithWriterFile(f)
	}
	return spinner.WithWriter(w)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
