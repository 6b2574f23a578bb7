package alert

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/term"
)

// Log writes every delivery to the logger
type Log struct {
	logger *zap.Logger
}

func NewLog(logger *zap.Logger) *Log {
	return &Log{logger: logger}
}

func (l *Log) RequestPermission(context.Context) Permission {
	return PermissionGranted
}

func (l *Log) Notify(_ context.Context, title, body string) error {
	l.logger.Info("Reminder", zap.String("title", title), zap.String("body", body))
	return nil
}

func (l *Log) Speak(_ context.Context, message string) error {
	l.logger.Debug("Reminder speech", zap.String("message", message))
	return nil
}

func (l *Log) PlayTone(context.Context) error {
	return nil
}

func (l *Log) Silence() {}

// Runner starts an external command. Tests replace it.
type Runner func(ctx context.Context, name string, args ...string) error

func runCommand(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%s failed: %w (output: %s)", name, err, string(output))
	}
	return nil
}

// lookupBinary returns the first candidate found on PATH
func lookupBinary(candidates ...string) string {
	for _, candidate := range candidates {
		if path, err := exec.LookPath(candidate); err == nil {
			return path
		}
	}
	return ""
}

// Speech reads reminders aloud through a local TTS command
type Speech struct {
	voice  string
	binary string
	run    Runner

	mu     sync.Mutex
	seq    uint64
	cancel context.CancelFunc
}

// NewSpeech picks espeak-ng, espeak, spd-say or say, whichever is installed
func NewSpeech(voice string) *Speech {
	candidates := []string{"espeak-ng", "espeak", "spd-say"}
	if runtime.GOOS == "darwin" {
		candidates = []string{"say"}
	}
	return &Speech{
		voice:  voice,
		binary: lookupBinary(candidates...),
		run:    runCommand,
	}
}

// NewSpeechWithRunner is NewSpeech with a fixed binary and runner
func NewSpeechWithRunner(voice, binary string, run Runner) *Speech {
	return &Speech{voice: voice, binary: binary, run: run}
}

func (s *Speech) RequestPermission(context.Context) Permission {
	if s.binary == "" {
		return PermissionDenied
	}
	return PermissionGranted
}

func (s *Speech) Notify(context.Context, string, string) error {
	return nil
}

// Speak cancels any utterance in progress, then speaks message
func (s *Speech) Speak(ctx context.Context, message string) error {
	if s.binary == "" {
		return ErrUnavailable
	}

	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.seq++
	seq := s.seq
	s.cancel = cancel
	s.mu.Unlock()

	defer func() {
		cancel()
		s.mu.Lock()
		if s.seq == seq {
			s.cancel = nil
		}
		s.mu.Unlock()
	}()

	err := s.run(ctx, s.binary, s.args(message)...)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (s *Speech) args(message string) []string {
	switch base := filepath.Base(s.binary); base {
	case "say":
		return []string{message}
	case "spd-say":
		return []string{"-w", "-l", s.voice, message}
	default:
		return []string{"-v", s.voice, message}
	}
}

func (s *Speech) PlayTone(context.Context) error {
	return nil
}

func (s *Speech) Silence() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// Tone rings the terminal bell when attached to a terminal
type Tone struct {
	out      io.Writer
	terminal bool
}

// NewTone writes to stdout if stdout is a terminal
func NewTone() *Tone {
	return &Tone{out: os.Stdout, terminal: term.IsTerminal(int(os.Stdout.Fd()))}
}

// NewToneWriter always writes the bell to w
func NewToneWriter(w io.Writer) *Tone {
	return &Tone{out: w, terminal: true}
}

func (t *Tone) RequestPermission(context.Context) Permission {
	if !t.terminal {
		return PermissionDenied
	}
	return PermissionGranted
}

func (t *Tone) Notify(context.Context, string, string) error { return nil }

func (t *Tone) Speak(context.Context, string) error { return nil }

func (t *Tone) PlayTone(context.Context) error {
	if !t.terminal {
		return nil
	}
	_, err := io.WriteString(t.out, "\a")
	return err
}

func (t *Tone) Silence() {}

// Desktop shows a system notification via notify-send or osascript
type Desktop struct {
	binary string
	run    Runner
}

func NewDesktop() *Desktop {
	name := "notify-send"
	if runtime.GOOS == "darwin" {
		name = "osascript"
	}
	return &Desktop{binary: lookupBinary(name), run: runCommand}
}

func NewDesktopWithRunner(binary string, run Runner) *Desktop {
	return &Desktop{binary: binary, run: run}
}

func (d *Desktop) RequestPermission(context.Context) Permission {
	if d.binary == "" {
		return PermissionDenied
	}
	return PermissionGranted
}

// Notify is skipped without error when no notifier is installed
func (d *Desktop) Notify(ctx context.Context, title, body string) error {
	if d.binary == "" {
		return nil
	}
	if filepath.Base(d.binary) == "osascript" {
		script := fmt.Sprintf("display notification %q with title %q", body, title)
		return d.run(ctx, d.binary, "-e", script)
	}
	return d.run(ctx, d.binary, "--urgency=critical", "--app-name=MediTime", title, body)
}

func (d *Desktop) Speak(context.Context, string) error { return nil }

func (d *Desktop) PlayTone(context.Context) error { return nil }

func (d *Desktop) Silence() {}
