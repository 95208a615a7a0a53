// Package mic captures microphone audio with ffmpeg.
package mic

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/chatline/pkg/voice"
)

const SampleRateHz = 16000

var permissionMarkers = []string{
	"permission denied",
	"not authorized",
	"access denied",
	"operation not permitted",
}

type Option func(*FFmpeg)

// WithInput overrides the platform capture input, e.g. ":1" on darwin.
func WithInput(input string) Option {
	return func(f *FFmpeg) {
		if strings.TrimSpace(input) != "" {
			f.input = strings.TrimSpace(input)
		}
	}
}

func WithProbeTimeout(d time.Duration) Option {
	return func(f *FFmpeg) {
		if d > 0 {
			f.probeTimeout = d
		}
	}
}

// FFmpeg implements voice.Microphone and the audio source of the agent client.
type FFmpeg struct {
	goos         string
	input        string
	probeTimeout time.Duration

	lookPath func(string) (string, error)
	run      func(ctx context.Context, name string, args ...string) ([]byte, error)
}

func New(opts ...Option) *FFmpeg {
	f := &FFmpeg{
		goos:         runtime.GOOS,
		probeTimeout: 5 * time.Second,
		lookPath:     exec.LookPath,
		run:          runCombined,
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// RequestAccess records a fraction of a second to nothing. ffmpeg failing to open the
// device is how a denied permission or a missing microphone shows up.
func (f *FFmpeg) RequestAccess(ctx context.Context) error {
	if _, err := f.lookPath("ffmpeg"); err != nil {
		return &voice.Error{Kind: voice.ErrDeviceUnavailable, Cause: errors.New("ffmpeg not found in PATH")}
	}
	input, err := f.inputArgs()
	if err != nil {
		return &voice.Error{Kind: voice.ErrDeviceUnavailable, Cause: err}
	}
	ctx, cancel := context.WithTimeout(ctx, f.probeTimeout)
	defer cancel()

	args := append([]string{"-hide_banner", "-loglevel", "error"}, input...)
	args = append(args, "-t", "0.1", "-f", "null", "-")
	out, err := f.run(ctx, "ffmpeg", args...)
	if err == nil {
		log.Debug().Str("component", "voice").Msg("microphone access granted")
		return nil
	}
	return classify(out, err)
}

// Open starts capturing 16kHz mono s16le PCM.
func (f *FFmpeg) Open(ctx context.Context) (io.ReadCloser, error) {
	if _, err := f.lookPath("ffmpeg"); err != nil {
		return nil, &voice.Error{Kind: voice.ErrDeviceUnavailable, Cause: errors.New("ffmpeg not found in PATH")}
	}
	args, err := f.captureArgs()
	if err != nil {
		return nil, &voice.Error{Kind: voice.ErrDeviceUnavailable, Cause: err}
	}
	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Wrap(err, "open ffmpeg stdout")
	}
	cmd.Stderr = io.Discard
	if err := cmd.Start(); err != nil {
		return nil, errors.Wrap(err, "start ffmpeg mic capture")
	}
	return &capture{cmd: cmd, stdout: stdout}, nil
}

func (f *FFmpeg) inputArgs() ([]string, error) {
	switch f.goos {
	case "darwin":
		return []string{"-f", "avfoundation", "-i", f.inputOr(":0")}, nil
	case "linux":
		return []string{"-f", "pulse", "-i", f.inputOr("default")}, nil
	default:
		return nil, errors.Errorf("mic capture is not implemented for %s; supported platforms: darwin, linux", f.goos)
	}
}

func (f *FFmpeg) captureArgs() ([]string, error) {
	input, err := f.inputArgs()
	if err != nil {
		return nil, err
	}
	args := append([]string{"-hide_banner", "-loglevel", "error"}, input...)
	return append(args, "-ac", "1", "-ar", fmt.Sprintf("%d", SampleRateHz), "-f", "s16le", "-"), nil
}

func (f *FFmpeg) inputOr(def string) string {
	if f.input != "" {
		return f.input
	}
	return def
}

func classify(output []byte, err error) error {
	msg := strings.TrimSpace(string(output))
	cause := err
	if msg != "" {
		cause = errors.Wrap(err, msg)
	}
	lower := strings.ToLower(msg)
	for _, m := range permissionMarkers {
		if strings.Contains(lower, m) {
			return &voice.Error{Kind: voice.ErrPermissionDenied, Cause: cause}
		}
	}
	return &voice.Error{Kind: voice.ErrDeviceUnavailable, Cause: cause}
}

func runCombined(ctx context.Context, name string, args ...string) ([]byte, error) {
	var buf bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	err := cmd.Run()
	return buf.Bytes(), err
}

type capture struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
}

func (c *capture) Read(p []byte) (int, error) {
	return c.stdout.Read(p)
}

func (c *capture) Close() error {
	if c.cmd.Process != nil {
		_ = c.cmd.Process.Kill()
		_ = c.cmd.Wait()
	}
	return nil
}

var _ voice.Microphone = (*FFmpeg)(nil)
