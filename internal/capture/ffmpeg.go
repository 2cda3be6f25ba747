package capture

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"

	"livecast/internal/live"
)

// FFmpegDevice acquires a real capture device by running ffmpeg and
// streaming its encoded output. Input and Format name the ffmpeg source,
// e.g. Format "v4l2" with Input "/dev/video0" on Linux, or Format
// "avfoundation" with Input "default" on macOS.
type FFmpegDevice struct {
	Binary string // defaults to "ffmpeg"
	Format string
	Input  string
	Log    *slog.Logger
}

// Check verifies the ffmpeg binary is installed.
func (d *FFmpegDevice) Check() error {
	if _, err := exec.LookPath(d.binary()); err != nil {
		return fmt.Errorf("%s not found in PATH: %w", d.binary(), err)
	}
	return nil
}

// Acquire implements live.CaptureDevice. The returned stream carries a webm
// container (VP8 + Opus) suitable for chunked playback; closing it stops the
// ffmpeg process.
func (d *FFmpegDevice) Acquire(ctx context.Context, c live.Constraints) (io.ReadCloser, error) {
	if err := d.Check(); err != nil {
		return nil, err
	}

	args := []string{"-f", d.Format, "-i", d.Input}
	if !c.Audio {
		args = append(args, "-an")
	}
	if !c.Video {
		args = append(args, "-vn")
	}
	args = append(args, "-c:v", "libvpx", "-c:a", "libopus", "-f", "webm", "pipe:1")

	cmd := exec.CommandContext(ctx, d.binary(), args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", d.binary(), err)
	}

	if d.Log != nil {
		d.Log.Info("capture started",
			slog.String("format", d.Format),
			slog.String("input", d.Input))
	}
	return &processStream{ReadCloser: stdout, cmd: cmd}, nil
}

func (d *FFmpegDevice) binary() string {
	if d.Binary != "" {
		return d.Binary
	}
	return "ffmpeg"
}

// processStream ties the pipe's lifetime to the capture process.
type processStream struct {
	io.ReadCloser
	cmd *exec.Cmd
}

func (p *processStream) Close() error {
	err := p.ReadCloser.Close()
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
	_ = p.cmd.Wait()
	return err
}
