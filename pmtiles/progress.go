package pmtiles

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
)

// ProgressWriter creates progress trackers for long-running archive scans.
type ProgressWriter interface {
	// NewCountProgress tracks a number of items such as tiles or entries.
	NewCountProgress(total int64, description string) Progress
	// NewBytesProgress tracks a number of bytes.
	NewBytesProgress(total int64, description string) Progress
}

// Progress is one active tracker. Writes advance it by the bytes written.
type Progress interface {
	io.Writer
	Add(num int)
	Close() error
}

// NewProgressWriter returns a ProgressWriter drawing bars on stderr, or a
// silent one when quiet is set.
func NewProgressWriter(quiet bool) ProgressWriter {
	if quiet {
		return QuietProgressWriter{}
	}
	return terminalProgress{out: os.Stderr}
}

type terminalProgress struct {
	out io.Writer
}

func (t terminalProgress) bar(total int64, description string, extra ...progressbar.Option) Progress {
	opts := append([]progressbar.Option{
		progressbar.OptionSetWriter(t.out),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWidth(40),
		progressbar.OptionThrottle(100 * time.Millisecond),
		progressbar.OptionOnCompletion(func() { fmt.Fprintln(t.out) }),
	}, extra...)
	return barProgress{progressbar.NewOptions64(total, opts...)}
}

func (t terminalProgress) NewCountProgress(total int64, description string) Progress {
	return t.bar(total, description, progressbar.OptionShowCount(), progressbar.OptionShowIts())
}

func (t terminalProgress) NewBytesProgress(total int64, description string) Progress {
	return t.bar(total, description, progressbar.OptionShowBytes(true))
}

type barProgress struct {
	*progressbar.ProgressBar
}

// Add drops the render error of the embedded bar.
func (b barProgress) Add(num int) {
	_ = b.ProgressBar.Add(num)
}

// QuietProgressWriter reports nothing.
type QuietProgressWriter struct{}

func (QuietProgressWriter) NewCountProgress(int64, string) Progress { return quietProgress{} }

func (QuietProgressWriter) NewBytesProgress(int64, string) Progress { return quietProgress{} }

type quietProgress struct{}

func (quietProgress) Write(data []byte) (int, error) { return len(data), nil }

func (quietProgress) Add(int) {}

func (quietProgress) Close() error { return nil }
