// Package capture renders the month view to a PNG with headless Chromium.
package capture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/chromedp"
)

const (
	defaultWidth   = 1200
	defaultHeight  = 900
	defaultTimeout = 30 * time.Second

	// readySelector matches the root of the calendar page once it has data.
	readySelector = `[data-ready="true"]`
)

// Options configures one screenshot.
type Options struct {
	// URL of the page, e.g. "http://127.0.0.1:8080/calendar".
	URL        string
	OutputPath string
	Width      int
	Height     int
	Timeout    time.Duration
	// Username and Password are sent as Basic Auth when set.
	Username string
	Password string
}

func (o *Options) validate() error {
	if o.URL == "" {
		return errors.New("capture: URL is required")
	}
	if o.OutputPath == "" {
		return errors.New("capture: OutputPath is required")
	}
	if o.Width <= 0 {
		o.Width = defaultWidth
	}
	if o.Height <= 0 {
		o.Height = defaultHeight
	}
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	return nil
}

// Snapshot loads opts.URL, waits for the ready marker and writes a full-page
// PNG to opts.OutputPath. The file is replaced atomically.
func Snapshot(parent context.Context, opts Options) error {
	if err := opts.validate(); err != nil {
		return err
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(parent, chromedp.DefaultExecAllocatorOptions[:]...)
	defer cancelAlloc()
	ctx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()
	ctx, cancelTimeout := context.WithTimeout(ctx, opts.Timeout)
	defer cancelTimeout()

	var png []byte
	if err := chromedp.Run(ctx, snapshotTasks(opts, &png)); err != nil {
		return fmt.Errorf("capture: %w", err)
	}
	return writeAtomic(opts.OutputPath, png)
}

func snapshotTasks(opts Options, out *[]byte) chromedp.Tasks {
	tasks := chromedp.Tasks{chromedp.EmulateViewport(int64(opts.Width), int64(opts.Height))}
	if opts.Username != "" {
		tasks = append(tasks, basicAuthHeader(opts.Username, opts.Password))
	}
	return append(tasks,
		chromedp.Navigate(opts.URL),
		chromedp.WaitVisible(readySelector, chromedp.ByQuery),
		chromedp.FullScreenshot(out, 100),
	)
}

func writeAtomic(path string, data []byte) error {
	if len(data) == 0 {
		return errors.New("capture: empty screenshot")
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("capture: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".snapshot-*.png")
	if err != nil {
		return fmt.Errorf("capture: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("capture: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("capture: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("capture: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}
