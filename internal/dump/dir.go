package dump

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	mvcapture "github.com/e7canasta/orion-care-sensor/modules/mv-capture"
)

// Dir writes artifacts below a local directory.
type Dir struct {
	root       string
	opts       Options
	frameTypes *os.File
	timestamps *os.File
}

var _ Sink = (*Dir)(nil)

// NewDir creates root with its frames and motion_vectors subdirectories
// and opens the logs in append mode, as reruns into the same directory
// extend them.
func NewDir(root string, opts Options) (*Dir, error) {
	for _, sub := range []string{FramesDir, MotionVectorsDir} {
		if err := os.MkdirAll(filepath.Join(root, sub), 0o755); err != nil {
			return nil, fmt.Errorf("dump: create %s: %w", sub, err)
		}
	}

	d := &Dir{root: root, opts: opts}
	var err error
	if d.frameTypes, err = openLog(filepath.Join(root, FrameTypesFile)); err != nil {
		return nil, err
	}
	if d.timestamps, err = openLog(filepath.Join(root, TimestampsFile)); err != nil {
		d.frameTypes.Close()
		return nil, err
	}
	return d, nil
}

func openLog(name string) (*os.File, error) {
	f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("dump: open %s: %w", filepath.Base(name), err)
	}
	return f, nil
}

// Root returns the run directory.
func (d *Dir) Root() string { return d.root }

func (d *Dir) Write(_ context.Context, step int, r mvcapture.Result) error {
	arts, err := Encode(step, r, d.opts)
	if err != nil {
		return err
	}
	for _, a := range arts {
		if err := os.WriteFile(filepath.Join(d.root, filepath.FromSlash(a.Name)), a.Data, 0o644); err != nil {
			return fmt.Errorf("dump: write %s: %w", a.Name, err)
		}
	}
	if _, err := d.timestamps.WriteString(TimestampLine(r.Timestamp)); err != nil {
		return fmt.Errorf("dump: append timestamp: %w", err)
	}
	if _, err := d.frameTypes.WriteString(FrameTypeLine(r.FrameType)); err != nil {
		return fmt.Errorf("dump: append frame type: %w", err)
	}
	return nil
}

func (d *Dir) Close(context.Context) error {
	return errors.Join(d.frameTypes.Close(), d.timestamps.Close())
}
