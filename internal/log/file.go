package log

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"
)

const dayLayout = "2006-01-02"

// DailyFile is an io.Writer that appends to dir/YYYY-MM-DD.jsonl, switching
// files when the date changes. dir/latest always points at the active file.
type DailyFile struct {
	dir string

	mu  sync.Mutex
	f   *os.File
	day string
	now func() time.Time
}

// OpenDailyFile creates dir if needed and opens today's file.
func OpenDailyFile(dir string) (*DailyFile, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating log dir: %w", err)
	}
	d := &DailyFile{dir: dir, now: time.Now}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.openLocked(d.now().Format(dayLayout)); err != nil {
		return nil, err
	}
	return d, nil
}

// Write appends p, rolling to a new file first if the day changed.
func (d *DailyFile) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if today := d.now().Format(dayLayout); today != d.day || d.f == nil {
		if err := d.openLocked(today); err != nil {
			return 0, err
		}
	}
	return d.f.Write(p)
}

// Close closes the active file.
func (d *DailyFile) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.f == nil {
		return nil
	}
	err := d.f.Close()
	d.f = nil
	return err
}

func (d *DailyFile) openLocked(day string) error {
	if d.f != nil {
		_ = d.f.Close()
		d.f = nil
	}
	name := day + ".jsonl"
	f, err := os.OpenFile(filepath.Join(d.dir, name), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	d.f = f
	d.day = day
	d.relink(name)
	return nil
}

// relink points dir/latest at name via rename so readers never see a
// missing link. Failures are ignored; the link is a convenience.
func (d *DailyFile) relink(name string) {
	link := filepath.Join(d.dir, "latest")
	tmp := link + ".tmp"
	_ = os.Remove(tmp)
	if err := os.Symlink(name, tmp); err != nil {
		return
	}
	_ = os.Rename(tmp, link)
}

var dailyName = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})\.jsonl$`)

// Prune deletes JSONL files in dir older than retentionDays.
func Prune(dir string, retentionDays int) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := dailyName.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		day, err := time.Parse(dayLayout, m[1])
		if err != nil {
			continue
		}
		if day.Before(cutoff) {
			_ = os.Remove(filepath.Join(dir, e.Name()))
		}
	}
}
