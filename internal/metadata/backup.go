package metadata

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/lvm2go/lvm2core/internal/lvmerrors"
)

// BackupManager archives a VG's serialized metadata to
// "<dir>/<vgname>_<index>.vg" files, one per successful write, retaining
// whichever is larger of (retain_days, min_retains) — a supplemented
// feature from spec.md §6 "Persisted state", grounded on
// original_source/lib/format_text/backup.c's struct backup_c: an ordered,
// per-VG-name list of backup files with a monotonically increasing
// index, pruned by age except for the most recent min_retains copies.
type BackupManager struct {
	Dir         string
	RetainDays  int
	MinRetains  int

	now func() time.Time
}

var backupFileRe = regexp.MustCompile(`^(.+)_([0-9]+)\.vg$`)

// NewBackupManager builds a manager rooted at dir.
func NewBackupManager(dir string, retainDays, minRetains int) *BackupManager {
	return &BackupManager{Dir: dir, RetainDays: retainDays, MinRetains: minRetains, now: time.Now}
}

type backupFile struct {
	path  string
	index int
	mod   time.Time
}

func (b *BackupManager) listFor(vgName string) ([]backupFile, error) {
	entries, err := os.ReadDir(b.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, lvmerrors.IOf("reading backup dir %s: %w", b.Dir, err)
	}
	var files []backupFile
	for _, e := range entries {
		m := backupFileRe.FindStringSubmatch(e.Name())
		if m == nil || m[1] != vgName {
			continue
		}
		idx, err := strconv.Atoi(m[2])
		if err != nil {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, backupFile{path: filepath.Join(b.Dir, e.Name()), index: idx, mod: info.ModTime()})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].index < files[j].index })
	return files, nil
}

// Archive writes payload (the serialized VG, produced by the text codec)
// to the next index for vgName, then prunes files older than RetainDays
// beyond the most recent MinRetains copies, matching backup.c's
// archive-then-expire sequence.
func (b *BackupManager) Archive(vgName string, payload []byte) error {
	if b.Dir == "" {
		return nil
	}
	if err := os.MkdirAll(b.Dir, 0755); err != nil {
		return lvmerrors.IOf("creating backup dir %s: %w", b.Dir, err)
	}

	existing, err := b.listFor(vgName)
	if err != nil {
		return err
	}
	next := 0
	if len(existing) > 0 {
		next = existing[len(existing)-1].index + 1
	}
	path := filepath.Join(b.Dir, fmt.Sprintf("%s_%d.vg", vgName, next))
	if err := os.WriteFile(path, payload, 0644); err != nil {
		return lvmerrors.IOf("writing backup %s: %w", path, err)
	}

	return b.expire(vgName)
}

func (b *BackupManager) expire(vgName string) error {
	files, err := b.listFor(vgName)
	if err != nil {
		return err
	}
	if b.MinRetains <= 0 && b.RetainDays <= 0 {
		return nil
	}
	keepFromEnd := b.MinRetains
	if keepFromEnd < 0 {
		keepFromEnd = 0
	}
	if keepFromEnd > len(files) {
		keepFromEnd = len(files)
	}
	cutoff := b.now().AddDate(0, 0, -b.RetainDays)
	for i, f := range files {
		// always keep the most recent MinRetains, regardless of age.
		if i >= len(files)-keepFromEnd {
			continue
		}
		if b.RetainDays > 0 && !f.mod.Before(cutoff) {
			continue
		}
		_ = os.Remove(f.path)
	}
	return nil
}

// Latest returns the path of the most recent backup for vgName, or "" if
// none exists.
func (b *BackupManager) Latest(vgName string) (string, error) {
	files, err := b.listFor(vgName)
	if err != nil {
		return "", err
	}
	if len(files) == 0 {
		return "", nil
	}
	return files[len(files)-1].path, nil
}
