package devcache

import (
	"fmt"
	"sort"
	"strings"
	"testing"
)

// fakeFS is an in-memory filesystem for testing: block devices and
// symlinks without touching a real /dev.
type fakeFS struct {
	dirs     map[string][]string
	blockdev map[string]uint64
	symlinks map[string]bool
}

func newFakeFS() *fakeFS {
	return &fakeFS{
		dirs:     map[string][]string{},
		blockdev: map[string]uint64{},
		symlinks: map[string]bool{},
	}
}

func (f *fakeFS) Stat(p string) (Stat, error) {
	if _, ok := f.dirs[p]; ok {
		return Stat{IsDir: true}, nil
	}
	if rdev, ok := f.blockdev[p]; ok {
		return Stat{IsBlockDevice: true, Rdev: rdev}, nil
	}
	return Stat{}, fmt.Errorf("no such path: %s", p)
}

func (f *fakeFS) Lstat(p string) (Stat, error) {
	st, err := f.Stat(p)
	if err != nil {
		return st, err
	}
	st.IsSymlink = f.symlinks[p]
	return st, nil
}

func (f *fakeFS) ReadDir(p string) ([]string, error) {
	names, ok := f.dirs[p]
	if !ok {
		return nil, fmt.Errorf("no such directory: %s", p)
	}
	out := append([]string{}, names...)
	sort.Strings(out)
	return out, nil
}

func TestScanInsertsDevices(t *testing.T) {
	fs := newFakeFS()
	fs.dirs["/dev"] = []string{"sda", "sdb"}
	fs.blockdev["/dev/sda"] = 801
	fs.blockdev["/dev/sdb"] = 802

	c := New(nil, fs)
	if err := c.AddDir("/dev"); err != nil {
		t.Fatal(err)
	}
	if err := c.Scan(false); err != nil {
		t.Fatal(err)
	}

	d, err := c.Get("/dev/sda", nil)
	if err != nil {
		t.Fatal(err)
	}
	if d == nil || d.Dev != 801 {
		t.Fatalf("expected sda device, got %+v", d)
	}
}

func TestScanSkipsSymlinkedDirectories(t *testing.T) {
	fs := newFakeFS()
	fs.dirs["/dev"] = []string{"disk"}
	fs.dirs["/dev/disk"] = []string{"by-id"}
	fs.symlinks["/dev/disk"] = true

	c := New(nil, fs)
	c.AddDir("/dev")
	if err := c.Scan(false); err != nil {
		t.Fatal(err)
	}
	// /dev/disk is a symlinked directory: by-id must not have been walked.
	if v := c.names.Lookup("/dev/disk/by-id"); v != nil {
		t.Fatal("expected symlinked directory contents to be skipped")
	}
}

func TestScanIsIdempotentWithoutForce(t *testing.T) {
	fs := newFakeFS()
	fs.dirs["/dev"] = []string{"sda"}
	fs.blockdev["/dev/sda"] = 801

	c := New(nil, fs)
	c.AddDir("/dev")
	c.Scan(false)

	// remove the device from the backing fs; a non-forced rescan must
	// not re-walk and therefore must not notice.
	delete(fs.dirs, "/dev")
	if err := c.Scan(false); err != nil {
		t.Fatal(err)
	}
	if d, _ := c.Get("/dev/sda", nil); d == nil {
		t.Fatal("expected sda to remain cached across a no-op rescan")
	}
}

func TestAliasingPrefersFewerSlashes(t *testing.T) {
	fs := newFakeFS()
	fs.dirs["/dev"] = []string{"sda"}
	fs.dirs["/dev/disk"] = []string{"sda"}
	fs.blockdev["/dev/sda"] = 801
	fs.blockdev["/dev/disk/sda"] = 801

	c := New(nil, fs)
	c.AddDir("/dev")
	c.AddDir("/dev/disk")
	c.Scan(false)

	d, err := c.Get("/dev/sda", nil)
	if err != nil || d == nil {
		t.Fatalf("expected to find device: %v, %v", d, err)
	}
	if d.Name() != "/dev/sda" {
		t.Fatalf("expected /dev/sda (fewer slashes) to be canonical, got %q", d.Name())
	}
	if len(d.Aliases) != 2 {
		t.Fatalf("expected 2 aliases, got %v", d.Aliases)
	}
}

func TestGetRevalidatesStaleCacheEntry(t *testing.T) {
	fs := newFakeFS()
	fs.dirs["/dev"] = []string{"sda"}
	fs.blockdev["/dev/sda"] = 801

	c := New(nil, fs)
	c.AddDir("/dev")
	c.Scan(false)

	// /dev/sda now refers to a different device (path reused).
	fs.blockdev["/dev/sda"] = 999

	d, err := c.Get("/dev/sda", nil)
	if err != nil {
		t.Fatal(err)
	}
	if d == nil || d.Dev != 999 {
		t.Fatalf("expected re-resolved device with new dev_t, got %+v", d)
	}
}

func TestDevNameConfirmedFallsBackToNextAlias(t *testing.T) {
	fs := newFakeFS()
	fs.dirs["/dev"] = []string{"sda"}
	fs.dirs["/dev/disk"] = []string{"sda"}
	fs.blockdev["/dev/sda"] = 801
	fs.blockdev["/dev/disk/sda"] = 801

	c := New(nil, fs)
	c.AddDir("/dev")
	c.AddDir("/dev/disk")
	c.Scan(false)

	d, _ := c.Get("/dev/sda", nil)
	canonical := d.Name()

	// the canonical alias disappears from the backing fs.
	delete(fs.blockdev, canonical)

	name, err := c.DevNameConfirmed(d, true)
	if err != nil {
		t.Fatalf("DevNameConfirmed: %v", err)
	}
	if name == canonical {
		t.Fatal("expected DevNameConfirmed to fall through to a surviving alias")
	}
	if !strings.Contains(strings.Join(d.Aliases, ","), name) {
		t.Fatal("returned name should still be one of the device's aliases")
	}
}

func TestDevNameConfirmedFailsWhenNoAliasSurvives(t *testing.T) {
	fs := newFakeFS()
	fs.dirs["/dev"] = []string{"sda"}
	fs.blockdev["/dev/sda"] = 801

	c := New(nil, fs)
	c.AddDir("/dev")
	c.Scan(false)

	d, _ := c.Get("/dev/sda", nil)
	delete(fs.blockdev, "/dev/sda")

	if _, err := c.DevNameConfirmed(d, true); err == nil {
		t.Fatal("expected an error when every alias is gone")
	}
}

type rejectAllFilter struct{}

func (rejectAllFilter) PassesFilter(*Device) (bool, error) { return false, nil }

func TestGetAppliesFilter(t *testing.T) {
	fs := newFakeFS()
	fs.dirs["/dev"] = []string{"sda"}
	fs.blockdev["/dev/sda"] = 801

	c := New(nil, fs)
	c.AddDir("/dev")
	c.Scan(false)

	d, err := c.Get("/dev/sda", rejectAllFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if d != nil {
		t.Fatal("expected filter to reject the device")
	}
}

func TestIterVisitsEveryDevice(t *testing.T) {
	fs := newFakeFS()
	fs.dirs["/dev"] = []string{"sda", "sdb", "sdc"}
	fs.blockdev["/dev/sda"] = 1
	fs.blockdev["/dev/sdb"] = 2
	fs.blockdev["/dev/sdc"] = 3

	c := New(nil, fs)
	c.AddDir("/dev")
	c.Scan(false)

	it := c.Iter(nil)
	count := 0
	for {
		d, err := it.Next()
		if err != nil {
			t.Fatal(err)
		}
		if d == nil {
			break
		}
		count++
	}
	if count != 3 {
		t.Fatalf("iterated %d devices, want 3", count)
	}
}
