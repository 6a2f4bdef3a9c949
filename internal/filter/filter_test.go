package filter

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/lvm2go/lvm2core/internal/devcache"
)

func dev(name string) *devcache.Device {
	return &devcache.Device{Aliases: []string{name}}
}

func TestChainStopsAtFirstRejection(t *testing.T) {
	var calls []string
	record := func(name string, result bool) FilterFunc {
		return func(d *devcache.Device) (bool, error) {
			calls = append(calls, name)
			return result, nil
		}
	}

	c := NewChain(record("a", true), record("b", false), record("c", true))
	ok, err := c.PassesFilter(dev("/dev/sda"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected chain to reject")
	}
	if len(calls) != 2 || calls[0] != "a" || calls[1] != "b" {
		t.Fatalf("expected chain to stop after b, got %v", calls)
	}
}

func TestChainPassesWhenAllPass(t *testing.T) {
	c := NewChain(
		FilterFunc(func(d *devcache.Device) (bool, error) { return true, nil }),
		FilterFunc(func(d *devcache.Device) (bool, error) { return true, nil }),
	)
	ok, err := c.PassesFilter(dev("/dev/sda"))
	if err != nil || !ok {
		t.Fatalf("expected pass, got ok=%v err=%v", ok, err)
	}
}

func TestRegexFilterAcceptOverridesReject(t *testing.T) {
	rf, err := NewRegexFilter([]string{"a|^/dev/sda$|", "r|.*|"})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	ok, err := rf.PassesFilter(dev("/dev/sda"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected /dev/sda to be accepted despite the catch-all reject")
	}

	ok, err = rf.PassesFilter(dev("/dev/sdb"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected /dev/sdb to be rejected by the catch-all")
	}
}

func TestRegexFilterPassesUnmatchedDevices(t *testing.T) {
	rf, err := NewRegexFilter([]string{"r|^/dev/loop.*|"})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	ok, err := rf.PassesFilter(dev("/dev/sda"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected a device matching nothing to pass")
	}
}

func TestRegexFilterPromotesMatchedAlias(t *testing.T) {
	rf, err := NewRegexFilter([]string{"a|^/dev/disk/by-id/.*|"})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	d := &devcache.Device{Aliases: []string{"/dev/sda", "/dev/disk/by-id/wwn-x"}}
	ok, err := rf.PassesFilter(d)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected device to pass")
	}
	if d.Aliases[0] != "/dev/disk/by-id/wwn-x" {
		t.Fatalf("expected matched alias promoted to front, got %v", d.Aliases)
	}
}

func TestExtractPatternRejectsUnknownPrefix(t *testing.T) {
	if _, _, err := extractPattern("x|foo|"); err == nil {
		t.Fatal("expected error for pattern not starting with a/r")
	}
}

func TestExtractPatternBracketSeparators(t *testing.T) {
	accept, body, err := extractPattern("a(^/dev/sda$)")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !accept || body != "^/dev/sda$" {
		t.Fatalf("got accept=%v body=%q", accept, body)
	}
}

func TestPersistentFilterCachesVerdict(t *testing.T) {
	calls := 0
	inner := FilterFunc(func(d *devcache.Device) (bool, error) {
		calls++
		return true, nil
	})

	p := NewPersistentFilter(inner, "")
	d := dev("/dev/sda")
	for i := 0; i < 3; i++ {
		ok, err := p.PassesFilter(d)
		if err != nil || !ok {
			t.Fatalf("iteration %d: ok=%v err=%v", i, ok, err)
		}
	}
	if calls != 1 {
		t.Fatalf("expected inner filter to run once, ran %d times", calls)
	}
}

func TestPersistentFilterWipeForcesReevaluation(t *testing.T) {
	calls := 0
	inner := FilterFunc(func(d *devcache.Device) (bool, error) {
		calls++
		return true, nil
	})

	p := NewPersistentFilter(inner, "")
	d := dev("/dev/sda")
	p.PassesFilter(d)
	p.Wipe()
	p.PassesFilter(d)
	if calls != 2 {
		t.Fatalf("expected 2 evaluations after wipe, got %d", calls)
	}
}

func TestPersistentFilterDumpAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "filter.cache")

	inner := FilterFunc(func(d *devcache.Device) (bool, error) { return d.Name() == "/dev/sda", nil })
	p := NewPersistentFilter(inner, file)
	p.PassesFilter(dev("/dev/sda"))
	p.PassesFilter(dev("/dev/sdb"))
	if err := p.Dump(); err != nil {
		t.Fatalf("dump: %v", err)
	}

	if _, err := os.Stat(file); err != nil {
		t.Fatalf("expected cache file to exist: %v", err)
	}

	p2 := NewPersistentFilter(inner, file)
	if err := p2.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	ok, err := p2.PassesFilter(dev("/dev/sdb"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected loaded verdict for /dev/sdb to still be false")
	}
}

func TestPersistentFilterLoadMissingFileIsNotError(t *testing.T) {
	p := NewPersistentFilter(FilterFunc(func(d *devcache.Device) (bool, error) { return true, nil }), "/nonexistent/path/filter.cache")
	if err := p.Load(); err != nil {
		t.Fatalf("expected missing cache file to be tolerated, got %v", err)
	}
}
