package filter

import (
	"encoding/json"
	"os"
	"sync"

	"github.com/lvm2go/lvm2core/internal/devcache"
	"github.com/lvm2go/lvm2core/internal/lvmerrors"
)

// PersistentFilter wraps another filter and caches its verdict per
// device name, persisting the cache to file across process runs exactly
// like persistent_filter_load/_dump/_wipe do for LVM2's ".cache" file, so
// a device that's expensive to re-probe (regex/usable/mpath) is only
// evaluated once per boot unless the cache is wiped.
type PersistentFilter struct {
	mu     sync.Mutex
	inner  Filter
	file   string
	verdic map[string]bool
}

// NewPersistentFilter wraps inner, persisting results to file (empty
// disables persistence; the cache still works in-memory for the life of
// the process).
func NewPersistentFilter(inner Filter, file string) *PersistentFilter {
	return &PersistentFilter{inner: inner, file: file, verdic: map[string]bool{}}
}

func (p *PersistentFilter) PassesFilter(dev *devcache.Device) (bool, error) {
	name := dev.Name()

	p.mu.Lock()
	if ok, cached := p.verdic[name]; cached {
		p.mu.Unlock()
		return ok, nil
	}
	p.mu.Unlock()

	ok, err := p.inner.PassesFilter(dev)
	if err != nil {
		return false, err
	}

	p.mu.Lock()
	p.verdic[name] = ok
	p.mu.Unlock()
	return ok, nil
}

// Wipe discards every cached verdict, forcing inner to be re-run on the
// next PassesFilter call for every device.
func (p *PersistentFilter) Wipe() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.verdic = map[string]bool{}
}

// Load reads cached verdicts back from p.file, replacing the in-memory
// cache entirely.
func (p *PersistentFilter) Load() error {
	if p.file == "" {
		return nil
	}
	data, err := os.ReadFile(p.file)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return lvmerrors.IOf("reading persistent filter cache %s: %w", p.file, err)
	}

	var verdicts map[string]bool
	if err := json.Unmarshal(data, &verdicts); err != nil {
		return lvmerrors.Formatf("parsing persistent filter cache %s: %w", p.file, err)
	}

	p.mu.Lock()
	p.verdic = verdicts
	p.mu.Unlock()
	return nil
}

// Dump writes the in-memory cache to p.file.
func (p *PersistentFilter) Dump() error {
	if p.file == "" {
		return nil
	}

	p.mu.Lock()
	data, err := json.MarshalIndent(p.verdic, "", "  ")
	p.mu.Unlock()
	if err != nil {
		return err
	}

	if err := os.WriteFile(p.file, data, 0644); err != nil {
		return lvmerrors.IOf("writing persistent filter cache %s: %w", p.file, err)
	}
	return nil
}
