package devcache

import (
	"path"
	"path/filepath"

	"github.com/lvm2go/lvm2core/internal/arena"
	"github.com/lvm2go/lvm2core/internal/container"
	"github.com/lvm2go/lvm2core/internal/lvmerrors"
)

// Filter is the interface component G's composite filter satisfies,
// kept narrow here so devcache never imports the filter package.
type Filter interface {
	PassesFilter(dev *Device) (bool, error)
}

// Cache is the process-wide device cache: every directory it has been
// told to watch, and every block device found there indexed both by
// path (for Get) and by dev_t (for dev_t-keyed lookups elsewhere).
type Cache struct {
	arena *arena.Arena
	fs    FS

	names   *container.Hash // path -> *Device
	devices *container.Btree

	dirs       []string
	hasScanned bool
}

// New creates an empty cache. a may be nil, in which case the cache
// allocates its own arena for the lifetime of directory-path bookkeeping.
func New(a *arena.Arena, fs FS) *Cache {
	if a == nil {
		a = arena.New(0)
	}
	if fs == nil {
		fs = OSFS{}
	}
	return &Cache{
		arena:   a,
		fs:      fs,
		names:   container.NewHash(128),
		devices: container.NewBtree(),
	}
}

// AddDir records a directory to be walked by Scan.
func (c *Cache) AddDir(p string) error {
	st, err := c.fs.Stat(p)
	if err != nil {
		return nil // matches the original: ignore missing dirs, don't fail
	}
	if !st.IsDir {
		return nil
	}
	c.dirs = append(c.dirs, path.Clean(p))
	return nil
}

// HasScanned reports whether Scan has ever completed.
func (c *Cache) HasScanned() bool { return c.hasScanned }

// Scan walks every watched directory, descending into each
// subdirectory it meets except symlinked ones (matching _insert_dir's
// recursive call on nested directories), inserting or aliasing every
// block device found. If the cache has already scanned once, Scan is a
// no-op unless force is set.
func (c *Cache) Scan(force bool) error {
	if c.hasScanned && !force {
		return nil
	}
	for _, d := range c.dirs {
		if err := c.insertDir(d); err != nil {
			return err
		}
	}
	c.hasScanned = true
	return nil
}

func (c *Cache) insertDir(dir string) error {
	names, err := c.fs.ReadDir(dir)
	if err != nil {
		return nil // matches _insert_dir: scandir failure is silently skipped
	}
	for _, name := range names {
		p := filepath.Join(dir, name)
		if err := c.insert(p, true); err != nil {
			return err
		}
	}
	return nil
}

func (c *Cache) insert(p string, recurse bool) error {
	st, err := c.fs.Stat(p)
	if err != nil {
		return nil
	}

	if st.IsDir {
		lst, err := c.fs.Lstat(p)
		if err != nil {
			return nil
		}
		if lst.IsSymlink {
			return nil
		}
		if recurse {
			return c.insertDir(p)
		}
		return nil
	}

	if !st.IsBlockDevice {
		return nil
	}
	return c.insertDev(p, st.Rdev)
}

func (c *Cache) insertDev(p string, rdev uint64) error {
	var dev *Device
	if existing := c.devices.Lookup(uint32(rdev)); existing != nil {
		dev = existing.(*Device)
	} else {
		dev = &Device{Dev: rdev, Flags: FlagRegular}
		c.devices.Insert(uint32(rdev), dev)
	}

	if !addAlias(c.fs, dev, p) {
		return nil
	}
	c.names.Insert(p, dev)
	return nil
}

// Get returns the device whose canonical alias is name, re-resolving it
// if the cached entry no longer matches the current stat, and applying
// filter if given.
func (c *Cache) Get(name string, filter Filter) (*Device, error) {
	d := c.lookupVerified(name)
	if d == nil {
		if err := c.insert(name, false); err != nil {
			return nil, err
		}
		d = c.lookupVerified(name)
	}
	if d == nil {
		return nil, nil
	}
	if filter != nil {
		ok, err := filter.PassesFilter(d)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}
	}
	return d, nil
}

func (c *Cache) lookupVerified(name string) *Device {
	v := c.names.Lookup(name)
	if v == nil {
		return nil
	}
	d := v.(*Device)
	st, err := c.fs.Stat(name)
	if err != nil || st.Rdev != d.Dev {
		c.names.Remove(name)
		return nil
	}
	return d
}

// DevNameConfirmed revalidates dev's first (canonical) alias, removing
// it and retrying with the next one if it no longer resolves to dev's
// dev_t, and returns the alias that does. It fails only once every
// alias has been exhausted.
func (c *Cache) DevNameConfirmed(dev *Device, quiet bool) (string, error) {
	for {
		if len(dev.Aliases) == 0 {
			return "", lvmerrors.NotFoundf("device has no remaining aliases")
		}

		name := dev.Aliases[0]
		st, err := c.fs.Stat(name)
		if err == nil && st.Rdev == dev.Dev {
			return name, nil
		}

		c.names.Remove(name)

		if len(dev.Aliases) == 1 {
			return "", lvmerrors.NotFoundf("no valid pathname remains for device (was %s)", name)
		}

		removeAlias(dev, name)
		if err == nil {
			// path still exists but now refers to something else;
			// let a future scan re-register it under its real device.
			_ = c.insert(name, false)
		}
	}
}

// Iterator walks every known device in the device btree's order
// (ascending byte-reversed dev_t, see container.BtreeIter), applying
// filter.
type Iterator struct {
	it     *container.BtreeIter
	filter Filter
}

// Iter returns an iterator over every currently known device.
func (c *Cache) Iter(filter Filter) *Iterator {
	return &Iterator{it: c.devices.First(), filter: filter}
}

// Next returns the next device passing the filter, or nil when exhausted.
func (it *Iterator) Next() (*Device, error) {
	for it.it != nil {
		d := it.it.Data().(*Device)
		it.it = it.it.Next()
		if it.filter == nil {
			return d, nil
		}
		ok, err := it.filter.PassesFilter(d)
		if err != nil {
			return nil, err
		}
		if ok {
			return d, nil
		}
	}
	return nil, nil
}
