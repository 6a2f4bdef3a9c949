package devcache

import "strings"

// Device flags, mirroring the original's DEV_* bits that are still
// meaningful once file descriptors and physical I/O move to component F.
const (
	FlagRegular = 1 << iota
	FlagAccessedW
)

// Device is a block device known to the cache, identified by dev_t and
// reachable through one or more aliases (symlinked paths all stat'ing to
// the same rdev). Aliases[0] is the canonical name.
type Device struct {
	Dev     uint64
	Aliases []string
	Flags   int
	PVID    string

	BlockSize     int
	PhysBlockSize int
}

// Name returns the canonical alias, or "" if the device somehow has none.
func (d *Device) Name() string {
	if len(d.Aliases) == 0 {
		return ""
	}
	return d.Aliases[0]
}

func countSlashes(path string) int {
	return strings.Count(path, "/")
}

// comparePaths reports whether path1 should be preferred as the
// canonical alias over path0: fewer path separators wins first, then
// (walking the shared prefix component by component) a path whose
// prefix resolves through a symlink beats one that doesn't, then plain
// lexicographic order.
func comparePaths(fs FS, path0, path1 string) bool {
	s0, s1 := countSlashes(path0), countSlashes(path1)
	if s0 < s1 {
		return false
	}
	if s1 < s0 {
		return true
	}

	parts0 := strings.Split(path0, "/")
	parts1 := strings.Split(path1, "/")
	n := len(parts0)
	if len(parts1) < n {
		n = len(parts1)
	}

	var prefix0, prefix1 strings.Builder
	for i := 0; i < n; i++ {
		if i > 0 {
			prefix0.WriteByte('/')
			prefix1.WriteByte('/')
		}
		prefix0.WriteString(parts0[i])
		prefix1.WriteString(parts1[i])

		st0, err0 := fs.Lstat(prefix0.String())
		st1, err1 := fs.Lstat(prefix1.String())
		if err0 != nil || err1 != nil {
			break
		}
		if st0.IsSymlink && !st1.IsSymlink {
			return false
		}
		if !st0.IsSymlink && st1.IsSymlink {
			return true
		}
	}

	return path0 >= path1
}

// addAlias inserts path into dev's alias list in preferred order,
// returning false if it was already present.
func addAlias(fs FS, dev *Device, path string) bool {
	for _, a := range dev.Aliases {
		if a == path {
			return false
		}
	}

	if len(dev.Aliases) == 0 {
		dev.Aliases = append(dev.Aliases, path)
		return true
	}

	preferOld := comparePaths(fs, path, dev.Aliases[0])
	if preferOld {
		dev.Aliases = append(dev.Aliases, path)
	} else {
		dev.Aliases = append([]string{path}, dev.Aliases...)
	}
	return true
}

// removeAlias drops path from dev's alias list, returning true if found.
func removeAlias(dev *Device, path string) bool {
	for i, a := range dev.Aliases {
		if a == path {
			dev.Aliases = append(dev.Aliases[:i], dev.Aliases[i+1:]...)
			return true
		}
	}
	return false
}
