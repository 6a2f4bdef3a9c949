// Package label implements component H: reading the first small window
// of each filtered device, routing it to the correct labeller, and
// maintaining the three lvmcache indices (pvid, vgid, vgname) described
// in spec.md §4.H. Grounded on original_source/lib/label/label.h
// (the labeller vtable: can_handle/read/write/remove/verify/destroy) and
// lib/label/lvm2_label.c (the two-copy-with-CRC label shape, kept here
// as the concrete "4KB window at the front of the device" scan window
// spec.md describes rather than the single/double-sector scheme of the
// much older lvm2_label.c, per spec.md §4.H).
package label

import "github.com/lvm2go/lvm2core/internal/devcache"

// Label is the decoded result of a successful Labeller.Read: a PV
// identifier, the labeller's own volume-type tag, and a format version.
type Label struct {
	PVID       string
	VolumeType string
	Version    [3]uint32
}

// Labeller is the per-format plugin of spec.md's GLOSSARY entry: it
// decides whether a device's first window belongs to its format, and if
// so decodes the PV identifier. format1, formatpool and formattext each
// provide one; the labellers to consult are passed to New.
type Labeller interface {
	Name() string
	CanHandle(dev *devcache.Device, window []byte) bool
	Read(dev *devcache.Device, window []byte) (*Label, error)
}

// WindowSize is the amount read from the front of each device before any
// labeller is consulted, matching spec.md §4.H "reads 4 KB at the front
// of each filtered device".
const WindowSize = 4096
