// Package filter implements component G: composable predicates over a
// devcache.Device, used to decide whether a discovered block device is
// eligible to be scanned as a PV candidate.
package filter

import "github.com/lvm2go/lvm2core/internal/devcache"

// Filter is the predicate every filter in this package implements. It
// matches devcache.Filter exactly, so any value here can be handed
// straight to devcache.Cache.Get/Iter.
type Filter interface {
	PassesFilter(dev *devcache.Device) (bool, error)
}

// FilterFunc adapts a plain function to Filter.
type FilterFunc func(dev *devcache.Device) (bool, error)

func (f FilterFunc) PassesFilter(dev *devcache.Device) (bool, error) { return f(dev) }
