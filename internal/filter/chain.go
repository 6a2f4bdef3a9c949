package filter

import "github.com/lvm2go/lvm2core/internal/devcache"

// Chain runs a sequence of filters in order, passing a device only if
// every filter in the chain passes it; it stops at the first rejection,
// matching the original toolcontext's composite dev_filter wiring where
// config/regex/sysfs/mpath/usable/persistent filters are each wrapped in
// front of the previous one.
type Chain struct {
	filters []Filter
}

// NewChain builds a Chain from filters, evaluated in the given order.
func NewChain(filters ...Filter) *Chain {
	return &Chain{filters: filters}
}

func (c *Chain) PassesFilter(dev *devcache.Device) (bool, error) {
	for _, f := range c.filters {
		ok, err := f.PassesFilter(dev)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}
