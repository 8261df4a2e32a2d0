package catalog

import (
	"cmp"
	"slices"
	"sync"
)

// PinSource reports which chats the user pinned. The pin state lives outside
// the catalog and is joined back by id.
type PinSource interface {
	Pins() (map[string]bool, error)
}

// Catalog is the in-memory chat list. Loads replace it wholesale; Resort
// only reorders what is already there.
//
// Loads take a monotonically increasing token before their request goes
// out. An explicit result is applied when no newer explicit result has been;
// a silent result additionally requires that nothing newer was applied and
// that no explicit load is in flight.
type Catalog struct {
	mu       sync.RWMutex
	contacts []Contact
	index    map[string]int

	next     uint64
	floor    uint64 // tokens at or below are stale (issued before Reset)
	applied  uint64
	explicit uint64
	inflight int
}

// New returns an empty catalog.
func New() *Catalog {
	return &Catalog{index: map[string]int{}}
}

// Replace swaps the catalog contents unconditionally.
func (c *Catalog) Replace(contacts []Contact) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.set(contacts)
}

func (c *Catalog) set(contacts []Contact) {
	c.contacts = slices.Clone(contacts)
	c.index = make(map[string]int, len(contacts))
	for i, ct := range c.contacts {
		c.index[ct.ID] = i
	}
}

// Get returns the contact with the given id.
func (c *Catalog) Get(id string) (Contact, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i, ok := c.index[id]
	if !ok {
		return Contact{}, false
	}
	return c.contacts[i], true
}

// List returns a copy of the catalog in its current order.
func (c *Catalog) List() []Contact {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.contacts)
}

// Len returns the number of contacts.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.contacts)
}

// Reset clears the catalog and invalidates every load still in flight.
func (c *Catalog) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.set(nil)
	c.floor = c.next
	c.applied = c.next
	c.explicit = c.next
}

// Resort refreshes pinned flags from pins and reorders the current contents
// in place. Load tokens are left alone, so a load in flight still lands or
// loses exactly as it would have.
func (c *Catalog) Resort(pins PinSource) error {
	var pinned map[string]bool
	if pins != nil {
		var err error
		if pinned, err = pins.Pins(); err != nil {
			return err
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	contacts := slices.Clone(c.contacts)
	_ = Sort(contacts, pinSet(pinned))
	c.set(contacts)
	return nil
}

type pinSet map[string]bool

func (p pinSet) Pins() (map[string]bool, error) { return p, nil }

func (c *Catalog) begin(silent bool) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next++
	if !silent {
		c.inflight++
	}
	return c.next
}

// commit applies contacts if token tok is still authoritative. A nil
// contacts slice only ends the load.
func (c *Catalog) commit(tok uint64, silent bool, contacts []Contact, ok bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !silent {
		c.inflight--
	}
	if !ok || tok <= c.floor {
		return false
	}
	if silent {
		if tok <= c.applied || tok <= c.explicit || c.inflight > 0 {
			return false
		}
	} else if tok <= c.explicit {
		return false
	} else {
		c.explicit = tok
	}
	c.applied = max(c.applied, tok)
	c.set(contacts)
	return true
}

// Sort orders contacts pinned first, then by last message time, newest
// first. Pinned flags are filled from pins, which may be nil.
func Sort(contacts []Contact, pins PinSource) error {
	var pinned map[string]bool
	var err error
	if pins != nil {
		pinned, err = pins.Pins()
	}
	for i := range contacts {
		contacts[i].Pinned = pinned[contacts[i].ID]
	}
	slices.SortStableFunc(contacts, func(a, b Contact) int {
		if a.Pinned != b.Pinned {
			if a.Pinned {
				return -1
			}
			return 1
		}
		return cmp.Compare(b.LastMessageTimestamp, a.LastMessageTimestamp)
	})
	return err
}
