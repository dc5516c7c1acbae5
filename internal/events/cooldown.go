package events

// CooldownTracker records, per event, when it last fired and until when it
// stays refractory. Times are absolute integration times; windows extend
// along the current direction of integration and survive step boundaries.
// The tracker belongs to one detector and is not safe for concurrent use.
type CooldownTracker struct {
	forward bool
	primed  bool
	entries map[EventID]*cooldownEntry
}

type cooldownEntry struct {
	lastFire float64
	until    float64
	armed    bool
}

func NewCooldownTracker() *CooldownTracker {
	return &CooldownTracker{entries: make(map[EventID]*cooldownEntry)}
}

// SetDirection aligns the tracker with the time direction of the step
// about to be scanned. A flip discards every window: a refractory interval
// has no meaning across a reversal of time. Reports whether state was
// discarded.
func (c *CooldownTracker) SetDirection(forward bool) bool {
	if !c.primed {
		c.primed = true
		c.forward = forward
		return false
	}
	if c.forward == forward {
		return false
	}
	c.forward = forward
	if len(c.entries) == 0 {
		return false
	}
	c.entries = make(map[EventID]*cooldownEntry)
	return true
}

// IsSuppressed reports whether the event's window is armed and t has not
// yet passed its end. The end itself is open: a crossing exactly at
// until is admitted.
func (c *CooldownTracker) IsSuppressed(id EventID, t float64) bool {
	e, ok := c.entries[id]
	if !ok || !e.armed {
		return false
	}
	if c.forward {
		return t < e.until
	}
	return t > e.until
}

// RecordFire notes the firing time before the event's callback runs, so
// the callback observes a tracker that already reflects its own firing.
func (c *CooldownTracker) RecordFire(id EventID, t float64) {
	e, ok := c.entries[id]
	if !ok {
		e = &cooldownEntry{}
		c.entries[id] = e
	}
	e.lastFire = t
}

// Arm opens the refractory window: until t+window forward, t-window
// backward.
func (c *CooldownTracker) Arm(id EventID, t, window float64) {
	e, ok := c.entries[id]
	if !ok {
		e = &cooldownEntry{}
		c.entries[id] = e
	}
	e.armed = true
	if c.forward {
		e.until = t + window
	} else {
		e.until = t - window
	}
}

// LastFire returns the most recent firing time recorded for the event.
func (c *CooldownTracker) LastFire(id EventID) (float64, bool) {
	e, ok := c.entries[id]
	if !ok {
		return 0, false
	}
	return e.lastFire, true
}

// ActiveUntil returns the end of the event's armed window, if any.
func (c *CooldownTracker) ActiveUntil(id EventID) (float64, bool) {
	e, ok := c.entries[id]
	if !ok || !e.armed {
		return 0, false
	}
	return e.until, true
}

// Forget drops all state for the event.
func (c *CooldownTracker) Forget(id EventID) {
	delete(c.entries, id)
}

// Reset clears every window and firing record. The next SetDirection
// re-primes the time direction without counting as a flip.
func (c *CooldownTracker) Reset() {
	c.primed = false
	c.entries = make(map[EventID]*cooldownEntry)
}
