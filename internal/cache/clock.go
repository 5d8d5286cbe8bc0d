package cache

import "sync/atomic"

// Version is a logical timestamp. Versions are only compared with each other,
// never with wall-clock time.
type Version uint64

// Clock hands out strictly increasing versions. One clock is shared by every
// store of a session so versions are comparable across entity kinds.
type Clock struct {
	n atomic.Uint64
}

func NewClock() *Clock {
	return &Clock{}
}

func (c *Clock) Next() Version {
	return Version(c.n.Add(1))
}
