package udpproxy

import "time"

// sweepIdle walks outers and returns those whose idle duration exceeds
// maxIdle, without mutating the map itself — the caller closes each
// returned Outer afterward, which is the remove-safe traversal the
// design calls for: the map is never modified while being ranged over.
func sweepIdle(outers map[string]*Outer, now time.Time, maxIdle time.Duration) []*Outer {
	if maxIdle <= 0 {
		return nil
	}
	var stale []*Outer
	for _, o := range outers {
		if now.Sub(o.LastActivity()) > maxIdle {
			stale = append(stale, o)
		}
	}
	return stale
}
