// Package prune decides when the remainder of a (bucket, sub-bucket) key is
// abandoned after consecutive confirmed misses.
package prune

// Key identifies one sub-range of the search: a bucket and one of its sub-buckets.
type Key struct {
	Bucket int
	Sub    int
}

// Controller tracks the miss streak of the key currently being scanned.
//
// Only confirmed existence results are recorded. Transport failures are not
// results: callers must not report them, so they neither extend nor reset a
// streak.
type Controller struct {
	maxMissStreak int

	last    Key
	hasLast bool
	streak  int
	skipped map[Key]struct{}
}

// New returns a controller that abandons a key after maxMissStreak
// consecutive misses. A threshold of zero or less disables pruning.
func New(maxMissStreak int) *Controller {
	return &Controller{
		maxMissStreak: maxMissStreak,
		skipped:       make(map[Key]struct{}),
	}
}

// ShouldSkip reports whether the key was abandoned earlier in the run.
func (c *Controller) ShouldSkip(bucket, sub int) bool {
	_, ok := c.skipped[Key{Bucket: bucket, Sub: sub}]
	return ok
}

// RecordResult folds one existence result into the streak and reports
// whether this result caused the key to be abandoned.
func (c *Controller) RecordResult(bucket, sub int, exists bool) bool {
	key := Key{Bucket: bucket, Sub: sub}
	if !c.hasLast || key != c.last {
		c.streak = 0
		c.last = key
		c.hasLast = true
	}

	if exists {
		c.streak = 0
		return false
	}

	c.streak++
	if c.maxMissStreak <= 0 || c.streak < c.maxMissStreak {
		return false
	}
	if _, already := c.skipped[key]; already {
		return false
	}
	c.skipped[key] = struct{}{}
	return true
}

// Streak returns the current miss streak of the last recorded key.
func (c *Controller) Streak() int { return c.streak }

// Skipped returns the number of abandoned keys.
func (c *Controller) Skipped() int { return len(c.skipped) }
