// Package stats computes how long each aggregator feed was healthy, from
// the recorded status changes.
package stats

import (
	"fmt"
	"time"

	"feederconsole/app/internal/aggstatus"
	"feederconsole/app/internal/cache"
	"feederconsole/app/internal/database"
	"feederconsole/app/internal/models"
)

// Uptime is one aggregator's health over a window. Time spent disabled, or
// before the first recorded change, is not tracked.
type Uptime struct {
	Aggregator     string    `json:"aggregator"`
	From           time.Time `json:"from"`
	To             time.Time `json:"to"`
	GoodSeconds    float64   `json:"good_seconds"`
	TrackedSeconds float64   `json:"tracked_seconds"`
	// Percent is nil when nothing was tracked.
	Percent *float64 `json:"percent"`
	Changes int      `json:"changes"`
}

// Compute walks changes (oldest first) across [from, to). A change dated
// before from sets the state entering the window.
func Compute(aggregator string, changes []models.StatusChange, from, to time.Time) Uptime {
	u := Uptime{Aggregator: aggregator, From: from, To: to}

	var (
		cur   *models.StatusChange
		curAt time.Time
	)
	for i := range changes {
		c := &changes[i]
		at, err := time.Parse(time.RFC3339, c.RecordedAt)
		if err != nil || !at.Before(to) {
			continue
		}
		if at.Before(from) {
			at = from
		} else {
			u.Changes++
		}
		if cur != nil {
			u.add(cur, curAt, at)
		}
		cur, curAt = c, at
	}
	if cur != nil {
		u.add(cur, curAt, to)
	}
	if u.TrackedSeconds > 0 {
		p := u.GoodSeconds / u.TrackedSeconds * 100
		u.Percent = &p
	}
	return u
}

func (u *Uptime) add(c *models.StatusChange, start, end time.Time) {
	d := end.Sub(start).Seconds()
	if d <= 0 {
		return
	}
	beast, _ := aggstatus.ParseStatus(c.Beast)
	mlat, _ := aggstatus.ParseStatus(c.Mlat)
	if beast == aggstatus.Disabled {
		return
	}
	u.TrackedSeconds += d
	if (aggstatus.Snapshot{Beast: beast, Mlat: mlat}).IsGood() {
		u.GoodSeconds += d
	}
}

// Calculator serves uptime figures from the database, cached briefly.
type Calculator struct {
	cache *cache.Cache[Uptime]
	now   func() time.Time
}

// NewCalculator caches each result for ttl.
func NewCalculator(ttl time.Duration) *Calculator {
	return &Calculator{cache: cache.New[Uptime](ttl), now: time.Now}
}

// Uptime returns aggregator's figures over the window ending now.
func (c *Calculator) Uptime(aggregator string, window time.Duration) (Uptime, error) {
	key := aggregator + "|" + window.String()
	if u, ok := c.cache.Get(key); ok {
		return u, nil
	}
	to := c.now().UTC().Truncate(time.Second)
	from := to.Add(-window)
	changes, err := database.GetStatusWindow(aggregator, from)
	if err != nil {
		return Uptime{}, fmt.Errorf("load %s history: %w", aggregator, err)
	}
	u := Compute(aggregator, changes, from, to)
	c.cache.Set(key, u)
	return u, nil
}

// Invalidate drops cached figures for aggregator, e.g. after a status change.
func (c *Calculator) Invalidate(aggregator string) {
	c.cache.DeletePrefix(aggregator + "|")
}

// Sweep drops expired cache entries.
func (c *Calculator) Sweep() int {
	return c.cache.Sweep()
}
