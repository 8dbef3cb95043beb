package civil

import "time"

// Clock supplies "today" in the tenant's configured civil timezone.
// Production uses SystemClock; tests inject a Fixed clock for determinism.
type Clock interface {
	Now() Date
	Location() *time.Location
}

// SystemClock reads the real wall clock, normalized into loc.
type SystemClock struct {
	loc *time.Location
}

func NewSystemClock(loc *time.Location) SystemClock { return SystemClock{loc: loc} }

func (c SystemClock) Now() Date {
	n := time.Now().In(c.loc)
	return New(c.loc, n.Year(), n.Month(), n.Day())
}

func (c SystemClock) Location() *time.Location { return c.loc }

// Fixed returns a constant date, for tests.
type Fixed struct {
	D   Date
	loc *time.Location
}

func NewFixed(d Date, loc *time.Location) Fixed { return Fixed{D: d, loc: loc} }

func (f Fixed) Now() Date               { return f.D }
func (f Fixed) Location() *time.Location { return f.loc }
