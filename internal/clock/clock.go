package clock

import "time"

type Clock interface {
	Now() time.Time
}

// System — боевые часы, всегда UTC.
type System struct{}

func (System) Now() time.Time { return time.Now().UTC() }

// Fixed — замороженные часы для тестов.
type Fixed struct {
	T time.Time
}

func (f Fixed) Now() time.Time { return f.T }
