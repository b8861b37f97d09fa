package quiethours

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// TimeOfDay — локальное время "часы:минуты" без даты.
type TimeOfDay struct {
	Hour   int
	Minute int
}

func (t TimeOfDay) Minutes() int { return t.Hour*60 + t.Minute }

func (t TimeOfDay) String() string { return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute) }

// Parse разбирает "HH:MM" (как хранится в quiet_start/quiet_end).
func Parse(s string) (TimeOfDay, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return TimeOfDay{}, errors.Wrapf(err, "parse time of day %q", s)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return TimeOfDay{}, errors.Errorf("time of day %q out of range", s)
	}
	return TimeOfDay{Hour: h, Minute: m}, nil
}

// InWindow проверяет, попадает ли local в окно [start, end).
// Обе границы nil => quiet hours не настроены.
// start > end => окно переходит через полночь (например 23:00-07:00).
func InWindow(start, end *TimeOfDay, local TimeOfDay) bool {
	if start == nil || end == nil {
		return false
	}

	cur := local.Minutes()
	s := start.Minutes()
	e := end.Minutes()

	if s > e {
		return cur >= s || cur < e
	}
	return cur >= s && cur < e
}

// InWindowAt — удобная обёртка для subject-а: границы как "HH:MM" строки,
// момент now переводится в локальное время таймзоны tz.
func InWindowAt(startStr, endStr *string, tz string, now time.Time) (bool, error) {
	if startStr == nil || endStr == nil {
		return false, nil
	}

	start, err := Parse(*startStr)
	if err != nil {
		return false, err
	}
	end, err := Parse(*endStr)
	if err != nil {
		return false, err
	}

	loc, err := time.LoadLocation(tz)
	if err != nil {
		return false, errors.Wrapf(err, "load timezone %q", tz)
	}
	local := now.In(loc)

	return InWindow(&start, &end, TimeOfDay{Hour: local.Hour(), Minute: local.Minute()}), nil
}
