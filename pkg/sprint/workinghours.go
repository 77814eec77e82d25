package sprint

import (
	"time"

	"github.com/devbackplane/backplane/internal/config"
)

// WithinWorkingHours implements spec §4.L's gate, extended with the
// extra_holidays override: a date present in ExtraHolidays is treated
// as outside working hours regardless of weekday/time.
func WithinWorkingHours(hours config.WorkingHours, now time.Time) bool {
	loc, err := time.LoadLocation(hours.Timezone)
	if err != nil {
		loc = time.UTC
	}
	local := now.In(loc)

	for _, holiday := range hours.ExtraHolidays {
		if local.Format("2006-01-02") == holiday {
			return false
		}
	}

	if hours.WeekdaysOnly {
		switch local.Weekday() {
		case time.Saturday, time.Sunday:
			return false
		}
	}

	start := time.Date(local.Year(), local.Month(), local.Day(), hours.StartHour, hours.StartMinute, 0, 0, loc)
	end := time.Date(local.Year(), local.Month(), local.Day(), hours.EndHour, hours.EndMinute, 0, 0, loc)
	return !local.Before(start) && local.Before(end)
}
