package aggregate

import (
	"cmp"
	"slices"
	"time"

	"github.com/pario-ai/ccmeter/pkg/models"
)

const (
	dayLayout   = "2006-01-02"
	monthLayout = "2006-01"
)

// UnknownProject labels events that carry no project path.
const UnknownProject = "(unknown)"

// DayKey is the calendar date of ts in loc.
func DayKey(ts time.Time, loc *time.Location) string {
	return ts.In(loc).Format(dayLayout)
}

// MonthKey is the year-month of ts in loc.
func MonthKey(ts time.Time, loc *time.Location) string {
	return ts.In(loc).Format(monthLayout)
}

// WeekKey is the date of the first day of the week containing ts in loc.
func WeekKey(ts time.Time, loc *time.Location, start time.Weekday) string {
	local := ts.In(loc)
	offset := (int(local.Weekday()) - int(start) + 7) % 7
	y, m, d := local.Date()
	return time.Date(y, m, d-offset, 0, 0, 0, 0, loc).Format(dayLayout)
}

// Daily groups events by calendar date in loc, ascending.
func Daily(events []models.CostedEvent, loc *time.Location) []models.Bucket {
	return buckets(Aggregate(events, func(ev models.CostedEvent) (string, bool) {
		return DayKey(ev.Timestamp, loc), true
	}))
}

// Monthly groups events by year-month in loc, ascending.
func Monthly(events []models.CostedEvent, loc *time.Location) []models.Bucket {
	return buckets(Aggregate(events, func(ev models.CostedEvent) (string, bool) {
		return MonthKey(ev.Timestamp, loc), true
	}))
}

// Weekly groups events by week in loc, keyed by the week's first date.
func Weekly(events []models.CostedEvent, loc *time.Location, start time.Weekday) []models.Bucket {
	return buckets(Aggregate(events, func(ev models.CostedEvent) (string, bool) {
		return WeekKey(ev.Timestamp, loc, start), true
	}))
}

// Projects groups events by project path.
func Projects(events []models.CostedEvent) []models.Bucket {
	return buckets(Aggregate(events, func(ev models.CostedEvent) (string, bool) {
		if ev.ProjectPath == "" {
			return UnknownProject, true
		}
		return ev.ProjectPath, true
	}))
}

// Sessions groups events by session id, ascending by first-seen timestamp.
// Events without a session id are left out.
func Sessions(events []models.CostedEvent) []models.SessionBucket {
	groups := Aggregate(events, func(ev models.CostedEvent) (string, bool) {
		return ev.SessionID, ev.HasSession()
	})
	slices.SortFunc(groups, func(a, b Group[string]) int {
		if c := a.FirstSeen.Compare(b.FirstSeen); c != 0 {
			return c
		}
		return cmp.Compare(a.Key, b.Key)
	})

	out := make([]models.SessionBucket, len(groups))
	for i, g := range groups {
		out[i] = models.SessionBucket{
			Bucket:      g.Bucket,
			FirstSeen:   g.FirstSeen,
			LastSeen:    g.LastSeen,
			ProjectPath: g.Project,
		}
	}
	return out
}

// SessionTotals strips the time span from session buckets so they can be
// summed with Total.
func SessionTotals(sessions []models.SessionBucket) []models.Bucket {
	out := make([]models.Bucket, len(sessions))
	for i, s := range sessions {
		out[i] = s.Bucket
	}
	return out
}

// Filter keeps events whose calendar date in loc lies within [since, until].
// A zero bound is open. Bounds are reduced to their calendar date in loc.
func Filter(events []models.CostedEvent, since, until time.Time, loc *time.Location) []models.CostedEvent {
	if since.IsZero() && until.IsZero() {
		return events
	}
	sinceKey, untilKey := "", ""
	if !since.IsZero() {
		sinceKey = DayKey(since, loc)
	}
	if !until.IsZero() {
		untilKey = DayKey(until, loc)
	}

	out := make([]models.CostedEvent, 0, len(events))
	for _, ev := range events {
		day := DayKey(ev.Timestamp, loc)
		if sinceKey != "" && day < sinceKey {
			continue
		}
		if untilKey != "" && day > untilKey {
			continue
		}
		out = append(out, ev)
	}
	return out
}
