// Package budget evaluates spend against per-period cost budgets.
package budget

import (
	"errors"
	"fmt"
	"time"

	"github.com/pario-ai/ccmeter/pkg/models"
)

// ErrBudgetExceeded is returned when spend reaches a budget.
var ErrBudgetExceeded = errors.New("budget exceeded")

// DefaultWarnPercent applies when a policy sets no warning threshold.
const DefaultWarnPercent = 80

// Enforcer checks costed usage against budget policies.
type Enforcer struct {
	policies []models.BudgetPolicy
	loc      *time.Location
}

// New creates an Enforcer whose periods follow calendar boundaries in loc.
func New(policies []models.BudgetPolicy, loc *time.Location) *Enforcer {
	if loc == nil {
		loc = time.UTC
	}
	return &Enforcer{policies: policies, loc: loc}
}

// Policies returns the configured policies.
func (e *Enforcer) Policies() []models.BudgetPolicy {
	return e.policies
}

// Check returns an error wrapping ErrBudgetExceeded for the first policy
// whose current period spend has reached its limit.
func (e *Enforcer) Check(events []models.CostedEvent, now time.Time) error {
	for _, s := range e.Status(events, now) {
		if s.Exceeded {
			return fmt.Errorf("%w: %s budget %s: $%.2f of $%.2f",
				ErrBudgetExceeded, s.Policy.Period, s.PeriodKey, s.Used, s.Policy.MaxCost)
		}
	}
	return nil
}

// Status returns spend for the current period of every policy.
func (e *Enforcer) Status(events []models.CostedEvent, now time.Time) []models.BudgetStatus {
	statuses := make([]models.BudgetStatus, 0, len(e.policies))
	for _, p := range e.policies {
		start, end := e.period(p.Period, now)

		var used float64
		for _, ev := range events {
			if p.Model != "" && ev.Model != p.Model {
				continue
			}
			if ev.Timestamp.Before(start) || !ev.Timestamp.Before(end) {
				continue
			}
			used += ev.Cost
		}

		remaining := p.MaxCost - used
		if remaining < 0 {
			remaining = 0
		}
		var percent float64
		if p.MaxCost > 0 {
			percent = used / p.MaxCost * 100
		}
		warn := p.WarnPercent
		if warn == 0 {
			warn = DefaultWarnPercent
		}

		statuses = append(statuses, models.BudgetStatus{
			Policy:    p,
			PeriodKey: periodKey(p.Period, start),
			Used:      used,
			Remaining: remaining,
			Percent:   percent,
			Warning:   percent >= warn && used < p.MaxCost,
			Exceeded:  p.MaxCost > 0 && used >= p.MaxCost,
			Projected: project(used, start, end, now),
		})
	}
	return statuses
}

func (e *Enforcer) period(period models.BudgetPeriod, now time.Time) (time.Time, time.Time) {
	local := now.In(e.loc)
	switch period {
	case models.BudgetMonthly:
		start := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, e.loc)
		return start, start.AddDate(0, 1, 0)
	default: // daily
		start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, e.loc)
		return start, start.AddDate(0, 0, 1)
	}
}

func periodKey(period models.BudgetPeriod, start time.Time) string {
	if period == models.BudgetMonthly {
		return start.Format("2006-01")
	}
	return start.Format("2006-01-02")
}

// project extrapolates spend linearly to the end of the period.
func project(used float64, start, end, now time.Time) float64 {
	elapsed := now.Sub(start)
	if elapsed <= 0 || used == 0 {
		return used
	}
	if now.After(end) {
		return used
	}
	return used * float64(end.Sub(start)) / float64(elapsed)
}
