// Package aggregate groups costed events into per-key buckets: days, weeks,
// months, sessions and projects.
package aggregate

import (
	"cmp"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/pario-ai/ccmeter/pkg/models"
)

// KeyFunc extracts the grouping key of an event. Returning false excludes
// the event from the view.
type KeyFunc[K cmp.Ordered] func(models.CostedEvent) (K, bool)

// Group is a finalized bucket together with its typed key and time span.
type Group[K cmp.Ordered] struct {
	Key       K
	Bucket    models.Bucket
	FirstSeen time.Time
	LastSeen  time.Time
	Project   string
}

// accumulator is the mutable state behind one bucket during a pass.
type accumulator struct {
	bucket    models.Bucket
	byModel   map[string]*models.ModelBreakdown
	firstSeen time.Time
	lastSeen  time.Time
	project   string
}

func newAccumulator(key string) *accumulator {
	return &accumulator{
		bucket:  models.Bucket{Key: key},
		byModel: make(map[string]*models.ModelBreakdown),
	}
}

func (a *accumulator) add(ev models.CostedEvent) {
	a.bucket.Usage = a.bucket.Usage.Add(ev.Usage)
	a.bucket.Cost += ev.Cost
	a.bucket.EventCount++

	mb, ok := a.byModel[ev.Model]
	if !ok {
		mb = &models.ModelBreakdown{Model: ev.Model}
		a.byModel[ev.Model] = mb
	}
	mb.Usage = mb.Usage.Add(ev.Usage)
	mb.Cost += ev.Cost
	mb.EventCount++

	if a.firstSeen.IsZero() || ev.Timestamp.Before(a.firstSeen) {
		a.firstSeen = ev.Timestamp
	}
	if ev.Timestamp.After(a.lastSeen) {
		a.lastSeen = ev.Timestamp
	}
	if a.project == "" {
		a.project = ev.ProjectPath
	}
}

// finalize derives totals and the sorted model list. The accumulator must
// not be used afterwards.
func (a *accumulator) finalize() models.Bucket {
	b := a.bucket
	b.TotalTokens = b.Usage.Total()
	b.Models = make([]string, 0, len(a.byModel))
	b.Breakdown = make([]models.ModelBreakdown, 0, len(a.byModel))
	for name, mb := range a.byModel {
		b.Models = append(b.Models, name)
		b.Breakdown = append(b.Breakdown, *mb)
	}
	sort.Strings(b.Models)
	sortBreakdown(b.Breakdown)
	return b
}

func sortBreakdown(bd []models.ModelBreakdown) {
	sort.Slice(bd, func(i, j int) bool {
		if bd[i].Cost != bd[j].Cost {
			return bd[i].Cost > bd[j].Cost
		}
		return bd[i].Model < bd[j].Model
	})
}

// Aggregate groups events by keyOf in a single pass and returns one group
// per distinct key, ascending by key.
func Aggregate[K cmp.Ordered](events []models.CostedEvent, keyOf KeyFunc[K]) []Group[K] {
	accs := make(map[K]*accumulator)
	for _, ev := range events {
		k, ok := keyOf(ev)
		if !ok {
			continue
		}
		acc, ok := accs[k]
		if !ok {
			acc = newAccumulator(fmt.Sprint(k))
			accs[k] = acc
		}
		acc.add(ev)
	}

	groups := make([]Group[K], 0, len(accs))
	for k, acc := range accs {
		groups = append(groups, Group[K]{
			Key:       k,
			Bucket:    acc.finalize(),
			FirstSeen: acc.firstSeen,
			LastSeen:  acc.lastSeen,
			Project:   acc.project,
		})
	}
	slices.SortFunc(groups, func(a, b Group[K]) int { return cmp.Compare(a.Key, b.Key) })
	return groups
}

func buckets[K cmp.Ordered](groups []Group[K]) []models.Bucket {
	out := make([]models.Bucket, len(groups))
	for i, g := range groups {
		out[i] = g.Bucket
	}
	return out
}

// Reverse returns a reversed copy of s. Descending views are produced this
// way, never by aggregating again.
func Reverse[T any](s []T) []T {
	out := slices.Clone(s)
	slices.Reverse(out)
	return out
}

// Total sums a view into a single bucket keyed "Total".
func Total(bs []models.Bucket) models.Bucket {
	acc := newAccumulator("Total")
	for _, b := range bs {
		acc.bucket.Usage = acc.bucket.Usage.Add(b.Usage)
		acc.bucket.Cost += b.Cost
		acc.bucket.EventCount += b.EventCount
		for _, mb := range b.Breakdown {
			cur, ok := acc.byModel[mb.Model]
			if !ok {
				cur = &models.ModelBreakdown{Model: mb.Model}
				acc.byModel[mb.Model] = cur
			}
			cur.Usage = cur.Usage.Add(mb.Usage)
			cur.Cost += mb.Cost
			cur.EventCount += mb.EventCount
		}
		for _, m := range b.Models {
			if _, ok := acc.byModel[m]; !ok {
				acc.byModel[m] = &models.ModelBreakdown{Model: m}
			}
		}
	}
	return acc.finalize()
}
