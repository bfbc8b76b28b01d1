// Package blocks partitions a costed event stream into billing blocks
// separated by inactivity gaps.
package blocks

import (
	"slices"
	"sort"
	"time"

	"github.com/pario-ai/ccmeter/pkg/models"
)

// builder accumulates one block while segmenting.
type builder struct {
	block   models.BillingBlock
	byModel map[string]*models.ModelBreakdown
}

func newBuilder(ev models.CostedEvent, gapBefore *time.Duration) *builder {
	b := &builder{
		block: models.BillingBlock{
			Start:     ev.Timestamp,
			GapBefore: gapBefore,
		},
		byModel: make(map[string]*models.ModelBreakdown),
	}
	b.add(ev)
	return b
}

func (b *builder) add(ev models.CostedEvent) {
	b.block.End = ev.Timestamp
	b.block.Usage = b.block.Usage.Add(ev.Usage)
	b.block.Cost += ev.Cost
	b.block.EventCount++

	mb, ok := b.byModel[ev.Model]
	if !ok {
		mb = &models.ModelBreakdown{Model: ev.Model}
		b.byModel[ev.Model] = mb
	}
	mb.Usage = mb.Usage.Add(ev.Usage)
	mb.Cost += ev.Cost
	mb.EventCount++
}

func (b *builder) finish(gapAfter *time.Duration) models.BillingBlock {
	blk := b.block
	blk.GapAfter = gapAfter
	blk.TotalTokens = blk.Usage.Total()
	blk.Models = make([]string, 0, len(b.byModel))
	blk.Breakdown = make([]models.ModelBreakdown, 0, len(b.byModel))
	for name, mb := range b.byModel {
		blk.Models = append(blk.Models, name)
		blk.Breakdown = append(blk.Breakdown, *mb)
	}
	sort.Strings(blk.Models)
	sort.Slice(blk.Breakdown, func(i, j int) bool {
		if blk.Breakdown[i].Cost != blk.Breakdown[j].Cost {
			return blk.Breakdown[i].Cost > blk.Breakdown[j].Cost
		}
		return blk.Breakdown[i].Model < blk.Breakdown[j].Model
	})
	return blk
}

// Segment splits events into billing blocks. A gap strictly shorter than
// threshold continues the current block; a gap of threshold or more starts a
// new one. The last block is active iff now - End <= threshold.
//
// events is not modified; out-of-order input is stable-sorted on a copy.
func Segment(events []models.CostedEvent, threshold time.Duration, now time.Time) []models.BillingBlock {
	if len(events) == 0 {
		return []models.BillingBlock{}
	}

	sorted := events
	if !isSorted(events) {
		sorted = slices.Clone(events)
		slices.SortStableFunc(sorted, func(a, b models.CostedEvent) int {
			return a.Timestamp.Compare(b.Timestamp)
		})
	}

	var out []models.BillingBlock
	cur := newBuilder(sorted[0], nil)
	prev := sorted[0].Timestamp

	for _, ev := range sorted[1:] {
		gap := ev.Timestamp.Sub(prev)
		prev = ev.Timestamp
		if gap < threshold {
			cur.add(ev)
			continue
		}
		// One value shared by both sides of the boundary.
		boundary := gap
		out = append(out, cur.finish(&boundary))
		cur = newBuilder(ev, &boundary)
	}

	last := cur.finish(nil)
	last.IsActive = now.Sub(last.End) <= threshold
	return append(out, last)
}

func isSorted(events []models.CostedEvent) bool {
	return slices.IsSortedFunc(events, func(a, b models.CostedEvent) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
}

// Active returns the active block, if any.
func Active(blocks []models.BillingBlock) (models.BillingBlock, bool) {
	if n := len(blocks); n > 0 && blocks[n-1].IsActive {
		return blocks[n-1], true
	}
	return models.BillingBlock{}, false
}

// Recent returns the blocks whose last event is within window of now.
func Recent(blocks []models.BillingBlock, now time.Time, window time.Duration) []models.BillingBlock {
	out := make([]models.BillingBlock, 0, len(blocks))
	for _, b := range blocks {
		if now.Sub(b.End) <= window {
			out = append(out, b)
		}
	}
	return out
}
