package consolidation

import (
	"sort"
	"time"
)

// aggregateGroup is the per-product result of grouping request lines.
type aggregateGroup struct {
	ProductID      int64
	UoM            string
	TotalQty       float64
	EarliestDate   time.Time
	Priority       Priority
	ContributorIDs []int64
	RequestIDs     []int64
}

// aggregate groups request lines by product. Totals are sums, the date is
// the min effective date, the priority the max across contributors.
// Product-less lines are skipped. The result is deterministic: groups sorted
// by product id, contributors by line id.
func aggregate(lines []RequestLine) []aggregateGroup {
	byProduct := make(map[int64]*aggregateGroup)
	for _, line := range lines {
		if line.ProductID == 0 {
			continue
		}
		g, ok := byProduct[line.ProductID]
		if !ok {
			g = &aggregateGroup{
				ProductID:    line.ProductID,
				UoM:          line.UoM,
				EarliestDate: line.EffectiveDate(),
				Priority:     line.Priority.Normalize(),
			}
			byProduct[line.ProductID] = g
		}
		g.TotalQty += line.Qty
		if d := line.EffectiveDate(); !d.IsZero() && (g.EarliestDate.IsZero() || d.Before(g.EarliestDate)) {
			g.EarliestDate = d
		}
		g.Priority = MaxPriority(g.Priority, line.Priority)
		g.ContributorIDs = append(g.ContributorIDs, line.ID)
		g.RequestIDs = appendUnique(g.RequestIDs, line.RequestID)
	}

	groups := make([]aggregateGroup, 0, len(byProduct))
	for _, g := range byProduct {
		sort.Slice(g.ContributorIDs, func(i, j int) bool { return g.ContributorIDs[i] < g.ContributorIDs[j] })
		sort.Slice(g.RequestIDs, func(i, j int) bool { return g.RequestIDs[i] < g.RequestIDs[j] })
		groups = append(groups, *g)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].ProductID < groups[j].ProductID })
	return groups
}

func appendUnique(ids []int64, id int64) []int64 {
	if id == 0 {
		return ids
	}
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}

// unionRequestIDs recomputes a session's bound-request set from the
// contributor sets of its remaining lines.
func unionRequestIDs(lines []ConsolidatedLine, lookup func(lineID int64) (int64, bool)) []int64 {
	var out []int64
	for _, line := range lines {
		for _, contributorID := range line.ContributorIDs {
			if requestID, ok := lookup(contributorID); ok {
				out = appendUnique(out, requestID)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
