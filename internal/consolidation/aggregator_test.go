package consolidation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func day(s string) time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestAggregateGroupsByProduct(t *testing.T) {
	lines := []RequestLine{
		{ID: 1, RequestID: 100, ProductID: 7, UoM: "pcs", Qty: 5, RequiredDate: day("2024-03-01"), Priority: PriorityNormal},
		{ID: 2, RequestID: 101, ProductID: 7, UoM: "pcs", Qty: 3, RequiredDate: day("2024-02-15"), Priority: PriorityHigh},
		{ID: 3, RequestID: 102, ProductID: 7, UoM: "pcs", Qty: 2, RequiredDate: day("2024-04-01"), Priority: PriorityLow},
		{ID: 4, RequestID: 102, ProductID: 9, UoM: "kg", Qty: 10, RequiredDate: day("2024-03-10"), Priority: PriorityLow},
	}

	groups := aggregate(lines)
	require.Len(t, groups, 2)

	require.Equal(t, int64(7), groups[0].ProductID)
	require.InDelta(t, 10, groups[0].TotalQty, 0.0001)
	require.Equal(t, day("2024-02-15"), groups[0].EarliestDate)
	require.Equal(t, PriorityHigh, groups[0].Priority)
	require.Equal(t, []int64{1, 2, 3}, groups[0].ContributorIDs)
	require.Equal(t, []int64{100, 101, 102}, groups[0].RequestIDs)

	require.Equal(t, int64(9), groups[1].ProductID)
	require.Equal(t, []int64{4}, groups[1].ContributorIDs)
}

func TestAggregateSkipsProductlessLines(t *testing.T) {
	lines := []RequestLine{
		{ID: 1, RequestID: 100, ProductID: 0, Qty: 5},
		{ID: 2, RequestID: 100, ProductID: 3, Qty: 4, RequiredDate: day("2024-01-05")},
	}
	groups := aggregate(lines)
	require.Len(t, groups, 1)
	require.Equal(t, int64(3), groups[0].ProductID)
}

func TestAggregateEmptyInput(t *testing.T) {
	require.Empty(t, aggregate(nil))
}

func TestAggregateFallsBackToRequestDate(t *testing.T) {
	lines := []RequestLine{
		{ID: 1, RequestID: 100, ProductID: 5, Qty: 1, RequestDate: day("2024-05-01")},
		{ID: 2, RequestID: 101, ProductID: 5, Qty: 1, RequiredDate: day("2024-05-20")},
	}
	groups := aggregate(lines)
	require.Len(t, groups, 1)
	require.Equal(t, day("2024-05-01"), groups[0].EarliestDate)
}

func TestAggregateIsDeterministic(t *testing.T) {
	lines := []RequestLine{
		{ID: 3, RequestID: 102, ProductID: 7, Qty: 2},
		{ID: 1, RequestID: 100, ProductID: 7, Qty: 5},
		{ID: 2, RequestID: 101, ProductID: 2, Qty: 3},
	}
	first := aggregate(lines)
	second := aggregate(lines)
	require.Equal(t, first, second)
	require.Equal(t, int64(2), first[0].ProductID)
	require.Equal(t, []int64{1, 3}, first[1].ContributorIDs)
}

func TestAggregateNormalizesUnknownPriority(t *testing.T) {
	groups := aggregate([]RequestLine{
		{ID: 1, RequestID: 1, ProductID: 4, Qty: 1, Priority: Priority("urgent-ish")},
	})
	require.Len(t, groups, 1)
	require.Equal(t, PriorityNormal, groups[0].Priority)
}
