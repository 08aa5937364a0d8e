package scholarship

import "sort"

// Buckets is the display classification of a scholar's history. It is
// derived, never stored: current is the dormant record awaiting release,
// inReview covers released records still moving through the chain, and
// previous holds settled records, most recent period first.
type Buckets struct {
	Current  *Record
	InReview []Record
	Previous []Record
}

// Classify buckets a scholar's full record set in one pass. Well-formed
// data has at most one current record; if more appear the earliest period
// is treated as current and the rest are ignored rather than erroring.
func Classify(records []Record) Buckets {
	var b Buckets
	sorted := append([]Record(nil), records...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Period.Before(sorted[j].Period)
	})
	for i := range sorted {
		rec := sorted[i]
		switch {
		case rec.Status == RecordPending && !rec.Released:
			if b.Current == nil {
				current := rec
				b.Current = &current
			}
		case rec.Released && rec.Status == RecordPending:
			b.InReview = append(b.InReview, rec)
		case rec.Released && rec.Status != RecordPending:
			b.Previous = append(b.Previous, rec)
		}
	}
	sort.Slice(b.Previous, func(i, j int) bool {
		return b.Previous[j].Period.Before(b.Previous[i].Period)
	})
	return b
}

// PendingForRole filters an approver's record set down to those whose
// active stage awaits the viewer's role. Stages are supplied alongside so
// no per-record refetch is needed.
func PendingForRole(records []Record, stages map[int64][]Stage, role Role) []Record {
	rank := role.Rank()
	if rank == 0 {
		return nil
	}
	var out []Record
	for _, rec := range records {
		if rec.Status.Terminal() || !rec.Released {
			continue
		}
		active := ActiveStage(stages[rec.ID])
		if active != nil && active.Role.Rank() == rank {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Period.Before(out[j].Period)
	})
	return out
}

// SortLedger orders a stage ledger by chain position for display, FAC
// first. Within the same rank the decided stage precedes an open one.
func SortLedger(stages []Stage) []Stage {
	sorted := append([]Stage(nil), stages...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Role.Rank() < sorted[j].Role.Rank()
	})
	return sorted
}
