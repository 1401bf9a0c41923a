package climate

import "sort"

// Merge combines record batches keyed by date. When two records share a date
// the later one in batch order wins. The result is sorted ascending by date,
// and merging an already merged sequence with itself returns it unchanged.
func Merge(batches ...[]DailyRecord) []DailyRecord {
	byDate := make(map[string]DailyRecord)
	for _, batch := range batches {
		for _, rec := range batch {
			byDate[rec.Date] = rec
		}
	}

	merged := make([]DailyRecord, 0, len(byDate))
	for _, rec := range byDate {
		merged = append(merged, rec)
	}
	// ISO dates sort lexically in calendar order.
	sort.Slice(merged, func(i, j int) bool { return merged[i].Date < merged[j].Date })
	return merged
}
