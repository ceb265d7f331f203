package pipeline

// MergeBatches interleaves per-source candidate lists round-robin in batch
// order, dropping sources as they exhaust. Fairness across sources, not
// recency, is the ordering goal: a high-volume source cannot starve the
// per-cycle budget.
func MergeBatches(batches []SourceBatch) []Candidate {
	total := 0
	for _, batch := range batches {
		total += len(batch.Candidates)
	}
	if total == 0 {
		return nil
	}

	merged := make([]Candidate, 0, total)
	for offset := 0; len(merged) < total; offset++ {
		for _, batch := range batches {
			if offset < len(batch.Candidates) {
				merged = append(merged, batch.Candidates[offset])
			}
		}
	}
	return merged
}
