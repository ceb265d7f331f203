package publish

import "time"

// Gate enforces the minimum spacing between channel posts.
type Gate struct {
	minGap time.Duration
}

func NewGate(minGap time.Duration) Gate {
	return Gate{minGap: minGap}
}

// MayPublishNow reports whether a post is allowed at now given the last
// publish timestamp. A nil lastPublished means nothing was ever posted.
func (g Gate) MayPublishNow(lastPublished *time.Time, now time.Time) bool {
	if lastPublished == nil {
		return true
	}
	return now.Sub(*lastPublished) >= g.minGap
}

// NextAllowedAt returns the earliest instant the gate opens again.
func (g Gate) NextAllowedAt(lastPublished *time.Time) time.Time {
	if lastPublished == nil {
		return time.Time{}
	}
	return lastPublished.Add(g.minGap)
}
