package cache

// Stats tracks the four access categories of spec §3/§4.5, generalized
// from the teacher's Hits/Misses/Evictions into the four-way access
// result this cache distinguishes, plus a tracing ID for correlating a
// burst of accesses in logs.
type Stats struct {
	InvalidKeyCount int64
	NullHitCount    int64
	NonNullHitCount int64
	MissCount       int64
	TraceID         int64
}

// TotalAccesses is the sum of every access category.
func (s Stats) TotalAccesses() int64 {
	return s.InvalidKeyCount + s.NullHitCount + s.NonNullHitCount + s.MissCount
}

// HitRate is (nullHit+nonNullHit) / max(1, totalAccesses - invalidKey).
func (s Stats) HitRate() float64 {
	denom := s.TotalAccesses() - s.InvalidKeyCount
	if denom < 1 {
		denom = 1
	}
	return float64(s.NullHitCount+s.NonNullHitCount) / float64(denom)
}

// SuccessRate is (nullHit+nonNullHit) / max(1, totalAccesses).
func (s Stats) SuccessRate() float64 {
	denom := s.TotalAccesses()
	if denom < 1 {
		denom = 1
	}
	return float64(s.NullHitCount+s.NonNullHitCount) / float64(denom)
}
