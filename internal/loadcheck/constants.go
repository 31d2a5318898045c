package loadcheck

// Worker configuration constants.
const (
	WorkerChannelMultiplier = 2
)

// Runner configuration constants.
const (
	PercentageMultiplier = 100
	rankSampleSize       = 25
)

// Submission outcomes as reported by the service.
const (
	outcomeApplied   = "applied"
	outcomeUnchanged = "unchanged"
	outcomeDuplicate = "duplicate"
	outcomeFailed    = "failed"
)
