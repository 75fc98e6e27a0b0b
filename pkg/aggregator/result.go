package aggregator

import "time"

// Result is the aggregated outcome of one FetchAll call. Every input
// endpoint appears in exactly one of the two maps.
type Result struct {
	// Successful maps endpoint to its fetched payload.
	Successful map[string][]byte

	// Failed maps endpoint to its failure reason.
	Failed map[string]string

	// Duration is the wall-clock time for the whole batch.
	Duration time.Duration
}

// SuccessCount returns the number of successful fetches.
func (r *Result) SuccessCount() int {
	return len(r.Successful)
}

// FailureCount returns the number of failed fetches.
func (r *Result) FailureCount() int {
	return len(r.Failed)
}

// TotalCount returns the total number of endpoints processed.
func (r *Result) TotalCount() int {
	return len(r.Successful) + len(r.Failed)
}

// Progress describes one endpoint reaching a terminal outcome. Events are
// delivered in completion order with a monotonically increasing Completed
// counter; Total is the batch size.
type Progress struct {
	Completed int
	Total     int
	Endpoint  string
	Succeeded bool
	Err       string
}

// ProgressFunc receives progress events during FetchAll. The callback is
// invoked synchronously after each endpoint's outcome is final; it should
// return quickly. Panics inside the callback are recovered and logged,
// never aborting the orchestration.
type ProgressFunc func(Progress)
