package models

// Outcome tags the result of a call to an external collaborator so callers
// branch on the tag instead of inspecting error types.
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeTransient Outcome = "transient"
	OutcomePermanent Outcome = "permanent"
)

// Retryable reports whether the call may succeed if repeated.
func (o Outcome) Retryable() bool { return o == OutcomeTransient }

// QuoteResult is the tagged result of a single-ticker price lookup.
type QuoteResult struct {
	Quote   *PriceQuote
	Outcome Outcome
	Err     error
}

// BulkResult is the tagged result of a batched price lookup. Quotes holds
// whatever tickers the source returned; a missing ticker is not an error.
type BulkResult struct {
	Quotes  map[string]PriceQuote
	Outcome Outcome
	Err     error
}

// AnalysisResult is the tagged result of one call to an AI analysis service.
type AnalysisResult struct {
	Text    string
	Outcome Outcome
	Err     error
}
