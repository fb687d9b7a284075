package convert

import "fmt"

// Reasons a row is skipped during conversion.
const (
	ReasonTimestamp = "unparseable timestamp"
	ReasonEndpoint  = "missing endpoint"
	ReasonPort      = "non-numeric port"
	ReasonShort     = "short row"
)

// SkippedRowError drops one row; conversion of the source continues.
type SkippedRowError struct {
	Reason string
	Value  string
}

func (e *SkippedRowError) Error() string {
	if e.Value == "" {
		return "row skipped: " + e.Reason
	}
	return fmt.Sprintf("row skipped: %s %q", e.Reason, e.Value)
}
