package domain

import "errors"

// Pipeline error taxonomy. Adapters wrap these with fmt.Errorf("...: %w")
// so callers can branch with errors.Is while logs keep the cause chain.
var (
	// ErrFetchTimeout marks a page render that exceeded its deadline.
	ErrFetchTimeout = errors.New("page fetch timed out")

	// ErrFetch marks a navigation or render failure other than a timeout.
	ErrFetch = errors.New("page fetch failed")

	// ErrDeliveryFormat marks a briefing that could not be formatted.
	ErrDeliveryFormat = errors.New("briefing formatting failed")

	// ErrDeliveryChannel marks a send rejected by the delivery channel.
	ErrDeliveryChannel = errors.New("delivery channel send failed")
)
