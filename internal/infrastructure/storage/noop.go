package storage

import (
	"context"
	"fmt"

	"BriefingScanner/internal/domain"
	"BriefingScanner/internal/ports"
)

// NoopStore stands in when no database is configured. Saves succeed
// silently and reads come back empty.
type NoopStore struct{}

var _ ports.SnapshotStore = NoopStore{}

func (NoopStore) Save(context.Context, domain.RawPage) error { return nil }

func (NoopStore) Dates(context.Context) ([]string, error) { return nil, nil }

func (NoopStore) TickersForDate(context.Context, string) ([]string, error) { return nil, nil }

func (NoopStore) Document(_ context.Context, ticker, date string) (string, error) {
	return "", fmt.Errorf("snapshot %s/%s not found", date, ticker)
}
