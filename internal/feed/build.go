package feed

import (
	"context"
	"encoding/json"
	"time"

	"eventmap/internal/dates"
	appLog "eventmap/internal/log"
	"eventmap/internal/metrics"
	"eventmap/internal/model"
)

// Resolver maps an address to a coordinate and never fails.
type Resolver interface {
	Resolve(ctx context.Context, address string) model.Coordinate
}

// Builder turns parsed rows into event records.
type Builder struct {
	resolver Resolver
	dates    *dates.Parser
}

// NewBuilder creates a Builder.
func NewBuilder(resolver Resolver, parser *dates.Parser) *Builder {
	return &Builder{resolver: resolver, dates: parser}
}

// Build converts rows one after another, waiting for each location lookup
// before moving on so geocoding requests are never fanned out. Rows missing
// a consumed column or carrying an unreadable payload are skipped. now is the
// single snapshot every archived flag is computed against. The only error is
// ctx's, together with the records built so far.
func (b *Builder) Build(ctx context.Context, rows []Row, now time.Time) ([]model.EventRecord, error) {
	out := make([]model.EventRecord, 0, len(rows))

	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return out, err
		}

		if row.Date == "" || row.Email == "" || row.Payload == "" {
			metrics.FeedRowsSkippedTotal.WithLabelValues("missing_column").Inc()
			appLog.Debug("skipping row with missing column", "line", row.Line)
			continue
		}

		var p model.Payload
		if err := json.Unmarshal([]byte(row.Payload), &p); err != nil {
			metrics.FeedRowsSkippedTotal.WithLabelValues("bad_payload").Inc()
			appLog.Warn("failed to parse event payload", "line", row.Line, "err", err.Error())
			continue
		}
		if p == (model.Payload{}) {
			metrics.FeedRowsSkippedTotal.WithLabelValues("bad_payload").Inc()
			appLog.Warn("skipping row with empty event payload", "line", row.Line)
			continue
		}

		coord := b.resolver.Resolve(ctx, p.Location)

		out = append(out, model.EventRecord{
			ID:           model.NewEventID(row.Date, row.Email),
			Name:         p.EventName,
			DateTime:     p.DateTime,
			Description:  p.Description,
			Registration: p.Registration,
			Organizer:    p.Organizer,
			Link:         p.EventLink,
			Location:     p.Location,
			Coordinates:  &coord,
			Archived:     b.dates.IsArchived(p.DateTime, now),
			Ends:         b.dates.End(p.DateTime, now).Time,
			SubmittedAt:  row.Date,
			Email:        row.Email,
		})
	}

	return out, nil
}
