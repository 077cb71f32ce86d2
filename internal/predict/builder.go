package predict

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"snapforecast/internal/domain"
	"snapforecast/internal/features"
	"snapforecast/internal/logging"
	"snapforecast/internal/modelstore"
	"snapforecast/internal/store"
)

// DefaultBuildConcurrency bounds parallel extractions while building a training set.
const DefaultBuildConcurrency = 4

// RecordSource yields realised performance records.
type RecordSource interface {
	PerformanceRecords(ctx context.Context, filter store.PerformanceFilter) ([]domain.PerformanceRecord, error)
}

// TrainingSetBuilder turns performance records into training rows through the extractor.
type TrainingSetBuilder struct {
	Records     RecordSource
	Extractor   *features.Extractor
	Concurrency int
	Logger      logging.Logger
}

// NewTrainingSetBuilder wires a builder with the default concurrency.
func NewTrainingSetBuilder(records RecordSource, extractor *features.Extractor, logger logging.Logger) *TrainingSetBuilder {
	return &TrainingSetBuilder{
		Records:     records,
		Extractor:   extractor,
		Concurrency: DefaultBuildConcurrency,
		Logger:      logging.OrDiscard(logger),
	}
}

// Build extracts features for every record of platform. Text, campaign, temporal and history features
// are as of the moment each record was posted; profile aggregates are the stored current values.
// Row order follows record order.
func (b *TrainingSetBuilder) Build(ctx context.Context, p *Predictor, platform string, limit int) ([]modelstore.Row, error) {
	records, err := b.Records.PerformanceRecords(ctx, store.PerformanceFilter{Platform: platform, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("predict: load performance records: %w", err)
	}

	rows := make([]modelstore.Row, len(records))
	g, gctx := errgroup.WithContext(ctx)
	limitN := b.Concurrency
	if limitN <= 0 {
		limitN = DefaultBuildConcurrency
	}
	g.SetLimit(limitN)
	for i, rec := range records {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			campaign := rec.Campaign
			v := b.Extractor.Extract(gctx, features.Request{
				Text:     rec.Text,
				Identity: rec.Handle,
				Platform: platform,
				Campaign: &campaign,
				At:       rec.PostedAt,
			})
			rows[i] = p.Row(v, rec)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("predict: build training set: %w", err)
	}

	logging.OrDiscard(b.Logger).WithFields(logging.Fields{
		"platform":   platform,
		"model_type": p.Type,
		"rows":       len(rows),
	}).Info("training set built")
	return rows, nil
}
