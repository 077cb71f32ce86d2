package modelstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"snapforecast/internal/logging"
	"snapforecast/internal/metrics"
)

// VersionLayout formats version identifiers; versions sort lexically in time order.
const VersionLayout = "20060102T150405.000000000Z"

// LatestVersion is the alias resolved through the pointer object.
const LatestVersion = "latest"

const (
	modelFile    = "model.json"
	metadataFile = "metadata.json"
)

// Options tune a Store.
type Options struct {
	Algorithms []string
	Seed       int64
	Now        func() time.Time
}

// Store owns the artifact backend, the training pool and the keyed cache of loaded ensembles.
// Cached entries are filled on first load or train and never evicted.
type Store struct {
	objects ObjectStore
	pool    *TrainingPool
	logger  logging.Logger
	metrics *metrics.Metrics
	opts    Options

	mu     sync.RWMutex
	cache  map[cacheKey]*Ensemble
	status map[cacheKey]Status
}

type cacheKey struct {
	platform  string
	modelType ModelType
}

// NewStore wires a store. A nil pool runs training on a single worker.
func NewStore(objects ObjectStore, pool *TrainingPool, opts Options, logger logging.Logger, m *metrics.Metrics) *Store {
	if pool == nil {
		pool = NewTrainingPool(1)
	}
	if opts.Seed == 0 {
		opts.Seed = 42
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Store{
		objects: objects,
		pool:    pool,
		logger:  logging.OrDiscard(logger),
		metrics: metrics.OrNop(m),
		opts:    opts,
		cache:   make(map[cacheKey]*Ensemble),
		status:  make(map[cacheKey]Status),
	}
}

// TrainOption adjusts one training run.
type TrainOption func(*FitConfig)

// WithFeatureDefaults fills absent features in training rows and, through metadata, at prediction time.
func WithFeatureDefaults(defaults map[string]float64) TrainOption {
	return func(c *FitConfig) { c.Defaults = defaults }
}

// TrainingReport summarises a successful run.
type TrainingReport struct {
	RunID    string                      `json:"run_id"`
	Platform string                      `json:"platform"`
	Type     ModelType                   `json:"model_type"`
	Version  string                      `json:"version"`
	Location string                      `json:"location"`
	Rows     int                         `json:"rows"`
	Features int                         `json:"features"`
	Metrics  map[string]AlgorithmMetrics `json:"metrics"`
	Duration time.Duration               `json:"duration_ns"`
}

// Train fits, saves and caches a new ensemble version. Below the type's minimum row count it fails
// with *InsufficientDataError before anything is written.
func (s *Store) Train(ctx context.Context, platform string, t ModelType, rows []Row, opts ...TrainOption) (*TrainingReport, error) {
	platform = normalizePlatform(platform)
	if err := checkName("platform", platform); err != nil {
		return nil, err
	}
	if required := t.MinRows(); len(rows) < required {
		s.metrics.TrainingRuns.WithLabelValues(string(t), "insufficient_data").Inc()
		return nil, &InsufficientDataError{ModelType: t, Found: len(rows), Required: required}
	}

	key := cacheKey{platform, t}
	previous := s.setStatus(key, StatusTraining)
	start := time.Now()
	runID := uuid.NewString()

	cfg := FitConfig{Algorithms: s.opts.Algorithms, Seed: s.opts.Seed, Now: s.opts.Now()}
	for _, opt := range opts {
		opt(&cfg)
	}

	var ensemble *Ensemble
	err := s.pool.Run(ctx, func() error {
		var fitErr error
		ensemble, fitErr = FitEnsemble(platform, t, rows, cfg)
		return fitErr
	})
	var location string
	if err == nil {
		ensemble.Meta.RunID = runID
		location, err = s.Save(ctx, ensemble)
	}
	if err != nil {
		s.setStatus(key, previous)
		s.metrics.TrainingRuns.WithLabelValues(string(t), "error").Inc()
		return nil, fmt.Errorf("modelstore: train %s/%s: %w", platform, t, err)
	}

	s.mu.Lock()
	s.cache[key] = ensemble
	s.status[key] = StatusTrained
	s.mu.Unlock()

	elapsed := time.Since(start)
	s.metrics.TrainingRuns.WithLabelValues(string(t), "success").Inc()
	s.metrics.TrainingDuration.WithLabelValues(string(t)).Observe(elapsed.Seconds())

	fields := logging.Fields{
		"platform":   platform,
		"model_type": t,
		"version":    ensemble.Meta.Version,
		"rows":       len(rows),
		"run_id":     runID,
	}
	for name, m := range ensemble.Meta.Metrics {
		fields["rmse_"+name] = m.RMSE
	}
	s.logger.WithFields(fields).Info("ensemble trained")

	return &TrainingReport{
		RunID:    runID,
		Platform: platform,
		Type:     t,
		Version:  ensemble.Meta.Version,
		Location: location,
		Rows:     len(rows),
		Features: len(ensemble.Meta.FeatureNames),
		Metrics:  ensemble.Meta.Metrics,
		Duration: elapsed,
	}, nil
}

// Save writes the versioned model and metadata, then replaces the latest pointer in one write.
// It assigns a version when the ensemble has none and returns the version's key prefix.
func (s *Store) Save(ctx context.Context, e *Ensemble) (string, error) {
	if e.Meta.Version == "" {
		ts := e.Meta.TrainedAt
		if ts.IsZero() {
			ts = s.opts.Now()
		}
		e.Meta.Version = ts.UTC().Format(VersionLayout)
	}
	if err := checkKey(e.Meta.Platform, e.Meta.Version); err != nil {
		return "", err
	}
	dir := versionPrefix(e.Meta.Platform, e.Meta.ModelType, e.Meta.Version)

	model, err := e.marshalModel()
	if err != nil {
		return "", err
	}
	meta, err := json.MarshalIndent(e.Meta, "", "  ")
	if err != nil {
		return "", fmt.Errorf("modelstore: encode metadata: %w", err)
	}
	if err := s.objects.Put(ctx, path.Join(dir, modelFile), model); err != nil {
		return "", err
	}
	if err := s.objects.Put(ctx, path.Join(dir, metadataFile), meta); err != nil {
		return "", err
	}
	// The pointer is the only object readers resolve "latest" through.
	if err := s.objects.Put(ctx, latestPointer(e.Meta.Platform, e.Meta.ModelType), meta); err != nil {
		return "", err
	}
	return dir, nil
}

// Load returns an ensemble by version, or the latest one when version is "" or "latest".
func (s *Store) Load(ctx context.Context, platform string, t ModelType, version string) (*Ensemble, error) {
	platform = normalizePlatform(platform)
	key := cacheKey{platform, t}
	latest := version == "" || version == LatestVersion
	if err := checkKey(platform, version); err != nil {
		return nil, err
	}

	if latest {
		s.mu.RLock()
		cached, ok := s.cache[key]
		s.mu.RUnlock()
		if ok {
			return cached, nil
		}
		meta, err := s.Metadata(ctx, platform, t, LatestVersion)
		if err != nil {
			return nil, err
		}
		version = meta.Version
	}

	dir := versionPrefix(platform, t, version)
	model, err := s.get(ctx, path.Join(dir, modelFile), platform, t, version)
	if err != nil {
		return nil, err
	}
	meta, err := s.get(ctx, path.Join(dir, metadataFile), platform, t, version)
	if err != nil {
		return nil, err
	}
	e, err := unmarshalEnsemble(model, meta)
	if err != nil {
		return nil, err
	}

	if latest {
		s.mu.Lock()
		if _, ok := s.cache[key]; !ok {
			s.cache[key] = e
			s.status[key] = StatusTrained
		}
		e = s.cache[key]
		s.mu.Unlock()
	}
	return e, nil
}

// Predict loads the latest ensemble for the key and runs it.
func (s *Store) Predict(ctx context.Context, platform string, t ModelType, features map[string]float64) (Prediction, *Ensemble, error) {
	e, err := s.Load(ctx, platform, t, LatestVersion)
	if err != nil {
		return Prediction{}, nil, err
	}
	return e.Predict(features), e, nil
}

// Metadata reads metadata.json for a version, or the latest pointer.
func (s *Store) Metadata(ctx context.Context, platform string, t ModelType, version string) (Metadata, error) {
	platform = normalizePlatform(platform)
	if err := checkKey(platform, version); err != nil {
		return Metadata{}, err
	}
	key := latestPointer(platform, t)
	if version != "" && version != LatestVersion {
		key = path.Join(versionPrefix(platform, t, version), metadataFile)
	}
	data, err := s.get(ctx, key, platform, t, version)
	if err != nil {
		return Metadata{}, err
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return Metadata{}, fmt.Errorf("modelstore: decode metadata: %w", err)
	}
	return meta, nil
}

// Versions lists stored versions, newest first.
func (s *Store) Versions(ctx context.Context, platform string, t ModelType) ([]string, error) {
	platform = normalizePlatform(platform)
	if err := checkName("platform", platform); err != nil {
		return nil, err
	}
	prefix := typePrefix(platform, t)
	keys, err := s.objects.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	var versions []string
	for _, k := range keys {
		rest := strings.TrimPrefix(k, prefix)
		version, file, ok := strings.Cut(rest, "/")
		if !ok || version == LatestVersion || file != metadataFile {
			continue
		}
		if _, dup := seen[version]; dup {
			continue
		}
		seen[version] = struct{}{}
		versions = append(versions, version)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(versions)))
	return versions, nil
}

// Status reports the lifecycle state of a key as seen by this process.
func (s *Store) Status(platform string, t ModelType) Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if st, ok := s.status[cacheKey{normalizePlatform(platform), t}]; ok {
		return st
	}
	return StatusUntrained
}

// Wait blocks until in-flight training jobs return.
func (s *Store) Wait() { s.pool.Wait() }

func (s *Store) setStatus(key cacheKey, st Status) Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.status[key]
	if !ok {
		prev = StatusUntrained
	}
	s.status[key] = st
	return prev
}

func (s *Store) get(ctx context.Context, key, platform string, t ModelType, version string) ([]byte, error) {
	data, err := s.objects.Get(ctx, key)
	if errors.Is(err, ErrObjectNotFound) {
		if version == "" {
			version = LatestVersion
		}
		return nil, fmt.Errorf("%w: %s/%s@%s", ErrModelNotFound, platform, t, version)
	}
	return data, err
}

// checkKey validates the caller-supplied parts of an artifact key. Empty and "latest" versions are aliases.
func checkKey(platform, version string) error {
	if err := checkName("platform", platform); err != nil {
		return err
	}
	if version == "" || version == LatestVersion {
		return nil
	}
	return checkName("version", version)
}

func typePrefix(platform string, t ModelType) string {
	return "models/" + platform + "/" + string(t) + "/"
}

func versionPrefix(platform string, t ModelType, version string) string {
	return typePrefix(platform, t) + version
}

func latestPointer(platform string, t ModelType) string {
	return typePrefix(platform, t) + LatestVersion + "/" + metadataFile
}

func normalizePlatform(p string) string {
	p = strings.ToLower(strings.TrimSpace(p))
	if p == "" {
		return "default"
	}
	return p
}
