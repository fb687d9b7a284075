package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/telhawk-systems/flowhawk/common/logging"
	"github.com/telhawk-systems/flowhawk/internal/convert"
	"github.com/telhawk-systems/flowhawk/internal/dataset"
	"github.com/telhawk-systems/flowhawk/internal/models"
	flownats "github.com/telhawk-systems/flowhawk/internal/nats"
	"github.com/telhawk-systems/flowhawk/internal/pipeline"
	"github.com/telhawk-systems/flowhawk/internal/registry"
	"github.com/telhawk-systems/flowhawk/internal/tabular"
)

// ReferenceDatasetID selects the configured reference dataset.
const ReferenceDatasetID = "__reference__"

// SourceDatasetSimulation tags alerts replayed from a dataset.
const SourceDatasetSimulation = "dataset_simulation"

const (
	PreviewRows          = 5
	DefaultSimulateCount = 1
	MaxSimulateCount     = 50
	// DefaultMaxUploadBytes bounds an upload when no limit is configured.
	DefaultMaxUploadBytes = 256 << 20
)

var (
	ErrUnsupportedFile    = errors.New("only CSV files are accepted")
	ErrUploadTooLarge     = errors.New("upload exceeds the size limit")
	ErrDatasetRequired    = errors.New("provide dataset_id or enable use_default")
	ErrNoReferenceDataset = errors.New("no reference dataset configured")
	ErrNoDefaultDataset   = errors.New("no default dataset configured")
	ErrDatasetFileMissing = errors.New("dataset file not found")
	ErrUnknownAttackType  = errors.New("unknown attack type")
	ErrInvalidCount       = errors.New("count must be between 1 and 50")
	ErrNoAlerts           = errors.New("no alerts were generated")
)

// DatasetStore is the dataset catalog.
type DatasetStore interface {
	Register(ctx context.Context, d *models.Dataset) error
	Get(ctx context.Context, id string) (*models.Dataset, error)
	List(ctx context.Context) ([]*models.Dataset, error)
	Delete(ctx context.Context, id string) error
}

// AlertCreator persists replayed alerts.
type AlertCreator interface {
	CreateAlert(ctx context.Context, a models.Alert, source string) (*models.Alert, error)
}

// DatasetEvents announces dataset activity.
type DatasetEvents interface {
	PublishDatasetRegistered(ctx context.Context, d models.Dataset) error
	PublishSimulationCompleted(ctx context.Context, e flownats.SimulationCompletedEvent) error
}

// DatasetConfig locates dataset files.
type DatasetConfig struct {
	UploadDir string
	// ReferencePath is served under ReferenceDatasetID.
	ReferencePath string
	// DefaultPath may name a file, a directory (newest *.csv wins) or a
	// glob pattern (newest match wins).
	DefaultPath    string
	MaxUploadBytes int64
}

// DatasetService uploads, previews and replays flow datasets.
type DatasetService struct {
	cfg      DatasetConfig
	store    DatasetStore
	pipeline *pipeline.Pipeline
	alerts   AlertCreator
	events   DatasetEvents
	logger   *logging.Logger
}

// NewDatasetService creates a new DatasetService. events may be nil.
func NewDatasetService(cfg DatasetConfig, store DatasetStore, p *pipeline.Pipeline, alerts AlertCreator, events DatasetEvents, logger *logging.Logger) *DatasetService {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}
	return &DatasetService{cfg: cfg, store: store, pipeline: p, alerts: alerts, events: events, logger: logger}
}

// UploadResult describes an accepted upload.
type UploadResult struct {
	Dataset models.Dataset      `json:"dataset"`
	Columns []string            `json:"columns"`
	Preview []map[string]string `json:"preview"`
}

// Upload validates a CSV, converts a raw flow export to a connection log,
// stores the file under the upload directory and registers it.
func (s *DatasetService) Upload(ctx context.Context, filename string, r io.Reader) (*UploadResult, error) {
	if !strings.HasSuffix(strings.ToLower(filename), ".csv") {
		return nil, ErrUnsupportedFile
	}

	raw, err := io.ReadAll(io.LimitReader(r, s.cfg.MaxUploadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	if int64(len(raw)) > s.cfg.MaxUploadBytes {
		return nil, ErrUploadTooLarge
	}

	header, rows, err := tabular.Preview(bytes.NewReader(raw), PreviewRows)
	if err != nil {
		return nil, fmt.Errorf("failed to parse upload: %w", err)
	}
	kind, err := s.pipeline.Detector().Detect(header)
	if err != nil {
		return nil, err
	}

	content := raw
	if kind == dataset.KindRawFlowExport {
		name := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
		if len(name) > 50 {
			name = name[:50]
		}
		var buf bytes.Buffer
		stats, err := convert.NewConverter(name, filename).Convert(ctx, bytes.NewReader(raw), &buf)
		if err != nil {
			return nil, err
		}
		s.logger.InfoContext(ctx, "converted flow export",
			logging.Rows(stats.Written),
			logging.Skipped(stats.Skipped),
		)
		content = buf.Bytes()
		header, rows, err = tabular.Preview(bytes.NewReader(content), PreviewRows)
		if err != nil {
			return nil, fmt.Errorf("failed to parse converted upload: %w", err)
		}
		if missing := header.Missing(dataset.ConnLogRequired); len(missing) > 0 {
			return nil, &dataset.MalformedSourceError{Reason: "converted dataset is incomplete", Missing: missing}
		}
		kind = dataset.KindConnectionLog
	}

	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	if err := os.MkdirAll(s.cfg.UploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	path := filepath.Join(s.cfg.UploadDir, id+".csv")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return nil, fmt.Errorf("failed to store upload: %w", err)
	}

	d := models.Dataset{
		ID:        id,
		Name:      strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename)),
		Filename:  filename,
		Path:      path,
		Kind:      string(kind),
		Source:    models.DatasetSourceUploaded,
		SizeBytes: int64(len(content)),
		Columns:   header.Names(),
	}
	if err := s.store.Register(ctx, &d); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("failed to register dataset: %w", err)
	}
	if s.events != nil {
		if err := s.events.PublishDatasetRegistered(ctx, d); err != nil {
			s.logger.WarnContext(ctx, "failed to publish dataset event", logging.DatasetID(d.ID), logging.Error(err))
		}
	}

	s.logger.InfoContext(ctx, "dataset uploaded",
		logging.DatasetID(d.ID),
		logging.DatasetKind(d.Kind),
	)
	return &UploadResult{Dataset: d, Columns: header.Names(), Preview: rowMaps(rows)}, nil
}

// List returns every uploaded dataset, newest first.
func (s *DatasetService) List(ctx context.Context) ([]*models.Dataset, error) {
	return s.store.List(ctx)
}

// Delete unregisters an uploaded dataset and removes its file.
func (s *DatasetService) Delete(ctx context.Context, id string) error {
	d, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	if err := os.Remove(d.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.WarnContext(ctx, "failed to remove dataset file", logging.DatasetID(id), logging.Error(err))
	}
	return nil
}

// target is a resolved dataset file.
type target struct {
	path   string
	id     string
	source string
}

func (t target) label() string {
	switch t.source {
	case models.DatasetSourceReference:
		return "Reference dataset"
	case models.DatasetSourceDefault:
		return "Synced dataset"
	default:
		return "Custom dataset"
	}
}

func (s *DatasetService) resolve(ctx context.Context, id string, useDefault bool) (target, error) {
	switch {
	case id == ReferenceDatasetID:
		if s.cfg.ReferencePath == "" {
			return target{}, ErrNoReferenceDataset
		}
		if _, err := os.Stat(s.cfg.ReferencePath); err != nil {
			return target{}, fmt.Errorf("%w: %s", ErrDatasetFileMissing, s.cfg.ReferencePath)
		}
		return target{path: s.cfg.ReferencePath, id: ReferenceDatasetID, source: models.DatasetSourceReference}, nil

	case id != "":
		d, err := s.store.Get(ctx, id)
		if err != nil {
			return target{}, err
		}
		return target{path: d.Path, id: d.ID, source: models.DatasetSourceUploaded}, nil
	}

	if !useDefault {
		return target{}, ErrDatasetRequired
	}
	if s.cfg.DefaultPath == "" {
		return target{}, ErrNoDefaultDataset
	}
	path, err := resolveDefaultPath(s.cfg.DefaultPath)
	if err != nil {
		return target{}, err
	}
	return target{path: path, source: models.DatasetSourceDefault}, nil
}

// resolveDefaultPath accepts a file, a directory or a glob pattern.
func resolveDefaultPath(p string) (string, error) {
	if strings.ContainsAny(p, "*?[") {
		matches, err := filepath.Glob(p)
		if err != nil {
			return "", fmt.Errorf("invalid dataset pattern %q: %w", p, err)
		}
		return newestFile(matches, p)
	}

	info, err := os.Stat(p)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrDatasetFileMissing, p)
	}
	if !info.IsDir() {
		return p, nil
	}
	matches, err := filepath.Glob(filepath.Join(p, "*.csv"))
	if err != nil {
		return "", err
	}
	return newestFile(matches, p)
}

func newestFile(paths []string, origin string) (string, error) {
	type candidate struct {
		path string
		mod  time.Time
	}
	var files []candidate
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		files = append(files, candidate{p, info.ModTime()})
	}
	if len(files) == 0 {
		return "", fmt.Errorf("%w: no CSV files for %s", ErrDatasetFileMissing, origin)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].mod.After(files[j].mod) })
	return files[0].path, nil
}

// openTable opens path and detects its kind from the header.
func (s *DatasetService) openTable(path string) (*tabular.Reader, dataset.Kind, func() error, error) {
	rc, err := tabular.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, "", nil, fmt.Errorf("%w: %s", ErrDatasetFileMissing, path)
	}
	if err != nil {
		return nil, "", nil, fmt.Errorf("failed to open dataset: %w", err)
	}
	r, err := tabular.NewReader(rc)
	if err != nil {
		rc.Close()
		return nil, "", nil, fmt.Errorf("failed to read dataset: %w", err)
	}
	kind, err := s.pipeline.Detector().Detect(r.Header())
	if err != nil {
		rc.Close()
		return nil, "", nil, err
	}
	return r, kind, rc.Close, nil
}

// PreviewResult is the head of a dataset.
type PreviewResult struct {
	DatasetID string              `json:"dataset_id,omitempty"`
	Source    string              `json:"source"`
	Kind      dataset.Kind        `json:"kind"`
	Columns   []string            `json:"columns"`
	Preview   []map[string]string `json:"preview"`
}

// Preview returns the header and first rows of a dataset.
func (s *DatasetService) Preview(ctx context.Context, id string, useDefault bool) (*PreviewResult, error) {
	t, err := s.resolve(ctx, id, useDefault)
	if err != nil {
		return nil, err
	}
	r, kind, closeFn, err := s.openTable(t.path)
	if err != nil {
		return nil, err
	}
	defer closeFn()

	var rows []tabular.RawRow
	for len(rows) < PreviewRows {
		row, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read dataset: %w", err)
		}
		rows = append(rows, row)
	}
	return &PreviewResult{
		DatasetID: t.id,
		Source:    t.source,
		Kind:      kind,
		Columns:   r.Header().Names(),
		Preview:   rowMaps(rows),
	}, nil
}

// SimulateRequest selects a dataset and how many alerts to replay from it.
type SimulateRequest struct {
	DatasetID  string `json:"dataset_id,omitempty"`
	UseDefault bool   `json:"use_default"`
	AttackType string `json:"attack_type,omitempty"`
	Count      int    `json:"count"`
}

// SimulateResult lists the alerts created by a replay.
type SimulateResult struct {
	Ingested    int               `json:"ingested"`
	DatasetID   string            `json:"dataset_id,omitempty"`
	UsedDefault bool              `json:"used_default"`
	AttackType  models.AttackType `json:"attack_type,omitempty"`
	Alerts      []*models.Alert   `json:"alerts"`
	Stats       pipeline.Stats    `json:"stats"`
}

// Simulate streams a dataset through the classifier and stores up to Count
// alerts, optionally only those of one attack type.
func (s *DatasetService) Simulate(ctx context.Context, req SimulateRequest) (*SimulateResult, error) {
	if req.Count == 0 {
		req.Count = DefaultSimulateCount
	}
	if req.Count < 1 || req.Count > MaxSimulateCount {
		return nil, ErrInvalidCount
	}
	var attack models.AttackType
	if req.AttackType != "" {
		a, ok := models.ParseAttackType(req.AttackType)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownAttackType, req.AttackType)
		}
		attack = a
	}

	t, err := s.resolve(ctx, req.DatasetID, req.UseDefault)
	if err != nil {
		return nil, err
	}
	r, kind, closeFn, err := s.openTable(t.path)
	if err != nil {
		return nil, err
	}
	defer closeFn()

	res := &SimulateResult{
		DatasetID:   t.id,
		UsedDefault: t.source == models.DatasetSourceDefault,
		AttackType:  attack,
		Alerts:      []*models.Alert{},
	}
	p := s.pipeline.ForSource(filepath.Base(t.path), t.path)
	stats, err := p.Run(ctx, kind, pipeline.FromReader(r), func(out pipeline.Result) error {
		if attack != "" && out.Alert.AttackType != attack {
			return nil
		}
		a := out.Alert
		a.Meta[models.MetaDatasetLabel] = t.label()
		a.Meta[models.MetaDatasetSource] = t.source
		if t.id != "" {
			a.Meta[models.MetaDatasetID] = t.id
		}
		created, err := s.alerts.CreateAlert(ctx, a, SourceDatasetSimulation)
		if err != nil {
			return err
		}
		res.Alerts = append(res.Alerts, created)
		if len(res.Alerts) >= req.Count {
			return pipeline.ErrStop
		}
		return nil
	})
	res.Stats = stats
	res.Ingested = len(res.Alerts)
	if err != nil {
		return res, fmt.Errorf("simulation failed: %w", err)
	}
	if res.Ingested == 0 {
		if attack != "" {
			return res, fmt.Errorf("%w: no rows produce attack type %s", ErrNoAlerts, attack)
		}
		return res, ErrNoAlerts
	}

	if s.events != nil {
		e := flownats.SimulationCompletedEvent{
			DatasetID:  t.id,
			Source:     t.source,
			AttackType: string(attack),
			Ingested:   res.Ingested,
		}
		if err := s.events.PublishSimulationCompleted(ctx, e); err != nil {
			s.logger.WarnContext(ctx, "failed to publish simulation event", logging.Error(err))
		}
	}
	s.logger.InfoContext(ctx, "dataset simulated",
		logging.DatasetID(t.id),
		logging.DatasetKind(string(kind)),
		logging.Source(t.source),
		logging.Rows(stats.Rows),
		logging.Skipped(stats.Skipped),
	)
	return res, nil
}

// IsNotFound reports whether err means the requested dataset or file does
// not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, registry.ErrDatasetNotFound) || errors.Is(err, ErrDatasetFileMissing) || errors.Is(err, ErrNoAlerts)
}

func rowMaps(rows []tabular.RawRow) []map[string]string {
	out := make([]map[string]string, len(rows))
	for i, row := range rows {
		out[i] = row.Map()
	}
	return out
}
