package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"k8s.io/klog/v2"

	"github.com/elevated-systems/compute-gardener-window/pkg/computegardener/clock"
	"github.com/elevated-systems/compute-gardener-window/pkg/computegardener/window"
)

// DefaultRecentLimit is used when Recent is called without a positive limit
const DefaultRecentLimit = 20

// DecisionRecord is one persisted decision
type DecisionRecord struct {
	ID                 string        `json:"id"`
	Region             string        `json:"region"`
	EvaluatedAt        time.Time     `json:"evaluatedAt"`
	IsOptimalWindowNow bool          `json:"isOptimalWindowNow"`
	OptimalWindow      time.Time     `json:"optimalWindow"`
	Reason             window.Reason `json:"reason"`
	CandidatePoints    int           `json:"candidatePoints"`
	GeneratedAt        time.Time     `json:"generatedAt"`
	RecordedAt         time.Time     `json:"recordedAt"`
}

// Store persists decisions in a local SQLite database
type Store struct {
	db       *sql.DB
	dbPath   string
	clock    clock.Clock
	mutex    sync.RWMutex
	prepared map[string]*sql.Stmt
}

// Option customizes a Store
type Option func(*Store)

// WithClock sets the clock used for record and retention timestamps
func WithClock(c clock.Clock) Option {
	return func(s *Store) {
		s.clock = clock.OrReal(c)
	}
}

// Open opens or creates the database at dbPath
func Open(dbPath string, opts ...Option) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_sync=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{
		db:       db,
		dbPath:   dbPath,
		clock:    clock.RealClock{},
		prepared: make(map[string]*sql.Stmt),
	}
	for _, opt := range opts {
		opt(store)
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	if err := store.prepareStatements(); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	klog.V(2).InfoS("Opened decision history", "path", dbPath)
	return store, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS window_decisions (
		id TEXT PRIMARY KEY,
		region TEXT NOT NULL,
		evaluated_at DATETIME NOT NULL,
		is_optimal_now BOOLEAN NOT NULL,
		optimal_window DATETIME NOT NULL,
		reason TEXT NOT NULL,
		candidate_points INTEGER NOT NULL,
		generated_at DATETIME,
		recorded_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_decisions_region_evaluated ON window_decisions(region, evaluated_at);
	CREATE INDEX IF NOT EXISTS idx_decisions_recorded_at ON window_decisions(recorded_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) prepareStatements() error {
	statements := map[string]string{
		"insert": `
			INSERT INTO window_decisions (
				id, region, evaluated_at, is_optimal_now, optimal_window,
				reason, candidate_points, generated_at, recorded_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
		"select_recent": `
			SELECT id, region, evaluated_at, is_optimal_now, optimal_window,
				   reason, candidate_points, generated_at, recorded_at
			FROM window_decisions
			WHERE region = ?
			ORDER BY evaluated_at DESC, recorded_at DESC
			LIMIT ?
		`,
		"cleanup": `
			DELETE FROM window_decisions
			WHERE recorded_at < ?
		`,
	}

	for name, query := range statements {
		stmt, err := s.db.Prepare(query)
		if err != nil {
			return fmt.Errorf("failed to prepare statement %s: %w", name, err)
		}
		s.prepared[name] = stmt
	}

	return nil
}

// Record saves a decision. A missing ID or RecordedAt is filled in.
func (s *Store) Record(ctx context.Context, record DecisionRecord) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.RecordedAt.IsZero() {
		record.RecordedAt = s.clock.Now()
	}

	_, err := s.prepared["insert"].ExecContext(ctx,
		record.ID,
		record.Region,
		record.EvaluatedAt.UTC(),
		record.IsOptimalWindowNow,
		record.OptimalWindow.UTC(),
		string(record.Reason),
		record.CandidatePoints,
		record.GeneratedAt.UTC(),
		record.RecordedAt.UTC(),
	)
	if err != nil {
		klog.V(2).InfoS("Failed to store decision record", "error", err, "region", record.Region)
		return fmt.Errorf("failed to store record: %w", err)
	}

	klog.V(3).InfoS("Stored decision record",
		"id", record.ID,
		"region", record.Region,
		"evaluatedAt", record.EvaluatedAt,
		"reason", record.Reason)
	return nil
}

// RecordDecision stores a decision produced by the window facade
func (s *Store) RecordDecision(ctx context.Context, resp *window.OptimalWindowResponse) error {
	if resp == nil {
		return fmt.Errorf("decision is nil")
	}
	return s.Record(ctx, DecisionRecord{
		Region:             resp.Region,
		EvaluatedAt:        resp.EvaluatedAt,
		IsOptimalWindowNow: resp.IsOptimalWindowNow,
		OptimalWindow:      resp.OptimalWindow,
		Reason:             resp.Reason,
		CandidatePoints:    len(resp.Data.OptimalDataPoints),
		GeneratedAt:        resp.Data.GeneratedAt,
	})
}

// Recent returns up to limit decisions for region, newest first
func (s *Store) Recent(ctx context.Context, region string, limit int) ([]DecisionRecord, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if limit <= 0 {
		limit = DefaultRecentLimit
	}

	rows, err := s.prepared["select_recent"].QueryContext(ctx, region, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query decisions: %w", err)
	}
	defer rows.Close()

	var records []DecisionRecord
	for rows.Next() {
		var record DecisionRecord
		var reason string
		var generatedAt sql.NullTime

		if err := rows.Scan(
			&record.ID,
			&record.Region,
			&record.EvaluatedAt,
			&record.IsOptimalWindowNow,
			&record.OptimalWindow,
			&reason,
			&record.CandidatePoints,
			&generatedAt,
			&record.RecordedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		record.Reason = window.Reason(reason)
		if generatedAt.Valid {
			record.GeneratedAt = generatedAt.Time
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return records, nil
}

// Cleanup removes decisions recorded longer ago than retention and returns how
// many were deleted
func (s *Store) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	cutoff := s.clock.Now().Add(-retention).UTC()
	result, err := s.prepared["cleanup"].ExecContext(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup old records: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	klog.V(2).InfoS("Cleaned up old decision records",
		"cutoff", cutoff,
		"rowsDeleted", rowsAffected)
	return rowsAffected, nil
}

// Close closes the prepared statements and the database
func (s *Store) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for _, stmt := range s.prepared {
		stmt.Close()
	}
	s.prepared = make(map[string]*sql.Stmt)

	return s.db.Close()
}
