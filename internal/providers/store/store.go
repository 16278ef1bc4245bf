package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/techscaniq/diligence/internal/shared/id"
	"github.com/techscaniq/diligence/internal/shared/types"
)

// Store persists reports and citations in Postgres
type Store struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

// New connects a store to the given Postgres DSN
func New(ctx context.Context, dsn string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect report store: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping report store: %w", err)
	}

	return &Store{pool: pool, log: log}, nil
}

// Close releases the connection pool
func (s *Store) Close() {
	s.pool.Close()
}

// SaveReport upserts a report's content. Re-running a pipeline for the
// same report replaces the prior content.
func (s *Store) SaveReport(ctx context.Context, reportID, content string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO reports (id, content, updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (id) DO UPDATE SET content = EXCLUDED.content, updated_at = now()`,
		reportID, content,
	)
	if err != nil {
		return fmt.Errorf("save report %s: %w", reportID, err)
	}
	return nil
}

// LinkReportToRequest associates a finished report with the scan request
// that produced it.
func (s *Store) LinkReportToRequest(ctx context.Context, requestID, reportID string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE scan_requests SET report_id = $2, completed_at = now() WHERE id = $1`,
		requestID, reportID,
	)
	if err != nil {
		return fmt.Errorf("link report %s to request %s: %w", reportID, requestID, err)
	}
	return nil
}

// CreateCitations batch-inserts claims for a report and returns how many
// rows were written.
func (s *Store) CreateCitations(ctx context.Context, reportID string, claims []types.Claim) (int, error) {
	if len(claims) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, claim := range claims {
		batch.Queue(
			`INSERT INTO citations (id, report_id, claim_text, evidence_id, confidence)
			 VALUES ($1, $2, $3, $4, $5)`,
			id.NewCitationID().String(), reportID, claim.Text, claim.EvidenceID, claim.Confidence,
		)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	created := 0
	for range claims {
		if _, err := results.Exec(); err != nil {
			return created, fmt.Errorf("create citations for %s: %w", reportID, err)
		}
		created++
	}

	s.log.Debug("citations created", zap.String("report_id", reportID), zap.Int("count", created))
	return created, nil
}
