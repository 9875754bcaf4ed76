package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openarb/arbd/internal/domain"
)

// ExecutionStore implements domain.ExecutionStore using PostgreSQL. Records
// are append-only; the only mutation is the startup sweep that aborts records
// a previous process left without a terminal outcome.
type ExecutionStore struct {
	pool *pgxpool.Pool
}

// NewExecutionStore creates a new ExecutionStore.
func NewExecutionStore(pool *pgxpool.Pool) *ExecutionStore {
	return &ExecutionStore{pool: pool}
}

// Append writes an execution record and its legs in one transaction. The
// coordinator writes each record twice: once open before any leg is placed,
// once terminal, so the second write replaces the first.
func (s *ExecutionStore) Append(ctx context.Context, rec domain.ExecutionRecord) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO executions (id, opportunity_id, kind, outcome, realized_profit, unwind_required, reason, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			outcome = EXCLUDED.outcome,
			realized_profit = EXCLUDED.realized_profit,
			unwind_required = EXCLUDED.unwind_required,
			reason = EXCLUDED.reason,
			completed_at = EXCLUDED.completed_at`,
		rec.ID, rec.OpportunityID, string(rec.Kind), string(rec.Outcome),
		rec.RealizedProfit, rec.UnwindRequired, rec.Reason, rec.StartedAt, rec.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert execution: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM execution_legs WHERE execution_id = $1`, rec.ID); err != nil {
		return fmt.Errorf("postgres: clear execution legs: %w", err)
	}

	for i, leg := range rec.Legs {
		_, err = tx.Exec(ctx, `
			INSERT INTO execution_legs (execution_id, leg_index, exchange_id, symbol, side, planned_amount, planned_price, order_id, executed_amount, executed_price, fee_rate, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			rec.ID, i, leg.ExchangeID, leg.Pair.Symbol(), string(leg.Side),
			leg.PlannedAmount, leg.PlannedPrice, leg.OrderID,
			leg.ExecutedAmount, leg.ExecutedPrice, leg.FeeRate, string(leg.Status),
		)
		if err != nil {
			return fmt.Errorf("postgres: insert execution leg: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// LoadRecent returns the most recent execution records with their legs.
func (s *ExecutionStore) LoadRecent(ctx context.Context, limit int) ([]domain.ExecutionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, opportunity_id, kind, outcome, realized_profit, unwind_required, reason, started_at, completed_at
		FROM executions ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list executions: %w", err)
	}
	defer rows.Close()

	var list []domain.ExecutionRecord
	for rows.Next() {
		var rec domain.ExecutionRecord
		var kind, outcome string
		if err := rows.Scan(&rec.ID, &rec.OpportunityID, &kind, &outcome,
			&rec.RealizedProfit, &rec.UnwindRequired, &rec.Reason,
			&rec.StartedAt, &rec.CompletedAt); err != nil {
			return nil, err
		}
		rec.Kind = domain.OpportunityKind(kind)
		rec.Outcome = domain.Outcome(outcome)
		list = append(list, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range list {
		legs, err := s.loadLegs(ctx, list[i].ID)
		if err != nil {
			return nil, err
		}
		list[i].Legs = legs
	}
	return list, nil
}

func (s *ExecutionStore) loadLegs(ctx context.Context, executionID string) ([]domain.TradeResult, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT exchange_id, symbol, side, planned_amount, planned_price, order_id, executed_amount, executed_price, fee_rate, status
		FROM execution_legs WHERE execution_id = $1 ORDER BY leg_index`,
		executionID,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: load execution legs: %w", err)
	}
	defer rows.Close()

	var legs []domain.TradeResult
	for rows.Next() {
		var leg domain.TradeResult
		var symbol, side, status string
		if err := rows.Scan(&leg.ExchangeID, &symbol, &side,
			&leg.PlannedAmount, &leg.PlannedPrice, &leg.OrderID,
			&leg.ExecutedAmount, &leg.ExecutedPrice, &leg.FeeRate, &status); err != nil {
			return nil, err
		}
		pair, err := domain.ParsePair(symbol)
		if err != nil {
			return nil, fmt.Errorf("postgres: execution leg %s: %w", executionID, err)
		}
		leg.Pair = pair
		leg.Side = domain.OrderSide(side)
		leg.Status = domain.LegStatus(status)
		legs = append(legs, leg)
	}
	return legs, rows.Err()
}

// ListBefore returns every terminal record started strictly before the
// cutoff, oldest first. Used by the archiver.
func (s *ExecutionStore) ListBefore(ctx context.Context, before time.Time) ([]domain.ExecutionRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, opportunity_id, kind, outcome, realized_profit, unwind_required, reason, started_at, completed_at
		FROM executions WHERE started_at < $1 AND outcome <> '' ORDER BY started_at`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list executions before: %w", err)
	}
	defer rows.Close()

	var list []domain.ExecutionRecord
	for rows.Next() {
		var rec domain.ExecutionRecord
		var kind, outcome string
		if err := rows.Scan(&rec.ID, &rec.OpportunityID, &kind, &outcome,
			&rec.RealizedProfit, &rec.UnwindRequired, &rec.Reason,
			&rec.StartedAt, &rec.CompletedAt); err != nil {
			return nil, err
		}
		rec.Kind = domain.OpportunityKind(kind)
		rec.Outcome = domain.Outcome(outcome)
		list = append(list, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range list {
		legs, err := s.loadLegs(ctx, list[i].ID)
		if err != nil {
			return nil, err
		}
		list[i].Legs = legs
	}
	return list, nil
}

// MarkStaleAborted transitions every record without a terminal outcome to
// aborted and returns how many were touched.
func (s *ExecutionStore) MarkStaleAborted(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE executions
		SET outcome = $1, reason = 'process restarted mid-flight', completed_at = NOW()
		WHERE outcome = ''`,
		string(domain.OutcomeAborted),
	)
	if err != nil {
		return 0, fmt.Errorf("postgres: mark stale executions: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Compile-time interface check.
var _ domain.ExecutionStore = (*ExecutionStore)(nil)
