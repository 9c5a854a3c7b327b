package designs

import (
	"context"
	"encoding/json"
	"time"

	"github.com/manash/designedit/internal/session"
)

type UsageSummary struct {
	TotalCost float64
	EditCount int
}

type ProviderUsage struct {
	Provider  string
	TotalCost float64
	EditCount int
}

// RecordUsage appends one ledger row. It satisfies session.UsageRecorder.
func (s *Store) RecordUsage(ctx context.Context, e session.UsageEntry) error {
	var usageJSON any
	if len(e.Usage) > 0 {
		data, err := json.Marshal(e.Usage)
		if err != nil {
			return err
		}
		usageJSON = string(data)
	}
	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO usage_log (session_id, version_id, provider, model, cost, usage_json, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.SessionID, e.VersionID, e.Provider, e.Model, e.Cost, usageJSON, ts)
	return err
}

func (s *Store) SessionUsage(ctx context.Context, sessionID string) (*UsageSummary, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(cost), 0), COUNT(*) FROM usage_log WHERE session_id = ?`,
		sessionID)

	var summary UsageSummary
	if err := row.Scan(&summary.TotalCost, &summary.EditCount); err != nil {
		return nil, err
	}
	return &summary, nil
}

func (s *Store) TotalUsage(ctx context.Context) (*UsageSummary, error) {
	row := s.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(cost), 0), COUNT(*) FROM usage_log`)

	var summary UsageSummary
	if err := row.Scan(&summary.TotalCost, &summary.EditCount); err != nil {
		return nil, err
	}
	return &summary, nil
}

func (s *Store) UsageByProvider(ctx context.Context) ([]ProviderUsage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT provider, COALESCE(SUM(cost), 0), COUNT(*)
		 FROM usage_log GROUP BY provider ORDER BY provider`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ProviderUsage
	for rows.Next() {
		var pu ProviderUsage
		if err := rows.Scan(&pu.Provider, &pu.TotalCost, &pu.EditCount); err != nil {
			return nil, err
		}
		out = append(out, pu)
	}
	return out, rows.Err()
}
