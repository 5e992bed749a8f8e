package db

import (
	"context"
	"fmt"
	"time"
)

// ArmTrigger records that the named recurring trigger should fire every period.
func (s *Store) ArmTrigger(ctx context.Context, name string, period time.Duration) error {
	_, err := s.Pool.Exec(ctx,
		`INSERT INTO anemonedb_triggers (name, period_seconds, armed_at)
		 VALUES ($1,$2,NOW())
		 ON CONFLICT (name) DO UPDATE SET
		     period_seconds = EXCLUDED.period_seconds`,
		name,
		int64(period/time.Second),
	)
	if err != nil {
		return fmt.Errorf("arm trigger %s: %w", name, err)
	}
	return nil
}

func (s *Store) DisarmTrigger(ctx context.Context, name string) error {
	if _, err := s.Pool.Exec(ctx, `DELETE FROM anemonedb_triggers WHERE name = $1`, name); err != nil {
		return fmt.Errorf("disarm trigger %s: %w", name, err)
	}
	return nil
}

func (s *Store) TriggerArmed(ctx context.Context, name string) (bool, error) {
	var armed bool
	err := s.Pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM anemonedb_triggers WHERE name = $1)`,
		name,
	).Scan(&armed)
	if err != nil {
		return false, fmt.Errorf("check trigger %s: %w", name, err)
	}
	return armed, nil
}
