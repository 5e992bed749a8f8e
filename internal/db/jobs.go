package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"AnemoneDB/internal/models"
)

// GetJob returns the singleton job, or nil when no campaign exists.
func (s *Store) GetJob(ctx context.Context) (*models.Job, error) {
	var job models.Job
	err := s.Pool.QueryRow(ctx,
		`SELECT subject, body, status, batch_size, created_at, updated_at
		 FROM anemonedb_email_content
		 LIMIT 1`,
	).Scan(&job.Subject, &job.Body, &job.Status, &job.BatchSize, &job.CreatedAt, &job.UpdatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}

	return &job, nil
}

// CreateJob replaces any existing campaign with job and enqueues userIDs in a
// single transaction. Duplicate ids are ignored. It returns the number of
// recipients enqueued.
func (s *Store) CreateJob(ctx context.Context, job models.Job, userIDs []int64) (int, error) {
	total := 0
	err := s.inTx(ctx, "create job", func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM anemonedb_email_content`); err != nil {
			return fmt.Errorf("clear job: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM anemonedb_email_recipients`); err != nil {
			return fmt.Errorf("clear recipients: %w", err)
		}

		_, err := tx.Exec(ctx,
			`INSERT INTO anemonedb_email_content
			 (subject, body, status, batch_size, created_at, updated_at)
			 VALUES ($1,$2,$3,$4,NOW(),NOW())`,
			job.Subject,
			job.Body,
			string(job.Status),
			job.BatchSize,
		)
		if err != nil {
			return fmt.Errorf("insert job: %w", err)
		}

		for start := 0; start < len(userIDs); start += insertChunk {
			end := min(start+insertChunk, len(userIDs))
			chunk := userIDs[start:end]

			args := make([]any, len(chunk))
			values := make([]string, len(chunk))
			for i, id := range chunk {
				args[i] = id
				values[i] = fmt.Sprintf("($%d)", i+1)
			}

			tag, err := tx.Exec(ctx,
				`INSERT INTO anemonedb_email_recipients (user_id) VALUES `+strings.Join(values, ",")+
					` ON CONFLICT (user_id) DO NOTHING`,
				args...,
			)
			if err != nil {
				return fmt.Errorf("insert recipients: %w", err)
			}
			total += int(tag.RowsAffected())
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	return total, nil
}

// UpdateJobStatus moves the job from one status to another. It reports false
// when no job was in the from status.
func (s *Store) UpdateJobStatus(ctx context.Context, from, to models.JobStatus) (bool, error) {
	tag, err := s.Pool.Exec(ctx,
		`UPDATE anemonedb_email_content
		 SET status=$1,
		     updated_at=NOW()
		 WHERE status=$2`,
		string(to),
		string(from),
	)
	if err != nil {
		return false, fmt.Errorf("update job status: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// DeleteJob removes the job row only.
func (s *Store) DeleteJob(ctx context.Context) error {
	if _, err := s.Pool.Exec(ctx, `DELETE FROM anemonedb_email_content`); err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	return nil
}

// PurgeJob removes the job and every queued recipient.
func (s *Store) PurgeJob(ctx context.Context) error {
	return s.inTx(ctx, "purge job", func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM anemonedb_email_content`); err != nil {
			return fmt.Errorf("purge job: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM anemonedb_email_recipients`); err != nil {
			return fmt.Errorf("purge recipients: %w", err)
		}
		return nil
	})
}

// PeekRecipients returns up to limit queued user ids in ascending order
// without removing them.
func (s *Store) PeekRecipients(ctx context.Context, limit int) ([]int64, error) {
	rows, err := s.Pool.Query(ctx,
		`SELECT user_id FROM anemonedb_email_recipients
		 ORDER BY user_id
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("peek recipients: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan recipient: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

func (s *Store) DeleteRecipients(ctx context.Context, userIDs []int64) error {
	if len(userIDs) == 0 {
		return nil
	}

	args := make([]any, len(userIDs))
	for i, id := range userIDs {
		args[i] = id
	}

	_, err := s.Pool.Exec(ctx,
		`DELETE FROM anemonedb_email_recipients WHERE user_id IN (`+placeholders(1, len(userIDs))+`)`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("delete recipients: %w", err)
	}
	return nil
}

func (s *Store) CountRecipients(ctx context.Context) (int, error) {
	var n int
	if err := s.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM anemonedb_email_recipients`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count recipients: %w", err)
	}
	return n, nil
}

// HasPendingRows reports whether any job or recipient row exists.
func (s *Store) HasPendingRows(ctx context.Context) (bool, error) {
	var pending bool
	err := s.Pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM anemonedb_email_content)
		     OR EXISTS (SELECT 1 FROM anemonedb_email_recipients)`,
	).Scan(&pending)
	if err != nil {
		return false, fmt.Errorf("check pending rows: %w", err)
	}
	return pending, nil
}
