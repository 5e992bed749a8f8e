package db

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"AnemoneDB/internal/models"
)

var errConn = errors.New("connection reset by peer")

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	return NewWithPool(mock), mock
}

func TestStore_GetJob(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery("SELECT subject, body, status, batch_size").
		WillReturnRows(pgxmock.NewRows([]string{"subject", "body", "status", "batch_size", "created_at", "updated_at"}).
			AddRow("Hello {user_login}", "Body", models.StatusPaused, 50, now, now))

	job, err := store.GetJob(context.Background())
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, models.StatusPaused, job.Status)
	assert.Equal(t, 50, job.BatchSize)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_GetJob_None(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT subject, body, status, batch_size").
		WillReturnError(pgx.ErrNoRows)

	job, err := store.GetJob(context.Background())
	require.NoError(t, err)
	assert.Nil(t, job)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_CreateJob(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM anemonedb_email_content").WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec("DELETE FROM anemonedb_email_recipients").WillReturnResult(pgxmock.NewResult("DELETE", 4))
	mock.ExpectExec("INSERT INTO anemonedb_email_content").
		WithArgs("Subject", "Body", "active", 10).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO anemonedb_email_recipients (user_id) VALUES ($1),($2),($3) ON CONFLICT")).
		WithArgs(int64(3), int64(5), int64(8)).
		WillReturnResult(pgxmock.NewResult("INSERT", 3))
	mock.ExpectCommit()

	n, err := store.CreateJob(context.Background(), models.Job{
		Subject:   "Subject",
		Body:      "Body",
		Status:    models.StatusActive,
		BatchSize: 10,
	}, []int64{3, 5, 8})

	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_CreateJob_ChunksRecipients(t *testing.T) {
	store, mock := newMockStore(t)

	ids := make([]int64, insertChunk+2)
	for i := range ids {
		ids[i] = int64(i + 1)
	}

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM anemonedb_email_content").WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec("DELETE FROM anemonedb_email_recipients").WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec("INSERT INTO anemonedb_email_content").WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO anemonedb_email_recipients").WillReturnResult(pgxmock.NewResult("INSERT", insertChunk))
	mock.ExpectExec("INSERT INTO anemonedb_email_recipients").
		WithArgs(int64(insertChunk+1), int64(insertChunk+2)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	n, err := store.CreateJob(context.Background(), models.Job{Status: models.StatusActive, BatchSize: 10}, ids)
	require.NoError(t, err)
	assert.Equal(t, insertChunk+1, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_CreateJob_RollsBackOnError(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM anemonedb_email_content").WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec("DELETE FROM anemonedb_email_recipients").WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec("INSERT INTO anemonedb_email_content").WillReturnError(errConn)
	mock.ExpectRollback()

	_, err := store.CreateJob(context.Background(), models.Job{Status: models.StatusActive, BatchSize: 10}, []int64{1})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "insert job")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_UpdateJobStatus(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("UPDATE anemonedb_email_content").
		WithArgs("paused", "active").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE anemonedb_email_content").
		WithArgs("paused", "active").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	ok, err := store.UpdateJobStatus(context.Background(), models.StatusActive, models.StatusPaused)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.UpdateJobStatus(context.Background(), models.StatusActive, models.StatusPaused)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_PurgeJob(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM anemonedb_email_content").WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec("DELETE FROM anemonedb_email_recipients").WillReturnResult(pgxmock.NewResult("DELETE", 12))
	mock.ExpectCommit()

	require.NoError(t, store.PurgeJob(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_PeekRecipients(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT user_id FROM anemonedb_email_recipients").
		WithArgs(3).
		WillReturnRows(pgxmock.NewRows([]string{"user_id"}).AddRow(int64(1)).AddRow(int64(2)).AddRow(int64(4)))

	ids, err := store.PeekRecipients(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 4}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_DeleteRecipients(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM anemonedb_email_recipients WHERE user_id IN ($1, $2)")).
		WithArgs(int64(7), int64(9)).
		WillReturnResult(pgxmock.NewResult("DELETE", 2))

	require.NoError(t, store.DeleteRecipients(context.Background(), []int64{7, 9}))
	require.NoError(t, store.DeleteRecipients(context.Background(), nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_CountRecipientsAndPending(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM anemonedb_email_recipients")).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(15))
	mock.ExpectQuery("SELECT EXISTS").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	n, err := store.CountRecipients(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 15, n)

	pending, err := store.HasPendingRows(context.Background())
	require.NoError(t, err)
	assert.True(t, pending)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Triggers(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO anemonedb_triggers").
		WithArgs("anemonedb_email_send", int64(600)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("anemonedb_email_send").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectExec("DELETE FROM anemonedb_triggers").
		WithArgs("anemonedb_email_send").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	ctx := context.Background()
	require.NoError(t, store.ArmTrigger(ctx, "anemonedb_email_send", 10*time.Minute))

	armed, err := store.TriggerArmed(ctx, "anemonedb_email_send")
	require.NoError(t, err)
	assert.True(t, armed)

	require.NoError(t, store.DisarmTrigger(ctx, "anemonedb_email_send"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_SchemaLifecycle(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS users").WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS anemonedb_email_content").WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectExec("DROP TABLE IF EXISTS anemonedb_email_content, anemonedb_email_recipients").WillReturnResult(pgxmock.NewResult("DROP TABLE", 0))

	require.NoError(t, store.InitSchema(context.Background()))
	require.NoError(t, store.DropSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
