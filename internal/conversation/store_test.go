package conversation

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fixflowhq/fixflow/internal/provider"
)

const (
	storeTenantID = "0d4f7cfa-1a2b-4c3d-9e8f-001122334455"
	storeConvID   = "1a2b3c4d-5e6f-4a7b-8c9d-556677889900"
)

// fakeRow satisfies pgx.Row with a canned Scan.
type fakeRow struct {
	scan func(dest ...any) error
}

func (r fakeRow) Scan(dest ...any) error { return r.scan(dest...) }

// fakeTx embeds pgx.Tx for the methods the store never calls; those would
// panic, which is exactly what a test wants from an unexpected call.
type fakeTx struct {
	pgx.Tx
	executed *[]string
	queryRow func(sql string) pgx.Row
}

func (t fakeTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	*t.executed = append(*t.executed, sql)
	return t.queryRow(sql)
}

func (t fakeTx) Commit(ctx context.Context) error   { return nil }
func (t fakeTx) Rollback(ctx context.Context) error { return nil }

type fakeConn struct {
	tx fakeTx
}

func (c fakeConn) Begin(ctx context.Context) (pgx.Tx, error) { return c.tx, nil }
func (c fakeConn) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	panic("unexpected Query outside transaction")
}
func (c fakeConn) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	panic("unexpected QueryRow outside transaction")
}

func scanValues(dest []any, values []any) error {
	for i, v := range values {
		switch d := dest[i].(type) {
		case *string:
			*d = v.(string)
		case **string:
			if v == nil {
				*d = nil
			} else {
				s := v.(string)
				*d = &s
			}
		case *time.Time:
			*d = v.(time.Time)
		case *int:
			*d = v.(int)
		case *bool:
			*d = v.(bool)
		}
	}
	return nil
}

// TestAppendInbound_DuplicateWritesNothing replays a delivery whose message
// already exists and asserts the transaction issues only reads: no insert,
// no update, no conversation updated_at bump.
func TestAppendInbound_DuplicateWritesNothing(t *testing.T) {
	t.Parallel()

	sentAt := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	var executed []string

	tx := fakeTx{
		executed: &executed,
		queryRow: func(sql string) pgx.Row {
			switch {
			case strings.Contains(sql, "FROM messages"):
				return fakeRow{scan: func(dest ...any) error {
					return scanValues(dest, []any{
						"msg-1", storeTenantID, storeConvID, "telegram", "700000001",
						"123456", "inbound", "hello", nil, sentAt, sentAt,
					})
				}}
			case strings.Contains(sql, "FROM conversations"):
				return fakeRow{scan: func(dest ...any) error {
					return scanValues(dest, []any{
						storeConvID, storeTenantID, "123456", StatusOpen,
						sentAt, 1, true, sentAt, sentAt,
					})
				}}
			default:
				t.Errorf("unexpected query on duplicate path: %s", sql)
				return fakeRow{scan: func(...any) error { return pgx.ErrNoRows }}
			}
		},
	}

	store := &Store{pool: fakeConn{tx: tx}}
	res, err := store.AppendInbound(context.Background(), provider.Message{
		TenantID:          storeTenantID,
		Provider:          provider.Provider("telegram"),
		ExternalMessageID: "700000001",
		Counterparty:      "123456",
		Direction:         provider.DirectionInbound,
		Body:              "hello",
		Timestamp:         sentAt,
	})
	require.NoError(t, err)

	assert.False(t, res.Created)
	assert.Equal(t, "msg-1", res.Message.ID)
	assert.Equal(t, storeConvID, res.Conversation.ID)
	assert.Equal(t, 1, res.Conversation.MessageCount, "counters must not advance on replay")

	for _, sql := range executed {
		assert.NotContains(t, sql, "INSERT", "replay wrote a row")
		assert.NotContains(t, sql, "UPDATE", "replay mutated a row")
	}
}

// TestAppendInbound_FirstDeliveryWrites is the control case: a fresh message
// runs the insert and the conversation advance.
func TestAppendInbound_FirstDeliveryWrites(t *testing.T) {
	t.Parallel()

	sentAt := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	var executed []string

	tx := fakeTx{
		executed: &executed,
		queryRow: func(sql string) pgx.Row {
			switch {
			case strings.Contains(sql, "FROM messages"):
				return fakeRow{scan: func(...any) error { return pgx.ErrNoRows }}
			case strings.Contains(sql, "INSERT INTO conversations"),
				strings.Contains(sql, "UPDATE conversations"):
				return fakeRow{scan: func(dest ...any) error {
					return scanValues(dest, []any{
						storeConvID, storeTenantID, "123456", StatusOpen,
						sentAt, 1, true, sentAt, sentAt,
					})
				}}
			case strings.Contains(sql, "INSERT INTO messages"):
				return fakeRow{scan: func(dest ...any) error {
					return scanValues(dest, []any{"msg-1"})
				}}
			default:
				t.Errorf("unexpected query: %s", sql)
				return fakeRow{scan: func(...any) error { return pgx.ErrNoRows }}
			}
		},
	}

	store := &Store{pool: fakeConn{tx: tx}}
	res, err := store.AppendInbound(context.Background(), provider.Message{
		TenantID:          storeTenantID,
		Provider:          provider.Provider("telegram"),
		ExternalMessageID: "700000001",
		Counterparty:      "123456",
		Direction:         provider.DirectionInbound,
		Body:              "hello",
		Timestamp:         sentAt,
	})
	require.NoError(t, err)

	assert.True(t, res.Created)
	assert.Equal(t, "msg-1", res.Message.ID)

	joined := strings.Join(executed, "\n")
	assert.Contains(t, joined, "INSERT INTO messages")
	assert.Contains(t, joined, "UPDATE conversations")
}
