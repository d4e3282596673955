package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedRow struct {
	values []any
	err    error
}

func (r scriptedRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != len(r.values) {
		return fmt.Errorf("scan: %d destinations for %d values", len(dest), len(r.values))
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *int:
			*p = r.values[i].(int)
		case *int64:
			*p = r.values[i].(int64)
		case *bool:
			*p = r.values[i].(bool)
		default:
			return fmt.Errorf("scan: unsupported destination %T", d)
		}
	}
	return nil
}

// scriptedQuerier answers statements in order and records what it was asked.
type scriptedQuerier struct {
	rows     []scriptedRow
	tags     []pgconn.CommandTag
	queries  []string
	execs    []string
	execArgs [][]any
}

func (q *scriptedQuerier) QueryRow(_ context.Context, sql string, _ ...any) pgx.Row {
	q.queries = append(q.queries, sql)
	if len(q.rows) == 0 {
		return scriptedRow{err: errors.New("unexpected query")}
	}
	row := q.rows[0]
	q.rows = q.rows[1:]
	return row
}

func (q *scriptedQuerier) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	q.execs = append(q.execs, sql)
	q.execArgs = append(q.execArgs, args)
	if len(q.tags) == 0 {
		return pgconn.NewCommandTag("INSERT 0 1"), nil
	}
	tag := q.tags[0]
	q.tags = q.tags[1:]
	return tag, nil
}

func TestPostgres_Reserve(t *testing.T) {
	q := &scriptedQuerier{rows: []scriptedRow{{values: []any{3}}}}
	h, err := NewPostgres(q).Reserve(context.Background(), 5, 2)
	require.NoError(t, err)

	assert.NotEmpty(t, h.ID)
	assert.Equal(t, int64(5), h.EventID)
	assert.Equal(t, 2, h.Quantity)
	require.Len(t, q.execs, 1)
	assert.Contains(t, q.execs[0], "INSERT INTO reservations")
	assert.Equal(t, []any{h.ID, int64(5), 2}, q.execArgs[0])
}

func TestPostgres_Reserve_Refusals(t *testing.T) {
	testCases := []struct {
		name  string
		probe scriptedRow
		check func(t *testing.T, err error)
	}{
		{
			name:  "unknown event",
			probe: scriptedRow{err: pgx.ErrNoRows},
			check: func(t *testing.T, err error) { assert.ErrorIs(t, err, ErrUnknownEvent) },
		},
		{
			name:  "closed event",
			probe: scriptedRow{values: []any{10, false}},
			check: func(t *testing.T, err error) { assert.ErrorIs(t, err, ErrEventNotAvailable) },
		},
		{
			name:  "not enough left",
			probe: scriptedRow{values: []any{1, true}},
			check: func(t *testing.T, err error) {
				var capErr *InsufficientCapacityError
				require.ErrorAs(t, err, &capErr)
				assert.Equal(t, 1, capErr.Remaining)
				assert.Equal(t, 4, capErr.Requested)
			},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			q := &scriptedQuerier{rows: []scriptedRow{{err: pgx.ErrNoRows}, tc.probe}}
			_, err := NewPostgres(q).Reserve(context.Background(), 5, 4)
			tc.check(t, err)
			assert.Empty(t, q.execs)
		})
	}
}

func TestPostgres_Reserve_InvalidQuantity(t *testing.T) {
	q := &scriptedQuerier{}
	_, err := NewPostgres(q).Reserve(context.Background(), 5, 0)
	assert.ErrorIs(t, err, ErrInvalidQuantity)
	assert.Empty(t, q.queries)
}

func TestPostgres_Release(t *testing.T) {
	q := &scriptedQuerier{rows: []scriptedRow{{values: []any{int64(5), 2}}}}
	err := NewPostgres(q).Release(context.Background(), Handle{ID: "h1"})
	require.NoError(t, err)

	require.Len(t, q.execs, 1)
	assert.True(t, strings.Contains(q.execs[0], "reserved_units - $2"))
	assert.Equal(t, []any{int64(5), 2}, q.execArgs[0])
}

func TestPostgres_Release_AlreadyReleased(t *testing.T) {
	q := &scriptedQuerier{rows: []scriptedRow{{err: pgx.ErrNoRows}, {values: []any{true}}}}
	err := NewPostgres(q).Release(context.Background(), Handle{ID: "h1"})
	assert.NoError(t, err)
	assert.Empty(t, q.execs)
}

func TestPostgres_Release_UnknownHandle(t *testing.T) {
	q := &scriptedQuerier{rows: []scriptedRow{{err: pgx.ErrNoRows}, {values: []any{false}}}}
	err := NewPostgres(q).Release(context.Background(), Handle{ID: "nope"})
	assert.ErrorIs(t, err, ErrUnknownHandle)
}

func TestPostgres_SetCapacity(t *testing.T) {
	t.Run("applied", func(t *testing.T) {
		q := &scriptedQuerier{tags: []pgconn.CommandTag{pgconn.NewCommandTag("UPDATE 1")}}
		assert.NoError(t, NewPostgres(q).SetCapacity(context.Background(), 5, 20))
	})
	t.Run("below reserved", func(t *testing.T) {
		q := &scriptedQuerier{
			tags: []pgconn.CommandTag{pgconn.NewCommandTag("UPDATE 0")},
			rows: []scriptedRow{{values: []any{0}}},
		}
		assert.ErrorIs(t, NewPostgres(q).SetCapacity(context.Background(), 5, 1), ErrCapacityBelowReserved)
	})
	t.Run("unknown event", func(t *testing.T) {
		q := &scriptedQuerier{
			tags: []pgconn.CommandTag{pgconn.NewCommandTag("UPDATE 0")},
			rows: []scriptedRow{{err: pgx.ErrNoRows}},
		}
		assert.ErrorIs(t, NewPostgres(q).SetCapacity(context.Background(), 5, 1), ErrUnknownEvent)
	})
	t.Run("invalid", func(t *testing.T) {
		assert.ErrorIs(t, NewPostgres(&scriptedQuerier{}).SetCapacity(context.Background(), 5, 0), ErrInvalidQuantity)
	})
}
