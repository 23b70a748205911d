package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func TestPgErrorClassifiers(t *testing.T) {
	unique := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})
	fk := &pgconn.PgError{Code: "23503"}
	serial := &pgconn.PgError{Code: "40001"}

	require.True(t, IsUniqueViolation(unique))
	require.False(t, IsUniqueViolation(fk))
	require.True(t, IsForeignKeyViolation(fk))
	require.True(t, IsSerializationFailure(serial))
	require.False(t, IsSerializationFailure(errors.New("plain")))
}

func TestRetryConflictsRerunsLostRaces(t *testing.T) {
	calls := 0
	err := retryConflicts(context.Background(), 3, func() error {
		calls++
		if calls < 3 {
			return fmt.Errorf("commit: %w", &pgconn.PgError{Code: "40001"})
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestRetryConflictsGivesUp(t *testing.T) {
	calls := 0
	err := retryConflicts(context.Background(), 3, func() error {
		calls++
		return &pgconn.PgError{Code: "23505"}
	})
	require.Equal(t, 3, calls)
	require.ErrorIs(t, err, ErrConcurrentUpdate)
	require.True(t, IsUniqueViolation(err))
}

func TestRetryConflictsLeavesOtherErrorsAlone(t *testing.T) {
	calls := 0
	boom := errors.New("boom")
	err := retryConflicts(context.Background(), 3, func() error {
		calls++
		return boom
	})
	require.Equal(t, 1, calls)
	require.Same(t, boom, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls = 0
	err = retryConflicts(ctx, 3, func() error {
		calls++
		return &pgconn.PgError{Code: "40P01"}
	})
	require.Equal(t, 1, calls)
	require.ErrorIs(t, err, ErrConcurrentUpdate)
}
