package wave

import (
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/AlekseyRodimkin/warehouse/internal/platform/db"
	"github.com/AlekseyRodimkin/warehouse/internal/platform/httpx"
	"github.com/AlekseyRodimkin/warehouse/internal/platform/lock"
)

func TestClassifyErrorConflicts(t *testing.T) {
	for name, err := range map[string]error{
		"lost race":  fmt.Errorf("%w: %w", db.ErrConcurrentUpdate, &pgconn.PgError{Code: "40001"}),
		"lock busy":  fmt.Errorf("%w: wave:1", lock.ErrBusy),
		"transition": fmt.Errorf("%w: completed -> planned", ErrInvalidTransition),
	} {
		require.ErrorIs(t, ClassifyError(err), httpx.ErrConflict, name)
	}
}
