package wave

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStatusTransitionGraph(t *testing.T) {
	all := []Status{StatusDraft, StatusPlanned, StatusInProgress, StatusCompleted, StatusCancelled}
	allowed := map[[2]Status]bool{
		{StatusPlanned, StatusInProgress}:   true,
		{StatusPlanned, StatusCancelled}:    true,
		{StatusInProgress, StatusCompleted}: true,
		{StatusInProgress, StatusCancelled}: true,
	}
	for _, from := range all {
		for _, to := range all {
			require.Equal(t, allowed[[2]Status{from, to}], from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}
	require.True(t, StatusCompleted.IsTerminal())
	require.True(t, StatusCancelled.IsTerminal())
	require.False(t, StatusInProgress.IsTerminal())
	require.False(t, Status("shipped").IsValid())
}

func TestFormatNumber(t *testing.T) {
	require.Equal(t, "INB-2025-0001", FormatNumber(KindInbound, 2025, 1))
	require.Equal(t, "OUT-2024-0120", FormatNumber(KindOutbound, 2024, 120))
	require.Equal(t, "INB-2025-12345", FormatNumber(KindInbound, 2025, 12345))
}

func TestValidateActualDate(t *testing.T) {
	day := time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)
	w := Wave{Kind: KindInbound, Status: StatusPlanned}
	require.NoError(t, w.Validate())

	w.ActualDate = &day
	require.ErrorIs(t, w.Validate(), ErrActualDate)

	w.Status = StatusCompleted
	require.NoError(t, w.Validate())

	w.ActualDate = nil
	require.ErrorIs(t, w.Validate(), ErrActualDate)

	draft := Wave{Kind: KindOutbound, Status: StatusDraft}
	require.ErrorIs(t, draft.Validate(), ErrInvalidInput)
}

func TestSetStatusStampsActualDate(t *testing.T) {
	now := time.Date(2025, 3, 14, 17, 45, 0, 0, time.UTC)
	w := Wave{Kind: KindInbound, Status: StatusInProgress}
	w.setStatus(StatusCompleted, now)
	require.NotNil(t, w.ActualDate)
	require.Equal(t, time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC), *w.ActualDate)

	w.setStatus(StatusCancelled, now)
	require.Nil(t, w.ActualDate)
}

func TestKindHelpers(t *testing.T) {
	require.Equal(t, "inbounds", KindInbound.Folder())
	require.Equal(t, "outbounds", KindOutbound.Folder())
	in := Wave{Kind: KindInbound, Party: "ACME"}
	require.Equal(t, "ACME", in.Supplier())
	require.Empty(t, in.Recipient())
}
