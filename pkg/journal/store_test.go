package journal

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chainsafe/relicvault/pkg/pgutil"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping journal integration test in short mode")
	}

	db, cleanup := pgutil.SetupTestDB(t)
	t.Cleanup(cleanup)

	store := NewStore(db)
	require.NoError(t, store.Init(context.Background()))
	return store
}

func TestRecordAndList(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	outbound := &Transfer{
		Direction: DirectionOutbound,
		Status:    StatusDebited,
		GUID:      "0xabc",
		TokenID:   42,
		LedgerID:  2,
		Account:   "0x1111111111111111111111111111111111111111",
	}
	require.NoError(t, store.Record(ctx, outbound))
	require.NotEmpty(t, outbound.ID, "record must assign an id")

	inbound := &Transfer{
		Direction: DirectionInbound,
		Status:    StatusCredited,
		GUID:      "0xabc",
		TokenID:   42,
		LedgerID:  1,
		Account:   "0x2222222222222222222222222222222222222222",
		Relayer:   "0x3333333333333333333333333333333333333333",
	}
	require.NoError(t, store.Record(ctx, inbound))

	transfers, err := store.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, transfers, 2)
}

func TestByGUID(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	// Explicit timestamps keep the oldest-first ordering deterministic.
	base := time.Now().UTC()
	require.NoError(t, store.Record(ctx, &Transfer{
		Direction: DirectionOutbound, Status: StatusDebited, GUID: "0xaaa", TokenID: 1, LedgerID: 2,
		CreatedAt: base,
	}))
	require.NoError(t, store.Record(ctx, &Transfer{
		Direction: DirectionInbound, Status: StatusRejected, GUID: "0xaaa", TokenID: 1, LedgerID: 2,
		Detail: "token 1 already exists", CreatedAt: base.Add(time.Second),
	}))
	require.NoError(t, store.Record(ctx, &Transfer{
		Direction: DirectionOutbound, Status: StatusDebited, GUID: "0xbbb", TokenID: 2, LedgerID: 2,
	}))

	legs, err := store.ByGUID(ctx, "0xaaa")
	require.NoError(t, err)
	require.Len(t, legs, 2)
	require.Equal(t, StatusDebited, legs[0].Status)
	require.Equal(t, StatusRejected, legs[1].Status)
	require.Equal(t, "token 1 already exists", legs[1].Detail)
}

func TestMaxOutboundNonce(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	nonce, err := store.MaxOutboundNonce(ctx)
	require.NoError(t, err)
	require.Zero(t, nonce, "empty journal must resume from zero")

	require.NoError(t, store.Record(ctx, &Transfer{
		Direction: DirectionOutbound, Status: StatusDebited, GUID: "0x01", Nonce: 3, TokenID: 1, LedgerID: 2,
	}))
	require.NoError(t, store.Record(ctx, &Transfer{
		Direction: DirectionOutbound, Status: StatusFailed, GUID: "0x02", Nonce: 7, TokenID: 2, LedgerID: 2,
	}))
	// Inbound nonces belong to the origin ledger's sequence and are ignored.
	require.NoError(t, store.Record(ctx, &Transfer{
		Direction: DirectionInbound, Status: StatusCredited, GUID: "0x03", Nonce: 99, TokenID: 3, LedgerID: 2,
	}))

	nonce, err = store.MaxOutboundNonce(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 7, nonce)
}

func TestUpdateStatus(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	tr := &Transfer{Direction: DirectionOutbound, Status: StatusDebited, GUID: "0xccc", TokenID: 3, LedgerID: 2}
	require.NoError(t, store.Record(ctx, tr))

	require.NoError(t, store.UpdateStatus(ctx, tr.ID, StatusFailed))

	legs, err := store.ByGUID(ctx, "0xccc")
	require.NoError(t, err)
	require.Len(t, legs, 1)
	require.Equal(t, StatusFailed, legs[0].Status)
}
