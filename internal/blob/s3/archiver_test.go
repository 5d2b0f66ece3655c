package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketforge/mmaker/internal/domain"
)

type captureWriter struct {
	path        string
	body        []byte
	contentType string
	multipart   bool
}

func (w *captureWriter) Put(ctx context.Context, path string, data io.Reader, contentType string) error {
	w.path = path
	w.contentType = contentType
	b, err := io.ReadAll(data)
	w.body = b
	return err
}

func (w *captureWriter) PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error {
	w.multipart = true
	w.path = path
	b, err := io.ReadAll(data)
	w.body = b
	return err
}

func TestArchiveLedger(t *testing.T) {
	resolvedAt := time.Date(2026, 8, 15, 10, 0, 0, 0, time.UTC)
	m := domain.Market{
		ID:         "mkt_abc",
		Title:      "Who wins",
		Status:     domain.MarketStatusResolved,
		LiquidityB: 100,
		Outcomes:   []domain.Outcome{{ID: 1, Name: "yes"}, {ID: 2, Name: "no"}},
		UpdatedAt:  resolvedAt,
	}
	orders := []domain.Order{
		{ID: 1, MarketID: "mkt_abc", AccountID: "alice", Kind: domain.OrderKindSeed, CoinDelta: 10000, Time: resolvedAt},
		{ID: 2, MarketID: "mkt_abc", AccountID: "alice", Kind: domain.OrderKindTrade, Outcome: 1, TokenDelta: 10, CoinDelta: -5125, Time: resolvedAt},
	}

	w := &captureWriter{}
	path, err := NewArchiver(w).ArchiveLedger(context.Background(), m, orders)
	require.NoError(t, err)

	// Key is partitioned by resolution month.
	assert.Equal(t, "archive/ledgers/2026-08/mkt_abc.jsonl", path)
	assert.Equal(t, path, w.path)
	assert.False(t, w.multipart)
	assert.Equal(t, "application/x-ndjson", w.contentType)

	// First line is the header, then one line per order.
	sc := bufio.NewScanner(bytes.NewReader(w.body))
	require.True(t, sc.Scan())
	var header LedgerArchive
	require.NoError(t, json.Unmarshal(sc.Bytes(), &header))
	assert.Equal(t, "mkt_abc", header.Market.ID)
	assert.Equal(t, 2, header.Orders)

	var got []domain.Order
	for sc.Scan() {
		var o domain.Order
		require.NoError(t, json.Unmarshal(sc.Bytes(), &o))
		got = append(got, o)
	}
	require.Len(t, got, 2)
	assert.Equal(t, domain.OrderID(2), got[1].ID)
	assert.Equal(t, int64(-5125), got[1].CoinDelta)
}

func TestArchiveLedgerEmpty(t *testing.T) {
	m := domain.Market{ID: "mkt_empty", UpdatedAt: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)}

	w := &captureWriter{}
	path, err := NewArchiver(w).ArchiveLedger(context.Background(), m, nil)
	require.NoError(t, err)
	assert.Equal(t, "archive/ledgers/2026-01/mkt_empty.jsonl", path)

	var header LedgerArchive
	require.NoError(t, json.Unmarshal(w.body, &header))
	assert.Equal(t, 0, header.Orders)
}
