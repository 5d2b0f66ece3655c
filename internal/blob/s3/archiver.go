package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/marketforge/mmaker/internal/domain"
)

// multipartThreshold is the payload size above which the archiver switches
// from a single PutObject to a multipart upload.
const multipartThreshold = 8 * 1024 * 1024

// LedgerArchive is the object uploaded for a resolved market: the market
// metadata followed by its complete order log. Replaying the orders file
// reproduces the market's final state, so the archive is self-contained.
type LedgerArchive struct {
	Market domain.Market `json:"market"`
	Orders int           `json:"orders"`
}

// Archiver implements domain.LedgerArchiver by serializing a resolved
// market's ledger to JSONL and uploading it to the configured bucket.
// Records are never deleted from the primary store; the archive is a copy.
type Archiver struct {
	writer domain.BlobWriter
}

// NewArchiver creates an Archiver that uploads through the given writer.
func NewArchiver(writer domain.BlobWriter) *Archiver {
	return &Archiver{writer: writer}
}

// ArchiveLedger uploads the market's order log as newline-delimited JSON.
// The first line is the market header; each following line is one order in
// ledger sequence. Returns the object key the archive was written to.
func (a *Archiver) ArchiveLedger(ctx context.Context, m domain.Market, orders []domain.Order) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(LedgerArchive{Market: m, Orders: len(orders)}); err != nil {
		return "", fmt.Errorf("s3blob: encode ledger header for %s: %w", m.ID, err)
	}
	for i, o := range orders {
		if err := enc.Encode(o); err != nil {
			return "", fmt.Errorf("s3blob: encode ledger order %d for %s: %w", i, m.ID, err)
		}
	}

	path := ledgerArchivePath(m)
	if buf.Len() > multipartThreshold {
		if err := a.writer.PutMultipart(ctx, path, &buf, 0); err != nil {
			return "", fmt.Errorf("s3blob: archive ledger %s: %w", m.ID, err)
		}
		return path, nil
	}
	if err := a.writer.Put(ctx, path, &buf, "application/x-ndjson"); err != nil {
		return "", fmt.Errorf("s3blob: archive ledger %s: %w", m.ID, err)
	}
	return path, nil
}

// ledgerArchivePath builds the object key for a resolved market's ledger,
// partitioned by the year-month it resolved in.
//
//	archive/ledgers/2026-08/mkt_abc123.jsonl
func ledgerArchivePath(m domain.Market) string {
	return fmt.Sprintf("archive/ledgers/%s/%s.jsonl", m.UpdatedAt.Format("2006-01"), m.ID)
}

// Compile-time interface check.
var _ domain.LedgerArchiver = (*Archiver)(nil)
