package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/alanyoungcy/swingbot/internal/domain"
)

// multipartThreshold switches report uploads to the multipart manager.
const multipartThreshold = 8 << 20

// Archiver implements domain.ReportArchiver. Backtest reports land at
// backtests/<run-id>.json and scan output at scans/YYYY/MM/DD/<HHMMSS>.jsonl.
type Archiver struct {
	writer domain.BlobWriter
	reader domain.BlobReader
}

var _ domain.ReportArchiver = (*Archiver)(nil)

// NewArchiver creates an Archiver. reader may be nil when listing is not
// needed.
func NewArchiver(writer domain.BlobWriter, reader domain.BlobReader) *Archiver {
	return &Archiver{writer: writer, reader: reader}
}

// ArchiveBacktest uploads report as indented JSON and returns its path.
func (a *Archiver) ArchiveBacktest(ctx context.Context, runID string, report any) (string, error) {
	if runID == "" || strings.ContainsAny(runID, "/\\") {
		return "", fmt.Errorf("s3blob: invalid backtest run id %q", runID)
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("s3blob: marshal backtest %s: %w", runID, err)
	}

	path := backtestPath(runID)
	if len(data) >= multipartThreshold {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(data), minPartSize)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(data), "application/json")
	}
	if err != nil {
		return "", err
	}
	return path, nil
}

// ArchiveScan uploads signals as JSON lines. An empty scan uploads nothing
// and returns an empty path.
func (a *Archiver) ArchiveScan(ctx context.Context, at time.Time, signals []domain.Signal) (string, error) {
	if len(signals) == 0 {
		return "", nil
	}
	data, err := marshalJSONL(signals)
	if err != nil {
		return "", fmt.Errorf("s3blob: marshal scan: %w", err)
	}
	path := scanPath(at)
	if err := a.writer.Put(ctx, path, bytes.NewReader(data), "application/x-ndjson"); err != nil {
		return "", err
	}
	return path, nil
}

// ListBacktests returns archived backtest reports, newest first.
func (a *Archiver) ListBacktests(ctx context.Context) ([]domain.BlobInfo, error) {
	if a.reader == nil {
		return nil, fmt.Errorf("s3blob: archiver has no reader")
	}
	infos, err := a.reader.List(ctx, "backtests/")
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(infos, func(x, y domain.BlobInfo) int {
		return y.LastModified.Compare(x.LastModified)
	})
	return infos, nil
}

// LoadBacktest decodes the archived report of runID into v.
func (a *Archiver) LoadBacktest(ctx context.Context, runID string, v any) error {
	if a.reader == nil {
		return fmt.Errorf("s3blob: archiver has no reader")
	}
	body, err := a.reader.Get(ctx, backtestPath(runID))
	if err != nil {
		return err
	}
	defer body.Close()
	if err := json.NewDecoder(body).Decode(v); err != nil {
		return fmt.Errorf("s3blob: decode backtest %s: %w", runID, err)
	}
	return nil
}

func backtestPath(runID string) string {
	return "backtests/" + runID + ".json"
}

func scanPath(at time.Time) string {
	at = at.UTC()
	return fmt.Sprintf("scans/%s/%s.jsonl", at.Format("2006/01/02"), at.Format("150405"))
}

// marshalJSONL encodes one compact JSON value per line.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
