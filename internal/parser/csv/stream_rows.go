package csv

import (
	"context"
	"errors"
	"io"

	"github.com/dustin/go-humanize"

	"clipivot/internal/logging"
)

// LogEvery is the progress heartbeat interval in records.
const LogEvery = 50_000

// StreamRows sends every remaining record to out and returns nil at end of
// input. It stops early on the first framing error or when ctx is done. out
// is not closed; the caller owns it.
func (r *Reader) StreamRows(ctx context.Context, out chan<- Row) error {
	log := logging.WithComponent("reader")
	emitted := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		row, err := r.Next()
		if errors.Is(err, io.EOF) {
			log.Debug("input exhausted", "records", emitted)
			return nil
		}
		if err != nil {
			return err
		}

		select {
		case out <- row:
			emitted++
			if emitted%LogEvery == 0 {
				log.Info("reading", "records", humanize.Comma(int64(emitted)), "line", row.Line)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
