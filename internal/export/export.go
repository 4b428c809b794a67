// Package export serializes a poll's ledger and metadata into a downloadable
// CSV report.
package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/pollboard/backend/internal/models"
)

// Header is the fixed CSV header row.
var Header = []string{"voterId", "option", "weight", "timestamp"}

// PollGetter loads the poll being exported.
type PollGetter interface {
	GetByID(ctx context.Context, id string) (*models.Poll, error)
}

// RecordLister streams a poll's ledger rows ordered by option then cast time.
type RecordLister interface {
	ListByPoll(ctx context.Context, pollID string) ([]models.VoteRecord, error)
}

// Export is a built report ready for download or upload.
type Export struct {
	PollID     string
	Filename   string
	Rows       [][]string
	TotalVotes int64
}

// Builder produces exports from the poll store and vote ledger.
type Builder struct {
	polls  PollGetter
	ledger RecordLister
	// allowLive permits exporting while the poll is still open. Off by
	// default: exports unlock at close.
	allowLive bool
}

// NewBuilder creates an export builder.
func NewBuilder(polls PollGetter, ledger RecordLister, allowLive bool) *Builder {
	return &Builder{polls: polls, ledger: ledger, allowLive: allowLive}
}

// Build assembles one row per vote record, ordered by the poll's declared
// option order and then by cast time ascending. It fails with
// models.ErrExportUnavailable when exports are disabled for the poll or the
// poll is still open (unless live export is configured).
func (b *Builder) Build(ctx context.Context, pollID string) (Export, error) {
	poll, err := b.polls.GetByID(ctx, pollID)
	if err != nil {
		return Export{}, err
	}
	if !poll.Settings.AllowExports {
		return Export{}, models.ErrExportUnavailable
	}
	if poll.Active && !b.allowLive {
		return Export{}, models.ErrExportUnavailable
	}

	records, err := b.ledger.ListByPoll(ctx, pollID)
	if err != nil {
		return Export{}, err
	}

	exp := Export{
		PollID:   pollID,
		Filename: fmt.Sprintf("poll-%s-results.csv", pollID),
		Rows:     make([][]string, 0, len(records)),
	}
	for _, rec := range records {
		exp.Rows = append(exp.Rows, []string{
			rec.VoterID,
			poll.OptionLabel(rec.OptionIndex),
			fmt.Sprintf("%d", rec.Weight),
			rec.CastAt.UTC().Format(time.RFC3339),
		})
		exp.TotalVotes++
	}
	return exp, nil
}

// WriteCSV writes the header and rows with RFC 4180 quoting, so values
// containing separators or quotes round-trip through any conformant parser.
func (e Export) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, row := range e.Rows {
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
