package numbering

import (
	"fmt"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// DefaultPadding is used when a series does not specify its own width.
const DefaultPadding = 6

// Series issues document numbers for one document type of one business unit.
type Series struct {
	ID             int64
	BusinessUnitID int64
	DocumentType   string
	Prefix         string
	Padding        int
	NextNumber     int64
	UpdatedAt      time.Time
}

var (
	// ErrNotConfigured indicates no series exists for the document type.
	ErrNotConfigured = shared.Configuration("numbering: series not configured")
	// ErrSeriesRewind indicates an attempt to reuse already issued numbers.
	ErrSeriesRewind = shared.Invariant("numbering: next number cannot move backwards")
	// ErrInvalidSeries indicates malformed series settings.
	ErrInvalidSeries = shared.Validation("numbering: business unit, document type and positive next number required")
)

// Format renders n with the series prefix and zero padding.
func (s Series) Format(n int64) string {
	width := s.Padding
	if width <= 0 {
		width = DefaultPadding
	}
	return fmt.Sprintf("%s%0*d", s.Prefix, width, n)
}

func (s *Series) normalize() error {
	s.DocumentType = strings.ToUpper(strings.TrimSpace(s.DocumentType))
	if s.NextNumber == 0 {
		s.NextNumber = 1
	}
	if s.Padding == 0 {
		s.Padding = DefaultPadding
	}
	if s.BusinessUnitID <= 0 || s.DocumentType == "" || s.NextNumber < 1 || s.Padding < 1 || s.Padding > 18 {
		return ErrInvalidSeries
	}
	return nil
}
