package numbering

import (
	"context"
	"errors"
	"strings"
)

// TxRepository exposes series persistence inside a unit of work.
type TxRepository interface {
	// GetSeriesForUpdate locks the series row until the unit of work ends.
	GetSeriesForUpdate(ctx context.Context, unitID int64, documentType string) (Series, error)
	SaveSeries(ctx context.Context, series Series) (Series, error)
	ListSeries(ctx context.Context, unitID int64) ([]Series, error)
}

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// Issue takes the next number of the series within the caller's unit of work.
// The increment rolls back with the caller, so numbers are only consumed on commit.
func Issue(ctx context.Context, tx TxRepository, unitID int64, documentType string) (string, error) {
	series, err := tx.GetSeriesForUpdate(ctx, unitID, strings.ToUpper(documentType))
	if err != nil {
		return "", err
	}
	number := series.Format(series.NextNumber)
	series.NextNumber++
	if _, err := tx.SaveSeries(ctx, series); err != nil {
		return "", err
	}
	return number, nil
}

// Service issues and configures numbering series.
type Service struct {
	repo RepositoryPort
}

// NewService constructs the numbering service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// Issue returns the next number for (unit, document type) in its own unit of work.
func (s *Service) Issue(ctx context.Context, unitID int64, documentType string) (string, error) {
	var number string
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		number, err = Issue(ctx, tx, unitID, documentType)
		return err
	})
	return number, err
}

// Configure creates a series or updates its prefix, padding and next number.
func (s *Service) Configure(ctx context.Context, in Series) (Series, error) {
	if err := in.normalize(); err != nil {
		return Series{}, err
	}
	var saved Series
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetSeriesForUpdate(ctx, in.BusinessUnitID, in.DocumentType)
		switch {
		case errors.Is(err, ErrNotConfigured):
			in.ID = 0
		case err != nil:
			return err
		default:
			if in.NextNumber < current.NextNumber {
				return ErrSeriesRewind
			}
			in.ID = current.ID
		}
		saved, err = tx.SaveSeries(ctx, in)
		return err
	})
	return saved, err
}

// List returns every series of the unit.
func (s *Service) List(ctx context.Context, unitID int64) ([]Series, error) {
	var out []Series
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		out, err = tx.ListSeries(ctx, unitID)
		return err
	})
	return out, err
}
