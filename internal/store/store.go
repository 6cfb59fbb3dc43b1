// Package store keeps a local sqlite archive of cycle outcomes so the
// on-device status tooling can inspect recent history without touching the
// remote collector.
package store

import (
	"context"

	"github.com/linesights/powermon/internal/errors"
	"github.com/linesights/powermon/internal/logger"
)

type service struct {
	repo *sqliteArchive
}

type noopArchive struct{}

// NewArchive opens the cycle history archive at dbPath. An empty path
// disables archiving and returns a no-op implementation.
func NewArchive(dbPath string) (Archive, error) {
	if dbPath == "" {
		logger.Debug().Msg("cycle history disabled, using no-op archive")
		return &noopArchive{}, nil
	}

	repo, err := newRepository(dbPath)
	if err != nil {
		return nil, err
	}

	return &service{repo: repo}, nil
}

func (s *service) Record(ctx context.Context, rec *CycleRecord) error {
	errFactory := errors.New()

	if rec == nil {
		return errFactory.New(ErrInvalidRecord)
	}

	select {
	case <-ctx.Done():
		return errFactory.Wrap(ErrRecordTimeout, ctx.Err())
	default:
		return s.repo.Record(ctx, rec)
	}
}

func (s *service) Close() error {
	return s.repo.Close()
}

func (*noopArchive) Record(_ context.Context, _ *CycleRecord) error {
	return nil
}

func (*noopArchive) Close() error {
	return nil
}
