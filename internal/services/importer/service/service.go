// Package service loads saved artifacts and writes them to the configured sinks
package service

import (
	"context"
	"strings"

	"mixshift/internal/modkit/repokit"
	"mixshift/internal/platform/clock"
	perr "mixshift/internal/platform/errors"
	"mixshift/internal/platform/logger"
	"mixshift/internal/services/importer/domain"
	"mixshift/internal/services/importer/repo"
)

// Service implements domain.ImportPort.
// The first sink is authoritative; a failure there fails the import.
// Later sinks are best effort and only show up in Result.Errors
type Service struct {
	DB     repokit.TxRunner
	Binder repokit.Binder[repo.Storage]
	Source domain.Source
	Sinks  []domain.Sink
	Clock  clock.Clock
}

// New constructs the importer service
func New(db repokit.TxRunner, b repokit.Binder[repo.Storage], src domain.Source, sinks ...domain.Sink) *Service {
	if db == nil || b == nil || src == nil {
		panic("importer.Service requires a TxRunner, a repo binder and a source")
	}
	if len(sinks) == 0 {
		sinks = []domain.Sink{PGSink{DB: db, Binder: b}}
	}
	return &Service{DB: db, Binder: b, Source: src, Sinks: sinks, Clock: clock.System{}}
}

// Import implements domain.ImportPort
func (s *Service) Import(ctx context.Context, req domain.Request) (domain.Result, error) {
	log := logger.C(ctx).With().
		Int64("download_id", req.DownloadID).
		Str("report_type", req.ReportType).
		Str("date_range", req.Range).
		Logger()

	var res domain.Result
	var rows []domain.Row
	if !req.NoData {
		var err error
		if rows, err = s.Source.Load(ctx, req.Path); err != nil {
			return res, s.failed(ctx, req, err)
		}
	}

	for i, sink := range s.Sinks {
		if err := sink.Write(ctx, req, rows); err != nil {
			if i == 0 {
				return res, s.failed(ctx, req, err)
			}
			log.Warn().Err(err).Str("sink", sink.Name()).Msg("secondary sink failed")
			res.Errors = append(res.Errors, sink.Name()+": "+err.Error())
			continue
		}
		res.Sinks = append(res.Sinks, sink.Name())
	}
	res.Rows = len(rows)

	if err := s.mark(ctx, req.DownloadID, ""); err != nil {
		return res, err
	}
	log.Info().Int("rows", res.Rows).Strs("sinks", res.Sinks).Msg("artifact imported")
	return res, nil
}

// failed records cause on the download and returns it
func (s *Service) failed(ctx context.Context, req domain.Request, cause error) error {
	msg := strings.TrimSpace(cause.Error())
	if err := s.mark(context.WithoutCancel(ctx), req.DownloadID, msg); err != nil {
		logger.C(ctx).Error().Err(err).Int64("download_id", req.DownloadID).Msg("could not record import failure")
	}
	return perr.Wrapf(cause, perr.CodeOf(cause), "import download %d", req.DownloadID)
}

func (s *Service) mark(ctx context.Context, downloadID int64, importErr string) error {
	return s.DB.Tx(ctx, func(q repokit.Queryer) error {
		return s.Binder.Bind(q).MarkImported(ctx, downloadID, importErr)
	})
}
