// Package ingest consumes raw client records from the ingestion feed.
package ingest

import (
	"context"
	"errors"

	"github.com/Gobusters/ectologger"
	"github.com/go-playground/validator/v10"

	"github.com/mavasquez401/crm-territory-engine/pkg/kafka"
	"github.com/mavasquez401/crm-territory-engine/pkg/models"
	"github.com/mavasquez401/crm-territory-engine/pkg/normalizers"
	"github.com/mavasquez401/crm-territory-engine/pkg/pipeline"
	"github.com/mavasquez401/crm-territory-engine/pkg/tracing"
)

var validate = validator.New()

// ClientStore is the client dimension surface ingestion needs.
type ClientStore interface {
	Upsert(ctx context.Context, req models.CreateClientRequest) (*models.Client, error)
}

// Service turns ingestion messages into client dimension rows. Run request
// messages on the same topic trigger an assignment run out of band.
type Service struct {
	clients  ClientStore
	pipeline *pipeline.Pipeline
	logger   ectologger.Logger
}

// NewService creates a new ingest service
func NewService(clients ClientStore, p *pipeline.Pipeline, logger ectologger.Logger) *Service {
	return &Service{
		clients:  clients,
		pipeline: p,
		logger:   logger,
	}
}

// HandleMessage is the Kafka consumer callback. Invalid records are logged
// and skipped so one bad record cannot wedge the partition; persistence
// errors are returned for redelivery.
func (s *Service) HandleMessage(ctx context.Context, msg *kafka.IncomingMessage) error {
	ctx, span := tracing.StartSpan(ctx, "ingest.Service.HandleMessage")
	defer span.End()

	if msg.IsRunRequest() {
		s.triggerRun(ctx)
		return nil
	}

	if msg.ClientMessage == nil {
		s.logger.WithContext(ctx).WithField("key", msg.Key).Warn("Skipping message with no client record")
		return nil
	}

	req := *msg.ClientMessage
	req.AdvisorEmail = normalizers.NormalizeEmail(req.AdvisorEmail)
	if err := validate.Struct(req); err != nil {
		s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"client_id": msg.GetClientID(),
			"source":    msg.GetSource(),
		}).Warn("Skipping invalid client record")
		return nil
	}

	if _, err := s.clients.Upsert(ctx, req); err != nil {
		return err
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"client_id": req.ClientID,
		"source":    msg.GetSource(),
	}).Debug("Ingested client record")
	return nil
}

func (s *Service) triggerRun(ctx context.Context) {
	if s.pipeline == nil {
		return
	}

	s.logger.WithContext(ctx).Info("Run requested via ingestion topic")

	go func() {
		report, err := s.pipeline.Run(context.Background())
		if err != nil && !errors.Is(err, pipeline.ErrRunInProgress) {
			s.logger.WithError(err).Error("Requested run failed")
			return
		}
		if report != nil {
			s.logger.WithFields(map[string]any{
				"run_id": report.RunID,
				"status": string(report.Status),
			}).Info("Requested run finished")
		}
	}()
}
