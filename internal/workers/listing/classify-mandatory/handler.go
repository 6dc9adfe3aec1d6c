// internal/workers/listing/classify-mandatory/handler.go
package classifymandatory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	apperrors "listing-workers/internal/common/errors"
	"listing-workers/internal/common/logger"
	"listing-workers/internal/common/metrics"
	"listing-workers/internal/listing/mandatory"
	"listing-workers/internal/models"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "classify-mandatory"
)

type Handler struct {
	config       *Config
	classifier   *mandatory.Classifier
	errorHandler *apperrors.ErrorHandler
	logger       logger.Logger
}

func NewHandler(config *Config, classifier *mandatory.Classifier, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		classifier:   classifier,
		errorHandler: apperrors.NewErrorHandler(log),
		logger:       log,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		h.failJob(ctx, client, job, apperrors.NewInvalidJobInputError(fmt.Sprintf("parse input: %v", err)))
		return
	}

	output, err := h.execute(ctx, &input)
	if err != nil {
		h.failJob(ctx, client, job, err)
		return
	}

	h.completeJob(client, job, output)
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	pt := strings.ToLower(strings.TrimSpace(input.ProductType))
	if pt == "" {
		return nil, apperrors.NewInvalidJobInputError("productType is required")
	}

	for _, o := range input.Overrides {
		field := models.FieldID(o.Field)
		var err error
		if o.Mandatory == nil {
			_, err = h.classifier.ClearManual(ctx, pt, field)
		} else {
			_, err = h.classifier.SetManual(ctx, pt, field, *o.Mandatory)
		}
		if err != nil {
			return nil, err
		}
	}

	req := mandatory.Request{
		ProductType: pt,
		Scope:       input.Scope,
		Previous:    models.NewStringSet(input.Previous...),
		NoAI:        input.NoAI,
	}
	if input.Current != nil {
		req.Current = models.NewStringSet(input.Current...)
	}
	for _, f := range input.Fields {
		req.Fields = append(req.Fields, models.FieldID(f))
	}

	d, err := h.classifier.Classify(ctx, req)
	if err != nil {
		// decided fields are persisted; a retry asks only about the rest
		return nil, err
	}

	h.logger.Info("mandatory fields classified", map[string]interface{}{
		"productType": pt,
		"fields":      len(req.Fields),
		"mandatory":   len(d.Effective()),
	})

	return &Output{
		ProductType:   pt,
		Mandatory:     d.Effective().Sorted(),
		AIAdded:       d.AIAdded.Sorted(),
		AIRemoved:     d.AIRemoved.Sorted(),
		ManualAdded:   d.ManualAdded.Sorted(),
		ManualRemoved: d.ManualRemoved.Sorted(),
		Reviewed:      d.Reviewed.Sorted(),
	}, nil
}

func (h *Handler) completeJob(client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	if _, err := cmd.Send(context.Background()); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
}

func (h *Handler) failJob(ctx context.Context, client worker.JobClient, job entities.Job, err error) {
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(apperrors.AsStandard(err).Code)).Inc()
	h.errorHandler.HandleJobError(ctx, client, job, err)
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
