// internal/workers/listing/fill-template/handler.go
package filltemplate

import (
	"context"
	"encoding/json"
	"fmt"

	apperrors "listing-workers/internal/common/errors"
	"listing-workers/internal/common/logger"
	"listing-workers/internal/common/metrics"
	"listing-workers/internal/common/validation"
	"listing-workers/internal/listing/pipeline"
	"listing-workers/internal/models"
	"listing-workers/pkg/registry"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "fill-template"
)

type Handler struct {
	config       *Config
	pipeline     *pipeline.Pipeline
	attributes   *models.AttributeTable
	aliases      *models.AliasTable
	errorHandler *apperrors.ErrorHandler
	logger       logger.Logger
}

func NewHandler(config *Config, p *pipeline.Pipeline, reg *registry.AttributeRegistry, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		pipeline:     p,
		attributes:   reg.Table(),
		aliases:      reg.AliasTable(),
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

	input, err := h.parseInput(job.Variables)
	if err != nil {
		h.failJob(ctx, client, job, err)
		return
	}

	output, err := h.execute(ctx, input)
	if err != nil {
		h.failJob(ctx, client, job, err)
		return
	}

	h.completeJob(client, job, output)
}

func (h *Handler) parseInput(variables string) (*Input, error) {
	if err := validation.MustCompile(InputSchema).Validate(variables); err != nil {
		return nil, apperrors.NewInvalidJobInputError(err.Error())
	}
	var input Input
	if err := json.Unmarshal([]byte(variables), &input); err != nil {
		return nil, apperrors.NewInvalidJobInputError(fmt.Sprintf("parse input: %v", err))
	}
	return &input, nil
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	srcLayout := h.layout(input.Source)
	source := pipeline.NewMemorySheet()
	source.AddSheet(srcLayout.Sheet, input.Source.Rows)

	dstLayout := h.layout(input.Target)
	target := pipeline.NewMemorySheet()
	target.AddSheet(dstLayout.Sheet, input.Target.Rows)

	tpl, _, err := pipeline.LoadTemplate(source, srcLayout, input.Source.Scope, h.aliases)
	if err != nil {
		return nil, err
	}
	fields, err := pipeline.TargetFields(target, dstLayout)
	if err != nil {
		return nil, err
	}

	res, err := h.pipeline.Run(ctx, pipeline.Request{
		Source:     tpl,
		Target:     input.Target.Scope,
		Fields:     fields,
		Attributes: h.attributes,
		LangSeed:   toValueMap(input.LangSeed),
		NoAI:       input.NoAI,
	})
	if err != nil {
		return nil, err
	}

	skus := make([]models.SKU, 0, tpl.Len())
	for _, r := range tpl.Records() {
		skus = append(skus, r.SKU)
	}
	if err := pipeline.WriteOutput(target, dstLayout, skus, res.Output); err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	h.logger.Info("template filled", map[string]interface{}{
		"runId":    res.RunID,
		"skus":     len(skus),
		"fields":   len(fields),
		"failures": len(res.Failures),
	})

	return &Output{
		RunID:        res.RunID,
		Rows:         target.Rows(dstLayout.Sheet),
		Lang:         fromValueMap(res.Lang),
		Failures:     res.Failures,
		FailureCount: len(res.Failures),
		Mandatory:    res.Mandatory,
	}, nil
}

func (h *Handler) layout(s Sheet) pipeline.Layout {
	name := s.Sheet
	if name == "" {
		name = h.config.DefaultSheet
	}
	first := s.FirstDataRow
	if first <= s.HeaderRow {
		first = s.HeaderRow + 1
	}
	return pipeline.Layout{Sheet: name, HeaderRow: s.HeaderRow, FirstDataRow: first}
}

func toValueMap(m map[string]map[string]string) models.ValueMap {
	out := make(models.ValueMap, len(m))
	for sku, fields := range m {
		for id, v := range fields {
			out.Set(models.SKU(sku), models.FieldID(id), v)
		}
	}
	return out
}

func fromValueMap(m models.ValueMap) map[string]map[string]string {
	out := make(map[string]map[string]string, len(m))
	for sku, fields := range m {
		row := make(map[string]string, len(fields))
		for id, v := range fields {
			row[string(id)] = v
		}
		out[string(sku)] = row
	}
	return out
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
	_, err = cmd.Send(context.Background())
	if err != nil {
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
