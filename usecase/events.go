package usecase

import (
	"context"

	"go.uber.org/zap"

	"github.com/satriahrh/kaiwa/internal/pipeline"
)

// StartEventListener drains the pipeline event channel and logs lifecycle
// events until ctx is done.
func StartEventListener(ctx context.Context, pipelines *pipeline.Manager, logger *zap.Logger) {
	go func() {
		events := pipelines.EventChannel()
		for {
			select {
			case <-ctx.Done():
				return
			case event := <-events:
				handlePipelineEvent(event, logger)
			}
		}
	}()
}

func handlePipelineEvent(event pipeline.Event, logger *zap.Logger) {
	fields := []zap.Field{
		zap.String("pipelineID", string(event.PipelineID)),
		zap.String("definition", event.Definition),
		zap.String("sessionID", event.SessionID),
	}
	if event.StepID != "" {
		fields = append(fields, zap.String("stepID", string(event.StepID)))
	}

	switch event.Type {
	case pipeline.EventPipelineStarted:
		logger.Debug("Pipeline started", fields...)
	case pipeline.EventPipelineCompleted:
		logger.Info("Pipeline completed", fields...)
	case pipeline.EventPipelineFailed, pipeline.EventStepFailed:
		if event.Data != nil {
			fields = append(fields, zap.Any("error", event.Data))
		}
		logger.Warn("Pipeline event", append(fields, zap.String("type", event.Type))...)
	default:
		logger.Debug("Pipeline event", append(fields, zap.String("type", event.Type))...)
	}
}
