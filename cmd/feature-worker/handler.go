package main

import (
	"context"

	"hybrid-ranking-api/internal/application/feature"
	"hybrid-ranking-api/internal/infrastructure/messaging"
	"hybrid-ranking-api/pkg/logger"
)

// refreshHandler 处理特征刷新通知
type refreshHandler struct {
	invalidator *feature.Invalidator
}

func (h *refreshHandler) Handle(ctx context.Context, msg *messaging.Message) error {
	var payload messaging.FeatureRefreshMessage
	if err := msg.UnmarshalPayload(&payload); err != nil {
		return err
	}

	job := payload.Job
	if job == "" {
		job = messaging.RefreshJob(msg.Type)
	}
	names, ok := feature.FeaturesForJob(job)
	if !ok {
		logger.Warn(ctx, "unknown refresh job, skipping", "job", job, "message_id", msg.ID)
		return nil
	}

	return h.invalidator.Invalidate(ctx, names, payload.EntityIDs)
}
