package command

import (
	"context"
	"errors"
	"fmt"

	"github.com/volunteerhub/profile-analytics/internal/domain/analytics"
	"github.com/volunteerhub/profile-analytics/internal/domain/shared"
	"github.com/volunteerhub/profile-analytics/pkg/logger"
	"github.com/volunteerhub/profile-analytics/pkg/metrics"
)

// ══════════════════════════════════════════════════════════════════════════════
// INVALIDATE ANALYTICS COMMAND
// Drops cached analytics after an upstream change so the next read recomputes.
// ══════════════════════════════════════════════════════════════════════════════

// ErrFlushUnsupported is returned by HandleAll when the cache cannot drop every entry.
var ErrFlushUnsupported = errors.New("analytics cache cannot drop every entry")

// Reason names the upstream change that made the cache stale.
type Reason string

const (
	ReasonProfileEdited    Reason = "profile_edited"
	ReasonDocumentVerified Reason = "document_verified"
	ReasonActivityRecorded Reason = "activity_recorded"
	// ReasonAll drops the whole entry.
	ReasonAll Reason = ""
)

// Sections returns the cache sections made stale by the reason.
// An empty result means the whole entry.
func (r Reason) Sections() ([]analytics.Section, error) {
	switch r {
	case ReasonProfileEdited, ReasonDocumentVerified:
		return []analytics.Section{analytics.SectionScore}, nil
	case ReasonActivityRecorded:
		return []analytics.Section{analytics.SectionScore, analytics.SectionBehavior}, nil
	case ReasonAll:
		return nil, nil
	}
	return nil, shared.WrapError("analytics", "Invalidate", shared.ErrInvalidInput,
		"unknown invalidation reason", fmt.Errorf("reason %q", string(r)))
}

// InvalidateAnalyticsCommand contains the data needed to invalidate one user's entry.
type InvalidateAnalyticsCommand struct {
	UserID string
	Reason Reason
}

// Validate validates the command.
func (c InvalidateAnalyticsCommand) Validate() error {
	if c.UserID == "" {
		return shared.ErrInvalidUserID
	}
	_, err := c.Reason.Sections()
	return err
}

// InvalidateAnalyticsResult contains the result of an invalidation.
type InvalidateAnalyticsResult struct {
	UserID   string              `json:"user_id"`
	Reason   Reason              `json:"reason"`
	Sections []analytics.Section `json:"sections"`
}

// InvalidateAnalyticsHandler handles the InvalidateAnalyticsCommand.
type InvalidateAnalyticsHandler struct {
	cache   analytics.Cache
	metrics *metrics.Manager
	logger  *logger.Logger
}

// NewInvalidateAnalyticsHandler creates a new InvalidateAnalyticsHandler.
func NewInvalidateAnalyticsHandler(cache analytics.Cache, m *metrics.Manager, log *logger.Logger) *InvalidateAnalyticsHandler {
	if cache == nil {
		cache = analytics.NopCache{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &InvalidateAnalyticsHandler{
		cache:   cache,
		metrics: m,
		logger:  log.With(logger.Component("invalidate_analytics")),
	}
}

// Handle drops the sections named by the reason. A cache outage is returned
// as shared.ErrCacheUnavailable so the caller can retry the hook.
func (h *InvalidateAnalyticsHandler) Handle(ctx context.Context, cmd InvalidateAnalyticsCommand) (*InvalidateAnalyticsResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	sections, _ := cmd.Reason.Sections()

	if err := h.cache.Invalidate(ctx, cmd.UserID, sections...); err != nil {
		h.metrics.RecordCache("invalidate", metrics.CacheError)
		h.logger.Warn("cache invalidation failed",
			logger.UserID(cmd.UserID), logger.String("reason", string(cmd.Reason)), logger.Err(err))
		return nil, err
	}
	h.metrics.RecordCache("invalidate", metrics.CacheOK)

	if len(sections) == 0 {
		sections = analytics.Sections()
	}
	h.logger.Debug("cache invalidated", logger.UserID(cmd.UserID), logger.String("reason", string(cmd.Reason)))
	return &InvalidateAnalyticsResult{UserID: cmd.UserID, Reason: cmd.Reason, Sections: sections}, nil
}

// HandleAll drops every cached snapshot, for example after the rules changed.
// It returns how many entries were removed.
func (h *InvalidateAnalyticsHandler) HandleAll(ctx context.Context) (int, error) {
	flusher, ok := h.cache.(analytics.Flusher)
	if !ok {
		return 0, ErrFlushUnsupported
	}
	deleted, err := flusher.InvalidateAll(ctx)
	if err != nil {
		h.metrics.RecordCache("invalidate_all", metrics.CacheError)
		h.logger.Warn("cache flush failed", logger.Err(err))
		return deleted, err
	}
	h.metrics.RecordCache("invalidate_all", metrics.CacheOK)
	h.logger.Info("cache flushed", logger.Int("entries", deleted))
	return deleted, nil
}
