// Package purgereminders deletes terminal reminders past the retention window.
package purgereminders

import (
	"context"

	"github.com/jmhodges/clock"

	"habit-tracker/internal/common/errors"
	"habit-tracker/internal/common/logger"
	"habit-tracker/internal/common/metrics"
	"habit-tracker/internal/reminder/store"
)

const TaskType = "purge-reminders"

type Handler struct {
	config     *Config
	store      store.Store
	clk        clock.Clock
	errHandler *errors.ErrorHandler
	logger     logger.Logger
}

func NewHandler(config *Config, st store.Store, clk clock.Clock, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:     config,
		store:      st,
		clk:        clk,
		errHandler: errors.NewErrorHandler(log),
		logger:     log,
	}
}

func (h *Handler) Run(ctx context.Context) error {
	_, err := h.Sweep(ctx)
	return err
}

// Sweep deletes sent and cancelled reminders last updated before the
// retention cutoff and returns how many were removed.
func (h *Handler) Sweep(ctx context.Context) (int64, error) {
	cutoff := h.clk.Now().UTC().Add(-h.config.Retention)

	purged, err := h.store.PurgeTerminal(ctx, cutoff)
	if err != nil {
		return 0, h.errHandler.Handle(TaskType, err, map[string]interface{}{"cutoff": cutoff})
	}

	metrics.RetentionPurged.Add(float64(purged))
	h.logger.Info("Retention sweep completed", map[string]interface{}{
		"purged": purged,
		"cutoff": cutoff,
	})
	return purged, nil
}
