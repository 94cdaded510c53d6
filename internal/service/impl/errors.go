package impl

import (
	"context"
	"errors"

	"messenger/internal/domain"
	"messenger/internal/idp"
	"messenger/internal/observability/metrics"
	obsmw "messenger/internal/observability/middleware"
	"messenger/internal/store"
)

const (
	minPasswordLength = 8

	msgIdPUnavailable   = "Identity provider unavailable"
	msgStoreUnavailable = "Store unavailable"
)

// storeErr turns a store failure into a domain error, keeping known kinds.
func storeErr(err error) error {
	var de *domain.Error
	switch {
	case err == nil:
		return nil
	case errors.As(err, &de):
		return err
	case errors.Is(err, store.ErrRecordNotFound):
		return domain.ErrUserNotFound
	default:
		return domain.Upstream(msgStoreUnavailable, err)
	}
}

// idpErr reports a bridge failure the caller did not map to something more specific.
func idpErr(err error) error {
	if err == nil {
		return nil
	}
	return domain.Upstream(msgIdPUnavailable, err)
}

// logCompensation records the outcome of a best-effort undo. Failures are never surfaced.
func logCompensation(ctx context.Context, op string, err error, attrs ...any) {
	log := obsmw.Logger(ctx).With(attrs...)
	if err != nil {
		metrics.CompensationsTotal.WithLabelValues(op, "failed").Inc()
		log.Warn("compensating action failed", "op", op, "err", err, "idp_code", string(idp.CodeOf(err)))
		return
	}
	metrics.CompensationsTotal.WithLabelValues(op, "ok").Inc()
	log.Info("compensating action applied", "op", op)
}
