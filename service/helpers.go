package service

import (
	"context"
	"net/http"

	"louyass/core"
	"louyass/notify"

	"go.uber.org/zap"
)

// ============================================================================
// Shared Helper Functions
// ============================================================================

var errUnauthenticated = &Error{Status: http.StatusUnauthorized, Detail: "Non authentifié"}

// requireCaller rejects anonymous calls. Handlers behind the JWT middleware
// always pass a caller; this guards direct service use.
func requireCaller(caller *core.User) error {
	if caller == nil || caller.ID == 0 {
		return errUnauthenticated
	}
	return nil
}

// parties loads the tenant and the owner concerned by an event. Lookup
// failures are logged and leave the party nil: a missing mail recipient must
// not fail the business operation that already succeeded.
func parties(ctx context.Context, users UserReader, logger *zap.SugaredLogger, tenantID, ownerID int64) (tenant, owner *core.User) {
	if tenantID != 0 {
		u, err := users.GetUserByID(ctx, tenantID)
		if err != nil {
			logger.Warnw("Failed to load tenant for notification", "user_id", tenantID, "error", err)
		} else {
			tenant = u
		}
	}
	if ownerID != 0 {
		u, err := users.GetUserByID(ctx, ownerID)
		if err != nil {
			logger.Warnw("Failed to load owner for notification", "user_id", ownerID, "error", err)
		} else {
			owner = u
		}
	}
	return tenant, owner
}

func publisherOrDiscard(p notify.Publisher) notify.Publisher {
	if p == nil {
		return notify.Discard{}
	}
	return p
}
