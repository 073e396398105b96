package service

import (
	"context"

	"github.com/vkazarin/tokenguard/internal/models"
)

// AlertDispatcher receives security alerts and abuse notifications.
// Delivery guarantees are the dispatcher's responsibility.
type AlertDispatcher interface {
	Dispatch(ctx context.Context, alert models.SecurityAlert)
}
