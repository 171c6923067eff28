package connectivity

import (
	"context"
	"time"

	"tallybook/internal/models"

	"github.com/rs/zerolog"
)

// HealthChecker is satisfied by the remote client.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// HTTPProbe treats a successful remote health check as reachability.
type HTTPProbe struct {
	checker HealthChecker
	timeout time.Duration
	logger  *zerolog.Logger
}

func NewHTTPProbe(checker HealthChecker, timeout time.Duration, logger *zerolog.Logger) *HTTPProbe {
	if timeout <= 0 {
		timeout = models.DefaultProbeTimeout
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &HTTPProbe{checker: checker, timeout: timeout, logger: logger}
}

// Online runs one bounded health check.
func (p *HTTPProbe) Online(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.checker.Health(ctx); err != nil {
		p.logger.Debug().Err(err).Msg("reachability probe failed")
		return false
	}
	return true
}
