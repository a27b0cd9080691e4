package intent

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"aisquery/internal/domain"
)

// maxAttempts is the first draft plus one corrective retry.
const maxAttempts = 2

var errPlannerTimeout = errors.New("planner did not answer in time")

type Config struct {
	Timeout  time.Duration
	Defaults Defaults
}

type Parser struct {
	planner Planner
	cfg     Config
	logger  *slog.Logger
}

func NewParser(planner Planner, cfg Config, logger *slog.Logger) *Parser {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.Defaults.Format == "" {
		cfg.Defaults.Format = domain.FormatTable
	}
	if cfg.Defaults.DataSource == "" {
		cfg.Defaults.DataSource = domain.SourceRawAIS
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{planner: planner, cfg: cfg, logger: logger}
}

// Parse asks the planner for a draft and decodes it. A failed or timed-out
// first attempt is retried exactly once with a description of the failure.
// Cancellation of ctx is returned as-is, never as an IntentParseError.
func (p *Parser) Parse(ctx context.Context, req PlanRequest) (domain.CanonicalIntent, error) {
	if strings.TrimSpace(req.Text) == "" {
		return domain.CanonicalIntent{}, domain.NewIntentParseError(domain.ErrEmptyQuery)
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			req.CorrectionHint = correctionHint(lastErr)
		}
		intent, err := p.attempt(ctx, req)
		if err == nil {
			if attempt > 1 {
				p.logger.Info("planner draft accepted after correction", "request_id", req.RequestID)
			}
			return intent, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return domain.CanonicalIntent{}, ctxErr
		}
		lastErr = err
		p.logger.Warn("planner draft rejected",
			"request_id", req.RequestID,
			"attempt", attempt,
			"error", err,
		)
	}
	return domain.CanonicalIntent{}, domain.NewIntentParseError(lastErr)
}

func (p *Parser) attempt(ctx context.Context, req PlanRequest) (domain.CanonicalIntent, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	raw, err := p.planner.Plan(attemptCtx, req)
	if err != nil {
		if ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			return domain.CanonicalIntent{}, errors.Wrapf(errPlannerTimeout, "after %s", p.cfg.Timeout)
		}
		return domain.CanonicalIntent{}, err
	}
	return DecodeIntent(raw, p.cfg.Defaults)
}

func correctionHint(err error) string {
	var se *SchemaError
	switch {
	case errors.As(err, &se):
		return se.Error()
	case errors.Is(err, errPlannerTimeout):
		return "the previous attempt timed out; answer with the JSON plan only"
	default:
		return "the previous attempt failed; answer with the JSON plan only"
	}
}
