package executor

import (
	"context"
	"errors"

	"github.com/dvcrn/notebook-gateway/internal/backend"
	apperr "github.com/dvcrn/notebook-gateway/internal/errors"
	"github.com/rs/zerolog"
)

// Retry bounds used by the service layer. Each counts retries after the
// first attempt, so an operation runs at most bound+1 times.
const (
	DefaultFileRetries = 3
	DefaultReadRetries = 2
	DefaultChatRetries = 2
)

// ClientProvider hands out backend handles. *auth.Manager implements it.
type ClientProvider interface {
	GetClient(ctx context.Context) (*backend.Client, error)
	ForceRefresh(ctx context.Context) (*backend.Client, error)
}

// Operation is a unit of remote work. It receives the handle to use and may
// be invoked more than once.
type Operation[T any] func(ctx context.Context, c *backend.Client) (T, error)

// Execute runs op with a handle from provider. When op fails because the
// credential has expired, a fresh credential is forced and op runs again, up
// to maxRetries more times. maxRetries counts retries after the first
// attempt, so op runs at most maxRetries+1 times. Any other failure is
// returned unchanged without touching the credential.
func Execute[T any](ctx context.Context, provider ClientProvider, op Operation[T], maxRetries int) (T, error) {
	return ExecuteLogged(ctx, provider, op, maxRetries, zerolog.Ctx(ctx))
}

// ExecuteLogged is Execute with an explicit logger.
func ExecuteLogged[T any](ctx context.Context, provider ClientProvider, op Operation[T], maxRetries int, logger *zerolog.Logger) (T, error) {
	var zero T
	if maxRetries < 0 {
		maxRetries = 0
	}

	client, err := provider.GetClient(ctx)
	if err != nil {
		return zero, unavailable(err)
	}

	for attempt := 0; ; attempt++ {
		result, err := op(ctx, client)
		if err == nil {
			if attempt > 0 {
				logger.Info().Int("attempt", attempt+1).Msg("Request succeeded after credential refresh")
			}
			return result, nil
		}
		if !apperr.IsExpiryShaped(err) {
			return zero, err
		}
		if attempt >= maxRetries {
			logger.Error().
				Err(err).
				Int("attempts", attempt+1).
				Msg("Credential still rejected after refresh, giving up")
			return zero, &apperr.Error{
				Kind:   apperr.KindRetriesExhausted,
				Op:     "executor",
				Detail: "credential rejected after every refresh",
				Err:    err,
			}
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, ctxErr
		}

		logger.Warn().
			Err(err).
			Int("attempt", attempt+1).
			Int("max_retries", maxRetries).
			Msg("Credential rejected, forcing refresh")

		client, err = provider.ForceRefresh(ctx)
		if err != nil {
			return zero, unavailable(err)
		}
	}
}

// unavailable keeps context errors as they are and tags everything else as
// a missing credential.
func unavailable(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if apperr.KindOf(err) == apperr.KindCredentialUnavailable {
		return err
	}
	return apperr.Wrap(apperr.KindCredentialUnavailable, "executor", err)
}
