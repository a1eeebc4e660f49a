package application

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"askhome/internal/alexa"
	"askhome/internal/smarthome"
)

const healthyDescription = "The system is currently healthy"

// Skill answers smart-home directives for the appliances in its registry.
type Skill struct {
	registry ApplianceRegistry
	store    ResponseStore
	health   HealthChecker
	notifier Notifier
	logger   *slog.Logger
	ttl      time.Duration
}

// NewSkill wires a skill. health may be nil, in which case health checks
// always succeed.
func NewSkill(
	registry ApplianceRegistry,
	store ResponseStore,
	health HealthChecker,
	notifier Notifier,
	logger *slog.Logger,
	ttl time.Duration,
) *Skill {
	return &Skill{
		registry: registry,
		store:    store,
		health:   health,
		notifier: notifier,
		logger:   logger,
		ttl:      ttl,
	}
}

// Handle answers one raw directive. invocation is passed through to the
// request as its context. An error is returned only when raw is not a
// directive at all; protocol failures are encoded as exception envelopes.
func (s *Skill) Handle(ctx context.Context, raw []byte, invocation any) ([]byte, error) {
	req, err := alexa.ParseRequest(raw, invocation)
	if err != nil {
		return nil, err
	}

	messageID := req.Header().MessageID()
	logger := s.logger.With("directive", req.Name(), "message_id", messageID)

	if cached, ok := s.cached(ctx, logger, req); ok {
		logger.Info("answering redelivered directive from cache")
		return cached, nil
	}

	logger.Info("handling directive", "family", req.Family())
	resp, ok := s.dispatch(ctx, logger, req)

	body, err := resp.Marshal()
	if err != nil {
		return nil, err
	}

	// Failures are not cached so a redelivery gets another attempt.
	if key := s.cacheKey(req); ok && key != "" {
		if err := s.store.Put(ctx, key, body, s.ttl); err != nil {
			logger.Warn("caching response", "error", err)
		}
	}

	logger.Info("directive answered", "response", resp.Header.Name())
	return body, nil
}

// cacheKey is empty for directives whose responses are not cached. Only
// commands are cached: running a control directive twice has side effects,
// answering a query twice does not. The directive name is part of the key so
// a reused message id never replays another directive's answer.
func (s *Skill) cacheKey(req alexa.Request) string {
	messageID := req.Header().MessageID()
	if s.store == nil || req.Namespace() != alexa.ControlNamespace || messageID == "" {
		return ""
	}
	return req.Name() + ":" + messageID
}

func (s *Skill) cached(ctx context.Context, logger *slog.Logger, req alexa.Request) ([]byte, bool) {
	key := s.cacheKey(req)
	if key == "" {
		return nil, false
	}
	body, ok, err := s.store.Get(ctx, key)
	if err != nil {
		logger.Warn("reading response cache", "error", err)
		return nil, false
	}
	return body, ok
}

// dispatch reports false when the response is an exception envelope.
func (s *Skill) dispatch(ctx context.Context, logger *slog.Logger, req alexa.Request) (alexa.Envelope, bool) {
	switch r := req.(type) {
	case *alexa.DiscoverRequest:
		return r.Response(s.registry), true
	case *alexa.HealthCheckRequest:
		return s.healthCheck(ctx, logger, r), true
	}

	applianceID, ok := req.ApplianceID()
	if !ok {
		return s.fail(ctx, logger, req, alexa.NewUnexpectedInformationReceivedError("appliance")), false
	}
	logger = logger.With("appliance", applianceID)

	appliance, ok := s.registry.Lookup(applianceID)
	if !ok {
		return s.fail(ctx, logger, req, alexa.NewNoSuchTargetError()), false
	}

	action := smarthome.ActionName(req.Name())
	if !slices.Contains(appliance.Actions(), action) {
		return s.fail(ctx, logger, req, alexa.NewUnsupportedOperationError()), false
	}

	resp, err := appliance.Perform(ctx, action, req)
	if err != nil {
		exc, ok := alexa.AsException(err)
		if !ok {
			logger.Error("action failed", "action", action, "error", err)
			exc = alexa.NewDriverInternalError()
		}
		return s.fail(ctx, logger, req, exc), false
	}
	return resp, true
}

func (s *Skill) healthCheck(ctx context.Context, logger *slog.Logger, req *alexa.HealthCheckRequest) alexa.Envelope {
	if s.health == nil {
		return req.Response(true, healthyDescription)
	}
	if err := s.health.Ping(ctx); err != nil {
		logger.Warn("health check failed", "error", err)
		return req.Response(false, fmt.Sprintf("Device backend unavailable: %v", err))
	}
	return req.Response(true, healthyDescription)
}

func (s *Skill) fail(ctx context.Context, logger *slog.Logger, req alexa.Request, exc alexa.Exception) alexa.Envelope {
	logger.Warn("directive failed", "error", exc.Name(), "payload", exc.Payload())

	target, _ := req.ApplianceID()
	message := fmt.Sprintf("%s failed for %q: %s", req.Name(), target, exc.Name())
	if err := s.notifier.Notify(ctx, message); err != nil {
		logger.Error("notifying failure", "error", err)
	}

	return req.ExceptionResponse(exc)
}
