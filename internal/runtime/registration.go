package runtime

import (
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/samber/lo"

	errspkg "github.com/drblury/relayflow/internal/runtime/errors"
)

// MessageHandlerRegistration wires a consume-only Watermill handler. Replies,
// if any, are published by the handler itself.
type MessageHandlerRegistration struct {
	Name         string
	ConsumeQueue string
	Handler      message.NoPublishHandlerFunc
	// Subscriber defaults to the service subscriber.
	Subscriber message.Subscriber
}

// RegisterMessageHandler attaches the provided handler to the service router.
func RegisterMessageHandler(svc *Service, cfg MessageHandlerRegistration) error {
	if svc == nil {
		return errspkg.ErrServiceRequired
	}
	return svc.registerHandler(cfg)
}

func (s *Service) registerHandler(cfg MessageHandlerRegistration) error {
	if cfg.Handler == nil {
		return errspkg.ErrHandlerRequired
	}
	if cfg.ConsumeQueue == "" {
		return errspkg.ErrConsumeQueueRequired
	}
	if cfg.Name == "" {
		return errspkg.ErrHandlerNameRequired
	}
	if cfg.Subscriber == nil {
		cfg.Subscriber = s.subscriber
	}

	stats := newHandlerStats()

	s.handlersMu.Lock()
	taken := lo.ContainsBy(s.handlers, func(h *HandlerInfo) bool { return h.Name == cfg.Name })
	if !taken {
		s.handlers = append(s.handlers, &HandlerInfo{
			Name:         cfg.Name,
			ConsumeQueue: cfg.ConsumeQueue,
			Stats:        stats,
		})
	}
	s.handlersMu.Unlock()
	if taken {
		return fmt.Errorf("%w: %s", errspkg.ErrDuplicateHandlerName, cfg.Name)
	}

	s.router.AddNoPublisherHandler(
		cfg.Name,
		cfg.ConsumeQueue,
		cfg.Subscriber,
		wrapHandlerWithStats(cfg.Handler, stats, s.getErrorClassifier()),
	)
	return nil
}

// Handlers lists the registered handlers in registration order.
func (s *Service) Handlers() []*HandlerInfo {
	s.handlersMu.RLock()
	defer s.handlersMu.RUnlock()
	return append([]*HandlerInfo(nil), s.handlers...)
}

func wrapHandlerWithStats(handler message.NoPublishHandlerFunc, stats *HandlerStats, classifier ErrorClassifier) message.NoPublishHandlerFunc {
	return func(msg *message.Message) error {
		stats.onMessageStart()
		start := time.Now()
		err := handler(msg)
		stats.onMessageFinish(time.Since(start), err, classifier)
		return err
	}
}
