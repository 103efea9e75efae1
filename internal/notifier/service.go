package notifier

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"wrestfed/internal/storage"
	kit "wrestfed/internal/transport"
	logx "wrestfed/pkg/logx"
)

const historySize = 100

// Service is safe for concurrent use.
type Service struct {
	cfg     Config
	adapter kit.Adapter
	limiter *rate.Limiter
	log     logx.Logger

	hmu     sync.Mutex
	history []HistoryItem
}

func New(cfg Config, adapter kit.Adapter, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 3
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	if strings.TrimSpace(cfg.Template) == "" {
		cfg.Template = "Новое событие: {title}\nID: {id}"
	}
	return &Service{
		cfg:     cfg,
		adapter: adapter,
		// Burst equals the per-second rate so a small batch goes out at once.
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
		log:     log.With(logx.String("comp", "notifier")),
	}
}

// Destination resolves the target chat. ok is false when nothing is configured.
func (s *Service) Destination() (kit.ChatTarget, bool) {
	if s.cfg.ChatID != 0 {
		return kit.ChatTarget{ChatID: s.cfg.ChatID, ThreadID: s.cfg.ThreadID}, true
	}
	if s.cfg.FallbackChatID != 0 {
		return kit.ChatTarget{ChatID: s.cfg.FallbackChatID}, true
	}
	return kit.ChatTarget{}, false
}

// Format renders the message for ev.
func (s *Service) Format(ev storage.Event) string {
	return strings.NewReplacer("{title}", ev.Title, "{id}", ev.ExternalID).Replace(s.cfg.Template)
}

// Notify sends one message per event and returns one Delivery per event,
// in input order. It never fails as a whole.
func (s *Service) Notify(ctx context.Context, events []storage.Event) []Delivery {
	if len(events) == 0 {
		return nil
	}
	out := make([]Delivery, 0, len(events))

	to, ok := s.Destination()
	if !ok || s.adapter == nil {
		s.log.Warn("notification destination unresolved; skipping sends", logx.Int("events", len(events)))
		for _, ev := range events {
			out = append(out, Delivery{ExternalID: ev.ExternalID, Err: ErrNoDestination})
		}
		return out
	}

	failed := 0
	for _, ev := range events {
		d := s.send(ctx, to, ev)
		if d.Err != nil {
			failed++
			s.log.Error("notification failed",
				logx.String("external_id", ev.ExternalID),
				logx.Int64("chat_id", to.ChatID),
				logx.Err(d.Err),
			)
		} else {
			s.log.Info("notification sent", logx.String("external_id", ev.ExternalID))
		}
		s.appendHistory(d)
		out = append(out, d)
	}
	if failed > 0 {
		s.log.Warn("notifications partially failed", logx.Int("failed", failed), logx.Int("total", len(events)))
	}
	return out
}

func (s *Service) send(ctx context.Context, to kit.ChatTarget, ev storage.Event) Delivery {
	d := Delivery{ExternalID: ev.ExternalID, ChatID: to.ChatID}
	if err := s.limiter.Wait(ctx); err != nil {
		d.Err = err
		return d
	}
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.SendTimeout)
	defer cancel()
	ref, err := s.adapter.SendText(callCtx, to, s.Format(ev), &kit.SendOptions{DisablePreview: true})
	d.MessageID = ref.MessageID
	d.Err = err
	return d
}

// History returns recent deliveries, oldest first.
func (s *Service) History() []HistoryItem {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	return append([]HistoryItem(nil), s.history...)
}

func (s *Service) appendHistory(d Delivery) {
	s.hmu.Lock()
	s.history = append(s.history, HistoryItem{At: time.Now(), ExternalID: d.ExternalID, OK: d.OK()})
	if len(s.history) > historySize {
		s.history = s.history[len(s.history)-historySize:]
	}
	s.hmu.Unlock()
}
