package router

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	"wrestfed/internal/notifier"
	"wrestfed/internal/pipeline"
	"wrestfed/internal/storage"
	"wrestfed/internal/task/scheduler"
)

type EventStore interface {
	ListEvents(ctx context.Context, f storage.Filter) ([]storage.Event, error)
	CountEvents(ctx context.Context, f storage.Filter) (int, error)
	SetStatus(ctx context.Context, externalID, status string) error
	SetCategory(ctx context.Context, externalID, category string) error
}

type SchedulerPort interface {
	Snapshot() scheduler.Snapshot
	RunNow(ctx context.Context, name string) error
}

type CyclePort interface {
	Last() (pipeline.Result, bool)
}

type HistoryPort interface {
	History() []notifier.HistoryItem
}

// Ops holds what the operator commands act on. Job is the schedule name
// /ingest triggers.
type Ops struct {
	Events    EventStore
	Scheduler SchedulerPort
	Cycles    CyclePort
	Notifier  HistoryPort
	Job       string
	Location  *time.Location
}

const (
	eventsDefault = 5
	eventsMax     = 50
)

// Commands returns the operator command set.
func (o Ops) Commands() []Command {
	return []Command{
		{
			Name:        "start",
			Description: "приветствие",
			Access:      AccessEveryone,
			Handle: func(ctx context.Context, req *Request) error {
				return req.Reply(ctx, "Бот зеркалирует стену VK-сообщества и присылает уведомления о новых событиях. /help для списка команд.")
			},
		},
		{
			Name:        "events",
			Aliases:     []string{"e"},
			Description: "последние события",
			Usage:       "/events [n]",
			Access:      AccessOwnerOnly,
			Handle:      o.handleEvents,
		},
		{
			Name:        "ingest",
			Description: "запустить цикл сейчас",
			Access:      AccessOwnerOnly,
			Timeout:     -1, // the scheduler applies the cycle timeout
			Handle:      o.handleIngest,
		},
		{
			Name:        "status",
			Description: "состояние планировщика и последнего цикла",
			Access:      AccessOwnerOnly,
			Handle:      o.handleStatus,
		},
		{
			Name:        "setstatus",
			Description: "изменить статус события",
			Usage:       "/setstatus <id> <status>",
			Access:      AccessOwnerOnly,
			Handle: func(ctx context.Context, req *Request) error {
				return o.handleSet(ctx, req, "status", o.Events.SetStatus)
			},
		},
		{
			Name:        "setcategory",
			Description: "изменить категорию события",
			Usage:       "/setcategory <id> <category>",
			Access:      AccessOwnerOnly,
			Handle: func(ctx context.Context, req *Request) error {
				return o.handleSet(ctx, req, "category", o.Events.SetCategory)
			},
		},
	}
}

func (o Ops) loc() *time.Location {
	if o.Location != nil {
		return o.Location
	}
	return time.UTC
}

func (o Ops) handleEvents(ctx context.Context, req *Request) error {
	n := eventsDefault
	if len(req.Args) > 0 {
		v, err := strconv.Atoi(req.Args[0])
		if err != nil || v <= 0 {
			return usage("использование: /events [n], n от 1 до %d", eventsMax)
		}
		n = min(v, eventsMax)
	}
	evs, err := o.Events.ListEvents(ctx, storage.Filter{Limit: n})
	if err != nil {
		return err
	}
	if len(evs) == 0 {
		return req.Reply(ctx, "событий пока нет")
	}
	var b strings.Builder
	for _, ev := range evs {
		fmt.Fprintf(&b, "<code>%s</code> [%s/%s] %s", html.EscapeString(ev.ExternalID), ev.Status, ev.Category, html.EscapeString(ev.Title))
		if ev.PublishedAt != nil {
			b.WriteString(" · " + ev.PublishedAt.In(o.loc()).Format("2006-01-02 15:04"))
		}
		b.WriteByte('\n')
	}
	return req.Reply(ctx, strings.TrimRight(b.String(), "\n"))
}

func (o Ops) handleIngest(ctx context.Context, req *Request) error {
	_ = req.Reply(ctx, "цикл запущен…")
	err := o.Scheduler.RunNow(ctx, o.Job)
	if errors.Is(err, scheduler.ErrOverlapSkip) {
		return usage("цикл уже выполняется")
	}
	if err != nil {
		return err
	}
	res, ok := o.Cycles.Last()
	if !ok {
		return req.Reply(ctx, "готово")
	}
	return req.Reply(ctx, formatResult(res))
}

func (o Ops) handleStatus(ctx context.Context, req *Request) error {
	var b strings.Builder
	snap := o.Scheduler.Snapshot()
	fmt.Fprintf(&b, "<b>Планировщик</b>: enabled=%t running=%t tz=%s\n", snap.Enabled, snap.Running, snap.Timezone)
	for _, s := range snap.Schedules {
		fmt.Fprintf(&b, "• %s <code>%s</code> runs=%d failed=%d skipped=%d\n", html.EscapeString(s.Name), html.EscapeString(s.Spec), s.Runs, s.Failed, s.Skipped)
		if !s.Next.IsZero() {
			b.WriteString("  next: " + s.Next.In(o.loc()).Format(time.DateTime) + "\n")
		}
		if !s.Prev.IsZero() {
			b.WriteString("  prev: " + s.Prev.In(o.loc()).Format(time.DateTime) + "\n")
		}
		if s.LastErr != "" {
			b.WriteString("  last error: " + html.EscapeString(s.LastErr) + "\n")
		}
	}

	b.WriteString("\n<b>Последний цикл</b>: ")
	if res, ok := o.Cycles.Last(); ok {
		b.WriteString(formatResult(res))
	} else {
		b.WriteString("ещё не запускался")
	}

	if total, err := o.Events.CountEvents(ctx, storage.Filter{}); err == nil {
		fmt.Fprintf(&b, "\n\n<b>Событий в базе</b>: %d", total)
	}

	hist := o.Notifier.History()
	if len(hist) > 0 {
		failed := 0
		for _, h := range hist {
			if !h.OK {
				failed++
			}
		}
		last := hist[len(hist)-1]
		fmt.Fprintf(&b, "\n<b>Уведомления</b>: %d недавних, %d с ошибкой, последнее %s", len(hist), failed, last.At.In(o.loc()).Format(time.DateTime))
	}
	return req.Reply(ctx, b.String())
}

func (o Ops) handleSet(ctx context.Context, req *Request, field string, set func(ctx context.Context, id, v string) error) error {
	if len(req.Args) != 2 {
		return usage("использование: /set%s <id> <%s>", field, field)
	}
	id, v := req.Args[0], req.Args[1]
	err := set(ctx, id, v)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return usage("событие %s не найдено", id)
	case errors.Is(err, storage.ErrInvalidValue):
		return usage("%s", err.Error())
	case err != nil:
		return err
	}
	return req.Reply(ctx, fmt.Sprintf("%s для <code>%s</code> = %s", field, html.EscapeString(id), html.EscapeString(strings.ToLower(v))))
}

func formatResult(r pipeline.Result) string {
	if r.Skipped {
		return fmt.Sprintf("<code>%s</code> пропущен (lease занят)", r.ID)
	}
	s := fmt.Sprintf("<code>%s</code> fetched=%d created=%d notified=%d failed=%d за %s",
		r.ID, r.Fetched, r.Created, r.Notified, r.NotifyFailed, r.Duration.Round(time.Millisecond))
	if r.Err != nil {
		s += "\nошибка: " + html.EscapeString(r.Err.Error())
	}
	return s
}
