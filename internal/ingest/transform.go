package ingest

import (
	"strings"
	"time"

	"wrestfed/internal/storage"
	"wrestfed/internal/vk"
)

const (
	TitlePlaceholder = "Без заголовка"
	BodyPlaceholder  = "Без текста"
)

// Defaults are the classification tags and limits applied to new events.
type Defaults struct {
	Status   string
	Category string
	TitleMax int
}

// BuildEvent derives a new Event from a wall post.
func BuildEvent(p vk.Post, d Defaults, now time.Time) storage.Event {
	ev := storage.Event{
		ExternalID: p.ExternalID(),
		Title:      truncateRunes(p.Text, d.TitleMax),
		Body:       p.Text,
		Images:     PhotoURLs(p.Attachments),
		Status:     d.Status,
		Category:   d.Category,
		CreatedAt:  now.UTC(),
	}
	if ev.Title == "" {
		ev.Title = TitlePlaceholder
	}
	if ev.Body == "" {
		ev.Body = BodyPlaceholder
	}
	if p.Date != 0 {
		t := time.Unix(p.Date, 0).UTC()
		ev.PublishedAt = &t
	}
	return ev
}

// PhotoURLs returns one URL per photo attachment, the largest size by area,
// in attachment order. Photos without sizes are skipped.
func PhotoURLs(atts []vk.Attachment) []string {
	out := make([]string, 0, len(atts))
	for _, a := range atts {
		if a.Type != "photo" || a.Photo == nil || len(a.Photo.Sizes) == 0 {
			continue
		}
		best := a.Photo.Sizes[0]
		for _, s := range a.Photo.Sizes[1:] {
			if s.Width*s.Height > best.Width*best.Height {
				best = s
			}
		}
		if strings.TrimSpace(best.URL) != "" {
			out = append(out, best.URL)
		}
	}
	return out
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
