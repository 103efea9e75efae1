// Package ingest turns fetched wall posts into stored events, inserting
// only posts whose external id is not stored yet.
package ingest

import (
	"context"
	"errors"
	"time"

	"wrestfed/internal/storage"
	"wrestfed/internal/vk"
	logx "wrestfed/pkg/logx"
)

type Persister struct {
	store    storage.Store
	defaults Defaults
	now      func() time.Time
	log      logx.Logger
}

func NewPersister(store storage.Store, d Defaults, log logx.Logger) *Persister {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Persister{
		store:    store,
		defaults: d,
		now:      time.Now,
		log:      log.With(logx.String("comp", "ingest")),
	}
}

// Ingest stores the posts not seen before and returns the created events.
//
// The lookup of known ids and all inserts share one transaction. When a
// concurrent writer stored one of the ids first, the batch is rolled back
// and Ingest reports zero new events without error; the next cycle picks
// up whatever is still missing.
func (p *Persister) Ingest(ctx context.Context, posts []vk.Post) ([]storage.Event, error) {
	if len(posts) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(posts))
	batch := make([]vk.Post, 0, len(posts))
	seen := make(map[string]struct{}, len(posts))
	for _, post := range posts {
		id := post.ExternalID()
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
		batch = append(batch, post)
	}

	var created []storage.Event
	err := p.store.InTx(ctx, func(tx storage.EventTx) error {
		created = created[:0]
		existing, err := tx.ExistingExternalIDs(ctx, ids)
		if err != nil {
			return err
		}
		now := p.now()
		for _, post := range batch {
			if _, ok := existing[post.ExternalID()]; ok {
				p.log.Debug("skipping known post", logx.String("external_id", post.ExternalID()))
				continue
			}
			ev := BuildEvent(post, p.defaults, now)
			if err := tx.Insert(ctx, ev); err != nil {
				return err
			}
			created = append(created, ev)
		}
		return nil
	})
	if errors.Is(err, storage.ErrDuplicateKey) {
		p.log.Info("batch raced with another writer; nothing stored", logx.Int("posts", len(batch)))
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p.log.Info("posts ingested", logx.Int("fetched", len(posts)), logx.Int("created", len(created)))
	return created, nil
}
