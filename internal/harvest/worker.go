package harvest

import (
	"context"

	"github.com/yokai-gen/nichicrawl/internal/card"
)

// CardWorker fetches a card page, or takes it from the shared cache, and
// optionally downloads the card image.
type CardWorker struct {
	Session *card.Session
	Cache   *card.Cache
	// ImageDir enables image download when non-empty.
	ImageDir  string
	Overwrite bool
}

// CardWorkerFactory returns a NewWorker function that gives every slot its
// own session built from cfg. The cache is shared.
func CardWorkerFactory(cfg card.Config, cache *card.Cache, imageDir string, overwrite bool) func(slot int) Worker {
	return func(int) Worker {
		return &CardWorker{
			Session:   card.NewSession(cfg),
			Cache:     cache,
			ImageDir:  imageDir,
			Overwrite: overwrite,
		}
	}
}

// Harvest implements Worker.
func (w *CardWorker) Harvest(ctx context.Context, id string) (card.Record, error) {
	rec, ok := w.Cache.Get(id)
	if !ok {
		var err error
		rec, err = w.Session.Fetch(ctx, id)
		if err != nil {
			return card.Record{}, err
		}
		w.Cache.Add(rec)
	}

	if w.ImageDir == "" {
		rec.ImagePath = ""
		return rec, nil
	}
	path, err := w.Session.DownloadImage(ctx, rec, w.ImageDir, w.Overwrite)
	if err != nil {
		return card.Record{}, err
	}
	rec.ImagePath = path
	return rec, nil
}

// Close releases the session's idle connections.
func (w *CardWorker) Close() error {
	w.Session.Close()
	return nil
}
