// Package cached decorates a simplemedia.Repository with a lookup cache.
//
// Records are immutable once created, so only positive lookups are cached
// and nothing is ever invalidated. Reads inside WithTx bypass the cache: the
// transaction is the dedup gate and must see the store itself. Records
// returned by a committed transaction are cached afterwards. Cache failures
// are logged and fall through to the underlying store.
package cached

import (
	"context"
	"log/slog"

	"github.com/tendant/simple-media/pkg/simplemedia"
)

// Repository implements simplemedia.Repository on top of another repository
type Repository struct {
	inner  simplemedia.Repository
	cache  Cache
	logger *slog.Logger
}

// New wraps inner with cache
func New(inner simplemedia.Repository, cache Cache, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{
		inner:  inner,
		cache:  cache,
		logger: logger.With("component", "media_file_cache"),
	}
}

func (r *Repository) GetMediaFile(ctx context.Context, id string) (*simplemedia.MediaFile, error) {
	file, ok, err := r.cache.Get(ctx, id)
	if err != nil {
		r.logger.Warn("cache lookup failed", "id", id, "err", err)
	} else if ok {
		return file, nil
	}

	file, err = r.inner.GetMediaFile(ctx, id)
	if err != nil {
		return nil, err
	}
	r.remember(ctx, file)
	return file, nil
}

func (r *Repository) InsertMediaFileIfAbsent(ctx context.Context, file *simplemedia.MediaFile) (*simplemedia.MediaFile, bool, error) {
	stored, inserted, err := r.inner.InsertMediaFileIfAbsent(ctx, file)
	if err != nil {
		return nil, false, err
	}
	r.remember(ctx, stored)
	return stored, inserted, nil
}

func (r *Repository) ListMediaFiles(ctx context.Context, filters simplemedia.MediaFileListFilters) ([]*simplemedia.MediaFile, error) {
	return r.inner.ListMediaFiles(ctx, filters)
}

func (r *Repository) WithTx(ctx context.Context, fn func(tx simplemedia.MediaFileStore) error) error {
	var seen []*simplemedia.MediaFile

	err := r.inner.WithTx(ctx, func(tx simplemedia.MediaFileStore) error {
		return fn(&recordingStore{MediaFileStore: tx, seen: &seen})
	})
	if err != nil {
		return err
	}

	for _, file := range seen {
		r.remember(ctx, file)
	}
	return nil
}

func (r *Repository) remember(ctx context.Context, file *simplemedia.MediaFile) {
	if file == nil {
		return
	}
	if err := r.cache.Set(ctx, file); err != nil {
		r.logger.Warn("cache store failed", "id", file.ID, "err", err)
	}
}

// recordingStore collects the records a transaction reads or writes so they
// can be cached once it commits.
type recordingStore struct {
	simplemedia.MediaFileStore
	seen *[]*simplemedia.MediaFile
}

func (s *recordingStore) GetMediaFile(ctx context.Context, id string) (*simplemedia.MediaFile, error) {
	file, err := s.MediaFileStore.GetMediaFile(ctx, id)
	if err == nil {
		*s.seen = append(*s.seen, file)
	}
	return file, err
}

func (s *recordingStore) InsertMediaFileIfAbsent(ctx context.Context, file *simplemedia.MediaFile) (*simplemedia.MediaFile, bool, error) {
	stored, inserted, err := s.MediaFileStore.InsertMediaFileIfAbsent(ctx, file)
	if err == nil {
		*s.seen = append(*s.seen, stored)
	}
	return stored, inserted, err
}
