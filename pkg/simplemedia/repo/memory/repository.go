package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/tendant/simple-media/pkg/simplemedia"
)

// Repository implements simplemedia.Repository using in-memory storage
type Repository struct {
	mu    sync.RWMutex
	files map[string]*simplemedia.MediaFile
}

// New creates a new in-memory repository
func New() *Repository {
	return &Repository{
		files: make(map[string]*simplemedia.MediaFile),
	}
}

func (r *Repository) GetMediaFile(ctx context.Context, id string) (*simplemedia.MediaFile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	file, exists := r.files[id]
	if !exists {
		return nil, simplemedia.ErrMediaFileNotFound
	}

	// Return a copy to prevent external modifications
	fileCopy := *file
	return &fileCopy, nil
}

// InsertMediaFileIfAbsent checks and inserts under one write lock, so exactly
// one concurrent caller inserts a given digest.
func (r *Repository) InsertMediaFileIfAbsent(ctx context.Context, file *simplemedia.MediaFile) (*simplemedia.MediaFile, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, exists := r.files[file.ID]; exists {
		existingCopy := *existing
		return &existingCopy, false, nil
	}

	stored := *file
	r.files[file.ID] = &stored

	result := stored
	return &result, true, nil
}

func (r *Repository) ListMediaFiles(ctx context.Context, filters simplemedia.MediaFileListFilters) ([]*simplemedia.MediaFile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []*simplemedia.MediaFile
	for _, file := range r.files {
		if file.CompanyID != filters.CompanyID {
			continue
		}
		fileCopy := *file
		matched = append(matched, &fileCopy)
	}

	// Newest first, digest as tie-breaker for a stable page order
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreateDate.Equal(matched[j].CreateDate) {
			return matched[i].CreateDate.After(matched[j].CreateDate)
		}
		return matched[i].ID < matched[j].ID
	})

	if filters.Offset >= len(matched) {
		return []*simplemedia.MediaFile{}, nil
	}
	matched = matched[filters.Offset:]
	if filters.Limit > 0 && filters.Limit < len(matched) {
		matched = matched[:filters.Limit]
	}
	return matched, nil
}

// WithTx runs fn against the repository itself. Inserts are already atomic
// per digest, and nothing is written before InsertMediaFileIfAbsent, so
// there is nothing to roll back.
func (r *Repository) WithTx(ctx context.Context, fn func(tx simplemedia.MediaFileStore) error) error {
	return fn(r)
}

// Count returns the number of stored records
func (r *Repository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.files)
}
