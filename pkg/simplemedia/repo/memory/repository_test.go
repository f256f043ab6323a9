package memory_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/tendant/simple-media/pkg/simplemedia"
	"github.com/tendant/simple-media/pkg/simplemedia/repo/memory"
)

func newMediaFile(id, companyID string, created time.Time) *simplemedia.MediaFile {
	return &simplemedia.MediaFile{
		ID:          id,
		FileID:      id,
		CompanyID:   companyID,
		Filename:    id + ".txt",
		FileSize:    10,
		MimeType:    "text/plain",
		Bucket:      "files",
		FilePath:    "2024/03/01/" + id + ".txt",
		URL:         "/files/2024/03/01/" + id + ".txt",
		AuditStatus: simplemedia.AuditStatusPending,
		Status:      simplemedia.StatusEnabled,
		CreateDate:  created,
	}
}

func TestRepository_InsertAndGet(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	_, err := repo.GetMediaFile(ctx, "abc")
	assert.ErrorIs(t, err, simplemedia.ErrMediaFileNotFound)

	stored, inserted, err := repo.InsertMediaFileIfAbsent(ctx, newMediaFile("abc", "T1", now))
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.Equal(t, "T1", stored.CompanyID)

	again, inserted, err := repo.InsertMediaFileIfAbsent(ctx, newMediaFile("abc", "T2", now.Add(time.Hour)))
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Equal(t, "T1", again.CompanyID)
	assert.Equal(t, now, again.CreateDate)

	got, err := repo.GetMediaFile(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, "T1", got.CompanyID)
	assert.Equal(t, 1, repo.Count())

	// returned records are copies
	got.CompanyID = "mutated"
	fresh, err := repo.GetMediaFile(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, "T1", fresh.CompanyID)
}

func TestRepository_ConcurrentInsert(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()
	const workers = 32

	results := make([]bool, workers)
	var g errgroup.Group
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			_, inserted, err := repo.InsertMediaFileIfAbsent(ctx, newMediaFile("same", fmt.Sprintf("T%d", i), time.Now()))
			results[i] = inserted
			return err
		})
	}
	require.NoError(t, g.Wait())

	winners := 0
	for _, inserted := range results {
		if inserted {
			winners++
		}
	}
	assert.Equal(t, 1, winners)
	assert.Equal(t, 1, repo.Count())
}

func TestRepository_ListMediaFiles(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		_, _, err := repo.InsertMediaFileIfAbsent(ctx, newMediaFile(fmt.Sprintf("t1-%d", i), "T1", base.Add(time.Duration(i)*time.Minute)))
		require.NoError(t, err)
	}
	_, _, err := repo.InsertMediaFileIfAbsent(ctx, newMediaFile("t2-0", "T2", base))
	require.NoError(t, err)

	tests := []struct {
		name     string
		filters  simplemedia.MediaFileListFilters
		expected []string
	}{
		{
			name:     "newest first",
			filters:  simplemedia.MediaFileListFilters{CompanyID: "T1", Limit: 3},
			expected: []string{"t1-4", "t1-3", "t1-2"},
		},
		{
			name:     "offset",
			filters:  simplemedia.MediaFileListFilters{CompanyID: "T1", Limit: 3, Offset: 3},
			expected: []string{"t1-1", "t1-0"},
		},
		{
			name:     "offset past end",
			filters:  simplemedia.MediaFileListFilters{CompanyID: "T1", Limit: 3, Offset: 10},
			expected: []string{},
		},
		{
			name:     "tenant scoped",
			filters:  simplemedia.MediaFileListFilters{CompanyID: "T2", Limit: 10},
			expected: []string{"t2-0"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			files, err := repo.ListMediaFiles(ctx, tt.filters)
			require.NoError(t, err)

			ids := make([]string, 0, len(files))
			for _, f := range files {
				ids = append(ids, f.ID)
			}
			assert.Equal(t, tt.expected, ids)
		})
	}
}

func TestRepository_WithTx(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()

	err := repo.WithTx(ctx, func(tx simplemedia.MediaFileStore) error {
		_, inserted, err := tx.InsertMediaFileIfAbsent(ctx, newMediaFile("abc", "T1", time.Now()))
		assert.True(t, inserted)
		return err
	})
	require.NoError(t, err)

	_, err = repo.GetMediaFile(ctx, "abc")
	assert.NoError(t, err)
}
