package cached_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-media/pkg/simplemedia"
	"github.com/tendant/simple-media/pkg/simplemedia/repo/cached"
	"github.com/tendant/simple-media/pkg/simplemedia/repo/memory"
)

// countingRepo counts reads that reach the underlying store
type countingRepo struct {
	*memory.Repository
	gets atomic.Int32
}

func (r *countingRepo) GetMediaFile(ctx context.Context, id string) (*simplemedia.MediaFile, error) {
	r.gets.Add(1)
	return r.Repository.GetMediaFile(ctx, id)
}

func (r *countingRepo) WithTx(ctx context.Context, fn func(tx simplemedia.MediaFileStore) error) error {
	return fn(r)
}

func mediaFile(id string) *simplemedia.MediaFile {
	return &simplemedia.MediaFile{
		ID:         id,
		FileID:     id,
		CompanyID:  "T1",
		Filename:   "a.txt",
		Bucket:     "files",
		FilePath:   "2024/03/01/" + id + ".txt",
		CreateDate: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestRepository_CachesPositiveLookups(t *testing.T) {
	inner := &countingRepo{Repository: memory.New()}
	lru := cached.NewLRU(16, time.Minute)
	repo := cached.New(inner, lru, nil)
	ctx := context.Background()

	_, err := repo.GetMediaFile(ctx, "abc")
	assert.ErrorIs(t, err, simplemedia.ErrMediaFileNotFound)
	_, err = repo.GetMediaFile(ctx, "abc")
	assert.ErrorIs(t, err, simplemedia.ErrMediaFileNotFound)
	assert.Equal(t, int32(2), inner.gets.Load(), "misses are not cached")
	assert.Equal(t, 0, lru.Len())

	_, _, err = inner.InsertMediaFileIfAbsent(ctx, mediaFile("abc"))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		file, err := repo.GetMediaFile(ctx, "abc")
		require.NoError(t, err)
		assert.Equal(t, "abc", file.ID)
	}
	assert.Equal(t, int32(3), inner.gets.Load())
	assert.Equal(t, 1, lru.Len())
}

func TestRepository_TxReadsBypassCache(t *testing.T) {
	inner := &countingRepo{Repository: memory.New()}
	lru := cached.NewLRU(16, time.Minute)
	repo := cached.New(inner, lru, nil)
	ctx := context.Background()

	_, _, err := repo.InsertMediaFileIfAbsent(ctx, mediaFile("abc"))
	require.NoError(t, err)
	require.Equal(t, 1, lru.Len())

	err = repo.WithTx(ctx, func(tx simplemedia.MediaFileStore) error {
		_, err := tx.GetMediaFile(ctx, "abc")
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, int32(1), inner.gets.Load())
}

func TestRepository_CommittedRecordsAreCached(t *testing.T) {
	inner := &countingRepo{Repository: memory.New()}
	lru := cached.NewLRU(16, time.Minute)
	repo := cached.New(inner, lru, nil)
	ctx := context.Background()

	err := repo.WithTx(ctx, func(tx simplemedia.MediaFileStore) error {
		_, _, err := tx.InsertMediaFileIfAbsent(ctx, mediaFile("abc"))
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 1, lru.Len())

	err = repo.WithTx(ctx, func(tx simplemedia.MediaFileStore) error {
		if _, _, err := tx.InsertMediaFileIfAbsent(ctx, mediaFile("rolled")); err != nil {
			return err
		}
		return errors.New("abort")
	})
	require.Error(t, err)
	assert.Equal(t, 1, lru.Len(), "records of a failed transaction are not cached")
}

func TestRepository_CacheFailureDegrades(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })

	inner := memory.New()
	repo := cached.New(inner, cached.NewRedis(client, "", time.Minute), nil)
	ctx := context.Background()

	stored, inserted, err := repo.InsertMediaFileIfAbsent(ctx, mediaFile("abc"))
	require.NoError(t, err)
	assert.True(t, inserted)

	file, err := repo.GetMediaFile(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, stored.ID, file.ID)

	_, err = repo.GetMediaFile(ctx, "missing")
	assert.ErrorIs(t, err, simplemedia.ErrMediaFileNotFound)
}

func TestLRU_Expiry(t *testing.T) {
	lru := cached.NewLRU(4, 20*time.Millisecond)
	ctx := context.Background()

	require.NoError(t, lru.Set(ctx, mediaFile("abc")))
	_, ok, err := lru.Get(ctx, "abc")
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Eventually(t, func() bool {
		_, ok, _ := lru.Get(ctx, "abc")
		return !ok
	}, time.Second, 10*time.Millisecond)
}
