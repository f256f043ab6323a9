package memory_test

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-media/pkg/simplemedia"
	memorystorage "github.com/tendant/simple-media/pkg/simplemedia/storage/memory"
)

func TestMemoryBackend(t *testing.T) {
	backend := memorystorage.New()
	ctx := context.Background()
	params := simplemedia.UploadParams{
		Bucket:    "files",
		ObjectKey: "2024/03/01/abc.txt",
		MimeType:  "text/plain",
		Size:      11,
	}

	t.Run("UploadWithParams", func(t *testing.T) {
		err := backend.UploadWithParams(ctx, strings.NewReader("hello world"), params)
		require.NoError(t, err)

		mimeType, ok := backend.MimeType(params.Bucket, params.ObjectKey)
		assert.True(t, ok)
		assert.Equal(t, "text/plain", mimeType)
	})

	t.Run("Download", func(t *testing.T) {
		reader, err := backend.Download(ctx, params.Bucket, params.ObjectKey)
		require.NoError(t, err)
		defer reader.Close()

		data, err := io.ReadAll(reader)
		require.NoError(t, err)
		assert.Equal(t, "hello world", string(data))
	})

	t.Run("overwrite with same bytes is harmless", func(t *testing.T) {
		err := backend.UploadWithParams(ctx, strings.NewReader("hello world"), params)
		require.NoError(t, err)
		assert.Equal(t, 1, backend.Len())
		assert.Equal(t, 2, backend.Writes())
	})

	t.Run("buckets are separate namespaces", func(t *testing.T) {
		_, err := backend.Download(ctx, "other", params.ObjectKey)
		require.Error(t, err)
		assert.ErrorIs(t, err, simplemedia.ErrObjectNotFound)
	})

	t.Run("default mime type", func(t *testing.T) {
		err := backend.UploadWithParams(ctx, strings.NewReader("x"), simplemedia.UploadParams{Bucket: "files", ObjectKey: "raw", Size: -1})
		require.NoError(t, err)

		mimeType, _ := backend.MimeType("files", "raw")
		assert.Equal(t, simplemedia.DefaultMimeType, mimeType)
	})

	t.Run("canceled context", func(t *testing.T) {
		canceled, cancel := context.WithCancel(ctx)
		cancel()
		err := backend.UploadWithParams(canceled, strings.NewReader("x"), simplemedia.UploadParams{Bucket: "files", ObjectKey: "late"})
		assert.ErrorIs(t, err, context.Canceled)

		var storageErr *simplemedia.StorageError
		require.ErrorAs(t, err, &storageErr)
		assert.Equal(t, "memory", storageErr.Backend)
		assert.Equal(t, "upload", storageErr.Op)
		assert.Equal(t, "late", storageErr.Key)

		_, err = backend.Download(canceled, params.Bucket, params.ObjectKey)
		assert.ErrorIs(t, err, context.Canceled)
		require.ErrorAs(t, err, &storageErr)
		assert.Equal(t, "download", storageErr.Op)
	})
}
