package simplemedia

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
)

// DigestAlgorithm names the hash used for content identity. It is strong
// enough for deduplication and is not a security boundary.
const DigestAlgorithm = "md5"

// DigestReader streams r through the content hash and returns the hex digest
// together with the number of bytes read. The content is never buffered as a
// whole. Any read failure is reported as ErrReadFailed.
func DigestReader(r io.Reader) (string, int64, error) {
	return DigestReaderContext(context.Background(), r)
}

// DigestReaderContext is DigestReader bound to ctx: hashing stops at the
// next read once ctx is done and the context error is returned unwrapped.
func DigestReaderContext(ctx context.Context, r io.Reader) (string, int64, error) {
	h := md5.New()
	n, err := io.Copy(h, contextReader{ctx: ctx, r: r})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", n, ctxErr
		}
		return "", n, fmt.Errorf("%w: %w", ErrReadFailed, err)
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// contextReader fails reads once ctx is done. Only Read is exposed, so
// io.Copy always goes through it.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
