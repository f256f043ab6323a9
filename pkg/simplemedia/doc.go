// Package simplemedia provides a content-addressed upload pipeline for media
// files with pluggable metadata repositories and blob storage backends.
//
// A file's identity is the MD5 digest of its bytes. Uploading byte-identical
// content twice, by the same or a different company, resolves to the same
// MediaFile record and, for sequential callers, a single physical blob.
// Implementations of repositories (memory, Postgres, cached) and blob stores
// (memory, filesystem, S3) are provided under subpackages.
//
// Deduplication
//
// The metadata store, not the blob store, is the authority on whether content
// already exists. The service looks the digest up before writing a blob, and
// re-checks inside the metadata transaction; the conflict-safe insert of the
// repository is the only dedup gate under concurrency. A racing upload may
// therefore write a redundant blob that no record references. Which company is
// recorded on the winning row under such a race is not defined.
//
// When content is already known, the declared metadata of the later upload
// (filename, file type, tags) is discarded: the first registration wins.
package simplemedia
