package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tendant/simple-media/pkg/simplemedia"
)

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// txStarter is implemented by *pgxpool.Pool and *pgx.Conn
type txStarter interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// Repository implements simplemedia.Repository using PostgreSQL
type Repository struct {
	db DBTX
}

// New creates a new PostgreSQL repository
func New(db DBTX) *Repository {
	return &Repository{db: db}
}

// NewWithPool creates a new PostgreSQL repository with connection pool
func NewWithPool(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool}
}

const mediaFileColumns = `id, file_id, company_id, filename, file_type, tags, file_size,
	mime_type, bucket, file_path, url, audit_status, status, create_date`

// Error handling helper
func (r *Repository) handlePostgresError(operation string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return simplemedia.ErrMediaFileNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("duplicate media file in %s: %w", operation, err)
		case "23502": // not_null_violation
			return fmt.Errorf("required field %s is missing", pgErr.ColumnName)
		case "42P01": // undefined_table
			return fmt.Errorf("table does not exist - database migration required")
		default:
			return fmt.Errorf("database error in %s: %s (code: %s)", operation, pgErr.Message, pgErr.Code)
		}
	}

	return fmt.Errorf("database error in %s: %w", operation, err)
}

func scanMediaFile(row pgx.Row) (*simplemedia.MediaFile, error) {
	var f simplemedia.MediaFile
	err := row.Scan(
		&f.ID, &f.FileID, &f.CompanyID, &f.Filename, &f.FileType, &f.Tags, &f.FileSize,
		&f.MimeType, &f.Bucket, &f.FilePath, &f.URL, &f.AuditStatus, &f.Status, &f.CreateDate)
	if err != nil {
		return nil, err
	}
	f.CreateDate = f.CreateDate.UTC()
	return &f, nil
}

func (r *Repository) GetMediaFile(ctx context.Context, id string) (*simplemedia.MediaFile, error) {
	query := `SELECT ` + mediaFileColumns + ` FROM media_files WHERE id = $1`

	file, err := scanMediaFile(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, r.handlePostgresError("get media file", err)
	}
	return file, nil
}

// InsertMediaFileIfAbsent relies on the primary key for atomicity. A losing
// insert returns no row and the winner is read back.
func (r *Repository) InsertMediaFileIfAbsent(ctx context.Context, file *simplemedia.MediaFile) (*simplemedia.MediaFile, bool, error) {
	query := `
		INSERT INTO media_files (` + mediaFileColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO NOTHING
		RETURNING ` + mediaFileColumns

	stored, err := scanMediaFile(r.db.QueryRow(ctx, query,
		file.ID, file.FileID, file.CompanyID, file.Filename, file.FileType, file.Tags, file.FileSize,
		file.MimeType, file.Bucket, file.FilePath, file.URL, file.AuditStatus, file.Status, file.CreateDate))
	if err == nil {
		return stored, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, r.handlePostgresError("insert media file", err)
	}

	winner, err := r.GetMediaFile(ctx, file.ID)
	if err != nil {
		return nil, false, err
	}
	return winner, false, nil
}

func (r *Repository) ListMediaFiles(ctx context.Context, filters simplemedia.MediaFileListFilters) ([]*simplemedia.MediaFile, error) {
	query := `SELECT ` + mediaFileColumns + `
		FROM media_files
		WHERE company_id = $1
		ORDER BY create_date DESC, id ASC
		LIMIT $2 OFFSET $3`

	rows, err := r.db.Query(ctx, query, filters.CompanyID, filters.Limit, filters.Offset)
	if err != nil {
		return nil, r.handlePostgresError("list media files", err)
	}
	defer rows.Close()

	files := []*simplemedia.MediaFile{}
	for rows.Next() {
		file, err := scanMediaFile(rows)
		if err != nil {
			return nil, r.handlePostgresError("scan media file", err)
		}
		files = append(files, file)
	}
	if err := rows.Err(); err != nil {
		return nil, r.handlePostgresError("list media files", err)
	}
	return files, nil
}

// WithTx runs fn in a read-committed transaction. When the repository is
// already bound to a transaction, fn joins it.
func (r *Repository) WithTx(ctx context.Context, fn func(tx simplemedia.MediaFileStore) error) error {
	starter, ok := r.db.(txStarter)
	if !ok {
		return fn(r)
	}

	return pgx.BeginTxFunc(ctx, starter, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return fn(&Repository{db: tx})
	})
}
