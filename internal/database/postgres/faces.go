package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kozaktomas/face-recognizer/internal/database"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
)

// uniqueViolation is the PostgreSQL error code for unique index violations.
const uniqueViolation = "23505"

// FaceRecordRepository provides PostgreSQL-backed face record storage.
// Descriptors live in face_descriptors as pgvector columns.
type FaceRecordRepository struct {
	pool *Pool
}

// NewFaceRecordRepository creates a new PostgreSQL face record repository.
func NewFaceRecordRepository(pool *Pool) *FaceRecordRepository {
	return &FaceRecordRepository{pool: pool}
}

const selectRecords = `
	SELECT r.id, r.label, r.model, r.dim, r.created_at, d.descriptor
	FROM face_records r
	JOIN face_descriptors d ON d.record_id = r.id
`

// FindAll returns every record with its descriptors, ordered by label.
func (r *FaceRecordRepository) FindAll(ctx context.Context) ([]database.FaceRecord, error) {
	rows, err := r.pool.Query(ctx, selectRecords+" ORDER BY r.label, d.position")
	if err != nil {
		return nil, fmt.Errorf("query face records: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// FindByLabel returns the record for a label, nil if not found.
func (r *FaceRecordRepository) FindByLabel(ctx context.Context, label string) (*database.FaceRecord, error) {
	rows, err := r.pool.Query(ctx, selectRecords+" WHERE r.label = $1 ORDER BY d.position", label)
	if err != nil {
		return nil, fmt.Errorf("query face record: %w", err)
	}
	defer rows.Close()

	records, err := scanRecords(rows)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return &records[0], nil
}

// scanRecords groups joined descriptor rows into records. Rows must be
// ordered so that all rows of one record are adjacent.
func scanRecords(rows *sql.Rows) ([]database.FaceRecord, error) {
	var records []database.FaceRecord
	for rows.Next() {
		var (
			id        string
			label     string
			model     string
			dim       int
			createdAt time.Time
			vec       pgvector.Vector
		)
		if err := rows.Scan(&id, &label, &model, &dim, &createdAt, &vec); err != nil {
			return nil, fmt.Errorf("scan face record: %w", err)
		}

		if n := len(records); n == 0 || records[n-1].ID != id {
			records = append(records, database.FaceRecord{
				ID:        id,
				Label:     label,
				Model:     model,
				Dim:       dim,
				CreatedAt: createdAt,
			})
		}
		last := &records[len(records)-1]
		last.Descriptions = append(last.Descriptions, vec.Slice())
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate face records: %w", err)
	}
	return records, nil
}

// Exists checks whether a record with exactly this label exists.
func (r *FaceRecordRepository) Exists(ctx context.Context, label string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM face_records WHERE label = $1)", label).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check face record exists: %w", err)
	}
	return exists, nil
}

// ListLabels returns labels with descriptor counts, ordered by label.
func (r *FaceRecordRepository) ListLabels(ctx context.Context) ([]database.LabelSummary, error) {
	query := `
		SELECT r.label, r.model, r.dim, r.created_at, COUNT(d.position)
		FROM face_records r
		LEFT JOIN face_descriptors d ON d.record_id = r.id
		GROUP BY r.id, r.label, r.model, r.dim, r.created_at
		ORDER BY r.label
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query labels: %w", err)
	}
	defer rows.Close()

	var labels []database.LabelSummary
	for rows.Next() {
		var s database.LabelSummary
		if err := rows.Scan(&s.Label, &s.Model, &s.Dim, &s.CreatedAt, &s.Descriptors); err != nil {
			return nil, fmt.Errorf("scan label: %w", err)
		}
		labels = append(labels, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate labels: %w", err)
	}
	return labels, nil
}

// Count returns the number of enrolled labels.
func (r *FaceRecordRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM face_records").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count face records: %w", err)
	}
	return count, nil
}

// Insert stores a record and its descriptors in one transaction.
func (r *FaceRecordRepository) Insert(ctx context.Context, record *database.FaceRecord) error {
	if err := record.Validate(); err != nil {
		return err
	}

	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	id := uuid.New().String()
	dim := len(record.Descriptions[0])

	var createdAt time.Time
	err = tx.QueryRowContext(ctx, `
		INSERT INTO face_records (id, label, model, dim)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`, id, record.Label, record.Model, dim).Scan(&createdAt)
	if err != nil {
		if isUniqueViolation(err) {
			return database.ErrLabelExists
		}
		return fmt.Errorf("insert face record: %w", err)
	}

	for i, d := range record.Descriptions {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO face_descriptors (record_id, position, descriptor)
			VALUES ($1, $2, $3::vector)
		`, id, i, pgvector.NewVector(d))
		if err != nil {
			return fmt.Errorf("insert descriptor %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return database.ErrLabelExists
		}
		return fmt.Errorf("commit transaction: %w", err)
	}

	record.ID = id
	record.Dim = dim
	record.CreatedAt = createdAt
	return nil
}

// Delete removes a record; descriptors cascade.
func (r *FaceRecordRepository) Delete(ctx context.Context, label string) error {
	result, err := r.pool.Exec(ctx, "DELETE FROM face_records WHERE label = $1", label)
	if err != nil {
		return fmt.Errorf("delete face record: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return database.ErrLabelNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

var _ database.FaceRecordWriter = (*FaceRecordRepository)(nil)
