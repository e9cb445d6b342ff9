package mariadb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/kozaktomas/face-recognizer/internal/database"
)

// duplicateEntry is the MySQL error number for unique key violations.
const duplicateEntry = 1062

// FaceRecordRepository provides MariaDB-backed face record storage.
type FaceRecordRepository struct {
	pool *Pool
}

func NewFaceRecordRepository(pool *Pool) *FaceRecordRepository {
	return &FaceRecordRepository{pool: pool}
}

const selectRecords = `SELECT id, label, descriptors, model, dim, created_at FROM face_records`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (database.FaceRecord, error) {
	var (
		rec  database.FaceRecord
		data string
	)
	if err := row.Scan(&rec.ID, &rec.Label, &data, &rec.Model, &rec.Dim, &rec.CreatedAt); err != nil {
		return rec, err
	}
	if err := json.Unmarshal([]byte(data), &rec.Descriptions); err != nil {
		return rec, fmt.Errorf("decode descriptors of %q: %w", rec.Label, err)
	}
	return rec, nil
}

// FindAll returns every record ordered by label.
func (r *FaceRecordRepository) FindAll(ctx context.Context) ([]database.FaceRecord, error) {
	rows, err := r.pool.db.QueryContext(ctx, selectRecords+" ORDER BY label")
	if err != nil {
		return nil, fmt.Errorf("query face records: %w", err)
	}
	defer rows.Close()

	var records []database.FaceRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan face record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate face records: %w", err)
	}
	return records, nil
}

// FindByLabel returns the record for a label, nil if not found.
func (r *FaceRecordRepository) FindByLabel(ctx context.Context, label string) (*database.FaceRecord, error) {
	rec, err := scanRecord(r.pool.db.QueryRowContext(ctx, selectRecords+" WHERE label = ?", label))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query face record: %w", err)
	}
	return &rec, nil
}

func (r *FaceRecordRepository) Exists(ctx context.Context, label string) (bool, error) {
	var exists bool
	err := r.pool.db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM face_records WHERE label = ?)", label).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check face record exists: %w", err)
	}
	return exists, nil
}

// ListLabels decodes descriptors only to count them.
func (r *FaceRecordRepository) ListLabels(ctx context.Context) ([]database.LabelSummary, error) {
	records, err := r.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	labels := make([]database.LabelSummary, len(records))
	for i, rec := range records {
		labels[i] = rec.Summary()
	}
	return labels, nil
}

func (r *FaceRecordRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM face_records").Scan(&count); err != nil {
		return 0, fmt.Errorf("count face records: %w", err)
	}
	return count, nil
}

// Insert stores a record. The unique label key turns races into ErrLabelExists.
func (r *FaceRecordRepository) Insert(ctx context.Context, record *database.FaceRecord) error {
	if err := record.Validate(); err != nil {
		return err
	}

	data, err := json.Marshal(record.Descriptions)
	if err != nil {
		return fmt.Errorf("marshal descriptors: %w", err)
	}

	id := uuid.New().String()
	dim := len(record.Descriptions[0])
	createdAt := time.Now().UTC().Truncate(time.Microsecond)

	_, err = r.pool.db.ExecContext(ctx, `
		INSERT INTO face_records (id, label, descriptors, model, dim, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, id, record.Label, string(data), record.Model, dim, createdAt)
	if err != nil {
		var myErr *mysql.MySQLError
		if errors.As(err, &myErr) && myErr.Number == duplicateEntry {
			return database.ErrLabelExists
		}
		return fmt.Errorf("insert face record: %w", err)
	}

	record.ID = id
	record.Dim = dim
	record.CreatedAt = createdAt
	return nil
}

func (r *FaceRecordRepository) Delete(ctx context.Context, label string) error {
	result, err := r.pool.db.ExecContext(ctx, "DELETE FROM face_records WHERE label = ?", label)
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

var _ database.FaceRecordWriter = (*FaceRecordRepository)(nil)
