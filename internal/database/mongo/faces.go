package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/globalsign/mgo"
	"github.com/globalsign/mgo/bson"
	"github.com/kozaktomas/face-recognizer/internal/database"
)

// faceDocument is the stored shape of a record. Descriptors are kept as
// doubles since BSON has no single precision type.
type faceDocument struct {
	ID           bson.ObjectId `bson:"_id"`
	Label        string        `bson:"label"`
	Descriptions [][]float64   `bson:"descriptions"`
	Model        string        `bson:"model"`
	Dim          int           `bson:"dim"`
	CreatedAt    time.Time     `bson:"createdAt"`
}

type labelRow struct {
	Label       string    `bson:"label"`
	Descriptors int       `bson:"descriptors"`
	Model       string    `bson:"model"`
	Dim         int       `bson:"dim"`
	CreatedAt   time.Time `bson:"createdAt"`
}

func toDocument(rec *database.FaceRecord) faceDocument {
	doc := faceDocument{
		Label:        rec.Label,
		Model:        rec.Model,
		Dim:          len(rec.Descriptions[0]),
		Descriptions: make([][]float64, len(rec.Descriptions)),
	}
	for i, d := range rec.Descriptions {
		doc.Descriptions[i] = make([]float64, len(d))
		for j, v := range d {
			doc.Descriptions[i][j] = float64(v)
		}
	}
	return doc
}

func (doc faceDocument) record() database.FaceRecord {
	rec := database.FaceRecord{
		ID:           doc.ID.Hex(),
		Label:        doc.Label,
		Model:        doc.Model,
		Dim:          doc.Dim,
		CreatedAt:    doc.CreatedAt,
		Descriptions: make([][]float32, len(doc.Descriptions)),
	}
	for i, d := range doc.Descriptions {
		rec.Descriptions[i] = make([]float32, len(d))
		for j, v := range d {
			rec.Descriptions[i][j] = float32(v)
		}
	}
	return rec
}

// FaceRecordRepository provides MongoDB-backed face record storage.
// mgo has no context support; ctx is only checked before each call.
type FaceRecordRepository struct {
	store *Store
}

func NewFaceRecordRepository(store *Store) *FaceRecordRepository {
	return &FaceRecordRepository{store: store}
}

func (r *FaceRecordRepository) FindAll(ctx context.Context) ([]database.FaceRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sess, c := r.store.collection()
	defer sess.Close()

	var docs []faceDocument
	if err := c.Find(nil).Sort("label").All(&docs); err != nil {
		return nil, fmt.Errorf("query face records: %w", err)
	}

	records := make([]database.FaceRecord, len(docs))
	for i, doc := range docs {
		records[i] = doc.record()
	}
	return records, nil
}

func (r *FaceRecordRepository) FindByLabel(ctx context.Context, label string) (*database.FaceRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sess, c := r.store.collection()
	defer sess.Close()

	var doc faceDocument
	err := c.Find(bson.M{"label": label}).One(&doc)
	if errors.Is(err, mgo.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query face record: %w", err)
	}
	rec := doc.record()
	return &rec, nil
}

func (r *FaceRecordRepository) Exists(ctx context.Context, label string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	sess, c := r.store.collection()
	defer sess.Close()

	n, err := c.Find(bson.M{"label": label}).Count()
	if err != nil {
		return false, fmt.Errorf("check face record exists: %w", err)
	}
	return n > 0, nil
}

// ListLabels counts descriptors server side so they are never transferred.
func (r *FaceRecordRepository) ListLabels(ctx context.Context) ([]database.LabelSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sess, c := r.store.collection()
	defer sess.Close()

	pipeline := []bson.M{
		{"$project": bson.M{
			"label":       1,
			"model":       1,
			"dim":         1,
			"createdAt":   1,
			"descriptors": bson.M{"$size": "$descriptions"},
		}},
		{"$sort": bson.M{"label": 1}},
	}

	var rows []labelRow
	if err := c.Pipe(pipeline).All(&rows); err != nil {
		return nil, fmt.Errorf("list labels: %w", err)
	}

	labels := make([]database.LabelSummary, len(rows))
	for i, row := range rows {
		labels[i] = database.LabelSummary{
			Label:       row.Label,
			Descriptors: row.Descriptors,
			Model:       row.Model,
			Dim:         row.Dim,
			CreatedAt:   row.CreatedAt,
		}
	}
	return labels, nil
}

func (r *FaceRecordRepository) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	sess, c := r.store.collection()
	defer sess.Close()

	n, err := c.Count()
	if err != nil {
		return 0, fmt.Errorf("count face records: %w", err)
	}
	return n, nil
}

// Insert relies on the unique label index so concurrent enrollments of the
// same label cannot both succeed.
func (r *FaceRecordRepository) Insert(ctx context.Context, record *database.FaceRecord) error {
	if err := record.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	sess, c := r.store.collection()
	defer sess.Close()

	doc := toDocument(record)
	doc.ID = bson.NewObjectId()
	// BSON dates have millisecond precision.
	doc.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)

	if err := c.Insert(doc); err != nil {
		if mgo.IsDup(err) {
			return database.ErrLabelExists
		}
		return fmt.Errorf("insert face record: %w", err)
	}

	record.ID = doc.ID.Hex()
	record.Dim = doc.Dim
	record.CreatedAt = doc.CreatedAt
	return nil
}

func (r *FaceRecordRepository) Delete(ctx context.Context, label string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	sess, c := r.store.collection()
	defer sess.Close()

	err := c.Remove(bson.M{"label": label})
	if errors.Is(err, mgo.ErrNotFound) {
		return database.ErrLabelNotFound
	}
	if err != nil {
		return fmt.Errorf("delete face record: %w", err)
	}
	return nil
}

var _ database.FaceRecordWriter = (*FaceRecordRepository)(nil)
