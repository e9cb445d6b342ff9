// Package recognition implements enrollment and lookup of labelled faces on
// top of a detector, a record store and an optional HNSW shortlist.
package recognition

import (
	"context"
	"errors"
	"fmt"
	"math"
	"unicode/utf8"

	"github.com/kozaktomas/face-recognizer/internal/constants"
	"github.com/kozaktomas/face-recognizer/internal/database"
	"github.com/kozaktomas/face-recognizer/internal/detector"
	"github.com/kozaktomas/face-recognizer/internal/events"
	"github.com/kozaktomas/face-recognizer/internal/facematch"
	"github.com/kozaktomas/face-recognizer/internal/fingerprint"
	"github.com/kozaktomas/face-recognizer/internal/imaging"

	log "github.com/sirupsen/logrus"
)

var (
	ErrNoFaceDetected = errors.New("no face detected")
	ErrLabelRequired  = errors.New("label is required")
	ErrLabelTooLong   = fmt.Errorf("label is longer than %d characters", constants.MaxLabelLength)
	ErrMissingImage   = errors.New("missing image")

	// Re-exported so callers only need this package for errors.Is checks.
	ErrLabelExists   = database.ErrLabelExists
	ErrLabelNotFound = database.ErrLabelNotFound
	ErrInvalidImage  = imaging.ErrInvalidImage
)

// Image is one uploaded file together with the form field it came from.
type Image struct {
	Field string
	Data  []byte
}

// Result is a face matched to a label.
type Result struct {
	Label      string  `json:"label"`
	Distance   float64 `json:"distance"`
	Similarity float64 `json:"similarity"`
	FaceImage  string  `json:"face_image,omitempty"`
}

// Options controls detection and matching.
type Options struct {
	Mode             detector.Mode
	EnrollImageCount int
	Threshold        float64
	Thumbnails       bool // attach face crops to lookup results
	Align            bool // level the eye line of face crops
	CandidateLimit   int  // labels shortlisted per face when an index is used
}

// Service is safe for concurrent use as long as its detector and store are.
type Service struct {
	detector  detector.Detector
	store     database.FaceRecordWriter
	opts      Options
	index     *database.DescriptorIndex
	indexPath string
	events    events.Publisher
}

// Option configures optional collaborators.
type Option func(*Service)

// WithIndex shortlists candidate labels through idx and persists it to path
// after every change. An empty path keeps the index in memory only.
func WithIndex(idx *database.DescriptorIndex, path string) Option {
	return func(s *Service) {
		s.index = idx
		s.indexPath = path
	}
}

// WithPublisher publishes enrollment and recognition events.
func WithPublisher(p events.Publisher) Option {
	return func(s *Service) {
		s.events = p
	}
}

func NewService(det detector.Detector, store database.FaceRecordWriter, opts Options, options ...Option) *Service {
	if opts.Mode == "" {
		opts.Mode = detector.ModeAll
	}
	if opts.EnrollImageCount <= 0 {
		opts.EnrollImageCount = constants.DefaultEnrollImageCount
	}
	if opts.Threshold <= 0 {
		opts.Threshold = constants.DefaultDistanceThreshold
	}
	if opts.CandidateLimit <= 0 {
		opts.CandidateLimit = constants.HNSWCandidateLabels
	}

	s := &Service{
		detector: det,
		store:    store,
		opts:     opts,
		events:   events.Nop{},
	}
	for _, o := range options {
		o(s)
	}
	return s
}

// EnrollImageCount is the number of images an enrollment request carries.
func (s *Service) EnrollImageCount() int {
	return s.opts.EnrollImageCount
}

// Threshold is the maximum mean distance of a match.
func (s *Service) Threshold() float64 {
	return s.opts.Threshold
}

func normalize(label string) (string, error) {
	label = facematch.NormalizeLabel(label)
	if label == "" {
		return "", ErrLabelRequired
	}
	if utf8.RuneCountInString(label) > constants.MaxLabelLength {
		return "", ErrLabelTooLong
	}
	return label, nil
}

// detect prepares an upload and runs detection in the configured mode.
func (s *Service) detect(ctx context.Context, img Image) (*imaging.Prepared, []detector.Face, error) {
	if len(img.Data) == 0 {
		return nil, nil, fmt.Errorf("%w: %s", ErrMissingImage, img.Field)
	}

	prepared, err := imaging.Prepare(img.Data, constants.MaxImageSize)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", img.Field, err)
	}

	faces, err := detector.Detect(ctx, s.detector, s.opts.Mode, prepared.JPEG)
	if err != nil {
		return nil, nil, fmt.Errorf("detect faces in %s: %w", img.Field, err)
	}
	return prepared, faces, nil
}

// ProgressFunc is called after each enrollment image has been processed.
type ProgressFunc func(done, total int)

// Enroll stores one record for label with a descriptor per image. Every
// image must contain a face; otherwise nothing is stored.
func (s *Service) Enroll(ctx context.Context, label string, images []Image) (*database.FaceRecord, error) {
	return s.EnrollWithProgress(ctx, label, images, nil)
}

// EnrollWithProgress is Enroll reporting per-image progress to progress.
func (s *Service) EnrollWithProgress(ctx context.Context, label string, images []Image, progress ProgressFunc) (*database.FaceRecord, error) {
	label, err := normalize(label)
	if err != nil {
		return nil, err
	}
	if len(images) == 0 {
		return nil, fmt.Errorf("%w: at least one image is required", ErrMissingImage)
	}

	// Fail early instead of running detection for a label we cannot store.
	exists, err := s.store.Exists(ctx, label)
	if err != nil {
		return nil, fmt.Errorf("check label: %w", err)
	}
	if exists {
		return nil, ErrLabelExists
	}

	entry := log.WithField("label", label)
	descriptors := make([][]float32, 0, len(images))
	hashes := make([]fingerprint.Hash, 0, len(images))
	for i, img := range images {
		prepared, faces, err := s.detect(ctx, img)
		if err != nil {
			return nil, err
		}
		if len(faces) == 0 {
			return nil, fmt.Errorf("%w in %s", ErrNoFaceDetected, img.Field)
		}
		descriptors = append(descriptors, faces[0].Descriptor)
		hashes = append(hashes, fingerprint.Of(prepared.Image))

		entry.WithFields(log.Fields{
			"field":    img.Field,
			"faces":    len(faces),
			"progress": (i + 1) * 100 / len(images),
		}).Info("Processed enrollment image")
		if progress != nil {
			progress(i+1, len(images))
		}
	}

	// Repeated photos add no information to the mean distance.
	for _, pair := range fingerprint.NearDuplicates(hashes, constants.NearDuplicateDistance) {
		entry.WithFields(log.Fields{
			"field": images[pair[0]].Field,
			"other": images[pair[1]].Field,
			"bits":  hashes[pair[0]].Distance(hashes[pair[1]]),
		}).Warn("Enrollment images look like the same photo")
	}

	record := &database.FaceRecord{
		Label:        label,
		Descriptions: descriptors,
		Model:        s.detector.Name(),
	}
	if err := s.store.Insert(ctx, record); err != nil {
		if errors.Is(err, database.ErrLabelExists) {
			return nil, ErrLabelExists
		}
		return nil, fmt.Errorf("store face record: %w", err)
	}

	if s.index != nil {
		s.index.Add(*record)
		s.saveIndex()
	}

	entry.WithField("descriptors", len(descriptors)).Info("Face data stored")
	s.events.Publish(ctx, events.TopicEnrolled, events.Enrolled{Label: label, Descriptors: len(descriptors)})
	return record, nil
}

// faceMatch pairs a detected face with its best label.
type faceMatch struct {
	face  detector.Face
	match facematch.Match
}

func (s *Service) match(ctx context.Context, img Image) (*imaging.Prepared, []faceMatch, error) {
	prepared, faces, err := s.detect(ctx, img)
	if err != nil {
		return nil, nil, err
	}
	if len(faces) == 0 {
		return nil, nil, ErrNoFaceDetected
	}

	matches := make([]faceMatch, len(faces))
	if s.index == nil {
		records, err := s.store.FindAll(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("load face records: %w", err)
		}
		m := facematch.NewMatcher(database.Labeled(records), s.opts.Threshold)
		queries := make([][]float32, len(faces))
		for i, face := range faces {
			queries[i] = face.Descriptor
		}
		for i, best := range m.MatchAll(queries) {
			matches[i] = faceMatch{face: faces[i], match: best}
		}
	} else {
		if err := s.refreshIndex(ctx); err != nil {
			return nil, nil, err
		}
		for i, face := range faces {
			candidates := s.index.Candidates(face.Descriptor, s.opts.CandidateLimit)
			m := facematch.NewMatcher(database.Labeled(candidates), s.opts.Threshold)
			log.WithField("candidates", m.Labels()).Debug("Shortlisted labels from HNSW index")
			matches[i] = faceMatch{face: face, match: m.FindBestMatch(face.Descriptor)}
		}
	}

	for _, fm := range matches {
		if fm.match.IsUnknown() {
			continue
		}
		s.events.Publish(ctx, events.TopicRecognized, events.Recognized{
			Label:      fm.match.Label,
			Distance:   facematch.RoundTo(fm.match.Distance, 4),
			Similarity: facematch.RoundTo(facematch.Similarity(fm.match.Distance), 4),
		})
	}
	return prepared, matches, nil
}

func (s *Service) result(prepared *imaging.Prepared, fm faceMatch) Result {
	r := Result{
		Label:      fm.match.Label,
		Distance:   fm.match.Distance,
		Similarity: facematch.Similarity(fm.match.Distance),
	}
	if !s.opts.Thumbnails || fm.face.Box.Empty() {
		return r
	}

	var eyes *facematch.EyePair
	if s.opts.Align {
		eyes = fm.face.Eyes
	}
	thumb, err := imaging.Thumbnail(prepared.Image, fm.face.Box, eyes, constants.ThumbnailSize)
	if err != nil {
		log.WithError(err).WithField("label", r.Label).Warn("Failed to render face thumbnail")
		return r
	}
	r.FaceImage = thumb
	return r
}

// Recognize matches every detected face against all enrolled labels.
// Unknown faces are included with label "unknown".
func (s *Service) Recognize(ctx context.Context, img Image) ([]Result, error) {
	prepared, matches, err := s.match(ctx, img)
	if err != nil {
		return nil, err
	}
	results := make([]Result, len(matches))
	for i, fm := range matches {
		results[i] = s.result(prepared, fm)
	}
	return results, nil
}

// Identify returns the faces in img that match label. An empty slice means
// the label was not found.
func (s *Service) Identify(ctx context.Context, label string, img Image) ([]Result, error) {
	label, err := normalize(label)
	if err != nil {
		return nil, err
	}

	prepared, matches, err := s.match(ctx, img)
	if err != nil {
		return nil, err
	}

	results := []Result{}
	for _, fm := range matches {
		if fm.match.IsUnknown() || fm.match.Label != label {
			continue
		}
		results = append(results, s.result(prepared, fm))
	}

	log.WithFields(log.Fields{
		"label": label,
		"faces": len(matches),
		"found": len(results) > 0,
	}).Info("Face lookup finished")
	return results, nil
}

// Exists reports whether a record with exactly this label is enrolled.
func (s *Service) Exists(ctx context.Context, label string) (bool, error) {
	label, err := normalize(label)
	if err != nil {
		return false, err
	}
	exists, err := s.store.Exists(ctx, label)
	if err != nil {
		return false, fmt.Errorf("check label: %w", err)
	}
	return exists, nil
}

// Labels lists enrolled labels with descriptor counts.
func (s *Service) Labels(ctx context.Context) ([]database.LabelSummary, error) {
	labels, err := s.store.ListLabels(ctx)
	if err != nil {
		return nil, fmt.Errorf("list labels: %w", err)
	}
	return labels, nil
}

// Delete removes a label so it can be enrolled again.
func (s *Service) Delete(ctx context.Context, label string) error {
	label, err := normalize(label)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, label); err != nil {
		if errors.Is(err, database.ErrLabelNotFound) {
			return ErrLabelNotFound
		}
		return fmt.Errorf("delete label: %w", err)
	}

	if s.index != nil {
		s.index.Remove(label)
		s.saveIndex()
	}
	log.WithField("label", label).Info("Face data deleted")
	return nil
}

// refreshIndex rebuilds the index when the store holds a different number of
// records, e.g. after the CLI enrolled or deleted a label while serving.
func (s *Service) refreshIndex(ctx context.Context) error {
	count, err := s.store.Count(ctx)
	if err != nil {
		return fmt.Errorf("count face records: %w", err)
	}
	indexed := s.index.Len()
	if count == indexed {
		return nil
	}

	records, err := s.store.FindAll(ctx)
	if err != nil {
		return fmt.Errorf("load face records: %w", err)
	}
	s.index.Build(records)
	log.WithFields(log.Fields{
		"indexed": indexed,
		"stored":  count,
	}).Info("HNSW index out of date, rebuilt from store")
	s.saveIndex()
	return nil
}

func (s *Service) saveIndex() {
	if s.indexPath == "" {
		return
	}
	if err := s.index.Save(s.indexPath); err != nil {
		log.WithError(err).WithField("path", s.indexPath).Warn("Failed to persist HNSW index")
	}
}

// FormatDistance renders a distance for humans; unknown faces may be +Inf.
func FormatDistance(d float64) string {
	if math.IsInf(d, 1) {
		return "-"
	}
	return fmt.Sprintf("%.4f", d)
}
