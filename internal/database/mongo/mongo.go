// Package mongo stores face records in MongoDB using mgo sessions.
package mongo

import (
	"errors"
	"fmt"
	"time"

	"github.com/globalsign/mgo"
	"github.com/kozaktomas/face-recognizer/internal/config"
	"github.com/kozaktomas/face-recognizer/internal/database"

	log "github.com/sirupsen/logrus"
)

const (
	collectionName = "faces"
	dialTimeout    = 10 * time.Second
)

// Store owns the root session. Every operation works on a copy of it.
type Store struct {
	session *mgo.Session
	dbName  string
}

// DatabaseName picks the database from the URL path, falling back to def.
func DatabaseName(rawURL, def string) (string, error) {
	info, err := mgo.ParseURL(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse mongodb URL: %w", err)
	}
	if info.Database != "" {
		return info.Database, nil
	}
	if def == "" {
		return "", errors.New("mongodb database name is required")
	}
	return def, nil
}

// NewStore dials MongoDB and makes sure the unique label index exists.
func NewStore(cfg *config.DatabaseConfig) (*Store, error) {
	if cfg.URL == "" {
		return nil, errors.New("MongoDB URL is required")
	}

	dbName, err := DatabaseName(cfg.URL, cfg.MongoDatabase)
	if err != nil {
		return nil, err
	}

	session, err := mgo.DialWithTimeout(cfg.URL, dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	session.SetMode(mgo.Monotonic, true)
	if cfg.MaxOpenConns > 0 {
		session.SetPoolLimit(cfg.MaxOpenConns)
	}

	s := &Store{session: session, dbName: dbName}
	if err := s.ensureIndexes(); err != nil {
		session.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureIndexes() error {
	sess := s.session.Copy()
	defer sess.Close()

	err := sess.DB(s.dbName).C(collectionName).EnsureIndex(mgo.Index{
		Key:        []string{"label"},
		Unique:     true,
		Background: false,
	})
	if err != nil {
		return fmt.Errorf("ensure label index: %w", err)
	}
	return nil
}

// collection returns the faces collection on a fresh session copy. The caller
// must close the returned session.
func (s *Store) collection() (*mgo.Session, *mgo.Collection) {
	sess := s.session.Copy()
	return sess, sess.DB(s.dbName).C(collectionName)
}

// Close closes the root session.
func (s *Store) Close() error {
	s.session.Close()
	return nil
}

// Initialize connects and registers MongoDB as the storage backend.
func Initialize(cfg *config.DatabaseConfig) error {
	store, err := NewStore(cfg)
	if err != nil {
		return err
	}

	database.RegisterBackend(database.BackendMongo,
		func() database.FaceRecordReader { return NewFaceRecordRepository(store) },
		func() database.FaceRecordWriter { return NewFaceRecordRepository(store) },
		store.Close,
	)
	log.WithFields(log.Fields{
		"backend":  database.BackendMongo,
		"database": store.dbName,
	}).Info("Record store initialized")
	return nil
}
