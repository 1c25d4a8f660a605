package repository

import (
	"fmt"
	"log"

	"shopsync-api/internal/config"
)

// Stores bundles the entity store with the raw event log it writes beside.
type Stores struct {
	Entities *SQLStore
	RawLog   RawEventRepository
}

// Open connects the entity store and raw event log selected by cfg.
func Open(cfg *config.Config) (*Stores, error) {
	var (
		store *SQLStore
		err   error
	)
	switch cfg.Store.Type {
	case "postgres", "postgresql":
		store, err = NewPostgresStore(cfg.Store.PostgresDSN())
	default:
		store, err = NewSQLiteStore(cfg.Store.Path)
	}
	if err != nil {
		return nil, err
	}

	s := &Stores{Entities: store, RawLog: store}

	switch cfg.RawLog.Type {
	case "mongodb", "mongo":
		s.RawLog, err = NewMongoRawEventRepository(cfg.RawLog.MongoURI, cfg.RawLog.MongoDatabase, cfg.RawLog.MongoCollection)
	case "mysql":
		s.RawLog, err = NewMySQLRawEventRepository(cfg.RawLog.MySQLDSN())
	}
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to open raw event log: %w", err)
	}

	log.Printf("[Repository] Entity store: %s, raw event log: %s", cfg.Store.Type, cfg.RawLog.Type)
	return s, nil
}

// Close closes the raw log (when separate) and the entity store.
func (s *Stores) Close() error {
	if s.RawLog != nil && s.RawLog != RawEventRepository(s.Entities) {
		if err := s.RawLog.Close(); err != nil {
			log.Printf("[Repository] Failed to close raw event log: %v", err)
		}
	}
	return s.Entities.Close()
}
