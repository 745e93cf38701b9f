package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/blociq/blociq-backend/pkg/database"
	"github.com/blociq/blociq-backend/pkg/logger"
)

// TestSchema is an isolated PostgreSQL schema created for one test.
type TestSchema struct {
	Name string
	// DB connects with search_path set to the schema, so unqualified table
	// names resolve inside it on every pooled connection.
	DB *database.DB
}

// SchemaManager creates and drops per-test schemas.
type SchemaManager struct {
	db      *sqlx.DB
	dsn     string
	log     *logger.Logger
	schemas []*TestSchema
	mu      sync.Mutex
}

// NewSchemaManager creates a schema manager on an admin connection. dsn is
// the URL-form connection string the per-schema pools are derived from.
func NewSchemaManager(db *sqlx.DB, dsn string, log *logger.Logger) *SchemaManager {
	return &SchemaManager{db: db, dsn: dsn, log: log}
}

// CreateSchema creates a fresh schema and applies migrations inside it.
func (sm *SchemaManager) CreateSchema(ctx context.Context, name string, migrations []string) (*TestSchema, error) {
	schemaName := schemaName(name)

	if _, err := sm.db.ExecContext(ctx, fmt.Sprintf("CREATE SCHEMA %s", schemaName)); err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	db, err := database.NewWithDSN(withSearchPath(sm.dsn, schemaName), sm.log)
	if err != nil {
		return nil, err
	}

	if err := db.Migrate(ctx, migrations); err != nil {
		db.Close()
		return nil, err
	}

	s := &TestSchema{Name: schemaName, DB: db}

	sm.mu.Lock()
	sm.schemas = append(sm.schemas, s)
	sm.mu.Unlock()
	return s, nil
}

// DropSchema closes the schema's pool and drops it with everything inside.
func (sm *SchemaManager) DropSchema(ctx context.Context, s *TestSchema) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	s.DB.Close()
	if _, err := sm.db.ExecContext(ctx, fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", s.Name)); err != nil {
		return fmt.Errorf("failed to drop schema: %w", err)
	}

	for i, tracked := range sm.schemas {
		if tracked == s {
			sm.schemas = append(sm.schemas[:i], sm.schemas[i+1:]...)
			break
		}
	}
	return nil
}

// Cleanup drops every schema still tracked.
func (sm *SchemaManager) Cleanup(ctx context.Context) error {
	sm.mu.Lock()
	schemas := append([]*TestSchema(nil), sm.schemas...)
	sm.mu.Unlock()

	var lastErr error
	for _, s := range schemas {
		if err := sm.DropSchema(ctx, s); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

func schemaName(name string) string {
	slug := strings.ToLower(strings.NewReplacer(" ", "_", "-", "_").Replace(name))
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("test_%s_%s", slug, suffix)
}

func withSearchPath(dsn, schema string) string {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "search_path=" + schema
}
