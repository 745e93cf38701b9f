package testutil

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/jmoiron/sqlx"

	"github.com/blociq/blociq-backend/pkg/logger"
)

var (
	// Global test container (shared across all integration tests)
	globalContainer *PostgresContainer
	globalDB        *sqlx.DB
	containerOnce   sync.Once
	containerErr    error
)

// IntegrationSuite provides a base for integration tests with real PostgreSQL
type IntegrationSuite struct {
	Container *PostgresContainer
	RawDB     *sqlx.DB
	Schemas   *SchemaManager
	Fixtures  *FixtureFactory
	Logger    *logger.Logger
}

// NewIntegrationSuite starts (or reuses) the shared container.
//
// Usage:
//
//	func TestAssetRepository_Integration(t *testing.T) {
//	    suite := testutil.RequireIntegrationSuite(t)
//	    schema := suite.SetupSchema(t, ctx, "apply-patch", repository.Migrations())
//	    repo := repository.NewAssetRepository(schema.DB)
//	}
func NewIntegrationSuite(ctx context.Context) (*IntegrationSuite, error) {
	container, db, err := getOrCreateContainer(ctx)
	if err != nil {
		return nil, err
	}

	log := logger.Nop()
	return &IntegrationSuite{
		Container: container,
		RawDB:     db,
		Schemas:   NewSchemaManager(db, container.DSN, log),
		Fixtures:  NewFixtureFactory(),
		Logger:    log,
	}, nil
}

// RequireIntegrationSuite returns the shared suite, skipping the test under
// -short or when no container runtime is available. In CI a missing runtime
// fails the test instead.
func RequireIntegrationSuite(t *testing.T) *IntegrationSuite {
	t.Helper()
	SkipIfShort(t)

	suite, err := NewIntegrationSuite(context.Background())
	if err != nil {
		if IsCI() {
			t.Fatalf("integration database unavailable in CI: %v", err)
		}
		t.Skipf("integration database unavailable: %v", err)
	}
	return suite
}

// getOrCreateContainer returns the shared test container
func getOrCreateContainer(ctx context.Context) (*PostgresContainer, *sqlx.DB, error) {
	containerOnce.Do(func() {
		globalContainer, containerErr = NewPostgresContainer(ctx, DefaultPostgresConfig())
		if containerErr != nil {
			return
		}
		globalDB, containerErr = globalContainer.Connect(ctx)
	})

	return globalContainer, globalDB, containerErr
}

// SetupSchema creates an isolated, migrated schema dropped when t ends.
func (s *IntegrationSuite) SetupSchema(t *testing.T, ctx context.Context, name string, migrations []string) *TestSchema {
	t.Helper()

	schema, err := s.Schemas.CreateSchema(ctx, name, migrations)
	if err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}

	t.Cleanup(func() {
		if err := s.Schemas.DropSchema(context.Background(), schema); err != nil {
			t.Logf("warning: failed to drop schema %s: %v", schema.Name, err)
		}
	})

	return schema
}

// Cleanup drops every schema the suite created
func (s *IntegrationSuite) Cleanup(ctx context.Context) error {
	// The container is shared and outlives a single suite.
	return s.Schemas.Cleanup(ctx)
}

// TerminateContainer terminates the shared container.
// Only call this in TestMain after all tests have completed.
func TerminateContainer(ctx context.Context) {
	if globalContainer != nil {
		globalContainer.Terminate(ctx)
	}
}

// IsCI returns true if running in CI environment
func IsCI() bool {
	for _, v := range ciVars {
		if os.Getenv(v) != "" {
			return true
		}
	}
	return false
}

var ciVars = []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL"}
