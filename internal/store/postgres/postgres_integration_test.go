package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/vitalsd/vitalsd/internal/store"
	"github.com/vitalsd/vitalsd/internal/store/storetest"
)

// makePGStore runs the compliance suite against a disposable postgres
// container, or against VITALSD_TEST_DATABASE_URL when the operator points it
// at an existing database.
func makePGStore(t *testing.T) store.Store {
	t.Helper()
	dsn := os.Getenv("VITALSD_TEST_DATABASE_URL")
	if dsn == "" {
		dsn = startPostgres(t)
	}
	db, err := Open(dsn)
	if err != nil {
		t.Fatalf("postgres open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := EnsureSchema(context.Background(), db); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	return NewWithDB(db)
}

func startPostgres(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "vitalsd",
				"POSTGRES_PASSWORD": "vitalsd",
				"POSTGRES_DB":       "vitalsd_test",
			},
			// The image restarts the server once during init; wait for the
			// second ready line.
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("cannot start postgres container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("container port: %v", err)
	}
	return fmt.Sprintf("postgres://vitalsd:vitalsd@%s:%s/vitalsd_test?sslmode=disable",
		host, port.Port())
}

func TestPostgresStore_Compliance(t *testing.T) {
	storetest.Run(t, makePGStore)
}
