package audit_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/johnsnewby/transcriberd/internal/audit"
)

// testDSN returns the test database DSN from the environment, or skips the
// test if TRANSCRIBERD_TEST_POSTGRES_DSN is not set.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("TRANSCRIBERD_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TRANSCRIBERD_TEST_POSTGRES_DSN not set — skipping PostgreSQL integration tests")
	}
	return dsn
}

func dropSchema(t *testing.T, ctx context.Context, dsn string) {
	t.Helper()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pgxpool.New: %v", err)
	}
	defer pool.Close()
	if _, err := pool.Exec(ctx, `DROP TABLE IF EXISTS session_events`); err != nil {
		t.Fatalf("drop schema: %v", err)
	}
}

func TestNew_MigratesSchemaAndRecordsEvent(t *testing.T) {
	dsn := testDSN(t)
	ctx := context.Background()
	dropSchema(t, ctx, dsn)

	ledger, err := audit.New(ctx, dsn)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer ledger.Close()

	ev := audit.Event{
		SessionID:  1,
		ExternalID: "ext-1",
		Language:   "en",
		SampleRate: 16000,
		Kind:       audit.Created,
		At:         time.Now(),
	}
	if err := ledger.RecordEvent(ctx, ev); err != nil {
		t.Fatalf("RecordEvent: %v", err)
	}
}

func TestNew_InvalidDSNReturnsError(t *testing.T) {
	_, err := audit.New(context.Background(), "not-a-valid-dsn://???")
	if err == nil {
		t.Fatal("expected error for invalid DSN, got nil")
	}
}
