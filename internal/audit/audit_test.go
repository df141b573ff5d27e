package audit_test

import (
	"context"
	"testing"
	"time"

	"github.com/johnsnewby/transcriberd/internal/audit"
)

func TestNoopLedger_DiscardsWithoutError(t *testing.T) {
	l := audit.NewNoop()
	defer l.Close()

	err := l.RecordEvent(context.Background(), audit.Event{
		SessionID:  1,
		ExternalID: "ext-1",
		Kind:       audit.Created,
		At:         time.Now(),
	})
	if err != nil {
		t.Fatalf("RecordEvent on noop ledger returned error: %v", err)
	}
}
