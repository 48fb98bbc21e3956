package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// A transaction carried on the context stays open for its opener: Commit and
// Rollback called with that context are no-ops, so a nested store call cannot
// close a run-scoped transaction mid-flight.
func TestTransaction_ContextTxIsClosedOnlyByOpener(t *testing.T) {
	tx := &Transaction{}
	ctx := context.WithValue(context.Background(), txStatusKey, "open")

	require.NoError(t, tx.Commit(ctx))
	require.NoError(t, tx.Rollback(ctx))
	assert.True(t, tx.IsOpen())
}
