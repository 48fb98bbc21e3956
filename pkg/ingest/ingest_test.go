package ingest

import (
	"context"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mavasquez401/crm-territory-engine/pkg/kafka"
	"github.com/mavasquez401/crm-territory-engine/pkg/models"
)

type fakeClientStore struct {
	upserts []models.CreateClientRequest
	err     error
}

func (f *fakeClientStore) Upsert(ctx context.Context, req models.CreateClientRequest) (*models.Client, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.upserts = append(f.upserts, req)
	return &models.Client{ClientID: req.ClientID, Name: req.Name}, nil
}

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(msg ectologger.EctoLogMessage) {})
}

func clientMessage(t *testing.T, body string) *kafka.IncomingMessage {
	t.Helper()
	msg := &kafka.IncomingMessage{Key: "C-1", Value: []byte(body)}
	require.NoError(t, msg.ParseClientMessage())
	return msg
}

func TestHandleMessage_UpsertsValidRecord(t *testing.T) {
	store := &fakeClientStore{}
	svc := NewService(store, nil, testLogger())

	msg := clientMessage(t, `{"client_id":"C-1","client_name":"Atlas Capital","region":"Northeast","segment":"Institutional"}`)
	require.NoError(t, svc.HandleMessage(context.Background(), msg))

	require.Len(t, store.upserts, 1)
	assert.Equal(t, "C-1", store.upserts[0].ClientID)
}

func TestHandleMessage_NormalizesAdvisorEmail(t *testing.T) {
	store := &fakeClientStore{}
	svc := NewService(store, nil, testLogger())

	msg := clientMessage(t, `{"client_id":"C-1","client_name":"Atlas Capital","advisor_email":" Casey@Example.COM "}`)
	require.NoError(t, svc.HandleMessage(context.Background(), msg))

	require.Len(t, store.upserts, 1)
	assert.Equal(t, "casey@example.com", store.upserts[0].AdvisorEmail)
}

func TestHandleMessage_SkipsInvalidRecord(t *testing.T) {
	store := &fakeClientStore{}
	svc := NewService(store, nil, testLogger())

	// Missing client_name fails validation; the message is dropped, not
	// returned for redelivery.
	msg := clientMessage(t, `{"client_id":"C-1"}`)
	require.NoError(t, svc.HandleMessage(context.Background(), msg))
	assert.Empty(t, store.upserts)
}

func TestHandleMessage_RunRequestWithoutPipelineIsNoop(t *testing.T) {
	store := &fakeClientStore{}
	svc := NewService(store, nil, testLogger())

	msg := &kafka.IncomingMessage{
		Headers: map[string]string{"type": "run.requested"},
		Value:   []byte(`{"type":"run.requested"}`),
	}
	require.NoError(t, svc.HandleMessage(context.Background(), msg))
	assert.Empty(t, store.upserts)
}
