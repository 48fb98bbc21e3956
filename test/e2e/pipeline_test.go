package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"
)

// TestAssignmentRunEndToEnd seeds clients through the API, triggers a run,
// and verifies the resulting territory assignments and audit trail
func TestAssignmentRunEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	cfg := DefaultConfig()
	RequireService(t, cfg.EngineURL)

	engine := NewHTTPClient(cfg.EngineURL)

	t.Log("Engine is healthy")

	// Step 1: seed two clients that resolve to different territories plus a
	// near-duplicate that should merge
	canonical := CreateClientRecord(cfg.TestClientPrefix+"-A", "Atlas Capital Partners", "Northeast", "Institutional")
	canonical.ParentOrg = "Atlas Holdings"

	duplicate := canonical
	duplicate.ClientID = canonical.ClientID + "-dup"
	duplicate.Name = "Atlas Capital Partners Inc."
	duplicate.ParentOrg = ""

	other := CreateClientRecord(cfg.TestClientPrefix+"-B", "Beacon Wealth Advisors", "Southwest", "Retail")
	other.AdvisorEmail = "casey@example.com"

	for _, record := range []ClientRecord{canonical, duplicate, other} {
		resp, err := engine.Post("/api/v1/clients", record)
		if err != nil {
			t.Fatalf("Failed to create client %s: %v", record.ClientID, err)
		}
		if resp.StatusCode >= 300 {
			body, _ := ParseResponse[map[string]any](resp)
			t.Fatalf("Failed to create client %s: %d - %v", record.ClientID, resp.StatusCode, body)
		}
		resp.Body.Close()
	}
	t.Logf("Seeded clients %s, %s, %s", canonical.ClientID, duplicate.ClientID, other.ClientID)

	// Step 2: trigger a run and wait for it to finish
	resp, err := engine.Post("/api/v1/runs", nil)
	if err != nil {
		t.Fatalf("Failed to trigger run: %v", err)
	}
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("Expected 202 from run trigger, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	var runID string
	deadline := time.Now().Add(10 * time.Second)
	for runID == "" && time.Now().Before(deadline) {
		runID = LatestRunID(t, engine)
		if runID == "" {
			time.Sleep(500 * time.Millisecond)
		}
	}
	if runID == "" {
		t.Fatal("No run appeared after triggering")
	}

	run := WaitForRun(t, engine, runID, 2*time.Minute)
	if status := run["status"]; status != "completed" {
		t.Fatalf("Expected run %s to complete, got status %v (error: %v)", runID, status, run["error"])
	}
	t.Logf("Run %s completed", runID)

	// Step 3: the duplicate should have merged into the canonical record
	resp, err = engine.Get("/api/v1/clients/" + duplicate.ClientID)
	if err != nil {
		t.Fatalf("Failed to get merged client: %v", err)
	}
	merged, err := ParseResponse[map[string]any](resp)
	if err != nil {
		t.Fatalf("Failed to parse merged client: %v", err)
	}
	if mergedInto, _ := merged["merged_into"].(string); mergedInto != canonical.ClientID {
		t.Errorf("Expected %s to be merged into %s, got %v", duplicate.ClientID, canonical.ClientID, merged["merged_into"])
	}

	// Step 4: both surviving clients should hold a current assignment
	for _, clientID := range []string{canonical.ClientID, other.ClientID} {
		resp, err := engine.Get(fmt.Sprintf("/api/v1/clients/%s/assignments", clientID))
		if err != nil {
			t.Fatalf("Failed to list assignments for %s: %v", clientID, err)
		}
		body, err := ParseResponse[map[string]any](resp)
		if err != nil {
			t.Fatalf("Failed to parse assignments for %s: %v", clientID, err)
		}
		items, _ := body["items"].([]any)
		if len(items) == 0 {
			t.Errorf("Expected at least one assignment for %s", clientID)
			continue
		}
		latest, _ := items[0].(map[string]any)
		t.Logf("Client %s assigned to territory %v by rule %v", clientID, latest["territory_id"], latest["assigned_by_rule"])
	}

	// Step 5: the run should have produced NEW audit entries for the clients
	resp, err = engine.Get(fmt.Sprintf("/api/v1/clients/%s/changes", other.ClientID))
	if err != nil {
		t.Fatalf("Failed to list changes: %v", err)
	}
	changesBody, err := ParseResponse[map[string]any](resp)
	if err != nil {
		t.Fatalf("Failed to parse changes: %v", err)
	}
	if changeItems, _ := changesBody["items"].([]any); len(changeItems) == 0 {
		t.Errorf("Expected a change record for %s", other.ClientID)
	}
}

// TestKafkaIngestionTriggersRun publishes a raw client record and a
// run.requested event to Kafka, then verifies the engine picked both up
func TestKafkaIngestionTriggersRun(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	cfg := DefaultConfig()
	RequireService(t, cfg.EngineURL)

	engine := NewHTTPClient(cfg.EngineURL)
	kafkaHelper := NewKafkaHelper(cfg.KafkaBrokers)
	ctx := context.Background()

	publishTime := time.Now().Add(-1 * time.Second)

	// Step 1: publish a raw client record
	record := CreateClientRecord(cfg.TestClientPrefix+"-K", "Keystone Asset Management", "Midwest", "Institutional")
	recordBytes, err := json.Marshal(record)
	if err != nil {
		t.Fatalf("Failed to marshal client record: %v", err)
	}

	err = kafkaHelper.ProduceMessage(ctx, cfg.RawClientsTopic, record.ClientID, recordBytes, map[string]string{
		"source": "e2e-test",
	})
	if err != nil {
		t.Fatalf("Failed to produce client record: %v", err)
	}
	t.Logf("Published client record %s", record.ClientID)

	// Step 2: wait for the record to land via the consumer
	deadline := time.Now().Add(30 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := engine.Get("/api/v1/clients/" + record.ClientID)
		if err == nil && resp.StatusCode == http.StatusOK {
			resp.Body.Close()
			break
		}
		if resp != nil {
			resp.Body.Close()
		}
		time.Sleep(1 * time.Second)
	}

	resp, err := engine.Get("/api/v1/clients/" + record.ClientID)
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("Client %s never appeared after Kafka ingestion", record.ClientID)
	}
	resp.Body.Close()

	// Step 3: request a run over Kafka
	runRequest, _ := json.Marshal(map[string]any{
		"type":         "run.requested",
		"requested_by": "e2e-test",
		"timestamp":    time.Now().UTC(),
	})
	err = kafkaHelper.ProduceMessage(ctx, cfg.RawClientsTopic, "run", runRequest, map[string]string{
		"type": "run.requested",
	})
	if err != nil {
		t.Fatalf("Failed to produce run request: %v", err)
	}

	// Step 4: a run.completed event should show up on the events topic
	messages, err := kafkaHelper.ConsumeMessagesAfter(ctx, cfg.EventsTopic, "e2e-events", 2*time.Minute, 50, publishTime)
	if err != nil {
		t.Fatalf("Failed to consume events: %v", err)
	}

	var sawCompleted bool
	for _, msg := range messages {
		for _, h := range msg.Headers {
			if h.Key == "event_type" && string(h.Value) == "run.completed" {
				sawCompleted = true
			}
		}
	}
	if !sawCompleted {
		t.Errorf("Expected a run.completed event on %s, got %d other messages", cfg.EventsTopic, len(messages))
	}
}
