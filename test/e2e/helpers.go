package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
)

// Config holds test configuration
type Config struct {
	EngineURL        string
	KafkaBrokers     []string
	RawClientsTopic  string
	EventsTopic      string
	TestClientPrefix string
}

// DefaultConfig returns default test configuration
func DefaultConfig() Config {
	return Config{
		EngineURL:        getEnv("ENGINE_URL", "http://localhost:3004"),
		KafkaBrokers:     []string{getEnv("KAFKA_BROKERS", "localhost:9092")},
		RawClientsTopic:  getEnv("RAW_CLIENTS_TOPIC", "raw-clients"),
		EventsTopic:      getEnv("TERRITORY_EVENTS_TOPIC", "territory-events"),
		TestClientPrefix: getEnv("TEST_CLIENT_PREFIX", "E2E"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// HTTPClient wraps http.Client with helper methods
type HTTPClient struct {
	client  *http.Client
	baseURL string
}

// NewHTTPClient creates a new HTTP client for the engine
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseURL: baseURL,
	}
}

// Get performs a GET request
func (c *HTTPClient) Get(path string) (*http.Response, error) {
	req, err := http.NewRequest("GET", c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	return c.client.Do(req)
}

// Post performs a POST request with JSON body
func (c *HTTPClient) Post(path string, body any) (*http.Response, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequest("POST", c.baseURL+path, bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.client.Do(req)
}

// Put performs a PUT request with JSON body
func (c *HTTPClient) Put(path string, body any) (*http.Response, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequest("PUT", c.baseURL+path, bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.client.Do(req)
}

// ParseResponse parses a JSON response into the given type
func ParseResponse[T any](resp *http.Response) (T, error) {
	var result T
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return result, err
	}
	defer resp.Body.Close()

	if err := json.Unmarshal(body, &result); err != nil {
		return result, fmt.Errorf("failed to parse response: %w (body: %s)", err, string(body))
	}
	return result, nil
}

// KafkaHelper provides Kafka testing utilities
type KafkaHelper struct {
	brokers []string
}

// NewKafkaHelper creates a new Kafka helper
func NewKafkaHelper(brokers []string) *KafkaHelper {
	return &KafkaHelper{brokers: brokers}
}

// ProduceMessage sends a message to a topic
func (k *KafkaHelper) ProduceMessage(ctx context.Context, topic string, key string, value []byte, headers map[string]string) error {
	writer := &kafka.Writer{
		Addr:     kafka.TCP(k.brokers...),
		Topic:    topic,
		Balancer: &kafka.Hash{},
	}
	defer writer.Close()

	kafkaHeaders := make([]kafka.Header, 0, len(headers))
	for k, v := range headers {
		kafkaHeaders = append(kafkaHeaders, kafka.Header{Key: k, Value: []byte(v)})
	}

	return writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(key),
		Value:   value,
		Headers: kafkaHeaders,
	})
}

// ConsumeMessagesAfter consumes messages from a topic, filtering for messages
// published after a specific time so stale messages from earlier runs are
// ignored
func (k *KafkaHelper) ConsumeMessagesAfter(ctx context.Context, topic, groupID string, timeout time.Duration, maxMessages int, afterTime time.Time) ([]kafka.Message, error) {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  k.brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  500 * time.Millisecond,
	})
	defer reader.Close()

	messages := make([]kafka.Message, 0, maxMessages)
	deadline := time.Now().Add(timeout)

	for len(messages) < maxMessages && time.Now().Before(deadline) {
		ctx, cancel := context.WithTimeout(ctx, 1*time.Second)
		msg, err := reader.FetchMessage(ctx)
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				continue // Timeout, try again
			}
			return messages, err
		}

		// Commit all messages to advance offset, but only keep recent ones
		reader.CommitMessages(context.Background(), msg)

		if !afterTime.IsZero() && msg.Time.Before(afterTime) {
			continue
		}

		messages = append(messages, msg)
	}

	return messages, nil
}

// RequireService skips the test if the engine is not available.
// Waits up to 10 seconds for the service to become ready (handles 503 during startup)
func RequireService(t *testing.T, url string) {
	t.Helper()

	client := &http.Client{Timeout: 2 * time.Second}
	deadline := time.Now().Add(10 * time.Second)

	for time.Now().Before(deadline) {
		resp, err := client.Get(url + "/api/v1/health")
		if err != nil {
			t.Skipf("Skipping: service at %s is not available. Start it with 'make dev'", url)
			return
		}

		status := resp.StatusCode
		resp.Body.Close()

		if status == http.StatusOK {
			return // Service is ready
		}

		if status == http.StatusServiceUnavailable {
			t.Logf("Service at %s is starting (503), waiting...", url)
			time.Sleep(1 * time.Second)
			continue
		}

		t.Skipf("Skipping: service at %s returned status %d", url, status)
		return
	}

	t.Skipf("Skipping: service at %s did not become ready within 10s", url)
}

// ClientRecord mirrors the raw CRM client payload the engine ingests
type ClientRecord struct {
	ClientID     string `json:"client_id"`
	Name         string `json:"client_name"`
	Region       string `json:"region"`
	Segment      string `json:"segment"`
	ParentOrg    string `json:"parent_org,omitempty"`
	AdvisorEmail string `json:"advisor_email,omitempty"`
}

// CreateClientRecord creates a test client record with a unique suffix so
// reruns do not collide with leftovers from earlier runs
func CreateClientRecord(prefix, name, region, segment string) ClientRecord {
	return ClientRecord{
		ClientID: fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano()),
		Name:     name,
		Region:   region,
		Segment:  segment,
	}
}

// WaitForRun polls the runs API until the run reaches a terminal status or
// the timeout elapses
func WaitForRun(t *testing.T, client *HTTPClient, runID string, timeout time.Duration) map[string]any {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := client.Get("/api/v1/runs/" + runID)
		if err == nil && resp.StatusCode == http.StatusOK {
			run, err := ParseResponse[map[string]any](resp)
			if err == nil {
				status, _ := run["status"].(string)
				if status == "completed" || status == "failed" {
					return run
				}
			}
		} else if resp != nil {
			resp.Body.Close()
		}
		time.Sleep(500 * time.Millisecond)
	}

	t.Fatalf("run %s did not finish within %s", runID, timeout)
	return nil
}

// LatestRunID returns the run ID of the most recent run, or "" when no run
// has happened yet
func LatestRunID(t *testing.T, client *HTTPClient) string {
	t.Helper()

	resp, err := client.Get("/api/v1/runs?limit=1")
	if err != nil {
		t.Fatalf("failed to list runs: %v", err)
	}
	body, err := ParseResponse[map[string]any](resp)
	if err != nil {
		t.Fatalf("failed to parse runs list: %v", err)
	}

	items, _ := body["items"].([]any)
	if len(items) == 0 {
		return ""
	}
	run, _ := items[0].(map[string]any)
	id, _ := run["run_id"].(string)
	return id
}
