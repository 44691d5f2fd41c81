package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWithDefaults(t *testing.T) {
	env := map[string]string{
		"API_FIRESTORE_PROJECT_ID": "camis-dev",
	}

	cfg, err := Load(WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if cfg.Firestore.ProjectID != "camis-dev" {
		t.Errorf("unexpected firestore project: %s", cfg.Firestore.ProjectID)
	}
	if cfg.PubSub.ProjectID != "camis-dev" {
		t.Errorf("expected pubsub project to default to firestore project, got %s", cfg.PubSub.ProjectID)
	}
	if cfg.PubSub.OrderEventsTopic != defaultOrderEventTopic {
		t.Errorf("unexpected order events topic: %s", cfg.PubSub.OrderEventsTopic)
	}
	if cfg.Checkout.ReservationTTL != defaultReservationTTL {
		t.Errorf("unexpected reservation ttl: %s", cfg.Checkout.ReservationTTL)
	}
	if cfg.Checkout.ReconcileGrace != defaultReconcileGrace {
		t.Errorf("unexpected reconcile grace: %s", cfg.Checkout.ReconcileGrace)
	}
	if cfg.Checkout.SweepBatchSize != defaultSweepBatchSize {
		t.Errorf("unexpected sweep batch size: %d", cfg.Checkout.SweepBatchSize)
	}
	if cfg.Idempotency.Header != defaultIdempotencyHeader {
		t.Errorf("unexpected idempotency header: %s", cfg.Idempotency.Header)
	}
	if cfg.Idempotency.TTL != defaultIdempotencyTTL {
		t.Errorf("unexpected idempotency ttl: %s", cfg.Idempotency.TTL)
	}
}

func TestLoadWithOverrides(t *testing.T) {
	env := map[string]string{
		"API_SERVER_PORT":               "9090",
		"API_SERVER_READ_TIMEOUT":       "20s",
		"API_SERVER_WRITE_TIMEOUT":      "25s",
		"API_SERVER_IDLE_TIMEOUT":       "2m",
		"API_FIRESTORE_PROJECT_ID":      "camis-prod",
		"API_FIRESTORE_EMULATOR_HOST":   "localhost:8200",
		"API_PUBSUB_PROJECT_ID":         "camis-events",
		"API_PUBSUB_ORDER_EVENTS_TOPIC": "orders-prod",
		"API_CHECKOUT_RESERVATION_TTL":  "30m",
		"API_CHECKOUT_RECONCILE_GRACE":  "5m",
		"API_CHECKOUT_SWEEP_BATCH":      "250",
		"API_IDEMPOTENCY_HEADER":        "X-Request-Key",
		"API_IDEMPOTENCY_TTL":           "48h",
	}

	cfg, err := Load(WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("unexpected port: %s", cfg.Server.Port)
	}
	if cfg.Server.IdleTimeout != 2*time.Minute {
		t.Errorf("unexpected idle timeout: %s", cfg.Server.IdleTimeout)
	}
	if cfg.Firestore.EmulatorHost != "localhost:8200" {
		t.Errorf("unexpected emulator host: %s", cfg.Firestore.EmulatorHost)
	}
	if cfg.PubSub.ProjectID != "camis-events" {
		t.Errorf("unexpected pubsub project: %s", cfg.PubSub.ProjectID)
	}
	if cfg.PubSub.OrderEventsTopic != "orders-prod" {
		t.Errorf("unexpected order events topic: %s", cfg.PubSub.OrderEventsTopic)
	}
	if cfg.Checkout.ReservationTTL != 30*time.Minute {
		t.Errorf("unexpected reservation ttl: %s", cfg.Checkout.ReservationTTL)
	}
	if cfg.Checkout.SweepBatchSize != 250 {
		t.Errorf("unexpected sweep batch size: %d", cfg.Checkout.SweepBatchSize)
	}
	if cfg.Idempotency.Header != "X-Request-Key" {
		t.Errorf("unexpected idempotency header: %s", cfg.Idempotency.Header)
	}
	if cfg.Idempotency.TTL != 48*time.Hour {
		t.Errorf("unexpected idempotency ttl: %s", cfg.Idempotency.TTL)
	}
}

func TestLoadReadsDotEnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	contents := []byte("# local overrides\nexport API_FIRESTORE_PROJECT_ID=camis-local\nAPI_SERVER_PORT=\"7070\"\n")
	if err := os.WriteFile(envFile, contents, 0o600); err != nil {
		t.Fatalf("failed to write env file: %v", err)
	}

	cfg, err := Load(WithoutSystemEnv(), WithEnvFile(envFile))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Firestore.ProjectID != "camis-local" {
		t.Errorf("unexpected firestore project: %s", cfg.Firestore.ProjectID)
	}
	if cfg.Server.Port != "7070" {
		t.Errorf("unexpected port: %s", cfg.Server.Port)
	}
}

func TestLoadEnvMapTakesPrecedenceOverDotEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	if err := os.WriteFile(envFile, []byte("API_FIRESTORE_PROJECT_ID=from-file\n"), 0o600); err != nil {
		t.Fatalf("failed to write env file: %v", err)
	}

	cfg, err := Load(
		WithEnvMap(map[string]string{"API_FIRESTORE_PROJECT_ID": "from-map"}),
		WithoutSystemEnv(),
		WithEnvFile(envFile),
	)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Firestore.ProjectID != "from-map" {
		t.Errorf("expected env map to win, got %s", cfg.Firestore.ProjectID)
	}
}

func TestLoadMissingProjectFails(t *testing.T) {
	_, err := Load(WithEnvMap(map[string]string{}), WithoutSystemEnv(), WithEnvFile(""))
	if err == nil {
		t.Fatalf("expected validation error")
	}

	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	found := false
	for _, field := range validation.Fields() {
		if field == "Firestore.ProjectID" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected Firestore.ProjectID in fields, got %v", validation.Fields())
	}
}

func TestLoadInvalidDurationFallsBack(t *testing.T) {
	env := map[string]string{
		"API_FIRESTORE_PROJECT_ID":     "camis-dev",
		"API_CHECKOUT_RESERVATION_TTL": "whenever",
	}

	cfg, err := Load(WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Checkout.ReservationTTL != defaultReservationTTL {
		t.Errorf("expected fallback ttl, got %s", cfg.Checkout.ReservationTTL)
	}
}
