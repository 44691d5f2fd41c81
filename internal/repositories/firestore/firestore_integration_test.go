//go:build integration

package firestore_test

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/exec"
	"strings"
	"sync"
	"testing"
	"time"

	domain "github.com/SrAngelDev/CamisApi-sub000/internal/domain"
	pconfig "github.com/SrAngelDev/CamisApi-sub000/internal/platform/config"
	pfirestore "github.com/SrAngelDev/CamisApi-sub000/internal/platform/firestore"
	"github.com/SrAngelDev/CamisApi-sub000/internal/repositories"
	fsrepo "github.com/SrAngelDev/CamisApi-sub000/internal/repositories/firestore"
)

const firestoreEmulatorImage = "gcr.io/google.com/cloudsdktool/cloud-sdk:emulators"

func TestRepositoriesIntegration(t *testing.T) {
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("docker not available: " + err.Error())
	}

	ensureDockerDaemon(t)

	port := freePort(t)
	endpoint := fmt.Sprintf("127.0.0.1:%d", port)
	containerID := startFirestoreEmulator(t, port)
	defer stopContainer(containerID)

	waitForEndpoint(t, endpoint, 30*time.Second)

	cfg := pconfig.FirestoreConfig{
		ProjectID:    "test-project",
		EmulatorHost: endpoint,
	}

	provider := pfirestore.NewProvider(cfg)
	t.Cleanup(func() {
		_ = provider.Close(context.Background())
	})

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	now := time.Date(2026, time.March, 14, 10, 0, 0, 0, time.UTC)

	t.Run("product transition is compare-and-swap", func(t *testing.T) {
		products, err := fsrepo.NewProductRepository(provider)
		if err != nil {
			t.Fatalf("product repository: %v", err)
		}

		seed := domain.Product{
			ID:        "shirt-cas",
			Name:      "1998 home shirt",
			Team:      "CA Osasuna",
			Size:      "L",
			Price:     4500,
			State:     domain.ProductStateAvailable,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if _, err := products.Save(ctx, seed); err != nil {
			t.Fatalf("seed product: %v", err)
		}

		results := make([]error, 2)
		var wg sync.WaitGroup
		for i := range results {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, results[i] = products.Transition(ctx, seed.ID,
					domain.ProductStateAvailable, domain.ProductStateReserved, now)
			}(i)
		}
		wg.Wait()

		won, lost := 0, 0
		for _, err := range results {
			if err == nil {
				won++
				continue
			}
			lost++
			var prodErr *repositories.ProductError
			if !errors.As(err, &prodErr) {
				t.Fatalf("expected product error for losing transition, got %v", err)
			}
			if prodErr.Code != repositories.ProductErrorInvalidState {
				t.Fatalf("expected invalid state code, got %s", prodErr.Code)
			}
		}
		if won != 1 || lost != 1 {
			t.Fatalf("expected exactly one winning transition, got %d wins and %d losses", won, lost)
		}

		final, err := products.FindByID(ctx, seed.ID)
		if err != nil {
			t.Fatalf("reload product: %v", err)
		}
		if final.State != domain.ProductStateReserved {
			t.Fatalf("expected reserved after race, got %s", final.State)
		}
	})

	t.Run("add to cart reserves at most once", func(t *testing.T) {
		products, err := fsrepo.NewProductRepository(provider)
		if err != nil {
			t.Fatalf("product repository: %v", err)
		}
		carts, err := fsrepo.NewCartRepository(provider)
		if err != nil {
			t.Fatalf("cart repository: %v", err)
		}

		seed := domain.Product{
			ID:        "shirt-contested",
			Name:      "2003 away shirt",
			Team:      "Real Sociedad",
			Size:      "M",
			Price:     5200,
			State:     domain.ProductStateAvailable,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if _, err := products.Save(ctx, seed); err != nil {
			t.Fatalf("seed product: %v", err)
		}

		users := []string{"buyer-a", "buyer-b"}
		results := make([]error, len(users))
		var wg sync.WaitGroup
		for i, userID := range users {
			wg.Add(1)
			go func(i int, userID string) {
				defer wg.Done()
				_, results[i] = carts.AddProduct(ctx, userID, seed.ID, now)
			}(i, userID)
		}
		wg.Wait()

		won, lost := 0, 0
		for _, err := range results {
			if err == nil {
				won++
				continue
			}
			lost++
			var prodErr *repositories.ProductError
			if !errors.As(err, &prodErr) {
				t.Fatalf("expected product error for losing add, got %v", err)
			}
			if prodErr.Code != repositories.ProductErrorInvalidState {
				t.Fatalf("expected invalid state code, got %s", prodErr.Code)
			}
		}
		if won != 1 || lost != 1 {
			t.Fatalf("expected exactly one cart to win, got %d wins and %d losses", won, lost)
		}

		final, err := products.FindByID(ctx, seed.ID)
		if err != nil {
			t.Fatalf("reload product: %v", err)
		}
		if final.State != domain.ProductStateReserved {
			t.Fatalf("expected reserved after contested add, got %s", final.State)
		}

		holders := 0
		for _, userID := range users {
			cart, err := carts.GetCart(ctx, userID)
			if err != nil {
				var repoErr repositories.RepositoryError
				if errors.As(err, &repoErr) && repoErr.IsNotFound() {
					continue
				}
				t.Fatalf("load cart %s: %v", userID, err)
			}
			if cart.Contains(seed.ID) {
				holders++
			}
		}
		if holders != 1 {
			t.Fatalf("expected exactly one cart holding the product, got %d", holders)
		}
	})

	t.Run("intent create serialises conversions per cart", func(t *testing.T) {
		intents, err := fsrepo.NewCheckoutIntentRepository(provider)
		if err != nil {
			t.Fatalf("intent repository: %v", err)
		}

		first := domain.CheckoutIntent{
			ID:         "buyer-c",
			CartID:     "buyer-c",
			UserID:     "buyer-c",
			OrderID:    "order-1",
			ProductIDs: []string{"shirt-1"},
			Status:     domain.CheckoutIntentStatusPending,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := intents.Create(ctx, first); err != nil {
			t.Fatalf("first create: %v", err)
		}

		second := first
		second.OrderID = "order-2"
		err = intents.Create(ctx, second)
		if err == nil {
			t.Fatalf("expected conflict while a pending intent exists")
		}
		var repoErr repositories.RepositoryError
		if !errors.As(err, &repoErr) {
			t.Fatalf("expected repository error, got %v", err)
		}
		if !repoErr.IsConflict() {
			t.Fatalf("expected conflict classification, got %v", err)
		}

		if err := intents.Complete(ctx, first.CartID, now.Add(time.Minute)); err != nil {
			t.Fatalf("complete: %v", err)
		}

		second.ProductIDs = []string{"shirt-2"}
		if err := intents.Create(ctx, second); err != nil {
			t.Fatalf("create after completion: %v", err)
		}

		reloaded, err := intents.FindByCart(ctx, first.CartID)
		if err != nil {
			t.Fatalf("reload intent: %v", err)
		}
		if reloaded.OrderID != "order-2" {
			t.Fatalf("expected replaced intent for order-2, got %s", reloaded.OrderID)
		}
		if reloaded.Status != domain.CheckoutIntentStatusPending {
			t.Fatalf("expected replaced intent to be pending, got %s", reloaded.Status)
		}
	})
}

func freePort(t *testing.T) int {
	t.Helper()
	addr, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("unable to allocate port: %v", err)
	}
	defer addr.Close()
	return addr.Addr().(*net.TCPAddr).Port
}

func startFirestoreEmulator(t *testing.T, port int) string {
	t.Helper()
	args := []string{
		"run", "-d", "--rm",
		"-p", fmt.Sprintf("%d:8080", port),
		firestoreEmulatorImage,
		"gcloud", "beta", "emulators", "firestore", "start",
		"--host-port=0.0.0.0:8080",
		"--quiet",
	}

	cmd := exec.Command("docker", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("failed to start firestore emulator: %v - %s", err, string(out))
	}
	id := strings.TrimSpace(string(out))
	if id == "" {
		t.Fatalf("docker returned empty container id")
	}
	// Shorten the ID to match docker CLI behaviour for stop/remove commands.
	if len(id) > 12 {
		id = id[:12]
	}
	return id
}

func stopContainer(id string) {
	if id == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "docker", "stop", id)
	_ = cmd.Run()
}

func waitForEndpoint(t *testing.T, endpoint string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", endpoint, 500*time.Millisecond)
		if err == nil {
			conn.Close()
			return
		}
		lastErr = err
		time.Sleep(250 * time.Millisecond)
	}
	if lastErr == nil {
		lastErr = errors.New("timeout waiting for endpoint")
	}
	t.Fatalf("emulator did not become ready: %v", lastErr)
}

func ensureDockerDaemon(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	cmd := exec.CommandContext(ctx, "docker", "info")
	if err := cmd.Run(); err != nil {
		t.Skip("docker daemon unavailable: " + err.Error())
	}
}
