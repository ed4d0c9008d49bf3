package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/animestream/authcore/internal/config"
	"github.com/animestream/authcore/internal/mockapi"
	"github.com/animestream/authcore/internal/services"
	"github.com/animestream/authcore/internal/storage"
	"golang.org/x/crypto/bcrypt"
)

func TestMainServer(t *testing.T) {
	backend := mockapi.NewServer(mockapi.Options{
		BasePath:   "/api",
		AccessTTL:  time.Minute * 15,
		Secret:     func() []byte { return []byte("main-test") },
		BcryptCost: bcrypt.MinCost,
	})
	if _, err := backend.Users().Create("Mai", "mai@example.com", "s3cret"); err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}
	apiServer := httptest.NewServer(backend.Router())
	defer apiServer.Close()

	svc, err := services.InitializeServices(context.Background(), services.Options{
		APIBaseURL: apiServer.URL + "/api",
		Session:    storage.Options{Kind: config.TierMemory},
		Persistent: storage.Options{Kind: config.TierMemory},
	})
	if err != nil {
		t.Fatalf("Failed to initialize services: %v", err)
	}
	defer svc.Close()

	server := httptest.NewServer(setupRouter(svc))
	defer server.Close()

	client := &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	t.Run("protected page redirects before login", func(t *testing.T) {
		resp, err := client.Get(server.URL + "/profile")
		if err != nil {
			t.Fatalf("Failed to make request: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusFound {
			t.Errorf("Expected status code %d, got %d", http.StatusFound, resp.StatusCode)
		}
		if got := resp.Header.Get("Location"); got != "/home?login=1&redirect=%2Fprofile" {
			t.Errorf("Unexpected redirect %q", got)
		}
	})

	t.Run("login endpoint", func(t *testing.T) {
		resp, err := client.Post(server.URL+"/auth/login", "application/json", strings.NewReader(`{
			"email": "mai@example.com",
			"password": "s3cret"
		}`))
		if err != nil {
			t.Fatalf("Failed to make request: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			t.Errorf("Expected status code %d, got %d", http.StatusOK, resp.StatusCode)
		}
	})

	t.Run("protected page after login", func(t *testing.T) {
		resp, err := client.Get(server.URL + "/profile")
		if err != nil {
			t.Fatalf("Failed to make request: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			t.Errorf("Expected status code %d, got %d", http.StatusOK, resp.StatusCode)
		}
	})
}
