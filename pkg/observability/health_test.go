package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

func healthyDB(t *testing.T) *HealthChecker {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("Failed to create mock db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	mock.ExpectPing()
	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"one"}).AddRow(1))
	return NewHealthChecker(db, nil)
}

func TestHealthChecker_Liveness(t *testing.T) {
	checker := NewHealthChecker(nil, nil)

	rr := httptest.NewRecorder()
	checker.Liveness(rr, httptest.NewRequest("GET", "/health/live", nil))

	if rr.Code != http.StatusOK {
		t.Errorf("Liveness returned wrong status code: got %v want %v", rr.Code, http.StatusOK)
	}

	var body map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if body["status"] != StatusHealthy {
		t.Errorf("Expected status %s, got %v", StatusHealthy, body["status"])
	}
}

func TestHealthChecker_Readiness(t *testing.T) {
	t.Run("no dependencies", func(t *testing.T) {
		checker := NewHealthChecker(nil, nil).WithVersion("1.2.3")

		rr := httptest.NewRecorder()
		checker.Readiness(rr, httptest.NewRequest("GET", "/health/ready", nil))

		if rr.Code != http.StatusOK {
			t.Errorf("Expected %v, got %v", http.StatusOK, rr.Code)
		}
		if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
			t.Errorf("Expected Content-Type application/json, got %s", ct)
		}

		var response HealthStatus
		if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		if response.Version != "1.2.3" {
			t.Errorf("Expected version 1.2.3, got %s", response.Version)
		}
	})

	t.Run("failed database is unhealthy", func(t *testing.T) {
		db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		if err != nil {
			t.Fatalf("Failed to create mock db: %v", err)
		}
		defer db.Close()
		mock.ExpectPing().WillReturnError(errors.New("connection failed"))

		rr := httptest.NewRecorder()
		NewHealthChecker(db, nil).Readiness(rr, httptest.NewRequest("GET", "/health/ready", nil))

		if rr.Code != http.StatusServiceUnavailable {
			t.Errorf("Expected %v, got %v", http.StatusServiceUnavailable, rr.Code)
		}
		var response HealthStatus
		if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		if response.Status != StatusUnhealthy {
			t.Errorf("Expected status %s, got %s", StatusUnhealthy, response.Status)
		}
		if response.Dependencies["database"].Message != "connection failed" {
			t.Errorf("Unexpected database message %q", response.Dependencies["database"].Message)
		}
	})
}

func TestHealthChecker_Check(t *testing.T) {
	ctx := context.Background()

	t.Run("healthy database", func(t *testing.T) {
		status := healthyDB(t).Check(ctx)
		if status.Status != StatusHealthy {
			t.Errorf("Expected %s, got %s", StatusHealthy, status.Status)
		}
		if status.Dependencies["database"].Status != StatusHealthy {
			t.Errorf("Expected healthy database, got %+v", status.Dependencies["database"])
		}
	})

	t.Run("healthy redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		defer client.Close()

		status := NewHealthChecker(nil, client).Check(ctx)
		if status.Status != StatusHealthy {
			t.Errorf("Expected %s, got %s", StatusHealthy, status.Status)
		}
	})

	t.Run("redis down only degrades", func(t *testing.T) {
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
		defer client.Close()
		mr.Close()

		status := NewHealthChecker(nil, client).Check(ctx)
		if status.Status != StatusDegraded {
			t.Errorf("Expected %s, got %s", StatusDegraded, status.Status)
		}
		if status.Dependencies["redis"].Status != StatusUnhealthy {
			t.Errorf("Expected unhealthy redis, got %+v", status.Dependencies["redis"])
		}
	})

	t.Run("critical check failure is unhealthy", func(t *testing.T) {
		checker := NewHealthChecker(nil, nil)
		checker.AddCheck("storage", true, func(context.Context) error { return errors.New("disk gone") })

		status := checker.Check(ctx)
		if status.Status != StatusUnhealthy {
			t.Errorf("Expected %s, got %s", StatusUnhealthy, status.Status)
		}
		if status.Dependencies["storage"].Message != "disk gone" {
			t.Errorf("Unexpected message %q", status.Dependencies["storage"].Message)
		}
	})

	t.Run("optional check failure degrades", func(t *testing.T) {
		checker := NewHealthChecker(nil, nil)
		checker.AddCheck("documents", false, func(context.Context) error { return errors.New("bucket missing") })
		checker.AddCheck("storage", true, func(context.Context) error { return nil })

		status := checker.Check(ctx)
		if status.Status != StatusDegraded {
			t.Errorf("Expected %s, got %s", StatusDegraded, status.Status)
		}
		if len(status.Dependencies) != 2 {
			t.Errorf("Expected 2 dependencies, got %d", len(status.Dependencies))
		}
	})
}

func TestRegisterHealthRoutes(t *testing.T) {
	mux := http.NewServeMux()
	RegisterHealthRoutes(mux, NewHealthChecker(nil, nil))

	for _, path := range []string{"/health", "/health/live", "/health/ready"} {
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, httptest.NewRequest("GET", path, nil))
		if rr.Code != http.StatusOK {
			t.Errorf("%s: expected %v, got %v", path, http.StatusOK, rr.Code)
		}
	}
}
