package handler_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/makeasinger/fxgateway/internal/client"
	"github.com/makeasinger/fxgateway/internal/config"
	"github.com/makeasinger/fxgateway/internal/effect"
	"github.com/makeasinger/fxgateway/internal/handler"
	"github.com/makeasinger/fxgateway/internal/service"
	"github.com/makeasinger/fxgateway/internal/store"
	"github.com/makeasinger/fxgateway/internal/worker"
)

// testApp holds all components needed for testing
type testApp struct {
	app     *fiber.App
	store   *store.MemoryStore
	service *service.TaskService
}

// setupApp wires the gateway the way main.go does, with the vendor pointed at vendorURL,
// an in-memory store, local dispatch and no object storage.
func setupApp(t *testing.T, vendorURL, apiKey string) *testApp {
	t.Helper()

	taskStore := store.NewMemoryStore()
	registry := effect.DefaultRegistry()

	gen := client.NewGenerationClient(&config.VendorConfig{
		APIKey:     apiKey,
		BaseURL:    vendorURL,
		AuthScheme: "Key",
		Timeout:    5,
		MaxMediaMB: 1,
	})
	effectWorker := worker.NewEffectWorker(taskStore, registry, gen, nil, nil)
	dispatcher := worker.NewLocalDispatcher(effectWorker, 10*time.Second)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		dispatcher.Shutdown(ctx)
	})

	taskService := service.NewTaskService(taskStore, dispatcher, registry, 2*time.Hour)
	effectHandler := handler.NewEffectHandler(taskService)

	app := fiber.New()
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	effectHandler.Register(app.Group("/api"))

	return &testApp{app: app, store: taskStore, service: taskService}
}

// doRequest is a helper to perform HTTP requests against the test app.
func doRequest(app *fiber.App, method, path string, body string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, path, bodyReader)
	if err != nil {
		return nil, err
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	return app.Test(req, -1)
}

// readBody reads and returns the response body as a string.
func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return string(b)
}

// parseJSON parses response body into a map.
func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body := readBody(t, resp)
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, body)
	}
	return result
}

// assertStatus checks the HTTP status code.
func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

// startTask posts body to the effect and returns the issued task id.
func startTask(t *testing.T, app *fiber.App, effectName, body string) string {
	t.Helper()
	resp, err := doRequest(app, http.MethodPost, "/api/"+effectName+"/start-task", body)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusAccepted)

	result := parseJSON(t, resp)
	taskID, _ := result["taskId"].(string)
	if taskID == "" {
		t.Fatalf("expected 'taskId' in response, got %v", result)
	}
	return taskID
}

// waitForTerminal polls the status endpoint until the task leaves pending.
func waitForTerminal(t *testing.T, app *fiber.App, effectName, taskID string) map[string]interface{} {
	t.Helper()
	path := fmt.Sprintf("/api/%s/status/%s", effectName, taskID)
	deadline := time.Now().Add(5 * time.Second)

	for time.Now().Before(deadline) {
		resp, err := doRequest(app, http.MethodGet, path, "")
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		assertStatus(t, resp, http.StatusOK)
		result := parseJSON(t, resp)
		if result["status"] != "pending" {
			return result
		}
		time.Sleep(20 * time.Millisecond)
	}

	t.Fatalf("task %s still pending after 5s", taskID)
	return nil
}
