package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"ChainScope-MCP/internal/task"
)

func TestHandleTaskDetailSuccess(t *testing.T) {
	store := task.NewMemoryStore()
	svc := task.NewService(store, nil, 3)
	server := NewServer(":0", svc)

	sample := &task.Task{
		ID:         "task-success",
		Tool:       "get_balance",
		Address:    "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
		Status:     task.StatusSucceeded,
		Attempts:   1,
		MaxRetries: 3,
		CreatedAt:  1700000000,
		UpdatedAt:  1700000001,
		Result: &task.ExecutionResult{
			Output: "余额: 1.5",
		},
	}
	if err := store.Create(context.Background(), sample); err != nil {
		t.Fatalf("create sample task: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks/task-success", nil)
	rec := httptest.NewRecorder()

	server.handleTaskDetail(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status code: got %d want %d", rec.Code, http.StatusOK)
	}

	var got task.Task
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.ID != sample.ID {
		t.Fatalf("unexpected task id: got %q want %q", got.ID, sample.ID)
	}
	if got.Result == nil || got.Result.Output != "余额: 1.5" {
		t.Fatalf("unexpected task result: %+v", got.Result)
	}
}

func TestHandleTaskDetailErrors(t *testing.T) {
	server := NewServer(":0", task.NewService(task.NewMemoryStore(), nil, 3))

	t.Run("invalid method", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/tasks/task-1", nil)
		rec := httptest.NewRecorder()

		server.handleTaskDetail(rec, req)

		if rec.Code != http.StatusMethodNotAllowed {
			t.Fatalf("expected status %d, got %d", http.StatusMethodNotAllowed, rec.Code)
		}
	})

	t.Run("missing id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks/", nil)
		rec := httptest.NewRecorder()

		server.handleTaskDetail(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
		}
	})

	t.Run("not found", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks/missing", nil)
		rec := httptest.NewRecorder()

		server.handleTaskDetail(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected status %d, got %d", http.StatusNotFound, rec.Code)
		}
	})
}

func TestHandleListTasksFilters(t *testing.T) {
	store := task.NewMemoryStore()
	svc := task.NewService(store, nil, 3)
	server := NewServer(":0", svc)
	ctx := context.Background()

	seed := []*task.Task{
		{ID: "p1", Tool: "get_balance", Status: task.StatusPending, MaxRetries: 3},
		{ID: "f1", Tool: "analyze_address", Status: task.StatusFailed, MaxRetries: 3},
	}
	for _, item := range seed {
		if err := store.Create(ctx, item); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks?status=failed", nil)
	rec := httptest.NewRecorder()
	server.handleTasks(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	var got []*task.Task
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 || got[0].ID != "f1" {
		t.Fatalf("unexpected filtered list: %+v", got)
	}

	bad := httptest.NewRequest(http.MethodGet, "/api/v1/tasks?status=bogus", nil)
	badRec := httptest.NewRecorder()
	server.handleTasks(badRec, bad)
	if badRec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad status, got %d", badRec.Code)
	}
}

func TestHandleSubmitTaskValidation(t *testing.T) {
	store := task.NewMemoryStore()
	queue := task.NewMemoryQueue(4)
	svc := task.NewService(store, queue, 3)
	server := NewServer(":0", svc)

	body := strings.NewReader(`{"tool":""}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tasks", body)
	rec := httptest.NewRecorder()
	server.handleTasks(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing tool, got %d", rec.Code)
	}

	ok := strings.NewReader(`{"tool":"convert_units","args":{"value":"1","from":"ether","to":"wei"}}`)
	okReq := httptest.NewRequest(http.MethodPost, "/api/v1/tasks", ok)
	okRec := httptest.NewRecorder()
	server.handleTasks(okRec, okReq)

	if okRec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", okRec.Code)
	}
	var created task.Task
	if err := json.Unmarshal(okRec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode created task: %v", err)
	}
	if created.ID == "" || created.Status != task.StatusPending {
		t.Fatalf("unexpected created task: %+v", created)
	}
}

func TestHandleHealth(t *testing.T) {
	server := NewServer(":0", nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	server.handleHealth(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
}
