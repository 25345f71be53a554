package chainscope

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestInvokeSendsAPIKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/tools/invoke" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Fatalf("unexpected method: %s", r.Method)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer ops:s3cret" {
			t.Fatalf("unexpected authorization header: %q", got)
		}
		var req ToolRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if req.Tool != "chain_info" {
			t.Fatalf("unexpected tool: %s", req.Tool)
		}
		_ = json.NewEncoder(w).Encode(ToolResult{Tool: "chain_info", Output: "chain_id=1"})
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	client.SetAPIKey("ops", "s3cret")

	result, err := client.Invoke(context.Background(), ToolRequest{Tool: "chain_info"})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if result.Output != "chain_id=1" {
		t.Fatalf("unexpected output: %s", result.Output)
	}
}

func TestSubmitAndGetTask(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/tasks":
			w.WriteHeader(http.StatusAccepted)
			_ = json.NewEncoder(w).Encode(Task{ID: "task-1", Status: "pending"})
		case "/api/v1/tasks/task-1":
			_ = json.NewEncoder(w).Encode(Task{
				ID:     "task-1",
				Status: "succeeded",
				Result: &TaskResult{Output: "账户类型: 外部账户"},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	created, err := client.SubmitTask(context.Background(), ToolRequest{
		Tool:    "analyze_address",
		Address: "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
	})
	if err != nil {
		t.Fatalf("submit task: %v", err)
	}
	if created.ID != "task-1" || created.Status != "pending" {
		t.Fatalf("unexpected created task: %+v", created)
	}

	detail, err := client.GetTask(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if detail.Status != "succeeded" || detail.Result == nil {
		t.Fatalf("unexpected task detail: %+v", detail)
	}
}

func TestListTasksBuildsQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/tasks" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		query := r.URL.Query()
		if query.Get("limit") != "5" {
			t.Fatalf("unexpected limit: %s", query.Get("limit"))
		}
		if query.Get("status") != "pending,failed" {
			t.Fatalf("unexpected status: %s", query.Get("status"))
		}
		if query.Get("q") != "analyze" {
			t.Fatalf("unexpected q: %s", query.Get("q"))
		}
		_ = json.NewEncoder(w).Encode([]Task{{ID: "task-9"}})
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	tasks, err := client.ListTasks(context.Background(), ListTasksOptions{
		Limit:    5,
		Statuses: []string{"pending", "failed"},
		Query:    "analyze",
	})
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != "task-9" {
		t.Fatalf("unexpected tasks: %+v", tasks)
	}
}

func TestGetTaskError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(APIError{Code: "TASK_NOT_FOUND", Message: "missing"})
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	_, err = client.GetTask(context.Background(), "task-404")
	if err == nil {
		t.Fatal("expected error")
	}
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("expected APIError, got %T", err)
	}
	if apiErr.Code != "TASK_NOT_FOUND" || apiErr.StatusCode != http.StatusNotFound {
		t.Fatalf("unexpected api error: %+v", apiErr)
	}
}
