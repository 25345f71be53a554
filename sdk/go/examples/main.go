package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"time"

	"ChainScope-MCP/sdk/go/chainscope"
)

func main() {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/tools/invoke", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(chainscope.ToolResult{
			Tool:    "chain_info",
			Chain:   "ethereum",
			Output:  "链 ID: 1\n最新区块: 19000000",
			ChainID: "1",
		})
	})
	mux.HandleFunc("/api/v1/tasks", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			w.WriteHeader(http.StatusAccepted)
			_ = json.NewEncoder(w).Encode(chainscope.Task{
				ID:        "task-demo",
				Tool:      "analyze_address",
				Status:    "pending",
				CreatedAt: time.Now().Unix(),
			})
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/api/v1/tasks/task-demo", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(chainscope.Task{
			ID:     "task-demo",
			Tool:   "analyze_address",
			Status: "succeeded",
			Result: &chainscope.TaskResult{
				Output:  "账户类型: 合约账户\n分类: ERC-20 (高置信度)",
				ChainID: "1",
			},
		})
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	client, err := chainscope.NewClient(srv.URL, srv.Client())
	if err != nil {
		panic(err)
	}
	client.SetAPIKey("demo", "secret")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	info, err := client.Invoke(ctx, chainscope.ToolRequest{Tool: "chain_info", Chain: "ethereum"})
	if err != nil {
		panic(err)
	}
	fmt.Printf("chain info:\n%s\n", info.Output)

	created, err := client.SubmitTask(ctx, chainscope.ToolRequest{
		Tool:    "analyze_address",
		Chain:   "ethereum",
		Address: "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
	})
	if err != nil {
		panic(err)
	}
	fmt.Printf("submitted task %s (status=%s)\n", created.ID, created.Status)

	detail, err := client.WaitForTask(ctx, created.ID, 100*time.Millisecond)
	if err != nil {
		panic(err)
	}
	fmt.Printf("task %s finished with:\n%s\n", detail.ID, detail.Result.Output)
}
