package task

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	xerrors "ChainScope-MCP/internal/errors"
	"ChainScope-MCP/internal/tools"
)

type fakeExecutor struct {
	processed atomic.Int32
	latency   time.Duration
	fail      error
}

func (f *fakeExecutor) Execute(ctx context.Context, req tools.Request) (*tools.Result, error) {
	if f.latency > 0 {
		select {
		case <-time.After(f.latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.fail != nil {
		return nil, f.fail
	}
	f.processed.Add(1)
	return &tools.Result{Tool: req.Tool, Output: "ok"}, nil
}

func TestProcessorHandlesConcurrentTasks(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store := NewMemoryStore()
	queue := NewMemoryQueue(1024)
	executor := &fakeExecutor{latency: 10 * time.Millisecond}

	service := NewService(store, queue, 3)
	processor := NewProcessor(executor, store, queue, queue, WithWorkerCount(8))

	go func() {
		if err := processor.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("processor exited: %v", err)
		}
	}()

	total := 200
	for i := 0; i < total; i++ {
		req := tools.Request{
			Tool: "convert_units",
			Args: map[string]any{"value": fmt.Sprintf("%d", i), "from": "ether", "to": "wei"},
		}
		if _, err := service.Submit(ctx, req); err != nil {
			t.Fatalf("提交任务失败: %v", err)
		}
	}

	deadline := time.After(5 * time.Second)
	for {
		if int(executor.processed.Load()) >= total {
			cancel()
			break
		}
		select {
		case <-deadline:
			t.Fatalf("任务未能及时处理，已完成 %d", executor.processed.Load())
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func TestProcessorMarksNonRetryableFailureTerminal(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := NewMemoryStore()
	queue := NewMemoryQueue(16)
	executor := &fakeExecutor{fail: xerrors.New(xerrors.CodeInvalidAddress, "地址校验和不正确")}

	service := NewService(store, queue, 3)
	processor := NewProcessor(executor, store, queue, queue)

	go func() { _ = processor.Start(ctx) }()

	submitted, err := service.Submit(ctx, tools.Request{Tool: "analyze_address", Address: "0x1234"})
	if err != nil {
		t.Fatalf("提交任务失败: %v", err)
	}

	waitCtx, waitCancel := context.WithTimeout(ctx, 5*time.Second)
	defer waitCancel()
	done, err := service.WaitUntilCompleted(waitCtx, submitted.ID, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("等待任务完成失败: %v", err)
	}
	if done.Status != StatusFailed {
		t.Fatalf("期望任务失败, 实际状态 %s", done.Status)
	}
	if done.ErrorCode != string(xerrors.CodeInvalidAddress) {
		t.Fatalf("错误码不符: %s", done.ErrorCode)
	}
	if done.Attempts != 1 {
		t.Fatalf("不可重试错误不应重试, attempts=%d", done.Attempts)
	}
}
