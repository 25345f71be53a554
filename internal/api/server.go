package api

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"ChainScope-MCP/internal/auth"
	xerrors "ChainScope-MCP/internal/errors"
	"ChainScope-MCP/internal/observability/metrics"
	"ChainScope-MCP/internal/task"
	"ChainScope-MCP/internal/tools"
)

// Server 负责暴露 REST 接口，供外部调用链上分析工具。
type Server struct {
	addr       string
	tasks      *task.Service
	dispatcher *tools.Dispatcher
	authSvc    *auth.Service
}

// ServerOption 配置 Server 的可选能力。
type ServerOption func(*Server)

// WithDispatcher 注入工具分发器，启用同步调用与工具清单接口。
func WithDispatcher(dispatcher *tools.Dispatcher) ServerOption {
	return func(s *Server) {
		s.dispatcher = dispatcher
	}
}

// WithAuthService 注入认证服务，启用 API Key 鉴权。
func WithAuthService(svc *auth.Service) ServerOption {
	return func(s *Server) {
		s.authSvc = svc
	}
}

// NewServer 构造 API 服务实例。
func NewServer(addr string, tasks *task.Service, opts ...ServerOption) *Server {
	s := &Server{addr: addr, tasks: tasks}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/api/v1/tools", s.protect("tools", map[string][]string{
		http.MethodGet: {"tools:read"},
	}, http.HandlerFunc(s.handleTools)))
	mux.Handle("/api/v1/tools/invoke", s.protect("tools_invoke", map[string][]string{
		http.MethodPost: {"tools:invoke"},
	}, http.HandlerFunc(s.handleInvoke)))
	mux.Handle("/api/v1/tasks", s.protect("tasks", map[string][]string{
		http.MethodGet:  {"tasks:read"},
		http.MethodPost: {"tasks:write"},
	}, http.HandlerFunc(s.handleTasks)))
	mux.Handle("/api/v1/tasks/stats", s.protect("task_stats", map[string][]string{
		http.MethodGet: {"tasks:read"},
	}, http.HandlerFunc(s.handleTaskStats)))
	mux.Handle("/api/v1/tasks/", s.protect("task_detail", map[string][]string{
		http.MethodGet: {"tasks:read"},
	}, http.HandlerFunc(s.handleTaskDetail)))
	mux.Handle("/api/v1/history", s.protect("history", map[string][]string{
		http.MethodGet: {"tools:read"},
	}, http.HandlerFunc(s.handleHistory)))

	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !stdErrors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// protect 套上鉴权与指标中间件。未配置认证服务时仅记录指标。
func (s *Server) protect(name string, perms map[string][]string, handler http.Handler) http.Handler {
	wrapped := observe(name, handler)
	if s.authSvc == nil {
		return wrapped
	}
	middleware := s.authSvc.Middleware(auth.MiddlewareConfig{
		RequiredPermissions: perms,
		AuditEvent:          name,
	})
	return middleware(wrapped)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleTools 返回已注册的工具清单。
func (s *Server) handleTools(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	if s.dispatcher == nil {
		http.Error(w, "工具分发器未初始化", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, s.dispatcher.Tools())
}

// handleInvoke 同步执行一次工具调用。
func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "仅支持 POST", http.StatusMethodNotAllowed)
		return
	}
	if s.dispatcher == nil {
		http.Error(w, "工具分发器未初始化", http.StatusServiceUnavailable)
		return
	}

	var req tools.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "请求体解析失败", http.StatusBadRequest)
		return
	}

	result, err := s.dispatcher.Execute(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleSubmitTask(w, r)
	case http.MethodGet:
		s.handleListTasks(w, r)
	default:
		http.Error(w, "仅支持 GET/POST", http.StatusMethodNotAllowed)
	}
}

// handleSubmitTask 创建异步任务并入队。
func (s *Server) handleSubmitTask(w http.ResponseWriter, r *http.Request) {
	if s.tasks == nil {
		http.Error(w, "任务服务未初始化", http.StatusServiceUnavailable)
		return
	}

	var req tools.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "请求体解析失败", http.StatusBadRequest)
		return
	}

	created, err := s.tasks.Submit(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, created)
}

// handleListTasks 按查询参数过滤任务列表。
func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	if s.tasks == nil {
		http.Error(w, "任务服务未初始化", http.StatusServiceUnavailable)
		return
	}

	opts, err := listOptionsFromQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	results, err := s.tasks.List(r.Context(), opts...)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

// handleTaskStats 返回任务状态统计。
func (s *Server) handleTaskStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	if s.tasks == nil {
		http.Error(w, "任务服务未初始化", http.StatusServiceUnavailable)
		return
	}
	opts, err := listOptionsFromQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	stats, err := s.tasks.Stats(r.Context(), opts...)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleTaskDetail 按 ID 查询任务。
func (s *Server) handleTaskDetail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	if s.tasks == nil {
		http.Error(w, "任务服务未初始化", http.StatusServiceUnavailable)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/v1/tasks/")
	id = strings.TrimSpace(id)
	if id == "" || strings.Contains(id, "/") {
		http.Error(w, "任务 ID 不合法", http.StatusBadRequest)
		return
	}
	result, err := s.tasks.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleHistory 返回最近的工具执行记录。
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	if s.dispatcher == nil {
		http.Error(w, "工具分发器未初始化", http.StatusServiceUnavailable)
		return
	}
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	results, err := s.dispatcher.ListHistory(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

// listOptionsFromQuery 将查询参数转换为任务过滤条件。
func listOptionsFromQuery(r *http.Request) ([]task.ListOption, error) {
	query := r.URL.Query()
	opts := make([]task.ListOption, 0, 4)

	if raw := query.Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return nil, stdErrors.New("limit 必须是正整数")
		}
		opts = append(opts, task.WithLimit(parsed))
	}
	if raw := query.Get("offset"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			return nil, stdErrors.New("offset 必须是非负整数")
		}
		opts = append(opts, task.WithOffset(parsed))
	}
	if raw := query.Get("status"); raw != "" {
		parts := strings.Split(raw, ",")
		statuses := make([]task.Status, 0, len(parts))
		for _, part := range parts {
			status := task.Status(strings.TrimSpace(part))
			if !task.IsValidStatus(status) {
				return nil, stdErrors.New("status 取值不合法: " + part)
			}
			statuses = append(statuses, status)
		}
		opts = append(opts, task.WithStatuses(statuses...))
	}
	if raw := query.Get("has_result"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, stdErrors.New("has_result 必须是布尔值")
		}
		opts = append(opts, task.WithResultPresence(parsed))
	}
	if raw := query.Get("q"); raw != "" {
		opts = append(opts, task.WithQuery(raw))
	}
	if raw := query.Get("order"); raw == "asc" {
		opts = append(opts, task.WithSortOrder(task.SortByUpdatedAsc))
	}
	return opts, nil
}

// writeJSON 输出 JSON 响应。
func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// errorBody 是统一的错误响应结构。
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeError 按错误码映射 HTTP 状态。
func writeError(w http.ResponseWriter, err error) {
	code := xerrors.CodeOf(err)
	status := http.StatusInternalServerError
	switch code {
	case xerrors.CodeInvalidArgument, xerrors.CodeInvalidAddress, task.CodeTaskValidation:
		status = http.StatusBadRequest
	case xerrors.CodeNotFound, task.CodeTaskNotFound, tools.CodeToolUnknown:
		status = http.StatusNotFound
	case xerrors.CodeConflict, task.CodeTaskConflict:
		status = http.StatusConflict
	case xerrors.CodeChainUnavailable, xerrors.CodeRegistryUnavailable:
		status = http.StatusBadGateway
	case xerrors.CodeTimeout:
		status = http.StatusGatewayTimeout
	}
	writeJSON(w, status, errorBody{Code: string(code), Message: err.Error()})
}

// observe 记录请求指标。
func observe(name string, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		handler.ServeHTTP(recorder, r)
		metrics.ObserveHTTPRequest(name, r.Method, recorder.status, time.Since(start))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			http.Error(w, "服务已关闭", http.StatusServiceUnavailable)
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}
