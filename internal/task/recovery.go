package task

import "context"

// RecoveryHandler 定义了工具调用彻底失败后的降级策略。
type RecoveryHandler interface {
	// Recover 根据失败原因产出一个降级结果。
	// 返回非 nil 的 ExecutionResult 时任务以降级结果收尾；返回 nil 则走终态失败流程。
	Recover(ctx context.Context, task *Task, cause error) (*ExecutionResult, error)
}
