package task

import (
	"context"
)

// Handler 消费队列中投递的任务 ID，由处理器负责取出任务并执行工具调用。
type Handler func(ctx context.Context, taskID string) error

// Producer 负责向队列投递待执行的任务 ID。
type Producer interface {
	Publish(ctx context.Context, taskID string) error
	Close() error
}

// Consumer 以指定的并发度从队列中消费任务 ID。
type Consumer interface {
	Consume(ctx context.Context, workerCount int, handler Handler) error
	Close() error
}

// Queue 同时具备生产者与消费者能力，memory、redis、rabbitmq 三种驱动均实现它。
type Queue interface {
	Producer
	Consumer
}
