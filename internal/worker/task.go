package worker

import "context"

// FuncTask wraps a function as a task.
type FuncTask struct {
	id string
	fn func(ctx context.Context) error
}

// NewFuncTask creates a task from a function.
func NewFuncTask(id string, fn func(ctx context.Context) error) *FuncTask {
	return &FuncTask{id: id, fn: fn}
}

func (f *FuncTask) ID() string { return f.id }

func (f *FuncTask) Execute(ctx context.Context) error {
	return f.fn(ctx)
}
