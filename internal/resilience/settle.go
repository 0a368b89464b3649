package resilience

import (
	"context"
	"fmt"
	"sync"
)

// Result is the outcome of one settled task.
type Result[T any] struct {
	Value T
	Err   error
}

// SettleAll fans out tasks concurrently and waits for every one of them,
// collecting both successes and failures. It never short-circuits: a failing
// or panicking task contributes its error while siblings run to completion.
func SettleAll[T any](ctx context.Context, tasks []func(context.Context) (T, error)) []Result[T] {
	results := make([]Result[T], len(tasks))

	var wg sync.WaitGroup
	for i, task := range tasks {
		wg.Add(1)
		go func(i int, task func(context.Context) (T, error)) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					results[i].Err = fmt.Errorf("task panicked: %v", r)
				}
			}()
			results[i].Value, results[i].Err = task(ctx)
		}(i, task)
	}
	wg.Wait()

	return results
}
