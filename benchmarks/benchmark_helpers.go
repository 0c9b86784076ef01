// Package benchmarks compares worker pool configurations and measures the
// fusion loop under different source rates.
package benchmarks

import (
	"context"
	"fmt"
	"time"

	"github.com/utkarsh5026/fusepipe/pipeline"
)

// poolConfig is one worker pool setup under test.
type poolConfig struct {
	name string
	opts []pipeline.WorkerPoolOption
}

// poolConfigs returns the pool setups compared at a given worker count.
func poolConfigs(workerCount int) []poolConfig {
	return []poolConfig{
		{
			name: "Default",
			opts: []pipeline.WorkerPoolOption{
				pipeline.WithWorkerCount(workerCount),
			},
		},
		{
			name: "ShallowQueue",
			opts: []pipeline.WorkerPoolOption{
				pipeline.WithWorkerCount(workerCount),
				pipeline.WithQueueMultiplier(1),
			},
		},
		{
			name: "DeepQueue",
			opts: []pipeline.WorkerPoolOption{
				pipeline.WithWorkerCount(workerCount),
				pipeline.WithQueueMultiplier(16),
			},
		},
		{
			name: "Pinned",
			opts: []pipeline.WorkerPoolOption{
				pipeline.WithWorkerCount(workerCount),
				pipeline.WithWorkerAffinity(),
			},
		},
	}
}

// cpuBoundWork simulates a CPU-intensive transform.
func cpuBoundWork(iterations int) pipeline.ProcessFunc[int, int] {
	return func(ctx context.Context, task int) (int, error) {
		result := 0
		for i := range iterations {
			result += i * task
		}
		return result, nil
	}
}

// ioBoundWork simulates a transform waiting on a device or model server.
func ioBoundWork(delay time.Duration) pipeline.ProcessFunc[int, int] {
	return func(ctx context.Context, task int) (int, error) {
		select {
		case <-time.After(delay):
			return task * 2, nil
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

// skewedWork makes every tenth task slow, so completion order diverges
// from submission order and reassembly has real work to do.
func skewedWork(slow time.Duration) pipeline.ProcessFunc[int, int] {
	return func(ctx context.Context, task int) (int, error) {
		if task%10 == 0 {
			time.Sleep(slow)
		}
		return task, nil
	}
}

func makeTasks(n int) []int {
	tasks := make([]int, n)
	for i := range tasks {
		tasks[i] = i
	}
	return tasks
}

// verifyOrder fails when results are not in submission order.
func verifyOrder(results []int, transform func(int) int) error {
	for i, r := range results {
		if want := transform(i); r != want {
			return fmt.Errorf("result %d: expected %d, got %d", i, want, r)
		}
	}
	return nil
}
