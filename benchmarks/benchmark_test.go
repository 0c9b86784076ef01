package benchmarks

import (
	"context"
	"fmt"
	"runtime"
	"testing"
	"time"

	"github.com/utkarsh5026/fusepipe/pipeline"
)

func BenchmarkPool_WorkerScaling(b *testing.B) {
	const taskCount = 5000
	tasks := makeTasks(taskCount)

	for _, workers := range []int{1, 2, 4, 8, 16} {
		b.Run(fmt.Sprintf("Workers_%d", workers), func(b *testing.B) {
			pool := pipeline.NewWorkerPool[int, int](
				pipeline.WithWorkerCount(workers),
				pipeline.WithPollInterval(time.Millisecond),
			)
			work := cpuBoundWork(2000)

			b.ReportAllocs()
			for b.Loop() {
				if _, err := pool.Process(context.Background(), tasks, work); err != nil {
					b.Fatal(err)
				}
			}
			b.ReportMetric(float64(taskCount*b.N)/b.Elapsed().Seconds(), "tasks/sec")
		})
	}
}

func BenchmarkPool_Configurations(b *testing.B) {
	workers := runtime.GOMAXPROCS(0)
	tasks := makeTasks(2000)

	workloads := []struct {
		name string
		fn   pipeline.ProcessFunc[int, int]
	}{
		{"CPU", cpuBoundWork(5000)},
		{"IO", ioBoundWork(100 * time.Microsecond)},
	}

	for _, w := range workloads {
		for _, cfg := range poolConfigs(workers) {
			b.Run(w.name+"/"+cfg.name, func(b *testing.B) {
				opts := append([]pipeline.WorkerPoolOption{pipeline.WithPollInterval(time.Millisecond)}, cfg.opts...)
				pool := pipeline.NewWorkerPool[int, int](opts...)

				for b.Loop() {
					if _, err := pool.Process(context.Background(), tasks, w.fn); err != nil {
						b.Fatal(err)
					}
				}
			})
		}
	}
}

func BenchmarkPool_SkewedCompletion(b *testing.B) {
	tasks := makeTasks(500)
	pool := pipeline.NewWorkerPool[int, int](
		pipeline.WithWorkerCount(8),
		pipeline.WithPollInterval(time.Millisecond),
	)

	for b.Loop() {
		results, err := pool.Process(context.Background(), tasks, skewedWork(200*time.Microsecond))
		if err != nil {
			b.Fatal(err)
		}
		if err := verifyOrder(results, func(i int) int { return i }); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkReassemble(b *testing.B) {
	for _, n := range []int{100, 10_000} {
		b.Run(fmt.Sprintf("Records_%d", n), func(b *testing.B) {
			records := make([]pipeline.ResultRecord[int], n)
			for i := range records {
				// Reverse completion order, the worst case for the sort.
				seq := int64(n - 1 - i)
				records[i] = pipeline.ResultRecord[int]{Seq: seq, Value: int(seq)}
			}

			b.ReportAllocs()
			for b.Loop() {
				if _, err := pipeline.Reassemble(records, n); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkFusion_TickThroughput(b *testing.B) {
	for _, sources := range []int{2, 4, 8} {
		b.Run(fmt.Sprintf("Sources_%d", sources), func(b *testing.B) {
			for b.Loop() {
				named := make([]pipeline.NamedSource[int], sources)
				for i := range named {
					n := 0
					named[i] = pipeline.NamedSource[int]{Source: pipeline.SourceFunc[int](func(ctx context.Context) (int, error) {
						n++
						return n, ctx.Err()
					})}
				}

				emitted := 0
				sink := pipeline.SinkFunc[int](func(context.Context, int) (pipeline.ControlSignal, error) {
					emitted++
					if emitted == 1000 {
						return pipeline.Quit, nil
					}
					return pipeline.Continue, nil
				})
				sum := func(primary int, others []pipeline.Latest[int]) int {
					for _, o := range others {
						primary += o.Value
					}
					return primary
				}

				f, err := pipeline.NewFusion(named, sum, sink, pipeline.WithDisplayRate(0))
				if err != nil {
					b.Fatal(err)
				}
				if err := f.Run(context.Background()); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkSlot_ProducerConsumer(b *testing.B) {
	slot := pipeline.NewSlot[int]()
	stop := make(chan struct{})
	go func() {
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
				slot.Put(i)
			}
		}
	}()
	defer close(stop)

	for b.Loop() {
		slot.TryGet()
	}
}
