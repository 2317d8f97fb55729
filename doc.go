// Package taskgraph runs directed acyclic graphs of tasks on a fixed pool of
// work-stealing workers.
//
// Callers describe work as a graph: each task carries a payload, and edges
// say which tasks must resolve before another may start. The scheduler starts
// a task as soon as its last predecessor resolves, keeps freshly released
// work on the worker that released it, and lets idle workers steal from busy
// ones.
//
// # Quick Start
//
// Initialize the global scheduler at application startup:
//
//	taskgraph.InitGlobalScheduler(4) // 4 workers
//	defer taskgraph.ShutdownGlobalScheduler()
//
// Build a graph and submit it:
//
//	b := taskgraph.NewGraphBuilder()
//	fetch := b.AddTask(fetchPayload)
//	parse := b.AddTask(parsePayload)
//	b.AddDependency(fetch, parse)
//
//	g, err := b.Build()
//	if err != nil {
//		// cycle or unknown id
//	}
//	handles, err := taskgraph.SubmitGraph(g)
//	result, err := handles[parse].Result()
//
// # Key Concepts
//
// Payload: the function a task runs. It returns a value and an error; the
// pair becomes the task's outcome.
//
// Handle: a one-shot reference to that outcome. It moves from Pending to
// Completed or Failed exactly once and can be polled or waited on from any
// goroutine. Dropping a Handle does not cancel the task.
//
// Dependencies: a task whose predecessor Failed still runs. The payload sees
// its predecessors' handles through Predecessors(ctx) and decides what a
// failure means.
//
// Priority: a hint that breaks ties among tasks that are ready at the same
// time. It never overrides a dependency.
//
// # Thread Safety
//
// Schedulers and Handles are safe for concurrent use. A GraphBuilder is not;
// build each graph on one goroutine, then submit it from anywhere.
//
// # Example
//
//	import (
//		"context"
//		taskgraph "github.com/Swind/go-task-graph"
//	)
//
//	func main() {
//		s := taskgraph.NewScheduler("main", 4)
//		defer s.Shutdown(context.Background(), true)
//
//		h := taskgraph.Go(s, func(ctx context.Context) (string, error) {
//			return "hello", nil
//		})
//		msg, _ := h.Wait()
//		println(msg)
//	}
package taskgraph
