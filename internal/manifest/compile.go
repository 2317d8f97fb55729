package manifest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Swind/go-task-graph/core"
)

// Output is the value a compiled task resolves with.
type Output struct {
	Task   string
	Result string
	// Inputs lists the predecessors that completed, in declaration order.
	Inputs []string
}

// Compiled is a manifest turned into a graph builder.
type Compiled struct {
	Builder *core.GraphBuilder
	// IDs maps task names to their ids in Builder.
	IDs map[string]core.TaskID
	// Names is the inverse of IDs.
	Names map[core.TaskID]string
}

// Compile turns m into a GraphBuilder. Cycles are left for Build to report.
func Compile(m *Manifest) (*Compiled, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	c := &Compiled{
		Builder: core.NewGraphBuilder(),
		IDs:     make(map[string]core.TaskID, len(m.Tasks)),
		Names:   make(map[core.TaskID]string, len(m.Tasks)),
	}
	for _, t := range m.Tasks {
		priority, _ := core.ParseTaskPriority(t.Priority)
		id := c.Builder.AddTask(t.payload(c.Names), core.WithPriority(priority), core.WithName(t.Name))
		c.IDs[t.Name] = id
		c.Names[id] = t.Name
	}

	for _, t := range m.Tasks {
		for _, dep := range t.DependsOn {
			pred, ok := c.IDs[dep]
			if !ok {
				return nil, fmt.Errorf("%w: task %q depends on undeclared task %q", core.ErrUnknownTaskID, t.Name, dep)
			}
			if err := c.Builder.AddDependency(pred, c.IDs[t.Name]); err != nil {
				return nil, fmt.Errorf("task %q: %w", t.Name, err)
			}
		}
	}
	return c, nil
}

// payload builds the synthetic work for t. names is read only while tasks
// run, after Compile has filled it.
func (t Task) payload(names map[core.TaskID]string) core.Payload {
	duration, _ := time.ParseDuration(t.Duration)
	return func(ctx context.Context) (any, error) {
		var inputs []string
		for _, h := range core.Predecessors(ctx) {
			if h.State() == core.StateCompleted {
				inputs = append(inputs, names[h.ID()])
			}
		}

		// The scheduler never cancels a running payload, so the sleep is not
		// bound to ctx.
		time.Sleep(duration)
		if t.Panic {
			panic(fmt.Sprintf("task %s panicked on request", t.Name))
		}
		if t.Fail != "" {
			return nil, errors.New(t.Fail)
		}
		return Output{Task: t.Name, Result: t.Result, Inputs: inputs}, nil
	}
}
