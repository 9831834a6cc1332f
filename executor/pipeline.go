package executor

import (
	"context"
	"fmt"
)

// StageFunc processes one item for a pipeline stage.
type StageFunc func(ctx context.Context, item any) (any, error)

// StageConfig describes one node of a Pipeline DAG: a named unit of work,
// the stages it depends on, which pool kind runs it, and its own
// worker/batch/retry tuning.
type StageConfig struct {
	Name       string
	Fn         StageFunc
	DependsOn  []string
	PoolKind   string // "process" | "thread" | "async"
	MaxWorkers int
	BatchSize  int
	MaxRetries int
}

// Pipeline is a DAG of named stages run in topological order. Stages with
// no dependency edge between them are independent and, in this
// implementation, still execute one at a time in topological order (no
// cross-stage fan-out is attempted: each stage already parallelizes
// internally over its own pool). Cycles are rejected at AddStage time so
// a malformed pipeline fails fast instead of deadlocking at Run time.
type Pipeline struct {
	stages map[string]StageConfig
	order  []string // insertion order, for stable iteration before topo-sort
}

// NewPipeline constructs an empty Pipeline.
func NewPipeline() *Pipeline {
	return &Pipeline{stages: map[string]StageConfig{}}
}

// AddStage registers a stage. It returns an error if the name is already
// used, if a dependency is unknown, or if adding this edge would
// introduce a cycle.
func (p *Pipeline) AddStage(cfg StageConfig) error {
	if cfg.Name == "" {
		return fmt.Errorf("executor: stage name must not be empty")
	}
	if _, exists := p.stages[cfg.Name]; exists {
		return fmt.Errorf("executor: stage %q already registered", cfg.Name)
	}
	for _, dep := range cfg.DependsOn {
		if _, ok := p.stages[dep]; !ok {
			return fmt.Errorf("executor: stage %q depends on unknown stage %q", cfg.Name, dep)
		}
	}
	p.stages[cfg.Name] = cfg
	p.order = append(p.order, cfg.Name)
	if _, err := p.topoSort(); err != nil {
		delete(p.stages, cfg.Name)
		p.order = p.order[:len(p.order)-1]
		return err
	}
	return nil
}

// topoSort returns stage names in dependency order (a stage always
// follows everything it depends on), detecting cycles via the classic
// three-color DFS.
func (p *Pipeline) topoSort() ([]string, error) {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := map[string]int{}
	var sorted []string
	var visit func(name string) error
	visit = func(name string) error {
		switch color[name] {
		case black:
			return nil
		case gray:
			return fmt.Errorf("executor: cycle detected at stage %q", name)
		}
		color[name] = gray
		for _, dep := range p.stages[name].DependsOn {
			if err := visit(dep); err != nil {
				return err
			}
		}
		color[name] = black
		sorted = append(sorted, name)
		return nil
	}
	for _, name := range p.order {
		if err := visit(name); err != nil {
			return nil, err
		}
	}
	return sorted, nil
}

// StageResult captures one stage's outcome for a RunReport.
type StageResult struct {
	Name      string
	Succeeded int
	Failed    int
	Errors    []error
}

// RunReport is the result of a full Pipeline.Run call.
type RunReport struct {
	Stages    []StageResult
	Cancelled bool
}

// Run executes every stage in topological order over items, feeding each
// stage's per-item output forward as the next stage's input. If a stage
// ends with zero successful items the pipeline short-circuits the
// remaining stages rather than running them on an empty set; ctx
// cancellation also short-circuits immediately.
func (p *Pipeline) Run(ctx context.Context, items []any, onStage func(StageResult)) (*RunReport, error) {
	order, err := p.topoSort()
	if err != nil {
		return nil, err
	}

	report := &RunReport{}
	current := items

	for _, name := range order {
		select {
		case <-ctx.Done():
			report.Cancelled = true
			return report, ctx.Err()
		default:
		}

		cfg := p.stages[name]
		pool := poolFor(cfg)
		outs, errs := Map(ctx, pool, current, func(c context.Context, item any) (any, error) {
			return cfg.Fn(c, item)
		}, MapOptions{MaxRetries: cfg.MaxRetries})

		sr := StageResult{Name: name}
		var next []any
		for i, e := range errs {
			if e != nil {
				sr.Failed++
				sr.Errors = append(sr.Errors, e)
				continue
			}
			sr.Succeeded++
			next = append(next, outs[i])
		}
		report.Stages = append(report.Stages, sr)
		if onStage != nil {
			onStage(sr)
		}
		if sr.Succeeded == 0 {
			break
		}
		current = next
	}

	return report, nil
}

func poolFor(cfg StageConfig) Pool {
	switch cfg.PoolKind {
	case "thread":
		return NewThreadPool(cfg.MaxWorkers, 0)
	case "async":
		return NewAsyncPool(cfg.MaxWorkers)
	default:
		return NewProcessPool(cfg.MaxWorkers)
	}
}
