package mdevents

import (
	"cmp"
	"context"
	"iter"
	"runtime"
	"slices"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// DefaultBatchSize is the number of events a worker buffers before handing
// them to AddEvents.
const DefaultBatchSize = 4096

var tracer = otel.Tracer("github.com/TrevorS/mdevents")

// Task is one independent unit of ingestion work, typically the converted
// event list of one detector pixel.
type Task[E Event] struct {
	Name string

	// Cost is the expected number of events. Tasks run largest cost first,
	// and the running total decides when to pause for a split pass.
	Cost int

	// Events yields the task's events lazily.
	Events iter.Seq[E]
}

// IngestOptions controls the worker pool of Ingest.
type IngestOptions struct {
	// Workers is the number of tasks run at once. 0 means runtime.NumCPU().
	Workers int

	// BatchSize is the number of events per AddEvents call. 0 means
	// DefaultBatchSize.
	BatchSize int

	// Progress, if set, is told how many events each batch carried.
	Progress Progress
}

// IngestResult summarizes one Ingest call.
type IngestResult struct {
	Added       uint64
	Rejected    uint64
	SplitPasses int
	Boxes       uint64
	LeafBoxes   uint64
	Elapsed     time.Duration
}

// Ingest runs tasks on a pool of workers that add events to ws
// concurrently, and alternates ingestion with split passes:
//
//  1. submit tasks, largest cost first
//  2. once the controller's ShouldSplitBoxes gate opens, join all workers
//  3. run SplitAllIfNeeded, then resume submitting
//  4. after the last task, join, split and RefreshCache
//
// Cancelling ctx stops submitting tasks; running tasks stop at their next
// batch boundary. The events added before cancellation stay in ws and the
// context error is returned with the partial result.
func Ingest[E Event](ctx context.Context, ws *Workspace[E], tasks []Task[E], opts IngestOptions) (IngestResult, error) {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}

	ctx, span := tracer.Start(ctx, "mdevents.Ingest", trace.WithAttributes(
		attribute.Int("tasks", len(tasks)),
		attribute.Int("workers", opts.Workers),
	))
	defer span.End()

	d := &ingestDriver[E]{ws: ws, opts: opts, start: time.Now()}
	bc := ws.Controller()

	ordered := slices.Clone(tasks)
	slices.SortStableFunc(ordered, func(a, b Task[E]) int {
		return cmp.Compare(b.Cost, a.Cost)
	})

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)

	var eventsAdded uint64
	lastNumBoxes := bc.TotalNumLeafBoxes()

	for _, t := range ordered {
		if gctx.Err() != nil {
			break
		}
		taskCtx := gctx
		g.Go(func() error { return d.run(taskCtx, t) })

		if t.Cost > 0 {
			eventsAdded += uint64(t.Cost)
		}
		if !bc.ShouldSplitBoxes(eventsAdded, lastNumBoxes) {
			continue
		}

		if err := g.Wait(); err != nil {
			return d.fail(span, err)
		}
		if err := d.splitPass(ctx); err != nil {
			return d.fail(span, err)
		}
		lastNumBoxes = bc.TotalNumLeafBoxes()
		eventsAdded = 0
		g, gctx = errgroup.WithContext(ctx)
		g.SetLimit(opts.Workers)
	}

	if err := g.Wait(); err != nil {
		return d.fail(span, err)
	}
	if err := ctx.Err(); err != nil {
		return d.fail(span, err)
	}

	if err := d.splitPass(ctx); err != nil {
		return d.fail(span, err)
	}
	_, refreshSpan := tracer.Start(ctx, "mdevents.RefreshCache")
	err := ws.RefreshCache()
	refreshSpan.End()
	if err != nil {
		return d.fail(span, err)
	}

	res := d.result()
	span.SetAttributes(
		attribute.Int64("events.added", int64(res.Added)),
		attribute.Int64("events.rejected", int64(res.Rejected)),
		attribute.Int("split_passes", res.SplitPasses),
	)
	ws.logger.Info("ingestion complete",
		"added", res.Added,
		"rejected", res.Rejected,
		"split_passes", res.SplitPasses,
		"boxes", res.Boxes,
		"elapsed", res.Elapsed)
	return res, nil
}

type ingestDriver[E Event] struct {
	ws          *Workspace[E]
	opts        IngestOptions
	start       time.Time
	added       atomic.Uint64
	rejected    atomic.Uint64
	splitPasses int
}

// run feeds one task's events to the workspace in batches.
func (d *ingestDriver[E]) run(ctx context.Context, t Task[E]) error {
	if t.Events == nil {
		return nil
	}
	batch := make([]E, 0, d.opts.BatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		added, rejected, err := d.ws.AddEvents(batch)
		if err != nil {
			return err
		}
		d.added.Add(uint64(added))
		d.rejected.Add(uint64(rejected))
		d.report(len(batch))
		batch = batch[:0]
		return ctx.Err()
	}

	for e := range t.Events {
		batch = append(batch, e)
		if len(batch) == cap(batch) {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	return flush()
}

func (d *ingestDriver[E]) report(n int) {
	if d.opts.Progress == nil {
		return
	}
	if err := d.opts.Progress.Report(n, "adding events"); err != nil {
		d.ws.logger.Warn("progress report failed", "error", err)
	}
}

func (d *ingestDriver[E]) splitPass(ctx context.Context) error {
	_, span := tracer.Start(ctx, "mdevents.SplitAllIfNeeded")
	defer span.End()
	if err := d.ws.SplitAllIfNeeded(); err != nil {
		span.RecordError(err)
		return err
	}
	d.splitPasses++
	span.SetAttributes(attribute.Int64("boxes", int64(d.ws.Controller().TotalNumBoxes())))
	return nil
}

func (d *ingestDriver[E]) result() IngestResult {
	bc := d.ws.Controller()
	return IngestResult{
		Added:       d.added.Load(),
		Rejected:    d.rejected.Load(),
		SplitPasses: d.splitPasses,
		Boxes:       bc.TotalNumBoxes(),
		LeafBoxes:   bc.TotalNumLeafBoxes(),
		Elapsed:     time.Since(d.start),
	}
}

func (d *ingestDriver[E]) fail(span trace.Span, err error) (IngestResult, error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return d.result(), err
}
