package main

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"strconv"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/TrevorS/mdevents"
	"github.com/TrevorS/mdevents/internal/config"
	"github.com/TrevorS/mdevents/store"
)

type ingestOptions struct {
	input    string
	workers  int
	appendTo string
	progress time.Duration
}

func newIngestCmd(root *rootOptions) *cobra.Command {
	opts := &ingestOptions{}
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Read events from CSV into a new or saved workspace",
		Long: `Read events from CSV and add them to a workspace.

Each row holds one coordinate per configured dimension, then the signal and
the squared error. Full events (ingest.event_type: full) add the run index
and the detector id. Lines starting with '#' are ignored.

With a store configured, the workspace is saved when ingestion finishes.
--append loads a saved workspace instead of creating one; its dimensions must
match the configured ones.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := root.load()
			if err != nil {
				return err
			}
			if err := cfg.RequireDimensions(); err != nil {
				return err
			}
			if opts.workers > 0 {
				cfg.Ingest.Workers = opts.workers
			}

			in := cmd.InOrStdin()
			if opts.input == "-" {
				if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
					return errors.New("refusing to read events from a terminal: pass --input or pipe CSV on stdin")
				}
			} else {
				f, err := os.Open(opts.input)
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			if cfg.Ingest.EventType == "full" {
				return runIngest[mdevents.FullEvent](ctx, cmd.OutOrStdout(), cfg, logger, opts, in, parseFull, store.FullCodec{})
			}
			return runIngest[mdevents.LeanEvent](ctx, cmd.OutOrStdout(), cfg, logger, opts, in, parseLean, store.LeanCodec{})
		},
	}
	cmd.Flags().StringVarP(&opts.input, "input", "i", "-", "CSV file to read, - for stdin")
	cmd.Flags().IntVarP(&opts.workers, "workers", "w", 0, "ingestion workers (overrides ingest.workers)")
	cmd.Flags().StringVar(&opts.appendTo, "append", "", "id of a saved workspace to add events to")
	cmd.Flags().DurationVar(&opts.progress, "progress", 2*time.Second, "interval between progress log lines")
	return cmd
}

// rowParser turns one CSV record into an event of dims coordinates.
type rowParser[E mdevents.Event] func(rec []string, dims int) (E, error)

func runIngest[E mdevents.Event](ctx context.Context, out io.Writer, cfg config.Config, logger *slog.Logger,
	opts *ingestOptions, in io.Reader, parse rowParser[E], codec store.Codec[E]) error {
	dims := cfg.WorkspaceDimensions()
	tasks, total, err := readTasks(in, len(dims), cfg.Ingest.TaskSize, parse)
	if err != nil {
		return err
	}

	var db *badger.DB
	if cfg.Store.Path != "" || cfg.Store.InMemory || opts.appendTo != "" {
		if db, err = openStore(cfg, logger); err != nil {
			return err
		}
		defer db.Close()
	}

	ws, err := openWorkspace(db, cfg, logger, opts.appendTo, codec)
	if err != nil {
		return err
	}

	res, err := mdevents.Ingest(ctx, ws, tasks, mdevents.IngestOptions{
		Workers:   cfg.Ingest.Workers,
		BatchSize: cfg.Ingest.BatchSize,
		Progress:  mdevents.NewLogProgress(logger, uint64(total), opts.progress),
	})
	if err != nil {
		return fmt.Errorf("ingest: %w", err)
	}

	fmt.Fprintf(out, "workspace %s: added %d, rejected %d, %d boxes (%d leaf), %d split passes in %s\n",
		ws.ID(), res.Added, res.Rejected, res.Boxes, res.LeafBoxes, res.SplitPasses, res.Elapsed.Round(time.Millisecond))
	for _, line := range ws.BoxControllerStats() {
		fmt.Fprintln(out, "  "+line)
	}

	if db == nil {
		return nil
	}
	if err := store.Save(db, ws, codec); err != nil {
		return err
	}
	logger.Info("saved workspace", "workspace", ws.ID().String(), "path", cfg.Store.Path)
	return nil
}

// openWorkspace loads the saved workspace appendTo, or creates a fresh one
// with its root already split.
func openWorkspace[E mdevents.Event](db *badger.DB, cfg config.Config, logger *slog.Logger, appendTo string, codec store.Codec[E]) (*mdevents.Workspace[E], error) {
	wcfg := cfg.WorkspaceConfig()
	wcfg.Logger = logger

	if appendTo == "" {
		ws, err := mdevents.New[E](cfg.WorkspaceDimensions(), wcfg)
		if err != nil {
			return nil, err
		}
		if err := ws.SplitBox(); err != nil {
			return nil, err
		}
		return ws, nil
	}

	id, err := uuid.Parse(appendTo)
	if err != nil {
		return nil, fmt.Errorf("bad workspace id %q: %w", appendTo, err)
	}
	ws, err := store.Load(db, id, codec, wcfg)
	if err != nil {
		return nil, err
	}
	if err := ws.MatchesDimensions(cfg.WorkspaceDimensions()); err != nil {
		return nil, fmt.Errorf("cannot append to %s: %w", id, err)
	}
	return ws, nil
}

// readTasks parses every row of r and groups the events into tasks of at
// most taskSize events.
func readTasks[E mdevents.Event](r io.Reader, dims, taskSize int, parse rowParser[E]) ([]mdevents.Task[E], int, error) {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	var tasks []mdevents.Task[E]
	var chunk []E
	total := 0
	emit := func() {
		if len(chunk) == 0 {
			return
		}
		events := chunk
		tasks = append(tasks, mdevents.Task[E]{
			Name:   fmt.Sprintf("rows %d-%d", total-len(events)+1, total),
			Cost:   len(events),
			Events: slices.Values(events),
		})
		chunk = nil
	}

	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, 0, fmt.Errorf("read input: %w", err)
		}
		line, _ := cr.FieldPos(0)
		e, err := parse(rec, dims)
		if err != nil {
			return nil, 0, fmt.Errorf("line %d: %w", line, err)
		}
		chunk = append(chunk, e)
		total++
		if len(chunk) == taskSize {
			emit()
		}
	}
	emit()
	return tasks, total, nil
}

func parseLean(rec []string, dims int) (mdevents.LeanEvent, error) {
	if len(rec) != dims+2 {
		return mdevents.LeanEvent{}, fmt.Errorf("want %d fields (coordinates, signal, error squared), got %d", dims+2, len(rec))
	}
	center, signal, errSq, err := parseCommon(rec, dims)
	if err != nil {
		return mdevents.LeanEvent{}, err
	}
	return mdevents.NewLeanEvent(signal, errSq, center...), nil
}

func parseFull(rec []string, dims int) (mdevents.FullEvent, error) {
	if len(rec) != dims+4 {
		return mdevents.FullEvent{}, fmt.Errorf("want %d fields (coordinates, signal, error squared, run, detector), got %d", dims+4, len(rec))
	}
	center, signal, errSq, err := parseCommon(rec, dims)
	if err != nil {
		return mdevents.FullEvent{}, err
	}
	run, err := strconv.ParseUint(rec[dims+2], 10, 16)
	if err != nil {
		return mdevents.FullEvent{}, fmt.Errorf("run index: %w", err)
	}
	det, err := strconv.ParseInt(rec[dims+3], 10, 32)
	if err != nil {
		return mdevents.FullEvent{}, fmt.Errorf("detector id: %w", err)
	}
	return mdevents.NewFullEvent(signal, errSq, uint16(run), int32(det), center...), nil
}

func parseCommon(rec []string, dims int) (center []float64, signal, errSq float32, err error) {
	center = make([]float64, dims)
	for d := range center {
		if center[d], err = strconv.ParseFloat(rec[d], 64); err != nil {
			return nil, 0, 0, fmt.Errorf("coordinate %d: %w", d, err)
		}
	}
	s, err := strconv.ParseFloat(rec[dims], 32)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("signal: %w", err)
	}
	e, err := strconv.ParseFloat(rec[dims+1], 32)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("error squared: %w", err)
	}
	return center, float32(s), float32(e), nil
}

// describe loads one saved workspace and formats its totals and per-depth
// statistics.
func describe[E mdevents.Event](db *badger.DB, id uuid.UUID, codec store.Codec[E], cfg config.Config, logger *slog.Logger) ([]string, error) {
	wcfg := cfg.WorkspaceConfig()
	wcfg.Logger = logger
	ws, err := store.Load(db, id, codec, wcfg)
	if err != nil {
		return nil, err
	}
	n, err := ws.TotalNumEvents()
	if err != nil {
		return nil, err
	}
	signal, err := ws.TotalSignal()
	if err != nil {
		return nil, err
	}
	bc := ws.Controller()
	lines := []string{fmt.Sprintf("workspace %s: %d dimensions, %d events, signal %g, %d boxes (%d leaf), max depth %d",
		id, ws.NumDims(), n, signal, bc.TotalNumBoxes(), bc.TotalNumLeafBoxes(), bc.MaxDepthReached())}
	for _, line := range ws.BoxControllerStats() {
		lines = append(lines, "  "+line)
	}
	return lines, nil
}
