package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/dmitrijs2005/silosync/internal/client/models"
	"github.com/dmitrijs2005/silosync/internal/timex"
)

func (a *App) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(a.out, format, args...)
}

// Status prints connectivity, queue depth and cache ages.
func (a *App) Status(ctx context.Context) error {
	depth, err := a.store.QueueDepth(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "server:\t%s\n", a.api.BaseURL())
	fmt.Fprintf(w, "mode:\t%s\n", a.mode())
	fmt.Fprintf(w, "pending:\t%d\n", depth)
	fmt.Fprintf(w, "persistent:\t%t\n", a.store.Persistent())
	fmt.Fprintf(w, "syncing:\t%t\n", a.engine.Running())
	if res := a.orch.LastResult(); res != nil {
		fmt.Fprintf(w, "last sync:\t%s\n", summary(res))
	}

	ages := a.orch.CacheAges(ctx)
	for _, k := range models.AllKinds() {
		age, ok := ages[k]
		if !ok {
			fmt.Fprintf(w, "cache %s:\tnever\n", k)
			continue
		}
		fmt.Fprintf(w, "cache %s:\t%s ago\n", k, age.Round(time.Second))
	}
	return w.Flush()
}

// Refresh reloads every kind and prints how many records each holds.
func (a *App) Refresh(ctx context.Context) error {
	if err := a.data.RefreshData(ctx); err != nil {
		return err
	}
	for _, k := range models.AllKinds() {
		a.printf("%s: %d\n", k, len(a.data.List(k)))
	}
	return nil
}

// Sync drains the queue now and prints the outcome.
func (a *App) Sync(ctx context.Context) error {
	res, err := a.orch.SyncNow(ctx)
	if err != nil {
		return err
	}
	a.printf("%s\n", summary(res))
	for _, c := range res.Conflicts {
		a.printf("conflict %s %s: %s\n", c.Entity, c.ID, c.Outcome)
	}
	for _, e := range res.Errors {
		state := "will retry"
		if !e.Retryable {
			state = "dropped"
		}
		a.printf("error %s %s %s: %s (%s)\n", e.Action.Type, e.Action.Entity, e.Action.TargetID(), e.Message, state)
	}
	return nil
}

func summary(res *models.SyncResult) string {
	return fmt.Sprintf("%d processed, %d failed, %d skipped, %d conflicts in %s",
		res.Processed, res.Failed, res.Skipped, len(res.Conflicts), res.Duration.Round(time.Millisecond))
}

// Queue lists pending actions in replay order.
func (a *App) Queue(ctx context.Context) error {
	queue, err := a.store.ListQueue(ctx)
	if err != nil {
		return err
	}
	if len(queue) == 0 {
		a.printf("queue is empty\n")
		return nil
	}
	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTYPE\tENTITY\tTARGET\tRETRIES\tQUEUED\tLAST ERROR")
	for _, q := range queue {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			q.ID, q.Type, q.Entity, q.TargetID(), q.RetryCount,
			timex.FormatTimestamp(time.Unix(0, q.Timestamp)), q.LastError)
	}
	return w.Flush()
}

// ClearQueue drops every pending action.
func (a *App) ClearQueue(ctx context.Context) error {
	n, err := a.store.QueueDepth(ctx)
	if err != nil {
		return err
	}
	if err := a.store.ClearQueue(ctx); err != nil {
		return err
	}
	a.printf("dropped %d pending actions\n", n)
	return nil
}

// DeadLetters lists actions the sync engine gave up on.
func (a *App) DeadLetters(ctx context.Context) error {
	dls, err := a.store.ListDeadLetters(ctx)
	if err != nil {
		return err
	}
	if len(dls) == 0 {
		a.printf("no dead letters\n")
		return nil
	}
	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "FAILED AT\tTYPE\tENTITY\tTARGET\tSTATUS\tREASON")
	for _, d := range dls {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
			timex.FormatTimestamp(time.UnixMilli(d.FailedAt)), d.Action.Type, d.Action.Entity,
			d.Action.TargetID(), d.StatusCode, d.Reason)
	}
	return w.Flush()
}

// List prints the records of kind, one JSON object per line, ordered by id.
func (a *App) List(ctx context.Context, kind string) error {
	k, err := models.ParseKind(kind)
	if err != nil {
		return err
	}
	recs := a.data.List(k)
	sort.Slice(recs, func(i, j int) bool { return recs[i].ID() < recs[j].ID() })
	for _, r := range recs {
		if err := a.printRecord(r); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) Get(ctx context.Context, kind, id string) error {
	k, err := models.ParseKind(kind)
	if err != nil {
		return err
	}
	rec, ok := a.data.Get(k, id)
	if !ok {
		return fmt.Errorf("%s %s not found", k.Singular(), id)
	}
	return a.printRecord(rec)
}

func (a *App) Create(ctx context.Context, kind string, fields []string) error {
	k, payload, err := parseInput(kind, fields)
	if err != nil {
		return err
	}
	rec, err := a.data.Create(ctx, k, payload)
	if err != nil {
		return err
	}
	return a.printRecord(rec)
}

func (a *App) Update(ctx context.Context, kind, id string, fields []string) error {
	k, payload, err := parseInput(kind, fields)
	if err != nil {
		return err
	}
	rec, err := a.data.Update(ctx, k, id, payload)
	if err != nil {
		return err
	}
	return a.printRecord(rec)
}

func (a *App) Delete(ctx context.Context, kind, id string) error {
	k, err := models.ParseKind(kind)
	if err != nil {
		return err
	}
	if err := a.data.Delete(ctx, k, id); err != nil {
		return err
	}
	a.printf("deleted %s %s\n", k.Singular(), id)
	return nil
}

func parseInput(kind string, fields []string) (models.Kind, map[string]any, error) {
	k, err := models.ParseKind(kind)
	if err != nil {
		return "", nil, err
	}
	payload, err := ParseFields(fields)
	if err != nil {
		return "", nil, err
	}
	return k, payload, nil
}

func (a *App) printRecord(r models.Record) error {
	b, err := json.Marshal(r)
	if err != nil {
		return err
	}
	a.printf("%s\n", b)
	return nil
}
