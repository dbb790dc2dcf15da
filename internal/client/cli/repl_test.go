package cli

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

type fakeExec struct {
	calls []string
	fail  error
}

func (f *fakeExec) record(s string) error {
	f.calls = append(f.calls, s)
	return f.fail
}

func (f *fakeExec) Status(ctx context.Context) error      { return f.record("status") }
func (f *fakeExec) Refresh(ctx context.Context) error     { return f.record("refresh") }
func (f *fakeExec) Sync(ctx context.Context) error        { return f.record("sync") }
func (f *fakeExec) Queue(ctx context.Context) error       { return f.record("queue") }
func (f *fakeExec) ClearQueue(ctx context.Context) error  { return f.record("clear") }
func (f *fakeExec) DeadLetters(ctx context.Context) error { return f.record("deadletters") }
func (f *fakeExec) List(ctx context.Context, kind string) error {
	return f.record("list " + kind)
}
func (f *fakeExec) Get(ctx context.Context, kind, id string) error {
	return f.record("get " + kind + " " + id)
}
func (f *fakeExec) Create(ctx context.Context, kind string, fields []string) error {
	return f.record(fmt.Sprintf("create %s %v", kind, fields))
}
func (f *fakeExec) Update(ctx context.Context, kind, id string, fields []string) error {
	return f.record(fmt.Sprintf("update %s %s %v", kind, id, fields))
}
func (f *fakeExec) Delete(ctx context.Context, kind, id string) error {
	return f.record("delete " + kind + " " + id)
}

func silence(t *testing.T) *[]string {
	t.Helper()
	var printed []string
	origPrint := printlnFn
	printlnFn = func(a ...any) (int, error) {
		printed = append(printed, fmt.Sprint(a...))
		return 0, nil
	}
	t.Cleanup(func() { printlnFn = origPrint })
	return &printed
}

func TestRunREPL_DispatchesCommands(t *testing.T) {
	silence(t)

	input := strings.Join([]string{
		"help",
		"status",
		"",
		"refresh",
		"list silos",
		"get silos s1",
		"create clients name=Acme phone=555",
		"create drivers",
		"name=Ana",
		"",
		"update silos s1 current_stock=10",
		"delete silos s1",
		"queue",
		"clear",
		"y",
		"clear",
		"n",
		"deadletters",
		"sync",
		"exit",
		"status",
	}, "\n")

	exec := &fakeExec{}
	var out bytes.Buffer
	runREPL(context.Background(), exec, func() string { return "(online)" }, bufio.NewReader(strings.NewReader(input)), &out)

	want := []string{
		"status",
		"refresh",
		"list silos",
		"get silos s1",
		"create clients [name=Acme phone=555]",
		"create drivers [name=Ana]",
		"update silos s1 [current_stock=10]",
		"delete silos s1",
		"queue",
		"clear",
		"deadletters",
		"sync",
	}
	if fmt.Sprint(exec.calls) != fmt.Sprint(want) {
		t.Fatalf("calls mismatch:\n got %v\nwant %v", exec.calls, want)
	}
}

func TestRunREPL_UsageAndQuit(t *testing.T) {
	printed := silence(t)

	input := strings.NewReader("get\nlist\nupdate silos s1\nfoobar\nquit\nsync\n")
	exec := &fakeExec{}

	runREPL(context.Background(), exec, func() string { return "s" }, bufio.NewReader(input), &bytes.Buffer{})

	if len(exec.calls) != 0 {
		t.Fatalf("unexpected calls: %v", exec.calls)
	}
	joined := strings.Join(*printed, "\n")
	for _, want := range []string{"Usage: get", "Usage: list", "Usage: update", "Unknown command:foobar", "Bye!"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("output missing %q:\n%s", want, joined)
		}
	}
}

func TestRunREPL_PrintsErrorsAndContinues(t *testing.T) {
	printed := silence(t)

	exec := &fakeExec{fail: errors.New("boom")}
	runREPL(context.Background(), exec, func() string { return "" }, bufio.NewReader(strings.NewReader("sync\nstatus")), &bytes.Buffer{})

	if len(exec.calls) != 2 {
		t.Fatalf("expected both commands to run, got %v", exec.calls)
	}
	if !strings.Contains(strings.Join(*printed, "\n"), "error:boom") {
		t.Fatalf("error not printed: %v", *printed)
	}
}
