package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dmitrijs2005/silosync/internal/client/events"
	"github.com/dmitrijs2005/silosync/internal/client/models"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	Status(ctx context.Context) error
	Refresh(ctx context.Context) error
	Sync(ctx context.Context) error
	Queue(ctx context.Context) error
	ClearQueue(ctx context.Context) error
	DeadLetters(ctx context.Context) error
	List(ctx context.Context, kind string) error
	Get(ctx context.Context, kind, id string) error
	Create(ctx context.Context, kind string, fields []string) error
	Update(ctx context.Context, kind, id string, fields []string) error
	Delete(ctx context.Context, kind, id string) error
}

const replHelp = `Available commands:
  status                           connectivity, queue and cache summary
  refresh                          reload every entity kind
  sync                             drain the pending queue now
  queue                            list pending actions
  clear                            drop every pending action
  deadletters                      list actions that were given up on
  list <kind>                      list records
  get <kind> <id>                  show one record
  create <kind> [name=value ...]   create a record
  update <kind> <id> name=value..  change fields of a record
  delete <kind> <id>               delete a record
  exit | quit                      leave the program`

// runREPL reads commands from reader until EOF, "exit" or "quit" and
// dispatches them to a. create without fields prompts for them, clear asks
// for confirmation. Command errors are printed and the loop continues.
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader, w io.Writer) {
	for {
		printlnFn(fmt.Sprintf("silosync %s> ", statusFn()))
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		var cmdErr error
		switch cmd {
		case "help":
			printlnFn(replHelp)
		case "status":
			cmdErr = a.Status(ctx)
		case "refresh":
			cmdErr = a.Refresh(ctx)
		case "sync":
			cmdErr = a.Sync(ctx)
		case "queue":
			cmdErr = a.Queue(ctx)
		case "clear":
			answer, err := GetSimpleText(reader, "Drop every pending action? (y/N)", w)
			if err == nil && strings.EqualFold(answer, "y") {
				cmdErr = a.ClearQueue(ctx)
			}
		case "deadletters":
			cmdErr = a.DeadLetters(ctx)
		case "l", "list":
			if len(args) != 1 {
				printlnFn("Usage: list <kind>")
				continue
			}
			cmdErr = a.List(ctx, args[0])
		case "get":
			if len(args) != 2 {
				printlnFn("Usage: get <kind> <id>")
				continue
			}
			cmdErr = a.Get(ctx, args[0], args[1])
		case "create":
			if len(args) < 1 {
				printlnFn("Usage: create <kind> [name=value ...]")
				continue
			}
			fields := args[1:]
			if len(fields) == 0 {
				if fields, cmdErr = GetFields(reader, w); cmdErr != nil {
					break
				}
			}
			cmdErr = a.Create(ctx, args[0], fields)
		case "update":
			if len(args) < 3 {
				printlnFn("Usage: update <kind> <id> name=value ...")
				continue
			}
			cmdErr = a.Update(ctx, args[0], args[1], args[2:])
		case "delete":
			if len(args) != 2 {
				printlnFn("Usage: delete <kind> <id>")
				continue
			}
			cmdErr = a.Delete(ctx, args[0], args[1])
		case "exit", "quit":
			printlnFn("Bye!")
			return
		default:
			printlnFn("Unknown command:", cmd)
		}
		if cmdErr != nil {
			printlnFn("error:", cmdErr)
		}
	}
}

func (a *App) promptStatus() string {
	s := string(a.mode())
	if s == "" {
		s = "connecting"
	}
	if n, err := a.store.QueueDepth(context.Background()); err == nil && n > 0 {
		s = fmt.Sprintf("%s, %d pending", s, n)
	}
	return "(" + s + ")"
}

// Run opens the app with push enabled, announces background syncs and runs
// the interactive shell on in until the user leaves or ctx is cancelled.
func (a *App) Run(ctx context.Context, in io.Reader, withPush bool) error {
	defer a.Close()
	if err := a.Open(ctx, withPush); err != nil {
		return err
	}

	a.unsub = append(a.unsub, a.bus.On(events.SyncCompleted, func(e events.Event) {
		if res, ok := e.Payload.(*models.SyncResult); ok && (res.Processed > 0 || res.Failed > 0) {
			printlnFn("sync:", summary(res))
		}
	}))

	printlnFn("silosync client (type 'help' for commands)")
	done := make(chan struct{})
	go func() {
		defer close(done)
		runREPL(ctx, a, a.promptStatus, bufio.NewReader(in), a.out)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil
		}
		return ctx.Err()
	}
}
