package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/teamdesk/messaging/internal/bus"
	"github.com/teamdesk/messaging/internal/config"
	"github.com/teamdesk/messaging/internal/conv"
	"github.com/teamdesk/messaging/internal/directory"
	"github.com/teamdesk/messaging/internal/msg"
	"github.com/teamdesk/messaging/internal/poll"
	"github.com/teamdesk/messaging/internal/presence"
	"github.com/teamdesk/messaging/internal/session"
	"github.com/teamdesk/messaging/internal/store"
)

func main() {
	_ = godotenv.Load()

	configFlag := flag.String("config", "", "config file path (default ~/.teamchat/config.toml)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	flag.Parse()

	cfg, err := resolveConfig(*configFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	env := newEnv(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	switch args[0] {
	case "send":
		if len(args) < 4 {
			fmt.Fprintln(os.Stderr, "usage: chatctl send <from> <to> <text>")
			os.Exit(1)
		}
		env.cmdSend(ctx, args[1], args[2], strings.Join(args[3:], " "))
	case "thread":
		if len(args) < 3 {
			fmt.Fprintln(os.Stderr, "usage: chatctl thread <a> <b>")
			os.Exit(1)
		}
		env.cmdThread(ctx, args[1], args[2], *jsonFlag)
	case "conversations":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: chatctl conversations <user>")
			os.Exit(1)
		}
		env.cmdConversations(ctx, args[1], *jsonFlag)
	case "delete-thread":
		if len(args) < 3 {
			fmt.Fprintln(os.Stderr, "usage: chatctl delete-thread <a> <b>")
			os.Exit(1)
		}
		env.cmdDeleteThread(ctx, args[1], args[2])
	case "presence":
		env.cmdPresence(ctx, *jsonFlag)
	case "watch":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: chatctl watch <user>")
			os.Exit(1)
		}
		cancel()
		env.cmdWatch(args[1])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: chatctl [--config <path>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  send <from> <to> <text>   Send a direct message")
	fmt.Fprintln(os.Stderr, "  thread <a> <b>            Print the thread between two users")
	fmt.Fprintln(os.Stderr, "  conversations <user>      Print a user's conversation list")
	fmt.Fprintln(os.Stderr, "  delete-thread <a> <b>     Delete a whole thread for both users")
	fmt.Fprintln(os.Stderr, "  presence                  Print current presence records")
	fmt.Fprintln(os.Stderr, "  watch <user>              Poll conversations and print alerts")
}

func resolveConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	cfg, err := config.Load(config.Path())
	if os.IsNotExist(err) {
		return config.Default(), nil
	}
	return cfg, err
}

// env wires the store, presence source, and directory according to
// the configured storage mode, the same way a host surface would.
type env struct {
	cfg      *config.Config
	store    store.MessageStore
	remote   *store.Remote
	recorder *presence.Recorder
	presence presence.Source
	dir      directory.Resolver
}

func newEnv(cfg *config.Config) *env {
	e := &env{cfg: cfg, recorder: presence.NewRecorder()}

	remote := store.NewRemote(cfg.Storage.ChatdURL)
	e.remote = remote
	mode := config.NewModeSource(cfg.Storage.Mode)
	e.store = store.NewSwitched(mode.Mode, store.NewMemory(), remote)

	if cfg.Storage.Mode == config.ModePersisted {
		e.presence = presence.RemoteSource{Fetch: remote.Presence}
		e.dir = directory.Remote{Fetch: func(ctx context.Context, uid string) (directory.User, error) {
			id, name, avatar, err := remote.User(ctx, uid)
			return directory.User{ID: id, Name: name, Avatar: avatar}, err
		}}
	} else {
		e.presence = e.recorder
		var users []directory.User
		for _, u := range cfg.Users {
			users = append(users, directory.User{ID: u.ID, Name: u.Name, Avatar: u.Avatar})
		}
		e.dir = directory.NewStatic(users)
	}
	return e
}

func (e *env) cmdSend(ctx context.Context, from, to, text string) {
	m, err := e.store.Send(ctx, from, to, text, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: send failed, draft not delivered: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("sent %s -> %s (%s)\n", m.From, m.To, m.ID)
}

func (e *env) cmdThread(ctx context.Context, a, b string, jsonOut bool) {
	thread, err := e.store.FetchThread(ctx, a, b)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if jsonOut {
		outputJSON(thread)
		return
	}
	for _, m := range thread {
		marker := " "
		if !m.Read {
			marker = "*"
		}
		ts := time.UnixMilli(m.Timestamp).Format("15:04:05")
		fmt.Printf("%s %s %s: %s\n", marker, ts, m.From, m.Text)
	}
}

func (e *env) cmdConversations(ctx context.Context, user string, jsonOut bool) {
	agg := conv.New(e.store, e.presence, e.dir, zap.NewNop())
	convs, err := agg.Summaries(ctx, user)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if jsonOut {
		outputJSON(convs)
		return
	}
	for _, c := range convs {
		dot := " "
		if c.Online {
			dot = "●"
		}
		fmt.Printf("%s %-20s unread=%-3d %s\n", dot, c.Display, c.Unread, c.LastMessage)
	}
}

func (e *env) cmdDeleteThread(ctx context.Context, a, b string) {
	if err := e.store.DeleteThread(ctx, a, b); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("thread %s/%s deleted\n", a, b)
}

func (e *env) cmdPresence(ctx context.Context, jsonOut bool) {
	recs, err := e.presence.Records(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if jsonOut {
		outputJSON(recs)
		return
	}
	now := time.Now()
	for _, rec := range recs {
		fmt.Printf("%-16s %s\n", rec.UID, presence.Derive(&rec, now))
	}
}

// cmdWatch runs the polling surface: conversation aggregation, the
// notification watcher, and the presence heartbeat, printing events
// until interrupted.
func (e *env) cmdWatch(user string) {
	logger := zap.NewNop()
	b := bus.New()
	agg := conv.New(e.store, e.presence, e.dir, logger)
	sess := session.New(user, e.store, agg, b, logger, session.Options{
		ConversationInterval: e.cfg.Polling.ConversationInterval(),
		WindowInterval:       e.cfg.Polling.WindowInterval(),
	})
	defer sess.Close()

	events, unsub := b.Subscribe("", 64)
	defer unsub()

	// This process doubles as user's presence reporter.
	beats := poll.NewSupervisor(logger)
	defer beats.StopAll()
	beats.Add("heartbeat", e.cfg.Polling.HeartbeatInterval(), func(ctx context.Context) {
		if e.cfg.Storage.Mode == config.ModePersisted {
			if _, err := e.remote.Heartbeat(ctx, user, "online"); err != nil {
				fmt.Fprintf(os.Stderr, "heartbeat failed: %v\n", err)
			}
			return
		}
		e.recorder.Beat(user, "online")
	})

	sess.WatchConversations()
	fmt.Printf("watching conversations for %s (ctrl-c to stop)\n", user)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	for {
		select {
		case evt := <-events:
			printEvent(evt)
		case <-sigCh:
			fmt.Println("stopping")
			return
		}
	}
}

func printEvent(evt bus.Event) {
	switch evt.Kind {
	case bus.KindAlert:
		alert := evt.Payload.(bus.Alert)
		fmt.Printf("\a[%s] new message from %s: %s\n",
			evt.Timestamp.Format("15:04:05"), alert.From, alert.Preview)
	case bus.KindConversations:
		convs, ok := evt.Payload.([]msg.Conversation)
		if !ok {
			return
		}
		fmt.Printf("[%s] conversations:\n", evt.Timestamp.Format("15:04:05"))
		for _, c := range convs {
			fmt.Printf("  %-20s unread=%d online=%v\n", c.Display, c.Unread, c.Online)
		}
	}
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
