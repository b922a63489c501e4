package router

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	rtsup "praypal/internal/runtime/supervisor"
	kit "praypal/internal/transport"
	"praypal/pkg/clock"
	logx "praypal/pkg/logx"
)

type command struct {
	name        string
	description string
	handle      HandlerFunc
}

// Router dispatches incoming messages to command handlers and the setup
// conversation. Messages of one chat are handled in arrival order on the
// same shard; different chats proceed in parallel.
type Router struct {
	cfg       Config
	log       logx.Logger
	adapter   kit.Adapter
	store     Preferences
	fetcher   Fetcher
	reminders Reminders
	clock     clock.Clock

	conv     *conversations
	commands map[string]command
	menu     []kit.BotCommand

	runMu  sync.Mutex
	sup    *rtsup.Supervisor
	shards []chan func()
}

func New(cfg Config, deps Deps, log logx.Logger) *Router {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.HandlerTimeout <= 0 {
		cfg.HandlerTimeout = 30 * time.Second
	}
	if cfg.MaxLeadTime <= 0 {
		cfg.MaxLeadTime = 60
	}
	if deps.Clock == nil {
		deps.Clock = clock.NewRealClock()
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	r := &Router{
		cfg:       cfg,
		log:       log.With(logx.String("comp", "telegram.router")),
		adapter:   deps.Adapter,
		store:     deps.Store,
		fetcher:   deps.Fetcher,
		reminders: deps.Reminders,
		clock:     deps.Clock,
		conv:      newConversations(),
		commands:  map[string]command{},
	}
	for _, c := range r.commandList() {
		r.commands[c.name] = c
		r.menu = append(r.menu, kit.BotCommand{Command: c.name, Description: c.description})
	}
	return r
}

// Menu returns the command list shown in the Telegram menu.
func (r *Router) Menu() []kit.BotCommand {
	return append([]kit.BotCommand(nil), r.menu...)
}

// DispatchLoop consumes updates until ctx is done or updates is closed.
func (r *Router) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	sup := rtsup.NewSupervisor(ctx,
		rtsup.WithLogger(r.log),
		rtsup.WithCancelOnError(false),
	)
	shards := make([]chan func(), r.cfg.Workers)
	for i := range shards {
		shards[i] = make(chan func(), r.cfg.QueueSize)
	}
	r.runMu.Lock()
	r.sup, r.shards = sup, shards
	r.runMu.Unlock()

	if up, ok := r.adapter.(kit.CommandMenuUpdater); ok {
		sup.Go("telegram.menu.update", func(c context.Context) error {
			mctx, cancel := context.WithTimeout(c, 10*time.Second)
			defer cancel()
			if err := up.UpdateMenuCommands(mctx, r.Menu()); err != nil {
				r.log.Warn("menu update failed", logx.Err(err))
			}
			return nil
		})
	}

	for i, q := range shards {
		q := q
		sup.GoRestart("shard."+strconv.Itoa(i), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job, ok := <-q:
					if !ok {
						return nil
					}
					job()
				}
			}
		},
			rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second),
			rtsup.WithPublishFirstError(true),
			rtsup.WithStopOnCleanExit(true),
		)
	}
	r.log.Info("dispatcher started", logx.Int("shards", len(shards)), logx.Int("queue", r.cfg.QueueSize))

	defer func() {
		r.runMu.Lock()
		r.sup, r.shards = nil, nil
		r.runMu.Unlock()
		for _, q := range shards {
			close(q)
		}
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		r.log.Info("dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			if up.Kind != kit.UpdateMessage || up.Message == nil {
				continue
			}
			r.enqueue(ctx, shards, up.Message)
		}
	}
}

func (r *Router) enqueue(ctx context.Context, shards []chan func(), msg *kit.Message) {
	q := shards[uint64(msg.ChatID)%uint64(len(shards))]
	select {
	case q <- func() { r.HandleMessage(ctx, msg) }:
	default:
		_, _ = r.adapter.SendText(ctx, kit.ChatTarget{ChatID: msg.ChatID}, busyText, nil)
	}
}

// HandleMessage runs one message through the middleware chain synchronously.
func (r *Router) HandleMessage(ctx context.Context, msg *kit.Message) {
	if msg == nil {
		return
	}
	text := strings.TrimSpace(msg.Text)
	req := &Request{
		Chat:   kit.ChatTarget{ChatID: msg.ChatID},
		FromID: msg.FromID,
		Text:   text,
		ReqID:  uuid.NewString()[:8],
	}

	var h HandlerFunc = r.handleText
	if strings.HasPrefix(text, "/") {
		word, rest, _ := strings.Cut(strings.TrimPrefix(text, "/"), " ")
		word, _, _ = strings.Cut(word, "@")
		word = strings.ToLower(word)
		req.Command, req.Text = word, strings.TrimSpace(rest)
		cmd, ok := r.commands[word]
		if ok {
			h = cmd.handle
		} else {
			h = func(ctx context.Context, req *Request) error {
				return r.reply(ctx, req, unknownCommandText, nil)
			}
		}
	}
	req.Logger = r.log.With(
		logx.String("rid", req.ReqID),
		logx.Int64("chat_id", msg.ChatID),
		logx.String("cmd", req.Command),
		logx.Bool("group", msg.IsGroup),
	)

	final := Chain(h,
		MWPanicRecover(),
		MWRequestLog(),
		MWTimeout(r.cfg.HandlerTimeout),
	)
	_ = final(ctx, req)
}
