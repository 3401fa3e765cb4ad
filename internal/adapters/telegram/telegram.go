// Package telegram integrates the Telegram Bot API: outbound campaign
// deliveries plus the operator command surface.
package telegram

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	"campbot/internal/dispatch"
	logx "campbot/pkg/logx"
)

type Config struct {
	Token string
	// Owners are the Telegram user IDs allowed to issue commands.
	Owners      []int64
	PollTimeout time.Duration
}

// Sender identifies the operator issuing a command.
type Sender struct {
	ID       int64
	Username string
}

// Handler processes one operator command line and returns the reply text.
// An empty reply suppresses the response message.
type Handler func(ctx context.Context, from Sender, text string) string

type Adapter struct {
	cfg Config
	log logx.Logger
	bot *tele.Bot

	runMu   sync.Mutex
	running bool
	runWG   sync.WaitGroup
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	return &Adapter{cfg: cfg, log: log, bot: b}, nil
}

// BindCommands routes incoming text from owners to the handler. Messages
// from anyone else are dropped. Must be called before Start.
func (a *Adapter) BindCommands(h Handler) {
	a.bot.Handle(tele.OnText, func(c tele.Context) error {
		m := c.Message()
		if m == nil || m.Sender == nil {
			return nil
		}
		if !a.isOwner(m.Sender.ID) {
			a.log.Debug("command from non-owner ignored",
				logx.Int64("from", m.Sender.ID),
				logx.String("username", m.Sender.Username))
			return nil
		}
		reply := h(context.Background(), Sender{ID: m.Sender.ID, Username: m.Sender.Username}, m.Text)
		if reply == "" {
			return nil
		}
		return c.Send(reply)
	})
}

func (a *Adapter) isOwner(id int64) bool {
	for _, o := range a.cfg.Owners {
		if o == id {
			return true
		}
	}
	return false
}

// Start begins long polling for operator commands.
func (a *Adapter) Start(ctx context.Context) {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	if a.running {
		return
	}
	a.running = true
	a.runWG.Add(1)
	go func() {
		defer a.runWG.Done()
		a.bot.Start()
	}()
	a.log.Info("telegram polling started", logx.Int("owners", len(a.cfg.Owners)))
	_ = ctx
}

func (a *Adapter) Stop(ctx context.Context) {
	a.runMu.Lock()
	if !a.running {
		a.runMu.Unlock()
		return
	}
	a.running = false
	a.runMu.Unlock()

	done := make(chan struct{})
	go func() {
		a.bot.Stop()
		a.runWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		// best-effort
	}
	a.log.Info("telegram polling stopped")
}

// chatRef lets both numeric chat IDs and @usernames address a recipient.
type chatRef string

func (c chatRef) Recipient() string { return string(c) }

// Send implements dispatch.Adapter for the telegram platform.
func (a *Adapter) Send(ctx context.Context, _ string, targetID, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := a.bot.Send(chatRef(targetID), text)
	return classify(err)
}

// classify maps Bot API failures onto the retry taxonomy: flood control
// and server-side errors are worth retrying, any other API rejection
// (bad chat, blocked bot, kicked) is final for the target.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var flood tele.FloodError
	if errors.As(err, &flood) {
		return dispatch.Transient(err)
	}
	var apiErr *tele.Error
	if errors.As(err, &apiErr) {
		if apiErr.Code >= 500 || apiErr.Code == 429 {
			return dispatch.Transient(err)
		}
		return dispatch.Permanent(err)
	}
	// Network-level failures come through unclassified.
	return dispatch.Transient(err)
}
