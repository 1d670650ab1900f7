// Package telegram adapts the transport seam onto the Telegram Bot API.
package telegram

import (
	"context"
	"errors"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"stockwatch/internal/transport"
	"stockwatch/pkg/logx"
)

type Config struct {
	Token       string
	PollTimeout time.Duration
}

type Adapter struct {
	cfg Config
	log logx.Logger
	bot *tele.Bot
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

func (a *Adapter) SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) error {
	if to.ChatID == 0 {
		return errors.New("telegram: chat id is not set")
	}

	sendOpts := &tele.SendOptions{}
	if opt != nil {
		sendOpts.ParseMode = opt.ParseMode
		sendOpts.DisableWebPagePreview = opt.DisablePreview
	}
	if to.ThreadID != 0 {
		sendOpts.ThreadID = to.ThreadID
	}

	// telebot has no context plumbing on Send; check cancellation up front so
	// a draining dispatcher doesn't start new deliveries.
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	_, err := a.bot.Send(tele.ChatID(to.ChatID), text, sendOpts)
	return err
}

func (a *Adapter) Stop(ctx context.Context) error {
	_ = ctx
	if a.bot != nil {
		a.bot.Stop()
	}
	return nil
}
