package telegram

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"nutrition-assistant-bot/internal/application"
	"nutrition-assistant-bot/internal/config"
	"nutrition-assistant-bot/internal/domain/ports/adapter"
	"nutrition-assistant-bot/internal/infra/metrics"
	red "nutrition-assistant-bot/internal/infra/redis"
)

var _ adapter.TelegramBotAdapter = (*RealTelegramBotAdapter)(nil)

// RealTelegramBotAdapter polls Telegram for updates and delegates every
// command, photo and callback to the BotFacade. It also implements the
// outbound adapter port, so usecases can push notifications through the same
// client.
type RealTelegramBotAdapter struct {
	bot         *tgbotapi.BotAPI
	cfg         *config.BotConfig
	facade      *application.BotFacade
	rateLimiter *red.RateLimiter
	log         *zerolog.Logger

	updateWorkers int
	cancelPolling context.CancelFunc
}

func NewRealTelegramBotAdapter(cfg *config.BotConfig, facade *application.BotFacade, rateLimiter *red.RateLimiter, logger *zerolog.Logger) (*RealTelegramBotAdapter, error) {
	if cfg == nil {
		return nil, errors.New("bot config is nil")
	}
	if facade == nil {
		return nil, errors.New("bot facade is nil")
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 5
	}

	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, err
	}

	botLog := logger.With().Str("component", "TelegramBot").Logger()
	return &RealTelegramBotAdapter{
		bot:           bot,
		cfg:           cfg,
		facade:        facade,
		rateLimiter:   rateLimiter,
		log:           &botLog,
		updateWorkers: workers,
	}, nil
}

func (r *RealTelegramBotAdapter) StartPolling(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := r.bot.GetUpdatesChan(u)

	ctx, cancel := context.WithCancel(ctx)
	r.cancelPolling = cancel

	var wg sync.WaitGroup
	updateChan := make(chan tgbotapi.Update, 100)

	for i := 0; i < r.updateWorkers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case up := <-updateChan:
					if err := r.handleUpdate(ctx, up); err != nil {
						r.log.Error().Err(err).Int("worker", id).Msg("update failed")
					}
				}
			}
		}(i)
	}

	for {
		select {
		case <-ctx.Done():
			close(updateChan)
			wg.Wait()
			return ctx.Err()
		case up := <-updates:
			updateChan <- up
		}
	}
}

func (r *RealTelegramBotAdapter) StopPolling() {
	if r.cancelPolling != nil {
		r.cancelPolling()
	}
}

type cbHandler func(ctx context.Context, chatID int64, username, data string) error

// Exact-match callbacks
func (r *RealTelegramBotAdapter) cbRoutes() map[string]cbHandler {
	return map[string]cbHandler{
		"subscribe": func(ctx context.Context, id int64, username, _ string) error {
			reply, err := r.facade.HandleSubscriptionMenu(ctx, id, username)
			return r.deliver(ctx, id, reply, err)
		},
		"toggle_auto_renewal": func(ctx context.Context, id int64, _, _ string) error {
			reply, err := r.facade.HandleToggleAutoRenewal(ctx, id)
			return r.deliver(ctx, id, reply, err)
		},
		"cancel_subscription": func(ctx context.Context, id int64, _, _ string) error {
			return r.send(ctx, id, r.facade.HandleCancelSubscription())
		},
		"confirm_cancel_subscription": func(ctx context.Context, id int64, _, _ string) error {
			reply, err := r.facade.HandleConfirmCancelSubscription(ctx, id)
			return r.deliver(ctx, id, reply, err)
		},
		"back_to_subscription": func(ctx context.Context, id int64, username, _ string) error {
			reply, err := r.facade.HandleSubscriptionMenu(ctx, id, username)
			return r.deliver(ctx, id, reply, err)
		},
	}
}

// Prefix-match callbacks; the suffix after the prefix is the payment id.
func (r *RealTelegramBotAdapter) cbPrefixRoutes() []struct {
	Prefix string
	Fn     cbHandler
} {
	return []struct {
		Prefix string
		Fn     cbHandler
	}{
		{
			Prefix: "check_payment_",
			Fn: func(ctx context.Context, id int64, _, data string) error {
				paymentID := strings.TrimPrefix(data, "check_payment_")
				reply, err := r.facade.HandleCheckPayment(ctx, paymentID)
				return r.deliver(ctx, id, reply, err)
			},
		},
		{
			Prefix: "cancel_payment_",
			Fn: func(ctx context.Context, id int64, _, data string) error {
				paymentID := strings.TrimPrefix(data, "cancel_payment_")
				reply, err := r.facade.HandleCancelPayment(ctx, paymentID)
				return r.deliver(ctx, id, reply, err)
			},
		},
		{
			Prefix: "cancel_renewal_",
			Fn: func(ctx context.Context, id int64, _, data string) error {
				paymentID := strings.TrimPrefix(data, "cancel_renewal_")
				reply, err := r.facade.HandleCancelRenewal(ctx, paymentID)
				return r.deliver(ctx, id, reply, err)
			},
		},
	}
}

// SendMessage implements the outbound adapter port.
func (r *RealTelegramBotAdapter) SendMessage(ctx context.Context, tgID int64, text string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	msg := tgbotapi.NewMessage(tgID, text)
	_, err := r.bot.Send(msg)
	return err
}

// SendButtons sends a message with inline buttons.
// - If btn.URL is set, the button opens a link
// - Else if btn.Data is set, the button sends callback data
// - Else a safe fallback uses btn.Text as callback data
func (r *RealTelegramBotAdapter) SendButtons(ctx context.Context, tgID int64, text string, rows [][]adapter.InlineButton) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	kbRows := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		kbRow := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, btn := range row {
			label := strings.TrimSpace(btn.Text)
			if label == "" {
				label = "•"
			}
			var kb tgbotapi.InlineKeyboardButton
			switch {
			case btn.URL != "":
				kb = tgbotapi.NewInlineKeyboardButtonURL(label, btn.URL)
			case btn.Data != "":
				kb = tgbotapi.NewInlineKeyboardButtonData(label, btn.Data)
			default:
				kb = tgbotapi.NewInlineKeyboardButtonData(label, label)
			}
			kbRow = append(kbRow, kb)
		}
		kbRows = append(kbRows, kbRow)
	}

	msg := tgbotapi.NewMessage(tgID, text)
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(kbRows...)
	_, err := r.bot.Send(msg)
	return err
}

// send forwards a facade reply, with or without a keyboard.
func (r *RealTelegramBotAdapter) send(ctx context.Context, tgID int64, reply application.Reply) error {
	if len(reply.Rows) == 0 {
		return r.SendMessage(ctx, tgID, reply.Text)
	}
	return r.SendButtons(ctx, tgID, reply.Text, reply.Rows)
}

// deliver sends the reply, or a generic apology when the facade failed.
func (r *RealTelegramBotAdapter) deliver(ctx context.Context, tgID int64, reply application.Reply, err error) error {
	if err != nil {
		_ = r.SendMessage(ctx, tgID, "😔 Произошла ошибка. Попробуйте позже.")
		return err
	}
	return r.send(ctx, tgID, reply)
}

func (r *RealTelegramBotAdapter) handleUpdate(ctx context.Context, update tgbotapi.Update) error {
	// ----- Inline button callbacks -----
	if update.CallbackQuery != nil {
		return r.handleQuery(ctx, update.CallbackQuery)
	}

	// ----- Regular messages -----
	if update.Message == nil {
		return nil
	}
	tgUser := update.Message.From
	if tgUser == nil {
		return nil
	}
	tgID := tgUser.ID
	username := tgUser.UserName

	fields := strings.Fields(update.Message.Text)
	command := "message"
	if len(update.Message.Photo) > 0 {
		command = "photo"
	} else if len(fields) > 0 && strings.HasPrefix(fields[0], "/") {
		command = fields[0]
	}
	metrics.IncTelegramCommand(command)

	// Basic rate limiting per user per command
	if r.rateLimiter != nil {
		allowed, err := r.rateLimiter.Allow(ctx, red.UserCommandKey(tgID, command), 20, time.Minute)
		if err != nil {
			r.log.Warn().Err(err).Msg("rate limit check failed")
		} else if !allowed {
			metrics.IncRateLimitTriggered()
			return r.SendMessage(ctx, tgID, "⚠️ Слишком много запросов. Попробуйте через минуту.")
		}
	}

	switch command {
	case "/start":
		reply, err := r.facade.HandleStart(ctx, tgID, username)
		return r.deliver(ctx, tgID, reply, err)

	case "/subscription":
		reply, err := r.facade.HandleSubscriptionMenu(ctx, tgID, username)
		return r.deliver(ctx, tgID, reply, err)

	case "/status":
		reply, err := r.facade.HandleStatus(ctx, tgID)
		return r.deliver(ctx, tgID, reply, err)

	case "/today":
		reply, err := r.facade.HandleToday(ctx, tgID)
		return r.deliver(ctx, tgID, reply, err)

	case "/help":
		return r.send(ctx, tgID, r.facade.HandleHelp())

	case "photo":
		return r.handlePhoto(ctx, update.Message)

	default:
		// Any other text is a nutrition question.
		if strings.TrimSpace(update.Message.Text) == "" {
			return nil
		}
		reply, err := r.facade.HandleQuestion(ctx, tgID, username, update.Message.Text)
		return r.deliver(ctx, tgID, reply, err)
	}
}

func (r *RealTelegramBotAdapter) handlePhoto(ctx context.Context, msg *tgbotapi.Message) error {
	tgID := msg.From.ID

	// Telegram sends several sizes; the last one is the largest.
	photo := msg.Photo[len(msg.Photo)-1]
	photoURL, err := r.bot.GetFileDirectURL(photo.FileID)
	if err != nil {
		r.log.Error().Err(err).Int64("telegram_id", tgID).Msg("photo file lookup failed")
		return r.SendMessage(ctx, tgID, "😔 Не удалось загрузить фото. Попробуйте ещё раз.")
	}

	_ = r.SendMessage(ctx, tgID, "🔍 Анализирую ваше блюдо... Это может занять до 30 секунд.")

	reply, err := r.facade.HandlePhoto(ctx, tgID, msg.From.UserName, photoURL)
	return r.deliver(ctx, tgID, reply, err)
}

func (r *RealTelegramBotAdapter) handleQuery(ctx context.Context, query *tgbotapi.CallbackQuery) error {
	if query == nil || query.From == nil {
		return errors.New("invalid callback query")
	}

	// Stop telegram spinner when we return
	defer func() { _, _ = r.bot.Request(tgbotapi.NewCallback(query.ID, "")) }()

	var chatID int64
	if query.Message != nil && query.Message.Chat != nil {
		chatID = query.Message.Chat.ID
	} else {
		chatID = query.From.ID
	}
	if chatID == 0 {
		return nil
	}

	data := strings.TrimSpace(query.Data)

	// Rate limit for callbacks
	if r.rateLimiter != nil {
		if allowed, err := r.rateLimiter.Allow(ctx, red.UserCommandKey(chatID, "cb:"+data), 30, time.Minute); err == nil && !allowed {
			metrics.IncRateLimitTriggered()
			return r.SendMessage(ctx, chatID, "⚠️ Слишком много запросов. Попробуйте через минуту.")
		}
	}

	username := query.From.UserName

	// Exact matches
	if fn, ok := r.cbRoutes()[data]; ok {
		return fn(ctx, chatID, username, data)
	}
	// Prefix matches
	for _, pr := range r.cbPrefixRoutes() {
		if strings.HasPrefix(data, pr.Prefix) {
			return pr.Fn(ctx, chatID, username, data)
		}
	}
	return errors.New("unknown callback data")
}
