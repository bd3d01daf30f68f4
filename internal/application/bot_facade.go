package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"nutrition-assistant-bot/internal/config"
	"nutrition-assistant-bot/internal/domain"
	"nutrition-assistant-bot/internal/domain/model"
	"nutrition-assistant-bot/internal/domain/ports/adapter"
	"nutrition-assistant-bot/internal/usecase"
)

const dateLayout = "02.01.2006"

// Reply is what a handler wants shown in the chat: the text plus optional
// inline keyboard rows. The Telegram adapter just forwards it.
type Reply struct {
	Text string
	Rows [][]adapter.InlineButton
}

func text(s string) Reply { return Reply{Text: s} }

// BotFacade composes usecases into high-level bot interactions. Each Handle*
// method maps to one command or callback and returns ready-to-send chat
// content, so the Telegram adapter stays free of business rules.
type BotFacade struct {
	Users    usecase.UserUseCase
	Ent      usecase.EntitlementUseCase
	Subs     usecase.SubscriptionUseCase
	Analysis usecase.AnalysisUseCase

	cfg *config.Config
	log *zerolog.Logger
}

func NewBotFacade(
	users usecase.UserUseCase,
	ent usecase.EntitlementUseCase,
	subs usecase.SubscriptionUseCase,
	analysis usecase.AnalysisUseCase,
	cfg *config.Config,
	logger *zerolog.Logger,
) *BotFacade {
	fLog := logger.With().Str("component", "BotFacade").Logger()
	return &BotFacade{
		Users:    users,
		Ent:      ent,
		Subs:     subs,
		Analysis: analysis,
		cfg:      cfg,
		log:      &fLog,
	}
}

// HandleStart registers or refreshes the user and returns the welcome text.
func (b *BotFacade) HandleStart(ctx context.Context, tgID int64, username string) (Reply, error) {
	if _, err := b.Users.RegisterOrFetch(ctx, tgID, username); err != nil {
		return Reply{}, fmt.Errorf("register user: %w", err)
	}
	welcome := fmt.Sprintf(
		"👋🏻 Начнём наше знакомство.\n\n"+
			"В первую очередь я рассчитываю калорийность и БЖУ по фото, поэтому можешь отправить фото блюда и я рассчитаю примерные КБЖУ.\n\n"+
			"Так же можешь задать вопрос о питании, еде и ЗОЖ.\n\n"+
			"Нажав на кнопку Меню ты увидишь остальные возможности бота:\n\n"+
			"/today — список блюд с калориями съеденные за сегодня.\n\n"+
			"/status — остаток бесплатных лимитов и статус подписки.\n\n"+
			"/subscription — твоя подписка.\n\n"+
			"Доступно бесплатно:\n"+
			" • %d распознаваний КБЖУ по фото\n"+
			" • %d вопросов ИИ нутрициологу\n\n"+
			"Помни: советы носят информационный характер и не заменяют консультацию врача.",
		b.cfg.Subscription.FreePhotoLimit, b.cfg.Subscription.FreeQuestionLimit,
	)
	return text(welcome), nil
}

// HandleHelp returns the static command reference.
func (b *BotFacade) HandleHelp() Reply {
	return text(
		"🤖 ИИ Нутрициолог - твой помощник по питанию\n\n" +
			"Список команд:\n" +
			"/start - Начать работу с ботом\n" +
			"/help - Показать это сообщение\n" +
			"/today - Список блюд за сегодня\n" +
			"/status - Лимиты и статус подписки\n" +
			"/subscription - Оформить или настроить подписку\n\n" +
			"Также вы можете:\n" +
			"- Отправить фотографию блюда для анализа\n" +
			"- Задать вопрос о питании, диетах или здоровом образе жизни\n\n" +
			"Если у вас возникли проблемы, пожалуйста, напишите /start, чтобы перезапустить бота.",
	)
}

// HandleSubscriptionMenu either shows the active subscription or starts a new
// checkout: it creates the gateway payment up front so the reply can carry the
// confirmation link.
func (b *BotFacade) HandleSubscriptionMenu(ctx context.Context, tgID int64, username string) (Reply, error) {
	user, err := b.Users.RegisterOrFetch(ctx, tgID, username)
	if err != nil {
		return Reply{}, fmt.Errorf("register user: %w", err)
	}

	if active, err := b.Subs.ActiveSubscription(ctx, user.ID); err == nil {
		renewal := "выключено"
		if active.AutoRenewal {
			renewal = "включено"
		}
		return Reply{
			Text: fmt.Sprintf(
				"✅ У вас есть активная подписка до %s\n\n"+
					"Вы можете использовать все функции без ограничений!\n\n"+
					"Автопродление: %s",
				active.EndDate.Format(dateLayout), renewal,
			),
			Rows: [][]adapter.InlineButton{
				{{Text: "🔄 Автопродление вкл/выкл", Data: "toggle_auto_renewal"}},
				{{Text: "❌ Отменить подписку", Data: "cancel_subscription"}},
			},
		}, nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return Reply{}, err
	}

	snap, err := b.Ent.Snapshot(ctx, user.ID)
	if err != nil {
		return Reply{}, err
	}
	remainingPhotos := max(0, snap.PhotosLimit-snap.PhotosUsed)
	remainingQuestions := max(0, snap.QuestionsLimit-snap.QuestionsUsed)

	// The button label depends on whether this user ever paid before.
	firstBtn := "💳 Подписаться"
	if _, err := b.Subs.LatestSubscription(ctx, user.ID); err == nil {
		firstBtn = "💳 Возобновить подписку"
	}

	sub, confirmURL, err := b.Subs.InitiatePayment(ctx, user.ID, tgID)
	if err != nil {
		b.log.Error().Err(err).Int64("telegram_id", tgID).Msg("checkout failed")
		return text("😔 Не удалось создать платеж. Попробуйте позже или обратитесь в поддержку."), nil
	}

	return Reply{
		Text: fmt.Sprintf(
			"💳 Подписка ИИ Нутрициолог\n\n"+
				"Бесплатные лимиты: %d распознаваний КБЖУ по фото / %d вопросов ИИ нутрициологу\n"+
				"Стоимость: %d ₽ на %d дней\n\n"+
				"После оплаты вы получите:\n"+
				"✅ Безлимитный анализ фото\n"+
				"✅ Безлимитные вопросы\n\n"+
				"Нажмите кнопку ниже для перехода к оплате:",
			remainingPhotos, remainingQuestions,
			b.cfg.Subscription.PriceKopecks/100, b.cfg.Subscription.DurationDays,
		),
		Rows: [][]adapter.InlineButton{
			{{Text: firstBtn, URL: confirmURL}},
			{{Text: "✅ Я оплатил", Data: "check_payment_" + sub.PaymentID}},
			{{Text: "❌ Отменить", Data: "cancel_payment_" + sub.PaymentID}},
		},
	}, nil
}

// HandleCheckPayment polls the gateway for the "I paid" button.
func (b *BotFacade) HandleCheckPayment(ctx context.Context, paymentID string) (Reply, error) {
	sub, _, err := b.Subs.CheckPayment(ctx, paymentID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return text("⚠️ Платеж не найден. Оформите подписку заново через /subscription."), nil
		}
		return Reply{}, err
	}

	switch {
	case sub.IsActive(time.Now()):
		return text(fmt.Sprintf(
			"✅ Подписка активирована!\n\n"+
				"Срок действия: до %s\n"+
				"Теперь вы можете пользоваться всеми функциями без ограничений!\n\n"+
				"Спасибо за поддержку проекта! 🙏",
			sub.EndDate.Format(dateLayout),
		)), nil
	case sub.Status == model.SubscriptionStatusPending:
		return text("⏳ Платеж еще обрабатывается. Попробуйте проверить через минуту."), nil
	default:
		return text("❌ Платеж не прошел. Попробуйте оплатить заново."), nil
	}
}

// HandleCancelPayment cancels a pending checkout.
func (b *BotFacade) HandleCancelPayment(ctx context.Context, paymentID string) (Reply, error) {
	if _, err := b.Subs.CancelPendingPayment(ctx, paymentID); err != nil {
		if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrNotPending) {
			return text("⚠️ Не удалось отменить оплату или подписка уже обработана."), nil
		}
		return Reply{}, err
	}
	return text("❌ Оплата отменена. Подписка не активирована."), nil
}

// HandleToggleAutoRenewal flips auto-renewal on the active subscription.
func (b *BotFacade) HandleToggleAutoRenewal(ctx context.Context, tgID int64) (Reply, error) {
	user, err := b.Users.GetByTelegramID(ctx, tgID)
	if err != nil {
		return text("⚠️ Пользователь не найден. Используйте /start."), nil
	}
	enabled, err := b.Subs.ToggleAutoRenewal(ctx, user.ID)
	if err != nil {
		if errors.Is(err, domain.ErrNoActiveSubscription) {
			return text("⚠️ У вас нет активной подписки"), nil
		}
		return Reply{}, err
	}
	active, err := b.Subs.ActiveSubscription(ctx, user.ID)
	if err != nil {
		return Reply{}, err
	}

	state := "выключено"
	if enabled {
		state = "включено"
	}
	return Reply{
		Text: fmt.Sprintf(
			"✅ Автопродление %s!\n\n"+
				"Ваша подписка действует до %s\n\n"+
				"Вы можете изменить настройки в любое время через /subscription",
			state, active.EndDate.Format(dateLayout),
		),
		Rows: [][]adapter.InlineButton{
			{{Text: "🔙 Вернуться", Data: "back_to_subscription"}},
		},
	}, nil
}

// HandleCancelSubscription asks for confirmation before ending a paid period.
func (b *BotFacade) HandleCancelSubscription() Reply {
	return Reply{
		Text: "❓ Вы уверены, что хотите отменить подписку?\n\n" +
			"Доступ к функциям подписки прекратится сразу после отмены.",
		Rows: [][]adapter.InlineButton{
			{{Text: "✅ Да, отменить", Data: "confirm_cancel_subscription"}},
			{{Text: "❌ Нет, оставить", Data: "back_to_subscription"}},
		},
	}
}

// HandleConfirmCancelSubscription cancels the active subscription. The row
// goes to canceled, so access ends right away.
func (b *BotFacade) HandleConfirmCancelSubscription(ctx context.Context, tgID int64) (Reply, error) {
	user, err := b.Users.GetByTelegramID(ctx, tgID)
	if err != nil {
		return text("⚠️ Пользователь не найден. Используйте /start."), nil
	}
	canceled, err := b.Subs.CancelSubscription(ctx, user.ID)
	if err != nil {
		if errors.Is(err, domain.ErrNoActiveSubscription) {
			return text("⚠️ У вас нет активной подписки"), nil
		}
		return Reply{}, err
	}
	return text(fmt.Sprintf(
		"✅ Подписка отменена\n\n"+
			"Оплаченный период действовал до %s\n\n"+
			"Спасибо, что были с нами! 🙏\n\n"+
			"Вы всегда можете возобновить подписку через /subscription",
		canceled.EndDate.Format(dateLayout),
	)), nil
}

// HandleCancelRenewal cancels a pending renewal charge from the notification
// button and stops further automatic attempts.
func (b *BotFacade) HandleCancelRenewal(ctx context.Context, paymentID string) (Reply, error) {
	if err := b.Subs.CancelRenewal(ctx, paymentID); err != nil {
		if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrNotPending) {
			return text("⚠️ Не удалось отменить продление"), nil
		}
		return Reply{}, err
	}
	return text(
		"✅ Автопродление отменено\n\n" +
			"Вы можете продлить подписку вручную через /subscription",
	), nil
}

// HandleStatus reports the subscription state and the remaining free quota.
func (b *BotFacade) HandleStatus(ctx context.Context, tgID int64) (Reply, error) {
	user, err := b.Users.GetByTelegramID(ctx, tgID)
	if err != nil {
		return text("⚠️ Пользователь не найден. Используйте /start."), nil
	}
	snap, err := b.Ent.Snapshot(ctx, user.ID)
	if err != nil {
		return Reply{}, err
	}

	if snap.Subscription != nil {
		renewal := "выключено"
		if snap.Subscription.AutoRenewal {
			renewal = "включено"
		}
		return text(fmt.Sprintf(
			"✅ Подписка активна до %s\n"+
				"Автопродление: %s\n\n"+
				"Анализ фото и вопросы без ограничений.",
			snap.Subscription.EndDate.Format(dateLayout), renewal,
		)), nil
	}

	return Reply{
		Text: fmt.Sprintf(
			"📋 Бесплатный тариф\n\n"+
				"Осталось: %d распознаваний КБЖУ по фото / %d вопросов ИИ нутрициологу\n\n"+
				"Оформите подписку, чтобы снять ограничения.",
			max(0, snap.PhotosLimit-snap.PhotosUsed),
			max(0, snap.QuestionsLimit-snap.QuestionsUsed),
		),
		Rows: [][]adapter.InlineButton{
			{{Text: "💳 Оформить подписку", Data: "subscribe"}},
		},
	}, nil
}

// HandleToday lists today's analyzed meals with the calorie total.
func (b *BotFacade) HandleToday(ctx context.Context, tgID int64) (Reply, error) {
	user, err := b.Users.GetByTelegramID(ctx, tgID)
	if err != nil {
		return text("⚠️ Пользователь не найден. Используйте /start."), nil
	}
	meals, total, err := b.Analysis.TodaySummary(ctx, user.ID)
	if err != nil {
		return Reply{}, err
	}
	if len(meals) == 0 {
		return text("За сегодня ещё нет записей о приёмах пищи."), nil
	}

	var sb strings.Builder
	sb.WriteString("📋 Список блюд за сегодня:\n\n")
	for i, m := range meals {
		sb.WriteString(fmt.Sprintf("%d. %s — %d ккал (%s)\n", i+1, mealTitle(m.Description), m.Calories, m.CreatedAt.Local().Format("15:04")))
	}
	sb.WriteString(fmt.Sprintf("\nИтого: %d ккал", total))
	return text(sb.String()), nil
}

// HandlePhoto runs one food photo through the gate and the model.
func (b *BotFacade) HandlePhoto(ctx context.Context, tgID int64, username, photoURL string) (Reply, error) {
	user, err := b.Users.RegisterOrFetch(ctx, tgID, username)
	if err != nil {
		return Reply{}, fmt.Errorf("register user: %w", err)
	}
	answer, err := b.Analysis.AnalyzeFoodPhoto(ctx, user.ID, photoURL)
	if err != nil {
		if errors.Is(err, domain.ErrUsageLimitReached) {
			return b.limitReply(fmt.Sprintf(
				"❌ Вы исчерпали лимит бесплатных анализов фото (%d шт.)\n\n"+
					"Для продолжения оформите подписку за %d руб./месяц",
				b.cfg.Subscription.FreePhotoLimit, b.cfg.Subscription.PriceKopecks/100,
			)), nil
		}
		b.log.Error().Err(err).Int64("telegram_id", tgID).Msg("photo analysis failed")
		return text("😔 Не удалось проанализировать фото. Попробуйте позже."), nil
	}
	return text(answer), nil
}

// HandleQuestion answers a free-form nutrition question under the quota.
func (b *BotFacade) HandleQuestion(ctx context.Context, tgID int64, username, question string) (Reply, error) {
	user, err := b.Users.RegisterOrFetch(ctx, tgID, username)
	if err != nil {
		return Reply{}, fmt.Errorf("register user: %w", err)
	}
	answer, err := b.Analysis.AnswerQuestion(ctx, user.ID, question)
	if err != nil {
		if errors.Is(err, domain.ErrUsageLimitReached) {
			return b.limitReply(fmt.Sprintf(
				"❌ Вы исчерпали лимит бесплатных вопросов (%d шт.)\n\n"+
					"Для продолжения оформите подписку за %d руб./месяц",
				b.cfg.Subscription.FreeQuestionLimit, b.cfg.Subscription.PriceKopecks/100,
			)), nil
		}
		b.log.Error().Err(err).Int64("telegram_id", tgID).Msg("question failed")
		return text("😔 Не удалось получить ответ. Попробуйте позже."), nil
	}
	return text(answer), nil
}

func (b *BotFacade) limitReply(msg string) Reply {
	return Reply{
		Text: msg,
		Rows: [][]adapter.InlineButton{
			{{Text: "💳 Оформить подписку", Data: "subscribe"}},
		},
	}
}

// mealTitle shortens a full analysis text to its first line for list views.
func mealTitle(description string) string {
	line := description
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return "Блюдо"
	}
	const maxLen = 60
	if len([]rune(line)) > maxLen {
		return string([]rune(line)[:maxLen]) + "…"
	}
	return line
}
