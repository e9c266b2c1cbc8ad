package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"zone_bot/internal/models"
	"zone_bot/pkg/logger"
)

type Notifier interface {
	Send(msg string)
	Sendf(format string, args ...any)
	Confirm(ctx context.Context, prompt string, timeout time.Duration) bool
}

// InstrumentStatus — снимок инструмента для /positions.
type InstrumentStatus struct {
	Symbol    string
	LastPrice float64
	RSI       float64
	HasRSI    bool
	Long      []models.PositionLeg
	Short     []models.PositionLeg
	ProfitPct float64
}

type StatusSource interface {
	Status() []InstrumentStatus
	SessionProfit() float64
}

// Telegram — алерты оператору, подтверждение входов и команда /positions.
type Telegram struct {
	bot    *tgbot.BotAPI
	chatID int64

	mu       sync.Mutex
	pendings map[string]*pending
}

type pending struct {
	ch     chan bool
	msgID  int
	prompt string
}

func NewTelegram(token string, chatID int64) (*Telegram, error) {
	b, err := tgbot.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return &Telegram{
		bot:      b,
		chatID:   chatID,
		pendings: make(map[string]*pending),
	}, nil
}

func (t *Telegram) Send(msg string) {
	if t == nil || t.bot == nil || t.chatID == 0 {
		return
	}
	if _, err := t.bot.Send(tgbot.NewMessage(t.chatID, msg)); err != nil {
		logger.Error("[NOTIFY] telegram send: %v", err)
	}
}

func (t *Telegram) Sendf(format string, args ...any) { t.Send(fmt.Sprintf(format, args...)) }

// HandleCallback должен вызываться из Start() для callback_query.
func (t *Telegram) HandleCallback(cb *tgbot.CallbackQuery) {
	if t == nil || t.bot == nil || cb == nil {
		return
	}

	// ответ Telegram для остановки спиннера
	_, _ = t.bot.Request(tgbot.NewCallback(cb.ID, ""))

	verb, token, ok := strings.Cut(cb.Data, "::") // CONF::token / REJ::token
	if !ok || verb == "" || token == "" {
		return
	}

	t.mu.Lock()
	p, ok := t.pendings[token]
	if ok {
		delete(t.pendings, token)
	}
	t.mu.Unlock()
	if !ok {
		return
	}

	accepted := verb == "CONF"
	p.ch <- accepted

	status, emoji := "Отклонено", "❌"
	if accepted {
		status, emoji = "Подтверждено", "✅"
	}
	t.finish(p, fmt.Sprintf("%s %s", emoji, status))
}

func (t *Telegram) finish(p *pending, suffix string) {
	rm := tgbot.InlineKeyboardMarkup{InlineKeyboard: [][]tgbot.InlineKeyboardButton{}}
	_, _ = t.bot.Request(tgbot.NewEditMessageReplyMarkup(t.chatID, p.msgID, rm))
	_, _ = t.bot.Request(tgbot.NewEditMessageText(t.chatID, p.msgID, fmt.Sprintf("%s\n\n%s", p.prompt, suffix)))
}

// Confirm — сообщение с кнопками и ожиданием callback. Таймаут = отказ.
func (t *Telegram) Confirm(ctx context.Context, prompt string, timeout time.Duration) bool {
	if t == nil || t.bot == nil || t.chatID == 0 {
		return true
	}

	token := fmt.Sprintf("%d", time.Now().UnixNano())
	p := &pending{
		ch:     make(chan bool, 1),
		prompt: prompt,
	}

	btnYes := tgbot.NewInlineKeyboardButtonData("✅ Войти", "CONF::"+token)
	btnNo := tgbot.NewInlineKeyboardButtonData("❌ Пропустить", "REJ::"+token)
	msg := tgbot.NewMessage(t.chatID, prompt)
	msg.ReplyMarkup = tgbot.NewInlineKeyboardMarkup(tgbot.NewInlineKeyboardRow(btnYes, btnNo))

	sent, err := t.bot.Send(msg)
	if err != nil {
		logger.Error("[NOTIFY] confirm send: %v", err)
		return false
	}
	p.msgID = sent.MessageID

	t.mu.Lock()
	t.pendings[token] = p
	t.mu.Unlock()

	tmr := time.NewTimer(timeout)
	defer tmr.Stop()

	var suffix string
	select {
	case ok := <-p.ch:
		return ok
	case <-tmr.C:
		suffix = "⏳ Таймаут"
	case <-ctx.Done():
		suffix = "⛔️ Отменено"
	}

	t.mu.Lock()
	_, still := t.pendings[token]
	delete(t.pendings, token)
	t.mu.Unlock()
	if !still {
		// callback успел прийти одновременно с таймаутом
		return <-p.ch
	}
	t.finish(p, suffix)
	return false
}

// Start: long-polling для messages + callback_query.
func (t *Telegram) Start(ctx context.Context, src StatusSource) {
	if t == nil || t.bot == nil {
		return
	}

	u := tgbot.NewUpdate(0)
	u.Timeout = 30
	u.AllowedUpdates = []string{"message", "callback_query"}

	updates := t.bot.GetUpdatesChan(u)
	go func() {
		for {
			select {
			case <-ctx.Done():
				t.bot.StopReceivingUpdates()
				return
			case upd := <-updates:
				if upd.CallbackQuery != nil {
					t.HandleCallback(upd.CallbackQuery)
				}
				if upd.Message != nil && upd.Message.Chat != nil &&
					upd.Message.Chat.ID == t.chatID && upd.Message.IsCommand() {

					switch upd.Message.Command() {
					case "positions", "status":
						t.Send(FormatStatus(src))
					}
				}
			}
		}
	}()
}

// FormatStatus — текст для /positions.
func FormatStatus(src StatusSource) string {
	if src == nil {
		return "❗️ Раннер не запущен"
	}
	list := src.Status()

	var b strings.Builder
	fmt.Fprintf(&b, "📊 Сессия: %+.2f%%\n", src.SessionProfit())
	if len(list) == 0 {
		b.WriteString("📭 Инструментов нет")
		return b.String()
	}
	for _, s := range list {
		rsi := "—"
		if s.HasRSI {
			rsi = fmt.Sprintf("%.1f", s.RSI)
		}
		fmt.Fprintf(&b, "- %s @ %.4f RSI=%s long=%d short=%d pnl=%+.2f%%\n",
			s.Symbol, s.LastPrice, rsi, len(s.Long), len(s.Short), s.ProfitPct)
	}
	return b.String()
}

// Stdout — заглушка без Telegram: всё в лог, подтверждает автоматически.
type Stdout struct{}

func NewStdout() *Stdout                           { return &Stdout{} }
func (s *Stdout) Send(msg string)                  { logger.Info("[NOTIFY] %s", msg) }
func (s *Stdout) Sendf(format string, args ...any) { s.Send(fmt.Sprintf(format, args...)) }
func (s *Stdout) Confirm(_ context.Context, prompt string, _ time.Duration) bool {
	logger.Info("[NOTIFY] confirm (auto-yes): %s", prompt)
	return true
}
