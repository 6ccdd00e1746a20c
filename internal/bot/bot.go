package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"gorm.io/gorm"

	"flowstate/internal/model"
)

// Sender is the part of the Telegram API the bot talks through.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Users finds and links account holders by Telegram chat.
type Users interface {
	FindByTelegramChat(ctx context.Context, chatID int64) (*model.User, error)
	SetTelegramChat(ctx context.Context, userID string, chatID *int64) error
	ListLinked(ctx context.Context) ([]model.User, error)
}

// Linker resolves the link codes handed out by the API. A code is revoked
// once it has linked a chat.
type Linker interface {
	ParseLinkCode(ctx context.Context, code string) (string, error)
	RevokeLinkCode(ctx context.Context, code string) error
}

// Reporter renders a user's daily report.
type Reporter interface {
	DailySummary(ctx context.Context, userID string, now time.Time) (string, error)
}

// Bot delivers daily reports to users who linked their Telegram chat.
type Bot struct {
	api     *tgbotapi.BotAPI
	sender  Sender
	users   Users
	links   Linker
	reports Reporter
	now     func() time.Time
}

func New(token string, users Users, links Linker, reports Reporter, loc *time.Location) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	log.Printf("[info] bot authorized on account %s", api.Self.UserName)

	b := newBot(api, users, links, reports, func() time.Time { return time.Now().In(loc) })
	b.api = api
	return b, nil
}

func newBot(sender Sender, users Users, links Linker, reports Reporter, now func() time.Time) *Bot {
	return &Bot{sender: sender, users: users, links: links, reports: reports, now: now}
}

// Start begins polling updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := b.api.GetUpdatesChan(updateConfig)

	log.Println("[info] start polling updates")

	go func() {
		<-ctx.Done()
		b.api.StopReceivingUpdates()
	}()

	for update := range updates {
		msg := update.Message
		if msg == nil || msg.Chat == nil || !msg.Chat.IsPrivate() {
			continue
		}
		if err := b.handleMessage(ctx, msg); err != nil {
			log.Printf("handle message: %v", err)
		}
	}

	return nil
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	if msg.From == nil {
		return nil
	}
	if !msg.IsCommand() {
		return b.sendText(msg.Chat.ID, "I only understand commands. Send /help to see them.")
	}

	log.Printf("[info] command from %d: /%s", msg.From.ID, msg.Command())
	switch msg.Command() {
	case "start":
		return b.handleStart(ctx, msg)
	case "stop":
		return b.handleStop(ctx, msg)
	case "report":
		return b.handleReport(ctx, msg)
	case "help":
		return b.sendText(msg.Chat.ID, helpText)
	default:
		return b.sendText(msg.Chat.ID, "Unknown command. Send /help to see what I can do.")
	}
}

const helpText = "ℹ️ <b>Commands</b>\n" +
	"• /start &lt;code&gt; links this chat to your account (get the code from the app)\n" +
	"• /report sends today's report now\n" +
	"• /stop unlinks this chat\n" +
	"• /help shows this message"

func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message) error {
	code := strings.TrimSpace(msg.CommandArguments())
	if code == "" {
		return b.sendText(msg.Chat.ID, "👋 Hi! I send your daily report every morning.\n\n"+
			"Request a link code in the app and send it here as <code>/start &lt;code&gt;</code>.\n\n"+helpText)
	}

	userID, err := b.links.ParseLinkCode(ctx, code)
	if err != nil {
		return b.sendText(msg.Chat.ID, "⚠️ This link code is invalid or expired. Request a new one in the app.")
	}
	chatID := msg.Chat.ID
	if err := b.users.SetTelegramChat(ctx, userID, &chatID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return b.sendText(msg.Chat.ID, "⚠️ The account for this code no longer exists.")
		}
		return err
	}
	if err := b.links.RevokeLinkCode(ctx, code); err != nil {
		log.Printf("[warn] revoke link code for user %s: %v", userID, err)
	}
	log.Printf("[info] linked chat %d to user %s", chatID, userID)
	return b.sendText(msg.Chat.ID, "✅ Chat linked. Your daily report will arrive here. Send /report to get it now.")
}

func (b *Bot) handleStop(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.linkedUser(ctx, msg.Chat.ID)
	if err != nil || user == nil {
		return err
	}
	if err := b.users.SetTelegramChat(ctx, user.ID, nil); err != nil {
		return err
	}
	log.Printf("[info] unlinked chat %d from user %s", msg.Chat.ID, user.ID)
	return b.sendText(msg.Chat.ID, "👋 Chat unlinked. Reports will no longer be sent here.")
}

func (b *Bot) handleReport(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.linkedUser(ctx, msg.Chat.ID)
	if err != nil || user == nil {
		return err
	}
	text, err := b.reports.DailySummary(ctx, user.ID, b.now())
	if err != nil {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Could not build the report: %s", html.EscapeString(err.Error())))
	}
	return b.sendText(msg.Chat.ID, text)
}

// linkedUser returns the user linked to chatID. When there is none it tells
// the chat so and returns nil.
func (b *Bot) linkedUser(ctx context.Context, chatID int64) (*model.User, error) {
	user, err := b.users.FindByTelegramChat(ctx, chatID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, b.sendText(chatID, "This chat is not linked yet. Send <code>/start &lt;code&gt;</code> with a code from the app.")
	}
	return user, err
}

// SendDailyReports sends the daily report to every linked user.
func (b *Bot) SendDailyReports(ctx context.Context) error {
	users, err := b.users.ListLinked(ctx)
	if err != nil {
		return err
	}
	now := b.now()
	sent := 0
	for _, user := range users {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if user.TelegramChatID == nil {
			continue
		}
		text, err := b.reports.DailySummary(ctx, user.ID, now)
		if err != nil {
			log.Printf("build report for user %s: %v", user.ID, err)
			continue
		}
		if err := b.sendText(*user.TelegramChatID, text); err != nil {
			log.Printf("send report to %d: %v", *user.TelegramChatID, err)
			continue
		}
		sent++
	}
	log.Printf("[info] daily reports sent: %d of %d", sent, len(users))
	return nil
}

func (b *Bot) sendText(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	_, err := b.sender.Send(msg)
	return err
}
