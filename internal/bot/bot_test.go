package bot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"gorm.io/gorm"

	"flowstate/internal/auth"
	"flowstate/internal/model"
	"flowstate/internal/repository"
	"flowstate/internal/service"
)

var fixedNow = time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC)

type fakeSender struct {
	mu      sync.Mutex
	sent    []tgbotapi.MessageConfig
	failFor map[int64]bool
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg, ok := c.(tgbotapi.MessageConfig)
	if !ok {
		return tgbotapi.Message{}, errors.New("unexpected chattable")
	}
	if f.failFor[msg.ChatID] {
		return tgbotapi.Message{}, errors.New("telegram unavailable")
	}
	f.sent = append(f.sent, msg)
	return tgbotapi.Message{}, nil
}

func (f *fakeSender) last(t *testing.T) tgbotapi.MessageConfig {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		t.Fatal("nothing sent")
	}
	return f.sent[len(f.sent)-1]
}

type fixture struct {
	bot    *Bot
	sender *fakeSender
	users  *repository.UserRepository
	tables *repository.Registry
	auth   *auth.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	name := strings.ReplaceAll(t.Name(), "/", "_")
	db, err := repository.NewDB("sqlite", "file:bot_"+name+"?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	clock := func() time.Time { return fixedNow }
	users := repository.NewUserRepository(db)
	tables := repository.NewRegistry(db, clock)
	authSvc := auth.NewService(users, "bot-secret", time.Hour, nil)
	sender := &fakeSender{failFor: map[int64]bool{}}
	return &fixture{
		bot:    newBot(sender, users, authSvc, service.NewDigestService(tables), clock),
		sender: sender,
		users:  users,
		tables: tables,
		auth:   authSvc,
	}
}

func (f *fixture) addUser(t *testing.T, id string) {
	t.Helper()
	if err := f.users.Create(context.Background(), &model.User{ID: id, Email: id + "@example.com", PasswordHash: "x"}); err != nil {
		t.Fatalf("create user: %v", err)
	}
}

func command(chatID int64, text string) *tgbotapi.Message {
	name := strings.SplitN(text, " ", 2)[0]
	return &tgbotapi.Message{
		Text:     text,
		Chat:     &tgbotapi.Chat{ID: chatID, Type: "private"},
		From:     &tgbotapi.User{ID: chatID},
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(name)}},
	}
}

func TestLinkReportUnlink(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addUser(t, "u1")
	if _, err := f.tables.Tasks.Create(ctx, "u1", &model.Task{Title: "Pay <rent>"}); err != nil {
		t.Fatal(err)
	}

	code, _, err := f.auth.IssueLinkCode("u1")
	if err != nil {
		t.Fatal(err)
	}
	if err := f.bot.handleMessage(ctx, command(42, "/start "+code)); err != nil {
		t.Fatalf("/start: %v", err)
	}
	if got := f.sender.last(t).Text; !strings.Contains(got, "Chat linked") {
		t.Errorf("/start reply = %q", got)
	}
	user, err := f.users.FindByTelegramChat(ctx, 42)
	if err != nil || user.ID != "u1" {
		t.Fatalf("linked user = %v, %v", user, err)
	}

	if err := f.bot.handleMessage(ctx, command(42, "/report")); err != nil {
		t.Fatalf("/report: %v", err)
	}
	report := f.sender.last(t)
	if report.ParseMode != tgbotapi.ModeHTML || !strings.Contains(report.Text, "Daily report") || !strings.Contains(report.Text, "Pay &lt;rent&gt;") {
		t.Errorf("report = %q", report.Text)
	}

	if err := f.bot.handleMessage(ctx, command(42, "/stop")); err != nil {
		t.Fatalf("/stop: %v", err)
	}
	if _, err := f.users.FindByTelegramChat(ctx, 42); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Errorf("chat still linked: %v", err)
	}
}

func TestLinkCodeWorksOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addUser(t, "u1")
	code, _, err := f.auth.IssueLinkCode("u1")
	if err != nil {
		t.Fatal(err)
	}

	if err := f.bot.handleMessage(ctx, command(42, "/start "+code)); err != nil {
		t.Fatalf("/start: %v", err)
	}
	if err := f.bot.handleMessage(ctx, command(99, "/start "+code)); err != nil {
		t.Fatalf("second /start: %v", err)
	}
	if got := f.sender.last(t).Text; !strings.Contains(got, "invalid or expired") {
		t.Errorf("second /start reply = %q", got)
	}
	if _, err := f.users.FindByTelegramChat(ctx, 99); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Errorf("reused code linked another chat: %v", err)
	}
	user, err := f.users.FindByTelegramChat(ctx, 42)
	if err != nil || user.ID != "u1" {
		t.Errorf("first chat = %v, %v", user, err)
	}
}

func TestStartReplies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addUser(t, "u1")
	ghost, _, err := f.auth.IssueLinkCode("ghost")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		text string
		want string
	}{
		{"no code", "/start", "Request a link code"},
		{"bad code", "/start not-a-code", "invalid or expired"},
		{"deleted user", "/start " + ghost, "no longer exists"},
		{"unknown command", "/tasks", "Unknown command"},
		{"help", "/help", "/report"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := f.bot.handleMessage(ctx, command(7, tt.text)); err != nil {
				t.Fatal(err)
			}
			if got := f.sender.last(t).Text; !strings.Contains(got, tt.want) {
				t.Errorf("reply = %q, want it to mention %q", got, tt.want)
			}
		})
	}
	if _, err := f.users.FindByTelegramChat(ctx, 7); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Errorf("chat linked by a failed /start: %v", err)
	}
}

func TestUnlinkedChat(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, text := range []string{"/report", "/stop"} {
		if err := f.bot.handleMessage(ctx, command(9, text)); err != nil {
			t.Fatalf("%s: %v", text, err)
		}
		if got := f.sender.last(t).Text; !strings.Contains(got, "not linked") {
			t.Errorf("%s reply = %q", text, got)
		}
	}

	plain := command(9, "hello")
	plain.Entities = nil
	if err := f.bot.handleMessage(ctx, plain); err != nil {
		t.Fatal(err)
	}
	if got := f.sender.last(t).Text; !strings.Contains(got, "/help") {
		t.Errorf("plain text reply = %q", got)
	}
}

func TestSendDailyReports(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		f.addUser(t, id)
	}
	chatA, chatB := int64(100), int64(200)
	if err := f.users.SetTelegramChat(ctx, "a", &chatA); err != nil {
		t.Fatal(err)
	}
	if err := f.users.SetTelegramChat(ctx, "b", &chatB); err != nil {
		t.Fatal(err)
	}
	f.sender.failFor[chatA] = true

	if err := f.bot.SendDailyReports(ctx); err != nil {
		t.Fatalf("SendDailyReports: %v", err)
	}
	if len(f.sender.sent) != 1 || f.sender.sent[0].ChatID != chatB {
		t.Fatalf("sent = %+v", f.sender.sent)
	}
	if !strings.Contains(f.sender.sent[0].Text, "Daily report") {
		t.Errorf("report = %q", f.sender.sent[0].Text)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if err := f.bot.SendDailyReports(cancelled); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled run err = %v", err)
	}
}
