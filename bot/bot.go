// Package bot is the Telegram front end. Users send a date and get back a
// preview of the rate table plus the CSV file, or the failure reason and the
// end of the run log.
package bot

import (
	"context"
	"fmt"
	"html"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"bkam-rates/config"
	"bkam-rates/db"
	"bkam-rates/logger"
	"bkam-rates/models"
	"bkam-rates/source"
)

// Sender is the part of *tgbotapi.BotAPI the bot uses
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Runner runs the pipeline for one date
type Runner interface {
	Run(ctx context.Context, date time.Time) (*models.Result, error)
}

// Enqueuer stores requests for the scheduler
type Enqueuer interface {
	CreateRequest(ctx context.Context, chatID, userID int64, telegramMessageID int, date time.Time) (*db.Request, error)
}

// Bot handles Telegram updates
type Bot struct {
	sender  Sender
	runner  Runner
	queue   Enqueuer
	cfg     config.TelegramConfig
	logFile string
	now     func() time.Time
	log     *zap.Logger

	// one inline pipeline run at a time
	runMu sync.Mutex
}

// Option customizes a Bot
type Option func(*Bot)

// WithQueue makes the bot queue requests instead of running them inline
func WithQueue(q Enqueuer) Option {
	return func(b *Bot) {
		b.queue = q
	}
}

// WithClock overrides the clock used by /today
func WithClock(now func() time.Time) Option {
	return func(b *Bot) {
		b.now = now
	}
}

// New creates a bot. logFile is the run log shown to users on failure.
func New(sender Sender, runner Runner, cfg config.TelegramConfig, logFile string, log *zap.Logger, opts ...Option) *Bot {
	if log == nil {
		log = zap.NewNop()
	}
	b := &Bot{
		sender:  sender,
		runner:  runner,
		cfg:     cfg,
		logFile: logFile,
		now:     time.Now,
		log:     log,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Listen handles updates until ctx is done or the channel closes. Each
// update is handled on its own goroutine; Listen waits for them on return.
func (b *Bot) Listen(ctx context.Context, updates tgbotapi.UpdatesChannel) {
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				b.HandleUpdate(ctx, update)
			}()
		}
	}
}

// HandleUpdate dispatches a single update
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}
	b.HandleMessage(ctx, update.Message)
}

// HandleMessage answers one incoming message
func (b *Bot) HandleMessage(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	userID := msg.From.ID

	if !b.cfg.IsAllowedUser(userID) {
		b.log.Sugar().Warnf("Unauthorized user attempted to use bot: %d", userID)
		b.reply(chatID, 0, "Sorry, you are not authorized to use this bot.")
		return
	}

	if msg.IsCommand() {
		switch msg.Command() {
		case "start":
			b.reply(chatID, 0, welcomeText)
		case "help":
			b.reply(chatID, 0, helpText)
		case "log":
			b.sendLogTail(chatID, msg.MessageID)
		case "today":
			b.request(ctx, msg, b.today())
		case "fetch":
			arg := strings.TrimSpace(msg.CommandArguments())
			if arg == "" {
				b.reply(chatID, msg.MessageID, "Usage: /fetch dd/mm/yyyy")
				return
			}
			b.requestString(ctx, msg, arg)
		default:
			b.reply(chatID, msg.MessageID, "Unknown command. Use /help for available commands.")
		}
		return
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		b.reply(chatID, msg.MessageID, "Please send me a date such as 16/01/2024.")
		return
	}
	b.requestString(ctx, msg, text)
}

func (b *Bot) today() time.Time {
	now := b.now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
}

func (b *Bot) requestString(ctx context.Context, msg *tgbotapi.Message, s string) {
	date, err := source.ParseDate(s)
	if err != nil {
		b.reply(msg.Chat.ID, msg.MessageID, fmt.Sprintf("Please send a valid date (dd/mm/yyyy or yyyy-mm-dd), got %s.", html.EscapeString(strconv.Quote(s))))
		return
	}
	b.request(ctx, msg, date)
}

// request queues the date when a queue is configured, else runs it now
func (b *Bot) request(ctx context.Context, msg *tgbotapi.Message, date time.Time) {
	chatID := msg.Chat.ID
	day := date.Format(source.SiteDateLayout)

	if b.queue != nil {
		sent, err := b.send(newHTMLMessage(chatID, msg.MessageID,
			fmt.Sprintf("📝 Request for %s received! It has been queued and will be processed shortly.", day)))
		if err != nil {
			return
		}
		req, err := b.queue.CreateRequest(ctx, chatID, msg.From.ID, sent.MessageID, date)
		if err != nil {
			b.log.Sugar().Errorf("Error creating request: %v", err)
			b.reply(chatID, msg.MessageID, "❌ Error: Failed to queue request: "+html.EscapeString(err.Error()))
			return
		}
		b.log.Sugar().Infof("Created request ID %d for user %d", req.ID, msg.From.ID)
		return
	}

	b.reply(chatID, msg.MessageID, fmt.Sprintf("🔄 Fetching reference rates for %s...", day))

	b.runMu.Lock()
	result, err := b.runner.Run(ctx, date)
	b.runMu.Unlock()

	if result == nil {
		result = &models.Result{Date: date, Err: err}
	}
	b.sendResult(chatID, msg.MessageID, result)
}

// NotifyStarted tells the requester a queued request is being processed
func (b *Bot) NotifyStarted(req *db.Request) {
	b.reply(req.ChatID, req.TelegramMessageID,
		fmt.Sprintf("🔄 Fetching reference rates for %s...", req.RateDate.Format(source.SiteDateLayout)))
}

// NotifyResult sends the outcome of a queued request
func (b *Bot) NotifyResult(req *db.Request, result *models.Result) {
	b.sendResult(req.ChatID, req.TelegramMessageID, result)
}

// sendResult sends the preview and the CSV on success, the failure notice and
// the log tail otherwise
func (b *Bot) sendResult(chatID int64, replyTo int, result *models.Result) {
	if result.Err != nil || result.Empty() {
		b.reply(chatID, replyTo, formatFailure(result))
		b.sendLogTail(chatID, replyTo)
		return
	}

	b.reply(chatID, replyTo, formatSuccess(result))
	for _, block := range preBlocks(formatPreview(result.Table)) {
		b.reply(chatID, 0, block)
	}

	if result.OutputPath != "" {
		doc := tgbotapi.NewDocument(chatID, tgbotapi.FilePath(result.OutputPath))
		doc.Caption = filepath.Base(result.OutputPath)
		if _, err := b.sender.Send(doc); err != nil {
			b.log.Sugar().Errorf("Error sending CSV file: %v", err)
		}
	}
}

func (b *Bot) sendLogTail(chatID int64, replyTo int) {
	tail, err := logger.Tail(b.logFile, b.cfg.LogTailLines)
	if err != nil {
		b.reply(chatID, replyTo, "Could not read the log file: "+html.EscapeString(err.Error()))
		return
	}
	blocks := preBlocks(tail)
	if len(blocks) == 0 {
		b.reply(chatID, replyTo, "The log file is empty.")
		return
	}
	for _, block := range blocks {
		b.reply(chatID, replyTo, block)
	}
}

func newHTMLMessage(chatID int64, replyTo int, text string) tgbotapi.MessageConfig {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyToMessageID = replyTo
	msg.ParseMode = tgbotapi.ModeHTML
	return msg
}

func (b *Bot) reply(chatID int64, replyTo int, text string) {
	_, _ = b.send(newHTMLMessage(chatID, replyTo, text))
}

func (b *Bot) send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	sent, err := b.sender.Send(c)
	if err != nil {
		b.log.Sugar().Errorf("Error sending message: %v", err)
	}
	return sent, err
}
