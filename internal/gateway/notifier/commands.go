package notifier

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"breakbot/internal/logger"

	"github.com/tidwall/gjson"
)

// CommandListener long-polls Telegram getUpdates and dispatches the small
// fixed command set. It is purely advisory: losing it never affects the
// trading loop.
type CommandListener struct {
	bot         *Telegram
	pollTimeout time.Duration

	mu       sync.RWMutex
	handlers map[string]CommandHandler
	offset   int64
}

func NewCommandListener(bot *Telegram, pollTimeout time.Duration) *CommandListener {
	if pollTimeout <= 0 {
		pollTimeout = 30 * time.Second
	}
	return &CommandListener{
		bot:         bot,
		pollTimeout: pollTimeout,
		handlers:    map[string]CommandHandler{},
	}
}

// Register binds a command like "/status" to a handler.
func (l *CommandListener) Register(command string, handler CommandHandler) {
	command = strings.ToLower(strings.TrimSpace(command))
	if command == "" || handler == nil {
		return
	}
	l.mu.Lock()
	l.handlers[command] = handler
	l.mu.Unlock()
}

// HelpText lists the registered commands, one per line.
func (l *CommandListener) HelpText() string {
	l.mu.RLock()
	commands := make([]string, 0, len(l.handlers))
	for cmd := range l.handlers {
		commands = append(commands, cmd)
	}
	l.mu.RUnlock()
	sort.Strings(commands)
	return "可用命令:\n" + strings.Join(commands, "\n")
}

// Run blocks until ctx is done. Poll failures are logged and retried with
// backoff; they never propagate.
func (l *CommandListener) Run(ctx context.Context) {
	logger.Infof("telegram: command listener started, poll timeout=%s", l.pollTimeout)
	delay := time.Second
	for {
		if ctx.Err() != nil {
			logger.Infof("telegram: command listener stopped")
			return
		}
		updates, err := l.fetchUpdates(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warnf("telegram: getUpdates failed: %v", err)
			if !sleepWithCtx(ctx, delay) {
				return
			}
			delay = doubleCapped(delay)
			continue
		}
		delay = time.Second
		for _, u := range updates {
			l.dispatch(u)
		}
	}
}

func (l *CommandListener) fetchUpdates(ctx context.Context) ([]gjson.Result, error) {
	url := fmt.Sprintf("%s/bot%s/getUpdates?timeout=%d&offset=%d",
		l.bot.APIBase, l.bot.BotToken, int(l.pollTimeout.Seconds()), l.offset)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	client := &http.Client{Timeout: l.pollTimeout + 10*time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	body := gjson.ParseBytes(data)
	if !body.Get("ok").Bool() {
		return nil, fmt.Errorf("telegram getUpdates not ok: %s", body.Get("description").String())
	}
	results := body.Get("result").Array()
	for _, u := range results {
		if id := u.Get("update_id").Int(); id >= l.offset {
			l.offset = id + 1
		}
	}
	return results, nil
}

func (l *CommandListener) dispatch(update gjson.Result) {
	chatID := update.Get("message.chat.id").String()
	if chatID == "" || chatID != l.bot.ChatID {
		return
	}
	text := strings.ToLower(strings.TrimSpace(update.Get("message.text").String()))
	if !strings.HasPrefix(text, "/") {
		return
	}
	if idx := strings.IndexByte(text, '@'); idx > 0 {
		text = text[:idx]
	}

	l.mu.RLock()
	handler, ok := l.handlers[text]
	l.mu.RUnlock()

	reply := ""
	if ok {
		reply = handler()
	} else {
		reply = "未知命令 " + text + "\n" + l.HelpText()
	}
	if reply == "" {
		return
	}
	if err := l.bot.SendText(reply); err != nil {
		logger.Warnf("telegram: reply to %s failed: %v", text, err)
	}
}

func sleepWithCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func doubleCapped(d time.Duration) time.Duration {
	next := d * 2
	if next > 30*time.Second {
		next = 30 * time.Second
	}
	return next
}
