package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"imaginova-studio/internal/media"
)

const maxAlbum = 10

// Photo is one captioned image of an album.
type Photo struct {
	Image   media.Asset
	Caption string
}

type Options struct {
	Token      string
	HTTPClient *http.Client
	Logger     *slog.Logger
	Debug      bool
}

type Client struct {
	bot        *tgbotapi.BotAPI
	httpClient *http.Client
	logger     *slog.Logger
}

func New(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if opts.HTTPClient == nil {
		return nil, errors.New("http client is nil")
	}

	bot, err := tgbotapi.NewBotAPIWithClient(opts.Token, tgbotapi.APIEndpoint, opts.HTTPClient)
	if err != nil {
		return nil, err
	}
	bot.Debug = opts.Debug

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Client{
		bot:        bot,
		httpClient: opts.HTTPClient,
		logger:     logger,
	}, nil
}

func (c *Client) Username() string {
	return c.bot.Self.UserName
}

type (
	Update         = tgbotapi.Update
	Message        = tgbotapi.Message
	CallbackQuery  = tgbotapi.CallbackQuery
	InlineKeyboard = tgbotapi.InlineKeyboardMarkup
)

type UpdatesOptions struct {
	Timeout time.Duration
}

func (c *Client) Updates(opts UpdatesOptions) tgbotapi.UpdatesChannel {
	u := tgbotapi.NewUpdate(0)
	if opts.Timeout > 0 {
		u.Timeout = int(opts.Timeout.Seconds())
	} else {
		u.Timeout = 30
	}
	return c.bot.GetUpdatesChan(u)
}

func (c *Client) StopUpdates() {
	c.bot.StopReceivingUpdates()
}

func (c *Client) SendTyping(chatID int64) {
	_, _ = c.bot.Send(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping))
}

func (c *Client) SendText(chatID int64, text string) error {
	parts := splitByBytes(text, 4096)
	for _, p := range parts {
		msg := tgbotapi.NewMessage(chatID, p)
		if _, err := c.bot.Send(msg); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) SendTextWithKeyboard(chatID int64, text string, kb tgbotapi.InlineKeyboardMarkup) (int, error) {
	msg := tgbotapi.NewMessage(chatID, truncateByBytes(text, 4096))
	msg.ReplyMarkup = kb
	sent, err := c.bot.Send(msg)
	if err != nil {
		return 0, err
	}
	return sent.MessageID, nil
}

func (c *Client) EditTextWithKeyboard(chatID int64, messageID int, text string, kb tgbotapi.InlineKeyboardMarkup) error {
	edit := tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, truncateByBytes(text, 4096), kb)
	_, err := c.bot.Send(edit)
	if isNotModified(err) {
		return nil
	}
	return err
}

// EditText rewrites a progress message in place.
func (c *Client) EditText(chatID int64, messageID int, text string) error {
	edit := tgbotapi.NewEditMessageText(chatID, messageID, truncateByBytes(text, 4096))
	_, err := c.bot.Send(edit)
	if isNotModified(err) {
		return nil
	}
	return err
}

func (c *Client) SendTextMessage(chatID int64, text string) (int, error) {
	sent, err := c.bot.Send(tgbotapi.NewMessage(chatID, truncateByBytes(text, 4096)))
	if err != nil {
		return 0, err
	}
	return sent.MessageID, nil
}

func (c *Client) AnswerCallback(callbackID, text string, alert bool) error {
	cfg := tgbotapi.NewCallback(callbackID, text)
	cfg.ShowAlert = alert
	_, err := c.bot.Request(cfg)
	return err
}

func (c *Client) SendPhoto(chatID int64, img media.Asset, caption string) error {
	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{
		Name:  "image" + img.Extension(),
		Bytes: img.Data,
	})
	if caption != "" {
		photo.Caption = truncateByBytes(caption, 1024)
	}

	_, err := c.bot.Send(photo)
	return err
}

// SendAlbum sends up to ten captioned photos as one media group.
func (c *Client) SendAlbum(chatID int64, photos []Photo) error {
	if len(photos) == 0 {
		return nil
	}
	if len(photos) == 1 {
		return c.SendPhoto(chatID, photos[0].Image, photos[0].Caption)
	}

	for start := 0; start < len(photos); start += maxAlbum {
		end := min(start+maxAlbum, len(photos))
		files := make([]any, 0, end-start)
		for i, p := range photos[start:end] {
			item := tgbotapi.NewInputMediaPhoto(tgbotapi.FileBytes{
				Name:  fmt.Sprintf("image%d%s", start+i+1, p.Image.Extension()),
				Bytes: p.Image.Data,
			})
			item.Caption = truncateByBytes(p.Caption, 1024)
			files = append(files, item)
		}
		if _, err := c.bot.SendMediaGroup(tgbotapi.NewMediaGroup(chatID, files)); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) SendDocument(chatID int64, doc media.Asset, name, caption string) error {
	msg := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{Name: name, Bytes: doc.Data})
	if caption != "" {
		msg.Caption = truncateByBytes(caption, 1024)
	}
	_, err := c.bot.Send(msg)
	return err
}

// DownloadAsset fetches a Telegram file and sniffs its media type.
func (c *Client) DownloadAsset(ctx context.Context, fileID string) (media.Asset, error) {
	fileURL, err := c.bot.GetFileDirectURL(fileID)
	if err != nil {
		return media.Asset{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return media.Asset{}, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return media.Asset{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return media.Asset{}, fmt.Errorf("telegram file download %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return media.Asset{}, err
	}
	c.logger.Debug("telegram file downloaded", "file_id", fileID, "bytes", len(data))
	return media.FromBytes(data, resp.Header.Get("content-type"))
}

func isNotModified(err error) bool {
	return err != nil && strings.Contains(err.Error(), "message is not modified")
}

func splitByBytes(text string, maxBytes int) []string {
	if len([]byte(text)) <= maxBytes || maxBytes <= 0 {
		return []string{text}
	}

	var out []string
	var buf strings.Builder
	buf.Grow(maxBytes)

	for _, r := range text {
		runeBytes := utf8.RuneLen(r)
		if runeBytes < 0 {
			runeBytes = len([]byte(string(r)))
		}

		if buf.Len() > 0 && buf.Len()+runeBytes > maxBytes {
			out = append(out, buf.String())
			buf.Reset()
		}
		buf.WriteRune(r)
	}

	if buf.Len() > 0 {
		out = append(out, buf.String())
	}

	return out
}

func truncateByBytes(text string, maxBytes int) string {
	if len([]byte(text)) <= maxBytes || maxBytes <= 0 {
		return text
	}

	var buf strings.Builder
	buf.Grow(maxBytes)
	for _, r := range text {
		runeBytes := utf8.RuneLen(r)
		if runeBytes < 0 {
			runeBytes = len([]byte(string(r)))
		}

		if buf.Len()+runeBytes > maxBytes {
			break
		}
		buf.WriteRune(r)
	}
	return buf.String()
}
