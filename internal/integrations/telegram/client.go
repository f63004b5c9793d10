// Package telegram is a small Bot API client: long polling, messages with
// inline keyboards, callback answers and file downloads.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	defaultBaseURL  = "https://api.telegram.org"
	defaultTimeout  = 30 * time.Second
	maxMessageRunes = 3500
	maxDownload     = 20 << 20
)

// APIError is a Bot API call that returned ok=false or a non-2xx status.
type APIError struct {
	Method      string
	StatusCode  int
	Description string
}

func (e *APIError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("telegram: %s failed (http %d)", e.Method, e.StatusCode)
	}
	return fmt.Sprintf("telegram: %s failed (http %d): %s", e.Method, e.StatusCode, e.Description)
}

type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if s := strings.TrimRight(strings.TrimSpace(baseURL), "/"); s != "" {
			c.baseURL = s
		}
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

func New(token string, opts ...Option) (*Client, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, errors.New("telegram: token is required")
	}
	c := &Client{
		token:      token,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// GetUpdates long-polls for updates starting at offset.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeoutSec int) ([]Update, error) {
	payload := map[string]any{
		"timeout":         timeoutSec,
		"allowed_updates": []string{"message", "callback_query"},
	}
	if offset > 0 {
		payload["offset"] = offset
	}
	var out []Update
	if err := c.call(ctx, "getUpdates", payload, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SendMessage sends text, split into several messages when it is too long.
// The keyboard is attached to the last part. It returns the last message id.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, kb *InlineKeyboardMarkup) (int64, error) {
	parts := SplitMessage(text, maxMessageRunes)
	if len(parts) == 0 {
		return 0, errors.New("telegram: message text is empty")
	}
	var last Message
	for i, part := range parts {
		req := sendMessageRequest{ChatID: chatID, Text: part}
		if i == len(parts)-1 {
			req.ReplyMarkup = kb
		}
		if err := c.call(ctx, "sendMessage", req, &last); err != nil {
			return 0, err
		}
	}
	return last.MessageID, nil
}

// EditMessageReplyMarkup replaces a message's keyboard; nil removes it.
func (c *Client) EditMessageReplyMarkup(ctx context.Context, chatID, messageID int64, kb *InlineKeyboardMarkup) error {
	req := editReplyMarkupRequest{ChatID: chatID, MessageID: messageID}
	if kb != nil {
		req.ReplyMarkup = *kb
	}
	if req.ReplyMarkup.InlineKeyboard == nil {
		req.ReplyMarkup.InlineKeyboard = [][]InlineKeyboardButton{}
	}
	return c.call(ctx, "editMessageReplyMarkup", req, nil)
}

func (c *Client) AnswerCallbackQuery(ctx context.Context, callbackID, text string) error {
	return c.call(ctx, "answerCallbackQuery", answerCallbackRequest{CallbackQueryID: callbackID, Text: text}, nil)
}

// SetWebhook registers url with Telegram. secret is echoed back in the
// X-Telegram-Bot-Api-Secret-Token header of every delivery.
func (c *Client) SetWebhook(ctx context.Context, url, secret string) error {
	req := setWebhookRequest{
		URL:            url,
		SecretToken:    secret,
		AllowedUpdates: []string{"message", "callback_query"},
	}
	return c.call(ctx, "setWebhook", req, nil)
}

// DownloadFile resolves fileID and returns the file contents.
func (c *Client) DownloadFile(ctx context.Context, fileID string) ([]byte, error) {
	if strings.TrimSpace(fileID) == "" {
		return nil, errors.New("telegram: file id is required")
	}
	var f fileResult
	if err := c.call(ctx, "getFile", getFileRequest{FileID: fileID}, &f); err != nil {
		return nil, err
	}
	if f.FilePath == "" {
		return nil, errors.New("telegram: getFile returned no file path")
	}
	if f.FileSize > maxDownload {
		return nil, fmt.Errorf("telegram: file is too large (%d bytes)", f.FileSize)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/file/bot"+c.token+"/"+f.FilePath, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("telegram: download: %w", redact(err, c.token))
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{Method: "download", StatusCode: resp.StatusCode}
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownload+1))
	if err != nil {
		return nil, fmt.Errorf("telegram: download: %w", err)
	}
	if len(data) > maxDownload {
		return nil, errors.New("telegram: file is too large")
	}
	return data, nil
}

func (c *Client) call(ctx context.Context, method string, payload, result any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("telegram: marshal %s: %w", method, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/bot"+c.token+"/"+method, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: %s: %w", method, redact(err, c.token))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: %s: %w", method, redact(err, c.token))
	}
	defer func() { _ = resp.Body.Close() }()

	var env envelope[json.RawMessage]
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4<<20)).Decode(&env); err != nil {
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return &APIError{Method: method, StatusCode: resp.StatusCode}
		}
		return fmt.Errorf("telegram: decode %s: %w", method, err)
	}
	if !env.OK || resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{Method: method, StatusCode: resp.StatusCode, Description: strings.TrimSpace(env.Description)}
	}
	if result == nil || len(env.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Result, result); err != nil {
		return fmt.Errorf("telegram: decode %s result: %w", method, err)
	}
	return nil
}

// redact strips the bot token from transport errors, which embed the URL.
func redact(err error, token string) error {
	if err == nil || token == "" || !strings.Contains(err.Error(), token) {
		return err
	}
	return errors.New(strings.ReplaceAll(err.Error(), token, "<token>"))
}

// SplitMessage breaks text into chunks of at most maxRunes, preferring line
// breaks in the second half of a chunk.
func SplitMessage(text string, maxRunes int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if maxRunes <= 0 {
		maxRunes = maxMessageRunes
	}
	runes := []rune(text)
	if len(runes) <= maxRunes {
		return []string{text}
	}

	var out []string
	for start := 0; start < len(runes); {
		end := start + maxRunes
		if end >= len(runes) {
			if chunk := strings.TrimSpace(string(runes[start:])); chunk != "" {
				out = append(out, chunk)
			}
			break
		}
		split := end
		for i := end; i > start+maxRunes/2; i-- {
			if runes[i-1] == '\n' {
				split = i
				break
			}
		}
		if chunk := strings.TrimSpace(string(runes[start:split])); chunk != "" {
			out = append(out, chunk)
		}
		start = split
	}
	return out
}

// ParseChatIDs parses a comma-separated allow-list.
func ParseChatIDs(raw string) (map[int64]struct{}, error) {
	out := map[int64]struct{}{}
	for _, part := range strings.Split(raw, ",") {
		v := strings.TrimSpace(part)
		if v == "" {
			continue
		}
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("telegram: invalid chat id %q: %w", v, err)
		}
		out[id] = struct{}{}
	}
	return out, nil
}
