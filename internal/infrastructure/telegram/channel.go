package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"BriefingScanner/internal/config"
	"BriefingScanner/internal/deliver"
	"BriefingScanner/internal/domain"
	"BriefingScanner/internal/ports"
)

// Channel delivers briefing chunks to a Telegram chat via the bot API.
// Sends are paced by a rate limiter so long batches stay inside the API's
// flood limits.
type Channel struct {
	apiBase  string
	botToken string
	chatID   string
	client   *http.Client
	limiter  *rate.Limiter
	logger   *slog.Logger
}

var _ ports.DeliveryChannel = (*Channel)(nil)

// NewChannel registers bot token, chat identifier and the send rate.
func NewChannel(cfg config.TelegramConfig, sendRate float64, logger *slog.Logger) *Channel {
	apiBase := cfg.APIBase
	if apiBase == "" {
		apiBase = "https://api.telegram.org"
	}
	if sendRate <= 0 {
		sendRate = 1
	}
	return &Channel{
		apiBase:  strings.TrimSuffix(apiBase, "/"),
		botToken: cfg.BotToken,
		chatID:   cfg.ChatID,
		client:   &http.Client{Timeout: 15 * time.Second},
		limiter:  rate.NewLimiter(rate.Limit(sendRate), 1),
		logger:   logger,
	}
}

// apiResponse is the envelope every bot API call returns.
type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
	Result      struct {
		Username string `json:"username"`
	} `json:"result"`
}

// SendText posts a message. A rejected rich-formatted send is retried once
// with the markup stripped before giving up: malformed entities in scraped
// text must not cost the briefing.
func (c *Channel) SendText(ctx context.Context, text string, mode domain.FormatMode) error {
	err := c.sendMessage(ctx, text, mode)
	if err == nil || mode == domain.FormatPlain {
		return err
	}

	c.logger.Warn("formatted send rejected, retrying plain", "error", err)
	return c.sendMessage(ctx, deliver.Plain(text), domain.FormatPlain)
}

func (c *Channel) sendMessage(ctx context.Context, text string, mode domain.FormatMode) error {
	if c.botToken == "" || c.chatID == "" {
		return fmt.Errorf("%w: telegram channel misconfigured", domain.ErrDeliveryChannel)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("wait send slot: %w", err)
	}

	form := url.Values{}
	form.Set("chat_id", c.chatID)
	form.Set("text", text)
	if mode != domain.FormatPlain {
		form.Set("parse_mode", string(mode))
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", c.apiBase, c.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	return c.do(req)
}

// SendImage posts a PNG with a caption via multipart upload.
func (c *Channel) SendImage(ctx context.Context, image []byte, caption string) error {
	if c.botToken == "" || c.chatID == "" {
		return fmt.Errorf("%w: telegram channel misconfigured", domain.ErrDeliveryChannel)
	}
	if len(image) == 0 {
		return fmt.Errorf("%w: empty image", domain.ErrDeliveryChannel)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("wait send slot: %w", err)
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if err := writer.WriteField("chat_id", c.chatID); err != nil {
		return fmt.Errorf("write chat_id: %w", err)
	}
	if caption != "" {
		if err := writer.WriteField("caption", caption); err != nil {
			return fmt.Errorf("write caption: %w", err)
		}
	}
	part, err := writer.CreateFormFile("photo", "chart.png")
	if err != nil {
		return fmt.Errorf("create photo part: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return fmt.Errorf("write photo: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close multipart body: %w", err)
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendPhoto", c.apiBase, c.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	return c.do(req)
}

// Me verifies the bot token against the API and returns the bot username.
func (c *Channel) Me(ctx context.Context) (string, error) {
	if c.botToken == "" {
		return "", fmt.Errorf("%w: telegram channel misconfigured", domain.ErrDeliveryChannel)
	}

	endpoint := fmt.Sprintf("%s/bot%s/getMe", c.apiBase, c.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	decoded, err := decodeResponse(resp)
	if err != nil {
		return "", err
	}
	return decoded.Result.Username, nil
}

func (c *Channel) do(req *http.Request) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if _, err := decodeResponse(resp); err != nil {
		return err
	}
	return nil
}

func decodeResponse(resp *http.Response) (apiResponse, error) {
	var decoded apiResponse
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return decoded, fmt.Errorf("read response: %w", err)
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return decoded, fmt.Errorf("%w: telegram returned %s", domain.ErrDeliveryChannel, resp.Status)
	}
	if !decoded.OK {
		return decoded, fmt.Errorf("%w: telegram rejected the call: %s (%s)",
			domain.ErrDeliveryChannel, resp.Status, decoded.Description)
	}
	return decoded, nil
}
