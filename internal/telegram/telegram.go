package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	cmdpkg "github.com/Orion-Gemini/ORION-WEBCAM/internal/commander"
)

// DefaultAPIBase is the public Bot API endpoint.
const DefaultAPIBase = "https://api.telegram.org"

// MaxDownloadBytes matches the Bot API limit for getFile downloads.
const MaxDownloadBytes = 20 << 20

// Client is a minimal Telegram Bot API client.
type Client struct {
	apiBase    string
	fileBase   string
	httpClient *http.Client
}

var _ cmdpkg.Commander = (*Client)(nil)

// NewClient creates a Telegram client for the given API host
// (e.g. "https://api.telegram.org") and bot token. requestTimeout must
// exceed the long-poll timeout passed to GetUpdates.
func NewClient(baseURL, token string, requestTimeout time.Duration) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	return &Client{
		apiBase:  baseURL + "/bot" + token,
		fileBase: baseURL + "/file/bot" + token,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
	}
}

// Response is the generic Telegram API response wrapper.
type Response struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	ErrorCode   int             `json:"error_code,omitempty"`
	Description string          `json:"description,omitempty"`
}

// APIError is returned when Telegram answers with ok=false.
type APIError struct {
	Method      string
	Code        int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s failed: %d %s", e.Method, e.Code, e.Description)
}

type Update = cmdpkg.Update
type Message = cmdpkg.Message
type Chat = cmdpkg.Chat

// call posts payload as JSON to method and decodes the result into out
// when out is non-nil.
func (c *Client) call(ctx context.Context, method string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s request: %w", method, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBase+"/"+method, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("telegram %s request failed: %w", method, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read %s response: %w", method, err)
	}

	var tgResp Response
	if err := json.Unmarshal(raw, &tgResp); err != nil {
		return fmt.Errorf("failed to parse %s response (status %d): %w", method, resp.StatusCode, err)
	}
	if !tgResp.OK {
		code := tgResp.ErrorCode
		if code == 0 {
			code = resp.StatusCode
		}
		return &APIError{Method: method, Code: code, Description: tgResp.Description}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(tgResp.Result, out); err != nil {
		return fmt.Errorf("failed to parse %s result: %w", method, err)
	}
	return nil
}

// GetUpdates calls the getUpdates API. Only message updates are returned.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout int) ([]Update, error) {
	payload := map[string]any{
		"offset":          offset,
		"timeout":         timeout,
		"allowed_updates": []string{"message"},
	}
	var raws []Update
	if err := c.call(ctx, "getUpdates", payload, &raws); err != nil {
		return nil, err
	}
	return raws, nil
}

func (c *Client) GetMe(ctx context.Context) (cmdpkg.User, error) {
	var u cmdpkg.User
	err := c.call(ctx, "getMe", struct{}{}, &u)
	return u, err
}

type replyParameters struct {
	MessageID                int64 `json:"message_id"`
	AllowSendingWithoutReply bool  `json:"allow_sending_without_reply"`
}

type sendMessageRequest struct {
	ChatID          int64            `json:"chat_id"`
	Text            string           `json:"text"`
	ParseMode       string           `json:"parse_mode,omitempty"`
	ReplyParameters *replyParameters `json:"reply_parameters,omitempty"`
}

// SendMessage sends a text message and returns the new message id.
func (c *Client) SendMessage(ctx context.Context, msg cmdpkg.OutgoingMessage) (int64, error) {
	req := sendMessageRequest{
		ChatID:    msg.ChatID,
		Text:      msg.Text,
		ParseMode: msg.ParseMode,
	}
	if msg.ReplyTo != 0 {
		req.ReplyParameters = &replyParameters{MessageID: msg.ReplyTo, AllowSendingWithoutReply: true}
	}
	var sent cmdpkg.Message
	if err := c.call(ctx, "sendMessage", req, &sent); err != nil {
		return 0, err
	}
	return sent.MessageID, nil
}

func (c *Client) EditMessageText(ctx context.Context, chatID, messageID int64, text, parseMode string) error {
	payload := map[string]any{
		"chat_id":    chatID,
		"message_id": messageID,
		"text":       text,
	}
	if parseMode != "" {
		payload["parse_mode"] = parseMode
	}
	return c.call(ctx, "editMessageText", payload, nil)
}

func (c *Client) SendChatAction(ctx context.Context, chatID int64, action string) error {
	return c.call(ctx, "sendChatAction", map[string]any{"chat_id": chatID, "action": action}, nil)
}

func (c *Client) GetFile(ctx context.Context, fileID string) (cmdpkg.File, error) {
	var f cmdpkg.File
	if err := c.call(ctx, "getFile", map[string]any{"file_id": fileID}, &f); err != nil {
		return cmdpkg.File{}, err
	}
	if f.FilePath == "" {
		return cmdpkg.File{}, fmt.Errorf("telegram getFile returned no file_path for %s", fileID)
	}
	return f, nil
}

// DownloadFile fetches a file previously resolved with GetFile.
func (c *Client) DownloadFile(ctx context.Context, filePath string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.fileBase+"/"+strings.TrimLeft(filePath, "/"), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build file download request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("telegram file download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("telegram file download failed: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxDownloadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read downloaded file: %w", err)
	}
	if len(data) > MaxDownloadBytes {
		return nil, fmt.Errorf("downloaded file exceeds %d bytes", MaxDownloadBytes)
	}
	return data, nil
}

// SetMyCommands registers the command menu for private chats.
func (c *Client) SetMyCommands(ctx context.Context, commands []cmdpkg.BotCommand) error {
	payload := map[string]any{
		"commands": commands,
		"scope":    map[string]string{"type": "all_private_chats"},
	}
	return c.call(ctx, "setMyCommands", payload, nil)
}
