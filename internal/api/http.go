package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	stdhttp "net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-sync/internal/core"
)

// HTTPClient talks to the record API over HTTP with a bearer credential.
type HTTPClient struct {
	base  *url.URL
	token string
	http  *stdhttp.Client
	log   *zerolog.Logger
}

// NewHTTPClient builds a client for baseURL (e.g. http://localhost:8080).
func NewHTTPClient(baseURL, token string, httpClient *stdhttp.Client, logger *zerolog.Logger) (*HTTPClient, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse api url: %w", err)
	}
	if httpClient == nil {
		httpClient = &stdhttp.Client{Timeout: 15 * time.Second}
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &HTTPClient{base: u, token: token, http: httpClient, log: logger}, nil
}

var _ Client = (*HTTPClient)(nil)

func (c *HTTPClient) SearchMessages(ctx context.Context, chatID int64, q PageQuery) ([]core.Message, error) {
	params := url.Values{}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.BeforeID > 0 {
		params.Set("before", strconv.FormatInt(q.BeforeID, 10))
	}

	var resp MessagesResponse
	if err := c.do(ctx, stdhttp.MethodGet, chatPath(chatID, "messages"), params, nil, &resp); err != nil {
		return nil, fmt.Errorf("search messages: %w", err)
	}
	return resp.Messages, nil
}

func (c *HTTPClient) SendMessage(ctx context.Context, chatID int64, text string, attachments []int64) (*core.Message, error) {
	var msg core.Message
	req := SendMessageRequest{Text: text, Attachments: attachments}
	if err := c.do(ctx, stdhttp.MethodPost, chatPath(chatID, "messages"), nil, req, &msg); err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}
	if msg.ChatID == 0 {
		msg.ChatID = chatID
	}
	return &msg, nil
}

func (c *HTTPClient) EditMessage(ctx context.Context, chatID, messageID int64, body string) error {
	if err := c.do(ctx, stdhttp.MethodPatch, messagePath(chatID, messageID, ""), nil, EditMessageRequest{Body: body}, nil); err != nil {
		return fmt.Errorf("edit message: %w", err)
	}
	return nil
}

func (c *HTTPClient) DeleteMessage(ctx context.Context, chatID, messageID int64) error {
	if err := c.do(ctx, stdhttp.MethodDelete, messagePath(chatID, messageID, ""), nil, nil, nil); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

func (c *HTTPClient) PinMessage(ctx context.Context, chatID, messageID int64, pinned bool) error {
	if err := c.do(ctx, stdhttp.MethodPut, messagePath(chatID, messageID, "pin"), nil, PinRequest{Pinned: pinned}, nil); err != nil {
		return fmt.Errorf("pin message: %w", err)
	}
	return nil
}

func (c *HTTPClient) ReactMessage(ctx context.Context, chatID, messageID int64, emoji string) ([]core.Reaction, error) {
	var resp ReactionsResponse
	if err := c.do(ctx, stdhttp.MethodPost, messagePath(chatID, messageID, "reactions"), nil, ReactRequest{Emoji: emoji}, &resp); err != nil {
		return nil, fmt.Errorf("react message: %w", err)
	}
	return resp.Reactions, nil
}

func (c *HTTPClient) SearchChats(ctx context.Context, filter ChatFilter) ([]core.Chat, error) {
	params := url.Values{}
	if filter.IsInternal != nil {
		params.Set("is_internal", strconv.FormatBool(*filter.IsInternal))
	}
	if filter.ChatType != "" {
		params.Set("chat_type", string(filter.ChatType))
	}
	if filter.ConnectorType != "" {
		params.Set("connector_type", filter.ConnectorType)
	}

	var resp ChatsResponse
	if err := c.do(ctx, stdhttp.MethodGet, "/api/chats", params, nil, &resp); err != nil {
		return nil, fmt.Errorf("search chats: %w", err)
	}
	return resp.Chats, nil
}

func (c *HTTPClient) GetChat(ctx context.Context, chatID int64) (*core.Chat, error) {
	var chat core.Chat
	if err := c.do(ctx, stdhttp.MethodGet, chatPath(chatID, ""), nil, nil, &chat); err != nil {
		var se *StatusError
		if errors.As(err, &se) && se.Code == stdhttp.StatusNotFound {
			return nil, fmt.Errorf("get chat %d: %w", chatID, core.ErrChatNotFound)
		}
		return nil, fmt.Errorf("get chat: %w", err)
	}
	return &chat, nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, params url.Values, body, out any) error {
	u := *c.base
	u.Path = u.Path + path
	if len(params) > 0 {
		u.RawQuery = params.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := stdhttp.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	c.log.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Msg("api request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr ErrorResponse
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(data, &apiErr) != nil || apiErr.Error == "" {
			apiErr.Error = strings.TrimSpace(string(data))
		}
		return &StatusError{Code: resp.StatusCode, Message: apiErr.Error}
	}

	if out == nil || resp.StatusCode == stdhttp.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func chatPath(chatID int64, suffix string) string {
	p := "/api/chats/" + strconv.FormatInt(chatID, 10)
	if suffix != "" {
		p += "/" + suffix
	}
	return p
}

func messagePath(chatID, messageID int64, suffix string) string {
	p := chatPath(chatID, "messages/"+strconv.FormatInt(messageID, 10))
	if suffix != "" {
		p += "/" + suffix
	}
	return p
}
