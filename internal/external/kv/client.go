// Package kv содержит клиент удаленного KV хранилища документов по дням.
//
// Протокол:
//
//	POST /apps/auth/token  {namespace, password, appId} -> {success, token} | {success: false, message}
//	GET  /kv/{prefix}{YYYYMMDD}                         -> документ или 404
//	POST /kv/{prefix}{YYYYMMDD}                         -> 200/201
//	GET  /kv/_info                                      -> сведения об устройстве
//
// Клиент не хранит токен: сессия передается в каждый вызов явно.
package kv

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Значения по умолчанию
const (
	DefaultTimeout   = 10 * time.Second
	DefaultKeyPrefix = "data-"
	maxErrorBody     = 512
)

// Session аутентифицированная сессия пространства имен
type Session struct {
	Namespace string
	Token     string
	IssuedAt  time.Time
}

// Valid проверяет наличие токена
func (s Session) Valid() bool {
	return s.Token != ""
}

// Config конфигурация клиента
type Config struct {
	BaseURL             string
	AppID               string
	KeyPrefix           string
	Timeout             time.Duration
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration
	TLSHandshakeTimeout time.Duration
}

// Client клиент удаленного хранилища
type Client struct {
	baseURL    string
	appID      string
	keyPrefix  string
	httpClient *http.Client
	logger     *zap.Logger

	mu           sync.Mutex
	requestCount int64
	successCount int64
	errorCount   int64
	lastRequest  time.Time
}

// authRequest тело запроса токена
type authRequest struct {
	Namespace string `json:"namespace"`
	Password  string `json:"password"`
	AppID     string `json:"appId"`
}

// authResponse ответ сервиса токенов
type authResponse struct {
	Success bool   `json:"success"`
	Token   string `json:"token"`
	Message string `json:"message"`
}

// NewClient создает новый клиент удаленного хранилища
func NewClient(config Config, logger *zap.Logger) *Client {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	keyPrefix := config.KeyPrefix
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if config.MaxIdleConns > 0 {
		transport.MaxIdleConns = config.MaxIdleConns
	}
	if config.MaxIdleConnsPerHost > 0 {
		transport.MaxIdleConnsPerHost = config.MaxIdleConnsPerHost
	}
	if config.IdleConnTimeout > 0 {
		transport.IdleConnTimeout = config.IdleConnTimeout
	}
	if config.TLSHandshakeTimeout > 0 {
		transport.TLSHandshakeTimeout = config.TLSHandshakeTimeout
	}

	return &Client{
		baseURL:   strings.TrimRight(config.BaseURL, "/"),
		appID:     config.AppID,
		keyPrefix: keyPrefix,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		logger: logger,
	}
}

// Key возвращает ключ документа для дня
func (c *Client) Key(dayKey string) string {
	return c.keyPrefix + dayKey
}

// Authenticate получает токен для пространства имен
func (c *Client) Authenticate(ctx context.Context, namespace, password string) (Session, error) {
	if namespace == "" || password == "" {
		return Session{}, &AuthError{Reason: "namespace and password are required"}
	}

	payload, err := json.Marshal(authRequest{Namespace: namespace, Password: password, AppID: c.appID})
	if err != nil {
		return Session{}, fmt.Errorf("failed to marshal auth request: %w", err)
	}

	status, body, err := c.do(ctx, "authenticate", http.MethodPost, "/apps/auth/token", "", payload)
	if err != nil {
		return Session{}, err
	}

	if status != http.StatusOK && status != http.StatusCreated {
		c.incrementError()
		return Session{}, &AuthError{Reason: fmt.Sprintf("HTTP %d: %s", status, extractMessage(body))}
	}

	var result authResponse
	if err := json.Unmarshal(body, &result); err != nil {
		c.incrementError()
		return Session{}, &AuthError{Reason: fmt.Sprintf("invalid auth response: %v", err)}
	}

	if !result.Success || result.Token == "" {
		c.incrementError()
		reason := result.Message
		if reason == "" {
			reason = "authentication failed"
		}
		return Session{}, &AuthError{Reason: reason}
	}

	c.incrementSuccess()
	c.logger.Info("Authenticated with remote store", zap.String("namespace", namespace))

	return Session{Namespace: namespace, Token: result.Token, IssuedAt: time.Now()}, nil
}

// GetDocument возвращает документ дня, 404 означает пустой документ
func (c *Client) GetDocument(ctx context.Context, session Session, dayKey string) (Document, error) {
	if !session.Valid() {
		return Document{}, ErrNotAuthenticated
	}

	status, body, err := c.do(ctx, "get", http.MethodGet, "/kv/"+c.Key(dayKey), session.Token, nil)
	if err != nil {
		return Document{}, err
	}

	switch status {
	case http.StatusOK:
		var doc Document
		if err := json.Unmarshal(body, &doc); err != nil {
			c.incrementError()
			return Document{}, &FetchError{Status: status, Body: err.Error()}
		}
		c.incrementSuccess()
		return doc, nil
	case http.StatusNotFound:
		c.incrementSuccess()
		c.logger.Debug("Remote document not found, using empty document", zap.String("day_key", dayKey))
		return EmptyDocument(), nil
	default:
		c.incrementError()
		return Document{}, &FetchError{Status: status, Body: truncate(string(body))}
	}
}

// PutDocument сохраняет документ дня целиком
func (c *Client) PutDocument(ctx context.Context, session Session, dayKey string, doc Document) error {
	if !session.Valid() {
		return ErrNotAuthenticated
	}

	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}

	status, body, err := c.do(ctx, "put", http.MethodPost, "/kv/"+c.Key(dayKey), session.Token, payload)
	if err != nil {
		return err
	}

	if status != http.StatusOK && status != http.StatusCreated {
		c.incrementError()
		return &SaveError{Status: status, Body: truncate(string(body))}
	}

	c.incrementSuccess()
	return nil
}

// Info возвращает сведения об устройстве, используется как проверка соединения
func (c *Client) Info(ctx context.Context, session Session) (map[string]interface{}, error) {
	if !session.Valid() {
		return nil, ErrNotAuthenticated
	}

	status, body, err := c.do(ctx, "info", http.MethodGet, "/kv/_info", session.Token, nil)
	if err != nil {
		return nil, err
	}

	switch status {
	case http.StatusOK:
		var info map[string]interface{}
		if err := json.Unmarshal(body, &info); err != nil {
			c.incrementError()
			return nil, &FetchError{Status: status, Body: err.Error()}
		}
		c.incrementSuccess()
		return info, nil
	case http.StatusUnauthorized, http.StatusForbidden:
		c.incrementError()
		return nil, fmt.Errorf("HTTP %d: %w", status, ErrNotAuthenticated)
	default:
		c.incrementError()
		return nil, &FetchError{Status: status, Body: truncate(string(body))}
	}
}

// GetMetrics возвращает метрики клиента
func (c *Client) GetMetrics() map[string]interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()

	return map[string]interface{}{
		"total_requests":      c.requestCount,
		"successful_requests": c.successCount,
		"failed_requests":     c.errorCount,
		"last_request_time":   c.lastRequest,
	}
}

// do выполняет запрос и возвращает статус и тело ответа
func (c *Client) do(ctx context.Context, op, method, path, token string, payload []byte) (int, []byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	c.recordRequest()
	c.logger.Debug("Sending request to remote store", zap.String("op", op), zap.String("method", method), zap.String("path", path))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.incrementError()
		return 0, nil, classifyTransportError(op, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.Warn("Failed to close response body", zap.Error(err))
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.incrementError()
		return 0, nil, classifyTransportError(op, err)
	}

	c.logger.Debug("Remote store response", zap.String("op", op), zap.Int("status_code", resp.StatusCode))

	return resp.StatusCode, body, nil
}

func (c *Client) recordRequest() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requestCount++
	c.lastRequest = time.Now()
}

// incrementSuccess увеличивает счетчик успешных запросов
func (c *Client) incrementSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.successCount++
}

// incrementError увеличивает счетчик неудачных запросов
func (c *Client) incrementError() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errorCount++
}

// extractMessage достает поле message из JSON ответа, иначе возвращает тело
func extractMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Message != "" {
		return payload.Message
	}
	return truncate(string(body))
}

func truncate(s string) string {
	if len(s) > maxErrorBody {
		return s[:maxErrorBody] + "..."
	}
	return s
}
