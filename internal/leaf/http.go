package leaf

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shaiso/Taskflow/internal/task"
)

const (
	// DefaultHTTPTimeout — таймаут запроса по умолчанию.
	DefaultHTTPTimeout = 30 * time.Second

	maxResponseBody = 10 * 1024 * 1024 // 10 MB
)

// Ключи конфигурации HTTP листа.
const (
	configMethod          = "method"
	configURL             = "url"
	configHeaders         = "headers"
	configBody            = "body"
	configFollowRedirects = "follow_redirects"
	configValidateSSL     = "validate_ssl"
	configTimeoutSec      = "timeout_sec"
	configResponseType    = "response_type"
)

// Типы разбора тела ответа.
const (
	ResponseAuto = "auto" // JSON, если Content-Type application/json, иначе строка
	ResponseJSON = "json"
	ResponseText = "text"
)

// Poster возвращает функцию в горутину, которая обслуживает задачи.
// clock.Loop реализует этот интерфейс.
type Poster interface {
	Post(fn func())
}

// HTTPConfig — конфигурация HTTP запроса.
type HTTPConfig struct {
	Method          string
	URL             string
	Headers         map[string]string
	Body            any
	FollowRedirects bool
	ValidateSSL     bool
	Timeout         time.Duration
	ResponseType    string
}

// HTTPDefaults — значения по умолчанию, которые передаёт вызывающий код.
type HTTPDefaults struct {
	Timeout      time.Duration
	ResponseType string
}

// HTTP — лист, выполняющий HTTP запрос.
//
// Ответ с кодом >= 400 переводит задачу в ERRORED с *HTTPError.
// При прерывании запрос отменяется; Run после прерывания отправляет
// запрос заново.
//
// Результат:
//
//	{
//	    "status_code": 200,
//	    "headers": {"Content-Type": "application/json", ...},
//	    "body": {...}  // JSON или строка
//	}
type HTTP struct {
	*task.Base

	cfg    HTTPConfig
	client *http.Client
	poster Poster

	// gen отсекает ответы, пришедшие после прерывания или сброса.
	gen    uint64
	cancel context.CancelFunc
}

// NewHTTP создаёт HTTP лист.
func NewHTTP(name string, cfg HTTPConfig, poster Poster) *HTTP {
	if name == "" {
		name = "http"
	}
	h := &HTTP{
		cfg:    cfg,
		client: buildClient(cfg),
		poster: poster,
	}
	h.Base = task.NewBase(h, name, task.Handlers{
		Run:       h.run,
		Interrupt: h.abort,
		Reset:     h.abort,
	})
	return h
}

// Config возвращает конфигурацию запроса.
func (h *HTTP) Config() HTTPConfig {
	return h.cfg
}

func (h *HTTP) run() {
	if h.poster == nil {
		h.FailWith(nil, fmt.Errorf("%w: http: poster is required", ErrInvalidConfig))
		return
	}

	h.gen++
	gen := h.gen
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel

	go func() {
		out, err := h.do(ctx)
		h.poster.Post(func() {
			if gen != h.gen || h.State() != task.StateRunning {
				return
			}
			h.cancel()
			h.cancel = nil
			h.finish(out, err)
		})
	}()
}

func (h *HTTP) finish(out map[string]any, err error) {
	if err != nil {
		h.FailWith(out, err)
		return
	}

	code, _ := out["status_code"].(int)
	if code >= http.StatusBadRequest {
		body, _ := out["body"].(string)
		h.FailWith(out, &HTTPError{
			StatusCode: code,
			Status:     http.StatusText(code),
			Body:       body,
		})
		return
	}
	h.Complete(out)
}

func (h *HTTP) abort() {
	h.gen++
	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
}

func (h *HTTP) do(ctx context.Context) (map[string]any, error) {
	req, err := buildRequest(ctx, h.cfg)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	return parseResponse(resp, h.cfg.ResponseType)
}

// ParseHTTPConfig разбирает конфигурацию HTTP листа.
//
//	{
//	    "method": "POST",
//	    "url": "https://api.example.com/data",
//	    "headers": {"Content-Type": "application/json"},
//	    "body": {"data": 1},
//	    "follow_redirects": true,
//	    "validate_ssl": true,
//	    "timeout_sec": 30,
//	    "response_type": "auto"
//	}
func ParseHTTPConfig(config map[string]any, defaults HTTPDefaults) (HTTPConfig, error) {
	p := NewParams("http", config)
	cfg := HTTPConfig{
		Method:          p.String(configMethod),
		URL:             p.String(configURL),
		Headers:         p.StringMap(configHeaders),
		Body:            config[configBody],
		FollowRedirects: p.Bool(configFollowRedirects, true),
		ValidateSSL:     p.Bool(configValidateSSL, true),
		ResponseType:    p.String(configResponseType),
	}
	timeoutSec := p.Int(configTimeoutSec)
	if err := p.Err(); err != nil {
		return cfg, err
	}

	if cfg.URL == "" {
		return cfg, fmt.Errorf("%w: http: url is required", ErrInvalidConfig)
	}

	if cfg.Method == "" {
		cfg.Method = http.MethodGet
	}
	cfg.Method = strings.ToUpper(cfg.Method)

	if cfg.Headers == nil {
		cfg.Headers = make(map[string]string)
	}

	cfg.Timeout = defaults.Timeout
	if timeoutSec > 0 {
		cfg.Timeout = time.Duration(timeoutSec) * time.Second
	}

	if cfg.ResponseType == "" {
		cfg.ResponseType = defaults.ResponseType
	}
	switch cfg.ResponseType {
	case "":
		cfg.ResponseType = ResponseAuto
	case ResponseAuto, ResponseJSON, ResponseText:
	default:
		return cfg, fmt.Errorf("%w: http: unknown response_type %q", ErrInvalidConfig, cfg.ResponseType)
	}

	return cfg, nil
}

// buildClient создаёт HTTP клиент с нужными настройками.
func buildClient(cfg HTTPConfig) *http.Client {
	timeout := DefaultHTTPTimeout
	if cfg.Timeout > 0 {
		timeout = cfg.Timeout
	}

	var checkRedirect func(*http.Request, []*http.Request) error
	if !cfg.FollowRedirects {
		checkRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	return &http.Client{
		Timeout:       timeout,
		CheckRedirect: checkRedirect,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: !cfg.ValidateSSL,
			},
		},
	}
}

// buildRequest создаёт HTTP запрос.
func buildRequest(ctx context.Context, cfg HTTPConfig) (*http.Request, error) {
	var bodyReader io.Reader
	headers := make(map[string]string, len(cfg.Headers)+1)
	for k, v := range cfg.Headers {
		headers[k] = v
	}

	if cfg.Body != nil {
		bodyBytes, err := serializeBody(cfg.Body)
		if err != nil {
			return nil, fmt.Errorf("serialize body: %w", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)

		// Устанавливаем Content-Type, если не задан
		if _, ok := headers["Content-Type"]; !ok {
			headers["Content-Type"] = "application/json"
		}
	}

	req, err := http.NewRequestWithContext(ctx, cfg.Method, cfg.URL, bodyReader)
	if err != nil {
		return nil, err
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	return req, nil
}

func serializeBody(body any) ([]byte, error) {
	switch v := body.(type) {
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	default:
		return json.Marshal(v)
	}
}

// parseResponse читает ответ в map со status_code, headers и body.
func parseResponse(resp *http.Response, responseType string) (map[string]any, error) {
	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	headers := make(map[string]string)
	for key := range resp.Header {
		headers[key] = resp.Header.Get(key)
	}
	out := map[string]any{
		"status_code": resp.StatusCode,
		"headers":     headers,
	}

	var body any
	switch responseType {
	case ResponseText:
		body = string(bodyBytes)
	case ResponseJSON:
		if err := json.Unmarshal(bodyBytes, &body); err != nil {
			out["body"] = string(bodyBytes)
			return out, fmt.Errorf("decode json response: %w", err)
		}
	default:
		body = string(bodyBytes)
		if strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
			var parsed any
			if err := json.Unmarshal(bodyBytes, &parsed); err == nil {
				body = parsed
			}
		}
	}
	out["body"] = body
	return out, nil
}

// HTTPError — ответ с кодом ошибки.
type HTTPError struct {
	StatusCode int
	Status     string
	Body       string
}

// Error реализует интерфейс error.
func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Status)
}
