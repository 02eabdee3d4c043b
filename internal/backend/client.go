// Package backend — типизированный клиент удалённого API Manual Base
// (auth, хранилище руководств, retrieval).
//
// Каждый эндпоинт разбирает ответ в одном месте и сразу проверяет его форму:
// ответ неожиданной формы возвращается как *models.NetworkError, а не
// подменяется пустыми значениями.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"manualbase/internal/logs"
	"manualbase/internal/models"
)

// maxResponseBytes ограничивает чтение тела ответа.
const maxResponseBytes = 8 << 20

type Client struct {
	base string
	hc   *http.Client
	log  logrus.FieldLogger
}

type Option func(*Client)

// WithHTTPClient подменяет HTTP-клиент (тесты, собственный транспорт).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.hc = hc }
}

// WithTimeout задаёт общий таймаут запроса; 0 — только лимиты транспорта.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.hc.Timeout = d }
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(c *Client) { c.log = l }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		base: strings.TrimRight(baseURL, "/"),
		hc: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		log: logs.Logger,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) BaseURL() string { return c.base }

// validator — проверка формы разобранного ответа.
type validator interface {
	validate() error
}

func (c *Client) newJSONRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// do выполняет запрос и разбирает 2xx-ответ в out. Не-2xx возвращается как
// *models.NetworkError с сообщением сервера (поле detail), если оно есть.
func (c *Client) do(req *http.Request, op string, out validator) error {
	start := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		c.log.WithError(err).WithField("op", op).Warn("backend request failed")
		return &models.NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &models.NetworkError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}
	c.log.WithFields(logrus.Fields{
		"op":     op,
		"status": resp.StatusCode,
		"dur":    time.Since(start).String(),
	}).Debug("backend call")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := errorDetail(body)
		if msg == "" {
			msg = fmt.Sprintf("HTTP error! status: %d", resp.StatusCode)
		}
		return &models.NetworkError{Op: op, Status: resp.StatusCode, Message: msg}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &models.NetworkError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	if err := out.validate(); err != nil {
		return &models.NetworkError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("unexpected response shape: %w", err)}
	}
	return nil
}

// errorDetail достаёт detail из тела ошибки FastAPI. detail бывает строкой
// или списком ошибок валидации (422); список сводится к первому msg.
func errorDetail(body []byte) (string, bool) {
	var env struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &env); err != nil || len(env.Detail) == 0 {
		return "", false
	}
	var s string
	if err := json.Unmarshal(env.Detail, &s); err == nil {
		return s, s != ""
	}
	var list []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(env.Detail, &list); err == nil && len(list) > 0 && list[0].Msg != "" {
		return list[0].Msg, true
	}
	return "", false
}

// asStatus возвращает HTTP-статус из ошибки клиента (0, если ответа не было).
func asStatus(err error) int {
	var ne *models.NetworkError
	if errors.As(err, &ne) {
		return ne.Status
	}
	return 0
}
