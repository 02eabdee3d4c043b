// Package chat ведёт переписку браузера с ассистентом по руководствам.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"manualbase/internal/backend"
	"manualbase/internal/models"
)

const (
	msgNoManuals      = "No manuals are available. Please upload a PDF manual first or contact an administrator."
	msgNoDocuments    = "No manuals are available. Please upload a PDF manual first."
	msgNoRelevantInfo = "I couldn't find relevant information in the available manuals for your query."
	msgEmptyAnswer    = "I received your query but couldn't generate a response."
	msgQueryFailed    = "Sorry, I couldn't process your query. Please try again."
	msgPending        = "..."
)

var (
	ErrEmptyQuery = errors.New("empty query")
	ErrNoManuals  = errors.New("no manuals available")
)

type Kind string

const (
	KindUser Kind = "user"
	KindBot  Kind = "bot"
)

type Message struct {
	Kind    Kind      `json:"type"`
	Text    string    `json:"message"`
	At      time.Time `json:"at"`
	Pending bool      `json:"pending,omitempty"`
	Failed  bool      `json:"failed,omitempty"`
}

// API — то, что чату нужно от retrieval API.
type API interface {
	Query(ctx context.Context, in backend.QueryRequest) (backend.QueryResponse, error)
	ClearConversation(ctx context.Context) (string, error)
}

// Recorder сохраняет историю запросов.
type Recorder interface {
	Record(ctx context.Context, rec *models.QueryRecord) error
}

type Question struct {
	Text      string
	Selection models.Selection
	// HasManuals — в каталоге есть хотя бы одно руководство.
	HasManuals bool
	UserEmail  string
}

type Service struct {
	api API
	rec Recorder
	log logrus.FieldLogger

	mu    sync.Mutex
	convs map[string]*conversation
	now   func() time.Time
}

// New — rec может быть nil, тогда история не пишется.
func New(api API, rec Recorder, log logrus.FieldLogger) *Service {
	return &Service{api: api, rec: rec, log: log, convs: make(map[string]*conversation), now: time.Now}
}

// Ask добавляет вопрос и ответ в переписку. Ответ встаёт в слот сразу за
// своим вопросом, поэтому порядок ответов совпадает с порядком вопросов.
// Без руководств запрос в сеть не уходит.
func (s *Service) Ask(ctx context.Context, browserID string, q Question) (Message, error) {
	text := strings.TrimSpace(q.Text)
	if text == "" {
		return Message{}, ErrEmptyQuery
	}
	conv := s.conversation(browserID)
	slot := conv.ask(text)

	if !q.HasManuals {
		return conv.answer(slot, msgNoManuals, true), ErrNoManuals
	}

	resp, err := s.api.Query(ctx, backend.QueryRequest{
		Query:       text,
		CompanyName: q.Selection.CompanyName,
		ProductName: q.Selection.ProductName,
		ProductCode: q.Selection.ProductCode,
	})
	var answer string
	if err != nil {
		s.log.WithError(err).WithField("browser", browserID).Warn("chat: query failed")
		answer = errorMessage(err)
	} else if answer = resp.Answer(); strings.TrimSpace(answer) == "" {
		answer = msgEmptyAnswer
	}
	msg := conv.answer(slot, answer, err != nil)
	s.record(ctx, q, text, answer, err != nil)
	return msg, err
}

func (s *Service) record(ctx context.Context, q Question, text, answer string, failed bool) {
	if s.rec == nil {
		return
	}
	filters, _ := json.Marshal(q.Selection)
	rec := &models.QueryRecord{
		UserEmail: q.UserEmail,
		Query:     text,
		Response:  answer,
		Failed:    failed,
		Filters:   filters,
	}
	// история не должна зависеть от отмены запроса браузером
	if err := s.rec.Record(context.WithoutCancel(ctx), rec); err != nil {
		s.log.WithError(err).Warn("chat: record query")
	}
}

// Clear очищает переписку локально и на стороне API. Локальная очистка
// выполняется, даже если API недоступен.
func (s *Service) Clear(ctx context.Context, browserID string) error {
	s.conversation(browserID).reset()
	if _, err := s.api.ClearConversation(ctx); err != nil {
		s.log.WithError(err).Warn("chat: clear remote conversation")
		return err
	}
	return nil
}

// Forget удаляет переписку браузера (при выходе).
func (s *Service) Forget(browserID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.convs[browserID]; ok {
		c.reset()
		delete(s.convs, browserID)
	}
}

func (s *Service) Messages(browserID string) []Message {
	s.mu.Lock()
	c, ok := s.convs[browserID]
	if ok {
		c.used = s.now()
	}
	s.mu.Unlock()
	if !ok {
		return nil
	}
	return c.messages()
}

func (s *Service) conversation(id string) *conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[id]
	if !ok {
		c = &conversation{}
		s.convs[id] = c
	}
	c.used = s.now()
	return c
}

// Expire забывает переписки, к которым не обращались дольше idle.
// Возвращает число удалённых.
func (s *Service) Expire(idle time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	n := 0
	for id, c := range s.convs {
		if now.Sub(c.used) > idle {
			delete(s.convs, id)
			n++
		}
	}
	if n > 0 {
		s.log.WithField("expired", n).Debug("chat: idle conversations dropped")
	}
	return n
}

func (s *Service) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.convs)
}

func errorMessage(err error) string {
	msg := ""
	var ne *models.NetworkError
	if errors.As(err, &ne) {
		msg = ne.Message
	} else if err != nil {
		msg = err.Error()
	}
	switch {
	case strings.Contains(msg, "No documents uploaded"):
		return msgNoDocuments
	case strings.Contains(msg, "No relevant information"):
		return msgNoRelevantInfo
	case msg == "":
		return msgQueryFailed
	}
	return msg
}

// conversation — сообщения одного браузера. epoch растёт при очистке, и
// ответы на вопросы до очистки отбрасываются.
type conversation struct {
	used time.Time // под Service.mu

	mu    sync.Mutex
	epoch uint64
	msgs  []Message
}

type slot struct {
	epoch uint64
	index int
}

func (c *conversation) ask(text string) slot {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	c.msgs = append(c.msgs,
		Message{Kind: KindUser, Text: text, At: now},
		Message{Kind: KindBot, Text: msgPending, At: now, Pending: true},
	)
	return slot{epoch: c.epoch, index: len(c.msgs) - 1}
}

func (c *conversation) answer(s slot, text string, failed bool) Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	m := Message{Kind: KindBot, Text: text, At: time.Now(), Failed: failed}
	if s.epoch != c.epoch || s.index >= len(c.msgs) {
		return m
	}
	c.msgs[s.index] = m
	return m
}

func (c *conversation) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epoch++
	c.msgs = nil
}

func (c *conversation) messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.msgs...)
}
