package chat

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"manualbase/internal/backend"
	"manualbase/internal/logs"
	"manualbase/internal/models"
)

type fakeAPI struct {
	mu      sync.Mutex
	queries []backend.QueryRequest
	answer  func(q string) (*string, error)
	gates   map[string]chan struct{}
	clears  int
}

func (f *fakeAPI) Query(_ context.Context, in backend.QueryRequest) (backend.QueryResponse, error) {
	f.mu.Lock()
	f.queries = append(f.queries, in)
	gate := f.gates[in.Query]
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	r, err := f.answer(in.Query)
	return backend.QueryResponse{Response: r}, err
}

func (f *fakeAPI) ClearConversation(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clears++
	return "Conversation cleared", nil
}

type memRecorder struct {
	mu   sync.Mutex
	recs []models.QueryRecord
}

func (m *memRecorder) Record(_ context.Context, r *models.QueryRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs = append(m.recs, *r)
	return nil
}

func (f *fakeAPI) waitQueries(t *testing.T, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		f.mu.Lock()
		got := len(f.queries)
		f.mu.Unlock()
		if got >= n {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected %d queries, got %d", n, got)
		}
		time.Sleep(time.Millisecond)
	}
}

func str(s string) *string { return &s }

func echo(q string) (*string, error) { return str("answer to " + q), nil }

func TestAskNoManualsShortCircuits(t *testing.T) {
	api := &fakeAPI{answer: echo}
	s := New(api, nil, logs.Discard())

	msg, err := s.Ask(context.Background(), "b1", Question{Text: "how to reset?"})
	if !errors.Is(err, ErrNoManuals) {
		t.Fatalf("expected ErrNoManuals, got %v", err)
	}
	if msg.Text != msgNoManuals {
		t.Fatalf("unexpected message %q", msg.Text)
	}
	if len(api.queries) != 0 {
		t.Fatal("no network call expected")
	}
	msgs := s.Messages("b1")
	if len(msgs) != 2 || msgs[0].Kind != KindUser || msgs[1].Text != msgNoManuals {
		t.Fatalf("unexpected conversation %+v", msgs)
	}
}

func TestAskBlankIgnored(t *testing.T) {
	s := New(&fakeAPI{answer: echo}, nil, logs.Discard())
	if _, err := s.Ask(context.Background(), "b1", Question{Text: "   ", HasManuals: true}); !errors.Is(err, ErrEmptyQuery) {
		t.Fatalf("expected ErrEmptyQuery, got %v", err)
	}
	if len(s.Messages("b1")) != 0 {
		t.Fatal("blank query must not be added")
	}
}

func TestAskSendsSelectionAndRecords(t *testing.T) {
	api := &fakeAPI{answer: echo}
	rec := &memRecorder{}
	s := New(api, rec, logs.Discard())
	sel := models.Selection{CompanyName: "Acme", ProductName: "Washer", ProductCode: "MFL55318536.pdf"}

	msg, err := s.Ask(context.Background(), "b1", Question{Text: "  drain? ", Selection: sel, HasManuals: true, UserEmail: "u@x.com"})
	if err != nil {
		t.Fatal(err)
	}
	if msg.Text != "answer to drain?" {
		t.Fatalf("unexpected answer %q", msg.Text)
	}
	q := api.queries[0]
	if q.Query != "drain?" || q.CompanyName != "Acme" || q.ProductCode != "MFL55318536.pdf" {
		t.Fatalf("unexpected request %+v", q)
	}
	if len(rec.recs) != 1 || rec.recs[0].UserEmail != "u@x.com" || rec.recs[0].Failed {
		t.Fatalf("unexpected records %+v", rec.recs)
	}
	var filters models.Selection
	if err := json.Unmarshal(rec.recs[0].Filters, &filters); err != nil || filters != sel {
		t.Fatalf("filters not recorded: %s", rec.recs[0].Filters)
	}
}

func TestAskErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		resp *string
		err  error
		want string
	}{
		{"empty answer", str(""), nil, msgEmptyAnswer},
		{"no documents", nil, &models.NetworkError{Status: 400, Message: "No documents uploaded yet"}, msgNoDocuments},
		{"no relevant", nil, &models.NetworkError{Status: 404, Message: "No relevant information found"}, msgNoRelevantInfo},
		{"server message", nil, &models.NetworkError{Status: 500, Message: "Error processing query"}, "Error processing query"},
		{"transport", nil, &models.NetworkError{Op: "query", Err: errors.New("refused")}, msgQueryFailed},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			api := &fakeAPI{answer: func(string) (*string, error) { return tc.resp, tc.err }}
			s := New(api, nil, logs.Discard())
			msg, _ := s.Ask(context.Background(), "b1", Question{Text: "q", HasManuals: true})
			if msg.Text != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, msg.Text)
			}
		})
	}
}

func TestAnswersKeepQuestionOrder(t *testing.T) {
	first := make(chan struct{})
	api := &fakeAPI{answer: echo, gates: map[string]chan struct{}{"first": first}}
	s := New(api, nil, logs.Discard())

	done := make(chan struct{})
	go func() {
		s.Ask(context.Background(), "b1", Question{Text: "first", HasManuals: true})
		close(done)
	}()
	api.waitQueries(t, 1)
	if _, err := s.Ask(context.Background(), "b1", Question{Text: "second", HasManuals: true}); err != nil {
		t.Fatal(err)
	}
	close(first)
	<-done

	msgs := s.Messages("b1")
	want := []string{"first", "answer to first", "second", "answer to second"}
	if len(msgs) != len(want) {
		t.Fatalf("unexpected conversation %+v", msgs)
	}
	for i, w := range want {
		if msgs[i].Text != w || msgs[i].Pending {
			t.Fatalf("message %d: expected %q, got %+v", i, w, msgs[i])
		}
	}
}

func TestClearDropsLateAnswer(t *testing.T) {
	gate := make(chan struct{})
	api := &fakeAPI{answer: echo, gates: map[string]chan struct{}{"slow": gate}}
	s := New(api, nil, logs.Discard())

	done := make(chan struct{})
	go func() {
		s.Ask(context.Background(), "b1", Question{Text: "slow", HasManuals: true})
		close(done)
	}()
	api.waitQueries(t, 1)
	if err := s.Clear(context.Background(), "b1"); err != nil {
		t.Fatal(err)
	}
	close(gate)
	<-done
	if msgs := s.Messages("b1"); len(msgs) != 0 {
		t.Fatalf("late answer resurrected cleared conversation: %+v", msgs)
	}
	if api.clears != 1 {
		t.Fatalf("remote clear not called")
	}
}

func TestExpireDropsIdleConversations(t *testing.T) {
	s := New(&fakeAPI{answer: echo}, nil, logs.Discard())
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	if _, err := s.Ask(context.Background(), "old", Question{Text: "hi", HasManuals: true}); err != nil {
		t.Fatal(err)
	}
	now = now.Add(90 * time.Minute)
	if _, err := s.Ask(context.Background(), "fresh", Question{Text: "hi", HasManuals: true}); err != nil {
		t.Fatal(err)
	}
	now = now.Add(40 * time.Minute)
	// чтение тоже продлевает жизнь переписки
	if len(s.Messages("fresh")) != 2 {
		t.Fatal("fresh conversation must keep its messages")
	}

	if n := s.Expire(time.Hour); n != 1 {
		t.Fatalf("expected one expired conversation, got %d", n)
	}
	if s.Len() != 1 || s.Messages("old") != nil {
		t.Fatal("idle conversation must be forgotten")
	}
	if len(s.Messages("fresh")) != 2 {
		t.Fatal("active conversation must survive")
	}
}
