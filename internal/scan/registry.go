package scan

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Session — процесс сканирования одного браузера вместе с его камерой.
type Session struct {
	Workflow *Workflow
	Camera   *PushCamera

	used time.Time // под Registry.mu
}

// Registry держит не более одного процесса на браузер: открытие нового
// закрывает предыдущий.
type Registry struct {
	dec Decoder
	log logrus.FieldLogger

	mu       sync.Mutex
	sessions map[string]*Session
	now      func() time.Time
}

func NewRegistry(dec Decoder, log logrus.FieldLogger) *Registry {
	return &Registry{dec: dec, log: log, sessions: make(map[string]*Session), now: time.Now}
}

func (r *Registry) Open(browserID string) *Session {
	cam := NewPushCamera()
	s := &Session{
		Camera:   cam,
		Workflow: NewWorkflow(NewFrameReader(cam, r.dec, r.log), r.log.WithField("browser", browserID)),
	}
	r.mu.Lock()
	s.used = r.now()
	prev := r.sessions[browserID]
	r.sessions[browserID] = s
	r.mu.Unlock()
	if prev != nil {
		prev.Workflow.Close()
	}
	return s
}

func (r *Registry) Get(browserID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[browserID]
	if ok {
		s.used = r.now()
	}
	return s, ok
}

// Close закрывает и забывает процесс браузера.
func (r *Registry) Close(browserID string) {
	r.mu.Lock()
	s := r.sessions[browserID]
	delete(r.sessions, browserID)
	r.mu.Unlock()
	if s != nil {
		s.Workflow.Close()
	}
}

// Expire закрывает процессы, к которым браузер не обращался дольше idle
// (вкладку закрыли, не нажав Close).
func (r *Registry) Expire(idle time.Duration) int {
	r.mu.Lock()
	now := r.now()
	var idleSessions []*Session
	for id, s := range r.sessions {
		if now.Sub(s.used) > idle {
			idleSessions = append(idleSessions, s)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()
	for _, s := range idleSessions {
		s.Workflow.Close()
	}
	if len(idleSessions) > 0 {
		r.log.WithField("expired", len(idleSessions)).Debug("scan: idle workflows closed")
	}
	return len(idleSessions)
}

// CloseAll — при остановке сервера.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	all := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()
	for _, s := range all {
		s.Workflow.Close()
	}
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
