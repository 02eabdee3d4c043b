// Package session хранит аутентифицированную личность между загрузками
// страниц: пару token/user в Storage и её копию в памяти.
package session

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/sirupsen/logrus"

	"manualbase/internal/backend"
	"manualbase/internal/models"
)

// Authenticator — то, что Store нужно от auth API.
type Authenticator interface {
	Login(ctx context.Context, in backend.Credentials) (backend.AuthResponse, error)
	Signup(ctx context.Context, in backend.SignupRequest) (backend.AuthResponse, error)
	Me(ctx context.Context, token string) (models.User, error)
}

// Store — сессия одного браузера. Память и Storage меняются вместе под mu.
type Store struct {
	auth    Authenticator
	storage Storage
	log     logrus.FieldLogger

	mu    sync.Mutex
	token string
	user  *models.User
}

func New(auth Authenticator, storage Storage, log logrus.FieldLogger) *Store {
	return &Store{auth: auth, storage: storage, log: log}
}

// Verification — фоновая проверка сохранённой сессии, запущенная Init.
type Verification struct {
	done chan struct{}
}

func (v *Verification) Done() <-chan struct{} { return v.done }

// Wait блокируется до окончания проверки или отмены ctx.
func (v *Verification) Wait(ctx context.Context) error {
	select {
	case <-v.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func finished() *Verification {
	v := &Verification{done: make(chan struct{})}
	close(v.done)
	return v
}

// Init сразу выставляет сохранённого пользователя, если в Storage есть и
// token, и разбираемый user, и запускает проверку через RefreshUser.
// Половинчатая пара стирается.
func (s *Store) Init(ctx context.Context) *Verification {
	token, raw := s.storage.Load()
	u, ok := models.ParseUser(raw)
	if token == "" || !ok {
		if token != "" || len(raw) > 0 {
			s.log.Debug("session: dropping incomplete persisted pair")
			s.Logout()
		}
		return finished()
	}

	s.mu.Lock()
	s.token, s.user = token, &u
	s.mu.Unlock()

	v := &Verification{done: make(chan struct{})}
	go func() {
		defer close(v.done)
		s.RefreshUser(ctx)
	}()
	return v
}

// Login отправляет учётные данные и при успехе сохраняет пару.
// При отказе возвращает *models.AuthError и ничего не сохраняет.
func (s *Store) Login(ctx context.Context, email, password string) (models.User, error) {
	res, err := s.auth.Login(ctx, backend.Credentials{Email: email, Password: password})
	if err != nil {
		return models.User{}, err
	}
	if err := s.persist(res.AccessToken, res.User); err != nil {
		return models.User{}, err
	}
	s.log.WithField("email", res.User.Email).Info("session: logged in")
	return res.User, nil
}

// Signup — как Login, но создаёт учётную запись с ролью user.
func (s *Store) Signup(ctx context.Context, email, password string) (models.User, error) {
	res, err := s.auth.Signup(ctx, backend.SignupRequest{Email: email, Password: password, Role: models.RoleUser})
	if err != nil {
		return models.User{}, err
	}
	if err := s.persist(res.AccessToken, res.User); err != nil {
		return models.User{}, err
	}
	s.log.WithField("email", res.User.Email).Info("session: signed up")
	return res.User, nil
}

func (s *Store) persist(token string, u models.User) error {
	raw, err := json.Marshal(u)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.storage.Save(token, raw); err != nil {
		return err
	}
	s.token, s.user = token, &u
	return nil
}

// Logout безусловно стирает пару; повторный вызов ничего не меняет.
func (s *Store) Logout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.storage.Clear(); err != nil {
		s.log.WithError(err).Warn("session: clear storage")
	}
	s.token, s.user = "", nil
}

// RefreshUser перечитывает пользователя по сохранённому токену. Любая ошибка
// проверки (отказ, неожиданный ответ, сбой транспорта) стирает сессию, и
// вызывающий видит пустой результат. Ответ применяется, только если за время
// запроса токен не сменился.
func (s *Store) RefreshUser(ctx context.Context) (models.User, bool) {
	s.mu.Lock()
	token := s.token
	s.mu.Unlock()
	if token == "" {
		return models.User{}, false
	}

	u, err := s.auth.Me(ctx, token)
	if err != nil {
		s.log.WithError(err).Info("session: verification failed, logging out")
		s.mu.Lock()
		stale := s.token != token
		s.mu.Unlock()
		if !stale {
			s.Logout()
		}
		return s.User()
	}

	raw, err := json.Marshal(u)
	if err != nil {
		return s.User()
	}
	s.mu.Lock()
	if s.token == token {
		if err := s.storage.Save(token, raw); err != nil {
			s.log.WithError(err).Warn("session: persist refreshed user")
		}
		s.user = &u
	}
	s.mu.Unlock()
	return s.User()
}

// User — текущий пользователь; false, если сессии нет.
func (s *Store) User() (models.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil || s.token == "" {
		return models.User{}, false
	}
	return *s.user, true
}

func (s *Store) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

func (s *Store) IsAuthenticated() bool {
	_, ok := s.User()
	return ok
}

func (s *Store) IsAdmin() bool {
	u, ok := s.User()
	return ok && u.IsAdmin()
}
