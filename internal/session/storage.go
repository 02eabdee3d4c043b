package session

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/securecookie"
)

// Имена cookie; выставляются и снимаются только парой.
const (
	TokenCookie = "access_token"
	UserCookie  = "user"
)

// Storage — порт хранения пары token/user между загрузками страниц.
// Пустой token или nil user означают «нет значения».
type Storage interface {
	Load() (token string, user []byte)
	Save(token string, user []byte) error
	Clear() error
}

// CookieCodec подписывает (и, если задан block key, шифрует) cookie сессии.
type CookieCodec struct {
	sc     *securecookie.SecureCookie
	maxAge int
	secure bool
}

func NewCookieCodec(hashKey, blockKey []byte, maxAge int, secure bool) *CookieCodec {
	if len(blockKey) == 0 {
		blockKey = nil
	}
	sc := securecookie.New(hashKey, blockKey)
	sc.SetSerializer(securecookie.JSONEncoder{})
	sc.MaxAge(maxAge)
	return &CookieCodec{sc: sc, maxAge: maxAge, secure: secure}
}

// Read читает пару из запроса. Подделанная, просроченная или битая cookie
// считается отсутствующей.
func (c *CookieCodec) Read(r *http.Request) (token string, user []byte) {
	token = c.decode(r, TokenCookie)
	if u := c.decode(r, UserCookie); u != "" {
		user = []byte(u)
	}
	return token, user
}

func (c *CookieCodec) decode(r *http.Request, name string) string {
	ck, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	var v string
	if err := c.sc.Decode(name, ck.Value, &v); err != nil {
		return ""
	}
	return v
}

func (c *CookieCodec) cookie(name, value string, maxAge int) *http.Cookie {
	ck := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	}
	if maxAge > 0 {
		ck.Expires = time.Now().Add(time.Duration(maxAge) * time.Second)
	} else if maxAge < 0 {
		ck.Expires = time.Unix(0, 0)
	}
	return ck
}

// Storage привязывает хранилище к паре запрос/ответ.
func (c *CookieCodec) Storage(w http.ResponseWriter, r *http.Request) *CookieStorage {
	return &CookieStorage{codec: c, w: w, r: r}
}

// CookieStorage — Storage поверх cookie access_token и user. Записи в рамках
// запроса кэшируются, чтобы Load после Save видел новое значение.
type CookieStorage struct {
	codec *CookieCodec
	w     http.ResponseWriter
	r     *http.Request

	mu      sync.Mutex
	written bool
	token   string
	user    []byte
}

func (s *CookieStorage) Load() (string, []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.written {
		return s.token, s.user
	}
	return s.codec.Read(s.r)
}

func (s *CookieStorage) Save(token string, user []byte) error {
	// кодируем обе cookie до записи: либо обе, либо ни одной
	tv, err := s.codec.sc.Encode(TokenCookie, token)
	if err != nil {
		return err
	}
	uv, err := s.codec.sc.Encode(UserCookie, string(user))
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	http.SetCookie(s.w, s.codec.cookie(TokenCookie, tv, s.codec.maxAge))
	http.SetCookie(s.w, s.codec.cookie(UserCookie, uv, s.codec.maxAge))
	s.written, s.token, s.user = true, token, append([]byte(nil), user...)
	return nil
}

func (s *CookieStorage) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	http.SetCookie(s.w, s.codec.cookie(TokenCookie, "", -1))
	http.SetCookie(s.w, s.codec.cookie(UserCookie, "", -1))
	s.written, s.token, s.user = true, "", nil
	return nil
}

// MemoryStorage — Storage в памяти.
type MemoryStorage struct {
	mu    sync.Mutex
	token string
	user  []byte
}

func NewMemoryStorage(token string, user []byte) *MemoryStorage {
	return &MemoryStorage{token: token, user: user}
}

func (m *MemoryStorage) Load() (string, []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token, m.user
}

func (m *MemoryStorage) Save(token string, user []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token, m.user = token, append([]byte(nil), user...)
	return nil
}

func (m *MemoryStorage) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token, m.user = "", nil
	return nil
}
