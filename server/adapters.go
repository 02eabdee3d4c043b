package server

import (
	"net/http"

	"github.com/gorilla/sessions"
	"gorm.io/gorm"

	"manualbase/config"
	"manualbase/internal/repo"
	"manualbase/internal/session"
)

// без БД история запросов живёт в памяти процесса
const memQueryCapacity = 500

func newCookieCodec(cfg *config.Config) *session.CookieCodec {
	return session.NewCookieCodec(
		[]byte(cfg.Session.HashKey),
		[]byte(cfg.Session.BlockKey),
		cfg.SessionMaxAge(),
		cfg.Session.Secure,
	)
}

// newUIStore — cookie-сессия браузера (id, выбор, уведомления); ключи
// общие с cookie аутентификации.
func newUIStore(cfg *config.Config) sessions.Store {
	var keys [][]byte
	if cfg.Session.BlockKey != "" {
		keys = [][]byte{[]byte(cfg.Session.HashKey), []byte(cfg.Session.BlockKey)}
	} else {
		keys = [][]byte{[]byte(cfg.Session.HashKey)}
	}
	st := sessions.NewCookieStore(keys...)
	st.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   cfg.SessionMaxAge(),
		HttpOnly: true,
		Secure:   cfg.Session.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	return st
}

func newQueryStore(db *gorm.DB) repo.QueryStore {
	return repo.NewQueryStore(db, memQueryCapacity)
}
