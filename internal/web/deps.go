// Package web — страницы пользователя и администратора, формы и JSON API
// сканера.
package web

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/sessions"
	"github.com/sirupsen/logrus"

	"manualbase/internal/backend"
	"manualbase/internal/catalog"
	"manualbase/internal/chat"
	"manualbase/internal/middleware"
	"manualbase/internal/repo"
	"manualbase/internal/scan"
	"manualbase/internal/session"
)

// API — вызовы удалённого API, которые делают обработчики напрямую.
type API interface {
	session.Authenticator
	UploadPDF(ctx context.Context, in backend.UploadRequest) (backend.UploadResponse, error)
	DeleteManual(ctx context.Context, productName, productCode string) (backend.DeleteResponse, error)
	GenerateQRForExisting(ctx context.Context) (backend.QRBackfillResponse, error)
	CurrentCompany(ctx context.Context) (string, error)
	UploadedFiles(ctx context.Context) ([]string, error)
}

type Dependencies struct {
	API     API
	Catalog *catalog.Catalog
	Chat    *chat.Service
	Scans   *scan.Registry
	Queries repo.QueryStore
	Cookies *session.CookieCodec
	UI      sessions.Store
	Limiter *middleware.RateLimiter

	MaxUploadBytes int64
	Log            logrus.FieldLogger
}

func Attach(r *mux.Router, d Dependencies) {
	h := &Handler{d: d, t: parseTemplates()}

	r.PathPrefix("/static/").Handler(staticHandler()).Methods(http.MethodGet)
	r.HandleFunc("/", h.Index).Methods(http.MethodGet)

	// вход и регистрация; POST ограничен по частоте
	auth := r.NewRoute().Subrouter()
	if d.Limiter != nil {
		d.Limiter.OnLimit = http.HandlerFunc(h.tooManyAttempts)
		auth.Use(d.Limiter.Middleware)
	}
	auth.HandleFunc("/login", h.LoginPage).Methods(http.MethodGet)
	auth.HandleFunc("/login", h.Login).Methods(http.MethodPost)
	auth.HandleFunc("/signup", h.SignupPage).Methods(http.MethodGet)
	auth.HandleFunc("/signup", h.Signup).Methods(http.MethodPost)
	r.HandleFunc("/logout", h.Logout).Methods(http.MethodPost)

	user := r.PathPrefix("/user").Subrouter()
	user.HandleFunc("", h.UserPage).Methods(http.MethodGet)
	user.HandleFunc("/", h.UserPage).Methods(http.MethodGet)
	user.HandleFunc("/select", h.Select).Methods(http.MethodPost)
	user.HandleFunc("/query", h.Query).Methods(http.MethodPost)
	user.HandleFunc("/chat/clear", h.ClearChat).Methods(http.MethodPost)
	user.HandleFunc("/upload", h.UserUpload).Methods(http.MethodPost)

	sc := user.PathPrefix("/scan").Subrouter()
	sc.HandleFunc("", h.ScanSnapshot).Methods(http.MethodGet)
	sc.HandleFunc("/", h.ScanSnapshot).Methods(http.MethodGet)
	sc.HandleFunc("/start", h.ScanStart).Methods(http.MethodPost)
	sc.HandleFunc("/frame", h.ScanFrame).Methods(http.MethodPost)
	sc.HandleFunc("/confirm", h.ScanConfirm).Methods(http.MethodPost)
	sc.HandleFunc("/retry", h.ScanRetry).Methods(http.MethodPost)
	sc.HandleFunc("/close", h.ScanClose).Methods(http.MethodPost)

	admin := r.PathPrefix("/admin").Subrouter()
	admin.HandleFunc("", h.AdminPage).Methods(http.MethodGet)
	admin.HandleFunc("/", h.AdminPage).Methods(http.MethodGet)
	admin.HandleFunc("/upload", h.AdminUpload).Methods(http.MethodPost)
	admin.HandleFunc("/manuals/delete", h.DeleteManual).Methods(http.MethodPost)
	admin.HandleFunc("/qr/backfill", h.BackfillQR).Methods(http.MethodPost)
	admin.HandleFunc("/qr.png", h.QRCode).Methods(http.MethodGet)
}
