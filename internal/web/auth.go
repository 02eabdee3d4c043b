package web

import (
	"errors"
	"net/http"
	"strings"

	"manualbase/internal/middleware"
	"manualbase/internal/models"
	"manualbase/internal/session"
)

const msgUnavailable = "Unable to reach the server. Please try again."

type Handler struct {
	d Dependencies
	t pageTemplates
}

// sessionFor — хранилище сессии поверх cookie этого запроса.
func (h *Handler) sessionFor(w http.ResponseWriter, r *http.Request) *session.Store {
	return session.New(h.d.API, h.d.Cookies.Storage(w, r), middleware.Log(r))
}

func pageTitle(page string) string {
	if page == "signup.tmpl" {
		return "Create an account"
	}
	return "Login to Manual Base"
}

func homeFor(u models.User) string {
	if u.IsAdmin() {
		return "/admin"
	}
	return "/user"
}

// Index отправляет на страницу по роли сохранённого пользователя.
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	token, raw := h.d.Cookies.Read(r)
	u, ok := models.ParseUser(raw)
	if token == "" || !ok {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, homeFor(u), http.StatusSeeOther)
}

func (h *Handler) LoginPage(w http.ResponseWriter, r *http.Request) {
	ui := h.ui(w, r)
	flashes := ui.Flashes()
	ui.Save()
	h.render(w, r, http.StatusOK, "login.tmpl", map[string]any{
		"Title":   pageTitle("login.tmpl"),
		"Flashes": flashes,
	})
}

func (h *Handler) SignupPage(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "signup.tmpl", map[string]any{
		"Title": pageTitle("signup.tmpl"),
	})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(r.PostFormValue("email"))
	password := r.PostFormValue("password")
	if email == "" || password == "" {
		h.authFailed(w, r, "login.tmpl", email, &models.ValidationError{Field: "email", Message: "Please enter your email and password"})
		return
	}
	u, err := h.sessionFor(w, r).Login(r.Context(), email, password)
	if err != nil {
		h.authFailed(w, r, "login.tmpl", email, err)
		return
	}
	middleware.Log(r).WithField("email", u.Email).Info("login")
	http.Redirect(w, r, homeFor(u), http.StatusSeeOther)
}

func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(r.PostFormValue("email"))
	password := r.PostFormValue("password")
	if email == "" || password == "" {
		h.authFailed(w, r, "signup.tmpl", email, &models.ValidationError{Field: "email", Message: "Please enter your email and password"})
		return
	}
	if password != r.PostFormValue("confirm") {
		h.authFailed(w, r, "signup.tmpl", email, &models.ValidationError{Field: "confirm", Message: "Passwords do not match"})
		return
	}
	u, err := h.sessionFor(w, r).Signup(r.Context(), email, password)
	if err != nil {
		h.authFailed(w, r, "signup.tmpl", email, err)
		return
	}
	middleware.Log(r).WithField("email", u.Email).Info("signup")
	http.Redirect(w, r, homeFor(u), http.StatusSeeOther)
}

// authFailed показывает ошибку прямо в форме.
func (h *Handler) authFailed(w http.ResponseWriter, r *http.Request, page, email string, err error) {
	status, msg := http.StatusBadGateway, msgUnavailable
	var ae *models.AuthError
	var ve *models.ValidationError
	switch {
	case errors.As(err, &ae):
		status, msg = http.StatusUnauthorized, ae.Message
	case errors.As(err, &ve):
		status, msg = http.StatusBadRequest, ve.Message
	default:
		middleware.Log(r).WithError(err).Warn("auth request failed")
	}
	h.render(w, r, status, page, map[string]any{
		"Title": pageTitle(page),
		"Email": email,
		"Error": msg,
	})
}

func (h *Handler) tooManyAttempts(w http.ResponseWriter, r *http.Request) {
	page := "login.tmpl"
	if strings.HasPrefix(r.URL.Path, "/signup") {
		page = "signup.tmpl"
	}
	h.render(w, r, http.StatusTooManyRequests, page, map[string]any{
		"Title": pageTitle(page),
		"Error": "Too many attempts. Please wait a minute and try again.",
	})
}

// Logout стирает сессию и всё, что привязано к браузеру.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.sessionFor(w, r).Logout()
	ui := h.ui(w, r)
	bid := ui.BrowserID()
	h.d.Chat.Forget(bid)
	h.d.Scans.Close(bid)
	ui.Reset()
	ui.Flash(flashSuccess, "You have been logged out")
	ui.redirect("/login")
}
