package web

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"

	"manualbase/internal/middleware"
	"manualbase/internal/models"
)

const (
	uiSessionName = "mb_ui"

	keyBrowser = "bid"
	keyCompany = "sel_company"
	keyProduct = "sel_product"
	keyCode    = "sel_code"

	flashError   = "error"
	flashSuccess = "success"
)

// uiState — служебная cookie-сессия браузера: id, выбор руководства и
// одноразовые уведомления. Аутентификация в ней не хранится.
type uiState struct {
	s *sessions.Session
	w http.ResponseWriter
	r *http.Request
}

func (h *Handler) ui(w http.ResponseWriter, r *http.Request) *uiState {
	s, err := h.d.UI.Get(r, uiSessionName)
	if err != nil {
		// битая или чужая cookie: начинаем новую сессию
		middleware.Log(r).WithError(err).Debug("ui session reset")
		s, _ = h.d.UI.New(r, uiSessionName)
	}
	st := &uiState{s: s, w: w, r: r}
	if _, ok := s.Values[keyBrowser].(string); !ok {
		s.Values[keyBrowser] = uuid.NewString()
	}
	return st
}

func (u *uiState) BrowserID() string {
	id, _ := u.s.Values[keyBrowser].(string)
	return id
}

func (u *uiState) Selection() models.Selection {
	str := func(k string) string { v, _ := u.s.Values[k].(string); return v }
	return models.Selection{
		CompanyName: str(keyCompany),
		ProductName: str(keyProduct),
		ProductCode: str(keyCode),
	}
}

func (u *uiState) SetSelection(sel models.Selection) {
	u.s.Values[keyCompany] = sel.CompanyName
	u.s.Values[keyProduct] = sel.ProductName
	u.s.Values[keyCode] = sel.ProductCode
}

func (u *uiState) Flash(kind, msg string) { u.s.AddFlash(msg, kind) }

// Flashes забирает уведомления; показываются один раз.
func (u *uiState) Flashes() map[string][]string {
	out := make(map[string][]string)
	for _, kind := range []string{flashError, flashSuccess} {
		for _, f := range u.s.Flashes(kind) {
			if s, ok := f.(string); ok {
				out[kind] = append(out[kind], s)
			}
		}
	}
	return out
}

// Reset забывает выбор и id браузера (при выходе).
func (u *uiState) Reset() {
	for _, k := range []string{keyCompany, keyProduct, keyCode} {
		delete(u.s.Values, k)
	}
	u.s.Values[keyBrowser] = uuid.NewString()
}

// Save пишет cookie; вызывать до записи тела ответа.
func (u *uiState) Save() {
	if err := u.s.Save(u.r, u.w); err != nil {
		middleware.Log(u.r).WithError(err).Warn("ui session save")
	}
}

func (u *uiState) redirect(to string) {
	u.Save()
	http.Redirect(u.w, u.r, to, http.StatusSeeOther)
}
