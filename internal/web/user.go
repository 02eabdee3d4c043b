package web

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"manualbase/internal/catalog"
	"manualbase/internal/chat"
	"manualbase/internal/middleware"
	"manualbase/internal/models"
)

// UserPage — чат, выбор руководства, загрузка и сканер. Проверка
// сохранённой сессии идёт параллельно с обновлением каталога.
func (h *Handler) UserPage(w http.ResponseWriter, r *http.Request) {
	ui := h.ui(w, r)
	st := h.sessionFor(w, r)
	ver := st.Init(r.Context())
	snap, loadErr := h.d.Catalog.Refresh(r.Context())
	<-ver.Done()

	u, ok := st.User()
	if !ok {
		ui.Flash(flashError, "Your session has expired. Please log in again.")
		ui.redirect("/login")
		return
	}
	var le *catalog.LoadError
	if errors.As(loadErr, &le) {
		ui.Flash(flashError, le.Message)
	}

	sel := ui.Selection()
	if sel.Empty() {
		if c := h.defaultCompany(r, snap); c != "" {
			sel = models.Selection{CompanyName: c}
			ui.SetSelection(sel)
		}
	}
	flashes := ui.Flashes()
	ui.Save()
	h.render(w, r, http.StatusOK, "user.tmpl", map[string]any{
		"Title":     "Manual Base",
		"User":      u,
		"Flashes":   flashes,
		"Catalog":   snap,
		"Selection": sel,
		"Products":  snap.Products(sel.CompanyName),
		"Messages":  h.d.Chat.Messages(ui.BrowserID()),
		"MaxUpload": h.d.MaxUploadBytes,
	})
}

// defaultCompany — последняя компания, в которую загружали руководство,
// если она есть в каталоге.
func (h *Handler) defaultCompany(r *http.Request, snap catalog.Snapshot) string {
	if snap.Empty() {
		return ""
	}
	c, err := h.d.API.CurrentCompany(r.Context())
	if err != nil {
		middleware.Log(r).WithError(err).Debug("current company")
		return ""
	}
	if !snap.HasCompany(c) {
		return ""
	}
	return c
}

// catalogSnapshot — текущий каталог, загружая его при первом обращении.
func (h *Handler) catalogSnapshot(ctx context.Context) catalog.Snapshot {
	snap := h.d.Catalog.Snapshot()
	if !snap.Loaded() {
		snap, _ = h.d.Catalog.Refresh(ctx)
	}
	return snap
}

// Select запоминает выбранные компанию и продукт; код продукта берётся
// из каталога.
func (h *Handler) Select(w http.ResponseWriter, r *http.Request) {
	ui := h.ui(w, r)
	company := strings.TrimSpace(r.PostFormValue("company_name"))
	product := strings.TrimSpace(r.PostFormValue("product_name"))
	snap := h.catalogSnapshot(r.Context())
	sel, err := snap.Select(company, product)
	if err != nil && company != ui.Selection().CompanyName {
		// смена компании сбрасывает продукт
		sel, err = snap.Select(company, "")
	}
	if err != nil {
		ui.Flash(flashError, "Please select a product from the list")
		ui.redirect("/user")
		return
	}
	ui.SetSelection(sel)
	ui.redirect("/user")
}

func (h *Handler) Query(w http.ResponseWriter, r *http.Request) {
	ui := h.ui(w, r)
	_, raw := h.d.Cookies.Read(r)
	u, _ := models.ParseUser(raw)
	snap := h.catalogSnapshot(r.Context())

	_, err := h.d.Chat.Ask(r.Context(), ui.BrowserID(), chat.Question{
		Text:       r.PostFormValue("query"),
		Selection:  ui.Selection(),
		HasManuals: !snap.Empty(),
		UserEmail:  u.Email,
	})
	switch {
	case err == nil, errors.Is(err, chat.ErrEmptyQuery):
	case errors.Is(err, chat.ErrNoManuals):
		ui.Flash(flashError, "No manuals available")
	default:
		ui.Flash(flashError, "Failed to get response from AI")
	}
	ui.redirect("/user#chat")
}

// ClearChat начинает новую переписку.
func (h *Handler) ClearChat(w http.ResponseWriter, r *http.Request) {
	ui := h.ui(w, r)
	if err := h.d.Chat.Clear(r.Context(), ui.BrowserID()); err != nil {
		middleware.Log(r).WithError(err).Warn("clear conversation")
	}
	ui.redirect("/user")
}

func (h *Handler) UserUpload(w http.ResponseWriter, r *http.Request) {
	h.upload(w, r, "/user")
}
