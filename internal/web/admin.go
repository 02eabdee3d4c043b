package web

import (
	"errors"
	"fmt"
	"html/template"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"manualbase/internal/catalog"
	"manualbase/internal/middleware"
	"manualbase/internal/models"
	"manualbase/internal/qrcode"
	"manualbase/internal/repo"
)

const (
	recentQueries = 20
	statsWindow   = 500
)

// AdminPage — метрики, таблица руководств с поиском, история запросов и
// генератор QR-кодов.
func (h *Handler) AdminPage(w http.ResponseWriter, r *http.Request) {
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
	if !u.IsAdmin() {
		ui.redirect("/user")
		return
	}
	var le *catalog.LoadError
	if errors.As(loadErr, &le) {
		ui.Flash(flashError, le.Message)
	}

	ctx := r.Context()
	recent, err := h.d.Queries.Recent(ctx, statsWindow)
	if err != nil {
		middleware.Log(r).WithError(err).Warn("load query history")
	}
	total, _ := h.d.Queries.Count(ctx)
	files, err := h.d.API.UploadedFiles(ctx)
	if err != nil {
		middleware.Log(r).WithError(err).Warn("load uploaded files")
	}

	q := r.URL.Query()
	qr := models.ScanResult{
		CompanyName: strings.TrimSpace(q.Get("qr_company")),
		ProductName: strings.TrimSpace(q.Get("qr_product")),
		ProductCode: strings.TrimSpace(q.Get("qr_code")),
	}
	var qrPayload, qrError string
	if qr != (models.ScanResult{}) {
		if p, err := qrcode.Payload(qr); err != nil {
			qrError = err.Error()
		} else {
			qrPayload = p
		}
	}

	shown := recent
	if len(shown) > recentQueries {
		shown = shown[:recentQueries]
	}
	flashes := ui.Flashes()
	ui.Save()
	h.render(w, r, http.StatusOK, "admin.tmpl", map[string]any{
		"Title":        "Admin Dashboard",
		"User":         u,
		"Flashes":      flashes,
		"Catalog":      snap,
		"Search":       q.Get("q"),
		"Rows":         snap.Filter(q.Get("q")),
		"Queries":      shown,
		"QueryTotal":   total,
		"TopProducts":  repo.TopProducts(recent, 3),
		"QR":           qr,
		"QRPayload":    qrPayload,
		"QRImage":      template.URL("/admin/qr.png?" + qrQuery(qr)),
		"QRDownload":   template.URL("/admin/qr.png?" + qrQuery(qr) + "&download=1"),
		"QRError":      qrError,
		"MaxUpload":    h.d.MaxUploadBytes,
		"ManualsCount": len(snap.Manuals),
		"Files":        files,
		"Unindexed":    snap.Unindexed(files),
	})
}

func qrQuery(r models.ScanResult) string {
	return url.Values{
		"company_name": {r.CompanyName},
		"product_name": {r.ProductName},
		"product_code": {r.ProductCode},
	}.Encode()
}

func (h *Handler) AdminUpload(w http.ResponseWriter, r *http.Request) {
	h.upload(w, r, "/admin")
}

func (h *Handler) DeleteManual(w http.ResponseWriter, r *http.Request) {
	ui := h.ui(w, r)
	name := strings.TrimSpace(r.PostFormValue("product_name"))
	code := strings.TrimSpace(r.PostFormValue("product_code"))
	if name == "" || code == "" {
		ui.Flash(flashError, "Delete failed")
		ui.redirect("/admin")
		return
	}
	resp, err := h.d.API.DeleteManual(r.Context(), name, code)
	if err != nil {
		middleware.Log(r).WithError(err).Warn("delete manual")
		ui.Flash(flashError, errorText(err, "Delete failed"))
		ui.redirect("/admin")
		return
	}
	middleware.Log(r).WithFields(logrus.Fields{"product": name, "code": code}).Info("manual deleted")
	ui.Flash(flashSuccess, resp.Message)
	if _, err := h.d.Catalog.Refresh(r.Context()); err != nil {
		ui.Flash(flashError, "Delete successful but failed to refresh data")
	}
	ui.redirect("/admin")
}

// BackfillQR просит хранилище выпустить QR-коды для руководств без них.
func (h *Handler) BackfillQR(w http.ResponseWriter, r *http.Request) {
	ui := h.ui(w, r)
	resp, err := h.d.API.GenerateQRForExisting(r.Context())
	if err != nil {
		ui.Flash(flashError, errorText(err, "Failed to generate QR codes"))
		ui.redirect("/admin")
		return
	}
	ui.Flash(flashSuccess, fmt.Sprintf("%s (%d updated)", resp.Message, resp.UpdatedCount))
	ui.redirect("/admin")
}

// QRCode отдаёт PNG с полезной нагрузкой сканера; download=1 — вложением.
func (h *Handler) QRCode(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res := models.ScanResult{
		CompanyName: strings.TrimSpace(q.Get("company_name")),
		ProductName: strings.TrimSpace(q.Get("product_name")),
		ProductCode: strings.TrimSpace(q.Get("product_code")),
	}
	size, _ := strconv.Atoi(q.Get("size"))
	if size > 1024 {
		size = 1024
	}
	png, err := qrcode.PNG(res, size)
	if err != nil {
		var ve *models.ValidationError
		if errors.As(err, &ve) {
			models.WriteProblem(w, http.StatusBadRequest, "Bad Request", ve.Message, map[string]any{"field": ve.Field})
			return
		}
		middleware.Log(r).WithError(err).Error("qr generate")
		models.WriteProblem(w, http.StatusInternalServerError, "Internal Server Error", "Failed to generate QR code", nil)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	if q.Get("download") == "1" {
		w.Header().Set("Content-Disposition",
			mime.FormatMediaType("attachment", map[string]string{"filename": qrcode.Filename(res)}))
	}
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(png)
}

// errorText — сообщение сервера или fallback, если ответа не было.
func errorText(err error, fallback string) string {
	var ne *models.NetworkError
	if errors.As(err, &ne) && ne.Message != "" {
		return ne.Message
	}
	return fallback
}
