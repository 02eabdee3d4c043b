package web

import (
	"errors"
	"net/http"

	"manualbase/internal/catalog"
	"manualbase/internal/middleware"
	"manualbase/internal/models"
)

const multipartSlack = 1 << 20

// upload — общая загрузка PDF со страниц пользователя и администратора.
// Проверки формы выполняются до обращения к API.
func (h *Handler) upload(w http.ResponseWriter, r *http.Request, back string) {
	ui := h.ui(w, r)
	fail := func(msg string) {
		ui.Flash(flashError, msg)
		ui.redirect(back)
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.d.MaxUploadBytes+multipartSlack)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			fail("File size must be less than 10MB")
			return
		}
		fail("Please select a file to upload")
		return
	}
	defer r.MultipartForm.RemoveAll()

	form := catalog.UploadForm{
		CompanyName: r.FormValue("company_name"),
		ProductName: r.FormValue("product_name"),
		ProductCode: r.FormValue("product_code"),
	}
	if f, fh, err := r.FormFile("file"); err == nil {
		defer f.Close()
		form.File, form.Filename, form.Size = f, fh.Filename, fh.Size
	}
	if err := catalog.ValidateUpload(form, h.d.MaxUploadBytes); err != nil {
		var ve *models.ValidationError
		if errors.As(err, &ve) {
			fail(ve.Message)
			return
		}
		fail(err.Error())
		return
	}

	resp, err := h.d.API.UploadPDF(r.Context(), form.Request())
	if err != nil {
		middleware.Log(r).WithError(err).Warn("upload failed")
		fail(catalog.UploadErrorMessage(err))
		return
	}
	msg := resp.Message
	if msg == "" {
		msg = "File uploaded successfully"
	}
	ui.Flash(flashSuccess, msg)
	if _, err := h.d.Catalog.Refresh(r.Context()); err != nil {
		ui.Flash(flashError, "Upload successful but failed to refresh data")
	}
	ui.redirect(back)
}
