package catalog

import (
	"io"
	"net/http"
	"strings"

	"manualbase/internal/backend"
	"manualbase/internal/models"
)

// UploadForm — поля формы загрузки PDF.
type UploadForm struct {
	File        io.ReadSeeker
	Filename    string
	Size        int64
	CompanyName string
	ProductName string
	ProductCode string
}

// ValidateUpload проверяет форму до любого сетевого вызова.
func ValidateUpload(f UploadForm, maxBytes int64) error {
	if f.File == nil || f.Size == 0 {
		return &models.ValidationError{Field: "file", Message: "Please select a file to upload"}
	}
	if strings.TrimSpace(f.CompanyName) == "" {
		return &models.ValidationError{Field: "company_name", Message: "Please enter a company name"}
	}
	if !isPDF(f.File) {
		return &models.ValidationError{Field: "file", Message: "Please select a PDF file"}
	}
	if f.Size > maxBytes {
		return &models.ValidationError{Field: "file", Message: "File size must be less than 10MB"}
	}
	return nil
}

func isPDF(rs io.ReadSeeker) bool {
	head := make([]byte, 512)
	n, _ := io.ReadFull(rs, head)
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return false
	}
	return http.DetectContentType(head[:n]) == "application/pdf"
}

// Request переводит форму в запрос к API.
func (f UploadForm) Request() backend.UploadRequest {
	return backend.UploadRequest{
		File:        f.File,
		Filename:    f.Filename,
		CompanyName: strings.TrimSpace(f.CompanyName),
		ProductName: strings.TrimSpace(f.ProductName),
		ProductCode: strings.TrimSpace(f.ProductCode),
	}
}

// UploadErrorMessage — текст уведомления о неудачной загрузке.
func UploadErrorMessage(err error) string {
	switch backend.UploadStatus(err) {
	case http.StatusRequestEntityTooLarge:
		return "File too large. Please select a smaller file."
	case http.StatusBadRequest:
		return "Invalid file format or missing required information."
	}
	if err == nil || err.Error() == "" {
		return "Upload failed"
	}
	return err.Error()
}
