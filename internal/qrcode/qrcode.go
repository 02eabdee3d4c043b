// Package qrcode выпускает QR-коды выбора руководства.
package qrcode

import (
	"encoding/json"
	"fmt"
	"strings"

	goqr "github.com/skip2/go-qrcode"

	"manualbase/internal/models"
)

const DefaultSize = 300

// Payload — JSON, который читает сканер.
func Payload(r models.ScanResult) (string, error) {
	if err := validate(r); err != nil {
		return "", err
	}
	b, err := json.Marshal(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// PNG рисует код со стороной size пикселей (DefaultSize, если size <= 0).
func PNG(r models.ScanResult, size int) ([]byte, error) {
	payload, err := Payload(r)
	if err != nil {
		return nil, err
	}
	if size <= 0 {
		size = DefaultSize
	}
	png, err := goqr.Encode(payload, goqr.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("qrcode encode: %w", err)
	}
	return png, nil
}

// Filename — имя файла для скачивания.
func Filename(r models.ScanResult) string {
	return "qr-code-" + r.ProductCode + ".png"
}

func validate(r models.ScanResult) error {
	for _, f := range []struct{ name, v string }{
		{"company_name", r.CompanyName},
		{"product_name", r.ProductName},
		{"product_code", r.ProductCode},
	} {
		if strings.TrimSpace(f.v) == "" {
			return &models.ValidationError{Field: f.name, Message: "Please fill in " + strings.ReplaceAll(f.name, "_", " ")}
		}
	}
	return nil
}
