package scan

import (
	"encoding/json"
	"strings"

	"manualbase/internal/models"
)

const invalidPayload = "Invalid QR code format. Please scan a valid QR code."

// ParsePayload разбирает текст QR-кода: JSON-объект со строковыми
// непустыми company_name, product_name и product_code. Прочие поля
// игнорируются.
func ParsePayload(text string) (models.ScanResult, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &raw); err != nil || raw == nil {
		return models.ScanResult{}, &models.ValidationError{Field: "payload", Message: invalidPayload}
	}
	var res models.ScanResult
	for _, f := range []struct {
		name string
		dst  *string
	}{
		{"company_name", &res.CompanyName},
		{"product_name", &res.ProductName},
		{"product_code", &res.ProductCode},
	} {
		v, ok := raw[f.name]
		if !ok {
			return models.ScanResult{}, &models.ValidationError{
				Field:   f.name,
				Message: "Invalid QR code format. Missing required fields.",
			}
		}
		if err := json.Unmarshal(v, f.dst); err != nil || strings.TrimSpace(*f.dst) == "" {
			return models.ScanResult{}, &models.ValidationError{
				Field:   f.name,
				Message: "Invalid QR code format. Missing required fields.",
			}
		}
	}
	return res, nil
}
