package models

// ScanResult — проверенная тройка из QR-кода руководства.
type ScanResult struct {
	CompanyName string `json:"company_name"`
	ProductName string `json:"product_name"`
	ProductCode string `json:"product_code"`
}

func (s ScanResult) Selection() Selection {
	return Selection{
		CompanyName: s.CompanyName,
		ProductName: s.ProductName,
		ProductCode: s.ProductCode,
	}
}
