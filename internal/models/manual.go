package models

// Manual — PDF-руководство в хранилище документов (клиент им не владеет).
type Manual struct {
	ID          string `json:"_id"`
	CompanyName string `json:"company_name"`
	ProductName string `json:"product_name"`
	Filename    string `json:"filename"`
	URI         string `json:"uri"`
	QRURI       string `json:"qr_uri,omitempty"`
}

// Selection — выбранное руководство, по которому фильтруются запросы.
// ProductCode заполняется именем файла руководства: хранилище идентифицирует
// продукт именно им.
type Selection struct {
	CompanyName string `json:"company_name"`
	ProductName string `json:"product_name"`
	ProductCode string `json:"product_code"`
}

func (s Selection) Empty() bool {
	return s.CompanyName == "" && s.ProductName == "" && s.ProductCode == ""
}
