package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"

	"manualbase/internal/models"
)

func httpErrorMessage(status int) string {
	return fmt.Sprintf("HTTP error! status: %d", status)
}

type HealthResponse struct {
	Status string `json:"status"`
}

func (r *HealthResponse) validate() error {
	if r.Status == "" {
		return errors.New("missing status")
	}
	return nil
}

// Health — GET /health/.
func (c *Client) Health(ctx context.Context) (HealthResponse, error) {
	req, err := c.newJSONRequest(ctx, http.MethodGet, "/health/", nil)
	if err != nil {
		return HealthResponse{}, err
	}
	var out HealthResponse
	err = c.do(req, "health", &out)
	return out, err
}

type UploadRequest struct {
	File        io.Reader
	Filename    string
	CompanyName string
	ProductName string // опционально
	ProductCode string // опционально
}

type UploadRecord struct {
	ID          string `json:"_id"`
	CompanyName string `json:"company_name"`
	ProductName string `json:"product_name"`
	URI         string `json:"uri"`
	QRURI       string `json:"qr_uri,omitempty"`
}

type UploadResponse struct {
	Message  string        `json:"message"`
	Files    []string      `json:"files"`
	DBRecord *UploadRecord `json:"db_record"`
}

func (r *UploadResponse) validate() error {
	if r.DBRecord == nil {
		return errors.New("missing db_record")
	}
	return nil
}

// UploadPDF — POST /upload_pdf/ (multipart).
func (c *Client) UploadPDF(ctx context.Context, in UploadRequest) (UploadResponse, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, in.Filename))
	h.Set("Content-Type", "application/pdf")
	part, err := mw.CreatePart(h)
	if err != nil {
		return UploadResponse{}, err
	}
	if _, err := io.Copy(part, in.File); err != nil {
		return UploadResponse{}, fmt.Errorf("copy upload: %w", err)
	}
	fields := [][2]string{
		{"company_name", in.CompanyName},
		{"product_name", in.ProductName},
		{"product_code", in.ProductCode},
	}
	for i, f := range fields {
		// company_name обязателен, остальные — только если заданы
		if i > 0 && f[1] == "" {
			continue
		}
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return UploadResponse{}, err
		}
	}
	if err := mw.Close(); err != nil {
		return UploadResponse{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/upload_pdf/", &buf)
	if err != nil {
		return UploadResponse{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	var out UploadResponse
	err = c.do(req, "upload_pdf", &out)
	return out, err
}

type QueryRequest struct {
	Query       string `json:"query"`
	CompanyName string `json:"company_name,omitempty"`
	ProductName string `json:"product_name,omitempty"`
	ProductCode string `json:"product_code,omitempty"`
}

type QueryResponse struct {
	Response *string `json:"response"`
}

func (r *QueryResponse) validate() error {
	if r.Response == nil {
		return errors.New("missing response")
	}
	return nil
}

// Answer — текст ответа (может быть пустым).
func (r QueryResponse) Answer() string {
	if r.Response == nil {
		return ""
	}
	return *r.Response
}

// Query — POST /query/.
func (c *Client) Query(ctx context.Context, in QueryRequest) (QueryResponse, error) {
	req, err := c.newJSONRequest(ctx, http.MethodPost, "/query/", in)
	if err != nil {
		return QueryResponse{}, err
	}
	var out QueryResponse
	err = c.do(req, "query", &out)
	return out, err
}

type companiesResponse struct {
	Companies *[]string `json:"companies"`
}

func (r *companiesResponse) validate() error {
	if r.Companies == nil {
		return errors.New("missing companies")
	}
	return nil
}

// Companies — GET /companies/.
func (c *Client) Companies(ctx context.Context) ([]string, error) {
	req, err := c.newJSONRequest(ctx, http.MethodGet, "/companies/", nil)
	if err != nil {
		return nil, err
	}
	var out companiesResponse
	if err := c.do(req, "companies", &out); err != nil {
		return nil, err
	}
	return *out.Companies, nil
}

type currentCompanyResponse struct {
	CompanyName *string `json:"company_name"`
}

func (r *currentCompanyResponse) validate() error { return nil }

// CurrentCompany — GET /companies/current/; пустая строка, если компании нет.
func (c *Client) CurrentCompany(ctx context.Context) (string, error) {
	req, err := c.newJSONRequest(ctx, http.MethodGet, "/companies/current/", nil)
	if err != nil {
		return "", err
	}
	var out currentCompanyResponse
	if err := c.do(req, "current_company", &out); err != nil {
		return "", err
	}
	if out.CompanyName == nil {
		return "", nil
	}
	return *out.CompanyName, nil
}

type modelsResponse struct {
	Models *[]models.Manual `json:"models"`
}

func (r *modelsResponse) validate() error {
	if r.Models == nil {
		return errors.New("missing models")
	}
	for i, m := range *r.Models {
		if m.CompanyName == "" || m.ProductName == "" {
			return fmt.Errorf("models[%d]: missing company_name or product_name", i)
		}
	}
	return nil
}

// Models — GET /companies/{company}/models/.
func (c *Client) Models(ctx context.Context, company string) ([]models.Manual, error) {
	req, err := c.newJSONRequest(ctx, http.MethodGet, "/companies/"+url.PathEscape(company)+"/models/", nil)
	if err != nil {
		return nil, err
	}
	var out modelsResponse
	if err := c.do(req, "models", &out); err != nil {
		return nil, err
	}
	return *out.Models, nil
}

type filesResponse struct {
	Files *[]string `json:"files"`
}

func (r *filesResponse) validate() error {
	if r.Files == nil {
		return errors.New("missing files")
	}
	return nil
}

// UploadedFiles — GET /get_uploaded_files/.
func (c *Client) UploadedFiles(ctx context.Context) ([]string, error) {
	req, err := c.newJSONRequest(ctx, http.MethodGet, "/get_uploaded_files/", nil)
	if err != nil {
		return nil, err
	}
	var out filesResponse
	if err := c.do(req, "uploaded_files", &out); err != nil {
		return nil, err
	}
	return *out.Files, nil
}

type DeleteResponse struct {
	Message      string `json:"message"`
	MongoDeleted int    `json:"mongo_deleted"`
	ProductName  string `json:"product_name"`
	ProductCode  string `json:"product_code"`
}

func (r *DeleteResponse) validate() error {
	if r.Message == "" {
		return errors.New("missing message")
	}
	return nil
}

// DeleteManual — DELETE /delete_manual/ с form-телом {product_name, product_code}.
func (c *Client) DeleteManual(ctx context.Context, productName, productCode string) (DeleteResponse, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("product_name", productName)
	_ = mw.WriteField("product_code", productCode)
	if err := mw.Close(); err != nil {
		return DeleteResponse{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.base+"/delete_manual/", &buf)
	if err != nil {
		return DeleteResponse{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	var out DeleteResponse
	err = c.do(req, "delete_manual", &out)
	return out, err
}

type messageResponse struct {
	Message *string `json:"message"`
}

func (r *messageResponse) validate() error {
	if r.Message == nil {
		return errors.New("missing message")
	}
	return nil
}

// ClearConversation — POST /conversation/clear/.
func (c *Client) ClearConversation(ctx context.Context) (string, error) {
	req, err := c.newJSONRequest(ctx, http.MethodPost, "/conversation/clear/", nil)
	if err != nil {
		return "", err
	}
	var out messageResponse
	if err := c.do(req, "clear_conversation", &out); err != nil {
		return "", err
	}
	return *out.Message, nil
}

type QRBackfillResponse struct {
	Message      string `json:"message"`
	UpdatedCount int    `json:"updated_count"`
}

func (r *QRBackfillResponse) validate() error {
	if r.Message == "" {
		return errors.New("missing message")
	}
	return nil
}

// GenerateQRForExisting — POST /generate_qr_for_existing/.
func (c *Client) GenerateQRForExisting(ctx context.Context) (QRBackfillResponse, error) {
	req, err := c.newJSONRequest(ctx, http.MethodPost, "/generate_qr_for_existing/", nil)
	if err != nil {
		return QRBackfillResponse{}, err
	}
	var out QRBackfillResponse
	err = c.do(req, "generate_qr_for_existing", &out)
	return out, err
}

// UploadStatus — HTTP-статус неудачной загрузки (0 — ответа не было).
func UploadStatus(err error) int { return asStatus(err) }
