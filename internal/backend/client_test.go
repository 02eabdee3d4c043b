package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"manualbase/internal/logs"
	"manualbase/internal/models"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(srv.URL, WithHTTPClient(srv.Client()), WithLogger(logs.Discard()))
}

func TestLoginSuccess(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/auth/login" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			return
		}
		var in Credentials
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			t.Errorf("decode: %v", err)
			return
		}
		if in.Email != "admin@x.com" || in.Password != "secret" {
			t.Errorf("unexpected credentials %+v", in)
		}
		_, _ = io.WriteString(w, `{"access_token":"tok","token_type":"bearer","user":{"id":"1","email":"admin@x.com","role":"admin","created_at":"2024-01-01T00:00:00"}}`)
	}))

	res, err := c.Login(context.Background(), Credentials{Email: "admin@x.com", Password: "secret"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if res.AccessToken != "tok" || res.User.Role != models.RoleAdmin {
		t.Fatalf("unexpected response %+v", res)
	}
}

func TestLoginRejected(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"detail", `{"detail":"Incorrect email or password"}`, "Incorrect email or password"},
		{"no body", ``, "Login failed"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = io.WriteString(w, tc.body)
			}))
			_, err := c.Login(context.Background(), Credentials{Email: "a@x.com", Password: "bad"})
			var ae *models.AuthError
			if !errors.As(err, &ae) {
				t.Fatalf("expected AuthError, got %T %v", err, err)
			}
			if ae.Message != tc.want || ae.Status != http.StatusUnauthorized {
				t.Fatalf("unexpected auth error %+v", ae)
			}
		})
	}
}

func TestLoginMalformedUserIsNetworkError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"access_token":"tok","user":{"id":"1","email":"a@x.com","role":"root"}}`)
	}))
	_, err := c.Login(context.Background(), Credentials{Email: "a@x.com", Password: "p"})
	var ne *models.NetworkError
	if !errors.As(err, &ne) {
		t.Fatalf("expected NetworkError, got %T %v", err, err)
	}
}

func TestMeSendsBearerToken(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"detail":"Could not validate credentials"}`)
			return
		}
		_, _ = io.WriteString(w, `{"id":"1","email":"u@x.com","role":"user","created_at":""}`)
	}))

	u, err := c.Me(context.Background(), "tok")
	if err != nil || u.Email != "u@x.com" {
		t.Fatalf("me: %+v %v", u, err)
	}
	_, err = c.Me(context.Background(), "stale")
	var ae *models.AuthError
	if !errors.As(err, &ae) || ae.Message != "Could not validate credentials" {
		t.Fatalf("expected AuthError, got %v", err)
	}
}

func TestCompaniesMissingFieldFailsFast(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"items":[]}`)
	}))
	if _, err := c.Companies(context.Background()); err == nil {
		t.Fatal("expected shape error")
	}
}

func TestModelsEscapesCompany(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.EscapedPath() != "/companies/ACME%20Co/models/" {
			t.Errorf("unexpected path %s", r.URL.EscapedPath())
		}
		_, _ = io.WriteString(w, `{"models":[{"_id":"m1","company_name":"ACME Co","product_name":"Oven","filename":"OV-1.pdf","uri":"https://x/ov.pdf","qr_uri":null}]}`)
	}))
	ms, err := c.Models(context.Background(), "ACME Co")
	if err != nil {
		t.Fatalf("models: %v", err)
	}
	if len(ms) != 1 || ms[0].Filename != "OV-1.pdf" {
		t.Fatalf("unexpected models %+v", ms)
	}
}

func TestUploadPDFMultipart(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
			return
		}
		if r.FormValue("company_name") != "ACME" || r.FormValue("product_name") != "Oven" {
			t.Errorf("unexpected form %v", r.MultipartForm.Value)
		}
		if _, ok := r.MultipartForm.Value["product_code"]; ok {
			t.Error("empty product_code must not be sent")
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Errorf("form file: %v", err)
			return
		}
		defer f.Close()
		b, _ := io.ReadAll(f)
		if hdr.Filename != "oven.pdf" || string(b) != "%PDF-1.4" {
			t.Errorf("unexpected file %s %q", hdr.Filename, b)
		}
		_, _ = io.WriteString(w, `{"message":"PDF oven.pdf processed successfully","files":["oven.pdf"],"db_record":{"_id":"1","company_name":"ACME","product_name":"Oven","uri":"u"}}`)
	}))
	res, err := c.UploadPDF(context.Background(), UploadRequest{
		File:        strings.NewReader("%PDF-1.4"),
		Filename:    "oven.pdf",
		CompanyName: "ACME",
		ProductName: "Oven",
	})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if res.DBRecord.CompanyName != "ACME" {
		t.Fatalf("unexpected record %+v", res.DBRecord)
	}
}

func TestUploadTooLargeKeepsStatus(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusRequestEntityTooLarge)
	}))
	_, err := c.UploadPDF(context.Background(), UploadRequest{File: strings.NewReader("x"), Filename: "a.pdf", CompanyName: "A"})
	if UploadStatus(err) != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %v", err)
	}
	if err.Error() != "HTTP error! status: 413" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestQueryAndDelete(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/query/":
			var in QueryRequest
			_ = json.NewDecoder(r.Body).Decode(&in)
			if in.CompanyName != "ACME" || in.ProductName != "" {
				t.Errorf("unexpected query %+v", in)
			}
			_, _ = io.WriteString(w, `{"response":"See section 3.2"}`)
		case "/delete_manual/":
			if r.Method != http.MethodDelete {
				t.Errorf("unexpected method %s", r.Method)
			}
			_ = r.ParseMultipartForm(1 << 20)
			_, _ = io.WriteString(w, `{"message":"Manual 'Oven' (OV-1.pdf) deleted successfully","mongo_deleted":1,"product_name":"`+r.FormValue("product_name")+`","product_code":"`+r.FormValue("product_code")+`"}`)
		default:
			http.NotFound(w, r)
		}
	}))

	q, err := c.Query(context.Background(), QueryRequest{Query: "how?", CompanyName: "ACME"})
	if err != nil || q.Answer() != "See section 3.2" {
		t.Fatalf("query: %v %q", err, q.Answer())
	}
	d, err := c.DeleteManual(context.Background(), "Oven", "OV-1.pdf")
	if err != nil || d.ProductCode != "OV-1.pdf" || d.MongoDeleted != 1 {
		t.Fatalf("delete: %+v %v", d, err)
	}
}

func TestTransportFailureIsNetworkError(t *testing.T) {
	c := New("http://127.0.0.1:1", WithLogger(logs.Discard()))
	_, err := c.Health(context.Background())
	var ne *models.NetworkError
	if !errors.As(err, &ne) || ne.Status != 0 {
		t.Fatalf("expected transport NetworkError, got %v", err)
	}
}

func TestCurrentCompany(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"set", `{"company_name":"Acme"}`, "Acme"},
		{"null", `{"company_name":null}`, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/companies/current/" {
					t.Errorf("unexpected path %s", r.URL.Path)
				}
				_, _ = io.WriteString(w, tc.body)
			}))
			got, err := c.CurrentCompany(context.Background())
			if err != nil || got != tc.want {
				t.Fatalf("expected %q, got %q (%v)", tc.want, got, err)
			}
		})
	}
}

func TestUploadedFiles(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/get_uploaded_files/" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = io.WriteString(w, `{"files":["a.pdf","b.pdf"]}`)
	}))
	files, err := c.UploadedFiles(context.Background())
	if err != nil || strings.Join(files, ",") != "a.pdf,b.pdf" {
		t.Fatalf("unexpected files %v (%v)", files, err)
	}

	c = newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{}`)
	}))
	var ne *models.NetworkError
	if _, err := c.UploadedFiles(context.Background()); !errors.As(err, &ne) {
		t.Fatalf("missing files must fail fast, got %v", err)
	}
}
