package catalog

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"manualbase/internal/backend"
	"manualbase/internal/logs"
	"manualbase/internal/models"
)

type fakeSource struct {
	mu        sync.Mutex
	healthErr error
	companies []string
	models    map[string][]models.Manual
	modelErr  map[string]error
	gate      chan struct{} // блокирует Companies, если задан
	calls     int
}

func (f *fakeSource) Health(context.Context) (backend.HealthResponse, error) {
	return backend.HealthResponse{Status: "healthy"}, f.healthErr
}

func (f *fakeSource) Companies(context.Context) ([]string, error) {
	f.mu.Lock()
	gate := f.gate
	companies := append([]string(nil), f.companies...)
	f.calls++
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return companies, nil
}

func (f *fakeSource) Models(_ context.Context, company string) ([]models.Manual, error) {
	if err := f.modelErr[company]; err != nil {
		return nil, err
	}
	return f.models[company], nil
}

func sampleSource() *fakeSource {
	return &fakeSource{
		companies: []string{"Acme", "Globex"},
		models: map[string][]models.Manual{
			"Acme": {
				{ID: "1", CompanyName: "Acme", ProductName: "Washer", Filename: "MFL55318536.pdf"},
				{ID: "2", CompanyName: "Acme", ProductName: "Dryer", Filename: "DRY-100.pdf"},
			},
			"Globex": {
				{ID: "3", CompanyName: "Globex", ProductName: "Drill", Filename: "gx-drill.pdf"},
			},
		},
	}
}

func TestRefreshSkipsFailingCompany(t *testing.T) {
	src := sampleSource()
	src.modelErr = map[string]error{"Globex": errors.New("boom")}
	c := New(src, logs.Discard())

	snap, err := c.Refresh(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Companies) != 2 || len(snap.Manuals) != 2 {
		t.Fatalf("expected 2 companies and 2 manuals, got %+v", snap)
	}
}

func TestRefreshBackendDownKeepsSnapshot(t *testing.T) {
	src := sampleSource()
	c := New(src, logs.Discard())
	if _, err := c.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}
	src.healthErr = &models.NetworkError{Op: "health", Err: errors.New("refused")}
	snap, err := c.Refresh(context.Background())
	var le *LoadError
	if !errors.As(err, &le) || le.Message != msgBackendDown {
		t.Fatalf("expected backend-down error, got %v", err)
	}
	if len(snap.Manuals) != 3 {
		t.Fatalf("previous snapshot lost: %+v", snap)
	}
}

func TestRefreshDropsStaleResponse(t *testing.T) {
	src := sampleSource()
	gate := make(chan struct{})
	src.gate = gate
	c := New(src, logs.Discard())

	slow := make(chan Snapshot)
	go func() {
		s, _ := c.Refresh(context.Background())
		slow <- s
	}()
	// дождаться, пока медленный запрос зайдёт в Companies
	for {
		src.mu.Lock()
		n := src.calls
		src.mu.Unlock()
		if n == 1 {
			break
		}
		time.Sleep(time.Millisecond)
	}

	src.mu.Lock()
	src.gate = nil
	src.companies = []string{"Acme"}
	src.mu.Unlock()
	fast, err := c.Refresh(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(fast.Companies) != 1 {
		t.Fatalf("fast refresh: %+v", fast.Companies)
	}

	close(gate)
	got := <-slow
	if got.Seq != fast.Seq || len(c.Snapshot().Companies) != 1 {
		t.Fatalf("stale refresh overwrote newer state: %+v", c.Snapshot().Companies)
	}
}

func TestSnapshotQueries(t *testing.T) {
	c := New(sampleSource(), logs.Discard())
	snap, _ := c.Refresh(context.Background())

	if got := snap.Filter("DRY"); len(got) != 1 || got[0].ProductName != "Dryer" {
		t.Fatalf("filter by product: %+v", got)
	}
	if got := snap.Filter("mfl553"); len(got) != 1 || got[0].ID != "1" {
		t.Fatalf("filter by filename: %+v", got)
	}
	if got := snap.Filter("  "); len(got) != 3 {
		t.Fatalf("blank filter must return all, got %d", len(got))
	}
	if got := snap.Products("Acme"); strings.Join(got, ",") != "Dryer,Washer" {
		t.Fatalf("products: %v", got)
	}

	sel, err := snap.Select("Acme", "Washer")
	if err != nil {
		t.Fatal(err)
	}
	if sel.ProductCode != "MFL55318536.pdf" {
		t.Fatalf("product code must come from filename, got %q", sel.ProductCode)
	}
	if _, err := snap.Select("Acme", "Toaster"); !errors.Is(err, ErrUnknownManual) {
		t.Fatalf("unknown product: %v", err)
	}
	if sel, _ := snap.Select("Globex", ""); sel.CompanyName != "Globex" || sel.ProductCode != "" {
		t.Fatalf("company-only selection: %+v", sel)
	}
}

func TestValidateUpload(t *testing.T) {
	pdf := []byte("%PDF-1.7\n%\xe2\xe3\xcf\xd3\n1 0 obj\n<<>>\nendobj\n")
	txt := []byte("hello, plain text")
	tests := []struct {
		name string
		form UploadForm
		msg  string
	}{
		{"no file", UploadForm{CompanyName: "Acme"}, "Please select a file to upload"},
		{"blank company", UploadForm{File: bytes.NewReader(pdf), Size: int64(len(pdf)), CompanyName: "  "}, "Please enter a company name"},
		{"not pdf", UploadForm{File: bytes.NewReader(txt), Size: int64(len(txt)), CompanyName: "Acme"}, "Please select a PDF file"},
		{"too large", UploadForm{File: bytes.NewReader(pdf), Size: 11 << 20, CompanyName: "Acme"}, "File size must be less than 10MB"},
		{"ok", UploadForm{File: bytes.NewReader(pdf), Size: int64(len(pdf)), CompanyName: "Acme"}, ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateUpload(tc.form, 10<<20)
			if tc.msg == "" {
				if err != nil {
					t.Fatalf("unexpected error %v", err)
				}
				return
			}
			var ve *models.ValidationError
			if !errors.As(err, &ve) || ve.Message != tc.msg {
				t.Fatalf("expected %q, got %v", tc.msg, err)
			}
		})
	}
}

func TestValidateUploadRewindsFile(t *testing.T) {
	pdf := []byte("%PDF-1.4 body")
	r := bytes.NewReader(pdf)
	if err := ValidateUpload(UploadForm{File: r, Size: int64(len(pdf)), CompanyName: "Acme"}, 1<<20); err != nil {
		t.Fatal(err)
	}
	if r.Len() != len(pdf) {
		t.Fatalf("file not rewound, %d bytes left", r.Len())
	}
}

func TestUploadErrorMessage(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&models.NetworkError{Op: "upload_pdf", Status: 413, Message: "HTTP error! status: 413"}, "File too large. Please select a smaller file."},
		{&models.NetworkError{Op: "upload_pdf", Status: 400, Message: "bad"}, "Invalid file format or missing required information."},
		{&models.NetworkError{Op: "upload_pdf", Status: 500, Message: "Error uploading file: disk full"}, "Error uploading file: disk full"},
	}
	for _, tc := range tests {
		if got := UploadErrorMessage(tc.err); got != tc.want {
			t.Fatalf("expected %q, got %q", tc.want, got)
		}
	}
}

func TestSnapshotCompaniesAndFiles(t *testing.T) {
	c := New(sampleSource(), logs.Discard())
	snap, _ := c.Refresh(context.Background())

	if !snap.HasCompany("Globex") || snap.HasCompany("Initech") {
		t.Fatalf("unexpected company membership for %v", snap.Companies)
	}
	got := snap.Unindexed([]string{"DRY-100.pdf", "orphan.pdf", "gx-drill.pdf"})
	if len(got) != 1 || got[0] != "orphan.pdf" {
		t.Fatalf("expected only the orphan file, got %v", got)
	}
	if got := snap.Unindexed(nil); len(got) != 0 {
		t.Fatalf("no files, got %v", got)
	}
}
