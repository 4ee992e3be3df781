package enrich

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gyeh/npi-enrich/internal/config"
	"github.com/gyeh/npi-enrich/internal/domain"
	"github.com/gyeh/npi-enrich/internal/progress"
)

func registryResult(first, last, code string) string {
	return fmt.Sprintf(`{"result_count": 1, "results": [{
	"number": "1316924913",
	"basic": {"first_name": %q, "last_name": %q, "gender": "F", "status": "A", "sole_proprietor": "NO"},
	"addresses": [
		{"address_purpose": "LOCATION", "address_1": "100 MAIN ST", "address_2": "", "city": "BOSTON", "state": "MA", "postal_code": "02114"},
		{"address_purpose": "MAILING", "address_1": "PO BOX 9", "address_2": "", "city": "BOSTON", "state": "MA", "postal_code": "02101"}
	],
	"taxonomies": [{"code": %q, "desc": "Surgery", "primary": true, "state": "MA", "license": "123"}]
}]}`, first, last, code)
}

// serveRegistry starts a registry stub. respond receives the 1-based request
// number and the last_name query parameter.
func serveRegistry(t *testing.T, respond func(n int, w http.ResponseWriter, last string)) (*httptest.Server, *int64) {
	t.Helper()
	var count int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt64(&count, 1)
		respond(int(n), w, r.URL.Query().Get("last_name"))
	}))
	t.Cleanup(server.Close)
	return server, &count
}

func newTestPipeline(t *testing.T, serverURL string, uploader Uploader) *Pipeline {
	t.Helper()
	cfg := config.Default()
	cfg.RegistryBaseURL = serverURL
	cfg.LookupDelay = time.Millisecond
	cfg.RequestTimeout = 5 * time.Second

	p, err := New(cfg, &progress.NoopManager{}, uploader, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return p
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("opening output: %v", err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("parsing output: %v", err)
	}
	return rows
}

func column(t *testing.T, header []string, name string) int {
	t.Helper()
	for i, h := range header {
		if h == name {
			return i
		}
	}
	t.Fatalf("column %s not in header %v", name, header)
	return -1
}

func TestRun_SingleAcceptedProvider(t *testing.T) {
	server, _ := serveRegistry(t, func(_ int, w http.ResponseWriter, last string) {
		w.Write([]byte(registryResult("Jane", "Doe", "208200000X")))
	})
	p := newTestPipeline(t, server.URL, nil)
	out := filepath.Join(t.TempDir(), "npi_records.csv")

	sum, err := p.Run(context.Background(), []domain.InputIdentity{{FirstName: "Jane", LastName: "Doe"}}, out)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	rows := readCSV(t, out)
	if len(rows) != 2 {
		t.Fatalf("expected header + 1 row, got %d rows", len(rows))
	}
	header, row := rows[0], rows[1]
	if len(header) != 18 {
		t.Errorf("expected 18 columns, got %d: %v", len(header), header)
	}
	for name, want := range map[string]string{
		"first_name":              "Jane",
		"last_name":               "Doe",
		"primary_taxonomy_code":   "208200000X",
		"mailing_address_street":  "PO BOX 9 ",
		"primary_practice_street": "100 MAIN ST ",
		"license_number":          "123",
	} {
		if got := row[column(t, header, name)]; got != want {
			t.Errorf("%s: expected %q, got %q", name, want, got)
		}
	}

	if sum.Stats.Accepted != 1 || sum.Stats.Identities != 1 {
		t.Errorf("unexpected stats %+v", sum.Stats)
	}
	if sum.RunID == "" {
		t.Error("expected a run id")
	}
}

func TestRun_DisallowedCodeWritesNoRows(t *testing.T) {
	server, _ := serveRegistry(t, func(_ int, w http.ResponseWriter, last string) {
		w.Write([]byte(registryResult("Jane", "Doe", "999999999X")))
	})
	p := newTestPipeline(t, server.URL, nil)
	out := filepath.Join(t.TempDir(), "npi_records.csv")

	if _, err := p.Run(context.Background(), []domain.InputIdentity{{FirstName: "Jane", LastName: "Doe"}}, out); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if rows := readCSV(t, out); len(rows) != 0 {
		t.Errorf("expected no rows, got %v", rows)
	}
}

func TestRun_TransportFailureWritesNothing(t *testing.T) {
	server, count := serveRegistry(t, func(n int, w http.ResponseWriter, last string) {
		if n == 2 {
			http.Error(w, "upstream unavailable", http.StatusInternalServerError)
			return
		}
		w.Write([]byte(registryResult("X", last, "208200000X")))
	})
	p := newTestPipeline(t, server.URL, nil)
	out := filepath.Join(t.TempDir(), "npi_records.csv")

	ids := []domain.InputIdentity{
		{FirstName: "A", LastName: "One"},
		{FirstName: "B", LastName: "Two"},
		{FirstName: "C", LastName: "Three"},
	}
	_, err := p.Run(context.Background(), ids, out)
	if !domain.IsKind(err, domain.KindLookupTransport) {
		t.Fatalf("expected lookup_transport error, got %v", err)
	}
	if _, statErr := os.Stat(out); !os.IsNotExist(statErr) {
		t.Errorf("expected no output file, stat returned %v", statErr)
	}
	if n := atomic.LoadInt64(count); n != 2 {
		t.Errorf("expected 2 requests before abort, got %d", n)
	}
}

type fakeUploader struct {
	runID, path string
	err         error
}

func (f *fakeUploader) UploadFile(_ context.Context, runID, localPath string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.runID, f.path = runID, localPath
	return "s3://bucket/" + runID + "/" + filepath.Base(localPath), nil
}

func TestRunFile_UploadsOutput(t *testing.T) {
	server, _ := serveRegistry(t, func(_ int, w http.ResponseWriter, last string) {
		w.Write([]byte(registryResult("Jane", last, "2082S0105X")))
	})
	up := &fakeUploader{}
	p := newTestPipeline(t, server.URL, up)

	dir := t.TempDir()
	in := filepath.Join(dir, "names.csv")
	if err := os.WriteFile(in, []byte("first,last\nJane,Doe\nJohn,Roe\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(dir, "out.csv")

	sum, err := p.RunFile(context.Background(), in, out)
	if err != nil {
		t.Fatalf("RunFile failed: %v", err)
	}
	if up.path != out || up.runID != p.RunID {
		t.Errorf("unexpected upload call: %+v", up)
	}
	if sum.UploadURI != "s3://bucket/"+p.RunID+"/out.csv" {
		t.Errorf("unexpected upload URI %s", sum.UploadURI)
	}
	if rows := readCSV(t, out); len(rows) != 3 {
		t.Errorf("expected header + 2 rows, got %d", len(rows))
	}
}

func TestRunFile_UploadFailure(t *testing.T) {
	server, _ := serveRegistry(t, func(_ int, w http.ResponseWriter, last string) {
		w.Write([]byte(`{"results": []}`))
	})
	uploadErr := &domain.OpError{Op: "s3.upload", Kind: domain.KindUpload, Err: errors.New("denied")}
	p := newTestPipeline(t, server.URL, &fakeUploader{err: uploadErr})

	dir := t.TempDir()
	in := filepath.Join(dir, "names.csv")
	os.WriteFile(in, []byte("first,last\nJane,Doe\n"), 0o644)

	_, err := p.RunFile(context.Background(), in, filepath.Join(dir, "out.csv"))
	if !domain.IsKind(err, domain.KindUpload) {
		t.Fatalf("expected upload error, got %v", err)
	}
}

func TestRunFile_MissingInputMakesNoRequests(t *testing.T) {
	server, count := serveRegistry(t, func(_ int, w http.ResponseWriter, last string) {
		w.Write([]byte(`{"results": []}`))
	})
	p := newTestPipeline(t, server.URL, nil)

	dir := t.TempDir()
	_, err := p.RunFile(context.Background(), filepath.Join(dir, "missing.csv"), filepath.Join(dir, "out.csv"))
	if !domain.IsKind(err, domain.KindInputRead) {
		t.Fatalf("expected input_read error, got %v", err)
	}
	if n := atomic.LoadInt64(count); n != 0 {
		t.Errorf("expected no registry requests, got %d", n)
	}
}

func TestRunFile_RemoteInput(t *testing.T) {
	registry, _ := serveRegistry(t, func(_ int, w http.ResponseWriter, last string) {
		w.Write([]byte(registryResult("Jane", last, "2086S0122X")))
	})
	lists := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("first,last\nJane,Doe\n"))
	}))
	defer lists.Close()

	p := newTestPipeline(t, registry.URL, nil)
	out := filepath.Join(t.TempDir(), "out.csv")

	sum, err := p.RunFile(context.Background(), lists.URL+"/names.csv", out)
	if err != nil {
		t.Fatalf("RunFile failed: %v", err)
	}
	if sum.Stats.Accepted != 1 {
		t.Errorf("expected 1 accepted record, got %+v", sum.Stats)
	}
}

func TestRun_LogsAllowedTaxonomiesInOrder(t *testing.T) {
	server, _ := serveRegistry(t, func(_ int, w http.ResponseWriter, last string) {
		w.Write([]byte(`{"results": []}`))
	})
	cfg := config.Default()
	cfg.RegistryBaseURL = server.URL
	cfg.AllowedTaxonomies = []string{"2086S0122X", "208200000X", "2086S0122X"}

	var logs bytes.Buffer
	p, err := New(cfg, &progress.NoopManager{}, nil, slog.New(slog.NewTextHandler(&logs, nil)))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, err := p.Run(context.Background(), nil, filepath.Join(t.TempDir(), "out.csv")); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !strings.Contains(logs.String(), "allowed_taxonomies=2086S0122X,208200000X") {
		t.Errorf("expected ordered allowed taxonomies in logs, got:\n%s", logs.String())
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.OnLookupError = "retry"
	if _, err := New(cfg, nil, nil, nil); err == nil {
		t.Fatal("expected invalid config error")
	}
}
