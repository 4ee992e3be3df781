package input

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"github.com/gyeh/npi-enrich/internal/domain"
)

var httpClient = &http.Client{
	Timeout: 5 * time.Minute,
}

// IsRemote reports whether p names an http(s) URL rather than a local file.
func IsRemote(p string) bool {
	lower := strings.ToLower(p)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// FileNameFromURL extracts the file name from a URL, ignoring any query.
func FileNameFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Path == "" || strings.HasSuffix(u.Path, "/") {
		return "input.csv"
	}
	return path.Base(u.Path)
}

// Fetch downloads rawURL once into a temp file under tmpDir, keeping the
// URL's file extension so ReadIdentities picks the right format. The caller
// removes the returned file.
func Fetch(ctx context.Context, rawURL, tmpDir string) (string, error) {
	fetchErr := func(err error) error {
		return &domain.OpError{Op: "input.fetch", Kind: domain.KindInputRead, Path: rawURL, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fetchErr(fmt.Errorf("creating request: %w", err))
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return "", fetchErr(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fetchErr(fmt.Errorf("HTTP %d", resp.StatusCode))
	}

	name := FileNameFromURL(rawURL)
	tmpFile, err := os.CreateTemp(tmpDir, "npi-input-*-"+name)
	if err != nil {
		return "", fetchErr(fmt.Errorf("creating temp file: %w", err))
	}

	counter := &countingReader{reader: resp.Body}
	_, err = io.Copy(tmpFile, counter)
	if closeErr := tmpFile.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	if err == nil && resp.ContentLength > 0 && counter.n != resp.ContentLength {
		err = fmt.Errorf("download truncated: got %d of %d bytes", counter.n, resp.ContentLength)
	}
	if err != nil {
		os.Remove(tmpFile.Name())
		return "", fetchErr(err)
	}
	return tmpFile.Name(), nil
}

type countingReader struct {
	reader io.Reader
	n      int64
}

func (cr *countingReader) Read(p []byte) (int, error) {
	n, err := cr.reader.Read(p)
	cr.n += int64(n)
	return n, err
}
