package ingestion_engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrInvalidArxivRef means no arxiv paper ID could be parsed from the input.
	ErrInvalidArxivRef = errors.New("invalid arxiv reference")
	// ErrNotPDF means the arxiv endpoint answered with something other than a PDF.
	ErrNotPDF = errors.New("arxiv response is not a pdf")
)

var (
	arxivIDPattern   = regexp.MustCompile(`\d{4}\.\d{4,5}(?:v\d+)?`)
	arxivVersionTail = regexp.MustCompile(`v\d+$`)
)

// ParseArxivID extracts the paper ID (YYMM.NNNNN with an optional version
// suffix) from an arxiv URL or a bare ID. Accepted forms include
// "https://arxiv.org/abs/2301.07041", "arxiv.org/pdf/2301.07041.pdf" and
// "2301.07041v2". Returns "" when nothing matches.
func ParseArxivID(ref string) string {
	return arxivIDPattern.FindString(strings.TrimSpace(ref))
}

// ArxivFetcher downloads paper PDFs from arxiv.
type ArxivFetcher struct {
	baseURL string
	client  *http.Client
	log     *zap.Logger
}

func NewArxivFetcher(log *zap.Logger) *ArxivFetcher {
	return &ArxivFetcher{
		baseURL: "https://arxiv.org",
		client:  &http.Client{Timeout: 60 * time.Second},
		log:     log,
	}
}

// Fetch resolves an arxiv URL or bare ID to the paper's PDF bytes and a
// display title of the form "arxiv:<id>". The download URL drops any version
// suffix, so the latest revision is what comes back.
func (f *ArxivFetcher) Fetch(ctx context.Context, ref string) ([]byte, string, error) {
	id := ParseArxivID(ref)
	if id == "" {
		return nil, "", fmt.Errorf("%w: %q", ErrInvalidArxivRef, ref)
	}

	pdfURL := fmt.Sprintf("%s/pdf/%s.pdf", f.baseURL, arxivVersionTail.ReplaceAllString(id, ""))
	f.log.Info("downloading arxiv pdf", zap.String("arxiv_id", id), zap.String("url", pdfURL))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pdfURL, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("arxiv returned status %d for %s", resp.StatusCode, pdfURL)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/pdf") {
		return nil, "", fmt.Errorf("%w: got content type %q", ErrNotPDF, ct)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", err
	}

	f.log.Info("arxiv pdf downloaded",
		zap.String("arxiv_id", id), zap.Int("size_bytes", len(data)))
	return data, "arxiv:" + id, nil
}
