package source

import (
	"context"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/kbforge/kbindexd/internal/catalog"
)

const (
	webFetchTimeout = 30 * time.Second
	webMaxBodySize  = 10 << 20
)

// WebConnector fetches a page over HTTP and strips it down to readable
// text.
type WebConnector struct {
	logger *slog.Logger
	client *http.Client
}

var _ Connector = (*WebConnector)(nil)

func NewWebConnector(logger *slog.Logger) *WebConnector {
	return &WebConnector{
		logger: logger,
		client: &http.Client{Timeout: webFetchTimeout},
	}
}

func (c *WebConnector) Kind() catalog.Kind { return catalog.KindWeb }

func (c *WebConnector) Load(ctx context.Context, ds catalog.DataSource) []Document {
	content, title, err := c.fetch(ctx, ds.URI)
	if err != nil {
		c.logger.Warn("web source unreachable",
			slog.String("tenant_id", ds.TenantID),
			slog.String("source_uri", ds.URI),
			slog.String("error", err.Error()))
		return nil
	}
	if strings.TrimSpace(content) == "" {
		return nil
	}

	return []Document{{
		Content: content,
		Metadata: map[string]any{
			"title": title,
			"url":   ds.URI,
		},
	}}
}

func (c *WebConnector) fetch(ctx context.Context, url string) (content, title string, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", "", err
	}
	req.Header.Set("User-Agent", "kbindexd/1.0")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, webMaxBodySize))
	if err != nil {
		return "", "", err
	}

	raw := string(body)
	return stripHTML(raw), extractTitle(raw), nil
}

// Pre-compiled regular expressions for HTML stripping.
var (
	titleTag      = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	scriptTag     = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	styleTag      = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	noscriptTag   = regexp.MustCompile(`(?is)<noscript[^>]*>.*?</noscript>`)
	headTag       = regexp.MustCompile(`(?is)<head[^>]*>.*?</head>`)
	chromeTags    = regexp.MustCompile(`(?is)<(nav|footer|header|aside)[^>]*>.*?</(nav|footer|header|aside)>`)
	htmlComments  = regexp.MustCompile(`(?s)<!--.*?-->`)
	blockClose    = regexp.MustCompile(`(?i)</(p|div|h[1-6]|li|tr|blockquote|pre|table|section|article)>`)
	blockOpen     = regexp.MustCompile(`(?i)<(p|div|h[1-6]|li|tr|blockquote|pre|table|section|article)[^>]*>`)
	brTags        = regexp.MustCompile(`(?i)<(br|hr)\s*/?>`)
	allTags       = regexp.MustCompile(`<[^>]+>`)
	multiSpaces   = regexp.MustCompile(`[ \t]+`)
	multiNewlines = regexp.MustCompile(`\n{3,}`)
)

// stripHTML removes page chrome and markup, leaving one line per block
// of readable text.
func stripHTML(content string) string {
	content = scriptTag.ReplaceAllString(content, "")
	content = styleTag.ReplaceAllString(content, "")
	content = noscriptTag.ReplaceAllString(content, "")
	content = headTag.ReplaceAllString(content, "")
	content = chromeTags.ReplaceAllString(content, "")
	content = htmlComments.ReplaceAllString(content, "")

	// Block boundaries become newlines so paragraph structure survives.
	content = blockOpen.ReplaceAllString(content, "\n")
	content = blockClose.ReplaceAllString(content, "\n")
	content = brTags.ReplaceAllString(content, "\n")

	content = allTags.ReplaceAllString(content, "")
	content = html.UnescapeString(content)
	content = multiSpaces.ReplaceAllString(content, " ")
	content = multiNewlines.ReplaceAllString(content, "\n\n")

	lines := strings.Split(content, "\n")
	var result []string
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			result = append(result, line)
		}
	}
	return strings.Join(result, "\n")
}

// extractTitle pulls the page title, empty when absent.
func extractTitle(content string) string {
	matches := titleTag.FindStringSubmatch(content)
	if len(matches) > 1 {
		return strings.TrimSpace(html.UnescapeString(matches[1]))
	}
	return ""
}
