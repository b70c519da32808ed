package wiki

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"parlor/domain"
)

const (
	defaultBaseURL = "https://en.wikipedia.org"
	userAgent      = "parlor/0.1 (chat demo)"
	searchLimit    = 5
	maxBodyBytes   = 1 << 20
)

var _ domain.Summarizer = (*Client)(nil)

// Client fetches short plain-text summaries from the Wikipedia API. It
// implements domain.Summarizer.
//
// Ambiguous terms and missing pages are not errors: they come back as
// explanatory sentences the caller can surface as-is. Errors are reserved
// for transport and decoding failures.
type Client struct {
	baseURL string
	client  *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// Summary implements domain.Summarizer. It resolves the query to a page
// title via opensearch, then pulls the page's extract and clamps it to
// roughly the requested number of sentences.
func (c *Client) Summary(ctx context.Context, query string, sentences int) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", nil
	}

	titles, err := c.search(ctx, query)
	if err != nil {
		return "", err
	}
	if len(titles) == 0 {
		return fmt.Sprintf("No Wikipedia page found for '%s'.", query), nil
	}

	page, found, err := c.pageSummary(ctx, titles[0])
	if err != nil {
		return "", err
	}
	if !found {
		return fmt.Sprintf("No Wikipedia page found for '%s'.", query), nil
	}
	if page.Type == "disambiguation" {
		options := titles
		if len(options) > searchLimit {
			options = options[:searchLimit]
		}
		return fmt.Sprintf("The term '%s' is ambiguous. Possible options include: %s",
			query, strings.Join(options, ", ")), nil
	}

	return clampSentences(page.Extract, sentences), nil
}

// search returns up to searchLimit page titles matching the query, best
// match first.
func (c *Client) search(ctx context.Context, query string) ([]string, error) {
	params := url.Values{}
	params.Set("action", "opensearch")
	params.Set("search", query)
	params.Set("limit", fmt.Sprintf("%d", searchLimit))
	params.Set("namespace", "0")
	params.Set("format", "json")

	body, err := c.get(ctx, c.baseURL+"/w/api.php?"+params.Encode())
	if err != nil {
		return nil, err
	}

	// The opensearch response is a positional array:
	// [query, [titles], [descriptions], [urls]].
	var raw []json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decoding opensearch response: %w", err)
	}
	if len(raw) < 2 {
		return nil, fmt.Errorf("unexpected opensearch response shape")
	}
	var titles []string
	if err := json.Unmarshal(raw[1], &titles); err != nil {
		return nil, fmt.Errorf("decoding opensearch titles: %w", err)
	}
	return titles, nil
}

type page struct {
	Type    string `json:"type"`
	Title   string `json:"title"`
	Extract string `json:"extract"`
}

// pageSummary fetches the REST summary for a title. A missing page is
// reported through found, not as an error.
func (c *Client) pageSummary(ctx context.Context, title string) (page, bool, error) {
	endpoint := c.baseURL + "/api/rest_v1/page/summary/" + url.PathEscape(title)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return page{}, false, fmt.Errorf("creating summary request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return page{}, false, fmt.Errorf("wikipedia request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return page{}, false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return page{}, false, fmt.Errorf("wikipedia returned status %d", resp.StatusCode)
	}

	var p page
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&p); err != nil {
		return page{}, false, fmt.Errorf("decoding summary response: %w", err)
	}
	return p, true, nil
}

func (c *Client) get(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("wikipedia request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("wikipedia returned status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
}

// clampSentences cuts text after roughly limit sentences. Terminators only
// count when followed by whitespace or the end of the text, which keeps
// abbreviations like "U.S." from splitting early more often than not.
func clampSentences(text string, limit int) string {
	text = strings.TrimSpace(text)
	if limit <= 0 {
		return text
	}

	count := 0
	for i, r := range text {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		next := i + utf8.RuneLen(r)
		if next < len(text) {
			nr, _ := utf8.DecodeRuneInString(text[next:])
			if !unicode.IsSpace(nr) {
				continue
			}
		}
		count++
		if count == limit {
			return strings.TrimSpace(text[:next])
		}
	}
	return text
}
