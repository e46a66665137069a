// Package scraper provides a shared HTTP client for the Taiwanese
// disclosure sites this service reads from. It handles request pacing,
// retries with backoff, User-Agent rotation, gzip and Big5 decoding.
package scraper

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/corpix/uarand"
	"golang.org/x/text/encoding/traditionalchinese"
	"golang.org/x/text/transform"

	"github.com/twmops/mops-linebot-go/internal/ratelimit"
)

// Client is an HTTP client for scraping with rate limiting and retries
type Client struct {
	httpClient *http.Client
	pacer      *ratelimit.Limiter
	maxRetries int
	retryDelay time.Duration
}

// NewClient creates a new scraper client.
//
// timeout: per-request timeout
// pace: minimum interval between upstream requests
// maxRetries: retry attempts for transient failures
func NewClient(timeout, pace time.Duration, maxRetries int) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		pacer:      ratelimit.NewInterval(pace),
		maxRetries: maxRetries,
		retryDelay: 2 * time.Second,
	}
}

// Get performs a GET request and returns the decoded response body.
// gzip and Big5 responses are transparently decoded to UTF-8.
func (c *Client) Get(ctx context.Context, rawURL string) ([]byte, error) {
	return c.do(ctx, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	}, "")
}

// GetDocument performs a GET request and parses the response as HTML
func (c *Client) GetDocument(ctx context.Context, rawURL string) (*goquery.Document, error) {
	body, err := c.Get(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return doc, nil
}

// PostForm performs a form POST and returns the decoded response body.
// referer is sent as the Referer header when non-empty; MOPS rejects
// form posts without one.
func (c *Client) PostForm(ctx context.Context, postURL string, form url.Values, referer string) ([]byte, error) {
	encoded := form.Encode()
	return c.do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, postURL, strings.NewReader(encoded))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req, nil
	}, referer)
}

// PostFormDocument performs a form POST and parses the response as HTML
func (c *Client) PostFormDocument(ctx context.Context, postURL string, form url.Values, referer string) (*goquery.Document, error) {
	body, err := c.PostForm(ctx, postURL, form, referer)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return doc, nil
}

// do runs one request with pacing, retries and body decoding.
// newReq is called per attempt so the body reader is fresh each time.
func (c *Client) do(ctx context.Context, newReq func() (*http.Request, error), referer string) ([]byte, error) {
	var body []byte

	err := RetryWithBackoff(ctx, c.maxRetries, c.retryDelay, func() error {
		if err := c.pacer.Wait(ctx); err != nil {
			return Permanent(err)
		}

		req, err := newReq()
		if err != nil {
			return Permanent(fmt.Errorf("failed to create request: %w", err))
		}

		req.Header.Set("User-Agent", uarand.GetRandom())
		req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		req.Header.Set("Accept-Language", "zh-TW,zh;q=0.9,en-US;q=0.8,en;q=0.7")
		req.Header.Set("Accept-Encoding", "gzip, deflate")
		if referer != "" {
			req.Header.Set("Referer", referer)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			switch resp.StatusCode {
			case http.StatusTooManyRequests:
				return fmt.Errorf("rate limited for %s: status %d", req.URL, resp.StatusCode)
			case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
				return fmt.Errorf("server error for %s: status %d", req.URL, resp.StatusCode)
			case http.StatusNotFound, http.StatusForbidden, http.StatusUnauthorized:
				return Permanent(&StatusError{URL: req.URL.String(), StatusCode: resp.StatusCode})
			default:
				return fmt.Errorf("unexpected status for %s: %d", req.URL, resp.StatusCode)
			}
		}

		body, err = readBody(resp)
		if err != nil {
			return err
		}
		return nil
	})

	if err != nil {
		return nil, err
	}
	return body, nil
}

// StatusError reports a non-retryable upstream HTTP status.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("client error for %s: status %d", e.URL, e.StatusCode)
}

// readBody decodes the response body, handling gzip transfer encoding
// and Big5 charsets common on Taiwanese government sites.
func readBody(resp *http.Response) ([]byte, error) {
	var reader io.Reader = resp.Body

	if resp.Header.Get("Content-Encoding") == "gzip" {
		gzipReader, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress gzip: %w", err)
		}
		defer func() { _ = gzipReader.Close() }()
		reader = gzipReader
	}

	contentType := resp.Header.Get("Content-Type")
	if strings.Contains(strings.ToUpper(contentType), "BIG5") {
		reader = transform.NewReader(reader, traditionalchinese.Big5.NewDecoder())
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return body, nil
}

// DecodeBig5 converts a Big5 byte stream to UTF-8. Used for CSV
// downloads that declare no charset but are Big5 encoded.
func DecodeBig5(data []byte) ([]byte, error) {
	decoded, _, err := transform.Bytes(traditionalchinese.Big5.NewDecoder(), data)
	if err != nil {
		return nil, fmt.Errorf("big5 decode failed: %w", err)
	}
	return decoded, nil
}
