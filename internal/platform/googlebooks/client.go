package googlebooks

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"
)

// Client queries the Google Books volumes API. It is used to backfill cover
// art, synopsis and publication year when a lender leaves those form fields
// blank.
type Client struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
	limiter    *rate.Limiter
	maxRetries int
}

func NewClient(apiKey string, rps int, maxRetries int) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		apiKey:     apiKey,
		baseURL:    "https://www.googleapis.com/books/v1",
		limiter:    rate.NewLimiter(rate.Every(time.Second/time.Duration(rps)), 1),
		maxRetries: maxRetries,
	}
}

// WithBaseURL points the client at a different API host. Tests use this to
// target an httptest server.
func (c *Client) WithBaseURL(base string) *Client {
	c.baseURL = base
	return c
}

// Volume is the subset of volumeInfo the catalog cares about.
type Volume struct {
	Title         string `json:"title"`
	Description   string `json:"description"`
	PublishedDate string `json:"publishedDate"`
	ImageLinks    struct {
		Thumbnail string `json:"thumbnail"`
	} `json:"imageLinks"`
}

type volumesResponse struct {
	Items []struct {
		VolumeInfo Volume `json:"volumeInfo"`
	} `json:"items"`
}

// FindVolume returns the first volume matching the title/author query, or nil
// when the API has nothing.
func (c *Client) FindVolume(ctx context.Context, title, author string) (*Volume, error) {
	q := url.Values{}
	q.Set("q", "intitle:"+title+"+inauthor:"+author)
	q.Set("printType", "books")
	q.Set("projection", "lite")
	if c.apiKey != "" {
		q.Set("key", c.apiKey)
	}
	u := fmt.Sprintf("%s/volumes?%s", c.baseURL, q.Encode())

	var res volumesResponse
	if err := c.get(ctx, u, &res); err != nil {
		return nil, err
	}
	if len(res.Items) == 0 {
		return nil, nil
	}
	v := res.Items[0].VolumeInfo
	return &v, nil
}

func (c *Client) get(ctx context.Context, url string, target interface{}) error {
	var lastErr error
	for i := 0; i <= c.maxRetries; i++ {
		if i > 0 {
			backoff := time.Duration(1<<uint(i-1)) * time.Second
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
		if err != nil {
			return err
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				lastErr = fmt.Errorf("unexpected status code: %d", resp.StatusCode)
				continue
			}
			return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
		}

		err = json.NewDecoder(resp.Body).Decode(target)
		resp.Body.Close()
		return err
	}
	return fmt.Errorf("after %d retries: %w", c.maxRetries, lastErr)
}
