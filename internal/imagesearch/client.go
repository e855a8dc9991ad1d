// Package imagesearch finds reference photos on an Unsplash-compatible API
// and turns downloads into decoded images. Nothing undecodable leaves this
// package.
package imagesearch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Defaults mirror the public Unsplash API.
const (
	DefaultEndpoint = "https://api.unsplash.com"
	DefaultPerPage  = 30
	DefaultTimeout  = 30 * time.Second
	DefaultMaxBytes = 10 << 20
)

// Config configures a Client.
type Config struct {
	Endpoint  string
	AccessKey string
	PerPage   int
	Timeout   time.Duration
	MaxBytes  int64
	// AllowPrivateHosts disables the loopback and metadata-address guard on
	// downloads.
	AllowPrivateHosts bool
}

// Photo is one search hit.
type Photo struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Author      string `json:"author"`
	URL         string `json:"url"`
	Thumb       string `json:"thumb"`
}

// Results is one page of search hits.
type Results struct {
	Total      int     `json:"total"`
	TotalPages int     `json:"total_pages"`
	Photos     []Photo `json:"photos"`
}

type apiResponse struct {
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
	Results    []struct {
		ID             string `json:"id"`
		Description    string `json:"description"`
		AltDescription string `json:"alt_description"`
		URLs           struct {
			Regular string `json:"regular"`
			Thumb   string `json:"thumb"`
		} `json:"urls"`
		User struct {
			Name string `json:"name"`
		} `json:"user"`
	} `json:"results"`
}

// Client talks to the search API and downloads selected photos.
type Client struct {
	cfg  Config
	http *http.Client
}

// New creates a Client, filling unset fields with defaults.
func New(cfg Config) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")
	if cfg.PerPage <= 0 {
		cfg.PerPage = DefaultPerPage
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	c := &Client{cfg: cfg}
	c.http = &http.Client{
		Timeout: cfg.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return fmt.Errorf("too many redirects (max 5)")
			}
			return c.checkHost(req.URL.Hostname())
		},
	}
	return c
}

// Search returns one page of photos matching query. page starts at 1.
func (c *Client) Search(ctx context.Context, query string, page int) (*Results, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("imagesearch: empty query")
	}
	if page < 1 {
		page = 1
	}

	q := url.Values{}
	q.Set("query", query)
	q.Set("page", strconv.Itoa(page))
	q.Set("per_page", strconv.Itoa(c.cfg.PerPage))
	if c.cfg.AccessKey != "" {
		q.Set("client_id", c.cfg.AccessKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.Endpoint+"/search/photos?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("imagesearch: build request: %w", err)
	}
	req.Header.Set("Accept-Version", "v1")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("imagesearch: search: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("imagesearch: search: HTTP %d", resp.StatusCode)
	}

	var body apiResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, c.cfg.MaxBytes)).Decode(&body); err != nil {
		return nil, fmt.Errorf("imagesearch: decode response: %w", err)
	}

	out := &Results{Total: body.Total, TotalPages: body.TotalPages, Photos: []Photo{}}
	for _, r := range body.Results {
		if r.URLs.Regular == "" {
			continue
		}
		desc := r.Description
		if desc == "" {
			desc = r.AltDescription
		}
		out.Photos = append(out.Photos, Photo{
			ID:          r.ID,
			Description: desc,
			Author:      r.User.Name,
			URL:         r.URLs.Regular,
			Thumb:       r.URLs.Thumb,
		})
	}
	return out, nil
}
