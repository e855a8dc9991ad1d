package imagesearch

import (
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
)

// Fetch downloads rawURL (http, https or a base64 data URI) and decodes it.
func (c *Client) Fetch(ctx context.Context, rawURL string) (image.Image, error) {
	var (
		data []byte
		err  error
	)
	if strings.HasPrefix(rawURL, "data:") {
		data, err = decodeDataURI(rawURL)
	} else {
		data, err = c.download(ctx, rawURL)
	}
	if err != nil {
		return nil, err
	}
	img, _, err := Decode(data)
	return img, err
}

func (c *Client) download(ctx context.Context, rawURL string) ([]byte, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("imagesearch: invalid URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("imagesearch: unsupported scheme: %s (only http/https)", parsed.Scheme)
	}
	if err := c.checkHost(parsed.Hostname()); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("imagesearch: build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("imagesearch: download failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("imagesearch: download failed: HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.cfg.MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("imagesearch: read body failed: %w", err)
	}
	if int64(len(data)) > c.cfg.MaxBytes {
		return nil, fmt.Errorf("imagesearch: image too large: exceeds %d bytes", c.cfg.MaxBytes)
	}
	return data, nil
}

// decodeDataURI parses a data:[<mediatype>];base64,<data> URI.
func decodeDataURI(uri string) ([]byte, error) {
	rest := strings.TrimPrefix(uri, "data:")
	meta, encoded, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, fmt.Errorf("imagesearch: invalid data URI: missing comma separator")
	}
	if !strings.HasSuffix(meta, ";base64") {
		return nil, fmt.Errorf("imagesearch: only base64 data URIs are supported")
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("imagesearch: invalid base64 data: %w", err)
		}
	}
	return data, nil
}

// checkHost rejects loopback and cloud metadata addresses unless private
// hosts are allowed.
func (c *Client) checkHost(host string) error {
	if c.cfg.AllowPrivateHosts {
		return nil
	}
	if host == "metadata.google.internal" {
		return fmt.Errorf("imagesearch: blocked host: %s", host)
	}

	ip := net.ParseIP(host)
	if ip == nil {
		ips, lookupErr := net.LookupIP(host)
		if lookupErr != nil || len(ips) == 0 {
			return nil //nolint:nilerr // let http.Client handle DNS failures
		}
		ip = ips[0]
	}
	if ip.IsLoopback() {
		return fmt.Errorf("imagesearch: blocked host: loopback address %s", host)
	}
	if ip.Equal(net.ParseIP("169.254.169.254")) {
		return fmt.Errorf("imagesearch: blocked host: cloud metadata address %s", host)
	}
	return nil
}
