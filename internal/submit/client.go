package submit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"
)

const (
	DetectPath    = "detect"
	UploadsPath   = "uploads/"
	maxReplyBytes = 1 << 20

	DefaultTimeout        = 60 * time.Second
	DefaultConnectTimeout = 10 * time.Second
)

// Client talks to the detection backend.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
}

// NewClient creates a client for the backend rooted at baseURL.
func NewClient(baseURL string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid backend URL %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid backend URL %q: scheme must be http or https", baseURL)
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Client{
		baseURL: u,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   DefaultConnectTimeout,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}, nil
}

type detectReply struct {
	Count *int   `json:"count"`
	Image string `json:"image"`
	Error string `json:"error"`
}

// Detect sends one multipart request to POST /detect.
func (c *Client) Detect(ctx context.Context, img Image, params Params) (*Result, error) {
	body, contentType, err := buildDetectBody(img, params)
	if err != nil {
		return nil, err
	}

	endpoint := c.baseURL.ResolveReference(&url.URL{Path: DetectPath})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), body)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		return nil, &TransportError{Err: fmt.Errorf("failed to read backend response: %w", err)}
	}

	var reply detectReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return nil, &TransportError{Err: fmt.Errorf("malformed backend response (HTTP %d): %w", resp.StatusCode, err)}
	}

	if reply.Error != "" {
		return nil, &BackendError{Message: reply.Error, StatusCode: resp.StatusCode}
	}
	if reply.Count == nil {
		return nil, &TransportError{Err: fmt.Errorf("malformed backend response (HTTP %d): missing count", resp.StatusCode)}
	}

	return &Result{
		Count:    *reply.Count,
		Image:    reply.Image,
		ImageURL: c.ResultURL(reply.Image),
	}, nil
}

// ResultURL resolves a rendered-result reference returned by the backend.
// Bare names live under the uploads namespace.
func (c *Client) ResultURL(ref string) string {
	if ref == "" {
		return ""
	}
	parsed, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	if parsed.IsAbs() || strings.HasPrefix(ref, "/") {
		return c.baseURL.ResolveReference(parsed).String()
	}
	return c.baseURL.ResolveReference(&url.URL{Path: UploadsPath + ref}).String()
}

// FetchRendered downloads the annotated image for a result reference.
// The caller must close the response body.
func (c *Client) FetchRendered(ctx context.Context, ref string) (*http.Response, error) {
	target := c.ResultURL(ref)
	if target == "" {
		return nil, fmt.Errorf("invalid result reference %q", ref)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	return resp, nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func buildDetectBody(img Image, params Params) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, quoteEscaper.Replace(filenameFor(img))))
	h.Set("Content-Type", mimeTypeFor(img))

	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create file part: %w", err)
	}
	if _, err := part.Write(img.Data); err != nil {
		return nil, "", fmt.Errorf("failed to write file part: %w", err)
	}

	if params.Model != "" {
		if err := mw.WriteField("model", params.Model); err != nil {
			return nil, "", err
		}
	}
	if params.Confidence != "" {
		if err := mw.WriteField("confidence", params.Confidence); err != nil {
			return nil, "", err
		}
	}

	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return body, mw.FormDataContentType(), nil
}

func mimeTypeFor(img Image) string {
	if img.MIMEType != "" {
		return img.MIMEType
	}
	return http.DetectContentType(img.Data)
}

func filenameFor(img Image) string {
	if img.Filename != "" {
		return img.Filename
	}
	if img.Source == SourceCamera {
		return "capture.jpg"
	}
	switch mimeTypeFor(img) {
	case "image/jpeg":
		return "upload.jpg"
	case "image/png":
		return "upload.png"
	}
	return "upload"
}
