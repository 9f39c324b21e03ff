// internal/api/client.go
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/skyhil/hilbridge/pkg/core"
)

// UploadPath is where flight logs are posted.
const UploadPath = "/api/v1/flights/add"

const (
	defaultAttempts = 3
	defaultBackoff  = 2 * time.Second
	maxErrorBody    = 512
)

// ErrRejected matches answers refusing the upload secret.
var ErrRejected = errors.New("rejected by flight log server")

// StatusError is a non-200 answer from the flight log server.
type StatusError struct {
	Op   string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s returned status %d", e.Op, e.Code)
	}
	return fmt.Sprintf("%s returned status %d: %s", e.Op, e.Code, e.Body)
}

func (e *StatusError) Is(target error) bool {
	return target == ErrRejected && (e.Code == http.StatusUnauthorized || e.Code == http.StatusForbidden)
}

func (e *StatusError) temporary() bool {
	return e.Code >= http.StatusInternalServerError || e.Code == http.StatusTooManyRequests
}

// Client talks to the flight log server.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client

	attempts int
	backoff  time.Duration
}

// New creates a client for the server at baseURL.
func New(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		attempts:   defaultAttempts,
		backoff:    defaultBackoff,
	}
}

// Healthcheck checks if the server is reachable.
func (c *Client) Healthcheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthcheck", nil)
	if err != nil {
		return fmt.Errorf("failed to create healthcheck request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("healthcheck request failed: %w", err)
	}
	defer resp.Body.Close()
	return checkStatus("healthcheck", resp)
}

// Upload posts an exported flight log with its run metadata. Network
// failures and 5xx answers are retried with a growing pause; a refused
// secret is not.
func (c *Client) Upload(ctx context.Context, filePath string, meta core.UploadMetadata) error {
	if _, err := os.Stat(filePath); err != nil {
		return fmt.Errorf("flight log not readable: %w", err)
	}

	var err error
	for attempt := 1; ; attempt++ {
		err = c.uploadOnce(ctx, filePath, meta)
		if err == nil || !retryable(ctx, err) || attempt >= c.attempts {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("upload of %s abandoned: %w", filepath.Base(filePath), errors.Join(err, ctx.Err()))
		case <-time.After(c.backoff * time.Duration(attempt)):
		}
	}
	if err != nil && c.attempts > 1 && retryable(ctx, err) {
		return fmt.Errorf("upload failed after %d attempts: %w", c.attempts, err)
	}
	return err
}

func (c *Client) uploadOnce(ctx context.Context, filePath string, meta core.UploadMetadata) error {
	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open flight log: %w", err)
	}
	defer file.Close()

	pr, pw := io.Pipe()
	defer pr.Close()
	form := multipart.NewWriter(pw)

	errCh := make(chan error, 1)
	go func() {
		errCh <- writeForm(form, c.formFields(filePath, meta), filePath, file)
		pw.CloseWithError(form.Close())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+UploadPath, pr)
	if err != nil {
		return fmt.Errorf("failed to create upload request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("upload request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus("upload", resp); err != nil {
		return err
	}
	// unblock the writer if the server answered before reading everything
	_ = pr.Close()
	return <-errCh
}

// formFields lists the metadata parts in the order the server reads them.
func (c *Client) formFields(filePath string, meta core.UploadMetadata) [][2]string {
	return [][2]string{
		{"secret", c.apiKey},
		{"filename", filepath.Base(filePath)},
		{"vehicleName", meta.VehicleName},
		{"mode", meta.Mode},
		{"flightDuration", fmt.Sprintf("%.3f", meta.Duration)},
		{"tag", meta.Tag},
	}
}

func writeForm(form *multipart.Writer, fields [][2]string, filePath string, log io.Reader) error {
	for _, f := range fields {
		if err := form.WriteField(f[0], f[1]); err != nil {
			return fmt.Errorf("failed to write field %s: %w", f[0], err)
		}
	}
	part, err := form.CreateFormFile("file", filepath.Base(filePath))
	if err != nil {
		return fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, log); err != nil {
		return fmt.Errorf("failed to stream flight log: %w", err)
	}
	return nil
}

func checkStatus(op string, resp *http.Response) error {
	if resp.StatusCode == http.StatusOK {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{Op: op, Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.temporary()
	}
	return true
}
