// Package upload sends deployment archives to signed object-store URLs.
package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// VersionHeader carries the object version assigned by the store.
const VersionHeader = "x-amz-version-id"

// Target is where an archive is uploaded: Direct or Multipart.
type Target interface {
	target()
}

// Direct is a signed URL accepting a PUT of the whole archive.
type Direct struct {
	Endpoint string
}

func (Direct) target() {}

// Field is one signed form field of a multipart upload.
type Field struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Multipart is a signed form POST. Fields are sent in order before the
// archive. MaxTotalSize of zero means no quota.
type Multipart struct {
	URL          string
	Fields       []Field
	MaxTotalSize int64
}

func (Multipart) target() {}

// Part is one archive to upload.
type Part struct {
	Name   string
	Data   []byte
	Target Target
}

// Error reports a failed upload.
type Error struct {
	URL     string
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("upload to %s failed: %v", e.URL, e.Err)
	case e.Status != 0:
		return fmt.Sprintf("upload to %s failed (%d): %s", e.URL, e.Status, e.Message)
	default:
		return fmt.Sprintf("upload to %s failed: %s", e.URL, e.Message)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// SizeLimitError reports archives that together exceed the upload quota.
type SizeLimitError struct {
	Size  int64
	Limit int64
}

func (e *SizeLimitError) Error() string {
	return fmt.Sprintf("deployment size %d bytes exceeds the maximum of %d bytes", e.Size, e.Limit)
}

// Uploader performs uploads over HTTP.
type Uploader struct {
	httpClient *http.Client
	logger     *zap.Logger
	progress   io.Writer
}

// Option customises an Uploader.
type Option func(*Uploader)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(u *Uploader) {
		if h != nil {
			u.httpClient = h
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(u *Uploader) {
		if logger != nil {
			u.logger = logger
		}
	}
}

// WithProgress renders a byte progress bar per upload on w.
func WithProgress(w io.Writer) Option {
	return func(u *Uploader) {
		if w != nil {
			u.progress = &lockedWriter{w: w}
		}
	}
}

// lockedWriter serializes writes from concurrent progress bars.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

// New creates an Uploader.
func New(opts ...Option) *Uploader {
	u := &Uploader{
		httpClient: &http.Client{Timeout: 10 * time.Minute},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// CheckSize fails when the multipart parts together exceed their quota.
// Direct parts are not counted.
func CheckSize(parts []Part) error {
	var total, limit int64
	for _, p := range parts {
		mp, ok := p.Target.(Multipart)
		if !ok {
			continue
		}
		total += int64(len(p.Data))
		if mp.MaxTotalSize > 0 && (limit == 0 || mp.MaxTotalSize < limit) {
			limit = mp.MaxTotalSize
		}
	}

	if limit > 0 && total > limit {
		return &SizeLimitError{Size: total, Limit: limit}
	}
	return nil
}

// UploadAll checks the size quota and then uploads every part
// concurrently. It returns one version id per part, in order. The first
// failure cancels the remaining uploads.
func (u *Uploader) UploadAll(ctx context.Context, parts []Part) ([]string, error) {
	if err := CheckSize(parts); err != nil {
		return nil, err
	}

	versions := make([]string, len(parts))
	g, ctx := errgroup.WithContext(ctx)
	for i, p := range parts {
		g.Go(func() error {
			version, err := u.Upload(ctx, p.Name, p.Data, p.Target)
			if err != nil {
				return fmt.Errorf("failed to upload %s archive: %w", p.Name, err)
			}
			versions[i] = version
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return versions, nil
}

// Upload sends data to target and returns the stored object's version.
func (u *Uploader) Upload(ctx context.Context, name string, data []byte, target Target) (string, error) {
	var (
		req *http.Request
		err error
	)

	switch t := target.(type) {
	case Direct:
		req, err = u.putRequest(ctx, name, data, t)
	case Multipart:
		req, err = u.postRequest(ctx, name, data, t)
	default:
		return "", fmt.Errorf("unsupported upload target %T", target)
	}
	if err != nil {
		return "", err
	}

	where := redact(req.URL)
	u.logger.Debug("uploading archive",
		zap.String("name", name),
		zap.String("method", req.Method),
		zap.String("url", where),
		zap.Int("bytes", len(data)))

	resp, err := u.httpClient.Do(req)
	if err != nil {
		// url.Error repeats the signed URL.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return "", &Error{URL: where, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &Error{URL: where, Status: resp.StatusCode, Message: extractError(resp.Body)}
	}

	version := resp.Header.Get(VersionHeader)
	if version == "" {
		return "", &Error{URL: where, Message: "response is missing the " + VersionHeader + " header"}
	}

	u.logger.Debug("archive uploaded", zap.String("name", name), zap.String("version", version))
	return version, nil
}

func (u *Uploader) putRequest(ctx context.Context, name string, data []byte, t Direct) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, t.Endpoint, u.body(name, data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.ContentLength = int64(len(data))
	req.Header.Set("Content-Type", "application/zip")
	return req, nil
}

func (u *Uploader) postRequest(ctx context.Context, name string, data []byte, t Multipart) (*http.Request, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, f := range t.Fields {
		if err := mw.WriteField(f.Key, f.Value); err != nil {
			return nil, fmt.Errorf("encode form field %s: %w", f.Key, err)
		}
	}

	// The store ignores form fields after the file.
	fw, err := mw.CreateFormFile("file", name+".zip")
	if err != nil {
		return nil, fmt.Errorf("encode form file: %w", err)
	}
	if _, err := fw.Write(data); err != nil {
		return nil, fmt.Errorf("encode form file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("encode form: %w", err)
	}

	length := int64(buf.Len())
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.URL, u.body(name, buf.Bytes()))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.ContentLength = length
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req, nil
}

// body returns a reader over data that advances a progress bar when one
// is configured.
func (u *Uploader) body(name string, data []byte) io.Reader {
	r := bytes.NewReader(data)
	if u.progress == nil {
		return r
	}

	w := u.progress
	bar := progressbar.NewOptions64(int64(len(data)),
		progressbar.OptionSetDescription("Uploading "+name),
		progressbar.OptionSetWriter(w),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionShowCount(),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(w, "\n")
		}),
	)
	return io.TeeReader(r, bar)
}

// redact drops the signature query from a presigned URL.
func redact(u *url.URL) string {
	c := *u
	c.RawQuery = ""
	c.User = nil
	return c.String()
}

func extractError(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil {
		return ""
	}
	msg := strings.TrimSpace(string(data))
	if msg == "" {
		return "empty response body"
	}
	return msg
}
