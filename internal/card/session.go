package card

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"

	crawlerr "github.com/yokai-gen/nichicrawl/internal/errors"
	"github.com/yokai-gen/nichicrawl/internal/fsutil"
)

// Default remote endpoints.
const (
	DefaultCardURL      = "https://www.nichibun.ac.jp/cgi-bin/YoukaiGazou/card.cgi"
	DefaultImageBaseURL = "https://www.nichibun.ac.jp/YoukaiGazou/image/"
	DefaultUserAgent    = "Mozilla/5.0 (compatible; nichicrawl/1.0)"
	DefaultTimeout      = 15 * time.Second
)

// maxBodyBytes caps how much of a card page or image is read.
const maxBodyBytes = 64 << 20

// Config configures a Session.
type Config struct {
	CardURL      string
	ImageBaseURL string
	UserAgent    string
	Timeout      time.Duration
	Retry        crawlerr.RetryConfig
}

// DefaultConfig returns the configuration for the public archive.
func DefaultConfig() Config {
	return Config{
		CardURL:      DefaultCardURL,
		ImageBaseURL: DefaultImageBaseURL,
		UserAgent:    DefaultUserAgent,
		Timeout:      DefaultTimeout,
		Retry:        crawlerr.DefaultRetryConfig(),
	}
}

var sessionSeq atomic.Uint64

// Session is one long-lived connection pool to the archive. It owns its
// http.Client and transport; sessions are never shared between workers.
type Session struct {
	id     uint64
	cfg    Config
	client *http.Client
}

// NewSession creates a session with its own transport.
func NewSession(cfg Config) *Session {
	def := DefaultConfig()
	if cfg.CardURL == "" {
		cfg.CardURL = def.CardURL
	}
	if cfg.ImageBaseURL == "" {
		cfg.ImageBaseURL = def.ImageBaseURL
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	return &Session{
		id:  sessionSeq.Add(1),
		cfg: cfg,
		client: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
		},
	}
}

// ID returns a process-unique session number.
func (s *Session) ID() uint64 { return s.id }

// Close releases idle connections.
func (s *Session) Close() {
	s.client.CloseIdleConnections()
}

// CardURL returns the card page URL for id.
func (s *Session) CardURL(id string) string {
	return s.cfg.CardURL + "?" + url.Values{"identifier": {id}}.Encode()
}

// ImageURL returns the constructed image URL for id.
func (s *Session) ImageURL(id string) string {
	return strings.TrimRight(s.cfg.ImageBaseURL, "/") + "/" + id + ".jpg"
}

// Probe fetches the card page for id and reports whether the identifier
// occurs in the body. The endpoint answers 200 for unknown identifiers too,
// so the status code alone proves nothing.
func (s *Session) Probe(ctx context.Context, id string) (Probe, error) {
	page, err := s.getPage(ctx, s.CardURL(id))
	if err != nil {
		return Probe{}, err
	}
	if !strings.Contains(page.body, id) {
		return Probe{Exists: false}, nil
	}

	rec, err := s.build(id, page)
	if err != nil {
		return Probe{}, err
	}
	return Probe{Exists: true, Record: rec}, nil
}

// Fetch returns the parsed card for an identifier already known to exist.
// A page that does not mention id still yields a record with the URLs set
// and empty metadata.
func (s *Session) Fetch(ctx context.Context, id string) (Record, error) {
	page, err := s.getPage(ctx, s.CardURL(id))
	if err != nil {
		return Record{}, err
	}
	return s.build(id, page)
}

// DownloadImage saves rec's image into dir as {identifier}{ext} and returns
// the path. An existing file is reused without a request unless overwrite is
// set. A response that is not an image yields "" and no error.
func (s *Session) DownloadImage(ctx context.Context, rec Record, dir string, overwrite bool) (string, error) {
	imageURL := rec.ImageURL
	if imageURL == "" {
		imageURL = s.ImageURL(rec.Identifier)
	}
	dest := filepath.Join(dir, rec.Identifier+imageExt(imageURL))
	if !overwrite && fsutil.Exists(dest) {
		return dest, nil
	}

	return crawlerr.RetryWithResult(ctx, s.cfg.Retry, func() (string, error) {
		resp, err := s.get(ctx, imageURL)
		if err != nil {
			return "", err
		}
		defer resp.Body.Close()

		ct := resp.Header.Get("Content-Type")
		if !strings.HasPrefix(strings.ToLower(ct), "image") {
			slog.Warn("image_unexpected_content_type",
				slog.String("identifier", rec.Identifier),
				slog.String("url", imageURL),
				slog.String("content_type", ct))
			return "", nil
		}

		err = fsutil.WriteAtomic(ctx, dest, func(w io.Writer) error {
			_, err := io.Copy(w, io.LimitReader(resp.Body, maxBodyBytes))
			return err
		})
		if err != nil {
			return "", crawlerr.WriteError("failed to save image", err).WithDetail("path", dest)
		}
		return dest, nil
	})
}

type page struct {
	body     string
	finalURL *url.URL
}

func (s *Session) getPage(ctx context.Context, target string) (page, error) {
	return crawlerr.RetryWithResult(ctx, s.cfg.Retry, func() (page, error) {
		resp, err := s.get(ctx, target)
		if err != nil {
			return page{}, err
		}
		defer resp.Body.Close()

		r, err := charset.NewReader(io.LimitReader(resp.Body, maxBodyBytes), resp.Header.Get("Content-Type"))
		if err != nil {
			return page{}, crawlerr.New(crawlerr.ErrCodeUnexpectedContent, "undecodable card page", err).
				WithDetail("url", target)
		}
		data, err := io.ReadAll(r)
		if err != nil {
			return page{}, crawlerr.NetworkError("failed to read card page", err).WithDetail("url", target)
		}
		return page{body: string(data), finalURL: resp.Request.URL}, nil
	})
}

// get issues a GET and turns transport failures and non-2xx answers into
// CrawlErrors. The caller closes the body of a successful response.
func (s *Session) get(ctx context.Context, target string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, crawlerr.New(crawlerr.ErrCodeInternal, "failed to build request", err).WithDetail("url", target)
	}
	req.Header.Set("User-Agent", s.cfg.UserAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, crawlerr.NetworkError(fmt.Sprintf("GET %s failed", target), err).WithDetail("url", target)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		resp.Body.Close()
		return nil, crawlerr.StatusError(target, resp.StatusCode)
	}
	return resp, nil
}

func (s *Session) build(id string, p page) (Record, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(p.body))
	if err != nil {
		return Record{}, crawlerr.New(crawlerr.ErrCodeUnexpectedContent, "unparsable card page", err).
			WithDetail("identifier", id)
	}

	rec := newRecord(id)
	rec.Meta = ParseMetadata(doc)
	rec.CardURL = s.CardURL(id)
	rec.ImageURL = s.ImageURL(id)

	media := ExtractMedia(doc, p.finalURL)
	if media.ImageURL != "" {
		rec.ImageURL = media.ImageURL
	}
	rec.ManifestURL = media.ManifestURL
	rec.ViewerURL = media.ViewerURL
	return rec, nil
}

// imageExt returns the lower-cased extension of the URL path, or ".jpg".
func imageExt(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ".jpg"
	}
	ext := strings.ToLower(path.Ext(u.Path))
	if ext == "" || len(ext) > 5 {
		return ".jpg"
	}
	return ext
}
