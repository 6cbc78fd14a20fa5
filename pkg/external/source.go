// Package external implements the HTTP substrate shared by every
// upstream data and annotation source: rate limiting, retry with
// exponential backoff, circuit breaking, and JSON transport. Per-source
// clients (HGNC, gnomAD, ClinVar, HPO, MGI, STRING, GTEx, Descartes,
// PubTator, GenCC, PanelApp) are built on top of Source.
package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kidney-genetics/ingestion-core/internal/domain"
)

// Source bundles the resilience primitives every outbound client needs:
// a per-instance rate limiter, retrier, and circuit breaker, wired from
// one SourceConfig entry.
type Source struct {
	Name       string
	cfg        domain.SourceConfig
	httpClient *http.Client
	limiter    *Limiter
	retrier    *Retrier
	breaker    *CircuitBreaker
	log        *logrus.Logger
}

// Limiter is the subset of pkg/ratelimit.Limiter Source depends on,
// declared locally to avoid an import cycle concern and keep Source
// trivially testable with a fake.
type Limiter interface {
	Acquire(ctx context.Context) error
}

// NewSource builds the shared substrate for one source instance.
func NewSource(name string, cfg domain.SourceConfig, limiter Limiter, log *logrus.Logger) *Source {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Source{
		Name:       name,
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    limiter,
		retrier:    NewRetrier(name, cfg, log),
		breaker:    NewCircuitBreaker(name, cfg, log),
		log:        log,
	}
}

// State reports the breaker's current state for status reporting.
func (s *Source) State() string { return s.breaker.State() }

// Config returns the source's declarative configuration.
func (s *Source) Config() domain.SourceConfig { return s.cfg }

// GetJSON issues a GET request against url, retried and breaker-guarded,
// and decodes the JSON body into out.
func (s *Source) GetJSON(ctx context.Context, url string, headers map[string]string, out any) error {
	return s.do(ctx, http.MethodGet, url, nil, headers, out)
}

// PostJSON issues a POST request with a JSON body, retried and
// breaker-guarded, and decodes the JSON response into out.
func (s *Source) PostJSON(ctx context.Context, url string, body any, headers map[string]string, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%s: marshal request body: %w", s.Name, err)
	}
	return s.do(ctx, http.MethodPost, url, bytes.NewReader(payload), headers, out)
}

// GetBytes issues a GET request and returns the raw response body,
// for sources whose payload isn't JSON (TSV/XLSX exports).
func (s *Source) GetBytes(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	var result []byte
	err := s.breakerExecute(ctx, func(callCtx context.Context) error {
		if err := s.limiter.Acquire(callCtx); err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(callCtx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		resp, err := s.httpClient.Do(req)
		if err != nil {
			return &domain.TransportError{URL: url, Err: err}
		}
		defer resp.Body.Close()
		if classified := s.classifyStatus(url, resp); classified != nil {
			io.Copy(io.Discard, resp.Body)
			return classified
		}
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("%s: read response body: %w", s.Name, err)
		}
		result = body
		return nil
	})
	return result, err
}

func (s *Source) do(ctx context.Context, method, url string, body io.Reader, headers map[string]string, out any) error {
	var raw []byte
	err := s.breakerExecute(ctx, func(callCtx context.Context) error {
		if err := s.limiter.Acquire(callCtx); err != nil {
			return err
		}
		if seeker, ok := body.(io.Seeker); ok {
			if _, err := seeker.Seek(0, io.SeekStart); err != nil {
				return err
			}
		}
		req, err := http.NewRequestWithContext(callCtx, method, url, body)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")
		if method == http.MethodPost {
			req.Header.Set("Content-Type", "application/json")
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		resp, err := s.httpClient.Do(req)
		if err != nil {
			return &domain.TransportError{URL: url, Err: err}
		}
		defer resp.Body.Close()
		if classified := s.classifyStatus(url, resp); classified != nil {
			io.Copy(io.Discard, resp.Body)
			return classified
		}
		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("%s: read response body: %w", s.Name, err)
		}
		raw = b
		return nil
	})
	if err != nil {
		return err
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", s.Name, err)
	}
	return nil
}

// breakerExecute runs the retrier inside the circuit breaker: the
// breaker sees one failure per retry-exhausted call, not per attempt.
func (s *Source) breakerExecute(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := s.breaker.Execute(ctx, func() (any, error) {
		return nil, s.retrier.Do(ctx, fn)
	})
	return err
}

// classifyStatus maps an HTTP response status into the domain error
// taxonomy: 429/5xx are retryable (honoring Retry-After when present),
// 4xx otherwise are permanent.
func (s *Source) classifyStatus(url string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		return &domain.RetryableStatusError{URL: url, StatusCode: resp.StatusCode, RetryAfter: retryAfter}
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &domain.PermanentStatusError{URL: url, StatusCode: resp.StatusCode, Body: string(body)}
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(header); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
