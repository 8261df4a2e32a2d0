package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	defaultTimeout = 15 * time.Second
	maxBodyBytes   = 32 << 20
)

// Prober executes capabilities by walking their candidate lists in order.
type Prober struct {
	source     EndpointSource
	client     *http.Client
	candidates map[Capability][]Candidate
	logger     *zap.Logger
}

// Option customizes a Prober.
type Option func(*Prober)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Prober) { p.client = c }
}

// WithCandidates overrides the candidate list of one capability.
func WithCandidates(c Capability, list []Candidate) Option {
	return func(p *Prober) { p.candidates[c] = list }
}

// NewProber creates a prober using the default candidate lists.
func NewProber(source EndpointSource, logger *zap.Logger, opts ...Option) *Prober {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Prober{
		source:     source,
		client:     &http.Client{},
		candidates: DefaultCandidates(),
		logger:     logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Candidates returns the candidate names of a capability, in probe order.
func (p *Prober) Candidates(c Capability) []string {
	names := make([]string, 0, len(p.candidates[c]))
	for _, cand := range p.candidates[c] {
		names = append(names, cand.Name)
	}
	return names
}

// Try runs the candidates of a capability until one yields a usable response.
// The first non-empty result is returned immediately and later candidates are
// never invoked. A result with a recognized shape but no items is remembered
// and returned only if no later candidate produces data. When every candidate
// fails, the error is a *ProbeError holding each candidate's failure.
func (p *Prober) Try(ctx context.Context, c Capability, req Request) (*Result, error) {
	ep := p.source.Endpoint()
	if ep.BaseURL == "" {
		return nil, ConfigError("bridge server URL is not set")
	}
	if ep.Session == "" {
		return nil, ConfigError("bridge session name is not set")
	}

	var (
		attempts []*CandidateError
		empty    *Result
	)
	for _, cand := range p.candidates[c] {
		res, err := p.execute(ctx, ep, c, cand, req)
		if err == nil {
			p.logger.Debug("candidate accepted",
				zap.String("capability", string(c)),
				zap.String("candidate", cand.Name),
				zap.Int("http_status", res.StatusCode))
			return res, nil
		}
		if errors.Is(err, errEmpty) {
			if empty == nil {
				empty = res
			}
			continue
		}
		var ce *CandidateError
		if errors.As(err, &ce) {
			attempts = append(attempts, ce)
		}
		p.logger.Debug("candidate failed",
			zap.String("capability", string(c)),
			zap.String("candidate", cand.Name),
			zap.Error(err))
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%s: %w", c, ctxErr)
		}
		if !advance(c, ce) {
			return nil, newProbeError(c, attempts)
		}
	}
	if empty != nil {
		return empty, nil
	}
	return nil, newProbeError(c, attempts)
}

// refusedStatus lists the codes a bridge answers with when the route or body
// shape is wrong, meaning the request had no effect.
var refusedStatus = map[int]bool{
	http.StatusBadRequest:           true,
	http.StatusNotFound:             true,
	http.StatusMethodNotAllowed:     true,
	http.StatusUnsupportedMediaType: true,
}

// advance reports whether the next candidate may run after ce. Sending is not
// idempotent: after a timeout or a 5xx the bridge may already have delivered
// the message, so only an explicit refusal moves on.
func advance(c Capability, ce *CandidateError) bool {
	if c != SendMessage {
		return true
	}
	if ce == nil {
		return false
	}
	return errors.Is(ce.Kind, ErrProtocol) || refusedStatus[ce.StatusCode]
}

func (p *Prober) execute(ctx context.Context, ep Endpoint, c Capability, cand Candidate, req Request) (*Result, error) {
	fail := func(kind error, status int, err error) error {
		return &CandidateError{Capability: c, Candidate: cand.Name, StatusCode: status, Kind: kind, Err: err}
	}

	timeout := ep.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	if cand.Body != nil {
		payload, err := json.Marshal(cand.Body(req))
		if err != nil {
			return nil, fail(ErrProtocol, 0, fmt.Errorf("encode body: %w", err))
		}
		body = bytes.NewReader(payload)
	}

	target := strings.TrimRight(ep.BaseURL, "/") + cand.path(ep, req)
	httpReq, err := http.NewRequestWithContext(ctx, cand.Method, target, body)
	if err != nil {
		return nil, fail(ErrNetwork, 0, fmt.Errorf("build request: %w", err))
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	cand.Auth.apply(httpReq.Header, ep.Token)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fail(ErrNetwork, 0, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fail(ErrNetwork, resp.StatusCode, fmt.Errorf("read body: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fail(ErrNetwork, resp.StatusCode, fmt.Errorf("unexpected status: %s", snippet(data)))
	}

	contentType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	res := &Result{
		Capability:  c,
		Candidate:   cand.Name,
		StatusCode:  resp.StatusCode,
		ContentType: contentType,
		Body:        data,
	}
	if cand.Accept == nil {
		return res, nil
	}
	if err := cand.Accept(res); err != nil {
		if errors.Is(err, errEmpty) {
			return res, errEmpty
		}
		return nil, fail(ErrProtocol, resp.StatusCode, err)
	}
	return res, nil
}

func escape(s string) string {
	return url.PathEscape(s)
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	if s == "" {
		return "<empty body>"
	}
	return s
}
