package client

import (
	"context"
	stderrors "errors"
	"io"
	"net/http"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/kbukum/sonago/errors"
	"github.com/kbukum/sonago/httpclient"
	"github.com/kbukum/sonago/httpclient/ndjson"
	"github.com/kbukum/sonago/logger"
	"github.com/kbukum/sonago/observability"
	"github.com/kbukum/sonago/version"
)

const (
	pathHealth         = "/health"
	pathReady          = "/ready"
	pathModels         = "/v1/models"
	pathLoadModel      = "/v1/models/load"
	pathTranscriptions = "/v1/audio/transcriptions"

	// HeaderRequestID carries the per-call request id.
	HeaderRequestID = "X-Request-ID"
)

// Client is an HTTP client for one Sona server. It is safe for concurrent
// use.
type Client struct {
	http      *httpclient.Adapter
	cfg       Config
	log       *logger.Logger
	metrics   *observability.Metrics
	sessionID string
	closed    atomic.Bool
}

// Option configures a Client.
type Option func(*options)

type options struct {
	log       *logger.Logger
	metrics   *observability.Metrics
	sessionID string
	transport http.RoundTripper
}

// WithLogger replaces the "client" component logger.
func WithLogger(l *logger.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithMetrics records request metrics on m.
func WithMetrics(m *observability.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithSessionID tags logs and spans with a session id.
func WithSessionID(id string) Option {
	return func(o *options) { o.sessionID = id }
}

// WithTransport replaces the HTTP transport.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *options) { o.transport = rt }
}

// New creates a Client bound to cfg.BaseURL. It performs no I/O.
func New(cfg Config, opts ...Option) (*Client, error) {
	cfg.ApplyDefaults()
	if cfg.BaseURL == "" {
		return nil, errors.MissingField("base_url")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := options{log: logger.Get("client")}
	for _, opt := range opts {
		opt(&o)
	}

	var adapterOpts []httpclient.Option
	if o.transport != nil {
		adapterOpts = append(adapterOpts, httpclient.WithTransport(o.transport))
	}
	adapter, err := httpclient.New(httpclient.Config{
		Name:    cfg.ServiceName,
		BaseURL: cfg.BaseURL,
		Timeout: cfg.adapterTimeout(),
	}, adapterOpts...)
	if err != nil {
		return nil, errors.InvalidInput("base_url", err.Error()).WithCause(err)
	}

	log := o.log
	if o.sessionID != "" {
		log = log.WithFields(logger.Fields(logger.FieldSessionID, o.sessionID))
	}

	return &Client{
		http:      adapter,
		cfg:       cfg,
		log:       log,
		metrics:   o.metrics,
		sessionID: o.sessionID,
	}, nil
}

// BaseURL returns the server address the client is bound to.
func (c *Client) BaseURL() string { return c.cfg.BaseURL }

// Closed reports whether Close has been called.
func (c *Client) Closed() bool { return c.closed.Load() }

// Close closes open streams and idle connections. Later calls fail with
// SESSION_CLOSED. Safe to call more than once.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	return c.http.Close(context.Background())
}

// Health calls GET /health.
func (c *Client) Health(ctx context.Context) (*Status, error) {
	return getJSON[Status](c, ctx, "health", pathHealth)
}

// Ready calls GET /ready. A server without a loaded model answers 503, which
// is returned as PROTOCOL_ERROR.
func (c *Client) Ready(ctx context.Context) (*Status, error) {
	return getJSON[Status](c, ctx, "ready", pathReady)
}

// LoadModel asks the server to load the model file at path.
func (c *Client) LoadModel(ctx context.Context, path string) (*Status, error) {
	if path == "" {
		return nil, errors.MissingField("path")
	}
	var out *Status
	err := c.call(ctx, "load_model", func(ctx context.Context, headers map[string]string) error {
		resp, err := httpclient.Post[Status](c.http, ctx, pathLoadModel, loadRequest{Path: path}, headerOptions(headers)...)
		if err != nil {
			return err
		}
		out = &resp.Data
		return nil
	})
	return out, err
}

// UnloadModel calls DELETE /v1/models.
func (c *Client) UnloadModel(ctx context.Context) (*Status, error) {
	var out *Status
	err := c.call(ctx, "unload_model", func(ctx context.Context, headers map[string]string) error {
		resp, err := httpclient.Delete[Status](c.http, ctx, pathModels, headerOptions(headers)...)
		if err != nil {
			return err
		}
		out = &resp.Data
		return nil
	})
	return out, err
}

// ListModels calls GET /v1/models.
func (c *Client) ListModels(ctx context.Context) (*ModelList, error) {
	return getJSON[ModelList](c, ctx, "list_models", pathModels)
}

func getJSON[T any](c *Client, ctx context.Context, op, path string) (*T, error) {
	var out *T
	err := c.call(ctx, op, func(ctx context.Context, headers map[string]string) error {
		resp, err := httpclient.Get[T](c.http, ctx, path, headerOptions(headers)...)
		if err != nil {
			return err
		}
		out = &resp.Data
		return nil
	})
	return out, err
}

// call runs fn inside a span with request headers, maps its error and
// records the outcome.
func (c *Client) call(ctx context.Context, op string, fn func(ctx context.Context, headers map[string]string) error) error {
	if c.closed.Load() {
		return errors.SessionClosed()
	}

	requestID := uuid.NewString()
	oc := observability.NewOperationContext(c.cfg.ServiceName, op, requestID, c.sessionID, c.metrics)
	ctx = observability.WithOperationContext(ctx, oc)
	ctx = logger.ContextWithRequestID(ctx, requestID)
	ctx, span := oc.StartSpanForOperation(ctx, observability.SpanRequest)

	headers := map[string]string{
		HeaderRequestID: requestID,
		"User-Agent":    version.UserAgent(),
	}
	observability.InjectHeaders(ctx, headers)

	err := c.mapError(op, fn(ctx, headers))

	status := "success"
	log := c.log.WithContext(ctx)
	if err != nil {
		status = "error"
		if appErr, ok := errors.AsAppError(err); ok {
			if httpStatus, _, ok := errors.ProtocolStatus(err); ok {
				observability.SetSpanAttribute(ctx, observability.AttrHTTPStatus, httpStatus)
			}
			if c.metrics != nil {
				c.metrics.RecordError(ctx, string(appErr.Code), "client")
			}
		}
		log.Debug("request failed", logger.ErrorFields(op, err))
	} else {
		log.Debug("request completed", logger.DurationFields(op, oc.Duration()))
	}
	oc.EndOperation(ctx, span, status, err)
	return err
}

// mapError converts adapter errors into AppErrors.
func (c *Client) mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.IsAppError(err) {
		return err
	}

	var httpErr *httpclient.Error
	if !stderrors.As(err, &httpErr) {
		return errors.Wrap(err)
	}
	switch {
	case httpErr.Kind == httpclient.KindDecode:
		return errors.DecodeFailed(httpErr.StatusCode, httpErr.Body, httpErr.Err)
	case httpErr.StatusCode > 0:
		return errors.Protocol(httpErr.StatusCode, httpErr.Body).WithCause(httpErr)
	case c.closed.Load():
		return errors.SessionClosed().WithCause(httpErr)
	case httpErr.Kind == httpclient.KindTimeout:
		return errors.Timeout(op).WithCause(httpErr)
	case httpErr.Kind == httpclient.KindConnection:
		return errors.ConnectionFailed("sona server").WithCause(httpErr)
	default:
		return errors.Internal(httpErr)
	}
}

func headerOptions(headers map[string]string) []httpclient.RequestOption {
	opts := make([]httpclient.RequestOption, 0, len(headers))
	for k, v := range headers {
		opts = append(opts, httpclient.WithHeader(k, v))
	}
	return opts
}

// sessionReader fails every read after Close with SESSION_CLOSED, including
// reads that the buffered lines could still satisfy.
type sessionReader struct {
	ndjson.Reader
	closed *atomic.Bool
}

func (r sessionReader) Next() ([]byte, error) {
	if r.closed.Load() {
		return nil, errors.SessionClosed()
	}
	line, err := r.Reader.Next()
	if err != nil && !stderrors.Is(err, io.EOF) && r.closed.Load() {
		return nil, errors.SessionClosed().WithCause(err)
	}
	return line, err
}
