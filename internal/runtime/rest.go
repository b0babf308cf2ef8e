package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/notebridge/backend/internal/infrastructure/config"
	"github.com/notebridge/backend/internal/infrastructure/resilience"
	"github.com/notebridge/backend/internal/logging"
	"github.com/notebridge/backend/internal/notebook"
)

// RESTClient implements Client against the runtime's HTTP API, with retries on
// the transport and a circuit breaker around every call.
type RESTClient struct {
	http    *resty.Client
	baseURL string
	token   string
	exec    time.Duration
	breaker *resilience.Breaker
	log     *logging.Logger
}

// NewREST creates a runtime client from configuration.
func NewREST(cfg config.RuntimeConfig, log *logging.Logger) *RESTClient {
	rc := retryablehttp.NewClient()
	rc.RetryMax = cfg.RetryMax
	rc.Logger = nil

	client := resty.NewWithClient(rc.StandardClient()).
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.RequestTimeout)
	if cfg.Token != "" {
		client.SetHeader("Authorization", "token "+cfg.Token)
	}

	breaker := resilience.New("runtime", resilience.Settings{
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 5 ||
				(counts.Requests >= 10 && float64(counts.TotalFailures)/float64(counts.Requests) > 0.5)
		},
		OnStateChange: func(name string, from, to resilience.State) {
			log.Warn("runtime breaker state change",
				zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})

	return &RESTClient{
		http:    client,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		exec:    cfg.ExecTimeout,
		breaker: breaker,
		log:     log,
	}
}

type contentEntry struct {
	Path    string          `json:"path"`
	Type    string          `json:"type"`
	Content json.RawMessage `json:"content"`
}

// ListDocuments walks the content store root.
func (c *RESTClient) ListDocuments(ctx context.Context) ([]DocumentInfo, error) {
	var entry contentEntry
	if err := c.get(ctx, "/api/contents", &entry); err != nil {
		return nil, err
	}
	var children []contentEntry
	if len(entry.Content) > 0 {
		if err := json.Unmarshal(entry.Content, &children); err != nil {
			return nil, fmt.Errorf("parse content listing: %w", err)
		}
	}
	docs := make([]DocumentInfo, 0, len(children))
	for _, ch := range children {
		docs = append(docs, DocumentInfo{Path: ch.Path, Type: ch.Type})
	}
	return docs, nil
}

// LoadDocument fetches the notebook JSON at path.
func (c *RESTClient) LoadDocument(ctx context.Context, path string) ([]byte, error) {
	var entry contentEntry
	if err := c.get(ctx, "/api/contents/"+url.PathEscape(path), &entry); err != nil {
		return nil, err
	}
	return entry.Content, nil
}

// SaveDocument writes the notebook JSON at path.
func (c *RESTClient) SaveDocument(ctx context.Context, path string, content []byte) error {
	body := map[string]any{
		"type":    "notebook",
		"format":  "json",
		"content": json.RawMessage(content),
	}
	return c.breaker.Execute(func() error {
		resp, err := c.http.R().SetContext(ctx).SetBody(body).
			Put("/api/contents/" + url.PathEscape(path))
		return c.check(resp, err, "save document")
	})
}

// DeleteDocument removes the persisted entry at path.
func (c *RESTClient) DeleteDocument(ctx context.Context, path string) error {
	return c.breaker.Execute(func() error {
		resp, err := c.http.R().SetContext(ctx).
			Delete("/api/contents/" + url.PathEscape(path))
		return c.check(resp, err, "delete document")
	})
}

type sessionEntry struct {
	ID     string `json:"id"`
	Path   string `json:"path"`
	Kernel struct {
		ID string `json:"id"`
	} `json:"kernel"`
}

// ListSessions returns all open document views.
func (c *RESTClient) ListSessions(ctx context.Context) ([]SessionInfo, error) {
	var entries []sessionEntry
	if err := c.get(ctx, "/api/sessions", &entries); err != nil {
		return nil, err
	}
	sessions := make([]SessionInfo, 0, len(entries))
	for _, e := range entries {
		sessions = append(sessions, SessionInfo{ID: e.ID, Path: e.Path, KernelID: e.Kernel.ID})
	}
	return sessions, nil
}

// OpenSession opens (or creates) a view over the document at path.
func (c *RESTClient) OpenSession(ctx context.Context, path string) (SessionInfo, error) {
	body := map[string]any{
		"path": path,
		"type": "notebook",
	}
	var entry sessionEntry
	err := c.breaker.Execute(func() error {
		resp, err := c.http.R().SetContext(ctx).SetBody(body).SetResult(&entry).
			Post("/api/sessions")
		return c.check(resp, err, "open session")
	})
	if err != nil {
		return SessionInfo{}, err
	}
	return SessionInfo{ID: entry.ID, Path: entry.Path, KernelID: entry.Kernel.ID}, nil
}

// CloseSession closes a document view.
func (c *RESTClient) CloseSession(ctx context.Context, id string) error {
	return c.breaker.Execute(func() error {
		resp, err := c.http.R().SetContext(ctx).
			Delete("/api/sessions/" + url.PathEscape(id))
		return c.check(resp, err, "close session")
	})
}

// ListKernels returns all live kernels.
func (c *RESTClient) ListKernels(ctx context.Context) ([]KernelInfo, error) {
	var kernels []KernelInfo
	if err := c.get(ctx, "/api/kernels", &kernels); err != nil {
		return nil, err
	}
	return kernels, nil
}

// ShutdownKernel terminates a kernel.
func (c *RESTClient) ShutdownKernel(ctx context.Context, id string) error {
	return c.breaker.Execute(func() error {
		resp, err := c.http.R().SetContext(ctx).
			Delete("/api/kernels/" + url.PathEscape(id))
		return c.check(resp, err, "shutdown kernel")
	})
}

// ClearRecents empties the runtime's recent documents list.
func (c *RESTClient) ClearRecents(ctx context.Context) error {
	return c.breaker.Execute(func() error {
		resp, err := c.http.R().SetContext(ctx).
			Delete("/api/workspace/recents")
		return c.check(resp, err, "clear recents")
	})
}

// ApplyPresentation pushes view chrome settings for the canonical document.
func (c *RESTClient) ApplyPresentation(ctx context.Context, p Presentation) error {
	return c.breaker.Execute(func() error {
		resp, err := c.http.R().SetContext(ctx).SetBody(p).
			Put("/api/workspace/presentation")
		return c.check(resp, err, "apply presentation")
	})
}

type kernelSpecsResponse struct {
	Default     string `json:"default"`
	KernelSpecs map[string]struct {
		Spec struct {
			DisplayName string `json:"display_name"`
			Language    string `json:"language"`
		} `json:"spec"`
	} `json:"kernelspecs"`
}

// KernelSpec reports the runtime's default kernel spec, nil when none exists.
func (c *RESTClient) KernelSpec(ctx context.Context) (*notebook.KernelSpec, error) {
	var specs kernelSpecsResponse
	if err := c.get(ctx, "/api/kernelspecs", &specs); err != nil {
		return nil, err
	}
	entry, ok := specs.KernelSpecs[specs.Default]
	if !ok {
		return nil, nil
	}
	return &notebook.KernelSpec{
		Name:        specs.Default,
		DisplayName: entry.Spec.DisplayName,
		Language:    entry.Spec.Language,
	}, nil
}

// Status probes the runtime without the breaker, so diagnostics still work
// while the circuit is open.
func (c *RESTClient) Status(ctx context.Context) Status {
	var body struct {
		Version string `json:"version"`
		Started string `json:"started"`
	}
	resp, err := c.http.R().SetContext(ctx).SetResult(&body).Get("/api/status")
	if err != nil {
		return Status{Reachable: false, Message: err.Error()}
	}
	if resp.StatusCode() == 503 {
		return Status{Reachable: true, Starting: true, Message: "runtime starting"}
	}
	if resp.IsError() {
		return Status{Reachable: true, Message: fmt.Sprintf("runtime returned %d", resp.StatusCode())}
	}
	return Status{Reachable: true, Version: body.Version}
}

func (c *RESTClient) get(ctx context.Context, path string, out any) error {
	return c.breaker.Execute(func() error {
		resp, err := c.http.R().SetContext(ctx).SetResult(out).Get(path)
		return c.check(resp, err, "get "+path)
	})
}

func (c *RESTClient) check(resp *resty.Response, err error, op string) error {
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if resp.IsError() {
		return fmt.Errorf("%s: runtime returned %d: %s", op, resp.StatusCode(), strings.TrimSpace(resp.String()))
	}
	return nil
}
