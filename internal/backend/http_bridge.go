// File: internal/backend/http_bridge.go
package backend

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// HTTPBridge forwards structured operations to the target application's
// automation bridge over HTTP. The bridge owns the scripting session; this
// client only carries the wire contract: POST /op/<name> with the raw JSON
// parameters, JSON reply with ok/message/data.
type HTTPBridge struct {
	endpoint string
	client   *http.Client
	logger   *zap.Logger
}

// bridgeResponse is the wire shape returned by the automation bridge.
type bridgeResponse struct {
	OK      bool                `json:"ok"`
	Message string              `json:"message"`
	Data    jsoniter.RawMessage `json:"data"`
}

// NewHTTPBridge creates a bridge client for the given endpoint.
func NewHTTPBridge(endpoint string, timeout time.Duration, logger *zap.Logger) (*HTTPBridge, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("bridge endpoint cannot be empty")
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &HTTPBridge{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With(zap.String("component", "backend_bridge")),
	}, nil
}

// Call executes one named operation on the bridge. A transport or protocol
// error is returned as error; a well-formed rejection comes back as an
// unsuccessful Result.
func (b *HTTPBridge) Call(ctx context.Context, name string, params []byte) (Result, error) {
	if len(params) == 0 {
		params = []byte("{}")
	}

	url := b.endpoint + "/op/" + name
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(params))
	if err != nil {
		return Result{}, fmt.Errorf("failed to build bridge request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("bridge request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Result{}, fmt.Errorf("bridge returned status %d: %s", resp.StatusCode, string(body))
	}

	var parsed bridgeResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Result{}, fmt.Errorf("failed to decode bridge response: %w", err)
	}

	b.logger.Debug("Bridge call completed",
		zap.String("operation", name),
		zap.Bool("ok", parsed.OK))
	return Result{Success: parsed.OK, Data: parsed.Data, Message: parsed.Message}, nil
}

// Handler adapts one named bridge operation to the registry's Handler shape.
func (b *HTTPBridge) Handler(name string) Handler {
	return func(ctx context.Context, params []byte) (Result, error) {
		return b.Call(ctx, name, params)
	}
}

// RegisterBridge registers every named operation against the bridge.
func RegisterBridge(reg *Registry, bridge *HTTPBridge, names ...string) error {
	for _, name := range names {
		if err := reg.Register(Operation{Name: name, Handler: bridge.Handler(name)}); err != nil {
			return err
		}
	}
	return nil
}
