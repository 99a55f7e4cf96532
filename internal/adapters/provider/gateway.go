package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	jmespath "github.com/jmespath-community/go-jmespath"
)

const gatewayResponseLimit = 1 << 20 // 1 MiB

// gatewayClient wraps the shared request/response handling for HTTP message
// gateways: issue the request, require a 2xx status, and pull the provider's
// message id out of the JSON response with a JMESPath expression.
type gatewayClient struct {
	httpClient *http.Client
	// idExpr locates the provider message id in the response body.
	idExpr string
}

func newGatewayClient(client *http.Client, idExpr string) (*gatewayClient, error) {
	if strings.TrimSpace(idExpr) != "" {
		if _, err := jmespath.Compile(idExpr); err != nil {
			return nil, fmt.Errorf("%w: invalid id expression %q: %v", ErrInvalidConfig, idExpr, err)
		}
	}
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &gatewayClient{httpClient: client, idExpr: idExpr}, nil
}

// do executes the request and returns the extracted provider message id.
// An empty id is not an error; some gateways return opaque bodies.
func (g *gatewayClient) do(ctx context.Context, req *http.Request) (string, error) {
	resp, err := g.httpClient.Do(req.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("gateway request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, gatewayResponseLimit))
	if err != nil {
		return "", fmt.Errorf("read gateway response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("gateway returned status %d: %s", resp.StatusCode, truncate(string(body), 256))
	}

	return g.extractID(body), nil
}

func (g *gatewayClient) extractID(body []byte) string {
	if strings.TrimSpace(g.idExpr) == "" || len(body) == 0 {
		return ""
	}

	var data any
	if err := json.Unmarshal(body, &data); err != nil {
		return ""
	}

	res, err := jmespath.Search(g.idExpr, data)
	if err != nil {
		return ""
	}

	switch v := res.(type) {
	case string:
		return v
	case float64:
		return strings.TrimSuffix(fmt.Sprintf("%f", v), ".000000")
	default:
		return ""
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
