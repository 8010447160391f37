package salesforce

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/Sakib25800/framer-salesforce-api/tracing"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/oauth2"
)

// Connection identifies an org and carries a short-lived access token.
type Connection struct {
	InstanceURL string
	AccessToken string
}

// ObjectResponse is a raw sObject API response. Non-2xx statuses are not
// errors at this level; callers interpret the body.
type ObjectResponse struct {
	StatusCode int
	Body       json.RawMessage
}

// OK reports a 2xx status.
func (r *ObjectResponse) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// ObjectClient calls the sObject REST API.
type ObjectClient struct {
	httpClient *http.Client
	apiVersion string
}

// NewObjectClient creates an object API client. A nil httpClient uses
// http.DefaultClient and an empty apiVersion uses DefaultAPIVersion.
func NewObjectClient(httpClient *http.Client, apiVersion string) *ObjectClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if apiVersion == "" {
		apiVersion = DefaultAPIVersion
	}

	return &ObjectClient{
		httpClient: httpClient,
		apiVersion: apiVersion,
	}
}

// Create inserts a record.
func (c *ObjectClient) Create(ctx context.Context, conn Connection, objectName string, fields map[string]any) (*ObjectResponse, error) {
	return c.request(ctx, conn, http.MethodPost, "/sobjects/"+url.PathEscape(objectName)+"/", fields)
}

// Update patches an existing record by id. Success is 204 with no body.
func (c *ObjectClient) Update(ctx context.Context, conn Connection, objectName, id string, fields map[string]any) (*ObjectResponse, error) {
	path := "/sobjects/" + url.PathEscape(objectName) + "/" + url.PathEscape(id)

	return c.request(ctx, conn, http.MethodPatch, path, fields)
}

// Describe fetches object metadata. A 404 means the object does not exist
// in the org.
func (c *ObjectClient) Describe(ctx context.Context, conn Connection, objectName string) (*ObjectResponse, error) {
	return c.request(ctx, conn, http.MethodGet, "/sobjects/"+url.PathEscape(objectName)+"/describe", nil)
}

func (c *ObjectClient) request(ctx context.Context, conn Connection, method, path string, payload any) (*ObjectResponse, error) {
	ctx, span := tracing.Tracer.Start(ctx, "salesforce.sobject")
	defer span.End()
	span.SetAttributes(
		attribute.String("http.method", method),
		attribute.String("salesforce.path", path),
	)

	endpoint := strings.TrimRight(conn.InstanceURL, "/") + "/services/data/" + c.apiVersion + path

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.bearerClient(ctx, conn.AccessToken).Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s failed: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	return &ObjectResponse{StatusCode: resp.StatusCode, Body: raw}, nil
}

// bearerClient wraps the base client's transport with a static token source.
func (c *ObjectClient) bearerClient(ctx context.Context, accessToken string) *http.Client {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)

	return oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	}))
}
