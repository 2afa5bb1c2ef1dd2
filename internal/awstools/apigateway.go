package awstools

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/apigateway"
	"github.com/aws/aws-sdk-go-v2/service/apigatewayv2"
)

type APISummary struct {
	Type string `json:"type"`
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ListAPIs returns REST APIs followed by HTTP/WebSocket APIs.
func ListAPIs(ctx context.Context, rest RestAPIClient, v2 HTTPAPIClient) ([]APISummary, error) {
	out := make([]APISummary, 0)

	rp := apigateway.NewGetRestApisPaginator(rest, &apigateway.GetRestApisInput{})
	for rp.HasMorePages() {
		page, err := rp.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("apigateway GetRestApis: %w", err)
		}
		for _, api := range page.Items {
			out = append(out, APISummary{Type: "REST", ID: aws.ToString(api.Id), Name: aws.ToString(api.Name)})
		}
	}

	var next *string
	for {
		page, err := v2.GetApis(ctx, &apigatewayv2.GetApisInput{NextToken: next})
		if err != nil {
			return nil, fmt.Errorf("apigatewayv2 GetApis: %w", err)
		}
		for _, api := range page.Items {
			typ := strings.ToUpper(string(api.ProtocolType))
			if typ == "" {
				typ = "HTTP"
			}
			out = append(out, APISummary{Type: typ, ID: aws.ToString(api.ApiId), Name: aws.ToString(api.Name)})
		}
		if aws.ToString(page.NextToken) == "" {
			break
		}
		next = page.NextToken
	}
	return out, nil
}

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// APIExecutor performs arbitrary HTTP calls against API endpoints, optionally
// SigV4-signed for IAM-authorized APIs.
type APIExecutor struct {
	HTTP        HTTPDoer
	Credentials aws.CredentialsProvider
	Region      string
	Signer      *v4.Signer
	Now         func() time.Time
}

func NewAPIExecutor(cfg aws.Config) *APIExecutor {
	return &APIExecutor{
		HTTP:        &http.Client{Timeout: 30 * time.Second},
		Credentials: cfg.Credentials,
		Region:      cfg.Region,
		Signer:      v4.NewSigner(),
		Now:         time.Now,
	}
}

type APIRequest struct {
	URL     string
	Method  string
	Headers map[string]string
	Params  map[string]string
	Body    any
	IAMAuth bool
}

type APIResponse struct {
	StatusCode int `json:"status_code"`
	Body       any `json:"body"`
}

func (e *APIExecutor) Execute(ctx context.Context, r APIRequest) (*APIResponse, error) {
	method := strings.ToUpper(strings.TrimSpace(r.Method))
	if method == "" {
		method = http.MethodGet
	}
	u, err := url.Parse(strings.TrimSpace(r.URL))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid api url %q", r.URL)
	}
	if len(r.Params) > 0 {
		q := u.Query()
		for k, v := range r.Params {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
	}

	var payload []byte
	if r.Body != nil {
		payload, err = json.Marshal(r.Body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range r.Headers {
		req.Header.Set(k, v)
	}

	if r.IAMAuth {
		if err := e.sign(ctx, req, payload); err != nil {
			return nil, err
		}
	}

	res, err := e.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, u.Redacted(), err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return &APIResponse{StatusCode: res.StatusCode, Body: decodeBody(raw)}, nil
}

func (e *APIExecutor) sign(ctx context.Context, req *http.Request, payload []byte) error {
	if e.Credentials == nil {
		return fmt.Errorf("iam_auth requested but no AWS credentials are configured")
	}
	creds, err := e.Credentials.Retrieve(ctx)
	if err != nil {
		return fmt.Errorf("retrieve credentials: %w", err)
	}
	sum := sha256.Sum256(payload)
	now := time.Now
	if e.Now != nil {
		now = e.Now
	}
	signer := e.Signer
	if signer == nil {
		signer = v4.NewSigner()
	}
	if err := signer.SignHTTP(ctx, creds, req, hex.EncodeToString(sum[:]), "execute-api", e.Region, now()); err != nil {
		return fmt.Errorf("sign request: %w", err)
	}
	return nil
}
