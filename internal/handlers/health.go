package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/aws/aws-lambda-go/events"
)

type HealthResponse struct {
	OK      bool   `json:"ok"`
	Service string `json:"service"`
	Time    string `json:"time"`
}

// Health is the API Gateway v2 health check.
func Health(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	return jsonOK(HealthResponse{
		OK:      true,
		Service: "opsagent",
		Time:    time.Now().UTC().Format(time.RFC3339),
	}), nil
}

func jsonOK(v any) events.APIGatewayV2HTTPResponse {
	b, _ := json.Marshal(v)
	return events.APIGatewayV2HTTPResponse{
		StatusCode: http.StatusOK,
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
		Body: string(b),
	}
}

func errorBody(msg string, err error) string {
	resp := map[string]any{"error": msg}
	if err != nil {
		resp["detail"] = err.Error()
	}
	b, _ := json.Marshal(resp)
	return string(b)
}
