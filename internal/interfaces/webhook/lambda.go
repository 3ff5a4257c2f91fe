package webhook

import (
	"context"
	"encoding/base64"
	"net/http"

	"github.com/aws/aws-lambda-go/events"

	"emailfilter/internal/application/triage"
)

// Handler answers one webhook delivery.
type Handler interface {
	Handle(ctx context.Context, req triage.Request) triage.Response
}

// LambdaHandler adapts a Handler to API Gateway proxy events.
func LambdaHandler(h Handler) func(context.Context, events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	return func(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		body := []byte(event.Body)
		if event.IsBase64Encoded {
			decoded, err := base64.StdEncoding.DecodeString(event.Body)
			if err != nil {
				return events.APIGatewayProxyResponse{
					StatusCode: http.StatusBadRequest,
					Headers:    map[string]string{"Content-Type": "application/json"},
					Body:       `{"error":"invalid base64 body"}`,
				}, nil
			}
			body = decoded
		}

		resp := h.Handle(ctx, triage.Request{
			Query: event.QueryStringParameters,
			Body:  body,
		})

		return events.APIGatewayProxyResponse{
			StatusCode: resp.StatusCode,
			Headers:    map[string]string{"Content-Type": resp.ContentType},
			Body:       string(resp.Body),
		}, nil
	}
}
