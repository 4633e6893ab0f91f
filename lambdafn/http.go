package lambdafn

import (
	"context"
	"encoding/base64"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	log "github.com/sirupsen/logrus"

	"github.com/baldanca/order-reservation/httpapi"
	"github.com/baldanca/order-reservation/logging"
	"github.com/baldanca/order-reservation/metrics"
	"github.com/baldanca/order-reservation/reservation"
)

var textHeaders = map[string]string{"Content-Type": "text/plain; charset=utf-8"}

// HTTPHandler serves the order reservation route behind API Gateway.
type HTTPHandler struct {
	ingester httpapi.Ingester
	log      *log.Entry
}

func NewHTTPHandler(ing httpapi.Ingester, logger *log.Entry) *HTTPHandler {
	if ing == nil {
		panic("ingester is required")
	}
	return &HTTPHandler{ingester: ing, log: logging.OrDefault(logger).WithField("adapter", metrics.AdapterLambdaHTTP)}
}

// Handle answers with the same statuses and bodies as the HTTP server. A
// storage failure is reported as a 500 response, not as an invocation error.
func (h *HTTPHandler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	body := []byte(req.Body)
	if req.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(req.Body)
		if err != nil {
			return response(http.StatusBadRequest, httpapi.MsgInvalidRequest), nil
		}
		body = decoded
	}

	r, err := reservation.Decode(body)
	if err != nil {
		metrics.RecordIngest(metrics.AdapterLambdaHTTP, metrics.OutcomeInvalid)
		h.log.WithError(err).Info("Rejected order reservation request")
		return response(http.StatusBadRequest, httpapi.MsgInvalidRequest), nil
	}

	status, msg := httpapi.Respond(h.ingester.Ingest(ctx, metrics.AdapterLambdaHTTP, r), r)
	return response(status, msg), nil
}

func response(status int, body string) events.APIGatewayProxyResponse {
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    textHeaders,
		Body:       body,
	}
}
