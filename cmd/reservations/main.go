// Command reservations is the Lambda entrypoint for the reservation API:
// it routes API Gateway requests to the operation handlers and translates
// the error taxonomy into HTTP responses.
package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/sethvargo/go-envconfig"

	"github.com/jacentio/giftlist/handler"
	"github.com/jacentio/giftlist/registry"
	"github.com/jacentio/giftlist/store"
)

type appConfig struct {
	Table    string     `env:"TABLE_NAME,default=giftlist"`
	LogLevel slog.Level `env:"LOG_LEVEL,default=info"`
}

func main() {
	ctx := context.Background()

	var cfg appConfig
	if err := envconfig.Process(ctx, &cfg); err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		logger.Error("load aws config", "error", err)
		os.Exit(1)
	}

	st := store.New(dynamodb.NewFromConfig(awsCfg), store.Config{Table: cfg.Table})
	h := handler.New(registry.NewManager(st), gatewayResolver{}, logNotifier{logger: logger}, logger)

	api := &api{handler: h, logger: logger}
	lambda.Start(api.route)
}

type api struct {
	handler *handler.Handler
	logger  *slog.Logger
}

type requestBody struct {
	Quantity int    `json:"quantity"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Force    bool   `json:"force"`
}

func (a *api) route(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	var body requestBody
	if req.Body != "" {
		if err := json.Unmarshal([]byte(req.Body), &body); err != nil {
			return respond(http.StatusBadRequest, map[string]string{"error": "invalid request body"}), nil
		}
	}

	token := bearerToken(req.Headers)
	listID := req.PathParameters["listId"]
	productID := req.PathParameters["productId"]
	reservationID := req.PathParameters["reservationId"]

	switch req.RouteKey {
	case "POST /lists/{listId}/products/{productId}/reservation":
		result, err := a.handler.Reserve(ctx, handler.ReserveRequest{
			Token:     token,
			ListID:    listID,
			ProductID: productID,
			Quantity:  body.Quantity,
			Name:      body.Name,
			Email:     body.Email,
		})
		if err != nil {
			return a.fail(err), nil
		}
		return respond(http.StatusCreated, result), nil

	case "PATCH /lists/{listId}/products/{productId}/reservation":
		err := a.handler.UpdateReservation(ctx, handler.UpdateRequest{
			Token:     token,
			ListID:    listID,
			ProductID: productID,
			Quantity:  body.Quantity,
			Email:     body.Email,
		})
		if err != nil {
			return a.fail(err), nil
		}
		return respond(http.StatusNoContent, nil), nil

	case "DELETE /lists/{listId}/products/{productId}/reservation":
		err := a.handler.Unreserve(ctx, handler.UnreserveRequest{
			Token:     token,
			ListID:    listID,
			ProductID: productID,
			Email:     body.Email,
		})
		if err != nil {
			return a.fail(err), nil
		}
		return respond(http.StatusNoContent, nil), nil

	case "POST /reservations/{reservationId}/purchase":
		result, err := a.handler.Purchase(ctx, handler.PurchaseRequest{
			ReservationID: reservationID,
		})
		if err != nil {
			return a.fail(err), nil
		}
		return respond(http.StatusOK, result), nil

	case "DELETE /reservations/{reservationId}":
		err := a.handler.DeleteReservation(ctx, handler.DeleteReservationRequest{
			Token:         token,
			ReservationID: reservationID,
			Force:         body.Force,
		})
		if err != nil {
			return a.fail(err), nil
		}
		return respond(http.StatusNoContent, nil), nil
	}

	return respond(http.StatusNotFound, map[string]string{"error": "unknown route"}), nil
}

func (a *api) fail(err error) events.APIGatewayV2HTTPResponse {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		a.logger.Error("operation failed", "error", err)
		return respond(status, map[string]string{"error": "internal error"})
	}
	return respond(status, map[string]string{"error": err.Error()})
}

// statusFor maps the error taxonomy to HTTP statuses. Conflict statuses
// (409, 503) mark the retryable classes; everything else requires the
// caller to re-derive intent.
func statusFor(err error) int {
	var quantityErr *registry.QuantityError
	var stateErr *registry.StateError
	switch {
	case errors.Is(err, registry.ErrListNotFound),
		errors.Is(err, registry.ErrProductNotFound),
		errors.Is(err, registry.ErrReservationNotFound):
		return http.StatusNotFound
	case errors.Is(err, handler.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, registry.ErrNotOwner):
		return http.StatusForbidden
	case errors.Is(err, registry.ErrNoChange),
		errors.Is(err, registry.ErrInvalidQuantity),
		errors.Is(err, registry.ErrEmailRequired):
		return http.StatusBadRequest
	case errors.As(err, &quantityErr),
		errors.As(err, &stateErr),
		errors.Is(err, registry.ErrAlreadyReserved),
		errors.Is(err, registry.ErrAccountExists),
		errors.Is(err, registry.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, store.ErrUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func respond(status int, body any) events.APIGatewayV2HTTPResponse {
	resp := events.APIGatewayV2HTTPResponse{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "application/json"},
	}
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			resp.StatusCode = http.StatusInternalServerError
			resp.Body = `{"error":"internal error"}`
			return resp
		}
		resp.Body = string(b)
	}
	return resp
}

func bearerToken(headers map[string]string) string {
	auth := headers["authorization"]
	if auth == "" {
		auth = headers["Authorization"]
	}
	token, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok {
		return ""
	}
	return token
}

// gatewayResolver extracts the caller identity from the JWT the API
// Gateway authorizer already verified. The payload is decoded without
// re-validating the signature; requests only reach this Lambda after the
// gateway accepted the token.
type gatewayResolver struct{}

type jwtClaims struct {
	Sub   string `json:"sub"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (gatewayResolver) Resolve(_ context.Context, token string) (registry.Requester, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return registry.Requester{}, handler.ErrUnauthenticated
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return registry.Requester{}, handler.ErrUnauthenticated
	}
	var claims jwtClaims
	if err := json.Unmarshal(payload, &claims); err != nil || claims.Sub == "" {
		return registry.Requester{}, handler.ErrUnauthenticated
	}
	return registry.Requester{
		ID:    claims.Sub,
		Name:  claims.Name,
		Email: claims.Email,
	}, nil
}

// logNotifier records outbound notifications instead of delivering them.
// Email delivery is owned by upstream infrastructure; this keeps the
// best-effort contract observable in environments without a mail sender.
type logNotifier struct {
	logger *slog.Logger
}

func (n logNotifier) Send(_ context.Context, msg handler.Notification) error {
	n.logger.Info("notification",
		"template", msg.Template,
		"recipient", msg.Recipient,
		"data", msg.Data,
	)
	return nil
}
