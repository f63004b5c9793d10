// Package handler is the AWS Lambda entrypoint for Telegram webhook calls
// delivered through API Gateway.
package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"inspection-bot/internal/integrations/telegram"
	"inspection-bot/internal/logging"
)

const (
	headerCorrelationID = "X-Correlation-Id"

	codeUnauthorized = "UNAUTHORIZED"
	codeInvalidInput = "INVALID_INPUT"
)

// UpdateHandler runs one Telegram update to completion.
type UpdateHandler interface {
	HandleUpdate(ctx context.Context, u telegram.Update) error
}

type Handler struct {
	updates UpdateHandler
	secret  string
}

type errorResponse struct {
	Error string `json:"error"`
}

type okResponse struct {
	OK bool `json:"ok"`
}

// NewHandler returns a handler checking the webhook secret token. An empty
// secret disables the check.
func NewHandler(updates UpdateHandler, secret string) (*Handler, error) {
	if updates == nil {
		return nil, errors.New("handler: update handler must not be nil")
	}
	return &Handler{updates: updates, secret: secret}, nil
}

// Handle runs the update to completion before returning. Turn failures are
// logged and still acknowledged with 200; Telegram redelivers anything else.
func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	correlationID := header(req.Headers, headerCorrelationID)
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	ctx = logging.WithCorrelationID(ctx, correlationID)
	log := logging.FromContext(ctx)

	if !telegram.VerifySecret(header(req.Headers, telegram.SecretHeader), h.secret) {
		log.Warn("webhook secret mismatch")
		return respond(http.StatusUnauthorized, correlationID, errorResponse{Error: codeUnauthorized}), nil
	}

	body := []byte(req.Body)
	if req.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(req.Body)
		if err != nil {
			log.Warn("undecodable webhook body", "err", err)
			return respond(http.StatusBadRequest, correlationID, errorResponse{Error: codeInvalidInput}), nil
		}
		body = decoded
	}

	var u telegram.Update
	if err := json.Unmarshal(body, &u); err != nil {
		log.Warn("malformed update", "err", err)
		return respond(http.StatusBadRequest, correlationID, errorResponse{Error: codeInvalidInput}), nil
	}

	if err := h.updates.HandleUpdate(ctx, u); err != nil {
		log.Error("update handling failed", "update_id", u.UpdateID, "err", err)
	}
	return respond(http.StatusOK, correlationID, okResponse{OK: true}), nil
}

func respond(status int, correlationID string, v any) events.APIGatewayProxyResponse {
	b, err := json.Marshal(v)
	if err != nil {
		b = []byte(`{"error":"INTERNAL"}`)
		status = http.StatusInternalServerError
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":      "application/json",
			headerCorrelationID: correlationID,
		},
		Body: string(b),
	}
}

// header looks a name up case-insensitively; API Gateway passes headers as
// the client sent them.
func header(h map[string]string, name string) string {
	if v, ok := h[name]; ok {
		return strings.TrimSpace(v)
	}
	for k, v := range h {
		if strings.EqualFold(k, name) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
