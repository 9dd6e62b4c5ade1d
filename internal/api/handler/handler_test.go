package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/advicehub/counsel/internal/api/handler"
	"github.com/advicehub/counsel/internal/chat"
	"github.com/advicehub/counsel/internal/policy"
	"github.com/advicehub/counsel/internal/security"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPinger struct {
	err error
}

func (p stubPinger) Ping(ctx context.Context) error { return p.err }

func TestHealthCheck(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	rec := httptest.NewRecorder()

	handler.HealthCheck(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var response map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
	assert.Equal(t, true, response["success"])

	data, ok := response["data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "ok", data["status"])
}

func TestReadyCheck(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/ready", nil)
	rec := httptest.NewRecorder()

	handler.ReadyCheck(stubPinger{})(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyCheckDatabaseDown(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/ready", nil)
	rec := httptest.NewRecorder()

	handler.ReadyCheck(stubPinger{err: errors.New("connection refused")})(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestTokenIssuesAdminJWT(t *testing.T) {
	manager := security.NewJWTManager("test-secret-key-32-characters!!!", 15*time.Minute)
	h := handler.NewAuthHandler(manager, "super-secret-admin-key")

	rec := httptest.NewRecorder()
	h.Token(rec, makeJSONRequest(http.MethodPost, "/api/v1/auth/token", map[string]string{
		"admin_key": "super-secret-admin-key",
		"email":     "ops@example.org",
	}))

	require.Equal(t, http.StatusOK, rec.Code)

	var response map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
	data, ok := response["data"].(map[string]any)
	require.True(t, ok)

	token, ok := data["access_token"].(string)
	require.True(t, ok)

	claims, err := manager.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, "ops@example.org", claims.Email)
	assert.Equal(t, "admin", claims.Role)
}

func TestTokenRejectsWrongKey(t *testing.T) {
	manager := security.NewJWTManager("test-secret-key-32-characters!!!", 15*time.Minute)
	h := handler.NewAuthHandler(manager, "super-secret-admin-key")

	rec := httptest.NewRecorder()
	h.Token(rec, makeJSONRequest(http.MethodPost, "/api/v1/auth/token", map[string]string{
		"admin_key": "wrong",
		"email":     "ops@example.org",
	}))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestTokenRejectsWhenKeyUnconfigured(t *testing.T) {
	manager := security.NewJWTManager("test-secret-key-32-characters!!!", 15*time.Minute)
	h := handler.NewAuthHandler(manager, "")

	rec := httptest.NewRecorder()
	h.Token(rec, makeJSONRequest(http.MethodPost, "/api/v1/auth/token", map[string]string{
		"admin_key": "",
		"email":     "ops@example.org",
	}))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhookRejectsInvalidPayload(t *testing.T) {
	h := handler.NewWebhookHandler(nil, nil, nil, policy.NoopDetector{}, nil, nil, time.Minute)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhook", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	h.Handle(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhookGreetsOnAddedToSpace(t *testing.T) {
	h := handler.NewWebhookHandler(nil, nil, nil, policy.NoopDetector{}, nil, nil, time.Minute)

	rec := httptest.NewRecorder()
	h.Handle(rec, makeJSONRequest(http.MethodPost, "/api/v1/webhook", map[string]any{
		"type": "ADDED_TO_SPACE",
	}))

	require.Equal(t, http.StatusOK, rec.Code)

	var reply map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&reply))
	assert.Contains(t, reply["text"], "Thank you for adding me")
}

func TestWebhookIgnoresUnknownEventType(t *testing.T) {
	h := handler.NewWebhookHandler(nil, nil, nil, policy.NoopDetector{}, nil, nil, time.Minute)

	rec := httptest.NewRecorder()
	h.Handle(rec, makeJSONRequest(http.MethodPost, "/api/v1/webhook", map[string]any{
		"type": "SOMETHING_ELSE",
	}))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWebhookMessageWithoutSender(t *testing.T) {
	h := handler.NewWebhookHandler(nil, nil, nil, policy.NoopDetector{}, nil, nil, time.Minute)

	rec := httptest.NewRecorder()
	h.Handle(rec, makeJSONRequest(http.MethodPost, "/api/v1/webhook", map[string]any{
		"type":    "MESSAGE",
		"message": map[string]any{"text": "hello"},
	}))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhookOpensRejectionDialog(t *testing.T) {
	h := handler.NewWebhookHandler(nil, nil, nil, policy.NoopDetector{}, nil, nil, time.Minute)

	rec := httptest.NewRecorder()
	h.Handle(rec, makeJSONRequest(http.MethodPost, "/api/v1/webhook", map[string]any{
		"type": "CARD_CLICKED",
		"common": map[string]any{
			"invokedFunction": chat.FuncRejectDialog,
			"parameters": map[string]string{
				chat.ParamThreadID: "thread-1",
			},
		},
	}))

	require.Equal(t, http.StatusOK, rec.Code)

	var reply map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&reply))

	action, ok := reply["action_response"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "DIALOG", action["type"])
}

func TestWebhookOpensEditQueryDialog(t *testing.T) {
	h := handler.NewWebhookHandler(nil, nil, nil, policy.NoopDetector{}, nil, nil, time.Minute)

	heldEvent, err := json.Marshal(map[string]any{
		"type":    "MESSAGE",
		"message": map[string]any{"text": "My client John Smith needs debt advice"},
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	h.Handle(rec, makeJSONRequest(http.MethodPost, "/api/v1/webhook", map[string]any{
		"type": "CARD_CLICKED",
		"common": map[string]any{
			"invokedFunction": chat.FuncEditQueryDialog,
			"parameters": map[string]string{
				chat.ParamMessageEvent: string(heldEvent),
			},
		},
	}))

	require.Equal(t, http.StatusOK, rec.Code)

	var reply map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&reply))

	action, ok := reply["action_response"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "DIALOG", action["type"])
	assert.Equal(t, "My client John Smith needs debt advice", dialogInputValue(t, action))
}

func TestWebhookEmptyEditedQueryReopensDialog(t *testing.T) {
	h := handler.NewWebhookHandler(nil, nil, nil, policy.NoopDetector{}, nil, nil, time.Minute)

	heldEvent, err := json.Marshal(map[string]any{
		"type":    "MESSAGE",
		"message": map[string]any{"text": "original question"},
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	h.Handle(rec, makeJSONRequest(http.MethodPost, "/api/v1/webhook", map[string]any{
		"type": "CARD_CLICKED",
		"common": map[string]any{
			"invokedFunction": chat.FuncSubmitEditedQuery,
			"parameters": map[string]string{
				chat.ParamMessageEvent: string(heldEvent),
			},
			"formInputs": map[string]any{
				chat.ParamEditedQuery: map[string]any{
					"stringInputs": map[string]any{"value": []string{"   "}},
				},
			},
		},
	}))

	require.Equal(t, http.StatusOK, rec.Code)

	var reply map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&reply))

	action, ok := reply["action_response"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "DIALOG", action["type"])
	assert.Equal(t, "original question", dialogInputValue(t, action))
}

// dialogInputValue digs the prefilled text input out of a decoded dialog
// reply.
func dialogInputValue(t *testing.T, action map[string]any) string {
	t.Helper()
	dialog, ok := action["dialog_action"].(map[string]any)
	require.True(t, ok)
	body := dialog["dialog"].(map[string]any)["body"].(map[string]any)
	sections, ok := body["sections"].([]any)
	require.True(t, ok)
	widgets := sections[0].(map[string]any)["widgets"].([]any)
	input, ok := widgets[0].(map[string]any)["textInput"].(map[string]any)
	require.True(t, ok)
	value, _ := input["value"].(string)
	return value
}

// Helper to make JSON request
func makeJSONRequest(method, path string, body any) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}
