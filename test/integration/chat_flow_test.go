package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/Dembrane/echo-sub002/internal/bootstrap"
	"github.com/Dembrane/echo-sub002/internal/config"
	"github.com/Dembrane/echo-sub002/internal/entity"
	"github.com/Dembrane/echo-sub002/internal/repository/implementation"
	"github.com/Dembrane/echo-sub002/internal/server"
	"github.com/Dembrane/echo-sub002/pkg/database"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
)

func makeToken(t *testing.T, userID uuid.UUID) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID.String(),
		"exp":     time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(os.Getenv("JWT_SECRET")))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func doJSON(t *testing.T, app *fiber.App, method, path, token string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()
	var bodyReader io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		bodyReader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, bodyReader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := app.Test(req, 10000)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}

	var parsed map[string]interface{}
	raw, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if len(raw) > 0 {
		json.Unmarshal(raw, &parsed)
	}
	return resp, parsed
}

func dataField(body map[string]interface{}, key string) string {
	data, ok := body["data"].(map[string]interface{})
	if !ok {
		return ""
	}
	v, _ := data[key].(string)
	return v
}

func TestChatSessionFlow(t *testing.T) {
	if err := godotenv.Load("../../.env"); err != nil {
		t.Logf("Warning: Could not load ../../.env: %v", err)
		os.Setenv("JWT_SECRET", "default_secret")
	}
	cfg := config.Load()
	if cfg.Database.Connection == "" {
		t.Skip("DB_CONNECTION_STRING not set; skipping integration test")
	}

	db, err := database.NewGormDBFromDSN(cfg.Database.Connection)
	if err != nil {
		t.Fatalf("Failed to connect to DB: %v", err)
	}

	container := bootstrap.NewContainer(db, cfg)
	srv := server.New(cfg, container)
	app := srv.GetApp()

	userID := uuid.New()
	token := makeToken(t, userID)

	// 1. Create a session
	resp, body := doJSON(t, app, "POST", "/api/chat/v1/session", token, map[string]interface{}{
		"auto_select": false,
	})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	sessionID := dataField(body, "id")
	assert.NotEmpty(t, sessionID)

	base := fmt.Sprintf("/api/chat/v1/session/%s", sessionID)

	// 2. History starts with the greeting
	resp, body = doJSON(t, app, "GET", base+"/history", token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	history, _ := body["data"].([]interface{})
	assert.Len(t, history, 1)

	// 3. A turn before a mode is chosen is rejected
	resp, _ = doJSON(t, app, "POST", base+"/turn", token, map[string]interface{}{
		"chat": "premature question",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// 4. Set mode; a second different mode is rejected, repeating is fine
	resp, _ = doJSON(t, app, "POST", base+"/mode", token, map[string]interface{}{"mode": "deep_dive"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = doJSON(t, app, "POST", base+"/mode", token, map[string]interface{}{"mode": "overview"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp, _ = doJSON(t, app, "POST", base+"/mode", token, map[string]interface{}{"mode": "deep_dive"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// 5. Attach a conversation; adding it twice returns the same item
	convRepo := implementation.NewConversationRepository(db)
	conversation := &entity.Conversation{
		Id:        uuid.New(),
		UserId:    userID,
		Title:     "Kickoff interview",
		Summary:   "Residents discussed the new parking policy.",
		CreatedAt: time.Now(),
	}
	assert.NoError(t, convRepo.Create(context.Background(), conversation))

	resp, body = doJSON(t, app, "POST", base+"/context", token, map[string]interface{}{
		"conversation_id": conversation.Id.String(),
	})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	itemID := dataField(body, "id")
	assert.NotEmpty(t, itemID)

	resp, body = doJSON(t, app, "POST", base+"/context", token, map[string]interface{}{
		"conversation_id": conversation.Id.String(),
	})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, itemID, dataField(body, "id"), "duplicate add should be a no-op returning the existing item")

	// 6. Someone else's conversation cannot be attached
	otherConv := &entity.Conversation{
		Id:        uuid.New(),
		UserId:    uuid.New(),
		Title:     "Not yours",
		Summary:   "Belongs to another user.",
		CreatedAt: time.Now(),
	}
	assert.NoError(t, convRepo.Create(context.Background(), otherConv))
	resp, _ = doJSON(t, app, "POST", base+"/context", token, map[string]interface{}{
		"conversation_id": otherConv.Id.String(),
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// 7. Explicit lock-all, then a locked item cannot be removed
	resp, _ = doJSON(t, app, "POST", base+"/context/lock", token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = doJSON(t, app, "DELETE", base+"/context/"+itemID, token, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// 8. Stop with no active stream
	resp, _ = doJSON(t, app, "POST", base+"/stop", token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// 9. Session state is idle
	resp, body = doJSON(t, app, "GET", base+"/state", token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "idle", dataField(body, "status"))

	// 10. Another user cannot see this session
	intruder := makeToken(t, uuid.New())
	resp, _ = doJSON(t, app, "GET", base+"/history", intruder, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// 11. Teardown
	resp, _ = doJSON(t, app, "DELETE", base, token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = doJSON(t, app, "GET", base+"/history", token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
