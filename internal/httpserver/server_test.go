package httpserver

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/blackmichael/postboard/internal/auth"
	"github.com/blackmichael/postboard/internal/config"
	"github.com/blackmichael/postboard/internal/domain"
	"github.com/blackmichael/postboard/internal/realtime"
	"github.com/blackmichael/postboard/internal/store"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01")

type testEnv struct {
	srv *httptest.Server
	hub *realtime.Hub
}

func newTestEnv(t *testing.T, rateLimit int) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	repo, err := store.NewRepository(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	tokens, err := auth.NewIssuer("test-secret", time.Hour)
	require.NoError(t, err)

	hub := realtime.NewHub(logger)
	cfg := &config.Config{Port: 0, AuthRateLimit: rateLimit, MaxImageBytes: 64}

	s := NewServer(
		cfg,
		domain.NewPostService(repo, hub, logger),
		domain.NewAccountService(repo, auth.NewHasher(bcrypt.MinCost), logger),
		tokens,
		hub,
		logger,
	)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return &testEnv{srv: srv, hub: hub}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body io.Reader, contentType string) (int, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, e.srv.URL+path, body)
	require.NoError(t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func (e *testEnv) postJSON(t *testing.T, path, token string, v any) (int, []byte) {
	t.Helper()
	payload, err := json.Marshal(v)
	require.NoError(t, err)
	return e.do(t, http.MethodPost, path, token, bytes.NewReader(payload), "application/json")
}

func (e *testEnv) signupAndLogin(t *testing.T, first, email string) tokenResponse {
	t.Helper()
	status, _ := e.postJSON(t, "/api/user/signup", "", signupRequest{FirstName: first, LastName: "Doe", Email: email, Password: "pw"})
	require.Equal(t, http.StatusCreated, status)

	status, body := e.postJSON(t, "/api/user/login", "", loginRequest{Email: email, Password: "pw"})
	require.Equal(t, http.StatusOK, status, string(body))
	var tok tokenResponse
	require.NoError(t, json.Unmarshal(body, &tok))
	return tok
}

func postForm(t *testing.T, fields map[string]string, image []byte, imageType string) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if image != nil {
		h := make(map[string][]string)
		h["Content-Disposition"] = []string{`form-data; name="image"; filename="pic"`}
		if imageType != "" {
			h["Content-Type"] = []string{imageType}
		}
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(image)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestServer_Health(t *testing.T) {
	env := newTestEnv(t, 100)
	status, body := env.do(t, http.MethodGet, "/health", "", nil, "")
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))

	status, body = env.do(t, http.MethodGet, "/nope", "", nil, "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Contains(t, string(body), `"error":"NotFound"`)
}

func TestServer_SignupAndLogin(t *testing.T) {
	env := newTestEnv(t, 100)

	tok := env.signupAndLogin(t, "Jane", "jane@example.com")
	assert.NotEmpty(t, tok.Token)
	assert.Equal(t, int64(3600), tok.ExpiresIn)
	assert.Equal(t, "Jane", tok.User.FirstName)
	assert.NotEmpty(t, tok.User.ID)

	status, _ := env.postJSON(t, "/api/user/signup", "", signupRequest{FirstName: "J", LastName: "D", Email: "JANE@example.com", Password: "x"})
	assert.Equal(t, http.StatusConflict, status)

	status, _ = env.postJSON(t, "/api/user/signup", "", signupRequest{FirstName: "J", Email: "j@example.com", Password: "x"})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = env.postJSON(t, "/api/user/login", "", loginRequest{Email: "jane@example.com", Password: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, status)

	status, body := env.do(t, http.MethodPost, "/api/user/refresh", tok.Token, nil, "")
	require.Equal(t, http.StatusOK, status)
	var refreshed tokenResponse
	require.NoError(t, json.Unmarshal(body, &refreshed))
	assert.Equal(t, tok.User, refreshed.User)

	status, _ = env.do(t, http.MethodPost, "/api/user/refresh", "bogus", nil, "")
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestServer_PostLifecycle(t *testing.T) {
	env := newTestEnv(t, 100)
	owner := env.signupAndLogin(t, "Jane", "jane@example.com")
	other := env.signupAndLogin(t, "John", "john@example.com")

	body, ct := postForm(t, map[string]string{"content": "hello"}, nil, "")
	status, _ := env.do(t, http.MethodPost, "/api/posts", "", body, ct)
	assert.Equal(t, http.StatusUnauthorized, status)

	body, ct = postForm(t, map[string]string{"content": "look at example.com"}, pngBytes, "")
	status, data := env.do(t, http.MethodPost, "/api/posts", owner.Token, body, ct)
	require.Equal(t, http.StatusCreated, status, string(data))
	var created postMessageResponse
	require.NoError(t, json.Unmarshal(data, &created))
	require.NotNil(t, created.Post.Image)
	assert.Equal(t, "image/png", created.Post.Image.MimeType, "type is sniffed when the part has none")
	assert.Equal(t, pngBytes, created.Post.Image.Binary)
	id := created.Post.ID

	for i := 0; i < 4; i++ {
		body, ct = postForm(t, map[string]string{"content": fmt.Sprintf("post %d", i)}, nil, "")
		status, _ = env.do(t, http.MethodPost, "/api/posts", other.Token, body, ct)
		require.Equal(t, http.StatusCreated, status)
	}

	status, data = env.do(t, http.MethodGet, "/api/posts?pagesize=2&page=3", "", nil, "")
	require.Equal(t, http.StatusOK, status)
	var list listResponse
	require.NoError(t, json.Unmarshal(data, &list))
	assert.Equal(t, 5, list.Total)
	assert.Len(t, list.Posts, 1)
	assert.Equal(t, "Posts fetched successfully", list.Message)

	status, _ = env.do(t, http.MethodGet, "/api/posts?pagesize=abc", "", nil, "")
	assert.Equal(t, http.StatusBadRequest, status)
	status, _ = env.do(t, http.MethodGet, "/api/posts?page=0", "", nil, "")
	assert.Equal(t, http.StatusBadRequest, status)
	status, _ = env.do(t, http.MethodGet, "/api/posts?pagesize=100&page=9223372036854775807", "", nil, "")
	assert.Equal(t, http.StatusBadRequest, status)

	body, ct = postForm(t, map[string]string{"content": "edited", "deleteImage": "true"}, nil, "")
	status, _ = env.do(t, http.MethodPut, "/api/posts/"+id, other.Token, body, ct)
	assert.Equal(t, http.StatusForbidden, status)

	body, ct = postForm(t, map[string]string{"content": "edited", "deleteImage": "true"}, nil, "")
	status, data = env.do(t, http.MethodPut, "/api/posts/"+id, owner.Token, body, ct)
	require.Equal(t, http.StatusOK, status, string(data))

	status, data = env.do(t, http.MethodGet, "/api/posts/"+id, "", nil, "")
	require.Equal(t, http.StatusOK, status)
	var got postResponse
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "edited", got.Content)
	assert.True(t, got.Edited)
	assert.Nil(t, got.Image)

	status, _ = env.do(t, http.MethodDelete, "/api/posts/"+id, other.Token, nil, "")
	assert.Equal(t, http.StatusForbidden, status)

	status, data = env.do(t, http.MethodDelete, "/api/posts/"+id, owner.Token, nil, "")
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"message":"Post deleted successfully"}`, string(data))

	status, _ = env.do(t, http.MethodGet, "/api/posts/"+id, "", nil, "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestServer_RejectsBadImages(t *testing.T) {
	env := newTestEnv(t, 100)
	tok := env.signupAndLogin(t, "Jane", "jane@example.com")

	body, ct := postForm(t, map[string]string{"content": "x"}, bytes.Repeat([]byte{'a'}, 65), "image/png")
	status, _ := env.do(t, http.MethodPost, "/api/posts", tok.Token, body, ct)
	assert.Equal(t, http.StatusRequestEntityTooLarge, status)

	body, ct = postForm(t, map[string]string{"content": "x"}, []byte("plain text"), "text/plain")
	status, _ = env.do(t, http.MethodPost, "/api/posts", tok.Token, body, ct)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = env.do(t, http.MethodPost, "/api/posts", tok.Token, strings.NewReader(`{"content":"x"}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestServer_RateLimitsAuth(t *testing.T) {
	env := newTestEnv(t, 2)

	for i := 0; i < 2; i++ {
		status, _ := env.postJSON(t, "/api/user/login", "", loginRequest{Email: "a@b.c", Password: "x"})
		assert.Equal(t, http.StatusUnauthorized, status)
	}
	status, _ := env.postJSON(t, "/api/user/login", "", loginRequest{Email: "a@b.c", Password: "x"})
	assert.Equal(t, http.StatusTooManyRequests, status)

	status, _ = env.do(t, http.MethodGet, "/api/posts", "", nil, "")
	assert.Equal(t, http.StatusOK, status, "post endpoints are not limited")
}

func TestServer_EventsNotifyOnChange(t *testing.T) {
	env := newTestEnv(t, 100)
	tok := env.signupAndLogin(t, "Jane", "jane@example.com")

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(env.srv.URL, "http")+"/api/events", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return env.hub.Len() == 1 }, time.Second, 5*time.Millisecond)

	body, ct := postForm(t, map[string]string{"content": "hi"}, nil, "")
	status, data := env.do(t, http.MethodPost, "/api/posts", tok.Token, body, ct)
	require.Equal(t, http.StatusCreated, status)
	var created postMessageResponse
	require.NoError(t, json.Unmarshal(data, &created))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	var ev realtime.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, realtime.KindPostsChanged, ev.Kind)
	assert.Equal(t, created.Post.ID, ev.PostID)
}

func TestClientLimiter(t *testing.T) {
	now := time.Unix(0, 0)
	l := newClientLimiter(2, time.Minute)
	l.now = func() time.Time { return now }

	assert.True(t, l.allow("a"))
	assert.True(t, l.allow("a"))
	assert.False(t, l.allow("a"))
	assert.True(t, l.allow("b"), "limits are per client")

	now = now.Add(30 * time.Second)
	assert.True(t, l.allow("a"), "one token refills every 30s")

	now = now.Add(time.Hour)
	l.allow("c")
	assert.NotContains(t, l.clients, "b", "idle clients are pruned")
}
