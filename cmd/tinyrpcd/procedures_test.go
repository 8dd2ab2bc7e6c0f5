package main

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-json-experiment/json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marrasen/tinyrpc"
	"github.com/marrasen/tinyrpc/config"
)

func startDaemon(t *testing.T, cfg config.Config) *httptest.Server {
	t.Helper()
	handler, err := newHandler(cfg, zerolog.Nop())
	require.NoError(t, err)
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return ts
}

func call(t *testing.T, url, body string, header http.Header) (int, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(data)
}

func TestDemoProcedures(t *testing.T) {
	ts := startDaemon(t, config.Default())
	url := ts.URL + "/rpc"

	status, body := call(t, url, `{"procedure":"greet","input":{"name":"Ada"}}`, nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Hello, Ada!", body)

	status, body = call(t, url, `{"procedure":"add","input":{"a":40,"b":2}}`, nil)
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"result":42}`, body)

	status, body = call(t, url, `{"procedure":"echo","input":[1,"two"]}`, nil)
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"result":[1,"two"]}`, body)

	status, body = call(t, url, `{"procedure":"upper","input":"  shout "}`, nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "SHOUT", body)

	status, _ = call(t, url, `{"procedure":"upper","input":"   "}`, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = call(t, url, `{"procedure":"greet","input":{"name":""}}`, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestWhoamiRequiresUser(t *testing.T) {
	cfg := config.Default()
	cfg.Context = map[string]any{"environment": "test"}
	ts := startDaemon(t, cfg)
	url := ts.URL + "/rpc"

	status, body := call(t, url, `{"procedure":"whoami"}`, nil)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Contains(t, body, userHeader)

	status, body = call(t, url, `{"procedure":"whoami"}`, http.Header{userHeader: {"ada"}})
	require.Equal(t, http.StatusOK, status)
	var msg struct {
		Result map[string]string `json:"result"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &msg))
	assert.Equal(t, map[string]string{"user": "ada", "environment": "test"}, msg.Result)
}

func TestHandlerRejectsUnknownCodec(t *testing.T) {
	cfg := config.Default()
	cfg.Codec = "xml"
	_, err := newHandler(cfg, zerolog.Nop())
	assert.Error(t, err)
}

func TestRunHelp(t *testing.T) {
	assert.NoError(t, run([]string{"--help"}))
	assert.Error(t, run([]string{"--codec", "xml"}))
}

func TestListProcedures(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, listProcedures(&buf, tinyrpc.MustRouter(procedures())))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, []string{"add", `{"a":"number?","b":"number?"}`}, strings.Fields(lines[0]))
	assert.Equal(t, []string{"echo", "any"}, strings.Fields(lines[1]))
	assert.Equal(t, []string{"greet", `{"name":"string"}`}, strings.Fields(lines[2]))
	assert.Equal(t, []string{"upper", "checked"}, strings.Fields(lines[3]))
	assert.Equal(t, []string{"whoami", "any"}, strings.Fields(lines[4]))
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://app.example/"})

	req := httptest.NewRequest(http.MethodGet, "http://rpc.example/ws", nil)
	assert.True(t, check(req), "no Origin header")

	req.Header.Set("Origin", "http://rpc.example")
	assert.True(t, check(req), "same origin")

	req.Header.Set("Origin", "https://app.example")
	assert.True(t, check(req), "listed origin")

	req.Header.Set("Origin", "https://evil.example")
	assert.False(t, check(req), "unlisted origin")

	assert.True(t, originChecker([]string{"*"})(req), "wildcard")
}

func TestWebSocketAllowedOrigins(t *testing.T) {
	cfg := config.Default()
	cfg.WebSocketPath = "/ws"
	cfg.AllowedOrigins = []string{"https://app.example"}
	ts := startDaemon(t, cfg)
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"

	ws, _, err := websocket.DefaultDialer.Dial(wsURL, http.Header{"Origin": {"https://app.example"}})
	require.NoError(t, err)
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`{"procedure":"add","input":{"a":1,"b":2}}`)))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"result":3}`, string(data))
	ws.Close()

	_, _, err = websocket.DefaultDialer.Dial(wsURL, http.Header{"Origin": {"https://evil.example"}})
	assert.Error(t, err)
}
