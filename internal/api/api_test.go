package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/swicore/switcher/internal/config"
	"github.com/swicore/switcher/internal/core"
	"github.com/swicore/switcher/pkg/types"
)

type testAPI struct {
	core   *core.Switcher
	api    *Server
	ts     *httptest.Server
	cookie *http.Cookie
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	dataDir := t.TempDir()
	cfg, err := config.Load(filepath.Join(dataDir, "switcher.yml"))
	require.NoError(t, err)

	sw, err := core.New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { sw.Shutdown(context.Background()) })

	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	require.NoError(t, err)
	_, err = sw.Store().CreateUser(context.Background(), "admin", string(hash), 0)
	require.NoError(t, err)

	api := New(sw, nil)
	ts := httptest.NewServer(api.Handler())
	t.Cleanup(ts.Close)

	a := &testAPI{core: sw, api: api, ts: ts}
	a.login(t, "admin", "hunter2")
	return a
}

func (a *testAPI) login(t *testing.T, name, password string) {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"name": name, "password": password})
	resp, err := http.Post(a.ts.URL+"/login", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	for _, c := range resp.Cookies() {
		if c.Name == sessionCookie {
			a.cookie = c
		}
	}
	require.NotNil(t, a.cookie, "login did not set a session cookie")
}

// do issues an authenticated request and decodes the JSON body into out when
// out is non-nil.
func (a *testAPI) do(t *testing.T, method, path string, body io.Reader, out any) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, a.ts.URL+path, body)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.AddCookie(a.cookie)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	} else {
		io.Copy(io.Discard, resp.Body)
	}
	return resp
}

func TestLoginRejectsBadPassword(t *testing.T) {
	a := newTestAPI(t)

	body, _ := json.Marshal(map[string]string{"name": "admin", "password": "wrong"})
	resp, err := http.Post(a.ts.URL+"/login", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	var er errorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&er))
	assert.Equal(t, "INVALID_AUTHENTICATION_CREDENTIALS", er.Code)

	// Unknown user gets the identical code.
	body, _ = json.Marshal(map[string]string{"name": "nobody", "password": "wrong"})
	resp2, err := http.Post(a.ts.URL+"/login", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp2.StatusCode)
}

func TestAuthRequired(t *testing.T) {
	a := newTestAPI(t)

	resp, err := http.Get(a.ts.URL + "/servers")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	var er errorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&er))
	assert.Equal(t, "INVALID_AUTHENTICATION_CREDENTIALS", er.Code)
}

func TestExpiredSessionRejected(t *testing.T) {
	a := newTestAPI(t)

	// Age the session past its expiry directly in the store.
	past := time.Now().Add(-time.Hour)
	require.NoError(t, a.core.Store().UpdateSession(context.Background(), 1, a.cookie.Value, past, past, "127.0.0.1"))

	resp := a.do(t, http.MethodGet, "/login", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestLoginProbe(t *testing.T) {
	a := newTestAPI(t)

	var out struct {
		Result bool        `json:"result"`
		User   *types.User `json:"user"`
	}
	resp := a.do(t, http.MethodGet, "/login", nil, &out)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, out.Result)
	require.NotNil(t, out.User)
	assert.Equal(t, "admin", out.User.Name)
}

func TestHealthIsOpen(t *testing.T) {
	a := newTestAPI(t)
	resp, err := http.Get(a.ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestPathEscapeRejected(t *testing.T) {
	a := newTestAPI(t)

	var er errorResponse
	resp := a.do(t, http.MethodGet, "/files?path=%2F..%2F..%2Fetc", nil, &er)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "NOT_ALLOWED_PATH", er.Code)
}

func TestServerLifecycle(t *testing.T) {
	a := newTestAPI(t)

	body, _ := json.Marshal(createServerRequest{Config: &types.ServerConfig{Type: types.TypePaper}})
	var created serverView
	resp := a.do(t, http.MethodPost, "/server/lobby", bytes.NewReader(body), &created)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "lobby", created.ID)
	assert.Equal(t, types.TypePaper, created.Type)
	assert.Equal(t, types.StateStopped, created.State)

	var list []serverView
	resp = a.do(t, http.MethodGet, "/servers", nil, &list)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, list, 1)

	// Duplicate id is refused with a stable code.
	var er errorResponse
	resp = a.do(t, http.MethodPost, "/server/lobby", bytes.NewReader(body), &er)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "ALREADY_EXISTS_SERVER", er.Code)

	resp = a.do(t, http.MethodDelete, "/server/lobby?files=true", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = a.do(t, http.MethodGet, "/server/lobby", nil, &er)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "SERVER_NOT_FOUND", er.Code)
}

func TestLifecycleResponseCarriesServerID(t *testing.T) {
	a := newTestAPI(t)

	body, _ := json.Marshal(createServerRequest{Config: &types.ServerConfig{
		Type:                types.TypeCustom,
		EnableLaunchCommand: true,
		LaunchCommand:       `/bin/sh -c 'while read line; do if [ "$line" = stop ]; then exit 0; fi; done'`,
	}})
	resp := a.do(t, http.MethodPost, "/server/shell", bytes.NewReader(body), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var started struct {
		Result   bool   `json:"result"`
		ServerID string `json:"server_id"`
	}
	resp = a.do(t, http.MethodPost, "/server/shell/start", nil, &started)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, started.Result)
	assert.Equal(t, "shell", started.ServerID)

	srv, err := a.core.Server("shell")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return srv.State() == types.StateRunning
	}, 3*time.Second, 20*time.Millisecond)

	line, _ := json.Marshal(sendLineRequest{Line: "stop"})
	var sent struct {
		Result   bool   `json:"result"`
		ServerID string `json:"server_id"`
	}
	resp = a.do(t, http.MethodPost, "/server/shell/send_line", bytes.NewReader(line), &sent)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "shell", sent.ServerID)

	require.Eventually(t, func() bool {
		return srv.State() == types.StateStopped
	}, 5*time.Second, 20*time.Millisecond)
}

func TestServerFileMirror(t *testing.T) {
	a := newTestAPI(t)

	body, _ := json.Marshal(createServerRequest{Config: &types.ServerConfig{Type: types.TypeCustom}})
	resp := a.do(t, http.MethodPost, "/server/alpha", bytes.NewReader(body), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = a.do(t, http.MethodPost, "/server/alpha/file?path=%2Fserver.properties",
		strings.NewReader("motd=hello"), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, a.ts.URL+"/server/alpha/file?path=%2Fserver.properties", nil)
	require.NoError(t, err)
	req.AddCookie(a.cookie)
	dl, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer dl.Body.Close()
	require.Equal(t, http.StatusOK, dl.StatusCode)
	content, err := io.ReadAll(dl.Body)
	require.NoError(t, err)
	assert.Equal(t, "motd=hello", string(content))

	// The server-relative surface must not reach outside the server dir.
	var er errorResponse
	resp = a.do(t, http.MethodGet, "/server/alpha/file?path=%2F..%2F..%2Fetc%2Fpasswd", nil, &er)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "NOT_ALLOWED_PATH", er.Code)
}

func TestFileTaskEnvelope(t *testing.T) {
	a := newTestAPI(t)

	body, _ := json.Marshal(createServerRequest{Config: &types.ServerConfig{Type: types.TypeCustom}})
	resp := a.do(t, http.MethodPost, "/server/beta", bytes.NewReader(body), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = a.do(t, http.MethodPost, "/server/beta/file?path=%2Fold.txt", strings.NewReader("x"), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var task taskResponse
	resp = a.do(t, http.MethodPut, "/server/beta/file/move?src=%2Fold.txt&dst=%2Fnew.txt", nil, &task)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, types.ResultSuccess, task.Result)
	assert.NotZero(t, task.TaskID)

	var tasks []types.FileTask
	resp = a.do(t, http.MethodGet, "/file/tasks", nil, &tasks)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, tasks)
}

func TestConfigEndpoints(t *testing.T) {
	a := newTestAPI(t)

	var app appConfigView
	resp := a.do(t, http.MethodGet, "/config/app", nil, &app)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 10000, app.MaxLogLines)

	app.MaxLogLines = 5000
	body, _ := json.Marshal(app)
	resp = a.do(t, http.MethodPut, "/config/app", bytes.NewReader(body), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 5000, a.core.Config().MaxLogLines)

	var defaults types.ServerGlobalConfig
	resp = a.do(t, http.MethodGet, "/config/server_global", nil, &defaults)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 30, defaults.ShutdownTimeout)
}

func TestJardlTypesEndpoint(t *testing.T) {
	a := newTestAPI(t)

	var got []types.ServerType
	resp := a.do(t, http.MethodGet, "/jardl/types", nil, &got)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.ElementsMatch(t, types.AllServerTypes(), got)
}

func TestBackupRoundTrip(t *testing.T) {
	a := newTestAPI(t)

	body, _ := json.Marshal(createServerRequest{Config: &types.ServerConfig{Type: types.TypeCustom}})
	resp := a.do(t, http.MethodPost, "/server/gamma", bytes.NewReader(body), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = a.do(t, http.MethodPost, "/server/gamma/file?path=%2Fworld.dat", strings.NewReader("chunks"), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var created struct {
		Result   types.TaskResult `json:"result"`
		BackupID string           `json:"backupID"`
	}
	payload, _ := json.Marshal(createBackupRequest{Snapshot: false, Comments: "pre-update"})
	resp = a.do(t, http.MethodPost, "/server/gamma/backup", bytes.NewReader(payload), &created)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, created.BackupID)

	require.Eventually(t, func() bool {
		var list []*types.Backup
		r := a.do(t, http.MethodGet, "/server/gamma/backups", nil, &list)
		return r.StatusCode == http.StatusOK && len(list) == 1
	}, 5*time.Second, 50*time.Millisecond)

	var b types.Backup
	resp = a.do(t, http.MethodGet, "/backup/"+created.BackupID, nil, &b)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, types.BackupFull, b.Type)
	assert.Equal(t, "pre-update", b.Comments)

	// Stream a single file back out of the archive.
	req, err := http.NewRequest(http.MethodGet,
		a.ts.URL+"/server/gamma/backup/"+created.BackupID+"/file?path=world.dat", nil)
	require.NoError(t, err)
	req.AddCookie(a.cookie)
	dl, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer dl.Body.Close()
	require.Equal(t, http.StatusOK, dl.StatusCode)
	content, err := io.ReadAll(dl.Body)
	require.NoError(t, err)
	assert.Equal(t, "chunks", string(content))

	resp = a.do(t, http.MethodDelete, "/backup/"+created.BackupID, nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var er errorResponse
	resp = a.do(t, http.MethodGet, "/backup/"+created.BackupID, nil, &er)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "BACKUP_NOT_FOUND", er.Code)
}

func TestWebsocketStreamsEvents(t *testing.T) {
	a := newTestAPI(t)

	wsURL := "ws" + strings.TrimPrefix(a.ts.URL, "http") + "/ws"
	header := http.Header{}
	header.Add("Cookie", a.cookie.String())
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	a.core.Bus().Publish(types.ServerChangeState{
		ServerID: "lobby", OldState: types.StateStopped, NewState: types.StateStarting,
	})

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var env struct {
		Type string `json:"type"`
		Data struct {
			ServerID string `json:"server"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(payload, &env))
	assert.Equal(t, "server_change_state", env.Type)
	assert.Equal(t, "lobby", env.Data.ServerID)
}

func TestUserManagement(t *testing.T) {
	a := newTestAPI(t)

	body, _ := json.Marshal(addUserRequest{Name: "ops", Password: "s3cret", Permission: 1})
	var user types.User
	resp := a.do(t, http.MethodPost, "/user/add", bytes.NewReader(body), &user)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ops", user.Name)

	var users []*types.User
	resp = a.do(t, http.MethodGet, "/users", nil, &users)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, users, 2)

	resp = a.do(t, http.MethodDelete, "/user/remove?name=ops", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = a.do(t, http.MethodGet, "/users", nil, &users)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, users, 1)
}
