package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdul-hamid-achik/hitwire/packages/ws"
)

// resetFlags restores every flag to its default so package level flag
// variables do not leak between executions
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	t.Cleanup(func() { resetFlags(rootCmd) })

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, exitCode(nil))
	assert.Equal(t, ExitNetworkError, exitCode(exitWith(ExitNetworkError, errors.New("x"))))
	assert.Equal(t, ExitThresholdFailure, exitCode(exitWith(ExitThresholdFailure, nil)))
	assert.Equal(t, ExitUsageError, exitCode(errors.New("unknown flag")))
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "hitwire version dev")
}

func TestProbe_RecordAndShow(t *testing.T) {
	t.Chdir(t.TempDir())
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	db := filepath.Join(t.TempDir(), "runs.db")
	out, err := execute(t, "probe", server.URL, "-n", "5", "--concurrency", "2", "--no-color", "--record", db, "--metrics")
	require.NoError(t, err)
	assert.Contains(t, out, "PROBE SUMMARY")
	assert.Contains(t, out, "Recorded as run")
	assert.Contains(t, out, "hitwire_requests_total")

	out, err = execute(t, "runs", db)
	require.NoError(t, err)
	assert.Contains(t, out, "probe")
	assert.Contains(t, out, server.URL)
	runID := strings.Fields(out)[0]

	out, err = execute(t, "runs", db, runID, "--json")
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, 5.0, decoded["requests"].(map[string]any)["total"])
}

func TestProbe_ThresholdFailure(t *testing.T) {
	t.Chdir(t.TempDir())
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	_, err := execute(t, "probe", server.URL, "-n", "2", "--threshold", "errors<1%", "--json")
	assert.Equal(t, ExitThresholdFailure, exitCode(err))
}

func TestProbe_NetworkFailure(t *testing.T) {
	t.Chdir(t.TempDir())
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := execute(t, "probe", url, "-n", "1", "--json")
	assert.Equal(t, ExitNetworkError, exitCode(err))
}

func TestProbe_InvalidUsage(t *testing.T) {
	t.Chdir(t.TempDir())
	_, err := execute(t, "probe", "not a url")
	assert.Equal(t, ExitUsageError, exitCode(err))

	_, err = execute(t, "probe", "http://localhost", "-H", "broken")
	assert.Equal(t, ExitUsageError, exitCode(err))

	_, err = execute(t, "probe", "http://localhost", "--threshold", "p95>1s")
	assert.Equal(t, ExitUsageError, exitCode(err))
}

func TestWS_SendAndWait(t *testing.T) {
	t.Chdir(t.TempDir())
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			reply := `{"type":"ack","echo":` + string(data) + `}`
			if err := conn.WriteMessage(websocket.TextMessage, []byte(reply)); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	db := filepath.Join(t.TempDir(), "runs.db")
	out, err := execute(t, "ws", url, "--send", `{"n":1}`, "--wait-json", "echo.n=1", "--timeout", "2s", "--no-color", "--record", db)
	require.NoError(t, err)
	assert.Contains(t, out, "connected")
	assert.Contains(t, out, "MESSAGES")
	assert.Contains(t, out, `"type":"ack"`)
	assert.Contains(t, out, "Recorded as run")
}

func TestWS_WaitTimeout(t *testing.T) {
	t.Chdir(t.TempDir())
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	_, err := execute(t, "ws", url, "--wait-text", "never", "--timeout", "50ms", "--no-color")
	assert.Equal(t, ExitNetworkError, exitCode(err))
}

func TestWS_ConnectFailure(t *testing.T) {
	t.Chdir(t.TempDir())
	_, err := execute(t, "ws", "ws://127.0.0.1:1/none", "--no-reconnect")
	assert.Equal(t, ExitNetworkError, exitCode(err))
}

func TestParseWaitValue(t *testing.T) {
	assert.Equal(t, 7.0, parseWaitValue("7"))
	assert.Equal(t, true, parseWaitValue("true"))
	assert.Nil(t, parseWaitValue("null"))
	assert.Equal(t, "ack", parseWaitValue("ack"))
	assert.Equal(t, "ack", parseWaitValue(`"ack"`))
}

func TestBuildMatcher(t *testing.T) {
	resetFlags(rootCmd)
	t.Cleanup(func() { resetFlags(rootCmd) })

	m, err := buildMatcher()
	require.NoError(t, err)
	assert.Nil(t, m)

	wsWaitJSONFlag = "type=ack"
	wsWaitTextFlag = "ok"
	m, err = buildMatcher()
	require.NoError(t, err)
	assert.True(t, m(ws.Message{Kind: ws.KindText, Payload: []byte(`{"type":"ack","ok":1}`)}))
	assert.False(t, m(ws.Message{Kind: ws.KindText, Payload: []byte(`{"type":"ack"}`)}))

	wsWaitJSONFlag = "novalue"
	_, err = buildMatcher()
	assert.Error(t, err)
}

func TestConfigInitAndShow(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	out, err := execute(t, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, "hitwire.yaml")
	_, statErr := os.Stat(filepath.Join(dir, "hitwire.yaml"))
	require.NoError(t, statErr)

	_, err = execute(t, "config", "init")
	assert.Equal(t, ExitUsageError, exitCode(err))

	out, err = execute(t, "config", "show", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"User-Agent": "hitwire/dev"`)
}
