package remote

import (
	"context"
	"go/parser"
	"go/token"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testServer(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"started":true,"detection_enabled":false,"backend":"mock","ticks":42,` +
			`"detections":[{"class":"person","label":"<person> : 2.0 meters away",` +
			`"detection":{"class_id":15,"confidence":0.9},"distance":{"meters":2,"valid":true}}],` +
			`"viewers":{"status":{"running":true,"clients":1}}}`))
	})
	mux.HandleFunc("POST /api/stream/start", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error":"camera: no RealSense device found"}`))
	})
	mux.HandleFunc("/ws/status", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for i := uint64(1); i <= 2; i++ {
			conn.WriteJSON(map[string]any{"ticks": i})
		}
		// Hold the connection until the client goes away
		conn.ReadMessage()
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestStatus(t *testing.T) {
	srv := testServer(t)
	c, err := New(srv.URL + "/")
	require.NoError(t, err)

	st, err := c.Status(context.Background())
	require.NoError(t, err)
	assert.True(t, st.Started)
	assert.Equal(t, uint64(42), st.Ticks)
	assert.Equal(t, "mock", st.Backend)
	require.Len(t, st.Detections, 1)
	assert.Equal(t, "<person> : 2.0 meters away", st.Detections[0].Label)
	assert.InDelta(t, 0.9, st.Detections[0].Detection.Confidence, 1e-9)
	assert.True(t, st.Viewers["status"].Running)
}

func TestActionError(t *testing.T) {
	srv := testServer(t)
	c, err := New(srv.URL)
	require.NoError(t, err)

	_, err = c.Action(context.Background(), "stream/start")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	assert.Equal(t, "camera: no RealSense device found", apiErr.Message)
}

func TestWatch(t *testing.T) {
	srv := testServer(t)
	c, err := New(srv.URL)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var ticks []uint64
	err = c.Watch(ctx, func(st Status) {
		ticks = append(ticks, st.Ticks)
		if len(ticks) == 2 {
			cancel()
		}
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []uint64{1, 2}, ticks)
}

func TestNewRejectsScheme(t *testing.T) {
	_, err := New("ftp://localhost")
	assert.Error(t, err)
}

func TestClientAvoidsServerPackages(t *testing.T) {
	files, err := filepath.Glob("*.go")
	require.NoError(t, err)

	banned := []string{
		"gocv.io/x/gocv",
		"github.com/teslashibe/go-rsdnn/pkg/web",
		"github.com/teslashibe/go-rsdnn/pkg/perception",
		"github.com/teslashibe/go-rsdnn/pkg/fusion",
	}
	fset := token.NewFileSet()
	for _, name := range files {
		if strings.HasSuffix(name, "_test.go") {
			continue
		}
		f, err := parser.ParseFile(fset, name, nil, parser.ImportsOnly)
		require.NoError(t, err)
		for _, imp := range f.Imports {
			path, _ := strconv.Unquote(imp.Path.Value)
			assert.NotContains(t, banned, path, "%s imports %s", name, path)
		}
	}
}
