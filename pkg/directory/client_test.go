package directory

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(server.URL, log.New(io.Discard, "", 0))
}

func TestGetCourseByIDWrapsResponse(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/course/42", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{"course_id": 42, "owner_id": "7"})
	})

	res, err := c.GetCourseByID(context.Background(), "42")
	require.NoError(t, err)
	course, ok := res["course"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "7", course["owner_id"])
}

func TestQuerySessionsSortsAndLimits(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/elearning/searchlivesessiondynamic", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{"items": []any{
			map[string]any{"room": "a", "start_time": "2026-09-01T10:00:00Z"},
			map[string]any{"room": "b", "start_time": "2026-09-03T10:00:00Z"},
			map[string]any{"room": "c", "start_time": "2026-09-02T10:00:00Z"},
		}})
	})

	res, err := c.QuerySessions(context.Background(), map[string]any{
		"P_ORDER_BY": "DESC",
		"P_LIMIT":    2,
	})
	require.NoError(t, err)

	sessions, ok := res["sessions"].([]any)
	require.True(t, ok)
	require.Len(t, sessions, 2)
	first := sessions[0].(map[string]any)
	assert.Equal(t, "b", first["room"])
}

func TestInvokeRejectsUnknownOperation(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	_, err := c.Invoke(context.Background(), "drop_users", nil)
	assert.Error(t, err)
}

func TestDirectoryErrorSurfacesStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	_, err := c.GetCourseByID(context.Background(), "1")
	assert.Error(t, err)
}
