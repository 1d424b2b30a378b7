package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

const requestTimeout = 15 * time.Second

// Client talks to the e-learning directory REST service (courses, users,
// live sessions). Every call carries a bounded timeout; callers treat a
// timeout like any other connectivity failure.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *log.Logger
}

func NewClient(baseURL string, logger *log.Logger) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/") + "/",
		http:    &http.Client{Timeout: requestTimeout},
		logger:  logger,
	}
}

// --- Courses ---

func (c *Client) GetCourseByID(ctx context.Context, courseID string) (map[string]any, error) {
	if courseID == "" {
		return nil, fmt.Errorf("course_id is required")
	}
	body, err := c.do(ctx, http.MethodGet, "course/"+url.PathEscape(courseID), nil, nil)
	if err != nil {
		return nil, err
	}
	return map[string]any{"course": body}, nil
}

func (c *Client) SearchCourses(ctx context.Context, params map[string]any) (map[string]any, error) {
	body, err := c.do(ctx, http.MethodGet, "elearning/courses", params, nil)
	if err != nil {
		return nil, err
	}
	return map[string]any{"courses": items(body)}, nil
}

func (c *Client) CreateCourse(ctx context.Context, payload map[string]any) (map[string]any, error) {
	return c.do(ctx, http.MethodPost, "elearning/course", nil, payload)
}

func (c *Client) UpdateCourse(ctx context.Context, params map[string]any) (map[string]any, error) {
	courseID := fmt.Sprintf("%v", params["course_id"])
	if courseID == "" || courseID == "<nil>" {
		return nil, fmt.Errorf("course_id is required")
	}
	return c.do(ctx, http.MethodPut, "course/"+url.PathEscape(courseID), nil, params)
}

func (c *Client) DeleteCourse(ctx context.Context, courseID string) (map[string]any, error) {
	if courseID == "" {
		return nil, fmt.Errorf("course_id is required")
	}
	body, err := c.do(ctx, http.MethodDelete, "course/"+url.PathEscape(courseID), nil, nil)
	if err != nil {
		return nil, err
	}
	if body == nil {
		body = map[string]any{}
	}
	body["deleted"] = courseID
	return body, nil
}

// --- Users ---

// userRoutes maps router operation names to directory endpoints.
var userRoutes = map[string]struct {
	method string
	path   string
	idKey  string
}{
	"get_users":      {http.MethodGet, "user/", ""},
	"get_user_by_id": {http.MethodGet, "user/%s", "user_id"},
	"create_user":    {http.MethodPost, "users/", ""},
	"update_user":    {http.MethodPut, "user/%s", "user_id"},
	"delete_user":    {http.MethodDelete, "user/%s", "user_id"},
}

// Invoke dispatches a user CRUD operation by its routing name.
func (c *Client) Invoke(ctx context.Context, operation string, params map[string]any) (map[string]any, error) {
	route, ok := userRoutes[operation]
	if !ok {
		return nil, fmt.Errorf("unsupported user operation: %s", operation)
	}

	path := route.path
	if route.idKey != "" {
		id := fmt.Sprintf("%v", params[route.idKey])
		if id == "" || id == "<nil>" {
			return nil, fmt.Errorf("%s is required", route.idKey)
		}
		path = fmt.Sprintf(route.path, url.PathEscape(id))
	}

	var payload map[string]any
	if route.method == http.MethodPost || route.method == http.MethodPut {
		payload = params
	}
	return c.do(ctx, route.method, path, nil, payload)
}

// --- Live sessions ---

// QuerySessions searches scheduled live sessions. Sorting and limiting
// happen client-side; the dynamic search endpoint only filters.
func (c *Client) QuerySessions(ctx context.Context, filters map[string]any) (map[string]any, error) {
	dateType := strings.ToUpper(popString(filters, "P_DATE_TYPE", "START"))
	order := strings.ToUpper(popString(filters, "P_ORDER_BY", "ASC"))
	limit := popInt(filters, "P_LIMIT")

	body, err := c.do(ctx, http.MethodGet, "elearning/searchlivesessiondynamic", filters, nil)
	if err != nil {
		return map[string]any{"sessions": []any{}, "message": "Session search is unavailable right now."}, err
	}

	sessions := items(body)
	key := "start_time"
	if dateType == "END" {
		key = "end_time"
	}
	sort.SliceStable(sessions, func(i, j int) bool {
		a := sessionField(sessions[i], key)
		b := sessionField(sessions[j], key)
		if order == "DESC" {
			return a > b
		}
		return a < b
	})
	if limit > 0 && limit < len(sessions) {
		sessions = sessions[:limit]
	}

	message := "Here are the sessions found."
	if len(sessions) == 0 {
		message = "No session matches your search."
	}
	return map[string]any{"sessions": sessions, "message": message}, nil
}

// CreateSession commits a validated live-session draft.
func (c *Client) CreateSession(ctx context.Context, sessionData map[string]any) (map[string]any, error) {
	return c.do(ctx, http.MethodPost, "live_sessions/", nil, sessionData)
}

// CreateReminder persists a session reminder in the directory.
func (c *Client) CreateReminder(ctx context.Context, reminder map[string]any) (map[string]any, error) {
	return c.do(ctx, http.MethodPost, "reminders/", nil, reminder)
}

// ListReminders returns all stored reminders.
func (c *Client) ListReminders(ctx context.Context) ([]any, error) {
	body, err := c.do(ctx, http.MethodGet, "reminders/", nil, nil)
	if err != nil {
		return nil, err
	}
	return items(body), nil
}

// UpdateReminderStatus marks a reminder as sent or missed.
func (c *Client) UpdateReminderStatus(ctx context.Context, reminderID, status string) error {
	_, err := c.do(ctx, http.MethodPut, "reminders/"+url.PathEscape(reminderID), nil, map[string]any{"status": status})
	return err
}

// --- plumbing ---

func (c *Client) do(ctx context.Context, method, path string, query map[string]any, payload map[string]any) (map[string]any, error) {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		values := url.Values{}
		for k, v := range query {
			s := fmt.Sprintf("%v", v)
			if s == "" || s == "<nil>" || s == "null" {
				continue
			}
			values.Set(k, s)
		}
		if encoded := values.Encode(); encoded != "" {
			endpoint += "?" + encoded
		}
	}

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal payload: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("directory request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Printf("[DIRECTORY] %s %s -> %d", method, path, resp.StatusCode)
		return nil, fmt.Errorf("directory error: status %d, body: %s", resp.StatusCode, string(raw))
	}
	if len(raw) == 0 {
		return map[string]any{}, nil
	}

	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	return decoded, nil
}

// items unwraps the APEX-style {"items": [...]} envelope.
func items(body map[string]any) []any {
	if body == nil {
		return []any{}
	}
	if wrapped, ok := body["items"].([]any); ok {
		return wrapped
	}
	return []any{body}
}

func sessionField(entry any, key string) string {
	if m, ok := entry.(map[string]any); ok {
		if v, ok := m[key]; ok && v != nil {
			return fmt.Sprintf("%v", v)
		}
	}
	return ""
}

func popString(params map[string]any, key, fallback string) string {
	v, ok := params[key]
	if !ok || v == nil {
		return fallback
	}
	delete(params, key)
	s := fmt.Sprintf("%v", v)
	if s == "" || s == "null" {
		return fallback
	}
	return s
}

func popInt(params map[string]any, key string) int {
	v, ok := params[key]
	if !ok || v == nil {
		return 0
	}
	delete(params, key)
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	case string:
		var parsed int
		fmt.Sscanf(n, "%d", &parsed)
		return parsed
	default:
		return 0
	}
}
