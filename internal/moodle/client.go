package moodle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gerlope/ugr-matrix-chatroom-manager/utils"
)

const (
	// RoleEditingTeacher and RoleTeacher are the Moodle role shortnames
	// that mark a user as teaching staff in a course.
	RoleEditingTeacher = "editingteacher"
	RoleTeacher        = "teacher"

	wsUserCourses   = "core_enrol_get_users_courses"
	wsEnrolledUsers = "core_enrol_get_enrolled_users"
)

// Course is a Moodle course a user is enrolled in.
type Course struct {
	ID        int    `json:"id"`
	ShortName string `json:"shortname"`
	FullName  string `json:"fullname"`
}

// Role is a role assignment inside a course.
type Role struct {
	RoleID    int    `json:"roleid"`
	ShortName string `json:"shortname"`
}

// EnrolledUser is a participant of a course together with their roles.
type EnrolledUser struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	FullName string `json:"fullname"`
	Email    string `json:"email"`
	Roles    []Role `json:"roles"`
}

// HasTeachingRole reports whether the user holds a teaching role.
func (u EnrolledUser) HasTeachingRole() bool {
	for _, role := range u.Roles {
		if role.ShortName == RoleEditingTeacher || role.ShortName == RoleTeacher {
			return true
		}
	}
	return false
}

// apiError is how the Moodle web service reports failures: an HTTP 200
// carrying a JSON object with an "exception" field.
type apiError struct {
	Exception string `json:"exception"`
	ErrorCode string `json:"errorcode"`
	Message   string `json:"message"`
}

type Client struct {
	// baseURL is the Moodle site root, without the webservice path.
	baseURL string

	// token is the web service token of the bot's service account.
	token string

	// cb fails calls fast while Moodle is down.
	cb *utils.CircuitBreaker

	// hc is the http client.
	hc *http.Client
}

// NewClient creates a client for the Moodle REST web service.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		cb:      utils.NewCircuitBreaker("moodle"),
		hc: &http.Client{
			Timeout: timeout,
		},
	}
}

// GetUserCourses returns the courses a Moodle user is enrolled in.
func (c *Client) GetUserCourses(ctx context.Context, userID int) ([]Course, error) {
	params := url.Values{}
	params.Set("userid", strconv.Itoa(userID))

	var courses []Course
	if err := c.call(ctx, wsUserCourses, params, &courses); err != nil {
		return nil, err
	}
	return courses, nil
}

// GetEnrolledUsers returns every participant of a course with their roles.
func (c *Client) GetEnrolledUsers(ctx context.Context, courseID int) ([]EnrolledUser, error) {
	params := url.Values{}
	params.Set("courseid", strconv.Itoa(courseID))

	var users []EnrolledUser
	if err := c.call(ctx, wsEnrolledUsers, params, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// TeachersOf returns the participants of a course that hold a teaching role.
func (c *Client) TeachersOf(ctx context.Context, courseID int) ([]EnrolledUser, error) {
	users, err := c.GetEnrolledUsers(ctx, courseID)
	if err != nil {
		return nil, err
	}
	teachers := make([]EnrolledUser, 0, len(users))
	for _, u := range users {
		if u.HasTeachingRole() {
			teachers = append(teachers, u)
		}
	}
	return teachers, nil
}

func (c *Client) call(ctx context.Context, wsfunction string, params url.Values, out any) error {
	result, err := c.cb.Execute(ctx, func() (any, error) {
		return c.do(ctx, wsfunction, params)
	})
	if err != nil {
		return err
	}
	body := result.([]byte)

	var apiErr apiError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Exception != "" {
		return fmt.Errorf("moodle %s: %s (%s)", wsfunction, apiErr.Message, apiErr.ErrorCode)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("moodle %s: decode response: %w", wsfunction, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, wsfunction string, params url.Values) ([]byte, error) {
	query := url.Values{}
	query.Set("wstoken", c.token)
	query.Set("wsfunction", wsfunction)
	query.Set("moodlewsrestformat", "json")
	for key, values := range params {
		for _, value := range values {
			query.Add(key, value)
		}
	}

	endpoint := fmt.Sprintf("%s/webservice/rest/server.php?%s", c.baseURL, query.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("moodle %s: http.NewReq: %w", wsfunction, err)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("moodle %s: http.Do: %w", wsfunction, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("moodle %s: status %d", wsfunction, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("moodle %s: read body: %w", wsfunction, err)
	}
	return body, nil
}
