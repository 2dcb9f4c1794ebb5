package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

const requestTimeout = 15 * time.Second

// Remote error codes the scheduler recognizes. These are the wire values
// the service reports inside its error envelope.
const (
	wireCodePageGone      = 34
	wireCodeNotFound      = 50
	wireCodeSuspended     = 63
	wireCodeRateLimited   = 88
	wireCodeNotMutingUser = 272
)

// HTTPFactory builds HTTP clients for the remote social-graph API,
// one per set of user credentials.
type HTTPFactory struct {
	baseURL        string
	consumerKey    string
	consumerSecret string
	httpClient     *http.Client
}

func NewHTTPFactory(baseURL, consumerKey, consumerSecret string) *HTTPFactory {
	return &HTTPFactory{
		baseURL:        baseURL,
		consumerKey:    consumerKey,
		consumerSecret: consumerSecret,
		httpClient:     &http.Client{Timeout: requestTimeout},
	}
}

func (f *HTTPFactory) ClientFor(creds Credentials) Client {
	return &httpClient{factory: f, creds: creds}
}

type httpClient struct {
	factory *HTTPFactory
	creds   Credentials
}

// errorEnvelope is the error body shape of the remote API.
type errorEnvelope struct {
	Errors []struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

func classify(status int, body []byte) error {
	var envelope errorEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil && len(envelope.Errors) > 0 {
		first := envelope.Errors[0]
		code := CodeUnclassified
		switch first.Code {
		case wireCodeRateLimited:
			code = CodeRateLimited
		case wireCodeNotFound:
			code = CodeNotFound
		case wireCodeSuspended:
			code = CodeSuspended
		case wireCodeNotMutingUser:
			code = CodeAlreadyUndone
		case wireCodePageGone:
			code = CodePageGone
		}
		return &APIError{Code: code, Message: first.Message}
	}
	if status == http.StatusTooManyRequests {
		return &APIError{Code: CodeRateLimited, Message: "too many requests"}
	}
	if status == http.StatusNotFound {
		return &APIError{Code: CodePageGone, Message: "page does not exist"}
	}
	return &APIError{Code: CodeUnclassified, Message: fmt.Sprintf("status %d", status)}
}

func (c *httpClient) call(ctx context.Context, method, path string, params url.Values) ([]byte, error) {
	endpoint := c.factory.baseURL + path
	var req *http.Request
	var err error

	if method == http.MethodGet {
		req, err = http.NewRequestWithContext(ctx, method, endpoint+"?"+params.Encode(), nil)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, endpoint, nil)
		if req != nil {
			req.URL.RawQuery = params.Encode()
		}
	}
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf(
		"OAuth oauth_consumer_key=%q, oauth_token=%q", c.factory.consumerKey, c.creds.AccessToken,
	))

	start := time.Now()
	resp, err := c.factory.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("remote request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	log.Debug().
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("remote api call")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, classify(resp.StatusCode, body)
	}
	return body, nil
}

func targetParams(target Target) url.Values {
	params := url.Values{}
	if target.ID != 0 {
		params.Set("user_id", strconv.FormatInt(target.ID, 10))
	}
	if target.ScreenName != "" {
		params.Set("screen_name", target.ScreenName)
	}
	params.Set("include_entities", "false")
	return params
}

func decodeUser(body []byte) (*User, error) {
	var u User
	if err := json.Unmarshal(body, &u); err != nil {
		return nil, fmt.Errorf("decode user: %w", err)
	}
	u.Raw = json.RawMessage(body)
	return &u, nil
}

func (c *httpClient) GetUser(ctx context.Context, target Target) (*User, error) {
	body, err := c.call(ctx, http.MethodGet, "/users/show.json", targetParams(target))
	if err != nil {
		return nil, err
	}
	return c.decode(body)
}

func (c *httpClient) mutate(ctx context.Context, path string, target Target) (*User, error) {
	params := targetParams(target)
	params.Set("skip_status", "true")
	body, err := c.call(ctx, http.MethodPost, path, params)
	if err != nil {
		return nil, err
	}
	return c.decode(body)
}

func (c *httpClient) decode(body []byte) (*User, error) {
	return decodeUser(body)
}

func (c *httpClient) CreateBlock(ctx context.Context, target Target) (*User, error) {
	return c.mutate(ctx, "/blocks/create.json", target)
}

func (c *httpClient) DestroyBlock(ctx context.Context, target Target) (*User, error) {
	return c.mutate(ctx, "/blocks/destroy.json", target)
}

func (c *httpClient) CreateMute(ctx context.Context, target Target) (*User, error) {
	return c.mutate(ctx, "/mutes/create.json", target)
}

func (c *httpClient) DestroyMute(ctx context.Context, target Target) (*User, error) {
	return c.mutate(ctx, "/mutes/destroy.json", target)
}

// idPage is the wire shape of an id-cursored listing page.
type idPage struct {
	IDs            []int64 `json:"ids"`
	NextCursor     int64   `json:"next_cursor"`
	PreviousCursor int64   `json:"previous_cursor"`
}

// userPage is the wire shape of a profile-cursored listing page.
type userPage struct {
	Users          []json.RawMessage `json:"users"`
	NextCursor     int64             `json:"next_cursor"`
	PreviousCursor int64             `json:"previous_cursor"`
}

func (c *httpClient) idListing(ctx context.Context, path string, params url.Values, cursor int64) (Page, error) {
	params.Set("cursor", strconv.FormatInt(cursor, 10))
	body, err := c.call(ctx, http.MethodGet, path, params)
	if err != nil {
		return Page{}, err
	}
	var p idPage
	if err := json.Unmarshal(body, &p); err != nil {
		return Page{}, fmt.Errorf("decode id page: %w", err)
	}
	return Page{NextCursor: p.NextCursor, PreviousCursor: p.PreviousCursor, IDs: p.IDs}, nil
}

func (c *httpClient) FollowerIDs(ctx context.Context, userID int64, cursor int64) (Page, error) {
	params := url.Values{}
	params.Set("user_id", strconv.FormatInt(userID, 10))
	return c.idListing(ctx, "/followers/ids.json", params, cursor)
}

func (c *httpClient) FriendIDs(ctx context.Context, userID int64, cursor int64) (Page, error) {
	params := url.Values{}
	params.Set("user_id", strconv.FormatInt(userID, 10))
	return c.idListing(ctx, "/friends/ids.json", params, cursor)
}

func (c *httpClient) Friends(ctx context.Context, userID int64, cursor int64) (Page, error) {
	params := url.Values{}
	params.Set("user_id", strconv.FormatInt(userID, 10))
	params.Set("cursor", strconv.FormatInt(cursor, 10))
	params.Set("include_entities", "false")
	body, err := c.call(ctx, http.MethodGet, "/friends/list.json", params)
	if err != nil {
		return Page{}, err
	}
	var p userPage
	if err := json.Unmarshal(body, &p); err != nil {
		return Page{}, fmt.Errorf("decode user page: %w", err)
	}
	page := Page{NextCursor: p.NextCursor, PreviousCursor: p.PreviousCursor}
	for _, raw := range p.Users {
		u, err := decodeUser(raw)
		if err != nil {
			return Page{}, err
		}
		page.Users = append(page.Users, *u)
	}
	return page, nil
}

func (c *httpClient) BlockIDs(ctx context.Context, cursor int64) (Page, error) {
	return c.idListing(ctx, "/blocks/ids.json", url.Values{}, cursor)
}

func (c *httpClient) MuteIDs(ctx context.Context, cursor int64) (Page, error) {
	return c.idListing(ctx, "/mutes/users/ids.json", url.Values{}, cursor)
}
