// Package api talks to the EcoMap backend, the source of truth for
// organizations, trees, posts and relations.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ecomap/internal/geopoint"

	"github.com/patrickmn/go-cache"
	"github.com/pkg/errors"
)

const (
	defaultTimeout  = 15 * time.Second
	commentCacheTTL = 30 * time.Second
	maxErrorBody    = 512
)

type Client struct {
	baseURL   string
	client    *http.Client
	cache     *cache.Cache
	token     func() string
	userAgent string
}

// New returns a client for baseURL. Every request is bounded by timeout;
// token supplies the bearer token and may return "".
func New(baseURL string, timeout time.Duration, token func() string) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if token == nil {
		token = func() string { return "" }
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		client:    &http.Client{Timeout: timeout},
		cache:     cache.New(commentCacheTTL, 2*commentCacheTTL),
		token:     token,
		userAgent: "ecomap-client/1.0",
	}
}

// StatusError is returned for any non-2xx backend answer.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status code %d", e.Method, e.Path, e.Code)
}

func (c *Client) FetchOrganizations(ctx context.Context) ([]geopoint.Organization, error) {
	var orgs []geopoint.Organization
	if err := c.do(ctx, http.MethodGet, "/api/eco-orgs", nil, "", &orgs); err != nil {
		return nil, err
	}
	return orgs, nil
}

func (c *Client) FetchTrees(ctx context.Context) ([]geopoint.Tree, error) {
	var trees []geopoint.Tree
	if err := c.do(ctx, http.MethodGet, "/api/", nil, "trees", &trees); err != nil {
		return nil, err
	}
	return trees, nil
}

// FetchPoints returns the full point collection of one kind.
func (c *Client) FetchPoints(ctx context.Context, kind geopoint.Kind) ([]geopoint.GeoPoint, error) {
	switch kind {
	case geopoint.KindOrganization:
		orgs, err := c.FetchOrganizations(ctx)
		if err != nil {
			return nil, err
		}
		return geopoint.FromOrganizations(orgs), nil
	case geopoint.KindTree:
		trees, err := c.FetchTrees(ctx)
		if err != nil {
			return nil, err
		}
		return geopoint.FromTrees(trees), nil
	}
	return nil, fmt.Errorf("fetch points: unknown kind %q", kind)
}

// FetchFeed reads the backend root, which answers {"feeds":[...]} or a bare
// array.
func (c *Client) FetchFeed(ctx context.Context) ([]Post, error) {
	var posts []Post
	if err := c.do(ctx, http.MethodGet, "/", nil, "feeds", &posts); err != nil {
		return nil, err
	}
	if posts == nil {
		posts = []Post{}
	}
	return posts, nil
}

// SetRelation adds (active) or removes the current user's relation to
// subjectID. The backend treats both directions idempotently.
func (c *Client) SetRelation(ctx context.Context, kind RelationKind, subjectID string, active bool) error {
	path, err := relationPath(kind, subjectID)
	if err != nil {
		return err
	}
	method := http.MethodDelete
	if active {
		method = http.MethodPost
	}
	return c.do(ctx, method, path, struct{}{}, "", nil)
}

func relationPath(kind RelationKind, subjectID string) (string, error) {
	if subjectID == "" {
		return "", errors.New("relation subject id required")
	}
	switch kind {
	case RelationLike:
		return "/api/posts/" + url.PathEscape(subjectID) + "/like", nil
	case RelationFollow:
		return "/eco-orgs/" + url.PathEscape(subjectID), nil
	}
	return "", fmt.Errorf("unknown relation kind %q", kind)
}

func (c *Client) FetchComments(ctx context.Context, postID string) ([]Comment, error) {
	cacheKey := "comments:" + postID
	if x, found := c.cache.Get(cacheKey); found {
		return append([]Comment(nil), x.([]Comment)...), nil
	}

	var comments []Comment
	if err := c.do(ctx, http.MethodGet, commentPath(postID), nil, "comment", &comments); err != nil {
		return nil, err
	}
	if comments == nil {
		comments = []Comment{}
	}
	c.cache.Set(cacheKey, comments, cache.DefaultExpiration)
	return append([]Comment(nil), comments...), nil
}

// SubmitComment posts a comment. When the backend does not echo the stored
// comment, the returned value carries the submitted content only.
func (c *Client) SubmitComment(ctx context.Context, postID, content string) (Comment, error) {
	body := map[string]string{"postId": postID, "content": content}
	var created Comment
	if err := c.do(ctx, http.MethodPost, commentPath(postID), body, "comment", &created); err != nil {
		return Comment{}, err
	}
	c.cache.Delete("comments:" + postID)

	if created.Content == "" {
		created.Content = content
	}
	if created.PostID == "" {
		created.PostID = postID
	}
	if created.CreatedAt.IsZero() {
		created.CreatedAt = time.Now()
	}
	return created, nil
}

func commentPath(postID string) string {
	return "/api/posts/" + url.PathEscape(postID) + "/comment"
}

func (c *Client) PlantTree(ctx context.Context, input TreeInput) (geopoint.Tree, error) {
	var tree geopoint.Tree
	if err := c.do(ctx, http.MethodPost, "/api/plant", input, "tree", &tree); err != nil {
		return geopoint.Tree{}, err
	}
	return tree, nil
}

// RegisterOrganization creates an organization. When the backend does not
// echo the stored record, the returned value carries the submitted fields
// without an id.
func (c *Client) RegisterOrganization(ctx context.Context, input OrganizationInput) (geopoint.Organization, error) {
	var org geopoint.Organization
	if err := c.do(ctx, http.MethodPost, "/api/eco-orgs/register", input, "org", &org); err != nil {
		return geopoint.Organization{}, err
	}
	if org.Name == "" {
		org.Name = input.Name
		org.Description = input.Description
		org.Latitude = input.Latitude
		org.Longitude = input.Longitude
	}
	return org, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, envelope string, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "encode request")
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return errors.Wrap(err, "create request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrapf(err, "read %s %s", method, path)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if len(raw) > maxErrorBody {
			raw = raw[:maxErrorBody]
		}
		return &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: string(raw)}
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := decodeEnvelope(raw, envelope, out); err != nil {
		return errors.Wrapf(err, "decode %s %s", method, path)
	}
	return nil
}

// decodeEnvelope decodes {"<key>": v} when the body carries that key and v
// itself otherwise.
func decodeEnvelope(raw []byte, key string, out any) error {
	if key != "" {
		var wrapped map[string]json.RawMessage
		if err := json.Unmarshal(raw, &wrapped); err == nil {
			if inner, ok := wrapped[key]; ok {
				return json.Unmarshal(inner, out)
			}
		}
	}
	return json.Unmarshal(raw, out)
}
