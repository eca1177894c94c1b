package feed

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ecomap/internal/api"
	"ecomap/internal/notice"
	"ecomap/internal/session"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

func newTestApp(t *testing.T, backend *fakeBackend, userID string) (*fiber.App, *Store) {
	t.Helper()
	store := loadedStore(t, backend, notice.Discard)
	sess := session.NewProvider("")
	if userID != "" {
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, session.Claims{
			UserID:           userID,
			RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
		}).SignedString([]byte("any"))
		if err != nil {
			t.Fatalf("sign token: %v", err)
		}
		if _, err := sess.SignIn(token); err != nil {
			t.Fatalf("sign in: %v", err)
		}
	}
	app := fiber.New()
	RegisterRoutes(app.Group("/feed"), store, sess, session.Require(sess))
	return app, store
}

func do(t *testing.T, app *fiber.App, req *http.Request) *http.Response {
	t.Helper()
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("%s %s: %v", req.Method, req.URL.Path, err)
	}
	return resp
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestLikeRouteReturnsOptimisticState(t *testing.T) {
	backend := newFakeBackend(api.Post{ID: "p"})
	app, store := newTestApp(t, backend, "u")

	resp := do(t, app, httptest.NewRequest("POST", "/feed/posts/p/like", nil))
	if resp.StatusCode != fiber.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
	var body struct {
		Accepted bool     `json:"accepted"`
		Post     PostView `json:"post"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.Accepted || !body.Post.Like.IsActive {
		t.Fatalf("unexpected body %+v", body)
	}
	resolveTicket(t, store, backend, "p", nil)
}

func TestLikeRouteRequiresSession(t *testing.T) {
	app, _ := newTestApp(t, newFakeBackend(api.Post{ID: "p"}), "")
	resp := do(t, app, httptest.NewRequest("POST", "/feed/posts/p/like", nil))
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestLikeRouteUnknownPost(t *testing.T) {
	app, _ := newTestApp(t, newFakeBackend(api.Post{ID: "p"}), "u")
	resp := do(t, app, httptest.NewRequest("POST", "/feed/posts/nope/like", nil))
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestCommentRoutes(t *testing.T) {
	backend := newFakeBackend(api.Post{ID: "p"})
	backend.comments["p"] = []api.Comment{{ID: "c1", Content: "first"}}
	app, store := newTestApp(t, backend, "u")

	resp := do(t, app, httptest.NewRequest("GET", "/feed/posts/p/comments", nil))
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("list comments: %d", resp.StatusCode)
	}

	resp = do(t, app, jsonRequest("POST", "/feed/posts/p/comments", `{"content":""}`))
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("blank comment should be 400, got %d", resp.StatusCode)
	}

	resp = do(t, app, jsonRequest("POST", "/feed/posts/p/comments", `{"content":"hello"}`))
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("submit comment: %d", resp.StatusCode)
	}
	if post, _ := store.Post("p", "u"); post.CommentCount != 1 {
		t.Fatalf("expected count 1, got %d", post.CommentCount)
	}
}

func TestFeedRoutes(t *testing.T) {
	backend := newFakeBackend(api.Post{ID: "p", MediaURL: "a.mp4"})
	app, _ := newTestApp(t, backend, "u")

	backend.setPosts(api.Post{ID: "p", MediaURL: "a.mp4"}, api.Post{ID: "q"})
	resp := do(t, app, httptest.NewRequest("POST", "/feed/refresh", nil))
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("refresh: %d", resp.StatusCode)
	}

	resp = do(t, app, httptest.NewRequest("GET", "/feed/", nil))
	var posts []PostView
	if err := json.NewDecoder(resp.Body).Decode(&posts); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(posts) != 2 || posts[0].MediaKind != MediaVideo {
		t.Fatalf("unexpected feed %+v", posts)
	}

	backend.mu.Lock()
	backend.feedErr = errBackend
	backend.mu.Unlock()
	resp = do(t, app, httptest.NewRequest("POST", "/feed/refresh", nil))
	if resp.StatusCode != fiber.StatusBadGateway {
		t.Fatalf("expected 502 on failed refresh, got %d", resp.StatusCode)
	}
}
