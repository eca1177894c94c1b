package mapview

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"ecomap/internal/api"
	"ecomap/internal/geopoint"
	"ecomap/internal/notice"

	"github.com/gofiber/fiber/v2"
)

// fakeEditor appends created ids to the lists the stub source serves, so the
// refresh after a create sees the new point.
type fakeEditor struct {
	treeIDs *[]string
	orgIDs  *[]string

	planted    []api.TreeInput
	registered []api.OrganizationInput
	err        error
}

func (f *fakeEditor) PlantTree(_ context.Context, input api.TreeInput) (geopoint.Tree, error) {
	if f.err != nil {
		return geopoint.Tree{}, f.err
	}
	f.planted = append(f.planted, input)
	*f.treeIDs = append(*f.treeIDs, "new")
	return geopoint.Tree{ID: "new", Latitude: input.Latitude, Longitude: input.Longitude}, nil
}

func (f *fakeEditor) RegisterOrganization(_ context.Context, input api.OrganizationInput) (geopoint.Organization, error) {
	if f.err != nil {
		return geopoint.Organization{}, f.err
	}
	f.registered = append(f.registered, input)
	*f.orgIDs = append(*f.orgIDs, "c")
	return geopoint.Organization{ID: "c", Name: input.Name, Latitude: input.Latitude, Longitude: input.Longitude}, nil
}

func newMapApp(t *testing.T) (*fiber.App, *View, *recordingSurface, *fakeEditor) {
	t.Helper()
	rec, s := mounted(t)
	treeIDs := []string{"t1"}
	orgIDs := []string{"a", "b"}
	src := &stubSource{fetch: func(_ context.Context, kind geopoint.Kind, _ int) ([]geopoint.GeoPoint, error) {
		if kind == geopoint.KindTree {
			return trees(treeIDs...), nil
		}
		return orgs(orgIDs...), nil
	}}
	view := NewView(rec, src, ViewOptions{Notices: notice.Discard})
	editor := &fakeEditor{treeIDs: &treeIDs, orgIDs: &orgIDs}
	app := fiber.New()
	RegisterRoutes(app.Group("/map"), view, editor, func(c *fiber.Ctx) error { return c.Next() })
	return app, view, s, editor
}

func call(t *testing.T, app *fiber.App, method, target, body string) *http.Response {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, target, err)
	}
	return resp
}

func decode(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

func TestMapRefreshAndMarkers(t *testing.T) {
	app, _, s, _ := newMapApp(t)

	if resp := call(t, app, "POST", "/map/refresh", ""); resp.StatusCode != fiber.StatusOK {
		t.Fatalf("refresh status %d", resp.StatusCode)
	}
	if got := s.pointIDs(geopoint.KindOrganization); !equalIDs(got, []string{"a", "b"}) {
		t.Fatalf("org markers %v", got)
	}

	var markers []markerView
	decode(t, call(t, app, "GET", "/map/markers?kind=trees", ""), &markers)
	if len(markers) != 1 || markers[0].PointID != "t1" {
		t.Fatalf("unexpected markers %+v", markers)
	}
	if resp := call(t, app, "GET", "/map/markers?kind=rivers", ""); resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("expected 400 for unknown kind, got %d", resp.StatusCode)
	}
}

func TestMapStyleRoutes(t *testing.T) {
	app, view, _, _ := newMapApp(t)

	var body struct {
		Style Style `json:"style"`
	}
	decode(t, call(t, app, "POST", "/map/style/toggle", ""), &body)
	if body.Style != StyleSatellite {
		t.Fatalf("expected satellite, got %s", body.Style)
	}
	decode(t, call(t, app, "PUT", "/map/style", `{"style":"street"}`), &body)
	if body.Style != StyleStreet || view.Reconciler().Style() != StyleStreet {
		t.Fatalf("expected street, got %s", body.Style)
	}
	if resp := call(t, app, "PUT", "/map/style", `{"style":"terrain"}`); resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestMapClickAndSelection(t *testing.T) {
	app, view, _, _ := newMapApp(t)
	call(t, app, "POST", "/map/refresh", "")
	h, _ := view.Reconciler().Handle(geopoint.KindOrganization, "a")

	var sel selectionView
	decode(t, call(t, app, "POST", "/map/click", `{"anchor":"`+h.Anchor()+`"}`), &sel)
	if !sel.Selected || sel.Organization.ID != "a" {
		t.Fatalf("unexpected selection %+v", sel)
	}
	decode(t, call(t, app, "GET", "/map/selection", ""), &sel)
	if !sel.Selected {
		t.Fatalf("selection lost")
	}
	if resp := call(t, app, "DELETE", "/map/selection", ""); resp.StatusCode != fiber.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
	sel = selectionView{}
	decode(t, call(t, app, "GET", "/map/selection", ""), &sel)
	if sel.Selected {
		t.Fatalf("selection should be cleared")
	}
}

func TestMapNearbyRoute(t *testing.T) {
	app, _, _, _ := newMapApp(t)
	call(t, app, "POST", "/map/refresh", "")

	var points []NearbyPoint
	decode(t, call(t, app, "GET", "/map/nearby?lat=28&lng=77&radius_km=20", ""), &points)
	if len(points) != 2 || points[0].Point.ID != "a" {
		t.Fatalf("unexpected nearby %+v", points)
	}
	if resp := call(t, app, "GET", "/map/nearby?lng=77", ""); resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("expected 400 without lat, got %d", resp.StatusCode)
	}
}

func TestMapPlantTree(t *testing.T) {
	app, _, s, planter := newMapApp(t)

	resp := call(t, app, "POST", "/map/trees", `{"latitude":28.5,"longitude":77.1,"description":"neem"}`)
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	if len(planter.planted) != 1 || planter.planted[0].Description != "neem" {
		t.Fatalf("unexpected planted %+v", planter.planted)
	}
	if got := s.pointIDs(geopoint.KindTree); !equalIDs(got, []string{"new", "t1"}) {
		t.Fatalf("tree markers after planting %v", got)
	}

	if resp := call(t, app, "POST", "/map/trees", `{"latitude":128,"longitude":77.1}`); resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("expected 400 for bad coordinates, got %d", resp.StatusCode)
	}
	planter.err = errors.New("backend down")
	if resp := call(t, app, "POST", "/map/trees", `{"latitude":28.5,"longitude":77.1}`); resp.StatusCode != fiber.StatusBadGateway {
		t.Fatalf("expected 502, got %d", resp.StatusCode)
	}
}

func TestMapRegisterOrganization(t *testing.T) {
	app, _, s, editor := newMapApp(t)
	call(t, app, "POST", "/map/refresh", "")

	resp := call(t, app, "POST", "/map/orgs", `{"name":"Green Delhi","description":"river cleanups","latitude":28.7,"longitude":77.1,"Address":"Connaught Place"}`)
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	var body struct {
		Organization geopoint.Organization `json:"organization"`
		Refreshed    bool                  `json:"refreshed"`
	}
	decode(t, resp, &body)
	if body.Organization.ID != "c" || !body.Refreshed {
		t.Fatalf("unexpected response %+v", body)
	}
	if len(editor.registered) != 1 || editor.registered[0].Address != "Connaught Place" {
		t.Fatalf("unexpected registered %+v", editor.registered)
	}
	if got := s.pointIDs(geopoint.KindOrganization); !equalIDs(got, []string{"a", "b", "c"}) {
		t.Fatalf("org markers after registering %v", got)
	}

	if resp := call(t, app, "POST", "/map/orgs", `{"name":"  ","latitude":28.7,"longitude":77.1}`); resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("expected 400 for blank name, got %d", resp.StatusCode)
	}
	if resp := call(t, app, "POST", "/map/orgs", `{"name":"x","latitude":28.7,"longitude":277.1}`); resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("expected 400 for bad coordinates, got %d", resp.StatusCode)
	}
	editor.err = errors.New("backend down")
	if resp := call(t, app, "POST", "/map/orgs", `{"name":"x","latitude":28.7,"longitude":77.1}`); resp.StatusCode != fiber.StatusBadGateway {
		t.Fatalf("expected 502, got %d", resp.StatusCode)
	}
}

func TestMapRegisterOrganizationRequiresSession(t *testing.T) {
	rec, _ := mounted(t)
	view := NewView(rec, &stubSource{fetch: func(context.Context, geopoint.Kind, int) ([]geopoint.GeoPoint, error) {
		return nil, nil
	}}, ViewOptions{Notices: notice.Discard})
	app := fiber.New()
	deny := func(c *fiber.Ctx) error { return fiber.ErrUnauthorized }
	RegisterRoutes(app.Group("/map"), view, &fakeEditor{}, deny)

	if resp := call(t, app, "POST", "/map/orgs", `{"name":"x","latitude":28.7,"longitude":77.1}`); resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}
