package mapview

import (
	"context"
	"strconv"
	"strings"

	"ecomap/internal/api"
	"ecomap/internal/geopoint"
	"ecomap/internal/shared/geo"

	"github.com/gofiber/fiber/v2"
)

// PointEditor creates points on the backend.
type PointEditor interface {
	PlantTree(ctx context.Context, input api.TreeInput) (geopoint.Tree, error)
	RegisterOrganization(ctx context.Context, input api.OrganizationInput) (geopoint.Organization, error)
}

type markerView struct {
	Anchor  string            `json:"anchor"`
	PointID string            `json:"point_id"`
	Kind    geopoint.Kind     `json:"kind"`
	Point   geopoint.GeoPoint `json:"point"`
}

type selectionView struct {
	Selected     bool                   `json:"selected"`
	Organization *geopoint.Organization `json:"organization,omitempty"`
}

func currentSelection(rec *Reconciler) selectionView {
	org, ok := rec.Selected()
	if !ok {
		return selectionView{}
	}
	return selectionView{Selected: true, Organization: &org}
}

func RegisterRoutes(r fiber.Router, view *View, editor PointEditor, authMiddleware fiber.Handler) {
	rec := view.Reconciler()

	r.Post("/refresh", func(c *fiber.Ctx) error {
		if err := view.Load(c.UserContext()); err != nil {
			return fiber.NewError(fiber.StatusBadGateway, err.Error())
		}
		return c.JSON(fiber.Map{
			"organizations": len(rec.Markers(geopoint.KindOrganization)),
			"trees":         len(rec.Markers(geopoint.KindTree)),
		})
	})

	r.Get("/markers", func(c *fiber.Ctx) error {
		kinds := geopoint.Kinds
		if q := c.Query("kind"); q != "" {
			kind, err := geopoint.ParseKind(q)
			if err != nil {
				return fiber.NewError(fiber.StatusBadRequest, err.Error())
			}
			kinds = []geopoint.Kind{kind}
		}
		out := []markerView{}
		for _, kind := range kinds {
			for _, h := range rec.Markers(kind) {
				out = append(out, markerView{Anchor: h.Anchor(), PointID: h.PointID(), Kind: h.Kind(), Point: h.Point()})
			}
		}
		return c.JSON(out)
	})

	r.Put("/style", func(c *fiber.Ctx) error {
		var body struct {
			Style string `json:"style"`
		}
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		style, ok := ParseStyle(body.Style)
		if !ok {
			return fiber.NewError(fiber.StatusBadRequest, ErrUnknownStyle.Error())
		}
		if err := rec.SetStyle(style); err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(fiber.Map{"style": rec.Style()})
	})

	r.Post("/style/toggle", func(c *fiber.Ctx) error {
		style, err := rec.ToggleStyle()
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(fiber.Map{"style": style})
	})

	r.Post("/click", func(c *fiber.Ctx) error {
		var body struct {
			Anchor string `json:"anchor"`
		}
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		rec.Click(body.Anchor)
		return c.JSON(currentSelection(rec))
	})

	r.Get("/selection", func(c *fiber.Ctx) error {
		return c.JSON(currentSelection(rec))
	})

	r.Delete("/selection", func(c *fiber.Ctx) error {
		rec.ClearSelection()
		return c.SendStatus(fiber.StatusNoContent)
	})

	r.Get("/nearby", func(c *fiber.Ctx) error {
		lat, err := strconv.ParseFloat(c.Query("lat"), 64)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "lat required")
		}
		lng, err := strconv.ParseFloat(c.Query("lng"), 64)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "lng required")
		}
		radius, _ := strconv.ParseFloat(c.Query("radius_km"), 64)
		if radius == 0 {
			radius = 5
		}
		kind := geopoint.KindOrganization
		if q := c.Query("kind"); q != "" {
			if kind, err = geopoint.ParseKind(q); err != nil {
				return fiber.NewError(fiber.StatusBadRequest, err.Error())
			}
		}
		points, err := view.Nearby(lat, lng, radius, kind)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if points == nil {
			points = []NearbyPoint{}
		}
		return c.JSON(points)
	})

	r.Post("/trees", authMiddleware, func(c *fiber.Ctx) error {
		var input api.TreeInput
		if err := c.BodyParser(&input); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := geo.Validate(input.Latitude, input.Longitude); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		tree, err := editor.PlantTree(c.UserContext(), input)
		if err != nil {
			return fiber.NewError(fiber.StatusBadGateway, err.Error())
		}
		// the tree exists on the backend even when the reload fails
		refreshed := view.Refresh(c.UserContext(), geopoint.KindTree) == nil
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"tree": tree, "refreshed": refreshed})
	})

	r.Post("/orgs", authMiddleware, func(c *fiber.Ctx) error {
		var input api.OrganizationInput
		if err := c.BodyParser(&input); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		input.Name = strings.TrimSpace(input.Name)
		if input.Name == "" {
			return fiber.NewError(fiber.StatusBadRequest, "name required")
		}
		if err := geo.Validate(input.Latitude, input.Longitude); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		org, err := editor.RegisterOrganization(c.UserContext(), input)
		if err != nil {
			return fiber.NewError(fiber.StatusBadGateway, err.Error())
		}
		refreshed := view.Refresh(c.UserContext(), geopoint.KindOrganization) == nil
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"organization": org, "refreshed": refreshed})
	})
}
