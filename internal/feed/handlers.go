package feed

import (
	"errors"

	"ecomap/internal/session"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, store *Store, sess *session.Provider, authMiddleware fiber.Handler) {
	r.Post("/refresh", func(c *fiber.Ctx) error {
		if err := store.Load(c.UserContext()); err != nil {
			return fiber.NewError(fiber.StatusBadGateway, err.Error())
		}
		return c.JSON(store.Posts(sess.Current().UserID))
	})

	r.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(store.Posts(sess.Current().UserID))
	})

	r.Post("/posts/:id/like", authMiddleware, func(c *fiber.Ctx) error {
		view, accepted, err := store.LikeToggle(sess.Current(), c.Params("id"))
		if err != nil {
			return toHTTPError(err)
		}
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"accepted": accepted, "post": view})
	})

	r.Get("/posts/:id/comments", func(c *fiber.Ctx) error {
		comments, err := store.Comments(c.UserContext(), c.Params("id"))
		if err != nil {
			return fiber.NewError(fiber.StatusBadGateway, err.Error())
		}
		return c.JSON(comments)
	})

	r.Post("/posts/:id/comments", authMiddleware, func(c *fiber.Ctx) error {
		var body struct {
			Content string `json:"content"`
		}
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		comment, err := store.SubmitComment(c.UserContext(), sess.Current(), c.Params("id"), body.Content)
		if err != nil {
			return toHTTPError(err)
		}
		return c.Status(fiber.StatusCreated).JSON(comment)
	})
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, session.ErrLoading), errors.Is(err, session.ErrUnauthenticated):
		return fiber.NewError(fiber.StatusUnauthorized, err.Error())
	case errors.Is(err, ErrEmptyComment):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, ErrPostNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	}
	return fiber.NewError(fiber.StatusBadGateway, err.Error())
}
