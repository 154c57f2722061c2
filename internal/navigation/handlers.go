package navigation

import (
	"errors"

	"backend-tripalarm/internal/trip"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
)

var validate = validator.New()

type stopRequest struct {
	DragDistance float64 `json:"drag_distance" validate:"gte=0"`
	TrackLength  float64 `json:"track_length" validate:"gt=0"`
}

func RegisterRoutes(r fiber.Router, m *Manager, authMiddleware fiber.Handler) {
	engine := func(c *fiber.Ctx) (*Engine, error) {
		e, ok := m.Get(c.Params("id"))
		if !ok {
			return nil, fiber.NewError(fiber.StatusNotFound, ErrNotFound.Error())
		}
		return e, nil
	}

	r.Post("/sessions", authMiddleware, func(c *fiber.Ctx) error {
		var req CreateRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		userID, _ := c.Locals("user_id").(string)
		e, err := m.Create(c.Context(), req, userID)
		switch {
		case errors.Is(err, ErrInvalidPlan), errors.Is(err, trip.ErrInvalidPlan):
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		case errors.Is(err, pgx.ErrNoRows):
			return fiber.NewError(fiber.StatusNotFound, "saved route not found")
		case err != nil:
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.Status(fiber.StatusCreated).JSON(e.Snapshot())
	})

	r.Get("/sessions/:id", func(c *fiber.Ctx) error {
		e, err := engine(c)
		if err != nil {
			return err
		}
		return c.JSON(e.Snapshot())
	})

	r.Post("/sessions/:id/stop", authMiddleware, func(c *fiber.Ctx) error {
		var req stopRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		e, err := engine(c)
		if err != nil {
			return err
		}
		g, err := e.Stop(c.Context(), req.DragDistance, req.TrackLength)
		if err != nil {
			return commandError(err)
		}
		if g.SpringBack {
			return c.Status(fiber.StatusConflict).JSON(g)
		}
		return c.JSON(e.Snapshot())
	})

	command := func(fn func(*Engine, *fiber.Ctx) error) fiber.Handler {
		return func(c *fiber.Ctx) error {
			e, err := engine(c)
			if err != nil {
				return err
			}
			if err := fn(e, c); err != nil {
				return commandError(err)
			}
			return c.JSON(e.Snapshot())
		}
	}

	r.Post("/sessions/:id/end", authMiddleware, command(func(e *Engine, c *fiber.Ctx) error {
		return e.End(c.Context())
	}))
	r.Post("/sessions/:id/cancel", authMiddleware, command(func(e *Engine, c *fiber.Ctx) error {
		return e.Cancel(c.Context())
	}))
	r.Post("/sessions/:id/deviation/dismiss", authMiddleware, command(func(e *Engine, c *fiber.Ctx) error {
		return e.DismissDeviation(c.Context())
	}))
}

func commandError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrSessionEnded):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	default:
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
}
