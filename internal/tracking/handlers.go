package tracking

import (
	"errors"
	"time"

	"backend-tripalarm/internal/shared/geo"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
)

var validate = validator.New()

// Devices looks up the device plumbing of a live navigation session.
type Devices interface {
	Device(sessionID string) (*Device, bool)
}

type fixRequest struct {
	Lat        float64   `json:"lat" validate:"gte=-90,lte=90"`
	Lng        float64   `json:"lng" validate:"gte=-180,lte=180"`
	AccuracyM  float64   `json:"accuracy_m" validate:"gte=0"`
	RecordedAt time.Time `json:"recorded_at"`
}

type permissionsRequest struct {
	Foreground Permission `json:"foreground" validate:"omitempty,oneof=granted denied undetermined"`
	Background Permission `json:"background" validate:"omitempty,oneof=granted denied undetermined"`
}

type lifecycleRequest struct {
	State string `json:"state" validate:"required,oneof=foreground background"`
}

func RegisterRoutes(r fiber.Router, devices Devices, rec *Recorder, authMiddleware fiber.Handler) {
	device := func(c *fiber.Ctx) (*Device, error) {
		d, ok := devices.Device(c.Params("id"))
		if !ok {
			return nil, fiber.NewError(fiber.StatusNotFound, "session not found")
		}
		return d, nil
	}

	r.Post("/sessions/:id/fixes", authMiddleware, func(c *fiber.Ctx) error {
		var req fixRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		d, err := device(c)
		if err != nil {
			return err
		}
		if req.RecordedAt.IsZero() {
			req.RecordedAt = time.Now()
		}
		fix := Fix{
			Position:   geo.GeoPoint{Lat: req.Lat, Lng: req.Lng},
			AccuracyM:  req.AccuracyM,
			RecordedAt: req.RecordedAt,
		}
		if err := d.Source.Push(fix); err != nil {
			return fiber.NewError(fiber.StatusConflict, err.Error())
		}
		return c.SendStatus(fiber.StatusAccepted)
	})

	r.Post("/sessions/:id/permissions", authMiddleware, func(c *fiber.Ctx) error {
		var req permissionsRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		d, err := device(c)
		if err != nil {
			return err
		}
		d.Permissions.Set(req.Foreground, req.Background)
		// a permission change is re-validated the same way as a foreground return
		_ = d.Tracker.OnForeground(c.Context())
		return c.JSON(fiber.Map{"tracker": d.Tracker.State()})
	})

	r.Post("/sessions/:id/lifecycle", authMiddleware, func(c *fiber.Ctx) error {
		var req lifecycleRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		d, err := device(c)
		if err != nil {
			return err
		}
		if req.State == "background" {
			d.Tracker.OnBackground()
		} else {
			_ = d.Tracker.OnForeground(c.Context())
		}
		return c.JSON(fiber.Map{"tracker": d.Tracker.State()})
	})

	if rec == nil {
		return
	}

	r.Get("/sessions/:id/summary", func(c *fiber.Ctx) error {
		summary, err := rec.Summary(c.Context(), c.Params("id"))
		if errors.Is(err, pgx.ErrNoRows) {
			return fiber.NewError(fiber.StatusNotFound, "session not found")
		}
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(summary)
	})

	r.Get("/sessions/:id/points", func(c *fiber.Ctx) error {
		points, err := rec.Points(c.Context(), c.Params("id"))
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(points)
	})
}
