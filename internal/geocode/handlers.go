package geocode

import (
	"errors"

	"backend-tripalarm/internal/shared/geo"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, client *Client) {
	r.Get("/reverse", func(c *fiber.Ctx) error {
		p := geo.GeoPoint{Lat: c.QueryFloat("lat"), Lng: c.QueryFloat("lng")}
		if !p.Valid() {
			return fiber.NewError(fiber.StatusBadRequest, geo.ErrInvalidCoordinate.Error())
		}
		return c.JSON(fiber.Map{"label": client.Label(c.Context(), p)})
	})

	r.Get("/search", func(c *fiber.Ctx) error {
		q := c.Query("q")
		if q == "" {
			return fiber.NewError(fiber.StatusBadRequest, "q required")
		}
		p, label, err := client.Search(c.Context(), q)
		if errors.Is(err, ErrNotFound) {
			return fiber.NewError(fiber.StatusNotFound, err.Error())
		}
		if err != nil {
			return fiber.NewError(fiber.StatusBadGateway, err.Error())
		}
		return c.JSON(fiber.Map{"lat": p.Lat, "lng": p.Lng, "label": label})
	})
}
