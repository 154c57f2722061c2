package trip

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
)

func TestSavedRouteHandlers(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectQuery(`INSERT INTO saved_routes`).
		WithArgs(pgxmock.AnyArg(), "user-1", "Commute", 106.8, -6.2, 106.9, -6.3, "bell", true, 300).
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(time.Now()))
	mock.ExpectExec(`INSERT INTO saved_route_checkpoints`).
		WithArgs(pgxmock.AnyArg(), 0, 106.85, -6.25).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery(`FROM saved_routes WHERE id`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec(`DELETE FROM saved_routes`).
		WithArgs("r1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	app := fiber.New()
	RegisterRoutes(app.Group("/saved-routes"), NewService(mock), func(c *fiber.Ctx) error { return c.Next() })

	body, _ := json.Marshal(samplePlan())
	req := httptest.NewRequest(http.MethodPost, "/saved-routes/", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil || resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status: %v %v", err, resp.StatusCode)
	}

	req = httptest.NewRequest(http.MethodGet, "/saved-routes/id/missing", nil)
	resp, err = app.Test(req)
	if err != nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing status: %v %v", err, resp.StatusCode)
	}

	req = httptest.NewRequest(http.MethodGet, "/saved-routes/", nil)
	resp, err = app.Test(req)
	if err != nil || resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("list without user status: %v %v", err, resp.StatusCode)
	}

	req = httptest.NewRequest(http.MethodDelete, "/saved-routes/id/r1", nil)
	resp, err = app.Test(req)
	if err != nil || resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status: %v %v", err, resp.StatusCode)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreatePlanRejectsInvalidBody(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	app := fiber.New()
	RegisterRoutes(app.Group("/saved-routes"), NewService(mock), func(c *fiber.Ctx) error { return c.Next() })

	body, _ := json.Marshal(map[string]any{"user_id": "user-1", "origin": map[string]float64{"lat": 1, "lng": 1}})
	req := httptest.NewRequest(http.MethodPost, "/saved-routes/", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil || resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v %v", err, resp.StatusCode)
	}
}
