package server

import (
	"context"

	"backend-tripalarm/internal/alarm"
	"backend-tripalarm/internal/auth"
	"backend-tripalarm/internal/config"
	"backend-tripalarm/internal/geocode"
	"backend-tripalarm/internal/navigation"
	"backend-tripalarm/internal/routing"
	"backend-tripalarm/internal/stream"
	"backend-tripalarm/internal/tracking"
	"backend-tripalarm/internal/trip"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

type Server struct {
	App        *fiber.App
	Cfg        config.Config
	DB         *pgxpool.Pool
	Redis      *redis.Client
	Stream     *stream.Hub
	Devices    *tracking.Registry
	Geocoder   *geocode.Client
	Navigation *navigation.Manager
}

func NewServer(cfg config.Config, db *pgxpool.Pool, redisClient *redis.Client) *Server {
	app := fiber.New()
	app.Use(recover.New())
	app.Use(logger.New())

	s := &Server{
		App:     app,
		Cfg:     cfg,
		DB:      db,
		Redis:   redisClient,
		Stream:  stream.NewHub(redisClient),
		Devices: tracking.NewRegistry(),
	}
	s.Geocoder = geocode.NewClient(cfg.GeocoderURL, cfg.GeocoderTimeout(), redisClient, cfg.GeocodeCacheTTL())

	var (
		plans    navigation.PlanSource
		recorder *tracking.Recorder
	)
	if db != nil {
		plans = trip.NewService(db)
		recorder = tracking.NewRecorder(db, s.Stream)
	}

	instance := cfg.InstanceID
	if instance == "" {
		instance = uuid.NewString()
	}

	s.Navigation = navigation.NewManager(
		navigation.Config{
			Tracker: tracking.Options{
				MinDistanceMeters: cfg.TrackerMinDistanceM,
				DesiredAccuracy:   tracking.Accuracy(cfg.TrackerAccuracy),
			},
			DebounceFixes:          cfg.DeviationDebounceFixes,
			CorridorWidthMeters:    cfg.CorridorWidthM,
			CheckpointRadiusMeters: cfg.CheckpointRadiusM,
			Retention:              cfg.SessionRetention(),
		},
		plans,
		routing.NewResolver(cfg.DirectionsURL, cfg.DirectionsTimeout()),
		s.Devices,
		s.Stream,
		recorder,
		s.Geocoder,
		alarm.NewBackground(alarm.NewRedisRegistrar(redisClient, instance)),
	)
	s.Stream.SetGreeter(s.Navigation.Greeting)

	registerRoutes(s, recorder)
	return s
}

func registerRoutes(s *Server, recorder *tracking.Recorder) {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	jwtMiddleware := auth.JWTMiddleware(s.Cfg.JWTSecret)

	trip.RegisterRoutes(s.App.Group("/saved-routes"), trip.NewService(s.DB), jwtMiddleware)
	navigation.RegisterRoutes(s.App.Group("/navigation"), s.Navigation, jwtMiddleware)
	tracking.RegisterRoutes(s.App.Group("/tracking"), s.Devices, recorder, jwtMiddleware)
	geocode.RegisterRoutes(s.App.Group("/geocode"), s.Geocoder)
	stream.RegisterRoutes(s.App.Group("/stream"), s.Stream)
}

// Close cancels live navigation sessions and stops the stream fan-out.
func (s *Server) Close(ctx context.Context) {
	s.Navigation.Shutdown(ctx)
	s.Stream.Close()
}
