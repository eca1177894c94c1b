package server

import (
	"context"
	"encoding/json"
	"log"

	"ecomap/internal/api"
	"ecomap/internal/config"
	"ecomap/internal/feed"
	"ecomap/internal/follow"
	"ecomap/internal/mapview"
	"ecomap/internal/metrics"
	"ecomap/internal/notice"
	"ecomap/internal/session"
	"ecomap/internal/shared/geo"
	"ecomap/internal/stream"
	"ecomap/internal/surface"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

const recentNotices = 50

type Server struct {
	App      *fiber.App
	Cfg      config.Config
	Redis    *redis.Client
	Stream   *stream.Hub
	Registry *prometheus.Registry
	Notices  *notice.Buffer
	Session  *session.Provider
	Client   *api.Client
	Map      *mapview.View
	Remote   *surface.Remote
	Follow   *follow.Store
	Feed     *feed.Store
}

type selectionEvent struct {
	Type           string `json:"type"`
	Selected       bool   `json:"selected"`
	OrganizationID string `json:"organization_id,omitempty"`
}

func NewServer(cfg config.Config, redisClient *redis.Client) *Server {
	if cfg.ViewID == "" {
		cfg.ViewID = "main"
	}

	app := fiber.New()
	app.Use(recover.New())
	app.Use(logger.New())

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	hub := stream.NewHub(redisClient)
	buffer := notice.NewBuffer(recentNotices)
	sink := notice.Multi(notice.Log, buffer, notice.Broadcast(func(payload []byte) {
		hub.Broadcast(cfg.ViewID, payload)
	}))

	sess := session.NewProvider(cfg.JWTSecret)
	client := api.New(cfg.BackendURL, cfg.RequestTimeout, sess.Token)

	rec := mapview.NewReconciler(mapview.Options{
		Center:    geo.LngLat{cfg.MapCenterLng, cfg.MapCenterLat},
		Zoom:      cfg.MapZoom,
		Styles:    mapview.StyleURLs(cfg.MapTilerKey),
		TreeColor: cfg.TreeMarkerColor,
		Metrics:   m,
	})
	remote := surface.NewRemote(cfg.ViewID, hub, func(anchor string) {
		orgID, ok := rec.Click(anchor)
		payload, err := json.Marshal(selectionEvent{Type: "selection", Selected: ok, OrganizationID: orgID})
		if err != nil {
			log.Printf("selection encode error: %v", err)
			return
		}
		hub.Broadcast(cfg.ViewID, payload)
	})
	hub.SetListener(remote)
	if err := rec.Mount(remote); err != nil {
		log.Printf("map mount failed: %v", err)
	}

	follows := follow.NewStore(client, follow.Options{Timeout: cfg.RequestTimeout, Notices: sink, Metrics: m})
	view := mapview.NewView(rec, client, mapview.ViewOptions{
		Notices: sink,
		Metrics: m,
		Hooks:   []mapview.SnapshotHook{follows.Sync},
	})
	posts := feed.NewStore(client, feed.Options{Timeout: cfg.RequestTimeout, Notices: sink, Metrics: m})

	s := &Server{
		App:      app,
		Cfg:      cfg,
		Redis:    redisClient,
		Stream:   hub,
		Registry: reg,
		Notices:  buffer,
		Session:  sess,
		Client:   client,
		Map:      view,
		Remote:   remote,
		Follow:   follows,
		Feed:     posts,
	}

	registerRoutes(s)
	return s
}

func registerRoutes(s *Server) {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "session": s.Session.Current()})
	})
	s.App.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(s.Registry, promhttp.HandlerOpts{})))
	s.App.Get("/notices", func(c *fiber.Ctx) error {
		return c.JSON(s.Notices.Recent())
	})

	requireSession := session.Require(s.Session)

	session.RegisterRoutes(s.App.Group("/session"), s.Session)
	mapview.RegisterRoutes(s.App.Group("/map"), s.Map, s.Client, requireSession)
	feed.RegisterRoutes(s.App.Group("/feed"), s.Feed, s.Session, requireSession)
	follow.RegisterRoutes(s.App.Group("/orgs"), s.Follow, s.Session, requireSession)
	stream.RegisterRoutes(s.App.Group("/stream"), s.Stream)
}

// Bootstrap resolves the configured session and performs the initial map and
// feed loads. Load failures are logged and leave the view empty.
func (s *Server) Bootstrap(ctx context.Context) {
	s.Session.Begin()
	if s.Cfg.SessionToken != "" {
		if _, err := s.Session.SignIn(s.Cfg.SessionToken); err != nil {
			log.Printf("configured session rejected: %v", err)
			s.Session.SignOut()
		}
	} else {
		s.Session.SignOut()
	}

	if err := s.Map.Load(ctx); err != nil {
		log.Printf("initial map load: %v", err)
	}
	if err := s.Feed.Load(ctx); err != nil {
		log.Printf("initial feed load: %v", err)
	}
}

func (s *Server) Close() {
	s.Stream.Close()
}
