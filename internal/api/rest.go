package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/hbomb79/Mediadesk/internal/api/collections"
	"github.com/hbomb79/Mediadesk/internal/api/downloads"
	"github.com/hbomb79/Mediadesk/internal/api/edits"
	"github.com/hbomb79/Mediadesk/internal/api/ingests"
	"github.com/hbomb79/Mediadesk/internal/api/medias"
	"github.com/hbomb79/Mediadesk/internal/api/pages"
	"github.com/hbomb79/Mediadesk/internal/editor"
	"github.com/hbomb79/Mediadesk/internal/http/websocket"
	"github.com/hbomb79/Mediadesk/internal/ingest"
	"github.com/hbomb79/Mediadesk/internal/media"
	"github.com/hbomb79/Mediadesk/internal/metrics"
	"github.com/hbomb79/Mediadesk/pkg/logger"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	gommonlog "github.com/labstack/gommon/log"
)

var log = logger.Get("API")

const apiBasePath = "/api/mediadesk/v1"

type (
	RestConfig struct {
		HostAddr           string `yaml:"host_address" env:"API_HOST_ADDR" env-default:"0.0.0.0:8080"`
		RateLimitPerMinute int    `yaml:"rate_limit_per_minute" env:"API_RATE_LIMIT_PER_MINUTE" env-default:"600"`
		RequestLogging     bool   `yaml:"request_logging" env:"API_REQUEST_LOGGING" env-default:"true"`
	}

	controller interface {
		SetRoutes(*echo.Group)
	}

	DownloadService interface {
		medias.DownloadService
		downloads.Service
	}

	EditorService interface {
		edits.Service
		Record(id int64) (*editor.Record, error)
	}

	// Services is the union of every service the gateway exposes.
	Services struct {
		Ingests     ingests.Service
		Downloads   DownloadService
		Media       medias.Service
		Pages       pages.Service
		Collections collections.Service
		Editor      EditorService
		Metrics     *metrics.Metrics
	}

	// The RestGateway is a thin-wrapper around the Echo HTTP router. Its sole
	// responsibility is to create the routes Mediadesk exposes, and to manage the
	// activity socket which pushes updates to connected clients.
	RestGateway struct {
		*broadcaster
		config *RestConfig
		ec     *echo.Echo
		socket *websocket.SocketHub
	}
)

// NewRestGateway constructs the Echo router and populates it with all the
// routes defined by the various controllers. Files beneath the static root
// (the storage root) are served at the top level of the router.
func NewRestGateway(config *RestConfig, services Services, validate *validator.Validate, staticRoot string) *RestGateway {
	ec := echo.New()
	ec.OnAddRouteHandler = func(host string, route echo.Route, handler echo.HandlerFunc, middleware []echo.MiddlewareFunc) {
		log.Emit(logger.DEBUG, "Registered new route %s %s\n", route.Method, route.Path)
	}
	ec.HidePort = true
	ec.HideBanner = true
	ec.Logger.SetLevel(gommonlog.WARN)
	ec.HTTPErrorHandler = httpErrorHandler(ec.DefaultHTTPErrorHandler)

	socket := websocket.New()
	gateway := &RestGateway{
		broadcaster: newBroadcaster(socket, services),
		config:      config,
		ec:          ec,
		socket:      socket,
	}
	gateway.bindSocketCommands(services)

	if config.RequestLogging {
		ec.Use(middleware.Logger())
	}
	ec.Use(middleware.Recover())
	if config.RateLimitPerMinute > 0 {
		ec.Use(echo.WrapMiddleware(httprate.LimitByIP(config.RateLimitPerMinute, time.Minute)))
	}
	ec.Pre(middleware.AddTrailingSlashWithConfig(middleware.TrailingSlashConfig{
		Skipper: func(c echo.Context) bool { return !strings.HasPrefix(c.Request().URL.Path, apiBasePath) },
	}))

	if services.Metrics != nil {
		ec.GET("/metrics", echo.WrapHandler(services.Metrics.Handler()))
		ec.GET("/metrics/", echo.WrapHandler(services.Metrics.Handler()))
	}

	ec.GET(apiBasePath+"/activity/ws/", func(ec echo.Context) error {
		gateway.socket.UpgradeToSocket(ec.Response(), ec.Request())
		return nil
	})

	routes := map[string]controller{
		"/videos":      medias.New(validate, media.Video, services.Media, services.Downloads),
		"/audio":       medias.New(validate, media.Audio, services.Media, services.Downloads),
		"/pages":       pages.New(validate, services.Pages),
		"/collections": collections.New(validate, services.Collections),
		"/editor":      edits.New(services.Editor),
		"/downloads":   downloads.New(services.Downloads),
		"/ingests":     ingests.New(services.Ingests),
	}
	for prefix, controller := range routes {
		controller.SetRoutes(ec.Group(apiBasePath + prefix))
	}

	if staticRoot != "" {
		ec.Static("/", staticRoot)
	}

	return gateway
}

// ServeHTTP allows the gateway to be driven directly (e.g. by httptest).
func (gateway *RestGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	gateway.ec.ServeHTTP(w, r)
}

func (gateway *RestGateway) Run(parentCtx context.Context) error {
	ctx, ctxCancel := context.WithCancelCause(parentCtx)
	wg := &sync.WaitGroup{}

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Emit(logger.NEW, "Starting HTTP server on %s\n", gateway.config.HostAddr)
		if err := gateway.ec.Start(gateway.config.HostAddr); err != nil && err != http.ErrServerClosed {
			ctxCancel(err)
		}
	}()

	go func(ec *echo.Echo) {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := ec.Shutdown(shutdownCtx); err != nil {
			log.Emit(logger.WARNING, "HTTP server did not shutdown cleanly: %v\n", err)
		}
	}(gateway.ec)

	wg.Add(1)
	go func() {
		defer wg.Done()
		gateway.socket.Start(ctx)
	}()

	wg.Wait()

	// Return cancellation cause if any, otherwise nil as parent context
	// cancellation is not an error case we should report.
	if cause := context.Cause(ctx); cause != ctx.Err() {
		return cause
	}

	return nil
}

// bindSocketCommands allows clients of the activity socket to request the
// current state of the in-memory resources, which is also sent to them as
// part of the welcome message.
func (gateway *RestGateway) bindSocketCommands(services Services) {
	state := func() map[string]any {
		return map[string]any{
			"downloads": services.Downloads.Batches(),
			"ingests":   services.Ingests.GetAllIngests(),
		}
	}

	gateway.socket.WithConnectionCallback(state)
	gateway.socket.BindCommand("DOWNLOADS_INDEX", func(hub *websocket.SocketHub, message *websocket.SocketMessage) error {
		hub.Send(message.FormReply("COMMAND_SUCCESS", map[string]any{"payload": services.Downloads.Batches()}, websocket.Response))
		return nil
	})
	gateway.socket.BindCommand("INGESTS_INDEX", func(hub *websocket.SocketHub, message *websocket.SocketMessage) error {
		hub.Send(message.FormReply("COMMAND_SUCCESS", map[string]any{"payload": services.Ingests.GetAllIngests()}, websocket.Response))
		return nil
	})
	gateway.socket.BindCommand("INGEST_DETAILS", func(hub *websocket.SocketHub, message *websocket.SocketMessage) error {
		if err := message.ValidateArguments(map[string]string{"id": "string"}); err != nil {
			return err
		}

		id, err := uuid.Parse(message.Body["id"].(string))
		if err != nil {
			return err
		}

		item := services.Ingests.GetIngest(id)
		if item == nil {
			return fmt.Errorf("%w: %s", ingest.ErrIngestNotFound, id)
		}

		hub.Send(message.FormReply("COMMAND_SUCCESS", map[string]any{"payload": item}, websocket.Response))
		return nil
	})
}
