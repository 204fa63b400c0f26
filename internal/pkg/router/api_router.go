package router

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/velora-app/velora/app/controllers"
	"github.com/velora-app/velora/internal/pkg/middleware"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api")
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	api.Get("/me", middleware.RequireAuth, controllers.HandleMe)

	// Payment processor callbacks. The webhook stays outside the limiter;
	// the processor retries aggressively and dropped deliveries mean lost
	// billing state.
	stripe := api.Group("/stripe")
	stripe.Post("/webhook", controllers.HandleStripeWebhook)
	stripe.Post("/create-checkout", middleware.RequireAuth, controllers.HandleCreateCheckout)
	stripe.Post("/create-portal", middleware.RequireAuth, controllers.HandleCreatePortal)

	// Affiliate program routes.
	affiliate := api.Group("/affiliate")
	affiliate.Post("/join", middleware.RequireAuth, controllers.HandleJoinAffiliateProgram)
	affiliate.Get("/stats", middleware.RequireAuth, controllers.HandleAffiliateStats)
	affiliate.Post("/track", middleware.RequireAuth, controllers.HandleTrackReferral)
	affiliate.Get("/code/:code", limiter.New(limiter.Config{
		Max:        30,
		Expiration: 1 * time.Minute,
	}), controllers.HandleResolveReferralCode)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
