package server

import (
	"time"

	"github.com/cabinet-cloud/cabinet/internal/controllers"
	"github.com/cabinet-cloud/cabinet/internal/middlewares"
	"github.com/cabinet-cloud/cabinet/internal/version"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

type HTTPServerDependencies struct {
	FilesController *controllers.FilesController
	JWTSecret       string

	// BodyLimit caps upload sizes, in bytes.
	BodyLimit int
}

func NewHTTPServer(deps HTTPServerDependencies) *fiber.App {
	cfg := fiber.Config{
		AppName: "cabinet-api",
	}
	if deps.BodyLimit > 0 {
		cfg.BodyLimit = deps.BodyLimit
	}

	router := fiber.New(cfg)

	router.Use(cors.New())
	router.Use(logger.New())

	// Health check endpoint (no authentication required)
	router.Get("/health", func(c fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status":    "healthy",
			"service":   "cabinet-api",
			"version":   version.GetVersion(),
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})

	files := router.Group("/files", middlewares.JWTAuth(deps.JWTSecret))

	files.Post("/upload", deps.FilesController.UploadFile)
	files.Post("/directory", deps.FilesController.CreateDirectory)
	files.Get("/", deps.FilesController.ListFiles)
	files.Get("/:uuid", deps.FilesController.GetNode)
	files.Get("/:uuid/breadcrumb", deps.FilesController.GetBreadcrumb)
	files.Get("/:uuid/download", deps.FilesController.GetDownloadURL)
	files.Get("/:uuid/download-zip", deps.FilesController.DownloadDirectoryAsZip)
	files.Patch("/:uuid/rename", deps.FilesController.Rename)
	files.Patch("/:uuid/move", deps.FilesController.Move)
	files.Delete("/:uuid", deps.FilesController.Delete)

	return router
}
