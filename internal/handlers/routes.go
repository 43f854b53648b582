package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/codebuildervaibhav/memo-transcriber/internal/logging"
)

// Set groups the handlers mounted on the HTTP server
type Set struct {
	Upload  *UploadHandler
	Files   *FilesHandler
	Uploads *UploadsHandler
	Jobs    *JobsHandler
	GDrive  *GDriveHandler
	Events  *EventsHandler
	Logs    *logging.LogBuffer
}

// Mount registers every route on app
func Mount(app *fiber.App, h Set) {
	app.Get("/", Root)
	app.Get("/health", Health)

	api := app.Group("/api")
	api.Post("/upload", h.Upload.Handle)
	api.Get("/files", h.Files.List)
	if h.Uploads != nil {
		api.Get("/uploads", h.Uploads.List)
	}
	api.Get("/jobs", h.Jobs.List)
	api.Get("/jobs/:id", h.Jobs.Get)
	if h.GDrive != nil {
		api.Post("/import/gdrive", h.GDrive.Handle)
	}

	if h.Events != nil {
		app.Use("/ws/jobs", h.Events.Upgrade)
		app.Get("/ws/jobs", websocket.New(h.Events.Handle))
	}
	if h.Logs != nil {
		app.Get("/logs", Logs(h.Logs))
	}
}
