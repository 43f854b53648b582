package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/codebuildervaibhav/memo-transcriber/internal/queue"
)

// JobsHandler exposes the job registry
type JobsHandler struct {
	registry *queue.Registry
}

// NewJobsHandler creates a jobs handler
func NewJobsHandler(registry *queue.Registry) *JobsHandler {
	return &JobsHandler{registry: registry}
}

// List returns all tracked jobs, newest first
func (h *JobsHandler) List(c *fiber.Ctx) error {
	jobs := h.registry.List()
	if status := c.Query("status"); status != "" {
		filtered := jobs[:0]
		for _, j := range jobs {
			if j.Status == status {
				filtered = append(filtered, j)
			}
		}
		jobs = filtered
	}
	return c.JSON(fiber.Map{
		"count": len(jobs),
		"jobs":  jobs,
	})
}

// Get returns one job including its result once completed
func (h *JobsHandler) Get(c *fiber.Ctx) error {
	job, ok := h.registry.Get(c.Params("id"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Job not found",
			"code":  "ERR_JOB_NOT_FOUND",
		})
	}
	return c.JSON(job)
}
