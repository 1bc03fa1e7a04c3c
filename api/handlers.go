package api

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/brookhq/brook/pkg/storage"
	"github.com/brookhq/brook/pkg/utils"
)

const (
	defaultListLimit = 50

	// previewLen caps the prompt and reply text in list responses. The
	// full text stays available on the single-transcript route.
	previewLen = 120
)

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

// handleListTranscripts returns recorded streams, newest first. The
// limit query parameter caps the result count (default 50, 0 for all).
func (s *Server) handleListTranscripts(c *fiber.Ctx) error {
	limit := defaultListLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid limit parameter"})
		}
		limit = parsed
	}

	transcripts, err := s.driver.List(c.Context(), limit)
	if err != nil {
		s.log.Error("listing transcripts", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to list transcripts"})
	}

	previews := make([]*storage.Transcript, len(transcripts))
	for i, t := range transcripts {
		p := *t
		p.Prompt = utils.Truncate(t.Prompt, previewLen)
		p.Reply = utils.Truncate(t.Reply, previewLen)
		previews[i] = &p
	}

	return c.JSON(fiber.Map{
		"count":       len(previews),
		"transcripts": previews,
	})
}

// handleGetTranscript returns a single recorded stream by its stream ID.
func (s *Server) handleGetTranscript(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "id parameter required"})
	}

	transcript, err := s.driver.Get(c.Context(), id)
	if err != nil {
		var notFound storage.ErrNotFound
		if errors.As(err, &notFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "transcript not found"})
		}
		s.log.Error("getting transcript", "id", id, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to get transcript"})
	}

	return c.JSON(transcript)
}

// handleStats returns aggregate counts over recorded streams.
func (s *Server) handleStats(c *fiber.Ctx) error {
	transcripts, err := s.driver.List(c.Context(), 0)
	if err != nil {
		s.log.Error("listing transcripts", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to list transcripts"})
	}

	var failed, tokens int
	for _, t := range transcripts {
		if t.Err != "" {
			failed++
		}
		tokens += t.TokenCount
	}

	return c.JSON(fiber.Map{
		"total_streams":  len(transcripts),
		"failed_streams": failed,
		"total_tokens":   tokens,
	})
}
