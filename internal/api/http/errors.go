package httpapi

import (
	"context"
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/agroclimate/internal/climate"
	"github.com/i474232898/agroclimate/internal/geo"
)

const localSource = "source"

// errorResponse is the failure envelope shared by every endpoint.
type errorResponse struct {
	Success bool                   `json:"success"`
	Error   string                 `json:"error"`
	Source  string                 `json:"source,omitempty"`
	Debug   map[string]interface{} `json:"debug,omitempty"`
}

// ErrorHandler renders errors returned by handlers as JSON envelopes with a
// status derived from the error type.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code, resp := classify(err)
	if src, ok := c.Locals(localSource).(climate.SourceKind); ok && resp.Source == "" {
		resp.Source = string(src)
	}
	if code >= fiber.StatusInternalServerError {
		log.Printf("ERROR: %s %s: %v", c.Method(), c.Path(), err)
	}
	return c.Status(code).JSON(resp)
}

func classify(err error) (int, errorResponse) {
	resp := errorResponse{Error: err.Error()}

	var (
		fe   *fiber.Error
		verr *climate.ValidationError
		cerr *climate.CapabilityError
		uerr *climate.UpstreamError
		kerr *climate.ChunkError
	)

	if errors.As(err, &kerr) {
		resp.Debug = map[string]interface{}{
			"chunk":      kerr.Index + 1,
			"chunkRange": kerr.Range.String(),
		}
	}

	switch {
	case errors.As(err, &fe):
		return fe.Code, resp
	case errors.Is(err, climate.ErrAllSourcesFailed):
		// Per-source errors are already in the message.
		return fiber.StatusBadGateway, resp
	case errors.As(err, &verr):
		resp.Error = verr.Message
		if verr.Field != "" {
			resp.Debug = map[string]interface{}{"field": verr.Field}
		}
		return fiber.StatusBadRequest, resp
	case errors.As(err, &cerr):
		resp.Source = string(cerr.Source)
		return fiber.StatusUnprocessableEntity, resp
	case errors.As(err, &uerr):
		resp.Source = string(uerr.Source)
		if resp.Debug == nil {
			resp.Debug = map[string]interface{}{}
		}
		if uerr.StatusCode != 0 {
			resp.Debug["statusCode"] = uerr.StatusCode
		}
		if uerr.Body != "" {
			resp.Debug["body"] = uerr.Body
		}
		return fiber.StatusBadGateway, resp
	case errors.Is(err, climate.ErrUnknownSource):
		return fiber.StatusBadRequest, resp
	case errors.Is(err, geo.ErrInvalidPostalCode):
		return fiber.StatusBadRequest, resp
	case errors.Is(err, geo.ErrPostalCodeNotFound):
		return fiber.StatusNotFound, resp
	case errors.Is(err, geo.ErrNotConfigured):
		return fiber.StatusServiceUnavailable, resp
	case errors.Is(err, context.DeadlineExceeded):
		resp.Error = "upstream request timed out"
		return fiber.StatusGatewayTimeout, resp
	}

	resp.Error = "internal server error"
	return fiber.StatusInternalServerError, resp
}
