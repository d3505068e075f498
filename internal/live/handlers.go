package live

import (
	"errors"
	"strconv"
	"time"

	"backend-pushup/internal/auth"
	"backend-pushup/internal/pose"
	"backend-pushup/internal/session"

	"github.com/gofiber/fiber/v2"
)

const HeaderFrameTimestamp = "X-Frame-Timestamp"

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Post("/", authMiddleware, func(c *fiber.Ctx) error {
		var req StartRequest
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&req); err != nil {
				return fiber.NewError(fiber.StatusBadRequest, err.Error())
			}
		}
		started, err := svc.StartSession(c.Context(), auth.AthleteID(c), req)
		if err != nil {
			return httpError(err)
		}
		return c.Status(fiber.StatusCreated).JSON(started)
	})

	r.Post("/:id/frames", authMiddleware, func(c *fiber.Ctx) error {
		if len(c.Body()) == 0 {
			return fiber.NewError(fiber.StatusBadRequest, pose.ErrEmptyPayload.Error())
		}
		ts, err := parseFrameTimestamp(c.Get(HeaderFrameTimestamp))
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		frame := pose.Frame{
			// fiber reuses the request buffer once the handler returns
			Data:        append([]byte(nil), c.Body()...),
			ContentType: c.Get(fiber.HeaderContentType),
			Timestamp:   ts,
		}
		res, err := svc.SubmitFrame(auth.AthleteID(c), c.Params("id"), frame)
		if err != nil {
			return httpError(err)
		}
		return c.Status(fiber.StatusAccepted).JSON(res)
	})

	r.Post("/:id/observations", authMiddleware, func(c *fiber.Ctx) error {
		var obs pose.Observation
		if err := c.BodyParser(&obs); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := obs.Validate(); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		snap, err := svc.SubmitObservation(auth.AthleteID(c), c.Params("id"), obs)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(snap)
	})

	r.Get("/:id", func(c *fiber.Ctx) error {
		snap, err := svc.Snapshot(c.Context(), c.Params("id"))
		if err != nil {
			return httpError(err)
		}
		return c.JSON(snap)
	})

	r.Post("/:id/stop", authMiddleware, func(c *fiber.Ctx) error {
		res, err := svc.StopSession(c.Context(), auth.AthleteID(c), c.Params("id"))
		if err != nil {
			return httpError(err)
		}
		return c.JSON(res)
	})
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrSessionNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, ErrNotOwner):
		return fiber.NewError(fiber.StatusForbidden, err.Error())
	case errors.Is(err, session.ErrInvalidConfig):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, session.ErrNotRunning):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	default:
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
}

// parseFrameTimestamp accepts RFC3339 or unix milliseconds. An empty value
// yields the zero time, which the controller replaces with its clock.
func parseFrameTimestamp(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.UnixMilli(ms), nil
	}
	ts, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, errors.New("X-Frame-Timestamp must be RFC3339 or unix milliseconds")
	}
	return ts, nil
}
