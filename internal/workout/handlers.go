package workout

import (
	"errors"
	"time"

	"backend-pushup/internal/auth"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Use(authMiddleware)

	r.Get("/", func(c *fiber.Ctx) error {
		athleteID := auth.AthleteID(c)
		from, to := c.Query("from"), c.Query("to")
		if from == "" && to == "" {
			list, err := svc.List(c.Context(), athleteID)
			if err != nil {
				return fiber.NewError(fiber.StatusInternalServerError, err.Error())
			}
			return c.JSON(list)
		}

		start, err := time.Parse(time.RFC3339, from)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "from must be RFC3339")
		}
		end, err := time.Parse(time.RFC3339, to)
		if err != nil || !end.After(start) {
			return fiber.NewError(fiber.StatusBadRequest, "to must be RFC3339 and after from")
		}
		list, err := svc.ListRange(c.Context(), athleteID, start, end)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(list)
	})

	r.Post("/", func(c *fiber.Ctx) error {
		var req Workout
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		req.AthleteID = auth.AthleteID(c)
		w, err := svc.Create(c.Context(), req)
		if errors.Is(err, ErrInvalidReps) {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.Status(fiber.StatusCreated).JSON(w)
	})

	r.Delete("/", func(c *fiber.Ctx) error {
		n, err := svc.DeleteAll(c.Context(), auth.AthleteID(c))
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(fiber.Map{"deleted": n})
	})

	r.Get("/week", func(c *fiber.Ctx) error {
		loc := time.UTC
		if tz := c.Query("tz"); tz != "" {
			l, err := time.LoadLocation(tz)
			if err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "unknown tz")
			}
			loc = l
		}
		week, err := svc.Week(c.Context(), auth.AthleteID(c), time.Now().In(loc))
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(week)
	})
}
