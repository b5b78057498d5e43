package handler

import (
	"context"
	"database/sql"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const readinessTimeout = 2 * time.Second

// BusStatus exposes broker connectivity for readiness checks.
type BusStatus interface {
	IsConnected() bool
}

func RegisterHealthRoutes(app fiber.Router, sqlDB *sql.DB, rdb *redis.Client, bus BusStatus) {
	app.Get("/livez", LivezHandler())
	app.Get("/readyz", ReadyzHandler(sqlDB, rdb, bus))
}

func LivezHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status": "ok",
		})
	}
}

func ReadyzHandler(sqlDB *sql.DB, rdb *redis.Client, bus BusStatus) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.Context(), readinessTimeout)
		defer cancel()

		pgErr := sqlDB.PingContext(ctx)
		redisErr := rdb.Ping(ctx).Err()
		busUp := bus != nil && bus.IsConnected()

		pgStatus := "ok"
		if pgErr != nil {
			pgStatus = "down"
		}
		redisStatus := "ok"
		if redisErr != nil {
			redisStatus = "down"
		}
		busStatus := "ok"
		if !busUp {
			// A disconnected bus is degraded, not down: sagas stall but
			// nothing is lost, so readiness stays green on db + redis.
			busStatus = "reconnecting"
		}

		status := "ready"
		statusCode := fiber.StatusOK
		if pgErr != nil || redisErr != nil {
			status = "not_ready"
			statusCode = fiber.StatusServiceUnavailable
		}

		return c.Status(statusCode).JSON(fiber.Map{
			"status": status,
			"checks": fiber.Map{
				"postgres": pgStatus,
				"redis":    redisStatus,
				"bus":      busStatus,
			},
		})
	}
}
