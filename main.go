package main

import (
	"waitlist-engine/core/logger"
	"waitlist-engine/core/server"
)

// @title Waitlist Engine API
// @version 1.0
// @description Slot-monitoring and waitlist notification engine for appointment businesses

// @host localhost:7070
// @BasePath /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description JWT Bearer token. Example: "Bearer {token}"

func main() {
	if err := server.Run(); err != nil {
		logger.Error("run server error", "error", err)
	}
}
