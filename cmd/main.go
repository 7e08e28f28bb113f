package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/stageroom/stageroom-backend/internal/app"
	"github.com/stageroom/stageroom-backend/internal/utils"
)

func main() {
	_ = godotenv.Load()

	a, err := app.New()
	if err != nil {
		fmt.Printf("Failed to init app: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	a.Start()

	port := utils.GetEnv("PORT", "8080", a.Log)
	a.Log.Info("Server listening", "port", port)
	if err := a.Run(":" + port); err != nil {
		a.Log.Error("Server failed", "error", err)
	}
}
