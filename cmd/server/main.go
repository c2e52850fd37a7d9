package main

import (
	"log"
	"os"

	approuters "github.com/FillingVoid7/PeerAid-sub001/internal/app_routers"
	"github.com/FillingVoid7/PeerAid-sub001/internal/configuration"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.json"
	}

	container, err := configuration.BuildContainer(configPath)
	if err != nil {
		log.Fatalf("Failed to build container: %v", err)
	}

	// Ensure cleanup on shutdown
	defer container.Close()

	// Setup routers
	approuters.StartServer(container)
}
