package main

import (
	"log"

	"github.com/relabs-tech/reaction_trainer/internal/app"
	"github.com/relabs-tech/reaction_trainer/internal/config"
)

func main() {
	log.Println("starting reaction-trainer rig display")

	if err := config.InitGlobal("reaction_config.txt"); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := app.RunDisplay(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
