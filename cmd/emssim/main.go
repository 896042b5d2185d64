package main

import (
	"flag"
	"log"

	"github.com/relabs-tech/reaction_trainer/internal/app"
	"github.com/relabs-tech/reaction_trainer/internal/config"
)

func main() {
	configPath := flag.String("config", "./reaction_config.txt", "path to configuration file")
	port := flag.String("port", "", "device-side serial port (empty reads from stdin)")
	baud := flag.Int("baud", 115200, "baud rate")
	flag.Parse()

	log.Println("starting reaction-trainer EMS firmware simulator")

	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := app.RunEMSSimulator(*port, *baud); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
