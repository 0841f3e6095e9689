// Command main runs the database seeder for the guest request API.
package main

import (
	"flag"
	"log"

	"github.com/Nihad1903/azmiu-guest-web/internal/config"
	"github.com/Nihad1903/azmiu-guest-web/internal/database"
	"github.com/Nihad1903/azmiu-guest-web/internal/seed"
)

func main() {
	numManagers := flag.Int("managers", 5, "Number of manager accounts to create")
	numRequests := flag.Int("requests", 25, "Number of pending guest requests to create")
	shouldClean := flag.Bool("clean", true, "Clean database before seeding")
	flag.Parse()

	log.Println("Database Seeder")
	log.Printf("Target: %d managers, %d requests, clean=%v\n", *numManagers, *numRequests, *shouldClean)

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	s := seed.NewSeeder(db)
	if err := s.Run(seed.Options{
		NumManagers: *numManagers,
		NumRequests: *numRequests,
		ShouldClean: *shouldClean,
	}); err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}

	log.Println("Seeding complete")
}
