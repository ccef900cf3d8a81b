// seed inserts a handful of test datasets into the local dev database so
// upload/update/info and the scheduler loop have something to operate on.
// Run: go run ./cmd/seed
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/datopian/flowmanager/domain"
	"github.com/datopian/flowmanager/infrastructure/postgres"
)

const seedOwnerID = "user_seed_dev_local"

type datasetSpec struct {
	name     string
	schedule string // "" means unscheduled
}

var datasets = []datasetSpec{
	{"seed-dataset-one", ""},
	{"seed-dataset-two", "every 1h"},
	{"seed-dataset-three", "every 5m"},
}

func main() {
	ctx := context.Background()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set — run: direnv allow")
	}

	pool, err := postgres.NewPool(ctx, dbURL)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer pool.Close()

	repo := postgres.NewDatasetRepository(pool)
	now := time.Now()

	var created []string
	for _, ds := range datasets {
		spec := domain.Spec{
			"meta": map[string]any{
				"ownerid": seedOwnerID,
				"dataset": ds.name,
			},
		}
		if ds.schedule != "" {
			spec["schedule"] = ds.schedule
		}

		identifier := repo.FormatIdentifier(seedOwnerID, ds.name)
		if _, err := repo.CreateOrUpdateDataset(ctx, identifier, seedOwnerID, spec, now); err != nil {
			log.Fatalf("seed dataset %s: %v", ds.name, err)
		}
		created = append(created, identifier)
	}

	fmt.Println("Seed complete")
	fmt.Println()
	fmt.Printf("  Owner ID: %s\n", seedOwnerID)
	fmt.Printf("  Datasets created/updated: %d\n", len(created))
	fmt.Println()
	fmt.Println("  Identifiers:")
	for _, id := range created {
		fmt.Printf("    %s\n", id)
	}
	fmt.Println()
	fmt.Println("How to test:")
	fmt.Println()
	fmt.Println("  Step 1 — sign a JWT for the seed owner (HS256, JWT_SECRET from .envrc, userid=" + seedOwnerID + ")")
	fmt.Println("  Step 2 — POST to /source/upload with that token and a spec.meta.ownerid of", seedOwnerID)
	fmt.Println("  Step 3 — GET /source/<owner>/<dataset>/latest to inspect the resulting revision")
	fmt.Println("  The scheduled datasets above will be picked up by cmd/scheduler on their next tick.")
}
