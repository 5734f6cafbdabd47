package main

import (
	"log"

	"devmemory-be/internal/config"
	"devmemory-be/internal/model"
	"devmemory-be/pkg/database"

	"github.com/fatih/color"
)

func main() {
	// 1. Load Environment Variables
	cfg := config.Load()
	if cfg.Database.Connection == "" {
		log.Fatal("Error: DB_CONNECTION_STRING is not set")
	}

	// 2. Connect to Database using existing GORM helpers
	db, err := database.NewGormDBFromDSN(cfg.Database.Connection, cfg.Database.LogSQL)
	if err != nil {
		log.Fatal("Error: Failed to connect to database:", err)
	}

	color.Cyan("Starting schema migration (embedding dimension %d)", cfg.Embedding.Dimension)

	// 3. Pre-Migration: Extensions
	color.Yellow("Step 1: Setting up extensions...")
	for _, sql := range model.PreMigrationSQL() {
		if err := db.Exec(sql).Error; err != nil {
			log.Fatalf("Error: setup SQL failed: %v", err)
		}
	}

	// 4. AutoMigrate All Models
	color.Yellow("Step 2: Running AutoMigrate for %d tables...", len(model.All()))
	if err := db.AutoMigrate(model.All()...); err != nil {
		log.Fatalf("Error: AutoMigrate failed: %v", err)
	}

	// 5. Post-Migration: sequence, single-active index, vector column
	color.Yellow("Step 3: Creating indexes and constraints...")
	for _, sql := range model.PostMigrationSQL(cfg.Embedding.Dimension) {
		if err := db.Exec(sql).Error; err != nil {
			// A populated vector column with another dimension cannot be
			// re-typed in place; run memoryctl reembed --dimension instead.
			color.Red("Failed: %v", err)
			log.Fatal("Error: post-migration failed")
		}
	}

	color.Green("Migration completed successfully")
}
