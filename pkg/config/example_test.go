package config_test

import (
	"fmt"
	"log"

	"github.com/ajitpratap0/tablepool/pkg/config"
)

// ExampleDefault demonstrates the pool defaults.
func ExampleDefault() {
	cfg := config.Default()

	fmt.Printf("Max Active: %d\n", cfg.Pool.MaxActive)
	fmt.Printf("Max Idle: %d\n", cfg.Pool.MaxIdle)
	fmt.Printf("Min Evictable Idle Time: %s\n", cfg.Pool.MinEvictableIdleTime.Std())
	fmt.Printf("Exhaustion Policy: %s\n", cfg.Pool.ExhaustionPolicy)

	// Output:
	// Max Active: 8
	// Max Idle: 8
	// Min Evictable Idle Time: 30m0s
	// Exhaustion Policy: block
}

// ExampleConfig_Validate shows how to validate a configuration before
// building a pool from it.
func ExampleConfig_Validate() {
	cfg := config.Default()
	cfg.Pool.MaxActive = 4
	cfg.Pool.MinIdle = 6

	if err := cfg.Validate(); err != nil {
		fmt.Println(err)
	}

	cfg.Pool.MinIdle = 2
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	fmt.Println("Configuration is valid!")

	// Output:
	// config: min_idle cannot exceed max_active
	// Configuration is valid!
}
