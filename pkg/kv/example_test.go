package kv_test

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/leafsii/relkv/pkg/kv"

	// Import backends to register them
	_ "github.com/leafsii/relkv/pkg/kv/memory"
)

func ExampleNewStoreFromConfig_memory() {
	cfg := kv.Config{
		Backend:         kv.BackendMemory,
		JanitorInterval: 30 * time.Second,
	}

	ctx := context.Background()
	store, err := kv.NewStoreFromConfig(ctx, cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	// Basic string operations
	if err := store.Set(ctx, "user:123", "john"); err != nil {
		log.Fatal(err)
	}

	value, ok, err := store.Get(ctx, "user:123")
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println(value, ok)
	// Output: john true
}

func ExampleStore_counter() {
	ctx := context.Background()
	store, err := kv.NewStoreFromConfig(ctx, kv.Config{Backend: kv.BackendMemory})
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	// Counter operations
	counterKey := "page:views"

	views, err := store.Increment(ctx, counterKey)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Page views: %.0f\n", views)

	views, err = store.IncrBy(ctx, counterKey, 5)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Page views after +5: %.0f\n", views)

	// Output:
	// Page views: 1
	// Page views after +5: 6
}

func ExampleStore_wrongType() {
	ctx := context.Background()
	store, err := kv.NewStoreFromConfig(ctx, kv.Config{Backend: kv.BackendMemory})
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	if err := store.SAdd(ctx, "tags:article:123", "go", "postgres"); err != nil {
		log.Fatal(err)
	}

	// The key is a set now; string writes are refused
	err = store.Set(ctx, "tags:article:123", "go")
	fmt.Println(errors.Is(err, kv.ErrWrongType))
	fmt.Println(err)

	// Output:
	// true
	// cannot use "tags:article:123" as string because it already exists as set
}

func ExampleStore_list() {
	ctx := context.Background()
	store, err := kv.NewStoreFromConfig(ctx, kv.Config{Backend: kv.BackendMemory})
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	// List operations (queue/stack)
	queueKey := "jobs:queue"

	if err := store.RPush(ctx, queueKey, "job1", "job2", "job3"); err != nil {
		log.Fatal(err)
	}

	// Process jobs from queue (left pop - FIFO)
	for i := 0; i < 2; i++ {
		job, ok, err := store.LPop(ctx, queueKey)
		if err != nil {
			log.Fatal(err)
		}
		if !ok {
			fmt.Println("Queue is empty")
			break
		}
		fmt.Printf("Processing job: %s\n", job)
	}

	remaining, err := store.LLen(ctx, queueKey)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Remaining jobs: %d\n", remaining)

	// Output:
	// Processing job: job1
	// Processing job: job2
	// Remaining jobs: 1
}
