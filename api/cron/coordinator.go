// Package cron drives the orchestration loop: a recurring sweep over
// every release still in flight, each evaluated behind its own lock.
package cron

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"gantry/api/model"
)

// Engine is the slice of the orchestration engine the coordinator
// needs.
type Engine interface {
	ActiveReleases(ctx context.Context) ([]model.Release, error)
	Tick(ctx context.Context, releaseID string) error
}

type Coordinator struct {
	cron     *cron.Cron
	engine   Engine
	interval time.Duration
}

func New(e Engine, interval time.Duration) *Coordinator {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Coordinator{
		cron:     cron.New(),
		engine:   e,
		interval: interval,
	}
}

func (c *Coordinator) Start() error {
	if _, err := c.cron.AddFunc(fmt.Sprintf("@every %s", c.interval), c.Sweep); err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}
	c.cron.Start()
	log.Printf("cron: coordinator started, interval %s", c.interval)
	return nil
}

func (c *Coordinator) Stop() {
	ctx := c.cron.Stop()
	<-ctx.Done()
	log.Println("cron: coordinator stopped")
}

// Sweep evaluates every active release once. Releases are independent:
// they run concurrently, and one release's failure or still-running
// previous tick never delays the others.
func (c *Coordinator) Sweep() {
	ctx := context.Background()

	releases, err := c.engine.ActiveReleases(ctx)
	if err != nil {
		log.Printf("cron: list releases: %v", err)
		return
	}

	var wg sync.WaitGroup
	for _, rel := range releases {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					log.Printf("cron: tick %s panic: %v", id, r)
				}
			}()
			if err := c.engine.Tick(ctx, id); err != nil {
				if errors.Is(err, model.ErrReleaseBusy) {
					return // previous tick still running; skip, never queue
				}
				log.Printf("cron: tick %s: %v", id, err)
			}
		}(rel.ID)
	}
	wg.Wait()
}
