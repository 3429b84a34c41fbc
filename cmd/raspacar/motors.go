package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/frudas24/raspacar/internal/config"
	"github.com/frudas24/raspacar/internal/drive"
)

// MotorsCmd groups motor utilities.
type MotorsCmd struct {
	Test MotorsTestCmd `cmd:"" help:"Run forward, backward, left, right, then stop."`
}

// MotorsTestCmd drives each manoeuvre for a short hold.
type MotorsTestCmd struct {
	Hold time.Duration `default:"2s" help:"How long each step runs."`
}

// Run opens the configured motor backend and runs the self test.
func (c *MotorsTestCmd) Run(g *Globals) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	ctrl, err := drive.New(motorOptions(cfg, g.Debug))
	if err != nil {
		return err
	}
	defer func() {
		if err := ctrl.Close(); err != nil {
			log.Printf("motors: close: %v", err)
		}
	}()
	log.Printf("motors: self test on %s", ctrl.Kind())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := drive.SelfTest(ctx, ctrl, c.Hold); err != nil {
		if errors.Is(err, context.Canceled) {
			log.Printf("motors: self test interrupted")
			return nil
		}
		return err
	}
	log.Printf("motors: self test done")
	return nil
}

// motorOptions maps config keys onto the drive factory.
func motorOptions(cfg config.Config, debug bool) drive.Options {
	return drive.Options{
		Kind:     cfg.MotorDriver,
		I2CBus:   cfg.MotorI2CBus,
		I2CAddr:  cfg.MotorI2CAddr,
		Reversed: cfg.MotorReversed,
		Quiet:    !debug,
	}
}
