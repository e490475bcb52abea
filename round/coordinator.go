// Package round drives a participant through federated-learning rounds.
package round

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"
)

// ErrStopped is returned by WaitForStart when no further round will start.
var ErrStopped = errors.New("rounds stopped")

// Coordinator is the external barrier separating rounds.
type Coordinator interface {
	// WaitForStart blocks until the next round may begin.
	WaitForStart(ctx context.Context) error
	// SignalRoundComplete reports that this participant finished the current round.
	SignalRoundComplete(ctx context.Context) error
}

// LocalBarrier is an in-process Coordinator released by Start and ended by Stop.
type LocalBarrier struct {
	start     chan struct{}
	completed chan struct{}
	stopped   chan struct{}
	stopOnce  sync.Once
}

func NewLocalBarrier() *LocalBarrier {
	return &LocalBarrier{
		start:     make(chan struct{}),
		completed: make(chan struct{}, 1),
		stopped:   make(chan struct{}),
	}
}

// Start lets one waiting participant begin a round. It blocks until a participant
// takes the release or ctx ends.
func (b *LocalBarrier) Start(ctx context.Context) error {
	select {
	case b.start <- struct{}{}:
		return nil
	case <-b.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop makes every pending and future WaitForStart return ErrStopped.
func (b *LocalBarrier) Stop() {
	b.stopOnce.Do(func() { close(b.stopped) })
}

// Completed delivers one value per SignalRoundComplete.
func (b *LocalBarrier) Completed() <-chan struct{} {
	return b.completed
}

func (b *LocalBarrier) WaitForStart(ctx context.Context) error {
	select {
	case <-b.start:
		return nil
	case <-b.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *LocalBarrier) SignalRoundComplete(ctx context.Context) error {
	select {
	case b.completed <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Replies sent to the trainer.
const (
	ReplyGo   = "go"
	ReplyNext = "0"
	ReplyStop = "stop"
)

// TrainerCoordinator paces rounds with a local trainer process over a line protocol.
// The trainer sends one line when it is connected and one line each time a new local
// model is ready; the participant answers "go" to the first line, then "0" after every
// round and "stop" after the last one.
type TrainerCoordinator struct {
	conn    net.Conn
	r       *bufio.Reader
	rounds  int
	done    int
	greeted bool
}

// NewTrainerCoordinator paces rounds rounds over conn.
func NewTrainerCoordinator(conn net.Conn, rounds int) *TrainerCoordinator {
	return &TrainerCoordinator{conn: conn, r: bufio.NewReader(conn), rounds: rounds}
}

func (c *TrainerCoordinator) WaitForStart(ctx context.Context) error {
	if c.done >= c.rounds {
		return ErrStopped
	}

	defer c.watch(ctx)()

	if !c.greeted {
		if _, err := c.readLine(); err != nil {
			return err
		}
		if err := c.writeLine(ReplyGo); err != nil {
			return err
		}
		c.greeted = true
	}

	_, err := c.readLine()
	return err
}

func (c *TrainerCoordinator) SignalRoundComplete(ctx context.Context) error {
	defer c.watch(ctx)()

	c.done++
	if c.done >= c.rounds {
		return c.writeLine(ReplyStop)
	}

	return c.writeLine(ReplyNext)
}

func (c *TrainerCoordinator) readLine() (string, error) {
	line, err := c.r.ReadString('\n')
	if err != nil && (line == "" || !errors.Is(err, io.EOF)) {
		return "", fmt.Errorf("read from trainer: %w", err)
	}

	return strings.TrimSpace(line), nil
}

func (c *TrainerCoordinator) writeLine(s string) error {
	if _, err := c.conn.Write([]byte(s + "\n")); err != nil {
		return fmt.Errorf("write to trainer: %w", err)
	}

	return nil
}

func (c *TrainerCoordinator) watch(ctx context.Context) func() {
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetDeadline(time.Now())
	})

	return func() { stop() }
}
