package queue

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/financeanalyst/securecore/internal/models"
)

// Deliverer pushes one alert to its destinations. The notifications
// package provides the production implementation.
type Deliverer interface {
	Deliver(ctx context.Context, alert models.Alert) error
}

// Worker drains the alert queue and hands each alert to the deliverer.
type Worker struct {
	id        string
	queue     *Queue
	deliverer Deliverer
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	running bool
	mu      sync.Mutex
}

func NewWorker(q *Queue, deliverer Deliverer, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	hostname, _ := os.Hostname()
	workerID := fmt.Sprintf("%s-%s", hostname, uuid.New().String()[:8])

	return &Worker{
		id:        workerID,
		queue:     q,
		deliverer: deliverer,
		logger:    logger.With("worker", workerID),
	}
}

func (w *Worker) ID() string {
	return w.id
}

func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("worker already running")
	}
	w.running = true
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.mu.Unlock()

	w.logger.Info("alert delivery worker starting")

	w.wg.Add(1)
	go w.heartbeatLoop()

	w.wg.Add(1)
	go w.deliveryLoop()

	return nil
}

func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	w.logger.Info("alert delivery worker stopping")
	w.cancel()
	w.wg.Wait()
	w.logger.Info("alert delivery worker stopped")
}

func (w *Worker) heartbeatLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			if err := w.queue.WorkerHeartbeat(w.ctx, w.id); err != nil {
				w.logger.Warn("heartbeat failed", "error", err)
			}
		}
	}
}

func (w *Worker) deliveryLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		default:
			envelope, err := w.queue.DequeueAlert(w.ctx)
			if err != nil {
				w.logger.Error("dequeue failed", "error", err)
				time.Sleep(5 * time.Second)
				continue
			}
			if envelope == nil {
				time.Sleep(time.Second)
				continue
			}

			w.logger.Info("delivering alert",
				"alert_type", envelope.Alert.Type,
				"severity", envelope.Alert.Severity,
				"attempt", envelope.Attempts+1)

			if err := w.deliverer.Deliver(w.ctx, envelope.Alert); err != nil {
				w.logger.Error("alert delivery failed",
					"alert_type", envelope.Alert.Type,
					"error", err)
				if err := w.queue.RequeueAlert(w.ctx, envelope); err != nil {
					w.logger.Error("requeue failed", "error", err)
				}
				continue
			}

			if err := w.queue.CompleteAlert(w.ctx, envelope); err != nil {
				w.logger.Warn("completion bookkeeping failed", "error", err)
			}
		}
	}
}
