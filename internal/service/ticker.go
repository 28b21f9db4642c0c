package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Scanner runs one pass over every stored conversation
type Scanner interface {
	Scan(ctx context.Context) error
}

// TickerService drives the periodic conversation scan
type TickerService struct {
	scanner  Scanner
	interval time.Duration
	logger   *zap.Logger

	scanning atomic.Bool
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewTickerService creates a new ticker service
func NewTickerService(scanner Scanner, interval time.Duration, logger *zap.Logger) *TickerService {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &TickerService{
		scanner:  scanner,
		interval: interval,
		logger:   logger.Named("ticker"),
	}
}

// Start runs one scan immediately and then one per interval
func (s *TickerService) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go s.loop()

	s.logger.Info("Started", zap.Duration("interval", s.interval))
}

// Stop stops the loop and waits for a running scan to return
func (s *TickerService) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.logger.Info("Stopped")
}

func (s *TickerService) loop() {
	defer s.wg.Done()

	s.tick()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

// tick starts a scan unless the previous one is still running
func (s *TickerService) tick() bool {
	if !s.scanning.CompareAndSwap(false, true) {
		s.logger.Warn("Previous scan still running, skipping tick")
		return false
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.scanning.Store(false)

		start := time.Now()
		if err := s.scanner.Scan(s.ctx); err != nil {
			s.logger.Error("Scan failed", zap.Error(err))
			return
		}
		s.logger.Debug("Scan finished", zap.Duration("took", time.Since(start)))
	}()
	return true
}

// Scanning reports whether a scan is in progress
func (s *TickerService) Scanning() bool {
	return s.scanning.Load()
}
