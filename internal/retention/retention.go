package retention

import (
	"log"
	"sync"
	"time"
)

type Config struct {
	Interval time.Duration
	MaxAge   time.Duration
}

func DefaultConfig() Config {
	return Config{
		Interval: 10 * time.Minute,
		MaxAge:   7 * 24 * time.Hour,
	}
}

// Store is satisfied by *db.Database
type Store interface {
	DeleteClosedBefore(cutoff time.Time) (int64, error)
}

// Service periodically prunes closed room sessions from the journal.
type Service struct {
	store  Store
	config Config
	now    func() time.Time
	stop   chan struct{}
	wg     sync.WaitGroup
}

func New(store Store, config Config) *Service {
	return &Service{
		store:  store,
		config: config,
		now:    time.Now,
		stop:   make(chan struct{}),
	}
}

func (s *Service) Start() {
	s.wg.Add(1)
	go s.run()
	log.Printf("🧹 Retention service started (interval: %v, max age: %v)",
		s.config.Interval, s.config.MaxAge)
}

func (s *Service) Stop() {
	close(s.stop)
	s.wg.Wait()
	log.Println("🧹 Retention service stopped")
}

func (s *Service) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	s.prune()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.prune()
		}
	}
}

func (s *Service) prune() {
	n, err := s.PruneNow()
	if err != nil {
		log.Printf("Retention: failed to prune sessions: %v", err)
		return
	}
	if n > 0 {
		log.Printf("🧹 Pruned %d closed room sessions", n)
	}
}

// PruneNow deletes closed sessions older than MaxAge and reports how many
// were removed.
func (s *Service) PruneNow() (int64, error) {
	cutoff := s.now().Add(-s.config.MaxAge)
	return s.store.DeleteClosedBefore(cutoff)
}
