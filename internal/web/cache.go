package web

import (
	"context"

	"github.com/patrickmn/go-cache"

	"github.com/JonMunkholm/marketboard/internal/core"
)

const latestKey = "latest"

// latestReport is the decoded newest record, shared by the query endpoints
// and the page.
type latestReport struct {
	Record     core.StoredRecord
	Report     core.StructuredReport
	Categories []string
}

// loadLatest returns the newest report, decoding it at most once per cache
// period. Concurrent misses share one repository read, which is detached
// from the first caller's cancellation so one dropped client does not fail
// the others.
func (s *Server) loadLatest(ctx context.Context) (latestReport, error) {
	if v, ok := s.latest.Get(latestKey); ok {
		s.metrics.ObserveCache(true)
		return v.(latestReport), nil
	}
	s.metrics.ObserveCache(false)

	v, err, _ := s.loads.Do(latestKey, func() (any, error) {
		s.latestMu.Lock()
		gen := s.latestGen
		s.latestMu.Unlock()

		loadCtx := context.WithoutCancel(ctx)
		if d := s.cfg.Server.RequestTimeout; d > 0 {
			var cancel context.CancelFunc
			loadCtx, cancel = context.WithTimeout(loadCtx, d)
			defer cancel()
		}

		rec, err := s.repo.Latest(loadCtx)
		if err != nil {
			return nil, err
		}
		report, err := core.Deserialize(rec.Report)
		if err != nil {
			return nil, err
		}
		entry := latestReport{
			Record:     rec,
			Report:     report,
			Categories: core.Categories(report),
		}

		// A write that landed during the read makes entry stale.
		s.latestMu.Lock()
		if s.cfg.Report.CacheTTL > 0 && gen == s.latestGen {
			s.latest.Set(latestKey, entry, cache.DefaultExpiration)
		}
		s.latestMu.Unlock()
		return entry, nil
	})
	if err != nil {
		return latestReport{}, err
	}
	return v.(latestReport), nil
}

// invalidateLatest drops the cached report after a write.
func (s *Server) invalidateLatest() {
	s.latestMu.Lock()
	s.latestGen++
	s.latest.Delete(latestKey)
	s.latestMu.Unlock()
	s.loads.Forget(latestKey)
}
