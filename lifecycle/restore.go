package lifecycle

import (
	"context"

	"github.com/jrsteele09/go-login-service/events"
	lserrors "github.com/jrsteele09/go-login-service/internal/errors"
)

// RestoreStats summarizes a boot recovery run. Skipped sessions could not be
// checked against the token cache and were scheduled from their stored token.
type RestoreStats struct {
	Scheduled   int
	Removed     int
	Skipped     int
	BlobsPurged int
}

// Restore rebuilds refresh schedules from the durable sessions. Sessions whose
// account is no longer cached are removed. Without an account lookup, or when the
// lookup fails, the session is scheduled as stored and its first refresh decides
// whether it survives. Failures on one session never stop the rest. The manager is
// ready once Restore returns without error.
func (m *Manager) Restore(ctx context.Context) (RestoreStats, error) {
	var stats RestoreStats
	if m.refresh == nil {
		m.ready.Store(true)
		return stats, nil
	}

	active, err := m.repo.ListActiveTokenSessions(ctx)
	if err != nil {
		return stats, lserrors.Wrapf(err, "[Manager Restore] list sessions")
	}

	keep := make([]string, 0, len(active))
	for _, rec := range active {
		log := m.logger.With().Str("session", rec.SessionURI).Logger()

		if m.lookup == nil {
			m.refresh.Schedule(rec.SessionURI, rec.Token)
			keep = append(keep, rec.SessionURI)
			stats.Skipped++
			continue
		}

		found, err := m.lookup.HasAccount(ctx, rec.SessionURI, rec.Token.HomeAccountID)
		if err != nil {
			log.Warn().Err(err).Msg("cached account lookup failed, scheduling session as stored")
			m.refresh.Schedule(rec.SessionURI, rec.Token)
			keep = append(keep, rec.SessionURI)
			stats.Skipped++
			continue
		}

		if found {
			m.refresh.Schedule(rec.SessionURI, rec.Token)
			keep = append(keep, rec.SessionURI)
			stats.Scheduled++
			continue
		}

		log.Info().Msg("no cached account for session, removing it")
		if err := m.repo.RemoveSession(ctx, rec.SessionURI); err != nil {
			log.Error().Err(err).Msg("failed to remove orphaned session")
			continue
		}
		stats.Removed++
		m.metrics.Terminated(events.ReasonOrphaned)
		m.publish(ctx, events.Event{Type: events.SessionTerminated, SessionID: rec.SessionURI, Reason: events.ReasonOrphaned})
	}

	if m.retainer != nil {
		purged, err := m.retainer.RetainOnly(ctx, keep)
		if err != nil {
			m.logger.Error().Err(err).Msg("failed to purge stale token cache blobs")
		}
		stats.BlobsPurged = purged
	}

	m.ready.Store(true)
	m.logger.Info().
		Int("scheduled", stats.Scheduled).
		Int("removed", stats.Removed).
		Int("skipped", stats.Skipped).
		Int("blobs_purged", stats.BlobsPurged).
		Msg("session recovery finished")
	return stats, nil
}
