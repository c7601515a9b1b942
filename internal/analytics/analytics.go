package analytics

import (
	"context"
	"sort"
	"time"

	"activity-xp/internal/modules/audit"
	"activity-xp/internal/storage"
)

type Service struct {
	store *storage.Store
}

func New(store *storage.Store) *Service {
	return &Service{store: store}
}

type Earner struct {
	UserID string
	XP     int
}

type Report struct {
	Since     time.Time
	Total     int
	ByEvent   map[string]int
	XPAwarded int
	Earners   []Earner
}

// Report summarises the XP events of a guild since the given time. Earners
// is sorted by XP gained, highest first, capped at topEarners entries.
func (s *Service) Report(ctx context.Context, guildID string, since time.Time, topEarners int) (Report, error) {
	logs, err := s.store.ListAuditLogs(ctx, guildID, since)
	if err != nil {
		return Report{}, err
	}

	report := Report{Since: since, ByEvent: make(map[string]int)}
	gained := make(map[string]int)
	for _, log := range logs {
		report.Total++
		report.ByEvent[log.Event]++
		if log.Event == audit.EventXPAward {
			report.XPAwarded += log.XP
			gained[log.UserID] += log.XP
		}
	}

	for userID, xp := range gained {
		report.Earners = append(report.Earners, Earner{UserID: userID, XP: xp})
	}
	sort.Slice(report.Earners, func(i, j int) bool {
		if report.Earners[i].XP != report.Earners[j].XP {
			return report.Earners[i].XP > report.Earners[j].XP
		}
		return report.Earners[i].UserID < report.Earners[j].UserID
	})
	if topEarners >= 0 && len(report.Earners) > topEarners {
		report.Earners = report.Earners[:topEarners]
	}
	return report, nil
}
