package app

import (
	"fmt"
	"time"

	"github.com/alanyoungcy/swingbot/internal/config"
)

// session is one exchange session in its local time.
type session struct {
	name  string
	loc   *time.Location
	open  int // minutes after local midnight
	close int
}

// MarketHours reports whether any configured session is open. Sessions run
// Monday to Friday in their own timezone and are open at both ends of the
// [open, close] range.
type MarketHours struct {
	sessions []session
}

// NewMarketHours parses the configured sessions.
func NewMarketHours(cfg []config.SessionConfig) (*MarketHours, error) {
	mh := &MarketHours{}
	for _, s := range cfg {
		loc, err := time.LoadLocation(s.Timezone)
		if err != nil {
			return nil, fmt.Errorf("app: session %s: timezone %q: %w", s.Name, s.Timezone, err)
		}
		open, err := clockMinutes(s.Open)
		if err != nil {
			return nil, fmt.Errorf("app: session %s: open: %w", s.Name, err)
		}
		closeAt, err := clockMinutes(s.Close)
		if err != nil {
			return nil, fmt.Errorf("app: session %s: close: %w", s.Name, err)
		}
		if closeAt <= open {
			return nil, fmt.Errorf("app: session %s closes at %s, not after it opens at %s", s.Name, s.Close, s.Open)
		}
		mh.sessions = append(mh.sessions, session{name: s.Name, loc: loc, open: open, close: closeAt})
	}
	return mh, nil
}

// IsOpen reports whether t falls inside any session.
func (m *MarketHours) IsOpen(t time.Time) bool {
	return m.OpenSession(t) != ""
}

// OpenSession returns the name of the first session open at t, or "".
func (m *MarketHours) OpenSession(t time.Time) string {
	for _, s := range m.sessions {
		local := t.In(s.loc)
		if wd := local.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		mins := local.Hour()*60 + local.Minute()
		if mins >= s.open && mins <= s.close {
			return s.name
		}
	}
	return ""
}

// Location returns the timezone of the first session, or nil when none is
// configured.
func (m *MarketHours) Location() *time.Location {
	if len(m.sessions) == 0 {
		return nil
	}
	return m.sessions[0].loc
}

func clockMinutes(hhmm string) (int, error) {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return 0, fmt.Errorf("want HH:MM, got %q", hhmm)
	}
	return t.Hour()*60 + t.Minute(), nil
}
