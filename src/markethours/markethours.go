package markethours

import (
	"fmt"
	"strings"
	"time"

	"market-pipeline/src/logger"
	"market-pipeline/src/models"
)

// -----------------------------------------------------------------------------
// Market Hours Service
//
// Computes session state per named market and scales polling intervals by the
// current session so quota is conserved while a market is closed. Pre- and
// aftermarket are fixed 4-hour bands around open and close.
// -----------------------------------------------------------------------------

const (
	SessionMarket      = "market"
	SessionPreMarket   = "premarket"
	SessionAfterMarket = "aftermarket"
	SessionClosed      = "closed"
)

const extendedBand = 4 * time.Hour

type market struct {
	config    models.MMarketConfig
	location  *time.Location
	calendar  *TradingCalendar // optional, resolved from MIC
	openMins  int
	closeMins int
	days      map[time.Weekday]bool
	holidays  map[string]bool
}

type Service struct {
	markets map[string]*market
	Logger  *logger.Logger
}

// -----------------------------------------------------------------------------

func NewService(configs map[string]models.MMarketConfig, log *logger.Logger) (*Service, error) {
	s := &Service{
		markets: make(map[string]*market),
		Logger:  log,
	}

	for name, cfg := range configs {
		m := &market{config: cfg}

		if !cfg.AlwaysOpen {
			loc, err := time.LoadLocation(cfg.Timezone)
			if err != nil {
				return nil, fmt.Errorf("market '%s': invalid timezone '%s': %w", name, cfg.Timezone, err)
			}
			m.location = loc

			m.openMins, err = parseClock(cfg.Open)
			if err != nil {
				return nil, fmt.Errorf("market '%s': invalid open time: %w", name, err)
			}
			m.closeMins, err = parseClock(cfg.Close)
			if err != nil {
				return nil, fmt.Errorf("market '%s': invalid close time: %w", name, err)
			}

			m.days = parseTradingDays(cfg.TradingDays)
			m.holidays = make(map[string]bool, len(cfg.Holidays))
			for _, h := range cfg.Holidays {
				m.holidays[h] = true
			}

			if cfg.MIC != "" {
				m.calendar = GetCalendar(cfg.MIC, log)
			}
		}

		s.markets[name] = m
	}

	return s, nil
}

// -----------------------------------------------------------------------------

func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}

func parseTradingDays(days []string) map[time.Weekday]bool {
	out := make(map[time.Weekday]bool)
	if len(days) == 0 {
		// Default Mon-Fri
		for d := time.Monday; d <= time.Friday; d++ {
			out[d] = true
		}
		return out
	}
	byName := map[string]time.Weekday{
		"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday,
		"wed": time.Wednesday, "thu": time.Thursday, "fri": time.Friday,
		"sat": time.Saturday,
	}
	for _, d := range days {
		key := strings.ToLower(d)
		if len(key) > 3 {
			key = key[:3]
		}
		if wd, ok := byName[key]; ok {
			out[wd] = true
		}
	}
	return out
}

// -----------------------------------------------------------------------------

// Markets lists configured market names.
func (s *Service) Markets() []string {
	names := make([]string, 0, len(s.markets))
	for name := range s.markets {
		names = append(names, name)
	}
	return names
}

// -----------------------------------------------------------------------------

// isHoliday checks the configured holiday set first, then the exchange
// calendar on weekdays the market would otherwise trade.
func (m *market) isHoliday(local time.Time) bool {
	if m.holidays[local.Format("2006-01-02")] {
		return true
	}
	if m.calendar != nil && m.days[local.Weekday()] && !m.calendar.IsTradingDay(local) {
		return true
	}
	return false
}

func (m *market) isTradingDay(local time.Time) bool {
	return m.days[local.Weekday()] && !m.isHoliday(local)
}

// -----------------------------------------------------------------------------

// GetMarketStatus derives the session state at the given instant.
func (s *Service) GetMarketStatus(name string, now time.Time) (models.MMarketStatus, error) {
	m, ok := s.markets[name]
	if !ok {
		return models.MMarketStatus{}, fmt.Errorf("unknown market '%s'", name)
	}

	if m.config.AlwaysOpen {
		return models.MMarketStatus{Market: name, Open: true, Session: SessionMarket}, nil
	}

	local := now.In(m.location)
	minutes := local.Hour()*60 + local.Minute()

	status := models.MMarketStatus{Market: name, Session: SessionClosed}

	if m.isTradingDay(local) {
		switch {
		case minutes >= m.openMins && minutes < m.closeMins:
			status.Open = true
			status.Session = SessionMarket
			return status, nil
		case minutes >= m.openMins-int(extendedBand.Minutes()) && minutes < m.openMins:
			status.Session = SessionPreMarket
		case minutes >= m.closeMins && minutes < m.closeMins+int(extendedBand.Minutes()):
			status.Session = SessionAfterMarket
		}
	}

	status.NextOpen = m.nextOpen(local)
	status.TimeToOpen = status.NextOpen.Sub(local)
	return status, nil
}

// -----------------------------------------------------------------------------

// nextOpen scans forward for the next trading-day open.
func (m *market) nextOpen(local time.Time) time.Time {
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, m.location)
	for i := 0; i < 14; i++ {
		candidate := day.AddDate(0, 0, i)
		open := candidate.Add(time.Duration(m.openMins) * time.Minute)
		if m.isTradingDay(candidate) && open.After(local) {
			return open
		}
	}
	return time.Time{}
}

// -----------------------------------------------------------------------------

// CalculateAdaptiveInterval scales base by the session-dependent multiplier.
// Unknown markets poll at the base interval.
func (s *Service) CalculateAdaptiveInterval(base time.Duration, name string, now time.Time) time.Duration {
	m, ok := s.markets[name]
	if !ok {
		return base
	}
	if m.config.AlwaysOpen {
		return scale(base, m.config.Multipliers.Market, 1.0)
	}

	local := now.In(m.location)
	minutes := local.Hour()*60 + local.Minute()
	mult := m.config.Multipliers

	if m.isTradingDay(local) && minutes >= m.openMins && minutes < m.closeMins {
		return scale(base, mult.Market, 1.0)
	}
	if !m.days[local.Weekday()] {
		return scale(base, mult.Weekend, 10.0)
	}
	if m.isHoliday(local) {
		return scale(base, mult.Holiday, 8.0)
	}
	if m.days[local.Weekday()] {
		if minutes >= m.openMins-int(extendedBand.Minutes()) && minutes < m.openMins {
			return scale(base, mult.PreMarket, 2.0)
		}
		if minutes >= m.closeMins && minutes < m.closeMins+int(extendedBand.Minutes()) {
			return scale(base, mult.AfterMarket, 2.0)
		}
	}
	return scale(base, mult.Closed, 6.0)
}

func scale(base time.Duration, mult, fallback float64) time.Duration {
	if mult <= 0 {
		mult = fallback
	}
	return time.Duration(float64(base) * mult)
}
