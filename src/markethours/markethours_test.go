package markethours

import (
	"testing"
	"time"

	"market-pipeline/src/logger"
	"market-pipeline/src/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testService(t *testing.T) *Service {
	t.Helper()
	// MIC deliberately omitted so session math is driven only by config
	svc, err := NewService(map[string]models.MMarketConfig{
		"crypto": {AlwaysOpen: true},
		"nyse": {
			Timezone:    "America/New_York",
			Open:        "09:30",
			Close:       "16:00",
			TradingDays: []string{"mon", "tue", "wed", "thu", "fri"},
			Holidays:    []string{"2026-01-01"},
			Multipliers: models.MSessionMultipliers{
				Market: 1.0, PreMarket: 2.0, AfterMarket: 2.0,
				Closed: 6.0, Weekend: 10.0, Holiday: 8.0,
			},
		},
	}, logger.NewLogger("ERROR", "test"))
	require.NoError(t, err)
	return svc
}

func nyTime(t *testing.T, y int, m time.Month, d, hh, mm int) time.Time {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	return time.Date(y, m, d, hh, mm, 0, 0, loc)
}

// -----------------------------------------------------------------------------

func TestMarketStatusSessions(t *testing.T) {
	svc := testService(t)

	// 2026-03-02 is a Monday
	cases := []struct {
		name    string
		at      time.Time
		open    bool
		session string
	}{
		{"midday", nyTime(t, 2026, 3, 2, 12, 0), true, SessionMarket},
		{"at open", nyTime(t, 2026, 3, 2, 9, 30), true, SessionMarket},
		{"at close", nyTime(t, 2026, 3, 2, 16, 0), false, SessionAfterMarket},
		{"premarket", nyTime(t, 2026, 3, 2, 7, 0), false, SessionPreMarket},
		{"aftermarket", nyTime(t, 2026, 3, 2, 18, 0), false, SessionAfterMarket},
		{"overnight", nyTime(t, 2026, 3, 2, 3, 0), false, SessionClosed},
		{"late night", nyTime(t, 2026, 3, 2, 22, 0), false, SessionClosed},
		{"saturday", nyTime(t, 2026, 3, 7, 12, 0), false, SessionClosed},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, err := svc.GetMarketStatus("nyse", tc.at)
			require.NoError(t, err)
			assert.Equal(t, tc.open, status.Open)
			assert.Equal(t, tc.session, status.Session)
		})
	}
}

func TestMarketStatusAlwaysOpen(t *testing.T) {
	svc := testService(t)

	status, err := svc.GetMarketStatus("crypto", nyTime(t, 2026, 3, 7, 3, 0))
	require.NoError(t, err)
	assert.True(t, status.Open)
	assert.Equal(t, SessionMarket, status.Session)
}

func TestMarketStatusHoliday(t *testing.T) {
	svc := testService(t)

	// 2026-01-01 is a Thursday but a configured holiday
	status, err := svc.GetMarketStatus("nyse", nyTime(t, 2026, 1, 1, 12, 0))
	require.NoError(t, err)
	assert.False(t, status.Open)
	assert.Equal(t, SessionClosed, status.Session)
}

func TestMarketStatusNextOpen(t *testing.T) {
	svc := testService(t)

	// Friday evening: next open is Monday 09:30
	status, err := svc.GetMarketStatus("nyse", nyTime(t, 2026, 3, 6, 20, 0))
	require.NoError(t, err)
	expected := nyTime(t, 2026, 3, 9, 9, 30)
	assert.True(t, status.NextOpen.Equal(expected), "next open %v, want %v", status.NextOpen, expected)
	assert.Equal(t, expected.Sub(nyTime(t, 2026, 3, 6, 20, 0)), status.TimeToOpen)
}

func TestMarketStatusUnknownMarket(t *testing.T) {
	svc := testService(t)

	_, err := svc.GetMarketStatus("lse", time.Now())
	assert.Error(t, err)
}

// -----------------------------------------------------------------------------

func TestAdaptiveInterval(t *testing.T) {
	svc := testService(t)
	base := 60 * time.Second

	cases := []struct {
		name string
		at   time.Time
		want time.Duration
	}{
		{"market hours", nyTime(t, 2026, 3, 2, 12, 0), 60 * time.Second},
		{"premarket", nyTime(t, 2026, 3, 2, 7, 0), 120 * time.Second},
		{"aftermarket", nyTime(t, 2026, 3, 2, 18, 0), 120 * time.Second},
		{"overnight", nyTime(t, 2026, 3, 2, 3, 0), 360 * time.Second},
		{"weekend", nyTime(t, 2026, 3, 7, 12, 0), 600 * time.Second},
		{"holiday", nyTime(t, 2026, 1, 1, 12, 0), 480 * time.Second},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := svc.CalculateAdaptiveInterval(base, "nyse", tc.at)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestAdaptiveIntervalAlwaysOpen(t *testing.T) {
	svc := testService(t)

	// Crypto never scales up, even on a Saturday night
	got := svc.CalculateAdaptiveInterval(30*time.Second, "crypto", nyTime(t, 2026, 3, 7, 23, 0))
	assert.Equal(t, 30*time.Second, got)
}

func TestAdaptiveIntervalUnknownMarket(t *testing.T) {
	svc := testService(t)

	got := svc.CalculateAdaptiveInterval(45*time.Second, "unknown", time.Now())
	assert.Equal(t, 45*time.Second, got)
}
