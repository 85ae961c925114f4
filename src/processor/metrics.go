package processor

import (
	"market-pipeline/src/models"
)

// -----------------------------------------------------------------------------
// Derived treasury metrics. Computed by combining the incoming record with the
// persisted company state and, when available, the counterpart snapshot
// (stock price for crypto records, treasury asset price for stock records).
// -----------------------------------------------------------------------------

func computeDerivedMetrics(company models.MCompany, cryptoPrice, stockPrice float64, timestamp int64) models.MDerivedMetrics {
	m := models.MDerivedMetrics{
		Ticker:       company.Ticker,
		CryptoSymbol: company.CryptoSymbol,
		Timestamp:    timestamp,
	}

	m.TreasuryValue = company.CryptoHoldings * cryptoPrice

	if company.SharesOutstanding > 0 {
		m.NAVPerShare = (m.TreasuryValue - company.TotalDebt) / company.SharesOutstanding
	}

	if stockPrice > 0 && m.NAVPerShare > 0 {
		m.PremiumToNAV = (stockPrice - m.NAVPerShare) / m.NAVPerShare * 100
	}

	if company.CostBasis > 0 {
		basis := company.CostBasis * company.CryptoHoldings
		if basis > 0 {
			m.CryptoYield = (m.TreasuryValue - basis) / basis * 100
		}
	}

	if m.TreasuryValue > 0 {
		// Debt leverage against the treasury, the dilution pressure proxy
		m.Dilution = company.TotalDebt / m.TreasuryValue * 100
	}

	return m
}
