package storage

import (
	"database/sql"
	"fmt"
	"time"

	"market-pipeline/src/logger"
	"market-pipeline/src/models"

	_ "modernc.org/sqlite"
)

// -----------------------------------------------------------------------------

type SQLiteDB struct {
	Config *models.MConfig
	DB     *sql.DB
	Logger *logger.Logger
}

// -----------------------------------------------------------------------------

func NewSQLiteDB(cfg *models.MConfig, log *logger.Logger) (*SQLiteDB, error) {
	return &SQLiteDB{
		Config: cfg,
		Logger: log,
	}, nil
}

// -----------------------------------------------------------------------------

func (d *SQLiteDB) Initialize() error {
	dsn := d.Config.Storage.DBPath

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return err
	}

	if err := db.Ping(); err != nil {
		return err
	}

	d.DB = db

	// PRAGMA optimizations
	if _, err := db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		d.Logger.Warning("Failed to set WAL mode: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL;"); err != nil {
		d.Logger.Warning("Failed to set synchronous mode: %v", err)
	}

	if err := d.createTables(); err != nil {
		return err
	}

	// Seed companies from config
	for _, c := range d.Config.Companies {
		if err := d.UpsertCompany(models.MCompany{
			Ticker:            c.Ticker,
			Name:              c.Name,
			CryptoSymbol:      c.CryptoSymbol,
			CryptoHoldings:    c.CryptoHoldings,
			SharesOutstanding: c.SharesOutstanding,
			TotalDebt:         c.TotalDebt,
			CostBasis:         c.CostBasis,
		}); err != nil {
			d.Logger.Error("SQLiteDB: Failed to seed company %s: %v", c.Ticker, err)
		}
	}

	d.Logger.Info("SQLiteDB initialized successfully (%s)", dsn)
	return nil
}

// -----------------------------------------------------------------------------

func (d *SQLiteDB) createTables() error {
	// SQLite types: INTEGER for int64, REAL for float64, TEXT for string
	queries := []string{
		`CREATE TABLE IF NOT EXISTS crypto_prices (
			symbol TEXT,
			timestamp INTEGER,
			price REAL,
			change_24h REAL,
			change_24h_percent REAL,
			volume_24h REAL,
			market_cap REAL,
			fetched_at INTEGER,
			PRIMARY KEY (symbol, timestamp)
		);`,
		`CREATE TABLE IF NOT EXISTS stock_quotes (
			ticker TEXT,
			timestamp INTEGER,
			price REAL,
			high_24h REAL,
			low_24h REAL,
			volume_24h REAL,
			fetched_at INTEGER,
			PRIMARY KEY (ticker, timestamp)
		);`,
		`CREATE TABLE IF NOT EXISTS derived_metrics (
			ticker TEXT,
			crypto_symbol TEXT,
			timestamp INTEGER,
			treasury_value REAL,
			nav_per_share REAL,
			premium_to_nav REAL,
			crypto_yield REAL,
			dilution REAL,
			PRIMARY KEY (ticker, timestamp)
		);`,
		`CREATE TABLE IF NOT EXISTS companies (
			ticker TEXT PRIMARY KEY,
			name TEXT,
			crypto_symbol TEXT,
			crypto_holdings REAL,
			shares_outstanding REAL,
			total_debt REAL,
			cost_basis REAL
		);`,
	}

	for _, q := range queries {
		if _, err := d.DB.Exec(q); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	return nil
}

// -----------------------------------------------------------------------------

func (d *SQLiteDB) UpsertCryptoPrice(p models.MCryptoPrice) error {
	_, err := d.DB.Exec(`
		INSERT INTO crypto_prices
			(symbol, timestamp, price, change_24h, change_24h_percent, volume_24h, market_cap, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (symbol, timestamp) DO UPDATE SET
			price = excluded.price,
			change_24h = excluded.change_24h,
			change_24h_percent = excluded.change_24h_percent,
			volume_24h = excluded.volume_24h,
			market_cap = excluded.market_cap,
			fetched_at = excluded.fetched_at;
	`, p.Symbol, p.Timestamp, p.Price, p.Change24h, p.Change24hPercent,
		p.Volume24h, p.MarketCap, p.FetchedAt)
	return err
}

// -----------------------------------------------------------------------------

func (d *SQLiteDB) UpsertStockQuote(q models.MStockQuote) error {
	_, err := d.DB.Exec(`
		INSERT INTO stock_quotes
			(ticker, timestamp, price, high_24h, low_24h, volume_24h, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (ticker, timestamp) DO UPDATE SET
			price = excluded.price,
			high_24h = excluded.high_24h,
			low_24h = excluded.low_24h,
			volume_24h = excluded.volume_24h,
			fetched_at = excluded.fetched_at;
	`, q.Ticker, q.Timestamp, q.Price, q.High24h, q.Low24h, q.Volume24h, q.FetchedAt)
	return err
}

// -----------------------------------------------------------------------------

func (d *SQLiteDB) SaveDerivedMetrics(m models.MDerivedMetrics) error {
	_, err := d.DB.Exec(`
		INSERT INTO derived_metrics
			(ticker, crypto_symbol, timestamp, treasury_value, nav_per_share, premium_to_nav, crypto_yield, dilution)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (ticker, timestamp) DO UPDATE SET
			treasury_value = excluded.treasury_value,
			nav_per_share = excluded.nav_per_share,
			premium_to_nav = excluded.premium_to_nav,
			crypto_yield = excluded.crypto_yield,
			dilution = excluded.dilution;
	`, m.Ticker, m.CryptoSymbol, m.Timestamp, m.TreasuryValue, m.NAVPerShare,
		m.PremiumToNAV, m.CryptoYield, m.Dilution)
	return err
}

// -----------------------------------------------------------------------------

func (d *SQLiteDB) UpsertCompany(c models.MCompany) error {
	_, err := d.DB.Exec(`
		INSERT INTO companies
			(ticker, name, crypto_symbol, crypto_holdings, shares_outstanding, total_debt, cost_basis)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (ticker) DO UPDATE SET
			name = excluded.name,
			crypto_symbol = excluded.crypto_symbol,
			crypto_holdings = excluded.crypto_holdings,
			shares_outstanding = excluded.shares_outstanding,
			total_debt = excluded.total_debt,
			cost_basis = excluded.cost_basis;
	`, c.Ticker, c.Name, c.CryptoSymbol, c.CryptoHoldings, c.SharesOutstanding,
		c.TotalDebt, c.CostBasis)
	return err
}

// -----------------------------------------------------------------------------

func (d *SQLiteDB) GetCompany(ticker string) (*models.MCompany, error) {
	var c models.MCompany
	err := d.DB.QueryRow(`
		SELECT ticker, name, crypto_symbol, crypto_holdings, shares_outstanding, total_debt, cost_basis
		FROM companies WHERE ticker = ?;
	`, ticker).Scan(&c.Ticker, &c.Name, &c.CryptoSymbol, &c.CryptoHoldings,
		&c.SharesOutstanding, &c.TotalDebt, &c.CostBasis)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// -----------------------------------------------------------------------------

func (d *SQLiteDB) GetCompanyByCryptoSymbol(symbol string) (*models.MCompany, error) {
	var c models.MCompany
	err := d.DB.QueryRow(`
		SELECT ticker, name, crypto_symbol, crypto_holdings, shares_outstanding, total_debt, cost_basis
		FROM companies WHERE crypto_symbol = ? LIMIT 1;
	`, symbol).Scan(&c.Ticker, &c.Name, &c.CryptoSymbol, &c.CryptoHoldings,
		&c.SharesOutstanding, &c.TotalDebt, &c.CostBasis)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// -----------------------------------------------------------------------------

func (d *SQLiteDB) ListCompanies() ([]models.MCompany, error) {
	rows, err := d.DB.Query(`
		SELECT ticker, name, crypto_symbol, crypto_holdings, shares_outstanding, total_debt, cost_basis
		FROM companies ORDER BY ticker;
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.MCompany
	for rows.Next() {
		var c models.MCompany
		if err := rows.Scan(&c.Ticker, &c.Name, &c.CryptoSymbol, &c.CryptoHoldings,
			&c.SharesOutstanding, &c.TotalDebt, &c.CostBasis); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// -----------------------------------------------------------------------------

func (d *SQLiteDB) CleanupOldData() error {
	cutoff := time.Now().AddDate(0, 0, -d.Config.Storage.RetentionDays).Unix()

	for _, table := range []string{"crypto_prices", "stock_quotes", "derived_metrics"} {
		if _, err := d.DB.Exec(fmt.Sprintf("DELETE FROM %s WHERE timestamp < ?", table), cutoff); err != nil {
			return fmt.Errorf("failed to clean %s: %w", table, err)
		}
	}
	return nil
}

// -----------------------------------------------------------------------------

func (d *SQLiteDB) Close() error {
	if d.DB != nil {
		return d.DB.Close()
	}
	return nil
}
