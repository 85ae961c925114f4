package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"market-pipeline/src/logger"
	"market-pipeline/src/models"

	_ "github.com/lib/pq"
)

// -----------------------------------------------------------------------------

type PostgresDB struct {
	Config *models.MConfig
	DB     *sql.DB
	Schema string
	Logger *logger.Logger
}

// -----------------------------------------------------------------------------

func NewPostgresDB(cfg *models.MConfig, log *logger.Logger) (*PostgresDB, error) {
	// Derive the schema from the app name so several deployments can share a
	// cluster. Quoted in SQL below.
	schema := strings.ToLower(strings.ReplaceAll(cfg.Name, " ", "_"))
	if schema == "" {
		return nil, fmt.Errorf("cannot derive schema from empty app name")
	}

	return &PostgresDB{
		Config: cfg,
		Schema: schema,
		Logger: log,
	}, nil
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) Initialize() error {
	dsn := d.Config.Storage.DBConnectionString
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return err
	}

	if err := db.Ping(); err != nil {
		return err
	}

	d.DB = db

	// Create Schema
	if _, err := d.DB.Exec(fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS "%s"`, d.Schema)); err != nil {
		return fmt.Errorf("failed to create schema %s: %w", d.Schema, err)
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
			d.Logger.Error("PostgresDB: Failed to seed company %s: %v", c.Ticker, err)
		}
	}

	d.Logger.Info("PostgresDB initialized successfully (Schema: %s)", d.Schema)
	return nil
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) createTables() error {
	queries := []string{
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS "%s"."crypto_prices" (
				symbol TEXT,
				timestamp BIGINT,
				price DOUBLE PRECISION,
				change_24h DOUBLE PRECISION,
				change_24h_percent DOUBLE PRECISION,
				volume_24h DOUBLE PRECISION,
				market_cap DOUBLE PRECISION,
				fetched_at BIGINT,
				PRIMARY KEY (symbol, timestamp)
			);
		`, d.Schema),
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS "%s"."stock_quotes" (
				ticker TEXT,
				timestamp BIGINT,
				price DOUBLE PRECISION,
				high_24h DOUBLE PRECISION,
				low_24h DOUBLE PRECISION,
				volume_24h DOUBLE PRECISION,
				fetched_at BIGINT,
				PRIMARY KEY (ticker, timestamp)
			);
		`, d.Schema),
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS "%s"."derived_metrics" (
				ticker TEXT,
				crypto_symbol TEXT,
				timestamp BIGINT,
				treasury_value DOUBLE PRECISION,
				nav_per_share DOUBLE PRECISION,
				premium_to_nav DOUBLE PRECISION,
				crypto_yield DOUBLE PRECISION,
				dilution DOUBLE PRECISION,
				PRIMARY KEY (ticker, timestamp)
			);
		`, d.Schema),
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS "%s"."companies" (
				ticker TEXT PRIMARY KEY,
				name TEXT,
				crypto_symbol TEXT,
				crypto_holdings DOUBLE PRECISION,
				shares_outstanding DOUBLE PRECISION,
				total_debt DOUBLE PRECISION,
				cost_basis DOUBLE PRECISION
			);
		`, d.Schema),
	}

	for _, q := range queries {
		if _, err := d.DB.Exec(q); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	return nil
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) UpsertCryptoPrice(p models.MCryptoPrice) error {
	query := fmt.Sprintf(`
		INSERT INTO "%s"."crypto_prices"
			(symbol, timestamp, price, change_24h, change_24h_percent, volume_24h, market_cap, fetched_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (symbol, timestamp) DO UPDATE SET
			price = EXCLUDED.price,
			change_24h = EXCLUDED.change_24h,
			change_24h_percent = EXCLUDED.change_24h_percent,
			volume_24h = EXCLUDED.volume_24h,
			market_cap = EXCLUDED.market_cap,
			fetched_at = EXCLUDED.fetched_at;
	`, d.Schema)

	_, err := d.DB.Exec(query, p.Symbol, p.Timestamp, p.Price, p.Change24h,
		p.Change24hPercent, p.Volume24h, p.MarketCap, p.FetchedAt)
	return err
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) UpsertStockQuote(q models.MStockQuote) error {
	query := fmt.Sprintf(`
		INSERT INTO "%s"."stock_quotes"
			(ticker, timestamp, price, high_24h, low_24h, volume_24h, fetched_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (ticker, timestamp) DO UPDATE SET
			price = EXCLUDED.price,
			high_24h = EXCLUDED.high_24h,
			low_24h = EXCLUDED.low_24h,
			volume_24h = EXCLUDED.volume_24h,
			fetched_at = EXCLUDED.fetched_at;
	`, d.Schema)

	_, err := d.DB.Exec(query, q.Ticker, q.Timestamp, q.Price, q.High24h,
		q.Low24h, q.Volume24h, q.FetchedAt)
	return err
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) SaveDerivedMetrics(m models.MDerivedMetrics) error {
	query := fmt.Sprintf(`
		INSERT INTO "%s"."derived_metrics"
			(ticker, crypto_symbol, timestamp, treasury_value, nav_per_share, premium_to_nav, crypto_yield, dilution)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (ticker, timestamp) DO UPDATE SET
			treasury_value = EXCLUDED.treasury_value,
			nav_per_share = EXCLUDED.nav_per_share,
			premium_to_nav = EXCLUDED.premium_to_nav,
			crypto_yield = EXCLUDED.crypto_yield,
			dilution = EXCLUDED.dilution;
	`, d.Schema)

	_, err := d.DB.Exec(query, m.Ticker, m.CryptoSymbol, m.Timestamp, m.TreasuryValue,
		m.NAVPerShare, m.PremiumToNAV, m.CryptoYield, m.Dilution)
	return err
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) UpsertCompany(c models.MCompany) error {
	query := fmt.Sprintf(`
		INSERT INTO "%s"."companies"
			(ticker, name, crypto_symbol, crypto_holdings, shares_outstanding, total_debt, cost_basis)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (ticker) DO UPDATE SET
			name = EXCLUDED.name,
			crypto_symbol = EXCLUDED.crypto_symbol,
			crypto_holdings = EXCLUDED.crypto_holdings,
			shares_outstanding = EXCLUDED.shares_outstanding,
			total_debt = EXCLUDED.total_debt,
			cost_basis = EXCLUDED.cost_basis;
	`, d.Schema)

	_, err := d.DB.Exec(query, c.Ticker, c.Name, c.CryptoSymbol, c.CryptoHoldings,
		c.SharesOutstanding, c.TotalDebt, c.CostBasis)
	return err
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) GetCompany(ticker string) (*models.MCompany, error) {
	query := fmt.Sprintf(`
		SELECT ticker, name, crypto_symbol, crypto_holdings, shares_outstanding, total_debt, cost_basis
		FROM "%s"."companies" WHERE ticker = $1;
	`, d.Schema)

	var c models.MCompany
	err := d.DB.QueryRow(query, ticker).Scan(&c.Ticker, &c.Name, &c.CryptoSymbol,
		&c.CryptoHoldings, &c.SharesOutstanding, &c.TotalDebt, &c.CostBasis)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) GetCompanyByCryptoSymbol(symbol string) (*models.MCompany, error) {
	query := fmt.Sprintf(`
		SELECT ticker, name, crypto_symbol, crypto_holdings, shares_outstanding, total_debt, cost_basis
		FROM "%s"."companies" WHERE crypto_symbol = $1 LIMIT 1;
	`, d.Schema)

	var c models.MCompany
	err := d.DB.QueryRow(query, symbol).Scan(&c.Ticker, &c.Name, &c.CryptoSymbol,
		&c.CryptoHoldings, &c.SharesOutstanding, &c.TotalDebt, &c.CostBasis)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) ListCompanies() ([]models.MCompany, error) {
	query := fmt.Sprintf(`
		SELECT ticker, name, crypto_symbol, crypto_holdings, shares_outstanding, total_debt, cost_basis
		FROM "%s"."companies" ORDER BY ticker;
	`, d.Schema)

	rows, err := d.DB.Query(query)
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

func (d *PostgresDB) CleanupOldData() error {
	cutoff := time.Now().AddDate(0, 0, -d.Config.Storage.RetentionDays).Unix()

	for _, table := range []string{"crypto_prices", "stock_quotes", "derived_metrics"} {
		query := fmt.Sprintf(`DELETE FROM "%s"."%s" WHERE timestamp < $1;`, d.Schema, table)
		if _, err := d.DB.Exec(query, cutoff); err != nil {
			return fmt.Errorf("failed to clean %s: %w", table, err)
		}
	}
	return nil
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) Close() error {
	if d.DB != nil {
		return d.DB.Close()
	}
	return nil
}
