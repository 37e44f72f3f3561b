package database

import (
	"database/sql"
	"time"

	"cvreview/config"
	"cvreview/pkg/logger"

	_ "github.com/lib/pq"
)

// Connect opens the PostgreSQL pool and waits for it to answer, retrying a
// few times for transient network errors. It exits the process on failure.
func Connect(cfg config.Database) *sql.DB {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		logger.Sugar.Fatalf("Failed to open database connection: %v", err)
	}

	for i := 0; i < 5; i++ {
		if err = db.Ping(); err == nil {
			logger.Sugar.Infof("Successfully connected to the database at %s:%s", cfg.Host, cfg.Port)
			return db
		}
		logger.Sugar.Infof("Database connection failed, retrying in 2s... (%v)", err)
		time.Sleep(2 * time.Second)
	}
	logger.Sugar.Fatal("Could not connect to database after retries.")
	return nil
}
