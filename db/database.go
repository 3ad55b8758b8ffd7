package db

import (
	"database/sql"
	"fmt"
	"log"

	"Resona/config"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
)

var DB *sql.DB

// ConnectDB establishes a connection to the database.
func ConnectDB(cfg *config.Config) error {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true",
		cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)

	var err error
	DB, err = sql.Open("mysql", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}

	if err = DB.Ping(); err != nil {
		DB.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	log.Println("Successfully connected to the database.")
	return nil
}

// InitDB initializes the database schema, creating tables if they don't
// exist.
func InitDB() error {
	if err := createUsersTable(); err != nil {
		return err
	}
	if err := createProjectsTable(); err != nil {
		return err
	}
	if err := createTracksTable(); err != nil {
		return err
	}
	if err := createRegionsTable(); err != nil {
		return err
	}

	log.Println("Database initialization completed.")
	return nil
}

func createUsersTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS users (
		id INT AUTO_INCREMENT PRIMARY KEY,
		username VARCHAR(100) NOT NULL UNIQUE,
		email VARCHAR(255) NOT NULL UNIQUE,
		password_hash VARCHAR(255) NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
	);
	`
	if _, err := DB.Exec(query); err != nil {
		return fmt.Errorf("failed to create users table: %w", err)
	}
	return nil
}

func createProjectsTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS projects (
		id VARCHAR(64) PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
	);
	`
	if _, err := DB.Exec(query); err != nil {
		return fmt.Errorf("failed to create projects table: %w", err)
	}
	return nil
}

func createTracksTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS tracks (
		id VARCHAR(64) PRIMARY KEY,
		project_id VARCHAR(64) NOT NULL,
		name VARCHAR(255) NOT NULL,
		kind VARCHAR(16) NOT NULL DEFAULT 'audio',
		volume DOUBLE NOT NULL DEFAULT 1,
		pan DOUBLE NOT NULL DEFAULT 0,
		file_path VARCHAR(767),
		uploaded TINYINT(1) NOT NULL DEFAULT 0,
		deleted TINYINT(1) NOT NULL DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		INDEX idx_tracks_project (project_id)
	);
	`
	if _, err := DB.Exec(query); err != nil {
		return fmt.Errorf("failed to create tracks table: %w", err)
	}
	return nil
}

func createRegionsTable() error {
	// "end" is a reserved word in MySQL, so the interval columns are
	// backtick-quoted.
	query := "CREATE TABLE IF NOT EXISTS regions (\n" +
		"  id VARCHAR(64) PRIMARY KEY,\n" +
		"  track_id VARCHAR(64) NOT NULL,\n" +
		"  project_id VARCHAR(64) NOT NULL,\n" +
		"  `start` DOUBLE NOT NULL,\n" +
		"  `end` DOUBLE NOT NULL,\n" +
		"  offset_start DOUBLE NOT NULL DEFAULT 0,\n" +
		"  offset_end DOUBLE NOT NULL DEFAULT 0,\n" +
		"  total_duration DOUBLE NOT NULL DEFAULT 0,\n" +
		"  created_by VARCHAR(64) NOT NULL,\n" +
		"  conflicts TINYINT(1) NOT NULL DEFAULT 0,\n" +
		"  conflicts_with VARCHAR(64),\n" +
		"  deleted TINYINT(1) NOT NULL DEFAULT 0,\n" +
		"  created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,\n" +
		"  updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,\n" +
		"  INDEX idx_regions_track (track_id),\n" +
		"  INDEX idx_regions_project (project_id)\n" +
		");"
	if _, err := DB.Exec(query); err != nil {
		return fmt.Errorf("failed to create regions table: %w", err)
	}
	return nil
}
