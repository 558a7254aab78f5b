package commands

import (
	"database/sql"
	"fmt"

	"hwscraper-backend/lib/configutil"
	"hwscraper-backend/lib/keychain"
	"hwscraper-backend/lib/serviceutil"
	"hwscraper-backend/lib/session"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

type DatabaseConfig struct {
	File      string `json:"file"`
	Url       string `json:"url"`
	AuthToken string `json:"auth_token"`
}

type SiteConfig struct {
	BaseUrl string `json:"base_url"`
}

type BrowserConfig struct {
	MaxInstances int `json:"max_instances"`
}

type Config struct {
	Database     DatabaseConfig `json:"database"`
	Browser      BrowserConfig  `json:"browser"`
	Manodienynas SiteConfig     `json:"manodienynas"`
	Eduka        SiteConfig     `json:"eduka"`
}

func MustLoadConfig(path string) Config {
	config, err := configutil.ReadConfig[Config](path)
	if err != nil {
		serviceutil.Fatal("failed to read config", err)
	}
	return config
}

// OpenDB opens the local state database and makes sure both state
// tables exist. A remote libsql url takes precedence over the local
// file.
func OpenDB(config DatabaseConfig) (*sql.DB, error) {
	var db *sql.DB
	var err error
	if config.Url != "" {
		dsn := config.Url
		if config.AuthToken != "" {
			dsn = fmt.Sprintf("%s?authToken=%s", config.Url, config.AuthToken)
		}
		db, err = sql.Open("libsql", dsn)
	} else {
		file := config.File
		if file == "" {
			file = "scraperd.db"
		}
		db, err = sql.Open("sqlite", file)
	}
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(keychain.Schema); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(session.Schema); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
