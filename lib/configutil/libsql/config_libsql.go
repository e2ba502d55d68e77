// Package configlibsql opens the record database described by a config file, either a
// local sqlite file or a remote libsql server.
package configlibsql

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

const Memory = ":memory:"

type Struct struct {
	// File is a sqlite database path, it is created if it does not exist.
	File string `json:"file" yaml:"file"`
	// Url is a libsql server url, it takes precedence over File.
	Url       string `json:"url" yaml:"url"`
	AuthToken string `json:"auth_token" yaml:"auth_token"`
}

func (config Struct) OpenDB() (*sql.DB, error) {
	if config.Url != "" {
		return config.openRemote()
	}
	if config.File == "" {
		return nil, fmt.Errorf("a path was not specified")
	}

	if config.File != Memory {
		_, statErr := os.Stat(config.File)
		isNewDb := os.IsNotExist(statErr)
		if isNewDb {
			f, err := os.Create(config.File)
			if err != nil {
				return nil, err
			}
			f.Close()
		}
	}

	db, err := sql.Open("sqlite", config.File)
	if err != nil {
		return nil, err
	}
	// see this stackoverflow post for information on why the following
	// lines exist: https://stackoverflow.com/questions/35804884/sqlite-concurrent-writing-performance
	db.SetMaxOpenConns(1)
	if config.File != Memory {
		_, err = db.Exec("PRAGMA journal_mode=WAL")
		if err != nil {
			db.Close()
			return nil, err
		}
	}

	return db, nil
}

func (config Struct) openRemote() (*sql.DB, error) {
	u, err := url.Parse(config.Url)
	if err != nil {
		return nil, fmt.Errorf("parse libsql url: %w", err)
	}
	if config.AuthToken != "" {
		q := u.Query()
		q.Set("authToken", config.AuthToken)
		u.RawQuery = q.Encode()
	}
	return sql.Open("libsql", u.String())
}
