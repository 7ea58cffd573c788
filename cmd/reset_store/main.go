package main

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"taxicoin/config"
	"taxicoin/pkg/logger"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.ServiceName)

	db, err := sql.Open("sqlite3", cfg.StorePath)
	if err != nil {
		panic(err)
	}
	defer db.Close()

	// Wipe the journey history but keep the messaging identity: dropping the
	// key would strand any rider still addressing the old public key.
	_, err = db.Exec("DELETE FROM journeys")
	if err != nil {
		log.Error(fmt.Sprintf("Failed to clear journey history: %v", err))
	} else {
		log.Info("Successfully cleared the journey history.")
	}
}
