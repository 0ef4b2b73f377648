package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"strings"

	_ "modernc.org/sqlite"
)

func main() {
	dbPath := "./data/mft.db"
	if len(os.Args) > 1 {
		dbPath = os.Args[1]
	}
	fmt.Printf("Verifying database at: %s\n", dbPath)

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		log.Fatalf("Failed to open DB: %v", err)
	}
	defer db.Close()

	tables := []string{"observations", "orders", "daily_stats", "processed_decisions", "quality_issues"}
	for _, table := range tables {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err == sql.ErrNoRows {
			fmt.Printf("❌ table %s MISSING\n", table)
			continue
		}
		if err != nil {
			log.Fatalf("Query failed: %v", err)
		}
		fmt.Printf("✓ table %s exists\n", table)
	}

	var schema string
	if err := db.QueryRow("SELECT sql FROM sqlite_master WHERE type='table' AND name='orders'").Scan(&schema); err == nil {
		for _, col := range []string{"decision_id", "close_reason", "realized_profit"} {
			if strings.Contains(schema, col) {
				fmt.Printf("✓ orders.%s exists\n", col)
			} else {
				fmt.Printf("❌ orders.%s MISSING\n", col)
			}
		}
	}
}
