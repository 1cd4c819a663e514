package main

import (
	"fmt"
	"os"

	"github.com/Roon627/ITnVend-sub003/config"
	"github.com/Roon627/ITnVend-sub003/models"
)

// migrate runs AutoMigrate and chart seeding as a standalone job, for
// deployments that start the server with SKIP_MIGRATIONS=true.
func main() {
	config.ConnectDatabaseWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}
	if err := models.MigrateTable(); err != nil {
		fmt.Fprintln(os.Stderr, "migration failed:", err)
		os.Exit(1)
	}
	fmt.Println("migration complete")
}
