package main

import (
	"flag"
	"fmt"
	"os"

	"gorm.io/gorm"

	"github.com/Roon627/ITnVend-sub003/config"
	"github.com/Roon627/ITnVend-sub003/models"
)

// outbox-replay re-queues DEAD or FAILED outbox rows so the dispatcher picks
// them up again. Run after fixing whatever made delivery fail; attempt
// counters are reset so the rows get a fresh retry budget.
func main() {
	includeFailed := flag.Bool("include-failed", false, "Also re-queue FAILED rows (default: DEAD only)")
	dryRun := flag.Bool("dry-run", false, "If true, do not write; only print counts")
	flag.Parse()

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}

	statuses := []string{models.OutboxPublishStatusDead}
	if *includeFailed {
		statuses = append(statuses, models.OutboxPublishStatusFailed)
	}

	var count int64
	if err := db.Model(&models.OutboxRecord{}).
		Where("publish_status IN ?", statuses).
		Count(&count).Error; err != nil {
		fmt.Fprintln(os.Stderr, "count failed:", err)
		os.Exit(1)
	}
	fmt.Printf("matched %d outbox rows (%v)\n", count, statuses)

	if *dryRun {
		fmt.Println("[dry-run] no changes written")
		return
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		return tx.Model(&models.OutboxRecord{}).
			Where("publish_status IN ?", statuses).
			Updates(map[string]interface{}{
				"publish_status":  models.OutboxPublishStatusPending,
				"attempt_count":   0,
				"next_attempt_at": nil,
				"locked_at":       nil,
				"locked_by":       nil,
				"last_error":      nil,
			}).Error
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "replay failed:", err)
		os.Exit(1)
	}
	fmt.Println("re-queued for dispatch")
}
