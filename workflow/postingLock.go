package workflow

import (
	"fmt"

	"gorm.io/gorm"
)

// AcquireDocumentLock serializes edits per document across instances using
// MySQL advisory locks.
// NOTE: GET_LOCK is connection-scoped, so acquire and release must both run
// on the open transaction's handle, and release before it commits.
func AcquireDocumentLock(tx *gorm.DB, documentId int) error {
	lockName := fmt.Sprintf("document:%d", documentId)
	var ok int
	if err := tx.Raw("SELECT GET_LOCK(?, 30)", lockName).Scan(&ok).Error; err != nil {
		return err
	}
	if ok != 1 {
		return fmt.Errorf("could not acquire document lock for document_id=%d", documentId)
	}
	return nil
}

func ReleaseDocumentLock(tx *gorm.DB, documentId int) {
	lockName := fmt.Sprintf("document:%d", documentId)
	var _ok int
	_ = tx.Raw("SELECT RELEASE_LOCK(?)", lockName).Scan(&_ok).Error
}
