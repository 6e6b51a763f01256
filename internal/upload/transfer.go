package upload

import (
	"context"
	"fmt"

	"github.com/printforge/upload/internal/apperr"
	"github.com/printforge/upload/internal/identity"
	"github.com/printforge/upload/internal/storage"
)

// TransferResult counts what a transfer moved.
type TransferResult struct {
	TransferredCount int `json:"transferred_count"`
	FilesMoved       int `json:"files_moved"`
}

// Transfer moves every upload of sessionID to userID: each file's object
// is moved into the user's namespace before its key is rewritten, then the
// uploads are rebound and the session's quota entries re-keyed in one
// transaction. Transfers are refused while the session has pending uploads
// so a later confirm cannot debit a scope that no longer owns the upload.
//
// A transfer interrupted after some moves can be repeated: files already
// under the user's namespace are skipped. Once complete, repeats return
// zero counts.
func (s *Service) Transfer(ctx context.Context, sessionID, userID string) (*TransferResult, error) {
	if !identity.SafeID(sessionID) {
		return nil, apperr.Validation("invalid_session_id", "session_id", "session_id is required and must be a single path segment")
	}
	if !identity.SafeID(userID) {
		return nil, apperr.Validation("invalid_user_id", "user_id", "user_id is required and must be a single path segment")
	}

	uploads, err := s.store.ListSessionUploads(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list session uploads: %w", err)
	}
	for _, u := range uploads {
		if u.Status == StatusPending {
			return nil, apperr.New(apperr.KindConflict, "pending_uploads", u.ID,
				fmt.Errorf("%w: %s", ErrPendingUploads, sessionID))
		}
	}

	res := &TransferResult{}
	for _, u := range uploads {
		moved, err := s.moveFiles(ctx, u.ID, userID)
		res.FilesMoved += moved
		if err != nil {
			return nil, fmt.Errorf("transfer upload %s: %w", u.ID, err)
		}
	}

	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		now := s.now().UTC()
		for _, u := range uploads {
			if err := s.store.RebindToUser(ctx, u.ID, userID, now); err != nil {
				return fmt.Errorf("rebind upload %s: %w", u.ID, err)
			}
		}
		return s.ledger.Rekey(ctx, sessionID, userID)
	})
	if err != nil {
		return nil, err
	}
	res.TransferredCount = len(uploads)

	if res.TransferredCount > 0 {
		s.log.InfoContext(ctx, "session transferred",
			"session_id", sessionID, "user_id", userID,
			"uploads", res.TransferredCount, "files", res.FilesMoved)
	}
	return res, nil
}

func (s *Service) moveFiles(ctx context.Context, uploadID, userID string) (int, error) {
	files, err := s.store.ListFiles(ctx, uploadID)
	if err != nil {
		return 0, fmt.Errorf("list files: %w", err)
	}

	moved := 0
	for _, f := range files {
		if storage.IsUserKey(f.StorageKey, userID) {
			continue
		}
		newKey := storage.UserKey(userID, f.ID, storage.Ext(f.StorageKey))
		if err := s.objects.Move(ctx, f.StorageKey, newKey); err != nil {
			return moved, fmt.Errorf("move %s: %w", f.Filename, err)
		}
		if err := s.store.UpdateFileKey(ctx, f.ID, newKey); err != nil {
			return moved, fmt.Errorf("update key of %s: %w", f.Filename, err)
		}
		moved++
	}
	return moved, nil
}
