package transfers

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/seekd/seekd/pkg/seekerr"
	"github.com/seekd/seekd/pkg/store"
)

// recordOf maps a transfer to its persisted row.
func recordOf(t *Transfer) *store.TransferRecord {
	rec := &store.TransferRecord{
		ID:               t.ID.String(),
		Direction:        t.Direction.String(),
		Username:         t.Username,
		RemoteFilename:   t.RemoteFilename,
		LocalFilename:    t.LocalFilename,
		Size:             t.Size,
		StartOffset:      t.StartOffset,
		BytesTransferred: t.BytesTransferred,
		AverageSpeed:     t.AverageSpeed,
		State:            t.State.String(),
		EnqueuedAt:       t.EnqueuedAt,
		StartedAt:        t.StartedAt,
		EndedAt:          t.EndedAt,
	}
	if t.Failure != nil {
		if b, err := json.Marshal(t.Failure); err == nil {
			rec.FailureJSON = string(b)
		}
	}
	return rec
}

// transferOf rebuilds a transfer from its persisted row.
func transferOf(rec *store.TransferRecord) (Transfer, error) {
	id, err := uuid.Parse(rec.ID)
	if err != nil {
		return Transfer{}, seekerr.Wrap(seekerr.KindInternal, "parsing transfer id", err)
	}
	direction, ok := ParseDirection(rec.Direction)
	if !ok {
		return Transfer{}, seekerr.Newf(seekerr.KindInternal, "unknown transfer direction %q", rec.Direction)
	}
	state, ok := ParseState(rec.State)
	if !ok {
		return Transfer{}, seekerr.Newf(seekerr.KindInternal, "unknown transfer state %q", rec.State)
	}
	t := Transfer{
		ID:               id,
		Direction:        direction,
		Username:         rec.Username,
		RemoteFilename:   rec.RemoteFilename,
		LocalFilename:    rec.LocalFilename,
		Size:             rec.Size,
		StartOffset:      rec.StartOffset,
		BytesTransferred: rec.BytesTransferred,
		AverageSpeed:     rec.AverageSpeed,
		State:            state,
		EnqueuedAt:       rec.EnqueuedAt,
		StartedAt:        rec.StartedAt,
		EndedAt:          rec.EndedAt,
	}
	if rec.FailureJSON != "" {
		var detail FailureDetail
		if err := json.Unmarshal([]byte(rec.FailureJSON), &detail); err == nil {
			t.Failure = &detail
		}
	}
	return t, nil
}
