package relay

import (
	"context"
	"errors"

	"kakioki/internal/domain"
)

// View is a Backend seen by one user. It satisfies domain.PersistenceService
// and domain.Directory without a network hop.
type View struct {
	b    *Backend
	user domain.UserID
}

func (v *View) OpenThread(ctx context.Context, peer domain.UserID) (domain.Thread, error) {
	return v.b.OpenThread(ctx, v.user, peer)
}

func (v *View) FetchHistory(ctx context.Context, threadID domain.ThreadID, q domain.HistoryQuery) (domain.HistoryPage, error) {
	return v.b.History(ctx, v.user, threadID, q)
}

func (v *View) FetchMessage(ctx context.Context, threadID domain.ThreadID, clientMessageID string) (*domain.MessageRecord, error) {
	rec, err := v.b.Message(ctx, v.user, threadID, clientMessageID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (v *View) SendMessage(ctx context.Context, req domain.SendRequest) (domain.SendResult, error) {
	return v.b.Send(ctx, v.user, req)
}

func (v *View) UpdateStatus(ctx context.Context, req domain.StatusRequest) ([]domain.MessageRecord, error) {
	return v.b.UpdateStatus(ctx, v.user, req)
}

func (v *View) Block(ctx context.Context, req domain.ControlRequest) (domain.ControlResult, error) {
	return v.b.Block(ctx, v.user, req)
}

func (v *View) Unblock(ctx context.Context, req domain.ControlRequest) (domain.ControlResult, error) {
	return v.b.Unblock(ctx, v.user, req)
}

func (v *View) Remove(ctx context.Context, req domain.ControlRequest) (domain.ControlResult, error) {
	return v.b.Remove(ctx, v.user, req)
}

func (v *View) Profile(ctx context.Context, id domain.UserID) (domain.Profile, error) {
	return v.b.Profile(ctx, id)
}

var (
	_ domain.PersistenceService = (*View)(nil)
	_ domain.Directory          = (*View)(nil)
)
