package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"kakioki/internal/domain"
)

// HTTP is the relay client for one signed-in user.
type HTTP struct {
	Base string
	User domain.UserID
	HTTP *http.Client
}

func NewHTTP(base string, user domain.UserID) *HTTP {
	return &HTTP{Base: base, User: user, HTTP: http.DefaultClient}
}

// StatusError is a non-2xx relay response.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Status string
	Msg    string
}

func (e *StatusError) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("relay %s %s: %s: %s", e.Method, e.Path, e.Status, e.Msg)
	}
	return fmt.Sprintf("relay %s %s: %s", e.Method, e.Path, e.Status)
}

// Unwrap maps well-known responses onto domain errors.
func (e *StatusError) Unwrap() error {
	switch {
	case e.Code == http.StatusForbidden && e.Msg == domain.UserMessage(domain.ErrBlocked):
		return domain.ErrBlocked
	case e.Code == http.StatusNotFound:
		return ErrNotFound
	}
	return nil
}

func (c *HTTP) OpenThread(ctx context.Context, peer domain.UserID) (domain.Thread, error) {
	var out threadResponse
	if err := c.post(ctx, "/api/thread", threadRequest{PeerID: peer}, &out); err != nil {
		return domain.Thread{}, err
	}
	return out.Thread, nil
}

func (c *HTTP) FetchHistory(ctx context.Context, threadID domain.ThreadID, q domain.HistoryQuery) (domain.HistoryPage, error) {
	v := url.Values{}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.After != nil {
		v.Set("after", q.After.UTC().Format(time.RFC3339Nano))
	}
	path := "/api/chat/" + url.PathEscape(threadID.String())
	if len(v) > 0 {
		path += "?" + v.Encode()
	}
	var out historyResponse
	if err := c.getJSON(ctx, path, &out); err != nil {
		return domain.HistoryPage{}, err
	}
	return domain.HistoryPage{Thread: out.Thread, Messages: out.Messages}, nil
}

// FetchMessage returns nil when the relay has no such record.
func (c *HTTP) FetchMessage(ctx context.Context, threadID domain.ThreadID, clientMessageID string) (*domain.MessageRecord, error) {
	v := url.Values{"threadId": {threadID.String()}, "clientMessageId": {clientMessageID}}
	var out messageResponse
	err := c.getJSON(ctx, "/api/chat/message?"+v.Encode(), &out)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out.Message, nil
}

func (c *HTTP) SendMessage(ctx context.Context, req domain.SendRequest) (domain.SendResult, error) {
	var out sendResponse
	if err := c.post(ctx, "/api/chat/send", req, &out); err != nil {
		return domain.SendResult{}, err
	}
	return domain.SendResult{ThreadID: out.ThreadID, Message: out.Message}, nil
}

func (c *HTTP) UpdateStatus(ctx context.Context, req domain.StatusRequest) ([]domain.MessageRecord, error) {
	var out statusResponse
	if err := c.post(ctx, "/api/chat/status", req, &out); err != nil {
		return nil, err
	}
	return out.Updated, nil
}

func (c *HTTP) Block(ctx context.Context, req domain.ControlRequest) (domain.ControlResult, error) {
	return c.control(ctx, "/api/chat/block", req)
}

func (c *HTTP) Unblock(ctx context.Context, req domain.ControlRequest) (domain.ControlResult, error) {
	return c.control(ctx, "/api/chat/unblock", req)
}

func (c *HTTP) Remove(ctx context.Context, req domain.ControlRequest) (domain.ControlResult, error) {
	return c.control(ctx, "/api/chat/remove", req)
}

func (c *HTTP) control(ctx context.Context, path string, req domain.ControlRequest) (domain.ControlResult, error) {
	var out controlResponse
	if err := c.post(ctx, path, req, &out); err != nil {
		return domain.ControlResult{}, err
	}
	return domain.ControlResult{ThreadID: out.ThreadID}, nil
}

func (c *HTTP) Profile(ctx context.Context, id domain.UserID) (domain.Profile, error) {
	var out profileResponse
	if err := c.getJSON(ctx, "/api/friend/profile?friendId="+id.String(), &out); err != nil {
		return domain.Profile{}, err
	}
	return domain.Profile{UserID: out.Friend.ID, Username: out.Friend.Username, PublicKey: out.Friend.PublicKey}, nil
}

// PublishProfile uploads the signed-in user's public key.
func (c *HTTP) PublishProfile(ctx context.Context, username, publicKey string) error {
	return c.post(ctx, "/api/profile", publishProfileRequest{Username: username, PublicKey: publicKey}, nil)
}

func (c *HTTP) post(ctx context.Context, path string, in any, out any) error {
	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(in); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Base+path, buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, path, out)
}

func (c *HTTP) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.Base+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, path, out)
}

func (c *HTTP) do(req *http.Request, path string, out any) error {
	req.Header.Set(UserHeader, c.User.String())
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		var body errorResponse
		_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&body)
		return &StatusError{Method: req.Method, Path: path, Code: resp.StatusCode, Status: resp.Status, Msg: body.Error}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

var (
	_ domain.PersistenceService = (*HTTP)(nil)
	_ domain.Directory          = (*HTTP)(nil)
)
