// Package client is the participant side of a room: HTTP calls, a local mirror
// of the room record and the live channel subscription.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/0Azuree/Ledeqth-sub000/internal/core"
	"github.com/0Azuree/Ledeqth-sub000/internal/domain"
)

// API calls the room endpoints. Failures come back as *domain.Error with the
// kind recovered from the status code.
type API struct {
	BaseURL string // e.g. http://localhost:8080/api
	AppID   string
	Token   string
	HTTP    *http.Client
}

func NewAPI(baseURL, appID string) *API {
	return &API{
		BaseURL: strings.TrimRight(baseURL, "/"),
		AppID:   appID,
		HTTP:    &http.Client{Timeout: 10 * time.Second},
	}
}

type roomBody struct {
	RoomCode domain.RoomCode `json:"roomCode"`
	Username string          `json:"username"`
	UserID   domain.UserID   `json:"userId"`
	AppID    string          `json:"appId,omitempty"`
}

type commandBody struct {
	UserID   domain.UserID   `json:"userId"`
	Username string          `json:"username"`
	RoomCode domain.RoomCode `json:"roomCode"`
	Command  string          `json:"command"`
	Args     []string        `json:"args"`
	AppID    string          `json:"appId,omitempty"`
}

type reply struct {
	Message  string          `json:"message"`
	RoomCode domain.RoomCode `json:"roomCode"`
	RoomData *domain.Room    `json:"roomData"`
	Auth     string          `json:"auth"`
	UserID   domain.UserID   `json:"userId"`
	Username string          `json:"username"`
	Token    string          `json:"token"`
}

func kindOf(status int) domain.Kind {
	switch status {
	case http.StatusBadRequest:
		return domain.KindBadRequest
	case http.StatusUnauthorized, http.StatusForbidden:
		return domain.KindForbidden
	case http.StatusConflict:
		return domain.KindConflict
	case http.StatusNotFound:
		return domain.KindNotFound
	default:
		return domain.KindInternal
	}
}

func (a *API) do(req *http.Request) (reply, error) {
	if a.Token != "" {
		req.Header.Set("Authorization", "Bearer "+a.Token)
	}
	resp, err := a.HTTP.Do(req)
	if err != nil {
		return reply{}, domain.Internal("Could not reach the server.", err)
	}
	defer resp.Body.Close()

	var out reply
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil && resp.StatusCode == http.StatusOK {
		return reply{}, domain.Internal("Malformed server reply.", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := out.Message
		if msg == "" {
			msg = resp.Status
		}
		log.Debug().Str("module", "client").Str("path", req.URL.Path).Int("status", resp.StatusCode).Msg(msg)
		return reply{}, &domain.Error{Kind: kindOf(resp.StatusCode), Msg: msg}
	}
	return out, nil
}

func (a *API) post(ctx context.Context, path string, body any) (reply, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return reply{}, domain.Internal("encode request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.BaseURL+path, bytes.NewReader(raw))
	if err != nil {
		return reply{}, domain.Internal("build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return a.do(req)
}

// Identity asks the server for an anonymous identity and keeps its token.
func (a *API) Identity(ctx context.Context, username string) (domain.User, error) {
	out, err := a.post(ctx, "/identity", map[string]string{"username": username})
	if err != nil {
		return domain.User{}, err
	}
	a.Token = out.Token
	return domain.User{ID: out.UserID, Username: out.Username}, nil
}

func (a *API) CreateRoom(ctx context.Context, code domain.RoomCode, user domain.User) error {
	_, err := a.post(ctx, "/createRoom", roomBody{RoomCode: code, Username: user.Username, UserID: user.ID, AppID: a.AppID})
	return err
}

func (a *API) JoinRoom(ctx context.Context, code domain.RoomCode, user domain.User) (*domain.Room, error) {
	out, err := a.post(ctx, "/joinRoom", roomBody{RoomCode: code, Username: user.Username, UserID: user.ID, AppID: a.AppID})
	if err != nil {
		return nil, err
	}
	if out.RoomData == nil {
		return nil, domain.Internal("Malformed server reply.", fmt.Errorf("joinRoom: no roomData"))
	}
	return out.RoomData, nil
}

func (a *API) LeaveRoom(ctx context.Context, code domain.RoomCode, user domain.User) (string, error) {
	out, err := a.post(ctx, "/leaveRoom", roomBody{RoomCode: code, Username: user.Username, UserID: user.ID, AppID: a.AppID})
	return out.Message, err
}

// AdminCommand sends a "!" line as typed. args may be nil, in which case the
// server splits the line itself.
func (a *API) AdminCommand(ctx context.Context, code domain.RoomCode, user domain.User, command string, args []string) (string, error) {
	if args == nil {
		args = []string{}
	}
	out, err := a.post(ctx, "/adminCommand", commandBody{
		UserID: user.ID, Username: user.Username, RoomCode: code,
		Command: command, Args: args, AppID: a.AppID,
	})
	return out.Message, err
}

// ChannelAuth gets the signature that lets socketID subscribe to channel.
func (a *API) ChannelAuth(ctx context.Context, socketID core.SocketID, channel string, user domain.User) (string, error) {
	form := url.Values{"socket_id": {string(socketID)}, "channel_name": {channel}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.BaseURL+"/channelAuth", strings.NewReader(form.Encode()))
	if err != nil {
		return "", domain.Internal("build request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("x-user-id", string(user.ID))
	req.Header.Set("x-username", user.Username)
	out, err := a.do(req)
	return out.Auth, err
}

func (a *API) Room(ctx context.Context, code domain.RoomCode) (*domain.Room, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.BaseURL+"/rooms/"+url.PathEscape(string(code)), nil)
	if err != nil {
		return nil, domain.Internal("build request", err)
	}
	out, err := a.do(req)
	if err != nil {
		return nil, err
	}
	return out.RoomData, nil
}

// WebsocketURL derives the ws endpoint from the API base URL.
func (a *API) WebsocketURL(user domain.User) (string, error) {
	u, err := url.Parse(a.BaseURL + "/ws")
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	q := u.Query()
	if a.Token != "" {
		q.Set("token", a.Token)
	} else {
		q.Set("user_id", string(user.ID))
		q.Set("username", user.Username)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
