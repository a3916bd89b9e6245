package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/Leontarin/CareBell-sub000/internal/call"
	"github.com/Leontarin/CareBell-sub000/internal/config"
	"github.com/Leontarin/CareBell-sub000/internal/sigclient"
	"github.com/Leontarin/CareBell-sub000/internal/signaling"
)

// ConnectionContext bundles the signaling connection shared by the
// commands that talk to the server.
type ConnectionContext struct {
	Client  *sigclient.Client
	Handler *sigclient.Handler
	Config  *config.Config
}

func NewConnectionContext(cfg *config.Config) (*ConnectionContext, error) {
	client := sigclient.NewClient(cfg.WebSocketURL)
	if err := client.Connect(); err != nil {
		return nil, call.NewError("connect to server", err)
	}

	handler := sigclient.NewHandler(client)
	go handler.Start()

	return &ConnectionContext{
		Client:  client,
		Handler: handler,
		Config:  cfg,
	}, nil
}

func (c *ConnectionContext) Close() {
	if c.Client != nil {
		c.Client.Close()
	}
}

func LoadConfig(opts config.Options) (*config.Config, error) {
	cfg, err := config.Load(opts)
	if err != nil {
		return nil, call.NewError("load config", err)
	}

	if cfg.ForceRelay && cfg.GetTURNServers() == nil {
		return nil, fmt.Errorf("cannot force relay mode without TURN server configured")
	}

	return cfg, nil
}

var apiClient = &http.Client{Timeout: 10 * time.Second}

// fetchRoom looks one room up over the REST API. A missing room is not
// an error; it just has not been created yet.
func fetchRoom(cfg *config.Config, name string) (*signaling.RoomSnapshot, error) {
	resp, err := apiClient.Get(fmt.Sprintf("%s/api/rooms/%s", cfg.APIBaseURL, name))
	if err != nil {
		return nil, call.NewError("query room", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var snap signaling.RoomSnapshot
		if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
			return nil, call.NewError("decode room", err)
		}
		return &snap, nil
	case http.StatusNotFound:
		return nil, nil
	default:
		return nil, fmt.Errorf("room query failed: %s", resp.Status)
	}
}

// publishDisplayName records a display name in the server's user
// directory so the webapp can label this participant.
func publishDisplayName(cfg *config.Config, userID, name string) error {
	body, err := json.Marshal(map[string]string{"displayName": name})
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPut,
		fmt.Sprintf("%s/api/users/%s", cfg.APIBaseURL, userID), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := apiClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("user directory update failed: %s", resp.Status)
	}
	return nil
}

// createDurableRoom asks the server to register a room that survives
// emptying.
func createDurableRoom(cfg *config.Config, name string) error {
	body, err := json.Marshal(map[string]string{"name": name})
	if err != nil {
		return err
	}
	resp, err := apiClient.Post(cfg.APIBaseURL+"/api/rooms", "application/json", bytes.NewReader(body))
	if err != nil {
		return call.NewError("create room", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("room creation failed: %s", resp.Status)
	}
	return nil
}

// fetchRooms lists all rooms over the REST API.
func fetchRooms(cfg *config.Config) ([]signaling.RoomSnapshot, error) {
	resp, err := apiClient.Get(cfg.APIBaseURL + "/api/rooms")
	if err != nil {
		return nil, call.NewError("list rooms", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("room listing failed: %s", resp.Status)
	}

	var rooms []signaling.RoomSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&rooms); err != nil {
		return nil, call.NewError("decode rooms", err)
	}
	return rooms, nil
}
