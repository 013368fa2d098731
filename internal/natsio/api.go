// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the Airbridge License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package natsio

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/nishisan-dev/airbridge/internal/console"
	"github.com/nishisan-dev/airbridge/internal/devicelink"
	"github.com/nishisan-dev/airbridge/internal/radar"
)

// Opcodes da API de request/reply sobre NATS.
const (
	OpGetServerInfo = 0

	OpGetHumansCount      = 10
	OpGetHumansList       = 11
	OpGetHumansStatistics = 12

	OpKickHumanByCallsign = 20
	OpKickHumanByNumber   = 21
	OpKickAllHumans       = 22

	OpChatToAll         = 30
	OpChatToHuman       = 31
	OpChatToBelligerent = 32

	OpGetMissionInfo = 40
	OpLoadMission    = 41
	OpBeginMission   = 42
	OpEndMission     = 43
	OpUnloadMission  = 44

	OpGetMovingShipsPositions     = 50
	OpGetStationaryShipsPositions = 51
	OpGetAllShipsPositions        = 52

	OpGetAllMovingAircraftsPositions   = 53
	OpGetAllMovingGroundUnitsPositions = 54
	OpGetAllMovingActorsPositions      = 55

	OpGetAllHousesPositions            = 56
	OpGetAllStationaryObjectsPositions = 57
	OpGetAllStationaryActorsPositions  = 58
)

// Status das respostas.
const (
	StatusSuccess = 0
	StatusFailure = 1
)

// maxKickedHumans limita o kick-all sem consulta prévia da lista.
const maxKickedHumans = 128

// Request é o envelope das mensagens recebidas no subject da API.
type Request struct {
	Opcode  int             `json:"opcode"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Response é o envelope publicado no reply subject.
type Response struct {
	Status  int    `json:"status"`
	Payload any    `json:"payload,omitempty"`
	Details string `json:"details,omitempty"`
}

// ConsoleAPI é o subconjunto do client de console exposto pela API.
type ConsoleAPI interface {
	GetServerInfo(ctx context.Context) (console.ServerInfo, error)
	GetHumansCount(ctx context.Context) (int, error)
	GetHumansList(ctx context.Context) ([]console.Human, error)
	GetHumansStatistics(ctx context.Context) ([]console.HumanStatistics, error)
	KickByCallsign(ctx context.Context, callsign string) error
	KickByNumber(ctx context.Context, number int) error
	KickAll(ctx context.Context, maxHumans int) error
	ChatToAll(ctx context.Context, message string) error
	ChatToHuman(ctx context.Context, message, callsign string) error
	ChatToBelligerent(ctx context.Context, message string, army console.Belligerent) error
	GetMissionInfo(ctx context.Context) (console.MissionInfo, error)
	LoadMission(ctx context.Context, filePath string) error
	BeginMission(ctx context.Context) error
	EndMission(ctx context.Context) error
	UnloadMission(ctx context.Context) error
}

// RadarAPI é o subconjunto do radar exposto pela API.
type RadarAPI interface {
	GetMovingShipsPositions(ctx context.Context) ([]devicelink.ActorPosition, error)
	GetStationaryShipsPositions(ctx context.Context) ([]devicelink.ActorPosition, error)
	GetAllShipsPositions(ctx context.Context) ([]devicelink.ActorPosition, error)
	GetMovingAircraftsPositions(ctx context.Context) ([]devicelink.ActorPosition, error)
	GetMovingGroundUnitsPositions(ctx context.Context) ([]devicelink.ActorPosition, error)
	GetAllMovingActorsPositions(ctx context.Context) (radar.AllMovingActorsPositions, error)
	GetHousesPositions(ctx context.Context) ([]devicelink.ActorPosition, error)
	GetStationaryObjectsPositions(ctx context.Context) ([]devicelink.ActorPosition, error)
	GetAllStationaryActorsPositions(ctx context.Context) (radar.AllStationaryActorsPositions, error)
}

// API atende requests de administração no subject configurado: cada request
// carrega um opcode e um payload; a resposta volta no reply subject do
// request.
type API struct {
	client  *Client
	subject string
	console ConsoleAPI
	radar   RadarAPI
	logger  *slog.Logger

	sub *nats.Subscription
}

// NewAPI cria a API sobre a conexão compartilhada.
func NewAPI(client *Client, subject string, consoleAPI ConsoleAPI, radarAPI RadarAPI, logger *slog.Logger) *API {
	return &API{
		client:  client,
		subject: subject,
		console: consoleAPI,
		radar:   radarAPI,
		logger:  logger.With("component", "nats_api", "subject", subject),
	}
}

// Start inscreve a API no subject.
func (a *API) Start() error {
	sub, err := a.client.Conn().Subscribe(a.subject, a.handleRequest)
	if err != nil {
		return fmt.Errorf("subscribing to api subject: %w", err)
	}
	a.sub = sub
	a.logger.Info("nats api started")
	return nil
}

// Stop cancela a inscrição.
func (a *API) Stop() {
	if a.sub != nil {
		a.sub.Unsubscribe()
		a.logger.Info("nats api stopped")
	}
}

func (a *API) handleRequest(msg *nats.Msg) {
	// Handlers de inscrição rodam na goroutine de dispatch do nats; as
	// operações de console e radar bloqueiam, então cada request ganha
	// goroutine própria.
	go func() {
		response := a.execute(msg.Data)
		if msg.Reply == "" {
			return
		}

		data, err := json.Marshal(response)
		if err != nil {
			a.logger.Error("failed to encode api response", "error", err)
			return
		}
		if err := a.client.Conn().Publish(msg.Reply, data); err != nil {
			a.logger.Error("failed to publish api response", "error", err)
		}
	}()
}

func (a *API) execute(data []byte) Response {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return failure(fmt.Errorf("decoding request: %w", err))
	}

	payload, err := a.dispatch(context.Background(), req)
	if err != nil {
		a.logger.Error("api operation failed", "opcode", req.Opcode, "error", err)
		return failure(err)
	}
	return Response{Status: StatusSuccess, Payload: payload}
}

func failure(err error) Response {
	return Response{Status: StatusFailure, Details: err.Error()}
}

func (a *API) dispatch(ctx context.Context, req Request) (any, error) {
	switch req.Opcode {
	case OpGetServerInfo:
		return a.console.GetServerInfo(ctx)

	case OpGetHumansCount:
		return a.console.GetHumansCount(ctx)
	case OpGetHumansList:
		return a.console.GetHumansList(ctx)
	case OpGetHumansStatistics:
		return a.console.GetHumansStatistics(ctx)

	case OpKickHumanByCallsign:
		var p struct {
			Callsign string `json:"callsign"`
		}
		if err := decodePayload(req.Payload, &p); err != nil {
			return nil, err
		}
		return nil, a.console.KickByCallsign(ctx, p.Callsign)

	case OpKickHumanByNumber:
		var p struct {
			Number int `json:"number"`
		}
		if err := decodePayload(req.Payload, &p); err != nil {
			return nil, err
		}
		return nil, a.console.KickByNumber(ctx, p.Number)

	case OpKickAllHumans:
		return nil, a.console.KickAll(ctx, maxKickedHumans)

	case OpChatToAll:
		var p struct {
			Message string `json:"message"`
		}
		if err := decodePayload(req.Payload, &p); err != nil {
			return nil, err
		}
		return nil, a.console.ChatToAll(ctx, p.Message)

	case OpChatToHuman:
		var p struct {
			Message  string `json:"message"`
			Callsign string `json:"addressee"`
		}
		if err := decodePayload(req.Payload, &p); err != nil {
			return nil, err
		}
		return nil, a.console.ChatToHuman(ctx, p.Message, p.Callsign)

	case OpChatToBelligerent:
		var p struct {
			Message   string `json:"message"`
			Addressee int    `json:"addressee"`
		}
		if err := decodePayload(req.Payload, &p); err != nil {
			return nil, err
		}
		army, err := console.BelligerentFromValue(p.Addressee)
		if err != nil {
			return nil, err
		}
		return nil, a.console.ChatToBelligerent(ctx, p.Message, army)

	case OpGetMissionInfo:
		return a.console.GetMissionInfo(ctx)

	case OpLoadMission:
		var p struct {
			FilePath string `json:"file_path"`
		}
		if err := decodePayload(req.Payload, &p); err != nil {
			return nil, err
		}
		return nil, a.console.LoadMission(ctx, p.FilePath)

	case OpBeginMission:
		return nil, a.console.BeginMission(ctx)
	case OpEndMission:
		return nil, a.console.EndMission(ctx)
	case OpUnloadMission:
		return nil, a.console.UnloadMission(ctx)

	case OpGetMovingShipsPositions:
		return a.radar.GetMovingShipsPositions(ctx)
	case OpGetStationaryShipsPositions:
		return a.radar.GetStationaryShipsPositions(ctx)
	case OpGetAllShipsPositions:
		return a.radar.GetAllShipsPositions(ctx)

	case OpGetAllMovingAircraftsPositions:
		return a.radar.GetMovingAircraftsPositions(ctx)
	case OpGetAllMovingGroundUnitsPositions:
		return a.radar.GetMovingGroundUnitsPositions(ctx)
	case OpGetAllMovingActorsPositions:
		return a.radar.GetAllMovingActorsPositions(ctx)

	case OpGetAllHousesPositions:
		return a.radar.GetHousesPositions(ctx)
	case OpGetAllStationaryObjectsPositions:
		return a.radar.GetStationaryObjectsPositions(ctx)
	case OpGetAllStationaryActorsPositions:
		return a.radar.GetAllStationaryActorsPositions(ctx)

	default:
		return nil, fmt.Errorf("unknown opcode %d", req.Opcode)
	}
}

func decodePayload(raw json.RawMessage, out any) error {
	if len(raw) == 0 {
		return fmt.Errorf("missing payload")
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decoding payload: %w", err)
	}
	return nil
}
