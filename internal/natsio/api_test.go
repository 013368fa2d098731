// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the Airbridge License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package natsio

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/nishisan-dev/airbridge/internal/console"
	"github.com/nishisan-dev/airbridge/internal/devicelink"
	"github.com/nishisan-dev/airbridge/internal/logging"
	"github.com/nishisan-dev/airbridge/internal/radar"
)

// fakeConsoleAPI registra as chamadas recebidas e devolve valores fixos.
type fakeConsoleAPI struct {
	calls []string

	serverInfo console.ServerInfo
	humans     []console.Human
	kickErr    error
}

func (f *fakeConsoleAPI) called(name string) {
	f.calls = append(f.calls, name)
}

func (f *fakeConsoleAPI) GetServerInfo(context.Context) (console.ServerInfo, error) {
	f.called("GetServerInfo")
	return f.serverInfo, nil
}

func (f *fakeConsoleAPI) GetHumansCount(context.Context) (int, error) {
	f.called("GetHumansCount")
	return len(f.humans), nil
}

func (f *fakeConsoleAPI) GetHumansList(context.Context) ([]console.Human, error) {
	f.called("GetHumansList")
	return f.humans, nil
}

func (f *fakeConsoleAPI) GetHumansStatistics(context.Context) ([]console.HumanStatistics, error) {
	f.called("GetHumansStatistics")
	return nil, nil
}

func (f *fakeConsoleAPI) KickByCallsign(_ context.Context, callsign string) error {
	f.called("KickByCallsign:" + callsign)
	return f.kickErr
}

func (f *fakeConsoleAPI) KickByNumber(_ context.Context, number int) error {
	f.called("KickByNumber")
	return f.kickErr
}

func (f *fakeConsoleAPI) KickAll(_ context.Context, maxHumans int) error {
	f.called("KickAll")
	if maxHumans <= 0 {
		return errors.New("bad max humans")
	}
	return f.kickErr
}

func (f *fakeConsoleAPI) ChatToAll(_ context.Context, message string) error {
	f.called("ChatToAll:" + message)
	return nil
}

func (f *fakeConsoleAPI) ChatToHuman(_ context.Context, message, callsign string) error {
	f.called("ChatToHuman:" + message + ":" + callsign)
	return nil
}

func (f *fakeConsoleAPI) ChatToBelligerent(_ context.Context, message string, army console.Belligerent) error {
	f.called("ChatToBelligerent")
	if army != console.BelligerentRed {
		return errors.New("unexpected army")
	}
	return nil
}

func (f *fakeConsoleAPI) GetMissionInfo(context.Context) (console.MissionInfo, error) {
	f.called("GetMissionInfo")
	return console.MissionInfo{}, nil
}

func (f *fakeConsoleAPI) LoadMission(_ context.Context, filePath string) error {
	f.called("LoadMission:" + filePath)
	return nil
}

func (f *fakeConsoleAPI) BeginMission(context.Context) error {
	f.called("BeginMission")
	return nil
}

func (f *fakeConsoleAPI) EndMission(context.Context) error {
	f.called("EndMission")
	return nil
}

func (f *fakeConsoleAPI) UnloadMission(context.Context) error {
	f.called("UnloadMission")
	return nil
}

type fakeRadarAPI struct {
	calls     []string
	positions []devicelink.ActorPosition
	err       error
}

func (f *fakeRadarAPI) called(name string) ([]devicelink.ActorPosition, error) {
	f.calls = append(f.calls, name)
	return f.positions, f.err
}

func (f *fakeRadarAPI) GetMovingShipsPositions(context.Context) ([]devicelink.ActorPosition, error) {
	return f.called("GetMovingShipsPositions")
}

func (f *fakeRadarAPI) GetStationaryShipsPositions(context.Context) ([]devicelink.ActorPosition, error) {
	return f.called("GetStationaryShipsPositions")
}

func (f *fakeRadarAPI) GetAllShipsPositions(context.Context) ([]devicelink.ActorPosition, error) {
	return f.called("GetAllShipsPositions")
}

func (f *fakeRadarAPI) GetMovingAircraftsPositions(context.Context) ([]devicelink.ActorPosition, error) {
	return f.called("GetMovingAircraftsPositions")
}

func (f *fakeRadarAPI) GetMovingGroundUnitsPositions(context.Context) ([]devicelink.ActorPosition, error) {
	return f.called("GetMovingGroundUnitsPositions")
}

func (f *fakeRadarAPI) GetAllMovingActorsPositions(context.Context) (radar.AllMovingActorsPositions, error) {
	f.calls = append(f.calls, "GetAllMovingActorsPositions")
	return radar.AllMovingActorsPositions{Aircrafts: f.positions}, f.err
}

func (f *fakeRadarAPI) GetHousesPositions(context.Context) ([]devicelink.ActorPosition, error) {
	return f.called("GetHousesPositions")
}

func (f *fakeRadarAPI) GetStationaryObjectsPositions(context.Context) ([]devicelink.ActorPosition, error) {
	return f.called("GetStationaryObjectsPositions")
}

func (f *fakeRadarAPI) GetAllStationaryActorsPositions(context.Context) (radar.AllStationaryActorsPositions, error) {
	f.calls = append(f.calls, "GetAllStationaryActorsPositions")
	return radar.AllStationaryActorsPositions{}, f.err
}

func newTestAPI(consoleAPI ConsoleAPI, radarAPI RadarAPI) *API {
	// execute não toca a conexão; só Start/Stop precisam de um client real.
	return NewAPI(nil, "airbridge.api", consoleAPI, radarAPI, logging.NewNopLogger())
}

func encodeRequest(t *testing.T, opcode int, payload any) []byte {
	t.Helper()
	req := Request{Opcode: opcode}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		req.Payload = data
	}
	data, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	return data
}

func TestAPIExecutesConsoleOperations(t *testing.T) {
	fc := &fakeConsoleAPI{
		serverInfo: console.ServerInfo{Type: "Local server", Name: "Test"},
		humans:     []console.Human{{Callsign: "john.doe"}},
	}
	a := newTestAPI(fc, &fakeRadarAPI{})

	resp := a.execute(encodeRequest(t, OpGetServerInfo, nil))
	if resp.Status != StatusSuccess {
		t.Fatalf("resp = %+v", resp)
	}
	info, ok := resp.Payload.(console.ServerInfo)
	if !ok || info.Name != "Test" {
		t.Fatalf("payload = %+v", resp.Payload)
	}

	resp = a.execute(encodeRequest(t, OpGetHumansCount, nil))
	if resp.Status != StatusSuccess || resp.Payload != 1 {
		t.Fatalf("resp = %+v", resp)
	}

	resp = a.execute(encodeRequest(t, OpKickHumanByCallsign, map[string]any{"callsign": "john.doe"}))
	if resp.Status != StatusSuccess {
		t.Fatalf("resp = %+v", resp)
	}

	resp = a.execute(encodeRequest(t, OpChatToHuman, map[string]any{
		"message":   "hello",
		"addressee": "john.doe",
	}))
	if resp.Status != StatusSuccess {
		t.Fatalf("resp = %+v", resp)
	}

	resp = a.execute(encodeRequest(t, OpChatToBelligerent, map[string]any{
		"message":   "go",
		"addressee": 1,
	}))
	if resp.Status != StatusSuccess {
		t.Fatalf("resp = %+v", resp)
	}

	resp = a.execute(encodeRequest(t, OpLoadMission, map[string]any{
		"file_path": "net/dogfight/test.mis",
	}))
	if resp.Status != StatusSuccess {
		t.Fatalf("resp = %+v", resp)
	}

	want := []string{
		"GetServerInfo",
		"GetHumansCount",
		"KickByCallsign:john.doe",
		"ChatToHuman:hello:john.doe",
		"ChatToBelligerent",
		"LoadMission:net/dogfight/test.mis",
	}
	if len(fc.calls) != len(want) {
		t.Fatalf("calls = %v", fc.calls)
	}
	for i := range want {
		if fc.calls[i] != want[i] {
			t.Fatalf("calls[%d] = %q, want %q", i, fc.calls[i], want[i])
		}
	}
}

func TestAPIExecutesRadarOperations(t *testing.T) {
	fr := &fakeRadarAPI{positions: []devicelink.ActorPosition{{ID: "r01_0"}}}
	a := newTestAPI(&fakeConsoleAPI{}, fr)

	resp := a.execute(encodeRequest(t, OpGetAllMovingAircraftsPositions, nil))
	if resp.Status != StatusSuccess {
		t.Fatalf("resp = %+v", resp)
	}
	positions, ok := resp.Payload.([]devicelink.ActorPosition)
	if !ok || len(positions) != 1 || positions[0].ID != "r01_0" {
		t.Fatalf("payload = %+v", resp.Payload)
	}

	resp = a.execute(encodeRequest(t, OpGetAllMovingActorsPositions, nil))
	if resp.Status != StatusSuccess {
		t.Fatalf("resp = %+v", resp)
	}

	if fr.calls[0] != "GetMovingAircraftsPositions" || fr.calls[1] != "GetAllMovingActorsPositions" {
		t.Fatalf("calls = %v", fr.calls)
	}
}

func TestAPIFailureEnvelope(t *testing.T) {
	fc := &fakeConsoleAPI{kickErr: errors.New("no such human")}
	a := newTestAPI(fc, &fakeRadarAPI{})

	resp := a.execute(encodeRequest(t, OpKickHumanByNumber, map[string]any{"number": 7}))
	if resp.Status != StatusFailure || resp.Details != "no such human" {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestAPIRejectsMalformedRequests(t *testing.T) {
	a := newTestAPI(&fakeConsoleAPI{}, &fakeRadarAPI{})

	if resp := a.execute([]byte("{broken")); resp.Status != StatusFailure {
		t.Fatalf("resp = %+v", resp)
	}

	resp := a.execute(encodeRequest(t, 999, nil))
	if resp.Status != StatusFailure || resp.Details == "" {
		t.Fatalf("resp = %+v", resp)
	}

	// Payload obrigatório ausente.
	resp = a.execute(encodeRequest(t, OpKickHumanByCallsign, nil))
	if resp.Status != StatusFailure {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestAPIKickAllUsesBoundedLimit(t *testing.T) {
	fc := &fakeConsoleAPI{}
	a := newTestAPI(fc, &fakeRadarAPI{})

	resp := a.execute(encodeRequest(t, OpKickAllHumans, nil))
	if resp.Status != StatusSuccess {
		t.Fatalf("resp = %+v", resp)
	}
	if len(fc.calls) != 1 || fc.calls[0] != "KickAll" {
		t.Fatalf("calls = %v", fc.calls)
	}
}
