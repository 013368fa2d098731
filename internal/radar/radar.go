// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the Airbridge License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package radar deriva visões de posição sobre o device link: cada consulta
// dispara um refresh do snapshot do dedicated server antes de ler.
package radar

import (
	"context"

	"github.com/nishisan-dev/airbridge/internal/devicelink"
)

// DeviceLinkClient é o subconjunto do client de device link que o radar usa.
type DeviceLinkClient interface {
	RefreshRadar(ctx context.Context) error
	GetAllMovingAircraftsPositions(ctx context.Context) ([]devicelink.ActorPosition, error)
	GetAllMovingGroundUnitsPositions(ctx context.Context) ([]devicelink.ActorPosition, error)
	GetAllShipsPositions(ctx context.Context) ([]devicelink.ActorPosition, error)
	GetAllStationaryObjectsPositions(ctx context.Context) ([]devicelink.ActorPosition, error)
	GetAllHousesPositions(ctx context.Context) ([]devicelink.ActorPosition, error)
}

// AllMovingActorsPositions agrega as posições de todos os atores móveis.
type AllMovingActorsPositions struct {
	Aircrafts   []devicelink.ActorPosition `json:"aircrafts"`
	GroundUnits []devicelink.ActorPosition `json:"ground_units"`
	Ships       []devicelink.ActorPosition `json:"ships"`
}

// IsEmpty informa se o snapshot não tem nenhum ator.
func (p AllMovingActorsPositions) IsEmpty() bool {
	return len(p.Aircrafts) == 0 && len(p.GroundUnits) == 0 && len(p.Ships) == 0
}

// AllStationaryActorsPositions agrega as posições de todos os atores estáticos.
type AllStationaryActorsPositions struct {
	StationaryObjects []devicelink.ActorPosition `json:"stationary_objects"`
	Houses            []devicelink.ActorPosition `json:"houses"`
	Ships             []devicelink.ActorPosition `json:"ships"`
}

// Radar consulta posições de atores via device link.
type Radar struct {
	client DeviceLinkClient
}

// New cria um radar sobre o client de device link dado.
func New(client DeviceLinkClient) *Radar {
	return &Radar{client: client}
}

// GetMovingAircraftsPositions lista as aeronaves em movimento.
func (r *Radar) GetMovingAircraftsPositions(ctx context.Context) ([]devicelink.ActorPosition, error) {
	if err := r.client.RefreshRadar(ctx); err != nil {
		return nil, err
	}
	return r.client.GetAllMovingAircraftsPositions(ctx)
}

// GetMovingGroundUnitsPositions lista as unidades terrestres em movimento.
func (r *Radar) GetMovingGroundUnitsPositions(ctx context.Context) ([]devicelink.ActorPosition, error) {
	if err := r.client.RefreshRadar(ctx); err != nil {
		return nil, err
	}
	return r.client.GetAllMovingGroundUnitsPositions(ctx)
}

// GetAllShipsPositions lista todos os navios, móveis e estáticos.
func (r *Radar) GetAllShipsPositions(ctx context.Context) ([]devicelink.ActorPosition, error) {
	if err := r.client.RefreshRadar(ctx); err != nil {
		return nil, err
	}
	return r.client.GetAllShipsPositions(ctx)
}

// GetMovingShipsPositions lista os navios em movimento.
func (r *Radar) GetMovingShipsPositions(ctx context.Context) ([]devicelink.ActorPosition, error) {
	if err := r.client.RefreshRadar(ctx); err != nil {
		return nil, err
	}
	return r.movingShips(ctx)
}

// GetStationaryShipsPositions lista os navios estáticos.
func (r *Radar) GetStationaryShipsPositions(ctx context.Context) ([]devicelink.ActorPosition, error) {
	if err := r.client.RefreshRadar(ctx); err != nil {
		return nil, err
	}
	return r.stationaryShips(ctx)
}

func (r *Radar) movingShips(ctx context.Context) ([]devicelink.ActorPosition, error) {
	ships, err := r.client.GetAllShipsPositions(ctx)
	if err != nil {
		return nil, err
	}
	moving := ships[:0:0]
	for _, ship := range ships {
		if !ship.IsStationaryShip() {
			moving = append(moving, ship)
		}
	}
	return moving, nil
}

func (r *Radar) stationaryShips(ctx context.Context) ([]devicelink.ActorPosition, error) {
	ships, err := r.client.GetAllShipsPositions(ctx)
	if err != nil {
		return nil, err
	}
	stationary := ships[:0:0]
	for _, ship := range ships {
		if ship.IsStationaryShip() {
			stationary = append(stationary, ship)
		}
	}
	return stationary, nil
}

// GetStationaryObjectsPositions lista os objetos estáticos.
func (r *Radar) GetStationaryObjectsPositions(ctx context.Context) ([]devicelink.ActorPosition, error) {
	if err := r.client.RefreshRadar(ctx); err != nil {
		return nil, err
	}
	return r.client.GetAllStationaryObjectsPositions(ctx)
}

// GetHousesPositions lista as construções.
func (r *Radar) GetHousesPositions(ctx context.Context) ([]devicelink.ActorPosition, error) {
	if err := r.client.RefreshRadar(ctx); err != nil {
		return nil, err
	}
	return r.client.GetAllHousesPositions(ctx)
}

// GetAllMovingActorsPositions agrega aeronaves, unidades terrestres e navios
// móveis num único refresh.
func (r *Radar) GetAllMovingActorsPositions(ctx context.Context) (AllMovingActorsPositions, error) {
	if err := r.client.RefreshRadar(ctx); err != nil {
		return AllMovingActorsPositions{}, err
	}

	aircrafts, err := r.client.GetAllMovingAircraftsPositions(ctx)
	if err != nil {
		return AllMovingActorsPositions{}, err
	}
	groundUnits, err := r.client.GetAllMovingGroundUnitsPositions(ctx)
	if err != nil {
		return AllMovingActorsPositions{}, err
	}
	ships, err := r.movingShips(ctx)
	if err != nil {
		return AllMovingActorsPositions{}, err
	}

	return AllMovingActorsPositions{
		Aircrafts:   aircrafts,
		GroundUnits: groundUnits,
		Ships:       ships,
	}, nil
}

// GetAllStationaryActorsPositions agrega objetos estáticos, construções e
// navios estáticos num único refresh.
func (r *Radar) GetAllStationaryActorsPositions(ctx context.Context) (AllStationaryActorsPositions, error) {
	if err := r.client.RefreshRadar(ctx); err != nil {
		return AllStationaryActorsPositions{}, err
	}

	objects, err := r.client.GetAllStationaryObjectsPositions(ctx)
	if err != nil {
		return AllStationaryActorsPositions{}, err
	}
	houses, err := r.client.GetAllHousesPositions(ctx)
	if err != nil {
		return AllStationaryActorsPositions{}, err
	}
	ships, err := r.stationaryShips(ctx)
	if err != nil {
		return AllStationaryActorsPositions{}, err
	}

	return AllStationaryActorsPositions{
		StationaryObjects: objects,
		Houses:            houses,
		Ships:             ships,
	}, nil
}
