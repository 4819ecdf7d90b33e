package model

import (
	"github.com/plantio/irrigation-engine/internal/model/entities"
	"github.com/plantio/irrigation-engine/internal/model/messages"
)

// Aliases exposing the common types to the services.

type (
	Zone             = entities.Zone
	Schedule         = entities.Schedule
	Conditions       = entities.Conditions
	Event            = messages.Event
	Notification     = messages.Notification
	SensorData       = messages.SensorData
	RainState        = messages.RainState
	StateChangeEvent = messages.StateChangeEvent
)

const (
	ValveOpen   = entities.ValveOpen
	ValveClosed = entities.ValveClosed

	HealthActive   = entities.HealthActive
	HealthInactive = entities.HealthInactive
	HealthError    = entities.HealthError
)
