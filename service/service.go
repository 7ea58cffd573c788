package service

import (
	"taxicoin/chain"
	"taxicoin/messaging"
	"taxicoin/pkg/events"
	"taxicoin/pkg/logger"
	"taxicoin/storage"
)

type IServiceManager interface {
	Driver() DriverService
	Journey() JourneyService
}

type service struct {
	driverService  DriverService
	journeyService JourneyService
}

func New(gw chain.IContractGateway, ch messaging.IChannel, bus *events.Bus, stg storage.IStorage, log logger.ILogger) IServiceManager {
	return &service{
		driverService:  NewDriverService(gw, ch, stg, log),
		journeyService: NewJourneyService(gw, ch, bus, stg, log),
	}
}

func (s *service) Driver() DriverService {
	return s.driverService
}

func (s *service) Journey() JourneyService {
	return s.journeyService
}
