package ams

import (
	"errors"
	"image"

	"github.com/openharmony/aafwk-standard-sub013/internal/domain/ability"
	"github.com/openharmony/aafwk-standard-sub013/internal/domain/mission"
	"github.com/openharmony/aafwk-standard-sub013/internal/domain/page"
	"github.com/openharmony/aafwk-standard-sub013/internal/shared/errcode"
	"github.com/openharmony/aafwk-standard-sub013/internal/shared/types"
)

// missionPages returns the current user's page manager for a caller allowed
// to manage missions
func (s *Service) missionPages(caller Caller) (page.Manager, error) {
	if err := s.checkManageMissions(caller); err != nil {
		return nil, err
	}
	um, err := s.currentManagers()
	if err != nil {
		return nil, err
	}
	return um.pages, nil
}

// GetMissionInfos returns up to numMax missions, most recent first
func (s *Service) GetMissionInfos(caller Caller, numMax int) ([]types.MissionInfo, error) {
	pages, err := s.missionPages(caller)
	if err != nil {
		return nil, err
	}
	return pages.GetMissionInfos(numMax)
}

// GetMissionInfo returns one mission
func (s *Service) GetMissionInfo(caller Caller, missionID int) (types.MissionInfo, error) {
	pages, err := s.missionPages(caller)
	if err != nil {
		return types.MissionInfo{}, err
	}
	return pages.GetMissionInfo(missionID)
}

// GetMissionSnapshot returns the last snapshot of a mission
func (s *Service) GetMissionSnapshot(caller Caller, missionID int) (types.MissionSnapshot, error) {
	pages, err := s.missionPages(caller)
	if err != nil {
		return types.MissionSnapshot{}, err
	}
	return pages.GetMissionSnapshot(missionID)
}

// UpdateMissionSnapshot stores img as the snapshot of a mission
func (s *Service) UpdateMissionSnapshot(caller Caller, missionID int, img image.Image) error {
	pages, err := s.missionPages(caller)
	if err != nil {
		return err
	}
	return pages.UpdateMissionSnapshot(missionID, img)
}

// MoveMissionToFront brings a mission to the foreground. A persisted
// mission with no live ability is started again from its last want.
func (s *Service) MoveMissionToFront(caller Caller, missionID int) error {
	pages, err := s.missionPages(caller)
	if err != nil {
		return err
	}
	err = pages.MoveMissionToFront(missionID)
	if !errors.Is(err, errcode.MissionNotFound) {
		return err
	}
	list, ok := pages.(*page.MissionListManager)
	if !ok {
		return err
	}
	want, werr := list.MissionWant(missionID)
	if werr != nil {
		return werr
	}
	opts := StartOptions{UserID: s.users.GetCurrentUserID(), RequestCode: -1}
	return s.StartAbility(want, SystemCaller, opts)
}

// CleanMission terminates a mission and forgets it
func (s *Service) CleanMission(caller Caller, missionID int) error {
	pages, err := s.missionPages(caller)
	if err != nil {
		return err
	}
	return pages.CleanMission(missionID)
}

// CleanAllMissions cleans every unlocked mission
func (s *Service) CleanAllMissions(caller Caller) error {
	pages, err := s.missionPages(caller)
	if err != nil {
		return err
	}
	return pages.CleanAllMissions()
}

// LockMissionForCleanup protects a mission from cleaning
func (s *Service) LockMissionForCleanup(caller Caller, missionID int) error {
	pages, err := s.missionPages(caller)
	if err != nil {
		return err
	}
	return pages.SetMissionLockedState(missionID, true)
}

// UnlockMissionForCleanup lifts the protection set by LockMissionForCleanup
func (s *Service) UnlockMissionForCleanup(caller Caller, missionID int) error {
	pages, err := s.missionPages(caller)
	if err != nil {
		return err
	}
	return pages.SetMissionLockedState(missionID, false)
}

// RegisterMissionListener subscribes l to the current user's missions
func (s *Service) RegisterMissionListener(caller Caller, l mission.Listener) error {
	pages, err := s.missionPages(caller)
	if err != nil {
		return err
	}
	return pages.RegisterMissionListener(l)
}

// UnregisterMissionListener cancels RegisterMissionListener
func (s *Service) UnregisterMissionListener(caller Caller, l mission.Listener) error {
	pages, err := s.missionPages(caller)
	if err != nil {
		return err
	}
	return pages.UnregisterMissionListener(l)
}

// GetMissionIDByToken returns the mission holding token, or -1
func (s *Service) GetMissionIDByToken(token ability.Token) int {
	o, ok := s.findOwner(token)
	if !ok || o.service {
		return -1
	}
	return o.managers.pages.GetMissionIDByToken(token)
}
