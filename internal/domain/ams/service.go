package ams

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/openharmony/aafwk-standard-sub013/internal/domain/ability"
	"github.com/openharmony/aafwk-standard-sub013/internal/domain/connect"
	"github.com/openharmony/aafwk-standard-sub013/internal/domain/mission"
	"github.com/openharmony/aafwk-standard-sub013/internal/domain/page"
	"github.com/openharmony/aafwk-standard-sub013/internal/domain/user"
	"github.com/openharmony/aafwk-standard-sub013/internal/infrastructure/config"
	"github.com/openharmony/aafwk-standard-sub013/internal/infrastructure/eventloop"
	"github.com/openharmony/aafwk-standard-sub013/internal/infrastructure/logging"
	"github.com/openharmony/aafwk-standard-sub013/internal/infrastructure/monitoring"
	"github.com/openharmony/aafwk-standard-sub013/internal/shared/errcode"
	"github.com/openharmony/aafwk-standard-sub013/internal/shared/paths"
	"github.com/openharmony/aafwk-standard-sub013/internal/shared/types"
	"go.uber.org/zap"
)

const closeTimeout = 2 * time.Second

// Config wires a Service
type Config struct {
	AppScheduler ability.AppScheduler
	Bundles      BundleManager
	Accounts     user.AccountManager
	Broadcaster  user.Broadcaster

	Layout        paths.Layout
	UseNewMission bool
	MinMissionID  int
	MaxMissionID  int
	RestartMax    int
	Timeouts      config.TimeoutConfig

	BootWaitRetries  int
	BootWaitInterval time.Duration
	// DefaultUserID is brought to the foreground by Init when positive
	DefaultUserID int
	// Home is started for a user that becomes current without a page
	Home types.ElementName

	Logger  *logging.Logger
	Metrics *monitoring.Metrics
}

// ConfigFrom maps the service configuration onto a Config. Collaborators
// are left for the caller to fill in.
func ConfigFrom(c *config.Config) (Config, error) {
	out := Config{
		Layout:           paths.NewLayout(c.AMS.DataDir),
		UseNewMission:    c.AMS.UseNewMission,
		MinMissionID:     c.AMS.MinMissionID,
		MaxMissionID:     c.AMS.MaxMissionID,
		RestartMax:       c.AMS.RestartMax,
		Timeouts:         c.Timeouts,
		BootWaitRetries:  c.AMS.BootWaitRetries,
		BootWaitInterval: c.AMS.BootWaitInterval,
		DefaultUserID:    c.AMS.DefaultUserID,
	}
	if c.AMS.HomeElement != "" {
		home, err := types.ParseElementURI(c.AMS.HomeElement)
		if err != nil {
			return Config{}, fmt.Errorf("home element: %w", err)
		}
		out.Home = home
	}
	return out, nil
}

// userManagers are the managers of one user, built on first touch
type userManagers struct {
	userID  int
	connect *connect.Manager
	pages   page.Manager
	store   *mission.PersistenceMgr
}

func (u *userManagers) hasToken(tok ability.Token) (found, service bool) {
	if u.connect.HasToken(tok) {
		return true, true
	}
	if u.pages.HasToken(tok) {
		return true, false
	}
	return false, false
}

func (u *userManagers) close() {
	u.pages.Close()
	u.connect.Close()
	if u.store != nil {
		u.store.Close()
	}
}

// Service is the ability manager: it checks every request, routes it to
// the managers of the right user and owns the loop on which lifecycle
// timeouts fire.
type Service struct {
	cfg     Config
	env     *ability.Env
	events  *eventloop.Handler
	users   *user.Controller
	factory page.Factory
	log     *logging.Logger
	metrics *monitoring.Metrics

	mu       sync.RWMutex
	managers map[int]*userManagers
	current  *userManagers
	frozen   bool
	ready    bool
}

// New builds the service. Init must run before it serves requests.
func New(cfg Config) (*Service, error) {
	if cfg.AppScheduler == nil {
		return nil, errors.New("ams: app scheduler is required")
	}
	if cfg.Bundles == nil {
		return nil, errors.New("ams: bundle manager is required")
	}
	if cfg.MinMissionID <= 0 {
		cfg.MinMissionID = 1
	}
	if cfg.MaxMissionID < cfg.MinMissionID {
		cfg.MaxMissionID = cfg.MinMissionID
	}
	if cfg.Timeouts == (config.TimeoutConfig{}) {
		cfg.Timeouts = config.DefaultTimeouts()
	}

	log := logging.OrNop(cfg.Logger).ForComponent("ams")
	s := &Service{
		cfg:      cfg,
		log:      log,
		metrics:  cfg.Metrics,
		managers: make(map[int]*userManagers),
		factory:  page.NewStackFactory(),
	}
	if cfg.UseNewMission {
		s.factory = page.NewMissionListFactory()
	}
	s.events = eventloop.New("ams", log, s.processEvent)
	s.env = &ability.Env{
		AppScheduler: cfg.AppScheduler,
		Events:       s.events,
		Tokens:       ability.NewTokenTable(),
		Timeouts:     cfg.Timeouts,
		Logger:       cfg.Logger,
		Metrics:      cfg.Metrics,
	}
	s.users = user.NewController(user.Config{
		Host:          s,
		Accounts:      cfg.Accounts,
		Broadcaster:   cfg.Broadcaster,
		SwitchTimeout: cfg.Timeouts.UserSwitch,
		Logger:        cfg.Logger,
		Metrics:       cfg.Metrics,
	})
	return s, nil
}

// Init waits for the collaborators, builds the system user's managers and
// brings the default user to the foreground
func (s *Service) Init(ctx context.Context) error {
	if err := s.waitForCollaborators(ctx); err != nil {
		return err
	}
	um, err := s.ensureUser(user.SystemUserID)
	if err != nil {
		return fmt.Errorf("init system user: %w", err)
	}
	s.mu.Lock()
	if s.current == nil {
		s.current = um
	}
	s.ready = true
	s.mu.Unlock()

	if s.cfg.DefaultUserID > 0 {
		if err := s.users.StartUser(s.cfg.DefaultUserID, true); err != nil {
			return fmt.Errorf("start default user %d: %w", s.cfg.DefaultUserID, err)
		}
	}
	s.log.Info("ability manager ready",
		zap.Bool("use_new_mission", s.cfg.UseNewMission),
		zap.Int("current_user", s.users.GetCurrentUserID()))
	return nil
}

type readiness interface {
	Ready() bool
}

// waitForCollaborators polls the bundle manager, and the app scheduler when
// it reports readiness, a bounded number of times
func (s *Service) waitForCollaborators(ctx context.Context) error {
	waits := []readiness{s.cfg.Bundles}
	if r, ok := s.cfg.AppScheduler.(readiness); ok {
		waits = append(waits, r)
	}
	for _, w := range waits {
		if err := s.pollReady(ctx, w); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) pollReady(ctx context.Context, r readiness) error {
	for attempt := 0; ; attempt++ {
		if r.Ready() {
			return nil
		}
		if attempt >= s.cfg.BootWaitRetries {
			return fmt.Errorf("%T not ready after %d attempts: %w", r, attempt+1, errcode.InnerErr)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.cfg.BootWaitInterval):
		}
	}
}

// Ready reports whether Init completed
func (s *Service) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready
}

// Stop shuts every manager and loop down
func (s *Service) Stop() {
	s.users.Close()
	s.mu.Lock()
	all := s.sortedManagersLocked()
	s.managers = make(map[int]*userManagers)
	s.current = nil
	s.ready = false
	s.mu.Unlock()
	for _, um := range all {
		um.close()
	}
	s.events.Stop()
	s.log.Info("ability manager stopped")
}

// Flush waits until the work queued so far on the service loop, the user
// controller and every manager has run
func (s *Service) Flush(ctx context.Context) error {
	if err := s.events.Flush(ctx); err != nil {
		return err
	}
	if err := s.users.Flush(ctx); err != nil {
		return err
	}
	for _, um := range s.snapshotManagers() {
		if err := um.connect.Flush(ctx); err != nil {
			return err
		}
		if um.store != nil {
			if err := um.store.Flush(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

// Users exposes the user controller, for switch observers
func (s *Service) Users() *user.Controller { return s.users }

// Env returns the environment shared by every record
func (s *Service) Env() *ability.Env { return s.env }

// ============================================================================
// Per-user managers
// ============================================================================

func (s *Service) ensureUser(userID int) (*userManagers, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureUserLocked(userID)
}

func (s *Service) ensureUserLocked(userID int) (*userManagers, error) {
	if um, ok := s.managers[userID]; ok {
		return um, nil
	}
	um := &userManagers{userID: userID}

	var infos *mission.InfoMgr
	if s.cfg.UseNewMission {
		um.store = mission.NewPersistenceMgr(s.cfg.Layout, userID, s.cfg.Logger, s.metrics)
		infos = mission.NewInfoMgr(userID, um.store, mission.Config{
			MinID:   s.cfg.MinMissionID,
			MaxID:   s.cfg.MaxMissionID,
			Logger:  s.cfg.Logger,
			Metrics: s.metrics,
		})
		if err := infos.Init(); err != nil {
			um.store.Close()
			return nil, err
		}
	}

	pages, err := s.factory(page.Deps{UserID: userID, Env: s.env, Missions: infos})
	if err != nil {
		if um.store != nil {
			um.store.Close()
		}
		return nil, err
	}
	um.pages = pages
	um.connect = connect.NewManager(userID, s.env,
		connect.WithVisibility(s.checkVisibilityByToken),
		connect.WithRestartMax(s.cfg.RestartMax))

	s.managers[userID] = um
	s.log.Info("managers created", zap.Int("user_id", userID))
	return um, nil
}

func (s *Service) currentManagers() (*userManagers, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return nil, errcode.InnerErr
	}
	return s.current, nil
}

// pageManagersFor returns the managers holding userID's pages. Pages of the
// system user live with the current user.
func (s *Service) pageManagersFor(userID int) (*userManagers, error) {
	if userID == user.SystemUserID {
		return s.currentManagers()
	}
	return s.ensureUser(userID)
}

func (s *Service) snapshotManagers() []*userManagers {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedManagersLocked()
}

func (s *Service) sortedManagersLocked() []*userManagers {
	out := make([]*userManagers, 0, len(s.managers))
	for _, um := range s.managers {
		out = append(out, um)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].userID < out[j].userID })
	return out
}

func (s *Service) managersOf(userID int) (*userManagers, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	um, ok := s.managers[userID]
	return um, ok
}

// ============================================================================
// Timeouts
// ============================================================================

// processEvent routes a fired lifecycle timeout to the manager owning the
// record
func (s *Service) processEvent(ev eventloop.Event) {
	for _, um := range s.snapshotManagers() {
		if um.connect.OnTimeOut(ev.ID, ev.Param) || um.pages.OnTimeOut(ev.ID, ev.Param) {
			return
		}
	}
	s.log.Debug("timeout for unknown record",
		zap.String("event", ability.EventName(ev.ID)), zap.Int64("record_id", ev.Param))
}

// ============================================================================
// user.Host
// ============================================================================

// SwitchToUser makes newUserID's managers current and starts its home
// screen when it shows no page yet
func (s *Service) SwitchToUser(oldUserID, newUserID int) {
	um, err := s.ensureUser(newUserID)
	if err != nil {
		s.log.Error("switch user failed", zap.Int("user_id", newUserID), zap.Error(err))
		return
	}
	s.mu.Lock()
	s.current = um
	s.mu.Unlock()
	s.log.Info("switched user", zap.Int("old_user_id", oldUserID), zap.Int("new_user_id", newUserID))
	s.startHome(um)
}

func (s *Service) startHome(um *userManagers) {
	if s.cfg.Home.IsEmpty() || um.pages.TopAbility() != nil {
		return
	}
	opts := StartOptions{UserID: um.userID, RequestCode: -1}
	if err := s.StartAbility(types.NewWant(s.cfg.Home), SystemCaller, opts); err != nil {
		s.log.Warn("start home failed", zap.String("element", s.cfg.Home.URI()), zap.Error(err))
	}
}

// ClearUserData drops userID's managers and persisted missions
func (s *Service) ClearUserData(userID int) error {
	s.mu.Lock()
	um := s.managers[userID]
	delete(s.managers, userID)
	if s.current == um {
		s.current = s.managers[user.SystemUserID]
	}
	s.mu.Unlock()

	var store *mission.PersistenceMgr
	if um != nil {
		um.pages.Close()
		um.connect.Close()
		store = um.store
	}
	if store == nil {
		if !s.cfg.UseNewMission {
			return nil
		}
		store = mission.NewPersistenceMgr(s.cfg.Layout, userID, s.cfg.Logger, s.metrics)
	}
	ok := store.RemoveUserDir()
	store.Close()
	if !ok {
		return fmt.Errorf("remove data of user %d: %w", userID, errcode.InnerErr)
	}
	s.log.Info("user data cleared", zap.Int("user_id", userID))
	return nil
}

// KillProcessesByUserID asks the app scheduler to kill userID's processes
func (s *Service) KillProcessesByUserID(userID int) error {
	return s.env.AppScheduler.KillProcessesByUserID(userID)
}

// StartFreezingScreen holds the display while the foreground user changes
func (s *Service) StartFreezingScreen() {
	s.mu.Lock()
	s.frozen = true
	s.mu.Unlock()
	s.log.Debug("screen frozen")
}

// StopFreezingScreen releases the display
func (s *Service) StopFreezingScreen() {
	s.mu.Lock()
	s.frozen = false
	s.mu.Unlock()
	s.log.Debug("screen thawed")
}

// ScreenFrozen reports whether a user switch holds the display
func (s *Service) ScreenFrozen() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.frozen
}

// ============================================================================
// Stats
// ============================================================================

// Stats summarizes the live state of the service
type Stats struct {
	Ready       bool `json:"ready"`
	CurrentUser int  `json:"current_user"`
	Users       int  `json:"users"`
	Services    int  `json:"services"`
	Connections int  `json:"connections"`
	Missions    int  `json:"missions"`
	Abilities   int  `json:"abilities"`
	Tokens      int  `json:"tokens"`
}

// Stats returns counts across every user
func (s *Service) Stats() Stats {
	out := Stats{
		Ready:       s.Ready(),
		CurrentUser: s.users.GetCurrentUserID(),
		Tokens:      s.env.Tokens.Len(),
	}
	for _, um := range s.snapshotManagers() {
		out.Users++
		services, conns := um.connect.Stats()
		missions, abilities := um.pages.Stats()
		out.Services += services
		out.Connections += conns
		out.Missions += missions
		out.Abilities += abilities
	}
	return out
}
