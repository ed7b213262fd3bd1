package ams

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/openharmony/aafwk-standard-sub013/internal/domain/ability"
	"github.com/openharmony/aafwk-standard-sub013/internal/domain/page"
	"github.com/openharmony/aafwk-standard-sub013/internal/shared/types"
)

// DumpInvalidArgument is the line printed for an unrecognized dump request
const DumpInvalidArgument = "error: invalid argument, please see 'ability dump -h'."

const (
	invalidStackLine   = "Invalid stack number, please see ability dump stack-list."
	invalidMissionLine = "Invalid mission number, please see ability dump mission-list."
)

type dumpKey int

const (
	dumpAll dumpKey = iota
	dumpStackList
	dumpStack
	dumpMission
	dumpTop
	dumpWaitingQueue
	dumpServices
	dumpData
	dumpFocus
	dumpWindowMode
	dumpMissionList
	dumpMissionInfos
)

var dumpFlags = map[string]dumpKey{
	"--all":            dumpAll,
	"-a":               dumpAll,
	"--stack-list":     dumpStackList,
	"-l":               dumpStackList,
	"--stack":          dumpStack,
	"-s":               dumpStack,
	"--mission":        dumpMission,
	"-m":               dumpMission,
	"--top":            dumpTop,
	"-t":               dumpTop,
	"--waitting-queue": dumpWaitingQueue,
	"-w":               dumpWaitingQueue,
	"--serv":           dumpServices,
	"-e":               dumpServices,
	"--data":           dumpData,
	"-d":               dumpData,
	"-focus":           dumpFocus,
	"-f":               dumpFocus,
	"--win-mode":       dumpWindowMode,
	"-z":               dumpWindowMode,
	"--mission-list":   dumpMissionList,
	"-L":               dumpMissionList,
	"--mission-infos":  dumpMissionInfos,
	"-S":               dumpMissionInfos,
}

// flags that take a numeric argument
var dumpNeedsID = map[dumpKey]bool{
	dumpStack:   true,
	dumpMission: true,
}

type dumpsysKey int

const (
	dumpsysAll dumpsysKey = iota
	dumpsysMissionList
	dumpsysAbility
	dumpsysExtension
	dumpsysPending
	dumpsysProcess
	dumpsysData
)

var dumpsysFlags = map[string]dumpsysKey{
	"--all":          dumpsysAll,
	"-a":             dumpsysAll,
	"--mission-list": dumpsysMissionList,
	"-l":             dumpsysMissionList,
	"--ability":      dumpsysAbility,
	"-i":             dumpsysAbility,
	"--extension":    dumpsysExtension,
	"-e":             dumpsysExtension,
	"--pending":      dumpsysPending,
	"-p":             dumpsysPending,
	"--process":      dumpsysProcess,
	"-r":             dumpsysProcess,
	"--data":         dumpsysData,
	"-d":             dumpsysData,
}

// Dump answers `ability dump` for the current user
func (s *Service) Dump(args []string) []string {
	if len(args) == 0 || len(args) > 2 {
		return []string{DumpInvalidArgument}
	}
	key, ok := dumpFlags[args[0]]
	if !ok {
		return []string{DumpInvalidArgument}
	}
	id := -1
	if dumpNeedsID[key] {
		if len(args) != 2 {
			return []string{DumpInvalidArgument}
		}
		n, err := strconv.Atoi(args[1])
		if err != nil {
			return []string{DumpInvalidArgument}
		}
		id = n
	} else if len(args) != 1 {
		return []string{DumpInvalidArgument}
	}

	um, err := s.currentManagers()
	if err != nil {
		return []string{"error: service not ready"}
	}
	switch key {
	case dumpAll:
		lines := um.pages.Dump()
		lines = append(lines, um.connect.Dump()...)
		lines = append(lines, s.dumpData(um)...)
		return append(lines, s.dumpPending(um)...)
	case dumpStackList:
		lines := []string{"User ID #" + strconv.Itoa(um.userID)}
		lines = append(lines, um.pages.DumpStack(page.LauncherStackID)...)
		return append(lines, um.pages.DumpStack(page.DefaultStackID)...)
	case dumpStack:
		if lines := um.pages.DumpStack(id); lines != nil {
			return lines
		}
		return []string{invalidStackLine}
	case dumpMission:
		if lines := um.pages.DumpMission(id); lines != nil {
			return lines
		}
		return []string{invalidMissionLine}
	case dumpTop:
		return s.dumpTop(um)
	case dumpWaitingQueue:
		return s.dumpWaiting(um)
	case dumpServices:
		return um.connect.Dump()
	case dumpData:
		return s.dumpData(um)
	case dumpFocus:
		return s.dumpFocus(um)
	case dumpWindowMode:
		return s.dumpWindowMode(um)
	case dumpMissionList:
		return um.pages.Dump()
	case dumpMissionInfos:
		return um.pages.DumpMissionInfos()
	}
	return []string{DumpInvalidArgument}
}

// DumpSys answers `ability dumpsys`. A trailing `-u <id>` limits the
// output to one user; otherwise every user is dumped.
func (s *Service) DumpSys(args []string) []string {
	userID := -1
	if n := len(args); n >= 2 && args[n-2] == "-u" {
		id, err := strconv.Atoi(args[n-1])
		if err != nil || id < 0 {
			return []string{DumpInvalidArgument}
		}
		userID = id
		args = args[:n-2]
	}
	if len(args) == 0 || len(args) > 2 {
		return []string{DumpInvalidArgument}
	}
	key, ok := dumpsysFlags[args[0]]
	if !ok {
		return []string{DumpInvalidArgument}
	}
	arg := ""
	if len(args) == 2 {
		arg = args[1]
	}
	if arg != "" && key != dumpsysAbility && key != dumpsysProcess {
		return []string{DumpInvalidArgument}
	}

	var targets []*userManagers
	for _, um := range s.snapshotManagers() {
		if userID < 0 || um.userID == userID {
			targets = append(targets, um)
		}
	}

	var lines []string
	switch key {
	case dumpsysAll:
		for _, um := range targets {
			lines = append(lines, um.pages.Dump()...)
			lines = append(lines, um.connect.Dump()...)
			lines = append(lines, s.dumpPending(um)...)
		}
		lines = append(lines, s.dumpProcesses("", targets)...)
	case dumpsysMissionList:
		for _, um := range targets {
			lines = append(lines, um.pages.Dump()...)
		}
	case dumpsysAbility:
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			return []string{DumpInvalidArgument}
		}
		return s.dumpRecord(id)
	case dumpsysExtension:
		for _, um := range targets {
			lines = append(lines, um.connect.Dump()...)
		}
	case dumpsysPending:
		for _, um := range targets {
			lines = append(lines, s.dumpPending(um)...)
		}
	case dumpsysProcess:
		lines = s.dumpProcesses(arg, targets)
	case dumpsysData:
		for _, um := range targets {
			lines = append(lines, s.dumpData(um)...)
		}
	}
	return lines
}

// recordLines walks the records of managers, each under its manager's
// lock, and returns fn's lines ordered by record id
func recordLines(managers []*userManagers, fn func(*ability.Record) []string) []string {
	type entry struct {
		id    int64
		lines []string
	}
	var entries []entry
	collect := func(rec *ability.Record) {
		if lines := fn(rec); len(lines) > 0 {
			entries = append(entries, entry{id: rec.ID(), lines: lines})
		}
	}
	for _, um := range managers {
		um.pages.VisitRecords(collect)
		um.connect.VisitRecords(collect)
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].id < entries[j].id })
	var out []string
	for _, e := range entries {
		out = append(out, e.lines...)
	}
	return out
}

func (s *Service) dumpTop(um *userManagers) []string {
	lines := []string{"User ID #" + strconv.Itoa(um.userID), "  Top Ability:"}
	um.pages.VisitTop(func(top *ability.Record) {
		if top != nil {
			lines = append(lines, top.Dump()...)
		}
	})
	return lines
}

func (s *Service) dumpFocus(um *userManagers) []string {
	lines := []string{"  Focus Ability:"}
	um.pages.VisitTop(func(top *ability.Record) {
		if top != nil {
			lines = append(lines, fmt.Sprintf("    [%s]", top.URI()))
		}
	})
	return lines
}

func (s *Service) dumpWaiting(um ...*userManagers) []string {
	lines := []string{"  WaitingQueue:"}
	return append(lines, recordLines(um, func(rec *ability.Record) []string {
		if !rec.IsLoading() {
			return nil
		}
		return []string{fmt.Sprintf("    AbilityRecord ID #%d  [%s]", rec.ID(), rec.URI())}
	})...)
}

func (s *Service) dumpData(um ...*userManagers) []string {
	lines := []string{"  DataAbilityRecords:"}
	return append(lines, recordLines(um, func(rec *ability.Record) []string {
		if rec.Type() != types.AbilityTypeData {
			return nil
		}
		return rec.Dump()
	})...)
}

func (s *Service) dumpPending(um ...*userManagers) []string {
	lines := []string{"  PendingTransitions:"}
	return append(lines, recordLines(um, func(rec *ability.Record) []string {
		target, ok := rec.PendingState()
		if !ok {
			return nil
		}
		return []string{fmt.Sprintf("    AbilityRecord ID #%d  [%s]  %s -> %s",
			rec.ID(), rec.URI(), rec.State(), target)}
	})...)
}

func (s *Service) dumpWindowMode(um *userManagers) []string {
	var line string
	um.pages.VisitTop(func(top *ability.Record) {
		if top == nil {
			line = "  window mode #unspecified"
			return
		}
		mode := top.StartSetting()[types.StartSettingWindowMode]
		if mode == "" {
			mode = "unspecified"
		}
		line = fmt.Sprintf("  AbilityRecord ID #%d  window mode #%s", top.ID(), mode)
	})
	return []string{line}
}

func (s *Service) dumpRecord(id int64) []string {
	lines := recordLines(s.snapshotManagers(), func(rec *ability.Record) []string {
		if rec.ID() != id {
			return nil
		}
		if rec.Type().IsConnectable() {
			return rec.DumpService()
		}
		return rec.Dump()
	})
	if len(lines) == 0 {
		return []string{fmt.Sprintf("AbilityRecord ID #%d not found", id)}
	}
	return lines
}

// dumpProcesses groups the loaded records of managers by hosting process,
// optionally keeping one process name
func (s *Service) dumpProcesses(name string, managers []*userManagers) []string {
	type loaded struct {
		id    int64
		token ability.Token
	}
	var ready []loaded
	visit := func(rec *ability.Record) {
		if rec.IsReady() {
			ready = append(ready, loaded{id: rec.ID(), token: rec.Token()})
		}
	}
	for _, um := range managers {
		um.pages.VisitRecords(visit)
		um.connect.VisitRecords(visit)
	}
	sort.Slice(ready, func(i, j int) bool { return ready[i].id < ready[j].id })

	type proc struct {
		info    types.RunningProcessInfo
		records []int64
	}
	procs := make(map[string]*proc)
	for _, r := range ready {
		info, err := s.env.AppScheduler.GetRunningProcessInfoByToken(r.token)
		if err != nil {
			continue
		}
		if name != "" && info.ProcessName != name {
			continue
		}
		p := procs[info.ProcessName]
		if p == nil {
			p = &proc{info: info}
			procs[info.ProcessName] = p
		}
		p.records = append(p.records, r.id)
	}
	names := make([]string, 0, len(procs))
	for n := range procs {
		names = append(names, n)
	}
	sort.Strings(names)
	lines := []string{"  AppRunningRecords:"}
	for _, n := range names {
		p := procs[n]
		lines = append(lines, fmt.Sprintf("    process name [%s]  pid #%d  uid #%d  state #%s",
			n, p.info.PID, p.info.UID, p.info.State))
		for _, id := range p.records {
			lines = append(lines, fmt.Sprintf("      AbilityRecord ID #%d", id))
		}
	}
	return lines
}
