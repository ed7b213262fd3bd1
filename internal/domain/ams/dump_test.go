package ams_test

import (
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/openharmony/aafwk-standard-sub013/internal/domain/ams"
	"github.com/openharmony/aafwk-standard-sub013/internal/shared/types"
	"github.com/openharmony/aafwk-standard-sub013/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func contains(lines []string, sub string) bool {
	for _, l := range lines {
		if strings.Contains(l, sub) {
			return true
		}
	}
	return false
}

func TestDumpRejectsUnknownArguments(t *testing.T) {
	f := newFixture(t)
	invalid := []string{ams.DumpInvalidArgument}

	for _, args := range [][]string{
		nil,
		{"--bogus"},
		{"-s"},
		{"-s", "x"},
		{"-m"},
		{"-t", "extra"},
		{"-a", "1", "2"},
	} {
		assert.Equal(t, invalid, f.svc.Dump(args), "dump %v", args)
	}
	for _, args := range [][]string{
		nil,
		{"-x"},
		{"-i"},
		{"-i", "abc"},
		{"-e", "name"},
		{"-l", "-u", "bad"},
	} {
		assert.Equal(t, invalid, f.svc.DumpSys(args), "dumpsys %v", args)
	}
}

func TestDumpCurrentUser(t *testing.T) {
	f := newFixture(t)
	page := testutil.PageInfo("com.example", "Main", false)
	svc := testutil.ServiceInfo("com.example", "Svc")
	f.bundles.Add(page)
	f.bundles.Add(svc)
	require.NoError(t, f.svc.StartAbility(types.NewWant(page.Element()), appCaller, ams.DefaultStartOptions()))
	require.NoError(t, f.svc.StartAbility(types.NewWant(svc.Element()), appCaller, ams.DefaultStartOptions()))
	rec := f.record(t, page.Element())
	missionID := f.svc.GetMissionIDByToken(rec.Token())

	list := f.svc.Dump([]string{"--mission-list"})
	require.NotEmpty(t, list)
	assert.Equal(t, "User ID #100", list[0])
	assert.Equal(t, list, f.svc.Dump([]string{"-L"}))

	assert.True(t, contains(f.svc.Dump([]string{"-t"}), "AbilityRecord ID #"+strconv.FormatInt(rec.ID(), 10)))
	assert.True(t, contains(f.svc.Dump([]string{"-f"}), page.Element().URI()))
	assert.True(t, contains(f.svc.Dump([]string{"-e"}), "main name [Svc]"))
	assert.True(t, contains(f.svc.Dump([]string{"-w"}), page.Element().URI()))
	assert.True(t, contains(f.svc.Dump([]string{"-S"}), "Mission ID #"+strconv.Itoa(missionID)))
	assert.Equal(t, []string{"  DataAbilityRecords:"}, f.svc.Dump([]string{"-d"}))
	assert.True(t, contains(f.svc.Dump([]string{"-z"}), "window mode #unspecified"))

	mission := f.svc.Dump([]string{"-m", strconv.Itoa(missionID)})
	require.NotEmpty(t, mission)
	assert.True(t, strings.HasPrefix(mission[0], "    Mission ID #"))
	assert.True(t, strings.HasPrefix(f.svc.Dump([]string{"-m", "99"})[0], "Invalid mission number"))

	all := f.svc.Dump([]string{"-a"})
	assert.True(t, contains(all, "  MissionList:"))
	assert.True(t, contains(all, "  Service Abilities:"))
	assert.True(t, contains(all, "  PendingTransitions:"))
}

func TestDumpStacksInLegacyMode(t *testing.T) {
	f := newFixture(t, withStacks())
	page := testutil.PageInfo("com.example", "Main", false)
	f.bundles.Add(page)
	require.NoError(t, f.svc.StartAbility(types.NewWant(page.Element()), appCaller, ams.DefaultStartOptions()))

	stacks := f.svc.Dump([]string{"--stack-list"})
	assert.Equal(t, "User ID #100", stacks[0])
	assert.Contains(t, stacks, "  Stack ID #1")
	assert.Equal(t, []string{"Invalid stack number, please see ability dump stack-list."}, f.svc.Dump([]string{"-s", "7"}))
}

func TestDumpSys(t *testing.T) {
	f := newFixture(t)
	page := testutil.PageInfo("com.example", "Main", false)
	f.bundles.Add(page)
	require.NoError(t, f.svc.StartAbility(types.NewWant(page.Element()), appCaller, ams.DefaultStartOptions()))
	rec := f.record(t, page.Element())

	byID := f.svc.DumpSys([]string{"-i", strconv.FormatInt(rec.ID(), 10)})
	require.NotEmpty(t, byID)
	assert.Equal(t, "      AbilityRecord ID #"+strconv.FormatInt(rec.ID(), 10), byID[0])
	assert.Equal(t, []string{"AbilityRecord ID #0 not found"}, f.svc.DumpSys([]string{"--ability", "0"}))

	users := f.svc.DumpSys([]string{"-l"})
	assert.Contains(t, users, "User ID #0")
	assert.Contains(t, users, "User ID #100")
	only := f.svc.DumpSys([]string{"-l", "-u", "100"})
	assert.NotContains(t, only, "User ID #0")
	assert.Contains(t, only, "User ID #100")

	assert.True(t, contains(f.svc.DumpSys([]string{"-p"}), "PendingTransitions"))
	assert.False(t, contains(f.svc.DumpSys([]string{"-r"}), "process name"))

	require.NoError(t, f.svc.AttachAbilityThread(testutil.NewFakeScheduler(), rec.Token()))
	procs := f.svc.DumpSys([]string{"--process", "fake"})
	assert.True(t, contains(procs, "process name [fake]"))
	assert.Empty(t, f.svc.DumpSys([]string{"-r", "other"})[1:])

	pending := f.svc.DumpSys([]string{"-p", "-u", "100"})
	assert.Equal(t, "  PendingTransitions:", pending[0])
	if _, inFlight := rec.PendingState(); inFlight {
		assert.True(t, contains(pending, "AbilityRecord ID #"+strconv.FormatInt(rec.ID(), 10)))
	}
}

func TestDumpWhileAbilitiesStart(t *testing.T) {
	f := newFixture(t)
	svc := testutil.ServiceInfo("com.example", "Svc")
	f.bundles.Add(svc)
	pages := make([]types.AbilityInfo, 8)
	for i := range pages {
		pages[i] = testutil.PageInfo("com.example", "Page"+strconv.Itoa(i), false)
		f.bundles.Add(pages[i])
	}

	var wg sync.WaitGroup
	done := make(chan struct{})
	for _, dump := range []func() []string{
		func() []string { return f.svc.Dump([]string{"-w"}) },
		func() []string { return f.svc.Dump([]string{"-t"}) },
		func() []string { return f.svc.Dump([]string{"-z"}) },
		func() []string { return f.svc.DumpSys([]string{"-p"}) },
		func() []string { return f.svc.DumpSys([]string{"-r"}) },
	} {
		wg.Add(1)
		go func(dump func() []string) {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
					assert.NotEmpty(t, dump())
				}
			}
		}(dump)
	}

	for _, info := range pages {
		assert.NoError(t, f.svc.StartAbility(types.NewWant(info.Element()), appCaller, ams.DefaultStartOptions()))
	}
	assert.NoError(t, f.svc.StartAbility(types.NewWant(svc.Element()), appCaller, ams.DefaultStartOptions()))
	close(done)
	wg.Wait()

	waiting := f.svc.Dump([]string{"-w"})
	assert.Equal(t, "  WaitingQueue:", waiting[0])
	assert.True(t, contains(waiting, svc.Element().URI()))
}
