package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/derby/internal/game/race"
)

func run(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(&out)
	cmd.SetArgs(args)
	require.NoError(t, cmd.Execute())
	return out.String()
}

func simulateJSON(t *testing.T, args ...string) Report {
	t.Helper()
	var rep Report
	require.NoError(t, json.Unmarshal([]byte(run(t, append([]string{"simulate", "--json"}, args...)...)), &rep))
	return rep
}

func TestSimulate_SameSeedSameRace(t *testing.T) {
	a := run(t, "simulate", "--seed", "42")
	b := run(t, "simulate", "--seed", "42")
	assert.Equal(t, a, b)
	assert.Contains(t, a, "seed 42")
	assert.Contains(t, a, "winner ")
}

func TestSimulate_ReportShape(t *testing.T) {
	rep := simulateJSON(t, "--seed", "7", "--entities", "4", "--pick", "2", "--bet", "500", "--duration", "3s", "--step", "1s")
	assert.Len(t, rep.Entities, 4)
	require.Len(t, rep.Samples, 4)
	assert.Equal(t, 3.0, rep.Samples[3].Seconds)
	assert.GreaterOrEqual(t, rep.Winner, 1)
	assert.LessOrEqual(t, rep.Winner, 4)
	assert.Equal(t, rep.Winner == 2, rep.Win)
	if rep.Win {
		assert.Equal(t, int64(500), rep.Delta)
	} else {
		assert.Equal(t, int64(-500), rep.Delta)
	}
	// The final sample's leader is the winner.
	assert.Equal(t, rep.Winner, rep.Samples[3].Standings[0].ID)
}

func TestReplay_MatchesSimulation(t *testing.T) {
	rules := race.Rules{Entities: 5, MinBet: 1, MaxBet: 100, Countdown: 5 * time.Second, Duration: 9 * time.Second}
	st, err := race.New("stored-1", "alice", 3, 100, rules, 99, time.UnixMilli(0))
	require.NoError(t, err)
	expected, ok := race.ComputeWinner(st)
	require.True(t, ok)

	wrong := expected%5 + 1
	st.Winner = &wrong
	raw, err := json.Marshal(st)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	var rep Report
	require.NoError(t, json.Unmarshal([]byte(run(t, "replay", "--json", path)), &rep))
	assert.Equal(t, "stored-1", rep.RaceID)
	assert.Equal(t, expected, rep.Winner)
	require.NotNil(t, rep.Agreement)
	assert.False(t, *rep.Agreement)
	assert.Equal(t, wrong, *rep.Recorded)
}

func TestReplay_RejectsBadDocument(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCmd(&out)
	cmd.SetErr(&out)
	cmd.SetIn(bytes.NewBufferString("{not json"))
	cmd.SetArgs([]string{"replay", "-"})
	assert.Error(t, cmd.Execute())
}

func TestSimulate_RejectsInvalidPick(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCmd(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"simulate", "--pick", "9"})
	assert.Error(t, cmd.Execute())
}

func TestReplay_RejectsInvalidState(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCmd(&out)
	cmd.SetErr(&out)
	cmd.SetIn(bytes.NewBufferString(`{"raceId":"r","pick":1,"bet":10,"entities":[{"id":1,"curveFamily":"cubic","curveParams":{}}]}`))
	cmd.SetArgs([]string{"replay", "-"})
	err := cmd.Execute()
	assert.ErrorIs(t, err, race.ErrMalformed)
}
