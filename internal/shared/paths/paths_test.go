package paths

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLayout(t *testing.T) {
	l := NewLayout("/tmp/ams")
	assert.Equal(t, "/tmp/ams/100", l.UserDir(100))
	assert.Equal(t, "/tmp/ams/100/MissionInfo", l.MissionDir(100))
	assert.Equal(t, "/tmp/ams/100/MissionInfo/mission_7.json", l.MissionFile(100, 7))
	assert.Equal(t, "/tmp/ams/100/MissionInfo/mission_7.png", l.SnapshotFile(100, 7))

	assert.Equal(t, DefaultBase, NewLayout("").Base)
}

func TestParseMissionFileName(t *testing.T) {
	id, err := ParseMissionFileName("/x/MissionInfo/mission_42.json")
	require.NoError(t, err)
	assert.Equal(t, 42, id)

	for _, bad := range []string{"mission_.json", "mission_a.json", "mission_1.png", "other_1.json"} {
		_, err := ParseMissionFileName(bad)
		assert.Error(t, err, bad)
	}
}
