package mission_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/openharmony/aafwk-standard-sub013/internal/domain/mission"
	"github.com/openharmony/aafwk-standard-sub013/internal/shared/errcode"
	"github.com/openharmony/aafwk-standard-sub013/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListenerControllerDeliversInOrder(t *testing.T) {
	c := mission.NewListenerController("missions-test", nil)
	defer c.Close()

	l := testutil.NewFakeMissionListener()
	require.NoError(t, c.AddMissionListener(l))
	require.NoError(t, c.AddMissionListener(l))
	assert.Equal(t, 1, c.Count())
	assert.ErrorIs(t, c.AddMissionListener(nil), errcode.ErrInvalidValue)

	c.NotifyMissionCreated(4)
	c.NotifyMissionMovedToFront(4)
	c.NotifyMissionLabelUpdated(4)
	c.NotifyMissionSnapshotChanged(4)
	c.NotifyMissionDestroyed(4)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, c.Flush(ctx))
	assert.Equal(t, []string{"created", "front", "label", "snapshot", "destroyed"}, l.Kinds(4))

	c.DelMissionListener(l)
	c.NotifyMissionCreated(5)
	require.NoError(t, c.Flush(ctx))
	assert.Empty(t, l.Kinds(5))
}

func TestMissionFileKeys(t *testing.T) {
	info := newInfo(12, epoch)
	info.MissionInfo.Want.SetParam("k", "v")
	data, err := info.MarshalJSON()
	require.NoError(t, err)

	var doc map[string]interface{}
	require.NoError(t, sonic.Unmarshal(data, &doc))
	for _, key := range []string{"MissionName", "IsSingleton", "StartMethod", "BundleName", "Uid",
		"MissionId", "RunningState", "LockedState", "Continuable", "Time", "Label", "IconPath", "Want"} {
		assert.Contains(t, doc, key)
	}
	assert.Equal(t, float64(12), doc["MissionId"])
	want, ok := doc["Want"].(string)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(want, "#Want;"))
	assert.Equal(t, "#/com.example/Main", info.MissionName)
}

func TestMissionDecodeRejectsBadDocuments(t *testing.T) {
	var info mission.InnerMissionInfo
	assert.Error(t, info.UnmarshalJSON([]byte(`{"MissionName":"x"}`)))
	assert.Error(t, info.UnmarshalJSON([]byte(`{"MissionId":1,"Time":"yesterday"}`)))
	assert.Error(t, info.UnmarshalJSON([]byte(`{"MissionId":1,"Want":"garbage"}`)))
	require.NoError(t, info.UnmarshalJSON([]byte(`{"MissionId":1}`)))
	assert.Equal(t, 1, info.ID())
	assert.Nil(t, info.MissionInfo.Want)
}
