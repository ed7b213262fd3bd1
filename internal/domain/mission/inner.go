package mission

import (
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/openharmony/aafwk-standard-sub013/internal/shared/types"
)

// Start methods recorded on a mission
const (
	StartMethodNormal   = 0
	StartMethodContinue = 1
)

// InnerMissionInfo is the persisted form of a mission
type InnerMissionInfo struct {
	MissionInfo     types.MissionInfo
	MissionName     string
	IsSingletonMode bool
	StartMethod     int
	BundleName      string
	UID             int
}

// NameFor returns the mission name used for singleton reuse of element
func NameFor(element types.ElementName) string {
	return "#" + element.URI()
}

// Clone returns a copy that shares nothing mutable with i
func (i *InnerMissionInfo) Clone() *InnerMissionInfo {
	c := *i
	c.MissionInfo.Want = i.MissionInfo.Want.Clone()
	return &c
}

// ID returns the mission id
func (i *InnerMissionInfo) ID() int { return i.MissionInfo.ID }

// Equal reports whether i and o persist to the same document
func (i *InnerMissionInfo) Equal(o *InnerMissionInfo) bool {
	a, b := i.MissionInfo, o.MissionInfo
	return i.MissionName == o.MissionName &&
		i.IsSingletonMode == o.IsSingletonMode &&
		i.StartMethod == o.StartMethod &&
		i.BundleName == o.BundleName &&
		i.UID == o.UID &&
		a.ID == b.ID &&
		a.RunningState == b.RunningState &&
		a.LockedState == b.LockedState &&
		a.Continuable == b.Continuable &&
		a.Time.Equal(b.Time) &&
		a.Label == b.Label &&
		a.IconPath == b.IconPath &&
		a.Want.ToURI() == b.Want.ToURI()
}

type innerMissionJSON struct {
	MissionName  string `json:"MissionName"`
	IsSingleton  bool   `json:"IsSingleton"`
	StartMethod  int    `json:"StartMethod"`
	BundleName   string `json:"BundleName"`
	UID          int    `json:"Uid"`
	MissionID    *int   `json:"MissionId"`
	RunningState int    `json:"RunningState"`
	LockedState  bool   `json:"LockedState"`
	Continuable  bool   `json:"Continuable"`
	Time         string `json:"Time"`
	Label        string `json:"Label"`
	IconPath     string `json:"IconPath"`
	Want         string `json:"Want"`
}

// MarshalJSON encodes the persisted key set
func (i *InnerMissionInfo) MarshalJSON() ([]byte, error) {
	id := i.MissionInfo.ID
	doc := innerMissionJSON{
		MissionName:  i.MissionName,
		IsSingleton:  i.IsSingletonMode,
		StartMethod:  i.StartMethod,
		BundleName:   i.BundleName,
		UID:          i.UID,
		MissionID:    &id,
		RunningState: i.MissionInfo.RunningState,
		LockedState:  i.MissionInfo.LockedState,
		Continuable:  i.MissionInfo.Continuable,
		Time:         i.MissionInfo.Time.UTC().Format(time.RFC3339Nano),
		Label:        i.MissionInfo.Label,
		IconPath:     i.MissionInfo.IconPath,
	}
	if i.MissionInfo.Want != nil {
		doc.Want = i.MissionInfo.Want.ToURI()
	}
	return sonic.Marshal(&doc)
}

// UnmarshalJSON decodes the persisted key set. A document without a mission
// id or with an unreadable time or want is rejected.
func (i *InnerMissionInfo) UnmarshalJSON(data []byte) error {
	var doc innerMissionJSON
	if err := sonic.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("decode mission: %w", err)
	}
	if doc.MissionID == nil {
		return fmt.Errorf("decode mission: missing MissionId")
	}
	var ts time.Time
	if doc.Time != "" {
		parsed, err := time.Parse(time.RFC3339Nano, doc.Time)
		if err != nil {
			return fmt.Errorf("decode mission %d: time: %w", *doc.MissionID, err)
		}
		ts = parsed
	}
	var want *types.Want
	if doc.Want != "" {
		parsed, err := types.ParseWantURI(doc.Want)
		if err != nil {
			return fmt.Errorf("decode mission %d: want: %w", *doc.MissionID, err)
		}
		want = parsed
	}
	*i = InnerMissionInfo{
		MissionInfo: types.MissionInfo{
			ID:           *doc.MissionID,
			RunningState: doc.RunningState,
			LockedState:  doc.LockedState,
			Continuable:  doc.Continuable,
			Time:         ts,
			Label:        doc.Label,
			IconPath:     doc.IconPath,
			Want:         want,
		},
		MissionName:     doc.MissionName,
		IsSingletonMode: doc.IsSingleton,
		StartMethod:     doc.StartMethod,
		BundleName:      doc.BundleName,
		UID:             doc.UID,
	}
	return nil
}

// Dump returns the mission's dump lines
func (i *InnerMissionInfo) Dump() []string {
	lines := []string{
		fmt.Sprintf("    Mission ID #%d  mission name #[%s]  lockedState #%t", i.MissionInfo.ID, i.MissionName, i.MissionInfo.LockedState),
		fmt.Sprintf("      bundle name [%s]  uid #%d  running state #%d", i.BundleName, i.UID, i.MissionInfo.RunningState),
		fmt.Sprintf("      time [%s]  label [%s]", i.MissionInfo.Time.Format(time.RFC3339), i.MissionInfo.Label),
	}
	if i.MissionInfo.Want != nil {
		lines = append(lines, "      want ["+i.MissionInfo.Want.ToURI()+"]")
	}
	return lines
}
