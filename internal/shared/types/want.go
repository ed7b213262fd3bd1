package types

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// Want flags
const (
	FlagAuthReadURIPermission  uint32 = 0x00000001
	FlagAuthWriteURIPermission uint32 = 0x00000002
	FlagAbilityContinuation    uint32 = 0x00000008
	FlagNotOhosComponent       uint32 = 0x00000010
	FlagAbilityFormEnabled     uint32 = 0x00000020
	FlagAbilityNewMission      uint32 = 0x10000000
)

// Caller information injected by the manager
const (
	ParamCallerToken = "ohos.aafwk.param.callerToken"
	ParamCallerUID   = "ohos.aafwk.param.callerUid"
	ParamCallerPID   = "ohos.aafwk.param.callerPid"
)

const (
	wantURIHead = "#Want;"
	wantURIEnd  = "end"
)

// ElementName identifies a component
type ElementName struct {
	DeviceID    string `json:"device_id,omitempty"`
	BundleName  string `json:"bundle_name"`
	AbilityName string `json:"ability_name"`
	ModuleName  string `json:"module_name,omitempty"`
}

// URI returns deviceId/bundleName/abilityName, the key services are stored under.
func (e ElementName) URI() string {
	return e.DeviceID + "/" + e.BundleName + "/" + e.AbilityName
}

// IsEmpty reports whether the element names no component
func (e ElementName) IsEmpty() bool {
	return e.BundleName == "" && e.AbilityName == ""
}

func (e ElementName) String() string {
	return e.URI()
}

// ParseElementURI parses the deviceId/bundleName/abilityName form
func ParseElementURI(uri string) (ElementName, error) {
	parts := strings.Split(uri, "/")
	if len(parts) != 3 {
		return ElementName{}, fmt.Errorf("malformed element uri %q", uri)
	}
	return ElementName{DeviceID: parts[0], BundleName: parts[1], AbilityName: parts[2]}, nil
}

// Params is the typed key/value bag carried by a Want
type Params map[string]interface{}

// Want describes a launch request
type Want struct {
	Element  ElementName `json:"element"`
	Action   string      `json:"action,omitempty"`
	Entities []string    `json:"entities,omitempty"`
	Flags    uint32      `json:"flags,omitempty"`
	Params   Params      `json:"params,omitempty"`
}

// NewWant creates a want targeting element
func NewWant(element ElementName) *Want {
	return &Want{Element: element, Params: Params{}}
}

// Clone returns a deep copy; parameters are copied by value.
func (w *Want) Clone() *Want {
	if w == nil {
		return nil
	}
	out := *w
	if w.Entities != nil {
		out.Entities = append([]string(nil), w.Entities...)
	}
	out.Params = make(Params, len(w.Params))
	for k, v := range w.Params {
		out.Params[k] = v
	}
	return &out
}

// HasFlag reports whether flag is set
func (w *Want) HasFlag(flag uint32) bool {
	return w != nil && w.Flags&flag == flag
}

// SetParam stores a parameter
func (w *Want) SetParam(key string, value interface{}) {
	if w.Params == nil {
		w.Params = Params{}
	}
	w.Params[key] = value
}

// RemoveParam deletes a parameter
func (w *Want) RemoveParam(key string) {
	delete(w.Params, key)
}

// HasParam reports whether key is present
func (w *Want) HasParam(key string) bool {
	if w == nil {
		return false
	}
	_, ok := w.Params[key]
	return ok
}

// StringParam returns a string parameter or def
func (w *Want) StringParam(key, def string) string {
	if w == nil {
		return def
	}
	if v, ok := w.Params[key].(string); ok {
		return v
	}
	return def
}

// BoolParam returns a bool parameter or def
func (w *Want) BoolParam(key string, def bool) bool {
	if w == nil {
		return def
	}
	if v, ok := w.Params[key].(bool); ok {
		return v
	}
	return def
}

// IntParam returns an integer parameter or def. JSON decoded numbers
// (float64) are accepted.
func (w *Want) IntParam(key string, def int) int {
	if w == nil {
		return def
	}
	switch v := w.Params[key].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case uint32:
		return int(v)
	case uint64:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}

// ToURI encodes the want in its persisted string form:
//
//	#Want;action=a;entity=e;device=d;bundle=b;ability=x;flag=0x10;S.k=v;end
//
// Parameter keys carry a type prefix: S string, b bool, i int, n int32,
// l int64, u uint32, U uint64 and d float64. Keys are emitted sorted so the form is deterministic.
func (w *Want) ToURI() string {
	if w == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(wantURIHead)
	writeField := func(key, value string) {
		if value == "" {
			return
		}
		b.WriteString(key)
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(value))
		b.WriteByte(';')
	}
	writeField("action", w.Action)
	for _, e := range w.Entities {
		writeField("entity", e)
	}
	writeField("device", w.Element.DeviceID)
	writeField("bundle", w.Element.BundleName)
	writeField("ability", w.Element.AbilityName)
	writeField("module", w.Element.ModuleName)
	if w.Flags != 0 {
		b.WriteString(fmt.Sprintf("flag=0x%x;", w.Flags))
	}

	keys := make([]string, 0, len(w.Params))
	for k := range w.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		prefix, value, ok := encodeParam(w.Params[k])
		if !ok {
			continue
		}
		b.WriteString(prefix)
		b.WriteByte('.')
		b.WriteString(url.QueryEscape(k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(value))
		b.WriteByte(';')
	}
	b.WriteString(wantURIEnd)
	return b.String()
}

func encodeParam(v interface{}) (string, string, bool) {
	switch t := v.(type) {
	case string:
		return "S", t, true
	case bool:
		return "b", strconv.FormatBool(t), true
	case int:
		return "i", strconv.Itoa(t), true
	case int32:
		return "n", strconv.FormatInt(int64(t), 10), true
	case int64:
		return "l", strconv.FormatInt(t, 10), true
	case uint32:
		return "u", strconv.FormatUint(uint64(t), 10), true
	case uint64:
		return "U", strconv.FormatUint(t, 10), true
	case float64:
		return "d", strconv.FormatFloat(t, 'g', -1, 64), true
	}
	return "", "", false
}

// ParseWantURI decodes the form produced by ToURI
func ParseWantURI(uri string) (*Want, error) {
	if !strings.HasPrefix(uri, wantURIHead) || !strings.HasSuffix(uri, wantURIEnd) {
		return nil, fmt.Errorf("malformed want uri %q", uri)
	}
	body := strings.TrimSuffix(strings.TrimPrefix(uri, wantURIHead), wantURIEnd)
	w := &Want{Params: Params{}}
	for _, field := range strings.Split(body, ";") {
		if field == "" {
			continue
		}
		key, raw, ok := strings.Cut(field, "=")
		if !ok {
			return nil, fmt.Errorf("malformed want field %q", field)
		}
		value, err := url.QueryUnescape(raw)
		if err != nil {
			return nil, fmt.Errorf("malformed want field %q: %w", field, err)
		}
		switch key {
		case "action":
			w.Action = value
		case "entity":
			w.Entities = append(w.Entities, value)
		case "device":
			w.Element.DeviceID = value
		case "bundle":
			w.Element.BundleName = value
		case "ability":
			w.Element.AbilityName = value
		case "module":
			w.Element.ModuleName = value
		case "flag":
			flags, err := strconv.ParseUint(strings.TrimPrefix(value, "0x"), 16, 32)
			if err != nil {
				return nil, fmt.Errorf("malformed want flags %q: %w", value, err)
			}
			w.Flags = uint32(flags)
		default:
			if err := decodeParam(w, key, value); err != nil {
				return nil, err
			}
		}
	}
	return w, nil
}

func decodeParam(w *Want, key, value string) error {
	prefix, name, ok := strings.Cut(key, ".")
	if !ok {
		return fmt.Errorf("unknown want field %q", key)
	}
	name, err := url.QueryUnescape(name)
	if err != nil {
		return fmt.Errorf("malformed param key %q: %w", key, err)
	}
	switch prefix {
	case "S":
		w.Params[name] = value
	case "b":
		v, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("param %s: %w", name, err)
		}
		w.Params[name] = v
	case "i":
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("param %s: %w", name, err)
		}
		w.Params[name] = v
	case "n":
		v, err := strconv.ParseInt(value, 10, 32)
		if err != nil {
			return fmt.Errorf("param %s: %w", name, err)
		}
		w.Params[name] = int32(v)
	case "l":
		v, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("param %s: %w", name, err)
		}
		w.Params[name] = v
	case "u":
		v, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return fmt.Errorf("param %s: %w", name, err)
		}
		w.Params[name] = uint32(v)
	case "U":
		v, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return fmt.Errorf("param %s: %w", name, err)
		}
		w.Params[name] = v
	case "d":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("param %s: %w", name, err)
		}
		w.Params[name] = v
	default:
		return fmt.Errorf("unknown param type %q", prefix)
	}
	return nil
}
