package http

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzip"
	"github.com/openharmony/aafwk-standard-sub013/internal/api/middleware"
	"github.com/openharmony/aafwk-standard-sub013/internal/domain/ams"
	"github.com/openharmony/aafwk-standard-sub013/internal/infrastructure/account"
	"github.com/openharmony/aafwk-standard-sub013/internal/infrastructure/bundle"
	"github.com/openharmony/aafwk-standard-sub013/internal/infrastructure/config"
	"github.com/openharmony/aafwk-standard-sub013/internal/infrastructure/ipc"
	"github.com/openharmony/aafwk-standard-sub013/internal/infrastructure/monitoring"
	"github.com/openharmony/aafwk-standard-sub013/internal/shared/errcode"
	"github.com/openharmony/aafwk-standard-sub013/internal/shared/paths"
	"github.com/openharmony/aafwk-standard-sub013/internal/shared/types"
	"github.com/openharmony/aafwk-standard-sub013/internal/testutil"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	systemUID = "0"
	demo      = "com.example.demo"
)

// appUID is the demo bundle as installed for user 100
var appUID = strconv.Itoa(100*ams.BaseUserRange + 10020)

type fixture struct {
	router  *gin.Engine
	svc     *ams.Service
	apps    *testutil.FakeAppScheduler
	catalog *bundle.Catalog
	dialer  *ipc.Dialer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	catalog := bundle.NewCatalog(t.TempDir(), nil)
	require.NoError(t, catalog.Install(&bundle.Manifest{BundleInfo: types.BundleInfo{
		Name: demo,
		UID:  10020,
		Abilities: []types.AbilityInfo{
			{Name: "Main", Visible: true, Label: "Main"},
			{Name: "Svc", Type: types.AbilityTypeService, Visible: true},
		},
	}}))

	apps := testutil.NewFakeAppScheduler()
	bc := &testutil.MockBroadcaster{}
	bc.On("BroadcastUserEvent", mock.Anything, mock.Anything).Return()

	svc, err := ams.New(ams.Config{
		AppScheduler:     apps,
		Bundles:          catalog,
		Accounts:         account.NewRegistry(100),
		Broadcaster:      bc,
		Layout:           paths.NewLayout(t.TempDir()),
		UseNewMission:    true,
		MinMissionID:     1,
		MaxMissionID:     100,
		Timeouts:         config.DefaultTimeouts(),
		BootWaitRetries:  3,
		BootWaitInterval: time.Millisecond,
		DefaultUserID:    100,
	})
	require.NoError(t, err)
	require.NoError(t, svc.Init(context.Background()))
	t.Cleanup(svc.Stop)

	dialer := ipc.NewDialer(ipc.Options{Timeout: time.Second})
	t.Cleanup(dialer.Close)

	h := NewHandlers(Options{
		Service:  svc,
		Dialer:   dialer,
		Catalog:  catalog,
		Gatherer: prometheus.NewRegistry(),
		Metrics:  monitoring.NewMetrics(nil),
	})
	router := gin.New()
	h.Register(router)
	return &fixture{router: router, svc: svc, apps: apps, catalog: catalog, dialer: dialer}
}

func (f *fixture) do(t *testing.T, method, path, uid string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		data, err := sonic.Marshal(body)
		require.NoError(t, err)
		buf.Write(data)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if uid != "" {
		req.Header.Set(middleware.HeaderCallerUID, uid)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *fixture) flush(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, f.svc.Flush(ctx))
}

type apiResponse struct {
	Success  bool   `json:"success"`
	Code     int    `json:"code"`
	CodeName string `json:"code_name"`
	Error    string `json:"error"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) apiResponse {
	t.Helper()
	var out apiResponse
	require.NoError(t, sonic.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func element(name string) gin.H {
	return gin.H{"want": types.NewWant(types.ElementName{BundleName: demo, AbilityName: name})}
}

func (f *fixture) startMain(t *testing.T) int {
	t.Helper()
	w := f.do(t, "POST", "/v1/abilities/start", appUID, element("Main"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	f.flush(t)

	var out struct {
		Missions []types.MissionInfo `json:"missions"`
	}
	w = f.do(t, "GET", "/v1/missions?max=5", systemUID, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NoError(t, sonic.Unmarshal(w.Body.Bytes(), &out))
	require.Len(t, out.Missions, 1)
	return out.Missions[0].ID
}

func TestStatusForCodes(t *testing.T) {
	cases := map[errcode.Code]int{
		errcode.ErrInvalidValue:               http.StatusBadRequest,
		errcode.CheckPermissionFailed:         http.StatusForbidden,
		errcode.ResolveAbilityErr:             http.StatusNotFound,
		errcode.StartServiceAbilityActivating: http.StatusConflict,
		errcode.ConnectionTimeout:             http.StatusGatewayTimeout,
		errcode.MissionIDExhausted:            http.StatusServiceUnavailable,
		errcode.InnerErr:                      http.StatusInternalServerError,
	}
	for code, want := range cases {
		assert.Equal(t, want, statusFor(code), code.Name())
	}
}

func TestRootHealthAndMetrics(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, "GET", "/", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ability-manager")

	w = f.do(t, "GET", "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"healthy"`)

	w = f.do(t, "GET", "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, "GET", "/metrics/json", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestStartAbility(t *testing.T) {
	f := newFixture(t)

	t.Run("caller header required", func(t *testing.T) {
		w := f.do(t, "POST", "/v1/abilities/start", "", element("Main"))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "ERR_INVALID_VALUE", decode(t, w).CodeName)
	})

	t.Run("target required", func(t *testing.T) {
		w := f.do(t, "POST", "/v1/abilities/start", appUID, gin.H{})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("malformed element", func(t *testing.T) {
		bad := gin.H{"want": types.NewWant(types.ElementName{BundleName: "com/example", AbilityName: "Main"})}
		w := f.do(t, "POST", "/v1/abilities/start", appUID, bad)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "ERR_INVALID_VALUE", decode(t, w).CodeName)
	})

	t.Run("unknown ability", func(t *testing.T) {
		w := f.do(t, "POST", "/v1/abilities/start", appUID, element("Nope"))
		assert.Equal(t, http.StatusNotFound, w.Code)
		resp := decode(t, w)
		assert.Equal(t, "RESOLVE_ABILITY_ERR", resp.CodeName)
		assert.Equal(t, int(errcode.ResolveAbilityErr), resp.Code)
	})

	t.Run("page by want uri", func(t *testing.T) {
		want := types.NewWant(types.ElementName{BundleName: demo, AbilityName: "Main"})
		w := f.do(t, "POST", "/v1/abilities/start", appUID, gin.H{"uri": want.ToURI()})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		f.flush(t)
		assert.Equal(t, 1, f.apps.Count("LoadAbility"))
	})
}

func TestAbilityTokenRoutes(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, "POST", "/v1/abilities/not-a-token/terminate", appUID, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, "POST", "/v1/abilities/4294967395/minimize", appUID, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "ERR_INVALID_VALUE", decode(t, w).CodeName)

	w = f.do(t, "GET", "/v1/abilities/4294967395/mission", appUID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"mission_id":-1`)

	w = f.do(t, "GET", "/v1/abilities/top", appUID, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestConnections(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, "POST", "/v1/connections", appUID, gin.H{
		"want":     types.NewWant(types.ElementName{BundleName: demo, AbilityName: "Svc"}),
		"callback": "ftp://client",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, "POST", "/v1/connections", appUID, gin.H{
		"want":     types.NewWant(types.ElementName{BundleName: demo, AbilityName: "Main"}),
		"callback": "http://127.0.0.1:9/cb",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "TARGET_ABILITY_NOT_SERVICE", decode(t, w).CodeName)

	w = f.do(t, "POST", "/v1/connections", appUID, gin.H{
		"want":     types.NewWant(types.ElementName{BundleName: demo, AbilityName: "Svc"}),
		"callback": "http://127.0.0.1:9/cb",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	cb, ok := f.dialer.LookupCallback("http://127.0.0.1:9/cb/")
	require.True(t, ok, "callback proxy is cached per endpoint")
	assert.NotNil(t, cb)

	w = f.do(t, "DELETE", "/v1/connections", appUID, gin.H{"callback": "http://127.0.0.1:9/other"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestIPCRoutes(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, "POST", "/v1/ipc/4294967395/transition-done", "", gin.H{"state": "BOGUS"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, "POST", "/v1/ipc/4294967395/transition-done", "", gin.H{"state": "ACTIVE"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "ERR_INVALID_VALUE", decode(t, w).CodeName)

	w = f.do(t, "POST", "/v1/ipc/4294967395/attach", "", gin.H{"endpoint": "not a url"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, "POST", "/v1/ipc/4294967395/attach", "", gin.H{"endpoint": "http://127.0.0.1:9"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, "POST", "/v1/ipc/4294967395/died", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMissions(t *testing.T) {
	f := newFixture(t)
	id := f.startMain(t)
	path := "/v1/missions/" + strconv.Itoa(id)

	w := f.do(t, "GET", "/v1/missions", appUID, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "CHECK_PERMISSION_FAILED", decode(t, w).CodeName)

	w = f.do(t, "GET", path, systemUID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"label":"Main"`)

	w = f.do(t, "GET", "/v1/missions/abc", systemUID, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, "POST", "/v1/missions/999/front", systemUID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "MISSION_NOT_FOUND", decode(t, w).CodeName)

	require.Equal(t, http.StatusOK, f.do(t, "POST", path+"/lock", systemUID, nil).Code)
	w = f.do(t, "DELETE", path, systemUID, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code, "locked missions are kept")
	require.Equal(t, http.StatusOK, f.do(t, "POST", path+"/unlock", systemUID, nil).Code)
	require.Equal(t, http.StatusOK, f.do(t, "DELETE", path, systemUID, nil).Code)

	require.Equal(t, http.StatusOK, f.do(t, "DELETE", "/v1/missions", systemUID, nil).Code)
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestSnapshots(t *testing.T) {
	f := newFixture(t)
	id := f.startMain(t)
	path := "/v1/missions/" + strconv.Itoa(id) + "/snapshot"

	put := func(body []byte) *httptest.ResponseRecorder {
		req := httptest.NewRequest("PUT", path, bytes.NewReader(body))
		req.Header.Set(middleware.HeaderCallerUID, systemUID)
		w := httptest.NewRecorder()
		f.router.ServeHTTP(w, req)
		return w
	}

	w := put([]byte("plain text is not an image"))
	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)

	w = put(pngBytes(t, 4, 3))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"width":4`)
	assert.Contains(t, w.Body.String(), `"mime":"image/png"`)

	w = f.do(t, "GET", path, systemUID, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	img, err := png.Decode(w.Body)
	require.NoError(t, err)
	assert.Equal(t, 4, img.Bounds().Dx())
	assert.Equal(t, 3, img.Bounds().Dy())
}

func TestUsers(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, "GET", "/v1/users/current", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"user_id":100`)

	w = f.do(t, "POST", "/v1/users/abc/start", systemUID, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, "POST", "/v1/users/100/stop", appUID, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "CALLER_ISNOT_SYSTEMAPP", decode(t, w).CodeName)
}

func TestApps(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, "GET", "/v1/apps", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), demo)

	w = f.do(t, "DELETE", "/v1/apps/"+demo, appUID, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(t, "DELETE", "/v1/apps/"+demo, systemUID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, f.apps.Count("KillApplication"))

	f.startMain(t)
	w = f.do(t, "POST", "/v1/apps/"+demo+"/uninstall", systemUID, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotContains(t, f.catalog.Bundles(), demo)
	infos, err := f.svc.GetMissionInfos(ams.SystemCaller, 10)
	require.NoError(t, err)
	assert.Empty(t, infos)

	w = f.do(t, "POST", "/v1/apps/"+demo+"/uninstall", systemUID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDump(t *testing.T) {
	f := newFixture(t)
	f.startMain(t)

	w := f.do(t, "POST", "/v1/dump", appUID, gin.H{"args": []string{"-a"}})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(t, "POST", "/v1/dump", systemUID, gin.H{"args": []string{"-a"}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "MissionList")

	w = f.do(t, "POST", "/v1/dumpsys", systemUID, gin.H{"args": []string{"--bogus"}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, ams.DumpInvalidArgument+"\n", w.Body.String())

	body, err := sonic.Marshal(gin.H{"args": []string{"-a"}})
	require.NoError(t, err)
	req := httptest.NewRequest("POST", "/v1/dump", bytes.NewReader(body))
	req.Header.Set(middleware.HeaderCallerUID, systemUID)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "gzip", rec.Header().Get("Content-Encoding"))
	zr, err := gzip.NewReader(rec.Body)
	require.NoError(t, err)
	plain, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Contains(t, string(plain), "MissionList")
	assert.True(t, strings.HasSuffix(string(plain), "\n"))
}
