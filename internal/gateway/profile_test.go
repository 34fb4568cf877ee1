package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lifequest/LifeQuest-Server/config"
	"github.com/lifequest/LifeQuest-Server/internal/models"
	"github.com/lifequest/LifeQuest-Server/internal/session"
)

// newTestMux 构造离线模式下的测试路由（无Redis、无生成式文本客户端）
func newTestMux(t *testing.T) (*http.ServeMux, *AuthHandler, *session.Manager) {
	t.Helper()

	config.GlobalConfig.Auth.JWTSecret = "test-secret"
	config.GlobalConfig.Auth.TokenTTL = 1

	auth := NewAuthHandler()
	sessions := session.NewManager(nil, session.Hooks{})
	t.Cleanup(sessions.Stop)
	sessions.Start()

	mux := http.NewServeMux()
	NewProfileHandler(sessions, auth, nil).RegisterHandlers(mux)
	return mux, auth, sessions
}

// authedRequest 构造携带令牌的请求，保证多次请求命中同一会话
func authedRequest(t *testing.T, auth *AuthHandler, method, path string, body interface{}) *http.Request {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	token, err := auth.issueToken("user-test", "测试用户")
	require.NoError(t, err)

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

type profileEnvelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    struct {
		Profile models.PlayerProfile `json:"profile"`
		State   string               `json:"state"`
	} `json:"data"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) profileEnvelope {
	t.Helper()
	var env profileEnvelope
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	return env
}

func TestResolveIdentity(t *testing.T) {
	_, auth, _ := newTestMux(t)

	// 无令牌回退为访客身份
	req := httptest.NewRequest(http.MethodGet, "/profile", nil)
	userID, authed := auth.ResolveIdentity(req)
	assert.False(t, authed)
	assert.True(t, strings.HasPrefix(userID, "guest-"))

	// 无效令牌同样回退，不报错
	req.Header.Set("Authorization", "Bearer 无效令牌")
	userID, authed = auth.ResolveIdentity(req)
	assert.False(t, authed)
	assert.True(t, strings.HasPrefix(userID, "guest-"))

	// 有效令牌解析出签发时的用户标识
	token, err := auth.issueToken("user-42", "alice")
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	userID, authed = auth.ResolveIdentity(req)
	assert.True(t, authed)
	assert.Equal(t, "user-42", userID)
}

func TestGetProfileOffline(t *testing.T) {
	mux, auth, _ := newTestMux(t)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, authedRequest(t, auth, http.MethodGet, "/profile", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.True(t, env.Success)
	assert.Equal(t, 1, env.Data.Profile.Level)
	assert.Equal(t, string(session.StateOffline), env.Data.State)
	assert.NotEmpty(t, env.Data.Profile.DailyQuests)
}

func TestAllocatePointInvalidStat(t *testing.T) {
	mux, auth, _ := newTestMux(t)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, authedRequest(t, auth, http.MethodPost, "/profile/allocate-point",
		AllocatePointRequest{Stat: "luck"}))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAllocatePointWithoutPoints(t *testing.T) {
	mux, auth, _ := newTestMux(t)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, authedRequest(t, auth, http.MethodPost, "/profile/allocate-point",
		AllocatePointRequest{Stat: "focus"}))

	// 没有点数是非致命拒绝，HTTP层面仍为200
	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.False(t, env.Success)
	assert.Equal(t, "没有可用点数", env.Message)
}

func TestCompleteQuestIdempotentOverHTTP(t *testing.T) {
	mux, auth, sessions := newTestMux(t)

	s := sessions.Get(httptest.NewRequest(http.MethodGet, "/", nil).Context(), "user-test")
	questID := s.Profile().DailyQuests[0].ID

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, authedRequest(t, auth, http.MethodPost, "/quests/"+questID+"/complete", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.True(t, env.Success)
	assert.Equal(t, "任务完成", env.Message)
	assert.Positive(t, env.Data.Profile.XP)

	// 重复完成仍返回成功，但不再发放奖励
	xpAfterFirst := env.Data.Profile.XP
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, authedRequest(t, auth, http.MethodPost, "/quests/"+questID+"/complete", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	env = decodeEnvelope(t, rec)
	assert.True(t, env.Success)
	assert.Equal(t, "任务不存在或已完成", env.Message)
	assert.Equal(t, xpAfterFirst, env.Data.Profile.XP)
}

func TestClearDungeonRepeatRejectedOverHTTP(t *testing.T) {
	mux, auth, sessions := newTestMux(t)

	s := sessions.Get(httptest.NewRequest(http.MethodGet, "/", nil).Context(), "user-test")
	dungeonID := s.Profile().Dungeons[0].ID

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, authedRequest(t, auth, http.MethodPost, "/dungeons/"+dungeonID+"/clear", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.True(t, env.Success)
	assert.Positive(t, env.Data.Profile.AvailablePoints)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, authedRequest(t, auth, http.MethodPost, "/dungeons/"+dungeonID+"/clear", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	env = decodeEnvelope(t, rec)
	assert.False(t, env.Success)
	assert.Equal(t, "该地下城今日已通关，无法重复挑战", env.Message)
}

func TestInvalidActionPath(t *testing.T) {
	mux, auth, _ := newTestMux(t)

	for _, path := range []string{"/quests//complete", "/quests/q1/done", "/dungeons/d1"} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, authedRequest(t, auth, http.MethodPost, path, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, "路径 %s 应被拒绝", path)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	mux, auth, _ := newTestMux(t)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, authedRequest(t, auth, http.MethodPost, "/profile", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, authedRequest(t, auth, http.MethodGet, "/profile/allocate-point", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestInsightUnavailableWithoutGenerator(t *testing.T) {
	mux, auth, sessions := newTestMux(t)

	s := sessions.Get(httptest.NewRequest(http.MethodGet, "/", nil).Context(), "user-test")
	questID := s.Profile().DailyQuests[0].ID

	// 生成式文本客户端未配置时呈现单条系统错误
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, authedRequest(t, auth, http.MethodPost, "/insight/quest",
		QuestInsightRequest{QuestID: questID}))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Equal(t, "系统错误，请稍后再试", env.Message)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, authedRequest(t, auth, http.MethodGet, "/insight/affirmation", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestQuestInsightUnknownQuest(t *testing.T) {
	mux, auth, _ := newTestMux(t)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, authedRequest(t, auth, http.MethodPost, "/insight/quest",
		QuestInsightRequest{QuestID: "不存在"}))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNotificationsEndpoint(t *testing.T) {
	mux, auth, sessions := newTestMux(t)

	s := sessions.Get(httptest.NewRequest(http.MethodGet, "/", nil).Context(), "user-test")
	questID := s.Profile().DailyQuests[0].ID

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, authedRequest(t, auth, http.MethodPost, fmt.Sprintf("/quests/%s/complete", questID), nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, authedRequest(t, auth, http.MethodGet, "/notifications", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var env struct {
		Success bool `json:"success"`
		Data    []struct {
			Message string `json:"message"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	assert.True(t, env.Success)
	assert.NotEmpty(t, env.Data, "奖励通知在存活期内可查询")
}
