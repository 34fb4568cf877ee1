package gateway

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/lifequest/LifeQuest-Server/internal/insight"
	"github.com/lifequest/LifeQuest-Server/internal/models"
	"github.com/lifequest/LifeQuest-Server/internal/progression"
	"github.com/lifequest/LifeQuest-Server/internal/session"
)

// ProfileHandler 玩家档案处理器
// 所有档案修改都经由会话的进度状态机执行
type ProfileHandler struct {
	sessions  *session.Manager
	auth      *AuthHandler
	generator *insight.Generator
}

// NewProfileHandler 创建玩家档案处理器
// generator 为 nil 时洞察相关接口返回系统错误
func NewProfileHandler(sessions *session.Manager, auth *AuthHandler, generator *insight.Generator) *ProfileHandler {
	return &ProfileHandler{
		sessions:  sessions,
		auth:      auth,
		generator: generator,
	}
}

// RegisterHandlers 注册HTTP处理器
func (h *ProfileHandler) RegisterHandlers(mux *http.ServeMux) {
	mux.HandleFunc("/profile", h.handleGetProfile)
	mux.HandleFunc("/profile/allocate-point", h.handleAllocatePoint)
	mux.HandleFunc("/quests/", h.handleQuestAction)
	mux.HandleFunc("/dungeons/", h.handleDungeonAction)
	mux.HandleFunc("/notifications", h.handleNotifications)
	mux.HandleFunc("/insight/quest", h.handleQuestInsight)
	mux.HandleFunc("/insight/affirmation", h.handleAffirmation)
}

// ProfileResponse 档案响应
type ProfileResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// AllocatePointRequest 分配点数请求
type AllocatePointRequest struct {
	Stat string `json:"stat"`
}

// QuestInsightRequest 任务洞察请求
type QuestInsightRequest struct {
	QuestID string `json:"quest_id"`
}

// ProfileData 档案数据
type ProfileData struct {
	Profile models.PlayerProfile `json:"profile"`
	State   session.State        `json:"state"`
}

// handleGetProfile 处理获取档案请求
func (h *ProfileHandler) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.sendErrorResponse(w, "仅支持GET方法", http.StatusMethodNotAllowed)
		return
	}

	s := h.session(r)
	h.sendSuccessResponse(w, "查询成功", ProfileData{
		Profile: s.Profile(),
		State:   s.State(),
	})
}

// handleAllocatePoint 处理分配点数请求
func (h *ProfileHandler) handleAllocatePoint(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.sendErrorResponse(w, "仅支持POST方法", http.StatusMethodNotAllowed)
		return
	}

	var req AllocatePointRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendErrorResponse(w, "无效的请求格式", http.StatusBadRequest)
		return
	}

	// 属性键在入口处校验，状态机内部视非法键为编程错误
	stat := models.StatKey(req.Stat)
	if !models.IsValidStat(stat) {
		h.sendErrorResponse(w, "无效的属性键", http.StatusBadRequest)
		return
	}

	s := h.session(r)
	profile, err := s.AllocatePoint(stat)
	if err == progression.ErrNoPointsAvailable {
		// 非致命拒绝，档案保持可用
		h.sendRejection(w, "没有可用点数")
		return
	}

	h.sendSuccessResponse(w, "分配成功", ProfileData{Profile: profile, State: s.State()})
}

// handleQuestAction 处理任务相关请求 (/quests/{id}/complete)
func (h *ProfileHandler) handleQuestAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.sendErrorResponse(w, "仅支持POST方法", http.StatusMethodNotAllowed)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/quests/")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "complete" {
		h.sendErrorResponse(w, "无效的请求路径", http.StatusBadRequest)
		return
	}

	s := h.session(r)
	profile, completed := s.CompleteQuest(parts[0])

	// 重复完成是幂等空操作，不视为错误
	message := "任务完成"
	if !completed {
		message = "任务不存在或已完成"
	}
	h.sendSuccessResponse(w, message, ProfileData{Profile: profile, State: s.State()})
}

// handleDungeonAction 处理地下城相关请求 (/dungeons/{id}/clear)
func (h *ProfileHandler) handleDungeonAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.sendErrorResponse(w, "仅支持POST方法", http.StatusMethodNotAllowed)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/dungeons/")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "clear" {
		h.sendErrorResponse(w, "无效的请求路径", http.StatusBadRequest)
		return
	}

	s := h.session(r)
	profile, cleared := s.ClearDungeon(parts[0])
	if !cleared {
		// 与任务路径不同，重复通关显式拒绝
		h.sendRejection(w, "该地下城今日已通关，无法重复挑战")
		return
	}

	h.sendSuccessResponse(w, "通关成功", ProfileData{Profile: profile, State: s.State()})
}

// handleNotifications 处理获取通知请求
func (h *ProfileHandler) handleNotifications(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.sendErrorResponse(w, "仅支持GET方法", http.StatusMethodNotAllowed)
		return
	}

	s := h.session(r)
	h.sendSuccessResponse(w, "查询成功", s.Notifications())
}

// handleQuestInsight 处理任务洞察请求
// 提示词由任务描述参数化，结果由前端以模态框展示
func (h *ProfileHandler) handleQuestInsight(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.sendErrorResponse(w, "仅支持POST方法", http.StatusMethodNotAllowed)
		return
	}

	var req QuestInsightRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendErrorResponse(w, "无效的请求格式", http.StatusBadRequest)
		return
	}

	s := h.session(r)
	profile := s.Profile()

	var description string
	for _, quest := range profile.DailyQuests {
		if quest.ID == req.QuestID {
			description = quest.Description
			break
		}
	}
	if description == "" {
		h.sendErrorResponse(w, "任务不存在", http.StatusNotFound)
		return
	}

	if h.generator == nil {
		h.sendErrorResponse(w, "系统错误，请稍后再试", http.StatusServiceUnavailable)
		return
	}

	// 只尝试一次，失败呈现单条系统错误
	text, err := h.generator.QuestInsight(r.Context(), description)
	if err != nil {
		log.Printf("生成任务洞察失败: %v", err)
		h.sendErrorResponse(w, "系统错误，请稍后再试", http.StatusServiceUnavailable)
		return
	}

	h.sendSuccessResponse(w, "生成成功", map[string]string{"insight": text})
}

// handleAffirmation 处理每日鼓励语请求
// 固定提示词，结果推入通知队列
func (h *ProfileHandler) handleAffirmation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.sendErrorResponse(w, "仅支持GET方法", http.StatusMethodNotAllowed)
		return
	}

	if h.generator == nil {
		h.sendErrorResponse(w, "系统错误，请稍后再试", http.StatusServiceUnavailable)
		return
	}

	s := h.session(r)
	text, err := h.generator.DailyAffirmation(r.Context())
	if err != nil {
		log.Printf("生成每日鼓励语失败: %v", err)
		h.sendErrorResponse(w, "系统错误，请稍后再试", http.StatusServiceUnavailable)
		return
	}

	s.Notify(text)
	h.sendSuccessResponse(w, "生成成功", map[string]string{"affirmation": text})
}

// session 解析身份并获取对应会话
func (h *ProfileHandler) session(r *http.Request) *session.Session {
	userID, _ := h.auth.ResolveIdentity(r)
	return h.sessions.Get(r.Context(), userID)
}

// sendSuccessResponse 发送成功响应
func (h *ProfileHandler) sendSuccessResponse(w http.ResponseWriter, message string, data interface{}) {
	resp := ProfileResponse{
		Success: true,
		Message: message,
		Data:    data,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Printf("编码响应失败: %v", err)
	}
}

// sendRejection 发送非致命拒绝响应
func (h *ProfileHandler) sendRejection(w http.ResponseWriter, message string) {
	resp := ProfileResponse{
		Success: false,
		Message: message,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Printf("编码响应失败: %v", err)
	}
}

// sendErrorResponse 发送错误响应
func (h *ProfileHandler) sendErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	resp := ProfileResponse{
		Success: false,
		Message: message,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Printf("编码错误响应失败: %v", err)
	}
}
