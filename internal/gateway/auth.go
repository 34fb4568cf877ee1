package gateway

import (
	"crypto/sha256"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/lifequest/LifeQuest-Server/config"
	"github.com/lifequest/LifeQuest-Server/pkg/db"
)

// AuthHandler 认证处理器
// 负责账号注册登录和JWT令牌的签发与校验
type AuthHandler struct {
	jwtSecret []byte
	tokenTTL  time.Duration
}

// LoginRequest 登录请求
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// RegisterRequest 注册请求
type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
}

// AuthResponse 认证响应
type AuthResponse struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	Token    string `json:"token,omitempty"`
	UserID   string `json:"user_id,omitempty"`
	Username string `json:"username,omitempty"`
}

// NewAuthHandler 创建认证处理器
func NewAuthHandler() *AuthHandler {
	ttl := time.Duration(config.GlobalConfig.Auth.TokenTTL) * time.Hour
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	return &AuthHandler{
		jwtSecret: []byte(config.GlobalConfig.Auth.JWTSecret),
		tokenTTL:  ttl,
	}
}

// RegisterHandlers 注册HTTP处理器
func (h *AuthHandler) RegisterHandlers(mux *http.ServeMux) {
	mux.HandleFunc("/auth/login", h.handleLogin)
	mux.HandleFunc("/auth/register", h.handleRegister)
	mux.HandleFunc("/auth/guest", h.handleGuest)
}

// handleLogin 处理登录请求
func (h *AuthHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "仅支持POST方法", http.StatusMethodNotAllowed)
		return
	}

	// 解析请求
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "无效的请求格式", http.StatusBadRequest)
		return
	}

	// 验证用户名和密码
	userID, err := h.validateCredentials(req.Username, req.Password)
	if err != nil {
		resp := AuthResponse{
			Success: false,
			Message: "用户名或密码错误",
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
		return
	}

	// 签发令牌
	token, err := h.issueToken(userID, req.Username)
	if err != nil {
		http.Error(w, "生成令牌失败", http.StatusInternalServerError)
		return
	}

	resp := AuthResponse{
		Success:  true,
		Message:  "登录成功",
		Token:    token,
		UserID:   userID,
		Username: req.Username,
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// handleRegister 处理注册请求
func (h *AuthHandler) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "仅支持POST方法", http.StatusMethodNotAllowed)
		return
	}

	// 解析请求
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "无效的请求格式", http.StatusBadRequest)
		return
	}

	// 验证请求
	if req.Username == "" || req.Password == "" || req.Email == "" {
		http.Error(w, "缺少必要参数", http.StatusBadRequest)
		return
	}

	// 创建账号
	userID, err := h.createAccount(req.Username, req.Password, req.Email)
	if err != nil {
		resp := AuthResponse{
			Success: false,
			Message: fmt.Sprintf("注册失败: %v", err),
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
		return
	}

	// 签发令牌
	token, err := h.issueToken(userID, req.Username)
	if err != nil {
		http.Error(w, "生成令牌失败", http.StatusInternalServerError)
		return
	}

	resp := AuthResponse{
		Success:  true,
		Message:  "注册成功",
		Token:    token,
		UserID:   userID,
		Username: req.Username,
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// handleGuest 处理访客登录
// 生成随机访客标识，后续请求凭令牌保持同一身份
func (h *AuthHandler) handleGuest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "仅支持POST方法", http.StatusMethodNotAllowed)
		return
	}

	userID := GuestIdentity()
	token, err := h.issueToken(userID, "")
	if err != nil {
		http.Error(w, "生成令牌失败", http.StatusInternalServerError)
		return
	}

	resp := AuthResponse{
		Success: true,
		Message: "访客登录成功",
		Token:   token,
		UserID:  userID,
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// ResolveIdentity 从请求中解析用户身份
// 令牌缺失或校验失败时回退为新生成的访客标识，系统继续以该身份运行
func (h *AuthHandler) ResolveIdentity(r *http.Request) (string, bool) {
	raw := r.Header.Get("Authorization")
	raw = strings.TrimPrefix(raw, "Bearer ")
	if raw == "" {
		raw = r.URL.Query().Get("token")
	}
	if raw == "" {
		return GuestIdentity(), false
	}

	userID, err := h.parseToken(raw)
	if err != nil {
		return GuestIdentity(), false
	}

	return userID, true
}

// GuestIdentity 生成本地随机访客标识
func GuestIdentity() string {
	return "guest-" + uuid.New().String()
}

// issueToken 签发JWT令牌
func (h *AuthHandler) issueToken(userID, username string) (string, error) {
	claims := jwt.MapClaims{
		"sub": userID,
		"exp": time.Now().Add(h.tokenTTL).Unix(),
		"iat": time.Now().Unix(),
	}
	if username != "" {
		claims["username"] = username
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(h.jwtSecret)
}

// parseToken 校验令牌并返回用户标识
func (h *AuthHandler) parseToken(raw string) (string, error) {
	token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		return h.jwtSecret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return "", fmt.Errorf("令牌校验失败: %w", err)
	}

	subject, err := token.Claims.GetSubject()
	if err != nil || subject == "" {
		return "", fmt.Errorf("令牌缺少用户标识")
	}

	return subject, nil
}

// validateCredentials 验证用户凭据
func (h *AuthHandler) validateCredentials(username, password string) (string, error) {
	hashedPassword := hashPassword(password)

	var accountID int64
	err := db.DB.QueryRow("SELECT id FROM accounts WHERE username = $1 AND password = $2",
		username, hashedPassword).Scan(&accountID)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", fmt.Errorf("用户名或密码错误")
		}
		return "", fmt.Errorf("数据库查询错误: %w", err)
	}

	return fmt.Sprintf("user-%d", accountID), nil
}

// createAccount 创建账号
func (h *AuthHandler) createAccount(username, password, email string) (string, error) {
	// 检查用户名是否已存在
	var count int
	err := db.DB.QueryRow("SELECT COUNT(*) FROM accounts WHERE username = $1", username).Scan(&count)
	if err != nil {
		return "", fmt.Errorf("数据库查询错误: %w", err)
	}
	if count > 0 {
		return "", fmt.Errorf("用户名已存在")
	}

	// 检查邮箱是否已存在
	err = db.DB.QueryRow("SELECT COUNT(*) FROM accounts WHERE email = $1", email).Scan(&count)
	if err != nil {
		return "", fmt.Errorf("数据库查询错误: %w", err)
	}
	if count > 0 {
		return "", fmt.Errorf("邮箱已被使用")
	}

	hashedPassword := hashPassword(password)

	var accountID int64
	err = db.DB.QueryRow(
		"INSERT INTO accounts (username, password, email, created_at, updated_at) VALUES ($1, $2, $3, NOW(), NOW()) RETURNING id",
		username, hashedPassword, email,
	).Scan(&accountID)
	if err != nil {
		return "", fmt.Errorf("创建账号失败: %w", err)
	}

	return fmt.Sprintf("user-%d", accountID), nil
}

// hashPassword 计算密码哈希
func hashPassword(password string) string {
	// 使用SHA-256哈希
	// 在实际应用中，应该使用更安全的哈希算法，如bcrypt
	hash := sha256.Sum256([]byte(password))
	return fmt.Sprintf("%x", hash)
}
