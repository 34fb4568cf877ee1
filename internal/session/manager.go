// manager.go

package session

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/lifequest/LifeQuest-Server/internal/store"
)

const (
	// sessionIdleTTL 会话空闲超时
	sessionIdleTTL = 30 * time.Minute

	// cleanupInterval 清理周期
	cleanupInterval = time.Minute
)

// Manager 会话管理器
// 按用户维护会话，空闲会话定期关闭
type Manager struct {
	sessions map[string]*Session
	mutex    sync.RWMutex

	store    store.ProfileStore
	hooks    Hooks
	debounce time.Duration

	shutdown  chan struct{}
	isRunning bool
}

// NewManager 创建会话管理器
// st 为 nil 时所有会话以离线模式运行
func NewManager(st store.ProfileStore, hooks Hooks) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		store:    st,
		hooks:    hooks,
		debounce: DebounceDelay,
		shutdown: make(chan struct{}),
	}
}

// Start 启动空闲会话清理
func (m *Manager) Start() {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.isRunning {
		return
	}
	m.isRunning = true
	go m.cleanupLoop()
}

// Stop 关闭所有会话
func (m *Manager) Stop() {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if !m.isRunning {
		return
	}
	close(m.shutdown)
	m.isRunning = false

	for userID, s := range m.sessions {
		s.Close()
		delete(m.sessions, userID)
	}
	log.Println("所有会话已关闭")
}

// Get 获取用户会话，不存在时创建并加载
// 返回前统一经过Start：首个调用方执行启动，并发取到同一会话的
// 调用方会阻塞到启动完成，不会拿到引擎未就绪的会话
func (m *Manager) Get(ctx context.Context, userID string) *Session {
	m.mutex.RLock()
	s, ok := m.sessions[userID]
	m.mutex.RUnlock()

	if !ok {
		m.mutex.Lock()
		// 双重检查，避免并发创建
		if s, ok = m.sessions[userID]; !ok {
			s = NewSession(userID, m.store, m.hooks, m.debounce)
			m.sessions[userID] = s
		}
		m.mutex.Unlock()
	}

	s.Start(ctx)
	return s
}

// Release 关闭并移除指定会话
func (m *Manager) Release(userID string) {
	m.mutex.Lock()
	s, ok := m.sessions[userID]
	if ok {
		delete(m.sessions, userID)
	}
	m.mutex.Unlock()

	if ok {
		s.Close()
	}
}

// cleanupLoop 定期清理空闲会话
func (m *Manager) cleanupLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.cleanupIdle()
		case <-m.shutdown:
			return
		}
	}
}

// cleanupIdle 关闭空闲超时的会话
func (m *Manager) cleanupIdle() {
	m.mutex.Lock()
	var expired []*Session
	for userID, s := range m.sessions {
		if s.ShouldCleanup(sessionIdleTTL) {
			log.Printf("清理空闲会话: %s", userID)
			expired = append(expired, s)
			delete(m.sessions, userID)
		}
	}
	m.mutex.Unlock()

	for _, s := range expired {
		s.Close()
	}
}
