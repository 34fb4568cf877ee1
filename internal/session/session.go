// session.go

package session

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lifequest/LifeQuest-Server/internal/models"
	"github.com/lifequest/LifeQuest-Server/internal/notify"
	"github.com/lifequest/LifeQuest-Server/internal/progression"
	"github.com/lifequest/LifeQuest-Server/internal/store"
)

// State 会话生命周期状态
type State string

const (
	// StateUnauthenticated 未认证
	StateUnauthenticated State = "unauthenticated"
	// StateAuthenticating 认证中
	StateAuthenticating State = "authenticating"
	// StateLoading 档案加载中
	StateLoading State = "loading"
	// StateReady 就绪（稳态）
	StateReady State = "ready"
	// StateOffline 离线降级，档案仅存在于内存
	StateOffline State = "offline"
)

// writeState 防抖写入状态
type writeState int

const (
	writeIdle writeState = iota
	writeScheduled
	writeInFlight
)

// DebounceDelay 写入防抖静默期
const DebounceDelay = 500 * time.Millisecond

// Hooks 会话事件回调（用于WebSocket推送）
type Hooks struct {
	OnNotification func(userID string, n notify.Notification)
	OnProfile      func(userID string, profile models.PlayerProfile)
}

// Session 用户会话
// 独占持有玩家档案，负责加载、防抖写入和远端快照的应用
type Session struct {
	userID string
	// origin 标识本会话发出的写入，订阅时据此过滤回声
	origin string

	mutex  sync.Mutex
	state  State
	wstate writeState
	engine *progression.Engine
	queue  *notify.Queue
	store  store.ProfileStore
	hooks  Hooks

	debounce      *time.Timer
	debounceDelay time.Duration
	// dirty 标记写入在途期间又发生的修改，在途写入完成后补一轮防抖
	dirty       bool
	unsubscribe func()
	lastActive  time.Time
	closed      bool

	startOnce sync.Once
}

// NewSession 创建会话
// st 为 nil 时会话以离线模式运行，不订阅也不写入
func NewSession(userID string, st store.ProfileStore, hooks Hooks, debounceDelay time.Duration) *Session {
	if debounceDelay <= 0 {
		debounceDelay = DebounceDelay
	}

	s := &Session{
		userID:        userID,
		origin:        uuid.New().String(),
		state:         StateAuthenticating,
		store:         st,
		hooks:         hooks,
		debounceDelay: debounceDelay,
		lastActive:    time.Now(),
	}

	s.queue = notify.NewQueue(notify.DefaultTTL)
	s.queue.SetSink(func(n notify.Notification) {
		if s.hooks.OnNotification != nil {
			s.hooks.OnNotification(s.userID, n)
		}
	})

	return s
}

// Start 加载档案并进入就绪状态
// 只执行一次；并发调用会阻塞到首次启动完成，保证返回后引擎可用。
// 远端不可用时降级为离线模式，档案只存在于会话生命周期内
func (s *Session) Start(ctx context.Context) {
	s.startOnce.Do(func() { s.start(ctx) })
}

func (s *Session) start(ctx context.Context) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.state = StateLoading

	if s.store == nil {
		s.bootstrapOffline()
		return
	}

	fields, exists, err := s.store.Load(ctx, s.userID)
	if err != nil {
		log.Printf("加载档案失败，会话 %s 降级为离线模式: %v", s.userID, err)
		s.bootstrapOffline()
		return
	}

	var profile *models.PlayerProfile
	if exists {
		profile = models.ProfileFromDocument(fields)
	} else {
		// 文档不存在，引导全新档案并立即持久化
		profile = models.NewPlayerProfile()
		if err := s.store.Save(ctx, s.userID, s.origin, profile.Document()); err != nil {
			log.Printf("引导档案写入失败: %v", err)
		}
	}

	s.engine = progression.NewEngine(profile, s.queue, s.scheduleWrite)
	s.engine.CheckAndRolloverDay(time.Now())

	updates, cancel, err := s.store.Subscribe(ctx, s.userID, s.origin)
	if err != nil {
		// 订阅失败只影响远端推送，档案仍然可用
		log.Printf("订阅档案更新失败: %v", err)
	} else {
		s.unsubscribe = cancel
		go s.listen(updates)
	}

	s.state = StateReady
}

// bootstrapOffline 离线模式引导（调用方需持有锁）
func (s *Session) bootstrapOffline() {
	profile := models.NewPlayerProfile()
	s.engine = progression.NewEngine(profile, s.queue, nil)
	s.state = StateOffline
}

// State 返回会话状态
func (s *Session) State() State {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.state
}

// Profile 返回档案快照
func (s *Session) Profile() models.PlayerProfile {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.touch()
	s.engine.CheckAndRolloverDay(time.Now())
	return s.snapshot()
}

// Notify 向会话推送一条系统通知
func (s *Session) Notify(message string) {
	s.mutex.Lock()
	s.touch()
	s.mutex.Unlock()
	s.queue.Push(message)
}

// Notifications 返回当前存活通知
func (s *Session) Notifications() []notify.Notification {
	s.mutex.Lock()
	s.touch()
	s.mutex.Unlock()
	return s.queue.List()
}

// CompleteQuest 完成任务
func (s *Session) CompleteQuest(questID string) (models.PlayerProfile, bool) {
	snapshot, ok := s.withEngine(func(e *progression.Engine) bool {
		return e.CompleteQuest(questID)
	})
	s.pushProfile(snapshot)
	return snapshot, ok
}

// ClearDungeon 通关地下城
func (s *Session) ClearDungeon(dungeonID string) (models.PlayerProfile, bool) {
	snapshot, ok := s.withEngine(func(e *progression.Engine) bool {
		return e.ClearDungeon(dungeonID)
	})
	s.pushProfile(snapshot)
	return snapshot, ok
}

// AllocatePoint 分配技能点数
func (s *Session) AllocatePoint(statName models.StatKey) (models.PlayerProfile, error) {
	var err error
	snapshot, _ := s.withEngine(func(e *progression.Engine) bool {
		err = e.AllocatePoint(statName)
		return err == nil
	})
	s.pushProfile(snapshot)
	return snapshot, err
}

// withEngine 在持锁状态下执行一次档案操作并返回操作后的快照
// 依赖defer解锁，操作内的panic不会把会话锁留在持有状态
func (s *Session) withEngine(op func(*progression.Engine) bool) (models.PlayerProfile, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.touch()
	s.engine.CheckAndRolloverDay(time.Now())
	ok := op(s.engine)
	return s.snapshot(), ok
}

// scheduleWrite 安排一次防抖写入（在档案修改路径上调用，锁已持有）
// 新的修改总是取消并重置定时器，同一档案不会有两个写入定时器并存；
// 写入在途时只做标记，完成后再补一轮防抖，保证同一档案永不并发写入
func (s *Session) scheduleWrite() {
	if s.store == nil || s.closed {
		return
	}

	if s.wstate == writeInFlight {
		s.dirty = true
		return
	}

	if s.debounce != nil {
		s.debounce.Stop()
	}
	s.wstate = writeScheduled
	s.debounce = time.AfterFunc(s.debounceDelay, s.flush)
}

// flush 静默期结束后推送当前快照
func (s *Session) flush() {
	s.mutex.Lock()
	if s.closed || s.store == nil || s.engine == nil || s.wstate != writeScheduled {
		// 非writeScheduled状态下的触发是Stop竞争留下的迟到定时器，
		// 快照在下方持锁时截取，迟到触发没有新内容可写
		s.mutex.Unlock()
		return
	}
	s.wstate = writeInFlight
	doc := s.engine.Profile().Document()
	st, userID, origin := s.store, s.userID, s.origin
	s.mutex.Unlock()

	// 写入在锁外进行，会话关闭不会取消已派发的写入
	err := st.Save(context.Background(), userID, origin, doc)

	s.mutex.Lock()
	if err != nil {
		// 不重试，下一次修改的防抖周期会再次尝试
		log.Printf("写入档案失败: %v", err)
	}
	if s.dirty && !s.closed {
		// 在途期间有新修改，补一轮完整静默期后再写
		s.dirty = false
		s.wstate = writeScheduled
		s.debounce = time.AfterFunc(s.debounceDelay, s.flush)
	} else {
		s.dirty = false
		s.wstate = writeIdle
	}
	s.mutex.Unlock()
}

// listen 接收远端推送的档案快照
func (s *Session) listen(updates <-chan map[string]string) {
	for doc := range updates {
		s.applyRemoteSnapshot(doc)
	}
}

// applyRemoteSnapshot 应用远端快照
// 快照整体覆盖内存档案；本地写入排队或进行中时跳过，
// 其余情况接受后写者胜
func (s *Session) applyRemoteSnapshot(doc map[string]string) {
	s.mutex.Lock()
	if s.closed {
		s.mutex.Unlock()
		return
	}
	if s.wstate != writeIdle {
		log.Printf("本地写入未完成，跳过远端快照 (用户 %s)", s.userID)
		s.mutex.Unlock()
		return
	}

	profile := models.ProfileFromDocument(doc)
	s.engine.Rebind(profile)
	s.engine.CheckAndRolloverDay(time.Now())
	snapshot := s.snapshot()
	s.mutex.Unlock()

	s.pushProfile(snapshot)
}

// Close 结束会话
// 取消订阅和待触发的防抖定时器；静默期内未写出的修改随会话丢弃
func (s *Session) Close() {
	s.mutex.Lock()
	if s.closed {
		s.mutex.Unlock()
		return
	}
	s.closed = true
	if s.debounce != nil {
		s.debounce.Stop()
	}
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.mutex.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	s.queue.Close()

	log.Printf("会话已关闭: %s", s.userID)
}

// snapshot 深拷贝当前档案（调用方需持有锁）
func (s *Session) snapshot() models.PlayerProfile {
	p := *s.engine.Profile()

	stats := make(map[models.StatKey]int, len(p.Stats))
	for k, v := range p.Stats {
		stats[k] = v
	}
	p.Stats = stats

	quests := make([]models.Quest, len(p.DailyQuests))
	copy(quests, p.DailyQuests)
	p.DailyQuests = quests

	dungeons := make([]models.Dungeon, len(p.Dungeons))
	copy(dungeons, p.Dungeons)
	p.Dungeons = dungeons

	return p
}

// pushProfile 推送档案快照给前端
func (s *Session) pushProfile(snapshot models.PlayerProfile) {
	if s.hooks.OnProfile != nil {
		s.hooks.OnProfile(s.userID, snapshot)
	}
}

// touch 更新活跃时间（调用方需持有锁）
func (s *Session) touch() {
	s.lastActive = time.Now()
}

// ShouldCleanup 检查会话是否可以被清理
func (s *Session) ShouldCleanup(idleTTL time.Duration) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return time.Since(s.lastActive) > idleTTL
}
