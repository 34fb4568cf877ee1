package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lifequest/LifeQuest-Server/internal/models"
	"github.com/lifequest/LifeQuest-Server/internal/notify"
)

// fakeStore 内存档案存储，记录写入次数和在途写入数供防抖断言
type fakeStore struct {
	mu          sync.Mutex
	docs        map[string]map[string]string
	saveCount   int
	lastDoc     map[string]string
	subs        []chan map[string]string
	failSave    bool
	saveDelay   time.Duration
	inflight    int
	maxInflight int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		docs: make(map[string]map[string]string),
	}
}

func (f *fakeStore) Load(ctx context.Context, userID string) (map[string]string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, ok := f.docs[userID]
	if !ok {
		return nil, false, nil
	}
	copied := make(map[string]string, len(doc))
	for k, v := range doc {
		copied[k] = v
	}
	return copied, true, nil
}

func (f *fakeStore) Save(ctx context.Context, userID, origin string, doc map[string]string) error {
	f.mu.Lock()
	if f.failSave {
		f.mu.Unlock()
		return fmt.Errorf("写入失败")
	}
	f.inflight++
	if f.inflight > f.maxInflight {
		f.maxInflight = f.inflight
	}
	delay := f.saveDelay
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.inflight--
	f.saveCount++
	merged := f.docs[userID]
	if merged == nil {
		merged = make(map[string]string)
		f.docs[userID] = merged
	}
	for k, v := range doc {
		merged[k] = v
	}
	f.lastDoc = doc
	return nil
}

func (f *fakeStore) Subscribe(ctx context.Context, userID, origin string) (<-chan map[string]string, func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	ch := make(chan map[string]string, 4)
	f.subs = append(f.subs, ch)

	var once sync.Once
	cancel := func() {
		once.Do(func() { close(ch) })
	}
	return ch, cancel, nil
}

// push 模拟一条远端发出的档案更新
func (f *fakeStore) push(doc map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.subs {
		ch <- doc
	}
}

func (f *fakeStore) saves() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saveCount
}

func (f *fakeStore) savedDoc() map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastDoc
}

func (f *fakeStore) maxConcurrentSaves() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxInflight
}

func newTestSession(t *testing.T, st *fakeStore, debounce time.Duration) *Session {
	t.Helper()
	s := NewSession("user-test", st, Hooks{}, debounce)
	s.Start(context.Background())
	t.Cleanup(s.Close)
	return s
}

func TestStartBootstrapsNewProfile(t *testing.T) {
	st := newFakeStore()
	s := newTestSession(t, st, 50*time.Millisecond)

	assert.Equal(t, StateReady, s.State())
	// 文档不存在时引导全新档案并立即持久化
	assert.Equal(t, 1, st.saves())

	p := s.Profile()
	assert.Equal(t, 1, p.Level)
	assert.Equal(t, 100, p.XPToNextLevel)
	assert.NotEmpty(t, p.DailyQuests)
}

func TestStartHydratesExistingDocument(t *testing.T) {
	st := newFakeStore()

	stored := models.NewPlayerProfile()
	stored.Level = 7
	stored.XP = 33
	doc := stored.Document()
	st.docs["user-test"] = doc

	s := newTestSession(t, st, 50*time.Millisecond)

	assert.Equal(t, StateReady, s.State())
	p := s.Profile()
	assert.Equal(t, 7, p.Level)
	assert.Equal(t, 33, p.XP)
	// 加载现有文档不触发写入
	assert.Equal(t, 0, st.saves())
}

func TestDebounceCoalescing(t *testing.T) {
	st := newFakeStore()
	s := newTestSession(t, st, 60*time.Millisecond)
	baseline := st.saves()

	// 静默期内的连续修改合并为一次写入
	quests := s.Profile().DailyQuests
	for _, q := range quests {
		s.CompleteQuest(q.ID)
	}

	require.Eventually(t, func() bool {
		return st.saves() == baseline+1
	}, time.Second, 10*time.Millisecond, "N次修改应合并为1次写入")

	// 合并写入反映最终状态
	var saved []models.Quest
	require.NoError(t, json.Unmarshal([]byte(st.savedDoc()["dailyQuests"]), &saved))
	require.Len(t, saved, len(quests))
	for _, q := range saved {
		assert.Equal(t, models.QuestCompleted, q.Status)
	}

	// 没有后续修改时不再产生写入
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, baseline+1, st.saves())
}

func TestDebounceRescheduleOnEachMutation(t *testing.T) {
	st := newFakeStore()
	s := newTestSession(t, st, 80*time.Millisecond)
	baseline := st.saves()

	quests := s.Profile().DailyQuests
	require.GreaterOrEqual(t, len(quests), 2)

	// 每次修改重置静默期，期间不应有写入发出
	s.CompleteQuest(quests[0].ID)
	time.Sleep(50 * time.Millisecond)
	s.CompleteQuest(quests[1].ID)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, baseline, st.saves(), "静默期被重置时写入不应发出")

	require.Eventually(t, func() bool {
		return st.saves() == baseline+1
	}, time.Second, 10*time.Millisecond)
}

func TestCloseDropsPendingWrite(t *testing.T) {
	st := newFakeStore()
	s := NewSession("user-test", st, Hooks{}, 80*time.Millisecond)
	s.Start(context.Background())
	baseline := st.saves()

	quests := s.Profile().DailyQuests
	s.CompleteQuest(quests[0].ID)
	s.Close()

	// 关闭不做最终冲刷，静默期内的修改随会话丢弃
	time.Sleep(250 * time.Millisecond)
	assert.Equal(t, baseline, st.saves())
}

func TestOfflineDegradedMode(t *testing.T) {
	s := NewSession("user-offline", nil, Hooks{}, 0)
	s.Start(context.Background())
	t.Cleanup(s.Close)

	assert.Equal(t, StateOffline, s.State())

	// 离线模式下核心进度逻辑照常工作
	p := s.Profile()
	require.NotEmpty(t, p.DailyQuests)
	after, ok := s.CompleteQuest(p.DailyQuests[0].ID)
	require.True(t, ok)
	assert.Positive(t, after.XP)
}

func TestWriteFailureIsNonFatal(t *testing.T) {
	st := newFakeStore()
	s := newTestSession(t, st, 40*time.Millisecond)

	st.mu.Lock()
	st.failSave = true
	st.mu.Unlock()

	quests := s.Profile().DailyQuests
	_, ok := s.CompleteQuest(quests[0].ID)
	require.True(t, ok)

	// 写入失败只记录日志，档案保持可用
	time.Sleep(120 * time.Millisecond)
	assert.Equal(t, StateReady, s.State())
	assert.Equal(t, models.QuestCompleted, s.Profile().DailyQuests[0].Status)
}

func TestRemoteSnapshotOverwritesProfile(t *testing.T) {
	st := newFakeStore()
	s := newTestSession(t, st, 50*time.Millisecond)

	// 等待引导写入完成，避免本地写入在途导致快照被跳过
	require.Eventually(t, func() bool {
		return st.saves() == 1
	}, time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)

	remote := models.NewPlayerProfile()
	remote.Level = 9
	remote.AvailablePoints = 6
	st.push(remote.Document())

	require.Eventually(t, func() bool {
		return s.Profile().Level == 9
	}, time.Second, 10*time.Millisecond, "远端快照应整体覆盖内存档案")
	assert.Equal(t, 6, s.Profile().AvailablePoints)
}

func TestRemoteSnapshotSkippedWhileWritePending(t *testing.T) {
	st := newFakeStore()
	s := newTestSession(t, st, 300*time.Millisecond)

	quests := s.Profile().DailyQuests
	s.CompleteQuest(quests[0].ID)

	// 本地写入排队期间送达的远端快照被跳过
	remote := models.NewPlayerProfile()
	remote.Level = 9
	st.push(remote.Document())

	time.Sleep(100 * time.Millisecond)
	assert.NotEqual(t, 9, s.Profile().Level)
}

func TestHooksForwardEvents(t *testing.T) {
	st := newFakeStore()

	var mu sync.Mutex
	var notifications []notify.Notification
	var profiles []models.PlayerProfile

	hooks := Hooks{
		OnNotification: func(userID string, n notify.Notification) {
			mu.Lock()
			notifications = append(notifications, n)
			mu.Unlock()
		},
		OnProfile: func(userID string, p models.PlayerProfile) {
			mu.Lock()
			profiles = append(profiles, p)
			mu.Unlock()
		},
	}

	s := NewSession("user-test", st, hooks, 50*time.Millisecond)
	s.Start(context.Background())
	t.Cleanup(s.Close)

	quests := s.Profile().DailyQuests
	s.CompleteQuest(quests[0].ID)

	mu.Lock()
	defer mu.Unlock()
	assert.NotEmpty(t, notifications, "奖励通知应转发给推送回调")
	assert.NotEmpty(t, profiles, "修改后应推送档案快照")
}

func TestNoConcurrentWritesForOneProfile(t *testing.T) {
	st := newFakeStore()
	st.saveDelay = 250 * time.Millisecond
	s := newTestSession(t, st, 50*time.Millisecond)
	baseline := st.saves()

	quests := s.Profile().DailyQuests
	require.GreaterOrEqual(t, len(quests), 2)

	// 第一笔写入在途期间到达的修改不得派发并发写入，
	// 而是在前一笔完成后补一轮防抖
	s.CompleteQuest(quests[0].ID)
	time.Sleep(80 * time.Millisecond)
	s.CompleteQuest(quests[1].ID)

	require.Eventually(t, func() bool {
		return st.saves() == baseline+2
	}, 3*time.Second, 20*time.Millisecond, "在途期间的修改应追加一次写入")
	assert.Equal(t, 1, st.maxConcurrentSaves(), "同一档案不允许并发在途写入")

	// 补写的快照包含在途期间发生的修改
	var saved []models.Quest
	require.NoError(t, json.Unmarshal([]byte(st.savedDoc()["dailyQuests"]), &saved))
	completed := 0
	for _, q := range saved {
		if q.Status == models.QuestCompleted {
			completed++
		}
	}
	assert.Equal(t, 2, completed)
}

func TestConcurrentFirstRequests(t *testing.T) {
	st := newFakeStore()
	m := NewManager(st, Hooks{})
	t.Cleanup(m.Stop)
	m.Start()

	// 同一新用户的首批请求并发到达（如WebSocket连接与首个HTTP请求），
	// 任何一方拿到会话时引擎都必须已就绪
	for i := 0; i < 100; i++ {
		userID := fmt.Sprintf("user-%03d", i)
		var wg sync.WaitGroup
		sessions := make([]*Session, 2)
		for j := range sessions {
			wg.Add(1)
			go func(j int) {
				defer wg.Done()
				s := m.Get(context.Background(), userID)
				p := s.Profile()
				assert.Equal(t, 1, p.Level)
				sessions[j] = s
			}(j)
		}
		wg.Wait()
		assert.Same(t, sessions[0], sessions[1])
	}
}

func TestManagerReusesSession(t *testing.T) {
	m := NewManager(nil, Hooks{})
	t.Cleanup(m.Stop)
	m.Start()

	ctx := context.Background()
	first := m.Get(ctx, "user-a")
	second := m.Get(ctx, "user-a")
	other := m.Get(ctx, "user-b")

	assert.Same(t, first, second)
	assert.NotSame(t, first, other)
}

func TestManagerRelease(t *testing.T) {
	m := NewManager(nil, Hooks{})
	t.Cleanup(m.Stop)
	m.Start()

	ctx := context.Background()
	first := m.Get(ctx, "user-a")
	m.Release("user-a")

	replacement := m.Get(ctx, "user-a")
	assert.NotSame(t, first, replacement, "释放后重新获取应创建新会话")
}
