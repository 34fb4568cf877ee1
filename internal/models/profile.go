// profile.go

package models

import (
	"encoding/json"
	"strconv"
	"time"
)

// DateFormat 日期格式（按天粒度，本地时区）
const DateFormat = "2006-01-02"

// 档案初始值
const (
	InitialLevel       = 1
	InitialXPThreshold = 100
	InitialStatValue   = 10
)

// StatKey 属性键
type StatKey string

const (
	// StatFocus 专注
	StatFocus StatKey = "focus"
	// StatEnergy 活力
	StatEnergy StatKey = "energy"
	// StatCreativity 创造力
	StatCreativity StatKey = "creativity"
	// StatHealth 健康
	StatHealth StatKey = "health"
	// StatDexterity 敏捷
	StatDexterity StatKey = "dexterity"
	// StatMentalResilience 心理韧性
	StatMentalResilience StatKey = "mentalResilience"
)

// AllStatKeys 全部六项属性键
var AllStatKeys = []StatKey{
	StatFocus,
	StatEnergy,
	StatCreativity,
	StatHealth,
	StatDexterity,
	StatMentalResilience,
}

// IsValidStat 检查属性键是否合法
func IsValidStat(key StatKey) bool {
	for _, k := range AllStatKeys {
		if k == key {
			return true
		}
	}
	return false
}

// DefaultStats 返回全部属性的初始值
func DefaultStats() map[StatKey]int {
	stats := make(map[StatKey]int, len(AllStatKeys))
	for _, k := range AllStatKeys {
		stats[k] = InitialStatValue
	}
	return stats
}

// QuestStatus 任务状态
type QuestStatus string

const (
	// QuestPending 待完成
	QuestPending QuestStatus = "pending"
	// QuestCompleted 已完成
	QuestCompleted QuestStatus = "completed"
)

// DungeonStatus 地下城状态
type DungeonStatus string

const (
	// DungeonAvailable 可挑战
	DungeonAvailable DungeonStatus = "available"
	// DungeonCleared 已通关
	DungeonCleared DungeonStatus = "cleared"
)

// Quest 每日任务
type Quest struct {
	ID          string      `json:"id"`
	Description string      `json:"description"`
	Type        string      `json:"type"`
	Status      QuestStatus `json:"status"`
	RewardXP    int         `json:"rewardXP"`
	RewardStat  StatKey     `json:"rewardStat"`
}

// Dungeon 每日地下城
type Dungeon struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Description  string        `json:"description"`
	Difficulty   string        `json:"difficulty"`
	RewardXP     int           `json:"rewardXP"`
	RewardPoints int           `json:"rewardPoints"`
	Status       DungeonStatus `json:"status"`
}

// PlayerProfile 玩家档案（根聚合，每个用户一份）
type PlayerProfile struct {
	Level           int             `json:"level"`
	XP              int             `json:"xp"`
	XPToNextLevel   int             `json:"xpToNextLevel"`
	Stats           map[StatKey]int `json:"stats"`
	AvailablePoints int             `json:"availablePoints"`
	DailyQuests     []Quest         `json:"dailyQuests"`
	Dungeons        []Dungeon       `json:"dungeons"`
	LastLoginDate   string          `json:"lastLoginDate"`
}

// NewPlayerProfile 创建全新档案（引导路径）
func NewPlayerProfile() *PlayerProfile {
	return &PlayerProfile{
		Level:           InitialLevel,
		XP:              0,
		XPToNextLevel:   InitialXPThreshold,
		Stats:           DefaultStats(),
		AvailablePoints: 0,
		DailyQuests:     GenerateDailyQuests(),
		Dungeons:        GenerateDailyDungeons(),
		LastLoginDate:   time.Now().Format(DateFormat),
	}
}

// 远端文档字段名
const (
	fieldLevel           = "level"
	fieldXP              = "xp"
	fieldXPToNextLevel   = "xpToNextLevel"
	fieldStats           = "stats"
	fieldAvailablePoints = "availablePoints"
	fieldDailyQuests     = "dailyQuests"
	fieldDungeons        = "dungeons"
	fieldLastLoginDate   = "lastLoginDate"
)

// Document 将档案渲染为远端文档字段表
// 复合字段以JSON编码，顶层字段逐项写入以保持合并语义
func (p *PlayerProfile) Document() map[string]string {
	statsJSON, _ := json.Marshal(p.Stats)
	questsJSON, _ := json.Marshal(p.DailyQuests)
	dungeonsJSON, _ := json.Marshal(p.Dungeons)

	return map[string]string{
		fieldLevel:           strconv.Itoa(p.Level),
		fieldXP:              strconv.Itoa(p.XP),
		fieldXPToNextLevel:   strconv.Itoa(p.XPToNextLevel),
		fieldStats:           string(statsJSON),
		fieldAvailablePoints: strconv.Itoa(p.AvailablePoints),
		fieldDailyQuests:     string(questsJSON),
		fieldDungeons:        string(dungeonsJSON),
		fieldLastLoginDate:   p.LastLoginDate,
	}
}

// ProfileFromDocument 从远端文档字段表还原档案
// 每个字段独立取默认值，单个字段缺失或损坏不影响其余字段
func ProfileFromDocument(fields map[string]string) *PlayerProfile {
	p := &PlayerProfile{
		Level:           intField(fields, fieldLevel, InitialLevel),
		XP:              intField(fields, fieldXP, 0),
		XPToNextLevel:   intField(fields, fieldXPToNextLevel, InitialXPThreshold),
		Stats:           DefaultStats(),
		AvailablePoints: intField(fields, fieldAvailablePoints, 0),
		DailyQuests:     []Quest{},
		Dungeons:        []Dungeon{},
		LastLoginDate:   fields[fieldLastLoginDate],
	}

	if raw, ok := fields[fieldStats]; ok {
		var stored map[StatKey]int
		if err := json.Unmarshal([]byte(raw), &stored); err == nil {
			for _, k := range AllStatKeys {
				if v, ok := stored[k]; ok && v >= 0 {
					p.Stats[k] = v
				}
			}
		}
	}

	if raw, ok := fields[fieldDailyQuests]; ok {
		var quests []Quest
		if err := json.Unmarshal([]byte(raw), &quests); err == nil && quests != nil {
			p.DailyQuests = quests
		}
	}

	if raw, ok := fields[fieldDungeons]; ok {
		var dungeons []Dungeon
		if err := json.Unmarshal([]byte(raw), &dungeons); err == nil && dungeons != nil {
			p.Dungeons = dungeons
		}
	}

	return p
}

// intField 解析整数字段，缺失或非法时使用默认值
func intField(fields map[string]string, name string, def int) int {
	raw, ok := fields[name]
	if !ok {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}
