package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPlayerProfileDefaults(t *testing.T) {
	p := NewPlayerProfile()

	assert.Equal(t, 1, p.Level)
	assert.Equal(t, 0, p.XP)
	assert.Equal(t, 100, p.XPToNextLevel)
	assert.Equal(t, 0, p.AvailablePoints)
	require.Len(t, p.Stats, 6)
	for _, key := range AllStatKeys {
		assert.Equal(t, 10, p.Stats[key], "属性 %s 初始值应为10", key)
	}
	assert.NotEmpty(t, p.DailyQuests)
	assert.Len(t, p.Dungeons, 5)
	assert.NotEmpty(t, p.LastLoginDate)
}

func TestProfileFromDocumentEmpty(t *testing.T) {
	p := ProfileFromDocument(map[string]string{})

	assert.Equal(t, 1, p.Level)
	assert.Equal(t, 0, p.XP)
	assert.Equal(t, 100, p.XPToNextLevel)
	for _, key := range AllStatKeys {
		assert.Equal(t, 10, p.Stats[key])
	}
	assert.Empty(t, p.DailyQuests)
	assert.Empty(t, p.Dungeons)
	assert.Empty(t, p.LastLoginDate)
}

func TestProfileFromDocumentMissingStats(t *testing.T) {
	// 文档完全缺失stats字段时，六项属性全部取默认值而不是失败
	p := ProfileFromDocument(map[string]string{
		"level": "3",
		"xp":    "42",
	})

	assert.Equal(t, 3, p.Level)
	assert.Equal(t, 42, p.XP)
	require.Len(t, p.Stats, 6)
	for _, key := range AllStatKeys {
		assert.Equal(t, 10, p.Stats[key])
	}
}

func TestProfileFromDocumentPartialStats(t *testing.T) {
	p := ProfileFromDocument(map[string]string{
		"stats": `{"focus": 15, "health": 12}`,
	})

	assert.Equal(t, 15, p.Stats[StatFocus])
	assert.Equal(t, 12, p.Stats[StatHealth])
	// 未出现的属性保持默认值
	assert.Equal(t, 10, p.Stats[StatEnergy])
	assert.Equal(t, 10, p.Stats[StatMentalResilience])
}

func TestProfileFromDocumentCorruptFields(t *testing.T) {
	// 单个字段损坏不影响其余字段
	p := ProfileFromDocument(map[string]string{
		"level":       "5",
		"xp":          "不是数字",
		"stats":       "{broken json",
		"dailyQuests": "[1,2,",
		"dungeons":    "null",
	})

	assert.Equal(t, 5, p.Level)
	assert.Equal(t, 0, p.XP)
	for _, key := range AllStatKeys {
		assert.Equal(t, 10, p.Stats[key])
	}
	assert.Empty(t, p.DailyQuests)
	assert.Empty(t, p.Dungeons)
}

func TestDocumentHydrationPreservesState(t *testing.T) {
	p := NewPlayerProfile()
	p.Level = 4
	p.XP = 77
	p.XPToNextLevel = 337
	p.AvailablePoints = 2
	p.Stats[StatCreativity] = 13
	p.DailyQuests[0].Status = QuestCompleted
	p.Dungeons[1].Status = DungeonCleared

	restored := ProfileFromDocument(p.Document())

	assert.Equal(t, 4, restored.Level)
	assert.Equal(t, 77, restored.XP)
	assert.Equal(t, 337, restored.XPToNextLevel)
	assert.Equal(t, 2, restored.AvailablePoints)
	assert.Equal(t, 13, restored.Stats[StatCreativity])
	require.Equal(t, len(p.DailyQuests), len(restored.DailyQuests))
	assert.Equal(t, QuestCompleted, restored.DailyQuests[0].Status)
	assert.Equal(t, DungeonCleared, restored.Dungeons[1].Status)
	assert.Equal(t, p.LastLoginDate, restored.LastLoginDate)
}
