// catalog.go

package models

import (
	"math/rand"

	"github.com/google/uuid"
)

// QuestType 任务类别
type QuestType string

const (
	// QuestWork 工作
	QuestWork QuestType = "work"
	// QuestHealth 健康
	QuestHealth QuestType = "health"
	// QuestWellbeing 身心
	QuestWellbeing QuestType = "wellbeing"
	// QuestSkill 技能
	QuestSkill QuestType = "skill"
)

// QuestTemplate 任务模板
type QuestTemplate struct {
	Description string
	Type        QuestType
	RewardXP    int
	RewardStat  StatKey
}

// 每日任务从固定模板目录中抽取
var questTemplates = []QuestTemplate{
	{Description: "专注编码90分钟，期间不碰社交软件", Type: QuestWork, RewardXP: 30, RewardStat: StatFocus},
	{Description: "给昨天写的代码补一组单元测试", Type: QuestWork, RewardXP: 25, RewardStat: StatFocus},
	{Description: "审查并合并一个积压的Pull Request", Type: QuestWork, RewardXP: 20, RewardStat: StatCreativity},
	{Description: "完成30分钟有氧运动", Type: QuestHealth, RewardXP: 25, RewardStat: StatHealth},
	{Description: "全天喝满八杯水", Type: QuestHealth, RewardXP: 15, RewardStat: StatEnergy},
	{Description: "23点前上床睡觉", Type: QuestHealth, RewardXP: 20, RewardStat: StatEnergy},
	{Description: "步行或骑行代替一次通勤", Type: QuestHealth, RewardXP: 20, RewardStat: StatDexterity},
	{Description: "冥想10分钟", Type: QuestWellbeing, RewardXP: 15, RewardStat: StatMentalResilience},
	{Description: "写下今天的三件感恩小事", Type: QuestWellbeing, RewardXP: 15, RewardStat: StatMentalResilience},
	{Description: "读20页技术书籍", Type: QuestSkill, RewardXP: 25, RewardStat: StatCreativity},
	{Description: "学习一个没用过的标准库包", Type: QuestSkill, RewardXP: 30, RewardStat: StatCreativity},
	{Description: "练习15分钟盲打或快捷键", Type: QuestSkill, RewardXP: 15, RewardStat: StatDexterity},
}

// 每日任务数量范围：5到7个
const (
	questCountMin   = 5
	questCountRange = 3
)

// GenerateDailyQuests 生成当日任务列表
// 均匀洗牌后截取5~7个，全部置为待完成状态
func GenerateDailyQuests() []Quest {
	shuffled := make([]QuestTemplate, len(questTemplates))
	copy(shuffled, questTemplates)
	rand.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	count := questCountMin + rand.Intn(questCountRange)
	quests := make([]Quest, 0, count)
	for _, tpl := range shuffled[:count] {
		quests = append(quests, Quest{
			ID:          uuid.New().String(),
			Description: tpl.Description,
			Type:        string(tpl.Type),
			Status:      QuestPending,
			RewardXP:    tpl.RewardXP,
			RewardStat:  tpl.RewardStat,
		})
	}

	return quests
}

// 地下城目录固定为五座，按难度递增
// 与任务不同，每天提供同样的五座地下城，只重置状态
var dungeonCatalog = []Dungeon{
	{
		ID:           "dungeon-inbox",
		Name:         "收件箱清零窟",
		Description:  "处理完所有未读邮件和消息",
		Difficulty:   "Easy",
		RewardXP:     40,
		RewardPoints: 1,
	},
	{
		ID:           "dungeon-refactor",
		Name:         "重构回廊",
		Description:  "重构一个让你不舒服很久的模块",
		Difficulty:   "Medium",
		RewardXP:     80,
		RewardPoints: 2,
	},
	{
		ID:           "dungeon-bugfix",
		Name:         "陈年Bug巢穴",
		Description:  "修复一个搁置超过一周的Bug",
		Difficulty:   "Hard",
		RewardXP:     150,
		RewardPoints: 3,
	},
	{
		ID:           "dungeon-deepwork",
		Name:         "深度工作圣殿",
		Description:  "完成一次四小时不被打断的深度工作",
		Difficulty:   "Very Hard",
		RewardXP:     250,
		RewardPoints: 4,
	},
	{
		ID:           "dungeon-ship",
		Name:         "交付之塔",
		Description:  "把一个功能从开发推到上线",
		Difficulty:   "Extreme",
		RewardXP:     400,
		RewardPoints: 5,
	},
}

// GenerateDailyDungeons 生成当日地下城列表
// 返回目录的全新副本，状态全部重置为可挑战
func GenerateDailyDungeons() []Dungeon {
	dungeons := make([]Dungeon, len(dungeonCatalog))
	copy(dungeons, dungeonCatalog)
	for i := range dungeons {
		dungeons[i].Status = DungeonAvailable
	}
	return dungeons
}
