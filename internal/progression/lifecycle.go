// lifecycle.go

package progression

import (
	"fmt"
	"time"

	"github.com/lifequest/LifeQuest-Server/internal/models"
)

// CompleteQuest 完成指定任务
// 只有待完成状态的任务会发放奖励；未找到或已完成时静默跳过（幂等）
func (e *Engine) CompleteQuest(questID string) bool {
	for i := range e.profile.DailyQuests {
		quest := &e.profile.DailyQuests[i]
		if quest.ID != questID {
			continue
		}
		if quest.Status != models.QuestPending {
			return false
		}

		quest.Status = models.QuestCompleted
		e.ApplyReward(quest.RewardXP, quest.RewardStat, "任务完成："+quest.Description)
		return true
	}

	return false
}

// ClearDungeon 通关指定地下城
// 奖励为经验加点数（无属性奖励）；未找到或已通关时发出各自的拒绝通知，
// 与任务路径的静默跳过刻意不同
func (e *Engine) ClearDungeon(dungeonID string) bool {
	for i := range e.profile.Dungeons {
		dungeon := &e.profile.Dungeons[i]
		if dungeon.ID != dungeonID {
			continue
		}
		if dungeon.Status != models.DungeonAvailable {
			e.queue.Push("该地下城今日已通关，无法重复挑战")
			return false
		}

		dungeon.Status = models.DungeonCleared
		e.ApplyReward(dungeon.RewardXP, "", "通关地下城："+dungeon.Name)
		e.profile.AvailablePoints += dungeon.RewardPoints
		e.queue.Push(fmt.Sprintf("获得 %d 点技能点数，当前可用 %d",
			dungeon.RewardPoints, e.profile.AvailablePoints))
		e.mutated()
		return true
	}

	e.queue.Push("地下城不存在")
	return false
}

// CheckAndRolloverDay 检查并执行每日重置
// 日期与上次登录不同，或任一集合为空（首次运行/状态损坏）时，
// 重新生成任务和地下城并更新登录日期
func (e *Engine) CheckAndRolloverDay(now time.Time) bool {
	today := now.Format(models.DateFormat)
	if e.profile.LastLoginDate == today &&
		len(e.profile.DailyQuests) > 0 &&
		len(e.profile.Dungeons) > 0 {
		return false
	}

	e.profile.DailyQuests = models.GenerateDailyQuests()
	e.profile.Dungeons = models.GenerateDailyDungeons()
	e.profile.LastLoginDate = today
	e.queue.Push("新的一天开始了！每日任务与地下城已刷新")

	e.mutated()
	return true
}
