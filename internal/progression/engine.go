// engine.go

package progression

import (
	"errors"
	"fmt"
	"math"

	"github.com/lifequest/LifeQuest-Server/internal/models"
	"github.com/lifequest/LifeQuest-Server/internal/notify"
)

const (
	// LevelUpPoints 每次升级奖励的技能点数
	LevelUpPoints = 3

	// xpGrowthFactor 升级后经验阈值的增长系数
	xpGrowthFactor = 1.5
)

// ErrNoPointsAvailable 没有可分配的技能点数
var ErrNoPointsAvailable = errors.New("没有可用点数")

// statLabels 属性的展示名称
var statLabels = map[models.StatKey]string{
	models.StatFocus:            "专注",
	models.StatEnergy:           "活力",
	models.StatCreativity:       "创造力",
	models.StatHealth:           "健康",
	models.StatDexterity:        "敏捷",
	models.StatMentalResilience: "心理韧性",
}

// Engine 进度状态机
// 独占修改玩家档案的等级、经验、属性和点数，事件通过通知队列对外可见
type Engine struct {
	profile  *models.PlayerProfile
	queue    *notify.Queue
	onMutate func()
}

// NewEngine 创建进度状态机
// onMutate 在每次成功修改档案后调用，用于驱动防抖写入
func NewEngine(profile *models.PlayerProfile, queue *notify.Queue, onMutate func()) *Engine {
	return &Engine{
		profile:  profile,
		queue:    queue,
		onMutate: onMutate,
	}
}

// Profile 返回当前档案
func (e *Engine) Profile() *models.PlayerProfile {
	return e.profile
}

// Rebind 整体替换档案（远端快照覆盖时使用）
func (e *Engine) Rebind(profile *models.PlayerProfile) {
	e.profile = profile
}

// ApplyReward 应用一次奖励
// 始终发出奖励通知；statName非空时对应属性+1；经验溢出时触发升级，
// 溢出经验保留为新经验值。每次调用至多处理一次升级。
func (e *Engine) ApplyReward(xpAmount int, statName models.StatKey, message string) {
	e.queue.Push(fmt.Sprintf("%s +%d XP", message, xpAmount))

	if statName != "" {
		// 非法属性键属于编程错误，立即失败
		if !models.IsValidStat(statName) {
			panic(fmt.Sprintf("非法属性键: %s", statName))
		}
		e.profile.Stats[statName]++
		e.queue.Push(fmt.Sprintf("属性提升：%s +1", statLabels[statName]))
	}

	newXP := e.profile.XP + xpAmount
	if newXP >= e.profile.XPToNextLevel {
		e.profile.Level++
		// 溢出经验保留，不清零
		e.profile.XP = newXP - e.profile.XPToNextLevel
		e.profile.XPToNextLevel = int(math.Floor(float64(e.profile.XPToNextLevel) * xpGrowthFactor))
		e.profile.AvailablePoints += LevelUpPoints
		e.queue.Push(fmt.Sprintf("升级！当前等级 %d，可用点数 %d",
			e.profile.Level, e.profile.AvailablePoints))
	} else {
		e.profile.XP = newXP
	}

	e.mutated()
}

// AllocatePoint 分配一点技能点数到指定属性
func (e *Engine) AllocatePoint(statName models.StatKey) error {
	if e.profile.AvailablePoints <= 0 {
		e.queue.Push("没有可用点数")
		return ErrNoPointsAvailable
	}

	if !models.IsValidStat(statName) {
		panic(fmt.Sprintf("非法属性键: %s", statName))
	}

	e.profile.Stats[statName]++
	e.profile.AvailablePoints--
	e.queue.Push(fmt.Sprintf("属性提升：%s +1，剩余点数 %d",
		statLabels[statName], e.profile.AvailablePoints))

	e.mutated()
	return nil
}

// mutated 通知外部档案已变化
func (e *Engine) mutated() {
	if e.onMutate != nil {
		e.onMutate()
	}
}
