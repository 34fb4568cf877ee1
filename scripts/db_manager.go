// db_manager.go

package main

import (
	"context"
	"crypto/sha256"
	"flag"
	"fmt"
	"log"

	"github.com/lifequest/LifeQuest-Server/config"
	"github.com/lifequest/LifeQuest-Server/internal/models"
	"github.com/lifequest/LifeQuest-Server/internal/store"
	"github.com/lifequest/LifeQuest-Server/pkg/db"
)

func main() {
	// 解析命令行参数
	configPath := flag.String("config", "config/config.yaml", "配置文件路径")
	action := flag.String("action", "help", "操作类型: reset, init, seed, help")
	flag.Parse()

	// 显示帮助信息
	if *action == "help" {
		showHelp()
		return
	}

	// 加载配置
	if err := config.LoadConfig(*configPath); err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	// 初始化数据库连接
	if err := db.InitPostgres(); err != nil {
		log.Fatalf("初始化PostgreSQL失败: %v", err)
	}
	defer db.Close()

	// 执行操作
	switch *action {
	case "reset":
		resetDatabase()
	case "init":
		initDatabase()
	case "seed":
		seedDemoData()
	default:
		log.Fatalf("未知操作: %s", *action)
	}
}

// showHelp 显示帮助信息
func showHelp() {
	log.Println("LifeQuest 数据库管理工具")
	log.Println("")
	log.Println("用法:")
	log.Println("  go run scripts/db_manager.go -action=<操作> [-config=<配置文件>]")
	log.Println("")
	log.Println("操作:")
	log.Println("  reset  - 重置数据库（删除所有表和数据）")
	log.Println("  init   - 初始化数据库（创建表结构）")
	log.Println("  seed   - 创建演示账号和演示档案")
	log.Println("  help   - 显示此帮助信息")
	log.Println("")
	log.Println("示例:")
	log.Println("  go run scripts/db_manager.go -action=reset && go run scripts/db_manager.go -action=init")
}

// resetDatabase 重置数据库
func resetDatabase() {
	log.Println("⚠️  正在重置数据库...")
	log.Println("⚠️  这将删除所有表和数据！")

	resetSQL := `
DROP TABLE IF EXISTS accounts CASCADE;
`

	_, err := db.DB.Exec(resetSQL)
	if err != nil {
		log.Fatalf("重置数据库失败: %v", err)
	}

	log.Println("✅ 数据库重置完成")
}

// initDatabase 初始化数据库
func initDatabase() {
	log.Println("🚀 正在初始化数据库...")

	if err := db.InitAllTables(); err != nil {
		log.Fatalf("初始化数据库表失败: %v", err)
	}

	log.Println("✅ 数据库初始化完成")
	log.Println("")
	log.Println("📋 已创建的表:")
	log.Println("  - accounts (账号表)")
	log.Println("")
	log.Println("💡 提示: 使用以下命令创建演示数据:")
	log.Println("  go run scripts/db_manager.go -action=seed")
}

// seedDemoData 创建演示账号和演示档案
// 账号写入PostgreSQL，档案文档写入Redis（Redis不可用时跳过）
func seedDemoData() {
	log.Println("正在创建演示账号...")

	demoAccounts := []struct {
		username string
		password string
		email    string
	}{
		{username: "demo1", password: "password123", email: "demo1@lifequest.dev"},
		{username: "demo2", password: "password123", email: "demo2@lifequest.dev"},
	}

	var userIDs []string
	for _, account := range demoAccounts {
		var count int
		err := db.DB.QueryRow("SELECT COUNT(*) FROM accounts WHERE username = $1", account.username).Scan(&count)
		if err != nil {
			log.Fatalf("查询账号失败: %v", err)
		}
		if count > 0 {
			log.Printf("账号 %s 已存在，跳过", account.username)
			continue
		}

		var accountID int64
		err = db.DB.QueryRow(
			"INSERT INTO accounts (username, password, email, created_at, updated_at) VALUES ($1, $2, $3, NOW(), NOW()) RETURNING id",
			account.username, hashPassword(account.password), account.email,
		).Scan(&accountID)
		if err != nil {
			log.Fatalf("创建账号失败: %v", err)
		}

		userIDs = append(userIDs, fmt.Sprintf("user-%d", accountID))
		log.Printf("✓ 创建演示账号: %s", account.username)
	}

	// 为演示账号写入初始档案文档
	if err := db.InitRedis(); err != nil {
		log.Printf("Redis不可用，跳过演示档案写入: %v", err)
		return
	}
	defer db.CloseRedis()

	profileStore := store.NewRedisProfileStore(db.RedisClient)
	ctx := context.Background()
	for _, userID := range userIDs {
		profile := models.NewPlayerProfile()
		if err := profileStore.Save(ctx, userID, "seed", profile.Document()); err != nil {
			log.Fatalf("写入演示档案失败: %v", err)
		}
		log.Printf("✓ 写入演示档案: %s", userID)
	}

	log.Println("🎉 演示数据创建完成！")
}

// hashPassword 计算密码哈希，与网关注册逻辑保持一致
func hashPassword(password string) string {
	hash := sha256.Sum256([]byte(password))
	return fmt.Sprintf("%x", hash)
}
