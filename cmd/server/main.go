// main.go

package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/lifequest/LifeQuest-Server/config"
	"github.com/lifequest/LifeQuest-Server/internal/gateway"
	"github.com/lifequest/LifeQuest-Server/internal/insight"
	"github.com/lifequest/LifeQuest-Server/internal/store"
	"github.com/lifequest/LifeQuest-Server/pkg/db"
)

func main() {
	// 解析命令行参数
	configPath := flag.String("config", "config/config.yaml", "配置文件路径")
	flag.Parse()

	// 加载配置
	if err := config.LoadConfig(*configPath); err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	// 初始化数据库连接
	if err := db.InitPostgres(); err != nil {
		log.Fatalf("初始化PostgreSQL失败: %v", err)
	}
	defer db.Close()

	// 初始化数据库表
	if err := db.InitAllTables(); err != nil {
		log.Fatalf("初始化数据库表失败: %v", err)
	}

	// 初始化Redis连接
	// Redis不可用时服务器以离线降级模式运行，档案只存在于会话生命周期内
	var profileStore store.ProfileStore
	if err := db.InitRedis(); err != nil {
		log.Printf("初始化Redis失败，降级为离线模式: %v", err)
	} else {
		profileStore = store.NewRedisProfileStore(db.RedisClient)
		defer db.CloseRedis()
	}

	// 初始化生成式文本客户端
	// 未配置密钥时洞察与鼓励语接口返回系统错误，核心进度逻辑不受影响
	var generator *insight.Generator
	aiConfig := config.GlobalConfig.AI
	if g, err := insight.NewGenerator(context.Background(), aiConfig.APIKey, aiConfig.Model); err != nil {
		log.Printf("初始化生成式文本客户端失败: %v", err)
	} else {
		generator = g
	}

	// 创建并启动网关
	gatewayServer := gateway.NewGateway(&config.GlobalConfig, profileStore, generator)
	if err := gatewayServer.Start(); err != nil {
		log.Fatalf("启动网关失败: %v", err)
	}

	log.Println("服务器已启动")

	// 等待中断信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Println("接收到关闭信号，正在关闭服务器...")

	if err := gatewayServer.Stop(); err != nil {
		log.Printf("关闭网关失败: %v", err)
	}

	log.Println("服务器已安全关闭")
}
