// generator.go

package insight

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// defaultModel 默认生成模型
const defaultModel = "gemini-2.0-flash"

// Generator 生成式文本协作方
// 每次调用只尝试一次，失败由调用方呈现单条系统错误
type Generator struct {
	client *genai.Client
	model  string
}

// NewGenerator 创建文本生成器
func NewGenerator(ctx context.Context, apiKey, model string) (*Generator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("未配置生成式文本API密钥")
	}
	if model == "" {
		model = defaultModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("创建生成式文本客户端失败: %w", err)
	}

	return &Generator{
		client: client,
		model:  model,
	}, nil
}

// QuestInsight 生成任务洞察
func (g *Generator) QuestInsight(ctx context.Context, questDescription string) (string, error) {
	prompt := fmt.Sprintf(
		"你是一位RPG游戏里的智慧导师。玩家接到了一个现实生活中的任务：%q。"+
			"用两三句话给出完成这个任务的建议，语气要像游戏NPC，简短有力。",
		questDescription,
	)
	return g.generate(ctx, prompt)
}

// DailyAffirmation 生成每日鼓励语
func (g *Generator) DailyAffirmation(ctx context.Context) (string, error) {
	prompt := "你是一位RPG游戏里的系统旁白。为一位正在把日常生活当作升级打怪的开发者" +
		"生成一句今日鼓励语，不超过30个字，语气热血。"
	return g.generate(ctx, prompt)
}

// generate 执行一次生成调用
func (g *Generator) generate(ctx context.Context, prompt string) (string, error) {
	result, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("生成调用失败: %w", err)
	}

	text := result.Text()
	if text == "" {
		return "", fmt.Errorf("生成结果为空")
	}

	return text, nil
}
