// store.go

package store

import "context"

// ProfileStore 档案文档存储
// 每个用户一份文档；Save使用合并语义，快照中未出现的远端顶层字段保持不变
type ProfileStore interface {
	// Load 读取档案文档，第二个返回值表示文档是否存在
	Load(ctx context.Context, userID string) (map[string]string, bool, error)

	// Save 合并写入档案快照并向其他会话广播
	// origin 标识写入来源，订阅方据此过滤自己发出的更新
	Save(ctx context.Context, userID, origin string, doc map[string]string) error

	// Subscribe 订阅远端推送的档案快照
	// 返回的取消函数负责释放订阅；通道在取消后关闭
	Subscribe(ctx context.Context, userID, origin string) (<-chan map[string]string, func(), error)
}
