package syncgroup

import "sync"

// SyncGroup sync.WaitGroup 的包装：Add 收集函数，Run 统一启动，
// 自动配对 Add/Done，避免漏 Done 导致的永久阻塞。
type SyncGroup struct {
	wg sync.WaitGroup

	mu      sync.Mutex
	pending []func()
}

// NewSyncGroup 创建新的 SyncGroup
func NewSyncGroup() *SyncGroup {
	return &SyncGroup{}
}

// Add 收集一个待启动的函数（在 Run 之前调用）
func (g *SyncGroup) Add(fn func()) {
	if fn == nil {
		return
	}
	g.mu.Lock()
	g.pending = append(g.pending, fn)
	g.mu.Unlock()
}

// Run 启动所有已收集的函数并清空收集列表
func (g *SyncGroup) Run() {
	g.mu.Lock()
	fns := g.pending
	g.pending = nil
	g.mu.Unlock()

	for _, fn := range fns {
		g.wg.Add(1)
		go func(fn func()) {
			defer g.wg.Done()
			fn()
		}(fn)
	}
}

// WaitAndClear 等待所有已启动的 goroutine 退出
// 之后可以重新 Add/Run（连接重建时复用同一个 group）。
func (g *SyncGroup) WaitAndClear() {
	g.wg.Wait()
}
