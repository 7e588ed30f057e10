package sigchan

// Chan 非阻塞的信号 channel：只通知事件发生，不传数据。
// 重复 Emit 在缓冲满时合并成一次，适合「触发重连」这类幂等信号。
type Chan struct {
	c chan struct{}
}

// New 创建信号 channel，bufferSize 为可积压的信号数
func New(bufferSize int) *Chan {
	if bufferSize < 1 {
		bufferSize = 1
	}
	return &Chan{c: make(chan struct{}, bufferSize)}
}

// Emit 发送信号，缓冲满时直接丢弃（信号语义下等价于合并）
func (c *Chan) Emit() {
	select {
	case c.c <- struct{}{}:
	default:
	}
}

// C 返回只读 channel，用于 select
func (c *Chan) C() <-chan struct{} {
	return c.c
}
