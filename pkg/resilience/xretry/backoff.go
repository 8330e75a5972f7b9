package xretry

import (
	"crypto/rand"
	"encoding/binary"
	"math"
	"time"
)

// FixedBackoff 固定等待。
type FixedBackoff time.Duration

func (b FixedBackoff) NextDelay(int) time.Duration {
	if b < 0 {
		return 0
	}
	return time.Duration(b)
}

// NoBackoff 立即重试。
type NoBackoff struct{}

func (NoBackoff) NextDelay(int) time.Duration { return 0 }

// ExponentialBackoff 指数退避：
// delay = min(initial * multiplier^(attempt-1) * (1 ± jitter), max)
type ExponentialBackoff struct {
	initialDelay time.Duration
	maxDelay     time.Duration
	multiplier   float64
	jitter       float64
}

// ExponentialBackoffOption 配置 ExponentialBackoff。
type ExponentialBackoffOption func(*ExponentialBackoff)

// WithInitialDelay 设置首次等待。非正值被忽略。
func WithInitialDelay(d time.Duration) ExponentialBackoffOption {
	return func(b *ExponentialBackoff) {
		if d > 0 {
			b.initialDelay = d
		}
	}
}

// WithMaxDelay 设置等待上限。非正值被忽略。
func WithMaxDelay(d time.Duration) ExponentialBackoffOption {
	return func(b *ExponentialBackoff) {
		if d > 0 {
			b.maxDelay = d
		}
	}
}

// WithMultiplier 设置增长倍数。小于 1 的值被忽略。
func WithMultiplier(m float64) ExponentialBackoffOption {
	return func(b *ExponentialBackoff) {
		if m >= 1 {
			b.multiplier = m
		}
	}
}

// WithJitter 设置抖动比例，截断到 [0, 1]。
func WithJitter(j float64) ExponentialBackoffOption {
	return func(b *ExponentialBackoff) {
		b.jitter = math.Max(0, math.Min(1, j))
	}
}

// NewExponentialBackoff 创建指数退避。
// 默认 initial=50ms、max=2s、multiplier=2、jitter=0.1，
// 适合驱动层的主从切换窗口（通常在秒级内完成）。
func NewExponentialBackoff(opts ...ExponentialBackoffOption) *ExponentialBackoff {
	b := &ExponentialBackoff{
		initialDelay: 50 * time.Millisecond,
		maxDelay:     2 * time.Second,
		multiplier:   2,
		jitter:       0.1,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.maxDelay < b.initialDelay {
		b.maxDelay = b.initialDelay
	}
	return b
}

func (b *ExponentialBackoff) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(b.initialDelay) * math.Pow(b.multiplier, float64(attempt-1))
	if b.jitter > 0 {
		delay *= 1 + (randomFloat64()*2-1)*b.jitter
	}
	// math.Pow 溢出为 +Inf 后与 0 相乘得到 NaN，NaN 的比较恒为 false。
	if math.IsNaN(delay) || delay < 0 || delay >= float64(b.maxDelay) {
		return b.maxDelay
	}
	return time.Duration(delay)
}

var (
	_ BackoffPolicy = FixedBackoff(0)
	_ BackoffPolicy = NoBackoff{}
	_ BackoffPolicy = (*ExponentialBackoff)(nil)
)

// randomFloat64 返回 [0, 1) 的随机数。crypto/rand 失败时返回 0（无抖动）。
func randomFloat64() float64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0
	}
	return float64(binary.LittleEndian.Uint64(buf[:])>>11) / (1 << 53)
}
