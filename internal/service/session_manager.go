package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrSessionNotFound 会话不存在或已过期
var ErrSessionNotFound = errors.New("catalog session not found")

// SessionFactory 创建新的目录会话
type SessionFactory func() *CatalogSession

type sessionEntry struct {
	session  *CatalogSession
	lastSeen time.Time
}

// SessionManager 按会话ID保存浏览会话，空闲超过 ttl 的会话由 Sweep 清理
type SessionManager struct {
	factory SessionFactory
	ttl     time.Duration
	logger  *zap.Logger
	now     func() time.Time

	mu       sync.RWMutex
	sessions map[string]*sessionEntry
}

// NewSessionManager 创建会话管理器
func NewSessionManager(factory SessionFactory, ttl time.Duration, logger *zap.Logger) *SessionManager {
	return &SessionManager{
		factory:  factory,
		ttl:      ttl,
		logger:   logger,
		now:      time.Now,
		sessions: make(map[string]*sessionEntry),
	}
}

// Open 创建一个新会话并返回其ID
func (m *SessionManager) Open() (string, *CatalogSession) {
	id := uuid.NewString()
	session := m.factory()

	m.mu.Lock()
	m.sessions[id] = &sessionEntry{session: session, lastSeen: m.now()}
	m.mu.Unlock()

	m.logger.Debug("catalog session opened", zap.String("session_id", id))
	return id, session
}

// Get 查找会话并刷新其最近访问时间
func (m *SessionManager) Get(id string) (*CatalogSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	now := m.now()
	if now.Sub(entry.lastSeen) > m.ttl {
		delete(m.sessions, id)
		return nil, ErrSessionNotFound
	}
	entry.lastSeen = now
	return entry.session, nil
}

// Close 移除会话
func (m *SessionManager) Close(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

// Len 当前会话数
func (m *SessionManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sweep 清理空闲超时的会话，返回清理数量
func (m *SessionManager) Sweep() int {
	now := m.now()

	m.mu.Lock()
	removed := 0
	for id, entry := range m.sessions {
		if now.Sub(entry.lastSeen) > m.ttl {
			delete(m.sessions, id)
			removed++
		}
	}
	m.mu.Unlock()

	if removed > 0 {
		m.logger.Info("expired catalog sessions swept", zap.Int("removed", removed))
	}
	return removed
}

// Run 按 interval 周期清理，直到 ctx 结束。interval 非正数时不启动清理，
// 过期会话仍会在 Get 时被识别。
func (m *SessionManager) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		m.logger.Warn("session sweep disabled, interval must be positive", zap.Duration("interval", interval))
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}
