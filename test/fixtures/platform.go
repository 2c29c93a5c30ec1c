// Package fixtures provides test helpers for integration tests.
package fixtures

import (
	"context"
	"sync"

	"github.com/eliteGoblin/focusd/focuslock/internal/domain"
)

// FakePlatform records navigation requests instead of touching the desktop.
type FakePlatform struct {
	mu    sync.Mutex
	home  []domain.AppID
	front []domain.AppID
	err   error
}

// NewFakePlatform creates a recording platform.
func NewFakePlatform() *FakePlatform {
	return &FakePlatform{}
}

// FailWith makes every later call return err (nil restores success).
func (p *FakePlatform) FailWith(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

// NavigateHome implements domain.Platform.
func (p *FakePlatform) NavigateHome(ctx context.Context, blocked domain.AppID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.home = append(p.home, blocked)
	return p.err
}

// BringToFront implements domain.Platform.
func (p *FakePlatform) BringToFront(ctx context.Context, app domain.AppID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.front = append(p.front, app)
	return p.err
}

// SentHome returns the apps sent away, in order.
func (p *FakePlatform) SentHome() []domain.AppID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.AppID(nil), p.home...)
}

// BroughtToFront returns the apps brought forward, in order.
func (p *FakePlatform) BroughtToFront() []domain.AppID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.AppID(nil), p.front...)
}

// FakeNotifier records notices.
type FakeNotifier struct {
	mu      sync.Mutex
	notices []domain.BlockNotice
}

// Notify implements domain.Notifier.
func (n *FakeNotifier) Notify(notice domain.BlockNotice) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice)
}

// Notices returns the recorded notices.
func (n *FakeNotifier) Notices() []domain.BlockNotice {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]domain.BlockNotice(nil), n.notices...)
}

var (
	_ domain.Platform = (*FakePlatform)(nil)
	_ domain.Notifier = (*FakeNotifier)(nil)
)
