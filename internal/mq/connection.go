// Package mq 提供RabbitMQ连接管理和订单事件发布
package mq

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/MorseWayne/fridge_shop/internal/config"
)

// ErrNotConnected 连接尚未建立或已断开
var ErrNotConnected = errors.New("mq: not connected")

// ConnectionState 连接状态
type ConnectionState int32

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateClosed
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ConnectionManager RabbitMQ连接管理器，断线后按固定间隔重连
type ConnectionManager struct {
	cfg    config.MQConfig
	logger *zap.Logger

	connMutex sync.RWMutex
	conn      *amqp.Connection
	state     int32 // 使用atomic操作

	stopCh         chan struct{}
	stopOnce       sync.Once
	reconnectCount int32

	// onReconnected 重连成功后回调，生产者借此丢弃旧通道
	onReconnected func()
}

// NewConnectionManager 创建连接管理器
func NewConnectionManager(cfg config.MQConfig, logger *zap.Logger) *ConnectionManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConnectionManager{
		cfg:    cfg,
		logger: logger,
		state:  int32(StateDisconnected),
		stopCh: make(chan struct{}),
	}
}

// Connect 建立连接
func (cm *ConnectionManager) Connect(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&cm.state, int32(StateDisconnected), int32(StateConnecting)) {
		return fmt.Errorf("connection is already in progress or connected")
	}
	if err := cm.dial(ctx); err != nil {
		atomic.StoreInt32(&cm.state, int32(StateDisconnected))
		return err
	}
	cm.logger.Info("rabbitmq connected", zap.String("exchange", cm.cfg.Exchange))
	go cm.monitorConnection()
	return nil
}

func (cm *ConnectionManager) dial(ctx context.Context) error {
	conn, err := amqp.DialConfig(cm.cfg.URL, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(5 * time.Second),
	})
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	if err := ctx.Err(); err != nil {
		conn.Close()
		return err
	}

	cm.connMutex.Lock()
	defer cm.connMutex.Unlock()
	if cm.GetState() == StateClosed {
		conn.Close()
		return ErrNotConnected
	}
	cm.conn = conn
	atomic.StoreInt32(&cm.state, int32(StateConnected))
	return nil
}

// Channel 打开一个新通道，由调用方负责关闭
func (cm *ConnectionManager) Channel() (*amqp.Channel, error) {
	cm.connMutex.RLock()
	conn := cm.conn
	cm.connMutex.RUnlock()
	if conn == nil || conn.IsClosed() || !cm.IsConnected() {
		return nil, ErrNotConnected
	}
	return conn.Channel()
}

// IsConnected 检查是否已连接
func (cm *ConnectionManager) IsConnected() bool {
	return cm.GetState() == StateConnected
}

// GetState 获取连接状态
func (cm *ConnectionManager) GetState() ConnectionState {
	return ConnectionState(atomic.LoadInt32(&cm.state))
}

// ReconnectCount 累计重连次数
func (cm *ConnectionManager) ReconnectCount() int32 {
	return atomic.LoadInt32(&cm.reconnectCount)
}

// Close 关闭连接，之后不再重连
func (cm *ConnectionManager) Close() error {
	var err error
	cm.stopOnce.Do(func() {
		atomic.StoreInt32(&cm.state, int32(StateClosed))
		close(cm.stopCh)

		cm.connMutex.Lock()
		defer cm.connMutex.Unlock()
		if cm.conn != nil {
			err = cm.conn.Close()
			cm.conn = nil
		}
		cm.logger.Info("rabbitmq connection closed")
	})
	return err
}

// monitorConnection 监控连接状态
func (cm *ConnectionManager) monitorConnection() {
	cm.connMutex.RLock()
	conn := cm.conn
	cm.connMutex.RUnlock()
	if conn == nil {
		return
	}

	closeCh := conn.NotifyClose(make(chan *amqp.Error, 1))
	select {
	case err := <-closeCh:
		if err == nil {
			return // 主动关闭
		}
		if atomic.CompareAndSwapInt32(&cm.state, int32(StateConnected), int32(StateReconnecting)) {
			cm.logger.Warn("rabbitmq connection lost, reconnecting", zap.Error(err))
			go cm.reconnect()
		}
	case <-cm.stopCh:
	}
}

// reconnect 重连逻辑
func (cm *ConnectionManager) reconnect() {
	for attempt := 1; ; attempt++ {
		select {
		case <-cm.stopCh:
			return
		case <-time.After(cm.cfg.ReconnectDelay):
		}

		atomic.AddInt32(&cm.reconnectCount, 1)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := cm.dial(ctx)
		cancel()
		if err != nil {
			cm.logger.Error("rabbitmq reconnect failed", zap.Int("attempt", attempt), zap.Error(err))
			continue
		}

		cm.logger.Info("rabbitmq reconnected", zap.Int("attempts", attempt))
		if cm.onReconnected != nil {
			cm.onReconnected()
		}
		go cm.monitorConnection()
		return
	}
}
