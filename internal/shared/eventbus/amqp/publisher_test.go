// Package amqp 发布器测试
package amqp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"podium-gateway/internal/shared/eventbus"
)

// TestPublisher_PublishBeforeConnect 未连接即发布属于编程错误，快速失败
func TestPublisher_PublishBeforeConnect(t *testing.T) {
	p := NewPublisher("amqp://localhost", "podium.events")

	env := eventbus.NewEnvelope(eventbus.EventDraftIngested, "draft-001", "draft", nil)
	err := p.Publish(context.Background(), env, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotConnected)
}

// TestPublisher_PublishObjectRequiresRoutingKey 原始 map 发布必须显式给出路由键
func TestPublisher_PublishObjectRequiresRoutingKey(t *testing.T) {
	p := NewPublisher("amqp://localhost", "podium.events")

	err := p.PublishObject(context.Background(), map[string]interface{}{"eventType": "DraftIngested"}, "")
	require.Error(t, err)
}

// TestPublisher_NilEnvelope 空信封直接报错
func TestPublisher_NilEnvelope(t *testing.T) {
	p := NewPublisher("amqp://localhost", "podium.events")
	require.Error(t, p.Publish(context.Background(), nil, ""))
}

// TestPublisher_HealthCheckNotConnected 未连接状态的健康检查
func TestPublisher_HealthCheckNotConnected(t *testing.T) {
	p := NewPublisher("amqp://localhost", "podium.events")

	health := p.HealthCheck()
	assert.False(t, health.Connected)
	assert.Equal(t, "podium.events", health.Exchange)
}

// TestPublisher_DisconnectWithoutConnect 未连接时断开也安全
func TestPublisher_DisconnectWithoutConnect(t *testing.T) {
	p := NewPublisher("amqp://localhost", "podium.events")
	assert.NoError(t, p.Disconnect())
}

// TestHeaderName 信封字段到消息头字段的映射
func TestHeaderName(t *testing.T) {
	assert.Equal(t, "event_id", headerName("eventId"))
	assert.Equal(t, "event_type", headerName("eventType"))
	assert.Equal(t, "aggregate_id", headerName("aggregateId"))
	assert.Equal(t, "correlation_id", headerName("correlationId"))
	assert.Equal(t, "other", headerName("other"))
}
