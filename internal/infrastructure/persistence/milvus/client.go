// Package milvus 基于 Milvus 的向量索引实现
package milvus

import (
	"context"
	"fmt"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"cinemind/internal/config"
)

var tracer = otel.Tracer("milvus")

const connectTimeout = 10 * time.Second

// Client Milvus 连接
type Client struct {
	milvus client.Client
	config *config.MilvusConfig
}

// NewClient 建立连接；配置了用户名与密码时启用鉴权
func NewClient(ctx context.Context, cfg *config.MilvusConfig) (*Client, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	mc := client.Config{Address: fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)}
	if cfg.User != "" && cfg.Password != "" {
		mc.Username = cfg.User
		mc.Password = cfg.Password
	}
	milvusClient, err := client.NewClient(ctx, mc)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to milvus at %s: %w", mc.Address, err)
	}
	return &Client{milvus: milvusClient, config: cfg}, nil
}

// Close 关闭连接
func (c *Client) Close() error {
	return c.milvus.Close()
}

// HealthCheck 以文档集合是否可访问作为就绪判断
func (c *Client) HealthCheck(ctx context.Context) error {
	name := c.DocumentsCollection()
	ctx, span := tracer.Start(ctx, "milvus.HealthCheck",
		trace.WithAttributes(attribute.String("collection", name)))
	defer span.End()

	ok, err := c.milvus.HasCollection(ctx, name)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("milvus health check failed: %w", err)
	}
	if !ok {
		return fmt.Errorf("milvus collection %s does not exist", name)
	}
	return nil
}

// DocumentsCollection 带前缀的文档集合名
func (c *Client) DocumentsCollection() string {
	name := c.config.Collection
	if name == "" {
		name = DefaultCollection
	}
	if c.config.CollectionPrefix != "" {
		return c.config.CollectionPrefix + "_" + name
	}
	return name
}
