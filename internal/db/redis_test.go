package db

import (
	"context"
	"testing"
	"time"
)

// TestNewRedisClient tests client initialization and default filling
func TestNewRedisClient(t *testing.T) {
	tests := []struct {
		name   string
		config RedisConfig
	}{
		{
			name: "minimal config",
			config: RedisConfig{
				Host: "localhost",
				Port: 6379,
			},
		},
		{
			name: "custom config with all fields",
			config: RedisConfig{
				Host:         "redis.example.com",
				Port:         6380,
				Password:     "secret",
				DB:           1,
				PoolSize:     20,
				MinIdleConns: 10,
				MaxRetries:   5,
				DialTimeout:  10 * time.Second,
				ReadTimeout:  5 * time.Second,
				WriteTimeout: 5 * time.Second,
			},
		},
		{
			name:   "empty config uses defaults",
			config: RedisConfig{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := NewRedisClient(tt.config)

			if client == nil {
				t.Fatal("Expected non-nil client")
			}
			if client.GetClient() == nil {
				t.Fatal("Expected non-nil underlying client")
			}
			if client.config.PoolSize == 0 {
				t.Error("Expected pool size default to be applied")
			}
			if client.config.DialTimeout == 0 {
				t.Error("Expected dial timeout default to be applied")
			}
		})
	}
}

// TestRedisClient_Ping tests connectivity against a live Redis
func TestRedisClient_Ping(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	client := NewRedisClient(DefaultRedisConfig())
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
}
