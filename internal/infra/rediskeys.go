package infra

import "fmt"

const (
	// RedisNamespace Базовый префикс для изоляции данных проекта в Redis
	RedisNamespace = "gridrules"
)

// Каналы Pub/Sub (события)
const (
	// RedisChanStateUpdated — симулятор публикует env_id после записи нового снимка.
	RedisChanStateUpdated = RedisNamespace + ":env:state-updated"
)

// StateKey ключ снимка окружения
func StateKey(envID string) string {
	return fmt.Sprintf("%s:env:%s:state", RedisNamespace, envID)
}
