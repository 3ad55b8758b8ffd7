package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"Resona/model"

	"github.com/go-redis/redis/v8"
)

// 项目图快照的过期时间
const projectGraphTTL = 30 * time.Minute

// GetProjectGraphKey 根据项目ID生成项目图快照的Redis键
func GetProjectGraphKey(projectID string) string {
	return fmt.Sprintf("project_graph:%s", projectID)
}

// SetProjectGraph 缓存项目的轨道图快照
// 在每次成功的全量重载之后调用，供只读请求使用
func SetProjectGraph(ctx context.Context, projectID string, tracks []*model.Track) error {
	if RedisClient == nil {
		return fmt.Errorf("Redis client not initialized")
	}

	data, err := json.Marshal(tracks)
	if err != nil {
		return fmt.Errorf("failed to marshal project graph: %w", err)
	}

	err = RedisClient.Set(ctx, GetProjectGraphKey(projectID), data, projectGraphTTL).Err()
	if err != nil {
		return fmt.Errorf("failed to cache project graph: %w", err)
	}
	return nil
}

// GetProjectGraph 读取项目的轨道图快照，缓存未命中时返回 nil
func GetProjectGraph(ctx context.Context, projectID string) ([]*model.Track, error) {
	if RedisClient == nil {
		return nil, fmt.Errorf("Redis client not initialized")
	}

	data, err := RedisClient.Get(ctx, GetProjectGraphKey(projectID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get project graph: %w", err)
	}

	var tracks []*model.Track
	if err := json.Unmarshal(data, &tracks); err != nil {
		return nil, fmt.Errorf("failed to unmarshal project graph: %w", err)
	}
	return tracks, nil
}

// InvalidateProjectGraph 使项目的轨道图快照失效
// 合并或本地编辑之后必须调用，避免读到过期状态
func InvalidateProjectGraph(ctx context.Context, projectID string) error {
	if RedisClient == nil {
		return fmt.Errorf("Redis client not initialized")
	}

	if err := RedisClient.Del(ctx, GetProjectGraphKey(projectID)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate project graph: %w", err)
	}
	return nil
}
