package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/minio/minio-go/v7"
)

// ObjectInfo 曲库对象信息
type ObjectInfo struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModified"`
	ContentType  string    `json:"contentType,omitempty"`
	ETag         string    `json:"etag,omitempty"`
}

// BucketStats 曲库存储桶统计信息
type BucketStats struct {
	TotalObjects int64     `json:"totalObjects"`
	TotalSize    int64     `json:"totalSize"`
	LastModified time.Time `json:"lastModified"`
}

// ListLibraryObjects 列出曲库中指定前缀的对象，max <= 0 时不限数量
func ListLibraryObjects(ctx context.Context, prefix string, max int) ([]ObjectInfo, error) {
	if minioClient == nil {
		return nil, fmt.Errorf("MinIO client not initialized")
	}

	var objects []ObjectInfo
	for obj := range minioClient.ListObjects(ctx, bucketName, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("列出曲库对象失败: %w", obj.Err)
		}
		objects = append(objects, ObjectInfo{
			Key:          obj.Key,
			Size:         obj.Size,
			LastModified: obj.LastModified,
			ContentType:  obj.ContentType,
			ETag:         obj.ETag,
		})
		if max > 0 && len(objects) >= max {
			break
		}
	}
	return objects, nil
}

// GetLibraryStats 统计曲库存储桶的对象数与总大小
func GetLibraryStats(ctx context.Context) (*BucketStats, error) {
	if minioClient == nil {
		return nil, fmt.Errorf("MinIO client not initialized")
	}

	stats := &BucketStats{}
	for obj := range minioClient.ListObjects(ctx, bucketName, minio.ListObjectsOptions{
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("统计曲库对象失败: %w", obj.Err)
		}
		stats.TotalObjects++
		stats.TotalSize += obj.Size
		if obj.LastModified.After(stats.LastModified) {
			stats.LastModified = obj.LastModified
		}
	}
	return stats, nil
}
