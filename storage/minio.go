package storage

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/url"
	"time"

	"CineFM/config"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var (
	minioClient *minio.Client
	bucketName  string
	presignTTL  time.Duration
)

// InitMinio 初始化 MinIO 客户端并确认曲库存储桶可用
func InitMinio(cfg *config.Config) error {
	log.Printf("正在连接 MinIO 服务器: %s, bucket: %s", cfg.MinioEndpoint, cfg.MinioBucket)

	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
	})
	if err != nil {
		return fmt.Errorf("创建 MinIO 客户端失败: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.MinioBucket)
	if err != nil {
		return fmt.Errorf("检查存储桶失败: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.MinioBucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("创建存储桶失败: %w", err)
		}
		log.Printf("✅ 成功创建存储桶: %s", cfg.MinioBucket)
	}

	minioClient = client
	bucketName = cfg.MinioBucket
	presignTTL = cfg.MinioPresignTTL
	log.Println("✅ MinIO 客户端初始化成功")
	return nil
}

// GetMinioClient 获取 MinIO 客户端实例
func GetMinioClient() *minio.Client {
	return minioClient
}

// LibraryBucket 返回曲库存储桶名
func LibraryBucket() string {
	return bucketName
}

// PresignTrackURL 为曲库音频对象生成预签名播放地址。
// 预加载子系统把它当作普通远端 URL 抓取，也把它作为兜底引用交给播放端。
func PresignTrackURL(ctx context.Context, objectKey string) (string, error) {
	if minioClient == nil {
		return "", fmt.Errorf("MinIO client not initialized")
	}

	reqParams := make(url.Values)
	u, err := minioClient.PresignedGetObject(ctx, bucketName, objectKey, presignTTL, reqParams)
	if err != nil {
		return "", fmt.Errorf("生成预签名地址失败: %w", err)
	}
	return u.String(), nil
}

// UploadTrackObject 将音频流写入曲库存储桶
func UploadTrackObject(ctx context.Context, objectKey string, reader io.Reader, size int64, contentType string) error {
	if minioClient == nil {
		return fmt.Errorf("MinIO client not initialized")
	}

	_, err := minioClient.PutObject(ctx, bucketName, objectKey, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("上传音频对象失败: %w", err)
	}
	return nil
}

// StatTrackObject 检查曲库对象是否存在并返回大小
func StatTrackObject(ctx context.Context, objectKey string) (int64, error) {
	if minioClient == nil {
		return 0, fmt.Errorf("MinIO client not initialized")
	}

	info, err := minioClient.StatObject(ctx, bucketName, objectKey, minio.StatObjectOptions{})
	if err != nil {
		return 0, fmt.Errorf("查询音频对象失败: %w", err)
	}
	return info.Size, nil
}
