package storage

import (
	"context"
	"fmt"
	"time"

	"Resona/config"
	"Resona/logger"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var minioClient *minio.Client

// InitMinio 初始化 MinIO 客户端
func InitMinio(cfg *config.Config) error {
	logger.Info("正在连接 MinIO 服务器...",
		logger.String("endpoint", cfg.MinioEndpoint),
		logger.String("bucket", cfg.MinioBucket))

	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
		Region: cfg.MinioRegion,
	})
	if err != nil {
		return fmt.Errorf("创建 MinIO 客户端失败: %w", err)
	}

	// 测试连接，检查存储桶是否存在
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.MinioBucket)
	if err != nil {
		return fmt.Errorf("检查存储桶失败: %w", err)
	}

	if !exists {
		// 如果存储桶不存在，尝试创建它
		err = client.MakeBucket(ctx, cfg.MinioBucket, minio.MakeBucketOptions{
			Region: cfg.MinioRegion,
		})
		if err != nil {
			return fmt.Errorf("创建存储桶失败: %w", err)
		}
		logger.Info("存储桶创建成功", logger.String("bucket", cfg.MinioBucket))
	}

	minioClient = client
	logger.Info("MinIO 连接成功")
	return nil
}

// UploadObject 上传本地文件到对象存储
func UploadObject(ctx context.Context, bucket, objectName, filePath string) error {
	if minioClient == nil {
		return fmt.Errorf("MinIO client not initialized")
	}

	info, err := minioClient.FPutObject(ctx, bucket, objectName, filePath, minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return fmt.Errorf("上传对象 %s 失败: %w", objectName, err)
	}

	logger.Debug("对象上传成功",
		logger.String("object", objectName),
		logger.Int64("size", info.Size))
	return nil
}

// DownloadObject 从对象存储下载文件到本地
func DownloadObject(ctx context.Context, bucket, objectName, filePath string) error {
	if minioClient == nil {
		return fmt.Errorf("MinIO client not initialized")
	}

	if err := minioClient.FGetObject(ctx, bucket, objectName, filePath, minio.GetObjectOptions{}); err != nil {
		return fmt.Errorf("下载对象 %s 失败: %w", objectName, err)
	}

	logger.Debug("对象下载成功", logger.String("object", objectName))
	return nil
}
