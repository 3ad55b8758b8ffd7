package cmd

import (
	"fmt"
	"log"

	"Resona/cache"
	"Resona/config"
	"Resona/db"
	"Resona/storage"

	"github.com/spf13/cobra"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "检查后端依赖连接",
	Long:  `依次测试MySQL、Redis和MinIO连接，用于部署后自检。`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Load()
		fmt.Printf("Replica ID: %s\n", cfg.ReplicaID)

		fmt.Printf("MySQL配置: %s:%s/%s\n", cfg.DBHost, cfg.DBPort, cfg.DBName)
		if err := db.ConnectDB(cfg); err != nil {
			log.Fatalf("无法连接到MySQL: %v", err)
		}
		defer db.DB.Close()
		fmt.Println("MySQL连接成功！")

		fmt.Printf("Redis配置: %s:%s, DB: %d\n", cfg.RedisHost, cfg.RedisPort, cfg.RedisDB)
		if err := cache.ConnectRedis(cfg); err != nil {
			log.Fatalf("无法连接到Redis: %v", err)
		}
		defer cache.CloseRedis()
		fmt.Println("Redis连接成功！")

		fmt.Printf("MinIO配置: %s, Bucket: %s\n", cfg.MinioEndpoint, cfg.MinioBucket)
		if err := storage.InitMinio(cfg); err != nil {
			log.Fatalf("无法连接到MinIO: %v", err)
		}
		fmt.Println("MinIO连接成功！")

		fmt.Println("\n所有依赖检查通过。")
	},
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}
