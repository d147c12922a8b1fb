package main

import (
	"context"
	"flag"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"qs_chat/internal/repository/identity"
	redisSvc "qs_chat/internal/service/redis"
	"qs_chat/internal/service/relay"
	"qs_chat/internal/utils/log"
)

func main() {
	addr := flag.String("addr", "localhost:9090", "listen address")
	mongoURI := flag.String("mongo", "mongodb://localhost:27017", "mongo URI")
	redisAddr := flag.String("redis", "localhost:6379", "redis address")
	flag.Parse()

	mongoDBClient, err := initMongo(*mongoURI)
	if err != nil {
		log.Fatal("mongo connect failed", zap.Error(err))
	}

	db := mongoDBClient.Database("qs_chat")

	rdb := redis.NewClient(&redis.Options{
		Addr:     *redisAddr,
		Password: "",
		DB:       0,
	})

	redisService := redisSvc.NewRedis(rdb)
	identityRepo := identity.NewIdentityRepo(db)

	r := relay.NewRelay(identityRepo, relay.NewRedisAnnounceQueue(redisService))
	log.Info("relay listening", zap.String("addr", *addr))
	if err := r.Run(*addr); err != nil {
		log.Fatal("relay stopped", zap.Error(err))
	}
}

func initMongo(uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	return client, client.Ping(ctx, nil)
}
