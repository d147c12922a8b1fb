package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"qs_chat/internal/connection"
	"qs_chat/internal/model"
	"qs_chat/internal/pipeline/proofgate"
	identityRepo "qs_chat/internal/repository/identity"
	"qs_chat/internal/service/app"
	redisSvc "qs_chat/internal/service/redis"
	"qs_chat/internal/store/content"
	"qs_chat/internal/utils/log"
)

func main() {
	relayHost := flag.String("relay", "localhost:9090", "relay host")
	mongoURI := flag.String("mongo", "mongodb://localhost:27017", "mongo URI")
	redisAddr := flag.String("redis", "localhost:6379", "redis address")
	mode := flag.String("mode", string(model.ModeSymmetricFast), "cipher mode")
	requireProof := flag.Bool("require-proof", false, "reject inbound messages without a proof")
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: client [flags] <username>")
		os.Exit(1)
	}
	username := flag.Arg(0)

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

	ctx := context.Background()

	repo := identityRepo.NewIdentityRepo(db)
	identity, err := app.GetIdentityAndCreateIfNotExist(ctx, repo, username)
	if err != nil {
		log.Fatal("identity bootstrap failed", zap.Error(err))
	}

	var toName string
	fmt.Print("Enter recipient's name: ")
	if _, err := fmt.Scan(&toName); err != nil {
		fmt.Println("error:", err)
		return
	}

	store := content.NewRedisStore(redisService)
	conn := connection.NewManager(connection.NewWebsocketTransport(*relayHost), username, nil)
	gate := proofgate.New(*requireProof)

	session := app.NewSession(identity, conn, store, gate, *relayHost)

	ui := newChatUI(session, username, toName, model.CipherMode(*mode))
	session.OnMessage(ui.showInbound)

	if err := session.Start(ctx); err != nil {
		log.Fatal("session start failed", zap.Error(err))
	}
	defer session.Stop()

	ui.run(ctx)
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
