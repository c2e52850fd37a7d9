package configuration

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/FillingVoid7/PeerAid-sub001/internal/db"
	"github.com/FillingVoid7/PeerAid-sub001/internal/handler"
	"github.com/FillingVoid7/PeerAid-sub001/internal/hub"
	"github.com/FillingVoid7/PeerAid-sub001/internal/model"
	"github.com/FillingVoid7/PeerAid-sub001/internal/repo"
)

type Container struct {
	ChatHandler handler.ChatHandler
	Hub         *hub.Hub
	Config      Config
	Logger      *zap.Logger

	// private - for cleanup
	mongoClient *mongo.Database
}

func BuildContainer(configPath string) (*Container, error) {
	config, err := LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	con, err := db.OpenConnection(config.ChatDatabase.Uri, config.ChatDatabase.Database)
	if err != nil {
		return nil, err
	}

	logger, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}

	messages := db.NewRepository[model.Message](con, config.ChatDatabase.MessagesCollection)
	conversations := db.NewRepository[model.Conversation](con, config.ChatDatabase.ConversationsCollection)
	calls := db.NewRepository[model.AudioCall](con, config.ChatDatabase.CallsCollection)

	messageRepo := repo.NewMessageRepository(messages, logger)
	conversationRepo := repo.NewConversationRepository(conversations, logger)
	callRepo := repo.NewCallRepository(calls, logger)

	registry := hub.NewRegistry(logger)
	rooms := hub.NewRoomManager(registry, conversationRepo, logger)
	pipeline := hub.NewPipeline(rooms, registry, messageRepo, conversationRepo, logger)
	typing := hub.NewTypingTracker(rooms, logger)
	coordinator := hub.NewCallCoordinator(rooms, registry, pipeline, callRepo,
		time.Duration(config.Call.RingTimeoutSeconds)*time.Second, logger)

	gateway := hub.NewHub(registry, rooms, pipeline, typing, coordinator, config.Server.AllowedOrigins, logger)

	monitor := hub.NewMonitorService(registry, rooms, coordinator)
	chatHandler := handler.NewChatHandler(conversationRepo, pipeline, monitor)

	return &Container{
		ChatHandler: chatHandler,
		Hub:         gateway,
		Config:      *config,
		Logger:      logger,
		mongoClient: con,
	}, nil
}

// Close gracefully shuts down all connections
func (c *Container) Close() error {
	// Stop the hub first (closes all WebSocket connections)
	if c.Hub != nil {
		c.Hub.Stop()
	}

	if c.Logger != nil {
		_ = c.Logger.Sync()
	}

	// Close MongoDB connection pool
	if c.mongoClient != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := c.mongoClient.Client().Disconnect(ctx); err != nil {
			return fmt.Errorf("failed to close MongoDB connection: %w", err)
		}
	}

	return nil
}
