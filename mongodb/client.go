package mongodb

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
	"go.opentelemetry.io/contrib/instrumentation/go.mongodb.org/mongo-driver/v2/mongo/otelmongo"
)

var (
	clientInstance *mongo.Client
	dbInstance     *mongo.Database
	initMu         sync.Mutex
)

// ErrNotInitialized is returned when the client is used before InitMongoDB.
var ErrNotInitialized = errors.New("mongodb client is not initialized, call InitMongoDB first")

// InitMongoDB connects the shared MongoDB client and selects dbName.
// It should be called once at application startup; later calls are no-ops.
func InitMongoDB(ctx context.Context, uri, dbName string) (*mongo.Database, error) {
	initMu.Lock()
	defer initMu.Unlock()

	if dbInstance != nil {
		return dbInstance, nil
	}

	log.Info().Str("database", dbName).Msg("Initializing MongoDB client")

	clientOptions := options.Client().ApplyURI(uri)
	clientOptions.SetConnectTimeout(10 * time.Second)
	clientOptions.SetMonitor(otelmongo.NewMonitor())

	client, err := mongo.Connect(clientOptions)
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongodb primary: %w", err)
	}

	clientInstance = client
	dbInstance = client.Database(dbName)

	log.Info().Msg("MongoDB client initialized successfully.")

	return dbInstance, nil
}

// GetDB returns the database selected by InitMongoDB.
func GetDB() (*mongo.Database, error) {
	initMu.Lock()
	defer initMu.Unlock()

	if dbInstance == nil {
		return nil, ErrNotInitialized
	}
	return dbInstance, nil
}

// GetCollection returns a handle to the named collection of the shared database.
func GetCollection(name string) (*mongo.Collection, error) {
	db, err := GetDB()
	if err != nil {
		return nil, err
	}
	return db.Collection(name), nil
}

// Ping checks the connection. Used by the health endpoint.
func Ping(ctx context.Context) error {
	initMu.Lock()
	client := clientInstance
	initMu.Unlock()

	if client == nil {
		return ErrNotInitialized
	}

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return client.Ping(pingCtx, readpref.Primary())
}

// CloseMongoDB disconnects the shared client.
func CloseMongoDB(ctx context.Context) {
	initMu.Lock()
	defer initMu.Unlock()

	if clientInstance == nil {
		return
	}

	log.Info().Msg("Closing MongoDB connection.")
	if err := clientInstance.Disconnect(ctx); err != nil {
		log.Error().Err(err).Msg("Error closing MongoDB connection")
	}
	clientInstance = nil
	dbInstance = nil
}
